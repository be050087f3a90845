package game

import (
	"context"

	"github.com/cheatlab/cheatd/internal/deck"
)

// ParticipantKind identifies how a seat is driven.
type ParticipantKind string

const (
	KindHuman ParticipantKind = "human"
	KindBot   ParticipantKind = "bot"
	KindLLM   ParticipantKind = "LLM"
)

// ActionKind is what a participant chose to do on its turn.
type ActionKind string

const (
	ActionPlay ActionKind = "play"
	ActionCall ActionKind = "call"
)

// Action is a participant's decision for one turn. A play carries the
// declared rank and the face-down cards; a call carries neither.
type Action struct {
	Kind         ActionKind
	DeclaredRank deck.Rank
	Cards        []deck.Card
}

// Topic asks a participant for a specific flavour of table talk.
type Topic string

const (
	// TopicAny lets the participant react to the latest history event.
	TopicAny Topic = ""
	// TopicThinking is solicited while the participant is deciding.
	TopicThinking Topic = "thinking"
)

// Participant drives a seat. Humans are driven over a websocket, bots decide
// locally, and LLM participants call out to a model. Decide is only invoked
// for automated participants; human actions arrive through the session's
// inbound queue instead.
type Participant interface {
	Kind() ParticipantKind

	// Decide returns the participant's action for the current turn. The view
	// is scoped to this seat: own cards visible, everyone else's masked.
	// Implementations must honour ctx cancellation.
	Decide(ctx context.Context, view *View) (Action, error)

	// Announce optionally returns table talk for the given topic. An empty
	// string means the participant stays silent.
	Announce(view *View, topic Topic) string

	// Connected reports whether the participant can currently act. Automated
	// participants are always connected.
	Connected() bool
}

// View is a single seat's window onto the game: the seat's own hand plus
// everything public. It is a snapshot; mutating it does not affect the game.
type View struct {
	Self           int
	Hand           deck.Hand
	HandSizes      []int
	PileSize       int
	CurrentRank    deck.Rank
	HasRank        bool
	DiscardedRanks []deck.Rank
	Turn           int
	Round          int
	NumPlayers     int
	Players        []PlayerInfo
	History        []Event
}

// LastPlay scans the view's history backwards for the most recent play,
// reporting false if nothing has been played yet.
func (v *View) LastPlay() (*PlayEvent, bool) {
	for i := len(v.History) - 1; i >= 0; i-- {
		if play, ok := v.History[i].(*PlayEvent); ok {
			return play, true
		}
	}
	return nil, false
}

// LastActionIndex returns the index of the most recent play or call event,
// or -1 if there is none. Bots key their table talk off this event.
func (v *View) LastActionIndex() int {
	for i := len(v.History) - 1; i >= 0; i-- {
		switch v.History[i].(type) {
		case *PlayEvent, *CallEvent:
			return i
		}
	}
	return -1
}
