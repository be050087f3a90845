package game

import (
	"fmt"
	"strings"
	"time"

	"github.com/cheatlab/cheatd/internal/deck"
)

// EventKind discriminates history events on the wire and in history records.
type EventKind string

const (
	EventPlay         EventKind = "play"
	EventCall         EventKind = "call"
	EventPickUp       EventKind = "pick_up"
	EventDiscard      EventKind = "discard"
	EventWin          EventKind = "win"
	EventNewRound     EventKind = "new_round"
	EventGameOver     EventKind = "game_over"
	EventBotMessage   EventKind = "bot_message"
	EventHumanMessage EventKind = "human_message"
	EventPlayerExit   EventKind = "player_exit"
	EventReplacement  EventKind = "player_replacement"
	EventFailure      EventKind = "failure"
)

// Event is a single entry in a game's history. String renders the event as a
// narrated line with hidden information masked: a play never shows which
// cards went down, only how many. Revealed cards appear only in call events,
// where the rules make them public.
type Event interface {
	Kind() EventKind
	// Seat returns the acting seat, or -1 for events with no actor.
	Seat() int
	Time() time.Time
	fmt.Stringer
}

// NoSeat marks events that have no acting player.
const NoSeat = -1

// PlayEvent records a face-down play. Cards stay hidden until a call.
type PlayEvent struct {
	SeatID       int
	At           time.Time
	DeclaredRank deck.Rank
	Cards        []deck.Card
}

func (e *PlayEvent) Kind() EventKind { return EventPlay }
func (e *PlayEvent) Seat() int       { return e.SeatID }
func (e *PlayEvent) Time() time.Time { return e.At }

func (e *PlayEvent) String() string {
	noun := "cards"
	if len(e.Cards) == 1 {
		noun = "card"
	}
	return fmt.Sprintf("Player %d plays %d %s, declaring %s.", e.SeatID, len(e.Cards), noun, e.DeclaredRank)
}

// CallEvent records a bluff call and its outcome. The revealed cards are
// public from this point on.
type CallEvent struct {
	SeatID    int
	At        time.Time
	AccusedID int
	WasLying  bool
	Revealed  []deck.Card
}

func (e *CallEvent) Kind() EventKind { return EventCall }
func (e *CallEvent) Seat() int       { return e.SeatID }
func (e *CallEvent) Time() time.Time { return e.At }

func (e *CallEvent) String() string {
	if e.WasLying {
		return fmt.Sprintf("Player %d successfully calls the last play; Player %d had played %s.",
			e.SeatID, e.AccusedID, strings.Join(deck.CardStrings(e.Revealed), ", "))
	}
	return fmt.Sprintf("Player %d unsuccessfully calls the last play; Player %d was telling the truth.",
		e.SeatID, e.AccusedID)
}

// PickUpEvent records a player taking the whole pile into their hand.
type PickUpEvent struct {
	SeatID int
	At     time.Time
	Count  int
}

func (e *PickUpEvent) Kind() EventKind { return EventPickUp }
func (e *PickUpEvent) Seat() int       { return e.SeatID }
func (e *PickUpEvent) Time() time.Time { return e.At }

func (e *PickUpEvent) String() string {
	return fmt.Sprintf("Player %d picks up the pile.", e.SeatID)
}

// DiscardEvent records four-of-a-kind sets leaving the game.
type DiscardEvent struct {
	SeatID int
	At     time.Time
	Ranks  []deck.Rank
}

func (e *DiscardEvent) Kind() EventKind { return EventDiscard }
func (e *DiscardEvent) Seat() int       { return e.SeatID }
func (e *DiscardEvent) Time() time.Time { return e.At }

func (e *DiscardEvent) String() string {
	names := make([]string, len(e.Ranks))
	for i, r := range e.Ranks {
		names[i] = r.String()
	}
	return fmt.Sprintf("Player %d discards %s.", e.SeatID, strings.Join(names, ", "))
}

// WinEvent records a round winner.
type WinEvent struct {
	SeatID int
	At     time.Time
}

func (e *WinEvent) Kind() EventKind { return EventWin }
func (e *WinEvent) Seat() int       { return e.SeatID }
func (e *WinEvent) Time() time.Time { return e.At }

func (e *WinEvent) String() string {
	return fmt.Sprintf("Player %d wins the round!", e.SeatID)
}

// NewRoundEvent marks the start of a round after dealing.
type NewRoundEvent struct {
	At    time.Time
	Round int
}

func (e *NewRoundEvent) Kind() EventKind { return EventNewRound }
func (e *NewRoundEvent) Seat() int       { return NoSeat }
func (e *NewRoundEvent) Time() time.Time { return e.At }

func (e *NewRoundEvent) String() string {
	return fmt.Sprintf("Start of a new round (round number %d).", e.Round)
}

// GameOverEvent marks the end of the whole game.
type GameOverEvent struct {
	At time.Time
}

func (e *GameOverEvent) Kind() EventKind { return EventGameOver }
func (e *GameOverEvent) Seat() int       { return NoSeat }
func (e *GameOverEvent) Time() time.Time { return e.At }

func (e *GameOverEvent) String() string {
	return "Game is over."
}

// MessageEvent records table chat from a bot or a human. The two kinds share
// a shape and differ only in provenance.
type MessageEvent struct {
	SeatID  int
	At      time.Time
	Message string
	Human   bool
}

func (e *MessageEvent) Kind() EventKind {
	if e.Human {
		return EventHumanMessage
	}
	return EventBotMessage
}
func (e *MessageEvent) Seat() int       { return e.SeatID }
func (e *MessageEvent) Time() time.Time { return e.At }

func (e *MessageEvent) String() string {
	return fmt.Sprintf("Player %d broadcasts: '%s'", e.SeatID, e.Message)
}

// PlayerExitEvent records a human leaving mid-game.
type PlayerExitEvent struct {
	SeatID int
	At     time.Time
}

func (e *PlayerExitEvent) Kind() EventKind { return EventPlayerExit }
func (e *PlayerExitEvent) Seat() int       { return e.SeatID }
func (e *PlayerExitEvent) Time() time.Time { return e.At }

func (e *PlayerExitEvent) String() string {
	return fmt.Sprintf("Player %d has left the game.", e.SeatID)
}

// ReplacementEvent records a bot taking over a seat.
type ReplacementEvent struct {
	SeatID  int
	At      time.Time
	BotName string
}

func (e *ReplacementEvent) Kind() EventKind { return EventReplacement }
func (e *ReplacementEvent) Seat() int       { return e.SeatID }
func (e *ReplacementEvent) Time() time.Time { return e.At }

func (e *ReplacementEvent) String() string {
	return fmt.Sprintf("Player %d has been replaced by a bot.", e.SeatID)
}

// FailureEvent records an automated participant being removed after repeated
// invalid decisions or transport errors.
type FailureEvent struct {
	SeatID int
	At     time.Time
	Reason string
}

func (e *FailureEvent) Kind() EventKind { return EventFailure }
func (e *FailureEvent) Seat() int       { return e.SeatID }
func (e *FailureEvent) Time() time.Time { return e.At }

func (e *FailureEvent) String() string {
	return fmt.Sprintf("Player %d was forced to leave the game due to: %s.", e.SeatID, e.Reason)
}

// Narrate renders a history slice one line per event, for prompting. Events
// that render to an empty string are skipped.
func Narrate(events []Event) string {
	var sb strings.Builder
	for _, ev := range events {
		line := ev.String()
		if line == "" {
			continue
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}
