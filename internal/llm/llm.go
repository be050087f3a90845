// Package llm drives a seat through an external language model. The model
// is reached through an injected Asker; this package owns the prompting, the
// response grammar, and the retry policy.
package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/cheatlab/cheatd/internal/deck"
	"github.com/cheatlab/cheatd/internal/game"
)

// Asker sends one prompt to the model and returns its reply.
type Asker func(ctx context.Context, prompt string) (string, error)

// The initial prompt teaches the rules and the response grammar once; turn
// prompts then only carry incremental history.
const rulesPrompt = `You are playing the card game Cheat. Rules: all 52 cards are dealt out. ` +
	`Players take turns placing cards face-down on a pile while declaring a rank; the declaration may be a lie. ` +
	`The first play of a trick sets the rank and every later play must declare that same rank. ` +
	`Aces can never be declared. Instead of playing, you may call the last play: ` +
	`if the player lied they pick up the pile, otherwise you do. ` +
	`Four of a kind (except Aces) is discarded automatically. ` +
	`You win by shedding all your cards, or by holding only cards of one non-Ace rank you can truthfully play on your turn. ` +
	`When asked to act, answer with exactly one line: either "call", ` +
	`or "Play [<cards>]; Declare <rank>" where <cards> is a comma-separated list from your hand, e.g. Play [2♠, 2♥]; Declare 2. ` +
	`The Declare part may be omitted when a rank is already set. ` +
	`Answer "ok" now if you understand.`

var playPattern = regexp.MustCompile(`Play \[(.*?)\](?:; Declare (.+))?`)

// Player is an LLM-driven participant. It keeps a cursor into the history so
// each turn prompt only narrates what happened since the last one.
type Player struct {
	asker  Asker
	logger *log.Logger
	seen   int
}

// New initialises the model with the rules prompt. A nil asker means the
// deployment has no model credential; that is surfaced before any game
// starts rather than at the table.
func New(ctx context.Context, asker Asker, logger *log.Logger) (*Player, error) {
	if asker == nil {
		return nil, fmt.Errorf("no model configured: %w", game.ErrMissingPrerequisite)
	}
	reply, err := asker(ctx, rulesPrompt)
	if err != nil {
		return nil, fmt.Errorf("model rejected rules prompt: %w", err)
	}
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(reply)), "ok") {
		return nil, fmt.Errorf("model replied %q to rules prompt", reply)
	}
	return &Player{asker: asker, logger: logger}, nil
}

func (p *Player) Kind() game.ParticipantKind { return game.KindLLM }

func (p *Player) Connected() bool { return true }

// Announce stays silent; the model only speaks through its moves.
func (p *Player) Announce(*game.View, game.Topic) string { return "" }

// Decide narrates the history since the last turn, asks the model for a
// move, and parses the reply. One malformed reply earns a retry carrying the
// parse error; a second one is a ParticipantFailure and the seat is handed
// to a bot.
func (p *Player) Decide(ctx context.Context, view *game.View) (game.Action, error) {
	prompt := p.turnPrompt(view)
	p.seen = len(view.History)

	reply, err := p.asker(ctx, prompt)
	if err != nil {
		return game.Action{}, &game.ParticipantFailure{Reason: fmt.Sprintf("model request failed: %v", err)}
	}
	action, parseErr := parseReply(reply, view)
	if parseErr == nil {
		return action, nil
	}
	p.logger.Warn("model reply unparseable, retrying", "reply", reply, "err", parseErr)

	retryPrompt := fmt.Sprintf(
		"Your reply %q was invalid: %v. Answer with exactly one line: either \"call\" or \"Play [<cards>]; Declare <rank>\".",
		reply, parseErr)
	reply, err = p.asker(ctx, retryPrompt)
	if err != nil {
		return game.Action{}, &game.ParticipantFailure{Reason: fmt.Sprintf("model request failed: %v", err)}
	}
	action, parseErr = parseReply(reply, view)
	if parseErr != nil {
		return game.Action{}, &game.ParticipantFailure{Reason: fmt.Sprintf("model produced no valid move: %v", parseErr)}
	}
	return action, nil
}

func (p *Player) turnPrompt(view *game.View) string {
	var sb strings.Builder

	events := view.History[p.seen:]
	if p.seen == 0 {
		fmt.Fprintf(&sb, "- Start of the game, the pile is empty, and no rank has been declared. Your player id is: %d\n", view.Self)
	}
	for _, ev := range events {
		line := ev.String()
		if line == "" {
			continue
		}
		fmt.Fprintf(&sb, "- %s\n", line)
	}

	if view.Turn == view.Self {
		var sizes []string
		for seat, n := range view.HandSizes {
			if seat == view.Self {
				continue
			}
			sizes = append(sizes, fmt.Sprintf("Player %d: %d card(s)", seat, n))
		}
		fmt.Fprintf(&sb, "- It's your turn. The hand sizes of the other players: %s, and your hand is %v.",
			strings.Join(sizes, "; "), view.Hand.Strings())
	}
	if view.HasRank {
		fmt.Fprintf(&sb, " The current declared rank is %s.", view.CurrentRank)
	}
	return sb.String()
}

// parseReply turns a model reply into an action, validating it against the
// seat's view so obvious illegalities bounce straight back to the model.
func parseReply(reply string, view *game.View) (game.Action, error) {
	reply = strings.TrimSpace(reply)
	if strings.EqualFold(reply, "call") {
		if view.PileSize == 0 {
			return game.Action{}, fmt.Errorf("nothing to call, the pile is empty")
		}
		return game.Action{Kind: game.ActionCall}, nil
	}

	m := playPattern.FindStringSubmatch(reply)
	if m == nil {
		return game.Action{}, fmt.Errorf("reply matches neither \"call\" nor \"Play [...]; Declare ...\"")
	}

	var declared deck.Rank
	if m[2] != "" {
		r, err := deck.ParseRank(strings.TrimSpace(m[2]))
		if err != nil {
			return game.Action{}, err
		}
		declared = r
	} else {
		if !view.HasRank {
			return game.Action{}, fmt.Errorf("a rank must be declared on an empty pile")
		}
		declared = view.CurrentRank
	}
	if declared == deck.Ace {
		return game.Action{}, fmt.Errorf("Aces can never be declared")
	}
	if view.HasRank && declared != view.CurrentRank {
		return game.Action{}, fmt.Errorf("the trick rank is %s", view.CurrentRank)
	}

	var cards []deck.Card
	remaining := make(deck.Hand, len(view.Hand))
	copy(remaining, view.Hand)
	for _, raw := range strings.Split(m[1], ",") {
		raw = strings.Trim(strings.TrimSpace(raw), `'"`)
		if raw == "" {
			continue
		}
		c, err := deck.ParseCard(raw)
		if err != nil {
			return game.Action{}, err
		}
		if !remaining.Remove(c) {
			return game.Action{}, fmt.Errorf("%s is not in your hand", c)
		}
		cards = append(cards, c)
	}
	if len(cards) == 0 {
		return game.Action{}, fmt.Errorf("at least one card must be played")
	}
	return game.Action{Kind: game.ActionPlay, DeclaredRank: declared, Cards: cards}, nil
}
