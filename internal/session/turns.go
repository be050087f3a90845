package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/cheatlab/cheatd/internal/deck"
	"github.com/cheatlab/cheatd/internal/game"
	"github.com/cheatlab/cheatd/internal/protocol"
)

// humanTurn blocks on the inbound queue until the acting human plays or
// calls. The wait re-checks the seat periodically: a disconnect may have
// swapped a bot in mid-turn, in which case the next loop iteration handles
// the seat as a bot.
func (s *Session) humanTurn(ctx context.Context) {
	ticker := s.clock.NewTicker(s.cfg.HumanRecheck)
	defer ticker.Stop()

	for {
		select {
		case in := <-s.inbound:
			if s.handleTurnMessage(in) {
				return
			}
			if s.g.RoundOver() || s.g.GameOver() {
				return
			}
		case <-ticker.C:
			cur := s.g.CurrentPlayer()
			if !cur.IsHuman() {
				return
			}
			if !cur.Participant.Connected() {
				s.substitute(cur.ID)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// handleTurnMessage processes one message while a human turn is pending,
// reporting whether the turn was resolved.
func (s *Session) handleTurnMessage(in Inbound) bool {
	acting := s.g.Turn()

	switch msg := in.Msg.(type) {
	case *protocol.Play:
		if in.Seat != acting {
			s.sendTo(in.Seat, protocol.NewInvalidMove("it is not your turn"))
			return false
		}
		// Humans can forget to call: the previous player may already hold a
		// winning hand that a call would have broken up.
		prev := (acting - 1 + s.g.NumPlayers()) % s.g.NumPlayers()
		if s.checkForWinner(prev) {
			return true
		}
		return s.applyHumanPlay(acting, msg)

	case *protocol.Call:
		if in.Seat != acting {
			s.sendTo(in.Seat, protocol.NewInvalidMove("it is not your turn"))
			return false
		}
		if err := s.call(acting); err != nil {
			s.sendTo(acting, protocol.NewInvalidMove(invalidReason(err)))
			return false
		}
		return true

	default:
		s.handleMessage(in)
		return false
	}
}

func (s *Session) applyHumanPlay(seat int, msg *protocol.Play) bool {
	declared, err := deck.ParseRank(msg.DeclaredRank)
	if err != nil {
		s.sendTo(seat, protocol.NewInvalidMove(err.Error()))
		return false
	}
	cards, err := deck.ParseCards(msg.Cards)
	if err != nil {
		s.sendTo(seat, protocol.NewInvalidMove(err.Error()))
		return false
	}
	if declared == deck.Ace {
		s.sendTo(seat, protocol.NewInvalidMove("Aces can never be declared"))
		return false
	}
	if err := s.play(seat, declared, cards); err != nil {
		s.sendTo(seat, protocol.NewInvalidMove(invalidReason(err)))
		return false
	}
	return true
}

// autoTurn asks a bot or LLM participant for its move and applies it. A
// participant that fails is replaced by a bot and the turn is retried on the
// next loop iteration.
func (s *Session) autoTurn(ctx context.Context, cur *game.Player) {
	action, err := cur.Participant.Decide(ctx, s.g.View(cur.ID))
	if err != nil {
		s.failParticipant(cur.ID, err)
		return
	}

	switch action.Kind {
	case game.ActionCall:
		wasLying, err := s.callResolved(cur.ID)
		if err != nil {
			s.failParticipant(cur.ID, err)
			return
		}
		if !wasLying {
			return
		}
		// A successful call leaves the turn with the caller, who leads the
		// fresh trick immediately.
		if s.checkForWinner(cur.ID) {
			return
		}
		action, err = cur.Participant.Decide(ctx, s.g.View(cur.ID))
		if err != nil || action.Kind != game.ActionPlay {
			s.failParticipant(cur.ID, fmt.Errorf("no lead after successful call: %w", err))
			return
		}
		fallthrough

	case game.ActionPlay:
		if s.checkForWinner(cur.ID) {
			return
		}
		if err := s.play(cur.ID, action.DeclaredRank, action.Cards); err != nil {
			s.failParticipant(cur.ID, err)
		}

	default:
		s.failParticipant(cur.ID, fmt.Errorf("unknown action kind %q", action.Kind))
	}
}

// play applies a validated-enough play to the engine and narrates it: the
// actor may think out loud first, the table sees the masked play, and the
// other automated seats get a chance to react. The turn then advances.
func (s *Session) play(seat int, declared deck.Rank, cards []deck.Card) error {
	s.solicitTalk(seat, game.TopicThinking)

	if err := s.g.Play(seat, declared, cards); err != nil {
		return err
	}
	last, _ := s.g.LastPlay()
	s.broadcast(protocol.NewCardsPlayed(s.g.Info(), last))
	s.collectOpinions(seat)

	s.g.Advance()
	s.sendStateToAll()
	return nil
}

func (s *Session) call(seat int) error {
	_, err := s.callResolved(seat)
	return err
}

// callResolved resolves a bluff call, handles the pile pickup's
// four-of-a-kind check, and advances the turn past an unsuccessful caller.
func (s *Session) callResolved(seat int) (bool, error) {
	s.solicitTalk(seat, game.TopicThinking)

	call, err := s.g.CallBluff(seat)
	if err != nil {
		return false, err
	}
	s.broadcast(protocol.NewBluffCalled(s.g.Info(), call, deck.CardStrings(call.Revealed)))

	// Whoever picked up the pile may now hold fresh fours.
	loser := seat
	if call.WasLying {
		loser = call.AccusedID
	}
	s.checkFours(loser)
	s.sendStateToAll()
	s.collectOpinions(game.NoSeat)

	if !call.WasLying {
		s.g.Advance()
		s.sendStateToAll()
	}
	return call.WasLying, nil
}

// solicitTalk asks one automated seat for topical table talk.
func (s *Session) solicitTalk(seat int, topic game.Topic) {
	p := s.g.Player(seat)
	if p.IsHuman() {
		return
	}
	s.relayChat(seat, p.Participant.Announce(s.g.View(seat), topic), false)
}

// collectOpinions lets every automated seat except the excluded one react to
// the latest history. Pass game.NoSeat to query everyone.
func (s *Session) collectOpinions(exclude int) {
	for _, p := range s.g.Players() {
		if p.ID == exclude || p.IsHuman() {
			continue
		}
		s.relayChat(p.ID, p.Participant.Announce(s.g.View(p.ID), game.TopicAny), false)
	}
}

// handleMessage processes messages that are valid at any time: chat,
// new-round confirmations, quits, and disconnects. Plays and calls arriving
// outside a human turn are misrouted and rejected.
func (s *Session) handleMessage(in Inbound) {
	switch msg := in.Msg.(type) {
	case *protocol.HumanMessage:
		s.relayChat(in.Seat, msg.Message, true)

	case *protocol.NewRoundConfirm:
		s.confirmations[in.Seat] = true
		s.broadcast(protocol.NewPlayerReady(in.Seat))

	case *protocol.Quit:
		s.sendTo(in.Seat, protocol.NewQuitConfirmed())
		s.dropHuman(in.Seat, true)

	case disconnected:
		s.dropHuman(in.Seat, false)

	case *protocol.Play, *protocol.Call:
		s.sendTo(in.Seat, protocol.NewInvalidMove("it is not your turn"))

	default:
		s.logger.Warn("unexpected message in session", "seat", in.Seat, "type", fmt.Sprintf("%T", in.Msg))
		s.sendTo(in.Seat, protocol.NewError("message not understood"))
	}
}

// dropHuman removes a human from the table, substituting a bot when the
// game continues and ending it when nobody human is left.
func (s *Session) dropHuman(seat int, quit bool) {
	conn, connected := s.conns[seat]
	delete(s.conns, seat)
	if !s.g.Player(seat).IsHuman() {
		if connected {
			conn.Close()
		}
		return
	}

	if len(s.conns) == 0 {
		reason := "player_disconnected"
		if quit {
			reason = "player_quit"
		}
		s.logger.Info("last human gone, ending game", "seat", seat, "reason", reason)
		s.g.RecordExit(seat)
		if connected {
			conn.Send(protocol.NewGameEnded(reason))
			conn.Close()
		}
		s.g.EndRoundDrawn()
		s.g.EndGame()
		return
	}
	if connected {
		conn.Close()
	}
	s.substitute(seat)
}

// substitute hands a seat to a bot, preserving its identity and cards.
func (s *Session) substitute(seat int) {
	p := s.g.Player(seat)
	oldName := p.Name

	s.broadcast(protocol.NewChatMessage(true, seat, oldName, fmt.Sprintf("%s has left the game.", oldName)))
	s.g.RecordExit(seat)

	p.Name = oldName + "_bot"
	p.Participant = newReplacementBot(s.rng)
	s.g.RecordReplacement(seat, p.Name)
	s.logger.Info("seat handed to bot", "seat", seat, "bot", p.Name)

	s.broadcast(protocol.NewChatMessage(false, seat, p.Name,
		fmt.Sprintf("%s has taken over for %s", p.Name, oldName)))
	s.sendStateToAll()
}

// failParticipant removes an automated participant that could not produce a
// usable move and seats a bot instead.
func (s *Session) failParticipant(seat int, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	s.logger.Warn("participant failed", "seat", seat, "err", err)
	s.g.RecordFailure(seat, err.Error())
	s.substitute(seat)
}

func invalidReason(err error) string {
	var ime *game.InvalidMoveError
	if errors.As(err, &ime) {
		return ime.Reason
	}
	return err.Error()
}
