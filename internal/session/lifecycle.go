package session

import (
	"context"
	rand "math/rand/v2"
	"time"

	"github.com/cheatlab/cheatd/internal/bot"
	"github.com/cheatlab/cheatd/internal/game"
	"github.com/cheatlab/cheatd/internal/protocol"
)

// newReplacementBot is the stand-in for a departed human: a slightly quiet
// random bot.
func newReplacementBot(rng *rand.Rand) game.Participant {
	return bot.NewRandom(bot.Config{PCall: 0.3, PLie: 0.3, Verbosity: 0.2}, rng)
}

// humanParticipant marks a seat as human-driven. Decisions never come from
// Decide; they arrive through the session's inbound queue.
type humanParticipant struct {
	conn Conn
}

// NewHuman wraps a connection as a seat participant.
func NewHuman(conn Conn) game.Participant {
	return &humanParticipant{conn: conn}
}

func (h *humanParticipant) Kind() game.ParticipantKind { return game.KindHuman }

func (h *humanParticipant) Decide(context.Context, *game.View) (game.Action, error) {
	return game.Action{}, &game.ParticipantFailure{Reason: "human seats decide via the inbound queue"}
}

func (h *humanParticipant) Announce(*game.View, game.Topic) string { return "" }

func (h *humanParticipant) Connected() bool {
	return h.conn != nil && h.conn.Alive()
}

// waitForNewRound holds the table between rounds: humans confirm they want
// another one, a countdown ticks down once per second, and whoever has not
// confirmed when it expires is dropped. A window that closes with zero
// confirmations ends a multiplayer game; a solo table just deals again.
func (s *Session) waitForNewRound(ctx context.Context) {
	s.confirmations = make(map[int]bool)

	humans := s.humanSeats()
	if len(humans) == 0 {
		if s.mode == ModeMultiplayer || len(s.conns) == 0 {
			// Nothing but bots left; nobody is watching.
			s.g.EndGame()
			return
		}
	}

	deadline := s.clock.Now().Add(s.cfg.RoundWait)
	ticker := s.clock.NewTicker(time.Second)
	defer ticker.Stop()

	s.broadcastCountdown(deadline)

wait:
	for {
		select {
		case in := <-s.inbound:
			s.handleMessage(in)
			if s.g.GameOver() {
				return
			}
			if s.allHumansConfirmed() {
				break wait
			}
		case <-ticker.C:
			if s.clock.Now().After(deadline) {
				if len(s.confirmations) == 0 {
					if s.mode != ModeSingle {
						s.logger.Info("confirmation window closed with no confirmations, ending game")
						s.g.EndGame()
						return
					}
					break wait
				}
				s.dropUnconfirmed()
				break wait
			}
			s.broadcastCountdown(deadline)
			if s.allHumansConfirmed() {
				break wait
			}
			if len(s.connectedHumanSeats()) == 0 && s.mode == ModeMultiplayer {
				s.logger.Info("no humans connected, ending game")
				s.g.EndGame()
				return
			}
		case <-ctx.Done():
			return
		}
	}

	s.replaceDisconnected()
	s.g.NewRound()
	s.sendStateToAll()
}

func (s *Session) broadcastCountdown(deadline time.Time) {
	remaining := int(deadline.Sub(s.clock.Now()).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	s.broadcast(protocol.NewCountdown(remaining))
}

func (s *Session) humanSeats() []int {
	var seats []int
	for _, p := range s.g.Players() {
		if p.IsHuman() {
			seats = append(seats, p.ID)
		}
	}
	return seats
}

func (s *Session) connectedHumanSeats() []int {
	var seats []int
	for _, p := range s.g.Players() {
		if p.IsHuman() && p.Participant.Connected() {
			seats = append(seats, p.ID)
		}
	}
	return seats
}

func (s *Session) allHumansConfirmed() bool {
	humans := s.connectedHumanSeats()
	if len(humans) == 0 {
		return false
	}
	for _, seat := range humans {
		if !s.confirmations[seat] {
			return false
		}
	}
	return true
}

// dropUnconfirmed disconnects every human who let the countdown expire.
func (s *Session) dropUnconfirmed() {
	for _, seat := range s.humanSeats() {
		if s.confirmations[seat] {
			continue
		}
		s.sendTo(seat, protocol.NewQuitConfirmed())
		if conn, ok := s.conns[seat]; ok {
			conn.Close()
			delete(s.conns, seat)
		}
	}
}

// replaceDisconnected seats bots for humans whose connections are gone, so
// the new round starts with every seat able to act.
func (s *Session) replaceDisconnected() {
	for _, p := range s.g.Players() {
		if p.Participant.Kind() == game.KindBot {
			continue
		}
		if !p.Participant.Connected() {
			s.substitute(p.ID)
		}
	}
}
