package session

import (
	"github.com/cheatlab/cheatd/internal/deck"
	"github.com/cheatlab/cheatd/internal/game"
	"github.com/cheatlab/cheatd/internal/protocol"
)

// broadcast sends one message to every connected human.
func (s *Session) broadcast(v any) {
	for _, conn := range s.conns {
		conn.Send(v)
	}
}

// sendTo sends to a single seat, if a human is connected there.
func (s *Session) sendTo(seat int, v any) {
	if conn, ok := s.conns[seat]; ok {
		conn.Send(v)
	}
}

// sendStateToAll pushes each human their personal view of the table.
func (s *Session) sendStateToAll() {
	info := s.g.Info()
	for seat, conn := range s.conns {
		conn.Send(protocol.NewStateUpdate(info, seat, s.g.Player(seat).Hand.Strings(), s.g.Round()))
	}
}

// sendStateTo pushes the full state to one seat, e.g. on connect.
func (s *Session) sendStateTo(seat int) {
	s.sendTo(seat, protocol.NewState(s.g.Info(), seat, s.g.Player(seat).Hand.Strings(), s.g.Round()))
}

func newRoundOverMsg(winner string) protocol.RoundOver {
	return protocol.NewRoundOver(winner)
}

func newGameOverMsg(winner string) protocol.GameOver {
	return protocol.NewGameOver(winner)
}

func newDiscardMsg(g *game.Game, seat int, dropped []deck.Rank) protocol.Discard {
	return protocol.NewDiscard(g.Info(), &game.DiscardEvent{SeatID: seat, Ranks: dropped})
}

// relayChat records table talk in the history and fans it out.
func (s *Session) relayChat(seat int, msg string, human bool) {
	if msg == "" {
		return
	}
	s.g.RecordMessage(seat, msg, human)
	s.broadcast(protocol.NewChatMessage(human, seat, s.g.Player(seat).Name, msg))
}
