package game

import "github.com/cheatlab/cheatd/internal/deck"

// Player is a seat at the table. The seat's identity (ID, name, avatar) and
// hand outlive the participant driving it: when a human leaves mid-game, a
// bot takes over the same seat and inherits the cards.
type Player struct {
	ID          int
	Name        string
	Avatar      string
	Hand        deck.Hand
	Participant Participant
}

// PlayerInfo is the public face of a seat, safe to broadcast to everyone.
type PlayerInfo struct {
	ID        int             `json:"id"`
	Name      string          `json:"name"`
	Avatar    string          `json:"avatar"`
	Kind      ParticipantKind `json:"type"`
	Connected bool            `json:"connected"`
	CardCount int             `json:"cardCount"`
}

// Info returns the seat's public info.
func (p *Player) Info() PlayerInfo {
	return PlayerInfo{
		ID:        p.ID,
		Name:      p.Name,
		Avatar:    p.Avatar,
		Kind:      p.Participant.Kind(),
		Connected: p.Participant.Connected(),
		CardCount: len(p.Hand),
	}
}

// IsHuman reports whether the seat is currently driven by a human.
func (p *Player) IsHuman() bool {
	return p.Participant.Kind() == KindHuman
}
