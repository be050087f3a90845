// Package protocol defines the JSON messages exchanged with clients. Every
// message is a flat object carrying a "type" discriminator; DecodeInbound
// dispatches client messages to their typed forms.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/cheatlab/cheatd/internal/game"
)

// Inbound message types.
const (
	TypePlayerJoin   = "player_join"
	TypeCreateGame   = "create_game"
	TypeExitQueue    = "exit_queue"
	TypeQuit         = "quit"
	TypePlay         = "play"
	TypeCall         = "call"
	TypeHumanMessage = "human_message"
	TypeNewRound     = "new_round"
)

// Outbound message types.
const (
	TypeQueueJoined       = "queue_joined"
	TypeGameCreated       = "game_created"
	TypeInvalidKey        = "invalid_key"
	TypePlayerExitedQueue = "player_exited_queue"
	TypeGameCancelled     = "game_cancelled"
	TypeState             = "state"
	TypeStateUpdate       = "state_update"
	TypeCardsPlayed       = "cards_played"
	TypeBluffCalled       = "bluff_called"
	TypeDiscard           = "discard"
	TypeBotMessage        = "bot_message"
	TypePlayerReady       = "player_ready"
	TypeRoundOver         = "round_over"
	TypeCountdown         = "countdown"
	TypeGameOver          = "game_over"
	TypeGameEnded         = "game_ended"
	TypeQuitConfirmed     = "quit_confirmed"
	TypeInvalidMove       = "invalid_move"
	TypeError             = "error"
)

// PlayerJoin enters the matchmaking queue, or a keyed game when GameKey is
// set.
type PlayerJoin struct {
	Type       string `json:"type"`
	Name       string `json:"name"`
	Avatar     string `json:"avatar"`
	NumPlayers int    `json:"num_players"`
	GameMode   string `json:"game_mode"`
	GameKey    string `json:"game_key,omitempty"`
}

// CreateGame reserves a keyed game to share with friends.
type CreateGame struct {
	Type      string `json:"type"`
	Name      string `json:"name"`
	Avatar    string `json:"avatar"`
	NumHumans int    `json:"num_humans"`
	NumBots   int    `json:"num_bots"`
}

// ExitQueue leaves a waiting game before it starts.
type ExitQueue struct {
	Type string `json:"type"`
}

// Quit leaves a running game.
type Quit struct {
	Type string `json:"type"`
}

// Play submits a human's play for the current turn.
type Play struct {
	Type         string   `json:"type"`
	DeclaredRank string   `json:"declared_rank"`
	Cards        []string `json:"cards"`
}

// Call submits a human's bluff call.
type Call struct {
	Type string `json:"type"`
}

// HumanMessage is table chat from a human.
type HumanMessage struct {
	Type     string `json:"type"`
	SenderID int    `json:"sender_id"`
	Message  string `json:"message"`
}

// NewRoundConfirm confirms the player wants another round.
type NewRoundConfirm struct {
	Type string `json:"type"`
}

// DecodeInbound parses a client message into its typed form.
func DecodeInbound(data []byte) (any, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}

	var msg any
	switch head.Type {
	case TypePlayerJoin:
		msg = &PlayerJoin{}
	case TypeCreateGame:
		msg = &CreateGame{}
	case TypeExitQueue:
		msg = &ExitQueue{}
	case TypeQuit:
		msg = &Quit{}
	case TypePlay:
		msg = &Play{}
	case TypeCall:
		msg = &Call{}
	case TypeHumanMessage:
		msg = &HumanMessage{}
	case TypeNewRound:
		msg = &NewRoundConfirm{}
	default:
		return nil, fmt.Errorf("unknown message type %q", head.Type)
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("malformed %s message: %w", head.Type, err)
	}
	return msg, nil
}

// QueueJoined reports queue occupancy to everyone waiting.
type QueueJoined struct {
	Type         string `json:"type"`
	NumConnected int    `json:"num_connected"`
	NumSlots     int    `json:"num_slots"`
}

func NewQueueJoined(connected, slots int) QueueJoined {
	return QueueJoined{Type: TypeQueueJoined, NumConnected: connected, NumSlots: slots}
}

// GameCreated carries the shareable key of a freshly reserved game.
type GameCreated struct {
	Type string `json:"type"`
	Key  string `json:"key"`
}

func NewGameCreated(key string) GameCreated {
	return GameCreated{Type: TypeGameCreated, Key: key}
}

// InvalidKey rejects a join attempt against a bad or busy key.
type InvalidKey struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewInvalidKey(message string) InvalidKey {
	return InvalidKey{Type: TypeInvalidKey, Message: message}
}

// PlayerExitedQueue notifies remaining members that a slot freed up.
type PlayerExitedQueue struct {
	Type         string `json:"type"`
	NumConnected int    `json:"num_connected"`
	NumSlots     int    `json:"num_slots"`
}

func NewPlayerExitedQueue(connected, slots int) PlayerExitedQueue {
	return PlayerExitedQueue{Type: TypePlayerExitedQueue, NumConnected: connected, NumSlots: slots}
}

// GameCancelled tells waiting members the creator dissolved the game.
type GameCancelled struct {
	Type string `json:"type"`
}

func NewGameCancelled() GameCancelled {
	return GameCancelled{Type: TypeGameCancelled}
}

// State is the full per-player snapshot: the public table plus the
// recipient's own seat and hand.
type State struct {
	Type string `json:"type"`
	game.Info
	PlayerID int      `json:"player_id"`
	Hand     []string `json:"hand"`
	Round    int      `json:"round"`
}

func NewState(info game.Info, playerID int, hand []string, round int) State {
	return State{Type: TypeState, Info: info, PlayerID: playerID, Hand: hand, Round: round}
}

// NewStateUpdate is a State sent mid-game rather than on (re)connect.
func NewStateUpdate(info game.Info, playerID int, hand []string, round int) State {
	s := NewState(info, playerID, hand, round)
	s.Type = TypeStateUpdate
	return s
}

// CardsPlayed narrates a play without revealing the cards.
type CardsPlayed struct {
	Type string `json:"type"`
	game.Info
	SenderID     int    `json:"sender_id"`
	Count        int    `json:"count"`
	DeclaredRank string `json:"declared_rank"`
	Result       string `json:"result"`
}

func NewCardsPlayed(info game.Info, ev *game.PlayEvent) CardsPlayed {
	return CardsPlayed{
		Type:         TypeCardsPlayed,
		Info:         info,
		SenderID:     ev.SeatID,
		Count:        len(ev.Cards),
		DeclaredRank: ev.DeclaredRank.String(),
		Result:       ev.String(),
	}
}

// BluffCalled reveals a resolved call.
type BluffCalled struct {
	Type string `json:"type"`
	game.Info
	CallerID    int      `json:"caller_id"`
	AccusedID   int      `json:"accused_id"`
	WasLying    bool     `json:"was_lying"`
	ActualCards []string `json:"actual_cards"`
	Result      string   `json:"result"`
}

func NewBluffCalled(info game.Info, ev *game.CallEvent, revealed []string) BluffCalled {
	return BluffCalled{
		Type:        TypeBluffCalled,
		Info:        info,
		CallerID:    ev.SeatID,
		AccusedID:   ev.AccusedID,
		WasLying:    ev.WasLying,
		ActualCards: revealed,
		Result:      ev.String(),
	}
}

// Discard announces four-of-a-kind sets leaving the game.
type Discard struct {
	Type string `json:"type"`
	game.Info
	Result string `json:"result"`
}

func NewDiscard(info game.Info, ev *game.DiscardEvent) Discard {
	return Discard{Type: TypeDiscard, Info: info, Result: ev.String()}
}

// ChatMessage is table talk relayed to everyone. The type distinguishes bot
// from human senders.
type ChatMessage struct {
	Type       string `json:"type"`
	SenderID   int    `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Message    string `json:"message"`
}

func NewChatMessage(human bool, senderID int, senderName, message string) ChatMessage {
	t := TypeBotMessage
	if human {
		t = TypeHumanMessage
	}
	return ChatMessage{Type: t, SenderID: senderID, SenderName: senderName, Message: message}
}

// PlayerReady reports a new-round confirmation.
type PlayerReady struct {
	Type     string `json:"type"`
	PlayerID int    `json:"player_id"`
}

func NewPlayerReady(playerID int) PlayerReady {
	return PlayerReady{Type: TypePlayerReady, PlayerID: playerID}
}

// RoundOver announces the round winner; Winner is "None" for the all-Aces
// dead end.
type RoundOver struct {
	Type   string `json:"type"`
	Winner string `json:"winner"`
}

func NewRoundOver(winner string) RoundOver {
	return RoundOver{Type: TypeRoundOver, Winner: winner}
}

// Countdown ticks down the new-round confirmation window.
type Countdown struct {
	Type             string `json:"type"`
	SecondsRemaining int    `json:"seconds_remaining"`
}

func NewCountdown(remaining int) Countdown {
	return Countdown{Type: TypeCountdown, SecondsRemaining: remaining}
}

// GameOver ends the whole game.
type GameOver struct {
	Type   string `json:"type"`
	Winner string `json:"winner"`
}

func NewGameOver(winner string) GameOver {
	return GameOver{Type: TypeGameOver, Winner: winner}
}

// GameEnded reports a premature end, e.g. every human left.
type GameEnded struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func NewGameEnded(reason string) GameEnded {
	return GameEnded{Type: TypeGameEnded, Reason: reason}
}

// QuitConfirmed acknowledges a quit before the connection closes.
type QuitConfirmed struct {
	Type string `json:"type"`
}

func NewQuitConfirmed() QuitConfirmed {
	return QuitConfirmed{Type: TypeQuitConfirmed}
}

// InvalidMove rejects an illegal or misrouted action with a reason.
type InvalidMove struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewInvalidMove(message string) InvalidMove {
	return InvalidMove{Type: TypeInvalidMove, Message: message}
}

// Error reports a request the server could not act on at all.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewError(message string) Error {
	return Error{Type: TypeError, Message: message}
}
