// Package history persists game events as JSONL, one record per event.
// Persistence is strictly best-effort: a full disk or a bad path must never
// take a running table down, so every error here is logged and swallowed.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/cheatlab/cheatd/internal/deck"
	"github.com/cheatlab/cheatd/internal/game"
)

const fileName = "game_history.jsonl"

// Recorder appends one JSON line per game event to a per-game directory.
// A Recorder whose directory could not be created is a no-op.
type Recorder struct {
	gameID string
	logger *log.Logger

	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

type record struct {
	GameID    string         `json:"game_id"`
	Round     int            `json:"round"`
	Type      game.EventKind `json:"type"`
	PlayerID  *int           `json:"player_id"`
	Timestamp string         `json:"timestamp"`
	Data      any            `json:"data"`
}

// NewRecorder opens a fresh game_<timestamp> directory under outDir. Errors
// are logged, not returned; the caller gets a working or a no-op recorder
// either way.
func NewRecorder(outDir, gameID string, logger *log.Logger) *Recorder {
	r := &Recorder{gameID: gameID, logger: logger}

	dir := filepath.Join(outDir, fmt.Sprintf("game_%s", time.Now().Format("20060102_150405")))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Error("history directory not writable, recording disabled", "dir", dir, "err", err)
		return r
	}
	f, err := os.OpenFile(filepath.Join(dir, fileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		logger.Error("history file not writable, recording disabled", "err", err)
		return r
	}
	r.f = f
	r.enc = json.NewEncoder(f)
	return r
}

// Record writes one event. Safe for concurrent use and safe after Close.
func (r *Recorder) Record(round int, ev game.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return
	}

	rec := record{
		GameID:    r.gameID,
		Round:     round,
		Type:      ev.Kind(),
		Timestamp: ev.Time().Format(time.RFC3339Nano),
		Data:      eventData(ev),
	}
	if seat := ev.Seat(); seat != game.NoSeat {
		rec.PlayerID = &seat
	}
	if err := r.enc.Encode(rec); err != nil {
		r.logger.Error("failed to write history record", "type", ev.Kind(), "err", err)
	}
}

// Close flushes and closes the underlying file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	r.enc = nil
	return err
}

// eventData flattens an event's payload for the JSONL record. Played cards
// are persisted in the clear; the history files are server-side only.
func eventData(ev game.Event) any {
	switch e := ev.(type) {
	case *game.PlayEvent:
		return map[string]any{
			"declared_rank": e.DeclaredRank.String(),
			"cards_played":  deck.CardStrings(e.Cards),
		}
	case *game.CallEvent:
		return map[string]any{
			"was_lying":      e.WasLying,
			"accused_id":     e.AccusedID,
			"revealed_cards": deck.CardStrings(e.Revealed),
		}
	case *game.PickUpEvent:
		return map[string]any{"pile_size": e.Count}
	case *game.DiscardEvent:
		ranks := make([]string, len(e.Ranks))
		for i, r := range e.Ranks {
			ranks[i] = r.String()
		}
		return ranks
	case *game.NewRoundEvent:
		return map[string]any{"round": e.Round}
	case *game.MessageEvent:
		return e.Message
	case *game.ReplacementEvent:
		return map[string]any{"bot_name": e.BotName}
	case *game.FailureEvent:
		return map[string]any{"reason": e.Reason}
	default:
		return nil
	}
}
