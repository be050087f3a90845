// Package session runs one table from deal to game over. The loop owns the
// rules engine exclusively: every human action, bot decision, broadcast, and
// timer fires from the single Run goroutine, with the server feeding decoded
// messages in through an inbound queue.
package session

import (
	"context"
	rand "math/rand/v2"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/cheatlab/cheatd/internal/game"
	"github.com/cheatlab/cheatd/internal/protocol"
)

// Conn is the session's handle on a human's connection. Send is best-effort
// and must never block the game loop.
type Conn interface {
	Send(v any)
	Close()
	Alive() bool
}

// Inbound is one decoded client message attributed to a seat.
type Inbound struct {
	Seat int
	Msg  any
}

// disconnected is queued by the server when a human's socket drops.
type disconnected struct{}

// Config carries the loop's timing knobs. Zero drain/recheck/wait values
// fall back to defaults; a zero BotPause genuinely means no pacing, which is
// what simulations want.
type Config struct {
	// BotPause spaces out automated turns so frontend animations keep up.
	BotPause time.Duration
	// DrainTimeout bounds the non-blocking inbound check per iteration.
	DrainTimeout time.Duration
	// HumanRecheck is how often a blocked human wait re-checks the seat for
	// mid-turn substitution.
	HumanRecheck time.Duration
	// RoundWait is the confirmation window between rounds.
	RoundWait time.Duration
}

// DefaultConfig returns production timings.
func DefaultConfig() Config {
	return Config{
		BotPause:     time.Second,
		DrainTimeout: 100 * time.Millisecond,
		HumanRecheck: 500 * time.Millisecond,
		RoundWait:    30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = def.DrainTimeout
	}
	if c.HumanRecheck <= 0 {
		c.HumanRecheck = def.HumanRecheck
	}
	if c.RoundWait <= 0 {
		c.RoundWait = def.RoundWait
	}
	return c
}

// Mode distinguishes solo tables from shared ones; only shared tables end
// when the confirmation window closes with nobody confirming.
type Mode string

const (
	ModeSingle      Mode = "single"
	ModeMultiplayer Mode = "multiplayer"
)

// Params assembles a session.
type Params struct {
	ID      string
	Mode    Mode
	Players []*game.Player
	// Conns maps human seats to their live connections.
	Conns    map[int]Conn
	RNG      *rand.Rand
	Clock    quartz.Clock
	Logger   *log.Logger
	Recorder game.Recorder
	Config   Config
	// Cleanup runs exactly once when the session ends, however it ends.
	Cleanup func()
}

// Session is one running table.
type Session struct {
	id     string
	mode   Mode
	g      *game.Game
	cfg    Config
	clock  quartz.Clock
	logger *log.Logger
	rng    *rand.Rand

	inbound chan Inbound
	conns   map[int]Conn

	confirmations map[int]bool

	cleanup func()
	done    chan struct{}
}

// New deals the game and prepares the loop; Run starts it.
func New(p Params) *Session {
	if p.Clock == nil {
		p.Clock = quartz.NewReal()
	}
	if p.Logger == nil {
		p.Logger = log.Default()
	}
	logger := p.Logger.WithPrefix("session").With("game_id", p.ID)

	opts := []game.Option{
		game.WithLogger(logger),
		game.WithClock(func() time.Time { return p.Clock.Now() }),
	}
	if p.Recorder != nil {
		opts = append(opts, game.WithRecorder(p.Recorder))
	}

	conns := p.Conns
	if conns == nil {
		conns = make(map[int]Conn)
	}
	return &Session{
		id:            p.ID,
		mode:          p.Mode,
		g:             game.New(p.Players, p.RNG, opts...),
		cfg:           p.Config.withDefaults(),
		clock:         p.Clock,
		logger:        logger,
		rng:           p.RNG,
		inbound:       make(chan Inbound, 64),
		conns:         conns,
		confirmations: make(map[int]bool),
		cleanup:       p.Cleanup,
		done:          make(chan struct{}),
	}
}

// ID returns the session's game key.
func (s *Session) ID() string { return s.id }

// Done closes when the session has fully ended and cleaned up.
func (s *Session) Done() <-chan struct{} { return s.done }

// Game exposes the engine for tests and the simulator.
func (s *Session) Game() *game.Game { return s.g }

// Handle queues a decoded client message for the loop. When the queue is
// full, control messages block until the loop drains (it always does, every
// iteration) so a chat flood cannot eat a quit; anything else is dropped
// rather than stalling the connection's read pump.
func (s *Session) Handle(seat int, msg any) {
	switch msg.(type) {
	case *protocol.Quit, *protocol.NewRoundConfirm:
		select {
		case s.inbound <- Inbound{Seat: seat, Msg: msg}:
		case <-s.done:
		}
	default:
		select {
		case s.inbound <- Inbound{Seat: seat, Msg: msg}:
		default:
			s.logger.Warn("inbound queue full, dropping message", "seat", seat)
		}
	}
}

// HandleDisconnect tells the loop a human's socket dropped.
func (s *Session) HandleDisconnect(seat int) {
	select {
	case s.inbound <- Inbound{Seat: seat, Msg: disconnected{}}:
	case <-s.done:
	}
}

// Run plays rounds until the game ends or ctx is cancelled. Cleanup always
// runs, exactly once.
func (s *Session) Run(ctx context.Context) {
	defer s.finish()

	for seat := range s.conns {
		s.sendStateTo(seat)
	}

	for !s.g.GameOver() {
		s.playRound(ctx)
		if ctx.Err() != nil || s.g.GameOver() {
			break
		}
		s.waitForNewRound(ctx)
		if ctx.Err() != nil {
			break
		}
	}

	winner := ""
	if seat, ok := s.g.Winner(); ok {
		winner = s.g.Player(seat).Name
	}
	s.broadcast(newGameOverMsg(winner))
	s.logger.Info("session over", "rounds", s.g.Round())
}

func (s *Session) finish() {
	s.g.EndGame()
	for seat, conn := range s.conns {
		conn.Close()
		delete(s.conns, seat)
	}
	if s.cleanup != nil {
		s.cleanup()
		s.cleanup = nil
	}
	close(s.done)
}

// playRound drives one round to completion.
func (s *Session) playRound(ctx context.Context) {
	s.sendStateToAll()

	for !s.g.RoundOver() && !s.g.GameOver() && ctx.Err() == nil {
		s.drainInbound(ctx)
		if s.g.RoundOver() || s.g.GameOver() {
			return
		}

		cur := s.g.CurrentPlayer()
		if s.checkForWinner(cur.ID) {
			return
		}
		s.checkFours(s.g.Turn())

		if cur.IsHuman() {
			s.humanTurn(ctx)
		} else {
			s.autoTurn(ctx, cur)
		}
		s.sleep(ctx, s.cfg.BotPause)
	}
}

// drainInbound gives queued messages a bounded slice of the iteration so
// chat and confirmations flow even while bots are playing each other.
func (s *Session) drainInbound(ctx context.Context) {
	timer := s.clock.NewTimer(s.cfg.DrainTimeout)
	defer timer.Stop()
	for {
		select {
		case in := <-s.inbound:
			s.handleMessage(in)
			if s.g.RoundOver() || s.g.GameOver() {
				return
			}
		case <-timer.C:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := s.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// checkForWinner ends the round if seat has won, or if the table has hit
// the all-Aces dead end where no truthful play is left for anyone.
func (s *Session) checkForWinner(seat int) bool {
	if s.g.AllAces() {
		s.g.EndRoundDrawn()
		s.broadcast(newRoundOverMsg("None"))
		return true
	}
	if s.g.CheckWinner(seat) {
		s.broadcast(newRoundOverMsg(s.g.Player(seat).Name))
		return true
	}
	return false
}

func (s *Session) checkFours(seat int) {
	if dropped := s.g.DiscardFours(seat); len(dropped) > 0 {
		s.broadcast(newDiscardMsg(s.g, seat, dropped))
		s.sendStateToAll()
	}
}
