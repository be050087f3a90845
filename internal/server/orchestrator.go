package server

import (
	"context"
	"fmt"
	rand "math/rand/v2"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/cheatlab/cheatd/internal/bot"
	"github.com/cheatlab/cheatd/internal/game"
	"github.com/cheatlab/cheatd/internal/gameid"
	"github.com/cheatlab/cheatd/internal/history"
	"github.com/cheatlab/cheatd/internal/llm"
	"github.com/cheatlab/cheatd/internal/protocol"
	"github.com/cheatlab/cheatd/internal/randutil"
	"github.com/cheatlab/cheatd/internal/session"
)

// client is any connected player; *Connection in production, a fake in
// tests.
type client = session.Conn

type queueKey struct {
	numPlayers int
	mode       session.Mode
}

type waitingMember struct {
	conn   client
	name   string
	avatar string
}

// waitingGame is a keyed game that has not started yet: the creator plus
// whoever joined with the shared key.
type waitingGame struct {
	key       string
	creator   client
	numHumans int
	numBots   int
	members   []*waitingMember
}

type route struct {
	sess *session.Session
	seat int
}

// Orchestrator owns matchmaking and the registry of running sessions. It
// holds players in queues keyed by (table size, mode), reserves keyed games
// for friends, and promotes either to a running session on a periodic sweep
// once enough humans are present.
type Orchestrator struct {
	cfg      *Config
	logger   *log.Logger
	clock    quartz.Clock
	keys     *gameid.Generator
	newAsker func() llm.Asker

	mu       sync.Mutex
	rng      *rand.Rand
	queues   map[queueKey][]*waitingMember
	waiting  map[string]*waitingGame
	creators map[client]string
	routes   map[client]route
	sessions map[string]*session.Session
}

// Option configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithClock injects the timer source.
func WithClock(clock quartz.Clock) OrchestratorOption {
	return func(o *Orchestrator) { o.clock = clock }
}

// WithSeed makes matchmaking and dealing deterministic.
func WithSeed(seed int64) OrchestratorOption {
	return func(o *Orchestrator) {
		o.rng = randutil.New(seed)
		o.keys = gameid.NewGenerator(o.rng)
	}
}

// WithAskerFactory provides the model transport used when the config
// enables a model-driven seat. Each session gets its own asker because the
// conversation carries state.
func WithAskerFactory(factory func() llm.Asker) OrchestratorOption {
	return func(o *Orchestrator) { o.newAsker = factory }
}

// NewOrchestrator creates the matchmaking hub.
func NewOrchestrator(cfg *Config, logger *log.Logger, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		logger:   logger.WithPrefix("orchestrator"),
		clock:    quartz.NewReal(),
		keys:     gameid.NewGenerator(nil),
		rng:      randutil.New(time.Now().UnixNano()),
		queues:   make(map[queueKey][]*waitingMember),
		waiting:  make(map[string]*waitingGame),
		creators: make(map[client]string),
		routes:   make(map[client]route),
		sessions: make(map[string]*session.Session),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run sweeps the queues until ctx is cancelled. Promotion is poll-driven so
// a join never races a start.
func (o *Orchestrator) Run(ctx context.Context) {
	interval := time.Duration(o.cfg.Server.SweepIntervalMS) * time.Millisecond
	ticker := o.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			o.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// ActiveSessions returns the number of running games.
func (o *Orchestrator) ActiveSessions() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sessions)
}

// HandleMessage dispatches one decoded client message: pre-game messages
// are handled here, everything else is routed to the client's session.
func (o *Orchestrator) HandleMessage(c client, msg any) {
	switch m := msg.(type) {
	case *protocol.PlayerJoin:
		o.join(c, m)
	case *protocol.CreateGame:
		o.createGame(c, m)
	case *protocol.ExitQueue:
		o.exitQueue(c, true)
	default:
		o.mu.Lock()
		r, routed := o.routes[c]
		o.mu.Unlock()
		if !routed {
			o.logger.Warn("message from unrouted client", "type", fmt.Sprintf("%T", msg))
			c.Send(protocol.NewError("join a game first"))
			return
		}
		r.sess.Handle(r.seat, msg)
	}
}

// Disconnect cleans up after a dropped connection, wherever it was: in a
// game, in a keyed waiting game, or in a matchmaking queue. Calling it for
// an unknown client is a no-op, so double disconnects are harmless.
func (o *Orchestrator) Disconnect(c client) {
	o.mu.Lock()
	if r, ok := o.routes[c]; ok {
		delete(o.routes, c)
		o.mu.Unlock()
		r.sess.HandleDisconnect(r.seat)
		return
	}
	o.mu.Unlock()
	o.exitQueue(c, false)
}

func (o *Orchestrator) join(c client, m *protocol.PlayerJoin) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, routed := o.routes[c]; routed {
		c.Send(protocol.NewError("already in a game"))
		return
	}

	if m.GameKey != "" {
		o.joinKeyed(c, m)
		return
	}

	mode := session.Mode(m.GameMode)
	if mode != session.ModeSingle && mode != session.ModeMultiplayer {
		c.Send(protocol.NewError(fmt.Sprintf("unknown game mode %q", m.GameMode)))
		return
	}
	if m.NumPlayers < 2 || m.NumPlayers > 8 {
		c.Send(protocol.NewError(fmt.Sprintf("num_players must be between 2 and 8, got %d", m.NumPlayers)))
		return
	}

	key := queueKey{numPlayers: m.NumPlayers, mode: mode}
	o.queues[key] = append(o.queues[key], &waitingMember{conn: c, name: m.Name, avatar: m.Avatar})
	o.logger.Info("player queued", "name", m.Name, "num_players", m.NumPlayers, "mode", mode)

	slots := m.NumPlayers
	if mode == session.ModeSingle {
		slots = 1
	}
	for _, member := range o.queues[key] {
		member.conn.Send(protocol.NewQueueJoined(len(o.queues[key]), slots))
	}
}

func (o *Orchestrator) joinKeyed(c client, m *protocol.PlayerJoin) {
	if _, active := o.sessions[m.GameKey]; active {
		c.Send(protocol.NewInvalidKey("Game already in progress."))
		return
	}
	wg, ok := o.waiting[m.GameKey]
	if !ok {
		c.Send(protocol.NewInvalidKey("Key not valid."))
		return
	}
	if len(wg.members) >= wg.numHumans {
		c.Send(protocol.NewInvalidKey("Game already full."))
		return
	}

	wg.members = append(wg.members, &waitingMember{conn: c, name: m.Name, avatar: m.Avatar})
	o.logger.Info("player joined keyed game", "name", m.Name, "key", wg.key,
		"connected", len(wg.members), "slots", wg.numHumans)
	for _, member := range wg.members {
		member.conn.Send(protocol.NewQueueJoined(len(wg.members), wg.numHumans))
	}
}

func (o *Orchestrator) createGame(c client, m *protocol.CreateGame) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, routed := o.routes[c]; routed {
		c.Send(protocol.NewError("already in a game"))
		return
	}
	if _, creating := o.creators[c]; creating {
		c.Send(protocol.NewError("already created a game"))
		return
	}
	total := m.NumHumans + m.NumBots
	if m.NumHumans < 1 || total < 2 || total > 8 {
		c.Send(protocol.NewError("a game needs 1-8 humans and 2-8 players in total"))
		return
	}

	key := o.keys.Generate()
	o.waiting[key] = &waitingGame{
		key:       key,
		creator:   c,
		numHumans: m.NumHumans,
		numBots:   m.NumBots,
		members:   []*waitingMember{{conn: c, name: m.Name, avatar: m.Avatar}},
	}
	o.creators[c] = key
	o.logger.Info("game reserved", "key", key, "humans", m.NumHumans, "bots", m.NumBots)

	c.Send(protocol.NewGameCreated(key))
	c.Send(protocol.NewQueueJoined(1, m.NumHumans))
}

// exitQueue removes a client from wherever it waits. The creator leaving
// dissolves the whole keyed game; anyone else just frees their slot.
func (o *Orchestrator) exitQueue(c client, notify bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if key, ok := o.creators[c]; ok {
		wg := o.waiting[key]
		delete(o.waiting, key)
		delete(o.creators, c)
		if wg != nil {
			o.logger.Info("creator left, game cancelled", "key", key)
			for _, member := range wg.members {
				member.conn.Send(protocol.NewGameCancelled())
			}
		}
		return
	}

	for _, wg := range o.waiting {
		for i, member := range wg.members {
			if member.conn != c {
				continue
			}
			wg.members = append(wg.members[:i], wg.members[i+1:]...)
			o.logger.Info("player left keyed game", "key", wg.key, "connected", len(wg.members))
			for _, rest := range wg.members {
				rest.conn.Send(protocol.NewPlayerExitedQueue(len(wg.members), wg.numHumans))
			}
			return
		}
	}

	for key, queue := range o.queues {
		for i, member := range queue {
			if member.conn != c {
				continue
			}
			o.queues[key] = append(queue[:i], queue[i+1:]...)
			for _, rest := range o.queues[key] {
				rest.conn.Send(protocol.NewPlayerExitedQueue(len(o.queues[key]), key.numPlayers))
			}
			return
		}
	}

	if notify {
		c.Send(protocol.NewError("not waiting for a game"))
	}
}

// sweep promotes every queue and keyed game that has enough humans, within
// the active-session ceiling.
func (o *Orchestrator) sweep(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for key, wg := range o.waiting {
		if len(wg.members) < wg.numHumans {
			continue
		}
		if len(o.sessions) >= o.cfg.Server.MaxSessions {
			o.logger.Warn("session ceiling reached, keyed game stays queued", "key", key)
			continue
		}
		mode := session.ModeSingle
		if wg.numHumans > 1 {
			mode = session.ModeMultiplayer
		}
		if err := o.promote(ctx, key, wg.members, wg.numHumans+wg.numBots, mode); err != nil {
			o.logger.Error("failed to start keyed game", "key", key, "err", err)
			continue
		}
		delete(o.waiting, key)
		delete(o.creators, wg.creator)
	}

	for qk := range o.queues {
		// A full table never waits for more humans than it can seat.
		quorum := min(o.cfg.Server.MultiplayerQuorum, qk.numPlayers)
		if qk.mode == session.ModeSingle {
			quorum = 1
		}
		for len(o.queues[qk]) >= quorum {
			if len(o.sessions) >= o.cfg.Server.MaxSessions {
				o.logger.Warn("session ceiling reached, queue stays", "num_players", qk.numPlayers, "mode", qk.mode)
				break
			}
			members := o.queues[qk][:quorum]
			if err := o.promote(ctx, o.keys.Generate(), members, qk.numPlayers, qk.mode); err != nil {
				o.logger.Error("failed to start game", "err", err)
				break
			}
			o.queues[qk] = o.queues[qk][quorum:]
		}
		if len(o.queues[qk]) == 0 {
			delete(o.queues, qk)
		}
	}
}

// promote seats the members, fills the rest of the table from the bot
// roster (or the configured model), and starts the session. Called with the
// lock held.
func (o *Orchestrator) promote(ctx context.Context, key string, members []*waitingMember, numPlayers int, mode session.Mode) error {
	rng := randutil.New(o.rng.Int64())

	// Humans never learn their seat order in advance.
	order := rng.Perm(len(members))
	if len(members) == 1 {
		order = []int{0}
	}

	players := make([]*game.Player, 0, numPlayers)
	conns := make(map[int]session.Conn, len(members))
	for seat, idx := range order {
		m := members[idx]
		players = append(players, &game.Player{
			ID:          seat,
			Name:        m.name,
			Avatar:      m.avatar,
			Participant: session.NewHuman(m.conn),
		})
		conns[seat] = m.conn
	}

	llmSeat := o.cfg.LLM != nil && mode == session.ModeSingle && len(players) < numPlayers
	if llmSeat {
		p, err := o.newLLMParticipant(ctx)
		if err != nil {
			// A missing credential must not strand queued humans; the seat
			// falls back to a bot.
			o.logger.Warn("model seat unavailable, seating a bot instead", "err", err)
		} else {
			seat := len(players)
			players = append(players, &game.Player{
				ID:          seat,
				Name:        o.llmName(),
				Avatar:      o.cfg.LLM.Avatar,
				Participant: p,
			})
		}
	}

	roster := rng.Perm(len(o.cfg.Bots))
	for i := 0; len(players) < numPlayers; i++ {
		bc := o.cfg.Bots[roster[i%len(roster)]]
		name := bc.Name
		if i >= len(roster) {
			name = fmt.Sprintf("%s %d", bc.Name, i/len(roster)+1)
		}
		players = append(players, &game.Player{
			ID:          len(players),
			Name:        name,
			Avatar:      bc.Avatar,
			Participant: o.newBotParticipant(bc, rng),
		})
	}

	var recorder game.Recorder
	var closeRecorder func() error
	if o.cfg.Server.HistoryDir != "" {
		rec := history.NewRecorder(o.cfg.Server.HistoryDir, key, o.logger)
		recorder = rec
		closeRecorder = rec.Close
	}

	sess := session.New(session.Params{
		ID:       key,
		Mode:     mode,
		Players:  players,
		Conns:    conns,
		RNG:      rng,
		Clock:    o.clock,
		Logger:   o.logger,
		Recorder: recorder,
		Config: session.Config{
			BotPause:  time.Duration(o.cfg.Server.BotPauseMS) * time.Millisecond,
			RoundWait: time.Duration(o.cfg.Server.RoundWaitSeconds) * time.Second,
		},
		Cleanup: func() {
			o.cleanupSession(key)
			if closeRecorder != nil {
				_ = closeRecorder()
			}
		},
	})

	for seat, conn := range conns {
		o.routes[conn] = route{sess: sess, seat: seat}
	}
	o.sessions[key] = sess
	o.logger.Info("game started", "key", key, "players", numPlayers, "humans", len(members), "mode", mode)

	go sess.Run(ctx)
	return nil
}

func (o *Orchestrator) newBotParticipant(bc BotConfig, rng *rand.Rand) game.Participant {
	switch bc.Strategy {
	case "smart":
		return bot.NewSmart(bc.Verbosity, rng)
	default:
		return bot.NewRandom(bot.Config{PCall: bc.PCall, PLie: bc.PLie, Verbosity: bc.Verbosity}, rng)
	}
}

func (o *Orchestrator) newLLMParticipant(ctx context.Context) (game.Participant, error) {
	if o.newAsker == nil {
		return nil, fmt.Errorf("no model transport configured: %w", game.ErrMissingPrerequisite)
	}
	if o.cfg.LLM.APIKeyEnv != "" && os.Getenv(o.cfg.LLM.APIKeyEnv) == "" {
		return nil, fmt.Errorf("environment variable %s is empty: %w", o.cfg.LLM.APIKeyEnv, game.ErrMissingPrerequisite)
	}
	p, err := llm.New(ctx, o.newAsker(), o.logger)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (o *Orchestrator) llmName() string {
	if o.cfg.LLM.Name != "" {
		return o.cfg.LLM.Name
	}
	if o.cfg.LLM.Model != "" {
		return o.cfg.LLM.Model
	}
	return "Model"
}

// cleanupSession drops a finished session from the registry along with
// every route into it. Idempotent; it runs however the session ended.
func (o *Orchestrator) cleanupSession(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	sess, ok := o.sessions[key]
	if !ok {
		return
	}
	delete(o.sessions, key)
	for c, r := range o.routes {
		if r.sess == sess {
			delete(o.routes, c)
		}
	}
	o.logger.Info("session cleaned up", "key", key, "active", len(o.sessions))
}
