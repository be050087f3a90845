package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cheatlab/cheatd/internal/bot"
	"github.com/cheatlab/cheatd/internal/deck"
	"github.com/cheatlab/cheatd/internal/game"
	"github.com/cheatlab/cheatd/internal/protocol"
	"github.com/cheatlab/cheatd/internal/randutil"
)

type fakeConn struct {
	mu     sync.Mutex
	msgs   []any
	closed bool
}

func (c *fakeConn) Send(v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, v)
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *fakeConn) snapshot() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.msgs...)
}

func msgsOf[T any](c *fakeConn) []T {
	var out []T
	for _, m := range c.snapshot() {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func fastConfig() Config {
	return Config{
		BotPause:     0,
		DrainTimeout: 2 * time.Millisecond,
		HumanRecheck: 10 * time.Millisecond,
		RoundWait:    30 * time.Second,
	}
}

// newBotSession builds an all-bot table.
func newBotSession(t *testing.T, numBots int, seed int64) *Session {
	t.Helper()
	rng := randutil.New(seed)
	players := make([]*game.Player, numBots)
	for i := range players {
		players[i] = &game.Player{
			ID:          i,
			Name:        fmt.Sprintf("bot%d", i),
			Participant: bot.NewRandom(bot.DefaultConfig(), rng),
		}
	}
	return New(Params{
		ID:      "testgame0001",
		Mode:    ModeSingle,
		Players: players,
		RNG:     rng,
		Config:  fastConfig(),
	})
}

// newHumanSession builds a table of humans backed by fake connections, plus
// optional trailing bots.
func newHumanSession(t *testing.T, numHumans, numBots int, seed int64, mode Mode) (*Session, []*fakeConn) {
	t.Helper()
	rng := randutil.New(seed)
	conns := make(map[int]Conn)
	fakes := make([]*fakeConn, numHumans)
	var players []*game.Player
	for i := 0; i < numHumans; i++ {
		fakes[i] = &fakeConn{}
		conns[i] = fakes[i]
		players = append(players, &game.Player{
			ID:          i,
			Name:        fmt.Sprintf("human%d", i),
			Participant: NewHuman(fakes[i]),
		})
	}
	for i := 0; i < numBots; i++ {
		players = append(players, &game.Player{
			ID:          numHumans + i,
			Name:        fmt.Sprintf("bot%d", i),
			Participant: bot.NewRandom(bot.DefaultConfig(), rng),
		})
	}
	s := New(Params{
		ID:      "testgame0002",
		Mode:    mode,
		Players: players,
		Conns:   conns,
		RNG:     rng,
		Config:  fastConfig(),
	})
	return s, fakes
}

func TestBotOnlyGameRunsToCompletion(t *testing.T) {
	s := newBotSession(t, 3, 42)
	cleanups := 0
	s.cleanup = func() { cleanups++ }

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	go s.Run(ctx)

	select {
	case <-s.Done():
	case <-ctx.Done():
		t.Fatal("bot game did not finish")
	}

	require.NoError(t, ctx.Err())
	assert.True(t, s.Game().GameOver())
	assert.True(t, s.Game().RoundOver())
	assert.Equal(t, 1, cleanups)

	// Someone won or the table hit the all-Aces dead end.
	if seat, ok := s.Game().Winner(); ok {
		assert.Empty(t, s.Game().Player(seat).Hand)
	}
}

func TestQuitEndsGameWhenLastHumanLeaves(t *testing.T) {
	s, fakes := newHumanSession(t, 1, 1, 7, ModeSingle)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go s.Run(ctx)

	s.Handle(0, &protocol.Quit{Type: protocol.TypeQuit})

	select {
	case <-s.Done():
	case <-ctx.Done():
		t.Fatal("session did not end after quit")
	}
	assert.True(t, s.Game().GameOver())
	assert.NotEmpty(t, msgsOf[protocol.QuitConfirmed](fakes[0]))
	ended := msgsOf[protocol.GameEnded](fakes[0])
	require.NotEmpty(t, ended)
	assert.Equal(t, "player_quit", ended[0].Reason)
	assert.False(t, fakes[0].Alive())
}

func TestDisconnectSubstitutesBotWhenHumansRemain(t *testing.T) {
	s, fakes := newHumanSession(t, 2, 1, 11, ModeMultiplayer)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go s.Run(ctx)

	fakes[0].Close()
	s.HandleDisconnect(0)

	waitFor(t, 5*time.Second, func() bool {
		for _, m := range msgsOf[protocol.ChatMessage](fakes[1]) {
			if m.SenderID == 0 && m.SenderName == "human0_bot" {
				return true
			}
		}
		return false
	}, "no bot takeover announced to the remaining human")

	cancel()
	<-s.Done()
	assert.Equal(t, "human0_bot", s.Game().Player(0).Name)
	assert.Equal(t, game.KindBot, s.Game().Player(0).Participant.Kind())
}

func TestOffTurnPlayIsRejected(t *testing.T) {
	s, fakes := newHumanSession(t, 2, 0, 13, ModeMultiplayer)
	acting := s.Game().Turn()
	offTurn := (acting + 1) % 2

	resolved := s.handleTurnMessage(Inbound{
		Seat: offTurn,
		Msg:  &protocol.Play{Type: protocol.TypePlay, DeclaredRank: "Q", Cards: []string{"Q♠"}},
	})
	assert.False(t, resolved)

	rejections := msgsOf[protocol.InvalidMove](fakes[offTurn])
	require.Len(t, rejections, 1)
	assert.Contains(t, rejections[0].Message, "not your turn")
	assert.Empty(t, msgsOf[protocol.InvalidMove](fakes[acting]))
}

func TestHumanPlayAdvancesTurn(t *testing.T) {
	s, fakes := newHumanSession(t, 2, 0, 17, ModeMultiplayer)
	g := s.Game()
	acting := g.Turn()
	card := g.Player(acting).Hand[0]

	resolved := s.handleTurnMessage(Inbound{
		Seat: acting,
		Msg: &protocol.Play{
			Type:         protocol.TypePlay,
			DeclaredRank: card.Rank.String(),
			Cards:        []string{card.String()},
		},
	})
	assert.True(t, resolved)
	assert.Equal(t, (acting+1)%2, g.Turn())
	assert.Equal(t, 1, g.PileSize())

	for _, f := range fakes {
		played := msgsOf[protocol.CardsPlayed](f)
		require.Len(t, played, 1)
		assert.Equal(t, acting, played[0].SenderID)
		assert.Equal(t, 1, played[0].Count)
	}
}

func TestHumanPlayRejectsAceDeclaration(t *testing.T) {
	s, fakes := newHumanSession(t, 2, 0, 19, ModeMultiplayer)
	g := s.Game()
	acting := g.Turn()

	resolved := s.handleTurnMessage(Inbound{
		Seat: acting,
		Msg:  &protocol.Play{Type: protocol.TypePlay, DeclaredRank: "A", Cards: []string{g.Player(acting).Hand[0].String()}},
	})
	assert.False(t, resolved)
	rejections := msgsOf[protocol.InvalidMove](fakes[acting])
	require.NotEmpty(t, rejections)
	assert.Contains(t, rejections[0].Message, "Aces")
	assert.Equal(t, 0, g.PileSize())
}

func TestForgottenCallAwardsPreviousPlayer(t *testing.T) {
	s, _ := newHumanSession(t, 2, 0, 23, ModeMultiplayer)
	g := s.Game()
	acting := g.Turn()
	prev := (acting + 1) % 2 // two players: the other seat is always previous

	// The previous player emptied their hand and nobody called.
	g.Player(prev).Hand = nil
	card := g.Player(acting).Hand[0]

	resolved := s.handleTurnMessage(Inbound{
		Seat: acting,
		Msg: &protocol.Play{
			Type:         protocol.TypePlay,
			DeclaredRank: card.Rank.String(),
			Cards:        []string{card.String()},
		},
	})
	assert.True(t, resolved)
	assert.True(t, g.RoundOver())
	winner, ok := g.Winner()
	require.True(t, ok)
	assert.Equal(t, prev, winner)
	// The play itself was never applied.
	assert.Equal(t, 0, g.PileSize())
}

func TestCallResolutionTurnRule(t *testing.T) {
	s, _ := newHumanSession(t, 2, 0, 29, ModeMultiplayer)
	g := s.Game()
	liar := g.Turn()
	caller := (liar + 1) % 2

	// A lie: play a card while declaring a rank it cannot all be.
	hand := g.Player(liar).Hand
	lieCard := hand[0]
	declared := deck.Queen
	if lieCard.Rank == deck.Queen {
		declared = deck.King
	}
	require.NoError(t, s.play(liar, declared, []deck.Card{lieCard}))
	require.Equal(t, caller, g.Turn())

	wasLying, err := s.callResolved(caller)
	require.NoError(t, err)
	assert.True(t, wasLying)
	// Successful call: the caller keeps the turn and leads the new trick.
	assert.Equal(t, caller, g.Turn())
	assert.Equal(t, 0, g.PileSize())

	// Now a truthful play gets called: the mistaken caller loses the turn.
	truthful := g.Player(caller).Hand[0]
	require.NoError(t, s.play(caller, truthful.Rank, []deck.Card{truthful}))
	require.Equal(t, liar, g.Turn())
	wasLying, err = s.callResolved(liar)
	require.NoError(t, err)
	assert.False(t, wasLying)
	assert.Equal(t, caller, g.Turn())
}

func TestNewRoundConfirmationStartsNextRound(t *testing.T) {
	s, fakes := newHumanSession(t, 1, 1, 31, ModeSingle)
	g := s.Game()
	g.EndRoundDrawn()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	finished := make(chan struct{})
	go func() {
		s.waitForNewRound(ctx)
		close(finished)
	}()

	s.Handle(0, &protocol.NewRoundConfirm{Type: protocol.TypeNewRound})

	select {
	case <-finished:
	case <-ctx.Done():
		t.Fatal("confirmation did not start a new round")
	}
	assert.Equal(t, 2, g.Round())
	assert.False(t, g.RoundOver())
	assert.NotEmpty(t, msgsOf[protocol.PlayerReady](fakes[0]))
}

func TestNewRoundTimeoutWithoutConfirmationsEndsMultiplayer(t *testing.T) {
	s, _ := newHumanSession(t, 2, 0, 37, ModeMultiplayer)
	s.cfg.RoundWait = 10 * time.Millisecond
	s.Game().EndRoundDrawn()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	finished := make(chan struct{})
	go func() {
		s.waitForNewRound(ctx)
		close(finished)
	}()

	select {
	case <-finished:
	case <-ctx.Done():
		t.Fatal("window never closed")
	}
	assert.True(t, s.Game().GameOver())
	assert.Equal(t, 1, s.Game().Round())
}

func TestNewRoundTimeoutSoloContinues(t *testing.T) {
	s, _ := newHumanSession(t, 1, 1, 41, ModeSingle)
	s.cfg.RoundWait = 10 * time.Millisecond
	s.Game().EndRoundDrawn()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.waitForNewRound(ctx)

	assert.False(t, s.Game().GameOver())
	assert.Equal(t, 2, s.Game().Round())
}

func TestQuitSurvivesChatFlood(t *testing.T) {
	s, _ := newHumanSession(t, 1, 1, 47, ModeSingle)

	for i := 0; i < cap(s.inbound)+8; i++ {
		s.Handle(0, &protocol.HumanMessage{Type: protocol.TypeHumanMessage, Message: "spam"})
	}
	require.Len(t, s.inbound, cap(s.inbound))

	delivered := make(chan struct{})
	go func() {
		s.Handle(0, &protocol.Quit{Type: protocol.TypeQuit})
		close(delivered)
	}()

	// Drain the flood; the quit must come out the other side instead of
	// being dropped like the overflow chat was.
	var quitSeen bool
	for i := 0; i < cap(s.inbound)+1 && !quitSeen; i++ {
		in := <-s.inbound
		_, quitSeen = in.Msg.(*protocol.Quit)
	}
	select {
	case <-delivered:
	case <-time.After(5 * time.Second):
		t.Fatal("quit was never queued")
	}
	assert.True(t, quitSeen)
}

func TestChatIsRelayedAndRecorded(t *testing.T) {
	s, fakes := newHumanSession(t, 2, 0, 43, ModeMultiplayer)

	s.handleMessage(Inbound{Seat: 0, Msg: &protocol.HumanMessage{Type: protocol.TypeHumanMessage, SenderID: 0, Message: "nice bluff"}})

	for _, f := range fakes {
		chats := msgsOf[protocol.ChatMessage](f)
		require.Len(t, chats, 1)
		assert.Equal(t, "nice bluff", chats[0].Message)
		assert.Equal(t, protocol.TypeHumanMessage, chats[0].Type)
	}
	events := s.Game().History()
	last := events[len(events)-1]
	assert.Equal(t, game.EventHumanMessage, last.Kind())
}
