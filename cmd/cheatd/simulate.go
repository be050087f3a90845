package main

import (
	"context"
	"fmt"
	rand "math/rand/v2"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/cheatlab/cheatd/cmd/cheatd/shared"
	"github.com/cheatlab/cheatd/internal/bot"
	"github.com/cheatlab/cheatd/internal/game"
	"github.com/cheatlab/cheatd/internal/randutil"
	"github.com/cheatlab/cheatd/internal/session"
)

// SimulateCmd plays bot-only games in-process, mostly to compare
// strategies.
type SimulateCmd struct {
	Games   int   `kong:"default='200',help='Number of games to play'"`
	Players int   `kong:"default='4',help='Players per game (2-8)'"`
	Smart   int   `kong:"default='1',help='Smart bots per game; the rest play randomly'"`
	Seed    int64 `kong:"default='0',help='RNG seed (0 for random)'"`
	Debug   bool  `kong:"help='Enable debug logging'"`
}

func (c *SimulateCmd) Run() error {
	if c.Players < 2 || c.Players > 8 {
		return fmt.Errorf("players must be between 2 and 8, got %d", c.Players)
	}
	if c.Smart < 0 || c.Smart > c.Players {
		return fmt.Errorf("smart must be between 0 and %d, got %d", c.Players, c.Smart)
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}

	level := "warn"
	if c.Debug {
		level = "debug"
	}
	logger, _, err := shared.SetupLogger(level, "")
	if err != nil {
		return err
	}

	fmt.Printf("Simulating %d games of %d players (%d smart) with seed %d\n",
		c.Games, c.Players, c.Smart, c.Seed)

	master := randutil.New(c.Seed)
	seeds := make([]int64, c.Games)
	for i := range seeds {
		seeds[i] = master.Int64()
	}

	var mu sync.Mutex
	wins := make(map[string]int)
	draws := 0

	start := time.Now()
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(runtime.NumCPU())

	for _, seed := range seeds {
		g.Go(func() error {
			winner, won := c.playGame(ctx, seed, logger)
			mu.Lock()
			defer mu.Unlock()
			if won {
				wins[winner]++
			} else {
				draws++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	duration := time.Since(start)

	fmt.Printf("\nFinished in %v (%.1f games/sec)\n",
		duration.Round(time.Millisecond), float64(c.Games)/duration.Seconds())
	for name, n := range wins {
		fmt.Printf("  %-10s %5d wins (%.1f%%)\n", name, n, float64(n)/float64(c.Games)*100)
	}
	if draws > 0 {
		fmt.Printf("  %-10s %5d (%.1f%%)\n", "drawn", draws, float64(draws)/float64(c.Games)*100)
	}
	return nil
}

// playGame runs one bot-only session to completion and reports the winner's
// name.
func (c *SimulateCmd) playGame(ctx context.Context, seed int64, logger *log.Logger) (string, bool) {
	rng := randutil.New(seed)

	players := make([]*game.Player, c.Players)
	for i := range players {
		players[i] = &game.Player{
			ID:          i,
			Name:        fmt.Sprintf("random%d", i),
			Participant: newSimBot(i < c.Smart, rng),
		}
		if i < c.Smart {
			players[i].Name = fmt.Sprintf("smart%d", i)
		}
	}

	sess := session.New(session.Params{
		ID:      fmt.Sprintf("sim%08x", uint32(uint64(seed))),
		Mode:    session.ModeSingle,
		Players: players,
		RNG:     rng,
		Logger:  logger,
		Config: session.Config{
			BotPause:     0,
			DrainTimeout: time.Millisecond,
			HumanRecheck: time.Millisecond,
		},
	})
	sess.Run(ctx)

	seat, won := sess.Game().Winner()
	if !won {
		return "", false
	}
	return sess.Game().Player(seat).Name, true
}

func newSimBot(smart bool, rng *rand.Rand) game.Participant {
	if smart {
		return bot.NewSmart(0, rng)
	}
	return bot.NewRandom(bot.Config{PCall: 0.3, PLie: 0.3}, rng)
}
