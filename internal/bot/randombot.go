// Package bot provides the automated participants that fill out tables:
// a probabilistic random bot and an opponent-modelling smart bot.
package bot

import (
	"context"
	rand "math/rand/v2"

	"github.com/cheatlab/cheatd/internal/deck"
	"github.com/cheatlab/cheatd/internal/game"
)

// Config tunes a random bot's temperament.
type Config struct {
	// PCall is the chance of calling the last play when a call is possible.
	PCall float64
	// PLie is the chance of bluffing when a truthful play exists.
	PLie float64
	// Verbosity is the chance of producing table talk when given a chance.
	Verbosity float64
}

// DefaultConfig returns the stock temperament.
func DefaultConfig() Config {
	return Config{PCall: 0.3, PLie: 0.3, Verbosity: 0.3}
}

// RandomBot plays on simple fixed probabilities. It knows the rules well
// enough to never declare an Ace or a discarded rank when opening a trick,
// and it always calls a player who just emptied their hand.
type RandomBot struct {
	cfg Config
	rng *rand.Rand
}

// NewRandom creates a random bot with the given temperament.
func NewRandom(cfg Config, rng *rand.Rand) *RandomBot {
	return &RandomBot{cfg: cfg, rng: rng}
}

func (b *RandomBot) Kind() game.ParticipantKind { return game.KindBot }

func (b *RandomBot) Connected() bool { return true }

func (b *RandomBot) Decide(_ context.Context, view *game.View) (game.Action, error) {
	if view.PileSize > 0 {
		// A player with an empty hand wins unless called.
		mustCall := false
		if last, ok := view.LastPlay(); ok && view.HandSizes[last.SeatID] == 0 {
			mustCall = true
		}
		if mustCall || b.rng.Float64() < b.cfg.PCall {
			return game.Action{Kind: game.ActionCall}, nil
		}
	}
	return b.makePlay(view), nil
}

func (b *RandomBot) makePlay(view *game.View) game.Action {
	var declared deck.Rank
	if view.HasRank {
		declared = view.CurrentRank
	} else {
		declared = randomLeadRank(b.rng, view.DiscardedRanks)
	}

	trueCards := view.Hand.OfRank(declared)
	var chosen []deck.Card
	if len(trueCards) > 0 && b.rng.Float64() > b.cfg.PLie {
		chosen = sample(b.rng, trueCards, 1+b.rng.IntN(len(trueCards)))
	} else {
		n := min(3, len(view.Hand))
		chosen = sample(b.rng, view.Hand, 1+b.rng.IntN(n))
	}
	return game.Action{Kind: game.ActionPlay, DeclaredRank: declared, Cards: chosen}
}

func (b *RandomBot) Announce(view *game.View, topic game.Topic) string {
	return announce(view, topic, b.cfg.Verbosity, b.rng)
}

// randomLeadRank picks a rank to open a trick with: never an Ace, never a
// rank that has left the game.
func randomLeadRank(rng *rand.Rand, discarded []deck.Rank) deck.Rank {
	candidates := make([]deck.Rank, 0, len(deck.Ranks))
	for _, r := range deck.Ranks {
		if r == deck.Ace || rankIn(discarded, r) {
			continue
		}
		candidates = append(candidates, r)
	}
	return candidates[rng.IntN(len(candidates))]
}

func rankIn(ranks []deck.Rank, r deck.Rank) bool {
	for _, held := range ranks {
		if held == r {
			return true
		}
	}
	return false
}

// sample returns n distinct cards drawn from the slice without mutating it.
func sample(rng *rand.Rand, cards []deck.Card, n int) []deck.Card {
	if n > len(cards) {
		n = len(cards)
	}
	perm := rng.Perm(len(cards))
	out := make([]deck.Card, n)
	for i := 0; i < n; i++ {
		out[i] = cards[perm[i]]
	}
	return out
}
