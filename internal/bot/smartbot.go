package bot

import (
	"context"
	rand "math/rand/v2"

	"github.com/cheatlab/cheatd/internal/deck"
	"github.com/cheatlab/cheatd/internal/game"
)

// opponentModel accumulates what one seat has shown of its behaviour.
type opponentModel struct {
	calls       int
	plays       int // plays made when a call was available
	lies        int
	playsCalled int
	knownCards  []deck.Card

	pLieEst  float64
	hasPLie  bool
	pCallEst float64
	hasPCall bool
}

// SmartBot adjusts its lie and call probabilities to the opponents it has
// observed: it estimates each seat's lie and call rates from resolved calls,
// tracks cards revealed into low hands, avoids leading with ranks those
// hands are known to hold, and lies less the closer a short-stacked player
// sits.
type SmartBot struct {
	verbosity float64
	rng       *rand.Rand

	opponents map[int]*opponentModel
	lastSeen  int // history index up to which the model is current
}

// NewSmart creates a smart bot.
func NewSmart(verbosity float64, rng *rand.Rand) *SmartBot {
	return &SmartBot{
		verbosity: verbosity,
		rng:       rng,
		opponents: make(map[int]*opponentModel),
	}
}

func (b *SmartBot) Kind() game.ParticipantKind { return game.KindBot }

func (b *SmartBot) Connected() bool { return true }

func (b *SmartBot) model(seat int) *opponentModel {
	m, ok := b.opponents[seat]
	if !ok {
		m = &opponentModel{}
		b.opponents[seat] = m
	}
	return m
}

// observe folds the history events since the last decision into the
// per-opponent models. Known cards only survive until the next observation;
// once play moves on they may have been shed again.
func (b *SmartBot) observe(view *game.View) {
	for _, m := range b.opponents {
		m.knownCards = nil
	}

	for i := b.lastSeen; i < len(view.History); i++ {
		switch ev := view.History[i].(type) {
		case *game.CallEvent:
			caller := b.model(ev.SeatID)
			accused := b.model(ev.AccusedID)
			caller.calls++
			accused.playsCalled++
			if ev.WasLying {
				accused.lies++
				accused.knownCards = append(accused.knownCards, ev.Revealed...)
			} else if ev.SeatID != view.Self {
				caller.knownCards = append(caller.knownCards, ev.Revealed...)
			}
		case *game.PlayEvent:
			// Count plays made while a call was on the table: the most
			// recent play/call before this one must itself be a play.
			for j := i - 1; j >= 0; j-- {
				if _, ok := view.History[j].(*game.CallEvent); ok {
					break
				}
				if _, ok := view.History[j].(*game.PlayEvent); ok {
					b.model(ev.SeatID).plays++
					break
				}
			}
		}
	}
	b.lastSeen = len(view.History)

	for _, m := range b.opponents {
		if m.playsCalled > 0 {
			m.pLieEst = float64(m.lies) / float64(m.playsCalled)
			m.hasPLie = true
		}
		if m.calls+m.plays > 0 {
			m.pCallEst = float64(m.calls) / float64(m.calls+m.plays)
			m.hasPCall = true
		}
	}
}

func (b *SmartBot) Decide(_ context.Context, view *game.View) (game.Action, error) {
	b.observe(view)

	n := view.NumPlayers
	pLie, pCall := 0.5, 0.5

	// Ranks worth leading with: held, not Ace, and not known to sit in a
	// nearby short hand that could dump them on us.
	var feasible []deck.Rank
	if view.PileSize == 0 {
		for _, c := range view.Hand {
			if c.Rank != deck.Ace && !rankIn(feasible, c.Rank) {
				feasible = append(feasible, c.Rank)
			}
		}
		for seat, m := range b.opponents {
			if seat >= n || (seat-view.Self+n)%n > 2 {
				continue
			}
			if len(m.knownCards) == 0 || view.HandSizes[seat] >= 4 {
				continue
			}
			for _, c := range m.knownCards {
				feasible = removeRank(feasible, c.Rank)
			}
		}
	}

	// Lie less the closer a short-stacked seat sits.
	dMin := -1
	for seat, size := range view.HandSizes {
		if size >= 4 {
			continue
		}
		d := (seat - view.Self + n) % n
		if dMin < 0 || d < dMin {
			dMin = d
		}
	}
	if dMin >= 0 {
		pLie *= float64(dMin-1) / float64(max(1, n-2))
	}

	// A short-stacked previous player raises the call urge; an emptied hand
	// forces the call outright.
	prev := (view.Self - 1 + n) % n
	if view.HandSizes[prev] < 4 {
		if view.HandSizes[prev] == 0 {
			pCall = 1
		} else {
			pCall = min(1, pCall+1/float64(view.HandSizes[prev]))
		}
		if pCall >= 1 && view.PileSize > 0 {
			return game.Action{Kind: game.ActionCall}, nil
		}
	}

	prevModel := b.opponents[prev]
	if prevModel != nil && prevModel.hasPLie {
		pCall = 0.5 * (pCall + prevModel.pLieEst)
	}
	nextModel := b.opponents[(view.Self+1)%n]
	if nextModel != nil && nextModel.hasPCall {
		pLie = max(0, pLie-nextModel.pCallEst)
	}

	if view.PileSize > 0 && b.rng.Float64() < pCall {
		return game.Action{Kind: game.ActionCall}, nil
	}
	return b.makePlay(view, feasible, pLie, nextModel), nil
}

func (b *SmartBot) makePlay(view *game.View, feasible []deck.Rank, pLie float64, next *opponentModel) game.Action {
	var declared deck.Rank
	switch {
	case view.HasRank:
		declared = view.CurrentRank
	case len(feasible) > 0:
		declared = feasible[b.rng.IntN(len(feasible))]
	default:
		declared = randomLeadRank(b.rng, view.DiscardedRanks)
	}

	trueCards := view.Hand.OfRank(declared)
	if len(trueCards) > 0 {
		pLie *= 0.5
	}

	if b.rng.Float64() < pLie || len(trueCards) == 0 {
		if chosen := b.chooseLie(view, declared, next); len(chosen) > 0 {
			return game.Action{Kind: game.ActionPlay, DeclaredRank: declared, Cards: chosen}
		}
		// Hand is nothing but the declared rank; the lie collapses into truth.
	}
	chosen := sample(b.rng, trueCards, 1+b.rng.IntN(len(trueCards)))
	return game.Action{Kind: game.ActionPlay, DeclaredRank: declared, Cards: chosen}
}

// chooseLie picks off-rank cards to bluff with, preferring Aces since they
// can never be played truthfully. The count scales down as the next seat's
// estimated call rate rises.
func (b *SmartBot) chooseLie(view *game.View, declared deck.Rank, next *opponentModel) []deck.Card {
	var n int
	switch {
	case next == nil || !next.hasPCall:
		n = 1 + b.rng.IntN(min(3, len(view.Hand)))
	case next.pCallEst < 0.2:
		n = min(3, len(view.Hand))
	case next.pCallEst < 0.5:
		n = min(2, len(view.Hand))
	default:
		n = 1
	}

	var chosen []deck.Card
	var others []deck.Card
	for _, c := range view.Hand {
		if c.Rank == deck.Ace && len(chosen) < n {
			chosen = append(chosen, c)
		} else if c.Rank != declared {
			others = append(others, c)
		}
	}
	if len(chosen) < n {
		chosen = append(chosen, sample(b.rng, others, n-len(chosen))...)
	}
	return chosen
}

func (b *SmartBot) Announce(view *game.View, topic game.Topic) string {
	return announce(view, topic, b.verbosity, b.rng)
}

func removeRank(ranks []deck.Rank, r deck.Rank) []deck.Rank {
	out := ranks[:0]
	for _, held := range ranks {
		if held != r {
			out = append(out, held)
		}
	}
	return out
}
