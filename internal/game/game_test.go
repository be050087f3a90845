package game

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cheatlab/cheatd/internal/deck"
	"github.com/cheatlab/cheatd/internal/randutil"
)

type stubParticipant struct {
	kind ParticipantKind
}

func (s stubParticipant) Kind() ParticipantKind { return s.kind }

func (s stubParticipant) Decide(context.Context, *View) (Action, error) {
	return Action{}, nil
}

func (s stubParticipant) Announce(*View, Topic) string { return "" }

func (s stubParticipant) Connected() bool { return true }

func newTestGame(t *testing.T, numPlayers int, seed int64) *Game {
	t.Helper()
	players := make([]*Player, numPlayers)
	for i := range players {
		players[i] = &Player{
			ID:          i,
			Name:        string(rune('A' + i)),
			Participant: stubParticipant{kind: KindBot},
		}
	}
	return New(players, randutil.New(seed))
}

// cardTotal counts every card still in the game: hands, pile, and the
// four-card sets removed by discards.
func cardTotal(g *Game) int {
	total := g.PileSize() + 4*len(g.DiscardedRanks())
	for _, p := range g.Players() {
		total += len(p.Hand)
	}
	return total
}

func mustParseCards(t *testing.T, strs ...string) []deck.Card {
	t.Helper()
	cards, err := deck.ParseCards(strs)
	require.NoError(t, err)
	return cards
}

func TestNewGameDealsWholeDeck(t *testing.T) {
	for _, n := range []int{2, 3, 4} {
		g := newTestGame(t, n, 1)
		assert.Equal(t, 52, cardTotal(g), "%d players", n)
		assert.Equal(t, 0, g.PileSize())
		_, hasRank := g.CurrentRank()
		assert.False(t, hasRank)
	}
}

func TestCardConservationAcrossPlaysAndCalls(t *testing.T) {
	g := newTestGame(t, 3, 7)

	for turn := 0; turn < 20; turn++ {
		p := g.CurrentPlayer()
		if dropped := g.DiscardFours(p.ID); dropped != nil {
			require.Equal(t, 52, cardTotal(g))
		}
		if len(p.Hand) == 0 {
			break
		}

		declared := p.Hand[0].Rank
		if r, ok := g.CurrentRank(); ok {
			declared = r
		}
		if declared == deck.Ace {
			declared = deck.Two
		}
		require.NoError(t, g.Play(p.ID, declared, []deck.Card{p.Hand[0]}))
		require.Equal(t, 52, cardTotal(g))

		if turn%4 == 3 {
			_, err := g.CallBluff(g.Advance())
			require.NoError(t, err)
			require.Equal(t, 52, cardTotal(g))
		} else {
			g.Advance()
		}
	}
}

func TestPlayOpensTrickAndLocksRank(t *testing.T) {
	g := newTestGame(t, 2, 3)
	p := g.Player(0)

	require.NoError(t, g.Play(0, p.Hand[0].Rank, []deck.Card{p.Hand[0]}))
	r, ok := g.CurrentRank()
	require.True(t, ok)

	// The other seat must now declare the same rank.
	other := g.Player(1)
	wrong := deck.Two
	if r == deck.Two {
		wrong = deck.Three
	}
	err := g.Play(1, wrong, []deck.Card{other.Hand[0]})
	require.Error(t, err)
	assert.True(t, IsInvalidMove(err))
}

func TestInvalidPlayLeavesStateUntouched(t *testing.T) {
	g := newTestGame(t, 2, 11)
	p := g.Player(0)
	handBefore := append(deck.Hand(nil), p.Hand...)
	eventsBefore := len(g.History())

	// A card the player does not hold.
	notHeld := deck.Card{Rank: deck.Two, Suit: deck.Spades}
	for p.Hand.Contains(notHeld) {
		notHeld.Suit++
	}
	err := g.Play(0, notHeld.Rank, []deck.Card{notHeld})
	require.Error(t, err)
	assert.True(t, IsInvalidMove(err))

	assert.Equal(t, handBefore, p.Hand)
	assert.Equal(t, eventsBefore, len(g.History()))
	assert.Equal(t, 0, g.PileSize())
}

func TestPlayRejectsEmptyCardList(t *testing.T) {
	g := newTestGame(t, 2, 5)
	err := g.Play(0, deck.Queen, nil)
	require.Error(t, err)
	assert.True(t, IsInvalidMove(err))
}

func TestCallBluffAgainstLiar(t *testing.T) {
	g := newTestGame(t, 2, 9)
	liar := g.Player(0)
	liar.Hand = deck.Hand(mustParseCards(t, "2♠", "7♥"))
	g.Player(1).Hand = deck.Hand(mustParseCards(t, "Q♠", "Q♥"))

	// Declares Queens while dropping a Two.
	require.NoError(t, g.Play(0, deck.Queen, mustParseCards(t, "2♠")))

	call, err := g.CallBluff(1)
	require.NoError(t, err)
	assert.True(t, call.WasLying)
	assert.Equal(t, 0, call.AccusedID)
	assert.Equal(t, mustParseCards(t, "2♠"), call.Revealed)

	// The liar takes the pile back; the trick is over either way.
	assert.Len(t, liar.Hand, 2)
	assert.Equal(t, 0, g.PileSize())
	_, hasRank := g.CurrentRank()
	assert.False(t, hasRank)
}

func TestCallBluffAgainstTruthfulPlay(t *testing.T) {
	g := newTestGame(t, 2, 9)
	g.Player(0).Hand = deck.Hand(mustParseCards(t, "Q♠", "Q♥", "3♦"))
	caller := g.Player(1)
	caller.Hand = deck.Hand(mustParseCards(t, "5♠", "5♥"))

	require.NoError(t, g.Play(0, deck.Queen, mustParseCards(t, "Q♠", "Q♥")))

	call, err := g.CallBluff(1)
	require.NoError(t, err)
	assert.False(t, call.WasLying)

	// The mistaken caller eats the pile.
	assert.Len(t, caller.Hand, 4)
	assert.Equal(t, 0, g.PileSize())
	_, hasRank := g.CurrentRank()
	assert.False(t, hasRank)
}

func TestCallBluffWithNothingToCall(t *testing.T) {
	g := newTestGame(t, 2, 13)
	_, err := g.CallBluff(1)
	require.Error(t, err)
	assert.True(t, IsInvalidMove(err))
}

func TestDiscardFoursRemovesSetsOnce(t *testing.T) {
	g := newTestGame(t, 2, 17)
	p := g.Player(0)
	p.Hand = deck.Hand(mustParseCards(t, "4♠", "4♥", "4♦", "4♣", "K♠", "K♥", "K♦", "K♣", "A♠", "A♥", "A♦", "A♣", "9♠"))

	dropped := g.DiscardFours(0)
	assert.ElementsMatch(t, []deck.Rank{deck.Four, deck.King}, dropped)
	assert.Len(t, p.Hand, 5) // four Aces stay, plus the 9
	assert.ElementsMatch(t, []deck.Rank{deck.Four, deck.King}, g.DiscardedRanks())

	// Both sets leave in a single event.
	events := g.History()
	discards := 0
	for _, ev := range events {
		if ev.Kind() == EventDiscard {
			discards++
		}
	}
	assert.Equal(t, 1, discards)

	// Second check is a no-op.
	eventsBefore := len(g.History())
	assert.Nil(t, g.DiscardFours(0))
	assert.Equal(t, eventsBefore, len(g.History()))
}

func TestDiscardFoursNeverDropsAces(t *testing.T) {
	g := newTestGame(t, 2, 19)
	p := g.Player(0)
	p.Hand = deck.Hand(mustParseCards(t, "A♠", "A♥", "A♦", "A♣"))

	assert.Nil(t, g.DiscardFours(0))
	assert.Len(t, p.Hand, 4)
}

func TestCheckWinnerEmptyHand(t *testing.T) {
	g := newTestGame(t, 2, 23)
	g.Player(1).Hand = nil

	assert.True(t, g.CheckWinner(1))
	assert.True(t, g.RoundOver())
	winner, ok := g.Winner()
	require.True(t, ok)
	assert.Equal(t, 1, winner)
}

func TestCheckWinnerUniformRankOnOwnTurn(t *testing.T) {
	g := newTestGame(t, 2, 29)
	id := g.Turn()
	g.Player(id).Hand = deck.Hand(mustParseCards(t, "K♠", "K♥", "K♦", "K♣"))

	assert.True(t, g.CheckWinner(id))
	winner, ok := g.Winner()
	require.True(t, ok)
	assert.Equal(t, id, winner)
}

func TestCheckWinnerUniformRankNeedsOwnTurn(t *testing.T) {
	g := newTestGame(t, 2, 29)
	other := (g.Turn() + 1) % 2
	g.Player(other).Hand = deck.Hand(mustParseCards(t, "K♠", "K♥", "K♦", "K♣"))

	assert.False(t, g.CheckWinner(other))
	assert.False(t, g.RoundOver())
}

func TestCheckWinnerUniformAcesNeverWin(t *testing.T) {
	g := newTestGame(t, 2, 31)
	id := g.Turn()
	g.Player(id).Hand = deck.Hand(mustParseCards(t, "A♠", "A♥"))

	assert.False(t, g.CheckWinner(id))
}

func TestCheckWinnerUniformRankBlockedByTrickRank(t *testing.T) {
	g := newTestGame(t, 2, 37)
	id := g.Turn()
	other := (id + 1) % 2
	g.Player(other).Hand = deck.Hand(mustParseCards(t, "3♠", "3♥", "9♦"))
	g.Player(id).Hand = deck.Hand(mustParseCards(t, "K♠", "K♥", "7♦"))

	// Lock the trick to Threes, then hand the turn over.
	require.NoError(t, g.Play(id, deck.Three, mustParseCards(t, "7♦")))
	g.Advance()
	g.Player(other).Hand = deck.Hand(mustParseCards(t, "K♦", "K♣"))

	// Kings in hand but the trick demands Threes.
	assert.False(t, g.CheckWinner(other))

	// Once the trick rank matches, the same hand wins.
	_, err := g.CallBluff(other)
	require.NoError(t, err)
	g.Player(other).Hand = deck.Hand(mustParseCards(t, "K♦", "K♣"))
	assert.True(t, g.CheckWinner(other))
}

func TestAllAcesDeadEnd(t *testing.T) {
	g := newTestGame(t, 2, 41)
	g.Player(0).Hand = deck.Hand(mustParseCards(t, "A♠", "A♥"))
	g.Player(1).Hand = deck.Hand(mustParseCards(t, "A♦", "A♣"))

	assert.True(t, g.AllAces())
	g.EndRoundDrawn()
	assert.True(t, g.RoundOver())
	_, ok := g.Winner()
	assert.False(t, ok)
}

func TestAllAcesFalseWithOtherCards(t *testing.T) {
	g := newTestGame(t, 2, 43)
	g.Player(0).Hand = deck.Hand(mustParseCards(t, "A♠", "A♥"))
	g.Player(1).Hand = deck.Hand(mustParseCards(t, "A♦", "2♣"))

	assert.False(t, g.AllAces())
}

func TestLastPlaySkipsInterleavedEvents(t *testing.T) {
	g := newTestGame(t, 3, 47)
	p := g.Player(0)

	require.NoError(t, g.Play(0, p.Hand[0].Rank, []deck.Card{p.Hand[0]}))
	g.RecordMessage(1, "no way", false)
	g.RecordMessage(2, "hmm", true)
	g.RecordExit(2)

	last, ok := g.LastPlay()
	require.True(t, ok)
	assert.Equal(t, 0, last.SeatID)

	// A second play supersedes the first.
	p1 := g.Player(1)
	r, _ := g.CurrentRank()
	require.NoError(t, g.Play(1, r, []deck.Card{p1.Hand[0]}))
	last, ok = g.LastPlay()
	require.True(t, ok)
	assert.Equal(t, 1, last.SeatID)
}

func TestLastPlayEmptyHistory(t *testing.T) {
	g := newTestGame(t, 2, 53)
	_, ok := g.LastPlay()
	assert.False(t, ok)
}

func TestNewRoundResetsTable(t *testing.T) {
	g := newTestGame(t, 2, 59)
	p := g.Player(0)
	require.NoError(t, g.Play(0, p.Hand[0].Rank, []deck.Card{p.Hand[0], p.Hand[1]}))
	g.DiscardFours(1)

	g.NewRound()

	assert.Equal(t, 2, g.Round())
	assert.Equal(t, 0, g.PileSize())
	assert.Empty(t, g.DiscardedRanks())
	_, hasRank := g.CurrentRank()
	assert.False(t, hasRank)
	assert.False(t, g.RoundOver())
	assert.Equal(t, 52, cardTotal(g))
}

func TestEndGameIsIdempotent(t *testing.T) {
	g := newTestGame(t, 2, 61)
	g.EndGame()
	events := len(g.History())
	g.EndGame()
	assert.Equal(t, events, len(g.History()))
	assert.True(t, g.GameOver())
}

type captureRecorder struct {
	rounds []int
	events []Event
}

func (r *captureRecorder) Record(round int, ev Event) {
	r.rounds = append(r.rounds, round)
	r.events = append(r.events, ev)
}

func TestRecorderSeesEveryEvent(t *testing.T) {
	rec := &captureRecorder{}
	players := []*Player{
		{ID: 0, Name: "a", Participant: stubParticipant{kind: KindBot}},
		{ID: 1, Name: "b", Participant: stubParticipant{kind: KindBot}},
	}
	g := New(players, randutil.New(67), WithRecorder(rec))

	p := g.Player(0)
	require.NoError(t, g.Play(0, p.Hand[0].Rank, []deck.Card{p.Hand[0]}))
	_, err := g.CallBluff(1)
	require.NoError(t, err)

	require.Equal(t, g.History(), rec.events)
	assert.Equal(t, EventNewRound, rec.events[0].Kind())
}
