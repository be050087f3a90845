package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cheatlab/cheatd/internal/deck"
	"github.com/cheatlab/cheatd/internal/game"
)

// scriptedAsker replies with canned responses in order, recording prompts.
type scriptedAsker struct {
	replies []string
	prompts []string
}

func (s *scriptedAsker) ask(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if len(s.replies) == 0 {
		return "", errors.New("script exhausted")
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, nil
}

func newTestPlayer(t *testing.T, replies ...string) (*Player, *scriptedAsker) {
	t.Helper()
	asker := &scriptedAsker{replies: append([]string{"ok"}, replies...)}
	p, err := New(context.Background(), asker.ask, log.Default())
	require.NoError(t, err)
	return p, asker
}

func testView(t *testing.T, hand ...string) *game.View {
	t.Helper()
	cards, err := deck.ParseCards(hand)
	require.NoError(t, err)
	return &game.View{
		Self:       0,
		Turn:       0,
		Hand:       deck.Hand(cards),
		HandSizes:  []int{len(cards), 5},
		NumPlayers: 2,
	}
}

func TestNewRequiresAsker(t *testing.T) {
	_, err := New(context.Background(), nil, log.Default())
	require.Error(t, err)
	assert.ErrorIs(t, err, game.ErrMissingPrerequisite)
}

func TestNewRejectsBadRulesAck(t *testing.T) {
	asker := &scriptedAsker{replies: []string{"I refuse"}}
	_, err := New(context.Background(), asker.ask, log.Default())
	require.Error(t, err)
}

func TestDecideParsesPlay(t *testing.T) {
	p, _ := newTestPlayer(t, "Play [Q♠, Q♥]; Declare Q")
	view := testView(t, "Q♠", "Q♥", "2♦")

	action, err := p.Decide(context.Background(), view)
	require.NoError(t, err)
	assert.Equal(t, game.ActionPlay, action.Kind)
	assert.Equal(t, deck.Queen, action.DeclaredRank)
	assert.Len(t, action.Cards, 2)
}

func TestDecideParsesCall(t *testing.T) {
	p, _ := newTestPlayer(t, "call")
	view := testView(t, "2♦")
	view.PileSize = 3
	view.HasRank = true
	view.CurrentRank = deck.Queen

	action, err := p.Decide(context.Background(), view)
	require.NoError(t, err)
	assert.Equal(t, game.ActionCall, action.Kind)
}

func TestDecideOmittedDeclareUsesTrickRank(t *testing.T) {
	p, _ := newTestPlayer(t, "Play [2♦]")
	view := testView(t, "2♦", "9♣")
	view.PileSize = 1
	view.HasRank = true
	view.CurrentRank = deck.Nine

	action, err := p.Decide(context.Background(), view)
	require.NoError(t, err)
	assert.Equal(t, deck.Nine, action.DeclaredRank)
}

func TestDecideRetriesOnceOnGarbage(t *testing.T) {
	p, asker := newTestPlayer(t, "let me think about it...", "Play [2♦]; Declare 2")
	view := testView(t, "2♦")

	action, err := p.Decide(context.Background(), view)
	require.NoError(t, err)
	assert.Equal(t, game.ActionPlay, action.Kind)
	// rules prompt + turn prompt + retry prompt
	require.Len(t, asker.prompts, 3)
	assert.Contains(t, asker.prompts[2], "was invalid")
}

func TestDecideFailsAfterSecondGarbageReply(t *testing.T) {
	p, _ := newTestPlayer(t, "hmm", "still hmm")
	view := testView(t, "2♦")

	_, err := p.Decide(context.Background(), view)
	require.Error(t, err)
	var failure *game.ParticipantFailure
	assert.ErrorAs(t, err, &failure)
}

func TestDecideRejectsCardNotInHand(t *testing.T) {
	p, _ := newTestPlayer(t, "Play [K♠]; Declare K", "Play [2♦]; Declare 2")
	view := testView(t, "2♦")

	action, err := p.Decide(context.Background(), view)
	require.NoError(t, err)
	assert.Equal(t, []deck.Card{{Rank: deck.Two, Suit: deck.Diamonds}}, action.Cards)
}

func TestDecideRejectsAceDeclaration(t *testing.T) {
	p, _ := newTestPlayer(t, "Play [A♠]; Declare A", "Play [A♠]; Declare 2")
	view := testView(t, "A♠", "2♦")

	action, err := p.Decide(context.Background(), view)
	require.NoError(t, err)
	// Playing an Ace is fine; declaring one is not.
	assert.Equal(t, deck.Two, action.DeclaredRank)
}

func TestDecideRejectsCallOnEmptyPile(t *testing.T) {
	p, _ := newTestPlayer(t, "call", "Play [2♦]; Declare 2")
	view := testView(t, "2♦")

	action, err := p.Decide(context.Background(), view)
	require.NoError(t, err)
	assert.Equal(t, game.ActionPlay, action.Kind)
}

func TestTurnPromptIsIncremental(t *testing.T) {
	p, asker := newTestPlayer(t, "Play [2♦]; Declare 2", "Play [9♣]; Declare 2")
	view := testView(t, "2♦", "9♣")
	view.History = []game.Event{
		&game.PlayEvent{SeatID: 1, DeclaredRank: deck.Five, Cards: []deck.Card{{Rank: deck.Five, Suit: deck.Spades}}},
	}

	_, err := p.Decide(context.Background(), view)
	require.NoError(t, err)
	assert.Contains(t, asker.prompts[1], "Start of the game")
	assert.Contains(t, asker.prompts[1], "Player 1 plays 1 card")

	// Second turn: only the new event is narrated.
	view.History = append(view.History,
		&game.PlayEvent{SeatID: 0, DeclaredRank: deck.Five, Cards: []deck.Card{{Rank: deck.Two, Suit: deck.Diamonds}}},
	)
	_, err = p.Decide(context.Background(), view)
	require.NoError(t, err)
	assert.NotContains(t, asker.prompts[2], "Start of the game")
	assert.Contains(t, asker.prompts[2], "Player 0 plays 1 card")
}
