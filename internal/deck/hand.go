package deck

import (
	"fmt"
	"sort"
)

// Hand is the ordered set of cards a player holds. It is kept sorted by rank
// after every mutation so broadcast views stay stable.
type Hand []Card

// Sort orders the hand by ascending rank, suits in declaration order within
// a rank.
func (h Hand) Sort() {
	sort.Slice(h, func(i, j int) bool {
		if h[i].Rank != h[j].Rank {
			return h[i].Rank < h[j].Rank
		}
		return h[i].Suit < h[j].Suit
	})
}

// Contains reports whether the hand holds the exact card.
func (h Hand) Contains(c Card) bool {
	for _, held := range h {
		if held == c {
			return true
		}
	}
	return false
}

// Remove removes one copy of the card from the hand, reporting whether it
// was present.
func (h *Hand) Remove(c Card) bool {
	for i, held := range *h {
		if held == c {
			*h = append((*h)[:i], (*h)[i+1:]...)
			return true
		}
	}
	return false
}

// Add appends cards to the hand and re-sorts it.
func (h *Hand) Add(cards ...Card) {
	*h = append(*h, cards...)
	h.Sort()
}

// CountByRank returns how many cards of each rank the hand holds.
func (h Hand) CountByRank() map[Rank]int {
	counts := make(map[Rank]int)
	for _, c := range h {
		counts[c.Rank]++
	}
	return counts
}

// OfRank returns all held cards of the given rank.
func (h Hand) OfRank(r Rank) []Card {
	var cards []Card
	for _, c := range h {
		if c.Rank == r {
			cards = append(cards, c)
		}
	}
	return cards
}

// AllRank reports whether every card in the hand has the given rank. An empty
// hand reports false.
func (h Hand) AllRank(r Rank) bool {
	if len(h) == 0 {
		return false
	}
	for _, c := range h {
		if c.Rank != r {
			return false
		}
	}
	return true
}

// Strings renders the hand to wire form.
func (h Hand) Strings() []string {
	return CardStrings(h)
}

// String renders the hand for logs.
func (h Hand) String() string {
	return fmt.Sprintf("%v", []Card(h))
}
