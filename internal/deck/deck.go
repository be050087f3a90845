package deck

import rand "math/rand/v2"

// Deck represents a deck of playing cards
type Deck struct {
	cards []Card
	rng   *rand.Rand
}

// New creates a standard 52-card deck using the provided random source.
func New(rng *rand.Rand) *Deck {
	d := &Deck{
		cards: make([]Card, 0, 52),
		rng:   rng,
	}
	for _, suit := range Suits {
		for _, rank := range Ranks {
			d.cards = append(d.cards, Card{Rank: rank, Suit: suit})
		}
	}
	return d
}

// Shuffle randomizes the order of cards in the deck
func (d *Deck) Shuffle() {
	d.rng.Shuffle(len(d.cards), func(i, j int) {
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	})
}

// Deal removes and returns the top card from the deck
func (d *Deck) Deal() (Card, bool) {
	if len(d.cards) == 0 {
		return Card{}, false
	}
	card := d.cards[len(d.cards)-1]
	d.cards = d.cards[:len(d.cards)-1]
	return card, true
}

// DealAll deals the entire deck round-robin across n hands, one card at a
// time. Hands may differ in size by one when 52 does not divide evenly.
func (d *Deck) DealAll(n int) []Hand {
	hands := make([]Hand, n)
	for len(d.cards) > 0 {
		for i := 0; i < n && len(d.cards) > 0; i++ {
			card, _ := d.Deal()
			hands[i] = append(hands[i], card)
		}
	}
	for i := range hands {
		hands[i].Sort()
	}
	return hands
}

// CardsRemaining returns the number of cards left in the deck
func (d *Deck) CardsRemaining() int {
	return len(d.cards)
}
