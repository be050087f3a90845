package deck

import "fmt"

// Suit represents a card suit
type Suit int

const (
	Spades Suit = iota
	Hearts
	Diamonds
	Clubs
)

// String returns the string representation of a suit
func (s Suit) String() string {
	switch s {
	case Spades:
		return "♠"
	case Hearts:
		return "♥"
	case Diamonds:
		return "♦"
	case Clubs:
		return "♣"
	default:
		return "?"
	}
}

// Suits lists all four suits in a stable order.
var Suits = []Suit{Spades, Hearts, Diamonds, Clubs}

// Rank represents a card rank. Aces are high.
type Rank int

const (
	Two Rank = iota + 2
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
)

// Ranks lists all thirteen ranks in ascending order.
var Ranks = []Rank{Two, Three, Four, Five, Six, Seven, Eight, Nine, Ten, Jack, Queen, King, Ace}

// String returns the string representation of a rank. Ten is spelled "10"
// rather than "T" because that is the form the frontend and chat replies use.
func (r Rank) String() string {
	switch r {
	case Jack:
		return "J"
	case Queen:
		return "Q"
	case King:
		return "K"
	case Ace:
		return "A"
	default:
		if r >= Two && r <= Ten {
			return fmt.Sprintf("%d", int(r))
		}
		return "?"
	}
}

// ParseRank parses a rank from its string form ("2".."10", "J", "Q", "K", "A").
func ParseRank(s string) (Rank, error) {
	for _, r := range Ranks {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unrecognised rank %q", s)
}

// ParseSuit parses a suit from its symbol or letter form ("♥" or "H").
func ParseSuit(s string) (Suit, error) {
	switch s {
	case "♠", "S", "s":
		return Spades, nil
	case "♥", "H", "h":
		return Hearts, nil
	case "♦", "D", "d":
		return Diamonds, nil
	case "♣", "C", "c":
		return Clubs, nil
	}
	return 0, fmt.Errorf("unrecognised suit %q", s)
}

// Card represents a playing card
type Card struct {
	Rank Rank
	Suit Suit
}

// String returns the string representation of a card (e.g., "Q♥")
func (c Card) String() string {
	return c.Rank.String() + c.Suit.String()
}

// IsAce returns true if the card is an Ace
func (c Card) IsAce() bool {
	return c.Rank == Ace
}

// MarshalText implements encoding.TextMarshaler so cards serialise to their
// wire form inside JSON messages and history records.
func (c Card) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Card) UnmarshalText(text []byte) error {
	parsed, err := ParseCard(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCard parses a card from its string form, e.g. "10♠" or "A♣". The suit
// symbol is the final rune; everything before it is the rank.
func ParseCard(s string) (Card, error) {
	runes := []rune(s)
	if len(runes) < 2 {
		return Card{}, fmt.Errorf("unrecognised card %q", s)
	}
	suit, err := ParseSuit(string(runes[len(runes)-1]))
	if err != nil {
		return Card{}, fmt.Errorf("unrecognised card %q: %w", s, err)
	}
	rank, err := ParseRank(string(runes[:len(runes)-1]))
	if err != nil {
		return Card{}, fmt.Errorf("unrecognised card %q: %w", s, err)
	}
	return Card{Rank: rank, Suit: suit}, nil
}

// ParseCards parses a slice of card strings, failing on the first bad card.
func ParseCards(strs []string) ([]Card, error) {
	cards := make([]Card, 0, len(strs))
	for _, s := range strs {
		c, err := ParseCard(s)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, nil
}

// CardStrings renders a slice of cards to their wire forms.
func CardStrings(cards []Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.String()
	}
	return out
}
