// Package gameid generates the shareable keys that identify private games.
package gameid

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// Crockford's base32 alphabet: unambiguous when read aloud or typed from a
// shared link.
const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// KeyLength is the number of characters in a game key.
const KeyLength = 12

// RandSource allows deterministic key generation in tests.
type RandSource interface {
	IntN(n int) int
}

// Generator produces game keys from a configurable randomness source.
type Generator struct {
	randSource RandSource
}

// NewGenerator creates a generator. A nil RandSource uses crypto/rand.
func NewGenerator(randSource RandSource) *Generator {
	return &Generator{randSource: randSource}
}

// Generate creates a new game key using crypto/rand.
func Generate() string {
	return NewGenerator(nil).Generate()
}

// Generate creates a new game key using the generator's RandSource.
func (g *Generator) Generate() string {
	var sb strings.Builder
	sb.Grow(KeyLength)

	if g.randSource != nil {
		for i := 0; i < KeyLength; i++ {
			sb.WriteByte(alphabet[g.randSource.IntN(len(alphabet))])
		}
		return sb.String()
	}

	buf := make([]byte, KeyLength)
	if _, err := rand.Read(buf); err != nil {
		panic("failed to generate random bytes: " + err.Error())
	}
	for _, b := range buf {
		sb.WriteByte(alphabet[int(b)%len(alphabet)])
	}
	return sb.String()
}

// Validate checks that a key has the right length and alphabet.
func Validate(key string) error {
	if len(key) != KeyLength {
		return fmt.Errorf("game key must be exactly %d characters, got %d", KeyLength, len(key))
	}
	for i, char := range key {
		if !strings.ContainsRune(alphabet, char) {
			return fmt.Errorf("invalid character %c at position %d", char, i)
		}
	}
	return nil
}
