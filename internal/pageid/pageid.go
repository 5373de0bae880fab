// Package pageid generates the permanent public identifiers of pages.
package pageid

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

const (
	// Length is the fixed length of every generated id
	Length = 16
	// Alphabet holds the 62 characters ids are drawn from
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	// MaxAttempts bounds resampling when a candidate is already taken
	MaxAttempts = 8

	// largest multiple of len(Alphabet) that fits in a byte, bytes above are rejected
	acceptBelow = 256 - 256%len(Alphabet)
)

// ErrExhausted is returned when every candidate collided with a taken id.
// It indicates index corruption or alphabet exhaustion rather than ordinary operation.
var ErrExhausted = errors.New("unique id attempts exhausted")

// Generator draws ids from a random source. The zero value uses crypto/rand.
type Generator struct {
	Rand io.Reader
}

// New returns a single random id.
func (g Generator) New() (string, error) {
	src := g.Rand
	if src == nil {
		src = rand.Reader
	}

	out := make([]byte, 0, Length)
	buf := make([]byte, Length*2)
	for len(out) < Length {
		if _, err := io.ReadFull(src, buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= acceptBelow {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == Length {
				break
			}
		}
	}
	return string(out), nil
}

// Generate returns an id for which taken reports false, resampling up to
// MaxAttempts times. taken is evaluated against the caller's index snapshot.
func (g Generator) Generate(taken func(string) bool) (string, error) {
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		candidate, err := g.New()
		if err != nil {
			return "", err
		}
		if taken == nil || !taken(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrExhausted, MaxAttempts)
}

// Generate is a shorthand for Generator{}.Generate using crypto/rand.
func Generate(taken func(string) bool) (string, error) {
	return Generator{}.Generate(taken)
}

// Valid reports whether id has the shape of a generated id.
func Valid(id string) bool {
	if len(id) != Length {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			return false
		}
	}
	return true
}
