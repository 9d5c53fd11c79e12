// Package token issues prefixed, collision-free opaque tokens.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

const (
	// PreviewPrefix namespaces project preview deploy tokens.
	PreviewPrefix = "pt_"

	// RandomBytes is the number of random bytes after the prefix (128 bits).
	RandomBytes = 16

	// MaxLength is the storage width of a token column.
	MaxLength = 64

	// DefaultMaxAttempts bounds regeneration on collision. Hitting it means the
	// entropy source is broken, not that the namespace is full.
	DefaultMaxAttempts = 1000
)

var (
	// ErrEntropyExhausted is returned when no unused candidate was found within the attempt bound.
	ErrEntropyExhausted = errors.New("token entropy exhausted: no unique candidate within attempt bound")

	// ErrInvalidPrefix is returned for an empty prefix or one that would overflow MaxLength.
	ErrInvalidPrefix = errors.New("invalid token prefix")

	// ErrConflict marks a token rejected by the store's uniqueness constraint.
	ErrConflict = errors.New("token already issued")
)

// Lookup reports whether a token is already taken.
type Lookup interface {
	Contains(tok string) bool
}

// Issuer generates tokens. It holds no mutable state and is safe for concurrent use
// as long as its random source is.
type Issuer struct {
	rand        io.Reader
	maxAttempts int
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithRand overrides the random source (crypto/rand by default).
func WithRand(r io.Reader) Option {
	return func(i *Issuer) {
		i.rand = r
	}
}

// WithMaxAttempts overrides the collision retry bound. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(i *Issuer) {
		if n > 0 {
			i.maxAttempts = n
		}
	}
}

// NewIssuer creates an Issuer.
func NewIssuer(opts ...Option) *Issuer {
	i := &Issuer{
		rand:        rand.Reader,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// MaxAttempts returns the collision retry bound.
func (i *Issuer) MaxAttempts() int {
	return i.maxAttempts
}

// Issue returns prefix + 32 hex chars that taken does not contain.
// It does not persist anything; the caller records the token and adds it to taken.
// A nil taken is treated as empty.
func (i *Issuer) Issue(prefix string, taken Lookup) (string, error) {
	if err := checkPrefix(prefix); err != nil {
		return "", err
	}

	for attempt := 0; attempt < i.maxAttempts; attempt++ {
		candidate, err := i.generate(prefix)
		if err != nil {
			return "", err
		}
		if taken == nil || !taken.Contains(candidate) {
			return candidate, nil
		}
	}

	return "", ErrEntropyExhausted
}

func (i *Issuer) generate(prefix string) (string, error) {
	buf := make([]byte, RandomBytes)
	if _, err := io.ReadFull(i.rand, buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return prefix + hex.EncodeToString(buf), nil
}

func checkPrefix(prefix string) error {
	if prefix == "" {
		return fmt.Errorf("%w: prefix is empty", ErrInvalidPrefix)
	}
	if len(prefix)+hex.EncodedLen(RandomBytes) > MaxLength {
		return fmt.Errorf("%w: %q leaves no room for %d hex chars within %d bytes",
			ErrInvalidPrefix, prefix, hex.EncodedLen(RandomBytes), MaxLength)
	}
	return nil
}

// Valid reports whether tok is prefix followed by exactly 32 lowercase hex chars.
func Valid(prefix, tok string) bool {
	if prefix == "" || len(tok) != len(prefix)+hex.EncodedLen(RandomBytes) {
		return false
	}
	if tok[:len(prefix)] != prefix {
		return false
	}
	for _, c := range tok[len(prefix):] {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
