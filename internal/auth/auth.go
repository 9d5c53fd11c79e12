// Package auth guards the API with a single admin bearer token stored as a bcrypt hash.
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Errors for authentication failures.
var (
	// ErrMissingToken indicates no bearer token was provided.
	ErrMissingToken = errors.New("auth: missing bearer token")
	// ErrInvalidToken indicates the bearer token does not match.
	ErrInvalidToken = errors.New("auth: invalid bearer token")
)

// HashToken creates a bcrypt hash of an admin token using the default cost.
func HashToken(token string) (string, error) {
	return HashTokenCost(token, bcrypt.DefaultCost)
}

// HashTokenCost creates a bcrypt hash with an explicit cost.
func HashTokenCost(token string, cost int) (string, error) {
	if token == "" {
		return "", ErrMissingToken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash token: %w", err)
	}
	return string(hash), nil
}

// Verifier checks bearer tokens against one bcrypt hash.
type Verifier struct {
	hash []byte
}

// NewVerifier returns a Verifier for hash, which must be a bcrypt hash.
func NewVerifier(hash string) (*Verifier, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("invalid admin token hash: %w", err)
	}
	return &Verifier{hash: []byte(hash)}, nil
}

// Verify returns nil when token matches the hash.
func (v *Verifier) Verify(token string) error {
	if token == "" {
		return ErrMissingToken
	}
	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(token)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidToken
		}
		return fmt.Errorf("failed to verify token: %w", err)
	}
	return nil
}
