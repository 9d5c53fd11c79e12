package storage

import (
	"errors"
	"fmt"

	"github.com/sipico/preview-token-issuer/internal/token"
)

var (
	// ErrDuplicate is returned when a unique slug is already taken.
	ErrDuplicate = errors.New("resource already exists")

	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadySet is returned when writing a field that may only be populated once.
	ErrAlreadySet = errors.New("field already set")

	// ErrTokenConflict is returned when the token uniqueness constraint rejects a write.
	// It matches token.ErrConflict under errors.Is.
	ErrTokenConflict = fmt.Errorf("preview deploy token conflict: %w", token.ErrConflict)

	// ErrMalformedToken is returned when a preview token does not have the issued shape.
	ErrMalformedToken = errors.New("malformed preview token")
)
