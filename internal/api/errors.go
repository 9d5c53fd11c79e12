package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sipico/preview-token-issuer/internal/storage"
	"github.com/sipico/preview-token-issuer/internal/token"
)

// Error codes returned in the "error" field.
const (
	ErrCodeInvalidRequest   = "invalid_request"
	ErrCodeRequestTooLarge  = "request_too_large"
	ErrCodeNotFound         = "not_found"
	ErrCodeDuplicate        = "duplicate"
	ErrCodeAlreadySet       = "already_set"
	ErrCodeTokenConflict    = "token_conflict"
	ErrCodeEntropyExhausted = "entropy_exhausted"
	ErrCodeBackfillFailed   = "backfill_failed"
	ErrCodeInternalError    = "internal_error"
)

// APIError is the JSON error body.
type APIError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteErrorWithHint(w, status, code, message, "")
}

// WriteErrorWithHint writes a JSON error response with a hint for resolving it.
func WriteErrorWithHint(w http.ResponseWriter, status int, code, message, hint string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // Response write errors are unrecoverable
	json.NewEncoder(w).Encode(APIError{Error: code, Message: message, Hint: hint})
}

// writeDecodeError maps a body decoding failure to 413 or 400.
func writeDecodeError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		WriteError(w, http.StatusRequestEntityTooLarge, ErrCodeRequestTooLarge, "request body too large")
		return
	}
	WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
}

// writeStoreError maps storage and issuance errors to responses. It reports
// whether err was one of the known kinds; unknown errors are written as 500.
func writeStoreError(w http.ResponseWriter, err error, what string) bool {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		WriteError(w, http.StatusNotFound, ErrCodeNotFound, what+" not found")
	case errors.Is(err, storage.ErrDuplicate):
		WriteError(w, http.StatusConflict, ErrCodeDuplicate, what+" slug already exists")
	case errors.Is(err, storage.ErrAlreadySet):
		WriteErrorWithHint(w, http.StatusConflict, ErrCodeAlreadySet,
			"value already set and cannot be changed", "preview deploy tokens and backfilled slug lists are immutable")
	case errors.Is(err, token.ErrConflict):
		WriteError(w, http.StatusConflict, ErrCodeTokenConflict, "token already issued")
	case errors.Is(err, token.ErrEntropyExhausted):
		WriteError(w, http.StatusInternalServerError, ErrCodeEntropyExhausted, "could not issue a unique token")
	default:
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal error")
		return false
	}
	return true
}
