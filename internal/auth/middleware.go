package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sipico/preview-token-issuer/internal/metrics"
)

// Middleware rejects requests without a valid "Authorization: Bearer <token>" header.
func Middleware(v *Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := v.Verify(extractBearerToken(r))
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, ErrMissingToken):
				metrics.RecordAuthFailure("missing_token")
				writeJSONError(w, http.StatusUnauthorized, "missing_token", "missing bearer token")
			case errors.Is(err, ErrInvalidToken):
				metrics.RecordAuthFailure("invalid_token")
				logger.Warn("rejected invalid bearer token", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
				writeJSONError(w, http.StatusUnauthorized, "invalid_token", "invalid bearer token")
			default:
				logger.Error("token verification failed", "error", err)
				writeJSONError(w, http.StatusInternalServerError, "internal_error", "internal error")
			}
		})
	}
}

// extractBearerToken gets the token from "Authorization: Bearer <token>".
func extractBearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}
