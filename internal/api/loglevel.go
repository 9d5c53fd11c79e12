package api

import (
	"net/http"

	"github.com/sipico/preview-token-issuer/internal/logging"
)

// SetLogLevelRequest is the body of POST /api/loglevel.
type SetLogLevelRequest struct {
	Level string `json:"level"`
}

// HandleSetLogLevel changes the log level at runtime.
// POST /api/loglevel
func (h *Handler) HandleSetLogLevel(w http.ResponseWriter, r *http.Request) {
	var req SetLogLevelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	level, err := logging.ParseLevel(req.Level)
	if err != nil || req.Level == "" {
		WriteErrorWithHint(w, http.StatusBadRequest, ErrCodeInvalidRequest,
			"invalid log level", "use one of: debug, info, warn, error")
		return
	}

	h.logLevel.Set(level)
	h.log(r).Info("log level changed", "level", level.String())

	writeJSON(w, http.StatusOK, map[string]string{"level": level.String()})
}
