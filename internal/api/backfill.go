package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/hashicorp/go-multierror"

	"github.com/sipico/preview-token-issuer/internal/backfill"
	"github.com/sipico/preview-token-issuer/internal/token"
)

// BackfillRequest is the optional body of POST /api/backfill.
type BackfillRequest struct {
	Limit      *int `json:"limit"`
	TokensOnly bool `json:"tokens_only"`
	SlugsOnly  bool `json:"slugs_only"`
}

// ReportResponse summarizes one backfill pass.
type ReportResponse struct {
	Scanned int      `json:"scanned"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// BackfillResponse holds the reports of the passes that ran.
type BackfillResponse struct {
	Tokens *ReportResponse `json:"tokens,omitempty"`
	Slugs  *ReportResponse `json:"slugs,omitempty"`
}

func reportResponse(r backfill.Report) *ReportResponse {
	resp := &ReportResponse{
		Scanned: r.Scanned,
		Updated: r.Updated,
		Skipped: r.Skipped,
		Failed:  r.Failed,
	}
	var merr *multierror.Error
	switch {
	case errors.As(r.Err, &merr):
		for _, err := range merr.Errors {
			resp.Errors = append(resp.Errors, err.Error())
		}
	case r.Err != nil:
		resp.Errors = []string{r.Err.Error()}
	}
	return resp
}

// HandleBackfill runs the token pass, the slug list pass, or both, synchronously.
// Without a limit in the body the configured batch limit applies.
// POST /api/backfill
func (h *Handler) HandleBackfill(w http.ResponseWriter, r *http.Request) {
	var req BackfillRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeDecodeError(w, err)
		return
	}
	if req.TokensOnly && req.SlugsOnly {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "tokens_only and slugs_only are mutually exclusive")
		return
	}
	limit := h.backfillLimit
	if req.Limit != nil {
		if *req.Limit < 0 {
			WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "limit must not be negative")
			return
		}
		limit = *req.Limit
	}

	ctx := r.Context()
	var resp BackfillResponse

	if !req.SlugsOnly {
		report, err := h.service.BackfillTokens(ctx, limit)
		resp.Tokens = reportResponse(report)
		if err != nil {
			h.writeBackfillError(w, r, err)
			return
		}
	}
	if !req.TokensOnly {
		report, err := h.service.BackfillSlugLists(ctx)
		resp.Slugs = reportResponse(report)
		if err != nil {
			h.writeBackfillError(w, r, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeBackfillError(w http.ResponseWriter, r *http.Request, err error) {
	h.log(r).Error("backfill aborted", "error", err)
	if errors.Is(err, token.ErrEntropyExhausted) {
		WriteErrorWithHint(w, http.StatusInternalServerError, ErrCodeEntropyExhausted,
			"could not issue a unique token", "rerun the backfill; rows already updated are kept")
		return
	}
	WriteErrorWithHint(w, http.StatusInternalServerError, ErrCodeBackfillFailed,
		"backfill aborted", "rerun the backfill; rows already updated are kept")
}
