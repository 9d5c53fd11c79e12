// Package backfill populates newly added fields on existing rows, one row at a time.
//
// Each row is persisted on its own, so an interrupted pass leaves every
// processed row correct and a rerun only touches rows that still need work.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"github.com/sipico/preview-token-issuer/internal/logging"
	"github.com/sipico/preview-token-issuer/internal/metrics"
	"github.com/sipico/preview-token-issuer/internal/token"
)

// Field names used in logs and metrics.
const (
	FieldPreviewToken = "preview_deploy_token"
	FieldServiceSlugs = "updated_service_slugs"
)

// ErrSkip may be returned by a persist callback when the row no longer needs
// work, for example because a concurrent writer already filled it. The row is
// counted as skipped.
var ErrSkip = errors.New("backfill: row no longer needs work")

// Report summarises a pass.
type Report struct {
	Scanned int // rows visited
	Updated int // rows written
	Skipped int // rows that needed nothing
	Failed  int // rows whose write failed; see Err

	// Err aggregates per-row failures. The pass continued past each of them.
	Err error
}

func (r *Report) fail(err error) {
	r.Failed++
	r.Err = multierror.Append(r.Err, err)
}

// Tokens issues a token for every entity where isSet is false and persists it.
//
// taken should hold every token already issued; issued tokens are added to it.
// A nil taken starts empty and relies on persist reporting conflicts.
// When persist reports token.ErrConflict the candidate is added to taken and a
// new one is issued, within the issuer's attempt bound. Other persist errors are
// recorded in the report and the pass moves on; ErrSkip counts the row as skipped.
//
// The pass aborts on issuance failure (token.ErrEntropyExhausted included) and on
// context cancellation; the returned report covers the rows processed so far.
func Tokens[E any](
	ctx context.Context,
	logger *slog.Logger,
	issuer *token.Issuer,
	prefix string,
	entities iter.Seq[E],
	taken *token.Set,
	isSet func(E) bool,
	persist func(context.Context, E, string) error,
) (Report, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if taken == nil {
		taken = token.NewSet()
	}
	var report Report

	for e := range entities {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++

		if isSet(e) {
			report.Skipped++
			metrics.RecordBackfillRow(FieldPreviewToken, metrics.OutcomeSkipped)
			continue
		}

		tok, err := issueAndPersist(ctx, issuer, prefix, e, taken, persist)
		switch {
		case err == nil:
			report.Updated++
			metrics.RecordBackfillRow(FieldPreviewToken, metrics.OutcomeUpdated)
			logger.Debug("token backfilled", "entity", e, "token", logging.MaskToken(tok))
		case errors.Is(err, ErrSkip):
			report.Skipped++
			metrics.RecordBackfillRow(FieldPreviewToken, metrics.OutcomeSkipped)
			logger.Debug("token backfill skipped row", "entity", e, "reason", err)
		case errors.Is(err, errIssue), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			logger.Error("token backfill aborted", "entity", e, "error", err)
			return report, err
		default:
			report.fail(err)
			metrics.RecordBackfillRow(FieldPreviewToken, metrics.OutcomeFailed)
			logger.Warn("token backfill failed for row, continuing", "entity", e, "error", err)
		}
	}

	return report, nil
}

// errIssue marks failures of the issuer itself, which abort the whole pass.
var errIssue = errors.New("issuance failed")

func issueAndPersist[E any](
	ctx context.Context,
	issuer *token.Issuer,
	prefix string,
	e E,
	taken *token.Set,
	persist func(context.Context, E, string) error,
) (string, error) {
	for attempt := 0; attempt < issuer.MaxAttempts(); attempt++ {
		tok, err := issuer.Issue(prefix, taken)
		if err != nil {
			metrics.RecordIssueFailure(prefix)
			return "", fmt.Errorf("%w: %w", errIssue, err)
		}

		err = persist(ctx, e, tok)
		if err == nil {
			taken.Add(tok)
			metrics.RecordTokenIssued(prefix)
			return tok, nil
		}
		if !errors.Is(err, token.ErrConflict) {
			return "", err
		}

		// Someone else stored this token after our snapshot was taken.
		taken.Add(tok)
		metrics.RecordTokenCollision(metrics.CollisionStorage)
	}

	return "", fmt.Errorf("%w: %w", errIssue, token.ErrEntropyExhausted)
}

// SlugLists sets the slug list of every record that has an associated entity and
// an empty list to the single slug of that entity.
//
// Records without an associated entity are skipped silently. Records whose list
// is non-empty are never touched, even if the entity's slug has changed since.
// Per-row persist failures are recorded and the pass continues; only context
// cancellation aborts it. ErrSkip from persist counts the record as skipped.
func SlugLists[R any](
	ctx context.Context,
	logger *slog.Logger,
	records iter.Seq[R],
	associatedSlug func(R) (string, bool),
	currentSlugs func(R) []string,
	persist func(context.Context, R, []string) error,
) (Report, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var report Report

	for r := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++

		slug, ok := associatedSlug(r)
		if !ok || len(currentSlugs(r)) > 0 {
			report.Skipped++
			metrics.RecordBackfillRow(FieldServiceSlugs, metrics.OutcomeSkipped)
			continue
		}

		if err := persist(ctx, r, []string{slug}); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return report, err
			}
			if errors.Is(err, ErrSkip) {
				report.Skipped++
				metrics.RecordBackfillRow(FieldServiceSlugs, metrics.OutcomeSkipped)
				continue
			}
			report.fail(err)
			metrics.RecordBackfillRow(FieldServiceSlugs, metrics.OutcomeFailed)
			logger.Warn("slug list backfill failed for row, continuing", "record", r, "error", err)
			continue
		}

		report.Updated++
		metrics.RecordBackfillRow(FieldServiceSlugs, metrics.OutcomeUpdated)
		logger.Debug("slug list backfilled", "record", r, "slug", slug)
	}

	return report, nil
}
