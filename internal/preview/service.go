// Package preview issues project preview deploy tokens and runs the backfills
// that populate preview_deploy_token and updated_service_slugs on existing rows.
package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/hashicorp/go-multierror"

	"github.com/sipico/preview-token-issuer/internal/backfill"
	"github.com/sipico/preview-token-issuer/internal/logging"
	"github.com/sipico/preview-token-issuer/internal/metrics"
	"github.com/sipico/preview-token-issuer/internal/storage"
	"github.com/sipico/preview-token-issuer/internal/token"
)

// Store is the persistence the service needs.
type Store interface {
	CreateProject(ctx context.Context, slug, previewToken string) (*storage.Project, error)
	GetProject(ctx context.Context, id int64) (*storage.Project, error)
	ListProjectsMissingToken(ctx context.Context, limit int) ([]*storage.Project, error)
	SetProjectPreviewToken(ctx context.Context, id int64, previewToken string) error
	ListIssuedTokens(ctx context.Context) ([]string, error)
	ListPreviewMetadata(ctx context.Context) ([]*storage.PreviewMetadata, error)
	SetUpdatedServiceSlugs(ctx context.Context, id int64, slugs []string) error
}

// Service issues tokens against a Store.
type Service struct {
	store  Store
	issuer *token.Issuer
	prefix string
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithIssuer replaces the default issuer.
func WithIssuer(i *token.Issuer) Option {
	return func(s *Service) {
		s.issuer = i
	}
}

// WithPrefix replaces the token prefix (token.PreviewPrefix by default).
func WithPrefix(prefix string) Option {
	return func(s *Service) {
		s.prefix = prefix
	}
}

// WithLogger sets the logger (slog.Default by default).
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// NewService creates a Service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		issuer: token.NewIssuer(),
		prefix: token.PreviewPrefix,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Prefix returns the prefix of issued tokens.
func (s *Service) Prefix() string {
	return s.prefix
}

func (s *Service) issuedSet(ctx context.Context) (*token.Set, error) {
	issued, err := s.store.ListIssuedTokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load issued tokens: %w", err)
	}
	return token.NewSet(issued...), nil
}

// IssueToken returns a fresh token not present in the store, without persisting it.
func (s *Service) IssueToken(ctx context.Context) (string, error) {
	taken, err := s.issuedSet(ctx)
	if err != nil {
		return "", err
	}
	tok, err := s.issuer.Issue(s.prefix, taken)
	if err != nil {
		metrics.RecordIssueFailure(s.prefix)
		return "", err
	}
	return tok, nil
}

// CreateProject creates a project with a fresh preview token.
//
// The in-memory check against issued tokens only avoids most collisions; the
// store's unique constraint decides. A token rejected there is re-issued, within
// the issuer's attempt bound.
func (s *Service) CreateProject(ctx context.Context, slug string) (*storage.Project, error) {
	taken, err := s.issuedSet(ctx)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < s.issuer.MaxAttempts(); attempt++ {
		tok, err := s.issuer.Issue(s.prefix, taken)
		if err != nil {
			metrics.RecordIssueFailure(s.prefix)
			return nil, err
		}

		p, err := s.store.CreateProject(ctx, slug, tok)
		if err == nil {
			metrics.RecordTokenIssued(s.prefix)
			s.logger.Info("project created", "project_id", p.ID, "slug", p.Slug, "token", logging.MaskToken(tok))
			return p, nil
		}
		if !errors.Is(err, token.ErrConflict) {
			return nil, err
		}

		taken.Add(tok)
		metrics.RecordTokenCollision(metrics.CollisionStorage)
		s.logger.Warn("preview token collided in storage, reissuing", "slug", slug, "attempt", attempt+1)
	}

	metrics.RecordIssueFailure(s.prefix)
	return nil, token.ErrEntropyExhausted
}

// IssueProjectToken gives one existing project its token.
// It returns storage.ErrAlreadySet if the project already has one.
func (s *Service) IssueProjectToken(ctx context.Context, id int64) (*storage.Project, error) {
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.HasPreviewToken() {
		return nil, storage.ErrAlreadySet
	}

	taken, err := s.issuedSet(ctx)
	if err != nil {
		return nil, err
	}

	report, err := backfill.Tokens(ctx, s.logger, s.issuer, s.prefix,
		slices.Values([]*storage.Project{p}), taken,
		(*storage.Project).HasPreviewToken,
		func(ctx context.Context, p *storage.Project, tok string) error {
			return s.store.SetProjectPreviewToken(ctx, p.ID, tok)
		})
	if err != nil {
		return nil, err
	}
	if report.Err != nil {
		return nil, unwrapSingle(report.Err)
	}
	if report.Updated == 0 {
		return nil, storage.ErrAlreadySet
	}

	return s.store.GetProject(ctx, id)
}

// BackfillTokens gives every project without a token one. limit caps how many
// projects this run visits; 0 means all. Rerunning continues where a previous,
// limited or interrupted run stopped.
func (s *Service) BackfillTokens(ctx context.Context, limit int) (backfill.Report, error) {
	projects, err := s.store.ListProjectsMissingToken(ctx, limit)
	if err != nil {
		return backfill.Report{}, fmt.Errorf("failed to list projects missing a token: %w", err)
	}
	taken, err := s.issuedSet(ctx)
	if err != nil {
		return backfill.Report{}, err
	}

	s.logger.Info("token backfill started", "candidates", len(projects), "issued", taken.Len())

	report, err := backfill.Tokens(ctx, s.logger, s.issuer, s.prefix,
		slices.Values(projects), taken,
		(*storage.Project).HasPreviewToken,
		s.persistProjectToken)

	s.logReport("token backfill finished", report, err)
	return report, err
}

func (s *Service) persistProjectToken(ctx context.Context, p *storage.Project, tok string) error {
	err := s.store.SetProjectPreviewToken(ctx, p.ID, tok)
	switch {
	case errors.Is(err, storage.ErrAlreadySet):
		return fmt.Errorf("project %d: %w", p.ID, backfill.ErrSkip)
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("project %d deleted: %w", p.ID, backfill.ErrSkip)
	case err != nil:
		return fmt.Errorf("project %d: %w", p.ID, err)
	}
	return nil
}

// BackfillSlugLists sets the slug list of every preview record that has a service
// and an empty list to that service's current slug.
func (s *Service) BackfillSlugLists(ctx context.Context) (backfill.Report, error) {
	records, err := s.store.ListPreviewMetadata(ctx)
	if err != nil {
		return backfill.Report{}, fmt.Errorf("failed to list preview metadata: %w", err)
	}

	s.logger.Info("slug list backfill started", "records", len(records))

	report, err := backfill.SlugLists(ctx, s.logger, slices.Values(records),
		func(m *storage.PreviewMetadata) (string, bool) {
			return m.ServiceSlug, m.HasService()
		},
		func(m *storage.PreviewMetadata) []string {
			return m.UpdatedServiceSlugs
		},
		func(ctx context.Context, m *storage.PreviewMetadata, slugs []string) error {
			err := s.store.SetUpdatedServiceSlugs(ctx, m.ID, slugs)
			switch {
			case errors.Is(err, storage.ErrAlreadySet), errors.Is(err, storage.ErrNotFound):
				return fmt.Errorf("preview %d: %w", m.ID, backfill.ErrSkip)
			case err != nil:
				return fmt.Errorf("preview %d: %w", m.ID, err)
			}
			return nil
		})

	s.logReport("slug list backfill finished", report, err)
	return report, err
}

// Result holds the reports of a full backfill.
type Result struct {
	Tokens backfill.Report
	Slugs  backfill.Report
}

// Backfill runs the token pass, then the slug list pass. A fatal token pass
// error stops before the slug pass.
func (s *Service) Backfill(ctx context.Context, limit int) (Result, error) {
	var res Result
	var err error

	res.Tokens, err = s.BackfillTokens(ctx, limit)
	if err != nil {
		return res, fmt.Errorf("token backfill: %w", err)
	}
	res.Slugs, err = s.BackfillSlugLists(ctx)
	if err != nil {
		return res, fmt.Errorf("slug list backfill: %w", err)
	}
	return res, nil
}

func (s *Service) logReport(msg string, r backfill.Report, err error) {
	attrs := []any{"scanned", r.Scanned, "updated", r.Updated, "skipped", r.Skipped, "failed", r.Failed}
	switch {
	case err != nil:
		s.logger.Error(msg, append(attrs, "error", err)...)
	case r.Err != nil:
		s.logger.Warn(msg, append(attrs, "row_errors", r.Err)...)
	default:
		s.logger.Info(msg, attrs...)
	}
}

// unwrapSingle returns the only error of a one-row report.
func unwrapSingle(err error) error {
	var merr *multierror.Error
	if errors.As(err, &merr) && len(merr.Errors) == 1 {
		return merr.Errors[0]
	}
	return err
}
