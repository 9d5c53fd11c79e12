// Package main provides the preview-tokens command: the HTTP API server plus
// one-shot schema migration, backfill and token issuance.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/sipico/preview-token-issuer/internal/config"
	"github.com/sipico/preview-token-issuer/internal/logging"
	"github.com/sipico/preview-token-issuer/internal/metrics"
	"github.com/sipico/preview-token-issuer/internal/preview"
	"github.com/sipico/preview-token-issuer/internal/storage"
	"github.com/sipico/preview-token-issuer/internal/token"
)

// version is set via ldflags.
var version = "dev"

func main() {
	metrics.Version = version
	if err := newApp().RunContext(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "preview-tokens",
		Usage:   "Issue collision-free preview deploy tokens and backfill existing records",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file; environment variables take precedence",
				EnvVars: []string{config.FileEnvVar},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			backfillCommand(),
			issueCommand(),
			hashAdminTokenCommand(),
		},
	}
}

// deps is what every command but hash-admin-token sets up first.
type deps struct {
	cfg      *config.Config
	logger   *slog.Logger
	logLevel *slog.LevelVar
}

// setup loads and validates configuration and builds the logger, which writes
// to the app's error writer so command output stays clean.
func setup(c *cli.Context, validate func(*config.Config) error) (*deps, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, level, err := logging.New(cfg.LogLevel, cfg.LogFormat, c.App.ErrWriter)
	if err != nil {
		return nil, err
	}
	return &deps{cfg: cfg, logger: logger, logLevel: level}, nil
}

func (d *deps) openStorage() (*storage.SQLiteStorage, error) {
	store, err := storage.New(d.cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return store, nil
}

func (d *deps) newService(store preview.Store, prefix string) *preview.Service {
	issuer := token.NewIssuer(token.WithMaxAttempts(d.cfg.TokenMaxAttempts))
	return preview.NewService(store,
		preview.WithIssuer(issuer),
		preview.WithPrefix(prefix),
		preview.WithLogger(d.logger))
}

func closeStorage(store *storage.SQLiteStorage, logger *slog.Logger) {
	if err := store.Close(); err != nil {
		logger.Error("failed to close storage", "error", err)
	}
}
