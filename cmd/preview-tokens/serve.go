package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/sipico/preview-token-issuer/internal/api"
	"github.com/sipico/preview-token-issuer/internal/auth"
	"github.com/sipico/preview-token-issuer/internal/config"
	"github.com/sipico/preview-token-issuer/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API and the metrics listener",
		Action: func(c *cli.Context) error {
			d, err := setup(c, (*config.Config).ValidateServe)
			if err != nil {
				return err
			}
			return d.serve(c.Context, prometheus.DefaultRegisterer, metrics.Handler())
		},
	}
}

// serve runs until ctx is done or SIGINT/SIGTERM arrives, then shuts the
// listeners down gracefully.
func (d *deps) serve(ctx context.Context, reg prometheus.Registerer, metricsHandler http.Handler) error {
	cfg, logger := d.cfg, d.logger

	verifier, err := auth.NewVerifier(cfg.AdminTokenHash)
	if err != nil {
		return fmt.Errorf("invalid ADMIN_TOKEN_HASH: %w", err)
	}
	if err := metrics.Init(reg); err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	store, err := d.openStorage()
	if err != nil {
		return err
	}
	defer closeStorage(store, logger)

	h := api.NewHandler(store, d.newService(store, cfg.TokenPrefix),
		api.WithLogger(logger),
		api.WithLogLevel(d.logLevel),
		api.WithBackfillLimit(cfg.BackfillBatchLimit))

	var g run.Group
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	apiListener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddr, err)
	}
	addServer(&g, logger, "api", apiListener, h.NewRouter(verifier))

	if cfg.MetricsListenAddr != "" {
		metricsListener, err := net.Listen("tcp", cfg.MetricsListenAddr)
		if err != nil {
			_ = apiListener.Close() //nolint:errcheck
			return fmt.Errorf("failed to listen on %s: %w", cfg.MetricsListenAddr, err)
		}
		r := chi.NewRouter()
		r.Handle("/metrics", metricsHandler)
		addServer(&g, logger, "metrics", metricsListener, r)
	}

	logger.Info("preview token issuer started",
		"version", version,
		"listen_addr", apiListener.Addr().String(),
		"metrics_listen_addr", cfg.MetricsListenAddr,
		"token_prefix", cfg.TokenPrefix)

	err = g.Run()
	var sigErr run.SignalError
	if errors.As(err, &sigErr) || errors.Is(err, context.Canceled) {
		logger.Info("shutting down", "reason", err.Error())
		return nil
	}
	return err
}

// addServer runs an HTTP server on l as a member of g.
func addServer(g *run.Group, logger *slog.Logger, name string, l net.Listener, handler http.Handler) {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute, // synchronous backfills
		IdleTimeout:       120 * time.Second,
	}
	g.Add(func() error {
		logger.Info("listening", "server", name, "addr", l.Addr().String())
		if err := srv.Serve(l); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s server: %w", name, err)
		}
		return nil
	}, func(error) {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", "server", name, "error", err)
		}
	})
}
