package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sipico/preview-token-issuer/internal/auth"
	"github.com/sipico/preview-token-issuer/internal/config"
	"github.com/sipico/preview-token-issuer/internal/logging"
	"github.com/sipico/preview-token-issuer/internal/metrics"
	"github.com/sipico/preview-token-issuer/internal/storage"
	"github.com/sipico/preview-token-issuer/internal/token"
)

// runApp runs the CLI with args and returns stdout.
func runApp(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	app := newApp()
	app.Reader = strings.NewReader(stdin)
	app.Writer = &stdout
	app.ErrWriter = &stderr

	err := app.RunContext(context.Background(), append([]string{"preview-tokens"}, args...))
	return stdout.String(), err
}

// useTempDatabase points DATABASE_PATH at a fresh file and returns its path.
func useTempDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "preview-tokens.db")
	t.Setenv("DATABASE_PATH", path)
	return path
}

func TestHashAdminToken(t *testing.T) {
	out, err := runApp(t, "admin-secret\n", "hash-admin-token", "--cost", "4")
	require.NoError(t, err)

	hash := strings.TrimSpace(out)
	v, err := auth.NewVerifier(hash)
	require.NoError(t, err)
	assert.NoError(t, v.Verify("admin-secret"))
	assert.Error(t, v.Verify("other"))
}

func TestHashAdminTokenEmpty(t *testing.T) {
	_, err := runApp(t, "\n", "hash-admin-token")
	assert.ErrorContains(t, err, "must not be empty")
}

func TestMigrate(t *testing.T) {
	useTempDatabase(t)

	out, err := runApp(t, "", "migrate")
	require.NoError(t, err)
	assert.Equal(t, "schema version "+strconv.Itoa(storage.LatestSchemaVersion())+"\n", out)

	// Running again is a no-op.
	_, err = runApp(t, "", "migrate")
	require.NoError(t, err)
}

func TestInvalidConfig(t *testing.T) {
	useTempDatabase(t)
	t.Setenv("TOKEN_MAX_ATTEMPTS", "0")

	_, err := runApp(t, "", "migrate")
	assert.ErrorContains(t, err, "TOKEN_MAX_ATTEMPTS")
}

func TestIssue(t *testing.T) {
	useTempDatabase(t)

	out, err := runApp(t, "", "issue")
	require.NoError(t, err)
	assert.True(t, token.Valid(token.PreviewPrefix, strings.TrimSpace(out)), out)

	out, err = runApp(t, "", "issue", "--prefix", "pk_")
	require.NoError(t, err)
	assert.True(t, token.Valid("pk_", strings.TrimSpace(out)), out)
}

func seedLegacyProjects(t *testing.T, path string, slugs ...string) {
	t.Helper()
	store, err := storage.New(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, store.Close()) }()

	for _, slug := range slugs {
		_, err := store.CreateProject(context.Background(), slug, "")
		require.NoError(t, err)
	}
}

func TestBackfill(t *testing.T) {
	path := useTempDatabase(t)
	seedLegacyProjects(t, path, "a", "b", "c")

	out, err := runApp(t, "", "backfill", "--limit", "2", "--tokens-only")
	require.NoError(t, err)
	assert.Equal(t, "preview_deploy_token: scanned=2 updated=2 skipped=0 failed=0\n", out)

	out, err = runApp(t, "", "backfill")
	require.NoError(t, err)
	assert.Contains(t, out, "preview_deploy_token: scanned=1 updated=1")
	assert.Contains(t, out, "updated_service_slugs: scanned=0")

	store, err := storage.New(path)
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck

	missing, err := store.ListProjectsMissingToken(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestBackfillFlags(t *testing.T) {
	useTempDatabase(t)

	_, err := runApp(t, "", "backfill", "--tokens-only", "--slugs-only")
	assert.ErrorContains(t, err, "mutually exclusive")

	_, err = runApp(t, "", "backfill", "--limit", "-1")
	assert.ErrorContains(t, err, "must not be negative")
}

func TestServeRequiresAdminTokenHash(t *testing.T) {
	useTempDatabase(t)

	_, err := runApp(t, "", "serve")
	assert.ErrorContains(t, err, "ADMIN_TOKEN_HASH")
}

func TestServeStopsOnCancel(t *testing.T) {
	hash, err := auth.HashTokenCost("admin-secret", bcrypt.MinCost)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "serve.db")
	cfg.AdminTokenHash = hash
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.MetricsListenAddr = "127.0.0.1:0"

	var logs bytes.Buffer
	logger, level, err := logging.New("info", "text", &logs)
	require.NoError(t, err)
	d := &deps{cfg: &cfg, logger: logger, logLevel: level}

	reg := prometheus.NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.serve(ctx, reg, metrics.HandlerFor(reg)) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
	assert.Contains(t, logs.String(), "preview token issuer started")
}
