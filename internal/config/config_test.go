package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testHash = "$2a$10$abcdefghijklmnopqrstuuabcdefghijklmnopqrstuvwxyzABCDE"

// clearEnv unsets every config variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range append([]string{FileEnvVar}, keys...) {
		name := strings.ToUpper(key)
		t.Setenv(name, "") // registers restore on cleanup
		os.Unsetenv(name)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	want := Default()
	if *cfg != want {
		t.Errorf("Load() = %+v, want defaults %+v", *cfg, want)
	}
	if cfg.TokenPrefix != "pt_" || cfg.TokenMaxAttempts != 1000 {
		t.Errorf("unexpected token defaults %q/%d", cfg.TokenPrefix, cfg.TokenMaxAttempts)
	}
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("LISTEN_ADDR", ":9000")
	t.Setenv("METRICS_LISTEN_ADDR", ":9100")
	t.Setenv("DATABASE_PATH", "/custom/path.db")
	t.Setenv("ADMIN_TOKEN_HASH", testHash)
	t.Setenv("TOKEN_PREFIX", "pv_")
	t.Setenv("TOKEN_MAX_ATTEMPTS", "50")
	t.Setenv("BACKFILL_BATCH_LIMIT", "25")
	t.Setenv("UNRELATED_VARIABLE", "ignored")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	want := Config{
		LogLevel:           "debug",
		LogFormat:          "text",
		ListenAddr:         ":9000",
		MetricsListenAddr:  ":9100",
		DatabasePath:       "/custom/path.db",
		AdminTokenHash:     testHash,
		TokenPrefix:        "pv_",
		TokenMaxAttempts:   50,
		BackfillBatchLimit: 25,
	}
	if *cfg != want {
		t.Errorf("Load() = %+v, want %+v", *cfg, want)
	}
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "log_level: warn\ndatabase_path: /from/file.db\ntoken_max_attempts: 10\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("DATABASE_PATH", "/from/env.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn from file", cfg.LogLevel)
	}
	if cfg.DatabasePath != "/from/env.db" {
		t.Errorf("DatabasePath = %q, want env to override file", cfg.DatabasePath)
	}
	if cfg.TokenMaxAttempts != 10 {
		t.Errorf("TokenMaxAttempts = %d, want 10 from file", cfg.TokenMaxAttempts)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want default", cfg.ListenAddr)
	}
}

func TestLoad_FileFromEnvironment(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: \":7000\"\n"), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv(FileEnvVar, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ListenAddr != ":7000" {
		t.Errorf("ListenAddr = %q, want :7000", cfg.ListenAddr)
	}
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}

	t.Setenv("TOKEN_MAX_ATTEMPTS", "many")
	if _, err := Load(""); err == nil {
		t.Error("expected error for non-numeric TOKEN_MAX_ATTEMPTS")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "LOG_LEVEL"},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, "LOG_FORMAT"},
		{"empty database", func(c *Config) { c.DatabasePath = "" }, "DATABASE_PATH"},
		{"empty prefix", func(c *Config) { c.TokenPrefix = "" }, "TOKEN_PREFIX"},
		{"long prefix", func(c *Config) { c.TokenPrefix = strings.Repeat("p", 33) }, "longer than 64"},
		{"zero attempts", func(c *Config) { c.TokenMaxAttempts = 0 }, "TOKEN_MAX_ATTEMPTS"},
		{"negative limit", func(c *Config) { c.BackfillBatchLimit = -1 }, "BACKFILL_BATCH_LIMIT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.LogLevel = "loud"
	cfg.TokenMaxAttempts = -5

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "LOG_LEVEL") || !strings.Contains(err.Error(), "TOKEN_MAX_ATTEMPTS") {
		t.Errorf("expected both problems reported, got %v", err)
	}
}

func TestValidateServe(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if err := cfg.ValidateServe(); err == nil || !strings.Contains(err.Error(), "ADMIN_TOKEN_HASH") {
		t.Errorf("expected missing hash error, got %v", err)
	}

	cfg.AdminTokenHash = "plaintext"
	if err := cfg.ValidateServe(); err == nil || !strings.Contains(err.Error(), "bcrypt") {
		t.Errorf("expected bcrypt error, got %v", err)
	}

	cfg.AdminTokenHash = testHash
	if err := cfg.ValidateServe(); err != nil {
		t.Errorf("ValidateServe() error = %v, want nil", err)
	}

	cfg.TokenMaxAttempts = 0
	if err := cfg.ValidateServe(); err == nil {
		t.Error("expected base validation to run")
	}
}
