// Package config loads configuration from defaults, an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/sipico/preview-token-issuer/internal/logging"
	"github.com/sipico/preview-token-issuer/internal/token"
)

// FileEnvVar names a YAML file to load below the environment.
const FileEnvVar = "CONFIG_FILE"

// Config holds all application configuration.
type Config struct {
	LogLevel           string `koanf:"log_level"`            // debug, info, warn, error
	LogFormat          string `koanf:"log_format"`           // json, text
	ListenAddr         string `koanf:"listen_addr"`          // API listener, e.g. ":8080"
	MetricsListenAddr  string `koanf:"metrics_listen_addr"`  // Prometheus listener, e.g. "localhost:9090"
	DatabasePath       string `koanf:"database_path"`        // SQLite database path
	AdminTokenHash     string `koanf:"admin_token_hash"`     // bcrypt hash of the API bearer token
	TokenPrefix        string `koanf:"token_prefix"`         // prefix of project preview tokens
	TokenMaxAttempts   int    `koanf:"token_max_attempts"`   // issuance attempt bound
	BackfillBatchLimit int    `koanf:"backfill_batch_limit"` // max projects per token backfill run, 0 = all
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		LogLevel:           "info",
		LogFormat:          "json",
		ListenAddr:         ":8080",
		MetricsListenAddr:  "localhost:9090",
		DatabasePath:       "/data/preview-tokens.db",
		TokenPrefix:        token.PreviewPrefix,
		TokenMaxAttempts:   token.DefaultMaxAttempts,
		BackfillBatchLimit: 0,
	}
}

// keys lists every recognised key. Environment variables are these, upper-cased.
var keys = []string{
	"log_level",
	"log_format",
	"listen_addr",
	"metrics_listen_addr",
	"database_path",
	"admin_token_hash",
	"token_prefix",
	"token_max_attempts",
	"backfill_batch_limit",
}

// Load reads configuration with priority environment > file > defaults.
// configFile may be empty, in which case CONFIG_FILE is consulted.
func Load(configFile string) (*Config, error) {
	if configFile == "" {
		configFile = os.Getenv(FileEnvVar)
	}

	k := koanf.New(".")

	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configFile, err)
		}
	}

	known := make(map[string]bool, len(keys))
	for _, key := range keys {
		known[key] = true
	}
	envTransformer := func(s string) string {
		key := strings.ToLower(s)
		if !known[key] {
			return ""
		}
		return key
	}
	if err := k.Load(env.Provider("", ".", envTransformer), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks constraints shared by every command.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("DATABASE_PATH must not be empty"))
	}
	if c.TokenPrefix == "" {
		errs = append(errs, errors.New("TOKEN_PREFIX must not be empty"))
	} else if len(c.TokenPrefix)+2*token.RandomBytes > token.MaxLength {
		errs = append(errs, fmt.Errorf("TOKEN_PREFIX %q makes tokens longer than %d bytes", c.TokenPrefix, token.MaxLength))
	}
	if c.TokenMaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("TOKEN_MAX_ATTEMPTS must be positive, got %d", c.TokenMaxAttempts))
	}
	if c.BackfillBatchLimit < 0 {
		errs = append(errs, fmt.Errorf("BACKFILL_BATCH_LIMIT must not be negative, got %d", c.BackfillBatchLimit))
	}

	return errors.Join(errs...)
}

// ValidateServe additionally checks what the HTTP server needs.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.AdminTokenHash == "" {
		return errors.New("ADMIN_TOKEN_HASH environment variable is required (see the hash-admin-token command)")
	}
	if !strings.HasPrefix(c.AdminTokenHash, "$2") {
		return errors.New("ADMIN_TOKEN_HASH must be a bcrypt hash")
	}
	if c.ListenAddr == "" {
		return errors.New("LISTEN_ADDR must not be empty")
	}
	return nil
}
