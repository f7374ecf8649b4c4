package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/alexjbarnes/fedi-client/internal/state"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for fedi-client.
type Config struct {
	// Instance to talk to. A scheme or trailing slash is stripped.
	Hostname string `env:"FEDI_HOSTNAME"`

	// APIURL overrides https://<hostname> as the API base, e.g. for a
	// development instance served over plain http.
	APIURL string `env:"FEDI_API_URL"`

	// Account credentials. Only commands that log in or register need them.
	Username string `env:"FEDI_USERNAME"`
	Password string `env:"FEDI_PASSWORD"`
	Email    string `env:"FEDI_EMAIL"`
	Locale   string `env:"FEDI_LOCALE" envDefault:"en-US"`

	// Credential cache location. Defaults to ~/.fedi-client/state.db.
	StatePath string `env:"FEDI_STATE_PATH"`

	// ForceRequests skips the credential cache and always asks the
	// instance for fresh credentials, overwriting what is cached.
	ForceRequests bool `env:"FEDI_FORCE_REQUESTS" envDefault:"false"`

	// Client-side request pacing.
	RateLimit float64 `env:"FEDI_RATE_LIMIT" envDefault:"1"`
	RateBurst int     `env:"FEDI_RATE_BURST" envDefault:"5"`

	RequestTimeout time.Duration `env:"FEDI_REQUEST_TIMEOUT" envDefault:"30s"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Hostname = NormalizeHostname(cfg.Hostname)
	cfg.APIURL = strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.StatePath == "" {
		path, err := state.DefaultPath()
		if err != nil {
			return nil, err
		}

		cfg.StatePath = path
	}

	absPath, err := filepath.Abs(cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("resolving state path to absolute path: %w", err)
	}

	cfg.StatePath = absPath

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Hostname == "" {
		return fmt.Errorf("FEDI_HOSTNAME is required")
	}

	if strings.ContainsAny(c.Hostname, "/?#@ ") {
		return fmt.Errorf("FEDI_HOSTNAME must be a bare hostname, got %q", c.Hostname)
	}

	if c.APIURL != "" && !strings.HasPrefix(c.APIURL, "https://") && !strings.HasPrefix(c.APIURL, "http://") {
		return fmt.Errorf("FEDI_API_URL must be an http or https URL, got %q", c.APIURL)
	}

	if c.RateLimit <= 0 {
		return fmt.Errorf("FEDI_RATE_LIMIT must be positive")
	}

	if c.RateBurst < 1 {
		return fmt.Errorf("FEDI_RATE_BURST must be at least 1")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("FEDI_REQUEST_TIMEOUT must be positive")
	}

	return nil
}

// RequireUsername checks that a username is configured. A cached access
// token is enough to log in, so no password is needed.
func (c *Config) RequireUsername() error {
	if c.Username == "" {
		return fmt.Errorf("FEDI_USERNAME is required for this command")
	}

	return nil
}

// RequireCredentials checks that a username and password are configured.
// Called by commands that log in.
func (c *Config) RequireCredentials() error {
	if c.Username == "" {
		return fmt.Errorf("FEDI_USERNAME is required for this command")
	}

	if c.Password == "" {
		return fmt.Errorf("FEDI_PASSWORD is required for this command")
	}

	return nil
}

// NormalizeHostname strips a URL scheme and trailing slashes so that
// "https://example.social/" and "example.social" key the same cache entry.
func NormalizeHostname(h string) string {
	h = strings.TrimSpace(h)
	h = strings.TrimPrefix(h, "https://")
	h = strings.TrimPrefix(h, "http://")
	h = strings.TrimRight(h, "/")

	return strings.ToLower(h)
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
