package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable, e.g. SYNAPSE_API_BASE_URL.
const Prefix = "SYNAPSE"

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Remote API
	APIBaseURL string        `envconfig:"API_BASE_URL" default:"http://localhost:8000"`
	APITimeout time.Duration `envconfig:"API_TIMEOUT" default:"30s"`

	// Local storage. With StorageDisabled the session lives in memory only.
	StatePath       string `envconfig:"STATE_PATH" default:"synapse.db"`
	StorageDisabled bool   `envconfig:"STORAGE_DISABLED" default:"false"`
	// StateQuotaBytes caps stored keys plus values. Zero means no cap.
	StateQuotaBytes int `envconfig:"STATE_QUOTA_BYTES" default:"5242880"`

	// Credentials issued by the external auth provider (optional)
	AccessToken    string        `envconfig:"ACCESS_TOKEN"`
	AccessTokenTTL time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"1h"`

	// Hub
	HubListenAddr  string `envconfig:"HUB_LISTEN_ADDR" default:"127.0.0.1:8787"`
	HubCORSOrigins string `envconfig:"HUB_CORS_ORIGINS"`
	HubAPIKey      string `envconfig:"HUB_API_KEY"`
	// HubUploadDir bounds file paths attached through the hub. Empty disables them.
	HubUploadDir  string        `envconfig:"HUB_UPLOAD_DIR"`
	MaxOpenDrafts int           `envconfig:"MAX_OPEN_DRAFTS" default:"64"`
	DraftIdleTTL  time.Duration `envconfig:"DRAFT_IDLE_TTL" default:"24h"`
}

// CORSOriginList returns the parsed allowed origins. Empty means same-origin only.
func (c *Config) CORSOriginList() []string {
	if c.HubCORSOrigins == "" {
		return nil
	}
	parts := strings.Split(c.HubCORSOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, o := range parts {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Validate rejects values the client cannot run with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid API base URL %q", c.APIBaseURL)
	}
	if c.APITimeout <= 0 {
		return fmt.Errorf("API timeout must be positive, got %s", c.APITimeout)
	}
	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("access token TTL must be positive, got %s", c.AccessTokenTTL)
	}
	if c.StateQuotaBytes < 0 {
		return fmt.Errorf("state quota must not be negative, got %d", c.StateQuotaBytes)
	}
	if c.MaxOpenDrafts < 1 {
		return fmt.Errorf("max open drafts must be at least 1, got %d", c.MaxOpenDrafts)
	}
	if !c.StorageDisabled && strings.TrimSpace(c.StatePath) == "" {
		return errors.New("state path is required unless storage is disabled")
	}
	return nil
}

// Load reads an optional .env file from the working directory, then the
// SYNAPSE_* environment, and validates the result.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	return LoadWithPrefix(Prefix)
}

// LoadWithPrefix reads configuration with a prefix, without any .env file.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config with prefix %s: %w", prefix, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// loadDotEnv loads files without overriding variables already set.
// Missing files are ignored.
func loadDotEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}
