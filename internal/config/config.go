// Package config loads SDK settings from CAPTURE_-prefixed
// environment variables
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// Store backends selectable via CAPTURE_STORE_BACKEND
const (
	StoreBackendFile   = "file"
	StoreBackendSQLite = "sqlite"
	StoreBackendMemory = "memory"
)

// Config carries every tunable of the SDK and CLI. Zero values are
// filled by env defaults; embedding apps may also build one by hand
// starting from Default.
type Config struct {
	APIBaseURL  string        `env:"CAPTURE_API_BASE_URL" envDefault:"http://localhost:8787"`
	HTTPTimeout time.Duration `env:"CAPTURE_HTTP_TIMEOUT" envDefault:"20s"`

	RefreshLeeway     time.Duration `env:"CAPTURE_REFRESH_LEEWAY" envDefault:"5m"`
	MinSplash         time.Duration `env:"CAPTURE_MIN_SPLASH" envDefault:"2s"`
	MaxRefreshRetries int           `env:"CAPTURE_MAX_REFRESH_RETRIES" envDefault:"3"`

	GoogleClientID   string `env:"CAPTURE_GOOGLE_CLIENT_ID"`
	GoogleIssuer     string `env:"CAPTURE_GOOGLE_ISSUER" envDefault:"https://accounts.google.com"`
	AppleClientID    string `env:"CAPTURE_APPLE_CLIENT_ID"`
	OAuthRedirectURI string `env:"CAPTURE_OAUTH_REDIRECT_URI" envDefault:"capture://auth/callback"`
	LoopbackAddr     string `env:"CAPTURE_LOOPBACK_ADDR" envDefault:"127.0.0.1:8423"`

	StoreBackend    string `env:"CAPTURE_STORE_BACKEND" envDefault:"file"`
	StorePath       string `env:"CAPTURE_STORE_PATH"`
	StorePassphrase string `env:"CAPTURE_STORE_PASSPHRASE"`

	LogLevel string `env:"CAPTURE_LOG_LEVEL" envDefault:"info"`
}

// Load parses configuration from the environment
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "[Load] failed to parse environment")
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration used when no environment is set
func Default() Config {
	return Config{
		APIBaseURL:        "http://localhost:8787",
		HTTPTimeout:       20 * time.Second,
		RefreshLeeway:     5 * time.Minute,
		MinSplash:         2 * time.Second,
		MaxRefreshRetries: 3,
		GoogleIssuer:      "https://accounts.google.com",
		OAuthRedirectURI:  "capture://auth/callback",
		LoopbackAddr:      "127.0.0.1:8423",
		StoreBackend:      StoreBackendFile,
		LogLevel:          "info",
	}
}

func (c Config) validate() error {
	switch c.StoreBackend {
	case StoreBackendFile, StoreBackendSQLite, StoreBackendMemory:
	default:
		return errors.Errorf("[validate] unknown store backend %q", c.StoreBackend)
	}
	if c.HTTPTimeout <= 0 {
		return errors.New("[validate] http timeout must be positive")
	}
	if c.MaxRefreshRetries < 0 {
		return errors.New("[validate] max refresh retries cannot be negative")
	}
	return nil
}
