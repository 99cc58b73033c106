package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
)

// Backend names accepted by ALBUMPORT_BACKEND.
const (
	BackendPhotos = "photos"
	BackendS3     = "s3"
)

// Config holds all environment-based configuration. CLI flags may
// override LedgerPath and Workers per invocation.
type Config struct {
	Backend    string `env:"ALBUMPORT_BACKEND" envDefault:"photos"`
	LedgerPath string `env:"ALBUMPORT_LEDGER" envDefault:"albumport.db"`
	Workers    int    `env:"ALBUMPORT_WORKERS" envDefault:"3"`
	LogLevel   string `env:"ALBUMPORT_LOG_LEVEL" envDefault:"info"`

	// Retry policy for remote calls.
	MaxAttempts     int           `env:"ALBUMPORT_MAX_ATTEMPTS" envDefault:"4"`
	InitialInterval time.Duration `env:"ALBUMPORT_RETRY_INTERVAL" envDefault:"500ms"`
	MaxInterval     time.Duration `env:"ALBUMPORT_RETRY_MAX_INTERVAL" envDefault:"15s"`

	// Supported media extensions (with leading dot) and the folder
	// name prefixes uploaded to the library root without an album.
	Extensions      []string `env:"ALBUMPORT_EXTENSIONS" envSeparator:"," envDefault:".jpg,.jpeg,.png,.gif,.bmp,.webp,.mp4"`
	LibraryPrefixes []string `env:"ALBUMPORT_LIBRARY_PREFIXES" envSeparator:";" envDefault:"photos from "`

	// Photo-library backend settings. Either a static access token
	// (testing, short runs) or an OAuth refresh-token triple.
	PhotosBaseURL     string `env:"ALBUMPORT_PHOTOS_URL" envDefault:"https://photoslibrary.googleapis.com"`
	AccessToken       string `env:"ALBUMPORT_ACCESS_TOKEN"`
	OAuthClientID     string `env:"ALBUMPORT_OAUTH_CLIENT_ID"`
	OAuthClientSecret string `env:"ALBUMPORT_OAUTH_CLIENT_SECRET"`
	OAuthTokenURL     string `env:"ALBUMPORT_OAUTH_TOKEN_URL" envDefault:"https://oauth2.googleapis.com/token"`
	OAuthRefreshToken string `env:"ALBUMPORT_OAUTH_REFRESH_TOKEN"`

	// S3-compatible backend settings.
	S3Endpoint  string `env:"ALBUMPORT_S3_ENDPOINT"`
	S3Bucket    string `env:"ALBUMPORT_S3_BUCKET"`
	S3Prefix    string `env:"ALBUMPORT_S3_PREFIX"`
	S3AccessKey string `env:"ALBUMPORT_S3_ACCESS_KEY"`
	S3SecretKey string `env:"ALBUMPORT_S3_SECRET_KEY"`
	S3Secure    bool   `env:"ALBUMPORT_S3_SECURE" envDefault:"true"`
}

// Load reads configuration from environment variables, loading a .env
// file first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("ALBUMPORT_WORKERS must be at least 1")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("ALBUMPORT_MAX_ATTEMPTS must be at least 1")
	}
	if len(c.Extensions) == 0 {
		return fmt.Errorf("ALBUMPORT_EXTENSIONS must not be empty")
	}

	switch c.Backend {
	case BackendPhotos:
		if c.AccessToken == "" && c.OAuthRefreshToken == "" {
			return fmt.Errorf("photos backend requires ALBUMPORT_ACCESS_TOKEN or ALBUMPORT_OAUTH_REFRESH_TOKEN")
		}
		if c.OAuthRefreshToken != "" && c.OAuthClientID == "" {
			return fmt.Errorf("ALBUMPORT_OAUTH_CLIENT_ID is required with a refresh token")
		}
	case BackendS3:
		if c.S3Endpoint == "" || c.S3Bucket == "" {
			return fmt.Errorf("s3 backend requires ALBUMPORT_S3_ENDPOINT and ALBUMPORT_S3_BUCKET")
		}
		if c.S3AccessKey == "" || c.S3SecretKey == "" {
			return fmt.Errorf("s3 backend requires ALBUMPORT_S3_ACCESS_KEY and ALBUMPORT_S3_SECRET_KEY")
		}
	default:
		return fmt.Errorf("unknown backend %q (want %q or %q)", c.Backend, BackendPhotos, BackendS3)
	}
	return nil
}

// TokenSource builds the bearer credential source for the photos
// backend: a static token when configured, otherwise a refresh-token
// source that mints access tokens on demand.
func (c *Config) TokenSource(ctx context.Context) oauth2.TokenSource {
	if c.AccessToken != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.AccessToken})
	}
	conf := &oauth2.Config{
		ClientID:     c.OAuthClientID,
		ClientSecret: c.OAuthClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: c.OAuthTokenURL},
	}
	return conf.TokenSource(ctx, &oauth2.Token{RefreshToken: c.OAuthRefreshToken})
}
