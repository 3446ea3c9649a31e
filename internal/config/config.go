// Package config loads daemon configuration from the environment.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime settings. Every field is read from an
// environment variable prefixed with REMINDD_, e.g. REMINDD_LISTEN_ADDR.
type Config struct {
	// HTTP surface
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8090"`

	// Local store
	DatabasePath string `envconfig:"DATABASE_PATH" default:"remindd.db"`

	// Remote reminder source (PostgREST-style API). All four must be set
	// for remote fetching to start configured; they can also arrive later
	// through a configure command.
	RemoteURL   string `envconfig:"REMOTE_URL" default:""`
	RemoteKey   string `envconfig:"REMOTE_KEY" default:""`
	UserID      string `envconfig:"USER_ID" default:""`
	AccessToken string `envconfig:"ACCESS_TOKEN" default:""`

	// Web push
	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY" default:""`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY" default:""`
	VAPIDSubject    string `envconfig:"VAPID_SUBJECT" default:"mailto:admin@localhost"`

	// Secret used to seal access tokens at rest.
	SealPassphrase string `envconfig:"SEAL_PASSPHRASE" default:""`

	// Asset cache
	AssetOrigin   string   `envconfig:"ASSET_ORIGIN" default:""`
	AssetCacheDir string   `envconfig:"ASSET_CACHE_DIR" default:"asset-cache"`
	Precache      []string `envconfig:"PRECACHE" default:"/,/index.html,/manifest.json"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
}

// RemoteConfigured reports whether the environment supplied a complete
// set of remote credentials.
func (c *Config) RemoteConfigured() bool {
	return c.RemoteURL != "" && c.RemoteKey != "" && c.UserID != "" && c.AccessToken != ""
}

// Load parses environment variables into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("REMINDD", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if cfg.VAPIDPublicKey == "" && cfg.VAPIDPrivateKey != "" {
		return nil, fmt.Errorf("REMINDD_VAPID_PUBLIC_KEY required when private key is set")
	}
	if cfg.VAPIDPrivateKey == "" && cfg.VAPIDPublicKey != "" {
		return nil, fmt.Errorf("REMINDD_VAPID_PRIVATE_KEY required when public key is set")
	}
	return &cfg, nil
}
