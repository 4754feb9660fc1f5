// Package config loads server configuration.
//
// LOAD ORDER (later wins):
//  1. Built-in defaults
//  2. YAML file (lunchbox.yaml, or the path given with --config)
//  3. Environment variables (PORT, STORE_DSN, JWT_SECRET, ...)
//
// Nothing here is mandatory. A missing JWT secret or image bucket does not
// stop the server from starting: the features that need them answer with a
// configuration error instead, and read-only browsing keeps working.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the full server configuration. The yaml tags mirror the file
// layout; env overrides are applied in applyEnv.
type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Store struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"store"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		TokenTTL  string `yaml:"token_ttl"`
		GitHub    struct {
			ClientID     string `yaml:"client_id"`
			ClientSecret string `yaml:"client_secret"`
			CallbackURL  string `yaml:"callback_url"`
		} `yaml:"github"`
	} `yaml:"auth"`

	Images struct {
		Bucket        string `yaml:"bucket"`
		PublicBaseURL string `yaml:"public_base_url"`
		Prefix        string `yaml:"prefix"`
		MaxBytes      int64  `yaml:"max_bytes"`
	} `yaml:"images"`

	Events struct {
		AMQPURL  string `yaml:"amqp_url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"events"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// DefaultPaths are tried, in order, when no explicit config path is given.
var DefaultPaths = []string{"lunchbox.yaml", "lunchbox.yml"}

// Load reads the config file at path (or the first of DefaultPaths that
// exists), applies environment overrides from the process environment and
// fills in defaults.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		for _, candidate := range DefaultPaths {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid PORT %q", v)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("IMAGE_MAX_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: invalid IMAGE_MAX_BYTES %q", v)
		}
		c.Images.MaxBytes = n
	}

	str("STORE_DRIVER", &c.Store.Driver)
	str("STORE_DSN", &c.Store.DSN)
	str("JWT_SECRET", &c.Auth.JWTSecret)
	str("TOKEN_TTL", &c.Auth.TokenTTL)
	str("GITHUB_CLIENT_ID", &c.Auth.GitHub.ClientID)
	str("GITHUB_CLIENT_SECRET", &c.Auth.GitHub.ClientSecret)
	str("GITHUB_CALLBACK_URL", &c.Auth.GitHub.CallbackURL)
	str("IMAGE_BUCKET", &c.Images.Bucket)
	str("IMAGE_PUBLIC_BASE_URL", &c.Images.PublicBaseURL)
	str("IMAGE_PREFIX", &c.Images.Prefix)
	str("AMQP_URL", &c.Events.AMQPURL)
	str("AMQP_EXCHANGE", &c.Events.Exchange)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverSQLite
	}
	if c.Store.DSN == "" && c.Store.Driver == DriverSQLite {
		c.Store.DSN = "data/lunchbox.db"
	}
	if c.Auth.TokenTTL == "" {
		c.Auth.TokenTTL = "24h"
	}
	if c.Auth.GitHub.CallbackURL == "" {
		c.Auth.GitHub.CallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", c.Server.Port)
	}
	if c.Images.Prefix == "" {
		c.Images.Prefix = "restaurants"
	}
	if c.Images.MaxBytes == 0 {
		c.Images.MaxBytes = 5 << 20
	}
	if c.Events.Exchange == "" {
		c.Events.Exchange = "lunchbox.events"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("config: unsupported store driver %q (want sqlite or postgres)", c.Store.Driver)
	}
	if c.Store.DSN == "" {
		return errors.New("config: store.dsn is required for the postgres driver")
	}
	if _, err := time.ParseDuration(c.Auth.TokenTTL); err != nil {
		return fmt.Errorf("config: invalid token_ttl %q: %w", c.Auth.TokenTTL, err)
	}
	if c.Images.MaxBytes < 0 {
		return errors.New("config: images.max_bytes must be positive")
	}
	return nil
}

// AuthEnabled reports whether sessions can be issued. Without a secret,
// sign-in and every authenticated route answer with a configuration error.
func (c *Config) AuthEnabled() bool {
	return c.Auth.JWTSecret != ""
}

// GitHubEnabled reports whether the GitHub login routes should be mounted.
func (c *Config) GitHubEnabled() bool {
	return c.AuthEnabled() && c.Auth.GitHub.ClientID != "" && c.Auth.GitHub.ClientSecret != ""
}

// UploadsEnabled reports whether file uploads have somewhere to go.
// Direct image URLs work either way.
func (c *Config) UploadsEnabled() bool {
	return c.Images.Bucket != ""
}

// TokenDuration returns the parsed session lifetime. validate has already
// rejected unparsable values.
func (c *Config) TokenDuration() time.Duration {
	d, _ := time.ParseDuration(c.Auth.TokenTTL)
	return d
}

// Logger builds the process logger from the log section.
func (c *Config) Logger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
