package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Addr          string        `yaml:"addr"`
	BaseURL       string        `yaml:"base_url"` // public origin, used for OAuth redirects
	SessionSecret string        `yaml:"session_secret"`
	SecureCookies bool          `yaml:"secure_cookies"`
	CookieDomain  string        `yaml:"cookie_domain"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // tier cache lifetime
}

// IdentityConfig points at a GoTrue-compatible auth API.
type IdentityConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// StorageConfig points at the object storage REST API.
type StorageConfig struct {
	URL          string `yaml:"url"`
	ServiceKey   string `yaml:"service_key"`
	AvatarBucket string `yaml:"avatar_bucket"`
}

type OAuthClientConfig struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	AuthURL      string   `yaml:"auth_url"`
	TokenURL     string   `yaml:"token_url"`
	APIBaseURL   string   `yaml:"api_base_url"`
	Scopes       []string `yaml:"scopes"`
}

func (c OAuthClientConfig) Enabled() bool { return c.ClientID != "" }

type ConnectorsConfig struct {
	Spotify    OAuthClientConfig `yaml:"spotify"`
	AppleMusic OAuthClientConfig `yaml:"apple_music"`
	Tidal      OAuthClientConfig `yaml:"tidal"`
	// RequestsPerSecond throttles library import calls per connector.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

type WizardConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	AvatarMaxBytes  int64         `yaml:"avatar_max_bytes"`
	StepTTL         time.Duration `yaml:"step_ttl"`
	PreviewTTL      time.Duration `yaml:"preview_ttl"`
	SignupRateLimit int           `yaml:"signup_rate_limit"` // attempts per window per client
	SignupWindow    time.Duration `yaml:"signup_window"`
}

type WorkersConfig struct {
	Count          int           `yaml:"count"`
	StaleSyncAfter time.Duration `yaml:"stale_sync_after"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Identity   IdentityConfig   `yaml:"identity"`
	Storage    StorageConfig    `yaml:"storage"`
	Connectors ConnectorsConfig `yaml:"connectors"`
	Wizard     WizardConfig     `yaml:"wizard"`
	Workers    WorkersConfig    `yaml:"workers"`
	Security   SecurityConfig   `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, applies defaults and validates the
// fields the server cannot run without.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Parse decodes and defaults a config document.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	cfg.HTTP.BaseURL = strings.TrimRight(cfg.HTTP.BaseURL, "/")
	if cfg.HTTP.BaseURL == "" {
		cfg.HTTP.BaseURL = "http://127.0.0.1:8080"
	}
	cfg.HTTP.SessionTTL = orDefault(cfg.HTTP.SessionTTL, 7*24*time.Hour)
	cfg.HTTP.ReadTimeout = orDefault(cfg.HTTP.ReadTimeout, 15*time.Second)
	cfg.HTTP.WriteTimeout = orDefault(cfg.HTTP.WriteTimeout, 15*time.Second)

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = orDefault(cfg.Redis.TTL, time.Hour)

	if cfg.Storage.AvatarBucket == "" {
		cfg.Storage.AvatarBucket = "avatars"
	}
	if cfg.Connectors.RequestsPerSecond <= 0 {
		cfg.Connectors.RequestsPerSecond = 5
	}

	cfg.Wizard.PollInterval = orDefault(cfg.Wizard.PollInterval, 2*time.Second)
	if cfg.Wizard.AvatarMaxBytes <= 0 {
		cfg.Wizard.AvatarMaxBytes = 2 << 20
	}
	cfg.Wizard.StepTTL = orDefault(cfg.Wizard.StepTTL, 15*time.Minute)
	cfg.Wizard.PreviewTTL = orDefault(cfg.Wizard.PreviewTTL, 30*time.Minute)
	if cfg.Wizard.SignupRateLimit <= 0 {
		cfg.Wizard.SignupRateLimit = 10
	}
	cfg.Wizard.SignupWindow = orDefault(cfg.Wizard.SignupWindow, 10*time.Minute)

	if cfg.Workers.Count <= 0 {
		cfg.Workers.Count = 4
	}
	cfg.Workers.StaleSyncAfter = orDefault(cfg.Workers.StaleSyncAfter, 30*time.Minute)
	cfg.Workers.SweepInterval = orDefault(cfg.Workers.SweepInterval, 5*time.Minute)
}

func (cfg *Config) validate() error {
	// Minimal validation
	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if cfg.Identity.URL == "" {
		return errors.New("identity.url is required")
	}
	if cfg.Storage.URL == "" {
		return errors.New("storage.url is required")
	}
	if len(cfg.HTTP.SessionSecret) < 32 {
		return errors.New("http.session_secret must be at least 32 bytes")
	}
	return nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
