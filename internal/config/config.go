// File: internal/config/config.go
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
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// submissions allowed per client per minute, 0 disables the limiter
	SubmitPerMinute int `yaml:"submit_per_minute"`
	// honor X-Forwarded-For / X-Real-IP; enable only behind a proxy that sets them
	TrustForwarded bool `yaml:"trust_forwarded"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	APIKey    string        `yaml:"api_key"`
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type SecurityConfig struct {
	// 16, 24 or 32 bytes; when set, secret settings are sealed at rest
	EncryptionKey string `yaml:"encryption_key"`
}

type DatabaseConfig struct {
	URL         string        `yaml:"url"`
	MaxConns    int32         `yaml:"max_conns"`
	AutoMigrate bool          `yaml:"auto_migrate"`
	StatsEvery  time.Duration `yaml:"stats_every"`
}

type RedisConfig struct {
	URL         string        `yaml:"url"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	TTL         time.Duration `yaml:"ttl"`          // finished task cache
	SettingsTTL time.Duration `yaml:"settings_ttl"` // settings cache
}

// StorageConfig is the baseline object storage setup. Values stored in the
// settings table under the storage_* keys take precedence.
type StorageConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Endpoint    string        `yaml:"endpoint"` // host[:port], path-style addressing
	Bucket      string        `yaml:"bucket"`
	AccessKey   string        `yaml:"access_key"`
	SecretKey   string        `yaml:"secret_key"`
	Region      string        `yaml:"region"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
}

type GenerationConfig struct {
	DefaultProvider string        `yaml:"default_provider"`
	BatchStagger    time.Duration `yaml:"batch_stagger"`
	MaxBatch        int           `yaml:"max_batch"`
	TaskTimeout     time.Duration `yaml:"task_timeout"`
	MaxInFlight     int           `yaml:"max_in_flight"`
	// non terminal tasks untouched for longer are failed by the sweep
	StaleAfter time.Duration `yaml:"stale_after"`
}

// ProviderConfig describes one generation backend.
type ProviderConfig struct {
	Name            string        `yaml:"name"`
	Mode            string        `yaml:"mode"`     // sync | async-poll
	Protocol        string        `yaml:"protocol"` // images | async | multimodal | gemini | openai
	Endpoint        string        `yaml:"endpoint"`
	EditEndpoint    string        `yaml:"edit_endpoint"`
	StatusEndpoint  string        `yaml:"status_endpoint"`
	CredentialKey   string        `yaml:"credential_key"`
	APIKey          string        `yaml:"api_key"` // fallback when the settings table has no value
	Models          []string      `yaml:"models"`
	MaxPromptLength int           `yaml:"max_prompt_length"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxPollAttempts int           `yaml:"max_poll_attempts"`
	StoragePrefix   string        `yaml:"storage_prefix"`
	Timeout         time.Duration `yaml:"timeout"`
	ConcurrentLimit int           `yaml:"concurrent_limit"`
	RatePerSecond   float64       `yaml:"rate_per_second"`
}

type RetentionConfig struct {
	Days          int           `yaml:"days"`
	Interval      time.Duration `yaml:"interval"`
	BatchSize     int           `yaml:"batch_size"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Log        LogConfig        `yaml:"log"`
	Admin      AdminConfig      `yaml:"admin"`
	Security   SecurityConfig   `yaml:"security"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Storage    StorageConfig    `yaml:"storage"`
	Generation GenerationConfig `yaml:"generation"`
	Providers  []ProviderConfig `yaml:"providers"`
	Retention  RetentionConfig  `yaml:"retention"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse decodes a YAML document, applies defaults and validates it.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Database.URL = dsn
	}

	// defaults
	if cfg.HTTP.Port <= 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 30 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Admin.TokenTTL <= 0 {
		cfg.Admin.TokenTTL = 30 * time.Minute
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Database.StatsEvery <= 0 {
		cfg.Database.StatsEvery = 15 * time.Second
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL, time.Hour)
	cfg.Redis.SettingsTTL = normalizeTTL(cfg.Redis.SettingsTTL, time.Minute)

	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Concurrency <= 0 {
		cfg.Storage.Concurrency = 4
	}
	if cfg.Storage.Timeout <= 0 {
		cfg.Storage.Timeout = 60 * time.Second
	}

	if cfg.Generation.BatchStagger <= 0 {
		cfg.Generation.BatchStagger = 500 * time.Millisecond
	}
	if cfg.Generation.MaxBatch <= 0 {
		cfg.Generation.MaxBatch = 4
	}
	if cfg.Generation.TaskTimeout <= 0 {
		cfg.Generation.TaskTimeout = 5 * time.Minute
	}
	if cfg.Generation.StaleAfter <= 0 {
		cfg.Generation.StaleAfter = 2 * cfg.Generation.TaskTimeout
	}

	if cfg.Retention.Days <= 0 {
		cfg.Retention.Days = 20
	}
	if cfg.Retention.Interval <= 0 {
		cfg.Retention.Interval = 6 * time.Hour
	}
	if cfg.Retention.BatchSize <= 0 {
		cfg.Retention.BatchSize = 200
	}
	if cfg.Retention.SweepInterval <= 0 {
		cfg.Retention.SweepInterval = 5 * time.Minute
	}

	if len(cfg.Providers) == 0 {
		cfg.Providers = DefaultProviders()
	}
	for i := range cfg.Providers {
		applyProviderDefaults(&cfg.Providers[i])
	}
	if cfg.Generation.DefaultProvider == "" {
		cfg.Generation.DefaultProvider = cfg.Providers[0].Name
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if n := len(cfg.Security.EncryptionKey); n != 0 && n != 16 && n != 24 && n != 32 {
		return nil, fmt.Errorf("security.encryption_key must be 16, 24 or 32 bytes, got %d", n)
	}
	if cfg.Generation.StaleAfter <= cfg.Generation.TaskTimeout {
		return nil, fmt.Errorf("generation.stale_after (%s) must exceed generation.task_timeout (%s)",
			cfg.Generation.StaleAfter, cfg.Generation.TaskTimeout)
	}
	if err := validateProviders(cfg.Providers, cfg.Generation.DefaultProvider); err != nil {
		return nil, err
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyProviderDefaults(p *ProviderConfig) {
	p.Name = strings.ToLower(strings.TrimSpace(p.Name))
	if p.Protocol == "" {
		p.Protocol = "images"
	}
	if p.Mode == "" {
		p.Mode = modeFor(p.Protocol)
	}
	if p.MaxPromptLength <= 0 {
		p.MaxPromptLength = 500
	}
	if p.PollInterval <= 0 {
		p.PollInterval = 3 * time.Second
	}
	if p.MaxPollAttempts <= 0 {
		p.MaxPollAttempts = 60
	}
	if p.StoragePrefix == "" {
		p.StoragePrefix = "output"
	}
	if p.Timeout <= 0 {
		p.Timeout = 120 * time.Second
	}
}

// modeFor is the only dispatch mode each protocol supports.
func modeFor(protocol string) string {
	if protocol == "async" {
		return "async-poll"
	}
	return "sync"
}

func validateProviders(ps []ProviderConfig, def string) error {
	seen := map[string]struct{}{}
	found := false
	for _, p := range ps {
		if p.Name == "" {
			return errors.New("providers[].name is required")
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("provider %q declared twice", p.Name)
		}
		seen[p.Name] = struct{}{}
		if len(p.Models) == 0 {
			return fmt.Errorf("provider %q has no models", p.Name)
		}
		switch p.Protocol {
		case "images", "async", "multimodal", "gemini", "openai":
		default:
			return fmt.Errorf("provider %q: unknown protocol %q", p.Name, p.Protocol)
		}
		if p.Mode != "sync" && p.Mode != "async-poll" {
			return fmt.Errorf("provider %q: unknown mode %q", p.Name, p.Mode)
		}
		if want := modeFor(p.Protocol); p.Mode != want {
			return fmt.Errorf("provider %q: protocol %q requires mode %q, got %q", p.Name, p.Protocol, want, p.Mode)
		}
		if p.Protocol == "async" && p.StatusEndpoint == "" {
			return fmt.Errorf("provider %q: status_endpoint is required for async protocol", p.Name)
		}
		if p.Name == def {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("generation.default_provider %q is not declared", def)
	}
	return nil
}

// DefaultProviders mirrors the stock deployment: a synchronous images
// endpoint, an asynchronous submit/poll endpoint and the Z-Image endpoint.
func DefaultProviders() []ProviderConfig {
	banana := []string{
		"nano-banana-2", "nano-banana-2-2k", "nano-banana-2-4k",
		"nano-banana-hd", "nano-banana-pro", "nano-banana", "gemini-3-pro-image-preview",
	}
	return []ProviderConfig{
		{
			Name:          "nanobanana",
			Protocol:      "images",
			Endpoint:      "https://api.nanobananaapi.dev/v1/images/generations",
			CredentialKey: "nano_banana_api_key",
			Models:        banana,
		},
		{
			Name:           "duomi",
			Protocol:       "async",
			Endpoint:       "https://duomiapi.com/api/gemini/nano-banana",
			EditEndpoint:   "https://duomiapi.com/api/gemini/nano-banana-edit",
			StatusEndpoint: "https://duomiapi.com/api/gemini/nano-banana",
			CredentialKey:  "duomi_api_key",
			Models:         banana,
		},
		{
			Name:            "zimage",
			Protocol:        "multimodal",
			Endpoint:        "https://dashscope.aliyuncs.com/api/v1/services/aigc/multimodal-generation/generation",
			CredentialKey:   "zimage_api_key",
			Models:          []string{"z-image-turbo"},
			MaxPromptLength: 800,
			StoragePrefix:   "zimage",
		},
	}
}

func normalizeTTL(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
