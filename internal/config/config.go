// Package config loads tiermem daemon configuration.
//
// Sources, lowest precedence first:
//  1. Defaults (Default)
//  2. YAML file (~/.config/tiermem/config.yaml)
//  3. Environment variables prefixed TIERMEM_
//
// Every section reuses the configuration type of the package it configures,
// so a field added there is configurable here without further wiring.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fyrsmithlabs/tiermem/internal/cadence"
	"github.com/fyrsmithlabs/tiermem/internal/logging"
	"github.com/fyrsmithlabs/tiermem/internal/snapshot"
	"github.com/fyrsmithlabs/tiermem/internal/summarizer"
	"github.com/fyrsmithlabs/tiermem/internal/telemetry"
	"github.com/fyrsmithlabs/tiermem/internal/tiered"
)

// Config is the complete daemon configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Memory     tiered.Config    `koanf:"memory"`
	Summarizer SummarizerConfig `koanf:"summarizer"`
	Cadence    cadence.Config   `koanf:"cadence"`
	Snapshot   SnapshotConfig   `koanf:"snapshot"`
	Events     EventsConfig     `koanf:"events"`
	TagRules   TagRulesConfig   `koanf:"tagrules"`
	Logging    logging.Config   `koanf:"logging"`
	Telemetry  telemetry.Config `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SummarizerConfig selects the summarization provider and sizes the
// background pool.
type SummarizerConfig struct {
	Provider   string   `koanf:"provider"`
	Model      string   `koanf:"model"`
	BaseURL    string   `koanf:"base_url"`
	APIKey     Secret   `koanf:"api_key"`
	Timeout    Duration `koanf:"timeout"`
	MaxRetries int      `koanf:"max_retries"`
	Workers    int      `koanf:"workers"`
	QueueSize  int      `koanf:"queue_size"`

	// Retention is how many ticks an unconsumed background summary is
	// kept. Zero selects the scheduler default.
	Retention int64 `koanf:"retention"`
}

// ProviderConfig converts to the summarizer package's config.
func (c SummarizerConfig) ProviderConfig() summarizer.Config {
	return summarizer.Config{
		Provider:   c.Provider,
		Model:      c.Model,
		BaseURL:    c.BaseURL,
		APIKey:     c.APIKey.Value(),
		Timeout:    c.Timeout.Duration(),
		MaxRetries: c.MaxRetries,
	}
}

// SchedulerOptions returns the pool options.
func (c SummarizerConfig) SchedulerOptions() []summarizer.SchedulerOption {
	return []summarizer.SchedulerOption{
		summarizer.WithWorkers(c.Workers),
		summarizer.WithQueueSize(c.QueueSize),
		summarizer.WithTimeout(c.Timeout.Duration()),
		summarizer.WithRetention(c.Retention),
	}
}

// SnapshotConfig adds the save schedule to the backend config.
type SnapshotConfig struct {
	snapshot.Config `koanf:",squash"`

	// Schedule is a robfig/cron spec. An empty schedule disables periodic
	// saves; shutdown still saves.
	Schedule string `koanf:"schedule"`
}

// EventsConfig configures lifecycle event publishing.
type EventsConfig struct {
	// NATSURL enables the NATS publisher when set.
	NATSURL string `koanf:"nats_url"`
}

// TagRulesConfig points at an optional TOML rule file.
type TagRulesConfig struct {
	Path  string `koanf:"path"`
	Watch bool   `koanf:"watch"`
}

// Defaults.
const (
	DefaultHTTPHost         = "127.0.0.1"
	DefaultHTTPPort         = 9595
	DefaultShutdownTimeout  = 10 * time.Second
	DefaultSnapshotPath     = "~/.config/tiermem/snapshots"
	DefaultSnapshotSchedule = "@every 5m"
	DefaultWorkers          = 2
	DefaultQueueSize        = 64
	DefaultSummaryTimeout   = 30 * time.Second
)

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            DefaultHTTPHost,
			Port:            DefaultHTTPPort,
			ShutdownTimeout: Duration(DefaultShutdownTimeout),
		},
		Memory: tiered.DefaultConfig(),
		Summarizer: SummarizerConfig{
			Provider:   summarizer.ProviderDisabled,
			Timeout:    Duration(DefaultSummaryTimeout),
			MaxRetries: 2,
			Workers:    DefaultWorkers,
			QueueSize:  DefaultQueueSize,
		},
		Cadence: cadence.Config{
			TickInterval: cadence.DefaultTickInterval,
			TicksPerStep: 1,
			Intervals: cadence.Intervals{
				DecayEvery:   cadence.DefaultDecayEvery,
				DrainEvery:   cadence.DefaultDrainEvery,
				CleanupEvery: cadence.DefaultCleanupEvery,
			},
		},
		Snapshot: SnapshotConfig{
			Config: snapshot.Config{
				Backend: snapshot.BackendFile,
				Path:    DefaultSnapshotPath,
				Redis:   snapshot.RedisConfig{Prefix: snapshot.DefaultRedisPrefix},
			},
			Schedule: DefaultSnapshotSchedule,
		},
		Logging:   *logging.NewDefaultConfig(),
		Telemetry: *telemetry.NewDefaultConfig(),
	}
}

// applyDefaults fills fields a source explicitly zeroed.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultHTTPHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultHTTPPort
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}
	if cfg.Summarizer.Provider == "" {
		cfg.Summarizer.Provider = summarizer.ProviderDisabled
	}
	cfg.Summarizer.Provider = strings.ToLower(strings.TrimSpace(cfg.Summarizer.Provider))
	if cfg.Summarizer.Workers <= 0 {
		cfg.Summarizer.Workers = DefaultWorkers
	}
	if cfg.Summarizer.QueueSize <= 0 {
		cfg.Summarizer.QueueSize = DefaultQueueSize
	}
	if cfg.Summarizer.Timeout == 0 {
		cfg.Summarizer.Timeout = Duration(DefaultSummaryTimeout)
	}
	if cfg.Cadence.TickInterval <= 0 {
		cfg.Cadence.TickInterval = cadence.DefaultTickInterval
	}
	if cfg.Cadence.TicksPerStep <= 0 {
		cfg.Cadence.TicksPerStep = 1
	}
	if cfg.Snapshot.Backend == "" {
		cfg.Snapshot.Backend = snapshot.BackendFile
	}
	cfg.Snapshot.Backend = strings.ToLower(cfg.Snapshot.Backend)
	if cfg.Snapshot.Path == "" {
		cfg.Snapshot.Path = DefaultSnapshotPath
	}
	if cfg.Snapshot.Redis.Prefix == "" {
		cfg.Snapshot.Redis.Prefix = snapshot.DefaultRedisPrefix
	}
}

// Validate returns the first configuration error found.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.http_port must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Summarizer.Provider {
	case summarizer.ProviderDisabled:
	case summarizer.ProviderOpenAI, summarizer.ProviderGoogle, summarizer.ProviderAnthropic:
		if !c.Summarizer.APIKey.IsSet() {
			return fmt.Errorf("summarizer.api_key is required for provider %q", c.Summarizer.Provider)
		}
	case summarizer.ProviderLocal:
		if c.Summarizer.BaseURL == "" || c.Summarizer.Model == "" {
			return fmt.Errorf("summarizer.base_url and summarizer.model are required for provider %q", c.Summarizer.Provider)
		}
	default:
		return fmt.Errorf("summarizer.provider %q: %w", c.Summarizer.Provider, summarizer.ErrUnknownProvider)
	}
	if c.Summarizer.Retention < 0 {
		return fmt.Errorf("summarizer.retention must not be negative, got %d", c.Summarizer.Retention)
	}
	if c.Summarizer.BaseURL != "" {
		if u, err := url.Parse(c.Summarizer.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("summarizer.base_url must be an http(s) URL, got %q", c.Summarizer.BaseURL)
		}
	}

	switch c.Snapshot.Backend {
	case snapshot.BackendFile, snapshot.BackendChromem:
	case snapshot.BackendRedis:
		if c.Snapshot.Redis.Addr == "" {
			return fmt.Errorf("snapshot.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("snapshot.backend %q: %w", c.Snapshot.Backend, snapshot.ErrUnknownBackend)
	}
	if c.Snapshot.Schedule != "" {
		if _, err := cron.ParseStandard(c.Snapshot.Schedule); err != nil {
			return fmt.Errorf("snapshot.schedule %q: %w", c.Snapshot.Schedule, err)
		}
	}

	if c.Events.NATSURL != "" {
		u, err := url.Parse(c.Events.NATSURL)
		if err != nil || u.Host == "" {
			return fmt.Errorf("events.nats_url must be a URL like nats://host:4222, got %q", c.Events.NATSURL)
		}
	}

	if c.TagRules.Watch && c.TagRules.Path == "" {
		return fmt.Errorf("tagrules.watch requires tagrules.path")
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}
