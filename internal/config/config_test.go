package config

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/tiermem/internal/snapshot"
	"github.com/fyrsmithlabs/tiermem/internal/summarizer"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "127.0.0.1:9595", cfg.Server.Addr())
	assert.Equal(t, 3, cfg.Memory.ActiveCapacity)
	assert.Equal(t, 20, cfg.Memory.SituationalCapacity)
	assert.Equal(t, 50, cfg.Memory.EventLogCapacity)
	assert.Equal(t, 0.01, cfg.Memory.Decay.Situational)
	assert.Equal(t, int64(2500), cfg.Cadence.DecayEvery)
	assert.Equal(t, int64(60000), cfg.Cadence.DrainEvery)
	assert.Equal(t, snapshot.BackendFile, cfg.Snapshot.Backend)
	assert.Equal(t, "@every 5m", cfg.Snapshot.Schedule)
	assert.Equal(t, summarizer.ProviderDisabled, cfg.Summarizer.Provider)
	assert.Equal(t, "tiermem", cfg.Logging.Fields["service"])
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "port zero", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "server.http_port"},
		{name: "port too large", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: "server.http_port"},
		{name: "unknown provider", mutate: func(c *Config) { c.Summarizer.Provider = "cohere" }, wantErr: "unknown summarizer provider"},
		{name: "provider without key", mutate: func(c *Config) { c.Summarizer.Provider = "openai" }, wantErr: "api_key is required"},
		{name: "local without base url", mutate: func(c *Config) { c.Summarizer.Provider = "local"; c.Summarizer.Model = "llama" }, wantErr: "base_url and summarizer.model"},
		{name: "local provider", mutate: func(c *Config) {
			c.Summarizer.Provider = "local"
			c.Summarizer.Model = "llama"
			c.Summarizer.BaseURL = "http://localhost:8080/v1"
		}},
		{name: "negative retention", mutate: func(c *Config) { c.Summarizer.Retention = -1 }, wantErr: "retention"},
		{
			name:   "provider with key",
			mutate: func(c *Config) { c.Summarizer.Provider = "anthropic"; c.Summarizer.APIKey = "k" },
		},
		{name: "bad base url", mutate: func(c *Config) { c.Summarizer.BaseURL = "ftp://x" }, wantErr: "base_url"},
		{name: "local base url", mutate: func(c *Config) { c.Summarizer.BaseURL = "http://localhost:11434" }},
		{name: "unknown backend", mutate: func(c *Config) { c.Snapshot.Backend = "sqlite" }, wantErr: "unknown snapshot backend"},
		{name: "redis without addr", mutate: func(c *Config) { c.Snapshot.Backend = "redis" }, wantErr: "snapshot.redis.addr"},
		{name: "bad schedule", mutate: func(c *Config) { c.Snapshot.Schedule = "every tuesday" }, wantErr: "snapshot.schedule"},
		{name: "no schedule", mutate: func(c *Config) { c.Snapshot.Schedule = "" }},
		{name: "cron schedule", mutate: func(c *Config) { c.Snapshot.Schedule = "*/10 * * * *" }},
		{name: "bad nats url", mutate: func(c *Config) { c.Events.NATSURL = "localhost" }, wantErr: "events.nats_url"},
		{name: "watch without path", mutate: func(c *Config) { c.TagRules.Watch = true }, wantErr: "tagrules.watch"},
		{name: "logging", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "logging:"},
		{
			name:    "telemetry",
			mutate:  func(c *Config) { c.Telemetry.Enabled = true; c.Telemetry.Endpoint = "" },
			wantErr: "telemetry:",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestSummarizerConfig_ProviderConfig(t *testing.T) {
	c := SummarizerConfig{
		Provider:   "google",
		Model:      "gemini-1.5-flash",
		APIKey:     "secret-key",
		Timeout:    Duration(5 * time.Second),
		MaxRetries: 4,
	}
	got := c.ProviderConfig()
	assert.Equal(t, "secret-key", got.APIKey)
	assert.Equal(t, 5*time.Second, got.Timeout)
	assert.Equal(t, 4, got.MaxRetries)
	assert.Len(t, c.SchedulerOptions(), 3)
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"TIERMEM_SERVER_HTTP_PORT", "server.http_port"},
		{"TIERMEM_SUMMARIZER_API_KEY", "summarizer.api_key"},
		{"TIERMEM_SNAPSHOT_REDIS_ADDR", "snapshot.redis.addr"},
		{"TIERMEM_SNAPSHOT_BACKEND", "snapshot.backend"},
		{"TIERMEM_MEMORY_DECAY_EVENT_LOG", "memory.decay.event_log"},
		{"TIERMEM_MEMORY_ACTIVE_CAPACITY", "memory.active_capacity"},
		{"TIERMEM_LOGGING_OUTPUT_OTEL", "logging.output.otel"},
		{"TIERMEM_LOGGING_LEVEL", "logging.level"},
		{"TIERMEM_TELEMETRY_METRICS_EXPORT_INTERVAL", "telemetry.metrics.export_interval"},
		{"TIERMEM_CADENCE_DRAIN_EVERY", "cadence.drain_every"},
		{"TIERMEM_DEBUG", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, envKey(tt.in))
		})
	}
}

func TestDuration(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))

	assert.Error(t, d.UnmarshalText([]byte("-5s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}

func TestSecret_Redacts(t *testing.T) {
	s := Secret("sk-live-abc")
	assert.Equal(t, "sk-live-abc", s.Value())
	assert.True(t, s.IsSet())
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.NotContains(t, fmt.Sprintf("%#v", s), "sk-live")

	data, err := json.Marshal(SummarizerConfig{APIKey: s})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-live")

	var empty Secret
	assert.False(t, empty.IsSet())
	assert.Equal(t, "", empty.String())
}
