package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "disabled defaults", mutate: func(*Config) {}},
		{name: "disabled ignores garbage", mutate: func(c *Config) { c.Endpoint = ""; c.SampleRate = 7 }},
		{name: "enabled defaults", mutate: func(c *Config) { c.Enabled = true }},
		{name: "no endpoint", mutate: func(c *Config) { c.Enabled = true; c.Endpoint = "" }, wantErr: "endpoint is required"},
		{name: "no service", mutate: func(c *Config) { c.Enabled = true; c.ServiceName = "" }, wantErr: "service_name"},
		{name: "bad protocol", mutate: func(c *Config) { c.Enabled = true; c.Protocol = "udp" }, wantErr: "protocol must be"},
		{
			name:    "insecure remote",
			mutate:  func(c *Config) { c.Enabled = true; c.Endpoint = "otel.example.com:4317" },
			wantErr: "only allowed to a local endpoint",
		},
		{name: "secure remote", mutate: func(c *Config) { c.Enabled = true; c.Endpoint = "otel.example.com:4317"; c.Insecure = false }},
		{name: "loopback v6", mutate: func(c *Config) { c.Enabled = true; c.Endpoint = "[::1]:4317" }},
		{name: "loopback with scheme", mutate: func(c *Config) { c.Enabled = true; c.Endpoint = "http://127.0.0.1:4318" }},
		{name: "sample rate", mutate: func(c *Config) { c.Enabled = true; c.SampleRate = 1.5 }, wantErr: "sample_rate"},
		{
			name:    "export interval",
			mutate:  func(c *Config) { c.Enabled = true; c.Metrics.ExportInterval = 0 },
			wantErr: "export_interval",
		},
		{name: "shutdown timeout", mutate: func(c *Config) { c.Enabled = true; c.ShutdownTimeout = 0 }, wantErr: "shutdown_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
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

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, HealthStatus{}, tel.Health())
	assert.NotNil(t, tel.Tracer("x"))
	assert.NoError(t, tel.ForceFlush(context.Background()))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_Invalid(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = ""
	_, err := New(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "invalid telemetry config")
}

func TestNew_EnabledWithoutCollector(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = "127.0.0.1:1"
	cfg.Protocol = ProtocolHTTP
	cfg.ShutdownTimeout = 200 * time.Millisecond

	tel, err := New(context.Background(), cfg, nil)
	require.NoError(t, err, "exporters connect lazily, so a missing collector is not fatal")
	assert.True(t, tel.Health().Enabled)

	_, span := tel.Tracer("tiermem.test").Start(context.Background(), "op")
	span.End()
	// Export fails against the closed port; shutdown still returns.
	_ = tel.Shutdown(context.Background())
}

func TestNilTelemetry(t *testing.T) {
	var tel *Telemetry
	assert.Equal(t, HealthStatus{}, tel.Health())
	assert.NotNil(t, tel.Tracer("x"))
	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.NoError(t, tel.ForceFlush(context.Background()))
}

func TestTestTelemetry(t *testing.T) {
	tt := NewTestTelemetry(t)
	_, span := tt.Tracer("tiermem.test").Start(context.Background(), "memory.retrieve")
	span.SetAttributes(attribute.String("agent_id", "alice"), attribute.Int("results", 3))
	span.End()

	require.NotNil(t, tt.SpanByName("memory.retrieve"))
	assert.Nil(t, tt.SpanByName("missing"))
	tt.AssertSpanAttribute(t, "memory.retrieve", "agent_id", attribute.StringValue("alice"))
	tt.AssertSpanAttribute(t, "memory.retrieve", "results", attribute.IntValue(3))
}
