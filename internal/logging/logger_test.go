package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func bufferLogger(t *testing.T, cfg *Config) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l, err := newLogger(cfg, nil, zapcore.AddSync(&buf))
	require.NoError(t, err)
	return l, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]interface{}{}
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "bad format", mutate: func(c *Config) { c.Format = "xml" }, wantErr: "format must be"},
		{name: "no output", mutate: func(c *Config) { c.Output.Stdout = false }, wantErr: "at least one output"},
		{name: "zero tick", mutate: func(c *Config) { c.Sampling.Tick = 0 }, wantErr: "sampling tick"},
		{name: "zero initial", mutate: func(c *Config) { c.Sampling.Initial = 0 }, wantErr: "sampling initial"},
		{name: "sampling off ignores tick", mutate: func(c *Config) { c.Sampling = SamplingConfig{} }},
		{name: "bad pattern", mutate: func(c *Config) { c.Redaction.Patterns = []string{"("} }, wantErr: "invalid redaction pattern"},
		{name: "long pattern", mutate: func(c *Config) { c.Redaction.Patterns = []string{strings.Repeat("a", 201)} }, wantErr: "too long"},
		{name: "empty field value", mutate: func(c *Config) { c.Fields["env"] = "" }, wantErr: `field "env"`},
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

func TestLogger_ContextFieldsAndService(t *testing.T) {
	l, buf := bufferLogger(t, NewDefaultConfig())

	ctx := WithRequestID(WithAgentID(context.Background(), "Old Tom"), "req-1")
	l.Info(ctx, "memory added", zap.String("layer", "active"))
	l.Debug(ctx, "dropped below level")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "memory added", lines[0]["msg"])
	assert.Equal(t, "tiermem", lines[0]["service"])
	assert.Equal(t, "Old Tom", lines[0]["agent_id"])
	assert.Equal(t, "req-1", lines[0]["request_id"])
	assert.Equal(t, "active", lines[0]["layer"])
	assert.Contains(t, lines[0], "caller")
}

func TestLogger_Redaction(t *testing.T) {
	l, buf := bufferLogger(t, NewDefaultConfig())
	ctx := context.Background()

	l.With(zap.String("api_key", "sk-live-123")).Info(ctx, "with field")
	l.Info(ctx, "per entry",
		zap.String("Authorization", "Bearer abc"),
		zap.String("note", "header was Bearer abc.def"),
		zap.String("plain", "hello"),
	)
	l.Info(ctx, "helpers",
		RedactedString("raw", "12345"),
		Secret("key", secretString("abcd")),
	)

	out := buf.String()
	assert.NotContains(t, out, "sk-live-123")
	assert.NotContains(t, out, "abc.def")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 3)
	assert.Equal(t, redacted, lines[0]["api_key"])
	assert.Equal(t, redacted, lines[1]["Authorization"])
	assert.Equal(t, "header was "+redacted, lines[1]["note"])
	assert.Equal(t, "hello", lines[1]["plain"])
	assert.Equal(t, "[REDACTED:5]", lines[2]["raw"])
	assert.Equal(t, "[REDACTED:4]", lines[2]["key"])
}

type secretString string

func (s secretString) Value() string { return string(s) }

func TestLogger_RedactionDisabled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Redaction.Enabled = false
	l, buf := bufferLogger(t, cfg)

	l.Info(context.Background(), "token", zap.String("token", "visible"))
	assert.Contains(t, buf.String(), "visible")
}

func TestLogger_Sampling(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Sampling = SamplingConfig{Enabled: true, Tick: time.Hour, Initial: 2, Thereafter: 0}
	l, buf := bufferLogger(t, cfg)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		l.Info(ctx, "flood")
	}
	for i := 0; i < 5; i++ {
		l.Error(ctx, "failure")
	}

	var floods, failures int
	for _, line := range decodeLines(t, buf) {
		switch line["msg"] {
		case "flood":
			floods++
		case "failure":
			failures++
		}
	}
	assert.Equal(t, 2, floods)
	assert.Equal(t, 5, failures, "errors are never sampled")
}

func TestLogger_TraceCorrelation(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	fields := ContextFields(ctx)
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"trace_id", "span_id"}, keys)
}

func TestNewLogger_Errors(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output = OutputConfig{OTEL: true}
	_, err := NewLogger(cfg, nil)
	assert.ErrorContains(t, err, "no log output available")

	cfg = NewDefaultConfig()
	cfg.Format = "yaml"
	_, err = NewLogger(cfg, nil)
	assert.ErrorContains(t, err, "invalid logging config")
}

func TestContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, ContextFields(ctx))
	assert.Equal(t, ctx, WithAgentID(ctx, ""))
	assert.Equal(t, ctx, WithRequestID(ctx, ""))

	tl := NewTestLogger()
	ctx = WithLogger(ctx, tl.Logger)
	FromContext(ctx).Warn(WithAgentID(ctx, "alice"), "careful")
	tl.AssertLogged(t, zapcore.WarnLevel, "careful")
	tl.AssertField(t, "careful", "agent_id", "alice")
	tl.AssertNotLogged(t, zapcore.ErrorLevel, "careful")

	assert.NotNil(t, FromContext(context.Background()))
}
