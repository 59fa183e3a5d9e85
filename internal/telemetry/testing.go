package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

// TestTelemetry records spans in memory.
type TestTelemetry struct {
	*Telemetry
	Recorder *tracetest.SpanRecorder
}

// NewTestTelemetry returns telemetry whose Tracer records spans in memory.
// Global providers are left alone.
func NewTestTelemetry(tb testing.TB) *TestTelemetry {
	tb.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	tb.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	cfg := NewDefaultConfig()
	cfg.Enabled = true
	return &TestTelemetry{
		Telemetry: &Telemetry{cfg: cfg, logger: zap.NewNop(), tracerProvider: tp},
		Recorder:  rec,
	}
}

// SpanByName returns the first ended span with name, or nil.
func (t *TestTelemetry) SpanByName(name string) sdktrace.ReadOnlySpan {
	for _, s := range t.Recorder.Ended() {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// AssertSpanAttribute fails tb unless the named span carries key=want.
func (t *TestTelemetry) AssertSpanAttribute(tb testing.TB, name, key string, want attribute.Value) {
	tb.Helper()
	s := t.SpanByName(name)
	if s == nil {
		tb.Fatalf("span %q not recorded", name)
		return
	}
	for _, kv := range s.Attributes() {
		if string(kv.Key) == key {
			if kv.Value != want {
				tb.Errorf("span %q attribute %s = %v, want %v", name, key, kv.Value.Emit(), want.Emit())
			}
			return
		}
	}
	tb.Errorf("span %q missing attribute %s", name, key)
}
