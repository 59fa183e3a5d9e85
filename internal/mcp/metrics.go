package mcp

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tiermem/internal/integration"
	"github.com/fyrsmithlabs/tiermem/internal/services"
)

const instrumentationName = "github.com/fyrsmithlabs/tiermem/internal/mcp"

// Failure reasons recorded on tiermem.mcp.tool.errors_total.
const (
	reasonAgentNotFound     = "agent_not_found"
	reasonEntryNotFound     = "entry_not_found"
	reasonInvalidAgentID    = "invalid_agent_id"
	reasonInvalidQuery      = "invalid_query"
	reasonInvalidMemory     = "invalid_memory"
	reasonSearchUnavailable = "search_unavailable"
	reasonTimeout           = "timeout"
	reasonInternal          = "internal"
)

// Metrics holds the tool instruments. A nil instrument is skipped, so a
// meter that fails to create one only loses that series.
type Metrics struct {
	calls    metric.Int64Counter
	duration metric.Float64Histogram
	failures metric.Int64Counter
	inFlight metric.Int64UpDownCounter
}

// NewMetrics creates instruments on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	return newMetrics(otel.Meter(instrumentationName), logger)
}

func newMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	warn := func(name string, err error) {
		if err != nil {
			logger.Warn("failed to create MCP instrument", zap.String("instrument", name), zap.Error(err))
		}
	}

	m := &Metrics{}
	var err error
	m.calls, err = meter.Int64Counter("tiermem.mcp.tool.invocations_total",
		metric.WithDescription("Memory tool calls by tool"),
		metric.WithUnit("{invocation}"))
	warn("invocations_total", err)

	m.duration, err = meter.Float64Histogram("tiermem.mcp.tool.duration_seconds",
		metric.WithDescription("Memory tool call latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5))
	warn("duration_seconds", err)

	m.failures, err = meter.Int64Counter("tiermem.mcp.tool.errors_total",
		metric.WithDescription("Failed memory tool calls by tool and reason"),
		metric.WithUnit("{error}"))
	warn("errors_total", err)

	m.inFlight, err = meter.Int64UpDownCounter("tiermem.mcp.tool.active_requests",
		metric.WithDescription("Memory tool calls in progress"),
		metric.WithUnit("{request}"))
	warn("active_requests", err)

	return m
}

// track marks a call to tool as in flight. The returned func ends it and
// records the outcome.
func (m *Metrics) track(ctx context.Context, tool string) func(err error) {
	attrs := metric.WithAttributes(attribute.String("tool", tool))
	if m.inFlight != nil {
		m.inFlight.Add(ctx, 1, attrs)
	}
	start := time.Now()

	return func(err error) {
		if m.inFlight != nil {
			m.inFlight.Add(ctx, -1, attrs)
		}
		if m.calls != nil {
			m.calls.Add(ctx, 1, attrs)
		}
		if m.duration != nil {
			m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
		}
		if err != nil && m.failures != nil {
			m.failures.Add(ctx, 1, metric.WithAttributes(
				attribute.String("tool", tool),
				attribute.String("reason", failureReason(err)),
			))
		}
	}
}

// failureReason names why a memory tool call failed. Query errors are
// checked before the generic request error they wrap.
func failureReason(err error) string {
	switch {
	case errors.Is(err, integration.ErrAgentNotFound):
		return reasonAgentNotFound
	case errors.Is(err, services.ErrEntryNotFound):
		return reasonEntryNotFound
	case errors.Is(err, integration.ErrInvalidAgentID):
		return reasonInvalidAgentID
	case errors.Is(err, services.ErrInvalidQuery):
		return reasonInvalidQuery
	case errors.Is(err, services.ErrInvalidRequest):
		return reasonInvalidMemory
	case errors.Is(err, services.ErrSearchUnavailable):
		return reasonSearchUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return reasonTimeout
	default:
		return reasonInternal
	}
}
