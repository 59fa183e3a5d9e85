package snapshot

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fyrsmithlabs/tiermem/internal/memory"
)

var tracer = otel.Tracer("tiermem.snapshot")

var (
	// OperationDuration tracks backend call latency.
	// Labels: backend, operation (save, load, list), result (success, not_found, error)
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tiermem",
			Subsystem: "snapshot",
			Name:      "operation_duration_seconds",
			Help:      "Duration of snapshot backend operations",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "operation", "result"},
	)
)

// instrumented wraps a Store with spans and latency metrics.
type instrumented struct {
	Store
	backend string
}

// Instrument wraps st so every call opens a span and records its latency.
func Instrument(st Store, backend string) Store {
	return &instrumented{Store: st, backend: backend}
}

// Unwrap returns the backend under an instrumented store, or st itself.
func Unwrap(st Store) Store {
	if in, ok := st.(*instrumented); ok {
		return in.Store
	}
	return st
}

func (s *instrumented) Save(ctx context.Context, agentID string, t memory.Tiers) error {
	ctx, span, done := s.start(ctx, "save", attribute.String("agent_id", agentID), attribute.Int("entries", t.Len()))
	err := s.Store.Save(ctx, agentID, t)
	done(span, err)
	return err
}

func (s *instrumented) Load(ctx context.Context, agentID string) (memory.Tiers, error) {
	ctx, span, done := s.start(ctx, "load", attribute.String("agent_id", agentID))
	t, err := s.Store.Load(ctx, agentID)
	done(span, err)
	return t, err
}

func (s *instrumented) List(ctx context.Context) ([]string, error) {
	ctx, span, done := s.start(ctx, "list")
	ids, err := s.Store.List(ctx)
	done(span, err)
	return ids, err
}

func (s *instrumented) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span, func(trace.Span, error)) {
	began := time.Now()
	attrs = append(attrs, attribute.String("backend", s.backend))
	ctx, span := tracer.Start(ctx, "snapshot."+op, trace.WithAttributes(attrs...))
	return ctx, span, func(span trace.Span, err error) {
		defer span.End()
		result := "success"
		switch {
		case errors.Is(err, ErrSnapshotNotFound):
			result = "not_found"
		case err != nil:
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		default:
			span.SetStatus(codes.Ok, "success")
		}
		OperationDuration.WithLabelValues(s.backend, op, result).Observe(time.Since(began).Seconds())
	}
}
