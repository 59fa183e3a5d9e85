package summarizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/tiermem/internal/memory"
)

const instrumentationName = "github.com/fyrsmithlabs/tiermem/internal/summarizer"

func tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// instrumented wraps a provider with a shared rate limit, a span per call
// and, for clients without their own retry policy, a bounded retry loop.
type instrumented struct {
	provider  string
	next      Summarizer
	limiter   *rate.Limiter
	retries   int
	retryable func(error) bool
}

// instrument wraps next. A nil retryable disables retries in the wrapper;
// the OpenAI and Anthropic SDKs retry on their own.
func instrument(provider string, next Summarizer, retries int, retryable func(error) bool) *instrumented {
	if retryable == nil {
		retries = 0
	}
	return &instrumented{
		provider:  provider,
		next:      next,
		limiter:   rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		retries:   retries,
		retryable: retryable,
	}
}

func (s *instrumented) Summarize(ctx context.Context, entries []*memory.Entry, mode Mode) (string, error) {
	ctx, span := tracer().Start(ctx, "summarizer.request",
		trace.WithAttributes(
			attribute.String("provider", s.provider),
			attribute.String("mode", string(mode)),
			attribute.Int("entries", len(entries)),
		))
	defer span.End()

	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		got, err := s.next.Summarize(ctx, entries, mode)
		if err == nil {
			span.SetAttributes(attribute.Int("attempts", attempt+1))
			return got, nil
		}
		lastErr = err
		if s.retryable == nil || ctx.Err() != nil || errors.Is(err, errEmptyResponse) || !s.retryable(err) {
			break
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return "", fmt.Errorf("%s summarizer: %w", s.provider, lastErr)
}

func (s *instrumented) Available() bool { return s.next.Available() }

var _ Summarizer = (*instrumented)(nil)
