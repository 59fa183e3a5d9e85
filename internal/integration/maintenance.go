package integration

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tiermem/internal/memory"
	"github.com/fyrsmithlabs/tiermem/internal/tiered"
)

// DecayAll runs one decay pass on every agent and returns the summed
// evictions.
func (r *Registry) DecayAll() memory.DecayResult {
	var total memory.DecayResult
	_ = r.Each(func(s *tiered.Store) error {
		res := s.Decay()
		total.Situational += res.Situational
		total.EventLog += res.EventLog
		return nil
	})
	if total.Total() > 0 {
		r.logger.Debug("decay pass complete",
			zap.Int("agents", r.Len()),
			zap.Int("situational_evicted", total.Situational),
			zap.Int("event_log_evicted", total.EventLog),
		)
	}
	return total
}

// SummarizeAll drains Situational into EventLog for every agent.
func (r *Registry) SummarizeAll(ctx context.Context) {
	_ = r.Each(func(s *tiered.Store) error {
		s.Summarize(ctx)
		return nil
	})
	r.logger.Info("daily summarization complete", zap.Int("agents", r.Len()))
}
