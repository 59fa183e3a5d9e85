package integration

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tiermem/internal/memory"
	"github.com/fyrsmithlabs/tiermem/internal/tiered"
)

// Snapshots is the persistence collaborator. snapshot.Store implements it.
type Snapshots interface {
	Save(ctx context.Context, agentID string, t memory.Tiers) error
	Load(ctx context.Context, agentID string) (memory.Tiers, error)
	List(ctx context.Context) ([]string, error)
}

// SaveAll writes a snapshot of every registered agent. Failures for one
// agent do not stop the others; all errors are returned joined.
func (r *Registry) SaveAll(ctx context.Context, st Snapshots) error {
	var saved int
	err := r.Each(func(s *tiered.Store) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := st.Save(ctx, s.AgentID(), s.Snapshot()); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		saved++
		return nil
	})
	r.logger.Info("snapshots saved", zap.Int("agents", saved), zap.Error(err))
	return err
}

// LoadAll restores every agent the snapshot store knows about, replacing
// the tiers of agents already registered. It returns the number restored.
func (r *Registry) LoadAll(ctx context.Context, st Snapshots) (int, error) {
	ids, err := st.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list snapshots: %w", err)
	}

	var errs []error
	restored := 0
	for _, id := range ids {
		if err := ValidateAgentID(id); err != nil {
			r.logger.Warn("skipping snapshot with invalid agent id", zap.String("agent_id", id))
			continue
		}
		tiers, err := st.Load(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("load snapshot %s: %w", id, err))
			continue
		}
		_ = r.Update(id, func(s *tiered.Store) error {
			s.Restore(tiers)
			return nil
		})
		restored++
	}

	r.logger.Info("snapshots loaded", zap.Int("agents", restored))
	return restored, errors.Join(errs...)
}

// LatestTick returns the newest entry timestamp across every agent, or 0
// when no agent holds a memory. A daemon resuming from snapshots starts its
// clock here so restored entries are not dated in the future.
func (r *Registry) LatestTick() int64 {
	var latest int64
	_ = r.Each(func(s *tiered.Store) error {
		for _, e := range s.Snapshot().All() {
			if e.Timestamp > latest {
				latest = e.Timestamp
			}
		}
		return nil
	})
	return latest
}
