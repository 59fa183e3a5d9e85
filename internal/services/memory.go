package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tiermem/internal/integration"
	"github.com/fyrsmithlabs/tiermem/internal/logging"
	"github.com/fyrsmithlabs/tiermem/internal/memory"
	"github.com/fyrsmithlabs/tiermem/internal/snapshot"
	"github.com/fyrsmithlabs/tiermem/internal/tiered"
)

var (
	// ErrInvalidRequest is returned for malformed operation input.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidQuery is returned for a retrieval or search query that names
	// an unknown type or tier, or has no text. It wraps ErrInvalidRequest.
	ErrInvalidQuery = fmt.Errorf("%w: invalid query", ErrInvalidRequest)

	// ErrEntryNotFound is returned when an entry id is not in the agent's
	// store.
	ErrEntryNotFound = errors.New("memory entry not found")

	// ErrSearchUnavailable is returned by Search when the snapshot backend
	// has no similarity index.
	ErrSearchUnavailable = errors.New("similarity search unavailable")
)

// Defaults applied to AddRequest.
const (
	DefaultImportance = 0.5
	DefaultType       = memory.TypeObservation
	DefaultSearchK    = 5
	maxContentRunes   = 4000
)

var tracer = otel.Tracer("tiermem.services")

// Searcher finds entries similar to a text. *snapshot.ChromemStore
// implements it.
type Searcher interface {
	Search(ctx context.Context, agentID, text string, k int) ([]snapshot.Hit, error)
}

// Options wires a Memory service.
type Options struct {
	Registry  *integration.Registry
	Recorder  *integration.ConversationRecorder
	Clock     tiered.Clock
	Snapshots integration.Snapshots
	Searcher  Searcher
	Logger    *zap.Logger
}

// Memory implements the memory operations exposed over HTTP and MCP.
type Memory struct {
	registry  *integration.Registry
	recorder  *integration.ConversationRecorder
	clock     tiered.Clock
	snapshots integration.Snapshots
	searcher  Searcher
	log       *logging.Logger
}

// NewMemory creates the service. Registry is required; the rest are
// optional and disable the operations that need them.
func NewMemory(opts Options) (*Memory, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = tiered.ClockFunc(func() int64 { return 0 })
	}
	return &Memory{
		registry:  opts.Registry,
		recorder:  opts.Recorder,
		clock:     clock,
		snapshots: opts.Snapshots,
		searcher:  opts.Searcher,
		log:       logging.Wrap(opts.Logger).Named("services"),
	}, nil
}

// AddRequest describes a new memory.
type AddRequest struct {
	Content      string   `json:"content"`
	Type         string   `json:"type,omitempty"`
	Importance   *float64 `json:"importance,omitempty"`
	RelatedAgent string   `json:"related_agent,omitempty"`
}

// EditRequest changes an entry. Nil fields are left alone; Notes replaces
// the notes only when non-empty.
type EditRequest struct {
	Content *string `json:"content,omitempty"`
	Notes   string  `json:"notes,omitempty"`
	Pinned  *bool   `json:"pinned,omitempty"`
}

// Overview summarizes one agent.
type Overview struct {
	AgentID     string       `json:"agent_id"`
	Stats       tiered.Stats `json:"stats"`
	Summary     string       `json:"summary"`
	MentalState string       `json:"mental_state"`
}

// Now returns the current tick.
func (m *Memory) Now() int64 { return m.clock.Now() }

// Agents returns the known agent ids, sorted.
func (m *Memory) Agents() []string { return m.registry.Agents() }

// Add records a memory at the agent's Active head, creating the agent's
// store on first use.
func (m *Memory) Add(ctx context.Context, agentID string, req AddRequest) (*memory.Entry, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidRequest)
	}
	if len([]rune(content)) > maxContentRunes {
		return nil, fmt.Errorf("%w: content exceeds %d characters", ErrInvalidRequest, maxContentRunes)
	}
	typ := DefaultType
	if req.Type != "" {
		t, err := memory.ParseType(req.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		typ = t
	}
	importance := DefaultImportance
	if req.Importance != nil {
		importance = *req.Importance
	}

	var entry *memory.Entry
	err := m.registry.Update(agentID, func(s *tiered.Store) error {
		entry = s.AddActive(content, typ, importance, strings.TrimSpace(req.RelatedAgent))
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.log.Debug(logging.WithAgentID(ctx, agentID), "memory added",
		zap.String("entry_id", entry.ID),
		zap.String("type", string(entry.Type)),
	)
	return entry, nil
}

// List returns every entry of an existing agent.
func (m *Memory) List(agentID string) ([]*memory.Entry, error) {
	var out []*memory.Entry
	err := m.registry.View(agentID, func(s *tiered.Store) error {
		out = s.GetAll()
		return nil
	})
	return out, err
}

// Get returns one entry.
func (m *Memory) Get(agentID, id string) (*memory.Entry, error) {
	var out *memory.Entry
	err := m.registry.View(agentID, func(s *tiered.Store) error {
		e, ok := s.Get(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
		}
		out = e
		return nil
	})
	return out, err
}

// Retrieve runs a ranked query against an existing agent.
func (m *Memory) Retrieve(ctx context.Context, agentID string, q memory.Query) ([]*memory.Entry, error) {
	if q.Type != "" && !q.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown memory type %q", ErrInvalidQuery, q.Type)
	}
	if q.Layer != "" && !q.Layer.Valid() {
		return nil, fmt.Errorf("%w: unknown memory layer %q", ErrInvalidQuery, q.Layer)
	}
	_, span := tracer.Start(ctx, "memory.retrieve", trace.WithAttributes(attribute.String("agent_id", agentID)))
	defer span.End()

	var out []*memory.Entry
	err := m.registry.View(agentID, func(s *tiered.Store) error {
		out = s.Retrieve(q)
		return nil
	})
	span.SetAttributes(attribute.Int("results", len(out)))
	return out, err
}

// Context renders the agent's most relevant memories as prompt lines.
func (m *Memory) Context(agentID string, count int) (string, error) {
	if count <= 0 {
		count = integration.DefaultContextCount
	}
	var out string
	err := m.registry.View(agentID, func(s *tiered.Store) error {
		out = tiered.MemoryContext(s, count, m.clock.Now())
		return nil
	})
	return out, err
}

// Overview returns counts and the text summaries for an existing agent.
func (m *Memory) Overview(agentID string) (Overview, error) {
	ov := Overview{AgentID: agentID}
	err := m.registry.View(agentID, func(s *tiered.Store) error {
		ov.Stats = s.Stats()
		return nil
	})
	if err != nil {
		return Overview{}, err
	}
	ov.Summary = integration.MemorySummary(m.registry, agentID)
	ov.MentalState = integration.MentalStateSummary(m.registry, agentID)
	return ov, nil
}

// Edit applies req to one entry and returns the updated copy.
func (m *Memory) Edit(ctx context.Context, agentID, id string, req EditRequest) (*memory.Entry, error) {
	if req.Content == nil && req.Pinned == nil && req.Notes == "" {
		return nil, fmt.Errorf("%w: nothing to change", ErrInvalidRequest)
	}
	if req.Content != nil && strings.TrimSpace(*req.Content) == "" {
		return nil, fmt.Errorf("%w: content cannot be blank", ErrInvalidRequest)
	}

	var out *memory.Entry
	err := m.registry.Mutate(agentID, func(s *tiered.Store) error {
		cur, ok := s.Get(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
		}
		if req.Content != nil || req.Notes != "" {
			content := cur.Content
			if req.Content != nil {
				content = strings.TrimSpace(*req.Content)
			}
			s.Edit(id, content, req.Notes)
		}
		if req.Pinned != nil {
			s.Pin(id, *req.Pinned)
		}
		out, _ = s.Get(id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.log.Info(logging.WithAgentID(ctx, agentID), "memory edited", zap.String("entry_id", id))
	return out, nil
}

// Delete removes one entry.
func (m *Memory) Delete(ctx context.Context, agentID, id string) error {
	err := m.registry.Mutate(agentID, func(s *tiered.Store) error {
		if !s.Delete(id) {
			return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
		}
		return nil
	})
	if err == nil {
		m.log.Info(logging.WithAgentID(ctx, agentID), "memory deleted", zap.String("entry_id", id))
	}
	return err
}

// Summarize drains the agent's Situational tier now and returns the
// resulting counts.
func (m *Memory) Summarize(ctx context.Context, agentID string) (tiered.Stats, error) {
	ctx, span := tracer.Start(ctx, "memory.summarize", trace.WithAttributes(attribute.String("agent_id", agentID)))
	defer span.End()

	var stats tiered.Stats
	err := m.registry.Mutate(agentID, func(s *tiered.Store) error {
		s.Summarize(ctx)
		stats = s.Stats()
		return nil
	})
	return stats, err
}

// Decay runs one decay pass on the agent.
func (m *Memory) Decay(agentID string) (memory.DecayResult, error) {
	var res memory.DecayResult
	err := m.registry.Mutate(agentID, func(s *tiered.Store) error {
		res = s.Decay()
		return nil
	})
	return res, err
}

// Record stores a conversation line for both participants.
func (m *Memory) Record(ctx context.Context, speaker, listener, content string) (bool, error) {
	if m.recorder == nil {
		return false, fmt.Errorf("%w: conversation recording is not configured", ErrInvalidRequest)
	}
	if strings.TrimSpace(content) == "" {
		return false, fmt.Errorf("%w: content is required", ErrInvalidRequest)
	}
	recorded, err := m.recorder.Record(speaker, listener, content)
	if err != nil {
		return false, err
	}
	m.log.Debug(logging.WithAgentID(ctx, speaker), "conversation recorded",
		zap.String("listener", listener),
		zap.Bool("recorded", recorded),
	)
	return recorded, nil
}

// Search returns the agent's entries most similar to text. The agent is
// saved first so the index reflects its current tiers.
func (m *Memory) Search(ctx context.Context, agentID, text string, k int) ([]snapshot.Hit, error) {
	if m.searcher == nil {
		return nil, ErrSearchUnavailable
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: query text is required", ErrInvalidQuery)
	}
	if k <= 0 {
		k = DefaultSearchK
	}
	var tiers memory.Tiers
	if err := m.registry.View(agentID, func(s *tiered.Store) error {
		tiers = s.Snapshot()
		return nil
	}); err != nil {
		return nil, err
	}
	if m.snapshots != nil {
		if err := m.snapshots.Save(ctx, agentID, tiers); err != nil {
			return nil, fmt.Errorf("refreshing index: %w", err)
		}
	}
	return m.searcher.Search(ctx, agentID, text, k)
}

// Save persists every agent. It is a no-op without a snapshot store.
func (m *Memory) Save(ctx context.Context) error {
	if m.snapshots == nil {
		return nil
	}
	return m.registry.SaveAll(ctx, m.snapshots)
}
