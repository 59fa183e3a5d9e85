// Package integration connects per-agent memory stores to their callers.
//
// It provides:
//   - Registry: one tiered.Store per agent, with access serialized per agent
//   - ConversationRecorder: speaker and listener memories with duplicate suppression
//   - Prompt helpers that prepend memory context to a caller's prompt
//   - Snapshot helpers that save and restore every registered agent
package integration

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tiermem/internal/tiered"
)

// Errors for registry operations.
var (
	ErrAgentNotFound  = errors.New("agent not found")
	ErrInvalidAgentID = errors.New("invalid agent id: must start with a letter or digit and contain only letters, digits, spaces, dots, hyphens, underscores or apostrophes")
)

// agentIDPattern allows display names such as "Old Tom" or "Mary-Jane".
var agentIDPattern = regexp.MustCompile(`^[\p{L}\p{N}][\p{L}\p{N} ._'-]*$`)

const maxAgentIDLen = 128

// ValidateAgentID checks that id is usable as a store key and as a file name.
func ValidateAgentID(id string) error {
	if id == "" {
		return ErrInvalidAgentID
	}
	if len(id) > maxAgentIDLen {
		return fmt.Errorf("%w: too long (max %d)", ErrInvalidAgentID, maxAgentIDLen)
	}
	if !agentIDPattern.MatchString(id) {
		return ErrInvalidAgentID
	}
	if filepath.Clean(id) != id {
		return fmt.Errorf("%w: not a clean path element", ErrInvalidAgentID)
	}
	return nil
}

type agentStore struct {
	mu    sync.Mutex
	store *tiered.Store
}

// Registry owns one store per agent. Stores are created on first write.
//
// A Store is single-writer, so every access goes through Update or View,
// which hold that agent's mutex for the duration of the callback.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*agentStore
	cfg    tiered.Config
	opts   []tiered.Option
	logger *zap.Logger
}

// NewRegistry creates an empty registry. cfg and opts apply to every store
// it creates.
func NewRegistry(cfg tiered.Config, logger *zap.Logger, opts ...tiered.Option) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	storeOpts := append([]tiered.Option{tiered.WithLogger(logger)}, opts...)
	return &Registry{
		agents: make(map[string]*agentStore),
		cfg:    cfg,
		opts:   storeOpts,
		logger: logger.Named("registry"),
	}
}

// Update runs fn against the agent's store, creating the store if needed.
func (r *Registry) Update(agentID string, fn func(*tiered.Store) error) error {
	a, err := r.getOrCreate(agentID)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return fn(a.store)
}

// View runs fn against an existing agent's store for reading. It returns
// ErrAgentNotFound if the agent has no store yet.
func (r *Registry) View(agentID string, fn func(*tiered.Store) error) error {
	return r.withExisting(agentID, fn)
}

// Mutate runs fn against an existing agent's store to change it. Unlike
// Update it never creates a store; an unknown agent gives ErrAgentNotFound.
func (r *Registry) Mutate(agentID string, fn func(*tiered.Store) error) error {
	return r.withExisting(agentID, fn)
}

// withExisting holds the agent lock around fn. Stores are not safe for
// concurrent use, so reads and writes take the same lock.
func (r *Registry) withExisting(agentID string, fn func(*tiered.Store) error) error {
	if err := ValidateAgentID(agentID); err != nil {
		return err
	}
	r.mu.RLock()
	a, ok := r.agents[agentID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return fn(a.store)
}

// Has reports whether agentID has a store.
func (r *Registry) Has(agentID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[agentID]
	return ok
}

// Agents returns the registered agent ids in sorted order.
func (r *Registry) Agents() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Each runs fn against every store in agent id order; fn may change the
// store. Errors do not stop the walk; they are joined in the result.
func (r *Registry) Each(fn func(*tiered.Store) error) error {
	var errs []error
	for _, id := range r.Agents() {
		err := r.Mutate(id, fn)
		if errors.Is(err, ErrAgentNotFound) {
			continue // removed during the walk
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("agent %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Remove discards an agent's store. It reports whether the agent existed.
func (r *Registry) Remove(agentID string) bool {
	r.mu.Lock()
	a, ok := r.agents[agentID]
	delete(r.agents, agentID)
	r.mu.Unlock()
	if !ok {
		return false
	}
	a.mu.Lock()
	a.store.Release()
	a.mu.Unlock()
	r.logger.Info("agent removed", zap.String("agent_id", agentID))
	return true
}

func (r *Registry) getOrCreate(agentID string) (*agentStore, error) {
	if err := ValidateAgentID(agentID); err != nil {
		return nil, err
	}

	r.mu.RLock()
	a, ok := r.agents[agentID]
	r.mu.RUnlock()
	if ok {
		return a, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.agents[agentID]; ok {
		return a, nil
	}
	a = &agentStore{store: tiered.New(agentID, r.cfg, r.opts...)}
	r.agents[agentID] = a
	r.logger.Debug("agent registered", zap.String("agent_id", agentID))
	return a, nil
}
