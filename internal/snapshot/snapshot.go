// Package snapshot persists per-agent memory tiers.
//
// Three backends implement Store:
//   - file: one JSON document per agent, replaced atomically
//   - chromem: one chromem-go collection per agent, with similarity Search
//   - redis: one JSON value per agent plus an index set
//
// Every backend stores the same envelope, so a snapshot can be moved between
// backends by loading from one and saving to another.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tiermem/internal/memory"
)

// Errors for snapshot operations.
var (
	ErrSnapshotNotFound = errors.New("snapshot not found")
	ErrUnknownBackend   = errors.New("unknown snapshot backend")
	ErrInvalidAgentID   = errors.New("agent id cannot be empty")
)

// Backend names.
const (
	BackendFile    = "file"
	BackendChromem = "chromem"
	BackendRedis   = "redis"
)

// formatVersion is written into every envelope.
const formatVersion = 1

// Store saves and loads agent tiers.
type Store interface {
	Save(ctx context.Context, agentID string, t memory.Tiers) error
	Load(ctx context.Context, agentID string) (memory.Tiers, error)
	List(ctx context.Context) ([]string, error)
	Close() error
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

// Config selects and configures a backend.
type Config struct {
	Backend  string      `koanf:"backend"`
	Path     string      `koanf:"path"`
	Compress bool        `koanf:"compress"`
	Redis    RedisConfig `koanf:"redis"`
}

// Open creates the configured backend.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))

	var (
		st  Store
		err error
	)
	switch backend {
	case BackendFile, "":
		backend = BackendFile
		st, err = NewFileStore(cfg.Path, logger)
	case BackendChromem:
		st, err = NewChromemStore(cfg.Path, cfg.Compress, logger)
	case BackendRedis:
		st, err = NewRedisStore(ctx, cfg.Redis, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return Instrument(st, backend), nil
}

// envelope is the stored form of one agent's tiers.
type envelope struct {
	Version int          `json:"version"`
	AgentID string       `json:"agent_id"`
	SavedAt time.Time    `json:"saved_at"`
	Tiers   memory.Tiers `json:"tiers"`
}

func encode(agentID string, t memory.Tiers) ([]byte, error) {
	data, err := json.Marshal(envelope{
		Version: formatVersion,
		AgentID: agentID,
		SavedAt: time.Now().UTC(),
		Tiers:   t,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return data, nil
}

func decode(agentID string, data []byte) (memory.Tiers, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return memory.Tiers{}, fmt.Errorf("decoding snapshot for %s: %w", agentID, err)
	}
	if env.Version > formatVersion {
		return memory.Tiers{}, fmt.Errorf("snapshot for %s has unsupported version %d", agentID, env.Version)
	}
	env.Tiers.Normalize()
	return env.Tiers, nil
}

func checkAgentID(agentID string) error {
	if strings.TrimSpace(agentID) == "" {
		return ErrInvalidAgentID
	}
	return nil
}
