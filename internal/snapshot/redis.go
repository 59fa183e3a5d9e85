package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tiermem/internal/memory"
)

// DefaultRedisPrefix namespaces every key the redis backend writes.
const DefaultRedisPrefix = "tiermem:"

// RedisStore keeps each agent under {prefix}agent:{id} and tracks the set
// of agents in {prefix}agents.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStoreFromClient(client, cfg.Prefix, logger), nil
}

// NewRedisStoreFromClient wraps an existing client. Close closes it.
func NewRedisStoreFromClient(client redis.UniversalClient, prefix string, logger *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{client: client, keyPrefix: prefix, logger: logger.Named("snapshot")}
}

func (s *RedisStore) agentKey(agentID string) string {
	return s.keyPrefix + "agent:" + agentID
}

func (s *RedisStore) indexKey() string {
	return s.keyPrefix + "agents"
}

// Save writes the snapshot and indexes the agent in one transaction.
func (s *RedisStore) Save(ctx context.Context, agentID string, t memory.Tiers) error {
	if err := checkAgentID(agentID); err != nil {
		return err
	}
	data, err := encode(agentID, t)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.agentKey(agentID), data, 0)
	pipe.SAdd(ctx, s.indexKey(), agentID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}

	s.logger.Debug("snapshot saved", zap.String("agent_id", agentID), zap.Int("bytes", len(data)))
	return nil
}

// Load reads an agent's snapshot.
func (s *RedisStore) Load(ctx context.Context, agentID string) (memory.Tiers, error) {
	if err := checkAgentID(agentID); err != nil {
		return memory.Tiers{}, err
	}
	data, err := s.client.Get(ctx, s.agentKey(agentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return memory.Tiers{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, agentID)
	}
	if err != nil {
		return memory.Tiers{}, fmt.Errorf("loading snapshot: %w", err)
	}
	return decode(agentID, data)
}

// List returns the indexed agents, sorted.
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
