package snapshot

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tiermem/internal/memory"
)

const fileExt = ".json"

// FileStore keeps one JSON file per agent in a directory.
type FileStore struct {
	dir    string
	logger *zap.Logger
}

// NewFileStore creates the directory if needed. A leading ~ expands to the
// home directory.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("snapshot path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	expanded, err := expandHome(dir)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(expanded, 0o700); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", expanded, err)
	}
	logger.Info("file snapshot store initialized", zap.String("path", expanded))
	return &FileStore{dir: expanded, logger: logger.Named("snapshot")}, nil
}

// Save writes the snapshot to a temp file and renames it into place, so a
// reader never sees a partial file.
func (s *FileStore) Save(ctx context.Context, agentID string, t memory.Tiers) error {
	if err := checkAgentID(agentID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(agentID, t)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }() // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path(agentID)); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}

	s.logger.Debug("snapshot saved", zap.String("agent_id", agentID), zap.Int("bytes", len(data)))
	return nil
}

// Load reads an agent's snapshot.
func (s *FileStore) Load(ctx context.Context, agentID string) (memory.Tiers, error) {
	if err := checkAgentID(agentID); err != nil {
		return memory.Tiers{}, err
	}
	if err := ctx.Err(); err != nil {
		return memory.Tiers{}, err
	}
	data, err := os.ReadFile(s.path(agentID))
	if errors.Is(err, os.ErrNotExist) {
		return memory.Tiers{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, agentID)
	}
	if err != nil {
		return memory.Tiers{}, fmt.Errorf("reading snapshot: %w", err)
	}
	return decode(agentID, data)
}

// List returns the agents with a snapshot, sorted.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
			continue
		}
		id, err := url.PathUnescape(strings.TrimSuffix(name, fileExt))
		if err != nil {
			s.logger.Warn("skipping snapshot with undecodable name", zap.String("file", name))
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) path(agentID string) string {
	return filepath.Join(s.dir, url.PathEscape(agentID)+fileExt)
}

func expandHome(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}
