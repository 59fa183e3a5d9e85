package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tiermem/internal/memory"
)

const (
	collectionPrefix = "tiermem-agent:"

	// EmbeddingDims is the width of the hashed keyword embedding. Dimension
	// 0 is a constant bias so no vector is ever zero.
	EmbeddingDims = 256

	metaLayer    = "layer"
	metaPosition = "position"
	metaType     = "type"
	metaEntry    = "entry"

	// scanQuery embeds to the bias vector alone; it is used to read every
	// document of a collection.
	scanQuery = "*"
)

// Embed maps text to a normalized hashed bag-of-keywords vector. Texts that
// share keywords have a higher cosine similarity.
func Embed(text string) []float32 {
	v := make([]float32, EmbeddingDims)
	v[0] = 1
	for _, k := range memory.ExtractKeywords(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(k))
		v[1+int(h.Sum32()%(EmbeddingDims-1))]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}

func embeddingFunc(_ context.Context, text string) ([]float32, error) {
	return Embed(text), nil
}

// Hit is one similarity search result.
type Hit struct {
	Entry      *memory.Entry `json:"entry"`
	Similarity float32       `json:"similarity"`
}

// ChromemStore keeps each agent in its own persistent chromem-go
// collection, one document per entry.
type ChromemStore struct {
	db     *chromem.DB
	logger *zap.Logger
}

// NewChromemStore opens or creates a persistent chromem-go database at dir.
func NewChromemStore(dir string, compress bool, logger *zap.Logger) (*ChromemStore, error) {
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
	db, err := chromem.NewPersistentDB(expanded, compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	logger.Info("chromem snapshot store initialized",
		zap.String("path", expanded),
		zap.Bool("compress", compress),
	)
	return &ChromemStore{db: db, logger: logger.Named("snapshot")}, nil
}

// Save replaces the agent's collection with the given tiers.
func (s *ChromemStore) Save(ctx context.Context, agentID string, t memory.Tiers) error {
	if err := checkAgentID(agentID); err != nil {
		return err
	}
	name := collectionPrefix + agentID

	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	col, err := s.db.GetOrCreateCollection(name, map[string]string{"agent_id": agentID}, embeddingFunc)
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}

	docs := make([]chromem.Document, 0, t.Len())
	for _, l := range memory.Layers() {
		for i, e := range *t.Tier(l) {
			if e == nil {
				continue
			}
			raw, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("encoding entry %s: %w", e.ID, err)
			}
			docs = append(docs, chromem.Document{
				ID: string(l) + ":" + strconv.Itoa(i),
				Metadata: map[string]string{
					metaLayer:    string(l),
					metaPosition: strconv.Itoa(i),
					metaType:     string(e.Type),
					metaEntry:    string(raw),
				},
				Embedding: Embed(e.Content),
				Content:   e.Content,
			})
		}
	}
	if len(docs) > 0 {
		if err := col.AddDocuments(ctx, docs, 1); err != nil {
			return fmt.Errorf("adding documents: %w", err)
		}
	}

	s.logger.Debug("snapshot saved", zap.String("agent_id", agentID), zap.Int("documents", len(docs)))
	return nil
}

// Load rebuilds the agent's tiers from its collection.
func (s *ChromemStore) Load(ctx context.Context, agentID string) (memory.Tiers, error) {
	if err := checkAgentID(agentID); err != nil {
		return memory.Tiers{}, err
	}
	col := s.db.GetCollection(collectionPrefix+agentID, embeddingFunc)
	if col == nil {
		return memory.Tiers{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, agentID)
	}

	var t memory.Tiers
	count := col.Count()
	if count == 0 {
		return t, nil
	}
	results, err := col.Query(ctx, scanQuery, count, nil, nil)
	if err != nil {
		return memory.Tiers{}, fmt.Errorf("reading collection: %w", err)
	}

	type placed struct {
		layer memory.Layer
		pos   int
		entry *memory.Entry
	}
	items := make([]placed, 0, len(results))
	for _, r := range results {
		e, err := entryFrom(r.Metadata)
		if err != nil {
			return memory.Tiers{}, fmt.Errorf("document %s: %w", r.ID, err)
		}
		pos, _ := strconv.Atoi(r.Metadata[metaPosition])
		items = append(items, placed{layer: memory.Layer(r.Metadata[metaLayer]), pos: pos, entry: e})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].pos < items[j].pos })
	for _, it := range items {
		seq := t.Tier(it.layer)
		if seq == nil {
			s.logger.Warn("skipping document with unknown layer",
				zap.String("agent_id", agentID),
				zap.String("layer", string(it.layer)),
			)
			continue
		}
		*seq = append(*seq, it.entry)
	}
	t.Normalize()
	return t, nil
}

// List returns the agents with a collection, sorted.
func (s *ChromemStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var ids []string
	for name := range s.db.ListCollections() {
		if id, ok := strings.CutPrefix(name, collectionPrefix); ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Search returns up to k of the agent's entries most similar to text as
// of the last Save.
func (s *ChromemStore) Search(ctx context.Context, agentID, text string, k int) ([]Hit, error) {
	if err := checkAgentID(agentID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	col := s.db.GetCollection(collectionPrefix+agentID, embeddingFunc)
	if col == nil {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, agentID)
	}
	count := col.Count()
	if count == 0 {
		return []Hit{}, nil
	}
	if k > count {
		k = count
	}

	results, err := col.Query(ctx, text, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}
	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		e, err := entryFrom(r.Metadata)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", r.ID, err)
		}
		e.Layer = memory.Layer(r.Metadata[metaLayer])
		hits = append(hits, Hit{Entry: e, Similarity: r.Similarity})
	}
	return hits, nil
}

// Close is a no-op; chromem-go writes through on every change.
func (s *ChromemStore) Close() error { return nil }

func entryFrom(meta map[string]string) (*memory.Entry, error) {
	raw, ok := meta[metaEntry]
	if !ok {
		return nil, fmt.Errorf("missing entry metadata")
	}
	var e memory.Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("decoding entry: %w", err)
	}
	return &e, nil
}
