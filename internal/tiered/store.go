// Package tiered implements the four-tier memory store of a single agent.
//
// Entries enter at the Active head and move one way only:
//
//	Active -> Situational -> EventLog -> Archive
//
// Active overflow is promoted immediately. Situational is folded into
// EventLog summaries by Summarize, and EventLog overflow is folded into
// Archive by ArchiveOverflow. Summaries come from a background Scheduler
// when one has a result ready, otherwise from the deterministic rule
// summary.
//
// A Store is not safe for concurrent use. Callers that share a store
// across goroutines must serialize access; see the integration registry.
package tiered

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tiermem/internal/events"
	"github.com/fyrsmithlabs/tiermem/internal/memory"
	"github.com/fyrsmithlabs/tiermem/internal/summarizer"
)

// Default capacities.
const (
	DefaultActiveCapacity      = 3
	DefaultSituationalCapacity = 20
	DefaultEventLogCapacity    = 50

	// backlogFactor scales Situational capacity to the backlog warning level.
	backlogFactor = 1.5

	summaryBoost = 0.2
	archiveBoost = 0.3
)

// Config sets tier capacities and decay rates.
type Config struct {
	ActiveCapacity      int               `koanf:"active_capacity"`
	SituationalCapacity int               `koanf:"situational_capacity"`
	EventLogCapacity    int               `koanf:"event_log_capacity"`
	Decay               memory.DecayRates `koanf:"decay"`
}

// DefaultConfig returns the standard capacities and decay rates.
func DefaultConfig() Config {
	return Config{
		ActiveCapacity:      DefaultActiveCapacity,
		SituationalCapacity: DefaultSituationalCapacity,
		EventLogCapacity:    DefaultEventLogCapacity,
		Decay:               memory.DefaultDecayRates(),
	}
}

// normalized clamps every capacity to at least 1.
func (c Config) normalized() Config {
	if c.ActiveCapacity < 1 {
		c.ActiveCapacity = 1
	}
	if c.SituationalCapacity < 1 {
		c.SituationalCapacity = 1
	}
	if c.EventLogCapacity < 1 {
		c.EventLogCapacity = 1
	}
	return c
}

// Scheduler is the background summarization collaborator.
// *summarizer.Scheduler implements it.
type Scheduler interface {
	Submit(ctx context.Context, fingerprint string, entries []*memory.Entry, mode summarizer.Mode)
	TryConsume(fingerprint string) (string, bool)
	Available() bool
}

// Clock reports the current simulation tick.
type Clock interface {
	Now() int64
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() int64

// Now calls f.
func (f ClockFunc) Now() int64 { return f() }

// Stats holds per-tier entry counts.
type Stats struct {
	Active      int `json:"active"`
	Situational int `json:"situational"`
	EventLog    int `json:"event_log"`
	Archive     int `json:"archive"`
}

// Total returns the number of entries across all tiers.
func (s Stats) Total() int {
	return s.Active + s.Situational + s.EventLog + s.Archive
}

// Store owns the four tiers of one agent.
type Store struct {
	agentID   string
	cfg       Config
	tiers     memory.Tiers
	tagger    *memory.Tagger
	scheduler Scheduler
	clock     Clock
	publisher events.Publisher
	logger    *zap.Logger

	gauges gaugeState
}

// Option configures a Store.
type Option func(*Store)

// WithTagger sets the tagger. The default uses memory.DefaultRules.
func WithTagger(t *memory.Tagger) Option {
	return func(s *Store) {
		if t != nil {
			s.tagger = t
		}
	}
}

// WithScheduler sets the background summarization scheduler. Without one,
// every summary is a rule summary and archive overflow is discarded.
func WithScheduler(sch Scheduler) Option {
	return func(s *Store) { s.scheduler = sch }
}

// WithClock sets the tick source used for entry timestamps.
func WithClock(c Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithPublisher sets the lifecycle event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(s *Store) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates an empty store for agentID. Capacities below 1 are clamped
// to 1.
func New(agentID string, cfg Config, opts ...Option) *Store {
	s := &Store{
		agentID:   agentID,
		cfg:       cfg.normalized(),
		tagger:    memory.NewTagger(nil),
		clock:     ClockFunc(func() int64 { return 0 }),
		publisher: events.Noop{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("tiered").With(zap.String("agent_id", agentID))
	return s
}

// AgentID returns the owning agent.
func (s *Store) AgentID() string { return s.agentID }

// Config returns the effective configuration.
func (s *Store) Config() Config { return s.cfg }

// AddActive records a new event at the Active head and returns a copy of
// the stored entry. If Active overflows, its oldest entry is promoted to
// the Situational head.
func (s *Store) AddActive(content string, typ memory.Type, importance float64, relatedAgent string) *memory.Entry {
	e := memory.NewEntry(content, typ, importance, relatedAgent, s.clock.Now())
	s.tagger.Tag(e)

	s.tiers.Active = prepend(s.tiers.Active, e)
	s.publish(events.Event{Kind: events.KindAdded, EntryID: e.ID, Layer: string(memory.LayerActive)})

	if len(s.tiers.Active) > s.cfg.ActiveCapacity {
		last := len(s.tiers.Active) - 1
		oldest := s.tiers.Active[last]
		s.tiers.Active[last] = nil
		s.tiers.Active = s.tiers.Active[:last]
		s.promote(oldest)
	}

	s.syncGauges()
	return e.Clone()
}

// promote moves e to the Situational head.
func (s *Store) promote(e *memory.Entry) {
	e.Layer = memory.LayerSituational
	s.tiers.Situational = prepend(s.tiers.Situational, e)
	s.publish(events.Event{Kind: events.KindPromoted, EntryID: e.ID, Layer: string(memory.LayerSituational)})

	if float64(len(s.tiers.Situational)) > float64(s.cfg.SituationalCapacity)*backlogFactor {
		s.logger.Warn("situational backlog above threshold, waiting for summarization",
			zap.Int("situational", len(s.tiers.Situational)),
			zap.Int("capacity", s.cfg.SituationalCapacity),
		)
	}
}

// Summarize folds Situational into EventLog, one summary entry per memory
// type present, then archives EventLog overflow. Situational is emptied.
// An empty Situational tier makes this a no-op.
func (s *Store) Summarize(ctx context.Context) {
	if len(s.tiers.Situational) == 0 {
		s.logger.Debug("no situational memories to summarize")
		return
	}

	groups := groupByType(s.tiers.Situational)
	var ai, rule int
	for _, g := range groups {
		text, fromAI := s.summaryFor(ctx, g.entries, summarizer.ModeStandard)
		source := memory.TagAISummary
		if fromAI {
			ai++
		} else {
			text = summarizer.RuleSummary(g.typ, g.entries)
			source = memory.TagRuleSummary
			rule++
		}
		if text == "" {
			continue
		}

		summary := &memory.Entry{
			ID:         uuid.NewString(),
			Content:    text,
			Type:       g.typ,
			Layer:      memory.LayerEventLog,
			Importance: memory.Clamp01(averageImportance(g.entries) + summaryBoost),
			Activity:   1.0,
			Timestamp:  s.clock.Now(),
		}
		for _, e := range g.entries {
			for _, k := range e.Keywords {
				summary.AddKeyword(k)
			}
			for _, t := range e.Tags {
				summary.AddTag(t)
			}
		}
		summary.AddTag(source)

		s.tiers.EventLog = prepend(s.tiers.EventLog, summary)
		SummariesTotal.WithLabelValues(source).Inc()
		s.publish(events.Event{
			Kind:    events.KindSummarized,
			EntryID: summary.ID,
			Layer:   string(memory.LayerEventLog),
			Source:  source,
			Count:   len(g.entries),
		})
	}

	s.logger.Info("situational memories summarized",
		zap.Int("entries", len(s.tiers.Situational)),
		zap.Int("groups", len(groups)),
		zap.Int("ai", ai),
		zap.Int("rule", rule),
	)

	clear(s.tiers.Situational)
	s.tiers.Situational = s.tiers.Situational[:0]
	s.syncGauges()

	s.ArchiveOverflow(ctx)
}

// ArchiveOverflow folds EventLog entries beyond capacity into Archive, one
// deep-archive entry per memory type. Groups without a ready background
// result are discarded. The overflowed entries are removed either way.
func (s *Store) ArchiveOverflow(ctx context.Context) {
	capacity := s.cfg.EventLogCapacity
	if len(s.tiers.EventLog) <= capacity {
		return
	}

	overflow := s.tiers.EventLog[capacity:]
	groups := groupByType(overflow)
	archived, dropped := 0, 0
	for _, g := range groups {
		text, ok := s.summaryFor(ctx, g.entries, summarizer.ModeDeepArchive)
		if !ok || text == "" {
			dropped += len(g.entries)
			continue
		}

		entry := &memory.Entry{
			ID:         uuid.NewString(),
			Content:    text,
			Type:       g.typ,
			Layer:      memory.LayerArchive,
			Importance: memory.Clamp01(averageImportance(g.entries) + archiveBoost),
			Activity:   1.0,
			Timestamp:  s.clock.Now(),
		}
		entry.AddTag(memory.TagDeepArchive)
		entry.AddTag(fmt.Sprintf("from-%d-eventlog", len(g.entries)))

		s.tiers.Archive = prepend(s.tiers.Archive, entry)
		archived++
		SummariesTotal.WithLabelValues(memory.TagDeepArchive).Inc()
		s.publish(events.Event{
			Kind:    events.KindArchived,
			EntryID: entry.ID,
			Layer:   string(memory.LayerArchive),
			Count:   len(g.entries),
		})
	}

	removed := len(overflow)
	clear(overflow)
	s.tiers.EventLog = s.tiers.EventLog[:capacity]
	if dropped > 0 {
		EvictionsTotal.WithLabelValues(string(memory.LayerEventLog)).Add(float64(dropped))
	}

	s.logger.Info("event log overflow archived",
		zap.Int("removed", removed),
		zap.Int("archived_groups", archived),
		zap.Int("dropped_entries", dropped),
	)
	s.syncGauges()
}

// summaryFor submits entries to the scheduler and returns a ready result.
// It reports false when no scheduler is available or no result is ready.
func (s *Store) summaryFor(ctx context.Context, entries []*memory.Entry, mode summarizer.Mode) (string, bool) {
	if s.scheduler == nil || !s.scheduler.Available() {
		return "", false
	}
	fp := summarizer.Fingerprint(s.agentID, entries, mode)
	s.scheduler.Submit(ctx, fp, entries, mode)
	text, ok := s.scheduler.TryConsume(fp)
	if !ok || text == "" {
		return "", false
	}
	return text, true
}

// Retrieve returns copies of the entries selected by q.
func (s *Store) Retrieve(q memory.Query) []*memory.Entry {
	return memory.CloneEntries(memory.Retrieve(s.tiers, q, s.cfg.ActiveCapacity))
}

// Decay runs one decay pass and reports the evictions.
func (s *Store) Decay() memory.DecayResult {
	res := memory.Decay(&s.tiers, s.cfg.Decay)
	if res.Situational > 0 {
		EvictionsTotal.WithLabelValues(string(memory.LayerSituational)).Add(float64(res.Situational))
	}
	if res.EventLog > 0 {
		EvictionsTotal.WithLabelValues(string(memory.LayerEventLog)).Add(float64(res.EventLog))
	}
	if res.Total() > 0 {
		s.logger.Debug("decay evicted memories",
			zap.Int("situational", res.Situational),
			zap.Int("event_log", res.EventLog),
		)
		s.publish(events.Event{Kind: events.KindDecayed, Count: res.Total()})
	}
	s.syncGauges()
	return res
}

// Edit replaces an entry's content, marks it user-edited and restores its
// activity. Notes are replaced only when non-empty. It reports whether the
// id was found.
func (s *Store) Edit(id, content, notes string) bool {
	e, layer, _ := s.tiers.Find(id)
	if e == nil {
		return false
	}
	e.Content = content
	e.UserEdited = true
	e.Activity = 1.0
	if notes != "" {
		e.Notes = notes
	}
	s.tagger.Tag(e)
	s.publish(events.Event{Kind: events.KindEdited, EntryID: id, Layer: string(layer)})
	return true
}

// Pin sets or clears the pinned flag. It reports whether the id was found.
func (s *Store) Pin(id string, pinned bool) bool {
	e, layer, _ := s.tiers.Find(id)
	if e == nil {
		return false
	}
	e.Pinned = pinned
	s.publish(events.Event{Kind: events.KindPinned, EntryID: id, Layer: string(layer)})
	return true
}

// Delete removes an entry. It reports whether the id was found.
func (s *Store) Delete(id string) bool {
	_, layer, idx := s.tiers.Find(id)
	if idx < 0 {
		return false
	}
	seq := s.tiers.Tier(layer)
	*seq = slices.Delete(*seq, idx, idx+1)
	s.publish(events.Event{Kind: events.KindDeleted, EntryID: id, Layer: string(layer)})
	s.syncGauges()
	return true
}

// Get returns a copy of the entry with id, if present.
func (s *Store) Get(id string) (*memory.Entry, bool) {
	e, _, _ := s.tiers.Find(id)
	if e == nil {
		return nil, false
	}
	return e.Clone(), true
}

// GetAll returns copies of every entry: Active, Situational, EventLog, then
// Archive.
func (s *Store) GetAll() []*memory.Entry {
	return memory.CloneEntries(s.tiers.All())
}

// ClearActive promotes every Active entry to Situational, oldest first, so
// the newest ends up at the Situational head.
func (s *Store) ClearActive() {
	for i := len(s.tiers.Active) - 1; i >= 0; i-- {
		s.promote(s.tiers.Active[i])
	}
	s.tiers.Active = nil
	s.syncGauges()
}

// ClearAll empties Active, Situational and EventLog. Archive is kept.
func (s *Store) ClearAll() {
	s.tiers.Active = nil
	s.tiers.Situational = nil
	s.tiers.EventLog = nil
	s.syncGauges()
}

// ClearShortTerm empties Active and Situational.
func (s *Store) ClearShortTerm() {
	s.tiers.Active = nil
	s.tiers.Situational = nil
	s.syncGauges()
}

// ClearLongTerm empties EventLog. Archive is kept.
func (s *Store) ClearLongTerm() {
	s.tiers.EventLog = nil
	s.syncGauges()
}

// Stats returns per-tier counts.
func (s *Store) Stats() Stats {
	return Stats{
		Active:      len(s.tiers.Active),
		Situational: len(s.tiers.Situational),
		EventLog:    len(s.tiers.EventLog),
		Archive:     len(s.tiers.Archive),
	}
}

// Snapshot returns a deep copy of the tiers for persistence.
func (s *Store) Snapshot() memory.Tiers {
	return s.tiers.Clone()
}

// Restore replaces the tiers with a copy of t. Layers are corrected to
// match their sequence and scores are re-clamped.
func (s *Store) Restore(t memory.Tiers) {
	s.tiers = t.Clone()
	s.tiers.Normalize()
	s.syncGauges()
}

// Release zeroes this store's contribution to the entry gauges. Call it
// when discarding a store.
func (s *Store) Release() {
	s.gauges.release()
}

func (s *Store) publish(ev events.Event) {
	ev.AgentID = s.agentID
	ev.Tick = s.clock.Now()
	if err := s.publisher.Publish(context.Background(), ev); err != nil {
		s.logger.Warn("failed to publish memory event",
			zap.String("kind", string(ev.Kind)),
			zap.Error(err),
		)
	}
}

type typeGroup struct {
	typ     memory.Type
	entries []*memory.Entry
}

// groupByType buckets entries by type in first-seen order.
func groupByType(entries []*memory.Entry) []typeGroup {
	index := make(map[memory.Type]int)
	var groups []typeGroup
	for _, e := range entries {
		i, ok := index[e.Type]
		if !ok {
			i = len(groups)
			index[e.Type] = i
			groups = append(groups, typeGroup{typ: e.Type})
		}
		groups[i].entries = append(groups[i].entries, e)
	}
	return groups
}

func averageImportance(entries []*memory.Entry) float64 {
	if len(entries) == 0 {
		return 0
	}
	sum := 0.0
	for _, e := range entries {
		sum += e.Importance
	}
	return sum / float64(len(entries))
}

func prepend(seq []*memory.Entry, e *memory.Entry) []*memory.Entry {
	seq = append(seq, nil)
	copy(seq[1:], seq)
	seq[0] = e
	return seq
}
