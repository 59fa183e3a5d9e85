package integration

import (
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tiermem/internal/memory"
	"github.com/fyrsmithlabs/tiermem/internal/tiered"
)

// Conversation memory parameters.
const (
	SpeakerImportance  = 0.6
	ListenerImportance = 0.5

	// DefaultCleanupInterval is how often, in ticks, the seen cache is cleared.
	DefaultCleanupInterval = memory.TicksPerHour

	selfName     = "self"
	someoneName  = "someone"
	previewRunes = 50
)

// ConversationRecorder writes one conversation line into the memories of
// both participants. Identical lines within the same tick are recorded once.
type ConversationRecorder struct {
	registry *Registry
	clock    tiered.Clock
	logger   *zap.Logger
	interval int64

	mu          sync.Mutex
	seen        map[string]struct{}
	lastCleanup int64
}

// NewConversationRecorder creates a recorder that stores into registry and
// reads the current tick from clock.
func NewConversationRecorder(registry *Registry, clock tiered.Clock, logger *zap.Logger) *ConversationRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = tiered.ClockFunc(func() int64 { return 0 })
	}
	return &ConversationRecorder{
		registry: registry,
		clock:    clock,
		logger:   logger.Named("conversation"),
		interval: DefaultCleanupInterval,
		seen:     make(map[string]struct{}),
	}
}

// Record stores content as said by speaker to listener. The speaker
// remembers "Said to <listener>: ..." and a listener other than the speaker
// remembers "<speaker> said: ...". Either name may be empty: an empty
// speaker is remembered by the listener as "someone", and an empty listener
// means the speaker talked to themself.
//
// It reports false without error when the line was already recorded this
// tick or content is blank.
func (c *ConversationRecorder) Record(speaker, listener, content string) (bool, error) {
	if strings.TrimSpace(content) == "" {
		return false, nil
	}
	if speaker == "" && listener == "" {
		return false, fmt.Errorf("%w: speaker or listener required", ErrInvalidAgentID)
	}
	for _, id := range []string{speaker, listener} {
		if id == "" {
			continue
		}
		if err := ValidateAgentID(id); err != nil {
			return false, err
		}
	}

	now := c.clock.Now()
	if !c.markSeen(now, speaker, listener, content) {
		c.logger.Debug("skipped duplicate conversation",
			zap.String("speaker", speaker),
			zap.String("listener", listener),
			zap.Int64("tick", now),
		)
		return false, nil
	}

	if speaker != "" {
		to := listener
		if to == "" {
			to = selfName
		}
		err := c.registry.Update(speaker, func(s *tiered.Store) error {
			s.AddActive("Said to "+to+": "+content, memory.TypeConversation, SpeakerImportance, to)
			return nil
		})
		if err != nil {
			return false, fmt.Errorf("record for speaker: %w", err)
		}
	}

	if listener != "" && listener != speaker {
		from := speaker
		if from == "" {
			from = someoneName
		}
		err := c.registry.Update(listener, func(s *tiered.Store) error {
			s.AddActive(from+" said: "+content, memory.TypeConversation, ListenerImportance, from)
			return nil
		})
		if err != nil {
			return false, fmt.Errorf("record for listener: %w", err)
		}
	}

	c.logger.Info("conversation recorded",
		zap.String("speaker", speaker),
		zap.String("listener", listener),
		zap.String("preview", preview(content)),
	)
	return true, nil
}

// Cleanup clears the seen cache if the cleanup interval has passed since
// the last clear. It reports whether the cache was cleared.
func (c *ConversationRecorder) Cleanup(now int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleanupLocked(now)
}

// SeenCount returns the size of the seen cache.
func (c *ConversationRecorder) SeenCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *ConversationRecorder) markSeen(now int64, speaker, listener, content string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked(now)

	key := conversationKey(now, speaker, listener, content)
	if _, ok := c.seen[key]; ok {
		return false
	}
	c.seen[key] = struct{}{}
	return true
}

func (c *ConversationRecorder) cleanupLocked(now int64) bool {
	if now-c.lastCleanup < c.interval {
		return false
	}
	n := len(c.seen)
	clear(c.seen)
	c.lastCleanup = now
	if n > 0 {
		c.logger.Debug("conversation cache cleared", zap.Int("entries", n))
	}
	return true
}

func conversationKey(tick int64, speaker, listener, content string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(content))
	return fmt.Sprintf("%d\x00%s\x00%s\x00%x", tick, speaker, listener, h.Sum64())
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= previewRunes {
		return s
	}
	return string([]rune(s)[:previewRunes]) + "..."
}
