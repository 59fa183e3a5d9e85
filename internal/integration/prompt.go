package integration

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/tiermem/internal/tiered"
)

// Prompt helper defaults.
const (
	DefaultContextCount = 5
	mentalStateCount    = 3

	importantAbove = 0.8
	minorBelow     = 0.3
)

// MentalStateSummary lists the agent's three most relevant memories under
// a "Recent experiences:" header, marking important and minor ones. It
// returns "" for an unknown agent or an empty store.
func MentalStateSummary(r *Registry, agentID string) string {
	var out string
	_ = r.View(agentID, func(s *tiered.Store) error {
		entries := tiered.RelevantMemories(s, mentalStateCount)
		if len(entries) == 0 {
			return nil
		}
		var sb strings.Builder
		sb.WriteString("Recent experiences:")
		for _, e := range entries {
			sb.WriteString("\n- ")
			switch {
			case e.Importance > importantAbove:
				sb.WriteString("[Important] ")
			case e.Importance < minorBelow:
				sb.WriteString("[Minor] ")
			}
			sb.WriteString(e.Content)
		}
		out = sb.String()
		return nil
	})
	return out
}

// MemoryContext renders up to count relevant memories for agentID as of
// tick now. An unknown agent yields "".
func MemoryContext(r *Registry, agentID string, count int, now int64) (string, error) {
	if count <= 0 {
		count = DefaultContextCount
	}
	var out string
	err := r.View(agentID, func(s *tiered.Store) error {
		out = tiered.MemoryContext(s, count, now)
		return nil
	})
	if errors.Is(err, ErrAgentNotFound) {
		return "", nil
	}
	return out, err
}

// GeneratePromptWithMemory prepends the agent's memory context to
// basePrompt, separated by a blank line. basePrompt is returned unchanged
// when there is no context.
func GeneratePromptWithMemory(r *Registry, agentID, basePrompt string, now int64) string {
	ctx, err := MemoryContext(r, agentID, DefaultContextCount, now)
	if err != nil || ctx == "" {
		return basePrompt
	}
	return ctx + "\n\n" + basePrompt
}

// MemorySummary is a one-line count of short and long term memories.
func MemorySummary(r *Registry, agentID string) string {
	var st tiered.Stats
	err := r.View(agentID, func(s *tiered.Store) error {
		st = s.Stats()
		return nil
	})
	if err != nil {
		return "No memory component"
	}
	return fmt.Sprintf("%s: %d short-term, %d long-term memories",
		agentID, st.Situational, st.EventLog+st.Archive)
}
