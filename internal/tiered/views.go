package tiered

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/tiermem/internal/memory"
)

// ShortTermView returns copies of the Situational entries.
func ShortTermView(s *Store) []*memory.Entry {
	return memory.CloneEntries(s.tiers.Situational)
}

// LongTermView returns copies of EventLog followed by Archive.
func LongTermView(s *Store) []*memory.Entry {
	out := make([]*memory.Entry, 0, len(s.tiers.EventLog)+len(s.tiers.Archive))
	out = append(out, memory.CloneEntries(s.tiers.EventLog)...)
	out = append(out, memory.CloneEntries(s.tiers.Archive)...)
	return out
}

// RelevantMemories retrieves up to n entries with EventLog context.
func RelevantMemories(s *Store, n int) []*memory.Entry {
	return s.Retrieve(memory.Query{MaxCount: n, IncludeContext: true})
}

// MemoryContext renders the relevant memories as prompt lines of the form
// "- [Conversation] Said to Bob: hello (just now)". It returns "" when there
// is nothing to show.
func MemoryContext(s *Store, n int, now int64) string {
	entries := RelevantMemories(s, n)
	if len(entries) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, e := range entries {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "- [%s] %s (%s)", e.Type.Label(), e.Content, memory.TimeAgo(e.Timestamp, now))
	}
	return sb.String()
}
