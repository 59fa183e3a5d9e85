package summarizer

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/tiermem/internal/memory"
)

// Rule summary limits, in runes and groups.
const (
	conversationPrefix = 15
	actionPrefix       = 15
	otherPrefix        = 20
	displayLimit       = 40
	bodyLimit          = 200

	actionGroups = 3
	otherGroups  = 5

	totalThreshold = 3
)

type ruleGroup struct {
	label string
	count int
}

// RuleSummary condenses entries of type typ without any external call.
// Similar entries are merged and annotated with their count. The output is
// deterministic for a given input order.
func RuleSummary(typ memory.Type, entries []*memory.Entry) string {
	entries = nonNil(entries)
	if len(entries) == 0 {
		return ""
	}

	var groups []ruleGroup
	limit := otherGroups
	switch typ {
	case memory.TypeConversation:
		groups = groupBy(entries, func(e *memory.Entry) (string, string) {
			if e.RelatedAgent != "" {
				return "agent:" + e.RelatedAgent, "with " + e.RelatedAgent
			}
			p := prefix(e.Content, conversationPrefix)
			return "text:" + p, p
		})
	case memory.TypeAction:
		limit = actionGroups
		groups = groupBy(entries, func(e *memory.Entry) (string, string) {
			p := prefix(e.Content, actionPrefix)
			return p, p
		})
	default:
		groups = groupBy(entries, func(e *memory.Entry) (string, string) {
			return prefix(e.Content, otherPrefix), truncate(normalize(e.Content), displayLimit)
		})
	}

	parts := make([]string, 0, limit)
	for i, g := range groups {
		if i >= limit {
			break
		}
		if g.label == "" {
			continue
		}
		if g.count > 1 {
			parts = append(parts, fmt.Sprintf("%s ×%d", g.label, g.count))
		} else {
			parts = append(parts, g.label)
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%d %s memories", len(entries), typ)
	}

	body := truncate(strings.Join(parts, "; "), bodyLimit)
	if len(entries) > totalThreshold {
		body += fmt.Sprintf(" (total %d)", len(entries))
	}
	return body
}

// groupBy buckets entries by key, keeping the first label seen per key, and
// orders buckets by descending count with first-seen order breaking ties.
func groupBy(entries []*memory.Entry, keyOf func(*memory.Entry) (key, label string)) []ruleGroup {
	index := make(map[string]int)
	var groups []ruleGroup
	for _, e := range entries {
		key, label := keyOf(e)
		if i, ok := index[key]; ok {
			groups[i].count++
			continue
		}
		index[key] = len(groups)
		groups = append(groups, ruleGroup{label: label, count: 1})
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].count > groups[j].count
	})
	return groups
}

// normalize collapses runs of whitespace and trims the ends.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// prefix returns the first n runes of the normalized content.
func prefix(s string, n int) string {
	s = normalize(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// truncate shortens s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func nonNil(entries []*memory.Entry) []*memory.Entry {
	out := make([]*memory.Entry, 0, len(entries))
	for _, e := range entries {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}
