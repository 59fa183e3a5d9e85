package summarizer

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/tiermem/internal/memory"
)

func typed(typ memory.Type, related string, contents ...string) []*memory.Entry {
	out := make([]*memory.Entry, len(contents))
	for i, c := range contents {
		out[i] = memory.NewEntry(c, typ, 0.5, related, int64(i))
	}
	return out
}

func TestRuleSummary(t *testing.T) {
	bob := typed(memory.TypeConversation, "Bob", "hi", "how are you", "bye")
	alice := typed(memory.TypeConversation, "Alice", "hello")

	tests := []struct {
		name    string
		typ     memory.Type
		entries []*memory.Entry
		want    string
	}{
		{
			name: "empty input",
			typ:  memory.TypeEvent,
			want: "",
		},
		{
			name:    "conversation grouped by partner",
			typ:     memory.TypeConversation,
			entries: append(append([]*memory.Entry{}, alice...), bob...),
			want:    "with Bob ×3; with Alice (total 4)",
		},
		{
			name:    "conversation ties keep first seen order",
			typ:     memory.TypeConversation,
			entries: append(append([]*memory.Entry{}, alice...), bob[0]),
			want:    "with Alice; with Bob",
		},
		{
			name:    "conversation without partner uses prefix",
			typ:     memory.TypeConversation,
			entries: typed(memory.TypeConversation, "", "talked   about the   weather today"),
			want:    "talked about th",
		},
		{
			name: "action keeps top three prefixes",
			typ:  memory.TypeAction,
			entries: typed(memory.TypeAction, "",
				"Cooked a simple meal",
				"Chopped wood near the river",
				"Chopped wood near the river",
				"Repaired the wall",
				"Cleaned floor"),
			want: "Chopped wood ne ×2; Cooked a simple; Repaired the wa (total 5)",
		},
		{
			name: "other types show truncated content",
			typ:  memory.TypeObservation,
			entries: typed(memory.TypeObservation, "",
				"Saw a herd of muffalo grazing by the southern lake at dusk",
				"Saw a herd of muffalo grazing by the southern lake at dusk"),
			want: "Saw a herd of muffalo grazing by the sou... ×2",
		},
		{
			name:    "nil entries ignored",
			typ:     memory.TypeEvent,
			entries: []*memory.Entry{nil, memory.NewEntry("storm", memory.TypeEvent, 0.5, "", 0)},
			want:    "storm",
		},
		{
			name:    "blank content falls back to count",
			typ:     memory.TypeEmotion,
			entries: typed(memory.TypeEmotion, "", "   ", ""),
			want:    "2 emotion memories",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RuleSummary(tt.typ, tt.entries))
		})
	}
}

func TestRuleSummary_TruncatesBody(t *testing.T) {
	var entries []*memory.Entry
	for _, lead := range []string{"Alpha", "Bravo", "Charlie", "Delta", "Echo"} {
		entries = append(entries, memory.NewEntry(
			lead+" squad reported unusual movement along the northern ridge line",
			memory.TypeEvent, 0.5, "", 0))
	}

	got := RuleSummary(memory.TypeEvent, entries)

	assert.True(t, strings.HasSuffix(got, "... (total 5)"), got)
	body := strings.TrimSuffix(got, " (total 5)")
	assert.Equal(t, bodyLimit+3, utf8.RuneCountInString(body))
}

func TestRuleSummary_Deterministic(t *testing.T) {
	entries := typed(memory.TypeAction, "", "build wall", "build wall", "mine steel", "cook")
	first := RuleSummary(memory.TypeAction, entries)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, RuleSummary(memory.TypeAction, entries))
	}
}

func TestBuildPrompt(t *testing.T) {
	var contents []string
	for i := 0; i < 25; i++ {
		contents = append(contents, "event")
	}
	entries := typed(memory.TypeEvent, "", contents...)

	standard := BuildPrompt(entries, ModeStandard)
	assert.Contains(t, standard, "20. event")
	assert.NotContains(t, standard, "21. event")
	assert.Contains(t, standard, "80 characters")
	assert.Contains(t, standard, "×N")
	assert.Contains(t, standard, "no JSON")

	deep := BuildPrompt(entries[:2], ModeDeepArchive)
	assert.Contains(t, deep, "60 characters")
	assert.Contains(t, deep, "2. event")
	assert.NotContains(t, deep, "3. event")
}
