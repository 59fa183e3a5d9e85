package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "splits on spaces and drops single runes",
			content: "Bob built a wall",
			want:    []string{"Bob", "built", "wall"},
		},
		{
			name:    "splits on full-width punctuation",
			content: "今天，我们在田里种植。明天！",
			want:    []string{"今天", "我们在田里种植", "明天"},
		},
		{
			name:    "drops stop words",
			content: "已经 完成 了 任务",
			want:    []string{"完成", "任务"},
		},
		{
			name:    "dedupes in first-seen order",
			content: "raid raid again raid",
			want:    []string{"raid", "again"},
		},
		{
			name:    "empty content",
			content: "",
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractKeywords(tt.content))
		})
	}
}

func TestTagger_Tag(t *testing.T) {
	tagger := NewTagger(nil)

	tests := []struct {
		name           string
		content        string
		importance     float64
		wantTags       []string
		wantImportance float64
	}{
		{
			name:           "occupation tag",
			content:        "Spent the morning cooking stew",
			importance:     0.4,
			wantTags:       []string{TagCooking},
			wantImportance: 0.4,
		},
		{
			name:           "case insensitive english",
			content:        "A RAID hit the east wall",
			importance:     0.5,
			wantTags:       []string{TagRaid},
			wantImportance: 0.5,
		},
		{
			name:           "chinese keywords",
			content:        "我们和他们发生了争吵",
			importance:     0.5,
			wantTags:       []string{TagQuarrel},
			wantImportance: 0.5,
		},
		{
			name:           "death forces importance",
			content:        "Old Tom died in the night",
			importance:     0.2,
			wantTags:       []string{TagDeath, TagImportant},
			wantImportance: 0.9,
		},
		{
			name:           "death keeps higher importance",
			content:        "death of the captain",
			importance:     0.95,
			wantTags:       []string{TagDeath, TagImportant},
			wantImportance: 0.95,
		},
		{
			name:           "important marker above threshold",
			content:        "Found the map",
			importance:     0.85,
			wantTags:       []string{TagImportant},
			wantImportance: 0.85,
		},
		{
			name:           "no tags",
			content:        "Nothing happened",
			importance:     0.5,
			wantTags:       nil,
			wantImportance: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEntry(tt.content, TypeEvent, tt.importance, "", 0)
			tagger.Tag(e)
			assert.ElementsMatch(t, tt.wantTags, e.Tags)
			assert.InDelta(t, tt.wantImportance, e.Importance, 1e-9)
		})
	}
}

func TestTagger_UserEditedMarker(t *testing.T) {
	tagger := NewTagger(nil)
	e := NewEntry("quiet day", TypeObservation, 0.5, "", 0)
	e.UserEdited = true
	e.Notes = "remember this"

	tagger.Tag(e)

	assert.True(t, e.HasTag(TagUserEdited))
	assert.True(t, e.HasTag(TagNotes))
}

func TestTagger_Idempotent(t *testing.T) {
	tagger := NewTagger(nil)
	e := NewEntry("Raid at dawn, Bob was injured while mining", TypeEvent, 0.6, "Bob", 10)

	tagger.Tag(e)
	onceKeywords := append([]string(nil), e.Keywords...)
	onceTags := append([]string(nil), e.Tags...)

	tagger.Tag(e)
	assert.Equal(t, onceKeywords, e.Keywords)
	assert.Equal(t, onceTags, e.Tags)
}

func TestTagger_SetRules(t *testing.T) {
	tagger := NewTagger([]Rule{{Tag: "weather", Keywords: []string{"Rain", " storm "}}})

	e := NewEntry("a STORM rolled in", TypeObservation, 0.3, "", 0)
	tagger.Tag(e)
	assert.Equal(t, []string{"weather"}, e.Tags)

	rules := tagger.Rules()
	require.Len(t, rules, 1)
	assert.Equal(t, []string{"rain", "storm"}, rules[0].Keywords)

	tagger.SetRules(nil)
	assert.Len(t, tagger.Rules(), len(DefaultRules()))
}

func TestTagger_ZeroValueUsesDefaults(t *testing.T) {
	var tagger Tagger
	e := NewEntry("we cook dinner", TypeAction, 0.3, "", 0)
	tagger.Tag(e)
	assert.True(t, e.HasTag(TagCooking))
}
