package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(id string, layer Layer, typ Type, importance, activity float64, ts int64) *Entry {
	return &Entry{
		ID:         id,
		Content:    id,
		Type:       typ,
		Layer:      layer,
		Importance: importance,
		Activity:   activity,
		Timestamp:  ts,
	}
}

func ids(entries []*Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestQuery_Matches(t *testing.T) {
	e := entry("e1", LayerSituational, TypeConversation, 0.5, 1, 0)
	e.RelatedAgent = "Bob"
	e.Tags = []string{TagQuarrel, TagAngry}

	tests := []struct {
		name  string
		query Query
		want  bool
	}{
		{name: "empty query matches", query: Query{}, want: true},
		{name: "type match", query: Query{Type: TypeConversation}, want: true},
		{name: "type mismatch", query: Query{Type: TypeAction}, want: false},
		{name: "layer mismatch", query: Query{Layer: LayerEventLog}, want: false},
		{name: "agent match", query: Query{RelatedAgent: "Bob"}, want: true},
		{name: "agent mismatch", query: Query{RelatedAgent: "Alice"}, want: false},
		{name: "any tag matches", query: Query{Tags: []string{TagHappy, TagAngry}}, want: true},
		{name: "no tag matches", query: Query{Tags: []string{TagHappy}}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.query.Matches(e))
		})
	}
}

func TestScore_Monotonic(t *testing.T) {
	base := entry("a", LayerSituational, TypeEvent, 0.5, 0.5, 0)
	base.Keywords = []string{"raid", "wall"}
	baseScore := Score(base, []string{"raid", "fire"})

	higherImportance := base.Clone()
	higherImportance.Importance = 0.9
	assert.Greater(t, Score(higherImportance, []string{"raid", "fire"}), baseScore)

	higherActivity := base.Clone()
	higherActivity.Activity = 0.9
	assert.Greater(t, Score(higherActivity, []string{"raid", "fire"}), baseScore)

	moreOverlap := base.Clone()
	moreOverlap.Keywords = []string{"raid", "fire"}
	assert.Greater(t, Score(moreOverlap, []string{"raid", "fire"}), baseScore)

	assert.InDelta(t, 0.3*0.5+0.2*0.5, Score(base, nil), 1e-9)
}

func TestScore_KeywordsCaseInsensitive(t *testing.T) {
	e := entry("a", LayerSituational, TypeEvent, 0, 0, 0)
	e.Keywords = []string{"Raid"}
	assert.InDelta(t, 0.5, Score(e, []string{"raid"}), 1e-9)
}

func TestRank_TieBreaksByRecency(t *testing.T) {
	older := entry("older", LayerSituational, TypeEvent, 0.5, 1, 10)
	newer := entry("newer", LayerSituational, TypeEvent, 0.5, 1, 20)
	same := entry("same", LayerSituational, TypeEvent, 0.5, 1, 20)

	got := Rank([]*Entry{older, newer, same}, Query{}, 0)
	assert.Equal(t, []string{"newer", "same", "older"}, ids(got))
}

func TestRetrieve_Composition(t *testing.T) {
	tiers := Tiers{
		Active: []*Entry{
			entry("a1", LayerActive, TypeConversation, 0.1, 1, 100),
			entry("a2", LayerActive, TypeAction, 0.1, 1, 99),
		},
	}
	for i := 0; i < 7; i++ {
		tiers.Situational = append(tiers.Situational,
			entry(string(rune('s'))+string(rune('0'+i)), LayerSituational, TypeEvent, float64(i)/10, 1, int64(90-i)))
	}
	for i := 0; i < 4; i++ {
		tiers.EventLog = append(tiers.EventLog,
			entry(string(rune('e'))+string(rune('0'+i)), LayerEventLog, TypeEvent, 0.5, 1, int64(50-i)))
	}
	tiers.Archive = []*Entry{
		entry("c0", LayerArchive, TypeEvent, 0.4, 1, 5),
		entry("c1", LayerArchive, TypeEvent, 0.9, 1, 4),
		entry("c2", LayerArchive, TypeEvent, 0.7, 1, 3),
		entry("c3", LayerArchive, TypeEvent, 0.8, 1, 2),
	}

	t.Run("active then top situational", func(t *testing.T) {
		got := Retrieve(tiers, Query{MaxCount: 10}, 3)
		assert.Equal(t, []string{"a1", "a2", "s6", "s5", "s4", "s3", "s2"}, ids(got))
	})

	t.Run("include context fills from event log", func(t *testing.T) {
		got := Retrieve(tiers, Query{MaxCount: 9, IncludeContext: true}, 3)
		assert.Equal(t, []string{"a1", "a2", "s6", "s5", "s4", "s3", "s2", "e0", "e1"}, ids(got))
	})

	t.Run("truncates to max count", func(t *testing.T) {
		got := Retrieve(tiers, Query{MaxCount: 3, IncludeContext: true}, 3)
		assert.Equal(t, []string{"a1", "a2", "s6"}, ids(got))
	})

	t.Run("default max count", func(t *testing.T) {
		got := Retrieve(tiers, Query{}, 3)
		assert.Len(t, got, DefaultMaxCount)
	})

	t.Run("archive only when layer filter is archive", func(t *testing.T) {
		got := Retrieve(tiers, Query{Layer: LayerArchive, MaxCount: 10}, 3)
		assert.Equal(t, []string{"a1", "a2", "c1", "c3", "c2"}, ids(got))
	})

	t.Run("active respects type filter", func(t *testing.T) {
		got := Retrieve(tiers, Query{Type: TypeAction, MaxCount: 10}, 3)
		assert.Equal(t, []string{"a2"}, ids(got))
	})

	t.Run("active capped", func(t *testing.T) {
		got := Retrieve(tiers, Query{Type: TypeConversation, MaxCount: 10}, 1)
		assert.Equal(t, []string{"a1"}, ids(got))
	})
}

func TestRetrieve_RelatedAgentFiltersActive(t *testing.T) {
	bob := entry("bob", LayerActive, TypeConversation, 0.5, 1, 3)
	bob.RelatedAgent = "Bob"
	alice := entry("alice", LayerActive, TypeConversation, 0.5, 1, 2)
	alice.RelatedAgent = "Alice"
	bobSit := entry("bob-sit", LayerSituational, TypeConversation, 0.5, 1, 1)
	bobSit.RelatedAgent = "Bob"
	aliceSit := entry("alice-sit", LayerSituational, TypeConversation, 0.5, 1, 0)
	aliceSit.RelatedAgent = "Alice"

	tiers := Tiers{
		Active:      []*Entry{bob, alice},
		Situational: []*Entry{bobSit, aliceSit},
	}

	got := Retrieve(tiers, Query{RelatedAgent: "Bob", MaxCount: 10, IncludeContext: true}, 3)
	require.Len(t, got, 2)
	for _, e := range got {
		assert.Equal(t, "Bob", e.RelatedAgent)
	}
}

func TestRetrieve_DoesNotMutate(t *testing.T) {
	tiers := Tiers{
		Situational: []*Entry{
			entry("s0", LayerSituational, TypeEvent, 0.1, 1, 1),
			entry("s1", LayerSituational, TypeEvent, 0.9, 1, 0),
		},
	}
	before := tiers.Clone()
	_ = Retrieve(tiers, Query{Keywords: []string{"x"}}, 3)
	assert.Equal(t, before, tiers)
}
