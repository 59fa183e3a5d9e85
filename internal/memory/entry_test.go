package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNewEntry(t *testing.T) {
	e := NewEntry("hello", TypeConversation, 1.4, "Bob", 42)

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, LayerActive, e.Layer)
	assert.Equal(t, 1.0, e.Importance)
	assert.Equal(t, 1.0, e.Activity)
	assert.Equal(t, "Bob", e.RelatedAgent)
	assert.Equal(t, int64(42), e.Timestamp)

	other := NewEntry("hello", TypeConversation, 0.5, "Bob", 42)
	assert.NotEqual(t, e.ID, other.ID)
}

func TestParseType(t *testing.T) {
	tests := []struct {
		in      string
		want    Type
		wantErr bool
	}{
		{in: "conversation", want: TypeConversation},
		{in: " Action ", want: TypeAction},
		{in: "EMOTION", want: TypeEmotion},
		{in: "dream", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLayer(t *testing.T) {
	l, err := ParseLayer("Event_Log")
	require.NoError(t, err)
	assert.Equal(t, LayerEventLog, l)

	_, err = ParseLayer("attic")
	assert.Error(t, err)
}

func TestType_Label(t *testing.T) {
	assert.Equal(t, "Conversation", TypeConversation.Label())
	assert.Equal(t, "Interaction", TypeInteraction.Label())
	assert.Equal(t, "", Type("").Label())
}

func TestTimeAgo(t *testing.T) {
	tests := []struct {
		name string
		ts   int64
		now  int64
		want string
	}{
		{name: "same tick", ts: 100, now: 100, want: "just now"},
		{name: "under an hour", ts: 0, now: TicksPerHour - 1, want: "just now"},
		{name: "one hour", ts: 0, now: TicksPerHour, want: "1h ago"},
		{name: "hours", ts: 1000, now: 1000 + 5*TicksPerHour + 10, want: "5h ago"},
		{name: "one day", ts: 0, now: TicksPerDay, want: "1d ago"},
		{name: "days", ts: 0, now: 3*TicksPerDay + TicksPerHour, want: "3d ago"},
		{name: "future timestamp", ts: 500, now: 100, want: "just now"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TimeAgo(tt.ts, tt.now))
		})
	}
}

func TestEntry_CloneIsDeep(t *testing.T) {
	e := NewEntry("content", TypeEvent, 0.5, "", 0)
	e.AddKeyword("content")
	e.AddTag(TagRaid)

	c := e.Clone()
	c.Tags[0] = "changed"
	c.AddKeyword("more")

	assert.Equal(t, []string{TagRaid}, e.Tags)
	assert.Equal(t, []string{"content"}, e.Keywords)
	assert.Nil(t, (*Entry)(nil).Clone())
}

func TestEntry_AddTagDedupes(t *testing.T) {
	e := &Entry{}
	assert.True(t, e.AddTag(TagHappy))
	assert.False(t, e.AddTag(TagHappy))
	assert.False(t, e.AddTag(""))
	assert.Equal(t, []string{TagHappy}, e.Tags)
}

func TestTiers_NormalizeAndFind(t *testing.T) {
	misplaced := entry("x", LayerActive, TypeEvent, 2, -1, 0)
	tiers := Tiers{
		Situational: []*Entry{nil, misplaced},
		Archive:     []*Entry{entry("y", LayerArchive, TypeEvent, 0.5, 0.5, 0)},
	}

	tiers.Normalize()

	require.Len(t, tiers.Situational, 1)
	assert.Equal(t, LayerSituational, misplaced.Layer)
	assert.Equal(t, 1.0, misplaced.Importance)
	assert.Equal(t, 0.0, misplaced.Activity)

	e, layer, idx := tiers.Find("y")
	require.NotNil(t, e)
	assert.Equal(t, LayerArchive, layer)
	assert.Equal(t, 0, idx)

	e, _, idx = tiers.Find("missing")
	assert.Nil(t, e)
	assert.Equal(t, -1, idx)
}

func TestClamp01_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := rapid.Float64().Draw(t, "v")
		got := Clamp01(v)
		if got < 0 || got > 1 {
			t.Fatalf("Clamp01(%v) = %v", v, got)
		}
	})
}

func TestTagger_IdempotentProperty(t *testing.T) {
	tagger := NewTagger(nil)
	words := []string{"raid", "cook", "开心", "任务", "Bob", "wall", "died", "small talk", "，", "。", " "}
	rapid.Check(t, func(t *rapid.T) {
		parts := rapid.SliceOfN(rapid.SampledFrom(words), 0, 12).Draw(t, "parts")
		content := ""
		for _, p := range parts {
			content += p + " "
		}
		e := NewEntry(content, TypeEvent, rapid.Float64Range(0, 1).Draw(t, "importance"), "", 0)

		tagger.Tag(e)
		kw, tags, imp := append([]string(nil), e.Keywords...), append([]string(nil), e.Tags...), e.Importance
		tagger.Tag(e)

		if len(kw) != len(e.Keywords) || len(tags) != len(e.Tags) || imp != e.Importance {
			t.Fatalf("second Tag changed entry: keywords %v -> %v, tags %v -> %v", kw, e.Keywords, tags, e.Tags)
		}
	})
}
