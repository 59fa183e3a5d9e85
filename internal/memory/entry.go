package memory

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Tick conversion constants.
const (
	TicksPerHour int64 = 2500
	TicksPerDay  int64 = 60000
)

// Type classifies what kind of event an entry records.
type Type string

// Memory types.
const (
	TypeConversation Type = "conversation"
	TypeAction       Type = "action"
	TypeObservation  Type = "observation"
	TypeEvent        Type = "event"
	TypeEmotion      Type = "emotion"
	TypeInteraction  Type = "interaction"
)

var allTypes = []Type{
	TypeConversation,
	TypeAction,
	TypeObservation,
	TypeEvent,
	TypeEmotion,
	TypeInteraction,
}

// Types returns every known memory type.
func Types() []Type {
	out := make([]Type, len(allTypes))
	copy(out, allTypes)
	return out
}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	for _, known := range allTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Label returns the display name used in prompt context, e.g. "Conversation".
func (t Type) Label() string {
	if t == "" {
		return ""
	}
	return strings.ToUpper(string(t[:1])) + string(t[1:])
}

// ParseType parses a type name case-insensitively.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown memory type %q", s)
	}
	return t, nil
}

// Layer identifies the tier that holds an entry.
type Layer string

// Tiers, most granular first.
const (
	LayerActive      Layer = "active"
	LayerSituational Layer = "situational"
	LayerEventLog    Layer = "event_log"
	LayerArchive     Layer = "archive"
)

// Valid reports whether l is a known layer.
func (l Layer) Valid() bool {
	switch l {
	case LayerActive, LayerSituational, LayerEventLog, LayerArchive:
		return true
	}
	return false
}

// ParseLayer parses a layer name case-insensitively.
func ParseLayer(s string) (Layer, error) {
	l := Layer(strings.ToLower(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("unknown memory layer %q", s)
	}
	return l, nil
}

// Entry is a single remembered event.
type Entry struct {
	ID           string   `json:"id"`
	Content      string   `json:"content"`
	Type         Type     `json:"type"`
	Layer        Layer    `json:"layer"`
	Importance   float64  `json:"importance"`
	Activity     float64  `json:"activity"`
	Keywords     []string `json:"keywords,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	RelatedAgent string   `json:"related_agent,omitempty"`
	Timestamp    int64    `json:"timestamp"`
	Pinned       bool     `json:"pinned"`
	UserEdited   bool     `json:"user_edited"`
	Notes        string   `json:"notes,omitempty"`
}

// NewEntry creates an Active entry with full activity and a fresh id.
func NewEntry(content string, typ Type, importance float64, relatedAgent string, tick int64) *Entry {
	return &Entry{
		ID:           uuid.NewString(),
		Content:      content,
		Type:         typ,
		Layer:        LayerActive,
		Importance:   Clamp01(importance),
		Activity:     1.0,
		RelatedAgent: relatedAgent,
		Timestamp:    tick,
	}
}

// SetImportance writes importance clamped to [0,1].
func (e *Entry) SetImportance(v float64) {
	e.Importance = Clamp01(v)
}

// AddKeyword appends k unless already present. Returns true if added.
func (e *Entry) AddKeyword(k string) bool {
	if k == "" || contains(e.Keywords, k) {
		return false
	}
	e.Keywords = append(e.Keywords, k)
	return true
}

// AddTag appends tag unless already present. Returns true if added.
func (e *Entry) AddTag(tag string) bool {
	if tag == "" || contains(e.Tags, tag) {
		return false
	}
	e.Tags = append(e.Tags, tag)
	return true
}

// HasTag reports whether the entry carries tag.
func (e *Entry) HasTag(tag string) bool {
	return contains(e.Tags, tag)
}

// Evictable reports whether decay may remove the entry.
func (e *Entry) Evictable() bool {
	return !e.Pinned && !e.UserEdited
}

// Decay lowers activity by amount, floored at zero.
func (e *Entry) Decay(amount float64) {
	if amount <= 0 {
		return
	}
	e.Activity = Clamp01(e.Activity - amount)
}

// Clone returns a deep copy of e.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Keywords = append([]string(nil), e.Keywords...)
	c.Tags = append([]string(nil), e.Tags...)
	return &c
}

// Clamp01 clamps v to [0,1].
func Clamp01(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// TimeAgo renders the distance between ts and now in ticks as
// "just now", "Nh ago" or "Nd ago".
func TimeAgo(ts, now int64) string {
	elapsed := now - ts
	switch {
	case elapsed < TicksPerHour:
		return "just now"
	case elapsed < TicksPerDay:
		return fmt.Sprintf("%dh ago", elapsed/TicksPerHour)
	default:
		return fmt.Sprintf("%dd ago", elapsed/TicksPerDay)
	}
}

// CloneEntries deep-copies a slice of entries.
func CloneEntries(entries []*Entry) []*Entry {
	if entries == nil {
		return nil
	}
	out := make([]*Entry, len(entries))
	for i, e := range entries {
		out[i] = e.Clone()
	}
	return out
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
