package memory

// Tiers holds the four ordered sequences of one agent, most recent first.
//
// It is also the shape exchanged with persistence: a snapshot is a Tiers
// value and nothing else.
type Tiers struct {
	Active      []*Entry `json:"active"`
	Situational []*Entry `json:"situational"`
	EventLog    []*Entry `json:"event_log"`
	Archive     []*Entry `json:"archive"`
}

// Tier returns a pointer to the sequence for layer, or nil for an unknown layer.
func (t *Tiers) Tier(l Layer) *[]*Entry {
	switch l {
	case LayerActive:
		return &t.Active
	case LayerSituational:
		return &t.Situational
	case LayerEventLog:
		return &t.EventLog
	case LayerArchive:
		return &t.Archive
	}
	return nil
}

// Layers lists the tiers in search order.
func Layers() []Layer {
	return []Layer{LayerActive, LayerSituational, LayerEventLog, LayerArchive}
}

// Len returns the total number of entries.
func (t Tiers) Len() int {
	return len(t.Active) + len(t.Situational) + len(t.EventLog) + len(t.Archive)
}

// All concatenates the tiers, Active first.
func (t Tiers) All() []*Entry {
	out := make([]*Entry, 0, t.Len())
	out = append(out, t.Active...)
	out = append(out, t.Situational...)
	out = append(out, t.EventLog...)
	out = append(out, t.Archive...)
	return out
}

// Clone deep-copies every tier.
func (t Tiers) Clone() Tiers {
	return Tiers{
		Active:      CloneEntries(t.Active),
		Situational: CloneEntries(t.Situational),
		EventLog:    CloneEntries(t.EventLog),
		Archive:     CloneEntries(t.Archive),
	}
}

// Normalize drops nil entries, forces each entry's Layer to match its
// sequence and re-clamps scores. Used when loading untrusted snapshots.
func (t *Tiers) Normalize() {
	for _, l := range Layers() {
		seq := t.Tier(l)
		kept := (*seq)[:0]
		for _, e := range *seq {
			if e == nil {
				continue
			}
			e.Layer = l
			e.Importance = Clamp01(e.Importance)
			e.Activity = Clamp01(e.Activity)
			kept = append(kept, e)
		}
		*seq = kept
	}
}

// Find locates an entry by id, searching Active, Situational, EventLog,
// then Archive. The first match wins.
func (t *Tiers) Find(id string) (*Entry, Layer, int) {
	for _, l := range Layers() {
		for i, e := range *t.Tier(l) {
			if e.ID == id {
				return e, l, i
			}
		}
	}
	return nil, "", -1
}
