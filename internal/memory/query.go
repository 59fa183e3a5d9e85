package memory

import (
	"sort"
	"strings"
)

// Retrieval limits.
const (
	DefaultMaxCount  = 5
	SituationalLimit = 5
	ArchiveLimit     = 3
)

// Score weights. Each term is in [0,1], so scores are in [0,1].
const (
	keywordWeight    = 0.5
	importanceWeight = 0.3
	activityWeight   = 0.2
)

// Query selects and ranks entries for retrieval. Zero-valued fields are
// unset and match everything.
type Query struct {
	Type           Type     `json:"type,omitempty"`
	Layer          Layer    `json:"layer,omitempty"`
	RelatedAgent   string   `json:"related_agent,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Keywords       []string `json:"keywords,omitempty"`
	IncludeContext bool     `json:"include_context,omitempty"`
	MaxCount       int      `json:"max_count,omitempty"`
}

// Limit returns MaxCount, or DefaultMaxCount when unset.
func (q Query) Limit() int {
	if q.MaxCount <= 0 {
		return DefaultMaxCount
	}
	return q.MaxCount
}

// Matches reports whether e passes every set filter. Tags match if any
// query tag is present on the entry.
func (q Query) Matches(e *Entry) bool {
	if q.Layer != "" && e.Layer != q.Layer {
		return false
	}
	if !q.matchesActive(e) {
		return false
	}
	if len(q.Tags) > 0 {
		for _, t := range q.Tags {
			if e.HasTag(t) {
				return true
			}
		}
		return false
	}
	return true
}

// matchesActive is the reduced predicate for Active entries: only type and
// related agent filter them.
func (q Query) matchesActive(e *Entry) bool {
	if q.Type != "" && e.Type != q.Type {
		return false
	}
	if q.RelatedAgent != "" && e.RelatedAgent != q.RelatedAgent {
		return false
	}
	return true
}

// Score ranks an entry against the query keywords. It is monotonic in
// keyword overlap, importance and activity.
func Score(e *Entry, keywords []string) float64 {
	return keywordWeight*overlap(e.Keywords, keywords) +
		importanceWeight*e.Importance +
		activityWeight*e.Activity
}

// overlap is the fraction of query keywords present in the entry,
// compared case-insensitively.
func overlap(entryKeywords, queryKeywords []string) float64 {
	if len(queryKeywords) == 0 || len(entryKeywords) == 0 {
		return 0
	}
	have := make(map[string]bool, len(entryKeywords))
	for _, k := range entryKeywords {
		have[strings.ToLower(k)] = true
	}
	want := make(map[string]bool, len(queryKeywords))
	hits := 0
	for _, k := range queryKeywords {
		k = strings.ToLower(k)
		if want[k] {
			continue
		}
		want[k] = true
		if have[k] {
			hits++
		}
	}
	return float64(hits) / float64(len(want))
}

// Rank filters entries by q and orders them by descending Score. Ties go to
// the more recent timestamp, then to the earlier position in entries.
// At most limit results are returned; limit <= 0 means no limit.
func Rank(entries []*Entry, q Query, limit int) []*Entry {
	type scored struct {
		e     *Entry
		score float64
	}
	candidates := make([]scored, 0, len(entries))
	for _, e := range entries {
		if q.Matches(e) {
			candidates = append(candidates, scored{e: e, score: Score(e, q.Keywords)})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].e.Timestamp > candidates[j].e.Timestamp
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]*Entry, len(candidates))
	for i, c := range candidates {
		out[i] = c.e
	}
	return out
}

// byImportance filters entries by q and returns the top limit by raw
// importance, recency breaking ties.
func byImportance(entries []*Entry, q Query, limit int) []*Entry {
	out := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if q.Matches(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Importance != out[j].Importance {
			return out[i].Importance > out[j].Importance
		}
		return out[i].Timestamp > out[j].Timestamp
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Retrieve composes a ranked result across tiers:
//
//  1. Active entries (at most activeCap) that pass the type and related
//     agent filters.
//  2. The top SituationalLimit matching Situational entries by Score.
//  3. If IncludeContext and still short of the limit, matching EventLog
//     entries by Score to fill the remainder.
//  4. If the query filters on LayerArchive, the top ArchiveLimit matching
//     Archive entries by importance.
//
// The result is truncated to q.Limit(). Retrieve does not modify t.
func Retrieve(t Tiers, q Query, activeCap int) []*Entry {
	limit := q.Limit()
	results := make([]*Entry, 0, limit+ArchiveLimit)

	active := t.Active
	if activeCap > 0 && len(active) > activeCap {
		active = active[:activeCap]
	}
	for _, e := range active {
		if q.matchesActive(e) {
			results = append(results, e)
		}
	}

	results = append(results, Rank(t.Situational, q, SituationalLimit)...)

	if q.IncludeContext && len(results) < limit {
		results = append(results, Rank(t.EventLog, q, limit-len(results))...)
	}

	if q.Layer == LayerArchive {
		results = append(results, byImportance(t.Archive, q, ArchiveLimit)...)
	}

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}
