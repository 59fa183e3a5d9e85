package tiered

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fyrsmithlabs/tiermem/internal/memory"
)

var (
	// Entries tracks entries held across all stores.
	// Labels: tier (active, situational, event_log, archive)
	Entries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tiermem",
			Subsystem: "store",
			Name:      "entries",
			Help:      "Number of memory entries held per tier",
		},
		[]string{"tier"},
	)

	// SummariesTotal counts summary entries created.
	// Labels: source (ai-summary, rule-summary, deep-archive)
	SummariesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tiermem",
			Subsystem: "store",
			Name:      "summaries_total",
			Help:      "Total number of summary entries created by source",
		},
		[]string{"source"},
	)

	// EvictionsTotal counts entries removed by decay or archive overflow.
	// Labels: tier
	EvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tiermem",
			Subsystem: "store",
			Name:      "evictions_total",
			Help:      "Total number of entries evicted per tier",
		},
		[]string{"tier"},
	)
)

// gaugeState remembers what one store last reported so the shared gauges
// can be moved by deltas.
type gaugeState struct {
	reported Stats
}

func (s *Store) syncGauges() {
	cur := s.Stats()
	prev := s.gauges.reported
	addGauge(memory.LayerActive, cur.Active-prev.Active)
	addGauge(memory.LayerSituational, cur.Situational-prev.Situational)
	addGauge(memory.LayerEventLog, cur.EventLog-prev.EventLog)
	addGauge(memory.LayerArchive, cur.Archive-prev.Archive)
	s.gauges.reported = cur
}

func (g *gaugeState) release() {
	addGauge(memory.LayerActive, -g.reported.Active)
	addGauge(memory.LayerSituational, -g.reported.Situational)
	addGauge(memory.LayerEventLog, -g.reported.EventLog)
	addGauge(memory.LayerArchive, -g.reported.Archive)
	g.reported = Stats{}
}

func addGauge(l memory.Layer, delta int) {
	if delta != 0 {
		Entries.WithLabelValues(string(l)).Add(float64(delta))
	}
}
