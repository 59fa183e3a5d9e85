package summarizer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal counts finished jobs.
	// Labels: result (success, empty, error, panic, dropped)
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tiermem",
			Subsystem: "summarizer",
			Name:      "jobs_total",
			Help:      "Total number of summarization jobs by result",
		},
		[]string{"result"},
	)

	// Pending is the number of fingerprints currently in flight.
	Pending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tiermem",
			Subsystem: "summarizer",
			Name:      "pending",
			Help:      "Number of summarization jobs queued or running",
		},
	)

	// DedupTotal counts submissions ignored because the fingerprint was known.
	DedupTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tiermem",
			Subsystem: "summarizer",
			Name:      "dedup_total",
			Help:      "Total number of submissions skipped as duplicates",
		},
	)
)

// ExpiredTotal counts Completed results dropped by Cleanup unconsumed.
var ExpiredTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "tiermem",
		Subsystem: "summarizer",
		Name:      "expired_total",
		Help:      "Total number of summaries dropped before anyone consumed them",
	},
)

const (
	resultSuccess = "success"
	resultEmpty   = "empty"
	resultError   = "error"
	resultPanic   = "panic"
	resultDropped = "dropped"
)
