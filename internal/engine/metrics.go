package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level metric vars, registered once at package init time, the
// same shape as the teacher's internal/bot/metrics.go — re-scoped to this
// domain's tick loop and logger backpressure instead of per-order
// latency.
var (
	tickLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "arbmon",
		Subsystem: "engine",
		Name:      "tick_latency_seconds",
		Help:      "Time to process one pair during a single engine tick.",
		Buckets:   prometheus.DefBuckets,
	})

	opportunitiesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arbmon",
		Subsystem: "engine",
		Name:      "opportunities_detected_total",
		Help:      "Entries that crossed the entry thresholds, by pair.",
	}, []string{"pair"})

	opportunitiesEntered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arbmon",
		Subsystem: "engine",
		Name:      "opportunities_entered_total",
		Help:      "Opportunities that resulted in an OpenPosition (excludes ones silently ignored because a position was already open), by pair.",
	}, []string{"pair"})

	exitsByReason = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arbmon",
		Subsystem: "engine",
		Name:      "exits_total",
		Help:      "Closed positions, by pair and decision reason.",
	}, []string{"pair", "reason"})

	loggerBufferDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "arbmon",
		Subsystem: "persist",
		Name:      "buffer_depth",
		Help:      "Combined row count across the logger's three in-memory buffers.",
	})

	loggerBufferOverflow = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "arbmon",
		Subsystem: "persist",
		Name:      "buffer_early_flush_total",
		Help:      "Enqueue calls that left the combined buffer length above the 500-row early-flush trigger.",
	})
)

// ObserveBufferDepth and IncBufferOverflow are exported for
// internal/persist to report buffer pressure without that package
// needing its own Prometheus wiring.
func ObserveBufferDepth(n int) { loggerBufferDepth.Set(float64(n)) }
func IncBufferOverflow()       { loggerBufferOverflow.Inc() }
