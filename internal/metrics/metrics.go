// Package metrics holds the Prometheus instruments shared across the
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScanCycles counts completed scan cycles by outcome.
	ScanCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailbridge_scan_cycles_total",
		Help: "Inbox scan cycles by outcome.",
	}, []string{"outcome"})

	// Dispatches counts backend dispatch attempts by kind and outcome.
	Dispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailbridge_dispatches_total",
		Help: "Backend dispatches by envelope kind and outcome.",
	}, []string{"kind", "outcome"})

	// DedupSkips counts messages skipped because they were already
	// processed, split by where the duplicate was detected.
	DedupSkips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailbridge_dedup_skips_total",
		Help: "Messages skipped as duplicates, by detection source.",
	}, []string{"source"})

	// ProcessedSetSize tracks the size of the local processed-id set.
	ProcessedSetSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mailbridge_processed_set_size",
		Help: "Current size of the local processed-id set.",
	})

	// RepliesSent counts outbound reply emails by outcome.
	RepliesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailbridge_replies_sent_total",
		Help: "Outbound reply emails by outcome.",
	}, []string{"outcome"})
)
