// Package metrics exposes the translator's outcome counters and map-table
// size as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/apalrd/gonat64/internal/xlat64"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "gonat64"
	subsystem = "xlat"
)

// Label names for translation metrics.
const (
	labelDirection = "direction" // "4to6" or "6to4"
	labelOutcome   = "outcome"   // forward/drop/reject/hairpin (Outcome.String())
)

// -------------------------------------------------------------------------
// Collector — Prometheus translation metrics
// -------------------------------------------------------------------------

// Collector holds all gonat64 Prometheus metrics and implements
// xlat64.MetricsReporter, mirroring the teacher's bfdmetrics.Collector
// shape (label-vector-per-concern, constructor registers everything
// against a caller-supplied Registerer).
type Collector struct {
	// PacketsTotal counts every packet the translator disposed of,
	// labeled by direction and outcome.
	PacketsTotal *prometheus.CounterVec

	// MapEntries tracks the number of entries currently loaded in the
	// MapTable (static + RFC6052 + dynamic, combined).
	MapEntries prometheus.Gauge
}

// NewCollector creates a Collector with all gonat64 metrics registered
// against the provided prometheus.Registerer. If reg is nil,
// prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.PacketsTotal,
		c.MapEntries,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	return &Collector{
		PacketsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_total",
			Help:      "Total packets translated, by direction and outcome.",
		}, []string{labelDirection, labelOutcome}),

		MapEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "map_entries",
			Help:      "Number of entries currently loaded in the address-mapping table.",
		}),
	}
}

// -------------------------------------------------------------------------
// xlat64.MetricsReporter
// -------------------------------------------------------------------------

// RecordOutcome implements xlat64.MetricsReporter: it is called once per
// packet by Translator.TranslateFromV4/TranslateFromV6.
func (c *Collector) RecordOutcome(fromV6 bool, outcome xlat64.Outcome) {
	dir := "4to6"
	if fromV6 {
		dir = "6to4"
	}
	c.PacketsTotal.WithLabelValues(dir, outcome.String()).Inc()
}

// SetMapEntries updates the map-table size gauge. Called once after
// startup and again on any future live-reload of the mapping table.
func (c *Collector) SetMapEntries(n int) {
	c.MapEntries.Set(float64(n))
}
