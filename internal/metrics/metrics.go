// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Reconciliation
	ReconcileRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxoffice_reconcile_runs_total",
			Help: "Reconciliation runs by outcome",
		},
		[]string{"outcome"}, // "merged", "noop", "failed", "busy"
	)

	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "boxoffice_reconcile_duration_seconds",
			Help:    "Duration of reconciliation runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RecordsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxoffice_records_rejected_total",
			Help: "Upload records excluded from a merge, by reason",
		},
		[]string{"reason"},
	)

	RecordsMerged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "boxoffice_records_merged_total",
			Help: "Upload records merged into the canonical dataset",
		},
	)

	CanonicalRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "boxoffice_canonical_records",
			Help: "Records in the published canonical dataset",
		},
	)

	DictionaryEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "boxoffice_dictionary_entries",
			Help: "Entries per categorical dictionary",
		},
		[]string{"dimension"},
	)

	// Serving
	ResolverRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxoffice_resolver_requests_total",
			Help: "Feature resolution requests by result",
		},
		[]string{"result"}, // "ok", "unknown_category", "insufficient_history", "invalid"
	)

	HubClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "boxoffice_event_clients",
			Help: "Connected event stream clients",
		},
	)
)

func RecordRun(outcome string, duration time.Duration) {
	ReconcileRuns.WithLabelValues(outcome).Inc()
	ReconcileDuration.Observe(duration.Seconds())
}

func RecordRejections(byReason map[string]int) {
	for reason, n := range byReason {
		if n > 0 {
			RecordsRejected.WithLabelValues(reason).Add(float64(n))
		}
	}
}

// RecordSnapshot updates the gauges describing the published state.
func RecordSnapshot(records int, dictionarySizes map[string]int) {
	CanonicalRecords.Set(float64(records))
	for dim, n := range dictionarySizes {
		DictionaryEntries.WithLabelValues(dim).Set(float64(n))
	}
}

func RecordResolve(result string) {
	ResolverRequests.WithLabelValues(result).Inc()
}
