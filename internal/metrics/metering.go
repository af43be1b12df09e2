package metrics

import "github.com/prometheus/client_golang/prometheus"

// Check outcomes.
const (
	OutcomeAllowed  = "allowed"
	OutcomeDenied   = "denied"
	OutcomeDegraded = "degraded"
	OutcomeBypass   = "bypass"
)

// Record statuses.
const (
	StatusPersisted = "persisted"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// Metering Prometheus metrics.
var (
	ChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "usagemeter",
			Name:      "checks_total",
			Help:      "Entitlement checks by outcome",
		},
		[]string{"category", "tier", "outcome"},
	)

	RecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "usagemeter",
			Name:      "records_total",
			Help:      "Usage records by status",
		},
		[]string{"category", "status"},
	)

	StoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "usagemeter",
			Name:      "store_errors_total",
			Help:      "Counter store failures swallowed or reported by the metering path",
		},
		[]string{"op"}, // "check" / "record" / "snapshot"
	)

	StoreLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "usagemeter",
			Name:      "store_duration_seconds",
			Help:      "Counter store round-trip duration in seconds",
			Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"op"},
	)
)

var meteringRegistered bool

// RegisterMeteringMetrics registers metering metrics. Must be called once from main.
func RegisterMeteringMetrics() {
	if meteringRegistered {
		return
	}
	prometheus.MustRegister(ChecksTotal)
	prometheus.MustRegister(RecordsTotal)
	prometheus.MustRegister(StoreErrorsTotal)
	prometheus.MustRegister(StoreLatency)
	meteringRegistered = true
}
