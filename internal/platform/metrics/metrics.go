package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for ledger operations.
// All methods are safe on a nil receiver so services can run without metrics.
type Metrics struct {
	Operations           *prometheus.CounterVec
	OperationDuration    *prometheus.HistogramVec
	VersionConflicts     *prometheus.CounterVec
	EscrowsCompleted     prometheus.Counter
	OwnershipTransfers   prometheus.Counter
	EventsPublished      prometheus.Counter
	EventPublishFailures prometheus.Counter
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rotrust_ledger_operations_total",
			Help: "Ledger operations by operation and outcome code",
		}, []string{"operation", "outcome"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rotrust_ledger_operation_duration_seconds",
			Help:    "Wall time of ledger operations including commit",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		VersionConflicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rotrust_ledger_version_conflicts_total",
			Help: "Transactions rejected because a read or expected version was stale",
		}, []string{"operation"}),
		EscrowsCompleted: f.NewCounter(prometheus.CounterOpts{
			Name: "rotrust_escrows_completed_total",
			Help: "Escrows that committed the three-way completion",
		}),
		OwnershipTransfers: f.NewCounter(prometheus.CounterOpts{
			Name: "rotrust_ownership_transfers_total",
			Help: "Committed property ownership changes",
		}),
		EventsPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "rotrust_events_published_total",
			Help: "Ledger events handed to the publisher",
		}),
		EventPublishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "rotrust_event_publish_failures_total",
			Help: "Publish calls that failed after commit",
		}),
	}
}

// ObserveOperation records one operation outcome. outcome is "ok" or an
// error code.
func (m *Metrics) ObserveOperation(operation, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(operation, outcome).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementVersionConflicts(operation string) {
	if m == nil {
		return
	}
	m.VersionConflicts.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncrementEscrowsCompleted() {
	if m == nil {
		return
	}
	m.EscrowsCompleted.Inc()
}

func (m *Metrics) IncrementOwnershipTransfers() {
	if m == nil {
		return
	}
	m.OwnershipTransfers.Inc()
}

func (m *Metrics) AddEventsPublished(n int) {
	if m == nil {
		return
	}
	m.EventsPublished.Add(float64(n))
}

func (m *Metrics) IncrementEventPublishFailures() {
	if m == nil {
		return
	}
	m.EventPublishFailures.Inc()
}
