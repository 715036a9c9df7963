package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveOperation(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveOperation("CompleteEscrow", "ok", time.Now())
	m.ObserveOperation("CompleteEscrow", "ownership_mismatch", time.Now())
	m.ObserveOperation("CompleteEscrow", "ok", time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Operations.WithLabelValues("CompleteEscrow", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("CompleteEscrow", "ownership_mismatch")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveOperation("AddPayment", "ok", time.Now())
		m.IncrementVersionConflicts("AddPayment")
		m.IncrementEscrowsCompleted()
		m.IncrementOwnershipTransfers()
		m.AddEventsPublished(3)
		m.IncrementEventPublishFailures()
	})
}
