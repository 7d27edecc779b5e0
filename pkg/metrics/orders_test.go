package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestOrderMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetrics(reg)

	m.IncPlaced("COD")
	m.IncPlaced("COD")
	m.IncRejected("INSUFFICIENT_STOCK")
	m.IncTransition("pending", "processing")

	require.Equal(t, 2.0, testutil.ToFloat64(m.placed.WithLabelValues("COD")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.rejected.WithLabelValues("INSUFFICIENT_STOCK")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("pending", "processing")))
}

func TestOrderMetricsNilSafe(t *testing.T) {
	var m *OrderMetrics
	m.IncPlaced("BANK")
	m.IncRejected("")
	NewOrderMetrics(nil).IncTransition("a", "b")
}
