package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestOutboxMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)

	m.Dispatched("order_created", OutboxPublished)
	m.Dispatched("order_created", OutboxPublished)
	m.Dispatched("order_cancelled", OutboxDeadLettered)
	m.ObserveBatch(30 * time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(m.dispatched.WithLabelValues("order_created", OutboxPublished)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.dispatched.WithLabelValues("order_cancelled", OutboxDeadLettered)))

	count, err := testutil.GatherAndCount(reg, "storefront_outbox_batch_duration_seconds")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestOutboxMetricsNilSafe(t *testing.T) {
	var m *OutboxMetrics
	m.Dispatched("x", OutboxRetried)
	m.ObserveBatch(time.Second)
}
