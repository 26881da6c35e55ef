package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prom.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.SetQueueDepth(3)
	m.SetActiveExecutions(1)
	m.ExecutionFinished("completed", 2*time.Second)
	m.ExecutionFinished("failed", 0)
	m.SetConnections(4)
	m.EventDropped()

	assert.Equal(t, float64(3), testutil.ToFloat64(m.queueDepth))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.activeExecutions))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.executionsTotal.WithLabelValues("completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.executionsTotal.WithLabelValues("failed")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.hubConnections))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.hubDropped))
	assert.Equal(t, 1, testutil.CollectAndCount(m.executionDuration))
}

func TestMetrics_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := New(reg)
	require.NoError(t, err)
	second, err := New(reg)
	require.NoError(t, err)

	first.EventDropped()
	second.EventDropped()
	assert.Equal(t, float64(2), testutil.ToFloat64(first.hubDropped))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.SetQueueDepth(1)
	m.ExecutionFinished("completed", time.Second)
	m.EventDropped()
}
