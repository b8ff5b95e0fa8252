package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsStatus(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("day:summarize").End(nil))
	err := errors.New("boom")
	require.ErrorIs(t, m.Track("day:summarize").End(err), err)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("day:summarize", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("day:summarize", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("day:summarize")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	require.NoError(t, m.Track("idempotency:cleanup").End(nil))
	m.AddPurged(3)
}

func TestAddPurged(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddPurged(0)
	m.AddPurged(4)
	require.Equal(t, 4.0, testutil.ToFloat64(m.purged))
}
