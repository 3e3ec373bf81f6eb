package observability

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveStep(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveStep(2*time.Millisecond, nil)
	m.ObserveStep(3*time.Millisecond, nil)
	m.ObserveStep(time.Millisecond, errors.New("launch failed"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.StepsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StepFailuresTotal))
}

func TestObserveSnapshot(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveSnapshot(nil)
	m.ObserveSnapshot(errors.New("disk full"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotErrorsTotal))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveStep(time.Second, nil)
	m.ObserveSnapshot(nil)
	m.ObserveBroadcast(time.Second)
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.ObserveBroadcast(5 * time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "ising_broadcast_duration_seconds_count 1"))
}
