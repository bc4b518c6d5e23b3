package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Observe(t *testing.T) {
	m := New("", "test")
	m.ObserveUnit("large_cap", "hit")
	m.ObserveUnit("large_cap", "hit")
	m.ObserveUnit("large_cap", "skip")
	m.ObserveScan("large_cap", 1500*time.Millisecond)
	m.ObserveAdvisoryAttempt("rate_limited")
	m.ObservePicksSwept(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ScanUnits.WithLabelValues("large_cap", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScanUnits.WithLabelValues("large_cap", "skip")))
	assert.Equal(t, 1.5, testutil.ToFloat64(m.ScanDuration.WithLabelValues("large_cap")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdvisoryAttempts.WithLabelValues("rate_limited")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PicksSwept))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveUnit("x", "hit")
	m.ObservePicksCreated(1)
	assert.NoError(t, m.Push(context.Background()))
}

func TestMetrics_Push(t *testing.T) {
	var pushes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pushes.Add(1)
		assert.Contains(t, r.URL.Path, "/metrics/job/kabuscout")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New(srv.URL, "kabuscout")
	m.ObservePicksCreated(1)
	require.NoError(t, m.Push(context.Background()))
	assert.Equal(t, int32(1), pushes.Load())

	assert.NoError(t, New("", "kabuscout").Push(context.Background()))
}
