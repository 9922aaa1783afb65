package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Pool(t *testing.T) {
	m := New()

	m.PoolLaunched(4)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.poolLaunches))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.poolWorkers))

	m.PoolClosed()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.poolWorkers))
}

func TestMetrics_FetchAttempts(t *testing.T) {
	m := New()

	m.FetchAttempt("success", 200*time.Millisecond)
	m.FetchAttempt("navigation_failure", time.Second)
	m.FetchAttempt("navigation_failure", time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetchAttempts.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.fetchAttempts.WithLabelValues("navigation_failure")))
}

func TestMetrics_Downloads(t *testing.T) {
	m := New()

	m.DownloadStarted()
	m.DownloadStarted()
	m.DownloadFinished("succeeded", true)
	m.DownloadFinished("failed", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.downloadsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.downloadsTotal.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.downloadsTotal.WithLabelValues("failed")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.PoolLaunched(1)
		m.PoolClosed()
		m.FetchAttempt("success", time.Second)
		m.DownloadStarted()
		m.DownloadFinished("failed", true)
	})
	assert.Nil(t, m.Registry())
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.PoolLaunched(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "siphon_browser_pool_workers 2"))
}
