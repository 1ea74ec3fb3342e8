package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounters(t *testing.T) {
	c, err := NewCollector()
	require.NoError(t, err)

	c.JobEvent("publish", "completed")
	c.JobEvent("publish", "completed")
	c.JobFailure("publish", "", true)
	c.PlatformResult("juejin", "success")
	c.BatchItems("csdn", 3, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.jobEvents.WithLabelValues("publish", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobFailures.WithLabelValues("publish", "unknown", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.platformTotal.WithLabelValues("juejin", "success")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.batchItems.WithLabelValues("csdn", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.batchItems.WithLabelValues("csdn", "failed")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c, err := NewCollector()
	require.NoError(t, err)
	c.JobEvent("scrape", "failed")
	c.JobDuration("scrape", "failed", 3*time.Second)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `crosspost_jobs_events_total{event="failed",queue="scrape"} 1`)
	assert.Contains(t, string(body), "crosspost_jobs_duration_seconds_count")
}
