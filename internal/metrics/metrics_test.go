package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"photolineart-backend/internal/metrics"
)

func TestHandler_ServesRecordedMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)
	c.RecordGeneration("free", 12*time.Second)
	c.RecordTips("fallback", 3)
	c.RecordBackgroundFailure("credits_update")
	c.RecordHTTP("/api/ai-lineart", 200, time.Second)

	w := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	body, _ := io.ReadAll(w.Body)
	assert.Contains(t, string(body), `photolineart_generations_total{outcome="free"} 1`)
	assert.Contains(t, string(body), `photolineart_tips_total{source="fallback"} 3`)
	assert.Contains(t, string(body), `photolineart_background_task_failures_total{task="credits_update"} 1`)
	assert.Contains(t, string(body), `route="/api/ai-lineart"`)
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *metrics.Collector
	assert.NotPanics(t, func() {
		c.RecordGeneration("error", 0)
		c.RecordTips("semantic", 1)
		c.RecordBackgroundFailure("x")
		c.RecordUpload("image/png")
		c.RecordHTTP("", 500, time.Millisecond)
	})
}
