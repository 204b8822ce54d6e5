package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the service's Prometheus metrics. A nil *Collector is valid
// and records nothing.
type Collector struct {
	generations       *prometheus.CounterVec
	generationLatency prometheus.Histogram
	tipSources        *prometheus.CounterVec
	backgroundFailed  *prometheus.CounterVec
	uploads           *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpLatency       *prometheus.HistogramVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photolineart_generations_total",
			Help: "Line-art generation requests by outcome.",
		}, []string{"outcome"}),
		generationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "photolineart_generation_duration_seconds",
			Help:    "End-to-end duration of successful generations.",
			Buckets: []float64{5, 10, 20, 30, 45, 60, 90, 120, 180},
		}),
		tipSources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photolineart_tips_total",
			Help: "Tips returned by source (semantic or fallback).",
		}, []string{"source"}),
		backgroundFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photolineart_background_task_failures_total",
			Help: "Fire-and-forget tasks that returned an error.",
		}, []string{"task"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photolineart_uploads_total",
			Help: "Direct blob uploads by content type.",
		}, []string{"content_type"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photolineart_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "photolineart_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		c.generations,
		c.generationLatency,
		c.tipSources,
		c.backgroundFailed,
		c.uploads,
		c.httpRequests,
		c.httpLatency,
	)

	return c
}

func (c *Collector) RecordGeneration(outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.generations.WithLabelValues(outcome).Inc()
	if duration > 0 {
		c.generationLatency.Observe(duration.Seconds())
	}
}

func (c *Collector) RecordTips(source string, count int) {
	if c == nil || count <= 0 {
		return
	}
	c.tipSources.WithLabelValues(source).Add(float64(count))
}

func (c *Collector) RecordBackgroundFailure(task string) {
	if c == nil {
		return
	}
	c.backgroundFailed.WithLabelValues(task).Inc()
}

func (c *Collector) RecordUpload(contentType string) {
	if c == nil {
		return
	}
	c.uploads.WithLabelValues(contentType).Inc()
}

func (c *Collector) RecordHTTP(route string, statusCode int, duration time.Duration) {
	if c == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	c.httpRequests.WithLabelValues(route, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.WithLabelValues(route).Observe(duration.Seconds())
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
