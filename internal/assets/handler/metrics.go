package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmerrifield20/riskengine/internal/assets/model"
)

var (
	riskRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "risk_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	riskRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "risk_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	riskHeartbeatsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "risk_heartbeats_total",
		Help: "Total ingested heartbeats by upsert action.",
	}, []string{"action"})

	riskAssetScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "risk_asset_score",
		Help:    "Distribution of computed asset risk scores.",
		Buckets: []float64{10, 25, 50, 75, 90, 100},
	})

	riskScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "risk_scans_total",
		Help: "Total discovery scans by terminal status.",
	}, []string{"status"})

	riskScanAssetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "risk_scan_assets_total",
		Help: "Assets recorded by discovery scans, new or updated.",
	}, []string{"kind"})

	riskAssetsInactiveTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "risk_assets_marked_inactive_total",
		Help: "Total assets marked inactive by the staleness sweeper.",
	})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		riskRequestsTotal.WithLabelValues(method, path, status).Inc()
		riskRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordHeartbeat records one ingested heartbeat and its score.
func RecordHeartbeat(action model.UpsertAction, score int) {
	riskHeartbeatsTotal.WithLabelValues(string(action)).Inc()
	riskAssetScore.Observe(float64(score))
}

// RecordScanFinished records the terminal state and counters of a scan.
func RecordScanFinished(res model.ScanResult) {
	riskScansTotal.WithLabelValues(string(res.Status)).Inc()
	riskScanAssetsTotal.WithLabelValues("new").Add(float64(res.AssetsNew))
	riskScanAssetsTotal.WithLabelValues("updated").Add(float64(res.AssetsUpdated))
}

// RecordAssetsMarkedInactive records one staleness sweep.
func RecordAssetsMarkedInactive(n int) {
	riskAssetsInactiveTotal.Add(float64(n))
}
