package telemetry

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	requestDurationHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	requestCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_count_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	activeRequestsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_request_active",
			Help: "Number of active HTTP requests",
		},
	)

	// Error metrics
	errorCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "error_total",
			Help: "Total number of errors by type and component",
		},
		[]string{"type", "component"},
	)

	// Webhook metrics
	webhookCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_calls_total",
			Help: "Total number of webhook calls",
		},
		[]string{"status", "type"},
	)

	webhookDurationHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_duration_seconds",
			Help:    "Duration of webhook calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status", "type"},
	)

	// Contribution metrics
	contributionCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contributions_total",
			Help: "Total number of recorded contributions by status",
		},
		[]string{"status"},
	)

	exclusionCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contribution_exclusions_total",
			Help: "Total number of contributions excluded during aggregation by reason",
		},
		[]string{"reason"},
	)

	// Aggregation metrics
	aggregationCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregations_total",
			Help: "Total number of aggregation attempts by outcome",
		},
		[]string{"status"},
	)

	aggregationDurationHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aggregation_duration_seconds",
			Help:    "Duration of aggregation attempts in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	activeSessionsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Number of currently active training sessions",
		},
	)

	// System metrics
	systemMemoryGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "system_memory_used_bytes",
			Help: "Resident memory used on the host in bytes",
		},
	)

	systemCPUGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "system_cpu_percent",
			Help: "Host CPU utilization percentage",
		},
	)
)

// MetricsHandler returns an http.Handler that serves the metrics endpoint
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// MetricsMiddleware wraps an http.Handler and records metrics about the request
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}

		activeRequestsGauge.Inc()
		defer activeRequestsGauge.Dec()

		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		labels := prometheus.Labels{
			"method": r.Method,
			"path":   r.URL.Path,
			"status": fmt.Sprintf("%d", sw.status),
		}

		requestDurationHistogram.With(labels).Observe(duration)
		requestCounter.With(labels).Inc()
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Hijack hands the underlying connection to websocket upgrades.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// RecordWebhook records webhook metrics
func RecordWebhook(webhookType string, status string, duration time.Duration) {
	webhookCounter.WithLabelValues(status, webhookType).Inc()
	webhookDurationHistogram.WithLabelValues(status, webhookType).Observe(duration.Seconds())
}

// RecordContribution records a ledger entry by its status at submission time
func RecordContribution(status string) {
	contributionCounter.WithLabelValues(status).Inc()
}

// RecordExclusion records a contribution excluded during aggregation
func RecordExclusion(reason string) {
	exclusionCounter.WithLabelValues(reason).Inc()
}

// RecordAggregation records the outcome and duration of an aggregation attempt
func RecordAggregation(status string, duration time.Duration) {
	aggregationCounter.WithLabelValues(status).Inc()
	if duration > 0 {
		aggregationDurationHistogram.WithLabelValues(status).Observe(duration.Seconds())
	}
}

// AddActiveSessions adjusts the active sessions gauge
func AddActiveSessions(delta float64) {
	activeSessionsGauge.Add(delta)
}

// UpdateSystemMetrics publishes host resource usage sampled elsewhere
func UpdateSystemMetrics(memoryBytes int64, cpuPercent float64) {
	systemMemoryGauge.Set(float64(memoryBytes))
	systemCPUGauge.Set(cpuPercent)
}

// RecordError records an error occurrence by type and component
func RecordError(errorType string, component string) {
	errorCounter.WithLabelValues(errorType, component).Inc()
}
