// Package metrics holds the Prometheus instruments shared by the store and
// the HTTP endpoint.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds all Prometheus metrics for litetx.
//
// A nil *Metrics is valid and records nothing, so library code can be used
// without a registry.
type Metrics struct {
	// LTX file metrics
	pagesTotal       *prometheus.CounterVec
	bytesTotal       *prometheus.CounterVec
	filesTotal       *prometheus.CounterVec
	checksumFailures prometheus.Counter
	fileDuration     *prometheus.HistogramVec

	// HTTP request metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight *prometheus.GaugeVec
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		pagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "litetx_pages_total",
				Help: "Total number of pages encoded or decoded",
			},
			[]string{"direction"},
		),

		bytesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "litetx_bytes_total",
				Help: "Total number of LTX bytes written or read",
			},
			[]string{"direction"},
		),

		filesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "litetx_files_total",
				Help: "Total number of LTX files processed",
			},
			[]string{"operation", "status"},
		),

		checksumFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "litetx_checksum_failures_total",
				Help: "Total number of files that failed checksum verification",
			},
		),

		fileDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "litetx_file_duration_seconds",
				Help:    "Time spent writing or reading a whole LTX file",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "litetx_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "litetx_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		httpRequestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "litetx_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
			[]string{"method", "endpoint"},
		),
	}
}

// Direction labels for page and byte counters.
const (
	Encode = "encode"
	Decode = "decode"
)

// RecordPages adds n pages in the given direction.
func (m *Metrics) RecordPages(direction string, n int) {
	if m == nil {
		return
	}
	m.pagesTotal.WithLabelValues(direction).Add(float64(n))
}

// RecordBytes adds n file bytes in the given direction.
func (m *Metrics) RecordBytes(direction string, n int64) {
	if m == nil {
		return
	}
	m.bytesTotal.WithLabelValues(direction).Add(float64(n))
}

// RecordFile records a completed file operation such as "commit" or "verify".
func (m *Metrics) RecordFile(operation string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	status := statusSuccess
	if !success {
		status = statusError
	}

	m.filesTotal.WithLabelValues(operation, status).Inc()
	m.fileDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordChecksumFailure counts a file rejected for a checksum mismatch.
func (m *Metrics) RecordChecksumFailure() {
	if m == nil {
		return
	}
	m.checksumFailures.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	statusCodeStr := strconv.Itoa(statusCode)

	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCodeStr).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// InstrumentHandler instruments an HTTP handler with metrics
func (m *Metrics) InstrumentHandler(method, endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	if m == nil {
		return handler
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		gauge := m.httpRequestsInFlight.WithLabelValues(method, endpoint)
		gauge.Inc()
		defer gauge.Dec()

		// Capture the status code written by the handler
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(rw, r)

		m.RecordHTTPRequest(method, endpoint, rw.statusCode, time.Since(start))
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
