package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Gateway metrics (SPEC_FULL.md §2)
	hl7MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hl7_messages_received_total",
			Help: "Total number of inbound HL7 messages processed, by trigger and resulting ACK code",
		},
		[]string{"trigger", "ack"},
	)

	hl7MessagesEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hl7_messages_emitted_total",
			Help: "Total number of outbound HL7 messages dispatched to subscribers, by transport kind and fate",
		},
		[]string{"kind", "status"},
	)

	pamTransitionRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pam_transition_rejections_total",
			Help: "Total number of PAM state-machine transitions rejected",
		},
	)

	emissionQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "emission_queue_depth",
			Help: "Current number of outbox tasks queued for dispatch",
		},
	)

	// Database metrics
	dbConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
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

// normalizePath normalizes URL paths for metrics to avoid cardinality explosion
func normalizePath(path string) string {
	// Replace UUIDs with placeholder
	// Simple heuristic: segments that look like UUIDs
	// In production, use proper path templates
	if len(path) > 100 {
		return "/api/..."
	}
	return path
}

// --- Gateway metric helpers ---

// RecordHL7Received records one inbound HL7 message's trigger and the ACK
// code the gateway replied with.
func RecordHL7Received(trigger, ack string) {
	hl7MessagesReceived.WithLabelValues(trigger, ack).Inc()
}

// RecordHL7Emitted records one outbound dispatch attempt to a subscriber,
// by transport kind (MLLP/FILE/FHIR) and the message-log status it landed
// under (sent, ack_ok, ack_error, generator_error, ...).
func RecordHL7Emitted(kind, status string) {
	hl7MessagesEmitted.WithLabelValues(kind, status).Inc()
}

// RecordPAMTransitionRejection records a PAM state-machine transition or
// correction the gateway refused.
func RecordPAMTransitionRejection() {
	pamTransitionRejections.Inc()
}

// SetEmissionQueueDepth reports the emission engine's current in-memory
// task queue length.
func SetEmissionQueueDepth(depth int) {
	emissionQueueDepth.Set(float64(depth))
}

// RecordDBConnections records active database connections
func RecordDBConnections(count int) {
	dbConnectionsActive.Set(float64(count))
}

// RecordDBQuery records a database query duration
func RecordDBQuery(operation string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
