package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "engage"

var (
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	requestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests"},
		[]string{"method", "path", "status"},
	)
	serviceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Name: "external_call_duration_seconds", Help: "Duration of calls to external providers"},
		[]string{"service", "outcome"},
	)
	serviceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "external_call_total", Help: "Total calls to external providers"},
		[]string{"service", "outcome"},
	)
	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: namespace, Name: "circuit_breaker_state", Help: "Circuit breaker state: 0=closed, 1=open, 2=half-open"},
		[]string{"service"},
	)
	breakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "circuit_breaker_transitions_total", Help: "Circuit breaker state changes"},
		[]string{"service"},
	)
	trackedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "tracking_events_total", Help: "Tracking events by category and outcome"},
		[]string{"category", "outcome"},
	)
	broadcastTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "tracking_broadcast_total", Help: "Broadcast deliveries by sink and outcome"},
		[]string{"sink", "outcome"},
	)
	tagSyncTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "gtm_tag_sync_total", Help: "GTM tag synchronisations by action"},
		[]string{"action"},
	)
	wsClients = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: namespace, Name: "tracking_ws_clients", Help: "Connected tracking websocket clients"},
	)
)

func init() {
	prometheus.MustRegister(requestDuration, requestTotal, serviceDuration, serviceTotal,
		breakerState, breakerTransitions, trackedEvents, broadcastTotal, tagSyncTotal, wsClients)
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordRequest records a request
func RecordRequest(method, path string, status int, latency time.Duration) {
	code := strconv.Itoa(status)
	requestDuration.WithLabelValues(method, path, code).Observe(latency.Seconds())
	requestTotal.WithLabelValues(method, path, code).Inc()
}

// RecordServiceCall records a service call
func RecordServiceCall(service string, success bool, latency time.Duration) {
	o := outcome(success)
	serviceDuration.WithLabelValues(service, o).Observe(latency.Seconds())
	serviceTotal.WithLabelValues(service, o).Inc()
}

// UpdateCircuitBreaker records a breaker transition. state is 0 closed,
// 1 open, 2 half-open.
func UpdateCircuitBreaker(service string, state int) {
	breakerState.WithLabelValues(service).Set(float64(state))
	breakerTransitions.WithLabelValues(service).Inc()
}

func RecordTrackedEvent(category string, success bool) {
	trackedEvents.WithLabelValues(category, outcome(success)).Inc()
}

func RecordBroadcast(sink string, success bool) {
	broadcastTotal.WithLabelValues(sink, outcome(success)).Inc()
}

// RecordTagSync counts GTM writes; action is created, updated or failed.
func RecordTagSync(action string) {
	tagSyncTotal.WithLabelValues(action).Inc()
}

func SetWebsocketClients(n int) {
	wsClients.Set(float64(n))
}

// Handler exposes the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
