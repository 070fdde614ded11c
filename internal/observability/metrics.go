package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labdeck",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "labdeck",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	bridgeCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labdeck",
			Subsystem: "bridge",
			Name:      "commands_total",
			Help:      "Commands sent to the execution backend by outcome.",
		},
		[]string{"outcome"},
	)
	bridgeCommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "labdeck",
			Subsystem: "bridge",
			Name:      "command_duration_seconds",
			Help:      "Command round-trip duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	telemetryMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labdeck",
			Subsystem: "bridge",
			Name:      "telemetry_messages_total",
			Help:      "Telemetry messages received by topic.",
		},
		[]string{"topic"},
	)
	telemetryParseErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "labdeck",
			Subsystem: "bridge",
			Name:      "telemetry_parse_errors_total",
			Help:      "Telemetry payloads that could not be parsed.",
		},
	)
	backendExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labdeck",
			Subsystem: "backend",
			Name:      "exits_total",
			Help:      "Backend process exits by exit code.",
		},
		[]string{"code"},
	)
	wsClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "labdeck",
			Subsystem: "ws",
			Name:      "clients",
			Help:      "Connected telemetry websocket clients.",
		},
	)
	wsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "labdeck",
			Subsystem: "ws",
			Name:      "dropped_messages_total",
			Help:      "Telemetry frames dropped because a client queue was full.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			bridgeCommands,
			bridgeCommandDuration,
			telemetryMessages,
			telemetryParseErrors,
			backendExits,
			wsClients,
			wsDropped,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// RecordBridgeCommand records one command exchange. outcome is ok, error, or timeout.
func RecordBridgeCommand(outcome string, duration time.Duration) {
	RegisterMetrics()
	bridgeCommands.WithLabelValues(outcome).Inc()
	bridgeCommandDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func RecordTelemetryMessage(topic string) {
	RegisterMetrics()
	telemetryMessages.WithLabelValues(topic).Inc()
}

func RecordTelemetryParseError() {
	RegisterMetrics()
	telemetryParseErrors.Inc()
}

func RecordBackendExit(code int) {
	RegisterMetrics()
	backendExits.WithLabelValues(strconv.Itoa(code)).Inc()
}

func AddWebsocketClients(delta int) {
	RegisterMetrics()
	wsClients.Add(float64(delta))
}

func RecordWebsocketDrop() {
	RegisterMetrics()
	wsDropped.Inc()
}
