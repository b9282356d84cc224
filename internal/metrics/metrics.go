// Package metrics exposes the bridge's Prometheus instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ringbridge"

// Metrics holds every collector on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry            *prometheus.Registry
	publishes           *prometheus.CounterVec
	suppressed          *prometheus.CounterVec
	dings               *prometheus.CounterVec
	commands            *prometheus.CounterVec
	commandAttempts     prometheus.Histogram
	republishCycles     prometheus.Counter
	devices             prometheus.Gauge
	busConnected        prometheus.Gauge
	locationsConnected  prometheus.Gauge
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New creates a fresh registry with the bridge collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_total",
			Help:      "Change-gated publications that reached the bus, by attribute",
		}, []string{"attribute"}),
		suppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suppressed_total",
			Help:      "Publications dropped because the value was unchanged, by attribute",
		}, []string{"attribute"}),
		dings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dings_total",
			Help:      "Camera motion and ding events received, by kind",
		}, []string{"kind"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Inbound commands dispatched, by device kind and outcome",
		}, []string{"device_kind", "outcome"}),
		commandAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_attempts",
			Help:      "State checks needed before a command was confirmed or abandoned",
			Buckets:   []float64{1, 2, 3, 5, 8, 12},
		}),
		republishCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "republish_cycles_total",
			Help:      "Republish passes executed by the scheduler",
		}),
		devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devices",
			Help:      "Devices currently held in the registry",
		}),
		busConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bus_connected",
			Help:      "1 while the MQTT connection is up",
		}),
		locationsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "locations_connected",
			Help:      "Locations whose remote connection is up",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of HTTP requests served by the monitoring API",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests served by the monitoring API",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}

	registry.MustRegister(
		m.publishes,
		m.suppressed,
		m.dings,
		m.commands,
		m.commandAttempts,
		m.republishCycles,
		m.devices,
		m.busConnected,
		m.locationsConnected,
		m.httpRequests,
		m.httpRequestDuration,
	)
	return m
}

// Emitted counts a publication that reached the bus.
func (m *Metrics) Emitted(_, attribute, _ string) {
	if m == nil {
		return
	}
	m.publishes.WithLabelValues(attribute).Inc()
}

// Suppressed counts a publication dropped as a duplicate.
func (m *Metrics) Suppressed(_, attribute string) {
	if m == nil {
		return
	}
	m.suppressed.WithLabelValues(attribute).Inc()
}

// IncDing counts a motion or ding event.
func (m *Metrics) IncDing(kind string) {
	if m == nil {
		return
	}
	m.dings.WithLabelValues(kind).Inc()
}

// ObserveCommand records a dispatched command and its attempt count.
func (m *Metrics) ObserveCommand(deviceKind, outcome string, attempts int) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(deviceKind, outcome).Inc()
	if attempts > 0 {
		m.commandAttempts.Observe(float64(attempts))
	}
}

// IncRepublishCycle counts one scheduler pass.
func (m *Metrics) IncRepublishCycle() {
	if m == nil {
		return
	}
	m.republishCycles.Inc()
}

// SetDevices sets the registered device gauge.
func (m *Metrics) SetDevices(n int) {
	if m == nil {
		return
	}
	m.devices.Set(float64(n))
}

// SetBusConnected sets the bus connectivity gauge.
func (m *Metrics) SetBusConnected(connected bool) {
	if m == nil {
		return
	}
	m.busConnected.Set(boolValue(connected))
}

// SetLocationsConnected sets the connected location gauge.
func (m *Metrics) SetLocationsConnected(n int) {
	if m == nil {
		return
	}
	m.locationsConnected.Set(float64(n))
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// Handler exposes the registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
