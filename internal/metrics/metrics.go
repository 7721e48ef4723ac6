// Package metrics exposes presence detector counters to Prometheus.
package metrics

import (
	"math"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ayusman/moyu/internal/presence"
)

// Metrics holds all application metrics. It implements presence.Recorder.
type Metrics struct {
	// Frame processing counters
	Cycles         atomic.Uint64
	LowLightFrames atomic.Uint64
	Candidates     atomic.Uint64
	Detections     atomic.Uint64

	// Latest cycle values
	Present         atomic.Uint64 // 0 = clear, 1 = present
	Brightness      atomic.Uint64 // float64 bits
	CycleLatencyMs  atomic.Uint64
	PresentFrames   atomic.Uint64
	AbsentFrames    atomic.Uint64
	StateChanges    atomic.Uint64
	lastPresentSeen atomic.Bool

	// Alerts
	AlertsFired atomic.Uint64

	// Preview clients
	StreamClients atomic.Int64

	cycleErrors    *prometheus.CounterVec
	actionFailures *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.registerPrometheusMetrics()

	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	gauge := func(name, help string, fn func() float64) {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn))
	}
	counter := func(name, help string, fn func() float64) {
		m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{Name: name, Help: help}, fn))
	}
	load := func(v *atomic.Uint64) func() float64 {
		return func() float64 { return float64(v.Load()) }
	}

	// Frame processing metrics
	counter("moyu_cycles_total", "Completed detection cycles", load(&m.Cycles))
	counter("moyu_low_light_frames_total", "Frames skipped by the low-light gate", load(&m.LowLightFrames))
	counter("moyu_candidates_total", "Raw detector candidates", load(&m.Candidates))
	counter("moyu_detections_total", "Candidates that passed filtering", load(&m.Detections))

	// State metrics
	gauge("moyu_present", "Debounced presence state (0=clear, 1=present)", load(&m.Present))
	gauge("moyu_frame_brightness", "Mean gray level of the last frame", func() float64 {
		return math.Float64frombits(m.Brightness.Load())
	})
	gauge("moyu_cycle_latency_ms", "Duration of the last cycle in milliseconds", load(&m.CycleLatencyMs))
	gauge("moyu_present_frames", "Consecutive qualifying frames", load(&m.PresentFrames))
	gauge("moyu_absent_frames", "Consecutive non-qualifying frames", load(&m.AbsentFrames))
	counter("moyu_state_changes_total", "Debounced state transitions", load(&m.StateChanges))

	// Alert metrics
	counter("moyu_alerts_total", "Alerts fired", load(&m.AlertsFired))

	gauge("moyu_stream_clients", "Connected preview clients", func() float64 {
		return float64(m.StreamClients.Load())
	})

	m.cycleErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moyu_cycle_errors_total",
		Help: "Skipped detection cycles by cause",
	}, []string{"kind"})
	m.actionFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moyu_alert_action_failures_total",
		Help: "Failed alert actions by action name",
	}, []string{"action"})
	m.registry.MustRegister(m.cycleErrors, m.actionFailures)
}

// ObserveCycle records one completed cycle.
func (m *Metrics) ObserveCycle(r presence.CycleResult) {
	m.Cycles.Add(1)
	if r.LowLight {
		m.LowLightFrames.Add(1)
	}
	m.Candidates.Add(uint64(r.Candidates))
	m.Detections.Add(uint64(r.Detections))

	var present uint64
	if r.Present {
		present = 1
	}
	m.Present.Store(present)
	if m.lastPresentSeen.Swap(r.Present) != r.Present {
		m.StateChanges.Add(1)
	}

	m.Brightness.Store(math.Float64bits(r.Brightness))
	m.CycleLatencyMs.Store(uint64(r.Duration.Milliseconds()))
	m.PresentFrames.Store(uint64(r.PresentFrames))
	m.AbsentFrames.Store(uint64(r.AbsentFrames))
}

// CycleError records a skipped cycle.
func (m *Metrics) CycleError(kind string) {
	m.cycleErrors.WithLabelValues(kind).Inc()
}

// AlertFired records a fired alert.
func (m *Metrics) AlertFired() {
	m.AlertsFired.Add(1)
}

// ActionFailed records a failed alert action.
func (m *Metrics) ActionFailed(action string) {
	m.actionFailures.WithLabelValues(action).Inc()
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
