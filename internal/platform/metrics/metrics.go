package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the playback controller.
type Metrics struct {
	registry              *prometheus.Registry
	requestsTotal         prometheus.Counter
	errorsTotal           prometheus.Counter
	switchesNativeTotal   prometheus.Counter
	switchesReloadTotal   prometheus.Counter
	restoreTimeoutsTotal  prometheus.Counter
	reconcilerMergesTotal prometheus.Counter
	sessionsEndedTotal    prometheus.Counter
	activeSessions        prometheus.Gauge
}

// New creates and registers Prometheus metrics for the playback controller.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	switchesNativeTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_switches_native_total",
		Help: "Total number of quality switches completed via in-engine rendition selection",
	})
	switchesReloadTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_switches_reload_total",
		Help: "Total number of quality switches that replaced the media source",
	})
	restoreTimeoutsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_restore_timeouts_total",
		Help: "Total number of position restores abandoned because metadata-ready never fired",
	})
	reconcilerMergesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_reconciler_merges_total",
		Help: "Total number of engine-discovered rendition lists merged into sessions",
	})
	sessionsEndedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_sessions_ended_total",
		Help: "Total number of playback sessions torn down",
	})
	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "playback_active_sessions",
		Help: "Number of live playback sessions",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		switchesNativeTotal,
		switchesReloadTotal,
		restoreTimeoutsTotal,
		reconcilerMergesTotal,
		sessionsEndedTotal,
		activeSessions,
	)

	return &Metrics{
		registry:              registry,
		requestsTotal:         requestsTotal,
		errorsTotal:           errorsTotal,
		switchesNativeTotal:   switchesNativeTotal,
		switchesReloadTotal:   switchesReloadTotal,
		restoreTimeoutsTotal:  restoreTimeoutsTotal,
		reconcilerMergesTotal: reconcilerMergesTotal,
		sessionsEndedTotal:    sessionsEndedTotal,
		activeSessions:        activeSessions,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncSwitchesNative increments the in-engine switch counter.
func (m *Metrics) IncSwitchesNative() {
	m.switchesNativeTotal.Inc()
}

// IncSwitchesReload increments the source-reload switch counter.
func (m *Metrics) IncSwitchesReload() {
	m.switchesReloadTotal.Inc()
}

// IncRestoreTimeouts increments the abandoned-restore counter.
func (m *Metrics) IncRestoreTimeouts() {
	m.restoreTimeoutsTotal.Inc()
}

// IncReconcilerMerges increments the merged discovered-list counter.
func (m *Metrics) IncReconcilerMerges() {
	m.reconcilerMergesTotal.Inc()
}

// IncSessionsEnded increments the sessions ended counter.
func (m *Metrics) IncSessionsEnded() {
	m.sessionsEndedTotal.Inc()
}

// SetActiveSessions sets the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g.
// active sessions).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
