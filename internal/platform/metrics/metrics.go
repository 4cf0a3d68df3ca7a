package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker/v2"
)

// Stream request outcomes.
const (
	OutcomeInitialized = "initialized"
	OutcomeFailed      = "failed"
	OutcomeRejected    = "rejected"
)

// Metrics holds Prometheus counters and gauges for the DAI session service.
type Metrics struct {
	registry            *prometheus.Registry
	requestsTotal       prometheus.Counter
	errorsTotal         prometheus.Counter
	sessionsCreated     prometheus.Counter
	sessionsClosed      prometheus.Counter
	activeSessions      prometheus.Gauge
	streamRequestsTotal *prometheus.CounterVec
	adEventsTotal       *prometheus.CounterVec
	playerErrorsTotal   prometheus.Counter
	breakerState        prometheus.Gauge
}

// New creates and registers Prometheus metrics for the service.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dai_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dai_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dai_sessions_created_total",
			Help: "Total number of playback sessions created",
		}),
		sessionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dai_sessions_closed_total",
			Help: "Total number of playback sessions closed",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dai_active_sessions",
			Help: "Number of open playback sessions",
		}),
		streamRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dai_stream_requests_total",
			Help: "Stream requests by outcome",
		}, []string{"outcome"}),
		adEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dai_ad_events_total",
			Help: "Ad lifecycle events delivered to sessions, by kind",
		}, []string{"kind"}),
		playerErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dai_player_errors_total",
			Help: "Total number of errors reported by players",
		}),
		breakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dai_decision_breaker_state",
			Help: "Decisioning circuit breaker state (0 closed, 1 half-open, 2 open)",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.sessionsCreated,
		m.sessionsClosed,
		m.activeSessions,
		m.streamRequestsTotal,
		m.adEventsTotal,
		m.playerErrorsTotal,
		m.breakerState,
	)
	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncSessionsCreated increments the sessions created counter.
func (m *Metrics) IncSessionsCreated() {
	m.sessionsCreated.Inc()
}

// IncSessionsClosed increments the sessions closed counter.
func (m *Metrics) IncSessionsClosed() {
	m.sessionsClosed.Inc()
}

// SetActiveSessions sets the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// IncStreamRequests counts a stream request with the given outcome.
func (m *Metrics) IncStreamRequests(outcome string) {
	m.streamRequestsTotal.WithLabelValues(outcome).Inc()
}

// IncAdEvents counts an ad lifecycle event of the given kind.
func (m *Metrics) IncAdEvents(kind string) {
	m.adEventsTotal.WithLabelValues(kind).Inc()
}

// IncPlayerErrors increments the player errors counter.
func (m *Metrics) IncPlayerErrors() {
	m.playerErrorsTotal.Inc()
}

// SetBreakerState records the decisioning circuit breaker state.
func (m *Metrics) SetBreakerState(state gobreaker.State) {
	switch state {
	case gobreaker.StateHalfOpen:
		m.breakerState.Set(1)
	case gobreaker.StateOpen:
		m.breakerState.Set(2)
	default:
		m.breakerState.Set(0)
	}
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active sessions).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
