// Package metrics exposes Prometheus metrics for the voice agent.
//
// All Record methods are safe to call on a nil *Metrics, so components can
// take an optional metrics dependency without branching.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "barbie"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	registry *prometheus.Registry
	ns       string

	// Turn metrics
	TurnsTotal *prometheus.CounterVec

	// Provider metrics
	ProviderErrorsTotal *prometheus.CounterVec
	ProviderDuration    *prometheus.HistogramVec

	// Relay metrics
	RelayStreamsTotal     *prometheus.CounterVec
	RelayActive           prometheus.Gauge
	RelayAudioChunksTotal prometheus.Counter

	// Session metrics
	SessionsEvictedTotal prometheus.Counter
}

// New creates a Metrics instance with its own registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	registry := prometheus.NewRegistry()

	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Chat turns by input kind and outcome",
		},
		[]string{"input", "outcome"},
	)

	providerErrorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider call failures by provider and error kind",
		},
		[]string{"provider", "kind"},
	)

	providerDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_duration_seconds",
			Help:      "Provider call duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	relayStreamsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_streams_total",
			Help:      "Streamed turns by terminal state",
		},
		[]string{"state"},
	)

	relayActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_active",
			Help:      "Client WebSocket connections currently served",
		},
	)

	relayAudioChunksTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_audio_chunks_total",
			Help:      "Audio chunks forwarded to clients",
		},
	)

	sessionsEvictedTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_evicted_total",
			Help:      "Sessions dropped from the store",
		},
	)

	registry.MustRegister(
		turnsTotal,
		providerErrorsTotal,
		providerDuration,
		relayStreamsTotal,
		relayActive,
		relayAudioChunksTotal,
		sessionsEvictedTotal,
	)

	return &Metrics{
		registry:              registry,
		ns:                    namespace,
		TurnsTotal:            turnsTotal,
		ProviderErrorsTotal:   providerErrorsTotal,
		ProviderDuration:      providerDuration,
		RelayStreamsTotal:     relayStreamsTotal,
		RelayActive:           relayActive,
		RelayAudioChunksTotal: relayAudioChunksTotal,
		SessionsEvictedTotal:  sessionsEvictedTotal,
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSessions registers a gauge that reports count() at scrape time.
func (m *Metrics) ObserveSessions(count func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: m.ns,
			Name:      "sessions_active",
			Help:      "Sessions currently held in memory",
		},
		func() float64 { return float64(count()) },
	))
}

// RecordTurn records a finished chat turn.
func (m *Metrics) RecordTurn(input, outcome string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(input, outcome).Inc()
}

// RecordProviderCall records a provider call's duration.
func (m *Metrics) RecordProviderCall(provider string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ProviderDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordProviderError records a failed provider call.
func (m *Metrics) RecordProviderError(provider, kind string) {
	if m == nil {
		return
	}
	m.ProviderErrorsTotal.WithLabelValues(provider, kind).Inc()
}

// RecordRelayStart records a client connection being served.
func (m *Metrics) RecordRelayStart() {
	if m == nil {
		return
	}
	m.RelayActive.Inc()
}

// RecordRelayEnd records a client connection closing.
func (m *Metrics) RecordRelayEnd() {
	if m == nil {
		return
	}
	m.RelayActive.Dec()
}

// RecordStream records a streamed turn reaching a terminal state.
func (m *Metrics) RecordStream(state string) {
	if m == nil {
		return
	}
	m.RelayStreamsTotal.WithLabelValues(state).Inc()
}

// RecordAudioChunk records one chunk forwarded to a client.
func (m *Metrics) RecordAudioChunk() {
	if m == nil {
		return
	}
	m.RelayAudioChunksTotal.Inc()
}

// RecordSessionEvicted records a session leaving the store.
func (m *Metrics) RecordSessionEvicted() {
	if m == nil {
		return
	}
	m.SessionsEvictedTotal.Inc()
}
