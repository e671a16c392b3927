package gateway

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flemzord/aamo/internal/provider"
	"github.com/flemzord/aamo/internal/relay"
)

const metricsNamespace = "aamo"

// Metrics exports exchange counters on its own Prometheus registry.
// It implements relay.Recorder.
type Metrics struct {
	registry  *prometheus.Registry
	exchanges *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	tokens    *prometheus.CounterVec
	wsConns   prometheus.Gauge

	mu       sync.RWMutex
	sessions func() int
}

// NewMetrics creates the collectors and registers them together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "exchanges_total",
			Help:      "Chat exchanges by outcome.",
		}, []string{"outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "exchange_duration_seconds",
			Help:      "Time to produce a reply, by outcome.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"outcome"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "completion_tokens_total",
			Help:      "Tokens reported by the completion backend.",
		}, []string{"kind"}),
		wsConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "websocket_connections",
			Help:      "Open WebSocket chat connections.",
		}),
	}

	sessions := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "sessions",
		Help:      "Sessions with stored history.",
	}, func() float64 { return float64(m.sessionCount()) })

	m.registry.MustRegister(
		m.exchanges,
		m.latency,
		m.tokens,
		m.wsConns,
		sessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Expose every outcome from the first scrape.
	for _, o := range relay.Outcomes {
		m.exchanges.WithLabelValues(string(o))
	}

	return m
}

// RecordExchange implements relay.Recorder.
func (m *Metrics) RecordExchange(outcome relay.Outcome, latency time.Duration) {
	m.exchanges.WithLabelValues(string(outcome)).Inc()
	m.latency.WithLabelValues(string(outcome)).Observe(latency.Seconds())
}

// RecordTokens implements relay.Recorder.
func (m *Metrics) RecordTokens(usage provider.TokenUsage) {
	if usage.PromptTokens > 0 {
		m.tokens.WithLabelValues("prompt").Add(float64(usage.PromptTokens))
	}
	if usage.CompletionTokens > 0 {
		m.tokens.WithLabelValues("completion").Add(float64(usage.CompletionTokens))
	}
}

// SetSessionCounter installs the function backing the sessions gauge.
func (m *Metrics) SetSessionCounter(fn func() int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = fn
}

func (m *Metrics) sessionCount() int {
	m.mu.RLock()
	fn := m.sessions
	m.mu.RUnlock()
	if fn == nil {
		return 0
	}
	return fn()
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
