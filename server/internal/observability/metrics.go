package observability

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "speechcare"

// Metrics collects resolver counters in process and mirrors them to Prometheus.
type Metrics struct {
	mu sync.Mutex

	requestTotal     atomic.Int64
	requestFailed    atomic.Int64
	degradedLookups  atomic.Int64
	providerCalls    atomic.Int64
	providerFailures atomic.Int64
	coalesced        atomic.Int64

	byStatus map[string]*atomic.Int64

	registry *prometheus.Registry

	resolveTotal     *prometheus.CounterVec
	resolveDuration  *prometheus.HistogramVec
	degradedTotal    *prometheus.CounterVec
	providerTotal    *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	coalescedTotal   prometheus.Counter
	characterTotal   *prometheus.CounterVec
}

// NewMetrics creates a metrics collector with its own Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		byStatus: make(map[string]*atomic.Int64),
		registry: prometheus.NewRegistry(),
		resolveTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolve_requests_total",
				Help:      "Total audio resolve requests by outcome",
			},
			[]string{"status"}, // cache status or error code
		),
		resolveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolve_duration_seconds",
				Help:      "Duration of audio resolve requests in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"status"},
		),
		degradedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "degraded_lookups_total",
				Help:      "Cache lookups that failed and fell through to the next tier",
			},
			[]string{"stage"}, // entity, content_hash
		),
		providerTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_requests_total",
				Help:      "Total speech provider calls",
			},
			[]string{"provider", "status"}, // status: success, error
		),
		providerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "Duration of speech provider calls in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),
		coalescedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "synthesis_coalesced_total",
				Help:      "Requests that shared an in-flight synthesis",
			},
		),
		characterTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_characters_total",
				Help:      "Characters sent to speech providers",
			},
			[]string{"provider"},
		),
	}

	m.registry.MustRegister(
		m.resolveTotal,
		m.resolveDuration,
		m.degradedTotal,
		m.providerTotal,
		m.providerDuration,
		m.coalescedTotal,
		m.characterTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the Prometheus registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordResolve records a served request by cache status.
func (m *Metrics) RecordResolve(status string, duration time.Duration) {
	m.requestTotal.Add(1)
	m.statusCounter(status).Add(1)
	m.resolveTotal.WithLabelValues(status).Inc()
	m.resolveDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordFailure records a failed request by error code.
func (m *Metrics) RecordFailure(code string, duration time.Duration) {
	m.requestTotal.Add(1)
	m.requestFailed.Add(1)
	m.resolveTotal.WithLabelValues(code).Inc()
	m.resolveDuration.WithLabelValues(code).Observe(duration.Seconds())
}

// RecordDegradedLookup records a lookup that failed and was skipped.
func (m *Metrics) RecordDegradedLookup(stage string) {
	m.degradedLookups.Add(1)
	m.degradedTotal.WithLabelValues(stage).Inc()
}

// RecordProviderCall records one provider call.
func (m *Metrics) RecordProviderCall(provider string, characters int, duration time.Duration, err error) {
	m.providerCalls.Add(1)
	status := "success"
	if err != nil {
		status = "error"
		m.providerFailures.Add(1)
	}
	m.providerTotal.WithLabelValues(provider, status).Inc()
	m.providerDuration.WithLabelValues(provider).Observe(duration.Seconds())
	m.characterTotal.WithLabelValues(provider).Add(float64(characters))
}

// RecordCoalesced records a request that joined an in-flight synthesis.
func (m *Metrics) RecordCoalesced() {
	m.coalesced.Add(1)
	m.coalescedTotal.Inc()
}

func (m *Metrics) statusCounter(status string) *atomic.Int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	counter, ok := m.byStatus[status]
	if !ok {
		counter = &atomic.Int64{}
		m.byStatus[status] = counter
	}
	return counter
}

// Snapshot returns a snapshot of current metrics.
func (m *Metrics) Snapshot() *MetricsSnapshot {
	m.mu.Lock()
	byStatus := make(map[string]int64, len(m.byStatus))
	for status, counter := range m.byStatus {
		byStatus[status] = counter.Load()
	}
	m.mu.Unlock()

	return &MetricsSnapshot{
		RequestTotal:     m.requestTotal.Load(),
		RequestFailed:    m.requestFailed.Load(),
		DegradedLookups:  m.degradedLookups.Load(),
		ProviderCalls:    m.providerCalls.Load(),
		ProviderFailures: m.providerFailures.Load(),
		Coalesced:        m.coalesced.Load(),
		ByCacheStatus:    byStatus,
	}
}

// MetricsSnapshot represents a point-in-time snapshot of metrics.
type MetricsSnapshot struct {
	RequestTotal     int64            `json:"request_total"`
	RequestFailed    int64            `json:"request_failed"`
	DegradedLookups  int64            `json:"degraded_lookups"`
	ProviderCalls    int64            `json:"provider_calls"`
	ProviderFailures int64            `json:"provider_failures"`
	Coalesced        int64            `json:"coalesced"`
	ByCacheStatus    map[string]int64 `json:"by_cache_status"`
}

// SuccessRate returns the success rate as a percentage (0-100).
func (s *MetricsSnapshot) SuccessRate() float64 {
	if s.RequestTotal == 0 {
		return 100.0
	}
	return float64(s.RequestTotal-s.RequestFailed) / float64(s.RequestTotal) * 100.0
}

// SavedSynthesisRate is the share of served requests that avoided a provider call.
func (s *MetricsSnapshot) SavedSynthesisRate() float64 {
	served := s.RequestTotal - s.RequestFailed
	if served == 0 {
		return 0
	}
	saved := served - s.ByCacheStatus["GENERATED"]
	return float64(saved) / float64(served) * 100.0
}
