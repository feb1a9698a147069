package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hazyhaar/regcheck/registry"
)

// Metrics are the pipeline counters. A nil *Metrics records nothing.
type Metrics struct {
	Documents       *prometheus.CounterVec
	RegistryQueries *prometheus.CounterVec
	CacheHits       prometheus.Counter
	Failures        *prometheus.CounterVec
	Cooldowns       prometheus.Counter
	ThrottleSeconds prometheus.Counter
	Checkpoint      prometheus.Gauge
}

var _ registry.Observer = (*Metrics)(nil)

// NewMetrics registers the pipeline metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Documents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regcheck_documents_total",
			Help: "Checklist rows processed, by outcome",
		}, []string{"outcome"}),
		RegistryQueries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regcheck_registry_queries_total",
			Help: "External registry address queries, by lookup strategy",
		}, []string{"source"}),
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "regcheck_registry_cache_hits_total",
			Help: "Registry lookups answered from the run cache",
		}),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regcheck_failures_total",
			Help: "Run-terminating source failures, by kind and source",
		}, []string{"kind", "source"}),
		Cooldowns: f.NewCounter(prometheus.CounterOpts{
			Name: "regcheck_cooldowns_total",
			Help: "Escalated cooldowns after repeated blocking",
		}),
		ThrottleSeconds: f.NewCounter(prometheus.CounterOpts{
			Name: "regcheck_throttle_wait_seconds_total",
			Help: "Time spent waiting on the source rate limit",
		}),
		Checkpoint: f.NewGauge(prometheus.GaugeOpts{
			Name: "regcheck_checkpoint",
			Help: "Index of the next checklist row to process",
		}),
	}
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

func (m *Metrics) Query(source string) {
	if m != nil {
		m.RegistryQueries.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) document(outcome string) {
	if m != nil {
		m.Documents.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) failure(kind, source string) {
	if m != nil {
		m.Failures.WithLabelValues(kind, source).Inc()
	}
}

func (m *Metrics) cooldown() {
	if m != nil {
		m.Cooldowns.Inc()
	}
}

func (m *Metrics) waited(d time.Duration) {
	if m != nil && d > 0 {
		m.ThrottleSeconds.Add(d.Seconds())
	}
}

func (m *Metrics) checkpoint(n int) {
	if m != nil {
		m.Checkpoint.Set(float64(n))
	}
}
