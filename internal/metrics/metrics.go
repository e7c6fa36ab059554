package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline counters and the last-run status used by /health.
type Metrics struct {
	registry *prometheus.Registry

	ArticlesFetched    *prometheus.CounterVec // by source type
	ArticlesTranslated *prometheus.CounterVec // by outcome
	Classifications    *prometheus.CounterVec // by outcome
	AttacksStored      prometheus.Gauge
	LLMCalls           *prometheus.CounterVec // by purpose, outcome
	GeocodeLookups     *prometheus.CounterVec // by result
	ThreatScore        *prometheus.GaugeVec   // by window
	RunDuration        prometheus.Histogram

	mu            sync.RWMutex
	lastRunTime   time.Time
	lastErrorTime time.Time
	lastError     string
	isHealthy     bool
	runs          int64
}

// Global is the process-wide instance.
var Global = New()

// New builds a Metrics bound to its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ArticlesFetched: f.NewCounterVec(prometheus.CounterOpts{
			Name: "threatwatch_articles_fetched_total",
			Help: "Articles returned by fetchers.",
		}, []string{"source_type"}),
		ArticlesTranslated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "threatwatch_articles_translated_total",
			Help: "Translation attempts by outcome.",
		}, []string{"outcome"}),
		Classifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "threatwatch_classifications_total",
			Help: "Attack classifications by outcome.",
		}, []string{"outcome"}),
		AttacksStored: f.NewGauge(prometheus.GaugeOpts{
			Name: "threatwatch_attacks_stored",
			Help: "Attack records in the attacks document after the last run.",
		}),
		LLMCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "threatwatch_llm_calls_total",
			Help: "LLM calls by purpose and outcome.",
		}, []string{"purpose", "outcome"}),
		GeocodeLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "threatwatch_geocode_lookups_total",
			Help: "Geocoding lookups by result.",
		}, []string{"result"}),
		ThreatScore: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "threatwatch_threat_score",
			Help: "Threat score per window.",
		}, []string{"window"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "threatwatch_run_duration_seconds",
			Help:    "Wall time of a pipeline run.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		isHealthy: true,
	}
}

// Handler serves the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordRun(duration time.Duration) {
	m.RunDuration.Observe(duration.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRunTime = time.Now()
	m.isHealthy = true
	m.runs++
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastError = err
	m.lastErrorTime = time.Now()
	m.isHealthy = false
}

// GetStats returns the health snapshot served on /health.
func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"runs":            m.runs,
		"last_run_time":   formatTime(m.lastRunTime),
		"last_error_time": formatTime(m.lastErrorTime),
		"last_error":      m.lastError,
		"is_healthy":      m.isHealthy,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
