package metrics

import "github.com/prometheus/client_golang/prometheus"

// EngineMetrics exposes counters/histograms for the session engine and its
// provider calls. A nil receiver is a no-op so callers never have to guard.
type EngineMetrics struct {
	turnsTotal         *prometheus.CounterVec
	providerLatency    *prometheus.HistogramVec
	extractionsTotal   *prometheus.CounterVec
	analysesTotal      *prometheus.CounterVec
	evaluationsTotal   *prometheus.CounterVec
	historyWritesTotal *prometheus.CounterVec
}

func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promptlab",
			Subsystem: "splittest",
			Name:      "turns_total",
			Help:      "Total submitted split-test turns",
		}, []string{"status"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "promptlab",
			Subsystem: "llm",
			Name:      "provider_latency_seconds",
			Help:      "Latency of completion provider calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "model"}),
		extractionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promptlab",
			Subsystem: "splittest",
			Name:      "memory_extractions_total",
			Help:      "Total memory extraction attempts",
		}, []string{"outcome"}),
		analysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promptlab",
			Subsystem: "splittest",
			Name:      "analyses_total",
			Help:      "Total finalize-time analyses",
		}, []string{"status"}),
		evaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promptlab",
			Subsystem: "evaluator",
			Name:      "evaluations_total",
			Help:      "Total automatic evaluations",
		}, []string{"status"}),
		historyWritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promptlab",
			Subsystem: "history",
			Name:      "writes_total",
			Help:      "Total history reconciliation writes",
		}, []string{"operation", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.turnsTotal,
		m.providerLatency,
		m.extractionsTotal,
		m.analysesTotal,
		m.evaluationsTotal,
		m.historyWritesTotal,
	)
	return m
}

func (m *EngineMetrics) ObserveTurn(status string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(status).Inc()
}

func (m *EngineMetrics) ObserveProviderLatency(provider, model string, seconds float64) {
	if m == nil {
		return
	}
	m.providerLatency.WithLabelValues(provider, model).Observe(seconds)
}

func (m *EngineMetrics) ObserveExtraction(outcome string) {
	if m == nil {
		return
	}
	m.extractionsTotal.WithLabelValues(outcome).Inc()
}

func (m *EngineMetrics) ObserveAnalysis(status string) {
	if m == nil {
		return
	}
	m.analysesTotal.WithLabelValues(status).Inc()
}

func (m *EngineMetrics) ObserveEvaluation(status string) {
	if m == nil {
		return
	}
	m.evaluationsTotal.WithLabelValues(status).Inc()
}

func (m *EngineMetrics) ObserveHistoryWrite(operation, status string) {
	if m == nil {
		return
	}
	m.historyWritesTotal.WithLabelValues(operation, status).Inc()
}
