package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	RunsTotal         prometheus.Counter
	RunDuration       prometheus.Histogram
	BatchSize         prometheus.Histogram
	FindingsTotal     *prometheus.CounterVec
	DemotionsTotal    prometheus.Counter
	RetriesTotal      prometheus.Counter
	ComparisonsTotal  *prometheus.CounterVec
	SimilarityScores  *prometheus.HistogramVec
	SimilarityLatency *prometheus.HistogramVec
	VerdictsTotal     *prometheus.CounterVec
	VerdictLatency    prometheus.Histogram
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbiter_triage_runs_total",
			Help: "Total triage runs.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "arbiter_triage_run_duration_seconds",
			Help:    "Duration of triage runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s .. ~256s
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "arbiter_triage_batch_size",
			Help:    "Findings received per submission batch.",
			Buckets: prometheus.LinearBuckets(1, 2, 10), // 1 .. 19
		}),
		FindingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbiter_findings_total",
			Help: "Batch findings by outcome of their triage run.",
		}, []string{"status"}),
		DemotionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbiter_demotions_total",
			Help: "unique_valid findings retroactively rewritten to similar_valid.",
		}),
		RetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbiter_retries_total",
			Help: "Previously pending findings re-sent to the verdict oracle.",
		}),
		ComparisonsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbiter_comparisons_total",
			Help: "Similarity oracle calls by stage and outcome.",
		}, []string{"stage", "outcome"}),
		SimilarityScores: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arbiter_similarity_score",
			Help:    "Similarity scores returned by the oracle.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0.0 .. 1.0
		}, []string{"stage"}),
		SimilarityLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arbiter_similarity_call_duration_seconds",
			Help:    "Duration of similarity oracle calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8), // 0.1s .. ~12.8s
		}, []string{"stage"}),
		VerdictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbiter_verdicts_total",
			Help: "Verdict oracle calls by outcome.",
		}, []string{"outcome"}),
		VerdictLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "arbiter_verdict_call_duration_seconds",
			Help:    "Duration of verdict oracle calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s .. ~64s
		}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.BatchSize,
		m.FindingsTotal,
		m.DemotionsTotal,
		m.RetriesTotal,
		m.ComparisonsTotal,
		m.SimilarityScores,
		m.SimilarityLatency,
		m.VerdictsTotal,
		m.VerdictLatency,
	)

	return m
}

// Hooks returns an EngineHooks that increments the corresponding metrics.
func (m *Metrics) Hooks() EngineHooks {
	return EngineHooks{
		OnComparison: func(stage string, score, duration float64, failed bool) {
			outcome := "ok"
			if failed {
				outcome = "error"
			} else {
				m.SimilarityScores.WithLabelValues(stage).Observe(score)
			}
			m.ComparisonsTotal.WithLabelValues(stage, outcome).Inc()
			m.SimilarityLatency.WithLabelValues(stage).Observe(duration)
		},
		OnVerdict: func(outcome string, duration float64) {
			m.VerdictsTotal.WithLabelValues(outcome).Inc()
			m.VerdictLatency.Observe(duration)
		},
		OnDemotion: func() {
			m.DemotionsTotal.Inc()
		},
	}
}

// ObserveRun records the aggregate outcome of one triage run.
func (m *Metrics) ObserveRun(r *Report) {
	m.RunsTotal.Inc()
	m.RunDuration.Observe(r.Duration)
	m.BatchSize.Observe(float64(r.Received))
	m.FindingsTotal.WithLabelValues(string(StatusAlreadyReported)).Add(float64(r.Duplicates))
	m.FindingsTotal.WithLabelValues(string(StatusSimilarValid)).Add(float64(r.Similar))
	m.FindingsTotal.WithLabelValues(string(StatusUniqueValid)).Add(float64(r.NewValid))
	m.FindingsTotal.WithLabelValues(string(StatusDisputed)).Add(float64(r.Disputed))
	m.FindingsTotal.WithLabelValues(string(StatusPending)).Add(float64(r.Pending))
	m.RetriesTotal.Add(float64(r.Retried))
}
