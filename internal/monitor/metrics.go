package monitor

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crypto-trading/impactcurve/internal/domain"
)

type Metrics struct {
	EvaluationsTotal      *prometheus.CounterVec
	EvaluationDuration    *prometheus.HistogramVec
	InterpolationErrorPct *prometheus.HistogramVec
	MaxErrorPct           *prometheus.GaugeVec
	SkippedTestPoints     *prometheus.CounterVec
	OverlapDefects        prometheus.Counter

	QuoteRequestsTotal *prometheus.CounterVec
	QuoteBatchLatency  *prometheus.HistogramVec

	ConsistencyMaxVariationPct *prometheus.GaugeVec
	ConsistencyRunsTotal       *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evaluations_total",
			Help: "Accuracy evaluations by outcome",
		}, []string{"source", "strategy", "status"}),

		EvaluationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "evaluation_duration_ms",
			Help:    "Wall time of one evaluation including quote fetches",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12),
		}, []string{"source"}),

		InterpolationErrorPct: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "interpolation_mean_error_pct",
			Help:    "Mean interpolation error percentage per evaluation",
			Buckets: []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"source", "strategy", "spacing"}),

		MaxErrorPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "interpolation_max_error_pct",
			Help: "Max interpolation error percentage of the latest evaluation per pair",
		}, []string{"source", "strategy", "pair"}),

		SkippedTestPoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skipped_test_points_total",
			Help: "Test points not interpolated because they fell outside the observed range",
		}, []string{"source"}),

		OverlapDefects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "data_test_overlap_total",
			Help: "Evaluations aborted because a test point leaked into the data set",
		}),

		QuoteRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quote_requests_total",
			Help: "Quote requests by source and outcome",
		}, []string{"source", "outcome"}),

		QuoteBatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quote_batch_latency_ms",
			Help:    "Latency of one concurrent quote batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}, []string{"source"}),

		ConsistencyMaxVariationPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "consistency_max_variation_pct",
			Help: "Max quote variation between probe iterations",
		}, []string{"source", "pair"}),

		ConsistencyRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "consistency_runs_total",
			Help: "Consistency probe runs by verdict",
		}, []string{"source", "verdict"}),
	}

	reg.MustRegister(
		m.EvaluationsTotal,
		m.EvaluationDuration,
		m.InterpolationErrorPct,
		m.MaxErrorPct,
		m.SkippedTestPoints,
		m.OverlapDefects,
		m.QuoteRequestsTotal,
		m.QuoteBatchLatency,
		m.ConsistencyMaxVariationPct,
		m.ConsistencyRunsTotal,
	)

	return m
}

// ObserveQuoteBatch counts each outcome of a batch under ok, no_route or error.
func (m *Metrics) ObserveQuoteBatch(source string, outcomes []domain.QuoteOutcome, elapsed time.Duration) {
	for _, o := range outcomes {
		outcome := "ok"
		switch {
		case o.Succeeded():
		case errors.Is(o.Err, domain.ErrNoRoute):
			outcome = "no_route"
		default:
			outcome = "error"
		}
		m.QuoteRequestsTotal.WithLabelValues(source, outcome).Inc()
	}
	m.QuoteBatchLatency.WithLabelValues(source).Observe(float64(elapsed.Milliseconds()))
}

func (m *Metrics) ObserveEvaluation(r domain.EvaluationReport) {
	m.EvaluationsTotal.WithLabelValues(r.Source, string(r.Strategy), string(r.Status)).Inc()
	m.EvaluationDuration.WithLabelValues(r.Source).Observe(float64(r.Duration.Milliseconds()))
	if r.Skipped > 0 {
		m.SkippedTestPoints.WithLabelValues(r.Source).Add(float64(r.Skipped))
	}
	if r.Overlap {
		m.OverlapDefects.Inc()
	}
	if r.Status != domain.EvaluationOK || r.Compared == 0 {
		return
	}
	m.InterpolationErrorPct.WithLabelValues(r.Source, string(r.Strategy), string(r.Spacing)).Observe(r.MeanErrorPct)
	m.MaxErrorPct.WithLabelValues(r.Source, string(r.Strategy), r.Pair.String()).Set(r.MaxErrorPct)
}

func (m *Metrics) ObserveConsistency(r domain.ConsistencyReport) {
	m.ConsistencyRunsTotal.WithLabelValues(r.Source, string(r.Verdict)).Inc()
	m.ConsistencyMaxVariationPct.WithLabelValues(r.Source, r.Pair.String()).Set(r.MaxVariationPct)
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
