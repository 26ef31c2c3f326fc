package sweep

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/crypto-trading/impactcurve/internal/domain"
	"github.com/crypto-trading/impactcurve/internal/evaluation"
	"github.com/crypto-trading/impactcurve/internal/impact"
)

// Pacing spaces evaluations out to stay under aggregator rate limits.
// After every BatchSize evaluations the driver waits Pause.
type Pacing struct {
	Pause     time.Duration
	BatchSize int
}

func (p Pacing) shouldPause(done, total int) bool {
	if p.Pause <= 0 || done >= total {
		return false
	}
	batch := max(p.BatchSize, 1)
	return done%batch == 0
}

// Settings are read once at the start of each run, so a config reload
// applies to the next run only.
type Settings struct {
	Pacing       Pacing
	ThresholdPct float64
}

type Evaluator interface {
	Evaluate(ctx context.Context, req evaluation.Request) (*evaluation.Result, error)
	Source() string
	Strategy() domain.Strategy
}

type Publisher interface {
	PublishEvaluation(report domain.EvaluationReport)
}

// Detail holds the per-point errors behind one successful report.
type Detail struct {
	Report domain.EvaluationReport
	Errors []evaluation.PointError
	Stats  evaluation.ErrorStats
}

// DetailPublisher is an optional extension of Publisher. The driver hands
// it a Detail after publishing each successful report.
type DetailPublisher interface {
	PublishDetail(detail Detail)
}

type Driver struct {
	eval     Evaluator
	bus      Publisher
	settings func() Settings
	logger   *slog.Logger
	now      func() time.Time
}

func NewDriver(eval Evaluator, bus Publisher, settings func() Settings, logger *slog.Logger) *Driver {
	return &Driver{
		eval:     eval,
		bus:      bus,
		settings: settings,
		logger:   logger,
		now:      time.Now,
	}
}

// Run evaluates each combination in order and publishes one report per
// combination. A failed evaluation is reported and the run continues.
// Cancellation stops the run; the evaluation in flight is not reported.
func (d *Driver) Run(ctx context.Context, combos []Combination) (domain.SweepRun, error) {
	settings := d.settings()
	run := domain.SweepRun{
		RunID:     domain.NewReportID(),
		Source:    d.eval.Source(),
		Strategy:  d.eval.Strategy(),
		StartedAt: d.now(),
	}

	d.logger.Info("sweep started",
		"run_id", run.RunID,
		"source", run.Source,
		"strategy", string(run.Strategy),
		"combinations", len(combos),
	)

	var err error
	for i, combo := range combos {
		if err = ctx.Err(); err != nil {
			break
		}

		detail, ok := d.evaluate(ctx, combo, settings.ThresholdPct)
		if !ok {
			err = ctx.Err()
			break
		}
		report := detail.Report
		report.RunID = run.RunID
		d.bus.PublishEvaluation(report)
		if dp, ok := d.bus.(DetailPublisher); ok && report.Status == domain.EvaluationOK {
			detail.Report = report
			dp.PublishDetail(detail)
		}

		run.Total++
		if report.Status == domain.EvaluationOK {
			run.Succeeded++
		} else {
			run.Failed++
		}

		if settings.Pacing.shouldPause(i+1, len(combos)) {
			if err = wait(ctx, settings.Pacing.Pause); err != nil {
				break
			}
		}
	}

	run.FinishedAt = d.now()
	d.logger.Info("sweep finished",
		"run_id", run.RunID,
		"total", run.Total,
		"succeeded", run.Succeeded,
		"failed", run.Failed,
		"elapsed", run.FinishedAt.Sub(run.StartedAt).String(),
	)
	return run, err
}

func (d *Driver) evaluate(ctx context.Context, combo Combination, thresholdPct float64) (Detail, bool) {
	req := combo.Request()
	start := d.now()

	result, evalErr := d.eval.Evaluate(ctx, req)
	if ctx.Err() != nil {
		return Detail{}, false
	}

	var (
		errs  []evaluation.PointError
		stats evaluation.ErrorStats
	)
	if evalErr == nil {
		errs = evaluation.Compare(result)
		stats = evaluation.Summarize(errs, thresholdPct)
	} else {
		stats.ThresholdPct = thresholdPct
	}

	report := evaluation.Report(result, stats, evalErr, d.eval.Source(), d.eval.Strategy())
	report.Overlap = errors.Is(evalErr, evaluation.ErrDataTestOverlap)
	if result != nil {
		curve := impact.FromObservations(result.DataObservations)
		report.MaxImpactBps = curve.Max().InexactFloat64()
		for i := range errs {
			errs[i].ImpactBps = curve.Estimate(decimal.NewFromInt(errs[i].Amount)).InexactFloat64()
		}
	}
	report.CreatedAt = d.now()
	report.Duration = report.CreatedAt.Sub(start)

	if evalErr != nil {
		attrs := append(req.LogAttrs(), "error", evalErr)
		d.logger.Error("evaluation failed", attrs...)
		return Detail{Report: report}, true
	}

	attrs := append(req.LogAttrs(),
		"compared", stats.Compared,
		"skipped", report.Skipped,
		"quotes_failed", report.QuotesFailed,
		"max_error_pct", stats.MaxErrorPct,
		"mean_error_pct", stats.MeanErrorPct,
		"below_threshold", stats.BelowThreshold,
		"max_impact_bps", report.MaxImpactBps,
	)
	d.logger.Info("evaluation completed", attrs...)
	return Detail{Report: report, Errors: errs, Stats: stats}, true
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
