package sweep

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/crypto-trading/impactcurve/internal/domain"
	"github.com/crypto-trading/impactcurve/internal/eventbus"
	"github.com/crypto-trading/impactcurve/internal/monitor"
	"github.com/crypto-trading/impactcurve/internal/persistence"
)

// Recorder consumes published reports: it updates metrics, raises alerts
// and queues the summaries for persistence.
type Recorder struct {
	evaluations <-chan domain.EvaluationReport
	consistency <-chan domain.ConsistencyReport
	metrics     *monitor.Metrics
	alerts      *monitor.AlertManager
	writer      *persistence.AsyncWriter
	logger      *slog.Logger
}

func NewRecorder(
	bus *eventbus.EventBus,
	metrics *monitor.Metrics,
	alerts *monitor.AlertManager,
	writer *persistence.AsyncWriter,
	logger *slog.Logger,
) *Recorder {
	return &Recorder{
		evaluations: bus.SubscribeEvaluation(),
		consistency: bus.SubscribeConsistency(),
		metrics:     metrics,
		alerts:      alerts,
		writer:      writer,
		logger:      logger,
	}
}

// Run returns when ctx is done or both subscriptions are closed. Reports the
// bus dropped because Run fell behind never reach the writer; see
// EventBus.Dropped. Sweep runs go through RecordRun and are not affected.
func (r *Recorder) Run(ctx context.Context) {
	evaluations, consistency := r.evaluations, r.consistency
	for evaluations != nil || consistency != nil {
		select {
		case <-ctx.Done():
			return
		case report, ok := <-evaluations:
			if !ok {
				evaluations = nil
				continue
			}
			r.recordEvaluation(report)
		case report, ok := <-consistency:
			if !ok {
				consistency = nil
				continue
			}
			r.recordConsistency(report)
		}
	}
}

func (r *Recorder) recordEvaluation(report domain.EvaluationReport) {
	r.metrics.ObserveEvaluation(report)
	if report.Overlap {
		r.alerts.Fire(monitor.AlertLevelP1, monitor.AlertDataTestOverlap, report.Pair.String(),
			fmt.Sprintf("test point observation in data point set for range [%.0f, %.0f]: %s",
				report.MinAmount, report.MaxAmount, report.FailureReason))
	}
	if report.Status == domain.EvaluationOK && report.Compared > 0 {
		subject := fmt.Sprintf("%s [%.0f, %.0f]", report.Pair, report.MinAmount, report.MaxAmount)
		if report.MaxErrorPct > report.ThresholdPct {
			r.alerts.Fire(monitor.AlertLevelP2, monitor.AlertErrorThreshold, subject,
				fmt.Sprintf("%d/%d test points within %.4f%%, max error %.4f%%",
					report.BelowThreshold, report.Compared, report.ThresholdPct, report.MaxErrorPct))
		} else {
			r.alerts.Acknowledge(monitor.AlertErrorThreshold, subject)
		}
	}
	r.writer.Write(persistence.WriteRequest{Type: persistence.WriteTypeEvaluation, Payload: report})
}

func (r *Recorder) recordConsistency(report domain.ConsistencyReport) {
	r.metrics.ObserveConsistency(report)
	switch report.Verdict {
	case domain.VerdictHigh:
		r.alerts.Fire(monitor.AlertLevelP2, monitor.AlertHighVariation, report.Pair.String(),
			fmt.Sprintf("%s quotes varied up to %.4f%% between iterations", report.Source, report.MaxVariationPct))
	case domain.VerdictConsistent:
		r.alerts.Acknowledge(monitor.AlertHighVariation, report.Pair.String())
	}
	r.writer.Write(persistence.WriteRequest{Type: persistence.WriteTypeConsistency, Payload: report})
}

func (r *Recorder) RecordRun(run domain.SweepRun) {
	r.writer.Write(persistence.WriteRequest{Type: persistence.WriteTypeSweepRun, Payload: run})
	r.logger.Debug("sweep run queued for persistence", "run_id", run.RunID)
}
