// Package consistency checks whether a quote source returns stable outputs
// for the same amounts queried repeatedly over time.
package consistency

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/crypto-trading/impactcurve/internal/domain"
	"github.com/crypto-trading/impactcurve/internal/quote"
)

const (
	HighVariationPct     = 1.0
	ModerateVariationPct = 0.1
)

type Probe struct {
	source quote.Source
	logger *slog.Logger
	now    func() time.Time
}

func NewProbe(source quote.Source, logger *slog.Logger) *Probe {
	return &Probe{source: source, logger: logger, now: time.Now}
}

// Run queries amounts once per iteration, waiting interval between
// iterations. From the second iteration on, each amount quoted in both the
// current and previous iteration contributes |cur-prev|/prev*100. A
// cancelled context ends the run early with the iterations completed so far.
func (p *Probe) Run(ctx context.Context, pair domain.TokenPair, amounts []int64, interval time.Duration, iterations int) (domain.ConsistencyReport, error) {
	report := domain.ConsistencyReport{
		ID:     domain.NewReportID(),
		Source: p.source.Name(),
		Pair:   pair,
		Points: len(amounts),
	}
	if iterations < 1 || len(amounts) == 0 {
		return report, fmt.Errorf("consistency probe needs at least one iteration and one amount, got %d and %d",
			iterations, len(amounts))
	}

	var previous map[int64]float64
	var err error
	for i := 1; i <= iterations; i++ {
		outcomes := p.source.FetchBatch(ctx, pair, amounts)
		current := make(map[int64]float64, len(outcomes))
		for _, o := range domain.SuccessfulObservations(outcomes) {
			current[o.Amount] = o.Output
		}

		it := Compare(previous, current)
		it.Iteration = i
		it.Timestamp = p.now()
		report.Iterations = append(report.Iterations, it)

		p.logger.Info("consistency iteration",
			"pair", pair.String(),
			"iteration", i,
			"quotes", it.Quotes,
			"compared", it.Compared,
			"max_variation_pct", it.MaxVariationPct,
			"avg_variation_pct", it.AvgVariationPct,
		)
		previous = current

		if i == iterations {
			break
		}
		if err = sleep(ctx, interval); err != nil {
			break
		}
	}

	Aggregate(&report)
	report.CreatedAt = p.now()
	return report, err
}

// Compare computes the variation of current against previous. A nil
// previous yields an iteration with no comparisons.
func Compare(previous, current map[int64]float64) domain.IterationVariation {
	it := domain.IterationVariation{Quotes: len(current)}
	var total float64
	for amount, cur := range current {
		prev, ok := previous[amount]
		if !ok || prev == 0 {
			continue
		}
		v := math.Abs(cur-prev) / prev * 100
		it.MaxVariationPct = math.Max(it.MaxVariationPct, v)
		total += v
		it.Compared++
	}
	if it.Compared > 0 {
		it.AvgVariationPct = total / float64(it.Compared)
	}
	return it
}

// Aggregate fills the overall max, the mean of iteration averages and the
// verdict from iterations that compared at least one amount.
func Aggregate(report *domain.ConsistencyReport) {
	var sumAvg float64
	var n int
	report.MaxVariationPct = 0
	for _, it := range report.Iterations {
		if it.Compared == 0 {
			continue
		}
		report.MaxVariationPct = math.Max(report.MaxVariationPct, it.MaxVariationPct)
		sumAvg += it.AvgVariationPct
		n++
	}
	if n == 0 {
		report.AvgVariationPct = 0
		report.Verdict = domain.VerdictNoData
		return
	}
	report.AvgVariationPct = sumAvg / float64(n)
	report.Verdict = Classify(report.MaxVariationPct)
}

func Classify(maxVariationPct float64) domain.ConsistencyVerdict {
	switch {
	case maxVariationPct > HighVariationPct:
		return domain.VerdictHigh
	case maxVariationPct > ModerateVariationPct:
		return domain.VerdictModerate
	default:
		return domain.VerdictConsistent
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
