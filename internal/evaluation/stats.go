package evaluation

import (
	"math"

	"github.com/crypto-trading/impactcurve/internal/domain"
)

// DefaultThresholdPct is the error below which an interpolated quote is
// considered usable in place of a live one.
const DefaultThresholdPct = 0.02

type PointError struct {
	Amount       int64
	Actual       float64
	Interpolated float64
	ErrorPct     float64
	// ImpactBps is the price impact at Amount on the data observations'
	// curve, filled in by callers that build one.
	ImpactBps float64
}

type ErrorStats struct {
	Compared       int
	MaxErrorPct    float64
	MeanErrorPct   float64
	BelowThreshold int
	ThresholdPct   float64
}

// Compare pairs each interpolation with the actual test quote at the same
// amount. Amounts without an actual quote, or with a zero actual output,
// are left out.
func Compare(result *Result) []PointError {
	if result == nil {
		return nil
	}
	actual := make(map[int64]float64, len(result.TestObservations))
	for _, o := range result.TestObservations {
		actual[o.Amount] = o.Output
	}

	errs := make([]PointError, 0, len(result.Interpolations))
	for _, r := range result.Interpolations {
		a, ok := actual[r.Amount]
		if !ok || a == 0 {
			continue
		}
		errs = append(errs, PointError{
			Amount:       r.Amount,
			Actual:       a,
			Interpolated: r.InterpolatedValue,
			ErrorPct:     ErrorPct(r.InterpolatedValue, a),
		})
	}
	return errs
}

// ErrorPct is |interpolated - actual| / actual * 100.
func ErrorPct(interpolated, actual float64) float64 {
	return math.Abs(interpolated-actual) / actual * 100
}

func Summarize(errs []PointError, thresholdPct float64) ErrorStats {
	stats := ErrorStats{Compared: len(errs), ThresholdPct: thresholdPct}
	if len(errs) == 0 {
		return stats
	}

	var sum float64
	for _, e := range errs {
		sum += e.ErrorPct
		stats.MaxErrorPct = math.Max(stats.MaxErrorPct, e.ErrorPct)
		if e.ErrorPct < thresholdPct {
			stats.BelowThreshold++
		}
	}
	stats.MeanErrorPct = sum / float64(len(errs))
	return stats
}

// Report condenses a result into the statistics-only form that is published
// and persisted.
func Report(result *Result, stats ErrorStats, evalErr error, source string, strategy domain.Strategy) domain.EvaluationReport {
	report := domain.EvaluationReport{
		ID:           domain.NewReportID(),
		Source:       source,
		Strategy:     strategy,
		Status:       domain.EvaluationOK,
		ThresholdPct: stats.ThresholdPct,
	}
	if result != nil {
		req := result.Request
		report.Pair = req.Pair
		report.Spacing = req.Spacing
		report.MinAmount = req.MinAmount
		report.MaxAmount = req.MaxAmount
		report.DataPoints = req.DataPoints
		report.OffsetsPct = req.OffsetsPct
		report.TestPoints = len(result.Points.TestPoints)
		report.QuotesFailed = len(result.FailedQuotes)
		report.Skipped = len(result.Skipped)
	}
	report.Compared = stats.Compared
	report.MaxErrorPct = stats.MaxErrorPct
	report.MeanErrorPct = stats.MeanErrorPct
	report.BelowThreshold = stats.BelowThreshold

	if evalErr != nil {
		report.Status = domain.EvaluationAborted
		report.FailureReason = evalErr.Error()
	}
	return report
}
