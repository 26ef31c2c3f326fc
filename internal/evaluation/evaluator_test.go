package evaluation

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crypto-trading/impactcurve/internal/domain"
	"github.com/crypto-trading/impactcurve/internal/interpolation"
	"github.com/crypto-trading/impactcurve/internal/points"
)

// curveSource quotes out(amount) for every amount except those in fail.
type curveSource struct {
	out  func(int64) float64
	fail map[int64]bool
}

func (s curveSource) Name() string { return "curve" }

func (s curveSource) FetchBatch(_ context.Context, _ domain.TokenPair, amounts []int64) []domain.QuoteOutcome {
	outcomes := make([]domain.QuoteOutcome, len(amounts))
	for i, a := range amounts {
		if s.fail[a] {
			outcomes[i] = domain.QuoteFailed(a, domain.ErrNoRoute)
			continue
		}
		outcomes[i] = domain.QuoteOK(a, s.out(a))
	}
	return outcomes
}

func doubleRate(a int64) float64 { return float64(2 * a) }

func newEvaluator(t *testing.T, src curveSource, strategy domain.Strategy) *Evaluator {
	t.Helper()
	interp, err := interpolation.New(strategy)
	require.NoError(t, err)
	return NewEvaluator(src, interp, slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

func linearRequest() Request {
	return Request{
		Pair:       domain.TokenPair{TokenIn: "A", TokenOut: "B"},
		MinAmount:  1000,
		MaxAmount:  10000,
		DataPoints: 3,
		OffsetsPct: []float64{50},
		Spacing:    domain.SpacingLinear,
	}
}

func TestEvaluate_DoubleRateIsExact(t *testing.T) {
	e := newEvaluator(t, curveSource{out: doubleRate}, domain.StrategyLinearStrict)

	result, err := e.Evaluate(context.Background(), linearRequest())
	require.NoError(t, err)

	assert.Equal(t, []int64{1000, 5500, 10000}, result.Points.DataPoints)
	assert.Equal(t, []int64{3250, 7750}, result.Points.TestPoints)
	require.Len(t, result.Interpolations, 2)
	assert.InDelta(t, 6500.0, result.Interpolations[0].InterpolatedValue, 1e-9)
	assert.InDelta(t, 15500.0, result.Interpolations[1].InterpolatedValue, 1e-9)
	assert.Empty(t, result.Skipped)
	assert.Empty(t, result.FailedQuotes)

	stats := Summarize(Compare(result), DefaultThresholdPct)
	assert.Equal(t, 2, stats.Compared)
	assert.InDelta(t, 0.0, stats.MaxErrorPct, 1e-12)
	assert.Equal(t, 2, stats.BelowThreshold)
}

func TestEvaluate_InterpolationUsesOnlyDataObservations(t *testing.T) {
	// Concave curve: interpolation between data points underestimates.
	concave := func(a int64) float64 { return 1e6 * float64(a) / (float64(a) + 1e4) }
	e := newEvaluator(t, curveSource{out: concave}, domain.StrategyLinearStrict)

	result, err := e.Evaluate(context.Background(), linearRequest())
	require.NoError(t, err)

	for _, r := range result.Interpolations {
		assert.False(t, points.Contains(result.Points.TestPoints, r.UsedDataPoints[0].Amount))
		assert.False(t, points.Contains(result.Points.TestPoints, r.UsedDataPoints[1].Amount))
		assert.Less(t, r.InterpolatedValue, concave(r.Amount))
	}

	errs := Compare(result)
	require.Len(t, errs, 2)
	for _, pe := range errs {
		assert.Greater(t, pe.ErrorPct, 0.0)
	}
}

func TestEvaluate_AllDataQuotesFail(t *testing.T) {
	src := curveSource{out: doubleRate, fail: map[int64]bool{1000: true, 5500: true, 10000: true}}
	e := newEvaluator(t, src, domain.StrategyLinearStrict)

	result, err := e.Evaluate(context.Background(), linearRequest())
	require.ErrorIs(t, err, ErrInsufficientDataPoints)
	assert.Empty(t, result.Interpolations)
	assert.Empty(t, result.TestObservations)
	assert.Len(t, result.FailedQuotes, 3)
}

func TestEvaluate_SingleDataQuoteIsNotEnough(t *testing.T) {
	src := curveSource{out: doubleRate, fail: map[int64]bool{1000: true, 10000: true}}
	e := newEvaluator(t, src, domain.StrategyLinearPermissive)

	_, err := e.Evaluate(context.Background(), linearRequest())
	assert.ErrorIs(t, err, ErrInsufficientDataPoints)
}

func TestEvaluate_BoundaryFailureSkipsOutOfRangeTests(t *testing.T) {
	src := curveSource{out: doubleRate, fail: map[int64]bool{10000: true}}
	e := newEvaluator(t, src, domain.StrategyLinearStrict)

	result, err := e.Evaluate(context.Background(), linearRequest())
	require.NoError(t, err)

	require.Len(t, result.Interpolations, 1)
	assert.Equal(t, int64(3250), result.Interpolations[0].Amount)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, int64(7750), result.Skipped[0].Amount)
	assert.ErrorIs(t, result.Skipped[0].Err, interpolation.ErrOutOfRange)
}

func TestEvaluate_FailedTestQuoteIsNotCompared(t *testing.T) {
	src := curveSource{out: doubleRate, fail: map[int64]bool{3250: true}}
	e := newEvaluator(t, src, domain.StrategyLinearStrict)

	result, err := e.Evaluate(context.Background(), linearRequest())
	require.NoError(t, err)

	assert.Len(t, result.Interpolations, 2)
	errs := Compare(result)
	require.Len(t, errs, 1)
	assert.Equal(t, int64(7750), errs[0].Amount)
}

func TestEvaluate_InvalidParameters(t *testing.T) {
	e := newEvaluator(t, curveSource{out: doubleRate}, domain.StrategyLinearStrict)

	req := linearRequest()
	req.MinAmount = 20000
	_, err := e.Evaluate(context.Background(), req)
	assert.ErrorIs(t, err, points.ErrInvalidParameters)
}

func TestValidateDisjoint(t *testing.T) {
	obs := []domain.Observation{{Amount: 1000, Output: 1}, {Amount: 3250, Output: 2}}

	err := ValidateDisjoint(obs, []int64{3250, 7750})
	require.ErrorIs(t, err, ErrDataTestOverlap)
	assert.Contains(t, err.Error(), "3250")

	assert.NoError(t, ValidateDisjoint(obs, []int64{7750}))
}

func TestPartition(t *testing.T) {
	ps := domain.PointSet{DataPoints: []int64{1, 3}, TestPoints: []int64{2}}
	obs := []domain.Observation{{Amount: 1}, {Amount: 2}, {Amount: 3}, {Amount: 4}}

	data, test := Partition(obs, ps)
	assert.Equal(t, []domain.Observation{{Amount: 1}, {Amount: 3}}, data)
	assert.Equal(t, []domain.Observation{{Amount: 2}}, test)
}

func TestSummarize(t *testing.T) {
	errs := []PointError{{ErrorPct: 0.01}, {ErrorPct: 0.05}, {ErrorPct: 0.0}}
	stats := Summarize(errs, 0.02)

	assert.Equal(t, 3, stats.Compared)
	assert.InDelta(t, 0.05, stats.MaxErrorPct, 1e-12)
	assert.InDelta(t, 0.02, stats.MeanErrorPct, 1e-12)
	assert.Equal(t, 2, stats.BelowThreshold)

	empty := Summarize(nil, 0.02)
	assert.Zero(t, empty.Compared)
	assert.Zero(t, empty.MeanErrorPct)
}

func TestReport(t *testing.T) {
	e := newEvaluator(t, curveSource{out: doubleRate}, domain.StrategyLinearStrict)
	result, err := e.Evaluate(context.Background(), linearRequest())
	require.NoError(t, err)

	r := Report(result, Summarize(Compare(result), DefaultThresholdPct), nil, e.Source(), e.Strategy())
	assert.Equal(t, domain.EvaluationOK, r.Status)
	assert.Equal(t, "curve", r.Source)
	assert.Equal(t, 2, r.TestPoints)
	assert.Equal(t, 2, r.Compared)

	aborted := Report(result, ErrorStats{}, errors.New("boom"), e.Source(), e.Strategy())
	assert.Equal(t, domain.EvaluationAborted, aborted.Status)
	assert.Equal(t, "boom", aborted.FailureReason)
}
