// Package evaluation measures how well a sparse set of quotes predicts quotes
// at held-out trade sizes.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/crypto-trading/impactcurve/internal/domain"
	"github.com/crypto-trading/impactcurve/internal/interpolation"
	"github.com/crypto-trading/impactcurve/internal/points"
	"github.com/crypto-trading/impactcurve/internal/quote"
)

const minDataObservations = 2

var (
	ErrInsufficientDataPoints = interpolation.ErrInsufficientDataPoints
	ErrDataTestOverlap        = errors.New("test point observation found in data point set")
)

type Request struct {
	Pair       domain.TokenPair
	MinAmount  float64
	MaxAmount  float64
	DataPoints int
	OffsetsPct []float64
	Spacing    domain.Spacing
}

func (r Request) LogAttrs() []any {
	return []any{
		"token_in", r.Pair.TokenIn,
		"token_out", r.Pair.TokenOut,
		"min_amount", r.MinAmount,
		"max_amount", r.MaxAmount,
		"data_points", r.DataPoints,
		"offsets", r.OffsetsPct,
		"spacing", string(r.Spacing),
	}
}

// SkippedPoint is a test amount that could not be interpolated without
// extrapolating, which happens when a boundary data quote failed.
type SkippedPoint struct {
	Amount int64
	Err    error
}

// Result keeps test observations and interpolations keyed by amount so the
// caller can compute errors. On abort only Request, Points and FailedQuotes
// are populated.
type Result struct {
	Request          Request
	Points           domain.PointSet
	DataObservations []domain.Observation
	TestObservations []domain.Observation
	Interpolations   []domain.InterpolationResult
	Skipped          []SkippedPoint
	FailedQuotes     []domain.QuoteOutcome
}

type Evaluator struct {
	source quote.Source
	interp interpolation.Interpolator
	tracer trace.Tracer
	logger *slog.Logger
}

func NewEvaluator(source quote.Source, interp interpolation.Interpolator, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		source: source,
		interp: interp,
		tracer: otel.Tracer("impactcurve/evaluation"),
		logger: logger,
	}
}

func (e *Evaluator) Source() string {
	return e.source.Name()
}

func (e *Evaluator) Strategy() domain.Strategy {
	return e.interp.Strategy()
}

// Evaluate generates the point grid, fetches every point in one concurrent
// batch, interpolates each test amount from data observations only, and
// returns actual and interpolated values side by side.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "evaluate", trace.WithAttributes(
		attribute.String("token_in", req.Pair.TokenIn),
		attribute.String("token_out", req.Pair.TokenOut),
		attribute.Float64("min_amount", req.MinAmount),
		attribute.Float64("max_amount", req.MaxAmount),
		attribute.Int("data_points", req.DataPoints),
		attribute.String("source", e.source.Name()),
		attribute.String("strategy", string(e.interp.Strategy())),
	))
	defer span.End()

	result, err := e.evaluate(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (e *Evaluator) evaluate(ctx context.Context, req Request) (*Result, error) {
	result := &Result{Request: req}

	ps, err := points.Generate(req.MinAmount, req.MaxAmount, req.DataPoints, req.OffsetsPct, req.Spacing)
	if err != nil {
		return result, fmt.Errorf("generate points: %w", err)
	}
	result.Points = ps

	e.logger.Debug("points generated",
		"data_points", len(ps.DataPoints),
		"test_points", len(ps.TestPoints),
		"all_points", len(ps.AllPoints),
	)

	outcomes := e.source.FetchBatch(ctx, req.Pair, ps.AllPoints)
	for _, o := range outcomes {
		if !o.Succeeded() {
			result.FailedQuotes = append(result.FailedQuotes, o)
		}
	}

	dataObs, testObs := Partition(domain.SuccessfulObservations(outcomes), ps)
	if err := ValidateDisjoint(dataObs, ps.TestPoints); err != nil {
		return result, err
	}
	if len(dataObs) < minDataObservations {
		return result, fmt.Errorf("%d of %d data quotes succeeded, need %d: %w",
			len(dataObs), len(ps.DataPoints), minDataObservations, ErrInsufficientDataPoints)
	}

	interpolations := make([]domain.InterpolationResult, 0, len(ps.TestPoints))
	var skipped []SkippedPoint
	for _, amount := range ps.TestPoints {
		r, err := e.interp.Interpolate(dataObs, amount)
		if errors.Is(err, interpolation.ErrOutOfRange) {
			skipped = append(skipped, SkippedPoint{Amount: amount, Err: err})
			continue
		}
		if err != nil {
			return result, fmt.Errorf("interpolate %d: %w", amount, err)
		}
		interpolations = append(interpolations, r)
	}

	result.DataObservations = dataObs
	result.TestObservations = testObs
	result.Interpolations = interpolations
	result.Skipped = skipped
	return result, nil
}

// Partition splits observations by membership in the data and test grids.
// Observations for amounts in neither grid are dropped.
func Partition(obs []domain.Observation, ps domain.PointSet) (dataObs, testObs []domain.Observation) {
	for _, o := range obs {
		switch {
		case points.Contains(ps.DataPoints, o.Amount):
			dataObs = append(dataObs, o)
		case points.Contains(ps.TestPoints, o.Amount):
			testObs = append(testObs, o)
		}
	}
	return dataObs, testObs
}

// ValidateDisjoint fails if any data observation sits on a test amount.
func ValidateDisjoint(dataObs []domain.Observation, testPoints []int64) error {
	var leaked []int64
	for _, o := range dataObs {
		if points.Contains(testPoints, o.Amount) {
			leaked = append(leaked, o.Amount)
		}
	}
	if len(leaked) > 0 {
		return fmt.Errorf("%d leaked amounts %v: %w", len(leaked), leaked, ErrDataTestOverlap)
	}
	return nil
}
