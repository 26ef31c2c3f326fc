// Package impact derives a price-impact curve from the data point
// observations of an evaluation.
package impact

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/crypto-trading/impactcurve/internal/domain"
)

var bpsPerUnit = decimal.NewFromInt(10000)

// Point is the impact, in basis points, of trading Amount relative to the
// rate of the smallest observed amount.
type Point struct {
	Amount    decimal.Decimal
	ImpactBps decimal.Decimal
}

type Curve struct {
	points []Point
}

// FromObservations builds a curve from successful quotes. Observations with a
// non-positive amount or output are ignored; the smallest remaining amount is
// the reference rate and has zero impact.
func FromObservations(obs []domain.Observation) *Curve {
	valid := make([]domain.Observation, 0, len(obs))
	for _, o := range obs {
		if o.Amount > 0 && o.Output > 0 {
			valid = append(valid, o)
		}
	}
	sort.Slice(valid, func(i, j int) bool { return valid[i].Amount < valid[j].Amount })
	if len(valid) == 0 {
		return &Curve{}
	}

	ref := rate(valid[0])
	points := make([]Point, 0, len(valid))
	for _, o := range valid {
		if len(points) > 0 && points[len(points)-1].Amount.Equal(decimal.NewFromInt(o.Amount)) {
			continue
		}
		impact := decimal.NewFromInt(1).Sub(rate(o).Div(ref)).Mul(bpsPerUnit)
		points = append(points, Point{Amount: decimal.NewFromInt(o.Amount), ImpactBps: impact})
	}
	return &Curve{points: points}
}

func rate(o domain.Observation) decimal.Decimal {
	return decimal.NewFromFloat(o.Output).Div(decimal.NewFromInt(o.Amount))
}

// Estimate interpolates linearly between the two surrounding points and
// clamps to the end points outside the observed range.
func (c *Curve) Estimate(amount decimal.Decimal) decimal.Decimal {
	if len(c.points) == 0 {
		return decimal.Zero
	}

	if amount.LessThanOrEqual(c.points[0].Amount) {
		return c.points[0].ImpactBps
	}

	last := c.points[len(c.points)-1]
	if amount.GreaterThanOrEqual(last.Amount) {
		return last.ImpactBps
	}

	for i := 1; i < len(c.points); i++ {
		if amount.LessThanOrEqual(c.points[i].Amount) {
			prev := c.points[i-1]
			curr := c.points[i]

			ratio := amount.Sub(prev.Amount).Div(curr.Amount.Sub(prev.Amount))
			return prev.ImpactBps.Add(ratio.Mul(curr.ImpactBps.Sub(prev.ImpactBps)))
		}
	}

	return last.ImpactBps
}

// Max is the largest impact on the curve, zero for an empty curve.
func (c *Curve) Max() decimal.Decimal {
	out := decimal.Zero
	for _, p := range c.points {
		if p.ImpactBps.GreaterThan(out) {
			out = p.ImpactBps
		}
	}
	return out
}
