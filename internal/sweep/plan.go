// Package sweep runs accuracy evaluations over a grid of pairs, trade size
// ranges and test offsets, and records their summaries.
package sweep

import (
	"github.com/crypto-trading/impactcurve/internal/config"
	"github.com/crypto-trading/impactcurve/internal/domain"
	"github.com/crypto-trading/impactcurve/internal/evaluation"
)

// PairRange is a pair with the trade size range to sweep it over.
type PairRange struct {
	Pair       domain.TokenPair
	MinAmount  float64
	MaxAmounts []float64
}

type Combination struct {
	Pair       domain.TokenPair
	MinAmount  float64
	MaxAmount  float64
	DataPoints int
	OffsetsPct []float64
	Spacing    domain.Spacing
}

func (c Combination) Request() evaluation.Request {
	return evaluation.Request{
		Pair:       c.Pair,
		MinAmount:  c.MinAmount,
		MaxAmount:  c.MaxAmount,
		DataPoints: c.DataPoints,
		OffsetsPct: c.OffsetsPct,
		Spacing:    c.Spacing,
	}
}

// Plan expands pair × max amount × offset group, in that nesting order.
func Plan(pairs []PairRange, dataPoints int, offsetGroups [][]float64, spacing domain.Spacing) []Combination {
	var combos []Combination
	for _, p := range pairs {
		for _, maxAmount := range p.MaxAmounts {
			for _, offsets := range offsetGroups {
				combos = append(combos, Combination{
					Pair:       p.Pair,
					MinAmount:  p.MinAmount,
					MaxAmount:  maxAmount,
					DataPoints: dataPoints,
					OffsetsPct: offsets,
					Spacing:    spacing,
				})
			}
		}
	}
	return combos
}

// PairRanges applies the sweep-wide range to configured and discovered
// pairs. Configured per-pair overrides win; discovered pairs already listed
// in config are not repeated.
func PairRanges(cfg config.SweepConfig, discovered []domain.TokenPair) []PairRange {
	ranges := make([]PairRange, 0, len(cfg.Pairs)+len(discovered))
	seen := make(map[domain.TokenPair]bool, len(cfg.Pairs))

	for _, pc := range cfg.Pairs {
		r := PairRange{Pair: pc.Pair(), MinAmount: cfg.MinAmount, MaxAmounts: cfg.MaxAmounts}
		if pc.MinAmount > 0 {
			r.MinAmount = pc.MinAmount
		}
		if len(pc.MaxAmounts) > 0 {
			r.MaxAmounts = pc.MaxAmounts
		}
		seen[r.Pair] = true
		ranges = append(ranges, r)
	}
	for _, p := range discovered {
		if seen[p] {
			continue
		}
		seen[p] = true
		ranges = append(ranges, PairRange{Pair: p, MinAmount: cfg.MinAmount, MaxAmounts: cfg.MaxAmounts})
	}
	return ranges
}
