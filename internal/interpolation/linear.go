package interpolation

import (
	"fmt"
	"math"

	"github.com/crypto-trading/impactcurve/internal/domain"
)

// Linear blends the two observations bracketing the target. In strict mode a
// target outside the observed range is an error; otherwise the nearest
// boundary segment is extended and the result clamped at zero.
type Linear struct {
	Strict bool
}

func (l Linear) Strategy() domain.Strategy {
	if l.Strict {
		return domain.StrategyLinearStrict
	}
	return domain.StrategyLinearPermissive
}

func (l Linear) Interpolate(known []domain.Observation, target int64) (domain.InterpolationResult, error) {
	if l.Strict && len(known) < 2 {
		return domain.InterpolationResult{}, fmt.Errorf("linear interpolation at %d needs 2 observations, have %d: %w",
			target, len(known), ErrInsufficientDataPoints)
	}
	if len(known) == 0 {
		return domain.InterpolationResult{}, fmt.Errorf("linear interpolation at %d: %w", target, ErrInsufficientDataPoints)
	}

	sorted := sortedCopy(known)
	if len(sorted) == 1 {
		return domain.InterpolationResult{
			Amount:            target,
			InterpolatedValue: sorted[0].Output,
			UsedDataPoints:    sorted,
		}, nil
	}

	first, last := sorted[0], sorted[len(sorted)-1]
	if target < first.Amount || target > last.Amount {
		if l.Strict {
			return domain.InterpolationResult{}, fmt.Errorf("target %d not in [%d, %d]: %w",
				target, first.Amount, last.Amount, ErrOutOfRange)
		}
		p1, p2 := sorted[0], sorted[1]
		if target > last.Amount {
			p1, p2 = sorted[len(sorted)-2], sorted[len(sorted)-1]
		}
		return domain.InterpolationResult{
			Amount:            target,
			InterpolatedValue: math.Max(0, extend(p1, p2, target)),
			UsedDataPoints:    []domain.Observation{p1, p2},
		}, nil
	}

	for i := 0; i < len(sorted)-1; i++ {
		p1, p2 := sorted[i], sorted[i+1]
		if target >= p1.Amount && target <= p2.Amount {
			return domain.InterpolationResult{
				Amount:            target,
				InterpolatedValue: blend(p1, p2, target),
				UsedDataPoints:    []domain.Observation{p1, p2},
			}, nil
		}
	}

	// unreachable: target lies within [first, last]
	return domain.InterpolationResult{}, fmt.Errorf("no bracket for %d: %w", target, ErrOutOfRange)
}

func blend(p1, p2 domain.Observation, target int64) float64 {
	if p2.Amount == p1.Amount {
		return p1.Output
	}
	ratio := float64(target-p1.Amount) / float64(p2.Amount-p1.Amount)
	return p1.Output + ratio*(p2.Output-p1.Output)
}

func extend(p1, p2 domain.Observation, target int64) float64 {
	if p2.Amount == p1.Amount {
		return p1.Output
	}
	slope := (p2.Output - p1.Output) / float64(p2.Amount-p1.Amount)
	anchor := p1
	if target > p2.Amount {
		anchor = p2
	}
	return anchor.Output + slope*float64(target-anchor.Amount)
}
