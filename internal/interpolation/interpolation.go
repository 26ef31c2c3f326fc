// Package interpolation reconstructs quote outputs at unsampled trade sizes
// from a set of known observations.
package interpolation

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/crypto-trading/impactcurve/internal/domain"
)

var (
	ErrInsufficientDataPoints = errors.New("insufficient data points")
	ErrOutOfRange             = errors.New("target amount outside observed range")
)

// Interpolator estimates the output at target from known observations.
// Implementations never mutate known and keep no state between calls.
type Interpolator interface {
	Interpolate(known []domain.Observation, target int64) (domain.InterpolationResult, error)
	Strategy() domain.Strategy
}

// New returns the interpolator for a configured strategy.
func New(strategy domain.Strategy) (Interpolator, error) {
	switch strategy {
	case domain.StrategyLinearStrict:
		return Linear{Strict: true}, nil
	case domain.StrategyLinearPermissive:
		return Linear{}, nil
	case domain.StrategyPowerLaw:
		return PowerLaw{}, nil
	default:
		return nil, fmt.Errorf("unknown interpolation strategy %q", strategy)
	}
}

func sortedCopy(known []domain.Observation) []domain.Observation {
	sorted := slices.Clone(known)
	slices.SortStableFunc(sorted, func(a, b domain.Observation) int {
		return cmp.Compare(a.Amount, b.Amount)
	})
	return sorted
}
