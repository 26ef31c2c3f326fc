// Package points builds the sample grid queried from a quote source: data
// points spaced between a minimum and maximum trade size, and held-out test
// points placed at fractional offsets inside each data interval.
package points

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/crypto-trading/impactcurve/internal/domain"
)

var ErrInvalidParameters = errors.New("invalid point generation parameters")

// GridFunc produces numberOfDataPoints amounts between minAmount and maxAmount.
type GridFunc func(minAmount, maxAmount float64, numberOfDataPoints int) ([]int64, error)

// Grid returns the grid generator for a spacing strategy.
func Grid(spacing domain.Spacing) (GridFunc, error) {
	switch spacing {
	case domain.SpacingLogarithmic, "":
		return LogarithmicGrid, nil
	case domain.SpacingLinear:
		return LinearGrid, nil
	default:
		return nil, fmt.Errorf("%w: unknown spacing %q", ErrInvalidParameters, spacing)
	}
}

func validateRange(minAmount, maxAmount float64, numberOfDataPoints int) error {
	if math.IsNaN(minAmount) || math.IsNaN(maxAmount) || math.IsInf(maxAmount, 0) {
		return fmt.Errorf("%w: amounts must be finite", ErrInvalidParameters)
	}
	if minAmount <= 0 || maxAmount <= 0 || minAmount >= maxAmount {
		return fmt.Errorf("%w: need 0 < min < max, got min=%v max=%v", ErrInvalidParameters, minAmount, maxAmount)
	}
	if maxAmount >= math.MaxInt64 {
		return fmt.Errorf("%w: max=%v exceeds the largest representable amount %d", ErrInvalidParameters, maxAmount, int64(math.MaxInt64))
	}
	if numberOfDataPoints < 2 {
		return fmt.Errorf("%w: need at least 2 data points, got %d", ErrInvalidParameters, numberOfDataPoints)
	}
	return nil
}

// LogarithmicGrid spaces points by a constant growth factor
// (max/min)^(1/(n-1)), so point 0 is min and point n-1 is max.
func LogarithmicGrid(minAmount, maxAmount float64, numberOfDataPoints int) ([]int64, error) {
	if err := validateRange(minAmount, maxAmount, numberOfDataPoints); err != nil {
		return nil, err
	}

	growth := math.Pow(maxAmount/minAmount, 1/float64(numberOfDataPoints-1))
	grid := make([]int64, numberOfDataPoints)
	for i := range grid {
		grid[i] = int64(math.Round(minAmount * math.Pow(growth, float64(i))))
	}
	return checkDistinct(grid, minAmount, maxAmount)
}

// LinearGrid spaces points by a constant step (max-min)/(n-1).
func LinearGrid(minAmount, maxAmount float64, numberOfDataPoints int) ([]int64, error) {
	if err := validateRange(minAmount, maxAmount, numberOfDataPoints); err != nil {
		return nil, err
	}

	step := (maxAmount - minAmount) / float64(numberOfDataPoints-1)
	grid := make([]int64, numberOfDataPoints)
	for i := range grid {
		grid[i] = int64(math.Round(minAmount + step*float64(i)))
	}
	return checkDistinct(grid, minAmount, maxAmount)
}

// checkDistinct rejects grids where rounding collapsed neighbouring points;
// the range is then too narrow for the requested count.
func checkDistinct(grid []int64, minAmount, maxAmount float64) ([]int64, error) {
	slices.Sort(grid)
	if grid[0] <= 0 {
		return nil, fmt.Errorf("%w: min=%v rounds to a non-positive amount", ErrInvalidParameters, minAmount)
	}
	for i := 1; i < len(grid); i++ {
		if grid[i] == grid[i-1] {
			return nil, fmt.Errorf("%w: range [%v, %v] too narrow for %d distinct points",
				ErrInvalidParameters, minAmount, maxAmount, len(grid))
		}
	}
	return grid, nil
}

// Generate builds a PointSet. For every offset percentage and every adjacent
// data pair (d_i, d_i+1) a test point d_i + round((d_i+1 - d_i) * p / 100) is
// derived. Candidates that hit a data point are dropped and duplicates across
// offsets collapse, so no amount is queried twice.
func Generate(minAmount, maxAmount float64, numberOfDataPoints int, offsetsPct []float64, spacing domain.Spacing) (domain.PointSet, error) {
	gridFn, err := Grid(spacing)
	if err != nil {
		return domain.PointSet{}, err
	}
	for _, p := range offsetsPct {
		if math.IsNaN(p) || p < 0 || p > 100 {
			return domain.PointSet{}, fmt.Errorf("%w: offset %v%% outside [0, 100]", ErrInvalidParameters, p)
		}
	}

	dataPoints, err := gridFn(minAmount, maxAmount, numberOfDataPoints)
	if err != nil {
		return domain.PointSet{}, err
	}

	isData := make(map[int64]struct{}, len(dataPoints))
	for _, d := range dataPoints {
		isData[d] = struct{}{}
	}

	seen := make(map[int64]struct{})
	testPoints := make([]int64, 0, len(offsetsPct)*(len(dataPoints)-1))
	for _, p := range offsetsPct {
		for i := 0; i < len(dataPoints)-1; i++ {
			interval := dataPoints[i+1] - dataPoints[i]
			candidate := dataPoints[i] + int64(math.Round(float64(interval)*p/100))
			if _, ok := isData[candidate]; ok {
				continue
			}
			if _, ok := seen[candidate]; ok {
				continue
			}
			seen[candidate] = struct{}{}
			testPoints = append(testPoints, candidate)
		}
	}

	allPoints := make([]int64, 0, len(dataPoints)+len(testPoints))
	allPoints = append(allPoints, dataPoints...)
	allPoints = append(allPoints, testPoints...)

	slices.Sort(dataPoints)
	slices.Sort(testPoints)
	slices.Sort(allPoints)

	return domain.PointSet{
		DataPoints: dataPoints,
		TestPoints: testPoints,
		AllPoints:  allPoints,
	}, nil
}

// Contains reports whether amount is in the ascending slice points.
func Contains(points []int64, amount int64) bool {
	_, ok := slices.BinarySearch(points, amount)
	return ok
}
