package interpolation

import (
	"math"

	"github.com/crypto-trading/impactcurve/internal/domain"
)

const minPowerLawPoints = 3

// PowerLawFit is output = A * amount^B.
type PowerLawFit struct {
	A float64
	B float64
}

func (f PowerLawFit) At(amount float64) float64 {
	if amount <= 0 {
		return 0
	}
	return math.Max(0, f.A*math.Pow(amount, f.B))
}

// FitPowerLaw runs a least-squares regression of log(output) on log(amount)
// over observations with positive amount and output. ok is false when fewer
// than three such observations exist or the fit is degenerate.
func FitPowerLaw(known []domain.Observation) (fit PowerLawFit, used []domain.Observation, ok bool) {
	used = make([]domain.Observation, 0, len(known))
	for _, o := range known {
		if o.Amount > 0 && o.Output > 0 {
			used = append(used, o)
		}
	}
	if len(used) < minPowerLawPoints {
		return PowerLawFit{}, nil, false
	}

	n := float64(len(used))
	var sumX, sumY, sumXY, sumXX float64
	for _, o := range used {
		lx := math.Log(float64(o.Amount))
		ly := math.Log(o.Output)
		sumX += lx
		sumY += ly
		sumXY += lx * ly
		sumXX += lx * lx
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return PowerLawFit{}, nil, false
	}
	b := (n*sumXY - sumX*sumY) / denom
	a := math.Exp((sumY - b*sumX) / n)
	if math.IsNaN(a) || math.IsInf(a, 0) || math.IsNaN(b) || math.IsInf(b, 0) {
		return PowerLawFit{}, nil, false
	}
	return PowerLawFit{A: a, B: b}, used, true
}

// PowerLaw fits output = a * amount^b over all known observations. When the
// fit is underdetermined it falls back to permissive linear interpolation.
type PowerLaw struct{}

func (PowerLaw) Strategy() domain.Strategy {
	return domain.StrategyPowerLaw
}

func (PowerLaw) Interpolate(known []domain.Observation, target int64) (domain.InterpolationResult, error) {
	sorted := sortedCopy(known)
	fit, used, ok := FitPowerLaw(sorted)
	if !ok {
		return Linear{}.Interpolate(sorted, target)
	}
	return domain.InterpolationResult{
		Amount:            target,
		InterpolatedValue: fit.At(float64(target)),
		UsedDataPoints:    used,
	}, nil
}
