package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Spacing string

const (
	SpacingLogarithmic Spacing = "logarithmic"
	SpacingLinear      Spacing = "linear"
)

type Strategy string

const (
	StrategyLinearStrict     Strategy = "linear_strict"
	StrategyLinearPermissive Strategy = "linear_permissive"
	StrategyPowerLaw         Strategy = "power_law"
)

type RunMode string

const (
	RunModeLive   RunMode = "live"
	RunModeDryRun RunMode = "dry_run"
)

// TokenPair identifies the swap direction TokenIn -> TokenOut. Identifiers are opaque.
type TokenPair struct {
	TokenIn  string `json:"token_in"`
	TokenOut string `json:"token_out"`
}

func (p TokenPair) String() string {
	return p.TokenIn + "->" + p.TokenOut
}

// Observation is an (amount, output) pair in smallest units of the input and output token.
type Observation struct {
	Amount int64
	Output float64
}

var ErrNoRoute = errors.New("no route found")

// QuoteOutcome is the per-amount result of a batch fetch. Observation is only
// meaningful when Err is nil.
type QuoteOutcome struct {
	Amount      int64
	Observation Observation
	Err         error
}

func (q QuoteOutcome) Succeeded() bool {
	return q.Err == nil
}

func QuoteOK(amount int64, output float64) QuoteOutcome {
	return QuoteOutcome{Amount: amount, Observation: Observation{Amount: amount, Output: output}}
}

func QuoteFailed(amount int64, err error) QuoteOutcome {
	return QuoteOutcome{Amount: amount, Err: fmt.Errorf("quote %d: %w", amount, err)}
}

// SuccessfulObservations keeps the succeeded outcomes, preserving order.
func SuccessfulObservations(outcomes []QuoteOutcome) []Observation {
	obs := make([]Observation, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Succeeded() {
			obs = append(obs, o.Observation)
		}
	}
	return obs
}

// PointSet holds the generated sample grid. DataPoints and TestPoints are
// disjoint and AllPoints is their sorted union.
type PointSet struct {
	DataPoints []int64
	TestPoints []int64
	AllPoints  []int64
}

type InterpolationResult struct {
	Amount            int64
	InterpolatedValue float64
	UsedDataPoints    []Observation
}

type EvaluationStatus string

const (
	EvaluationOK      EvaluationStatus = "OK"
	EvaluationAborted EvaluationStatus = "ABORTED"
)

// EvaluationReport is the aggregate outcome of one sweep combination. It
// carries statistics only, never the underlying quotes.
type EvaluationReport struct {
	ID             uuid.UUID
	RunID          uuid.UUID
	Source         string
	Strategy       Strategy
	Spacing        Spacing
	Pair           TokenPair
	MinAmount      float64
	MaxAmount      float64
	DataPoints     int
	OffsetsPct     []float64
	TestPoints     int
	QuotesFailed   int
	Skipped        int
	Compared       int
	MaxErrorPct    float64
	MeanErrorPct   float64
	BelowThreshold int
	ThresholdPct   float64
	MaxImpactBps   float64
	Status         EvaluationStatus
	FailureReason  string
	Overlap        bool
	Duration       time.Duration
	CreatedAt      time.Time
}

type ConsistencyVerdict string

const (
	VerdictConsistent ConsistencyVerdict = "CONSISTENT"
	VerdictModerate   ConsistencyVerdict = "MODERATE_VARIATION"
	VerdictHigh       ConsistencyVerdict = "HIGH_VARIATION"
	VerdictNoData     ConsistencyVerdict = "NO_COMPARISON"
)

type IterationVariation struct {
	Iteration       int
	Timestamp       time.Time
	Quotes          int
	Compared        int
	MaxVariationPct float64
	AvgVariationPct float64
}

type ConsistencyReport struct {
	ID              uuid.UUID
	Source          string
	Pair            TokenPair
	Points          int
	Iterations      []IterationVariation
	MaxVariationPct float64
	AvgVariationPct float64
	Verdict         ConsistencyVerdict
	CreatedAt       time.Time
}

// SweepRun is the outcome of one pass of the sweep driver over its plan.
type SweepRun struct {
	RunID      uuid.UUID
	Source     string
	Strategy   Strategy
	Total      int
	Succeeded  int
	Failed     int
	StartedAt  time.Time
	FinishedAt time.Time
}
