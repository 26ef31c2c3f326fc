package consistency

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crypto-trading/impactcurve/internal/domain"
)

// scriptedSource returns outputs[call][i] for amounts[i]; a negative output
// is reported as a failed quote.
type scriptedSource struct {
	mu      sync.Mutex
	outputs [][]float64
	calls   int
}

func (s *scriptedSource) Name() string { return "scripted" }

func (s *scriptedSource) FetchBatch(_ context.Context, _ domain.TokenPair, amounts []int64) []domain.QuoteOutcome {
	s.mu.Lock()
	row := s.outputs[s.calls%len(s.outputs)]
	s.calls++
	s.mu.Unlock()

	outcomes := make([]domain.QuoteOutcome, len(amounts))
	for i, a := range amounts {
		if row[i] < 0 {
			outcomes[i] = domain.QuoteFailed(a, domain.ErrNoRoute)
			continue
		}
		outcomes[i] = domain.QuoteOK(a, row[i])
	}
	return outcomes
}

func newProbe(src *scriptedSource) *Probe {
	return NewProbe(src, slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

var pair = domain.TokenPair{TokenIn: "XLM", TokenOut: "USDC"}

func TestProbe_StableSource(t *testing.T) {
	src := &scriptedSource{outputs: [][]float64{{100, 200}}}

	report, err := newProbe(src).Run(context.Background(), pair, []int64{10, 20}, 0, 3)
	require.NoError(t, err)

	require.Len(t, report.Iterations, 3)
	assert.Zero(t, report.Iterations[0].Compared)
	assert.Equal(t, 2, report.Iterations[1].Compared)
	assert.Zero(t, report.MaxVariationPct)
	assert.Equal(t, domain.VerdictConsistent, report.Verdict)
	assert.Equal(t, 3, src.calls)
}

func TestProbe_Variation(t *testing.T) {
	src := &scriptedSource{outputs: [][]float64{
		{100, 200},
		{102, 200}, // 2% and 0%
		{102, 201}, // 0% and 0.5%
	}}

	report, err := newProbe(src).Run(context.Background(), pair, []int64{10, 20}, 0, 3)
	require.NoError(t, err)

	assert.InDelta(t, 2.0, report.Iterations[1].MaxVariationPct, 1e-9)
	assert.InDelta(t, 1.0, report.Iterations[1].AvgVariationPct, 1e-9)
	assert.InDelta(t, 0.5, report.Iterations[2].MaxVariationPct, 1e-9)
	assert.InDelta(t, 0.25, report.Iterations[2].AvgVariationPct, 1e-9)

	assert.InDelta(t, 2.0, report.MaxVariationPct, 1e-9)
	assert.InDelta(t, 0.625, report.AvgVariationPct, 1e-9)
	assert.Equal(t, domain.VerdictHigh, report.Verdict)
}

func TestProbe_FailedQuoteNotCompared(t *testing.T) {
	src := &scriptedSource{outputs: [][]float64{
		{100, -1},
		{100.5, 300},
	}}

	report, err := newProbe(src).Run(context.Background(), pair, []int64{10, 20}, 0, 2)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Iterations[0].Quotes)
	assert.Equal(t, 1, report.Iterations[1].Compared)
	assert.InDelta(t, 0.5, report.MaxVariationPct, 1e-9)
	assert.Equal(t, domain.VerdictModerate, report.Verdict)
}

func TestProbe_SingleIterationHasNoComparison(t *testing.T) {
	src := &scriptedSource{outputs: [][]float64{{100}}}

	start := time.Now()
	report, err := newProbe(src).Run(context.Background(), pair, []int64{10}, time.Hour, 1)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Minute, "no wait after the last iteration")
	assert.Equal(t, domain.VerdictNoData, report.Verdict)
}

func TestProbe_CancelledWait(t *testing.T) {
	src := &scriptedSource{outputs: [][]float64{{100}}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	report, err := newProbe(src).Run(ctx, pair, []int64{10}, time.Hour, 5)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, report.Iterations, 1)
}

func TestProbe_InvalidArguments(t *testing.T) {
	src := &scriptedSource{outputs: [][]float64{{100}}}
	_, err := newProbe(src).Run(context.Background(), pair, nil, 0, 3)
	assert.Error(t, err)
	_, err = newProbe(src).Run(context.Background(), pair, []int64{10}, 0, 0)
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		pct  float64
		want domain.ConsistencyVerdict
	}{
		{0, domain.VerdictConsistent},
		{0.1, domain.VerdictConsistent},
		{0.11, domain.VerdictModerate},
		{1.0, domain.VerdictModerate},
		{1.01, domain.VerdictHigh},
	}
	for _, tt := range tests {
		if got := Classify(tt.pct); got != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.pct, got, tt.want)
		}
	}
}
