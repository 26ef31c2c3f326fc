package simulated

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/crypto-trading/impactcurve/internal/domain"
)

func newTestPool(t *testing.T, cfg Config) *Pool {
	t.Helper()
	p, err := New(cfg, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	return p
}

func TestPool_AmountOut(t *testing.T) {
	p := newTestPool(t, Config{ReserveIn: 1_000_000, ReserveOut: 2_000_000, FeeBps: 30})

	// 1000*9970*2e6 / (1e6*1e4 + 1000*9970) = 1992.0...
	if got := p.AmountOut(1000).Int64(); got != 1992 {
		t.Errorf("AmountOut(1000) = %d, want 1992", got)
	}
}

func TestPool_PriceImpactGrowsWithSize(t *testing.T) {
	p := newTestPool(t, Config{ReserveIn: 1_000_000_000, ReserveOut: 1_000_000_000, FeeBps: 30})

	prevRate := 1.0
	for _, size := range []int64{1_000_000, 10_000_000, 100_000_000, 500_000_000} {
		out := p.AmountOut(size).Int64()
		rate := float64(out) / float64(size)
		if rate > prevRate {
			t.Errorf("rate should fall as size grows: size %d rate %f > previous %f", size, rate, prevRate)
		}
		prevRate = rate
	}
}

func TestPool_FetchBatch(t *testing.T) {
	p := newTestPool(t, Config{ReserveIn: 1_000_000, ReserveOut: 2_000_000, FeeBps: 30})

	outcomes := p.FetchBatch(context.Background(), domain.TokenPair{TokenIn: "A", TokenOut: "B"}, []int64{1000, 0})
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if !outcomes[0].Succeeded() || outcomes[0].Observation.Output != 1992 {
		t.Errorf("unexpected outcome for 1000: %+v", outcomes[0])
	}
	if outcomes[1].Succeeded() {
		t.Error("zero amount should fail")
	}
}

func TestPool_DustHasNoRoute(t *testing.T) {
	p := newTestPool(t, Config{ReserveIn: 1_000_000, ReserveOut: 100, FeeBps: 30})

	outcomes := p.FetchBatch(context.Background(), domain.TokenPair{TokenIn: "A", TokenOut: "B"}, []int64{1})
	if outcomes[0].Succeeded() {
		t.Error("dust amount rounding to zero output should fail")
	}
}

func TestPool_RejectAll(t *testing.T) {
	p := newTestPool(t, Config{ReserveIn: 1_000_000, ReserveOut: 2_000_000, RejectRatePct: 100})

	outcomes := p.FetchBatch(context.Background(), domain.TokenPair{TokenIn: "A", TokenOut: "B"}, []int64{10, 20, 30})
	for _, o := range outcomes {
		if o.Succeeded() {
			t.Errorf("expected rejection for amount %d", o.Amount)
		}
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if _, err := New(Config{ReserveIn: 0, ReserveOut: 1}, logger); err == nil {
		t.Error("expected error for zero reserve")
	}
	if _, err := New(Config{ReserveIn: 1, ReserveOut: 1, FeeBps: 10_000}, logger); err == nil {
		t.Error("expected error for 100% fee")
	}
}
