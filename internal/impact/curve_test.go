package impact

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/crypto-trading/impactcurve/internal/domain"
)

func TestFromObservations(t *testing.T) {
	curve := FromObservations([]domain.Observation{
		{Amount: 10000, Output: 19000},
		{Amount: 1000, Output: 2000},
		{Amount: 5500, Output: 10725},
		{Amount: 0, Output: 5},
		{Amount: 7000, Output: 0},
	})

	if len(curve.points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(curve.points))
	}
	if !curve.points[0].ImpactBps.IsZero() {
		t.Errorf("reference point should have zero impact, got %s", curve.points[0].ImpactBps)
	}
	// 10725/5500 = 1.95 against a reference rate of 2.
	if !curve.points[1].ImpactBps.Equal(decimal.NewFromInt(250)) {
		t.Errorf("expected 250 bps at 5500, got %s", curve.points[1].ImpactBps)
	}
	if !curve.Max().Equal(decimal.NewFromInt(500)) {
		t.Errorf("expected max impact 500 bps, got %s", curve.Max())
	}
}

func TestCurve_Estimate(t *testing.T) {
	curve := FromObservations([]domain.Observation{
		{Amount: 1000, Output: 2000},
		{Amount: 5500, Output: 10725},
		{Amount: 10000, Output: 19000},
	})

	tests := []struct {
		amount int64
		want   int64
	}{
		{500, 0},
		{1000, 0},
		{3250, 125},
		{7750, 375},
		{20000, 500},
	}
	for _, tt := range tests {
		got := curve.Estimate(decimal.NewFromInt(tt.amount))
		if !got.Equal(decimal.NewFromInt(tt.want)) {
			t.Errorf("Estimate(%d) = %s, want %d", tt.amount, got, tt.want)
		}
	}

	prev := decimal.NewFromInt(-1)
	for a := int64(1000); a <= 10000; a += 500 {
		got := curve.Estimate(decimal.NewFromInt(a))
		if got.LessThan(prev) {
			t.Errorf("impact should not decrease: %d gave %s < %s", a, got, prev)
		}
		prev = got
	}
}

func TestCurve_Empty(t *testing.T) {
	curve := FromObservations(nil)
	if !curve.Estimate(decimal.NewFromInt(100)).IsZero() {
		t.Error("empty curve should estimate zero impact")
	}
	if !curve.Max().IsZero() {
		t.Error("empty curve should have zero max impact")
	}
}
