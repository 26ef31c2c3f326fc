package domain

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OutputFromDecimal converts a venue-reported output amount to the float
// representation used by the interpolators. Non-positive amounts mean the
// venue found no usable route.
func OutputFromDecimal(d decimal.Decimal) (float64, error) {
	if !d.IsPositive() {
		return 0, fmt.Errorf("amount out %s: %w", d.String(), ErrNoRoute)
	}
	f, _ := d.Float64()
	return f, nil
}

// NewReportID returns a time-ordered id, falling back to a random one.
func NewReportID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}
