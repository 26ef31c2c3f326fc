// Package quote defines the quote-source boundary: given a token pair and a
// list of input amounts, fetch one outcome per amount.
package quote

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crypto-trading/impactcurve/internal/domain"
)

type Source interface {
	// FetchBatch returns exactly one outcome per amount, in input order. A
	// failure for one amount never fails the batch.
	FetchBatch(ctx context.Context, pair domain.TokenPair, amounts []int64) []domain.QuoteOutcome
	Name() string
}

// QuoteFunc fetches the output for a single amount.
type QuoteFunc func(ctx context.Context, amount int64) (float64, error)

// FetchAll issues fn for every amount concurrently and waits for all of them
// to settle. limit caps in-flight requests; limit <= 0 means unbounded.
func FetchAll(ctx context.Context, amounts []int64, limit int, fn QuoteFunc) []domain.QuoteOutcome {
	outcomes := make([]domain.QuoteOutcome, len(amounts))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, amount := range amounts {
		g.Go(func() error {
			out, err := fn(ctx, amount)
			if err != nil {
				outcomes[i] = domain.QuoteFailed(amount, err)
				return nil
			}
			outcomes[i] = domain.QuoteOK(amount, out)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// BatchRecorder receives per-batch telemetry.
type BatchRecorder interface {
	ObserveQuoteBatch(source string, outcomes []domain.QuoteOutcome, elapsed time.Duration)
}

type instrumented struct {
	Source
	recorder BatchRecorder
	logger   *slog.Logger
}

// Instrument wraps a source so every batch is logged and reported to recorder.
func Instrument(src Source, recorder BatchRecorder, logger *slog.Logger) Source {
	return &instrumented{Source: src, recorder: recorder, logger: logger}
}

func (s *instrumented) FetchBatch(ctx context.Context, pair domain.TokenPair, amounts []int64) []domain.QuoteOutcome {
	start := time.Now()
	outcomes := s.Source.FetchBatch(ctx, pair, amounts)
	elapsed := time.Since(start)

	failed := 0
	for _, o := range outcomes {
		if !o.Succeeded() {
			failed++
			s.logger.Warn("quote failed",
				"source", s.Name(),
				"pair", pair.String(),
				"amount", o.Amount,
				"error", o.Err,
			)
		}
	}
	s.logger.Info("quote batch settled",
		"source", s.Name(),
		"pair", pair.String(),
		"requested", len(amounts),
		"succeeded", len(outcomes)-failed,
		"elapsed", elapsed,
	)

	if s.recorder != nil {
		s.recorder.ObserveQuoteBatch(s.Name(), outcomes, elapsed)
	}
	return outcomes
}
