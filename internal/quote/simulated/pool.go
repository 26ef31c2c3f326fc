// Package simulated is an offline quote source backed by a constant-product
// pool. It stands in for a live aggregator in dry_run mode.
package simulated

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"math/rand"
	"sync"
	"time"

	"github.com/crypto-trading/impactcurve/internal/domain"
	"github.com/crypto-trading/impactcurve/internal/quote"
)

var ErrSimulatedReject = errors.New("simulated reject")

const bpsDenominator = 10_000

type Config struct {
	ReserveIn     int64
	ReserveOut    int64
	FeeBps        int64
	RejectRatePct float64
	LatencyMs     int
	MaxConcurrent int
}

type Pool struct {
	reserveIn  *big.Int
	reserveOut *big.Int
	feeMul     *big.Int
	cfg        Config

	mu  sync.Mutex
	rng *rand.Rand

	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) (*Pool, error) {
	if cfg.ReserveIn <= 0 || cfg.ReserveOut <= 0 {
		return nil, fmt.Errorf("simulated pool reserves must be positive, got in=%d out=%d", cfg.ReserveIn, cfg.ReserveOut)
	}
	if cfg.FeeBps < 0 || cfg.FeeBps >= bpsDenominator {
		return nil, fmt.Errorf("simulated pool fee %d bps out of range", cfg.FeeBps)
	}
	return &Pool{
		reserveIn:  big.NewInt(cfg.ReserveIn),
		reserveOut: big.NewInt(cfg.ReserveOut),
		feeMul:     big.NewInt(bpsDenominator - cfg.FeeBps),
		cfg:        cfg,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:     logger,
	}, nil
}

func (p *Pool) Name() string {
	return "simulated"
}

// AmountOut is the constant-product output for amountIn after the fee:
// out = in*f*R_out / (R_in*D + in*f), with f = D - feeBps.
func (p *Pool) AmountOut(amountIn int64) *big.Int {
	in := big.NewInt(amountIn)
	inWithFee := new(big.Int).Mul(in, p.feeMul)
	denominator := new(big.Int).Mul(p.reserveIn, big.NewInt(bpsDenominator))
	denominator.Add(denominator, inWithFee)
	numerator := new(big.Int).Mul(inWithFee, p.reserveOut)
	return numerator.Quo(numerator, denominator)
}

func (p *Pool) FetchBatch(ctx context.Context, pair domain.TokenPair, amounts []int64) []domain.QuoteOutcome {
	return quote.FetchAll(ctx, amounts, p.cfg.MaxConcurrent, func(ctx context.Context, amount int64) (float64, error) {
		return p.quote(ctx, amount)
	})
}

func (p *Pool) quote(ctx context.Context, amount int64) (float64, error) {
	if p.cfg.LatencyMs > 0 {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Duration(p.cfg.LatencyMs) * time.Millisecond):
		}
	}
	if p.shouldReject() {
		return 0, ErrSimulatedReject
	}
	if amount <= 0 {
		return 0, fmt.Errorf("amount %d: %w", amount, domain.ErrNoRoute)
	}

	out := p.AmountOut(amount)
	if out.Sign() <= 0 {
		return 0, fmt.Errorf("amount %d too small: %w", amount, domain.ErrNoRoute)
	}
	f, _ := new(big.Float).SetInt(out).Float64()
	return f, nil
}

func (p *Pool) shouldReject() bool {
	if p.cfg.RejectRatePct <= 0 {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64()*100 < p.cfg.RejectRatePct
}
