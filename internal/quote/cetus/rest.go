package cetus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/crypto-trading/impactcurve/internal/domain"
	"github.com/crypto-trading/impactcurve/internal/quote"
)

const codeOK = 200

type Config struct {
	RestURL       string
	Timeout       time.Duration
	MaxConcurrent int
}

type routesEnvelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data *struct {
		AmountIn  decimal.Decimal `json:"amount_in"`
		AmountOut decimal.Decimal `json:"amount_out"`
	} `json:"data"`
}

// Client asks the Cetus aggregator router for the best exact-in route.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *quote.TokenBucket
	logger     *slog.Logger
}

func New(cfg Config, limiter *quote.TokenBucket, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		logger:     logger,
	}
}

func (c *Client) Name() string {
	return "cetus"
}

func (c *Client) FetchBatch(ctx context.Context, pair domain.TokenPair, amounts []int64) []domain.QuoteOutcome {
	return quote.FetchAll(ctx, amounts, c.cfg.MaxConcurrent, func(ctx context.Context, amount int64) (float64, error) {
		return c.findRoute(ctx, pair, amount)
	})
}

func (c *Client) findRoute(ctx context.Context, pair domain.TokenPair, amount int64) (float64, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return 0, fmt.Errorf("rate limit: %w", err)
	}

	q := url.Values{}
	q.Set("from", pair.TokenIn)
	q.Set("target", pair.TokenOut)
	q.Set("amount", strconv.FormatInt(amount, 10))
	q.Set("by_amount_in", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.RestURL+"/find_routes?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var env routesEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return 0, fmt.Errorf("parse routes response: %w", err)
	}
	if env.Code != codeOK || env.Data == nil {
		return 0, fmt.Errorf("router code %d (%s): %w", env.Code, env.Msg, domain.ErrNoRoute)
	}

	c.logger.Debug("cetus route", "amount_in", amount, "amount_out", env.Data.AmountOut.String())
	return domain.OutputFromDecimal(env.Data.AmountOut)
}
