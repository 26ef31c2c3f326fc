package soroswap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/crypto-trading/impactcurve/internal/domain"
	"github.com/crypto-trading/impactcurve/internal/quote"
)

const tradeTypeExactIn = "EXACT_IN"

type Config struct {
	RestURL       string
	APIKey        string
	Protocols     []string
	SlippageBps   int
	Parts         int
	MaxHops       int
	AssetList     []string
	FeeBps        int
	Timeout       time.Duration
	MaxConcurrent int
}

type quoteRequest struct {
	AssetIn     string   `json:"assetIn"`
	AssetOut    string   `json:"assetOut"`
	Amount      string   `json:"amount"`
	TradeType   string   `json:"tradeType"`
	Protocols   []string `json:"protocols"`
	SlippageBps string   `json:"slippageBps"`
	Parts       int      `json:"parts"`
	MaxHops     int      `json:"maxHops"`
	AssetList   []string `json:"assetList"`
	FeeBps      int      `json:"feeBps"`
}

type quoteResponse struct {
	AssetIn        string          `json:"assetIn"`
	AssetOut       string          `json:"assetOut"`
	AmountIn       decimal.Decimal `json:"amountIn"`
	AmountOut      decimal.Decimal `json:"amountOut"`
	PriceImpactPct string          `json:"priceImpactPct"`
	Platform       string          `json:"platform"`
}

// Client quotes exact-in swaps against the Soroswap aggregator REST API.
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
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    32,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		limiter: limiter,
		logger:  logger,
	}
}

func (c *Client) Name() string {
	return "soroswap"
}

func (c *Client) FetchBatch(ctx context.Context, pair domain.TokenPair, amounts []int64) []domain.QuoteOutcome {
	return quote.FetchAll(ctx, amounts, c.cfg.MaxConcurrent, func(ctx context.Context, amount int64) (float64, error) {
		return c.getQuote(ctx, pair, amount)
	})
}

func (c *Client) getQuote(ctx context.Context, pair domain.TokenPair, amount int64) (float64, error) {
	body := quoteRequest{
		AssetIn:     pair.TokenIn,
		AssetOut:    pair.TokenOut,
		Amount:      strconv.FormatInt(amount, 10),
		TradeType:   tradeTypeExactIn,
		Protocols:   c.cfg.Protocols,
		SlippageBps: strconv.Itoa(c.cfg.SlippageBps),
		Parts:       c.cfg.Parts,
		MaxHops:     c.cfg.MaxHops,
		AssetList:   c.cfg.AssetList,
		FeeBps:      c.cfg.FeeBps,
	}

	respData, err := c.doRequest(ctx, http.MethodPost, "/quote", body)
	if err != nil {
		return 0, err
	}

	var resp quoteResponse
	if err := json.Unmarshal(respData, &resp); err != nil {
		return 0, fmt.Errorf("parse quote response: %w", err)
	}
	c.logger.Debug("soroswap quote",
		"amount_in", amount,
		"amount_out", resp.AmountOut.String(),
		"price_impact_pct", resp.PriceImpactPct,
		"platform", resp.Platform,
	)
	return domain.OutputFromDecimal(resp.AmountOut)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.RestURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
