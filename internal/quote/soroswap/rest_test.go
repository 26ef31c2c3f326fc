package soroswap

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crypto-trading/impactcurve/internal/domain"
)

func TestClient_FetchBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req quoteRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		assert.Equal(t, "XLM", req.AssetIn)
		assert.Equal(t, "USDC", req.AssetOut)
		assert.Equal(t, tradeTypeExactIn, req.TradeType)
		assert.Equal(t, "50", req.SlippageBps)
		assert.Equal(t, []string{"soroswap", "phoenix"}, req.Protocols)

		amount, err := strconv.ParseInt(req.Amount, 10, 64)
		if !assert.NoError(t, err) {
			return
		}

		switch amount {
		case 3000:
			http.Error(w, `{"message":"no path"}`, http.StatusBadRequest)
		case 4000:
			_, _ = w.Write([]byte(`{"amountIn":"4000","amountOut":"0"}`))
		default:
			_, _ = w.Write([]byte(`{"assetIn":"XLM","assetOut":"USDC","amountIn":"` + req.Amount +
				`","amountOut":"` + strconv.FormatInt(amount*3, 10) + `","priceImpactPct":"0.01","platform":"aggregator"}`))
		}
	}))
	defer srv.Close()

	client := New(Config{
		RestURL:     srv.URL,
		APIKey:      "secret",
		Protocols:   []string{"soroswap", "phoenix"},
		SlippageBps: 50,
		Parts:       10,
		MaxHops:     2,
	}, nil, slog.New(slog.NewTextHandler(os.Stderr, nil)))

	amounts := []int64{1000, 2000, 3000, 4000}
	outcomes := client.FetchBatch(context.Background(), domain.TokenPair{TokenIn: "XLM", TokenOut: "USDC"}, amounts)
	require.Len(t, outcomes, 4)

	assert.True(t, outcomes[0].Succeeded())
	assert.Equal(t, 3000.0, outcomes[0].Observation.Output)
	assert.True(t, outcomes[1].Succeeded())
	assert.Equal(t, 6000.0, outcomes[1].Observation.Output)

	assert.False(t, outcomes[2].Succeeded())
	assert.Contains(t, outcomes[2].Err.Error(), "HTTP 400")

	assert.False(t, outcomes[3].Succeeded())
	assert.ErrorIs(t, outcomes[3].Err, domain.ErrNoRoute)
}

func TestClient_NumericAmountOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"amountOut":123456789012}`))
	}))
	defer srv.Close()

	client := New(Config{RestURL: srv.URL}, nil, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	outcomes := client.FetchBatch(context.Background(), domain.TokenPair{TokenIn: "A", TokenOut: "B"}, []int64{1})
	require.True(t, outcomes[0].Succeeded())
	assert.Equal(t, 123456789012.0, outcomes[0].Observation.Output)
}
