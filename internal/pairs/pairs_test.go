package pairs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crypto-trading/impactcurve/internal/domain"
)

const usdc = "USDC"

var testPools = []Pool{
	{TokenA: "XLM", TokenB: usdc, Protocol: "soroswap"},
	{TokenA: usdc, TokenB: "AQUA", Protocol: "aqua"},
	{TokenA: "BTC", TokenB: usdc, Protocol: "phoenix"},
	{TokenA: "XLM", TokenB: "AQUA", Protocol: "soroswap"},
	{TokenA: "AQUA", TokenB: "XLM", Protocol: "aqua"},
	{TokenA: "BTC", TokenB: "XLM", Protocol: "Phoenix"},
	{TokenA: "ETH", TokenB: "XLM", Protocol: "soroswap"},
}

func TestAnchoredPairs(t *testing.T) {
	got := AnchoredPairs(testPools, usdc)
	assert.Equal(t, []domain.TokenPair{
		{TokenIn: "XLM", TokenOut: "AQUA"},
		{TokenIn: "BTC", TokenOut: "XLM"},
	}, got)
}

func TestAnchoredPairs_UnknownAnchor(t *testing.T) {
	assert.Empty(t, AnchoredPairs(testPools, "DOGE"))
}

func TestByProtocol(t *testing.T) {
	tests := []struct {
		protocol string
		want     []domain.TokenPair
	}{
		{"soroswap", []domain.TokenPair{
			{TokenIn: "XLM", TokenOut: usdc},
			{TokenIn: "XLM", TokenOut: "AQUA"},
			{TokenIn: "ETH", TokenOut: "XLM"},
		}},
		{"phoenix", []domain.TokenPair{
			{TokenIn: "BTC", TokenOut: usdc},
			{TokenIn: "BTC", TokenOut: "XLM"},
		}},
		{"sdex", nil},
	}
	for _, tt := range tests {
		t.Run(tt.protocol, func(t *testing.T) {
			assert.Equal(t, tt.want, ByProtocol(testPools, tt.protocol))
		})
	}
}

func TestMerge(t *testing.T) {
	base := []domain.TokenPair{{TokenIn: "A", TokenOut: "B"}}
	extra := []domain.TokenPair{{TokenIn: "B", TokenOut: "A"}, {TokenIn: "A", TokenOut: "C"}, {TokenIn: "C", TokenOut: "C"}}

	assert.Equal(t, []domain.TokenPair{
		{TokenIn: "A", TokenOut: "B"},
		{TokenIn: "A", TokenOut: "C"},
	}, Merge(base, extra))
}

func TestLoadPools(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pools.json")
	body := `[{"tokenA":"XLM","tokenB":"USDC","protocol":"soroswap","reserveA":"100"}]`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	pools, err := LoadPools(path)
	require.NoError(t, err)
	assert.Equal(t, []Pool{{TokenA: "XLM", TokenB: "USDC", Protocol: "soroswap"}}, pools)

	_, err = LoadPools(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
	_, err = LoadPools(bad)
	assert.Error(t, err)
}
