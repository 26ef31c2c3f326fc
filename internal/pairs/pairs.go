// Package pairs derives the token pairs to sweep from a pool listing.
package pairs

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/crypto-trading/impactcurve/internal/domain"
)

type Pool struct {
	TokenA   string `json:"tokenA"`
	TokenB   string `json:"tokenB"`
	Protocol string `json:"protocol"`
}

func LoadPools(path string) ([]Pool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pools file: %w", err)
	}
	var pools []Pool
	if err := json.Unmarshal(data, &pools); err != nil {
		return nil, fmt.Errorf("parse pools file %s: %w", path, err)
	}
	return pools, nil
}

// AnchoredPairs returns the pools joining two tokens that each share a pool
// with anchor. Pools touching the anchor itself are not returned. Pairs keep
// the pool's token order and first-seen order.
func AnchoredPairs(pools []Pool, anchor string) []domain.TokenPair {
	paired := make(map[string]bool)
	for _, p := range pools {
		switch anchor {
		case p.TokenA:
			paired[p.TokenB] = true
		case p.TokenB:
			paired[p.TokenA] = true
		}
	}

	d := newDedup()
	for _, p := range pools {
		if paired[p.TokenA] && paired[p.TokenB] {
			d.add(p)
		}
	}
	return d.pairs
}

func ByProtocol(pools []Pool, protocol string) []domain.TokenPair {
	d := newDedup()
	for _, p := range pools {
		if strings.EqualFold(p.Protocol, protocol) {
			d.add(p)
		}
	}
	return d.pairs
}

// Merge appends extra pairs not already in base, ignoring direction.
func Merge(base, extra []domain.TokenPair) []domain.TokenPair {
	d := newDedup()
	for _, p := range base {
		d.add(Pool{TokenA: p.TokenIn, TokenB: p.TokenOut})
	}
	for _, p := range extra {
		d.add(Pool{TokenA: p.TokenIn, TokenB: p.TokenOut})
	}
	return d.pairs
}

type dedup struct {
	seen  map[string]bool
	pairs []domain.TokenPair
}

func newDedup() *dedup {
	return &dedup{seen: make(map[string]bool)}
}

func (d *dedup) add(p Pool) {
	if p.TokenA == "" || p.TokenB == "" || p.TokenA == p.TokenB {
		return
	}
	key := pairKey(p.TokenA, p.TokenB)
	if d.seen[key] {
		return
	}
	d.seen[key] = true
	d.pairs = append(d.pairs, domain.TokenPair{TokenIn: p.TokenA, TokenOut: p.TokenB})
}

func pairKey(a, b string) string {
	tokens := []string{a, b}
	slices.Sort(tokens)
	return tokens[0] + "-" + tokens[1]
}
