package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

type mapCache struct {
	prices  map[string]CachedPrice
	readErr error
}

func (m *mapCache) GetPrice(_ context.Context, symbol string) (CachedPrice, bool, error) {
	if m.readErr != nil {
		return CachedPrice{}, false, m.readErr
	}
	p, ok := m.prices[symbol]
	return p, ok, nil
}

func (m *mapCache) SetPrice(_ context.Context, p CachedPrice) error {
	m.prices[p.Symbol] = p
	return nil
}

type countingQuoter struct {
	calls int
	price decimal.Decimal
	live  bool
	found bool
}

func (c *countingQuoter) LatestPrice(context.Context, string, bool) (decimal.Decimal, bool, bool) {
	c.calls++
	return c.price, c.live, c.found
}

func TestCachedQuoter_HitAndMiss(t *testing.T) {
	cache := &mapCache{prices: map[string]CachedPrice{}}
	upstream := &countingQuoter{price: decimal.NewFromInt(42), live: true, found: true}
	q := NewCachedQuoter(cache, upstream, zerolog.Nop())
	ctx := context.Background()

	price, live, ok := q.LatestPrice(ctx, "AAPL", true)
	assert.True(t, ok)
	assert.True(t, live)
	assert.True(t, price.Equal(decimal.NewFromInt(42)))
	assert.Equal(t, 1, upstream.calls)

	_, _, ok = q.LatestPrice(ctx, "AAPL", true)
	assert.True(t, ok)
	assert.Equal(t, 1, upstream.calls, "second read served from cache")

	upstream.live = false
	_, live, _ = q.LatestPrice(ctx, "AAPL", false)
	assert.False(t, live)
	assert.Equal(t, 2, upstream.calls, "live quote not reused once the market is closed")
}

func TestCachedQuoter_UpstreamMissAndCacheError(t *testing.T) {
	cache := &mapCache{prices: map[string]CachedPrice{}, readErr: errors.New("redis down")}
	upstream := &countingQuoter{}
	q := NewCachedQuoter(cache, upstream, zerolog.Nop())

	_, _, ok := q.LatestPrice(context.Background(), "ZZZ", false)
	assert.False(t, ok)
	assert.Equal(t, 1, upstream.calls)
	assert.Empty(t, cache.prices)
}
