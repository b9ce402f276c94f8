package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Quoter returns the latest price for a symbol; found is false when none is available
type Quoter interface {
	LatestPrice(ctx context.Context, symbol string, marketOpen bool) (price decimal.Decimal, live bool, found bool)
}

// PriceCache is the price half of Store
type PriceCache interface {
	GetPrice(ctx context.Context, symbol string) (CachedPrice, bool, error)
	SetPrice(ctx context.Context, p CachedPrice) error
}

// CachedQuoter serves quotes from Redis and falls through to upstream on a miss.
// A cached quote is reused only when it matches the current session state.
type CachedQuoter struct {
	cache    PriceCache
	upstream Quoter
	log      zerolog.Logger
	now      func() time.Time
}

// NewCachedQuoter creates a CachedQuoter
func NewCachedQuoter(cache PriceCache, upstream Quoter, log zerolog.Logger) *CachedQuoter {
	return &CachedQuoter{cache: cache, upstream: upstream, log: log, now: time.Now}
}

// LatestPrice implements Quoter. Cache errors are logged and treated as misses.
func (q *CachedQuoter) LatestPrice(ctx context.Context, symbol string, marketOpen bool) (decimal.Decimal, bool, bool) {
	cached, found, err := q.cache.GetPrice(ctx, symbol)
	if err != nil {
		q.log.Warn().Err(err).Str("symbol", symbol).Msg("price cache read failed")
	}
	if found && cached.Live == marketOpen {
		return cached.Price, cached.Live, true
	}

	price, live, ok := q.upstream.LatestPrice(ctx, symbol, marketOpen)
	if !ok {
		return decimal.Zero, false, false
	}
	if err := q.cache.SetPrice(ctx, CachedPrice{Symbol: symbol, Price: price, Live: live, At: q.now()}); err != nil {
		q.log.Warn().Err(err).Str("symbol", symbol).Msg("price cache write failed")
	}
	return price, live, true
}
