package refdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
)

// RateSource loads the official per-product rates effective on a date.
type RateSource interface {
	OfficialRates(ctx context.Context, date time.Time) (map[int64]decimal.Decimal, error)
}

// RateBook caches official rates per day so a locked nozzle's price is
// fetched once per date.
type RateBook struct {
	source RateSource
	cache  *cache.Cache
}

// NewRateBook wraps source with an in-process TTL cache.
func NewRateBook(source RateSource, ttl time.Duration) *RateBook {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RateBook{source: source, cache: cache.New(ttl, 2*ttl)}
}

// Rates returns every official rate for date.
func (b *RateBook) Rates(ctx context.Context, date time.Time) (map[int64]decimal.Decimal, error) {
	if b == nil || b.source == nil {
		return nil, errors.New("refdata: rate book not configured")
	}
	key := rateKey(date)
	if cached, ok := b.cache.Get(key); ok {
		return cached.(map[int64]decimal.Decimal), nil
	}
	rates, err := b.source.OfficialRates(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("refdata: load rates %s: %w", key, err)
	}
	if rates == nil {
		rates = map[int64]decimal.Decimal{}
	}
	b.cache.Set(key, rates, cache.DefaultExpiration)
	return rates, nil
}

func rateKey(date time.Time) string {
	return "rates:" + date.Format("2006-01-02")
}
