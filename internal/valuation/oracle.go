// internal/valuation/oracle.go
package valuation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rovshanmuradov/solana-lp-agent/internal/config"
)

// PriceOracle возвращает цену одной единицы токена (с учётом decimals) в USD.
// ok == false означает, что цена неизвестна.
type PriceOracle interface {
	GetUnitPrice(ctx context.Context, mint solana.PublicKey) (decimal.Decimal, bool)
}

// OracleFunc адаптирует функцию к PriceOracle.
type OracleFunc func(ctx context.Context, mint solana.PublicKey) (decimal.Decimal, bool)

func (f OracleFunc) GetUnitPrice(ctx context.Context, mint solana.PublicKey) (decimal.Decimal, bool) {
	return f(ctx, mint)
}

// StaticOracle - фиксированные цены из конфигурации.
type StaticOracle map[solana.PublicKey]decimal.Decimal

// NewStaticOracle разбирает секцию price.static.
func NewStaticOracle(prices []config.StaticPrice) (StaticOracle, error) {
	out := make(StaticOracle, len(prices))
	for _, p := range prices {
		mint, err := solana.PublicKeyFromBase58(p.Mint)
		if err != nil {
			return nil, fmt.Errorf("invalid price mint %q: %w", p.Mint, err)
		}
		price, err := decimal.NewFromString(p.USD)
		if err != nil {
			return nil, fmt.Errorf("invalid price for %s: %w", p.Mint, err)
		}
		out[mint] = price
	}
	return out, nil
}

func (s StaticOracle) GetUnitPrice(_ context.Context, mint solana.PublicKey) (decimal.Decimal, bool) {
	price, ok := s[mint]
	return price, ok
}

type cachedPrice struct {
	price     decimal.Decimal
	ok        bool
	fetchedAt time.Time
}

// CachedOracle кэширует ответы оракула на ttl; одновременные запросы
// одного минта схлопываются в один вызов.
type CachedOracle struct {
	oracle PriceOracle
	ttl    time.Duration
	cache  sync.Map // solana.PublicKey -> cachedPrice
	group  singleflight.Group
	now    func() time.Time
	logger *zap.Logger
}

// NewCachedOracle оборачивает oracle. ttl == 0 отключает устаревание.
func NewCachedOracle(oracle PriceOracle, ttl time.Duration, logger *zap.Logger) *CachedOracle {
	return &CachedOracle{
		oracle: oracle,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.Named("price-cache"),
	}
}

func (c *CachedOracle) GetUnitPrice(ctx context.Context, mint solana.PublicKey) (decimal.Decimal, bool) {
	if v, ok := c.cache.Load(mint); ok {
		entry := v.(cachedPrice)
		if c.ttl == 0 || c.now().Sub(entry.fetchedAt) < c.ttl {
			return entry.price, entry.ok
		}
	}

	v, _, _ := c.group.Do(mint.String(), func() (interface{}, error) {
		price, ok := c.oracle.GetUnitPrice(ctx, mint)
		entry := cachedPrice{price: price, ok: ok, fetchedAt: c.now()}
		// отмена контекста не должна запоминаться как "цены нет"
		if ok || ctx.Err() == nil {
			c.cache.Store(mint, entry)
		}
		c.logger.Debug("Price fetched",
			zap.Stringer("mint", mint),
			zap.Bool("found", ok),
			zap.String("price", price.String()))
		return entry, nil
	})
	entry := v.(cachedPrice)
	return entry.price, entry.ok
}
