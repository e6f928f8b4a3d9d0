// internal/valuation/valuator.go
package valuation

import (
	"bytes"
	"context"
	"math/big"
	"sort"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/solana-lp-agent/internal/decoder"
)

// maxConcurrentLookups ограничивает параллельные запросы цен и метаданных.
const maxConcurrentLookups = 8

// TokenDelta - чистое изменение баланса одного минта у опорного владельца.
type TokenDelta struct {
	Mint          solana.PublicKey `json:"mint"`
	Symbol        string           `json:"symbol,omitempty"`
	Raw           *big.Int         `json:"raw"`
	Decimals      *uint8           `json:"decimals,omitempty"`
	Amount        decimal.Decimal  `json:"amount"`
	UnitPrice     decimal.Decimal  `json:"unitPrice"`
	PriceResolved bool             `json:"priceResolved"`
	USD           decimal.Decimal  `json:"usd"`
}

// Result - итог агрегации переводов.
type Result struct {
	Deltas      []TokenDelta    `json:"deltas"`
	USDNetDelta decimal.Decimal `json:"usdNetDelta"`
}

// PerToken возвращает сырые дельты по минтам.
func (r *Result) PerToken() map[solana.PublicKey]*big.Int {
	out := make(map[solana.PublicKey]*big.Int, len(r.Deltas))
	for _, d := range r.Deltas {
		out[d.Mint] = new(big.Int).Set(d.Raw)
	}
	return out
}

// Valuator сворачивает переводы в дельты по минтам и оценивает их в USD.
type Valuator struct {
	oracle   PriceOracle
	metadata *MetadataCache
	logger   *zap.Logger
}

// NewValuator создает оценщик. oracle может быть nil: тогда в USD
// оцениваются только стейблкоины.
func NewValuator(oracle PriceOracle, metadata *MetadataCache, logger *zap.Logger) *Valuator {
	return &Valuator{
		oracle:   oracle,
		metadata: metadata,
		logger:   logger.Named("valuator"),
	}
}

// NetDeltas сворачивает переводы относительно referenceOwner. Переводы
// без минта и переводы, не затрагивающие владельца (или самому себе), пропускаются.
func NetDeltas(transfers []*decoder.TokenTransfer, referenceOwner solana.PublicKey) (map[solana.PublicKey]*big.Int, map[solana.PublicKey]*uint8, int) {
	deltas := make(map[solana.PublicKey]*big.Int)
	decimals := make(map[solana.PublicKey]*uint8)
	unresolved := 0

	for _, t := range transfers {
		if t == nil || t.Amount == nil {
			continue
		}
		if !t.MintResolved() {
			unresolved++
			continue
		}
		out := t.SourceOwner.Equals(referenceOwner)
		in := t.DestinationOwner.Equals(referenceOwner)
		if out == in {
			continue
		}

		d, ok := deltas[t.Mint]
		if !ok {
			d = new(big.Int)
			deltas[t.Mint] = d
		}
		if in {
			d.Add(d, t.Amount)
		} else {
			d.Sub(d, t.Amount)
		}
		if t.Decimals != nil && decimals[t.Mint] == nil {
			v := *t.Decimals
			decimals[t.Mint] = &v
		}
	}
	return deltas, decimals, unresolved
}

// Aggregate считает дельты по всем переводам дерева инструкций и их сумму в USD.
// Неизвестная цена или decimals дают нулевой вклад и предупреждение в логе.
func (v *Valuator) Aggregate(ctx context.Context, decoded []*decoder.DecodedInstruction, referenceOwner solana.PublicKey) (*Result, error) {
	transfers := decoder.Transfers(decoded)
	deltas, knownDecimals, unresolved := NetDeltas(transfers, referenceOwner)
	if unresolved > 0 {
		v.logger.Warn("Transfers with unresolved mint skipped",
			zap.Int("count", unresolved),
			zap.Stringer("owner", referenceOwner))
	}

	mints := make([]solana.PublicKey, 0, len(deltas))
	for mint := range deltas {
		mints = append(mints, mint)
	}
	sort.Slice(mints, func(i, j int) bool { return bytes.Compare(mints[i][:], mints[j][:]) < 0 })

	out := make([]TokenDelta, len(mints))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLookups)
	for i, mint := range mints {
		g.Go(func() error {
			out[i] = v.value(gctx, mint, deltas[mint], knownDecimals[mint])
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, td := range out {
		total = total.Add(td.USD)
	}
	return &Result{Deltas: out, USDNetDelta: total}, nil
}

func (v *Valuator) value(ctx context.Context, mint solana.PublicKey, raw *big.Int, decimals *uint8) TokenDelta {
	td := TokenDelta{Mint: mint, Raw: raw, Decimals: decimals, UnitPrice: decimal.Zero, USD: decimal.Zero}

	var meta *TokenMetadata
	if v.metadata != nil {
		m, err := v.metadata.Get(ctx, mint)
		if err != nil {
			v.logger.Debug("Token metadata unavailable", zap.Stringer("mint", mint), zap.Error(err))
		} else {
			meta = m
			td.Symbol = m.Symbol
			if td.Decimals == nil {
				d := m.Decimals
				td.Decimals = &d
			}
		}
	}
	if td.Decimals == nil {
		v.gap(mint, raw, "decimals unknown")
		td.Amount = decimal.NewFromBigInt(raw, 0)
		return td
	}
	td.Amount = decimal.NewFromBigInt(raw, -int32(*td.Decimals))

	switch {
	case meta.Stable():
		td.UnitPrice, td.PriceResolved = decimal.NewFromInt(1), true
	case v.oracle != nil:
		td.UnitPrice, td.PriceResolved = v.oracle.GetUnitPrice(ctx, mint)
	}
	if !td.PriceResolved {
		td.UnitPrice = decimal.Zero
		v.gap(mint, raw, "price unknown")
		return td
	}
	td.USD = td.Amount.Mul(td.UnitPrice)
	return td
}

func (v *Valuator) gap(mint solana.PublicKey, raw *big.Int, reason string) {
	v.logger.Warn("Valuation gap, zero USD contribution",
		zap.Stringer("mint", mint),
		zap.String("raw_delta", raw.String()),
		zap.String("reason", reason))
}
