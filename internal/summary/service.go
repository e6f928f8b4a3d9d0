// internal/summary/service.go
package summary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain"
	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain/solbc/programs/computebudget"
	"github.com/rovshanmuradov/solana-lp-agent/internal/decoder"
	"github.com/rovshanmuradov/solana-lp-agent/internal/events"
	"github.com/rovshanmuradov/solana-lp-agent/internal/valuation"
)

// ErrTransactionNotFound - транзакция ещё не подтверждена или неизвестна узлу.
var ErrTransactionNotFound = errors.New("transaction not found")

// Service превращает подтверждённые транзакции в сводки относительно одного владельца.
type Service struct {
	fetcher  blockchain.TransactionFetcher
	decoder  *decoder.Decoder
	valuator *valuation.Valuator
	owner    solana.PublicKey
	cache    *Cache
	events   events.Publisher
	logger   *zap.Logger
}

// Option настраивает Service.
type Option func(*Service)

// WithCache задаёт общий кэш сводок.
func WithCache(c *Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithMetrics регистрирует метрики кэша. Игнорируется, если кэш задан через WithCache.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *Service) {
		if s.cache == nil {
			s.cache = NewCache(reg)
		}
	}
}

// WithEvents публикует summary.computed после каждого вычисления.
func WithEvents(p events.Publisher) Option {
	return func(s *Service) { s.events = p }
}

func NewService(fetcher blockchain.TransactionFetcher, dec *decoder.Decoder, val *valuation.Valuator, owner solana.PublicKey, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		fetcher:  fetcher,
		decoder:  dec,
		valuator: val,
		owner:    owner,
		logger:   logger.Named("summary"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = NewCache(nil)
	}
	return s
}

// Summarize возвращает сводку транзакции, вычисляя её не более одного раза на подпись.
func (s *Service) Summarize(ctx context.Context, signature solana.Signature) (*Summary, error) {
	return s.cache.GetOrCompute(signature.String(), func() (*Summary, error) {
		return s.compute(ctx, signature)
	})
}

// Decode загружает транзакцию и возвращает дерево декодированных инструкций без оценки.
func (s *Service) Decode(ctx context.Context, signature solana.Signature) ([]*decoder.DecodedInstruction, error) {
	tx, err := s.fetch(ctx, signature)
	if err != nil {
		return nil, err
	}
	return s.decoder.DecodeTransaction(ctx, tx), nil
}

func (s *Service) fetch(ctx context.Context, signature solana.Signature) (*blockchain.LedgerTransaction, error) {
	tx, err := s.fetcher.GetTransaction(ctx, signature)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", signature, err)
	}
	if tx == nil {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, signature)
	}
	return tx, nil
}

func (s *Service) compute(ctx context.Context, signature solana.Signature) (*Summary, error) {
	start := time.Now()
	tx, err := s.fetch(ctx, signature)
	if err != nil {
		return nil, err
	}

	decoded := s.decoder.DecodeTransaction(ctx, tx)
	failed := tx.Err != nil

	// неуспешная транзакция списывает только комиссию, переводов не было
	var (
		transfers []*decoder.TokenTransfer
		result    = &valuation.Result{USDNetDelta: decimal.Zero}
	)
	if !failed {
		transfers = decoder.Transfers(decoded)
		result, err = s.valuator.Aggregate(ctx, decoded, s.owner)
		if err != nil {
			return nil, fmt.Errorf("failed to value transaction %s: %w", signature, err)
		}
	}

	units, price := computebudget.EffectiveBudget(tx.Instructions)
	sum := &Summary{
		Signature:            signature.String(),
		Slot:                 tx.Slot,
		BlockTime:            tx.BlockTime,
		ComputeUnitsConsumed: tx.ComputeUnitsConsumed,
		ComputeUnitLimit:     units,
		ComputeUnitPrice:     price,
		Fee:                  tx.Fee,
		PriorityFee:          computebudget.PriorityFeeLamports(units, price),
		ByteSize:             tx.ByteSize,
		Failed:               failed,
		Owner:                s.owner.String(),
		Instructions:         decoded,
		Transfers:            transfers,
		Deltas:               result.Deltas,
		USDNetDelta:          result.USDNetDelta,
		ComputedAt:           time.Now(),
	}

	s.logger.Info("Transaction summarized",
		zap.String("signature", sum.Signature),
		zap.Bool("failed", failed),
		zap.Int("instructions", len(decoded)),
		zap.Int("transfers", len(sum.Transfers)),
		zap.String("usd_net_delta", sum.USDNetDelta.String()),
		zap.Duration("took", time.Since(start)))

	if s.events != nil {
		ev := events.SummaryComputedEvent{
			BaseEvent:   events.NewBase(events.SummaryComputed),
			Signature:   sum.Signature,
			Transfers:   len(sum.Transfers),
			USDNetDelta: sum.USDNetDelta,
		}
		if err := s.events.Publish(ev); err != nil {
			s.logger.Debug("Event dropped", zap.Error(err))
		}
	}
	return sum, nil
}

// Cached возвращает сводку, если она уже вычислена.
func (s *Service) Cached(signature solana.Signature) (*Summary, bool) {
	return s.cache.Get(signature.String())
}
