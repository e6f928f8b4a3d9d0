// internal/blockchain/solbc/programs/computebudget/estimator.go
package computebudget

import (
	"context"
	"fmt"
	"sort"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain"
	"github.com/rovshanmuradov/solana-lp-agent/internal/config"
)

// Settings - границы оценки из конфигурации.
type Settings struct {
	MinPriorityFeeLamports uint64
	MaxPriorityFeeLamports uint64
	DefaultUnits           uint32
	UnitMarginPercent      uint32
}

// SettingsFromConfig переносит секцию compute_budget.
func SettingsFromConfig(c config.ComputeBudgetConfig) Settings {
	return Settings{
		MinPriorityFeeLamports: c.MinPriorityFeeLamports,
		MaxPriorityFeeLamports: c.MaxPriorityFeeLamports,
		DefaultUnits:           c.DefaultUnits,
		UnitMarginPercent:      c.UnitMarginPercent,
	}
}

// доля диапазона [min,max] для fallback-оценки fee
var levelFraction = map[PriorityLevel]float64{
	PriorityLow:     0.10,
	PriorityMedium:  0.25,
	PriorityHigh:    0.50,
	PriorityExtreme: 1.00,
}

// перцентиль недавних priority fee для уровня
var levelPercentile = map[PriorityLevel]int{
	PriorityLow:     25,
	PriorityMedium:  50,
	PriorityHigh:    75,
	PriorityExtreme: 95,
}

// Статическая стоимость инструкций известных программ.
var staticUnits = map[solana.PublicKey]uint32{
	ProgramID:                                 150,
	solana.SystemProgramID:                    1_000,
	solana.TokenProgramID:                     10_000,
	solana.Token2022ProgramID:                 15_000,
	solana.SPLAssociatedTokenAccountProgramID: 30_000,
	solana.MemoProgramID:                      10_000,
}

// Estimator оценивает лимит CU симуляцией и priority fee по уровню и номеру попытки.
type Estimator struct {
	settings  Settings
	simulator blockchain.Simulator
	fees      blockchain.PriorityFeeProvider
	logger    *zap.Logger
}

// NewEstimator создает оценщик. simulator и fees могут быть nil.
func NewEstimator(settings Settings, simulator blockchain.Simulator, fees blockchain.PriorityFeeProvider, logger *zap.Logger) *Estimator {
	if settings.DefaultUnits == 0 {
		settings.DefaultUnits = DefaultUnits
	}
	return &Estimator{
		settings:  settings,
		simulator: simulator,
		fees:      fees,
		logger:    logger.Named("compute-budget"),
	}
}

// Estimate никогда не возвращает ошибку: сбой симуляции или выборки fee
// заменяется статической оценкой.
func (e *Estimator) Estimate(ctx context.Context, instructions []solana.Instruction, feePayer solana.PublicKey, level PriorityLevel, priorVariant int) Budget {
	if _, ok := levelFraction[level]; !ok {
		level = PriorityMedium
	}

	units, simulated := e.estimateUnits(ctx, instructions, feePayer)
	fee := e.estimateFee(ctx, instructions, units, level)
	fee = augment(fee, priorVariant)
	fee = clamp(fee, e.settings.MinPriorityFeeLamports, e.settings.MaxPriorityFeeLamports)

	budget := Budget{
		ComputeUnitLimit:    units,
		PriorityFeeLamports: fee,
		PriorityLevel:       level,
		Simulated:           simulated,
	}
	e.logger.Debug("Compute budget estimated",
		zap.Uint32("units", budget.ComputeUnitLimit),
		zap.Uint64("priority_fee_lamports", budget.PriorityFeeLamports),
		zap.String("level", string(level)),
		zap.Int("prior_variant", priorVariant),
		zap.Bool("simulated", simulated))
	return budget
}

func (e *Estimator) estimateUnits(ctx context.Context, instructions []solana.Instruction, feePayer solana.PublicKey) (uint32, bool) {
	if e.simulator != nil {
		units, err := e.simulateUnits(ctx, instructions, feePayer)
		if err == nil && units > 0 {
			withMargin := units + units*uint64(e.settings.UnitMarginPercent)/100
			return capUnits(withMargin), true
		}
		e.logger.Debug("Simulation failed, using static estimate", zap.Error(err))
	}
	return e.staticEstimate(instructions), false
}

func (e *Estimator) simulateUnits(ctx context.Context, instructions []solana.Instruction, feePayer solana.PublicKey) (uint64, error) {
	limitIx, err := Budget{ComputeUnitLimit: MaxUnits}.Instructions()
	if err != nil {
		return 0, err
	}
	all := append(limitIx, instructions...)

	tx, err := solana.NewTransaction(all, solana.Hash{}, solana.TransactionPayer(feePayer))
	if err != nil {
		return 0, fmt.Errorf("create simulation transaction: %w", err)
	}
	tx.Signatures = make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)

	res, err := e.simulator.SimulateTransaction(ctx, tx)
	if err != nil {
		return 0, err
	}
	if res.Err != nil {
		return 0, fmt.Errorf("simulation error: %v", res.Err)
	}
	return res.UnitsConsumed, nil
}

// staticEstimate суммирует известные стоимости, для прочих программ берёт DefaultUnits.
func (e *Estimator) staticEstimate(instructions []solana.Instruction) uint32 {
	var total uint64
	for _, ix := range instructions {
		if u, ok := staticUnits[ix.ProgramID()]; ok {
			total += uint64(u)
			continue
		}
		total += uint64(e.settings.DefaultUnits)
	}
	if total == 0 {
		total = uint64(e.settings.DefaultUnits)
	}
	return capUnits(total)
}

func (e *Estimator) estimateFee(ctx context.Context, instructions []solana.Instruction, units uint32, level PriorityLevel) uint64 {
	if e.fees != nil {
		samples, err := e.fees.GetRecentPriorityFees(ctx, writableAccounts(instructions))
		if err == nil && len(samples) > 0 {
			price := percentile(samples, levelPercentile[level])
			if fee := PriorityFeeLamports(units, price); fee > 0 {
				return fee
			}
		} else if err != nil {
			e.logger.Debug("Priority fee sampling failed", zap.Error(err))
		}
	}

	span := float64(e.settings.MaxPriorityFeeLamports - e.settings.MinPriorityFeeLamports)
	return e.settings.MinPriorityFeeLamports + uint64(span*levelFraction[level])
}

// augment повышает ставку на 50% за каждую предыдущую попытку.
func augment(fee uint64, priorVariant int) uint64 {
	if priorVariant <= 0 {
		return fee
	}
	return fee + fee*uint64(priorVariant)/2
}

func clamp(v, lo, hi uint64) uint64 {
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}

func capUnits(u uint64) uint32 {
	if u > uint64(MaxUnits) {
		return MaxUnits
	}
	return uint32(u)
}

func percentile(samples []uint64, p int) uint64 {
	sorted := append([]uint64(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := p * (len(sorted) - 1) / 100
	return sorted[idx]
}

func writableAccounts(instructions []solana.Instruction) []solana.PublicKey {
	seen := make(map[solana.PublicKey]struct{})
	var out []solana.PublicKey
	for _, ix := range instructions {
		for _, acc := range ix.Accounts() {
			if !acc.IsWritable {
				continue
			}
			if _, ok := seen[acc.PublicKey]; ok {
				continue
			}
			seen[acc.PublicKey] = struct{}{}
			out = append(out, acc.PublicKey)
		}
	}
	return out
}
