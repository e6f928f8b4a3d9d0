package computebudget

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain"
)

type fakeSimulator struct {
	units uint64
	err   error
	calls int
}

func (f *fakeSimulator) SimulateTransaction(_ context.Context, tx *solana.Transaction) (*blockchain.SimulationResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &blockchain.SimulationResult{UnitsConsumed: f.units}, nil
}

type fakeFees struct {
	fees []uint64
	err  error
}

func (f *fakeFees) GetRecentPriorityFees(context.Context, []solana.PublicKey) ([]uint64, error) {
	return f.fees, f.err
}

func testSettings() Settings {
	return Settings{
		MinPriorityFeeLamports: 1_000,
		MaxPriorityFeeLamports: 101_000,
		DefaultUnits:           200_000,
		UnitMarginPercent:      20,
	}
}

func transferIx(t *testing.T) solana.Instruction {
	t.Helper()
	from := solana.NewWallet().PublicKey()
	to := solana.NewWallet().PublicKey()
	return system.NewTransferInstruction(1, from, to).Build()
}

func TestBudgetInstructionsRoundTrip(t *testing.T) {
	b := Budget{ComputeUnitLimit: 300_000, PriorityFeeLamports: 3_000}
	ixs, err := b.Instructions()
	require.NoError(t, err)
	require.Len(t, ixs, 2)

	data, err := ixs[0].Data()
	require.NoError(t, err)
	limit, err := ParseInstruction(data)
	require.NoError(t, err)
	assert.Equal(t, SetComputeUnitLimit, limit.Kind)
	assert.Equal(t, uint32(300_000), limit.Units)

	data, err = ixs[1].Data()
	require.NoError(t, err)
	price, err := ParseInstruction(data)
	require.NoError(t, err)
	assert.Equal(t, SetComputeUnitPrice, price.Kind)
	assert.Equal(t, uint64(10_000), price.MicroLamports)
	assert.Equal(t, "setComputeUnitPrice", price.Name())
}

func TestBudgetWithoutFeeOmitsPrice(t *testing.T) {
	ixs, err := Budget{ComputeUnitLimit: 1000}.Instructions()
	require.NoError(t, err)
	assert.Len(t, ixs, 1)

	_, err = Budget{}.Instructions()
	assert.Error(t, err)
}

func TestParseInstructionErrors(t *testing.T) {
	_, err := ParseInstruction(nil)
	assert.Error(t, err)
	_, err = ParseInstruction([]byte{SetComputeUnitPrice, 1})
	assert.Error(t, err)
	_, err = ParseInstruction([]byte{42})
	assert.Error(t, err)
}

func TestEstimateUsesSimulationWithMargin(t *testing.T) {
	sim := &fakeSimulator{units: 100_000}
	e := NewEstimator(testSettings(), sim, nil, zaptest.NewLogger(t))

	b := e.Estimate(context.Background(), []solana.Instruction{transferIx(t)}, solana.NewWallet().PublicKey(), PriorityMedium, 0)
	assert.Equal(t, 1, sim.calls)
	assert.Equal(t, uint32(120_000), b.ComputeUnitLimit)
	assert.Equal(t, uint64(26_000), b.PriorityFeeLamports)
	assert.Equal(t, PriorityMedium, b.PriorityLevel)
	assert.True(t, b.Simulated)
}

func TestEstimateFallsBackOnSimulationFailure(t *testing.T) {
	sim := &fakeSimulator{err: errors.New("node down")}
	e := NewEstimator(testSettings(), sim, nil, zaptest.NewLogger(t))

	b := e.Estimate(context.Background(), []solana.Instruction{transferIx(t)}, solana.NewWallet().PublicKey(), PriorityLow, 0)
	assert.Equal(t, uint32(1_000), b.ComputeUnitLimit)
	assert.Equal(t, uint64(11_000), b.PriorityFeeLamports)
	assert.False(t, b.Simulated)
}

func TestStaticEstimateUnknownProgramAndCap(t *testing.T) {
	e := NewEstimator(testSettings(), nil, nil, zaptest.NewLogger(t))
	unknown := solana.NewInstruction(solana.NewWallet().PublicKey(), nil, []byte{1})

	b := e.Estimate(context.Background(), []solana.Instruction{unknown}, solana.NewWallet().PublicKey(), PriorityHigh, 0)
	assert.Equal(t, uint32(200_000), b.ComputeUnitLimit)

	many := make([]solana.Instruction, 10)
	for i := range many {
		many[i] = unknown
	}
	b = e.Estimate(context.Background(), many, solana.NewWallet().PublicKey(), PriorityHigh, 0)
	assert.Equal(t, MaxUnits, b.ComputeUnitLimit)
}

func TestEstimateFeeScalesWithLevelAndVariant(t *testing.T) {
	e := NewEstimator(testSettings(), nil, nil, zaptest.NewLogger(t))
	payer := solana.NewWallet().PublicKey()
	ixs := []solana.Instruction{transferIx(t)}

	var prev uint64
	for _, level := range []PriorityLevel{PriorityLow, PriorityMedium, PriorityHigh, PriorityExtreme} {
		fee := e.Estimate(context.Background(), ixs, payer, level, 0).PriorityFeeLamports
		assert.Greater(t, fee, prev, "level %s", level)
		prev = fee
	}

	base := e.Estimate(context.Background(), ixs, payer, PriorityMedium, 0).PriorityFeeLamports
	second := e.Estimate(context.Background(), ixs, payer, PriorityMedium, 1).PriorityFeeLamports
	third := e.Estimate(context.Background(), ixs, payer, PriorityMedium, 2).PriorityFeeLamports
	assert.Equal(t, uint64(26_000), base)
	assert.Equal(t, uint64(39_000), second)
	assert.Equal(t, uint64(52_000), third)

	capped := e.Estimate(context.Background(), ixs, payer, PriorityExtreme, 5).PriorityFeeLamports
	assert.Equal(t, uint64(101_000), capped)
}

func TestEstimateUsesSampledFees(t *testing.T) {
	fees := &fakeFees{fees: []uint64{0, 1_000_000, 2_000_000, 3_000_000, 4_000_000}}
	sim := &fakeSimulator{units: 10_000}
	e := NewEstimator(testSettings(), sim, fees, zaptest.NewLogger(t))

	b := e.Estimate(context.Background(), []solana.Instruction{transferIx(t)}, solana.NewWallet().PublicKey(), PriorityMedium, 0)
	// 12_000 CU * 2 lamports/CU
	assert.Equal(t, uint64(24_000), b.PriorityFeeLamports)

	fees.fees = []uint64{1}
	b = e.Estimate(context.Background(), []solana.Instruction{transferIx(t)}, solana.NewWallet().PublicKey(), PriorityMedium, 0)
	assert.Equal(t, uint64(1_000), b.PriorityFeeLamports, "clamped to min")
}

func TestEstimateUnknownLevelDefaultsToMedium(t *testing.T) {
	e := NewEstimator(testSettings(), nil, nil, zaptest.NewLogger(t))
	b := e.Estimate(context.Background(), []solana.Instruction{transferIx(t)}, solana.NewWallet().PublicKey(), PriorityLevel("turbo"), 0)
	assert.Equal(t, PriorityMedium, b.PriorityLevel)
}

func TestEffectiveBudget(t *testing.T) {
	ixs, err := Budget{ComputeUnitLimit: 50_000, PriorityFeeLamports: 500}.Instructions()
	require.NoError(t, err)

	var ledger []blockchain.Instruction
	for _, ix := range ixs {
		data, err := ix.Data()
		require.NoError(t, err)
		ledger = append(ledger, blockchain.Instruction{ProgramID: ix.ProgramID(), Data: data})
	}
	ledger = append(ledger, blockchain.Instruction{ProgramID: solana.SystemProgramID})

	units, price := EffectiveBudget(ledger)
	assert.Equal(t, uint32(50_000), units)
	assert.Equal(t, uint64(10_000), price)
	assert.Equal(t, uint64(500), PriorityFeeLamports(units, price))

	units, price = EffectiveBudget([]blockchain.Instruction{{ProgramID: solana.SystemProgramID}, {ProgramID: solana.TokenProgramID}})
	assert.Equal(t, uint32(400_000), units)
	assert.Zero(t, price)
}

func TestParsePriorityLevel(t *testing.T) {
	l, err := ParsePriorityLevel("extreme")
	require.NoError(t, err)
	assert.Equal(t, PriorityExtreme, l)
	_, err = ParsePriorityLevel("nope")
	assert.Error(t, err)
}
