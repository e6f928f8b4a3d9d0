package summary

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain"
	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain/solbc/programs/computebudget"
	"github.com/rovshanmuradov/solana-lp-agent/internal/decoder"
	"github.com/rovshanmuradov/solana-lp-agent/internal/events"
	"github.com/rovshanmuradov/solana-lp-agent/internal/valuation"
)

type fakeFetcher struct {
	calls atomic.Int32
	tx    *blockchain.LedgerTransaction
	err   error
}

func (f *fakeFetcher) GetTransaction(context.Context, solana.Signature) (*blockchain.LedgerTransaction, error) {
	f.calls.Add(1)
	return f.tx, f.err
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func ledgerIx(t *testing.T, ix solana.Instruction) blockchain.Instruction {
	t.Helper()
	data, err := ix.Data()
	require.NoError(t, err)
	return blockchain.Instruction{ProgramID: ix.ProgramID(), Accounts: ix.Accounts(), Data: data}
}

func withdrawalTx(t *testing.T, owner solana.PublicKey) *blockchain.LedgerTransaction {
	t.Helper()
	budget, err := computebudget.Budget{ComputeUnitLimit: 100_000, PriorityFeeLamports: 1_000}.Instructions()
	require.NoError(t, err)
	pool := solana.NewWallet().PublicKey()
	units := uint64(45_000)

	return &blockchain.LedgerTransaction{
		Signature:            solana.Signature{9},
		Slot:                 77,
		Fee:                  6_000,
		ComputeUnitsConsumed: &units,
		ByteSize:             512,
		Instructions: []blockchain.Instruction{
			ledgerIx(t, budget[0]),
			ledgerIx(t, budget[1]),
			{
				ProgramID: solana.NewWallet().PublicKey(),
				Data:      []byte{7},
				Inner: []blockchain.Instruction{
					ledgerIx(t, system.NewTransferInstruction(2_000_000_000, pool, owner).Build()),
				},
			},
		},
	}
}

func newService(t *testing.T, fetcher *fakeFetcher, owner solana.PublicKey, opts ...Option) *Service {
	t.Helper()
	dec := decoder.NewDecoder(nil, nil, zaptest.NewLogger(t))
	oracle := valuation.StaticOracle{solana.SolMint: decimal.NewFromInt(150)}
	val := valuation.NewValuator(oracle, valuation.NewMetadataCache(nil, zaptest.NewLogger(t)), zaptest.NewLogger(t))
	return NewService(fetcher, dec, val, owner, zaptest.NewLogger(t), opts...)
}

func TestSummarizeFailedTransactionHasNoFlows(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	tx := withdrawalTx(t, owner)
	tx.Instructions = append(tx.Instructions,
		ledgerIx(t, system.NewTransferInstruction(1_000_000_000, owner, solana.NewWallet().PublicKey()).Build()))
	tx.Err = map[string]interface{}{"InstructionError": []interface{}{2, map[string]interface{}{"Custom": 6002}}}

	svc := newService(t, &fakeFetcher{tx: tx}, owner)
	s, err := svc.Summarize(context.Background(), tx.Signature)
	require.NoError(t, err)

	assert.True(t, s.Failed)
	assert.Len(t, s.Instructions, 4, "decoded tree is kept")
	assert.Empty(t, s.Transfers)
	assert.Empty(t, s.Deltas)
	assert.True(t, s.USDNetDelta.IsZero())
	assert.Nil(t, s.NetDelta(solana.SolMint.String()))
	assert.Equal(t, uint64(6_000), s.Fee)
}

func TestSummarizeComputesOnce(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	fetcher := &fakeFetcher{tx: withdrawalTx(t, owner)}
	rec := &recorder{}
	svc := newService(t, fetcher, owner, WithEvents(rec), WithMetrics(prometheus.NewRegistry()))
	sig := solana.Signature{9}

	first, err := svc.Summarize(context.Background(), sig)
	require.NoError(t, err)
	second, err := svc.Summarize(context.Background(), sig)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), fetcher.calls.Load())
	require.Len(t, rec.events, 1)
	assert.Equal(t, events.SummaryComputed, rec.events[0].Type())

	assert.Equal(t, uint64(77), first.Slot)
	assert.Equal(t, uint64(6_000), first.Fee)
	assert.Equal(t, uint32(100_000), first.ComputeUnitLimit)
	assert.Equal(t, uint64(1_000), first.PriorityFee)
	assert.Equal(t, 512, first.ByteSize)
	require.Len(t, first.Transfers, 1)
	assert.Equal(t, "2000000000", first.NetDelta(solana.SolMint.String()).String())
	assert.True(t, first.USDNetDelta.Equal(decimal.NewFromInt(300)), first.USDNetDelta.String())

	cached, ok := svc.Cached(sig)
	assert.True(t, ok)
	assert.Same(t, first, cached)
}

func TestSummarizeConcurrentCallersShareOneComputation(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	fetcher := &fakeFetcher{tx: withdrawalTx(t, owner)}
	svc := newService(t, fetcher, owner)

	var wg sync.WaitGroup
	results := make([]*Summary, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := svc.Summarize(context.Background(), solana.Signature{9})
			assert.NoError(t, err)
			results[i] = s
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), fetcher.calls.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestSummarizeDoesNotCacheErrors(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("node down")}
	svc := newService(t, fetcher, solana.NewWallet().PublicKey())

	_, err := svc.Summarize(context.Background(), solana.Signature{1})
	require.Error(t, err)
	_, err = svc.Summarize(context.Background(), solana.Signature{1})
	require.Error(t, err)
	assert.Equal(t, int32(2), fetcher.calls.Load())

	fetcher.err = nil
	_, err = svc.Summarize(context.Background(), solana.Signature{1})
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestDecodeReturnsTree(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	svc := newService(t, &fakeFetcher{tx: withdrawalTx(t, owner)}, owner)

	tree, err := svc.Decode(context.Background(), solana.Signature{9})
	require.NoError(t, err)
	require.Len(t, tree, 3)
	assert.Equal(t, "setComputeUnitLimit", tree[0].Name)
	assert.True(t, tree[2].Opaque)
	require.Len(t, tree[2].Inner, 1)
	assert.Equal(t, "transfer", tree[2].Inner[0].Name)
}

func TestCacheGetOrCompute(t *testing.T) {
	c := NewCache(nil)
	calls := 0
	compute := func() (*Summary, error) {
		calls++
		return &Summary{Signature: "abc"}, nil
	}
	a, err := c.GetOrCompute("abc", compute)
	require.NoError(t, err)
	b, err := c.GetOrCompute("abc", compute)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, c.Len())
}
