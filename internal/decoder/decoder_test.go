package decoder

import (
	"context"
	"encoding/binary"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain"
	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain/solbc/idl"
	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain/solbc/programs/computebudget"
)

type mapResolver map[solana.PublicKey]TokenAccountInfo

func (m mapResolver) ResolveTokenAccount(_ context.Context, account solana.PublicKey) (TokenAccountInfo, error) {
	if info, ok := m[account]; ok {
		return info, nil
	}
	return TokenAccountInfo{}, errors.New("not found")
}

func toLedger(t *testing.T, ix solana.Instruction) blockchain.Instruction {
	t.Helper()
	data, err := ix.Data()
	require.NoError(t, err)
	return blockchain.Instruction{ProgramID: ix.ProgramID(), Accounts: ix.Accounts(), Data: data}
}

func tokenTransferIx(amount uint64, source, destination, authority solana.PublicKey) blockchain.Instruction {
	data := make([]byte, 9)
	data[0] = 3
	binary.LittleEndian.PutUint64(data[1:], amount)
	return blockchain.Instruction{
		ProgramID: solana.TokenProgramID,
		Accounts: []*solana.AccountMeta{
			solana.Meta(source).WRITE(),
			solana.Meta(destination).WRITE(),
			solana.Meta(authority).SIGNER(),
		},
		Data: data,
	}
}

func transferCheckedIx(amount uint64, decimals uint8, source, mint, destination, authority solana.PublicKey) blockchain.Instruction {
	data := make([]byte, 10)
	data[0] = 12
	binary.LittleEndian.PutUint64(data[1:], amount)
	data[9] = decimals
	return blockchain.Instruction{
		ProgramID: solana.Token2022ProgramID,
		Accounts: []*solana.AccountMeta{
			solana.Meta(source).WRITE(),
			solana.Meta(mint),
			solana.Meta(destination).WRITE(),
			solana.Meta(authority).SIGNER(),
		},
		Data: data,
	}
}

func initAccount3Ix(account, mint, owner solana.PublicKey) blockchain.Instruction {
	data := append([]byte{18}, owner.Bytes()...)
	return blockchain.Instruction{
		ProgramID: solana.TokenProgramID,
		Accounts:  []*solana.AccountMeta{solana.Meta(account).WRITE(), solana.Meta(mint)},
		Data:      data,
	}
}

func newKey() solana.PublicKey { return solana.NewWallet().PublicKey() }

func TestDecodeComputeBudgetAndSystem(t *testing.T) {
	d := NewDecoder(nil, nil, zaptest.NewLogger(t))
	budget, err := computebudget.Budget{ComputeUnitLimit: 300_000, PriorityFeeLamports: 3_000}.Instructions()
	require.NoError(t, err)

	limit := d.Decode(context.Background(), toLedger(t, budget[0]), nil)
	assert.Equal(t, "setComputeUnitLimit", limit.Name)
	assert.Equal(t, uint32(300_000), limit.Args["units"])
	price := d.Decode(context.Background(), toLedger(t, budget[1]), nil)
	assert.Equal(t, uint64(10_000), price.Args["microLamports"])

	from, to := newKey(), newKey()
	transfer := d.Decode(context.Background(), toLedger(t, system.NewTransferInstruction(42, from, to).Build()), nil)
	assert.Equal(t, "transfer", transfer.Name)
	require.NotNil(t, transfer.Transfer)
	assert.Equal(t, solana.SolMint, transfer.Transfer.Mint)
	assert.Equal(t, int64(42), transfer.Transfer.Amount.Int64())
	assert.Equal(t, from, transfer.Transfer.SourceOwner)
	assert.Equal(t, to, transfer.Transfer.DestinationOwner)
	assert.Equal(t, "from", transfer.Accounts[0].Name)
}

func TestDecodeResolvesOwnersThroughTempRegistry(t *testing.T) {
	wallet, mint := newKey(), newKey()
	vault, pool := newKey(), newKey()
	lpProgram := newKey()

	createATA := toLedger(t, associatedtokenaccount.NewCreateInstruction(wallet, wallet, mint).Build())
	ata, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
	require.NoError(t, err)

	tx := &blockchain.LedgerTransaction{Instructions: []blockchain.Instruction{
		createATA,
		{
			ProgramID: lpProgram,
			Data:      []byte{0xde, 0xad},
			Inner: []blockchain.Instruction{
				tokenTransferIx(70, vault, ata, pool),
			},
		},
	}}

	d := NewDecoder(nil, mapResolver{vault: {Mint: mint, Owner: pool}}, zaptest.NewLogger(t))
	decoded := d.DecodeTransaction(context.Background(), tx)
	require.Len(t, decoded, 2)

	assert.Contains(t, []string{"create", "createIdempotent"}, decoded[0].Name)
	assert.True(t, decoded[1].Opaque)
	require.Len(t, decoded[1].Inner, 1)

	transfers := Transfers(decoded)
	require.Len(t, transfers, 1)
	tr := transfers[0]
	assert.Equal(t, mint, tr.Mint)
	assert.Equal(t, pool, tr.SourceOwner)
	assert.Equal(t, wallet, tr.DestinationOwner)
	assert.Equal(t, int64(70), tr.Amount.Int64())
}

func TestDecodeInitializeAccountInInnerInstructions(t *testing.T) {
	temp, mint, owner, dest := newKey(), newKey(), newKey(), newKey()
	program := newKey()

	ix := blockchain.Instruction{
		ProgramID: program,
		Inner: []blockchain.Instruction{
			initAccount3Ix(temp, mint, owner),
			transferCheckedIx(5, 6, temp, mint, dest, owner),
		},
	}
	d := NewDecoder(nil, nil, zaptest.NewLogger(t))
	registry := NewTempAccounts()
	out := d.Decode(context.Background(), ix, registry)

	assert.Equal(t, 1, registry.Len())
	require.Len(t, out.Inner, 2)
	assert.Equal(t, "initializeAccount3", out.Inner[0].Name)
	tr := out.Inner[1].Transfer
	require.NotNil(t, tr)
	assert.Equal(t, owner, tr.SourceOwner)
	assert.Equal(t, dest, tr.DestinationOwner, "unresolved owner falls back to the raw address")
	assert.Equal(t, mint, tr.Mint)
	require.NotNil(t, tr.Decimals)
	assert.Equal(t, uint8(6), *tr.Decimals)
}

func TestDecodeOpaqueFallbacks(t *testing.T) {
	d := NewDecoder(idl.NewRegistry(nil, zaptest.NewLogger(t)), nil, zaptest.NewLogger(t))
	unknown := blockchain.Instruction{ProgramID: newKey(), Data: []byte{1, 2, 3}}

	out := d.Decode(context.Background(), unknown, nil)
	assert.True(t, out.Opaque)
	assert.Equal(t, OpaqueName, out.Name)
	assert.Equal(t, []byte{1, 2, 3}, out.Data)
	assert.NotNil(t, out.Inner)
	assert.Empty(t, out.Inner)

	malformed := blockchain.Instruction{ProgramID: solana.TokenProgramID, Data: []byte{3, 1}}
	out = d.Decode(context.Background(), malformed, nil)
	assert.True(t, out.Opaque)
	assert.Equal(t, "Token", out.ProgramName)

	empty := blockchain.Instruction{ProgramID: solana.SystemProgramID}
	assert.True(t, d.Decode(context.Background(), empty, nil).Opaque)
}

func TestDecodeWithSchema(t *testing.T) {
	schema, err := idl.Parse([]byte(`{
		"version": "0.1.0",
		"name": "lp_vault",
		"instructions": [{
			"name": "deposit",
			"accounts": [{"name": "user", "isMut": true, "isSigner": true}],
			"args": [{"name": "amount", "type": "u64"}]
		}]
	}`))
	require.NoError(t, err)
	program, user := newKey(), newKey()
	registry := idl.NewRegistry(nil, zaptest.NewLogger(t))
	registry.Put(program, schema)

	data := append(idl.CalculateDiscriminator("deposit"), make([]byte, 8)...)
	binary.LittleEndian.PutUint64(data[8:], 1_000)

	d := NewDecoder(registry, nil, zaptest.NewLogger(t))
	out := d.Decode(context.Background(), blockchain.Instruction{
		ProgramID: program,
		Accounts:  []*solana.AccountMeta{solana.Meta(user).WRITE().SIGNER()},
		Data:      data,
	}, nil)

	assert.False(t, out.Opaque)
	assert.Equal(t, "lp_vault", out.ProgramName)
	assert.Equal(t, "deposit", out.Name)
	assert.Equal(t, uint64(1_000), out.Args["amount"])
	assert.Equal(t, "user", out.Accounts[0].Name)

	// лишние байты делают инструкцию opaque
	out = d.Decode(context.Background(), blockchain.Instruction{ProgramID: program, Data: append(data, 0)}, nil)
	assert.True(t, out.Opaque)
}

func TestDecodeRecoversFromPanics(t *testing.T) {
	program := newKey()
	d := NewDecoder(nil, nil, zaptest.NewLogger(t))
	d.Register(program, func(context.Context, *Decoder, blockchain.Instruction, *TempAccounts) (*DecodedInstruction, error) {
		panic("bad layout")
	})
	out := d.Decode(context.Background(), blockchain.Instruction{ProgramID: program}, nil)
	assert.True(t, out.Opaque)
}

type fakeReader struct {
	calls int32
	owner solana.PublicKey
	data  []byte
}

func (f *fakeReader) GetAccountInfo(context.Context, solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	atomic.AddInt32(&f.calls, 1)
	return &rpc.GetAccountInfoResult{Value: &rpc.Account{
		Owner: f.owner,
		Data:  rpc.DataBytesOrJSONFromBytes(f.data),
	}}, nil
}

func tokenAccountData(mint, owner solana.PublicKey, amount uint64) []byte {
	data := make([]byte, tokenAccountSize)
	copy(data[0:32], mint.Bytes())
	copy(data[32:64], owner.Bytes())
	binary.LittleEndian.PutUint64(data[64:72], amount)
	data[108] = 1 // initialized
	return data
}

func TestChainResolverCachesTokenAccounts(t *testing.T) {
	mint, owner, account := newKey(), newKey(), newKey()
	reader := &fakeReader{owner: solana.TokenProgramID, data: tokenAccountData(mint, owner, 5)}
	r := NewChainResolver(reader, zaptest.NewLogger(t))

	for i := 0; i < 3; i++ {
		info, err := r.ResolveTokenAccount(context.Background(), account)
		require.NoError(t, err)
		assert.Equal(t, mint, info.Mint)
		assert.Equal(t, owner, info.Owner)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&reader.calls))

	wallet := &fakeReader{owner: solana.SystemProgramID}
	_, err := NewChainResolver(wallet, zaptest.NewLogger(t)).ResolveTokenAccount(context.Background(), newKey())
	assert.ErrorIs(t, err, ErrNotTokenAccount)

	_, err = ParseTokenAccount(make([]byte, 10))
	assert.Error(t, err)
}
