package wallet

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain"
	"github.com/rovshanmuradov/solana-lp-agent/internal/decoder"
)

func TestNewWallet(t *testing.T) {
	key := solana.NewWallet().PrivateKey
	w, err := NewWallet(" " + key.String() + "\n")
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), w.PublicKey)
	assert.Equal(t, key.PublicKey().String(), w.String())

	_, err = NewWallet("0OIl")
	assert.Error(t, err)
	_, err = NewWallet(key.PublicKey().String())
	assert.ErrorContains(t, err, "invalid private key length")
}

func TestLoadWallets(t *testing.T) {
	a, b := solana.NewWallet().PrivateKey, solana.NewWallet().PrivateKey
	path := filepath.Join(t.TempDir(), "wallets.csv")
	require.NoError(t, os.WriteFile(path, []byte("name,key\nmain,"+a.String()+"\nlp,"+b.String()+"\n"), 0600))

	wallets, err := LoadWallets(path)
	require.NoError(t, err)
	require.Len(t, wallets, 2)
	assert.Equal(t, b.PublicKey(), wallets["lp"].PublicKey)
	assert.Len(t, Signers(wallets["main"], wallets["lp"]), 2)

	bad := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("name,key\nmain,notakey\n"), 0600))
	_, err = LoadWallets(bad)
	assert.ErrorContains(t, err, "row 2")

	empty := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(empty, []byte("name,key\n"), 0600))
	_, err = LoadWallets(empty)
	assert.ErrorIs(t, err, ErrNoWallets)
}

func TestEnsureATASetDecodesAsIdempotentCreate(t *testing.T) {
	w, err := NewWallet(solana.NewWallet().PrivateKey.String())
	require.NoError(t, err)
	mint := solana.NewWallet().PublicKey()

	set, err := w.EnsureATASet(mint)
	require.NoError(t, err)
	require.Len(t, set.Instructions(), 1)
	assert.Equal(t, []solana.PrivateKey{w.PrivateKey}, set.Signers())

	ata, err := w.GetATA(mint)
	require.NoError(t, err)
	assert.Equal(t, ata.String(), set.Debug()["ata"])

	ix := set.Instructions()[0]
	data, err := ix.Data()
	require.NoError(t, err)

	temp := decoder.NewTempAccounts()
	out := decoder.NewDecoder(nil, nil, zaptest.NewLogger(t)).Decode(context.Background(), blockchain.Instruction{
		ProgramID: ix.ProgramID(),
		Accounts:  ix.Accounts(),
		Data:      data,
	}, temp)
	assert.Equal(t, "createIdempotent", out.Name)

	info, ok := temp.Lookup(ata)
	require.True(t, ok)
	assert.Equal(t, w.PublicKey, info.Owner)
	assert.Equal(t, mint, info.Mint)
}

func TestSignTransaction(t *testing.T) {
	w, err := NewWallet(solana.NewWallet().PrivateKey.String())
	require.NoError(t, err)
	tx, err := solana.NewTransaction(
		[]solana.Instruction{solana.NewInstruction(solana.MemoProgramID, solana.AccountMetaSlice{solana.Meta(w.PublicKey).SIGNER()}, []byte("hi"))},
		solana.Hash{1},
		solana.TransactionPayer(w.PublicKey),
	)
	require.NoError(t, err)
	require.NoError(t, w.SignTransaction(tx))
	assert.NoError(t, tx.VerifySignatures())
}
