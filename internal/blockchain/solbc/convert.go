// internal/blockchain/solbc/convert.go
package solbc

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"

	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain"
)

// resolvedKey - ключ аккаунта с флагами из заголовка сообщения.
type resolvedKey struct {
	key      solana.PublicKey
	signer   bool
	writable bool
}

func convertTransaction(signature solana.Signature, out *solanarpc.GetTransactionResult) (*blockchain.LedgerTransaction, error) {
	tx, err := out.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", signature, err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode transaction %s: %w", signature, err)
	}

	ledgerTx := &blockchain.LedgerTransaction{
		Signature:      signature,
		Slot:           out.Slot,
		SignatureCount: len(tx.Signatures),
		ByteSize:       len(raw),
	}
	if out.BlockTime != nil {
		t := out.BlockTime.Time().UTC()
		ledgerTx.BlockTime = &t
	}

	var loadedWritable, loadedReadOnly solana.PublicKeySlice
	if out.Meta != nil {
		loadedWritable = out.Meta.LoadedAddresses.Writable
		loadedReadOnly = out.Meta.LoadedAddresses.ReadOnly
		ledgerTx.Fee = out.Meta.Fee
		ledgerTx.ComputeUnitsConsumed = out.Meta.ComputeUnitsConsumed
		ledgerTx.LogMessages = out.Meta.LogMessages
		ledgerTx.Err = out.Meta.Err
	}

	keys := resolveKeys(tx.Message, loadedWritable, loadedReadOnly)

	ledgerTx.Instructions = make([]blockchain.Instruction, 0, len(tx.Message.Instructions))
	for _, ci := range tx.Message.Instructions {
		ix, err := compileInstruction(keys, ci.ProgramIDIndex, ci.Accounts, ci.Data)
		if err != nil {
			return nil, err
		}
		ledgerTx.Instructions = append(ledgerTx.Instructions, ix)
	}

	if out.Meta != nil {
		for _, inner := range out.Meta.InnerInstructions {
			idx := int(inner.Index)
			if idx >= len(ledgerTx.Instructions) {
				continue
			}
			for _, ci := range inner.Instructions {
				ix, err := compileInstruction(keys, ci.ProgramIDIndex, ci.Accounts, ci.Data)
				if err != nil {
					return nil, err
				}
				ledgerTx.Instructions[idx].Inner = append(ledgerTx.Instructions[idx].Inner, ix)
			}
		}
	}

	return ledgerTx, nil
}

// resolveKeys строит полный список ключей: статические, затем загруженные
// writable и readonly адреса.
func resolveKeys(msg solana.Message, loadedWritable, loadedReadOnly solana.PublicKeySlice) []resolvedKey {
	static := msg.AccountKeys
	numSigners := int(msg.Header.NumRequiredSignatures)
	roSigned := int(msg.Header.NumReadonlySignedAccounts)
	roUnsigned := int(msg.Header.NumReadonlyUnsignedAccounts)

	keys := make([]resolvedKey, 0, len(static)+len(loadedWritable)+len(loadedReadOnly))
	for i, k := range static {
		rk := resolvedKey{key: k}
		if i < numSigners {
			rk.signer = true
			rk.writable = i < numSigners-roSigned
		} else {
			rk.writable = i < len(static)-roUnsigned
		}
		keys = append(keys, rk)
	}
	for _, k := range loadedWritable {
		keys = append(keys, resolvedKey{key: k, writable: true})
	}
	for _, k := range loadedReadOnly {
		keys = append(keys, resolvedKey{key: k})
	}
	return keys
}

func compileInstruction(keys []resolvedKey, programIndex uint16, accounts []uint16, data []byte) (blockchain.Instruction, error) {
	if int(programIndex) >= len(keys) {
		return blockchain.Instruction{}, fmt.Errorf("program index %d out of range (%d keys)", programIndex, len(keys))
	}
	ix := blockchain.Instruction{
		ProgramID: keys[programIndex].key,
		Accounts:  make([]*solana.AccountMeta, 0, len(accounts)),
		Data:      data,
	}
	for _, a := range accounts {
		if int(a) >= len(keys) {
			return blockchain.Instruction{}, fmt.Errorf("account index %d out of range (%d keys)", a, len(keys))
		}
		k := keys[a]
		ix.Accounts = append(ix.Accounts, &solana.AccountMeta{
			PublicKey:  k.key,
			IsSigner:   k.signer,
			IsWritable: k.writable,
		})
	}
	return ix, nil
}
