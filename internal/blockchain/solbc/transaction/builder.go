// internal/blockchain/solbc/transaction/builder.go
package transaction

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain"
	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain/solbc/programs/computebudget"
)

// Build собирает неподписанную транзакцию: инструкции compute budget,
// затем Compose(sets...). Плательщик комиссии обязан быть среди подписантов.
func Build(sets []*InstructionSet, budget computebudget.Budget, anchor blockchain.BlockhashAnchor, feePayer solana.PublicKey) (*BuildRecord, error) {
	composed := Compose(sets...)
	if len(composed.Instructions) == 0 {
		return nil, ErrNoInstructions
	}

	signers := composed.SignerKeys()
	if !containsKey(signers, feePayer) {
		return nil, fmt.Errorf("%w: %s", ErrMissingFeePayer, feePayer)
	}

	budgetIxs, err := budget.Instructions()
	if err != nil {
		return nil, fmt.Errorf("compute budget instructions: %w", err)
	}

	all := make([]solana.Instruction, 0, len(budgetIxs)+len(composed.Instructions))
	all = append(all, budgetIxs...)
	all = append(all, composed.Instructions...)

	tx, err := solana.NewTransaction(all, anchor.Blockhash, solana.TransactionPayer(feePayer))
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	return &BuildRecord{
		Anchor:      anchor,
		Budget:      budget,
		Simulated:   budget.Simulated,
		Timestamp:   time.Now(),
		Transaction: tx,
		Signers:     signers,
		keys:        composed.Signers,
	}, nil
}

// Sign возвращает новую подписанную запись; исходная запись не меняется.
func Sign(rec *BuildRecord) (*BuildRecord, error) {
	if rec == nil || rec.Transaction == nil {
		return nil, fmt.Errorf("sign: empty build record")
	}

	tx := *rec.Transaction
	tx.Signatures = nil

	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		for i := range rec.keys {
			if rec.keys[i].PublicKey().Equals(key) {
				return &rec.keys[i]
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	signed := *rec
	signed.Transaction = &tx
	signed.Signed = true
	signed.Timestamp = time.Now()
	return &signed, nil
}

func containsKey(keys []solana.PublicKey, key solana.PublicKey) bool {
	for _, k := range keys {
		if k.Equals(key) {
			return true
		}
	}
	return false
}
