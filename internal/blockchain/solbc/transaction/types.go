// internal/blockchain/solbc/transaction/types.go
package transaction

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain"
	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain/solbc/programs/computebudget"
	"github.com/rovshanmuradov/solana-lp-agent/internal/retry"
)

// State - стадия жизненного цикла контекста транзакции.
type State int

const (
	StateEmpty State = iota
	StateInstructionsAdded
	StateBuilt
	StateSigned
	StateSubmitted
	StateConfirmed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateInstructionsAdded:
		return "instructions_added"
	case StateBuilt:
		return "built"
	case StateSigned:
		return "signed"
	case StateSubmitted:
		return "submitted"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// BuildRecord - неизменяемый снимок одной сборки транзакции.
type BuildRecord struct {
	Anchor      blockchain.BlockhashAnchor
	Budget      computebudget.Budget
	Signed      bool
	Simulated   bool
	Timestamp   time.Time
	Transaction *solana.Transaction
	Signers     []solana.PublicKey

	keys []solana.PrivateKey
}

// ProgramIDs возвращает program id инструкций верхнего уровня в порядке транзакции.
func (r *BuildRecord) ProgramIDs() []solana.PublicKey {
	if r == nil || r.Transaction == nil {
		return nil
	}
	msg := r.Transaction.Message
	out := make([]solana.PublicKey, 0, len(msg.Instructions))
	for _, ix := range msg.Instructions {
		if int(ix.ProgramIDIndex) < len(msg.AccountKeys) {
			out = append(out, msg.AccountKeys[ix.ProgramIDIndex])
			continue
		}
		out = append(out, solana.PublicKey{})
	}
	return out
}

// SendRecord - результат одной попытки отправки. Signature != nil тогда и только
// тогда, когда сеть приняла транзакцию.
type SendRecord struct {
	Attempt   int
	Build     *BuildRecord
	Signature *solana.Signature
	Confirmed bool
	Status    *Status
	Err       error
	Timestamp time.Time
}

// SendOptions настраивает один вызов Context.Send.
type SendOptions struct {
	// ReuseLatestBuild отправляет последнюю подписанную сборку на первой попытке.
	ReuseLatestBuild bool
	// SkipConfirm завершает Send после принятия транзакции сетью.
	SkipConfirm   bool
	Commitment    rpc.CommitmentType
	SkipPreflight bool
	// RetryFilter решает, повторять ли ошибки, которые движок сам не повторяет.
	RetryFilter   func(error) bool
	PriorityLevel computebudget.PriorityLevel
	// Retry переопределяет настройки ретраев менеджера.
	Retry *retry.Settings
}

// ResetOptions определяет, какие истории сохранить при Reset.
type ResetOptions struct {
	KeepBuildHistory bool
	KeepSendHistory  bool
}

// Status - итоговый статус подписи.
type Status struct {
	Signature     string
	Status        string
	Confirmations uint64
	Slot          uint64
	Error         string
	Timestamp     time.Time
}
