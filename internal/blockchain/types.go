// internal/blockchain/types.go
package blockchain

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// BlockhashAnchor - blockhash, на который ссылается транзакция, и высота,
// после которой он перестаёт приниматься сетью.
type BlockhashAnchor struct {
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
}

// TransactionOptions определяет опции для отправки транзакций.
type TransactionOptions struct {
	SkipPreflight       bool
	PreflightCommitment rpc.CommitmentType
}

// SimulationResult представляет результат симуляции транзакции.
type SimulationResult struct {
	Err           interface{}
	Logs          []string
	UnitsConsumed uint64
}

// Instruction - инструкция в форме сети: программа, упорядоченные аккаунты, данные.
// Inner заполняется только для инструкций верхнего уровня из метаданных исполнения.
type Instruction struct {
	ProgramID solana.PublicKey
	Accounts  []*solana.AccountMeta
	Data      []byte
	Inner     []Instruction
}

// LedgerTransaction - подтверждённая транзакция с разрешёнными ключами.
type LedgerTransaction struct {
	Signature            solana.Signature
	Slot                 uint64
	BlockTime            *time.Time
	Fee                  uint64
	ComputeUnitsConsumed *uint64
	SignatureCount       int
	ByteSize             int
	Instructions         []Instruction
	LogMessages          []string
	Err                  interface{}
}

// BlockhashProvider выдаёт якорь и текущую высоту блока.
type BlockhashProvider interface {
	GetLatestBlockhash(ctx context.Context) (BlockhashAnchor, error)
	GetBlockHeight(ctx context.Context) (uint64, error)
}

// Sender отправляет подписанную транзакцию.
type Sender interface {
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts TransactionOptions) (solana.Signature, error)
}

// StatusProvider возвращает статусы подписей.
type StatusProvider interface {
	GetSignatureStatuses(ctx context.Context, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

// Simulator симулирует транзакцию.
type Simulator interface {
	SimulateTransaction(ctx context.Context, tx *solana.Transaction) (*SimulationResult, error)
}

// ErrAccountNotFound возвращается AccountReader, если аккаунта нет в сети.
var ErrAccountNotFound = errors.New("account not found")

// AccountReader читает аккаунты.
type AccountReader interface {
	GetAccountInfo(ctx context.Context, pubkey solana.PublicKey) (*rpc.GetAccountInfoResult, error)
}

// TransactionFetcher загружает транзакцию по подписи.
type TransactionFetcher interface {
	GetTransaction(ctx context.Context, signature solana.Signature) (*LedgerTransaction, error)
}

// PriorityFeeProvider возвращает недавние priority fee (micro-lamports за CU).
type PriorityFeeProvider interface {
	GetRecentPriorityFees(ctx context.Context, accounts []solana.PublicKey) ([]uint64, error)
}

// Client определяет общий интерфейс для взаимодействия с блокчейном.
type Client interface {
	BlockhashProvider
	Sender
	StatusProvider
	Simulator
	AccountReader
	TransactionFetcher
	PriorityFeeProvider
}
