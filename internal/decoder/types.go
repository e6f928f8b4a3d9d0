// internal/decoder/types.go
package decoder

import (
	"math/big"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain/solbc/idl"
)

// OpaqueName - имя операции, которую не удалось декодировать.
const OpaqueName = "unknown"

// DecodedInstruction - типизированная операция с вложенными инструкциями любой глубины.
type DecodedInstruction struct {
	ProgramID   solana.PublicKey       `json:"programId"`
	ProgramName string                 `json:"programName,omitempty"`
	Name        string                 `json:"name"`
	Args        map[string]interface{} `json:"args,omitempty"`
	Accounts    []idl.NamedAccount     `json:"accounts,omitempty"`
	Data        []byte                 `json:"data,omitempty"` // исходные байты, только для opaque
	Opaque      bool                   `json:"opaque,omitempty"`
	Transfer    *TokenTransfer         `json:"transfer,omitempty"`
	Inner       []*DecodedInstruction  `json:"innerInstructions"`
}

// Walk обходит инструкцию и все вложенные в порядке исполнения.
func (d *DecodedInstruction) Walk(fn func(*DecodedInstruction)) {
	if d == nil {
		return
	}
	fn(d)
	for _, in := range d.Inner {
		in.Walk(fn)
	}
}

// TokenTransfer - перевод токена или нативного SOL.
// Mint нулевой, если минт не удалось определить.
type TokenTransfer struct {
	Mint             solana.PublicKey `json:"mint"`
	Amount           *big.Int         `json:"amount"`
	Decimals         *uint8           `json:"decimals,omitempty"`
	Source           solana.PublicKey `json:"source"`
	Destination      solana.PublicKey `json:"destination"`
	SourceOwner      solana.PublicKey `json:"sourceOwner"`
	DestinationOwner solana.PublicKey `json:"destinationOwner"`
}

// MintResolved сообщает, известен ли минт перевода.
func (t *TokenTransfer) MintResolved() bool {
	return !t.Mint.IsZero()
}

// TokenAccountInfo - минт и владелец токен-аккаунта.
type TokenAccountInfo struct {
	Mint  solana.PublicKey
	Owner solana.PublicKey
}

// Transfers собирает переводы из инструкций верхнего уровня и всех вложенных.
func Transfers(decoded []*DecodedInstruction) []*TokenTransfer {
	var out []*TokenTransfer
	for _, d := range decoded {
		d.Walk(func(in *DecodedInstruction) {
			if in.Transfer != nil {
				out = append(out, in.Transfer)
			}
		})
	}
	return out
}
