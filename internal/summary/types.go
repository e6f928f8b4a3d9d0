// internal/summary/types.go
package summary

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/solana-lp-agent/internal/decoder"
	"github.com/rovshanmuradov/solana-lp-agent/internal/valuation"
)

// Summary - финансовая сводка подтверждённой транзакции.
type Summary struct {
	Signature            string                        `json:"signature"`
	Slot                 uint64                        `json:"slot"`
	BlockTime            *time.Time                    `json:"blockTime,omitempty"`
	ComputeUnitsConsumed *uint64                       `json:"computeUnitsConsumed,omitempty"`
	ComputeUnitLimit     uint32                        `json:"computeUnitLimit"`
	ComputeUnitPrice     uint64                        `json:"computeUnitPriceMicroLamports"`
	Fee                  uint64                        `json:"fee"`
	PriorityFee          uint64                        `json:"priorityFee"`
	ByteSize             int                           `json:"byteSize"`
	Failed               bool                          `json:"failed,omitempty"`
	Owner                string                        `json:"owner"`
	Instructions         []*decoder.DecodedInstruction `json:"instructions"`
	Transfers            []*decoder.TokenTransfer      `json:"transfers"`
	Deltas               []valuation.TokenDelta        `json:"deltas"`
	USDNetDelta          decimal.Decimal               `json:"usdNetDelta"`
	ComputedAt           time.Time                     `json:"computedAt"`
}

// NetDelta возвращает сырую дельту минта (nil, если минт не затронут).
func (s *Summary) NetDelta(mint string) *big.Int {
	for _, d := range s.Deltas {
		if d.Mint.String() == mint {
			return d.Raw
		}
	}
	return nil
}
