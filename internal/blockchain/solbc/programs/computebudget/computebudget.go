// internal/blockchain/solbc/programs/computebudget/computebudget.go
package computebudget

import (
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	sdkbudget "github.com/gagliardetto/solana-go/programs/compute-budget"

	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain"
)

var ProgramID = sdkbudget.ProgramID

const (
	RequestUnitsDeprecated uint8 = 0
	RequestHeapFrame       uint8 = 1
	SetComputeUnitLimit    uint8 = 2
	SetComputeUnitPrice    uint8 = 3
	SetLoadedAccountsLimit uint8 = 4
)

const (
	// DefaultUnits - лимит рантайма на одну инструкцию без явного SetComputeUnitLimit.
	DefaultUnits uint32 = 200_000
	// MaxUnits - лимит рантайма на транзакцию.
	MaxUnits uint32 = 1_400_000

	microLamportsPerLamport = 1_000_000
)

// PriorityLevel определяет уровень приоритета транзакции
type PriorityLevel string

const (
	PriorityLow     PriorityLevel = "low"
	PriorityMedium  PriorityLevel = "medium"
	PriorityHigh    PriorityLevel = "high"
	PriorityExtreme PriorityLevel = "extreme"
)

// ParsePriorityLevel разбирает уровень из конфигурации.
func ParsePriorityLevel(s string) (PriorityLevel, error) {
	switch l := PriorityLevel(s); l {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityExtreme:
		return l, nil
	}
	return "", fmt.Errorf("unknown priority level %q", s)
}

// Budget - лимит compute units и priority fee одной сборки транзакции.
type Budget struct {
	ComputeUnitLimit    uint32
	PriorityFeeLamports uint64
	PriorityLevel       PriorityLevel
	// Simulated - лимит получен симуляцией, а не статической оценкой.
	Simulated bool
}

// MicroLamportsPerUnit переводит общий priority fee в цену за compute unit.
func (b Budget) MicroLamportsPerUnit() uint64 {
	if b.ComputeUnitLimit == 0 {
		return 0
	}
	return b.PriorityFeeLamports * microLamportsPerLamport / uint64(b.ComputeUnitLimit)
}

// Instructions создает инструкции для настройки бюджета
func (b Budget) Instructions() ([]solana.Instruction, error) {
	if b.ComputeUnitLimit == 0 {
		return nil, errors.New("compute unit limit is zero")
	}

	limitIx, err := sdkbudget.NewSetComputeUnitLimitInstruction(b.ComputeUnitLimit).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build compute unit limit instruction: %w", err)
	}
	instructions := []solana.Instruction{limitIx}

	if price := b.MicroLamportsPerUnit(); price > 0 {
		priceIx, err := sdkbudget.NewSetComputeUnitPriceInstruction(price).ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("failed to build compute unit price instruction: %w", err)
		}
		instructions = append(instructions, priceIx)
	}
	return instructions, nil
}

// Instruction - разобранная инструкция программы ComputeBudget.
type Instruction struct {
	Kind          uint8
	Units         uint32
	MicroLamports uint64
	HeapBytes     uint32
	AccountsBytes uint32
}

// Name возвращает имя операции.
func (i Instruction) Name() string {
	switch i.Kind {
	case RequestUnitsDeprecated:
		return "requestUnits"
	case RequestHeapFrame:
		return "requestHeapFrame"
	case SetComputeUnitLimit:
		return "setComputeUnitLimit"
	case SetComputeUnitPrice:
		return "setComputeUnitPrice"
	case SetLoadedAccountsLimit:
		return "setLoadedAccountsDataSizeLimit"
	}
	return fmt.Sprintf("unknown(%d)", i.Kind)
}

// ParseInstruction разбирает данные инструкции ComputeBudget.
func ParseInstruction(data []byte) (Instruction, error) {
	dec := bin.NewBinDecoder(data)
	kind, err := dec.ReadUint8()
	if err != nil {
		return Instruction{}, fmt.Errorf("read discriminator: %w", err)
	}

	ix := Instruction{Kind: kind}
	switch kind {
	case RequestUnitsDeprecated:
		if ix.Units, err = dec.ReadUint32(bin.LE); err != nil {
			return ix, err
		}
		// второе поле: additional fee в lamports, сохраняем как цену
		fee, err := dec.ReadUint32(bin.LE)
		if err != nil {
			return ix, err
		}
		ix.MicroLamports = uint64(fee)
	case RequestHeapFrame:
		ix.HeapBytes, err = dec.ReadUint32(bin.LE)
	case SetComputeUnitLimit:
		ix.Units, err = dec.ReadUint32(bin.LE)
	case SetComputeUnitPrice:
		ix.MicroLamports, err = dec.ReadUint64(bin.LE)
	case SetLoadedAccountsLimit:
		ix.AccountsBytes, err = dec.ReadUint32(bin.LE)
	default:
		return ix, fmt.Errorf("unknown compute budget instruction %d", kind)
	}
	if err != nil {
		return ix, fmt.Errorf("decode %s: %w", ix.Name(), err)
	}
	return ix, nil
}

// EffectiveBudget восстанавливает лимит CU и цену из инструкций транзакции.
// Без SetComputeUnitLimit лимит считается как в рантайме: DefaultUnits на
// каждую инструкцию, не относящуюся к ComputeBudget, но не больше MaxUnits.
func EffectiveBudget(instructions []blockchain.Instruction) (units uint32, microLamports uint64) {
	var limitSet bool
	var other uint64
	for _, ix := range instructions {
		if !ix.ProgramID.Equals(ProgramID) {
			other++
			continue
		}
		parsed, err := ParseInstruction(ix.Data)
		if err != nil {
			continue
		}
		switch parsed.Kind {
		case SetComputeUnitLimit:
			units, limitSet = parsed.Units, true
		case SetComputeUnitPrice:
			microLamports = parsed.MicroLamports
		}
	}
	if !limitSet {
		total := other * uint64(DefaultUnits)
		if total > uint64(MaxUnits) {
			total = uint64(MaxUnits)
		}
		units = uint32(total)
	}
	return units, microLamports
}

// PriorityFeeLamports - priority fee в lamports для лимита и цены (с округлением вверх).
func PriorityFeeLamports(units uint32, microLamports uint64) uint64 {
	total := uint64(units) * microLamports
	return (total + microLamportsPerLamport - 1) / microLamportsPerLamport
}
