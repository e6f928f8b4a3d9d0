// internal/decoder/decoder.go
package decoder

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain"
	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain/solbc/idl"
)

// DecodeFunc декодирует инструкцию одной программы. Ошибка превращается в opaque-результат.
type DecodeFunc func(ctx context.Context, d *Decoder, ix blockchain.Instruction, temp *TempAccounts) (*DecodedInstruction, error)

// Decoder выбирает функцию декодирования по program id; для остальных программ
// использует IDL из реестра.
type Decoder struct {
	registry *idl.Registry
	resolver AccountResolver
	table    map[solana.PublicKey]DecodeFunc
	logger   *zap.Logger
}

// NewDecoder создает декодер со встроенными раскладками. resolver может быть nil.
func NewDecoder(registry *idl.Registry, resolver AccountResolver, logger *zap.Logger) *Decoder {
	d := &Decoder{
		registry: registry,
		resolver: resolver,
		table: map[solana.PublicKey]DecodeFunc{
			solana.ComputeBudget:                      decodeComputeBudget,
			solana.SystemProgramID:                    decodeSystem,
			solana.TokenProgramID:                     decodeToken,
			solana.Token2022ProgramID:                 decodeToken,
			solana.SPLAssociatedTokenAccountProgramID: decodeAssociatedTokenAccount,
			solana.MemoProgramID:                      decodeMemo,
		},
		logger: logger.Named("decoder"),
	}
	return d
}

// Register задаёт функцию декодирования программы. Вызывать до начала декодирования.
func (d *Decoder) Register(programID solana.PublicKey, fn DecodeFunc) {
	d.table[programID] = fn
}

// Decode никогда не возвращает ошибку: всё, что не удалось разобрать,
// становится opaque-инструкцией. Вложенные инструкции декодируются с тем же temp.
func (d *Decoder) Decode(ctx context.Context, ix blockchain.Instruction, temp *TempAccounts) *DecodedInstruction {
	if temp == nil {
		temp = NewTempAccounts()
	}

	out := d.decodeOne(ctx, ix, temp)
	out.Inner = make([]*DecodedInstruction, 0, len(ix.Inner))
	for _, inner := range ix.Inner {
		out.Inner = append(out.Inner, d.Decode(ctx, inner, temp))
	}
	return out
}

// DecodeTransaction декодирует все инструкции транзакции с общим временным реестром.
func (d *Decoder) DecodeTransaction(ctx context.Context, tx *blockchain.LedgerTransaction) []*DecodedInstruction {
	temp := NewTempAccounts()
	out := make([]*DecodedInstruction, 0, len(tx.Instructions))
	for _, ix := range tx.Instructions {
		out = append(out, d.Decode(ctx, ix, temp))
	}
	return out
}

func (d *Decoder) decodeOne(ctx context.Context, ix blockchain.Instruction, temp *TempAccounts) (out *DecodedInstruction) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("Decoder panic, instruction left opaque",
				zap.Stringer("program", ix.ProgramID),
				zap.Any("panic", r))
			out = d.opaque(ix)
		}
	}()

	fn, ok := d.table[ix.ProgramID]
	if !ok {
		fn = decodeWithSchema
	}

	decoded, err := fn(ctx, d, ix, temp)
	if err != nil {
		d.logger.Debug("Instruction left opaque",
			zap.Stringer("program", ix.ProgramID),
			zap.Int("data_len", len(ix.Data)),
			zap.Error(err))
		return d.opaque(ix)
	}
	decoded.ProgramID = ix.ProgramID
	if decoded.ProgramName == "" {
		decoded.ProgramName = d.programName(ix.ProgramID)
	}
	return decoded
}

// decodeWithSchema - общий путь через IDL программы.
func decodeWithSchema(ctx context.Context, d *Decoder, ix blockchain.Instruction, _ *TempAccounts) (*DecodedInstruction, error) {
	if d.registry == nil {
		return nil, fmt.Errorf("no program registry")
	}
	entry, err := d.registry.Resolve(ctx, ix.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("resolve schema: %w", err)
	}
	if entry.Schema == nil {
		return nil, fmt.Errorf("program %s has no schema", ix.ProgramID)
	}

	decoded, err := entry.Schema.DecodeInstruction(ix.Data, ix.Accounts)
	if err != nil {
		return nil, err
	}
	return &DecodedInstruction{
		ProgramName: entry.Name,
		Name:        decoded.Name,
		Args:        decoded.Args,
		Accounts:    decoded.Accounts,
	}, nil
}

func (d *Decoder) opaque(ix blockchain.Instruction) *DecodedInstruction {
	return &DecodedInstruction{
		ProgramID:   ix.ProgramID,
		ProgramName: d.programName(ix.ProgramID),
		Name:        OpaqueName,
		Data:        append([]byte(nil), ix.Data...),
		Accounts:    nameAccounts(ix.Accounts),
		Opaque:      true,
	}
}

func (d *Decoder) programName(programID solana.PublicKey) string {
	if d.registry == nil {
		return ""
	}
	return d.registry.ProgramName(programID)
}

// tokenAccount: временный реестр, затем resolver.
func (d *Decoder) tokenAccount(ctx context.Context, account solana.PublicKey, temp *TempAccounts) (TokenAccountInfo, bool) {
	if info, ok := temp.Lookup(account); ok {
		return info, true
	}
	if d.resolver == nil {
		return TokenAccountInfo{}, false
	}
	info, err := d.resolver.ResolveTokenAccount(ctx, account)
	if err != nil {
		d.logger.Debug("Token account unresolved",
			zap.Stringer("account", account),
			zap.Error(err))
		return TokenAccountInfo{}, false
	}
	return info, true
}
