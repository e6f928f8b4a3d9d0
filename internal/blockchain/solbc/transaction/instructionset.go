// internal/blockchain/solbc/transaction/instructionset.go
package transaction

import (
	"github.com/gagliardetto/solana-go"
)

// InstructionSet - именованная неизменяемая группа инструкций.
// Cleanup-инструкции выполняются после основных инструкций всех наборов.
type InstructionSet struct {
	name         string
	instructions []solana.Instruction
	cleanup      []solana.Instruction
	signers      []solana.PrivateKey
	debug        map[string]string
}

// SetOption настраивает InstructionSet при создании.
type SetOption func(*InstructionSet)

// WithCleanup добавляет инструкции очистки (закрытие временных аккаунтов и т.п.).
func WithCleanup(ixs ...solana.Instruction) SetOption {
	return func(s *InstructionSet) {
		s.cleanup = append(s.cleanup, ixs...)
	}
}

// WithSigners добавляет подписантов набора.
func WithSigners(keys ...solana.PrivateKey) SetOption {
	return func(s *InstructionSet) {
		s.signers = append(s.signers, keys...)
	}
}

// WithDebug прикрепляет отладочные метаданные.
func WithDebug(key, value string) SetOption {
	return func(s *InstructionSet) {
		if s.debug == nil {
			s.debug = make(map[string]string)
		}
		s.debug[key] = value
	}
}

// NewInstructionSet создает набор; переданные срезы копируются.
func NewInstructionSet(name string, instructions []solana.Instruction, opts ...SetOption) *InstructionSet {
	s := &InstructionSet{
		name:         name,
		instructions: append([]solana.Instruction(nil), instructions...),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InstructionSet) Name() string { return s.name }

func (s *InstructionSet) Instructions() []solana.Instruction {
	return append([]solana.Instruction(nil), s.instructions...)
}

func (s *InstructionSet) Cleanup() []solana.Instruction {
	return append([]solana.Instruction(nil), s.cleanup...)
}

func (s *InstructionSet) Signers() []solana.PrivateKey {
	return append([]solana.PrivateKey(nil), s.signers...)
}

func (s *InstructionSet) Debug() map[string]string {
	out := make(map[string]string, len(s.debug))
	for k, v := range s.debug {
		out[k] = v
	}
	return out
}

// Composition - результат Compose.
type Composition struct {
	Instructions []solana.Instruction
	Signers      []solana.PrivateKey
}

// SignerKeys возвращает публичные ключи подписантов.
func (c Composition) SignerKeys() []solana.PublicKey {
	out := make([]solana.PublicKey, len(c.Signers))
	for i, k := range c.Signers {
		out[i] = k.PublicKey()
	}
	return out
}

// Compose объединяет наборы: основные инструкции в порядке наборов, затем
// cleanup-инструкции в обратном порядке наборов. Подписанты без повторов.
func Compose(sets ...*InstructionSet) Composition {
	var out Composition
	seen := make(map[solana.PublicKey]struct{})

	for _, s := range sets {
		if s == nil {
			continue
		}
		out.Instructions = append(out.Instructions, s.instructions...)
		for _, key := range s.signers {
			pub := key.PublicKey()
			if _, ok := seen[pub]; ok {
				continue
			}
			seen[pub] = struct{}{}
			out.Signers = append(out.Signers, key)
		}
	}
	for i := len(sets) - 1; i >= 0; i-- {
		if sets[i] == nil {
			continue
		}
		out.Instructions = append(out.Instructions, sets[i].cleanup...)
	}
	return out
}
