// internal/decoder/resolver.go
package decoder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain"
)

const tokenAccountSize = 165

// ErrNotTokenAccount - аккаунт не принадлежит токен-программе.
var ErrNotTokenAccount = errors.New("not a token account")

// AccountResolver определяет минт и владельца токен-аккаунта по данным сети.
type AccountResolver interface {
	ResolveTokenAccount(ctx context.Context, account solana.PublicKey) (TokenAccountInfo, error)
}

// ChainResolver читает токен-аккаунты через RPC и кэширует успешные ответы.
type ChainResolver struct {
	reader blockchain.AccountReader
	cache  sync.Map // solana.PublicKey -> TokenAccountInfo
	group  singleflight.Group
	logger *zap.Logger
}

func NewChainResolver(reader blockchain.AccountReader, logger *zap.Logger) *ChainResolver {
	return &ChainResolver{
		reader: reader,
		logger: logger.Named("account-resolver"),
	}
}

func (r *ChainResolver) ResolveTokenAccount(ctx context.Context, account solana.PublicKey) (TokenAccountInfo, error) {
	if v, ok := r.cache.Load(account); ok {
		return v.(TokenAccountInfo), nil
	}

	v, err, _ := r.group.Do(account.String(), func() (interface{}, error) {
		info, err := r.reader.GetAccountInfo(ctx, account)
		if err != nil {
			return nil, fmt.Errorf("failed to get account info: %w", err)
		}
		if info == nil || info.Value == nil {
			return nil, fmt.Errorf("%w: %s", blockchain.ErrAccountNotFound, account)
		}
		owner := info.Value.Owner
		if !owner.Equals(solana.TokenProgramID) && !owner.Equals(solana.Token2022ProgramID) {
			return nil, fmt.Errorf("%w: %s owned by %s", ErrNotTokenAccount, account, owner)
		}

		parsed, err := ParseTokenAccount(info.Value.Data.GetBinary())
		if err != nil {
			return nil, err
		}
		r.cache.Store(account, parsed)
		return parsed, nil
	})
	if err != nil {
		return TokenAccountInfo{}, err
	}
	return v.(TokenAccountInfo), nil
}

// ParseTokenAccount разбирает базовую раскладку токен-аккаунта (165 байт,
// у Token-2022 далее идут расширения).
func ParseTokenAccount(data []byte) (TokenAccountInfo, error) {
	if len(data) < tokenAccountSize {
		return TokenAccountInfo{}, fmt.Errorf("token account data too short: %d", len(data))
	}
	var acc token.Account
	if err := bin.NewBinDecoder(data).Decode(&acc); err != nil {
		return TokenAccountInfo{}, fmt.Errorf("failed to decode token account: %w", err)
	}
	return TokenAccountInfo{Mint: acc.Mint, Owner: acc.Owner}, nil
}
