// internal/valuation/metadata.go
package valuation

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain"
)

const (
	metadataTTL = 5 * time.Minute
	// смещение decimals в аккаунте минта: COption<Pubkey> (36) + supply (8)
	mintDecimalsOffset = 44
)

// TokenMetadata хранит информацию о токене
type TokenMetadata struct {
	Mint      solana.PublicKey
	Decimals  uint8
	Symbol    string
	Name      string
	Source    string // "known", "chain"
	UpdatedAt time.Time
}

// stablecoinPattern распознаёт долларовые стейблкоины по символу.
var stablecoinPattern = regexp.MustCompile(`(?i)^(?:[a-z]*usd[a-z0-9]*(?:\.e)?|dai)$`)

// Stable сообщает, считается ли токен долларовым стейблкоином.
func (m *TokenMetadata) Stable() bool {
	return m != nil && stablecoinPattern.MatchString(m.Symbol)
}

var knownTokens = map[solana.PublicKey]TokenMetadata{
	solana.SolMint: {Symbol: "SOL", Name: "Wrapped SOL", Decimals: 9},
	solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"): {Symbol: "USDC", Name: "USD Coin", Decimals: 6},
	solana.MustPublicKeyFromBase58("Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"): {Symbol: "USDT", Name: "USDT", Decimals: 6},
	solana.MustPublicKeyFromBase58("2b1kV6DkPAnxd5ixfnxCpjxmKwqjjaYmCZfHsFu24GXo"): {Symbol: "PYUSD", Name: "PayPal USD", Decimals: 6},
	solana.MustPublicKeyFromBase58("DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"): {Symbol: "BONK", Name: "Bonk", Decimals: 5},
	solana.MustPublicKeyFromBase58("JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN"):  {Symbol: "JUP", Name: "Jupiter", Decimals: 6},
}

// MetadataCache управляет кэшированием метаданных токенов
type MetadataCache struct {
	reader blockchain.AccountReader
	cache  sync.Map // solana.PublicKey -> *TokenMetadata
	group  singleflight.Group
	now    func() time.Time
	logger *zap.Logger
}

// NewMetadataCache создает кэш. reader может быть nil: тогда известны
// только токены из встроенной таблицы.
func NewMetadataCache(reader blockchain.AccountReader, logger *zap.Logger) *MetadataCache {
	return &MetadataCache{
		reader: reader,
		now:    time.Now,
		logger: logger.Named("token-metadata"),
	}
}

// Get получает метаданные токена с кэшированием
func (c *MetadataCache) Get(ctx context.Context, mint solana.PublicKey) (*TokenMetadata, error) {
	if known, ok := knownTokens[mint]; ok {
		known.Mint = mint
		known.Source = "known"
		return &known, nil
	}
	if metadata, ok := c.getFromCache(mint); ok {
		return metadata, nil
	}

	v, err, _ := c.group.Do(mint.String(), func() (interface{}, error) {
		metadata, err := c.getFromChain(ctx, mint)
		if err != nil {
			return nil, err
		}
		c.cache.Store(mint, metadata)
		c.logger.Debug("Token metadata retrieved",
			zap.Stringer("mint", mint),
			zap.Uint8("decimals", metadata.Decimals))
		return metadata, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*TokenMetadata), nil
}

// getFromCache проверяет TTL; устаревшая запись перезаписывается следующим Get.
func (c *MetadataCache) getFromCache(mint solana.PublicKey) (*TokenMetadata, bool) {
	if value, ok := c.cache.Load(mint); ok {
		metadata := value.(*TokenMetadata)
		if c.now().Sub(metadata.UpdatedAt) < metadataTTL {
			return metadata, true
		}
	}
	return nil, false
}

func (c *MetadataCache) getFromChain(ctx context.Context, mint solana.PublicKey) (*TokenMetadata, error) {
	if c.reader == nil {
		return nil, fmt.Errorf("no metadata for %s", mint)
	}
	acc, err := c.reader.GetAccountInfo(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to get mint account: %w", err)
	}
	if acc == nil || acc.Value == nil {
		return nil, fmt.Errorf("mint account not found: %s", mint)
	}
	owner := acc.Value.Owner
	if !owner.Equals(solana.TokenProgramID) && !owner.Equals(solana.Token2022ProgramID) {
		return nil, fmt.Errorf("account %s is not a mint (owner %s)", mint, owner)
	}

	data := acc.Value.Data.GetBinary()
	if len(data) <= mintDecimalsOffset {
		return nil, fmt.Errorf("invalid mint account data length: %d", len(data))
	}
	return &TokenMetadata{
		Mint:      mint,
		Decimals:  data[mintDecimalsOffset],
		Source:    "chain",
		UpdatedAt: c.now(),
	}, nil
}
