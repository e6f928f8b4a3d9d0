// ==================================
// File: internal/wallet/wallet.go
// ==================================
package wallet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/mr-tron/base58"

	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain/solbc/transaction"
)

// ErrNoWallets - в файле нет ни одного корректного ключа.
var ErrNoWallets = errors.New("no valid wallets")

// Wallet представляет кошелёк Solana.
type Wallet struct {
	PrivateKey solana.PrivateKey
	PublicKey  solana.PublicKey

	mu       sync.Mutex
	ataCache map[solana.PublicKey]solana.PublicKey // mint -> ATA
}

// NewWallet создаёт новый кошелёк из base58-encoded приватного ключа.
func NewWallet(privateKeyBase58 string) (*Wallet, error) {
	privateKeyBytes, err := base58.Decode(strings.TrimSpace(privateKeyBase58))
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	if len(privateKeyBytes) != 64 {
		return nil, fmt.Errorf("invalid private key length: expected 64 bytes, got %d", len(privateKeyBytes))
	}
	privateKey := solana.PrivateKey(privateKeyBytes)
	return &Wallet{
		PrivateKey: privateKey,
		PublicKey:  privateKey.PublicKey(),
		ataCache:   make(map[solana.PublicKey]solana.PublicKey),
	}, nil
}

// LoadWallets загружает кошельки из CSV-файла с колонками: [Name, PrivateKeyBase58].
// Первая строка - заголовок. Некорректная строка прерывает загрузку с номером строки.
func LoadWallets(path string) (map[string]*Wallet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 2
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%w: %s", ErrNoWallets, path)
	}

	wallets := make(map[string]*Wallet, len(records)-1)
	for i, record := range records[1:] {
		name := strings.TrimSpace(record[0])
		w, err := NewWallet(record[1])
		if err != nil {
			return nil, fmt.Errorf("row %d (%s): %w", i+2, name, err)
		}
		if _, dup := wallets[name]; dup {
			return nil, fmt.Errorf("row %d: duplicate wallet name %q", i+2, name)
		}
		wallets[name] = w
	}
	return wallets, nil
}

// Signers собирает набор подписантов для транзакций нескольких кошельков.
func Signers(wallets ...*Wallet) []solana.PrivateKey {
	out := make([]solana.PrivateKey, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, w.PrivateKey)
	}
	return out
}

// SignTransaction подписывает транзакцию с помощью приватного ключа кошелька.
func (w *Wallet) SignTransaction(tx *solana.Transaction) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.PublicKey) {
			return &w.PrivateKey
		}
		return nil
	})
	return err
}

// GetATA возвращает адрес ассоциированного токен-аккаунта (ATA) для заданного токена (mint).
// Если адрес уже был вычислен ранее, возвращается значение из кеша.
func (w *Wallet) GetATA(mint solana.PublicKey) (solana.PublicKey, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ata, ok := w.ataCache[mint]; ok {
		return ata, nil
	}
	ata, _, err := solana.FindAssociatedTokenAddress(w.PublicKey, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	w.ataCache[mint] = ata
	return ata, nil
}

// EnsureATASet возвращает набор инструкций, идемпотентно создающий ATA кошелька
// для mint. Кошелёк платит за аренду и подписывает.
func (w *Wallet) EnsureATASet(mint solana.PublicKey) (*transaction.InstructionSet, error) {
	ata, err := w.GetATA(mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive ATA for mint %s: %w", mint, err)
	}

	create := associatedtokenaccount.NewCreateInstruction(w.PublicKey, w.PublicKey, mint).Build()
	// 1 = CreateIdempotent, аккаунты те же, что у Create
	idempotent := solana.NewInstruction(create.ProgramID(), create.Accounts(), []byte{1})

	return transaction.NewInstructionSet("ensure-ata", []solana.Instruction{idempotent},
		transaction.WithSigners(w.PrivateKey),
		transaction.WithDebug("mint", mint.String()),
		transaction.WithDebug("ata", ata.String()),
	), nil
}

// String возвращает строковое представление кошелька (его публичный ключ).
func (w *Wallet) String() string {
	return w.PublicKey.String()
}
