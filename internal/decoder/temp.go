// internal/decoder/temp.go
package decoder

import (
	"sync"

	"github.com/gagliardetto/solana-go"
)

// TempAccounts - токен-аккаунты, созданные внутри одной транзакции. Внешний
// lookup их ещё (или уже) не видит, поэтому владелец берётся отсюда.
type TempAccounts struct {
	mu       sync.RWMutex
	accounts map[solana.PublicKey]TokenAccountInfo
}

func NewTempAccounts() *TempAccounts {
	return &TempAccounts{accounts: make(map[solana.PublicKey]TokenAccountInfo)}
}

func (t *TempAccounts) Register(account solana.PublicKey, info TokenAccountInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.accounts[account] = info
}

func (t *TempAccounts) Lookup(account solana.PublicKey) (TokenAccountInfo, bool) {
	if t == nil {
		return TokenAccountInfo{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	info, ok := t.accounts[account]
	return info, ok
}

func (t *TempAccounts) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.accounts)
}
