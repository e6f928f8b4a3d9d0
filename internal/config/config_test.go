// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var validConfigJSON = `{
    "rpc_list": [
        "https://api.mainnet-beta.solana.com",
        "https://solana-api.projectserum.com"
    ],
    "commitment": "finalized",
    "retry": {"max_retries": 5},
    "compute_budget": {"priority_level": "high"},
    "idl": {"repository_urls": ["https://api.apr.dev/api/idl/%s"]}
}`

func setupTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:    "valid config with defaults",
			content: validConfigJSON,
			check: func(t *testing.T, cfg *Config) {
				assert.Len(t, cfg.RPCList, 2)
				assert.Equal(t, "finalized", cfg.Commitment)
				assert.Equal(t, 5, cfg.Retry.MaxRetries)
				assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseDelay())
				assert.Equal(t, 5*time.Second, cfg.Retry.MaxDelay())
				assert.Equal(t, 500*time.Millisecond, cfg.Confirm.PollInterval())
				assert.Equal(t, uint64(DefaultMinPriorityFee), cfg.ComputeBudget.MinPriorityFeeLamports)
				assert.Equal(t, uint64(DefaultMaxPriorityFee), cfg.ComputeBudget.MaxPriorityFeeLamports)
				assert.Equal(t, uint32(DefaultComputeUnits), cfg.ComputeBudget.DefaultUnits)
				assert.Equal(t, "high", cfg.ComputeBudget.PriorityLevel)
				assert.Equal(t, 30*time.Second, cfg.Price.TTL())
				assert.Equal(t, DefaultIDLDir, cfg.IDL.LocalDir)
				assert.True(t, cfg.Metrics.Enabled)
			},
		},
		{
			name:    "empty rpc list",
			content: `{"rpc_list": []}`,
			wantErr: "rpc_list is empty",
		},
		{
			name:    "bad rpc scheme",
			content: `{"rpc_list": ["ftp://node"]}`,
			wantErr: "invalid RPC URL",
		},
		{
			name:    "negative retries",
			content: `{"rpc_list": ["https://node"], "retry": {"max_retries": -1}}`,
			wantErr: "invalid retry.max_retries",
		},
		{
			name:    "fee bounds inverted",
			content: `{"rpc_list": ["https://node"], "compute_budget": {"min_priority_fee_lamports": 10, "max_priority_fee_lamports": 5}}`,
			wantErr: "exceeds",
		},
		{
			name:    "unknown priority level",
			content: `{"rpc_list": ["https://node"], "compute_budget": {"priority_level": "turbo"}}`,
			wantErr: "priority_level",
		},
		{
			name:    "unknown commitment",
			content: `{"rpc_list": ["https://node"], "commitment": "recent"}`,
			wantErr: "invalid commitment",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig(setupTestConfig(t, tt.content))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("SOLANA_LP_RPC_LIST", "https://a.example, https://b.example ,")
	t.Setenv("SOLANA_LP_WALLET_KEY", "secret")

	cfg, err := LoadConfig(setupTestConfig(t, validConfigJSON))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.RPCList)
	assert.Equal(t, "secret", cfg.WalletKey)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}
