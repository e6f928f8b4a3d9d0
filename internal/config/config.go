// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Config - корневая конфигурация агента.
type Config struct {
	RPCList       []string            `mapstructure:"rpc_list"`
	Commitment    string              `mapstructure:"commitment"`
	SkipPreflight bool                `mapstructure:"skip_preflight"`
	Retry         RetryConfig         `mapstructure:"retry"`
	Confirm       ConfirmConfig       `mapstructure:"confirm"`
	ComputeBudget ComputeBudgetConfig `mapstructure:"compute_budget"`
	Price         PriceConfig         `mapstructure:"price"`
	IDL           IDLConfig           `mapstructure:"idl"`
	Log           LogConfig           `mapstructure:"log"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	WalletKey     string              `mapstructure:"wallet_key"`
}

// RetryConfig задаёт значения RetryPolicy по умолчанию.
type RetryConfig struct {
	BaseDelayMs int `mapstructure:"base_delay_ms"`
	MaxDelayMs  int `mapstructure:"max_delay_ms"`
	MaxRetries  int `mapstructure:"max_retries"`
}

type ConfirmConfig struct {
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
}

// ComputeBudgetConfig ограничивает оценку compute budget.
type ComputeBudgetConfig struct {
	MinPriorityFeeLamports uint64 `mapstructure:"min_priority_fee_lamports"`
	MaxPriorityFeeLamports uint64 `mapstructure:"max_priority_fee_lamports"`
	DefaultUnits           uint32 `mapstructure:"default_units"`
	UnitMarginPercent      uint32 `mapstructure:"unit_margin_percent"`
	PriorityLevel          string `mapstructure:"priority_level"`
}

type PriceConfig struct {
	TTLSeconds int           `mapstructure:"ttl_seconds"`
	Static     []StaticPrice `mapstructure:"static"`
}

// StaticPrice - фиксированная цена минта в USD, строка в десятичной записи.
type StaticPrice struct {
	Mint string `mapstructure:"mint"`
	USD  string `mapstructure:"usd"`
}

// IDLConfig описывает источники IDL программ.
type IDLConfig struct {
	LocalDir       string   `mapstructure:"local_dir"`
	RepositoryURLs []string `mapstructure:"repository_urls"`
}

type LogConfig struct {
	File        string `mapstructure:"file"`
	Development bool   `mapstructure:"development"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

const (
	DefaultCommitment        = "confirmed"
	DefaultBaseDelayMs       = 250
	DefaultMaxDelayMs        = 5000
	DefaultMaxRetries        = 3
	DefaultPollIntervalMs    = 500
	DefaultMinPriorityFee    = 1_000
	DefaultMaxPriorityFee    = 5_000_000
	DefaultComputeUnits      = 200_000
	DefaultUnitMarginPercent = 20
	DefaultPriorityLevel     = "medium"
	DefaultPriceTTLSeconds   = 30
	DefaultIDLDir            = "configs/idl"
	DefaultLogFile           = "agent.log"
)

var validCommitments = map[string]struct{}{
	"processed": {},
	"confirmed": {},
	"finalized": {},
}

var validPriorityLevels = map[string]struct{}{
	"low":     {},
	"medium":  {},
	"high":    {},
	"extreme": {},
}

// LoadConfig читает файл конфигурации, применяет значения по умолчанию,
// переменные окружения SOLANA_LP_* и валидирует результат.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	loadEnvironmentVariables(v, &cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	defaults := map[string]interface{}{
		"commitment":                               DefaultCommitment,
		"retry.base_delay_ms":                      DefaultBaseDelayMs,
		"retry.max_delay_ms":                       DefaultMaxDelayMs,
		"retry.max_retries":                        DefaultMaxRetries,
		"confirm.poll_interval_ms":                 DefaultPollIntervalMs,
		"compute_budget.min_priority_fee_lamports": DefaultMinPriorityFee,
		"compute_budget.max_priority_fee_lamports": DefaultMaxPriorityFee,
		"compute_budget.default_units":             DefaultComputeUnits,
		"compute_budget.unit_margin_percent":       DefaultUnitMarginPercent,
		"compute_budget.priority_level":            DefaultPriorityLevel,
		"price.ttl_seconds":                        DefaultPriceTTLSeconds,
		"idl.local_dir":                            DefaultIDLDir,
		"log.file":                                 DefaultLogFile,
		"metrics.enabled":                          true,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

func validateConfig(cfg *Config) error {
	if len(cfg.RPCList) == 0 {
		return errors.New("rpc_list is empty")
	}
	for _, rpcURL := range cfg.RPCList {
		if err := validateURLWithCache(rpcURL, "http"); err != nil {
			return fmt.Errorf("invalid RPC URL %q: %w", rpcURL, err)
		}
	}
	for _, repoURL := range cfg.IDL.RepositoryURLs {
		if err := validateURLWithCache(repoURL, "https"); err != nil {
			return fmt.Errorf("invalid IDL repository URL %q: %w", repoURL, err)
		}
	}
	if _, ok := validCommitments[cfg.Commitment]; !ok {
		return fmt.Errorf("invalid commitment %q", cfg.Commitment)
	}
	if _, ok := validPriorityLevels[cfg.ComputeBudget.PriorityLevel]; !ok {
		return fmt.Errorf("invalid compute_budget.priority_level %q", cfg.ComputeBudget.PriorityLevel)
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.Retry.BaseDelayMs <= 0 {
		return errors.New("invalid retry.base_delay_ms")
	}
	if cfg.Retry.MaxDelayMs < cfg.Retry.BaseDelayMs {
		return errors.New("retry.max_delay_ms must not be less than retry.base_delay_ms")
	}
	if cfg.Retry.MaxRetries < 0 {
		return errors.New("invalid retry.max_retries")
	}
	if cfg.Confirm.PollIntervalMs <= 0 {
		return errors.New("invalid confirm.poll_interval_ms")
	}
	if cfg.ComputeBudget.MinPriorityFeeLamports > cfg.ComputeBudget.MaxPriorityFeeLamports {
		return errors.New("compute_budget.min_priority_fee_lamports exceeds max_priority_fee_lamports")
	}
	if cfg.ComputeBudget.DefaultUnits == 0 {
		return errors.New("invalid compute_budget.default_units")
	}
	if cfg.Price.TTLSeconds < 0 {
		return errors.New("invalid price.ttl_seconds")
	}
	for _, p := range cfg.Price.Static {
		if p.Mint == "" || p.USD == "" {
			return errors.New("price.static entries need mint and usd")
		}
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL + "|" + protocol); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL+"|"+protocol, parsed)
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) {
	v.AutomaticEnv()
	v.SetEnvPrefix("SOLANA_LP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if key := v.GetString("WALLET_KEY"); key != "" {
		cfg.WalletKey = key
	}

	envRPCList := v.GetString("RPC_LIST")
	if envRPCList != "" {
		var cleanRPCs []string
		for _, rpc := range strings.Split(envRPCList, ",") {
			if clean := strings.TrimSpace(rpc); clean != "" {
				cleanRPCs = append(cleanRPCs, clean)
			}
		}
		if len(cleanRPCs) > 0 {
			cfg.RPCList = cleanRPCs
		}
	}
}

// BaseDelay возвращает базовую задержку ретраев.
func (c RetryConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMs) * time.Millisecond
}

// MaxDelay возвращает верхнюю границу задержки ретраев.
func (c RetryConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMs) * time.Millisecond
}

func (c ConfirmConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c PriceConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}
