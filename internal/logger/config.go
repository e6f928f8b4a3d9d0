// internal/logger/config.go
package logger

import "github.com/rovshanmuradov/solana-lp-agent/internal/config"

type Config struct {
	LogFile     string
	MaxSize     int  // мегабайты
	MaxAge      int  // дни
	MaxBackups  int  // количество файлов
	Compress    bool // сжимать ротированные файлы
	Development bool
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		LogFile:     config.DefaultLogFile,
		MaxSize:     100,
		MaxAge:      7,
		MaxBackups:  3,
		Compress:    true,
		Development: false,
	}
}

// FromLogConfig переносит секцию log из конфигурации агента.
func FromLogConfig(lc config.LogConfig) *Config {
	cfg := DefaultConfig()
	if lc.File != "" {
		cfg.LogFile = lc.File
	}
	cfg.Development = lc.Development
	return cfg
}
