// internal/blockchain/solbc/transaction/manager.go
package transaction

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain"
	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain/solbc/idl"
	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain/solbc/programs/computebudget"
	"github.com/rovshanmuradov/solana-lp-agent/internal/config"
	"github.com/rovshanmuradov/solana-lp-agent/internal/events"
	"github.com/rovshanmuradov/solana-lp-agent/internal/retry"
)

// LedgerClient - часть клиента блокчейна, нужная движку транзакций.
type LedgerClient interface {
	blockchain.BlockhashProvider
	blockchain.Sender
	blockchain.StatusProvider
}

// Config - настройки по умолчанию для всех контекстов менеджера.
type Config struct {
	Retry         retry.Settings
	PollInterval  time.Duration
	Commitment    rpc.CommitmentType
	SkipPreflight bool
	PriorityLevel computebudget.PriorityLevel
}

// ConfigFromApp переносит настройки из конфигурации приложения.
func ConfigFromApp(cfg *config.Config) Config {
	level, err := computebudget.ParsePriorityLevel(cfg.ComputeBudget.PriorityLevel)
	if err != nil {
		level = computebudget.PriorityMedium
	}
	return Config{
		Retry:         retry.FromConfig(cfg.Retry),
		PollInterval:  cfg.Confirm.PollInterval(),
		Commitment:    rpc.CommitmentType(cfg.Commitment),
		SkipPreflight: cfg.SkipPreflight,
		PriorityLevel: level,
	}
}

// Manager создает контексты транзакций и владеет общими зависимостями.
type Manager struct {
	client     LedgerClient
	estimator  *computebudget.Estimator
	classifier *ErrorClassifier
	submitter  *Submitter
	monitor    *Monitor
	metrics    *Metrics
	events     events.Publisher
	logger     *zap.Logger
	config     Config
}

// Option настраивает Manager.
type Option func(*Manager)

// WithMetrics регистрирует метрики в reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(m *Manager) {
		m.metrics = NewMetrics(reg)
	}
}

// WithEvents публикует события жизненного цикла транзакций.
func WithEvents(p events.Publisher) Option {
	return func(m *Manager) {
		m.events = p
	}
}

// NewManager создает менеджер. registry используется для расшифровки кодов ошибок
// программ и может быть nil.
func NewManager(client LedgerClient, estimator *computebudget.Estimator, registry *idl.Registry, cfg Config, logger *zap.Logger, opts ...Option) *Manager {
	if cfg.Commitment == "" {
		cfg.Commitment = rpc.CommitmentConfirmed
	}
	if cfg.PriorityLevel == "" {
		cfg.PriorityLevel = computebudget.PriorityMedium
	}
	if estimator == nil {
		estimator = computebudget.NewEstimator(computebudget.Settings{}, nil, nil, logger)
	}

	classifier := NewErrorClassifier(registry)
	m := &Manager{
		client:     client,
		estimator:  estimator,
		classifier: classifier,
		submitter:  NewSubmitter(client, classifier, logger),
		monitor:    NewMonitor(client, client, classifier, cfg.PollInterval, logger),
		metrics:    NewMetrics(nil),
		logger:     logger.Named("tx-manager"),
		config:     cfg,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewContext создает контекст для одной логической операции.
func (m *Manager) NewContext(name string, feePayer solana.PublicKey) *Context {
	return &Context{
		name:     name,
		feePayer: feePayer,
		manager:  m,
		logger:   m.logger.Named("tx-context"),
	}
}

// SendAndConfirm - короткий путь: новый контекст, наборы инструкций, Send.
func (m *Manager) SendAndConfirm(ctx context.Context, name string, feePayer solana.PublicKey, opts SendOptions, sets ...*InstructionSet) (*Context, *SendRecord, error) {
	txCtx := m.NewContext(name, feePayer)
	if err := txCtx.Add(sets...); err != nil {
		return txCtx, nil, err
	}
	rec, err := txCtx.Send(ctx, opts)
	return txCtx, rec, err
}

// Status возвращает текущий статус подписи.
func (m *Manager) Status(ctx context.Context, signature solana.Signature) (*Status, error) {
	return m.monitor.GetTransactionStatus(ctx, signature, nil)
}

func (m *Manager) publish(ev events.Event) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(ev); err != nil {
		m.logger.Debug("Event dropped",
			zap.String("event_type", string(ev.Type())),
			zap.Error(err))
	}
}
