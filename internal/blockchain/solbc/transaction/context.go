// internal/blockchain/solbc/transaction/context.go
package transaction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain"
	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain/solbc/programs/computebudget"
	"github.com/rovshanmuradov/solana-lp-agent/internal/events"
	"github.com/rovshanmuradov/solana-lp-agent/internal/logger"
	"github.com/rovshanmuradov/solana-lp-agent/internal/retry"
)

// ErrInvalidState - операция недопустима в текущем состоянии контекста.
var ErrInvalidState = errors.New("invalid transaction context state")

// Context - одна логическая операция: наборы инструкций, истории сборок и отправок.
// Send сериализован: одна операция никогда не отправляет две транзакции одновременно.
type Context struct {
	name     string
	feePayer solana.PublicKey
	manager  *Manager
	logger   *zap.Logger

	sendMu sync.Mutex

	mu           sync.RWMutex
	sets         []*InstructionSet
	state        State
	buildHistory []*BuildRecord
	sendHistory  []*SendRecord
}

// sendParams - SendOptions, дополненные значениями менеджера.
type sendParams struct {
	reuse       bool
	skipConfirm bool
	commitment  rpc.CommitmentType
	level       computebudget.PriorityLevel
	txOpts      blockchain.TransactionOptions
}

func (c *Context) Name() string { return c.name }

// Add добавляет наборы инструкций до первой сборки.
func (c *Context) Add(sets ...*InstructionSet) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateEmpty && c.state != StateInstructionsAdded {
		return fmt.Errorf("%w: add in state %s", ErrInvalidState, c.state)
	}
	for _, s := range sets {
		if s != nil {
			c.sets = append(c.sets, s)
		}
	}
	if len(c.sets) > 0 {
		c.state = StateInstructionsAdded
	}
	return nil
}

// Send пересобирает, подписывает, отправляет и подтверждает транзакцию под
// политикой ретраев. Движок сам повторяет только TransientError; прочие ошибки
// повторяются, если этого хочет opts.RetryFilter. Каждая попытка попадает в
// историю отправок. Возвращается запись последней попытки.
func (c *Context) Send(ctx context.Context, opts SendOptions) (*SendRecord, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.RLock()
	sets := append([]*InstructionSet(nil), c.sets...)
	c.mu.RUnlock()
	if len(sets) == 0 {
		return nil, ErrNoInstructions
	}

	m := c.manager
	params := c.params(opts)
	settings := m.config.Retry
	if opts.Retry != nil {
		settings = *opts.Retry
	}

	log := logger.WithOperation(c.logger, c.name)
	before := c.sendCount()
	start := time.Now()
	defer m.metrics.TrackTransaction(start)

	policy := retry.NewPolicy[*SendRecord](settings)
	policy.ShouldRetry = func(_ *SendRecord, err error) bool {
		return shouldRetry(ctx, err, opts.RetryFilter)
	}
	policy.OnAttempt = func(attempt int, rec *SendRecord, err error) {
		c.appendSend(rec)
		m.metrics.observeAttempt(rec)
		m.publish(attemptEvent(c.name, rec))
		if err != nil {
			log.Warn("Send attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			return
		}
		log.Info("Send attempt succeeded",
			zap.Int("attempt", attempt),
			zap.Stringer("signature", rec.Signature),
			zap.Bool("confirmed", rec.Confirmed))
	}

	rec, err := retry.Execute(ctx, policy, func(ctx context.Context, attempt int, _ error) (*SendRecord, error) {
		return c.attempt(ctx, attempt, sets, params)
	})

	attempts := c.sendCount() - before
	if err != nil {
		if shouldRetry(ctx, err, opts.RetryFilter) {
			err = fmt.Errorf("%w: %w", ErrRetriesExhausted, err)
		}
		c.setState(StateFailed)
		m.publish(events.TxFailedEvent{
			BaseEvent: events.NewBase(events.TxFailed),
			Operation: c.name,
			Attempts:  attempts,
			Error:     err,
		})
		log.Error("Transaction failed", zap.Int("attempts", attempts), zap.Error(err))
		return rec, err
	}

	if rec.Confirmed {
		m.publish(events.TxConfirmedEvent{
			BaseEvent: events.NewBase(events.TxConfirmed),
			Operation: c.name,
			Signature: rec.Signature.String(),
			Attempts:  attempts,
		})
	}
	return rec, nil
}

func (c *Context) params(opts SendOptions) sendParams {
	cfg := c.manager.config
	p := sendParams{
		reuse:       opts.ReuseLatestBuild,
		skipConfirm: opts.SkipConfirm,
		commitment:  cfg.Commitment,
		level:       cfg.PriorityLevel,
	}
	if opts.Commitment != "" {
		p.commitment = opts.Commitment
	}
	if opts.PriorityLevel != "" {
		p.level = opts.PriorityLevel
	}
	p.txOpts = blockchain.TransactionOptions{
		SkipPreflight:       opts.SkipPreflight || cfg.SkipPreflight,
		PreflightCommitment: p.commitment,
	}
	return p
}

// attempt всегда возвращает запись, даже при ошибке.
func (c *Context) attempt(ctx context.Context, attempt int, sets []*InstructionSet, p sendParams) (*SendRecord, error) {
	m := c.manager
	rec := &SendRecord{Attempt: attempt, Timestamp: time.Now()}

	build, err := c.prepare(ctx, attempt, sets, p)
	if err != nil {
		rec.Err = err
		return rec, err
	}
	rec.Build = build

	sig, err := m.submitter.Submit(ctx, build, p.txOpts)
	if err != nil {
		rec.Err = err
		return rec, err
	}
	rec.Signature = &sig
	c.setState(StateSubmitted)

	if p.skipConfirm {
		return rec, nil
	}

	submitted := time.Now()
	status, err := m.monitor.AwaitConfirmation(ctx, sig, build.Anchor, p.commitment, build.ProgramIDs())
	rec.Status = status
	if err != nil {
		rec.Err = err
		return rec, err
	}
	m.metrics.observeConfirmation(submitted)
	rec.Confirmed = true
	c.setState(StateConfirmed)
	return rec, nil
}

// prepare возвращает подписанную сборку для попытки.
func (c *Context) prepare(ctx context.Context, attempt int, sets []*InstructionSet, p sendParams) (*BuildRecord, error) {
	if p.reuse && attempt == 0 {
		if last := c.latestSignedBuild(); last != nil {
			return last, nil
		}
	}

	composed := Compose(sets...)
	if len(composed.Instructions) == 0 {
		return nil, ErrNoInstructions
	}
	if !containsKey(composed.SignerKeys(), c.feePayer) {
		return nil, fmt.Errorf("%w: %s", ErrMissingFeePayer, c.feePayer)
	}

	m := c.manager
	anchor, err := m.client.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest blockhash: %w", err)
	}

	budget := m.estimator.Estimate(ctx, composed.Instructions, c.feePayer, p.level, c.sendCount())
	unsigned, err := Build(sets, budget, anchor, c.feePayer)
	if err != nil {
		return nil, err
	}
	c.setState(StateBuilt)

	signed, err := Sign(unsigned)
	if err != nil {
		c.appendBuild(unsigned)
		return nil, err
	}
	c.appendBuild(signed)
	c.setState(StateSigned)
	return signed, nil
}

func shouldRetry(ctx context.Context, err error, filter func(error) bool) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if isFatal(err) {
		return false
	}
	if IsTransient(err) {
		return true
	}
	return filter != nil && filter(err)
}

// Reset очищает наборы инструкций и, если не сказано иное, истории.
func (c *Context) Reset(opts ResetOptions) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sets = nil
	c.state = StateEmpty
	if !opts.KeepBuildHistory {
		c.buildHistory = nil
	}
	if !opts.KeepSendHistory {
		c.sendHistory = nil
	}
}

func (c *Context) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Context) BuildHistory() []*BuildRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*BuildRecord(nil), c.buildHistory...)
}

func (c *Context) SendHistory() []*SendRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*SendRecord(nil), c.sendHistory...)
}

func (c *Context) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Context) appendBuild(rec *BuildRecord) {
	c.mu.Lock()
	c.buildHistory = append(c.buildHistory, rec)
	c.mu.Unlock()
}

func (c *Context) appendSend(rec *SendRecord) {
	if rec == nil {
		return
	}
	c.mu.Lock()
	c.sendHistory = append(c.sendHistory, rec)
	c.mu.Unlock()
}

func (c *Context) sendCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sendHistory)
}

func (c *Context) latestSignedBuild() *BuildRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := len(c.buildHistory) - 1; i >= 0; i-- {
		if c.buildHistory[i].Signed {
			return c.buildHistory[i]
		}
	}
	return nil
}

func attemptEvent(operation string, rec *SendRecord) events.TxAttemptEvent {
	ev := events.TxAttemptEvent{
		BaseEvent: events.NewBase(events.TxAttempt),
		Operation: operation,
		Attempt:   rec.Attempt,
		Confirmed: rec.Confirmed,
		Error:     rec.Err,
	}
	if rec.Signature != nil {
		ev.Signature = rec.Signature.String()
	}
	if rec.Build != nil {
		ev.ComputeUnitLimit = rec.Build.Budget.ComputeUnitLimit
		ev.PriorityFeeLamports = rec.Build.Budget.PriorityFeeLamports
	}
	return ev
}
