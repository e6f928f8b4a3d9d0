// internal/retry/retry.go
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/rovshanmuradov/solana-lp-agent/internal/config"
)

// Settings - числовая часть политики ретраев, приходит из конфигурации.
type Settings struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int
}

// DefaultSettings возвращает значения по умолчанию из config.
func DefaultSettings() Settings {
	return Settings{
		BaseDelay:  config.DefaultBaseDelayMs * time.Millisecond,
		MaxDelay:   config.DefaultMaxDelayMs * time.Millisecond,
		MaxRetries: config.DefaultMaxRetries,
	}
}

// FromConfig строит Settings из секции retry.
func FromConfig(c config.RetryConfig) Settings {
	return Settings{
		BaseDelay:  c.BaseDelay(),
		MaxDelay:   c.MaxDelay(),
		MaxRetries: c.MaxRetries,
	}
}

// Delay возвращает паузу после попытки attempt: min(base*2^attempt, max).
func (s Settings) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if s.BaseDelay <= 0 {
		return 0
	}
	if attempt >= 62 {
		return s.MaxDelay
	}
	d := s.BaseDelay << uint(attempt)
	// сдвиг мог переполниться
	if d <= 0 || d/(1<<uint(attempt)) != s.BaseDelay || d > s.MaxDelay {
		return s.MaxDelay
	}
	return d
}

// Policy - неизменяемая политика для одного вызова Execute.
type Policy[T any] struct {
	Settings

	// ShouldRetry видит и результат, и ошибку. nil означает "повторять при err != nil".
	ShouldRetry func(result T, err error) bool

	// OnAttempt вызывается после каждой попытки до решения о повторе.
	OnAttempt func(attempt int, result T, err error)
}

// NewPolicy создает политику с заданными Settings и без хуков.
func NewPolicy[T any](s Settings) Policy[T] {
	return Policy[T]{Settings: s}
}

func (p Policy[T]) shouldRetry(result T, err error) bool {
	if p.ShouldRetry == nil {
		return err != nil
	}
	return p.ShouldRetry(result, err)
}

// Operation получает номер попытки (с нуля) и ошибку предыдущей попытки.
type Operation[T any] func(ctx context.Context, attempt int, lastErr error) (T, error)

// errUnsatisfactory заставляет backoff повторить успешный, но отвергнутый предикатом результат.
var errUnsatisfactory = errors.New("result rejected by retry predicate")

// Execute выполняет op с экспоненциальной задержкой между попытками.
// Попытка 0 запускается сразу, всего не более MaxRetries+1 попыток.
// При исчерпании возвращается результат и ошибка последней попытки.
func Execute[T any](ctx context.Context, policy Policy[T], op Operation[T]) (T, error) {
	attempt := 0
	var lastErr error

	wrapped := func() (T, error) {
		idx := attempt
		attempt++

		res, err := op(ctx, idx, lastErr)
		lastErr = err
		if policy.OnAttempt != nil {
			policy.OnAttempt(idx, res, err)
		}

		if !policy.shouldRetry(res, err) {
			if err != nil {
				return res, backoff.Permanent(err)
			}
			return res, nil
		}
		if err == nil {
			return res, errUnsatisfactory
		}
		return res, err
	}

	maxRetries := policy.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	res, err := backoff.Retry(ctx, wrapped,
		backoff.WithBackOff(newCappedExponential(policy.Settings)),
		backoff.WithMaxTries(uint(maxRetries+1)),
		backoff.WithMaxElapsedTime(0),
	)
	if err == nil {
		return res, nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	if errors.Is(err, errUnsatisfactory) {
		return res, nil
	}
	return res, err
}

// cappedExponential реализует backoff.BackOff без джиттера.
type cappedExponential struct {
	settings Settings
	attempt  int
}

func newCappedExponential(s Settings) *cappedExponential {
	return &cappedExponential{settings: s}
}

func (b *cappedExponential) NextBackOff() time.Duration {
	d := b.settings.Delay(b.attempt)
	b.attempt++
	return d
}

func (b *cappedExponential) Reset() {
	b.attempt = 0
}
