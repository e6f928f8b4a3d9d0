// internal/blockchain/solbc/transaction/monitor.go
package transaction

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain"
)

// Monitor ждёт подтверждения подписи, пока не истечёт якорь blockhash.
type Monitor struct {
	statuses     blockchain.StatusProvider
	heights      blockchain.BlockhashProvider
	classifier   *ErrorClassifier
	pollInterval time.Duration
	logger       *zap.Logger
}

func NewMonitor(statuses blockchain.StatusProvider, heights blockchain.BlockhashProvider, classifier *ErrorClassifier, pollInterval time.Duration, logger *zap.Logger) *Monitor {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Monitor{
		statuses:     statuses,
		heights:      heights,
		classifier:   classifier,
		pollInterval: pollInterval,
		logger:       logger.Named("tx-monitor"),
	}
}

// GetTransactionStatus возвращает текущий статус подписи. Если транзакция
// исполнилась с ошибкой, возвращается и статус, и классифицированная ошибка.
func (m *Monitor) GetTransactionStatus(ctx context.Context, signature solana.Signature, programs []solana.PublicKey) (*Status, error) {
	response, err := m.statuses.GetSignatureStatuses(ctx, signature)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction status: %w", err)
	}

	if response == nil || len(response.Value) == 0 || response.Value[0] == nil {
		return &Status{
			Signature: signature.String(),
			Status:    "pending",
			Timestamp: time.Now(),
		}, nil
	}

	status := response.Value[0]
	txStatus := &Status{
		Signature: signature.String(),
		Timestamp: time.Now(),
		Slot:      status.Slot,
	}

	if status.Confirmations != nil {
		txStatus.Confirmations = *status.Confirmations
	}

	switch status.ConfirmationStatus {
	case rpc.ConfirmationStatusFinalized:
		txStatus.Status = "finalized"
	case rpc.ConfirmationStatusConfirmed:
		txStatus.Status = "confirmed"
	case rpc.ConfirmationStatusProcessed:
		txStatus.Status = "processed"
	default:
		txStatus.Status = "pending"
	}

	if status.Err != nil {
		txStatus.Error = fmt.Sprintf("%v", status.Err)
		txStatus.Status = "failed"
		return txStatus, m.classifier.ClassifyStatusError(status.Err, programs)
	}

	return txStatus, nil
}

// AwaitConfirmation опрашивает статус с интервалом pollInterval. Когда высота
// блока превысила LastValidBlockHeight, статус проверяется ещё раз, и только
// подтверждённое отсутствие подписи даёт TransientError{ErrBlockhashExpired}.
// Подпись, уже попавшая в блок, не истекает: опрос продолжается до нужного
// commitment или ошибки исполнения.
func (m *Monitor) AwaitConfirmation(ctx context.Context, signature solana.Signature, anchor blockchain.BlockhashAnchor, commitment rpc.CommitmentType, programs []solana.PublicKey) (*Status, error) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}

		status, done, err := m.check(ctx, signature, commitment, programs)
		if done {
			return status, err
		}
		if landed(status) {
			timer.Reset(m.pollInterval)
			continue
		}

		height, herr := m.heights.GetBlockHeight(ctx)
		if herr != nil {
			m.logger.Warn("Block height check failed", zap.Error(herr))
		} else if height > anchor.LastValidBlockHeight {
			// подпись могла попасть в блок между двумя опросами
			status, done, err = m.check(ctx, signature, commitment, programs)
			if done {
				return status, err
			}
			if status == nil || landed(status) {
				// статус не проверен или транзакция уже в блоке
				timer.Reset(m.pollInterval)
				continue
			}
			m.logger.Info("Blockhash expired before confirmation",
				zap.String("signature", signature.String()),
				zap.Uint64("block_height", height),
				zap.Uint64("last_valid_block_height", anchor.LastValidBlockHeight))
			return status, &TransientError{
				Reason: ErrBlockhashExpired,
				Err:    fmt.Errorf("block height %d exceeded %d", height, anchor.LastValidBlockHeight),
			}
		}

		timer.Reset(m.pollInterval)
	}
}

// landed - сеть уже знает подпись (processed или выше).
func landed(status *Status) bool {
	return status != nil && commitmentRank[status.Status] > 0
}

// check возвращает done=true, когда исход по подписи окончательный.
func (m *Monitor) check(ctx context.Context, signature solana.Signature, commitment rpc.CommitmentType, programs []solana.PublicKey) (*Status, bool, error) {
	status, err := m.GetTransactionStatus(ctx, signature, programs)
	if status == nil {
		if ctx.Err() != nil {
			return nil, true, ctx.Err()
		}
		m.logger.Warn("Confirmation check failed", zap.Error(err))
		return nil, false, nil
	}
	if err != nil {
		return status, true, err
	}
	if satisfies(status.Status, commitment) {
		return status, true, nil
	}
	return status, false, nil
}

var commitmentRank = map[string]int{
	"processed": 1,
	"confirmed": 2,
	"finalized": 3,
}

func satisfies(status string, commitment rpc.CommitmentType) bool {
	have := commitmentRank[status]
	if have == 0 {
		return false
	}
	want, ok := commitmentRank[string(commitment)]
	if !ok {
		want = commitmentRank["confirmed"]
	}
	return have >= want
}
