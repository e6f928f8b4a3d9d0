// internal/blockchain/solbc/transaction/submitter.go
package transaction

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain"
)

// Submitter проверяет и отправляет подписанную транзакцию ровно один раз.
type Submitter struct {
	sender     blockchain.Sender
	validator  *Validator
	classifier *ErrorClassifier
	logger     *zap.Logger
}

func NewSubmitter(sender blockchain.Sender, classifier *ErrorClassifier, logger *zap.Logger) *Submitter {
	return &Submitter{
		sender:     sender,
		validator:  NewValidator(logger),
		classifier: classifier,
		logger:     logger.Named("tx-submitter"),
	}
}

// Submit возвращает подпись, только если сеть приняла транзакцию.
// Ошибка отправки уже классифицирована: *TransientError, *ProgramError или исходная.
func (s *Submitter) Submit(ctx context.Context, rec *BuildRecord, opts blockchain.TransactionOptions) (solana.Signature, error) {
	if err := s.validator.ValidateTransaction(rec.Transaction); err != nil {
		s.logger.Error("Transaction validation failed", zap.Error(err))
		return solana.Signature{}, err
	}

	sig, err := s.sender.SendTransactionWithOpts(ctx, rec.Transaction, opts)
	if err != nil {
		classified := s.classifier.ClassifySendError(err, rec.ProgramIDs())
		s.logger.Warn("Transaction submission rejected",
			zap.Uint64("priority_fee_lamports", rec.Budget.PriorityFeeLamports),
			zap.Error(classified))
		return solana.Signature{}, classified
	}

	s.logger.Debug("Transaction accepted", zap.String("signature", sig.String()))
	return sig, nil
}
