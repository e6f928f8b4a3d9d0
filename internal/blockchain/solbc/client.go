// internal/blockchain/solbc/client.go
package solbc

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain"
	"github.com/rovshanmuradov/solana-lp-agent/internal/blockchain/solbc/rpc"
)

var (
	ErrAccountNotFound     = blockchain.ErrAccountNotFound
	ErrTransactionNotFound = errors.New("transaction not found")
)

// Client – адаптер blockchain.Client поверх пула RPC узлов.
type Client struct {
	pool       *rpc.Pool
	commitment solanarpc.CommitmentType
	logger     *zap.Logger
}

// NewClient создаёт клиент, принимая пул и логгер через dependency injection.
func NewClient(pool *rpc.Pool, commitment solanarpc.CommitmentType, logger *zap.Logger) *Client {
	if commitment == "" {
		commitment = solanarpc.CommitmentConfirmed
	}
	return &Client{
		pool:       pool,
		commitment: commitment,
		logger:     logger.Named("solbc-client"),
	}
}

// GetLatestBlockhash возвращает blockhash вместе с последней допустимой высотой блока.
func (c *Client) GetLatestBlockhash(ctx context.Context) (blockchain.BlockhashAnchor, error) {
	var anchor blockchain.BlockhashAnchor
	err := c.pool.Execute(ctx, "getLatestBlockhash", func(ctx context.Context, client *solanarpc.Client) error {
		out, err := client.GetLatestBlockhash(ctx, c.commitment)
		if err != nil {
			return err
		}
		if out == nil || out.Value == nil {
			return fmt.Errorf("empty getLatestBlockhash response")
		}
		anchor = blockchain.BlockhashAnchor{
			Blockhash:            out.Value.Blockhash,
			LastValidBlockHeight: out.Value.LastValidBlockHeight,
		}
		return nil
	})
	if err != nil {
		c.logger.Error("GetLatestBlockhash error", zap.Error(err))
		return blockchain.BlockhashAnchor{}, err
	}
	return anchor, nil
}

// GetBlockHeight возвращает текущую высоту блока.
func (c *Client) GetBlockHeight(ctx context.Context) (uint64, error) {
	var height uint64
	err := c.pool.Execute(ctx, "getBlockHeight", func(ctx context.Context, client *solanarpc.Client) error {
		var err error
		height, err = client.GetBlockHeight(ctx, c.commitment)
		return err
	})
	if err != nil {
		c.logger.Debug("GetBlockHeight error", zap.Error(err))
		return 0, err
	}
	return height, nil
}

// SendTransactionWithOpts отправляет транзакцию ровно на один узел.
func (c *Client) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts blockchain.TransactionOptions) (solana.Signature, error) {
	preflight := opts.PreflightCommitment
	if preflight == "" {
		preflight = c.commitment
	}
	var sig solana.Signature
	err := c.pool.ExecuteOnce(ctx, "sendTransaction", func(ctx context.Context, client *solanarpc.Client) error {
		var err error
		sig, err = client.SendTransactionWithOpts(ctx, tx, solanarpc.TransactionOpts{
			SkipPreflight:       opts.SkipPreflight,
			PreflightCommitment: preflight,
		})
		return err
	})
	if err != nil {
		c.logger.Error("SendTransactionWithOpts error", zap.Error(err))
		return solana.Signature{}, err
	}
	return sig, nil
}

// GetSignatureStatuses получает статусы транзакций.
func (c *Client) GetSignatureStatuses(ctx context.Context, signatures ...solana.Signature) (*solanarpc.GetSignatureStatusesResult, error) {
	var result *solanarpc.GetSignatureStatusesResult
	err := c.pool.Execute(ctx, "getSignatureStatuses", func(ctx context.Context, client *solanarpc.Client) error {
		var err error
		result, err = client.GetSignatureStatuses(ctx, true, signatures...)
		return err
	})
	if err != nil {
		c.logger.Debug("GetSignatureStatuses error", zap.Error(err))
		return nil, err
	}
	return result, nil
}

// SimulateTransaction симулирует транзакцию без проверки подписей.
func (c *Client) SimulateTransaction(ctx context.Context, tx *solana.Transaction) (*blockchain.SimulationResult, error) {
	var result *solanarpc.SimulateTransactionResponse
	err := c.pool.Execute(ctx, "simulateTransaction", func(ctx context.Context, client *solanarpc.Client) error {
		var err error
		result, err = client.SimulateTransactionWithOpts(ctx, tx, &solanarpc.SimulateTransactionOpts{
			SigVerify:              false,
			Commitment:             c.commitment,
			ReplaceRecentBlockhash: true,
		})
		return err
	})
	if err != nil {
		c.logger.Debug("SimulateTransaction error", zap.Error(err))
		return nil, err
	}
	if result == nil || result.Value == nil {
		return nil, fmt.Errorf("empty simulateTransaction response")
	}
	units := uint64(0)
	if result.Value.UnitsConsumed != nil {
		units = *result.Value.UnitsConsumed
	}
	return &blockchain.SimulationResult{
		Err:           result.Value.Err,
		Logs:          result.Value.Logs,
		UnitsConsumed: units,
	}, nil
}

// GetAccountInfo получает информацию об аккаунте.
func (c *Client) GetAccountInfo(ctx context.Context, pubkey solana.PublicKey) (*solanarpc.GetAccountInfoResult, error) {
	var result *solanarpc.GetAccountInfoResult
	err := c.pool.Execute(ctx, "getAccountInfo", func(ctx context.Context, client *solanarpc.Client) error {
		var err error
		result, err = client.GetAccountInfoWithOpts(ctx, pubkey, &solanarpc.GetAccountInfoOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: c.commitment,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, solanarpc.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, pubkey)
		}
		c.logger.Debug("GetAccountInfo error",
			zap.String("pubkey", pubkey.String()),
			zap.Error(err))
		return nil, err
	}
	if result == nil || result.Value == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, pubkey)
	}
	return result, nil
}

// GetRecentPriorityFees возвращает priority fee последних слотов для набора аккаунтов.
func (c *Client) GetRecentPriorityFees(ctx context.Context, accounts []solana.PublicKey) ([]uint64, error) {
	var fees []uint64
	err := c.pool.Execute(ctx, "getRecentPrioritizationFees", func(ctx context.Context, client *solanarpc.Client) error {
		out, err := client.GetRecentPrioritizationFees(ctx, accounts)
		if err != nil {
			return err
		}
		fees = make([]uint64, 0, len(out))
		for _, f := range out {
			fees = append(fees, f.PrioritizationFee)
		}
		return nil
	})
	if err != nil {
		c.logger.Debug("GetRecentPriorityFees error", zap.Error(err))
		return nil, err
	}
	return fees, nil
}

// GetTransaction загружает подтверждённую транзакцию и разворачивает
// аккаунты (включая загруженные из lookup-таблиц) и inner инструкции.
func (c *Client) GetTransaction(ctx context.Context, signature solana.Signature) (*blockchain.LedgerTransaction, error) {
	maxVersion := uint64(0)
	var out *solanarpc.GetTransactionResult
	err := c.pool.Execute(ctx, "getTransaction", func(ctx context.Context, client *solanarpc.Client) error {
		var err error
		out, err = client.GetTransaction(ctx, signature, &solanarpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     c.commitment,
			MaxSupportedTransactionVersion: &maxVersion,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, solanarpc.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, signature)
		}
		c.logger.Error("GetTransaction error", zap.Stringer("signature", signature), zap.Error(err))
		return nil, err
	}
	if out == nil || out.Transaction == nil {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, signature)
	}
	return convertTransaction(signature, out)
}

// Гарантируем, что Client реализует интерфейс blockchain.Client.
var _ blockchain.Client = (*Client)(nil)
