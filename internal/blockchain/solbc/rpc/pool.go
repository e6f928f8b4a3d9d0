// internal/blockchain/solbc/rpc/pool.go
package rpc

import (
	"context"
	"errors"
	"time"

	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"go.uber.org/zap"
)

// Operation выполняется на конкретном узле.
type Operation func(ctx context.Context, client *solanarpc.Client) error

// NewPool создает пул из списка URL.
func NewPool(urls []string, logger *zap.Logger) (*Pool, error) {
	if len(urls) == 0 {
		return nil, ErrNoRPCNodes
	}
	clients := make([]*NodeClient, len(urls))
	for i, url := range urls {
		clients[i] = NewNodeClient(url)
	}
	return newPool(clients, logger), nil
}

func newPool(clients []*NodeClient, logger *zap.Logger) *Pool {
	return &Pool{
		clients:   clients,
		logger:    logger.Named("rpc-pool"),
		currIndex: -1,
		timeout:   DefaultTimeout,
	}
}

// Next возвращает следующий активный узел. Если все узлы отключены,
// они снова считаются активными: пул не должен "умереть" навсегда.
func (p *Pool) Next() (*NodeClient, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if len(p.clients) == 0 {
		return nil, ErrNoActiveClients
	}

	for i := 0; i < len(p.clients); i++ {
		p.currIndex = (p.currIndex + 1) % len(p.clients)
		if p.clients[p.currIndex].IsActive() {
			return p.clients[p.currIndex], nil
		}
	}

	p.logger.Warn("All RPC nodes inactive, reactivating pool")
	for _, c := range p.clients {
		c.SetActive(true)
	}
	p.currIndex = (p.currIndex + 1) % len(p.clients)
	return p.clients[p.currIndex], nil
}

// Execute выполняет операцию, переключаясь на следующий узел при сбое узла.
// Ответ узла с JSON-RPC ошибкой считается ответом, а не сбоем, и возвращается сразу.
func (p *Pool) Execute(ctx context.Context, method string, op Operation) error {
	var lastErr error
	for attempt := 0; attempt < len(p.clients); attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		node, err := p.Next()
		if err != nil {
			return err
		}

		err = p.run(ctx, node, method, op)
		if err == nil || !isNodeFailure(ctx, err) {
			return err
		}
		lastErr = err
		node.SetActive(false)

		p.logger.Debug("RPC request failed, trying next node",
			zap.String("method", method),
			zap.String("url", node.URL),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if attempt < len(p.clients)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(RetryDelay):
			}
		}
	}
	return lastErr
}

// ExecuteOnce выполняет операцию ровно на одном узле, без переключения.
// Используется для отправки транзакций: одна попытка не должна отправляться дважды.
func (p *Pool) ExecuteOnce(ctx context.Context, method string, op Operation) error {
	node, err := p.Next()
	if err != nil {
		return err
	}
	err = p.run(ctx, node, method, op)
	if err != nil && isNodeFailure(ctx, err) {
		node.SetActive(false)
	}
	return err
}

func (p *Pool) run(ctx context.Context, node *NodeClient, method string, op Operation) error {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	err := op(callCtx, node.Client)
	node.UpdateMetrics(err == nil, time.Since(start))
	if err != nil {
		return NewError(err, node.URL, method)
	}
	return nil
}

// Stats возвращает снимок метрик всех узлов.
func (p *Pool) Stats() []NodeStats {
	stats := make([]NodeStats, len(p.clients))
	for i, c := range p.clients {
		stats[i] = c.Stats()
	}
	return stats
}

// isNodeFailure отличает сбой узла (сеть, таймаут, 5xx) от содержательного ответа.
func isNodeFailure(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return false
	}
	if errors.Is(err, solanarpc.ErrNotFound) {
		return false
	}
	return true
}
