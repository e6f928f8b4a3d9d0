// internal/blockchain/solbc/rpc/types.go
package rpc

import (
	"sync"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

const (
	DefaultTimeout = 10 * time.Second
	RetryDelay     = 200 * time.Millisecond
)

// NodeClient представляет отдельный RPC узел
type NodeClient struct {
	Client  *rpc.Client
	URL     string
	active  bool
	mutex   sync.RWMutex
	metrics *metrics
}

// metrics содержит метрики производительности RPC узла
type metrics struct {
	successCount uint64
	errorCount   uint64
	latency      time.Duration
	mutex        sync.RWMutex
}

// NodeStats - снимок метрик узла.
type NodeStats struct {
	URL       string
	Active    bool
	Successes uint64
	Errors    uint64
	Latency   time.Duration
}

// Pool - round-robin пул RPC узлов с отключением сбойных.
type Pool struct {
	clients   []*NodeClient
	logger    *zap.Logger
	currIndex int
	mutex     sync.Mutex
	timeout   time.Duration
}
