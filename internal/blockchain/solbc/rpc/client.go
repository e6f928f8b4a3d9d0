// internal/blockchain/solbc/rpc/client.go
package rpc

import (
	"time"

	solanarpc "github.com/gagliardetto/solana-go/rpc"
)

// NewNodeClient создает новый экземпляр NodeClient
func NewNodeClient(url string) *NodeClient {
	return newNodeClient(url, solanarpc.New(url))
}

func newNodeClient(url string, client *solanarpc.Client) *NodeClient {
	return &NodeClient{
		Client:  client,
		URL:     url,
		active:  true,
		metrics: &metrics{},
	}
}

// Stats возвращает текущие метрики узла
func (c *NodeClient) Stats() NodeStats {
	c.metrics.mutex.RLock()
	defer c.metrics.mutex.RUnlock()

	return NodeStats{
		URL:       c.URL,
		Active:    c.IsActive(),
		Successes: c.metrics.successCount,
		Errors:    c.metrics.errorCount,
		Latency:   c.metrics.latency,
	}
}

// SetActive устанавливает статус активности узла
func (c *NodeClient) SetActive(state bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.active = state
}

// IsActive возвращает текущий статус активности узла
func (c *NodeClient) IsActive() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.active
}

// UpdateMetrics обновляет метрики узла; latency - скользящее среднее.
func (c *NodeClient) UpdateMetrics(success bool, latency time.Duration) {
	c.metrics.mutex.Lock()
	defer c.metrics.mutex.Unlock()

	if success {
		c.metrics.successCount++
	} else {
		c.metrics.errorCount++
	}

	if c.metrics.latency == 0 {
		c.metrics.latency = latency
		return
	}
	c.metrics.latency = (c.metrics.latency + latency) / 2
}
