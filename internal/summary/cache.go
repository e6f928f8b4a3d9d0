// internal/summary/cache.go
package summary

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

// Cache хранит сводки по подписи без вытеснения. Для каждой подписи
// функция вычисления выполняется не более одного раза успешно; ошибки не кэшируются.
type Cache struct {
	entries sync.Map // string -> *Summary
	group   singleflight.Group
	hits    prometheus.Counter
	misses  prometheus.Counter
}

// NewCache создает кэш. С nil registerer метрики не регистрируются.
func NewCache(reg prometheus.Registerer) *Cache {
	factory := promauto.With(reg)
	return &Cache{
		hits: factory.NewCounter(prometheus.CounterOpts{
			Name: "summary_cache_hits_total",
			Help: "Summaries served from cache",
		}),
		misses: factory.NewCounter(prometheus.CounterOpts{
			Name: "summary_cache_misses_total",
			Help: "Summaries computed",
		}),
	}
}

// Get возвращает сводку без вычисления.
func (c *Cache) Get(signature string) (*Summary, bool) {
	v, ok := c.entries.Load(signature)
	if !ok {
		return nil, false
	}
	return v.(*Summary), true
}

// GetOrCompute возвращает кэшированную сводку или вычисляет её через compute.
// Одновременные вызовы с одной подписью ждут одно вычисление.
func (c *Cache) GetOrCompute(signature string, compute func() (*Summary, error)) (*Summary, error) {
	if s, ok := c.Get(signature); ok {
		c.hits.Inc()
		return s, nil
	}

	v, err, _ := c.group.Do(signature, func() (interface{}, error) {
		// вычисление могло завершиться между Load и Do
		if s, ok := c.Get(signature); ok {
			return s, nil
		}
		c.misses.Inc()
		s, err := compute()
		if err != nil {
			return nil, err
		}
		actual, _ := c.entries.LoadOrStore(signature, s)
		return actual, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Summary), nil
}

// Len возвращает число сводок в кэше.
func (c *Cache) Len() int {
	n := 0
	c.entries.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}
