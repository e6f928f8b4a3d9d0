package main

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/solana-lp-agent/internal/wallet"
)

func testWallet(t *testing.T) *wallet.Wallet {
	t.Helper()
	w, err := wallet.NewWallet(solana.NewWallet().PrivateKey.String())
	require.NoError(t, err)
	return w
}

func TestSelectWallet(t *testing.T) {
	primary, spare := testWallet(t), testWallet(t)

	got, err := selectWallet(map[string]*wallet.Wallet{"main": primary}, "")
	require.NoError(t, err)
	assert.Same(t, primary, got)

	both := map[string]*wallet.Wallet{"main": primary, "spare": spare}
	_, err = selectWallet(both, "")
	assert.Error(t, err)

	got, err = selectWallet(both, "spare")
	require.NoError(t, err)
	assert.Same(t, spare, got)

	_, err = selectWallet(both, "missing")
	assert.Error(t, err)
}

func TestMetricTotals(t *testing.T) {
	reg := prometheus.NewRegistry()
	attempts := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "tx_send_attempts_total",
	}, []string{"outcome"})
	latency := promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
		Name: "tx_confirmation_seconds",
	})

	attempts.WithLabelValues("confirmed").Inc()
	attempts.WithLabelValues("transient").Add(2)
	latency.Observe(0.5)
	latency.Observe(1.5)

	totals, err := metricTotals(reg)
	require.NoError(t, err)
	assert.Equal(t, 3.0, totals["tx_send_attempts_total"])
	assert.Equal(t, 2.0, totals["tx_confirmation_seconds"])
	assert.Equal(t, []string{"tx_confirmation_seconds", "tx_send_attempts_total"}, sortedKeys(totals))
}
