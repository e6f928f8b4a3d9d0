// internal/blockchain/solbc/transaction/metrics.go
package transaction

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Исходы попытки отправки.
const (
	outcomeConfirmed = "confirmed"
	outcomeSubmitted = "submitted"
	outcomeRejected  = "rejected"
	outcomeTransient = "transient"
	outcomeError     = "error"
)

type Metrics struct {
	attempts          *prometheus.CounterVec
	transientRetries  prometheus.Counter
	confirmLatency    prometheus.Histogram
	durationHistogram prometheus.Histogram
}

// NewMetrics создает метрики. С nil registerer коллекторы работают, но не регистрируются.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "solana_tx_attempts_total",
			Help: "Send attempts by outcome",
		}, []string{"outcome"}),
		transientRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "solana_tx_transient_retries_total",
			Help: "Attempts retried because of an expired or unknown blockhash",
		}),
		confirmLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "solana_tx_confirmation_seconds",
			Help:    "Time from submission to confirmation",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
		durationHistogram: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "solana_tx_duration_seconds",
			Help:    "Duration of a logical operation including retries",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
		}),
	}
}

func (tm *Metrics) TrackTransaction(start time.Time) {
	tm.durationHistogram.Observe(time.Since(start).Seconds())
}

func (tm *Metrics) observeAttempt(rec *SendRecord) {
	outcome := outcomeError
	switch {
	case rec.Confirmed:
		outcome = outcomeConfirmed
	case rec.Err == nil && rec.Signature != nil:
		outcome = outcomeSubmitted
	case IsTransient(rec.Err):
		outcome = outcomeTransient
		tm.transientRetries.Inc()
	case isProgramError(rec.Err):
		outcome = outcomeRejected
	}
	tm.attempts.WithLabelValues(outcome).Inc()
}

func (tm *Metrics) observeConfirmation(submitted time.Time) {
	tm.confirmLatency.Observe(time.Since(submitted).Seconds())
}
