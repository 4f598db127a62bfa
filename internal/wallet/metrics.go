package wallet

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type connectorMetrics struct {
	submitted      prometheus.Counter
	confirmed      prometheus.Counter
	confirmFailed  prometheus.Counter
	pollAttempts   prometheus.Counter
	confirmSeconds prometheus.Histogram
}

var (
	metricsOnce sync.Once
	metricsInst *connectorMetrics
)

// sharedMetrics registers the connector metrics on the default registerer
// exactly once; all connectors in a process share them.
func sharedMetrics() *connectorMetrics {
	metricsOnce.Do(func() {
		m := &connectorMetrics{
			submitted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "dapp_wallet_transactions_submitted_total",
				Help: "Transactions submitted to the wallet provider.",
			}),
			confirmed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "dapp_wallet_transactions_confirmed_total",
				Help: "Transactions confirmed with a receipt.",
			}),
			confirmFailed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "dapp_wallet_confirmations_failed_total",
				Help: "Confirmation waits that ended without a receipt.",
			}),
			pollAttempts: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "dapp_wallet_receipt_polls_total",
				Help: "Receipt poll attempts across all confirmation waits.",
			}),
			confirmSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "dapp_wallet_confirmation_seconds",
				Help:    "Wall-clock time from submission to receipt.",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
			}),
		}
		prometheus.MustRegister(m.submitted, m.confirmed, m.confirmFailed, m.pollAttempts, m.confirmSeconds)
		metricsInst = m
	})
	return metricsInst
}
