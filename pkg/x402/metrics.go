// Package x402 - Prometheus metrics
// Registered on the default registry; serve them with promhttp.Handler.
package x402

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Verification result labels for metricVerifications.
const (
	ResultOK        = "ok"
	ResultInvalid   = "invalid"
	ResultUnderpaid = "underpaid"
	ResultFailed    = "failed"
	ResultReplay    = "replay"
	ResultMalformed = "malformed"
)

var (
	metricChallengesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "x402_challenges_issued_total",
		Help: "Number of 402 payment challenges issued",
	})

	metricVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "x402_verifications_total",
		Help: "Payment authorization verifications by result",
	}, []string{"result"})

	metricRPCFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "x402_rpc_failures_total",
		Help: "Ledger RPC failures observed while verifying payments",
	})

	metricReplayStoreFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "x402_replay_store_failures_total",
		Help: "Replay store errors while recording consumed payments",
	})

	metricPaymentsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "x402_payments_created_total",
		Help: "Payments created and broadcast by clients in this process",
	})

	metricPaymentDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "x402_payment_duration_seconds",
		Help:    "Wall time from building a payment to ledger confirmation",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})
)
