package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BatchRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_batch_runs_total",
		Help: "Weekly payment batch runs by final status.",
	}, []string{"status"})

	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_batch_duration_seconds",
		Help:    "Wall time of one payment batch run.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	Payouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swish_payouts_total",
		Help: "Swish payout attempts by outcome.",
	}, []string{"status"})

	PayoutAmountSEK = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swish_payout_amount_sek_total",
		Help: "Sum of successfully paid out cashback in SEK.",
	})

	RewardsCalculated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reward_calculations_total",
		Help: "Reward calculations recorded for verified feedback.",
	})
)
