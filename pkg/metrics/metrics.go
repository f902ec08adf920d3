package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "savefi_ledger_build_info",
			Help: "Build information of the SaveFi ledger daemon",
		},
		[]string{"version", "commit", "date"},
	)

	TradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "savefi_ledger_trades_total",
			Help: "Total number of processed trades",
		},
		[]string{"status"},
	)

	TradeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "savefi_ledger_trade_duration_seconds",
			Help:    "Duration of trade pipeline runs",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 0.001s to ~4.1s
		},
	)

	SavingsSkimmedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "savefi_ledger_savings_skimmed_lamports_total",
			Help: "Total lamports skimmed into vaults",
		},
	)

	FeesAccruedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "savefi_ledger_fees_accrued_lamports_total",
			Help: "Total lamports accrued as protocol fees",
		},
	)

	WithdrawalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "savefi_ledger_withdrawals_total",
			Help: "Total number of vault withdrawals",
		},
		[]string{"kind", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "savefi_ledger_http_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "savefi_ledger_http_request_duration_seconds",
			Help:    "Duration of HTTP API requests",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"route"},
	)
)
