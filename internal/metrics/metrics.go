package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Mint lifecycle
	// ============================================
	MintRequestsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasset_mint_requests_submitted_total",
			Help: "Total number of mint request submissions",
		},
		[]string{"vault", "result"},
	)

	MintRequestsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tasset_mint_requests_duplicate_total",
		Help: "Total number of mint submissions that referenced an already-used transaction hash",
	})

	MintExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasset_mint_executions_total",
			Help: "Total number of on-chain mint executions",
		},
		[]string{"vault", "result"},
	)

	ProofGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tasset_proof_generation_duration_seconds",
			Help:    "Proof generation duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"chain", "result"},
	)

	// ============================================
	// Redeem lifecycle
	// ============================================
	RedeemRequestsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasset_redeem_requests_submitted_total",
			Help: "Total number of redeem request submissions",
		},
		[]string{"vault", "result"},
	)

	SettlementUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasset_settlement_updates_total",
			Help: "Total number of settlement status updates applied",
		},
		[]string{"status"},
	)

	SettlementOverdue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tasset_settlement_overdue",
		Help: "Number of pending redeem requests past the settlement SLA",
	})

	// ============================================
	// NATS
	// ============================================
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tasset_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	NATSMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasset_nats_messages_published_total",
			Help: "Total number of NATS lifecycle events published",
		},
		[]string{"subject"},
	)

	NATSMessagesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasset_nats_messages_failed_total",
			Help: "Total number of NATS messages that failed to process",
		},
		[]string{"subject", "error_type"},
	)
)
