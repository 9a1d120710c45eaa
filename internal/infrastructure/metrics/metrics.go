package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Credit facility metrics
	FacilitiesCreated   prometheus.Counter
	FacilitiesActivated prometheus.Counter
	FacilitiesMatured   prometheus.Counter
	FacilitiesCompleted prometheus.Counter
	FacilityAmount      prometheus.Histogram
	Collateralization   *prometheus.CounterVec

	// Disbursal metrics
	DisbursalsInitiated prometheus.Counter
	DisbursalsSettled   prometheus.Counter
	DisbursalsCancelled prometheus.Counter
	DisbursalAmount     prometheus.Histogram

	// Payment metrics
	PaymentsRecorded   prometheus.Counter
	PaymentAmount      prometheus.Histogram
	PaymentAllocations *prometheus.CounterVec
	PaymentDuration    prometheus.Histogram

	// Obligation metrics
	ObligationsCreated    *prometheus.CounterVec
	ObligationTransitions *prometheus.CounterVec

	// Governance metrics
	ApprovalVotes      *prometheus.CounterVec
	ApprovalsConcluded *prometheus.CounterVec

	// Use case metrics
	UseCaseErrors  *prometheus.CounterVec
	UseCaseRetries *prometheus.CounterVec

	// External ledger metrics
	LedgerRequests *prometheus.CounterVec
	LedgerDuration *prometheus.HistogramVec
	LedgerBreaker  *prometheus.GaugeVec

	// Outbox and job metrics
	OutboxPublished *prometheus.CounterVec
	OutboxErrors    *prometheus.CounterVec
	JobRuns         *prometheus.CounterVec
	JobDuration     *prometheus.HistogramVec

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Redis metrics
	RedisOperations *prometheus.CounterVec
	RedisErrors     *prometheus.CounterVec

	// Authentication metrics
	AuthAttempts *prometheus.CounterVec
	AuthFailures *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec

	// Audit metrics
	AuditLogsCreated *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	amountBuckets := []float64{100, 1000, 10000, 100000, 1000000, 10000000}

	return &Metrics{
		// Credit facility metrics
		FacilitiesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gocredit_facilities_created_total",
			Help: "Total number of credit facilities created",
		}),
		FacilitiesActivated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gocredit_facilities_activated_total",
			Help: "Total number of credit facilities activated",
		}),
		FacilitiesMatured: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gocredit_facilities_matured_total",
			Help: "Total number of credit facilities that reached maturity",
		}),
		FacilitiesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gocredit_facilities_completed_total",
			Help: "Total number of credit facilities closed after full repayment",
		}),
		FacilityAmount: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gocredit_facility_amount",
			Help:    "Credit facility limits",
			Buckets: amountBuckets,
		}),
		Collateralization: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gocredit_collateralization_changes_total",
				Help: "Collateralization state changes by new state",
			},
			[]string{"state"},
		),

		// Disbursal metrics
		DisbursalsInitiated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gocredit_disbursals_initiated_total",
			Help: "Total number of disbursals initiated",
		}),
		DisbursalsSettled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gocredit_disbursals_settled_total",
			Help: "Total number of disbursals settled",
		}),
		DisbursalsCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gocredit_disbursals_cancelled_total",
			Help: "Total number of disbursals cancelled after denial",
		}),
		DisbursalAmount: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gocredit_disbursal_amount",
			Help:    "Disbursal amounts",
			Buckets: amountBuckets,
		}),

		// Payment metrics
		PaymentsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gocredit_payments_recorded_total",
			Help: "Total number of payments recorded",
		}),
		PaymentAmount: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gocredit_payment_amount",
			Help:    "Payment amounts",
			Buckets: amountBuckets,
		}),
		PaymentAllocations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gocredit_payment_allocations_total",
				Help: "Payment allocations by obligation type",
			},
			[]string{"obligation_type"},
		),
		PaymentDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gocredit_payment_duration_seconds",
			Help:    "Duration of payment recording",
			Buckets: prometheus.DefBuckets,
		}),

		// Obligation metrics
		ObligationsCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gocredit_obligations_created_total",
				Help: "Obligations created by type",
			},
			[]string{"type"},
		),
		ObligationTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gocredit_obligation_transitions_total",
				Help: "Obligation status transitions by new status",
			},
			[]string{"status"},
		),

		// Governance metrics
		ApprovalVotes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gocredit_approval_votes_total",
				Help: "Approval votes by process type and vote",
			},
			[]string{"process_type", "vote"},
		),
		ApprovalsConcluded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gocredit_approvals_concluded_total",
				Help: "Concluded approval processes by process type and outcome",
			},
			[]string{"process_type", "outcome"},
		),

		// Use case metrics
		UseCaseErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gocredit_usecase_errors_total",
				Help: "Use case failures by operation",
			},
			[]string{"operation"},
		),
		UseCaseRetries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gocredit_usecase_retries_total",
				Help: "Use case retries after concurrency conflicts",
			},
			[]string{"reason"},
		),

		// External ledger metrics
		LedgerRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gocredit_ledger_requests_total",
				Help: "External ledger requests by operation and status",
			},
			[]string{"operation", "status"},
		),
		LedgerDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gocredit_ledger_duration_seconds",
				Help:    "External ledger request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		LedgerBreaker: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gocredit_ledger_breaker_state",
				Help: "External ledger circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"name"},
		),

		// Outbox and job metrics
		OutboxPublished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gocredit_outbox_published_total",
				Help: "Outbox events published by event type",
			},
			[]string{"event_type"},
		),
		OutboxErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gocredit_outbox_errors_total",
				Help: "Outbox publishing failures by event type",
			},
			[]string{"event_type"},
		),
		JobRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gocredit_job_runs_total",
				Help: "Background job runs by job and status",
			},
			[]string{"job", "status"},
		),
		JobDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gocredit_job_duration_seconds",
				Help:    "Background job run duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"job"},
		),

		// API metrics
		HTTPRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gocredit_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gocredit_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		// Redis metrics
		RedisOperations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gocredit_redis_operations_total",
				Help: "Total Redis operations",
			},
			[]string{"operation"},
		),
		RedisErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gocredit_redis_errors_total",
				Help: "Total Redis errors",
			},
			[]string{"operation"},
		),

		// Authentication metrics
		AuthAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gocredit_auth_attempts_total",
				Help: "Total authentication attempts",
			},
			[]string{"status"},
		),
		AuthFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gocredit_auth_failures_total",
				Help: "Total authentication failures",
			},
			[]string{"reason"},
		),

		// Rate limiting metrics
		RateLimitHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gocredit_rate_limit_hits_total",
				Help: "Total rate limit hits",
			},
			[]string{"ip"},
		),

		// Audit metrics
		AuditLogsCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gocredit_audit_logs_total",
				Help: "Total audit logs created",
			},
			[]string{"action", "status"},
		),
	}
}
