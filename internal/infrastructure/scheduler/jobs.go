package scheduler

import (
	"context"
	"time"

	"github.com/iho/gocredit/internal/domain"
)

// Job names used in logs and metrics.
const (
	JobFacilityMaturity     = "facility_maturity"
	JobObligationTransition = "obligation_transition"
	JobCollateralRefresh    = "collateral_refresh"
	JobFacilityHistory      = "facility_history"
)

// MaturityProcessor expires facilities past their maturity date.
type MaturityProcessor interface {
	ProcessMaturity(ctx context.Context, now time.Time) (int, error)
}

// ObligationProcessor moves obligations between status buckets.
type ObligationProcessor interface {
	ProcessTransitions(ctx context.Context, now time.Time) (int, error)
}

// CollateralRefresher re-evaluates collateralization at the current price.
type CollateralRefresher interface {
	RefreshCollateralization(ctx context.Context) (int, error)
}

// HistoryProjector follows the outbox into the facility history.
type HistoryProjector interface {
	Project(ctx context.Context, batchSize int) (int, error)
}

// MaturityJob expires matured facilities.
func MaturityJob(p MaturityProcessor, interval time.Duration) Job {
	return Job{
		Name:     JobFacilityMaturity,
		Interval: interval,
		Run: func(ctx context.Context) (int, error) {
			return p.ProcessMaturity(systemContext(ctx), time.Now().UTC())
		},
	}
}

// ObligationJob records effective obligation transitions.
func ObligationJob(p ObligationProcessor, interval time.Duration) Job {
	return Job{
		Name:     JobObligationTransition,
		Interval: interval,
		Run: func(ctx context.Context) (int, error) {
			return p.ProcessTransitions(systemContext(ctx), time.Now().UTC())
		},
	}
}

// CollateralJob refreshes collateralization so price moves surface without a
// price update.
func CollateralJob(r CollateralRefresher, interval time.Duration) Job {
	return Job{
		Name:     JobCollateralRefresh,
		Interval: interval,
		Run: func(ctx context.Context) (int, error) {
			return r.RefreshCollateralization(systemContext(ctx))
		},
	}
}

// HistoryJob advances the facility history projection.
func HistoryJob(p HistoryProjector, interval time.Duration, batchSize int) Job {
	return Job{
		Name:     JobFacilityHistory,
		Interval: interval,
		Run: func(ctx context.Context) (int, error) {
			return p.Project(systemContext(ctx), batchSize)
		},
	}
}

func systemContext(ctx context.Context) context.Context {
	return domain.ContextWithUser(ctx, domain.SystemUser())
}
