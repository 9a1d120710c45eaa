package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/gocredit/internal/domain"
	"github.com/iho/gocredit/internal/infrastructure/metrics"
)

// facilityBook holds the steps shared by every use case that moves a facility
// forward: ledger postings, disbursal outcomes, activation and the
// collateralization view. All methods run inside the caller's transaction and
// leave persisting the facility to the caller.
type facilityBook struct {
	disbursalRepo  DisbursalRepository
	obligationRepo ObligationRepository
	ledger         LedgerClient
	prices         PriceProvider
	outbox         outbox
	logger         zerolog.Logger
	metrics        *metrics.Metrics
}

// post sends a posting to the external ledger and returns its transaction id.
func (b *facilityBook) post(ctx context.Context, posting domain.LedgerPosting) (string, error) {
	if err := posting.Validate(); err != nil {
		return "", err
	}

	start := time.Now()
	txID, err := b.ledger.Post(ctx, posting)
	if b.metrics != nil {
		b.metrics.LedgerDuration.WithLabelValues("post").Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if b.metrics != nil {
			b.metrics.LedgerRequests.WithLabelValues("post", "error").Inc()
		}
		return "", fmt.Errorf("post %s: %w", posting.Reference, err)
	}
	if b.metrics != nil {
		b.metrics.LedgerRequests.WithLabelValues("post", "ok").Inc()
	}

	b.logger.Debug().
		Str("reference", posting.Reference).
		Str("ledger_tx_id", txID).
		Int("transfers", len(posting.Transfers)).
		Msg("ledger posting accepted")

	return txID, nil
}

// concludeDisbursal applies an approval outcome to d. An approved disbursal
// is paid out and its obligation is created; a denied one is cancelled. The
// disbursal itself is persisted by the caller.
func (b *facilityBook) concludeDisbursal(
	ctx context.Context,
	tx Transaction,
	facility *domain.CreditFacility,
	disbursal *domain.Disbursal,
	approved bool,
	now time.Time,
	audit domain.AuditInfo,
) (domain.Idempotent[*domain.NewObligation], error) {
	// Money only moves while the disbursal is still undecided. Replays are
	// resolved by the aggregate without posting.
	ledgerTxID := ""
	if approved && disbursal.Status() == domain.DisbursalStatusNew {
		var err error
		ledgerTxID, err = b.post(ctx, disbursal.SettlementPosting())
		if err != nil {
			return domain.Ignored[*domain.NewObligation](), err
		}
	}

	result, err := disbursal.ApprovalProcessConcluded(ledgerTxID, approved, now, audit)
	if err != nil || result.WasIgnored() {
		return result, err
	}

	facility.DisbursalConcluded(disbursal.ID, approved, audit)

	if !approved {
		if b.metrics != nil {
			b.metrics.DisbursalsCancelled.Inc()
		}
		return result, b.outbox.emit(ctx, tx, domain.AggregateTypeDisbursal, disbursal.ID, domain.OutboxEventDisbursalCancelled, map[string]any{
			"disbursal_id": disbursal.ID,
			"facility_id":  facility.ID,
			"amount":       disbursal.Amount.String(),
		})
	}

	newObligation := result.Value()
	obligation, err := domain.CreateObligation(*newObligation, audit)
	if err != nil {
		return domain.Ignored[*domain.NewObligation](), err
	}
	if err := b.obligationRepo.Create(ctx, tx, obligation); err != nil {
		return domain.Ignored[*domain.NewObligation](), err
	}
	facility.ObligationRecorded(*newObligation, audit)

	if b.metrics != nil {
		b.metrics.DisbursalsSettled.Inc()
		b.metrics.DisbursalAmount.Observe(disbursal.Amount.InexactFloat64())
		b.metrics.ObligationsCreated.WithLabelValues(string(obligation.Type)).Inc()
	}

	return result, b.outbox.emit(ctx, tx, domain.AggregateTypeDisbursal, disbursal.ID, domain.OutboxEventDisbursalSettled, map[string]any{
		"disbursal_id":  disbursal.ID,
		"facility_id":   facility.ID,
		"obligation_id": obligation.ID,
		"amount":        disbursal.Amount.String(),
		"ledger_tx_id":  ledgerTxID,
		"due_date":      obligation.DueDate.Format(time.RFC3339),
	})
}

// activate turns an approved, fully collateralized facility active. It
// reports false when the facility is not ready yet.
func (b *facilityBook) activate(
	ctx context.Context,
	tx Transaction,
	facility *domain.CreditFacility,
	price decimal.Decimal,
	now time.Time,
	audit domain.AuditInfo,
) (bool, error) {
	if facility.IsActivated() || facility.Status() != domain.CreditFacilityStatusPendingApproval {
		return false, nil
	}
	if approved, ok := facility.Approved(); !ok || !approved {
		return false, nil
	}

	result, err := facility.Activate(now, price, audit)
	if errors.Is(err, domain.ErrFacilityUndercollateralized) {
		return false, nil
	}
	if err != nil || result.WasIgnored() {
		return false, err
	}

	activation := result.Value()
	ledgerTxID, err := b.post(ctx, activation.Posting)
	if err != nil {
		return false, err
	}

	if activation.InitialDisbursal != nil {
		disbursal, err := domain.CreateDisbursal(*activation.InitialDisbursal, audit)
		if err != nil {
			return false, err
		}
		if _, err := b.concludeDisbursal(ctx, tx, facility, disbursal, true, now, audit); err != nil {
			return false, err
		}
		if err := b.disbursalRepo.Create(ctx, tx, disbursal); err != nil {
			return false, err
		}
		if b.metrics != nil {
			b.metrics.DisbursalsInitiated.Inc()
		}
	}

	if b.metrics != nil {
		b.metrics.FacilitiesActivated.Inc()
	}

	b.logger.Info().
		Str("facility_id", facility.ID).
		Str("ledger_tx_id", ledgerTxID).
		Time("matures_at", *facility.MaturesAt()).
		Msg("credit facility activated")

	return true, b.outbox.emit(ctx, tx, domain.AggregateTypeCreditFacility, facility.ID, domain.OutboxEventFacilityActivated, map[string]any{
		"facility_id":       facility.ID,
		"customer_id":       facility.CustomerID,
		"amount":            facility.Amount.String(),
		"initial_disbursal": facility.InitialDisbursal.String(),
		"ledger_tx_id":      ledgerTxID,
		"matures_at":        facility.MaturesAt().Format(time.RFC3339),
	})
}

// balance loads the facility's obligations as stored in tx.
func (b *facilityBook) balance(ctx context.Context, tx Transaction, facility *domain.CreditFacility) (domain.FacilityBalance, error) {
	obligations, err := b.obligationRepo.ListByFacilityTx(ctx, tx, facility.ID)
	if err != nil {
		return domain.FacilityBalance{}, err
	}
	return facility.Balance(obligations), nil
}

// refreshCollateralization records a new collateralization state when the
// price or the balance moved the facility across a threshold.
func (b *facilityBook) refreshCollateralization(
	ctx context.Context,
	tx Transaction,
	facility *domain.CreditFacility,
	price decimal.Decimal,
	audit domain.AuditInfo,
) error {
	balance, err := b.balance(ctx, tx, facility)
	if err != nil {
		return err
	}

	changed := facility.UpdateCollateralizationState(price, balance, audit)
	if changed.WasIgnored() {
		return nil
	}

	state := changed.Value()
	if b.metrics != nil {
		b.metrics.Collateralization.WithLabelValues(string(state)).Inc()
	}
	if state == domain.CollateralizationUnderMarginCallThreshold || state == domain.CollateralizationUnderLiquidationThreshold {
		b.logger.Warn().
			Str("facility_id", facility.ID).
			Str("state", string(state)).
			Str("collateral", facility.Collateral().String()).
			Str("outstanding", balance.TotalOutstanding().String()).
			Str("price", price.String()).
			Msg("credit facility collateralization deteriorated")
	}

	return b.outbox.emit(ctx, tx, domain.AggregateTypeCreditFacility, facility.ID, domain.OutboxEventFacilityCollateralization, map[string]any{
		"facility_id": facility.ID,
		"state":       string(state),
		"collateral":  facility.Collateral().String(),
		"outstanding": balance.TotalOutstanding().String(),
		"price":       price.String(),
	})
}

// complete closes an expired facility once nothing is outstanding. It
// reports false while money is still owed.
func (b *facilityBook) complete(ctx context.Context, tx Transaction, facility *domain.CreditFacility, audit domain.AuditInfo) (bool, error) {
	if facility.Status() != domain.CreditFacilityStatusExpired {
		return false, nil
	}

	balance, err := b.balance(ctx, tx, facility)
	if err != nil {
		return false, err
	}
	if !balance.TotalOutstanding().IsZero() {
		return false, nil
	}

	result, err := facility.Complete(balance, audit)
	if err != nil || result.WasIgnored() {
		return false, err
	}

	if b.metrics != nil {
		b.metrics.FacilitiesCompleted.Inc()
	}

	b.logger.Info().Str("facility_id", facility.ID).Msg("credit facility completed")

	// The release follows the collateral postings through the outbox so it
	// is never booked ahead of them.
	payload := map[string]any{
		"facility_id": facility.ID,
		"customer_id": facility.CustomerID,
	}
	if release := result.Value(); release != nil {
		payload[domain.OutboxPayloadPosting] = *release
	}
	return true, b.outbox.emit(ctx, tx, domain.AggregateTypeCreditFacility, facility.ID, domain.OutboxEventFacilityCompleted, payload)
}

func (b *facilityBook) currentPrice(ctx context.Context) (decimal.Decimal, error) {
	price, err := b.prices.CurrentPrice(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("collateral price: %w", err)
	}
	return price, nil
}
