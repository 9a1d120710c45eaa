package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/gocredit/internal/domain"
	"github.com/iho/gocredit/internal/usecase"
)

var errCommitLost = errors.New("connection lost during commit")

func TestCreditFacilityUseCase_Create(t *testing.T) {
	tests := []struct {
		name      string
		input     usecase.CreateFacilityInput
		errorType error
	}{
		{
			name: "valid facility",
			input: usecase.CreateFacilityInput{
				CustomerID:       "customer-1",
				DepositAccountID: "deposit-1",
				Amount:           decimal.NewFromInt(10000),
				Terms:            testTerms(),
			},
		},
		{
			name: "reject zero amount",
			input: usecase.CreateFacilityInput{
				CustomerID:       "customer-1",
				DepositAccountID: "deposit-1",
				Amount:           decimal.Zero,
				Terms:            testTerms(),
			},
			errorType: domain.ErrInvalidAmount,
		},
		{
			name: "reject initial disbursal above amount",
			input: usecase.CreateFacilityInput{
				CustomerID:       "customer-1",
				DepositAccountID: "deposit-1",
				Amount:           decimal.NewFromInt(100),
				InitialDisbursal: decimal.NewFromInt(200),
				Terms:            testTerms(),
			},
			errorType: domain.ErrDisbursalExceedsFacilityAmount,
		},
		{
			name: "reject terms with inverted thresholds",
			input: usecase.CreateFacilityInput{
				CustomerID:       "customer-1",
				DepositAccountID: "deposit-1",
				Amount:           decimal.NewFromInt(10000),
				Terms: domain.TermValues{
					DurationMonths: 12,
					InitialCVL:     decimal.NewFromInt(110),
					MarginCallCVL:  decimal.NewFromInt(120),
					LiquidationCVL: decimal.NewFromInt(105),
				},
			},
			errorType: domain.ErrInvalidTerms,
		},
		{
			name: "reject malformed customer id",
			input: usecase.CreateFacilityInput{
				CustomerID:       "customer 1",
				DepositAccountID: "deposit-1",
				Amount:           decimal.NewFromInt(10000),
				Terms:            testTerms(),
			},
			errorType: domain.ErrInvalidIDFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			facility, err := h.facilityUC.Create(as(operator), tt.input)
			if tt.errorType != nil {
				require.ErrorIs(t, err, tt.errorType)
				assert.Empty(t, h.outbox.EventsOfType(domain.OutboxEventFacilityCreated))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, domain.CreditFacilityStatusPendingCollateralization, facility.Status())
			assert.Equal(t, "acct-credit-facility-"+facility.ID+"-facility", facility.Accounts.Facility)
			assert.Equal(t, "facility-omnibus", facility.Accounts.FacilityOmnibus)
			assert.Equal(t, "deposit-1", facility.Accounts.Deposit)
			assert.Equal(t, 1, facility.Version())

			process, err := h.processes.GetByID(context.Background(), facility.ApprovalProcessID)
			require.NoError(t, err)
			assert.Equal(t, domain.ApprovalProcessStatusApproved, process.Status())
			assert.Equal(t, facility.ID, process.TargetRef)

			assert.Len(t, h.outbox.EventsOfType(domain.OutboxEventFacilityCreated), 1)
			assert.Len(t, h.outbox.EventsOfType(domain.OutboxEventApprovalConcluded), 1)
			assert.Contains(t, h.authorizer.Actions, domain.AuditActionFacilityCreate)
		})
	}
}

func TestCreditFacilityUseCase_ActivationRequiresApprovalAndCollateral(t *testing.T) {
	h := newHarness(t)
	facility := h.createFacility(0)

	// Collateral first: fully collateralized but not approved yet.
	facility, err := h.facilityUC.UpdateCollateral(as(operator), facility.ID, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Equal(t, domain.CreditFacilityStatusPendingApproval, facility.Status())
	assert.False(t, facility.IsActivated())

	h.deliver()

	facility = h.reload(facility.ID)
	assert.Equal(t, domain.CreditFacilityStatusActive, facility.Status())
	assert.Contains(t, h.postingRefs(), domain.ActivationLedgerReference(facility.ID))
	assert.Len(t, h.outbox.EventsOfType(domain.OutboxEventFacilityActivated), 1)
}

func TestCreditFacilityUseCase_ActivationWithInitialDisbursal(t *testing.T) {
	h := newHarness(t)
	facility := h.activeFacility(1000)

	disbursals, err := h.facilityUC.ListDisbursals(as(viewer), facility.ID)
	require.NoError(t, err)
	require.Len(t, disbursals, 1)

	disbursal := disbursals[0]
	assert.Equal(t, domain.DisbursalStatusConfirmed, disbursal.Status())
	assert.Equal(t, facility.ApprovalProcessID, disbursal.ApprovalProcessID)
	assert.True(t, disbursal.Amount.Equal(decimal.NewFromInt(1000)))
	assert.Contains(t, h.postingRefs(), domain.DisbursalLedgerReference(disbursal.ID))

	view, err := h.facilityUC.Get(as(viewer), facility.ID)
	require.NoError(t, err)
	require.Len(t, view.Obligations, 1)
	assert.Equal(t, disbursal.ID, view.Obligations[0].ID)
	assert.True(t, view.Balance.DisbursalOutstanding.Equal(decimal.NewFromInt(1000)))
	assert.True(t, view.Balance.NotYetDue.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, domain.CollateralizationFullyCollateralized, view.Collateralization)
	require.NotNil(t, view.CVL)
	assert.True(t, view.CVL.Equal(decimal.NewFromInt(5000)))
}

func TestCreditFacilityUseCase_UndercollateralizedStaysPending(t *testing.T) {
	h := newHarness(t)
	facility := h.createFacility(0)
	h.deliver()

	// 0.25 units at 50000 cover 125% of 10000, below the 140% initial CVL.
	facility, err := h.facilityUC.UpdateCollateral(as(operator), facility.ID, decimal.RequireFromString("0.25"))
	require.NoError(t, err)
	assert.Equal(t, domain.CreditFacilityStatusPendingCollateralization, facility.Status())
	assert.Equal(t, domain.CollateralizationUnderMarginCallThreshold, facility.CollateralizationState())
	assert.NotContains(t, h.postingRefs(), domain.ActivationLedgerReference(facility.ID))

	// A price rise completes the requirements.
	changed, err := h.facilityUC.SetCollateralPrice(as(admin), decimal.NewFromInt(100000))
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	assert.Equal(t, domain.CreditFacilityStatusActive, h.reload(facility.ID).Status())
}

func TestCreditFacilityUseCase_UpdateCollateralIsIdempotent(t *testing.T) {
	h := newHarness(t)
	facility := h.createFacility(0)

	_, err := h.facilityUC.UpdateCollateral(as(operator), facility.ID, decimal.NewFromInt(1))
	require.NoError(t, err)
	h.deliver()
	posted := len(h.postingRefs())

	facility, err = h.facilityUC.UpdateCollateral(as(operator), facility.ID, decimal.NewFromInt(1))
	require.NoError(t, err)
	h.deliver()
	assert.Len(t, h.postingRefs(), posted)
	assert.Len(t, h.outbox.EventsOfType(domain.OutboxEventFacilityCollateralUpdated), 1)
	assert.True(t, facility.Collateral().Equal(decimal.NewFromInt(1)))
}

func TestCreditFacilityUseCase_DeniedFacilityCloses(t *testing.T) {
	h := newHarness(t)
	committee, err := h.approvalUC.CreateCommittee(as(admin), "credit", []string{"alice"})
	require.NoError(t, err)
	_, err = h.approvalUC.SetPolicy(as(admin), usecase.SetPolicyInput{
		ProcessType: domain.ApprovalProcessTypeCreditFacility,
		Rules:       domain.CommitteeThreshold(1),
		CommitteeID: committee.ID,
	})
	require.NoError(t, err)

	facility := h.createFacility(0)
	assert.Empty(t, h.outbox.EventsOfType(domain.OutboxEventApprovalConcluded))

	_, err = h.approvalUC.Deny(as(&domain.User{ID: "alice", Role: domain.RoleOperator}), facility.ApprovalProcessID, "insufficient income")
	require.NoError(t, err)
	h.deliver()

	facility = h.reload(facility.ID)
	assert.Equal(t, domain.CreditFacilityStatusClosed, facility.Status())

	_, err = h.facilityUC.UpdateCollateral(as(operator), facility.ID, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, domain.ErrFacilityClosed)
}

func TestCreditFacilityUseCase_ConflictingApprovalOutcome(t *testing.T) {
	h := newHarness(t)
	facility := h.createFacility(0)
	h.deliver()

	_, err := h.facilityUC.ApplyApprovalOutcome(as(admin), facility.ID, false)
	require.ErrorIs(t, err, domain.ErrInconsistentIdempotency)

	// The same outcome again is a no-op.
	before := h.reload(facility.ID).Version()
	_, err = h.facilityUC.ApplyApprovalOutcome(as(admin), facility.ID, true)
	require.NoError(t, err)
	assert.Equal(t, before, h.reload(facility.ID).Version())
}

func TestCreditFacilityUseCase_RecordInterest(t *testing.T) {
	h := newHarness(t)
	facility := h.activeFacility(1000)
	periodEnd := time.Now().UTC().AddDate(0, 1, 0).Truncate(time.Second)

	facility, err := h.facilityUC.RecordInterest(as(operator), facility.ID, decimal.NewFromInt(10), periodEnd)
	require.NoError(t, err)

	view, err := h.facilityUC.Get(as(viewer), facility.ID)
	require.NoError(t, err)
	assert.True(t, view.Balance.InterestOutstanding.Equal(decimal.NewFromInt(10)))
	assert.Len(t, h.outbox.EventsOfType(domain.OutboxEventFacilityInterestAccrued), 1)

	// The same period is booked once.
	_, err = h.facilityUC.RecordInterest(as(operator), facility.ID, decimal.NewFromInt(10), periodEnd)
	require.NoError(t, err)
	view, err = h.facilityUC.Get(as(viewer), facility.ID)
	require.NoError(t, err)
	assert.True(t, view.Balance.InterestOutstanding.Equal(decimal.NewFromInt(10)))
}

func TestCreditFacilityUseCase_RecordInterestRequiresActiveFacility(t *testing.T) {
	h := newHarness(t)
	facility := h.createFacility(0)

	_, err := h.facilityUC.RecordInterest(as(operator), facility.ID, decimal.NewFromInt(10), time.Now().UTC())
	assert.ErrorIs(t, err, domain.ErrFacilityNotActive)
}

func TestCreditFacilityUseCase_ProcessMaturity(t *testing.T) {
	h := newHarness(t)
	facility := h.activeFacility(1000)
	maturesAt := h.maturity(facility)

	matured, err := h.facilityUC.ProcessMaturity(context.Background(), maturesAt.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, matured)

	matured, err = h.facilityUC.ProcessMaturity(context.Background(), maturesAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, matured)

	// Money is still owed, so the facility expires without closing.
	facility = h.reload(facility.ID)
	assert.Equal(t, domain.CreditFacilityStatusExpired, facility.Status())
	assert.Len(t, h.outbox.EventsOfType(domain.OutboxEventFacilityMatured), 1)
	assert.Empty(t, h.outbox.EventsOfType(domain.OutboxEventFacilityCompleted))

	matured, err = h.facilityUC.ProcessMaturity(context.Background(), maturesAt.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, matured)
}

func TestCreditFacilityUseCase_ProcessMaturityClosesRepaidFacility(t *testing.T) {
	h := newHarness(t)
	facility := h.activeFacility(0)
	maturesAt := h.maturity(facility)

	matured, err := h.facilityUC.ProcessMaturity(context.Background(), maturesAt)
	require.NoError(t, err)
	assert.Equal(t, 1, matured)

	facility = h.reload(facility.ID)
	assert.Equal(t, domain.CreditFacilityStatusClosed, facility.Status())
	assert.True(t, facility.Collateral().IsZero())
	assert.Len(t, h.outbox.EventsOfType(domain.OutboxEventFacilityCompleted), 1)
}

func TestCreditFacilityUseCase_PriceDropRecordsMarginCall(t *testing.T) {
	h := newHarness(t)
	facility := h.activeFacility(10000)

	// 1 unit at 12000 against 10000 outstanding is a CVL of 120.
	changed, err := h.facilityUC.SetCollateralPrice(as(admin), decimal.NewFromInt(12000))
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	facility = h.reload(facility.ID)
	assert.Equal(t, domain.CollateralizationUnderMarginCallThreshold, facility.CollateralizationState())

	events := h.outbox.EventsOfType(domain.OutboxEventFacilityCollateralization)
	require.NotEmpty(t, events)
	assert.Equal(t, string(domain.CollateralizationUnderMarginCallThreshold), events[len(events)-1].PayloadString("state"))

	// Refreshing at an unchanged price records nothing.
	changed, err = h.facilityUC.RefreshCollateralization(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, changed)
}

func TestCreditFacilityUseCase_SetCollateralPriceRequiresAdmin(t *testing.T) {
	h := newHarness(t)
	h.authorizer.EnforceFunc = func(ctx context.Context, tx usecase.Transaction, object domain.AuditObject, resourceID string, action domain.AuditAction) (domain.AuditInfo, error) {
		if !domain.UserFromContext(ctx).Role.Allows(action) {
			return domain.AuditInfo{}, domain.ErrInsufficientRole
		}
		return domain.AuditInfo{EntryID: "audit", Subject: domain.UserFromContext(ctx).ID, RecordedAt: time.Now().UTC()}, nil
	}

	_, err := h.facilityUC.SetCollateralPrice(as(operator), decimal.NewFromInt(1))
	assert.ErrorIs(t, err, domain.ErrInsufficientRole)

	_, err = h.facilityUC.SetCollateralPrice(as(admin), decimal.Zero)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestCreditFacilityUseCase_List(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		h.createFacility(0)
	}

	page, err := h.facilityUC.List(as(viewer), 2, 0)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	page, err = h.facilityUC.List(as(viewer), 2, 2)
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestCreditFacilityUseCase_RetriesConcurrentModification(t *testing.T) {
	h := newHarnessWithRetrier(t, conflictRetrier(t))
	facility := h.createFacility(1000)
	h.deliver()

	store := h.facilities
	conflicts := 1
	store.GetByIDTxFunc = func(ctx context.Context, tx usecase.Transaction, id string) (*domain.CreditFacility, error) {
		if conflicts > 0 {
			conflicts--
			return nil, domain.ErrConcurrentModification
		}
		return store.GetByID(ctx, id)
	}

	facility, err := h.facilityUC.UpdateCollateral(as(operator), facility.ID, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Equal(t, domain.CreditFacilityStatusActive, facility.Status())
	assert.Equal(t, 1, h.txManager.Begun-h.txManager.Committed)
	assert.Zero(t, conflicts)
}

func TestCreditFacilityUseCase_ActivationRedeliveredAfterFailedCommit(t *testing.T) {
	h := newHarness(t)
	h.track()
	facility := h.createFacility(1000)

	_, err := h.facilityUC.UpdateCollateral(as(operator), facility.ID, decimal.NewFromInt(1))
	require.NoError(t, err)
	updated := h.outbox.EventsOfType(domain.OutboxEventFacilityCollateralUpdated)
	require.Len(t, updated, 1)
	updateID := updated[0].PayloadString("update_id")

	// The activation reaches the ledger but its transaction never commits.
	h.txManager.FailCommits(1, errCommitLost)
	require.ErrorIs(t, h.deliverOnce(), errCommitLost)
	assert.Equal(t, domain.CreditFacilityStatusPendingApproval, h.reload(facility.ID).Status())
	refs := h.postingRefs()

	h.deliver()

	facility = h.reload(facility.ID)
	assert.Equal(t, domain.CreditFacilityStatusActive, facility.Status())
	assert.ElementsMatch(t, refs, h.postingRefs())
	assert.ElementsMatch(t, []string{
		domain.CollateralLedgerReference(updateID),
		domain.ActivationLedgerReference(facility.ID),
		domain.DisbursalLedgerReference(domain.InitialDisbursalID(facility.ID)),
	}, h.postingRefs())
	assert.True(t, h.ledgerBalance("deposit-1").Equal(decimal.NewFromInt(1000)))
	assert.True(t, h.ledgerBalance(facility.Accounts.Collateral).Equal(decimal.NewFromInt(1)))

	disbursals, err := h.facilityUC.ListDisbursals(as(viewer), facility.ID)
	require.NoError(t, err)
	assert.Len(t, disbursals, 1)
	assert.Len(t, h.outbox.EventsOfType(domain.OutboxEventFacilityActivated), 1)
}

func TestCreditFacilityUseCase_RecordInterestRetriedAfterFailedCommit(t *testing.T) {
	h := newHarness(t)
	h.track()
	facility := h.activeFacility(1000)
	h.deliver()
	periodEnd := time.Now().UTC().AddDate(0, 1, 0).Truncate(time.Second)
	interestRef := domain.InterestLedgerReference(domain.InterestObligationID(facility.ID, periodEnd))

	h.txManager.FailCommits(1, errCommitLost)
	_, err := h.facilityUC.RecordInterest(as(operator), facility.ID, decimal.NewFromInt(10), periodEnd)
	require.ErrorIs(t, err, errCommitLost)
	assert.Empty(t, h.outbox.EventsOfType(domain.OutboxEventFacilityInterestAccrued))
	h.deliver()
	refs := h.postingRefs()
	assert.NotContains(t, refs, interestRef)

	for i := 0; i < 2; i++ {
		_, err = h.facilityUC.RecordInterest(as(operator), facility.ID, decimal.NewFromInt(10), periodEnd)
		require.NoError(t, err)
		h.deliver()
	}

	assert.ElementsMatch(t, append(refs, interestRef), h.postingRefs())
	assert.True(t, h.ledgerBalance(facility.Accounts.InterestIncome).Equal(decimal.NewFromInt(10)))
	assert.Len(t, h.outbox.EventsOfType(domain.OutboxEventFacilityInterestAccrued), 1)
}

func TestCreditFacilityUseCase_ConcurrentCollateralUpdatesKeepLedgerInStep(t *testing.T) {
	h := newHarnessWithRetrier(t, conflictRetrier(t))
	h.track()
	facility := h.activeFacility(0)
	h.deliver()

	// The first attempt works on a copy read before another writer set 20.
	stale := h.reload(facility.ID)
	_, err := h.facilityUC.UpdateCollateral(as(operator), facility.ID, decimal.NewFromInt(20))
	require.NoError(t, err)

	store := h.facilities
	reads := 0
	store.GetByIDTxFunc = func(ctx context.Context, tx usecase.Transaction, id string) (*domain.CreditFacility, error) {
		reads++
		if reads == 1 {
			return stale, nil
		}
		return store.GetByID(ctx, id)
	}

	facility, err = h.facilityUC.UpdateCollateral(as(operator), facility.ID, decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.Equal(t, 2, reads)
	h.deliver()

	facility = h.reload(facility.ID)
	assert.True(t, facility.Collateral().Equal(decimal.NewFromInt(10)))
	assert.True(t, h.ledgerBalance(facility.Accounts.Collateral).Equal(facility.Collateral()))
	assert.Len(t, h.outbox.EventsOfType(domain.OutboxEventFacilityCollateralUpdated), 3)
}
