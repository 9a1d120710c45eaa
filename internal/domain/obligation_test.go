package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allocation(id, obligationID, amount string) NewPaymentAllocation {
	return NewPaymentAllocation{
		ID:           id,
		PaymentID:    "payment-1",
		FacilityID:   "facility-1",
		ObligationID: obligationID,
		Amount:       dec(amount),
	}
}

func TestNewObligation_Validate(t *testing.T) {
	valid := NewObligation{
		ID:          "ob-1",
		FacilityID:  "facility-1",
		Type:        ObligationTypeDisbursal,
		Amount:      dec("100"),
		Accounts:    testObligationAccounts("acc"),
		DueDate:     testNow,
		OverdueDate: testNow.AddDate(0, 0, 30),
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name    string
		mutate  func(n *NewObligation)
		wantErr error
	}{
		{"zero amount", func(n *NewObligation) { n.Amount = decimal.Zero }, ErrInvalidAmount},
		{"overdue before due", func(n *NewObligation) { n.OverdueDate = testNow.AddDate(0, 0, -1) }, ErrInvalidObligation},
		{"missing account", func(n *NewObligation) { n.Accounts.Defaulted = "" }, ErrInvalidObligation},
		{"unknown type", func(n *NewObligation) { n.Type = "fee" }, ErrInvalidObligation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := valid
			tt.mutate(&n)
			assert.ErrorIs(t, n.Validate(), tt.wantErr)
		})
	}
}

func TestObligation_RecordPaymentAllocation(t *testing.T) {
	o := testObligation("ob-1", ObligationTypeDisbursal, "100", testNow)

	res, err := o.RecordPaymentAllocation(allocation("a-1", "ob-1", "40"), testAudit())
	require.NoError(t, err)
	assert.True(t, res.WasExecuted())
	assert.True(t, dec("60").Equal(res.Value()))
	assert.True(t, dec("60").Equal(o.Outstanding()))
	assert.Equal(t, ObligationStatusNotYetDue, o.Status())

	t.Run("replayed allocation is ignored", func(t *testing.T) {
		before := o.Events.Len()
		res, err := o.RecordPaymentAllocation(allocation("a-1", "ob-1", "40"), testAudit())
		require.NoError(t, err)
		assert.True(t, res.WasIgnored())
		assert.Equal(t, before, o.Events.Len())
		assert.True(t, dec("60").Equal(o.Outstanding()))
	})

	t.Run("amount exceeding outstanding is rejected", func(t *testing.T) {
		before := o.Events.Len()
		_, err := o.RecordPaymentAllocation(allocation("a-2", "ob-1", "60.01"), testAudit())
		assert.ErrorIs(t, err, ErrAmountExceedsOutstanding)
		assert.Equal(t, before, o.Events.Len())
	})

	t.Run("paying the remainder completes the obligation", func(t *testing.T) {
		res, err := o.RecordPaymentAllocation(allocation("a-3", "ob-1", "60"), testAudit())
		require.NoError(t, err)
		assert.True(t, res.Value().IsZero())
		assert.True(t, o.IsPaid())
		assert.Equal(t, ObligationStatusPaid, o.Status())
		_, ok := o.NextTransitionAt()
		assert.False(t, ok)
	})
}

func TestObligation_OutstandingNeverIncreases(t *testing.T) {
	o := testObligation("ob-1", ObligationTypeInterest, "10", testNow)
	previous := o.Outstanding()

	for i, amount := range []string{"1", "2.5", "0.5", "6"} {
		_, err := o.RecordPaymentAllocation(allocation(PaymentAllocationID("p", i), "ob-1", amount), testAudit())
		require.NoError(t, err)
		assert.True(t, o.Outstanding().LessThanOrEqual(previous))
		assert.False(t, o.Outstanding().IsNegative())
		previous = o.Outstanding()
	}
	assert.True(t, o.Outstanding().IsZero())
}

func TestObligation_StatusTransitions(t *testing.T) {
	o := testObligation("ob-1", ObligationTypeDisbursal, "100", testNow)
	_, err := o.RecordPaymentAllocation(allocation("a-1", "ob-1", "25"), testAudit())
	require.NoError(t, err)

	t.Run("due before due date is rejected", func(t *testing.T) {
		_, err := o.RecordDue(o.DueDate.Add(-1), testAudit())
		assert.ErrorIs(t, err, ErrInvalidObligationTransition)
		assert.Equal(t, ObligationStatusNotYetDue, o.Status())
	})

	t.Run("overdue cannot skip due", func(t *testing.T) {
		_, err := o.RecordOverdue(o.OverdueDate, testAudit())
		assert.ErrorIs(t, err, ErrInvalidObligationTransition)
	})

	t.Run("due moves the outstanding balance", func(t *testing.T) {
		res, err := o.RecordDue(o.DueDate, testAudit())
		require.NoError(t, err)
		require.True(t, res.WasExecuted())
		posting := res.Value()
		require.NotNil(t, posting)
		require.Len(t, posting.Transfers, 1)
		assert.Equal(t, o.Accounts.Due, posting.Transfers[0].FromAccountID)
		assert.Equal(t, o.Accounts.NotYetDue, posting.Transfers[0].ToAccountID)
		assert.True(t, dec("75").Equal(posting.Transfers[0].Amount))
		assert.Equal(t, "obligation-ob-1-due", posting.Reference)
		assert.Equal(t, ObligationStatusDue, o.Status())
		assert.Equal(t, o.Accounts.Due, o.ReceivableAccount())
	})

	t.Run("due again is ignored", func(t *testing.T) {
		res, err := o.RecordDue(o.DueDate, testAudit())
		require.NoError(t, err)
		assert.True(t, res.WasIgnored())
	})

	t.Run("overdue then defaulted", func(t *testing.T) {
		res, err := o.RecordOverdue(o.OverdueDate, testAudit())
		require.NoError(t, err)
		assert.True(t, res.WasExecuted())
		assert.Equal(t, o.Accounts.Overdue, o.ReceivableAccount())

		res, err = o.RecordDefaulted(*o.DefaultedDate, testAudit())
		require.NoError(t, err)
		assert.True(t, res.WasExecuted())
		assert.Equal(t, ObligationStatusDefaulted, o.Status())
		assert.Equal(t, o.Accounts.Defaulted, o.ReceivableAccount())
	})
}

func TestObligation_ReplayIsDeterministic(t *testing.T) {
	o := testObligation("ob-1", ObligationTypeDisbursal, "100", testNow)
	_, err := o.RecordPaymentAllocation(allocation("a-1", "ob-1", "30"), testAudit())
	require.NoError(t, err)
	_, err = o.RecordDue(o.DueDate, testAudit())
	require.NoError(t, err)

	loaded, err := LoadEntityEvents(o.ID, o.Events.All())
	require.NoError(t, err)
	replayed, err := ObligationFromEvents(loaded)
	require.NoError(t, err)

	assert.True(t, o.Outstanding().Equal(replayed.Outstanding()))
	assert.Equal(t, o.Status(), replayed.Status())
	assert.Equal(t, o.RecordedAt(), replayed.RecordedAt())
	assert.Equal(t, o.ReceivableAccount(), replayed.ReceivableAccount())
}
