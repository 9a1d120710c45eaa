package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNewDisbursal(amount decimal.Decimal) NewDisbursal {
	return NewDisbursal{
		ID:                "disbursal-1",
		FacilityID:        "facility-1",
		ApprovalProcessID: "ap-1",
		Amount:            amount,
		Accounts: DisbursalAccounts{
			Facility:        "acc-facility",
			FacilityOmnibus: "acc-facility-omnibus",
			Receivable:      testObligationAccounts("acc-disbursal"),
			Deposit:         "acc-deposit",
		},
		DueDate:     testNow.AddDate(1, 0, 0),
		OverdueDate: testNow.AddDate(1, 1, 0),
	}
}

func newTestDisbursal(t *testing.T) *Disbursal {
	t.Helper()
	d, err := CreateDisbursal(testNewDisbursal(dec("1000")), testAudit())
	require.NoError(t, err)
	return d
}

func TestCreateDisbursal_ZeroAmountFails(t *testing.T) {
	_, err := CreateDisbursal(testNewDisbursal(decimal.Zero), testAudit())
	assert.ErrorIs(t, err, ErrDisbursalAmountCannotBeZero)

	_, err = CreateDisbursal(testNewDisbursal(dec("-1")), testAudit())
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestDisbursal_ApprovedSettlesIntoObligation(t *testing.T) {
	d := newTestDisbursal(t)
	assert.Equal(t, DisbursalStatusNew, d.Status())

	res, err := d.ApprovalProcessConcluded("disbursal-disbursal-1", true, testNow, testAudit())
	require.NoError(t, err)
	require.True(t, res.WasExecuted())

	obligation := res.Value()
	require.NotNil(t, obligation)
	assert.Equal(t, d.ID, obligation.ID)
	assert.Equal(t, ObligationTypeDisbursal, obligation.Type)
	assert.True(t, dec("1000").Equal(obligation.Amount))
	assert.Equal(t, d.Accounts.Receivable, obligation.Accounts)
	assert.Equal(t, d.DueDate, obligation.DueDate)
	assert.Equal(t, testNow, obligation.RecordedAt)
	require.NoError(t, obligation.Validate())

	assert.Equal(t, DisbursalStatusConfirmed, d.Status())
	assert.Equal(t, obligation.ID, d.ObligationID())
	assert.Equal(t, "disbursal-disbursal-1", d.LedgerTxID())
}

func TestDisbursal_DeniedIsCancelled(t *testing.T) {
	d := newTestDisbursal(t)

	res, err := d.ApprovalProcessConcluded("disbursal-disbursal-1", false, testNow, testAudit())
	require.NoError(t, err)
	assert.True(t, res.WasExecuted())
	assert.Nil(t, res.Value())
	assert.Equal(t, DisbursalStatusCancelled, d.Status())
	assert.True(t, d.IsCancelled())
}

func TestDisbursal_ApprovalReplay(t *testing.T) {
	t.Run("same outcome is ignored", func(t *testing.T) {
		d := newTestDisbursal(t)
		_, err := d.ApprovalProcessConcluded("tx", true, testNow, testAudit())
		require.NoError(t, err)
		before := d.Events.Len()

		res, err := d.ApprovalProcessConcluded("tx", true, testNow, testAudit())
		require.NoError(t, err)
		assert.True(t, res.WasIgnored())
		assert.Nil(t, res.Value())
		assert.Equal(t, before, d.Events.Len())
	})

	t.Run("conflicting outcome is rejected", func(t *testing.T) {
		d := newTestDisbursal(t)
		_, err := d.ApprovalProcessConcluded("tx", true, testNow, testAudit())
		require.NoError(t, err)
		before := d.Events.Len()

		_, err = d.ApprovalProcessConcluded("tx", false, testNow, testAudit())
		assert.ErrorIs(t, err, ErrInconsistentIdempotency)
		assert.Equal(t, before, d.Events.Len())
		assert.Equal(t, DisbursalStatusConfirmed, d.Status())
	})

	t.Run("conflicting outcome after denial is rejected", func(t *testing.T) {
		d := newTestDisbursal(t)
		_, err := d.ApprovalProcessConcluded("tx", false, testNow, testAudit())
		require.NoError(t, err)

		_, err = d.ApprovalProcessConcluded("tx", true, testNow, testAudit())
		assert.ErrorIs(t, err, ErrInconsistentIdempotency)
		assert.Equal(t, DisbursalStatusCancelled, d.Status())
	})

	t.Run("replay after reload is ignored", func(t *testing.T) {
		d := newTestDisbursal(t)
		_, err := d.ApprovalProcessConcluded("tx", true, testNow, testAudit())
		require.NoError(t, err)

		loaded, err := LoadEntityEvents(d.ID, d.Events.All())
		require.NoError(t, err)
		reloaded, err := DisbursalFromEvents(loaded)
		require.NoError(t, err)
		assert.Equal(t, DisbursalStatusConfirmed, reloaded.Status())

		res, err := reloaded.ApprovalProcessConcluded("tx", true, testNow, testAudit())
		require.NoError(t, err)
		assert.True(t, res.WasIgnored())
		assert.False(t, reloaded.Events.HasPending())
	})
}

func TestDisbursal_SettlementPosting(t *testing.T) {
	d := newTestDisbursal(t)
	posting := d.SettlementPosting()

	require.NoError(t, posting.Validate())
	assert.Equal(t, "disbursal-disbursal-1", posting.Reference)
	require.Len(t, posting.Transfers, 2)
	assert.Equal(t, "acc-disbursal-not-yet-due", posting.Transfers[0].FromAccountID)
	assert.Equal(t, "acc-deposit", posting.Transfers[0].ToAccountID)
	assert.Equal(t, "acc-facility", posting.Transfers[1].FromAccountID)
}
