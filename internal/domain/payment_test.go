package domain

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hours int) time.Time {
	return testNow.Add(time.Duration(hours) * time.Hour)
}

func testPayment(amount string) Payment {
	return Payment{
		ID:              "payment-1",
		FacilityID:      "facility-1",
		Amount:          dec(amount),
		SourceAccountID: "acc-deposit",
		RecordedAt:      testNow,
	}
}

type allocated struct {
	obligationID string
	amount       string
}

func assertAllocations(t *testing.T, want []allocated, got []NewPaymentAllocation) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].obligationID, got[i].ObligationID, "allocation %d", i)
		assert.True(t, dec(want[i].amount).Equal(got[i].Amount), "allocation %d: want %s, got %s", i, want[i].amount, got[i].Amount)
	}
}

func TestAllocatePayment_InterestBeforeDisbursal(t *testing.T) {
	obligations := []AllocatableObligation{
		testObligation("interest-t1", ObligationTypeInterest, "4", at(1)),
		testObligation("disbursal-t2", ObligationTypeDisbursal, "3", at(2)),
	}

	got, err := AllocatePayment(testPayment("5"), obligations)
	require.NoError(t, err)
	assertAllocations(t, []allocated{
		{"interest-t1", "4"},
		{"disbursal-t2", "1"},
	}, got)
}

func TestAllocatePayment_OldestFirstWithinType(t *testing.T) {
	obligations := []AllocatableObligation{
		testObligation("disbursal-t1", ObligationTypeDisbursal, "2", at(1)),
		testObligation("interest-t2", ObligationTypeInterest, "4", at(2)),
		testObligation("interest-t3", ObligationTypeInterest, "3", at(3)),
		testObligation("disbursal-t4", ObligationTypeDisbursal, "1", at(4)),
	}

	got, err := AllocatePayment(testPayment("10"), obligations)
	require.NoError(t, err)
	assertAllocations(t, []allocated{
		{"interest-t2", "4"},
		{"interest-t3", "3"},
		{"disbursal-t1", "2"},
		{"disbursal-t4", "1"},
	}, got)

	for i, a := range got {
		assert.Equal(t, PaymentAllocationID("payment-1", i+1), a.ID)
		assert.Equal(t, "payment-1", a.PaymentID)
		assert.Equal(t, "facility-1", a.FacilityID)
		assert.Equal(t, "acc-deposit", a.PaymentSourceAccountID)
	}
	assert.Equal(t, "acc-interest-t2-not-yet-due", got[0].ReceivableAccountID)
}

func TestAllocatePayment_TiesBrokenByObligationID(t *testing.T) {
	obligations := []AllocatableObligation{
		testObligation("b", ObligationTypeDisbursal, "5", at(1)),
		testObligation("a", ObligationTypeDisbursal, "5", at(1)),
	}

	got, err := AllocatePayment(testPayment("6"), obligations)
	require.NoError(t, err)
	assertAllocations(t, []allocated{{"a", "5"}, {"b", "1"}}, got)
}

func TestAllocatePayment_SkipsPaidObligations(t *testing.T) {
	paid := testObligation("paid", ObligationTypeInterest, "5", at(1))
	_, err := paid.RecordPaymentAllocation(allocation("x", "paid", "5"), testAudit())
	require.NoError(t, err)

	got, err := AllocatePayment(testPayment("2"), []AllocatableObligation{
		paid,
		testObligation("open", ObligationTypeDisbursal, "5", at(2)),
	})
	require.NoError(t, err)
	assertAllocations(t, []allocated{{"open", "2"}}, got)
}

func TestAllocatePayment_Errors(t *testing.T) {
	obligations := []AllocatableObligation{
		testObligation("i", ObligationTypeInterest, "4", at(1)),
		testObligation("d", ObligationTypeDisbursal, "3", at(2)),
	}

	t.Run("payment greater than outstanding", func(t *testing.T) {
		got, err := AllocatePayment(testPayment("7.01"), obligations)
		assert.ErrorIs(t, err, ErrPaymentAmountGreaterThanOutstandingObligations)
		assert.Empty(t, got)
	})

	t.Run("no obligations", func(t *testing.T) {
		_, err := AllocatePayment(testPayment("1"), nil)
		assert.ErrorIs(t, err, ErrPaymentAmountGreaterThanOutstandingObligations)
	})

	t.Run("non positive payment", func(t *testing.T) {
		_, err := AllocatePayment(testPayment("0"), obligations)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}

func TestAllocatePayment_SumEqualsPayment(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 200; round++ {
		count := 1 + rng.Intn(6)
		obligations := make([]AllocatableObligation, 0, count)
		total := decimal.Zero
		for i := 0; i < count; i++ {
			typ := ObligationTypeDisbursal
			if rng.Intn(2) == 0 {
				typ = ObligationTypeInterest
			}
			amount := decimal.New(int64(1+rng.Intn(100000)), -2)
			total = total.Add(amount)
			obligations = append(obligations, testObligation(
				PaymentAllocationID("ob", i), typ, amount.String(), at(rng.Intn(48)),
			))
		}

		payment := decimal.New(int64(1+rng.Intn(int(total.Shift(2).IntPart()))), -2)
		got, err := AllocatePayment(testPayment(payment.String()), obligations)
		require.NoError(t, err)

		sum := decimal.Zero
		seenDisbursal := false
		for _, a := range got {
			sum = sum.Add(a.Amount)
			assert.True(t, a.Amount.IsPositive())
			if a.ObligationType == ObligationTypeDisbursal {
				seenDisbursal = true
			} else {
				assert.False(t, seenDisbursal, "interest allocated after disbursal")
			}
		}
		assert.True(t, payment.Equal(sum), "round %d: payment %s, allocated %s", round, payment, sum)
	}
}

func TestPayment_LedgerPosting(t *testing.T) {
	p := testPayment("5")
	p.Allocations = []NewPaymentAllocation{
		{ID: "payment-1-1", Amount: dec("4"), ReceivableAccountID: "acc-i", PaymentSourceAccountID: "acc-deposit"},
		{ID: "payment-1-2", Amount: dec("1"), ReceivableAccountID: "acc-d", PaymentSourceAccountID: "acc-deposit"},
	}

	posting := p.LedgerPosting()
	require.NoError(t, posting.Validate())
	assert.Equal(t, "payment-payment-1", posting.Reference)
	require.Len(t, posting.Transfers, 2)
	assert.Equal(t, "acc-deposit", posting.Transfers[0].FromAccountID)
	assert.Equal(t, "acc-i", posting.Transfers[0].ToAccountID)
}
