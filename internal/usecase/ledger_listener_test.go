package usecase_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/gocredit/internal/domain"
)

func TestLedgerPostingListener_Publish(t *testing.T) {
	posting := domain.LedgerPosting{
		Reference:   "payment-p1",
		Description: "payment p1",
		Transfers: []domain.LedgerTransfer{
			{FromAccountID: "deposit-1", ToAccountID: "receivable", Amount: decimal.NewFromInt(25)},
		},
	}

	tests := []struct {
		name    string
		payload map[string]any
		refs    []string
	}{
		{
			name:    "event without posting",
			payload: map[string]any{"facility_id": "f1"},
		},
		{
			name:    "malformed posting is dropped",
			payload: map[string]any{domain.OutboxPayloadPosting: map[string]any{"reference": "payment-p1"}},
		},
		{
			name:    "posting is booked",
			payload: map[string]any{domain.OutboxPayloadPosting: posting},
			refs:    []string{"payment-p1"},
		},
		{
			name: "stored posting is booked",
			payload: map[string]any{domain.OutboxPayloadPosting: map[string]any{
				"reference": "payment-p1",
				"transfers": []any{
					map[string]any{"from_account_id": "deposit-1", "to_account_id": "receivable", "amount": "25"},
				},
			}},
			refs: []string{"payment-p1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			event := &domain.OutboxEvent{ID: "evt-1", EventType: domain.OutboxEventPaymentRecorded, Payload: tt.payload}

			require.NoError(t, h.postingsOut.Publish(context.Background(), event))
			// Redelivery books nothing new.
			require.NoError(t, h.postingsOut.Publish(context.Background(), event))

			if tt.refs == nil {
				assert.Empty(t, h.postingRefs())
				return
			}
			assert.Equal(t, tt.refs, h.postingRefs())
			assert.True(t, h.ledgerBalance("receivable").Equal(decimal.NewFromInt(25)))
		})
	}
}
