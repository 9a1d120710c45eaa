package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/iho/gocredit/internal/domain"
	"github.com/iho/gocredit/internal/usecase/mocks"
)

func testConfig(url string) Config {
	return Config{
		BaseURL:                    url,
		APIToken:                   "secret",
		Timeout:                    time.Second,
		BreakerMaxRequests:         1,
		BreakerInterval:            time.Minute,
		BreakerTimeout:             time.Minute,
		BreakerConsecutiveFailures: 2,
	}
}

func testPosting() domain.LedgerPosting {
	return domain.LedgerPosting{
		Reference:   "disbursal-d1",
		Description: "disbursal settlement",
		Transfers: []domain.LedgerTransfer{
			{FromAccountID: "facility", ToAccountID: "receivable", Amount: decimal.NewFromInt(500)},
			{FromAccountID: "omnibus", ToAccountID: "deposit", Amount: decimal.NewFromInt(500)},
		},
	}
}

func TestClientPostSendsBatch(t *testing.T) {
	var got batchTransferRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/transfers/batch", r.URL.Path)
		assert.Equal(t, "disbursal-d1", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[{"id":"tr-1"},{"id":"tr-2"}]`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), nil, zerolog.Nop(), nil)

	txID, err := client.Post(context.Background(), testPosting())
	require.NoError(t, err)
	assert.Equal(t, "tr-1", txID)

	require.Len(t, got.Transfers, 2)
	assert.Equal(t, "facility", got.Transfers[0].FromAccountID)
	assert.True(t, got.Transfers[1].Amount.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, "disbursal-d1", got.Metadata["reference"])
}

func TestClientPostValidatesPosting(t *testing.T) {
	client := NewClient(testConfig("http://127.0.0.1:0"), nil, zerolog.Nop(), nil)

	_, err := client.Post(context.Background(), domain.LedgerPosting{Reference: "empty"})
	assert.ErrorIs(t, err, domain.ErrInvalidLedgerPosting)
}

func TestClientRejectionDoesNotTripBreaker(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"insufficient balance","code":"INSUFFICIENT_BALANCE"}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), nil, zerolog.Nop(), nil)

	for i := 0; i < 3; i++ {
		_, err := client.Post(context.Background(), testPosting())
		require.ErrorIs(t, err, domain.ErrLedgerRejected)
		assert.Contains(t, err.Error(), "insufficient balance")
	}
	assert.Equal(t, int32(3), hits.Load())
}

func TestClientOpensBreakerOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), nil, zerolog.Nop(), nil)

	for i := 0; i < 2; i++ {
		_, err := client.Post(context.Background(), testPosting())
		require.ErrorIs(t, err, domain.ErrLedgerUnavailable)
	}

	_, err := client.Post(context.Background(), testPosting())
	require.ErrorIs(t, err, domain.ErrLedgerUnavailable)
	assert.Equal(t, int32(2), hits.Load(), "open breaker must not reach the server")
}

func TestClientCreateAccountUsesCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCache(ctrl)

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/api/v1/accounts", r.URL.Path)
		assert.Equal(t, "facility-f1", r.Header.Get("Idempotency-Key"))

		var req createAccountRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "USD", req.Currency)
		assert.True(t, req.AllowNegativeBalance)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"acct-9"}`))
	}))
	defer server.Close()

	gomock.InOrder(
		cache.EXPECT().Get(gomock.Any(), "ledger-account:facility-f1").Return(nil, nil),
		cache.EXPECT().Set(gomock.Any(), "ledger-account:facility-f1", []byte("acct-9"), accountCacheTTL).Return(nil),
		cache.EXPECT().Get(gomock.Any(), "ledger-account:facility-f1").Return([]byte("acct-9"), nil),
	)

	client := NewClient(testConfig(server.URL), cache, zerolog.Nop(), nil)
	account := domain.NewLedgerAccount{
		Reference:     "facility-f1",
		Name:          "facility f1",
		Currency:      "USD",
		AllowNegative: true,
	}

	id, err := client.CreateAccount(context.Background(), account)
	require.NoError(t, err)
	assert.Equal(t, "acct-9", id)

	id, err = client.CreateAccount(context.Background(), account)
	require.NoError(t, err)
	assert.Equal(t, "acct-9", id)
	assert.Equal(t, int32(1), hits.Load())
}

func TestBreakerGauge(t *testing.T) {
	assert.Equal(t, float64(0), breakerGauge(gobreaker.StateClosed))
	assert.Equal(t, float64(1), breakerGauge(gobreaker.StateHalfOpen))
	assert.Equal(t, float64(2), breakerGauge(gobreaker.StateOpen))
}
