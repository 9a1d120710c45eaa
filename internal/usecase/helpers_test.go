package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/iho/gocredit/internal/domain"
	"github.com/iho/gocredit/internal/usecase"
	"github.com/iho/gocredit/internal/usecase/mocks"
)

var (
	admin    = &domain.User{ID: "admin", Role: domain.RoleAdmin}
	operator = &domain.User{ID: "operator", Role: domain.RoleOperator}
	viewer   = &domain.User{ID: "viewer", Role: domain.RoleViewer}
)

func as(user *domain.User) context.Context {
	return domain.ContextWithUser(context.Background(), user)
}

func testTerms() domain.TermValues {
	return domain.TermValues{
		AnnualRate:              decimal.RequireFromString("0.12"),
		DurationMonths:          12,
		ObligationOverdueDays:   30,
		ObligationDefaultedDays: 90,
		InitialCVL:              decimal.NewFromInt(140),
		MarginCallCVL:           decimal.NewFromInt(125),
		LiquidationCVL:          decimal.NewFromInt(105),
	}
}

// harness wires every use case over in-memory repositories, a gomock ledger
// that books each reference once and a settable collateral price.
type harness struct {
	t *testing.T

	txManager   *mocks.MockTransactionManager
	facilities  *mocks.MockCreditFacilityRepository
	disbursals  *mocks.MockDisbursalRepository
	obligations *mocks.MockObligationRepository
	processes   *mocks.MockApprovalProcessRepository
	payments    *mocks.MockPaymentRepository
	governance  *mocks.MockGovernanceRepository
	outbox      *mocks.MockOutboxRepository
	history     *mocks.MockHistoryRepository
	authorizer  *mocks.MockAuthorizer
	idGen       *mocks.MockIDGenerator
	ledger      *mocks.MockLedgerClient
	prices      *mocks.MockPriceProvider

	mu        sync.Mutex
	price     decimal.Decimal
	postings  []domain.LedgerPosting
	booked    map[string]domain.LedgerPosting
	delivered map[string]bool

	approvalUC   *usecase.ApprovalUseCase
	facilityUC   *usecase.CreditFacilityUseCase
	disbursalUC  *usecase.DisbursalUseCase
	paymentUC    *usecase.PaymentUseCase
	obligationUC *usecase.ObligationUseCase
	historyUC    *usecase.HistoryUseCase
	listener     *usecase.ApprovalOutcomeListener
	postingsOut  *usecase.LedgerPostingListener
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithRetrier(t, nil)
}

func newHarnessWithRetrier(t *testing.T, retrier usecase.Retrier) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)

	h := &harness{
		t:           t,
		txManager:   mocks.NewMockTransactionManager(),
		facilities:  mocks.NewMockCreditFacilityRepository(),
		disbursals:  mocks.NewMockDisbursalRepository(),
		obligations: mocks.NewMockObligationRepository(),
		processes:   mocks.NewMockApprovalProcessRepository(),
		payments:    mocks.NewMockPaymentRepository(),
		governance:  mocks.NewMockGovernanceRepository(),
		outbox:      mocks.NewMockOutboxRepository(),
		history:     mocks.NewMockHistoryRepository(),
		authorizer:  mocks.NewMockAuthorizer(),
		idGen:       mocks.NewMockIDGenerator(),
		ledger:      mocks.NewMockLedgerClient(ctrl),
		prices:      mocks.NewMockPriceProvider(ctrl),
		price:       decimal.NewFromInt(50000),
		booked:      make(map[string]domain.LedgerPosting),
		delivered:   make(map[string]bool),
	}

	h.ledger.EXPECT().CreateAccount(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, account domain.NewLedgerAccount) (string, error) {
			return "acct-" + account.Reference, nil
		}).AnyTimes()
	h.ledger.EXPECT().Post(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, posting domain.LedgerPosting) (string, error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			if booked, ok := h.booked[posting.Reference]; ok {
				if !samePosting(booked, posting) {
					h.t.Errorf("reference %s reposted with a different body", posting.Reference)
				}
				return "ltx-" + posting.Reference, nil
			}
			h.booked[posting.Reference] = posting
			h.postings = append(h.postings, posting)
			return "ltx-" + posting.Reference, nil
		}).AnyTimes()
	h.prices.EXPECT().CurrentPrice(gomock.Any()).
		DoAndReturn(func(context.Context) (decimal.Decimal, error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			return h.price, nil
		}).AnyTimes()
	h.prices.EXPECT().SetPrice(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, price decimal.Decimal) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.price = price
			return nil
		}).AnyTimes()

	logger := zerolog.Nop()
	ledgerConfig := usecase.FacilityLedgerConfig{
		FacilityOmnibusAccountID:   "facility-omnibus",
		CollateralOmnibusAccountID: "collateral-omnibus",
		InterestIncomeAccountID:    "interest-income",
		Currency:                   "USD",
		CollateralCurrency:         "BTC",
	}

	h.approvalUC = usecase.NewApprovalUseCase(h.txManager, retrier, h.processes, h.governance, h.outbox, h.authorizer, h.idGen, logger, nil)
	h.facilityUC = usecase.NewCreditFacilityUseCase(h.txManager, retrier, h.facilities, h.disbursals, h.obligations, h.outbox,
		h.approvalUC, h.ledger, h.prices, h.authorizer, h.idGen, ledgerConfig, logger, nil)
	h.disbursalUC = usecase.NewDisbursalUseCase(h.txManager, retrier, h.facilities, h.disbursals, h.obligations, h.outbox,
		h.approvalUC, h.ledger, h.prices, h.authorizer, h.idGen, logger, nil)
	h.paymentUC = usecase.NewPaymentUseCase(h.txManager, retrier, h.facilities, h.obligations, h.payments, h.outbox,
		h.prices, h.authorizer, h.idGen, logger, nil)
	h.obligationUC = usecase.NewObligationUseCase(h.txManager, retrier, h.obligations, h.outbox, h.authorizer, h.idGen, logger, nil)
	h.historyUC = usecase.NewHistoryUseCase(h.txManager, h.outbox, h.history, h.authorizer, logger)
	h.listener = usecase.NewApprovalOutcomeListener(h.facilityUC, h.disbursalUC, logger)
	h.postingsOut = usecase.NewLedgerPostingListener(h.ledger, logger, nil)

	return h
}

// deliver hands every undelivered outbox event to the listeners, the way
// the outbox publisher does, until no new events appear.
func (h *harness) deliver() {
	h.t.Helper()
	require.NoError(h.t, h.deliverOnce())
}

// deliverOnce delivers pending events until a pass makes no progress or an
// event fails. An event counts as delivered once every listener accepted it;
// failed events stay pending and the first error is returned.
func (h *harness) deliverOnce() error {
	ctx := context.Background()
	var firstErr error
	for {
		progressed := false
		for _, event := range h.outbox.Events() {
			if h.delivered[event.ID] {
				continue
			}
			err := errors.Join(
				h.postingsOut.Publish(ctx, event),
				h.listener.Publish(ctx, event),
			)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			h.delivered[event.ID] = true
			progressed = true
		}
		if !progressed || firstErr != nil {
			return firstErr
		}
	}
}

// track makes writes to the in-memory stores transactional.
func (h *harness) track() {
	h.txManager.Track(h.facilities, h.disbursals, h.obligations, h.processes, h.payments, h.outbox)
}

// ledgerBalance sums the booked transfers into and out of account.
func (h *harness) ledgerBalance(account string) decimal.Decimal {
	h.mu.Lock()
	defer h.mu.Unlock()
	balance := decimal.Zero
	for _, p := range h.postings {
		for _, t := range p.Transfers {
			if t.ToAccountID == account {
				balance = balance.Add(t.Amount)
			}
			if t.FromAccountID == account {
				balance = balance.Sub(t.Amount)
			}
		}
	}
	return balance
}

func samePosting(a, b domain.LedgerPosting) bool {
	if a.Reference != b.Reference || len(a.Transfers) != len(b.Transfers) {
		return false
	}
	for i := range a.Transfers {
		x, y := a.Transfers[i], b.Transfers[i]
		if x.FromAccountID != y.FromAccountID || x.ToAccountID != y.ToAccountID || !x.Amount.Equal(y.Amount) {
			return false
		}
	}
	return true
}

// conflictRetrier reruns a transaction up to three times while it loses
// version races.
func conflictRetrier(t *testing.T) usecase.Retrier {
	retrier := mocks.NewMockRetrier(gomock.NewController(t))
	retrier.EXPECT().Retry(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, fn func() error) error {
			var err error
			for attempt := 0; attempt < 3; attempt++ {
				if err = fn(); !errors.Is(err, domain.ErrConcurrentModification) {
					return err
				}
			}
			return err
		}).AnyTimes()
	return retrier
}

func (h *harness) postingRefs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	refs := make([]string, 0, len(h.postings))
	for _, p := range h.postings {
		refs = append(refs, p.Reference)
	}
	return refs
}

func (h *harness) setPrice(price decimal.Decimal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.price = price
}

// createFacility opens a facility of 10000 with the given initial disbursal.
func (h *harness) createFacility(initialDisbursal int64) *domain.CreditFacility {
	h.t.Helper()
	facility, err := h.facilityUC.Create(as(operator), usecase.CreateFacilityInput{
		CustomerID:       "customer-1",
		DepositAccountID: "deposit-1",
		Amount:           decimal.NewFromInt(10000),
		InitialDisbursal: decimal.NewFromInt(initialDisbursal),
		Terms:            testTerms(),
	})
	require.NoError(h.t, err)
	return facility
}

// activeFacility creates, approves and collateralizes a facility.
func (h *harness) activeFacility(initialDisbursal int64) *domain.CreditFacility {
	h.t.Helper()
	facility := h.createFacility(initialDisbursal)
	h.deliver()

	facility, err := h.facilityUC.UpdateCollateral(as(operator), facility.ID, decimal.NewFromInt(1))
	require.NoError(h.t, err)
	require.Equal(h.t, domain.CreditFacilityStatusActive, facility.Status())
	return facility
}

func (h *harness) reload(id string) *domain.CreditFacility {
	h.t.Helper()
	facility, err := h.facilities.GetByID(context.Background(), id)
	require.NoError(h.t, err)
	return facility
}

func (h *harness) maturity(facility *domain.CreditFacility) time.Time {
	h.t.Helper()
	require.NotNil(h.t, facility.MaturesAt())
	return *facility.MaturesAt()
}
