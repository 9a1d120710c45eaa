package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/gocredit/internal/domain"
	"github.com/iho/gocredit/internal/infrastructure/metrics"
)

// PaymentUseCase records payments and applies them to obligations.
type PaymentUseCase struct {
	txManager    TransactionManager
	retrier      Retrier
	facilityRepo CreditFacilityRepository
	paymentRepo  PaymentRepository
	authorizer   Authorizer
	idGen        IDGenerator
	book         *facilityBook
	logger       zerolog.Logger
	metrics      *metrics.Metrics
}

// NewPaymentUseCase creates a new PaymentUseCase.
func NewPaymentUseCase(
	txManager TransactionManager,
	retrier Retrier,
	facilityRepo CreditFacilityRepository,
	obligationRepo ObligationRepository,
	paymentRepo PaymentRepository,
	outboxRepo OutboxRepository,
	prices PriceProvider,
	authorizer Authorizer,
	idGen IDGenerator,
	logger zerolog.Logger,
	metrics *metrics.Metrics,
) *PaymentUseCase {
	return &PaymentUseCase{
		txManager:    txManager,
		retrier:      retrier,
		facilityRepo: facilityRepo,
		paymentRepo:  paymentRepo,
		authorizer:   authorizer,
		idGen:        idGen,
		book: &facilityBook{
			obligationRepo: obligationRepo,
			prices:         prices,
			outbox:         outbox{repo: outboxRepo, idGen: idGen},
			logger:         logger,
			metrics:        metrics,
		},
		logger:  logger,
		metrics: metrics,
	}
}

// RecordPaymentInput represents input for recording a payment.
type RecordPaymentInput struct {
	FacilityID string
	Amount     decimal.Decimal
	// SourceAccountID defaults to the facility's deposit account.
	SourceAccountID string
}

// Record allocates a payment over the facility's obligations, interest first
// and oldest first. The ledger moves the money once the payment is committed.
// An expired facility with nothing left outstanding closes.
func (uc *PaymentUseCase) Record(ctx context.Context, input RecordPaymentInput) (*domain.Payment, error) {
	if !input.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	start := time.Now()
	paymentID := uc.idGen.Generate()

	var payment *domain.Payment
	err := runInTx(ctx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		audit, err := uc.authorizer.Enforce(ctx, tx, domain.AuditObjectPayment, paymentID, domain.AuditActionPaymentRecord)
		if err != nil {
			return err
		}

		facility, err := uc.facilityRepo.GetByIDTx(ctx, tx, input.FacilityID)
		if err != nil {
			return err
		}
		if !facility.IsActivated() {
			return domain.ErrFacilityNotActive
		}
		if facility.Status() == domain.CreditFacilityStatusClosed {
			return domain.ErrFacilityClosed
		}

		obligations, err := uc.book.obligationRepo.ListByFacilityTx(ctx, tx, facility.ID)
		if err != nil {
			return err
		}

		byID := make(map[string]*domain.Obligation, len(obligations))
		open := make([]domain.AllocatableObligation, 0, len(obligations))
		for _, o := range obligations {
			byID[o.ID] = o
			if !o.IsPaid() {
				open = append(open, o)
			}
		}

		source := input.SourceAccountID
		if source == "" {
			source = facility.Accounts.Deposit
		}

		payment = &domain.Payment{
			ID:              paymentID,
			FacilityID:      facility.ID,
			Amount:          input.Amount,
			SourceAccountID: source,
			RecordedAt:      time.Now().UTC(),
		}

		payment.Allocations, err = domain.AllocatePayment(*payment, open)
		if err != nil {
			return err
		}

		for _, allocation := range payment.Allocations {
			obligation := byID[allocation.ObligationID]
			if _, err := obligation.RecordPaymentAllocation(allocation, audit); err != nil {
				return err
			}
			if err := uc.book.obligationRepo.Update(ctx, tx, obligation); err != nil {
				return err
			}
		}

		if err := uc.paymentRepo.Create(ctx, tx, payment); err != nil {
			return err
		}

		allocations := make([]map[string]any, 0, len(payment.Allocations))
		for _, a := range payment.Allocations {
			allocations = append(allocations, map[string]any{
				"allocation_id":   a.ID,
				"obligation_id":   a.ObligationID,
				"obligation_type": string(a.ObligationType),
				"amount":          a.Amount.String(),
			})
		}
		if err := uc.book.outbox.emit(ctx, tx, domain.AggregateTypePayment, payment.ID, domain.OutboxEventPaymentRecorded, map[string]any{
			"payment_id":                payment.ID,
			"facility_id":               facility.ID,
			"amount":                    payment.Amount.String(),
			"allocations":               allocations,
			domain.OutboxPayloadPosting: payment.LedgerPosting(),
		}); err != nil {
			return err
		}

		price, err := uc.book.currentPrice(ctx)
		if err != nil {
			return err
		}
		if err := uc.book.refreshCollateralization(ctx, tx, facility, price, audit); err != nil {
			return err
		}

		if _, err := uc.book.complete(ctx, tx, facility, audit); err != nil {
			return err
		}

		return uc.facilityRepo.Update(ctx, tx, facility)
	})
	if err != nil {
		if uc.metrics != nil {
			uc.metrics.UseCaseErrors.WithLabelValues("record_payment").Inc()
		}
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.PaymentsRecorded.Inc()
		uc.metrics.PaymentAmount.Observe(payment.Amount.InexactFloat64())
		uc.metrics.PaymentDuration.Observe(time.Since(start).Seconds())
		for _, a := range payment.Allocations {
			uc.metrics.PaymentAllocations.WithLabelValues(string(a.ObligationType)).Inc()
		}
	}

	uc.logger.Info().
		Str("payment_id", payment.ID).
		Str("facility_id", payment.FacilityID).
		Str("amount", payment.Amount.String()).
		Int("allocations", len(payment.Allocations)).
		Msg("payment recorded")

	return payment, nil
}

// Get returns a payment with its allocations.
func (uc *PaymentUseCase) Get(ctx context.Context, paymentID string) (*domain.Payment, error) {
	if err := uc.authorizer.Authorize(ctx, domain.AuditActionFacilityRead); err != nil {
		return nil, err
	}
	return uc.paymentRepo.GetByID(ctx, paymentID)
}

// ListByFacility returns the payments recorded for a facility.
func (uc *PaymentUseCase) ListByFacility(ctx context.Context, facilityID string, limit, offset int) ([]*domain.Payment, error) {
	if err := uc.authorizer.Authorize(ctx, domain.AuditActionFacilityRead); err != nil {
		return nil, err
	}
	return uc.paymentRepo.ListByFacility(ctx, facilityID, limit, offset)
}
