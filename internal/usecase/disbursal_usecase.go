package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/gocredit/internal/domain"
	"github.com/iho/gocredit/internal/infrastructure/metrics"
)

// DisbursalUseCase initiates drawdowns and applies their approval outcome.
type DisbursalUseCase struct {
	txManager    TransactionManager
	retrier      Retrier
	facilityRepo CreditFacilityRepository
	approvals    *ApprovalUseCase
	authorizer   Authorizer
	idGen        IDGenerator
	book         *facilityBook
	logger       zerolog.Logger
	metrics      *metrics.Metrics
}

// NewDisbursalUseCase creates a new DisbursalUseCase.
func NewDisbursalUseCase(
	txManager TransactionManager,
	retrier Retrier,
	facilityRepo CreditFacilityRepository,
	disbursalRepo DisbursalRepository,
	obligationRepo ObligationRepository,
	outboxRepo OutboxRepository,
	approvals *ApprovalUseCase,
	ledger LedgerClient,
	prices PriceProvider,
	authorizer Authorizer,
	idGen IDGenerator,
	logger zerolog.Logger,
	metrics *metrics.Metrics,
) *DisbursalUseCase {
	return &DisbursalUseCase{
		txManager:    txManager,
		retrier:      retrier,
		facilityRepo: facilityRepo,
		approvals:    approvals,
		authorizer:   authorizer,
		idGen:        idGen,
		book: &facilityBook{
			disbursalRepo:  disbursalRepo,
			obligationRepo: obligationRepo,
			ledger:         ledger,
			prices:         prices,
			outbox:         outbox{repo: outboxRepo, idGen: idGen},
			logger:         logger,
			metrics:        metrics,
		},
		logger:  logger,
		metrics: metrics,
	}
}

// Initiate records a drawdown against an active facility and starts its
// approval process.
func (uc *DisbursalUseCase) Initiate(ctx context.Context, facilityID string, amount decimal.Decimal) (*domain.Disbursal, error) {
	disbursalID := uc.idGen.Generate()
	approvalProcessID := uc.idGen.Generate()

	var disbursal *domain.Disbursal
	err := runInTx(ctx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		audit, err := uc.authorizer.Enforce(ctx, tx, domain.AuditObjectDisbursal, disbursalID, domain.AuditActionDisbursalInitiate)
		if err != nil {
			return err
		}

		facility, err := uc.facilityRepo.GetByIDTx(ctx, tx, facilityID)
		if err != nil {
			return err
		}

		newDisbursal, err := facility.InitiateDisbursal(disbursalID, approvalProcessID, amount, time.Now().UTC(), audit)
		if err != nil {
			return err
		}

		disbursal, err = domain.CreateDisbursal(*newDisbursal, audit)
		if err != nil {
			return err
		}

		if _, err := uc.approvals.StartProcess(ctx, tx, domain.ApprovalProcessTypeDisbursal, approvalProcessID, disbursalID, audit); err != nil {
			return err
		}

		if err := uc.book.disbursalRepo.Create(ctx, tx, disbursal); err != nil {
			return err
		}
		if err := uc.facilityRepo.Update(ctx, tx, facility); err != nil {
			return err
		}

		return uc.book.outbox.emit(ctx, tx, domain.AggregateTypeDisbursal, disbursal.ID, domain.OutboxEventDisbursalInitiated, map[string]any{
			"disbursal_id":        disbursal.ID,
			"facility_id":         facility.ID,
			"approval_process_id": approvalProcessID,
			"amount":              amount.String(),
		})
	})
	if err != nil {
		uc.recordError("initiate")
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.DisbursalsInitiated.Inc()
	}

	uc.logger.Info().
		Str("disbursal_id", disbursal.ID).
		Str("facility_id", facilityID).
		Str("amount", amount.String()).
		Msg("disbursal initiated")

	return disbursal, nil
}

// ApplyApprovalOutcome settles or cancels a disbursal once its approval
// process concluded. Delivering the same outcome again is a no-op.
func (uc *DisbursalUseCase) ApplyApprovalOutcome(ctx context.Context, disbursalID string, approved bool) (*domain.Disbursal, error) {
	var disbursal *domain.Disbursal
	err := runInTx(ctx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		audit, err := uc.authorizer.Enforce(ctx, tx, domain.AuditObjectDisbursal, disbursalID, domain.AuditActionDisbursalConcludeApproval)
		if err != nil {
			return err
		}

		disbursal, err = uc.book.disbursalRepo.GetByIDTx(ctx, tx, disbursalID)
		if err != nil {
			return err
		}

		facility, err := uc.facilityRepo.GetByIDTx(ctx, tx, disbursal.FacilityID)
		if err != nil {
			return err
		}

		result, err := uc.book.concludeDisbursal(ctx, tx, facility, disbursal, approved, time.Now().UTC(), audit)
		if err != nil || result.WasIgnored() {
			return err
		}

		if err := uc.book.disbursalRepo.Update(ctx, tx, disbursal); err != nil {
			return err
		}

		if approved {
			price, err := uc.book.currentPrice(ctx)
			if err != nil {
				return err
			}
			if err := uc.book.refreshCollateralization(ctx, tx, facility, price, audit); err != nil {
				return err
			}
		}

		return uc.facilityRepo.Update(ctx, tx, facility)
	})
	if err != nil {
		uc.recordError("apply_disbursal_outcome")
		return nil, err
	}

	uc.logger.Info().
		Str("disbursal_id", disbursal.ID).
		Str("status", string(disbursal.Status())).
		Msg("disbursal approval applied")

	return disbursal, nil
}

// Get returns a disbursal.
func (uc *DisbursalUseCase) Get(ctx context.Context, disbursalID string) (*domain.Disbursal, error) {
	if err := uc.authorizer.Authorize(ctx, domain.AuditActionDisbursalRead); err != nil {
		return nil, err
	}
	return uc.book.disbursalRepo.GetByID(ctx, disbursalID)
}

func (uc *DisbursalUseCase) recordError(operation string) {
	if uc.metrics != nil {
		uc.metrics.UseCaseErrors.WithLabelValues(operation).Inc()
	}
}
