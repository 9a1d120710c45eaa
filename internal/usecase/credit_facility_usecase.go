package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/gocredit/internal/domain"
	"github.com/iho/gocredit/internal/infrastructure/metrics"
)

// FacilityLedgerConfig names the shared ledger accounts and currencies used
// when opening facility accounts.
type FacilityLedgerConfig struct {
	FacilityOmnibusAccountID   string
	CollateralOmnibusAccountID string
	InterestIncomeAccountID    string
	Currency                   string
	CollateralCurrency         string
}

// CreditFacilityUseCase drives the credit facility lifecycle.
type CreditFacilityUseCase struct {
	txManager    TransactionManager
	retrier      Retrier
	facilityRepo CreditFacilityRepository
	approvals    *ApprovalUseCase
	authorizer   Authorizer
	idGen        IDGenerator
	ledgerConfig FacilityLedgerConfig
	book         *facilityBook
	logger       zerolog.Logger
	metrics      *metrics.Metrics
}

// NewCreditFacilityUseCase creates a new CreditFacilityUseCase.
func NewCreditFacilityUseCase(
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
	ledgerConfig FacilityLedgerConfig,
	logger zerolog.Logger,
	metrics *metrics.Metrics,
) *CreditFacilityUseCase {
	return &CreditFacilityUseCase{
		txManager:    txManager,
		retrier:      retrier,
		facilityRepo: facilityRepo,
		approvals:    approvals,
		authorizer:   authorizer,
		idGen:        idGen,
		ledgerConfig: ledgerConfig,
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

// CreateFacilityInput represents input for creating a credit facility.
type CreateFacilityInput struct {
	CustomerID       string
	DepositAccountID string
	Amount           decimal.Decimal
	InitialDisbursal decimal.Decimal
	Terms            domain.TermValues
}

// Create opens the facility's ledger accounts, records the facility and
// starts its approval process.
func (uc *CreditFacilityUseCase) Create(ctx context.Context, input CreateFacilityInput) (*domain.CreditFacility, error) {
	if err := domain.ValidateID(input.CustomerID); err != nil {
		return nil, err
	}
	if err := domain.ValidateID(input.DepositAccountID); err != nil {
		return nil, err
	}
	if err := domain.ValidateAmount(input.Amount); err != nil {
		return nil, err
	}
	if err := input.Terms.Validate(); err != nil {
		return nil, err
	}

	facilityID := uc.idGen.Generate()
	approvalProcessID := uc.idGen.Generate()

	accounts, err := uc.openAccounts(ctx, facilityID, input.DepositAccountID)
	if err != nil {
		return nil, err
	}

	var facility *domain.CreditFacility
	err = runInTx(ctx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		audit, err := uc.authorizer.Enforce(ctx, tx, domain.AuditObjectCreditFacility, facilityID, domain.AuditActionFacilityCreate)
		if err != nil {
			return err
		}

		facility, err = domain.CreateCreditFacility(domain.NewCreditFacility{
			ID:                facilityID,
			CustomerID:        input.CustomerID,
			ApprovalProcessID: approvalProcessID,
			Amount:            input.Amount,
			InitialDisbursal:  input.InitialDisbursal,
			Terms:             input.Terms,
			Accounts:          accounts,
		}, audit)
		if err != nil {
			return err
		}

		if _, err := uc.approvals.StartProcess(ctx, tx, domain.ApprovalProcessTypeCreditFacility, approvalProcessID, facilityID, audit); err != nil {
			return err
		}

		if err := uc.facilityRepo.Create(ctx, tx, facility); err != nil {
			return err
		}

		return uc.book.outbox.emit(ctx, tx, domain.AggregateTypeCreditFacility, facility.ID, domain.OutboxEventFacilityCreated, map[string]any{
			"facility_id":         facility.ID,
			"customer_id":         facility.CustomerID,
			"approval_process_id": facility.ApprovalProcessID,
			"amount":              facility.Amount.String(),
			"initial_disbursal":   facility.InitialDisbursal.String(),
		})
	})
	if err != nil {
		uc.recordError("create")
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.FacilitiesCreated.Inc()
		uc.metrics.FacilityAmount.Observe(facility.Amount.InexactFloat64())
	}

	uc.logger.Info().
		Str("facility_id", facility.ID).
		Str("customer_id", facility.CustomerID).
		Str("amount", facility.Amount.String()).
		Msg("credit facility created")

	return facility, nil
}

// openAccounts creates the per-facility ledger accounts. References are
// derived from the facility id, so a failed create can be repeated safely.
func (uc *CreditFacilityUseCase) openAccounts(ctx context.Context, facilityID, depositAccountID string) (domain.FacilityAccounts, error) {
	open := func(kind, currency string, allowNegative bool) (string, error) {
		id, err := uc.book.ledger.CreateAccount(ctx, domain.NewLedgerAccount{
			Reference:     fmt.Sprintf("credit-facility-%s-%s", facilityID, kind),
			Name:          fmt.Sprintf("Credit facility %s %s", facilityID, kind),
			Currency:      currency,
			AllowNegative: allowNegative,
		})
		if err != nil {
			return "", fmt.Errorf("open %s account: %w", kind, err)
		}
		return id, nil
	}

	receivables := func(prefix string) (domain.ObligationAccounts, error) {
		var accounts domain.ObligationAccounts
		var err error
		if accounts.NotYetDue, err = open(prefix+"-not-yet-due", uc.ledgerConfig.Currency, true); err != nil {
			return accounts, err
		}
		if accounts.Due, err = open(prefix+"-due", uc.ledgerConfig.Currency, true); err != nil {
			return accounts, err
		}
		if accounts.Overdue, err = open(prefix+"-overdue", uc.ledgerConfig.Currency, true); err != nil {
			return accounts, err
		}
		if accounts.Defaulted, err = open(prefix+"-defaulted", uc.ledgerConfig.Currency, true); err != nil {
			return accounts, err
		}
		return accounts, nil
	}

	accounts := domain.FacilityAccounts{
		FacilityOmnibus:   uc.ledgerConfig.FacilityOmnibusAccountID,
		CollateralOmnibus: uc.ledgerConfig.CollateralOmnibusAccountID,
		InterestIncome:    uc.ledgerConfig.InterestIncomeAccountID,
		Deposit:           depositAccountID,
	}

	var err error
	if accounts.Facility, err = open("facility", uc.ledgerConfig.Currency, false); err != nil {
		return accounts, err
	}
	if accounts.Collateral, err = open("collateral", uc.ledgerConfig.CollateralCurrency, false); err != nil {
		return accounts, err
	}
	if accounts.Receivable, err = receivables("disbursal-receivable"); err != nil {
		return accounts, err
	}
	if accounts.InterestReceivable, err = receivables("interest-receivable"); err != nil {
		return accounts, err
	}

	return accounts, nil
}

// UpdateCollateral sets the facility's collateral to the given total and
// activates the facility when that completes its requirements. The collateral
// posting travels in the outbox event and is booked after commit.
func (uc *CreditFacilityUseCase) UpdateCollateral(ctx context.Context, facilityID string, collateral decimal.Decimal) (*domain.CreditFacility, error) {
	updateID := uc.idGen.Generate()

	var facility *domain.CreditFacility
	err := runInTx(ctx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		audit, err := uc.authorizer.Enforce(ctx, tx, domain.AuditObjectCreditFacility, facilityID, domain.AuditActionFacilityUpdateCollateral)
		if err != nil {
			return err
		}

		facility, err = uc.facilityRepo.GetByIDTx(ctx, tx, facilityID)
		if err != nil {
			return err
		}

		result, err := facility.UpdateCollateral(updateID, collateral, audit)
		if err != nil || result.WasIgnored() {
			return err
		}

		if err := uc.book.outbox.emit(ctx, tx, domain.AggregateTypeCreditFacility, facility.ID, domain.OutboxEventFacilityCollateralUpdated, map[string]any{
			"facility_id":               facility.ID,
			"update_id":                 updateID,
			"collateral":                facility.Collateral().String(),
			domain.OutboxPayloadPosting: *result.Value(),
		}); err != nil {
			return err
		}

		return uc.settle(ctx, tx, facility, audit)
	})
	if err != nil {
		uc.recordError("update_collateral")
		return nil, err
	}

	return facility, nil
}

// ApplyApprovalOutcome records the concluded facility approval. A denied
// facility closes; an approved one activates once fully collateralized.
func (uc *CreditFacilityUseCase) ApplyApprovalOutcome(ctx context.Context, facilityID string, approved bool) (*domain.CreditFacility, error) {
	var facility *domain.CreditFacility
	err := runInTx(ctx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		audit, err := uc.authorizer.Enforce(ctx, tx, domain.AuditObjectCreditFacility, facilityID, domain.AuditActionFacilityConcludeApproval)
		if err != nil {
			return err
		}

		facility, err = uc.facilityRepo.GetByIDTx(ctx, tx, facilityID)
		if err != nil {
			return err
		}

		result, err := facility.ApprovalProcessConcluded(approved, audit)
		if err != nil || result.WasIgnored() {
			return err
		}

		if err := uc.book.outbox.emit(ctx, tx, domain.AggregateTypeCreditFacility, facility.ID, domain.OutboxEventFacilityApprovalConcluded, map[string]any{
			"facility_id":         facility.ID,
			"approval_process_id": facility.ApprovalProcessID,
			"approved":            approved,
		}); err != nil {
			return err
		}

		if !approved {
			return uc.facilityRepo.Update(ctx, tx, facility)
		}
		return uc.settle(ctx, tx, facility, audit)
	})
	if err != nil {
		uc.recordError("apply_approval_outcome")
		return nil, err
	}

	return facility, nil
}

// settle re-evaluates collateralization, activates when possible and stores
// the facility.
func (uc *CreditFacilityUseCase) settle(ctx context.Context, tx Transaction, facility *domain.CreditFacility, audit domain.AuditInfo) error {
	price, err := uc.book.currentPrice(ctx)
	if err != nil {
		return err
	}

	if err := uc.book.refreshCollateralization(ctx, tx, facility, price, audit); err != nil {
		return err
	}

	activated, err := uc.book.activate(ctx, tx, facility, price, time.Now().UTC(), audit)
	if err != nil {
		return err
	}
	if activated {
		if err := uc.book.refreshCollateralization(ctx, tx, facility, price, audit); err != nil {
			return err
		}
	}

	return uc.facilityRepo.Update(ctx, tx, facility)
}

// RecordInterest books a caller-computed interest amount for the period
// ending at periodEnd. Each period is booked at most once, in the ledger
// after commit.
func (uc *CreditFacilityUseCase) RecordInterest(ctx context.Context, facilityID string, amount decimal.Decimal, periodEnd time.Time) (*domain.CreditFacility, error) {
	var facility *domain.CreditFacility
	err := runInTx(ctx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
		audit, err := uc.authorizer.Enforce(ctx, tx, domain.AuditObjectCreditFacility, facilityID, domain.AuditActionFacilityRecordInterest)
		if err != nil {
			return err
		}

		facility, err = uc.facilityRepo.GetByIDTx(ctx, tx, facilityID)
		if err != nil {
			return err
		}

		result, err := facility.RecordInterestAccrual(amount, periodEnd.UTC(), audit)
		if err != nil || result.WasIgnored() {
			return err
		}

		accrual := result.Value()
		obligation, err := domain.CreateObligation(accrual.Obligation, audit)
		if err != nil {
			return err
		}
		if err := uc.book.obligationRepo.Create(ctx, tx, obligation); err != nil {
			return err
		}
		if uc.metrics != nil {
			uc.metrics.ObligationsCreated.WithLabelValues(string(obligation.Type)).Inc()
		}

		if err := uc.book.outbox.emit(ctx, tx, domain.AggregateTypeCreditFacility, facility.ID, domain.OutboxEventFacilityInterestAccrued, map[string]any{
			"facility_id":               facility.ID,
			"obligation_id":             obligation.ID,
			"amount":                    amount.String(),
			"period_end":                periodEnd.UTC().Format(time.RFC3339),
			domain.OutboxPayloadPosting: accrual.Posting,
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

		return uc.facilityRepo.Update(ctx, tx, facility)
	})
	if err != nil {
		uc.recordError("record_interest")
		return nil, err
	}

	return facility, nil
}

// FacilityView is a facility together with its computed balances.
type FacilityView struct {
	Facility          *domain.CreditFacility
	Balance           domain.FacilityBalance
	Collateralization domain.CollateralizationState
	CVL               *decimal.Decimal
	Price             decimal.Decimal
	Obligations       []*domain.Obligation
}

// Get returns a facility with its balance and current collateralization.
func (uc *CreditFacilityUseCase) Get(ctx context.Context, facilityID string) (*FacilityView, error) {
	if err := uc.authorizer.Authorize(ctx, domain.AuditActionFacilityRead); err != nil {
		return nil, err
	}

	facility, err := uc.facilityRepo.GetByID(ctx, facilityID)
	if err != nil {
		return nil, err
	}

	obligations, err := uc.book.obligationRepo.ListByFacility(ctx, facilityID)
	if err != nil {
		return nil, err
	}

	price, err := uc.book.currentPrice(ctx)
	if err != nil {
		return nil, err
	}

	balance := facility.Balance(obligations)
	view := &FacilityView{
		Facility:          facility,
		Balance:           balance,
		Collateralization: facility.Collateralization(price, balance),
		Price:             price,
		Obligations:       obligations,
	}

	exposure := facility.Amount
	if facility.IsActivated() {
		exposure = balance.TotalOutstanding()
	}
	if cvl, ok := domain.CVL(facility.Collateral(), price, exposure); ok {
		view.CVL = &cvl
	}

	return view, nil
}

// List returns facilities page by page.
func (uc *CreditFacilityUseCase) List(ctx context.Context, limit, offset int) ([]*domain.CreditFacility, error) {
	if err := uc.authorizer.Authorize(ctx, domain.AuditActionFacilityRead); err != nil {
		return nil, err
	}
	return uc.facilityRepo.List(ctx, limit, offset)
}

// ListDisbursals returns the disbursals of a facility.
func (uc *CreditFacilityUseCase) ListDisbursals(ctx context.Context, facilityID string) ([]*domain.Disbursal, error) {
	if err := uc.authorizer.Authorize(ctx, domain.AuditActionDisbursalRead); err != nil {
		return nil, err
	}
	return uc.book.disbursalRepo.ListByFacility(ctx, facilityID)
}

// ProcessMaturity expires every active facility whose maturity date passed
// and closes those with nothing outstanding. It returns how many facilities
// it matured.
func (uc *CreditFacilityUseCase) ProcessMaturity(ctx context.Context, now time.Time) (int, error) {
	ids, err := uc.facilityRepo.ListMaturing(ctx, now, DefaultBatchSize)
	if err != nil {
		return 0, err
	}

	matured := 0
	for _, id := range ids {
		applied := false
		err := runInTx(ctx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
			audit, err := uc.authorizer.Enforce(ctx, tx, domain.AuditObjectCreditFacility, id, domain.AuditActionFacilityMature)
			if err != nil {
				return err
			}

			facility, err := uc.facilityRepo.GetByIDTx(ctx, tx, id)
			if err != nil {
				return err
			}

			applied = false
			result, err := facility.Mature(now, audit)
			if err != nil || result.WasIgnored() {
				return err
			}

			if err := uc.book.outbox.emit(ctx, tx, domain.AggregateTypeCreditFacility, facility.ID, domain.OutboxEventFacilityMatured, map[string]any{
				"facility_id": facility.ID,
				"matured_at":  result.Value().Format(time.RFC3339),
			}); err != nil {
				return err
			}

			if _, err := uc.book.complete(ctx, tx, facility, audit); err != nil {
				return err
			}

			applied = true
			return uc.facilityRepo.Update(ctx, tx, facility)
		})
		if err != nil {
			uc.recordError("process_maturity")
			uc.logger.Error().Err(err).Str("facility_id", id).Msg("failed to mature credit facility")
			continue
		}

		if !applied {
			continue
		}
		matured++
		if uc.metrics != nil {
			uc.metrics.FacilitiesMatured.Inc()
		}
	}

	return matured, nil
}

// SetCollateralPrice stores a new collateral price and re-evaluates the
// collateralization of every open facility against it.
func (uc *CreditFacilityUseCase) SetCollateralPrice(ctx context.Context, price decimal.Decimal) (int, error) {
	if !price.IsPositive() {
		return 0, domain.ErrInvalidAmount
	}

	err := runInTx(ctx, uc.txManager, nil, func(ctx context.Context, tx Transaction) error {
		if _, err := uc.authorizer.Enforce(ctx, tx, domain.AuditObjectCollateralPrice, "", domain.AuditActionCollateralPriceSet); err != nil {
			return err
		}
		return uc.book.prices.SetPrice(ctx, price)
	})
	if err != nil {
		uc.recordError("set_collateral_price")
		return 0, err
	}

	uc.logger.Info().Str("price", price.String()).Msg("collateral price updated")

	return uc.RefreshCollateralization(ctx)
}

// RefreshCollateralization records collateralization changes of all open
// facilities at the current price, activating those that became ready, and
// returns how many changed.
func (uc *CreditFacilityUseCase) RefreshCollateralization(ctx context.Context) (int, error) {
	changed := 0
	for offset := 0; ; offset += DefaultBatchSize {
		facilities, err := uc.facilityRepo.List(ctx, DefaultBatchSize, offset)
		if err != nil {
			return changed, err
		}

		for _, f := range facilities {
			if f.Status() == domain.CreditFacilityStatusClosed {
				continue
			}

			updated := false
			err := runInTx(ctx, uc.txManager, uc.retrier, func(ctx context.Context, tx Transaction) error {
				audit, err := uc.authorizer.Enforce(ctx, tx, domain.AuditObjectCreditFacility, f.ID, domain.AuditActionFacilityUpdateCollateral)
				if err != nil {
					return err
				}

				facility, err := uc.facilityRepo.GetByIDTx(ctx, tx, f.ID)
				if err != nil {
					return err
				}

				before := facility.Events.Len()
				if err := uc.settle(ctx, tx, facility, audit); err != nil {
					return err
				}
				updated = facility.Events.Len() > before
				return nil
			})
			if err != nil {
				uc.recordError("refresh_collateralization")
				uc.logger.Error().Err(err).Str("facility_id", f.ID).Msg("failed to refresh collateralization")
				continue
			}
			if updated {
				changed++
			}
		}

		if len(facilities) < DefaultBatchSize {
			return changed, nil
		}
	}
}

func (uc *CreditFacilityUseCase) recordError(operation string) {
	if uc.metrics != nil {
		uc.metrics.UseCaseErrors.WithLabelValues(operation).Inc()
	}
}
