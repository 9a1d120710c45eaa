package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/gocredit/internal/domain"
	"github.com/iho/gocredit/internal/usecase"
)

// PaymentRepository implements usecase.PaymentRepository.
type PaymentRepository struct {
	db querier
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return newPaymentRepository(pool)
}

func newPaymentRepository(db querier) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create stores a payment and its allocations.
func (r *PaymentRepository) Create(ctx context.Context, tx usecase.Transaction, payment *domain.Payment) error {
	db := txQuerier(tx)

	_, err := db.Exec(ctx, `
		INSERT INTO payments (id, facility_id, amount, source_account_id, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		payment.ID,
		payment.FacilityID,
		numeric(payment.Amount),
		payment.SourceAccountID,
		timestamptz(payment.RecordedAt),
	)
	if err != nil {
		return mapWriteError(err)
	}

	for _, a := range payment.Allocations {
		_, err := db.Exec(ctx, `
			INSERT INTO payment_allocations (
				id, payment_id, facility_id, obligation_id, obligation_type,
				amount, receivable_account_id, payment_source_account_id, recorded_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			a.ID,
			a.PaymentID,
			a.FacilityID,
			a.ObligationID,
			string(a.ObligationType),
			numeric(a.Amount),
			a.ReceivableAccountID,
			a.PaymentSourceAccountID,
			timestamptz(a.RecordedAt),
		)
		if err != nil {
			return mapWriteError(err)
		}
	}

	return nil
}

// GetByID retrieves a payment with its allocations.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	var (
		payment    domain.Payment
		amount     pgtype.Numeric
		recordedAt pgtype.Timestamptz
	)

	err := r.db.QueryRow(ctx, `
		SELECT id, facility_id, amount, source_account_id, recorded_at
		FROM payments
		WHERE id = $1
	`, id).Scan(&payment.ID, &payment.FacilityID, &amount, &payment.SourceAccountID, &recordedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}
	payment.Amount = toDecimal(amount)
	payment.RecordedAt = recordedAt.Time

	allocations, err := r.allocations(ctx, payment.ID)
	if err != nil {
		return nil, err
	}
	payment.Allocations = allocations

	return &payment, nil
}

// ListByFacility lists the payments of a facility, newest first.
func (r *PaymentRepository) ListByFacility(ctx context.Context, facilityID string, limit, offset int) ([]*domain.Payment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, facility_id, amount, source_account_id, recorded_at
		FROM payments
		WHERE facility_id = $1
		ORDER BY recorded_at DESC, id
		LIMIT $2 OFFSET $3
	`, facilityID, limit, offset)
	if err != nil {
		return nil, err
	}

	var payments []*domain.Payment
	for rows.Next() {
		var (
			payment    domain.Payment
			amount     pgtype.Numeric
			recordedAt pgtype.Timestamptz
		)
		if err := rows.Scan(&payment.ID, &payment.FacilityID, &amount, &payment.SourceAccountID, &recordedAt); err != nil {
			rows.Close()
			return nil, err
		}
		payment.Amount = toDecimal(amount)
		payment.RecordedAt = recordedAt.Time
		payments = append(payments, &payment)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, p := range payments {
		allocations, err := r.allocations(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		p.Allocations = allocations
	}

	return payments, nil
}

func (r *PaymentRepository) allocations(ctx context.Context, paymentID string) ([]domain.NewPaymentAllocation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, payment_id, facility_id, obligation_id, obligation_type,
		       amount, receivable_account_id, payment_source_account_id, recorded_at
		FROM payment_allocations
		WHERE payment_id = $1
		ORDER BY id
	`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var allocations []domain.NewPaymentAllocation
	for rows.Next() {
		var (
			a              domain.NewPaymentAllocation
			obligationType string
			amount         pgtype.Numeric
			recordedAt     pgtype.Timestamptz
		)
		if err := rows.Scan(
			&a.ID,
			&a.PaymentID,
			&a.FacilityID,
			&a.ObligationID,
			&obligationType,
			&amount,
			&a.ReceivableAccountID,
			&a.PaymentSourceAccountID,
			&recordedAt,
		); err != nil {
			return nil, err
		}
		a.ObligationType = domain.ObligationType(obligationType)
		a.Amount = toDecimal(amount)
		a.RecordedAt = recordedAt.Time
		allocations = append(allocations, a)
	}

	return allocations, rows.Err()
}
