package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/gocredit/internal/domain"
	"github.com/iho/gocredit/internal/usecase"
)

// HistoryRepository implements usecase.HistoryRepository.
type HistoryRepository struct {
	db querier
}

// NewHistoryRepository creates a new HistoryRepository.
func NewHistoryRepository(pool *pgxpool.Pool) *HistoryRepository {
	return newHistoryRepository(pool)
}

func newHistoryRepository(db querier) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Append adds an entry. Re-appending the same outbox sequence is a no-op.
func (r *HistoryRepository) Append(ctx context.Context, tx usecase.Transaction, entry *domain.HistoryEntry) error {
	summary, err := json.Marshal(entry.Summary)
	if err != nil {
		return err
	}

	_, err = txQuerier(tx).Exec(ctx, `
		INSERT INTO facility_history (facility_id, sequence, event_type, summary, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (facility_id, sequence) DO NOTHING
	`,
		entry.FacilityID,
		entry.Sequence,
		entry.EventType,
		summary,
		entry.RecordedAt,
	)
	return err
}

// ListByFacility returns the history of a facility, oldest first.
func (r *HistoryRepository) ListByFacility(ctx context.Context, facilityID string, limit, offset int) ([]*domain.HistoryEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT facility_id, sequence, event_type, summary, recorded_at
		FROM facility_history
		WHERE facility_id = $1
		ORDER BY sequence
		LIMIT $2 OFFSET $3
	`, facilityID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]*domain.HistoryEntry, 0)
	for rows.Next() {
		var (
			entry   domain.HistoryEntry
			summary []byte
		)
		if err := rows.Scan(&entry.FacilityID, &entry.Sequence, &entry.EventType, &summary, &entry.RecordedAt); err != nil {
			return nil, err
		}
		if summary != nil {
			if err := json.Unmarshal(summary, &entry.Summary); err != nil {
				return nil, err
			}
		}
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// GetCursor returns the last projected sequence, locking the cursor row for
// the rest of tx. An unknown cursor starts at zero.
func (r *HistoryRepository) GetCursor(ctx context.Context, tx usecase.Transaction, name string) (int64, error) {
	var sequence int64
	err := txQuerier(tx).QueryRow(ctx, `
		SELECT sequence FROM projection_cursors WHERE name = $1 FOR UPDATE
	`, name).Scan(&sequence)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return sequence, err
}

// SaveCursor stores the last projected sequence.
func (r *HistoryRepository) SaveCursor(ctx context.Context, tx usecase.Transaction, name string, sequence int64) error {
	_, err := txQuerier(tx).Exec(ctx, `
		INSERT INTO projection_cursors (name, sequence, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET sequence = EXCLUDED.sequence, updated_at = now()
	`, name, sequence)
	return err
}
