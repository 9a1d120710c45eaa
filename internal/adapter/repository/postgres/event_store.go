package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/iho/gocredit/internal/domain"
)

// eventStore reads and appends the event log of one aggregate type. Each
// aggregate also keeps a row in its entity table holding the stored version
// and the columns queries filter on.
type eventStore[E domain.DomainEvent] struct {
	table string
	codec *domain.EventCodec[E]
	now   func() time.Time
}

func newEventStore[E domain.DomainEvent](table string, codec *domain.EventCodec[E]) eventStore[E] {
	return eventStore[E]{
		table: table,
		codec: codec,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// create inserts the entity row with insertSQL and appends every pending event.
func (s eventStore[E]) create(ctx context.Context, db querier, events *domain.EntityEvents[E], insertSQL string, args ...any) error {
	if _, err := db.Exec(ctx, insertSQL, args...); err != nil {
		return mapWriteError(err)
	}
	return s.append(ctx, db, events)
}

// update bumps the entity row with updateSQL, which must match on the stored
// version, and appends the pending events. Nothing is written when there is
// nothing pending.
func (s eventStore[E]) update(ctx context.Context, db querier, events *domain.EntityEvents[E], updateSQL string, args ...any) error {
	if !events.HasPending() {
		return nil
	}

	tag, err := db.Exec(ctx, updateSQL, args...)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s %s at version %d", domain.ErrConcurrentModification, s.table, events.EntityID(), events.LenPersisted())
	}
	return s.append(ctx, db, events)
}

func (s eventStore[E]) append(ctx context.Context, db querier, events *domain.EntityEvents[E]) error {
	now := s.now()
	query := `
		INSERT INTO ` + s.table + ` (entity_id, sequence, event_type, payload, audit_entry_id, audit_subject, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	for _, e := range events.Pending() {
		eventType, payload, err := s.codec.Encode(e.Payload)
		if err != nil {
			return err
		}

		recordedAt := e.RecordedAt
		if recordedAt.IsZero() {
			recordedAt = now
		}

		if _, err := db.Exec(ctx, query,
			events.EntityID(),
			e.Sequence,
			eventType,
			payload,
			e.Audit.EntryID,
			e.Audit.Subject,
			recordedAt,
		); err != nil {
			return mapWriteError(err)
		}
	}

	events.MarkPersisted(now)
	return nil
}

// load returns the log of one entity, or notFound when it has no events.
func (s eventStore[E]) load(ctx context.Context, db querier, id string, notFound error) (*domain.EntityEvents[E], error) {
	logs, err := s.loadMany(ctx, db, []string{id})
	if err != nil {
		return nil, err
	}

	events, ok := logs[id]
	if !ok {
		return nil, notFound
	}
	return events, nil
}

// loadMany returns the logs of the given entities keyed by id. Entities
// without events are absent from the result.
func (s eventStore[E]) loadMany(ctx context.Context, db querier, ids []string) (map[string]*domain.EntityEvents[E], error) {
	if len(ids) == 0 {
		return map[string]*domain.EntityEvents[E]{}, nil
	}

	query := `
		SELECT entity_id, sequence, event_type, payload, audit_entry_id, audit_subject, recorded_at
		FROM ` + s.table + `
		WHERE entity_id = ANY($1)
		ORDER BY entity_id, sequence
	`

	rows, err := db.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	grouped := make(map[string][]domain.Event[E], len(ids))
	for rows.Next() {
		var (
			entityID  string
			sequence  int
			eventType string
			payload   []byte
			audit     domain.AuditInfo
			recorded  time.Time
		)
		if err := rows.Scan(&entityID, &sequence, &eventType, &payload, &audit.EntryID, &audit.Subject, &recorded); err != nil {
			return nil, err
		}

		event, err := s.codec.Decode(eventType, payload)
		if err != nil {
			return nil, err
		}
		audit.RecordedAt = recorded

		grouped[entityID] = append(grouped[entityID], domain.Event[E]{
			Sequence:   sequence,
			Payload:    event,
			Audit:      audit,
			RecordedAt: recorded,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logs := make(map[string]*domain.EntityEvents[E], len(grouped))
	for id, events := range grouped {
		log, err := domain.LoadEntityEvents(id, events)
		if err != nil {
			return nil, err
		}
		logs[id] = log
	}
	return logs, nil
}

// scanIDs collects a single text column.
func scanIDs(ctx context.Context, db querier, query string, args ...any) ([]string, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
