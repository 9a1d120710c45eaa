package domain

import (
	"fmt"
	"time"
)

// DomainEvent is implemented by every event payload stored in an entity log.
type DomainEvent interface {
	EventType() string
}

// Event is a single entry of an entity's event log.
type Event[E DomainEvent] struct {
	Sequence   int
	Payload    E
	Audit      AuditInfo
	RecordedAt time.Time
}

// EntityEvents is the append-only, strictly ordered event log of one entity.
// Events at positions below LenPersisted are stored; the rest are pending.
type EntityEvents[E DomainEvent] struct {
	entityID  string
	events    []Event[E]
	persisted int
}

// NewEntityEvents starts a fresh log whose events are all pending.
func NewEntityEvents[E DomainEvent](entityID string, audit AuditInfo, payloads ...E) *EntityEvents[E] {
	ev := &EntityEvents[E]{entityID: entityID}
	for _, p := range payloads {
		ev.Push(p, audit)
	}
	return ev
}

// LoadEntityEvents rebuilds a log from stored events. Sequences must start at 1
// and be contiguous.
func LoadEntityEvents[E DomainEvent](entityID string, events []Event[E]) (*EntityEvents[E], error) {
	if len(events) == 0 {
		return nil, ErrUninitializedEntity
	}

	for i, e := range events {
		if e.Sequence != i+1 {
			return nil, fmt.Errorf("%w: entity %s expected sequence %d, got %d", ErrEventSequenceGap, entityID, i+1, e.Sequence)
		}
	}

	loaded := make([]Event[E], len(events))
	copy(loaded, events)

	return &EntityEvents[E]{
		entityID:  entityID,
		events:    loaded,
		persisted: len(loaded),
	}, nil
}

// EntityID returns the id of the owning entity.
func (l *EntityEvents[E]) EntityID() string {
	return l.entityID
}

// Push appends a pending event.
func (l *EntityEvents[E]) Push(payload E, audit AuditInfo) {
	l.events = append(l.events, Event[E]{
		Sequence:   len(l.events) + 1,
		Payload:    payload,
		Audit:      audit,
		RecordedAt: audit.RecordedAt,
	})
}

// All returns every event, oldest first.
func (l *EntityEvents[E]) All() []Event[E] {
	return l.events
}

// Pending returns the events not yet persisted.
func (l *EntityEvents[E]) Pending() []Event[E] {
	return l.events[l.persisted:]
}

// HasPending reports whether there are events to persist.
func (l *EntityEvents[E]) HasPending() bool {
	return len(l.events) > l.persisted
}

// Len returns the total number of events.
func (l *EntityEvents[E]) Len() int {
	return len(l.events)
}

// LenPersisted is the stored version of the entity.
func (l *EntityEvents[E]) LenPersisted() int {
	return l.persisted
}

// MarkPersisted flags all pending events as stored at recordedAt.
func (l *EntityEvents[E]) MarkPersisted(recordedAt time.Time) {
	for i := l.persisted; i < len(l.events); i++ {
		if l.events[i].RecordedAt.IsZero() {
			l.events[i].RecordedAt = recordedAt
		}
	}
	l.persisted = len(l.events)
}

// Replay is the verdict of an idempotency scan over an event log.
type Replay int

const (
	// ReplayNotApplied means the transition has not happened yet.
	ReplayNotApplied Replay = iota
	// ReplaySameOutcome means the transition already happened with the requested outcome.
	ReplaySameOutcome
	// ReplayConflictingOutcome means the transition already happened with another outcome.
	ReplayConflictingOutcome
)

func (r Replay) String() string {
	switch r {
	case ReplaySameOutcome:
		return "same_outcome"
	case ReplayConflictingOutcome:
		return "conflicting_outcome"
	default:
		return "not_applied"
	}
}

// GuardReplay scans the log newest first and returns the first verdict other
// than ReplayNotApplied reported by match.
func GuardReplay[E DomainEvent](log *EntityEvents[E], match func(E) Replay) Replay {
	for i := len(log.events) - 1; i >= 0; i-- {
		if verdict := match(log.events[i].Payload); verdict != ReplayNotApplied {
			return verdict
		}
	}
	return ReplayNotApplied
}

// Idempotent carries the result of a guarded transition. An ignored result is
// success without side effects.
type Idempotent[T any] struct {
	value    T
	executed bool
}

// Executed wraps the result of a transition that was applied.
func Executed[T any](value T) Idempotent[T] {
	return Idempotent[T]{value: value, executed: true}
}

// Ignored signals that the transition had already been applied.
func Ignored[T any]() Idempotent[T] {
	return Idempotent[T]{}
}

// WasExecuted reports whether the transition was applied by this call.
func (i Idempotent[T]) WasExecuted() bool {
	return i.executed
}

// WasIgnored reports whether the call was a replay.
func (i Idempotent[T]) WasIgnored() bool {
	return !i.executed
}

// Value returns the wrapped result; zero when ignored.
func (i Idempotent[T]) Value() T {
	return i.value
}
