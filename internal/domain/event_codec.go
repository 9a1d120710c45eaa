package domain

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// EventCodec serializes the events of one aggregate as JSON tagged with their
// event type.
type EventCodec[E DomainEvent] struct {
	types map[string]reflect.Type
}

// NewEventCodec registers the concrete event types given as zero values.
func NewEventCodec[E DomainEvent](samples ...E) *EventCodec[E] {
	c := &EventCodec[E]{types: make(map[string]reflect.Type, len(samples))}
	for _, s := range samples {
		c.types[s.EventType()] = reflect.TypeOf(s)
	}
	return c
}

// Encode returns the event type and its JSON body.
func (c *EventCodec[E]) Encode(event E) (string, []byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode %s: %w", event.EventType(), err)
	}
	return event.EventType(), data, nil
}

// Decode rebuilds an event from its type and JSON body.
func (c *EventCodec[E]) Decode(eventType string, data []byte) (E, error) {
	var zero E

	t, ok := c.types[eventType]
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}

	ptr := reflect.New(t)
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return zero, fmt.Errorf("failed to decode %s: %w", eventType, err)
	}

	event, ok := ptr.Elem().Interface().(E)
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}
	return event, nil
}

var (
	ApprovalProcessEvents = NewEventCodec[ApprovalProcessEvent](
		ApprovalProcessInitialized{},
		ApprovalProcessApproved{},
		ApprovalProcessDenied{},
		ApprovalProcessConcluded{},
	)

	ObligationEvents = NewEventCodec[ObligationEvent](
		ObligationInitialized{},
		ObligationDueRecorded{},
		ObligationOverdueRecorded{},
		ObligationDefaultedRecorded{},
		ObligationPaymentAllocated{},
		ObligationCompleted{},
	)

	DisbursalEvents = NewEventCodec[DisbursalEvent](
		DisbursalInitialized{},
		DisbursalApprovalProcessConcluded{},
		DisbursalSettled{},
		DisbursalCancelled{},
	)

	CreditFacilityEvents = NewEventCodec[CreditFacilityEvent](
		CreditFacilityInitialized{},
		CreditFacilityApprovalProcessConcluded{},
		CreditFacilityCollateralUpdated{},
		CreditFacilityCollateralizationStateChanged{},
		CreditFacilityActivated{},
		CreditFacilityDisbursalInitiated{},
		CreditFacilityDisbursalConcluded{},
		CreditFacilityObligationRecorded{},
		CreditFacilityInterestAccrued{},
		CreditFacilityMatured{},
		CreditFacilityCompleted{},
	)
)
