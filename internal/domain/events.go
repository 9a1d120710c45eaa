package domain

import "time"

// Outbox event types
const (
	OutboxEventFacilityCreated           = "credit_facility.created"
	OutboxEventFacilityApprovalConcluded = "credit_facility.approval_concluded"
	OutboxEventFacilityActivated         = "credit_facility.activated"
	OutboxEventFacilityCollateralUpdated = "credit_facility.collateral_updated"
	OutboxEventFacilityCollateralization = "credit_facility.collateralization_changed"
	OutboxEventFacilityInterestAccrued   = "credit_facility.interest_accrued"
	OutboxEventFacilityMatured           = "credit_facility.matured"
	OutboxEventFacilityCompleted         = "credit_facility.completed"
	OutboxEventDisbursalInitiated        = "disbursal.initiated"
	OutboxEventDisbursalSettled          = "disbursal.settled"
	OutboxEventDisbursalCancelled        = "disbursal.cancelled"
	OutboxEventObligationStatusChanged   = "obligation.status_changed"
	OutboxEventPaymentRecorded           = "payment.recorded"
	OutboxEventApprovalConcluded         = "approval_process.concluded"
)

// Aggregate types
const (
	AggregateTypeCreditFacility  = "credit_facility"
	AggregateTypeDisbursal       = "disbursal"
	AggregateTypeObligation      = "obligation"
	AggregateTypePayment         = "payment"
	AggregateTypeApprovalProcess = "approval_process"
)

// OutboxEvent represents an event to be published. Sequence is assigned by
// storage and increases monotonically.
type OutboxEvent struct {
	ID            string
	Sequence      int64
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}

// PayloadString reads a string field of the payload.
func (e *OutboxEvent) PayloadString(key string) string {
	v, _ := e.Payload[key].(string)
	return v
}

// PayloadBool reads a boolean field of the payload.
func (e *OutboxEvent) PayloadBool(key string) bool {
	v, _ := e.Payload[key].(bool)
	return v
}

// FacilityID returns the facility the event belongs to, if any.
func (e *OutboxEvent) FacilityID() string {
	if e.AggregateType == AggregateTypeCreditFacility {
		return e.AggregateID
	}
	return e.PayloadString("facility_id")
}

// HistoryEntry is a row of the facility history projection.
type HistoryEntry struct {
	FacilityID string
	Sequence   int64
	EventType  string
	Summary    map[string]any
	RecordedAt time.Time
}
