package usecase

import "time"

const (
	// DefaultTransactionTimeout bounds one attempt of a use case transaction.
	DefaultTransactionTimeout = 10 * time.Second

	// DefaultBatchSize bounds how many entities a background job loads per run.
	DefaultBatchSize = 100

	// FacilityHistoryCursor names the outbox cursor of the history projection.
	FacilityHistoryCursor = "credit_facility_history"
)
