package ingress

import (
	"time"

	"github.com/google/uuid"
)

// Event is one coalesced change notification: a single event per committed
// write regardless of how many columns that write touched.
type Event struct {
	PatientID     uuid.UUID `json:"patient_id"`
	SourceTable   string    `json:"source_table"`
	ChangedFields []string  `json:"changed_fields"`
	OccurredAt    time.Time `json:"timestamp"`
}
