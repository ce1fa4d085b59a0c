package notification

import (
	"time"

	"github.com/google/uuid"
)

// Lifecycle statuses. Forward-only: pending -> sent -> delivered -> read ->
// acknowledged; failed is reachable from pending and sent (and from the
// escalation sweeper once the retry ceiling is hit).
const (
	StatusPending      = "pending"
	StatusSent         = "sent"
	StatusDelivered    = "delivered"
	StatusRead         = "read"
	StatusAcknowledged = "acknowledged"
	StatusFailed       = "failed"
)

// statusRank orders the delivery lifecycle. failed sits outside the order.
func statusRank(status string) int {
	switch status {
	case StatusPending:
		return 0
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	case StatusAcknowledged:
		return 4
	default:
		return -1
	}
}

// Templates the delivery subsystem renders. The engine owns variable values
// only. Improvement notices are fire-and-forget and never swept.
const (
	TemplateEscalation  = "risk_escalation"
	TemplateImprovement = "risk_improvement"
)

// Notification maps to the notification table. One row per qualifying tier
// transition; snapshot_id is unique so replays cannot double-create.
type Notification struct {
	ID           uuid.UUID         `db:"id" json:"id"`
	PatientID    uuid.UUID         `db:"patient_id" json:"patient_id"`
	SnapshotID   uuid.UUID         `db:"snapshot_id" json:"snapshot_id"`
	Recipient    string            `db:"recipient" json:"recipient"`
	Priority     string            `db:"priority" json:"priority"`
	Subject      string            `db:"subject" json:"subject"`
	TemplateName string            `db:"template_name" json:"template_name"`
	Variables    map[string]string `db:"variables" json:"variables"`
	Status       string            `db:"status" json:"status"`
	RetryCount   int               `db:"retry_count" json:"retry_count"`
	Escalated    bool              `db:"escalated" json:"escalated"`
	EscalatedAt  *time.Time        `db:"escalated_at" json:"escalated_at,omitempty"`
	ErrorMessage *string           `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`

	SentAt         *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	DeliveredAt    *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	ReadAt         *time.Time `db:"read_at" json:"read_at,omitempty"`
	AcknowledgedAt *time.Time `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	FailedAt       *time.Time `db:"failed_at" json:"failed_at,omitempty"`
}

// Analytics maps to the notification_analytics table. Durations derive from
// the lifecycle timestamps relative to created_at; each is set at most once.
type Analytics struct {
	NotificationID        uuid.UUID `db:"notification_id" json:"notification_id"`
	TimeToViewSecs        *int64    `db:"time_to_view_secs" json:"time_to_view_secs,omitempty"`
	TimeToAcknowledgeSecs *int64    `db:"time_to_acknowledge_secs" json:"time_to_acknowledge_secs,omitempty"`
	TimeToResolveSecs     *int64    `db:"time_to_resolve_secs" json:"time_to_resolve_secs,omitempty"`
}

// DeliveryRequest is the outbound message for the delivery subsystem.
type DeliveryRequest struct {
	NotificationID uuid.UUID         `json:"notification_id"`
	Priority       string            `json:"priority"`
	PatientID      uuid.UUID         `json:"patient_id"`
	Recipient      string            `json:"recipient"`
	TemplateName   string            `json:"template_name"`
	Variables      map[string]string `json:"variables"`
}

// DeliveryCallback is the inbound status update from the delivery subsystem.
type DeliveryCallback struct {
	NotificationID uuid.UUID `json:"notification_id"`
	NewStatus      string    `json:"new_status"`
	Timestamp      time.Time `json:"timestamp"`
	Error          *string   `json:"error,omitempty"`
}

// Stats is the aggregate view behind GET /notifications/stats.
type Stats struct {
	Total     int            `json:"total"`
	ByStatus  map[string]int `json:"by_status"`
	Escalated int            `json:"escalated"`
}
