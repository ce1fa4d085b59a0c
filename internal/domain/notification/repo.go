package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Create inserts a pending notification. A second insert for the same
	// snapshot hits the unique index and returns the driver's
	// unique-violation error.
	Create(ctx context.Context, n *Notification) error
	GetByID(ctx context.Context, id uuid.UUID) (*Notification, error)
	List(ctx context.Context, status string, limit, offset int) ([]*Notification, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Notification, int, error)

	// ApplyStatus is the first-write-wins lifecycle update: it sets the
	// status and stamps the matching timestamp column only when that column
	// is still NULL. The status write is monotonic in SQL: a lifecycle
	// status only applies over a lower-ranked one, and a failure status only
	// applies before the message reached the recipient, so a caller working
	// from a stale read can never downgrade the row or resurrect a failed
	// notification. Returns false when the update did not apply.
	ApplyStatus(ctx context.Context, id uuid.UUID, status string, ts time.Time, errMsg *string) (bool, error)

	// Fail is the terminal write for the retry ceiling: it moves the
	// notification to failed regardless of how far delivery got, unless it
	// was acknowledged or already failed. Returns false when the update did
	// not apply.
	Fail(ctx context.Context, id uuid.UUID, ts time.Time, errMsg *string) (bool, error)

	// Escalate flips the flag, stamps escalated_at with this breach time
	// (resetting the SLA window) and bumps retry_count. Returns false when
	// the notification is no longer sweepable (acknowledged or failed in
	// the meantime).
	Escalate(ctx context.Context, id uuid.UUID, ts time.Time) (bool, error)

	// ListSweepable returns HIGH/CRITICAL escalation notifications not yet
	// acknowledged or failed whose SLA window (measured from the last
	// escalation, or creation) expired before the cutoff per priority.
	ListSweepable(ctx context.Context, now time.Time, slaCritical, slaHigh time.Duration) ([]*Notification, error)

	Stats(ctx context.Context) (*Stats, error)
}

type AnalyticsRepository interface {
	// Record sets the given duration columns, each at most once; later
	// writes to an already-set column are ignored.
	Record(ctx context.Context, a *Analytics) error
	Get(ctx context.Context, notificationID uuid.UUID) (*Analytics, error)
}
