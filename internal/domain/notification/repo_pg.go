package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/renalert/renalert/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Notification Repository ===========

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const notificationCols = `id, patient_id, snapshot_id, recipient, priority, subject,
	template_name, variables, status, retry_count, escalated, escalated_at,
	error_message, created_at, sent_at, delivered_at, read_at, acknowledged_at, failed_at`

func (r *repoPG) scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	var variables []byte
	err := row.Scan(&n.ID, &n.PatientID, &n.SnapshotID, &n.Recipient, &n.Priority, &n.Subject,
		&n.TemplateName, &variables, &n.Status, &n.RetryCount, &n.Escalated, &n.EscalatedAt,
		&n.ErrorMessage, &n.CreatedAt, &n.SentAt, &n.DeliveredAt, &n.ReadAt, &n.AcknowledgedAt, &n.FailedAt)
	if err != nil {
		return nil, err
	}
	if len(variables) > 0 {
		if err := json.Unmarshal(variables, &n.Variables); err != nil {
			return nil, fmt.Errorf("decode variables: %w", err)
		}
	}
	return &n, nil
}

func (r *repoPG) Create(ctx context.Context, n *Notification) error {
	n.ID = uuid.New()
	variables, err := json.Marshal(n.Variables)
	if err != nil {
		return fmt.Errorf("encode variables: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO notification (id, patient_id, snapshot_id, recipient, priority, subject,
			template_name, variables, status, retry_count, escalated, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		n.ID, n.PatientID, n.SnapshotID, n.Recipient, n.Priority, n.Subject,
		n.TemplateName, variables, n.Status, n.RetryCount, n.Escalated, n.CreatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Notification, error) {
	return r.scanNotification(r.conn(ctx).QueryRow(ctx,
		`SELECT `+notificationCols+` FROM notification WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, status string, limit, offset int) ([]*Notification, int, error) {
	where := ``
	args := []interface{}{}
	if status != "" {
		where = ` WHERE status = $1`
		args = append(args, status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM notification`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + notificationCols + ` FROM notification` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Notification, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM notification WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+notificationCols+` FROM notification
		 WHERE patient_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *repoPG) collect(rows pgx.Rows, total int) ([]*Notification, int, error) {
	var out []*Notification
	for rows.Next() {
		n, err := r.scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, n)
	}
	return out, total, rows.Err()
}

// Timestamp column per lifecycle status. Column names come from this fixed
// map, never from caller input.
var statusColumns = map[string]string{
	StatusSent:         "sent_at",
	StatusDelivered:    "delivered_at",
	StatusRead:         "read_at",
	StatusAcknowledged: "acknowledged_at",
	StatusFailed:       "failed_at",
}

func (r *repoPG) ApplyStatus(ctx context.Context, id uuid.UUID, status string, ts time.Time, errMsg *string) (bool, error) {
	col, ok := statusColumns[status]
	if !ok {
		return false, fmt.Errorf("status %q has no timestamp column", status)
	}

	if status == StatusFailed {
		// A delivery-failure callback only applies before the message
		// reached the recipient.
		tag, err := r.conn(ctx).Exec(ctx, `
			UPDATE notification
			SET status = $2, failed_at = $3, error_message = COALESCE($4, error_message)
			WHERE id = $1 AND failed_at IS NULL AND status IN ($5, $6)`,
			id, status, ts, errMsg, StatusPending, StatusSent)
		if err != nil {
			return false, err
		}
		return tag.RowsAffected() > 0, nil
	}

	// The rank guard lives in the UPDATE itself: the service's checks run on
	// a read that may be stale by the time this executes. Unknown and failed
	// statuses rank above everything, so nothing applies over them.
	tag, err := r.conn(ctx).Exec(ctx, fmt.Sprintf(`
		UPDATE notification
		SET status = $2, %s = $3, error_message = COALESCE($4, error_message)
		WHERE id = $1 AND %s IS NULL
		  AND CASE status
		        WHEN $5 THEN 0
		        WHEN $6 THEN 1
		        WHEN $7 THEN 2
		        WHEN $8 THEN 3
		        WHEN $9 THEN 4
		        ELSE 99
		      END < $10`, col, col),
		id, status, ts, errMsg,
		StatusPending, StatusSent, StatusDelivered, StatusRead, StatusAcknowledged,
		statusRank(status))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) Fail(ctx context.Context, id uuid.UUID, ts time.Time, errMsg *string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE notification
		SET status = $2, failed_at = $3, error_message = COALESCE($4, error_message)
		WHERE id = $1 AND failed_at IS NULL AND acknowledged_at IS NULL`,
		id, StatusFailed, ts, errMsg)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) Escalate(ctx context.Context, id uuid.UUID, ts time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE notification
		SET escalated = TRUE,
		    escalated_at = $2,
		    retry_count = retry_count + 1
		WHERE id = $1
		  AND acknowledged_at IS NULL
		  AND status NOT IN ($3, $4)`,
		id, ts, StatusAcknowledged, StatusFailed)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) ListSweepable(ctx context.Context, now time.Time, slaCritical, slaHigh time.Duration) ([]*Notification, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+notificationCols+` FROM notification
		WHERE template_name = $1
		  AND priority IN ('HIGH', 'CRITICAL')
		  AND acknowledged_at IS NULL
		  AND status NOT IN ($2, $3)
		  AND COALESCE(escalated_at, created_at) <
		      CASE priority WHEN 'CRITICAL' THEN $4::timestamptz ELSE $5::timestamptz END
		ORDER BY created_at`,
		TemplateEscalation, StatusAcknowledged, StatusFailed,
		now.Add(-slaCritical), now.Add(-slaHigh))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		n, err := r.scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *repoPG) Stats(ctx context.Context) (*Stats, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT status, COUNT(*) FROM notification GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	s := &Stats{ByStatus: map[string]int{}}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		s.ByStatus[status] = count
		s.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM notification WHERE escalated`).Scan(&s.Escalated); err != nil {
		return nil, err
	}
	return s, nil
}

// =========== Analytics Repository ===========

type analyticsRepoPG struct{ pool *pgxpool.Pool }

func NewAnalyticsRepoPG(pool *pgxpool.Pool) AnalyticsRepository {
	return &analyticsRepoPG{pool: pool}
}

func (r *analyticsRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *analyticsRepoPG) Record(ctx context.Context, a *Analytics) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO notification_analytics (notification_id, time_to_view_secs, time_to_acknowledge_secs, time_to_resolve_secs)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (notification_id) DO UPDATE SET
			time_to_view_secs        = COALESCE(notification_analytics.time_to_view_secs, EXCLUDED.time_to_view_secs),
			time_to_acknowledge_secs = COALESCE(notification_analytics.time_to_acknowledge_secs, EXCLUDED.time_to_acknowledge_secs),
			time_to_resolve_secs     = COALESCE(notification_analytics.time_to_resolve_secs, EXCLUDED.time_to_resolve_secs)`,
		a.NotificationID, a.TimeToViewSecs, a.TimeToAcknowledgeSecs, a.TimeToResolveSecs)
	return err
}

func (r *analyticsRepoPG) Get(ctx context.Context, notificationID uuid.UUID) (*Analytics, error) {
	var a Analytics
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT notification_id, time_to_view_secs, time_to_acknowledge_secs, time_to_resolve_secs
		FROM notification_analytics WHERE notification_id = $1`, notificationID).
		Scan(&a.NotificationID, &a.TimeToViewSecs, &a.TimeToAcknowledgeSecs, &a.TimeToResolveSecs)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
