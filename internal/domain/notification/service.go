package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/renalert/renalert/internal/domain/patient"
	"github.com/renalert/renalert/internal/domain/risk"
)

// ErrNegativeDuration is the invariant violation raised when a callback
// timestamp precedes the notification's creation. Never clamped.
var ErrNegativeDuration = errors.New("negative lifecycle duration")

const uniqueViolation = "23505"

// DispatchPublisher pushes an outbound delivery request onto the dispatch
// stream. The delivery subsystem consumes it and renders the template.
type DispatchPublisher interface {
	PublishDelivery(ctx context.Context, req DeliveryRequest) error
}

// EscalationPolicy carries the sweep parameters from config.
type EscalationPolicy struct {
	SLACritical time.Duration
	SLAHigh     time.Duration
	MaxRetries  int
}

type Service struct {
	repo      Repository
	analytics AnalyticsRepository
	dispatch  DispatchPublisher
	policy    EscalationPolicy
	log       zerolog.Logger
}

func NewService(repo Repository, analytics AnalyticsRepository, dispatch DispatchPublisher, policy EscalationPolicy, log zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		analytics: analytics,
		dispatch:  dispatch,
		policy:    policy,
		log:       log.With().Str("component", "notification").Logger(),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func alertSummary(reasons []risk.AlertReason) string {
	if len(reasons) == 0 {
		return "No individual alert rules fired."
	}
	parts := make([]string, 0, len(reasons))
	for _, r := range reasons {
		parts = append(parts, fmt.Sprintf("[%s] %s", r.Severity, r.Message))
	}
	return strings.Join(parts, "; ")
}

func buildVariables(pat *patient.Patient, snap *risk.Snapshot) map[string]string {
	previous := "none"
	if snap.PreviousTier != nil {
		previous = string(*snap.PreviousTier)
	}
	return map[string]string{
		"patient_name":  pat.Name,
		"mrn":           pat.MRN,
		"doctor_name":   deref(pat.DoctorName),
		"facility":      deref(pat.Facility),
		"previous_tier": previous,
		"new_tier":      string(snap.Tier),
		"risk_score":    fmt.Sprintf("%.1f", snap.Score),
		"alert_summary": alertSummary(snap.AlertReasons),
		"assessed_date": snap.AssessedAt.Format("2006-01-02"),
		"assessed_time": snap.AssessedAt.Format("15:04 MST"),
	}
}

// NotifyTransition creates exactly one pending notification for a
// notification-worthy transition and publishes the delivery request. Safe to
// replay: the unique index on snapshot_id turns a second create for the same
// snapshot into a no-op.
func (s *Service) NotifyTransition(ctx context.Context, pat *patient.Patient, snap *risk.Snapshot) error {
	template := TemplateEscalation
	subject := fmt.Sprintf("CKD risk escalated to %s: %s", snap.Tier, pat.Name)
	if snap.Improved {
		template = TemplateImprovement
		subject = fmt.Sprintf("CKD risk improved to %s: %s", snap.Tier, pat.Name)
	}

	n := &Notification{
		PatientID:    pat.ID,
		SnapshotID:   snap.ID,
		Recipient:    deref(pat.Recipient),
		Priority:     string(snap.Tier),
		Subject:      subject,
		TemplateName: template,
		Variables:    buildVariables(pat, snap),
		Status:       StatusPending,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, n); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			s.log.Debug().
				Str("snapshot_id", snap.ID.String()).
				Msg("transition already notified")
			return nil
		}
		return fmt.Errorf("create notification: %w", err)
	}

	s.log.Info().
		Str("notification_id", n.ID.String()).
		Str("patient_id", pat.ID.String()).
		Str("priority", n.Priority).
		Str("template", n.TemplateName).
		Msg("notification created")

	if err := s.publish(ctx, n); err != nil {
		// Delivery trouble is notification state, not an engine error. The
		// sweeper re-emits HIGH/CRITICAL escalations left pending.
		s.log.Error().Err(err).
			Str("notification_id", n.ID.String()).
			Msg("delivery request publish failed")
	}
	return nil
}

func (s *Service) publish(ctx context.Context, n *Notification) error {
	return s.dispatch.PublishDelivery(ctx, DeliveryRequest{
		NotificationID: n.ID,
		Priority:       n.Priority,
		PatientID:      n.PatientID,
		Recipient:      n.Recipient,
		TemplateName:   n.TemplateName,
		Variables:      n.Variables,
	})
}

// ApplyCallback advances the delivery lifecycle from a callback. Duplicate
// and out-of-order callbacks are no-ops; callbacks for failed notifications
// are accepted and ignored; each timestamp is set at most once.
func (s *Service) ApplyCallback(ctx context.Context, cb DeliveryCallback) error {
	n, err := s.repo.GetByID(ctx, cb.NotificationID)
	if err != nil {
		return fmt.Errorf("load notification: %w", err)
	}

	if n.Status == StatusFailed {
		s.log.Info().
			Str("notification_id", n.ID.String()).
			Str("callback_status", cb.NewStatus).
			Msg("callback for failed notification ignored")
		return nil
	}

	switch cb.NewStatus {
	case StatusFailed:
		// Delivery failure is only meaningful before the message reached
		// the recipient.
		if statusRank(n.Status) > statusRank(StatusSent) {
			s.log.Warn().
				Str("notification_id", n.ID.String()).
				Str("current_status", n.Status).
				Msg("failure callback after delivery ignored")
			return nil
		}
	case StatusSent, StatusDelivered, StatusRead, StatusAcknowledged:
		if statusRank(cb.NewStatus) <= statusRank(n.Status) {
			s.log.Debug().
				Str("notification_id", n.ID.String()).
				Str("callback_status", cb.NewStatus).
				Str("current_status", n.Status).
				Msg("duplicate or out-of-order callback ignored")
			return nil
		}
	default:
		return fmt.Errorf("unknown callback status %q", cb.NewStatus)
	}

	applied, err := s.repo.ApplyStatus(ctx, n.ID, cb.NewStatus, cb.Timestamp, cb.Error)
	if err != nil {
		return fmt.Errorf("apply status: %w", err)
	}
	if !applied {
		// The row moved past this status between the read above and the
		// update: a concurrent callback, or the sweeper failing it at the
		// retry ceiling. The UPDATE's own guards decide, not the read.
		return nil
	}

	return s.recordAnalytics(ctx, n, cb.NewStatus, cb.Timestamp)
}

func (s *Service) recordAnalytics(ctx context.Context, n *Notification, status string, ts time.Time) error {
	secs := int64(ts.Sub(n.CreatedAt) / time.Second)
	if secs < 0 {
		return fmt.Errorf("%w: %s stamped %ds before creation of %s",
			ErrNegativeDuration, status, -secs, n.ID)
	}

	a := &Analytics{NotificationID: n.ID}
	switch status {
	case StatusRead:
		a.TimeToViewSecs = &secs
	case StatusAcknowledged:
		a.TimeToAcknowledgeSecs = &secs
		a.TimeToResolveSecs = &secs
	case StatusFailed:
		a.TimeToResolveSecs = &secs
	default:
		return nil
	}
	if err := s.analytics.Record(ctx, a); err != nil {
		return fmt.Errorf("record analytics: %w", err)
	}
	return nil
}

// Sweep is one escalation pass: every HIGH/CRITICAL escalation notification
// past its SLA window is escalated and re-emitted, or failed once the retry
// ceiling is reached. Returns (escalated, failed) counts.
func (s *Service) Sweep(ctx context.Context, now time.Time) (int, int, error) {
	breached, err := s.repo.ListSweepable(ctx, now, s.policy.SLACritical, s.policy.SLAHigh)
	if err != nil {
		return 0, 0, fmt.Errorf("list sweepable: %w", err)
	}

	var escalated, failed int
	for _, n := range breached {
		if n.RetryCount >= s.policy.MaxRetries {
			msg := fmt.Sprintf("unacknowledged after %d escalation retries", n.RetryCount)
			applied, err := s.repo.Fail(ctx, n.ID, now, &msg)
			if err != nil {
				return escalated, failed, fmt.Errorf("fail notification %s: %w", n.ID, err)
			}
			if !applied {
				continue
			}
			failed++
			s.log.Warn().
				Str("notification_id", n.ID.String()).
				Str("patient_id", n.PatientID.String()).
				Int("retry_count", n.RetryCount).
				Msg("notification failed after retry ceiling, needs manual follow-up")
			if err := s.recordAnalytics(ctx, n, StatusFailed, now); err != nil {
				return escalated, failed, err
			}
			continue
		}

		applied, err := s.repo.Escalate(ctx, n.ID, now)
		if err != nil {
			return escalated, failed, fmt.Errorf("escalate notification %s: %w", n.ID, err)
		}
		if !applied {
			// Acknowledged between the list and the update.
			continue
		}
		escalated++
		s.log.Info().
			Str("notification_id", n.ID.String()).
			Str("priority", n.Priority).
			Int("retry_count", n.RetryCount+1).
			Msg("notification escalated, re-emitting delivery request")
		if err := s.publish(ctx, n); err != nil {
			s.log.Error().Err(err).
				Str("notification_id", n.ID.String()).
				Msg("escalation delivery request publish failed")
		}
	}
	return escalated, failed, nil
}

// ── Query surface ──

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Notification, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]*Notification, int, error) {
	return s.repo.List(ctx, status, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Notification, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.repo.Stats(ctx)
}

func (s *Service) GetAnalytics(ctx context.Context, notificationID uuid.UUID) (*Analytics, error) {
	return s.analytics.Get(ctx, notificationID)
}
