package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/renalert/renalert/internal/domain/patient"
	"github.com/renalert/renalert/internal/domain/risk"
)

// ── Mock Repositories ──

type mockRepo struct {
	data map[uuid.UUID]*Notification

	// afterGet runs once a read returns, to interleave a concurrent writer
	// between a caller's read and its update.
	afterGet func()
}

func newMockRepo() *mockRepo {
	return &mockRepo{data: map[uuid.UUID]*Notification{}}
}

func (m *mockRepo) Create(_ context.Context, n *Notification) error {
	for _, existing := range m.data {
		if existing.SnapshotID == n.SnapshotID {
			return &pgconn.PgError{Code: uniqueViolation, ConstraintName: "notification_snapshot_id_key"}
		}
	}
	n.ID = uuid.New()
	cp := *n
	m.data[n.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Notification, error) {
	n, ok := m.data[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *n
	if m.afterGet != nil {
		m.afterGet()
	}
	return &cp, nil
}

func (m *mockRepo) List(_ context.Context, status string, limit, offset int) ([]*Notification, int, error) {
	var out []*Notification
	for _, n := range m.data {
		if status == "" || n.Status == status {
			out = append(out, n)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Notification, int, error) {
	var out []*Notification
	for _, n := range m.data {
		if n.PatientID == patientID {
			out = append(out, n)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) tsField(n *Notification, status string) **time.Time {
	switch status {
	case StatusSent:
		return &n.SentAt
	case StatusDelivered:
		return &n.DeliveredAt
	case StatusRead:
		return &n.ReadAt
	case StatusAcknowledged:
		return &n.AcknowledgedAt
	case StatusFailed:
		return &n.FailedAt
	}
	return nil
}

func (m *mockRepo) ApplyStatus(_ context.Context, id uuid.UUID, status string, ts time.Time, errMsg *string) (bool, error) {
	n, ok := m.data[id]
	if !ok {
		return false, nil
	}
	if status == StatusFailed {
		if n.FailedAt != nil || (n.Status != StatusPending && n.Status != StatusSent) {
			return false, nil
		}
		t := ts
		n.Status = StatusFailed
		n.FailedAt = &t
		if errMsg != nil {
			n.ErrorMessage = errMsg
		}
		return true, nil
	}
	field := m.tsField(n, status)
	if field == nil || *field != nil {
		return false, nil
	}
	if statusRank(n.Status) < 0 || statusRank(n.Status) >= statusRank(status) {
		return false, nil
	}
	t := ts
	*field = &t
	n.Status = status
	if errMsg != nil {
		n.ErrorMessage = errMsg
	}
	return true, nil
}

func (m *mockRepo) Fail(_ context.Context, id uuid.UUID, ts time.Time, errMsg *string) (bool, error) {
	n, ok := m.data[id]
	if !ok || n.FailedAt != nil || n.AcknowledgedAt != nil {
		return false, nil
	}
	t := ts
	n.Status = StatusFailed
	n.FailedAt = &t
	if errMsg != nil {
		n.ErrorMessage = errMsg
	}
	return true, nil
}

func (m *mockRepo) Escalate(_ context.Context, id uuid.UUID, ts time.Time) (bool, error) {
	n, ok := m.data[id]
	if !ok || n.AcknowledgedAt != nil || n.Status == StatusAcknowledged || n.Status == StatusFailed {
		return false, nil
	}
	t := ts
	n.Escalated = true
	n.EscalatedAt = &t
	n.RetryCount++
	return true, nil
}

func (m *mockRepo) ListSweepable(_ context.Context, now time.Time, slaCritical, slaHigh time.Duration) ([]*Notification, error) {
	var out []*Notification
	for _, n := range m.data {
		if n.TemplateName != TemplateEscalation {
			continue
		}
		if n.Priority != "HIGH" && n.Priority != "CRITICAL" {
			continue
		}
		if n.AcknowledgedAt != nil || n.Status == StatusAcknowledged || n.Status == StatusFailed {
			continue
		}
		sla := slaHigh
		if n.Priority == "CRITICAL" {
			sla = slaCritical
		}
		basis := n.CreatedAt
		if n.EscalatedAt != nil {
			basis = *n.EscalatedAt
		}
		if basis.Before(now.Add(-sla)) {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) Stats(_ context.Context) (*Stats, error) {
	s := &Stats{ByStatus: map[string]int{}}
	for _, n := range m.data {
		s.ByStatus[n.Status]++
		s.Total++
		if n.Escalated {
			s.Escalated++
		}
	}
	return s, nil
}

type mockAnalyticsRepo struct {
	data map[uuid.UUID]*Analytics
}

func (m *mockAnalyticsRepo) Record(_ context.Context, a *Analytics) error {
	existing, ok := m.data[a.NotificationID]
	if !ok {
		cp := *a
		m.data[a.NotificationID] = &cp
		return nil
	}
	if existing.TimeToViewSecs == nil {
		existing.TimeToViewSecs = a.TimeToViewSecs
	}
	if existing.TimeToAcknowledgeSecs == nil {
		existing.TimeToAcknowledgeSecs = a.TimeToAcknowledgeSecs
	}
	if existing.TimeToResolveSecs == nil {
		existing.TimeToResolveSecs = a.TimeToResolveSecs
	}
	return nil
}

func (m *mockAnalyticsRepo) Get(_ context.Context, notificationID uuid.UUID) (*Analytics, error) {
	return m.data[notificationID], nil
}

type mockDispatch struct {
	requests []DeliveryRequest
	err      error
}

func (m *mockDispatch) PublishDelivery(_ context.Context, req DeliveryRequest) error {
	if m.err != nil {
		return m.err
	}
	m.requests = append(m.requests, req)
	return nil
}

// ── Fixture ──

func testPolicy() EscalationPolicy {
	return EscalationPolicy{
		SLACritical: 15 * time.Minute,
		SLAHigh:     60 * time.Minute,
		MaxRetries:  3,
	}
}

type fixture struct {
	svc       *Service
	repo      *mockRepo
	analytics *mockAnalyticsRepo
	dispatch  *mockDispatch
}

func newFixture() *fixture {
	f := &fixture{
		repo:      newMockRepo(),
		analytics: &mockAnalyticsRepo{data: map[uuid.UUID]*Analytics{}},
		dispatch:  &mockDispatch{},
	}
	f.svc = NewService(f.repo, f.analytics, f.dispatch, testPolicy(), zerolog.Nop())
	return f
}

func testPatient() *patient.Patient {
	doctor := "Dr. Osei"
	facility := "Riverside Clinic"
	recipient := "care-team@riverside.example"
	return &patient.Patient{
		ID:         uuid.New(),
		Name:       "Test Patient",
		MRN:        "MRN-42",
		DoctorName: &doctor,
		Facility:   &facility,
		Recipient:  &recipient,
	}
}

func escalationSnapshot(tier risk.Tier) *risk.Snapshot {
	return &risk.Snapshot{
		ID:         uuid.New(),
		PatientID:  uuid.New(),
		Score:      80,
		Tier:       tier,
		Escalated:  true,
		AlertReasons: []risk.AlertReason{
			{Severity: risk.SeverityCritical, Code: risk.CodeRapidDecline, Message: "Rapid eGFR decline (-12.0%/yr)"},
		},
		TriggerSource: risk.TriggerDataUpdate,
		AssessedAt:    time.Now().UTC(),
	}
}

// ── Tests ──

func TestNotifyTransitionCreatesPendingAndPublishes(t *testing.T) {
	f := newFixture()
	pat := testPatient()
	snap := escalationSnapshot(risk.TierCritical)

	if err := f.svc.NotifyTransition(context.Background(), pat, snap); err != nil {
		t.Fatalf("NotifyTransition: %v", err)
	}
	if len(f.repo.data) != 1 {
		t.Fatalf("notifications = %d, want 1", len(f.repo.data))
	}
	var n *Notification
	for _, v := range f.repo.data {
		n = v
	}
	if n.Status != StatusPending {
		t.Errorf("status = %s, want pending", n.Status)
	}
	if n.Priority != "CRITICAL" {
		t.Errorf("priority = %s, want CRITICAL", n.Priority)
	}
	if n.TemplateName != TemplateEscalation {
		t.Errorf("template = %s, want %s", n.TemplateName, TemplateEscalation)
	}
	if n.Variables["patient_name"] != "Test Patient" || n.Variables["mrn"] != "MRN-42" {
		t.Errorf("variables missing patient identity: %v", n.Variables)
	}
	if n.Variables["alert_summary"] == "" {
		t.Error("variables missing alert summary")
	}
	if len(f.dispatch.requests) != 1 {
		t.Fatalf("dispatch requests = %d, want 1", len(f.dispatch.requests))
	}
	if f.dispatch.requests[0].NotificationID != n.ID {
		t.Error("delivery request does not reference the notification")
	}
}

func TestNotifyTransitionIdempotentPerSnapshot(t *testing.T) {
	f := newFixture()
	pat := testPatient()
	snap := escalationSnapshot(risk.TierHigh)

	for i := 0; i < 3; i++ {
		if err := f.svc.NotifyTransition(context.Background(), pat, snap); err != nil {
			t.Fatalf("NotifyTransition #%d: %v", i+1, err)
		}
	}
	if len(f.repo.data) != 1 {
		t.Errorf("notifications = %d, want 1 (replays must not double-create)", len(f.repo.data))
	}
	if len(f.dispatch.requests) != 1 {
		t.Errorf("dispatch requests = %d, want 1", len(f.dispatch.requests))
	}
}

func TestNotifyTransitionImprovedUsesImprovementTemplate(t *testing.T) {
	f := newFixture()
	pat := testPatient()
	snap := escalationSnapshot(risk.TierLow)
	snap.Escalated = false
	snap.Improved = true

	if err := f.svc.NotifyTransition(context.Background(), pat, snap); err != nil {
		t.Fatalf("NotifyTransition: %v", err)
	}
	for _, n := range f.repo.data {
		if n.TemplateName != TemplateImprovement {
			t.Errorf("template = %s, want %s", n.TemplateName, TemplateImprovement)
		}
	}
}

func TestNotifyTransitionSurvivesDispatchFailure(t *testing.T) {
	f := newFixture()
	f.dispatch.err = errors.New("stream down")
	if err := f.svc.NotifyTransition(context.Background(), testPatient(), escalationSnapshot(risk.TierCritical)); err != nil {
		t.Fatalf("NotifyTransition must not fail on dispatch trouble: %v", err)
	}
	if len(f.repo.data) != 1 {
		t.Error("notification must still be created when dispatch fails")
	}
}

func createVia(t *testing.T, f *fixture, tier risk.Tier) *Notification {
	t.Helper()
	if err := f.svc.NotifyTransition(context.Background(), testPatient(), escalationSnapshot(tier)); err != nil {
		t.Fatalf("NotifyTransition: %v", err)
	}
	for _, n := range f.repo.data {
		return n
	}
	t.Fatal("no notification created")
	return nil
}

func TestApplyCallbackLifecycle(t *testing.T) {
	f := newFixture()
	n := createVia(t, f, risk.TierHigh)
	base := n.CreatedAt

	steps := []struct {
		status string
		atSecs int64
	}{
		{StatusSent, 5},
		{StatusDelivered, 12},
		{StatusRead, 60},
		{StatusAcknowledged, 300},
	}
	for _, st := range steps {
		cb := DeliveryCallback{NotificationID: n.ID, NewStatus: st.status, Timestamp: base.Add(time.Duration(st.atSecs) * time.Second)}
		if err := f.svc.ApplyCallback(context.Background(), cb); err != nil {
			t.Fatalf("ApplyCallback(%s): %v", st.status, err)
		}
	}

	stored := f.repo.data[n.ID]
	if stored.Status != StatusAcknowledged {
		t.Errorf("status = %s, want acknowledged", stored.Status)
	}
	if stored.SentAt == nil || stored.DeliveredAt == nil || stored.ReadAt == nil || stored.AcknowledgedAt == nil {
		t.Error("all lifecycle timestamps must be set")
	}

	a := f.analytics.data[n.ID]
	if a == nil {
		t.Fatal("analytics row missing")
	}
	if a.TimeToViewSecs == nil || *a.TimeToViewSecs != 60 {
		t.Errorf("time_to_view = %v, want 60", a.TimeToViewSecs)
	}
	if a.TimeToAcknowledgeSecs == nil || *a.TimeToAcknowledgeSecs != 300 {
		t.Errorf("time_to_acknowledge = %v, want 300", a.TimeToAcknowledgeSecs)
	}
	if a.TimeToResolveSecs == nil || *a.TimeToResolveSecs != 300 {
		t.Errorf("time_to_resolve = %v, want 300", a.TimeToResolveSecs)
	}
}

func TestApplyCallbackDuplicateIsNoop(t *testing.T) {
	f := newFixture()
	n := createVia(t, f, risk.TierHigh)
	ts := n.CreatedAt.Add(10 * time.Second)

	cb := DeliveryCallback{NotificationID: n.ID, NewStatus: StatusRead, Timestamp: ts}
	if err := f.svc.ApplyCallback(context.Background(), cb); err != nil {
		t.Fatalf("first callback: %v", err)
	}
	first := *f.repo.data[n.ID].ReadAt

	cb.Timestamp = ts.Add(time.Minute)
	if err := f.svc.ApplyCallback(context.Background(), cb); err != nil {
		t.Fatalf("duplicate callback: %v", err)
	}
	if !f.repo.data[n.ID].ReadAt.Equal(first) {
		t.Error("duplicate callback must not move read_at")
	}
	if got := f.analytics.data[n.ID].TimeToViewSecs; got == nil || *got != 10 {
		t.Errorf("time_to_view = %v, want 10 (first write wins)", got)
	}
}

func TestApplyCallbackOutOfOrderIsNoop(t *testing.T) {
	f := newFixture()
	n := createVia(t, f, risk.TierHigh)

	ack := DeliveryCallback{NotificationID: n.ID, NewStatus: StatusAcknowledged, Timestamp: n.CreatedAt.Add(time.Minute)}
	if err := f.svc.ApplyCallback(context.Background(), ack); err != nil {
		t.Fatalf("ack callback: %v", err)
	}
	late := DeliveryCallback{NotificationID: n.ID, NewStatus: StatusSent, Timestamp: n.CreatedAt.Add(2 * time.Second)}
	if err := f.svc.ApplyCallback(context.Background(), late); err != nil {
		t.Fatalf("late sent callback: %v", err)
	}
	if f.repo.data[n.ID].Status != StatusAcknowledged {
		t.Error("late lower-rank callback must not regress status")
	}
}

func TestApplyCallbackAfterFailedIsIgnored(t *testing.T) {
	f := newFixture()
	n := createVia(t, f, risk.TierHigh)

	errMsg := "mailbox full"
	fail := DeliveryCallback{NotificationID: n.ID, NewStatus: StatusFailed, Timestamp: n.CreatedAt.Add(time.Minute), Error: &errMsg}
	if err := f.svc.ApplyCallback(context.Background(), fail); err != nil {
		t.Fatalf("failed callback: %v", err)
	}
	read := DeliveryCallback{NotificationID: n.ID, NewStatus: StatusRead, Timestamp: n.CreatedAt.Add(2 * time.Minute)}
	if err := f.svc.ApplyCallback(context.Background(), read); err != nil {
		t.Fatalf("callback after failed: %v", err)
	}
	if f.repo.data[n.ID].Status != StatusFailed {
		t.Error("callbacks after failed must be ignored")
	}
}

func TestApplyCallbackRacingSweeperCannotResurrectFailed(t *testing.T) {
	f := newFixture()
	policy := testPolicy()
	policy.MaxRetries = 0
	f.svc = NewService(f.repo, f.analytics, f.dispatch, policy, zerolog.Nop())

	n := createVia(t, f, risk.TierCritical)
	sent := DeliveryCallback{NotificationID: n.ID, NewStatus: StatusSent, Timestamp: n.CreatedAt.Add(5 * time.Second)}
	if err := f.svc.ApplyCallback(context.Background(), sent); err != nil {
		t.Fatalf("sent callback: %v", err)
	}

	// The sweeper fails the notification at the retry ceiling between the
	// callback handler's read and its status write. The write must lose.
	breach := n.CreatedAt.Add(20 * time.Minute)
	f.repo.afterGet = func() {
		f.repo.afterGet = nil
		e, fl, err := f.svc.Sweep(context.Background(), breach)
		if err != nil || e != 0 || fl != 1 {
			t.Fatalf("interleaved sweep = (%d,%d,%v), want (0,1,nil)", e, fl, err)
		}
	}
	delivered := DeliveryCallback{NotificationID: n.ID, NewStatus: StatusDelivered, Timestamp: n.CreatedAt.Add(10 * time.Second)}
	if err := f.svc.ApplyCallback(context.Background(), delivered); err != nil {
		t.Fatalf("delivered callback: %v", err)
	}

	stored := f.repo.data[n.ID]
	if stored.Status != StatusFailed {
		t.Errorf("status = %s, want failed (callback must not revive a failed notification)", stored.Status)
	}
	if stored.FailedAt == nil {
		t.Error("failed_at must stay set")
	}
	if stored.DeliveredAt != nil {
		t.Error("delivered_at must not be written over a failed notification")
	}

	// The failed row is terminal: later sweeps leave it alone.
	e, fl, err := f.svc.Sweep(context.Background(), breach.Add(time.Hour))
	if err != nil || e != 0 || fl != 0 {
		t.Errorf("post-failure sweep = (%d,%d,%v), want (0,0,nil)", e, fl, err)
	}
}

func TestApplyCallbackNegativeDurationIsInvariantViolation(t *testing.T) {
	f := newFixture()
	n := createVia(t, f, risk.TierHigh)

	cb := DeliveryCallback{NotificationID: n.ID, NewStatus: StatusRead, Timestamp: n.CreatedAt.Add(-time.Minute)}
	err := f.svc.ApplyCallback(context.Background(), cb)
	if !errors.Is(err, ErrNegativeDuration) {
		t.Fatalf("err = %v, want ErrNegativeDuration", err)
	}
}

func TestSweepEscalatesPastSLA(t *testing.T) {
	f := newFixture()
	n := createVia(t, f, risk.TierCritical)
	f.dispatch.requests = nil

	// Inside the 15 minute critical window: nothing to do.
	e, fl, err := f.svc.Sweep(context.Background(), n.CreatedAt.Add(10*time.Minute))
	if err != nil || e != 0 || fl != 0 {
		t.Fatalf("early sweep = (%d,%d,%v), want (0,0,nil)", e, fl, err)
	}

	// Past the window: escalate once and re-emit.
	at := n.CreatedAt.Add(20 * time.Minute)
	e, fl, err = f.svc.Sweep(context.Background(), at)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if e != 1 || fl != 0 {
		t.Fatalf("sweep = (%d,%d), want (1,0)", e, fl)
	}
	stored := f.repo.data[n.ID]
	if !stored.Escalated || stored.RetryCount != 1 {
		t.Errorf("escalated=%v retry_count=%d, want true/1", stored.Escalated, stored.RetryCount)
	}
	if len(f.dispatch.requests) != 1 {
		t.Errorf("re-emitted requests = %d, want 1", len(f.dispatch.requests))
	}

	// Immediately after escalation the window has reset.
	e, _, err = f.svc.Sweep(context.Background(), at.Add(time.Minute))
	if err != nil || e != 0 {
		t.Errorf("post-escalation sweep = (%d,%v), want (0,nil)", e, err)
	}
}

func TestSweepFailsAfterRetryCeiling(t *testing.T) {
	f := newFixture()
	n := createVia(t, f, risk.TierCritical)

	at := n.CreatedAt
	for i := 0; i < 3; i++ {
		at = at.Add(20 * time.Minute)
		e, fl, err := f.svc.Sweep(context.Background(), at)
		if err != nil {
			t.Fatalf("sweep #%d: %v", i+1, err)
		}
		if e != 1 || fl != 0 {
			t.Fatalf("sweep #%d = (%d,%d), want (1,0)", i+1, e, fl)
		}
	}

	at = at.Add(20 * time.Minute)
	e, fl, err := f.svc.Sweep(context.Background(), at)
	if err != nil {
		t.Fatalf("final sweep: %v", err)
	}
	if e != 0 || fl != 1 {
		t.Fatalf("final sweep = (%d,%d), want (0,1)", e, fl)
	}
	stored := f.repo.data[n.ID]
	if stored.Status != StatusFailed {
		t.Errorf("status = %s, want failed", stored.Status)
	}
	if stored.RetryCount != 3 {
		t.Errorf("retry_count = %d, want 3", stored.RetryCount)
	}
	if a := f.analytics.data[n.ID]; a == nil || a.TimeToResolveSecs == nil {
		t.Error("failed notification must record time_to_resolve")
	}
}

func TestSweepIgnoresAcknowledgedAndImproved(t *testing.T) {
	f := newFixture()
	n := createVia(t, f, risk.TierCritical)
	ack := DeliveryCallback{NotificationID: n.ID, NewStatus: StatusAcknowledged, Timestamp: n.CreatedAt.Add(time.Minute)}
	if err := f.svc.ApplyCallback(context.Background(), ack); err != nil {
		t.Fatal(err)
	}

	// An improvement notice, even HIGH priority, is never swept.
	snap := escalationSnapshot(risk.TierHigh)
	snap.Escalated = false
	snap.Improved = true
	if err := f.svc.NotifyTransition(context.Background(), testPatient(), snap); err != nil {
		t.Fatal(err)
	}

	e, fl, err := f.svc.Sweep(context.Background(), n.CreatedAt.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if e != 0 || fl != 0 {
		t.Errorf("sweep = (%d,%d), want (0,0)", e, fl)
	}
}
