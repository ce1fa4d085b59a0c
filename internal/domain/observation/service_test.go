package observation

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
)

// ── Mock Repository ──

type mockRepo struct {
	data map[uuid.UUID]*Observation
}

func (m *mockRepo) Create(_ context.Context, o *Observation) error {
	o.ID = uuid.New()
	m.data[o.ID] = o
	return nil
}
func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Observation, error) {
	if o, ok := m.data[id]; ok {
		return o, nil
	}
	return nil, fmt.Errorf("not found")
}
func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Observation, int, error) {
	var out []*Observation
	for _, o := range m.data {
		if o.PatientID == patientID {
			out = append(out, o)
		}
	}
	return out, len(out), nil
}
func (m *mockRepo) ListByPatientType(_ context.Context, patientID uuid.UUID, obsType string, since time.Time) ([]Observation, error) {
	var out []Observation
	for _, o := range m.data {
		if o.PatientID == patientID && o.Type == obsType && !o.ObservedAt.Before(since) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObservedAt.Before(out[j].ObservedAt) })
	return out, nil
}
func (m *mockRepo) LatestByPatientType(ctx context.Context, patientID uuid.UUID, obsType string) (*Observation, error) {
	items, _ := m.ListByPatientType(ctx, patientID, obsType, time.Time{})
	if len(items) == 0 {
		return nil, nil
	}
	return &items[len(items)-1], nil
}

type mockPublisher struct {
	published int
	err       error
}

func (m *mockPublisher) PublishChange(_ context.Context, _ uuid.UUID, _ string, _ []string, _ time.Time) error {
	if m.err != nil {
		return m.err
	}
	m.published++
	return nil
}

func newTestService() (*Service, *mockRepo, *mockPublisher) {
	repo := &mockRepo{data: make(map[uuid.UUID]*Observation)}
	pub := &mockPublisher{}
	return NewService(repo, pub), repo, pub
}

// ── Tests ──

func TestRecord_PublishesChangeEvent(t *testing.T) {
	svc, repo, pub := newTestService()
	ctx := context.Background()

	o := &Observation{PatientID: uuid.New(), Type: TypeEGFR, Value: 42}
	if err := svc.Record(ctx, o); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.data) != 1 {
		t.Error("expected observation to be stored")
	}
	if pub.published != 1 {
		t.Errorf("expected one change event, got %d", pub.published)
	}
	if o.ObservedAt.IsZero() {
		t.Error("expected observed_at to default to now")
	}
}

func TestRecord_Validation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if err := svc.Record(ctx, &Observation{Type: TypeEGFR}); err == nil {
		t.Error("expected error for missing patient_id")
	}
	if err := svc.Record(ctx, &Observation{PatientID: uuid.New(), Type: "cholesterol"}); err == nil {
		t.Error("expected error for unknown observation type")
	}
}

func TestRecord_FailsWhenQueueUnavailable(t *testing.T) {
	svc, _, pub := newTestService()
	pub.err = fmt.Errorf("stream unavailable")

	err := svc.Record(context.Background(), &Observation{PatientID: uuid.New(), Type: TypeUACR, Value: 45})
	if err == nil {
		t.Fatal("expected error when the event cannot be queued")
	}
}

func TestUACRTrendFor(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	pid := uuid.New()

	for i, v := range []float64{80, 130} {
		id := uuid.New()
		repo.data[id] = &Observation{
			ID: id, PatientID: pid, Type: TypeUACR, Value: v,
			ObservedAt: time.Now().AddDate(0, 0, -60+i*30),
		}
	}

	trend, err := svc.UACRTrendFor(ctx, pid, 365*24*time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trend.Worsening != WorseningModerate {
		t.Errorf("expected moderate worsening for 62.5%% rise, got %s", trend.Worsening)
	}
}
