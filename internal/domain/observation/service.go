package observation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var validTypes = map[string]bool{
	TypeEGFR: true, TypeUACR: true, TypePotassium: true, TypeHemoglobin: true,
	TypePhosphate: true, TypeSystolicBP: true, TypeDiastolicBP: true,
	TypeHbA1c: true, TypeAlbumin: true,
}

// ChangePublisher queues the ingress event that triggers re-evaluation. The
// record is not considered written until the event is durably queued.
type ChangePublisher interface {
	PublishChange(ctx context.Context, patientID uuid.UUID, sourceTable string, changedFields []string, occurredAt time.Time) error
}

type Service struct {
	repo   Repository
	events ChangePublisher
}

func NewService(repo Repository, events ChangePublisher) *Service {
	return &Service{repo: repo, events: events}
}

// Record stores an observation and queues exactly one change event for it.
func (s *Service) Record(ctx context.Context, o *Observation) error {
	if o.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if !validTypes[o.Type] {
		return fmt.Errorf("invalid observation type: %s", o.Type)
	}
	if o.ObservedAt.IsZero() {
		o.ObservedAt = time.Now().UTC()
	}
	if err := s.repo.Create(ctx, o); err != nil {
		return err
	}
	if s.events != nil {
		if err := s.events.PublishChange(ctx, o.PatientID, "observation", []string{o.Type}, o.ObservedAt); err != nil {
			return fmt.Errorf("queue change event: %w", err)
		}
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Observation, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Observation, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// History returns observations of one type within the lookback window,
// oldest first.
func (s *Service) History(ctx context.Context, patientID uuid.UUID, obsType string, lookback time.Duration) ([]Observation, error) {
	if !validTypes[obsType] {
		return nil, fmt.Errorf("invalid observation type: %s", obsType)
	}
	return s.repo.ListByPatientType(ctx, patientID, obsType, time.Now().UTC().Add(-lookback))
}

// UACRTrendFor analyzes albuminuria progression over the lookback window.
func (s *Service) UACRTrendFor(ctx context.Context, patientID uuid.UUID, lookback time.Duration) (UACRTrend, error) {
	history, err := s.repo.ListByPatientType(ctx, patientID, TypeUACR, time.Now().UTC().Add(-lookback))
	if err != nil {
		return UACRTrend{}, err
	}
	return AnalyzeUACR(history), nil
}
