package patient

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var validMonitoringStatuses = map[string]bool{
	MonitoringInactive: true, MonitoringActive: true, MonitoringPaused: true,
}

// ChangePublisher queues one ingress event per committed write so the risk
// engine re-evaluates the patient. The write path blocks until the event is
// durably queued.
type ChangePublisher interface {
	PublishChange(ctx context.Context, patientID uuid.UUID, sourceTable string, changedFields []string, occurredAt time.Time) error
}

type Service struct {
	patients Repository
	profiles ProfileRepository
	events   ChangePublisher
}

func NewService(patients Repository, profiles ProfileRepository, events ChangePublisher) *Service {
	return &Service{patients: patients, profiles: profiles, events: events}
}

func (s *Service) Create(ctx context.Context, p *Patient) error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if p.MRN == "" {
		return fmt.Errorf("mrn is required")
	}
	if p.MonitoringStatus == "" {
		p.MonitoringStatus = MonitoringInactive
	}
	if !validMonitoringStatuses[p.MonitoringStatus] {
		return fmt.Errorf("invalid monitoring_status: %s", p.MonitoringStatus)
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, p *Patient) error {
	if p.MonitoringStatus != "" && !validMonitoringStatuses[p.MonitoringStatus] {
		return fmt.Errorf("invalid monitoring_status: %s", p.MonitoringStatus)
	}
	return s.patients.Update(ctx, p)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

func (s *Service) ListActive(ctx context.Context) ([]*Patient, error) {
	return s.patients.ListActive(ctx)
}

func (s *Service) GetProfile(ctx context.Context, patientID uuid.UUID) (*ClinicalProfile, error) {
	return s.profiles.Get(ctx, patientID)
}

// UpsertProfile stores the clinical profile and queues a single change event
// covering all updated fields.
func (s *Service) UpsertProfile(ctx context.Context, cp *ClinicalProfile, changedFields []string) error {
	if cp.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if cp.SmokingStatus == "" {
		cp.SmokingStatus = "never"
	}
	if err := s.profiles.Upsert(ctx, cp); err != nil {
		return err
	}
	if s.events != nil {
		if err := s.events.PublishChange(ctx, cp.PatientID, "clinical_profile", changedFields, time.Now().UTC()); err != nil {
			return fmt.Errorf("queue change event: %w", err)
		}
	}
	return nil
}
