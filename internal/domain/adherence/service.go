package adherence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/renalert/renalert/internal/domain/observation"
)

const (
	// Pharmacy evidence window for MPR/PDC.
	refillLookbackDays = 180
	// Self reports older than this no longer count as evidence.
	selfReportMaxAgeDays = 90
	// Lab trend window.
	labLookback = 365 * 24 * time.Hour
)

// LabTrendSource supplies the uACR progression the lab component is derived
// from. Satisfied by the observation service.
type LabTrendSource interface {
	UACRTrendFor(ctx context.Context, patientID uuid.UUID, lookback time.Duration) (observation.UACRTrend, error)
}

// ChangePublisher queues a data-change event for the evaluation pipeline.
type ChangePublisher interface {
	PublishChange(ctx context.Context, patientID uuid.UUID, sourceTable string, changedFields []string, occurredAt time.Time) error
}

type Service struct {
	assessments AssessmentRepository
	refills     RefillRepository
	selfReports SelfReportRepository
	labs        LabTrendSource
	events      ChangePublisher
	log         zerolog.Logger
}

func NewService(assessments AssessmentRepository, refills RefillRepository, selfReports SelfReportRepository, labs LabTrendSource, events ChangePublisher, log zerolog.Logger) *Service {
	return &Service{
		assessments: assessments,
		refills:     refills,
		selfReports: selfReports,
		labs:        labs,
		events:      events,
		log:         log.With().Str("component", "adherence").Logger(),
	}
}

// labScore maps uACR progression onto a [0,1] adherence proxy: a stable or
// improving trajectory is consistent with the patient taking the medication,
// a worsening one is not.
func labScore(trend observation.UACRTrend) (float64, bool) {
	if trend.Previous == nil {
		// One result is a data point, not a trend.
		return 0, false
	}
	switch trend.Worsening {
	case observation.WorseningSevere:
		return 0.20, true
	case observation.WorseningModerate:
		return 0.45, true
	case observation.WorseningMild:
		return 0.65, true
	default:
		return 0.90, true
	}
}

// Assess gathers whatever evidence exists for the patient, fuses it, and
// persists a new assessment row. Missing components degrade the fusion
// branch; they never fail the assessment.
func (s *Service) Assess(ctx context.Context, patientID uuid.UUID, treatment *string) (*Assessment, error) {
	if patientID == uuid.Nil {
		return nil, fmt.Errorf("patient_id is required")
	}
	now := time.Now().UTC()

	var pharmacy, lab, selfReport *float64
	var mprPct, pdcPct *float64

	// Pharmacy component from refill history.
	refills, err := s.refills.ListByPatientSince(ctx, patientID, now.AddDate(0, 0, -refillLookbackDays))
	if err != nil {
		return nil, fmt.Errorf("load refills: %w", err)
	}
	if len(refills) > 0 {
		daysSupply := refills[len(refills)-1].DaysSupply
		mpr := MPR(len(refills), daysSupply, refillLookbackDays)
		dates := make([]time.Time, len(refills))
		for i, f := range refills {
			dates[i] = f.RefillDate
		}
		pdc := PDC(dates, daysSupply, now.AddDate(0, 0, -refillLookbackDays), now)
		score := mpr / 100
		pharmacy, mprPct, pdcPct = &score, &mpr, &pdc
	}

	// Lab component from uACR trajectory.
	trend, err := s.labs.UACRTrendFor(ctx, patientID, labLookback)
	if err != nil {
		return nil, fmt.Errorf("load lab trend: %w", err)
	}
	if score, ok := labScore(trend); ok {
		lab = &score
	}

	// Self-report component from the latest recent questionnaire.
	sr, err := s.selfReports.LatestByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("load self report: %w", err)
	}
	if sr != nil && now.Sub(sr.ReportedAt) <= selfReportMaxAgeDays*24*time.Hour {
		score := ScoreSelfReport(*sr)
		selfReport = &score
	}

	fusion := FuseComposite(pharmacy, lab, selfReport)

	a := &Assessment{
		PatientID:  patientID,
		Treatment:  treatment,
		Pharmacy:   fusion.Pharmacy,
		Lab:        fusion.Lab,
		SelfReport: fusion.SelfReport,
		Composite:  fusion.Composite,
		Category:   fusion.Category,
		Method:     fusion.Method,
		MPR:        mprPct,
		PDC:        pdcPct,
		AssessedAt: now,
	}
	if err := s.assessments.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("persist assessment: %w", err)
	}

	s.log.Debug().
		Str("patient_id", patientID.String()).
		Str("method", a.Method).
		Str("category", a.Category).
		Msg("adherence assessed")

	return a, nil
}

func (s *Service) Latest(ctx context.Context, patientID uuid.UUID) (*Assessment, error) {
	return s.assessments.Latest(ctx, patientID)
}

func (s *Service) History(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Assessment, int, error) {
	return s.assessments.History(ctx, patientID, limit, offset)
}

// RecordRefill stores a pharmacy refill and queues one change event for it.
func (s *Service) RecordRefill(ctx context.Context, r *Refill) error {
	if r.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if r.DaysSupply <= 0 {
		return fmt.Errorf("days_supply must be positive")
	}
	if r.RefillDate.IsZero() {
		r.RefillDate = time.Now().UTC()
	}
	if err := s.refills.Create(ctx, r); err != nil {
		return err
	}
	if s.events != nil {
		if err := s.events.PublishChange(ctx, r.PatientID, "pharmacy_refill", []string{"refill_date", "days_supply"}, r.RefillDate); err != nil {
			return fmt.Errorf("queue change event: %w", err)
		}
	}
	return nil
}

// RecordSelfReport stores a questionnaire response and queues one change
// event for it.
func (s *Service) RecordSelfReport(ctx context.Context, sr *SelfReport) error {
	if sr.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if sr.PeriodDays <= 0 {
		return fmt.Errorf("period_days must be positive")
	}
	if sr.DaysTaken < 0 || sr.DaysTaken > sr.PeriodDays {
		return fmt.Errorf("days_taken must be within the period")
	}
	if sr.ReportedAt.IsZero() {
		sr.ReportedAt = time.Now().UTC()
	}
	if err := s.selfReports.Create(ctx, sr); err != nil {
		return err
	}
	if s.events != nil {
		if err := s.events.PublishChange(ctx, sr.PatientID, "self_report", []string{"days_taken", "period_days"}, sr.ReportedAt); err != nil {
			return fmt.Errorf("queue change event: %w", err)
		}
	}
	return nil
}
