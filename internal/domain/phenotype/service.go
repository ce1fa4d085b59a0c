package phenotype

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/renalert/renalert/internal/domain/observation"
	"github.com/renalert/renalert/internal/domain/patient"
)

type Service struct {
	repo         Repository
	patients     patient.Repository
	profiles     patient.ProfileRepository
	observations observation.Repository
	log          zerolog.Logger
}

func NewService(
	repo Repository,
	patients patient.Repository,
	profiles patient.ProfileRepository,
	observations observation.Repository,
	log zerolog.Logger,
) *Service {
	return &Service{
		repo:         repo,
		patients:     patients,
		profiles:     profiles,
		observations: observations,
		log:          log.With().Str("component", "phenotype").Logger(),
	}
}

func strPtr(s string) *string { return &s }

func (s *Service) gather(ctx context.Context, pat *patient.Patient) (Inputs, error) {
	in := Inputs{
		Age:    pat.Age(time.Now().UTC()),
		Gender: pat.Gender,
	}

	profile, err := s.profiles.Get(ctx, pat.ID)
	if err == nil {
		in.HasProfile = true
		in.Diabetes = profile.Diabetes
		in.Hypertension = profile.Hypertension
		in.CVD = profile.CardiovascularDisease
		in.CurrentSmoker = profile.SmokingStatus == "current"
		in.BMI = profile.BMI
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return in, fmt.Errorf("load clinical profile: %w", err)
	}

	for _, l := range []struct {
		obsType string
		dest    **float64
	}{
		{observation.TypeEGFR, &in.EGFR},
		{observation.TypeUACR, &in.UACR},
		{observation.TypeSystolicBP, &in.SystolicBP},
	} {
		o, err := s.observations.LatestByPatientType(ctx, pat.ID, l.obsType)
		if err != nil {
			return in, fmt.Errorf("load %s: %w", l.obsType, err)
		}
		if o != nil {
			v := o.Value
			*l.dest = &v
		}
	}
	return in, nil
}

// Assess runs the eligibility gate and, for eligible patients, the three
// risk estimators plus phenotype assignment. Ineligible patients get a row
// with eligible=false and no synthetic scores.
func (s *Service) Assess(ctx context.Context, patientID uuid.UUID) (*Assessment, error) {
	pat, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}

	in, err := s.gather(ctx, pat)
	if err != nil {
		return nil, err
	}

	a := &Assessment{
		PatientID:  patientID,
		AssessedAt: time.Now().UTC(),
	}
	a.FieldsPresent, a.FieldsRequired = in.Completeness()
	a.Confidence = float64(a.FieldsPresent) / float64(a.FieldsRequired)

	switch {
	case in.Age < 0:
		a.IneligibleReason = strPtr("date of birth unknown")
	case in.Age < MinAge:
		a.IneligibleReason = strPtr(fmt.Sprintf("age %d below minimum %d", in.Age, MinAge))
	case in.EGFR == nil:
		a.IneligibleReason = strPtr("no eGFR on record")
	case *in.EGFR < EGFRFloor:
		a.IneligibleReason = strPtr(fmt.Sprintf("eGFR %.0f below threshold %.0f (kidney failure)", *in.EGFR, EGFRFloor))
	default:
		a.Eligible = true
	}

	if a.Eligible {
		renal := RenalRisk(in)
		cv := CVRisk(in)
		mortality := MortalityRisk(in)

		a.RenalRiskPct = &renal
		a.RenalCategory = strPtr(RenalCategoryFor(renal))
		a.CVRiskPct = &cv
		a.CVCategory = strPtr(CVCategoryFor(cv))
		a.MortalityRiskPct = &mortality
		a.MortalityCategory = strPtr(MortalityCategoryFor(mortality))

		p := Assign(renal, cv, mortality)
		a.Phenotype = &p
		ratio := BenefitRatio(renal, cv, mortality)
		a.BenefitRatio = &ratio
		a.Interpretation = strPtr(Interpretation(p, ratio))
	}

	if err := s.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("persist phenotype assessment: %w", err)
	}

	evt := s.log.Info().
		Str("patient_id", patientID.String()).
		Bool("eligible", a.Eligible).
		Float64("confidence", a.Confidence)
	if a.Phenotype != nil {
		evt = evt.Str("phenotype", string(*a.Phenotype))
	}
	evt.Msg("phenotype assessed")

	return a, nil
}

func (s *Service) Latest(ctx context.Context, patientID uuid.UUID) (*Assessment, error) {
	return s.repo.Latest(ctx, patientID)
}

func (s *Service) History(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Assessment, int, error) {
	return s.repo.History(ctx, patientID, limit, offset)
}
