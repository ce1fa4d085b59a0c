package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/renalert/renalert/internal/domain/observation"
	"github.com/renalert/renalert/internal/domain/patient"
	"github.com/renalert/renalert/internal/platform/db"
)

// ErrCacheMismatch means the patient's cached current state does not match
// the latest snapshot. The assessment aborts; RepairCache restores the
// invariant from snapshot history.
var ErrCacheMismatch = errors.New("cached risk state does not match latest snapshot")

// Observation window feeding the eGFR trend.
const trendLookback = 365 * 24 * time.Hour

// TransitionNotifier hands a notification-worthy transition to the
// notification pipeline. Called after the snapshot transaction commits.
type TransitionNotifier interface {
	NotifyTransition(ctx context.Context, pat *patient.Patient, snap *Snapshot) error
}

type Service struct {
	snapshots    SnapshotRepository
	patients     patient.Repository
	profiles     patient.ProfileRepository
	observations observation.Repository
	notifier     TransitionNotifier
	log          zerolog.Logger

	// tx wraps the snapshot-then-cache write in one transaction.
	tx func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewService(
	snapshots SnapshotRepository,
	patients patient.Repository,
	profiles patient.ProfileRepository,
	observations observation.Repository,
	pool *pgxpool.Pool,
	notifier TransitionNotifier,
	log zerolog.Logger,
) *Service {
	return &Service{
		snapshots:    snapshots,
		patients:     patients,
		profiles:     profiles,
		observations: observations,
		notifier:     notifier,
		log:          log.With().Str("component", "risk").Logger(),
		tx: func(ctx context.Context, fn func(ctx context.Context) error) error {
			return db.WithTx(ctx, pool, fn)
		},
	}
}

func (s *Service) latestValue(ctx context.Context, patientID uuid.UUID, obsType string) (*float64, error) {
	o, err := s.observations.LatestByPatientType(ctx, patientID, obsType)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, nil
	}
	v := o.Value
	return &v, nil
}

// ethnicityBump maps higher-risk ethnicity categories onto the demographic
// bucket's +3..+5 range.
func ethnicityBump(ethnicity *string) int {
	if ethnicity == nil {
		return 0
	}
	switch *ethnicity {
	case "black", "african_american":
		return 5
	case "hispanic", "native_american", "pacific_islander":
		return 4
	case "south_asian":
		return 3
	default:
		return 0
	}
}

type evidence struct {
	inputs ScoreInputs
	alerts AlertInputs
	trend  TrendResult
}

func (s *Service) gather(ctx context.Context, pat *patient.Patient) (*evidence, error) {
	profile, err := s.profiles.Get(ctx, pat.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		// No profile yet: score on labs and demographics alone.
		profile = &patient.ClinicalProfile{PatientID: pat.ID, SmokingStatus: "never"}
	} else if err != nil {
		return nil, fmt.Errorf("load clinical profile: %w", err)
	}

	egfrHist, err := s.observations.ListByPatientType(ctx, pat.ID, observation.TypeEGFR, time.Now().UTC().Add(-trendLookback))
	if err != nil {
		return nil, fmt.Errorf("load egfr history: %w", err)
	}
	trend := EGFRTrend(egfrHist)

	var ev evidence
	ev.trend = trend

	type lookup struct {
		obsType string
		dest    **float64
	}
	var egfr, uacr, potassium, hemoglobin, phosphate, systolic, diastolic, hba1c *float64
	for _, l := range []lookup{
		{observation.TypeEGFR, &egfr},
		{observation.TypeUACR, &uacr},
		{observation.TypePotassium, &potassium},
		{observation.TypeHemoglobin, &hemoglobin},
		{observation.TypePhosphate, &phosphate},
		{observation.TypeSystolicBP, &systolic},
		{observation.TypeDiastolicBP, &diastolic},
		{observation.TypeHbA1c, &hba1c},
	} {
		v, err := s.latestValue(ctx, pat.ID, l.obsType)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", l.obsType, err)
		}
		*l.dest = v
	}

	currentSmoker := profile.SmokingStatus == "current"

	ev.inputs = ScoreInputs{
		UACR:                   uacr,
		EGFR:                   egfr,
		EGFRTrend:              trend,
		Diabetes:               profile.Diabetes,
		DiabetesControlled:     profile.DiabetesControlled,
		Hypertension:           profile.Hypertension,
		HypertensionControlled: profile.HypertensionControlled,
		CardiovascularDisease:  profile.CardiovascularDisease,
		PriorAKI:               profile.PriorAKI,
		Age:                    pat.Age(time.Now().UTC()),
		HighRiskEthnicity:      ethnicityBump(pat.Ethnicity),
		CurrentSmoker:          currentSmoker,
		BMI:                    profile.BMI,
		NephrotoxicMedCount:    profile.NephrotoxicMedCount,
		RenoprotectiveMedCount: profile.RenoprotectiveMedCount,
	}
	ev.alerts = AlertInputs{
		EGFR:                egfr,
		UACR:                uacr,
		Potassium:           potassium,
		Hemoglobin:          hemoglobin,
		Phosphate:           phosphate,
		SystolicBP:          systolic,
		DiastolicBP:         diastolic,
		HbA1c:               hba1c,
		Trend:               trend,
		Diabetes:            profile.Diabetes,
		SeesNephrologist:    profile.SeesNephrologist,
		OnRASInhibitor:      profile.OnRASInhibitor,
		OnSGLT2Inhibitor:    profile.OnSGLT2Inhibitor,
		NephrotoxicMedCount: profile.NephrotoxicMedCount,
		BMI:                 profile.BMI,
		CurrentSmoker:       currentSmoker,
	}
	return &ev, nil
}

// verifyCache checks the cached current state against the latest snapshot
// before classifying a transition against it.
func (s *Service) verifyCache(pat *patient.Patient, latest *Snapshot) error {
	if latest == nil {
		if pat.CurrentSnapshotID != nil {
			return fmt.Errorf("%w: cache points at %s but no snapshot exists", ErrCacheMismatch, *pat.CurrentSnapshotID)
		}
		return nil
	}
	if pat.CurrentSnapshotID == nil {
		return fmt.Errorf("%w: snapshot %s exists but cache is empty", ErrCacheMismatch, latest.ID)
	}
	if *pat.CurrentSnapshotID != latest.ID {
		return fmt.Errorf("%w: cache points at %s, latest is %s", ErrCacheMismatch, *pat.CurrentSnapshotID, latest.ID)
	}
	return nil
}

// Evaluate runs one full assessment: gather evidence, score, classify the
// transition against the cached state, persist the snapshot and then the
// cache in one transaction, and hand off notification-worthy transitions.
//
// Callers serialize invocations per patient; Evaluate itself assumes it is
// the only in-flight assessment for this patient.
func (s *Service) Evaluate(ctx context.Context, patientID uuid.UUID, trigger string) (*Snapshot, error) {
	pat, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}

	latest, err := s.snapshots.Latest(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("load latest snapshot: %w", err)
	}
	if err := s.verifyCache(pat, latest); err != nil {
		s.log.Error().Err(err).Str("patient_id", patientID.String()).Msg("risk cache invariant violated")
		return nil, err
	}

	ev, err := s.gather(ctx, pat)
	if err != nil {
		return nil, err
	}

	result := Score(ev.inputs)
	reasons, alertScore := ScanAlerts(ev.alerts)

	var previous *Tier
	if pat.CurrentRiskTier != nil {
		t := Tier(*pat.CurrentRiskTier)
		previous = &t
	}
	tr := Classify(previous, result.Tier)

	snap := &Snapshot{
		PatientID:        patientID,
		Score:            result.Total,
		Tier:             result.Tier,
		PreviousTier:     previous,
		LabScore:         result.Lab,
		ComorbidityScore: result.Comorbidity,
		DemographicScore: result.Demographic,
		LifestyleScore:   result.Lifestyle,
		MedicationScore:  result.Medication,
		EGFRTrend:        ev.trend.Direction,
		EGFRChangePct:    ev.trend.ChangePct,
		PriorityChanged:  tr.PriorityChanged,
		Escalated:        tr.Escalated,
		Improved:         tr.Improved,
		AlertReasons:     reasons,
		AlertScore:       alertScore,
		TriggerSource:    trigger,
		AssessedAt:       time.Now().UTC(),
	}

	// Snapshot row first, cache second. A crash in between leaves the cache
	// behind the history, which RepairCache replays.
	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.snapshots.Create(ctx, snap); err != nil {
			return fmt.Errorf("persist snapshot: %w", err)
		}
		return s.patients.UpdateRiskCache(ctx, patientID, string(snap.Tier), snap.Score, snap.ID)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("patient_id", patientID.String()).
		Str("tier", string(snap.Tier)).
		Float64("score", snap.Score).
		Bool("escalated", snap.Escalated).
		Bool("improved", snap.Improved).
		Str("trigger", trigger).
		Msg("risk assessed")

	if tr.RequiresNotification && s.notifier != nil {
		if err := s.notifier.NotifyTransition(ctx, pat, snap); err != nil {
			// The snapshot is committed; notification delivery has its own
			// retry path. Surface the failure without unwinding the assessment.
			s.log.Error().Err(err).Str("patient_id", patientID.String()).Msg("transition notification failed")
		}
	}

	return snap, nil
}

// RepairCache replays the latest snapshot into the patient's cached state.
// Used after a crash between the snapshot insert and the cache update.
func (s *Service) RepairCache(ctx context.Context, patientID uuid.UUID) error {
	latest, err := s.snapshots.Latest(ctx, patientID)
	if err != nil {
		return fmt.Errorf("load latest snapshot: %w", err)
	}
	if latest == nil {
		return nil
	}
	if err := s.patients.UpdateRiskCache(ctx, patientID, string(latest.Tier), latest.Score, latest.ID); err != nil {
		return fmt.Errorf("repair cache: %w", err)
	}
	s.log.Warn().
		Str("patient_id", patientID.String()).
		Str("snapshot_id", latest.ID.String()).
		Msg("risk cache repaired from snapshot history")
	return nil
}

// LatestSnapshot exposes the newest snapshot, used by the stale-event check
// and the query surface.
func (s *Service) LatestSnapshot(ctx context.Context, patientID uuid.UUID) (*Snapshot, error) {
	return s.snapshots.Latest(ctx, patientID)
}

func (s *Service) History(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Snapshot, int, error) {
	return s.snapshots.History(ctx, patientID, limit, offset)
}
