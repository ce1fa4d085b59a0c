package patient

import (
	"time"

	"github.com/google/uuid"
)

// Monitoring status values. Only active patients are picked up by the
// whole-population scan.
const (
	MonitoringInactive = "inactive"
	MonitoringActive   = "active"
	MonitoringPaused   = "paused"
)

// Patient maps to the patient table. The three CurrentRisk* fields are a
// denormalized cache of the latest risk snapshot; they are written only by
// the risk state machine after the snapshot row is committed, and can be
// rebuilt from snapshot history at any time.
type Patient struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	Name              string     `db:"name" json:"name"`
	MRN               string     `db:"mrn" json:"mrn"`
	DateOfBirth       *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender            *string    `db:"gender" json:"gender,omitempty"`
	Ethnicity         *string    `db:"ethnicity" json:"ethnicity,omitempty"`
	Recipient         *string    `db:"recipient" json:"recipient,omitempty"`
	Facility          *string    `db:"facility" json:"facility,omitempty"`
	DoctorName        *string    `db:"doctor_name" json:"doctor_name,omitempty"`
	MonitoringStatus  string     `db:"monitoring_status" json:"monitoring_status"`
	CurrentRiskTier   *string    `db:"current_risk_tier" json:"current_risk_tier,omitempty"`
	CurrentRiskScore  *float64   `db:"current_risk_score" json:"current_risk_score,omitempty"`
	CurrentSnapshotID *uuid.UUID `db:"current_snapshot_id" json:"current_snapshot_id,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// Age returns whole years at the reference time, or -1 when the date of
// birth is unknown.
func (p *Patient) Age(at time.Time) int {
	if p.DateOfBirth == nil {
		return -1
	}
	years := at.Year() - p.DateOfBirth.Year()
	anniversary := p.DateOfBirth.AddDate(years, 0, 0)
	if anniversary.After(at) {
		years--
	}
	return years
}

// ClinicalProfile maps to the clinical_profile table: the comorbidity,
// lifestyle and medication flags the risk scorer reads. One row per patient.
type ClinicalProfile struct {
	PatientID              uuid.UUID `db:"patient_id" json:"patient_id"`
	Diabetes               bool      `db:"diabetes" json:"diabetes"`
	DiabetesControlled     bool      `db:"diabetes_controlled" json:"diabetes_controlled"`
	Hypertension           bool      `db:"hypertension" json:"hypertension"`
	HypertensionControlled bool      `db:"hypertension_controlled" json:"hypertension_controlled"`
	CardiovascularDisease  bool      `db:"cardiovascular_disease" json:"cardiovascular_disease"`
	PriorAKI               bool      `db:"prior_aki" json:"prior_aki"`
	SmokingStatus          string    `db:"smoking_status" json:"smoking_status"` // never | former | current
	BMI                    *float64  `db:"bmi" json:"bmi,omitempty"`
	OnRASInhibitor         bool      `db:"on_ras_inhibitor" json:"on_ras_inhibitor"`
	OnSGLT2Inhibitor       bool      `db:"on_sglt2_inhibitor" json:"on_sglt2_inhibitor"`
	NephrotoxicMedCount    int       `db:"nephrotoxic_med_count" json:"nephrotoxic_med_count"`
	RenoprotectiveMedCount int       `db:"renoprotective_med_count" json:"renoprotective_med_count"`
	SeesNephrologist       bool      `db:"sees_nephrologist" json:"sees_nephrologist"`
	UpdatedAt              time.Time `db:"updated_at" json:"updated_at"`
}
