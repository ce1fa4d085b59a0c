package phenotype

import (
	"time"

	"github.com/google/uuid"
)

// Phenotype labels. Mutually exclusive; Senescent dominates all others.
type Phenotype string

const (
	AcceleratedAger    Phenotype = "Accelerated Ager"
	SilentRenal        Phenotype = "Silent Renal"
	VascularDominant   Phenotype = "Vascular Dominant"
	CardiorenalModerate Phenotype = "Cardiorenal Moderate"
	RenalWatch         Phenotype = "Renal Watch"
	CVIntermediate     Phenotype = "CV Intermediate"
	LowRisk            Phenotype = "Low Risk"
	Senescent          Phenotype = "Senescent"
)

// Ordinal categories per risk axis.
const (
	RenalLow      = "low"      // < 7.5%
	RenalModerate = "moderate" // 7.5 - 15%
	RenalHigh     = "high"     // >= 15%

	CVLow          = "low"          // < 10%
	CVIntermediateCat = "intermediate" // 10 - 20%
	CVHigh         = "high"         // >= 20%

	MortalityLow      = "low"       // < 25%
	MortalityHigh     = "high"      // 25 - 50%
	MortalityVeryHigh = "very_high" // >= 50%
)

// Eligibility bounds. Below the eGFR floor the patient is in kidney failure
// and these risk equations no longer apply.
const (
	MinAge    = 18
	EGFRFloor = 15.0
)

// Assessment maps to the phenotype_assessment table. When Eligible is false
// every risk field is nil; the row records only that the gate was applied.
type Assessment struct {
	ID               uuid.UUID `db:"id" json:"id"`
	PatientID        uuid.UUID `db:"patient_id" json:"patient_id"`
	Eligible         bool      `db:"eligible" json:"eligible"`
	IneligibleReason *string   `db:"ineligible_reason" json:"ineligible_reason,omitempty"`

	RenalRiskPct      *float64 `db:"renal_risk_pct" json:"renal_risk_pct,omitempty"`
	RenalCategory     *string  `db:"renal_category" json:"renal_category,omitempty"`
	CVRiskPct         *float64 `db:"cv_risk_pct" json:"cv_risk_pct,omitempty"`
	CVCategory        *string  `db:"cv_category" json:"cv_category,omitempty"`
	MortalityRiskPct  *float64 `db:"mortality_risk_pct" json:"mortality_risk_pct,omitempty"`
	MortalityCategory *string  `db:"mortality_category" json:"mortality_category,omitempty"`

	Phenotype      *Phenotype `db:"phenotype" json:"phenotype,omitempty"`
	BenefitRatio   *float64   `db:"benefit_ratio" json:"benefit_ratio,omitempty"`
	Interpretation *string    `db:"interpretation" json:"interpretation,omitempty"`

	FieldsPresent  int       `db:"fields_present" json:"fields_present"`
	FieldsRequired int       `db:"fields_required" json:"fields_required"`
	Confidence     float64   `db:"confidence" json:"confidence"`
	AssessedAt     time.Time `db:"assessed_at" json:"assessed_at"`
}
