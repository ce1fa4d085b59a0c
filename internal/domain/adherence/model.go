package adherence

import (
	"time"

	"github.com/google/uuid"
)

// Composite adherence categories.
const (
	CategoryGood       = "GOOD"       // >= 0.90
	CategorySuboptimal = "SUBOPTIMAL" // >= 0.75
	CategoryPoor       = "POOR"
	CategoryUnknown    = "UNKNOWN" // no components available
)

// Scoring method labels, one per fusion branch.
const (
	MethodMPRPrimary     = "mpr_primary"
	MethodMPRLabHybrid   = "mpr_lab_hybrid"
	MethodLabPrimary     = "lab_primary"
	MethodLabOnly        = "lab_only"
	MethodMPROnly        = "mpr_only"
	MethodSelfReportOnly = "self_report_only"
	MethodNoData         = "no_data"
)

// Component is one evidence source feeding the composite. Weight is the
// share the chosen fusion branch assigned to it (0 when unused).
type Component struct {
	Score     float64 `json:"score"`
	Available bool    `json:"available"`
	Weight    float64 `json:"weight"`
}

// Fusion is the outcome of combining the available components. Composite is
// nil only for the no_data branch.
type Fusion struct {
	Pharmacy   Component `json:"pharmacy"`
	Lab        Component `json:"lab"`
	SelfReport Component `json:"self_report"`
	Composite  *float64  `json:"composite,omitempty"`
	Category   string    `json:"category"`
	Method     string    `json:"method"`
}

// Assessment maps to the adherence_assessment table. Superseded by later
// assessments, never mutated.
type Assessment struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PatientID  uuid.UUID `db:"patient_id" json:"patient_id"`
	Treatment  *string   `db:"treatment" json:"treatment,omitempty"`
	Pharmacy   Component `json:"pharmacy"`
	Lab        Component `json:"lab"`
	SelfReport Component `json:"self_report"`
	Composite  *float64  `db:"composite_score" json:"composite,omitempty"`
	Category   string    `db:"category" json:"category"`
	Method     string    `db:"scoring_method" json:"scoring_method"`
	MPR        *float64  `db:"mpr" json:"mpr,omitempty"` // raw percentage, reported alongside
	PDC        *float64  `db:"pdc" json:"pdc,omitempty"`
	AssessedAt time.Time `db:"assessed_at" json:"assessed_at"`
}

// Refill maps to the pharmacy_refill table.
type Refill struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PatientID  uuid.UUID `db:"patient_id" json:"patient_id"`
	Treatment  *string   `db:"treatment" json:"treatment,omitempty"`
	RefillDate time.Time `db:"refill_date" json:"refill_date"`
	DaysSupply int       `db:"days_supply" json:"days_supply"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// SelfReport maps to the self_report table: the short questionnaire a
// patient answers about the reporting period.
type SelfReport struct {
	ID                  uuid.UUID `db:"id" json:"id"`
	PatientID           uuid.UUID `db:"patient_id" json:"patient_id"`
	PeriodDays          int       `db:"period_days" json:"period_days"`
	DaysTaken           int       `db:"days_taken" json:"days_taken"`
	Forgot              bool      `db:"forgot" json:"forgot"`
	StoppedFeelingWorse bool      `db:"stopped_feeling_worse" json:"stopped_feeling_worse"`
	StoppedFeelingBetter bool     `db:"stopped_feeling_better" json:"stopped_feeling_better"`
	ReportedAt          time.Time `db:"reported_at" json:"reported_at"`
}
