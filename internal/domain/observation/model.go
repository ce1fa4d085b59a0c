package observation

import (
	"time"

	"github.com/google/uuid"
)

// Observation types recorded by the monitoring pipeline.
const (
	TypeEGFR        = "egfr"
	TypeUACR        = "uacr"
	TypePotassium   = "potassium"
	TypeHemoglobin  = "hemoglobin"
	TypePhosphate   = "phosphate"
	TypeSystolicBP  = "systolic_bp"
	TypeDiastolicBP = "diastolic_bp"
	TypeHbA1c       = "hba1c"
	TypeAlbumin     = "albumin"
)

// Observation maps to the observation table. Rows are append-only: a
// corrected result is a new row with a later observed_at, never an update.
type Observation struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PatientID  uuid.UUID `db:"patient_id" json:"patient_id"`
	Type       string    `db:"type" json:"type"`
	Value      float64   `db:"value_num" json:"value"`
	Unit       *string   `db:"unit" json:"unit,omitempty"`
	ObservedAt time.Time `db:"observed_at" json:"observed_at"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// uACR albuminuria categories (mg/g).
const (
	UACRNormal = "normoalbuminuria" // < 30
	UACRMicro  = "microalbuminuria" // 30 - 300
	UACRMacro  = "macroalbuminuria" // > 300
)

// Worsening levels for uACR progression between consecutive results.
const (
	WorseningNone     = "none"
	WorseningMild     = "mild"     // > 30% increase
	WorseningModerate = "moderate" // > 50% increase or category progression
	WorseningSevere   = "severe"   // > 100% increase
)

// UACRTrend summarizes the change between the two most recent uACR results.
type UACRTrend struct {
	Current            float64 `json:"current"`
	Previous           *float64 `json:"previous,omitempty"`
	PercentChange      *float64 `json:"percent_change,omitempty"`
	CurrentCategory    string  `json:"current_category"`
	PreviousCategory   string  `json:"previous_category,omitempty"`
	Worsening          string  `json:"worsening"`
	CategoryProgressed bool    `json:"category_progressed"`
}
