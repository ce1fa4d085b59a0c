package risk

import (
	"time"

	"github.com/google/uuid"
)

// Tier is the ordinal risk state: LOW < MODERATE < HIGH < CRITICAL.
type Tier string

const (
	TierLow      Tier = "LOW"
	TierModerate Tier = "MODERATE"
	TierHigh     Tier = "HIGH"
	TierCritical Tier = "CRITICAL"
)

func (t Tier) rank() int {
	switch t {
	case TierModerate:
		return 1
	case TierHigh:
		return 2
	case TierCritical:
		return 3
	default:
		return 0
	}
}

// Less reports whether t is strictly lower on the tier order than other.
func (t Tier) Less(other Tier) bool { return t.rank() < other.rank() }

// Valid reports whether t is one of the four defined tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierLow, TierModerate, TierHigh, TierCritical:
		return true
	}
	return false
}

// TierForScore maps a composite score to its tier.
func TierForScore(score float64) Tier {
	switch {
	case score >= 75:
		return TierCritical
	case score >= 50:
		return TierHigh
	case score >= 25:
		return TierModerate
	default:
		return TierLow
	}
}

// Alert severities and codes produced by the rule scan.
const (
	SeverityCritical = "CRITICAL" // 10 points
	SeverityHigh     = "HIGH"     // 5 points
	SeverityModerate = "MODERATE" // 2 points
)

const (
	CodeRapidDecline         = "RAPID_DECLINE"
	CodeNoSpecialist         = "NO_SPECIALIST"
	CodeHyperkalemia         = "HYPERKALEMIA"
	CodeSevereAnemia         = "SEVERE_ANEMIA"
	CodeNephroticDecline     = "NEPHROTIC_DECLINE"
	CodeHeavyProteinuria     = "HEAVY_PROTEINURIA"
	CodeUncontrolledHTN      = "UNCONTROLLED_HTN"
	CodeUncontrolledDM       = "UNCONTROLLED_DM"
	CodeHyperphosphatemia    = "HYPERPHOSPHATEMIA"
	CodeNephrotoxicMeds      = "NEPHROTOXIC_MEDS"
	CodeModerateAnemia       = "MODERATE_ANEMIA"
	CodeModerateHyperkalemia = "MODERATE_HYPERKALEMIA"
	CodeNoRASInhibitor       = "NO_RAS_INHIBITOR"
	CodeNoSGLT2i             = "NO_SGLT2I"
	CodeObesity              = "OBESITY"
	CodeActiveSmoking        = "ACTIVE_SMOKING"
	CodeProgressiveCKD       = "PROGRESSIVE_CKD"
)

// AlertReason is one fired rule, stored as structured JSON on the snapshot.
type AlertReason struct {
	Severity string `json:"severity"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Action   string `json:"action"`
}

// eGFR trend directions.
const (
	TrendRising           = "rising"
	TrendStable           = "stable"
	TrendDeclining        = "declining"
	TrendInsufficientData = "insufficient_data"
)

// TrendResult is the annualized eGFR trajectory. ChangePct is meaningful
// only when Direction is not insufficient_data.
type TrendResult struct {
	Direction string  `json:"direction"`
	ChangePct float64 `json:"change_pct"`
	Points    int     `json:"points"`
}

// Trigger sources for an assessment.
const (
	TriggerScan       = "scan"
	TriggerManual     = "manual"
	TriggerDataUpdate = "data_update"
)

// Snapshot maps to the risk_snapshot table. Append-only; one row per
// assessment whether or not the tier changed.
type Snapshot struct {
	ID               uuid.UUID     `db:"id" json:"id"`
	PatientID        uuid.UUID     `db:"patient_id" json:"patient_id"`
	Score            float64       `db:"score" json:"score"`
	Tier             Tier          `db:"tier" json:"tier"`
	PreviousTier     *Tier         `db:"previous_tier" json:"previous_tier,omitempty"`
	LabScore         float64       `db:"lab_score" json:"lab_score"`
	ComorbidityScore float64       `db:"comorbidity_score" json:"comorbidity_score"`
	DemographicScore float64       `db:"demographic_score" json:"demographic_score"`
	LifestyleScore   float64       `db:"lifestyle_score" json:"lifestyle_score"`
	MedicationScore  float64       `db:"medication_score" json:"medication_score"`
	EGFRTrend        string        `db:"egfr_trend" json:"egfr_trend"`
	EGFRChangePct    float64       `db:"egfr_change_pct" json:"egfr_change_pct"`
	PriorityChanged  bool          `db:"priority_changed" json:"priority_changed"`
	Escalated        bool          `db:"escalated" json:"escalated"`
	Improved         bool          `db:"improved" json:"improved"`
	AlertReasons     []AlertReason `db:"alert_reasons" json:"alert_reasons"`
	AlertScore       int           `db:"alert_score" json:"alert_score"`
	TriggerSource    string        `db:"trigger_source" json:"trigger_source"`
	AssessedAt       time.Time     `db:"assessed_at" json:"assessed_at"`
}

// Transition is the state-machine verdict for one assessment.
type Transition struct {
	PreviousTier         *Tier
	NextTier             Tier
	PriorityChanged      bool
	Escalated            bool
	Improved             bool
	RequiresNotification bool
}
