package risk

import "fmt"

// CKDStage derives the stage from eGFR (1-5, 0 when unknown). Stages 3a/3b
// are collapsed to 3; the rules only branch on whole stages.
func CKDStage(egfr *float64) int {
	if egfr == nil {
		return 0
	}
	switch {
	case *egfr >= 90:
		return 1
	case *egfr >= 60:
		return 2
	case *egfr >= 30:
		return 3
	case *egfr >= 15:
		return 4
	default:
		return 5
	}
}

// AlertInputs is the evidence the rule scan reads. Pointer fields are absent
// when no observation of that type exists; absent values fire no rules.
type AlertInputs struct {
	EGFR        *float64
	UACR        *float64
	Potassium   *float64
	Hemoglobin  *float64
	Phosphate   *float64
	SystolicBP  *float64
	DiastolicBP *float64
	HbA1c       *float64
	Trend       TrendResult

	Diabetes            bool
	SeesNephrologist    bool
	OnRASInhibitor      bool
	OnSGLT2Inhibitor    bool
	NephrotoxicMedCount int
	BMI                 *float64
	CurrentSmoker       bool
}

func severityPoints(severity string) int {
	switch severity {
	case SeverityCritical:
		return 10
	case SeverityHigh:
		return 5
	default:
		return 2
	}
}

// ScanAlerts runs the clinical rule set and returns the fired reasons with
// the summed severity score (10 per critical, 5 per high, 2 per moderate).
func ScanAlerts(in AlertInputs) ([]AlertReason, int) {
	var alerts []AlertReason
	add := func(severity, code, message, action string) {
		alerts = append(alerts, AlertReason{Severity: severity, Code: code, Message: message, Action: action})
	}

	stage := CKDStage(in.EGFR)
	declining := in.Trend.Direction == TrendDeclining

	// Critical rules.
	if declining && in.Trend.ChangePct <= -10 {
		add(SeverityCritical, CodeRapidDecline,
			fmt.Sprintf("Rapid eGFR decline (%.1f%%/yr)", in.Trend.ChangePct),
			"Urgent nephrology referral, investigate reversible causes (AKI, medications, obstruction)")
	}
	if stage >= 4 && !in.SeesNephrologist {
		add(SeverityCritical, CodeNoSpecialist,
			fmt.Sprintf("Stage %d CKD without nephrologist", stage),
			"Immediate nephrology referral, dialysis planning may be needed")
	}
	if in.Potassium != nil && *in.Potassium > 6.0 {
		add(SeverityCritical, CodeHyperkalemia,
			fmt.Sprintf("Severe hyperkalemia (K+ %.1f mEq/L)", *in.Potassium),
			"Immediate evaluation: cardiac monitoring, stop K+-sparing agents, consider dialysis")
	}
	if in.Hemoglobin != nil && *in.Hemoglobin < 9.0 && stage >= 3 {
		add(SeverityCritical, CodeSevereAnemia,
			fmt.Sprintf("Severe anemia (Hb %.1f g/dL)", *in.Hemoglobin),
			"Urgent investigation: iron studies, B12/folate, GI evaluation; consider ESA therapy")
	}
	if in.UACR != nil && *in.UACR > 300 && declining {
		add(SeverityCritical, CodeNephroticDecline,
			fmt.Sprintf("Nephrotic-range proteinuria (uACR %.0f mg/g) with declining eGFR", *in.UACR),
			"Urgent nephrology referral, consider kidney biopsy, exclude glomerulonephritis")
	}

	// High rules.
	if in.UACR != nil && *in.UACR > 300 && !declining {
		add(SeverityHigh, CodeHeavyProteinuria,
			fmt.Sprintf("Heavy proteinuria (uACR %.0f mg/g)", *in.UACR),
			"Optimize RAS inhibition (ACE-I/ARB), add SGLT2i if diabetic")
	}
	highBP := (in.SystolicBP != nil && *in.SystolicBP >= 140) || (in.DiastolicBP != nil && *in.DiastolicBP >= 90)
	if highBP && stage >= 3 {
		add(SeverityHigh, CodeUncontrolledHTN,
			"Uncontrolled hypertension in stage 3+ CKD",
			"Intensify antihypertensive therapy, target <130/80 in CKD with proteinuria")
	}
	if in.HbA1c != nil && *in.HbA1c > 7.5 && in.Diabetes {
		add(SeverityHigh, CodeUncontrolledDM,
			fmt.Sprintf("Uncontrolled diabetes (HbA1c %.1f%%)", *in.HbA1c),
			"Optimize glycemic control, target HbA1c <7%, strongly consider SGLT2i")
	}
	if in.Phosphate != nil && *in.Phosphate > 4.5 && stage >= 4 {
		add(SeverityHigh, CodeHyperphosphatemia,
			fmt.Sprintf("Elevated phosphorus (%.1f mg/dL)", *in.Phosphate),
			"Dietary counseling, initiate phosphate binders")
	}
	if in.NephrotoxicMedCount > 0 && declining {
		add(SeverityHigh, CodeNephrotoxicMeds,
			"Nephrotoxic medications with declining kidney function",
			"Urgent medication review: discontinue or substitute NSAIDs, aminoglycosides")
	}
	if in.Hemoglobin != nil && *in.Hemoglobin >= 9.0 && *in.Hemoglobin < 11.0 && stage >= 3 {
		add(SeverityHigh, CodeModerateAnemia,
			fmt.Sprintf("Moderate anemia (Hb %.1f g/dL)", *in.Hemoglobin),
			"Iron studies, address iron deficiency, monitor for progression")
	}
	if in.Potassium != nil && *in.Potassium > 5.5 && *in.Potassium <= 6.0 {
		add(SeverityHigh, CodeModerateHyperkalemia,
			fmt.Sprintf("Moderate hyperkalemia (K+ %.1f mEq/L)", *in.Potassium),
			"Dietary counseling, review medications, consider K+ binder if persistent")
	}

	// Moderate rules.
	if stage >= 2 && in.UACR != nil && *in.UACR > 30 && !in.OnRASInhibitor {
		add(SeverityModerate, CodeNoRASInhibitor,
			"Proteinuria without RAS inhibitor therapy",
			"Initiate ACE inhibitor or ARB (first-line for proteinuric CKD)")
	}
	if in.Diabetes && stage >= 2 && !in.OnSGLT2Inhibitor && in.EGFR != nil && *in.EGFR >= 20 {
		add(SeverityModerate, CodeNoSGLT2i,
			"Diabetic CKD without SGLT2 inhibitor",
			"Consider SGLT2i (empagliflozin/dapagliflozin), proven renoprotection")
	}
	if in.BMI != nil && *in.BMI >= 30 && stage >= 2 {
		add(SeverityModerate, CodeObesity,
			fmt.Sprintf("Obesity (BMI %.1f kg/m²)", *in.BMI),
			"Weight management program, target 5-10% weight loss, dietary counseling")
	}
	if in.CurrentSmoker && stage >= 2 {
		add(SeverityModerate, CodeActiveSmoking,
			"Active smoker, accelerates CKD progression",
			"Smoking cessation counseling, pharmacotherapy (varenicline, bupropion)")
	}
	if stage >= 3 && declining && in.Trend.ChangePct < -5 {
		add(SeverityModerate, CodeProgressiveCKD,
			fmt.Sprintf("Progressive CKD (stage %d, eGFR declining %.1f%%/yr)", stage, in.Trend.ChangePct),
			"Review medications, optimize BP and glycemic control, ensure nephrology follow-up")
	}

	score := 0
	for _, a := range alerts {
		score += severityPoints(a.Severity)
	}
	return alerts, score
}
