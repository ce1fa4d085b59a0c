package risk

import "testing"

func codes(alerts []AlertReason) map[string]string {
	out := make(map[string]string, len(alerts))
	for _, a := range alerts {
		out[a.Code] = a.Severity
	}
	return out
}

func TestCKDStage(t *testing.T) {
	tests := []struct {
		egfr *float64
		want int
	}{
		{nil, 0},
		{fptr(95), 1},
		{fptr(90), 1},
		{fptr(60), 2},
		{fptr(45), 3},
		{fptr(30), 3},
		{fptr(29), 4},
		{fptr(15), 4},
		{fptr(14), 5},
	}
	for _, tt := range tests {
		if got := CKDStage(tt.egfr); got != tt.want {
			t.Errorf("CKDStage(%v) = %d, want %d", tt.egfr, got, tt.want)
		}
	}
}

func TestScanAlertsCriticalRules(t *testing.T) {
	in := AlertInputs{
		EGFR:       fptr(22), // stage 4
		UACR:       fptr(450),
		Potassium:  fptr(6.2),
		Hemoglobin: fptr(8.4),
		Trend:      TrendResult{Direction: TrendDeclining, ChangePct: -12, Points: 4},
	}
	alerts, score := ScanAlerts(in)
	got := codes(alerts)

	for _, code := range []string{CodeRapidDecline, CodeNoSpecialist, CodeHyperkalemia, CodeSevereAnemia, CodeNephroticDecline} {
		if got[code] != SeverityCritical {
			t.Errorf("%s: severity %q, want CRITICAL", code, got[code])
		}
	}
	if _, ok := got[CodeHeavyProteinuria]; ok {
		t.Error("HEAVY_PROTEINURIA must not fire when eGFR is declining")
	}
	// Stage 4 + declining >5%/yr also fires PROGRESSIVE_CKD, and proteinuria
	// without RAS therapy fires NO_RAS_INHIBITOR: 5 critical + 2 moderate.
	if got[CodeProgressiveCKD] != SeverityModerate {
		t.Errorf("PROGRESSIVE_CKD: severity %q, want MODERATE", got[CodeProgressiveCKD])
	}
	if got[CodeNoRASInhibitor] != SeverityModerate {
		t.Errorf("NO_RAS_INHIBITOR: severity %q, want MODERATE", got[CodeNoRASInhibitor])
	}
	if score != 54 {
		t.Errorf("severity score = %d, want 54", score)
	}
}

func TestScanAlertsHighRules(t *testing.T) {
	tests := []struct {
		name string
		in   AlertInputs
		code string
	}{
		{
			"heavy_proteinuria_stable",
			AlertInputs{UACR: fptr(350), Trend: TrendResult{Direction: TrendStable}},
			CodeHeavyProteinuria,
		},
		{
			"uncontrolled_htn",
			AlertInputs{EGFR: fptr(40), SystolicBP: fptr(150)},
			CodeUncontrolledHTN,
		},
		{
			"uncontrolled_htn_diastolic",
			AlertInputs{EGFR: fptr(40), DiastolicBP: fptr(95)},
			CodeUncontrolledHTN,
		},
		{
			"uncontrolled_dm",
			AlertInputs{HbA1c: fptr(8.2), Diabetes: true},
			CodeUncontrolledDM,
		},
		{
			"hyperphosphatemia",
			AlertInputs{EGFR: fptr(20), Phosphate: fptr(5.1), SeesNephrologist: true},
			CodeHyperphosphatemia,
		},
		{
			"nephrotoxic_declining",
			AlertInputs{NephrotoxicMedCount: 1, Trend: TrendResult{Direction: TrendDeclining, ChangePct: -3}},
			CodeNephrotoxicMeds,
		},
		{
			"moderate_anemia",
			AlertInputs{EGFR: fptr(40), Hemoglobin: fptr(10.2)},
			CodeModerateAnemia,
		},
		{
			"moderate_hyperkalemia",
			AlertInputs{Potassium: fptr(5.8)},
			CodeModerateHyperkalemia,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts, _ := ScanAlerts(tt.in)
			if codes(alerts)[tt.code] != SeverityHigh {
				t.Errorf("%s did not fire as HIGH; fired: %v", tt.code, codes(alerts))
			}
		})
	}
}

func TestScanAlertsModerateRules(t *testing.T) {
	tests := []struct {
		name string
		in   AlertInputs
		code string
	}{
		{
			"no_ras_inhibitor",
			AlertInputs{EGFR: fptr(70), UACR: fptr(80)},
			CodeNoRASInhibitor,
		},
		{
			"no_sglt2i",
			AlertInputs{EGFR: fptr(55), Diabetes: true},
			CodeNoSGLT2i,
		},
		{
			"obesity",
			AlertInputs{EGFR: fptr(70), BMI: fptr(31)},
			CodeObesity,
		},
		{
			"active_smoking",
			AlertInputs{EGFR: fptr(70), CurrentSmoker: true},
			CodeActiveSmoking,
		},
		{
			"progressive_ckd",
			AlertInputs{EGFR: fptr(40), SeesNephrologist: true, Trend: TrendResult{Direction: TrendDeclining, ChangePct: -7}},
			CodeProgressiveCKD,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts, _ := ScanAlerts(tt.in)
			if codes(alerts)[tt.code] != SeverityModerate {
				t.Errorf("%s did not fire as MODERATE; fired: %v", tt.code, codes(alerts))
			}
		})
	}
}

func TestScanAlertsSuppressedCases(t *testing.T) {
	tests := []struct {
		name string
		in   AlertInputs
		code string
	}{
		{"ras_already_on", AlertInputs{EGFR: fptr(70), UACR: fptr(80), OnRASInhibitor: true}, CodeNoRASInhibitor},
		{"sglt2_egfr_too_low", AlertInputs{EGFR: fptr(18), Diabetes: true}, CodeNoSGLT2i},
		{"anemia_stage_too_early", AlertInputs{EGFR: fptr(80), Hemoglobin: fptr(8.5)}, CodeSevereAnemia},
		{"dm_alert_needs_diagnosis", AlertInputs{HbA1c: fptr(9.0)}, CodeUncontrolledDM},
		{"nephrotoxic_needs_decline", AlertInputs{NephrotoxicMedCount: 2, Trend: TrendResult{Direction: TrendStable}}, CodeNephrotoxicMeds},
		{"specialist_present", AlertInputs{EGFR: fptr(20), SeesNephrologist: true}, CodeNoSpecialist},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts, _ := ScanAlerts(tt.in)
			if _, ok := codes(alerts)[tt.code]; ok {
				t.Errorf("%s fired but should be suppressed", tt.code)
			}
		})
	}
}

func TestScanAlertsEmptyInputs(t *testing.T) {
	alerts, score := ScanAlerts(AlertInputs{})
	if len(alerts) != 0 || score != 0 {
		t.Errorf("no evidence should fire nothing, got %d alerts score %d", len(alerts), score)
	}
}
