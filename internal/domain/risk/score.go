package risk

// ScoreInputs collects everything the composite scorer reads. Pointer fields
// are absent when the underlying observation has never been recorded;
// missing values simply contribute nothing.
type ScoreInputs struct {
	// Laboratory
	UACR      *float64
	EGFR      *float64
	EGFRTrend TrendResult

	// Comorbidity
	Diabetes               bool
	DiabetesControlled     bool
	Hypertension           bool
	HypertensionControlled bool
	CardiovascularDisease  bool
	PriorAKI               bool

	// Demographic
	Age               int // -1 when unknown
	HighRiskEthnicity int // 0, or +3..+5 depending on category

	// Lifestyle
	CurrentSmoker bool
	BMI           *float64

	// Medication
	NephrotoxicMedCount    int
	RenoprotectiveMedCount int
}

// ScoreResult is the composite score with its per-bucket contributions.
type ScoreResult struct {
	Total       float64
	Lab         float64
	Comorbidity float64
	Demographic float64
	Lifestyle   float64
	Medication  float64
	Tier        Tier
}

// Per-bucket caps keep any single evidence family from dominating.
const (
	labCap         = 40.0
	comorbidityCap = 30.0
	demographicCap = 15.0
	lifestyleCap   = 5.0
	medicationCap  = 10.0
)

func capAt(v, cap float64) float64 {
	if v > cap {
		return cap
	}
	return v
}

// Score computes the capped additive composite in [0,100].
func Score(in ScoreInputs) ScoreResult {
	var r ScoreResult

	// Laboratory: uACR tiers, eGFR tiers, rapid-decline bonus.
	if in.UACR != nil {
		switch {
		case *in.UACR >= 300:
			r.Lab += 20
		case *in.UACR >= 30:
			r.Lab += 12
		case *in.UACR >= 10:
			r.Lab += 6
		}
	}
	if in.EGFR != nil {
		switch {
		case *in.EGFR < 30:
			r.Lab += 15
		case *in.EGFR < 45:
			r.Lab += 12
		case *in.EGFR < 60:
			r.Lab += 8
		case *in.EGFR < 90:
			r.Lab += 4
		}
	}
	if in.EGFRTrend.Direction == TrendDeclining {
		// Up to 5 points, scaled with the annualized decline rate.
		bonus := -in.EGFRTrend.ChangePct / 2
		r.Lab += capAt(bonus, 5)
	}
	r.Lab = capAt(r.Lab, labCap)

	// Comorbidity
	if in.Diabetes {
		r.Comorbidity += 10
		if !in.DiabetesControlled {
			r.Comorbidity += 5
		}
	}
	if in.Hypertension {
		r.Comorbidity += 5
		if !in.HypertensionControlled {
			r.Comorbidity += 3
		}
	}
	if in.CardiovascularDisease {
		r.Comorbidity += 7
	}
	if in.PriorAKI {
		r.Comorbidity += 5
	}
	r.Comorbidity = capAt(r.Comorbidity, comorbidityCap)

	// Demographic
	switch {
	case in.Age >= 75:
		r.Demographic += 10
	case in.Age >= 65:
		r.Demographic += 6
	case in.Age >= 60:
		r.Demographic += 3
	}
	if in.HighRiskEthnicity > 0 {
		bump := in.HighRiskEthnicity
		if bump > 5 {
			bump = 5
		}
		if bump < 3 {
			bump = 3
		}
		r.Demographic += float64(bump)
	}
	r.Demographic = capAt(r.Demographic, demographicCap)

	// Lifestyle
	if in.CurrentSmoker {
		r.Lifestyle += 3
	}
	if in.BMI != nil && *in.BMI >= 30 {
		r.Lifestyle += 2
	}
	r.Lifestyle = capAt(r.Lifestyle, lifestyleCap)

	// Medication: exposure penalties minus renoprotection, floored at 0.
	if in.NephrotoxicMedCount > 0 {
		r.Medication += 2
		if in.NephrotoxicMedCount > 1 {
			r.Medication += float64(in.NephrotoxicMedCount-1) * 1
		}
	}
	r.Medication -= float64(in.RenoprotectiveMedCount)
	if r.Medication < 0 {
		r.Medication = 0
	}
	r.Medication = capAt(r.Medication, medicationCap)

	r.Total = r.Lab + r.Comorbidity + r.Demographic + r.Lifestyle + r.Medication
	if r.Total > 100 {
		r.Total = 100
	}
	if r.Total < 0 {
		r.Total = 0
	}
	r.Tier = TierForScore(r.Total)
	return r
}
