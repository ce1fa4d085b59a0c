package phenotype

// Inputs collects the fields the three risk estimators read. Pointer fields
// are nil when never recorded; HasProfile marks whether the comorbidity and
// lifestyle flags come from a real clinical profile row or are defaults.
type Inputs struct {
	Age    int // -1 when unknown
	Gender *string
	EGFR   *float64
	UACR   *float64

	HasProfile         bool
	Diabetes           bool
	Hypertension       bool
	CVD                bool
	CurrentSmoker      bool
	BMI                *float64
	SystolicBP         *float64
}

// The required field set backing the confidence indicator.
const requiredFields = 10

// Completeness counts how many of the required inputs are actually present.
func (in Inputs) Completeness() (present, required int) {
	required = requiredFields
	if in.Age >= 0 {
		present++
	}
	if in.Gender != nil {
		present++
	}
	if in.EGFR != nil {
		present++
	}
	if in.UACR != nil {
		present++
	}
	if in.HasProfile {
		// diabetes, hypertension, cvd, smoking status
		present += 4
	}
	if in.BMI != nil {
		present++
	}
	if in.SystolicBP != nil {
		present++
	}
	return present, required
}

func (in Inputs) male() bool {
	return in.Gender != nil && *in.Gender == "male"
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 95 {
		return 95
	}
	return v
}

// RenalRisk estimates 5-year kidney-failure risk in percent. Piecewise on
// the KFRE variables (age, sex, eGFR, uACR); younger patients at the same
// eGFR carry more progression risk.
func RenalRisk(in Inputs) float64 {
	risk := 2.0
	if in.EGFR != nil {
		switch {
		case *in.EGFR < 30:
			risk += 30
		case *in.EGFR < 45:
			risk += 15
		case *in.EGFR < 60:
			risk += 6
		}
	}
	if in.UACR != nil {
		switch {
		case *in.UACR > 300:
			risk += 20
		case *in.UACR >= 30:
			risk += 8
		}
	}
	if in.male() {
		risk += 2
	}
	if in.Age >= 0 && in.Age < 50 {
		risk += 3
	}
	return clampPct(risk)
}

// CVRisk estimates 10-year cardiovascular event risk in percent.
func CVRisk(in Inputs) float64 {
	risk := 2.0
	switch {
	case in.Age >= 75:
		risk += 25
	case in.Age >= 65:
		risk += 18
	case in.Age >= 55:
		risk += 10
	case in.Age >= 45:
		risk += 5
	}
	if in.male() {
		risk += 5
	}
	if in.CurrentSmoker {
		risk += 8
	}
	if in.Diabetes {
		risk += 8
	}
	if in.Hypertension || (in.SystolicBP != nil && *in.SystolicBP >= 140) {
		risk += 6
	}
	if in.CVD {
		risk += 20
	}
	if in.EGFR != nil && *in.EGFR < 60 {
		risk += 5
	}
	if in.BMI != nil && *in.BMI >= 30 {
		risk += 3
	}
	return clampPct(risk)
}

// MortalityRisk estimates 5-year all-cause mortality in percent.
func MortalityRisk(in Inputs) float64 {
	risk := 1.0
	switch {
	case in.Age >= 85:
		risk += 45
	case in.Age >= 75:
		risk += 25
	case in.Age >= 65:
		risk += 10
	}
	if in.CVD {
		risk += 10
	}
	if in.Diabetes {
		risk += 5
	}
	if in.EGFR != nil {
		switch {
		case *in.EGFR < 30:
			risk += 15
		case *in.EGFR < 45:
			risk += 8
		}
	}
	if in.CurrentSmoker {
		risk += 5
	}
	return clampPct(risk)
}
