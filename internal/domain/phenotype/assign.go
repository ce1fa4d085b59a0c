package phenotype

// Axis thresholds. Renal and CV have a mid band feeding the moderate
// phenotypes; mortality has a single dominance cut at 50%.
const (
	renalHighPct     = 15.0
	renalModeratePct = 7.5

	cvHighPct         = 20.0
	cvIntermediatePct = 10.0

	mortalityVeryHighPct = 50.0
	mortalityHighPct     = 25.0
)

func RenalCategoryFor(pct float64) string {
	switch {
	case pct >= renalHighPct:
		return RenalHigh
	case pct >= renalModeratePct:
		return RenalModerate
	default:
		return RenalLow
	}
}

func CVCategoryFor(pct float64) string {
	switch {
	case pct >= cvHighPct:
		return CVHigh
	case pct >= cvIntermediatePct:
		return CVIntermediateCat
	default:
		return CVLow
	}
}

func MortalityCategoryFor(pct float64) string {
	switch {
	case pct >= mortalityVeryHighPct:
		return MortalityVeryHigh
	case pct >= mortalityHighPct:
		return MortalityHigh
	default:
		return MortalityLow
	}
}

// Assign maps the three risk estimates onto one of the eight phenotypes.
// Mortality >= 50% dominates: competing mortality risk that high overrides
// whatever the renal and CV numbers say about treatment intensity.
func Assign(renalPct, cvPct, mortalityPct float64) Phenotype {
	if mortalityPct >= mortalityVeryHighPct {
		return Senescent
	}

	renalHigh := renalPct >= renalHighPct
	renalMod := renalPct >= renalModeratePct
	cvHigh := cvPct >= cvHighPct
	cvInter := cvPct >= cvIntermediatePct

	switch {
	case renalHigh && cvHigh:
		return AcceleratedAger
	case renalHigh:
		return SilentRenal
	case cvHigh:
		return VascularDominant
	case renalMod && cvInter:
		return CardiorenalModerate
	case renalMod:
		return RenalWatch
	case cvInter:
		return CVIntermediate
	default:
		return LowRisk
	}
}

// BenefitRatio is (renal + cv) / mortality: how much modifiable cardiorenal
// risk there is per unit of competing mortality risk. Interpretation text
// only, never used for phenotype selection. Zero mortality risk yields 0.
func BenefitRatio(renalPct, cvPct, mortalityPct float64) float64 {
	if mortalityPct <= 0 {
		return 0
	}
	return (renalPct + cvPct) / mortalityPct
}

// Interpretation is the treatment-strategy text shown alongside the label.
func Interpretation(p Phenotype, benefitRatio float64) string {
	switch p {
	case Senescent:
		return "Competing mortality risk dominates: prioritize symptom control and goals-of-care discussion over aggressive cardiorenal intervention."
	case AcceleratedAger:
		return "High renal and cardiovascular risk together: maximize combined therapy (RAS inhibition, SGLT2i, statin, BP control)."
	case SilentRenal:
		return "Renal risk outpaces cardiovascular risk: focus on nephroprotection and proteinuria reduction."
	case VascularDominant:
		return "Cardiovascular risk dominates: prioritize lipid management, BP control and antiplatelet review."
	case CardiorenalModerate:
		return "Moderate risk on both axes: intensify risk-factor control before organ damage accrues."
	case RenalWatch:
		return "Moderate renal risk: monitor eGFR and uACR closely, optimize RAS inhibition."
	case CVIntermediate:
		return "Intermediate cardiovascular risk: address lipids, BP and lifestyle factors."
	default:
		if benefitRatio > 2 {
			return "Low absolute risk with favorable benefit ratio: maintain current management."
		}
		return "Low risk on all axes: routine monitoring."
	}
}
