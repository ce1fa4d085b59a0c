package adherence

import (
	"sort"
	"time"
)

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Categorize maps a composite score to its category.
func Categorize(score float64) string {
	switch {
	case score >= 0.90:
		return CategoryGood
	case score >= 0.75:
		return CategorySuboptimal
	default:
		return CategoryPoor
	}
}

// FuseComposite combines the available components into one composite score.
// Branches are evaluated in strict priority order; the first branch whose
// required inputs are all available wins. Unavailable component scores are
// ignored regardless of their value.
func FuseComposite(pharmacy, lab, selfReport *float64) Fusion {
	f := Fusion{Method: MethodNoData, Category: CategoryUnknown}
	if pharmacy != nil {
		f.Pharmacy = Component{Score: clamp01(*pharmacy), Available: true}
	}
	if lab != nil {
		f.Lab = Component{Score: clamp01(*lab), Available: true}
	}
	if selfReport != nil {
		f.SelfReport = Component{Score: clamp01(*selfReport), Available: true}
	}

	var composite float64
	switch {
	case f.Pharmacy.Available && f.Lab.Available && f.SelfReport.Available:
		f.Method = MethodMPRPrimary
		f.Pharmacy.Weight, f.Lab.Weight, f.SelfReport.Weight = 0.50, 0.30, 0.20
	case f.Pharmacy.Available && f.Lab.Available:
		f.Method = MethodMPRLabHybrid
		f.Pharmacy.Weight, f.Lab.Weight = 0.60, 0.40
	case f.Lab.Available && f.SelfReport.Available:
		f.Method = MethodLabPrimary
		f.Lab.Weight, f.SelfReport.Weight = 0.70, 0.30
	case f.Lab.Available:
		f.Method = MethodLabOnly
		f.Lab.Weight = 1.00
	case f.Pharmacy.Available:
		f.Method = MethodMPROnly
		f.Pharmacy.Weight = 1.00
	case f.SelfReport.Available:
		f.Method = MethodSelfReportOnly
		f.SelfReport.Weight = 1.00
	default:
		return f
	}

	composite = clamp01(f.Pharmacy.Score*f.Pharmacy.Weight +
		f.Lab.Score*f.Lab.Weight +
		f.SelfReport.Score*f.SelfReport.Weight)
	f.Composite = &composite
	f.Category = Categorize(composite)
	return f
}

// ScoreSelfReport derives the self-report component from the questionnaire:
// the fraction of days taken, with independent multiplicative penalties for
// each admitted behavior.
func ScoreSelfReport(r SelfReport) float64 {
	if r.PeriodDays <= 0 {
		return 0
	}
	score := float64(r.DaysTaken) / float64(r.PeriodDays)
	if r.Forgot {
		score *= 0.95
	}
	if r.StoppedFeelingWorse {
		score *= 0.90
	}
	if r.StoppedFeelingBetter {
		score *= 0.90
	}
	return clamp01(score)
}

// MPR is the medication possession ratio as a percentage, capped at 100:
// total days of medication supplied over the period length.
func MPR(refillCount, daysSupply, periodDays int) float64 {
	if periodDays <= 0 || refillCount <= 0 || daysSupply <= 0 {
		return 0
	}
	mpr := float64(refillCount*daysSupply) / float64(periodDays) * 100
	if mpr > 100 {
		return 100
	}
	return mpr
}

// PDC is the proportion of days covered as a percentage, capped at 100.
// Unlike MPR it does not double-count overlapping fills.
func PDC(refillDates []time.Time, daysSupply int, periodStart, periodEnd time.Time) float64 {
	periodDays := int(periodEnd.Sub(periodStart).Hours()/24) + 1
	if periodDays <= 0 || len(refillDates) == 0 || daysSupply <= 0 {
		return 0
	}

	covered := make(map[string]struct{})
	for _, refill := range refillDates {
		for i := 0; i < daysSupply; i++ {
			day := refill.AddDate(0, 0, i)
			if day.Before(periodStart) || day.After(periodEnd) {
				continue
			}
			covered[day.Format("2006-01-02")] = struct{}{}
		}
	}

	pdc := float64(len(covered)) / float64(periodDays) * 100
	if pdc > 100 {
		return 100
	}
	return pdc
}

// MaxRefillGap returns the longest run of uncovered days between consecutive
// refills, 0 with fewer than two refills.
func MaxRefillGap(refillDates []time.Time, daysSupply int) int {
	if len(refillDates) < 2 {
		return 0
	}
	sorted := make([]time.Time, len(refillDates))
	copy(sorted, refillDates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	maxGap := 0
	for i := 1; i < len(sorted); i++ {
		exhausted := sorted[i-1].AddDate(0, 0, daysSupply)
		gap := int(sorted[i].Sub(exhausted).Hours() / 24)
		if gap > maxGap {
			maxGap = gap
		}
	}
	return maxGap
}
