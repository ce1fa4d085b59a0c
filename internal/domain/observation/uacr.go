package observation

// UACRCategory buckets an albumin-to-creatinine ratio (mg/g).
func UACRCategory(value float64) string {
	switch {
	case value > 300:
		return UACRMacro
	case value >= 30:
		return UACRMicro
	default:
		return UACRNormal
	}
}

func categoryRank(cat string) int {
	switch cat {
	case UACRMicro:
		return 1
	case UACRMacro:
		return 2
	default:
		return 0
	}
}

// AnalyzeUACR compares the two most recent uACR results. history must be
// ordered oldest first. With fewer than two results there is no trend, only
// the current category.
func AnalyzeUACR(history []Observation) UACRTrend {
	if len(history) == 0 {
		return UACRTrend{Worsening: WorseningNone}
	}

	current := history[len(history)-1].Value
	trend := UACRTrend{
		Current:         current,
		CurrentCategory: UACRCategory(current),
		Worsening:       WorseningNone,
	}
	if len(history) < 2 {
		return trend
	}

	previous := history[len(history)-2].Value
	trend.Previous = &previous
	trend.PreviousCategory = UACRCategory(previous)
	trend.CategoryProgressed = categoryRank(trend.CurrentCategory) > categoryRank(trend.PreviousCategory)

	if previous > 0 {
		pct := (current - previous) / previous * 100
		trend.PercentChange = &pct

		switch {
		case pct > 100:
			trend.Worsening = WorseningSevere
		case pct > 50:
			trend.Worsening = WorseningModerate
		case pct > 30:
			trend.Worsening = WorseningMild
		}
	}

	// Crossing into a worse albuminuria category is at least moderate even
	// when the percent change alone would not flag it.
	if trend.CategoryProgressed && trend.Worsening != WorseningSevere {
		trend.Worsening = WorseningModerate
	}

	return trend
}
