package risk

import (
	"time"

	"github.com/renalert/renalert/internal/domain/observation"
)

// Declines shallower than this count as stable, not declining.
const stableBandPct = 2.0

// EGFRTrend computes the average annualized percent change across the
// observation window. history must be ordered oldest first. Fewer than two
// points yields insufficient_data rather than a fabricated rate.
func EGFRTrend(history []observation.Observation) TrendResult {
	if len(history) < 2 {
		return TrendResult{Direction: TrendInsufficientData, Points: len(history)}
	}

	first, last := history[0], history[len(history)-1]
	if first.Value <= 0 {
		return TrendResult{Direction: TrendInsufficientData, Points: len(history)}
	}

	span := last.ObservedAt.Sub(first.ObservedAt)
	if span <= 0 {
		return TrendResult{Direction: TrendInsufficientData, Points: len(history)}
	}

	totalPct := (last.Value - first.Value) / first.Value * 100
	annualized := totalPct * float64(365*24*time.Hour) / float64(span)

	direction := TrendStable
	switch {
	case annualized <= -stableBandPct:
		direction = TrendDeclining
	case annualized >= stableBandPct:
		direction = TrendRising
	}

	return TrendResult{Direction: direction, ChangePct: annualized, Points: len(history)}
}
