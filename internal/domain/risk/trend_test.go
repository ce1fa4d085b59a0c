package risk

import (
	"math"
	"testing"
	"time"

	"github.com/renalert/renalert/internal/domain/observation"
)

func obsAt(value float64, daysAgo int) observation.Observation {
	return observation.Observation{
		Value:      value,
		ObservedAt: time.Now().UTC().AddDate(0, 0, -daysAgo),
	}
}

func TestEGFRTrendInsufficientData(t *testing.T) {
	if r := EGFRTrend(nil); r.Direction != TrendInsufficientData || r.Points != 0 {
		t.Errorf("empty history = %+v", r)
	}
	if r := EGFRTrend([]observation.Observation{obsAt(60, 30)}); r.Direction != TrendInsufficientData || r.Points != 1 {
		t.Errorf("single point = %+v", r)
	}

	// Two results from the same draw have no time span to annualize over.
	same := time.Now().UTC()
	hist := []observation.Observation{
		{Value: 60, ObservedAt: same},
		{Value: 55, ObservedAt: same},
	}
	if r := EGFRTrend(hist); r.Direction != TrendInsufficientData {
		t.Errorf("zero span = %+v", r)
	}
}

func TestEGFRTrendAnnualizedDecline(t *testing.T) {
	// 60 -> 54 over half a year is -10% raw, -20%/yr annualized.
	hist := []observation.Observation{obsAt(60, 365/2), obsAt(54, 0)}
	r := EGFRTrend(hist)
	if r.Direction != TrendDeclining {
		t.Fatalf("direction = %s, want declining", r.Direction)
	}
	if math.Abs(r.ChangePct-(-20)) > 0.5 {
		t.Errorf("annualized change = %.2f, want about -20", r.ChangePct)
	}
	if r.Points != 2 {
		t.Errorf("points = %d, want 2", r.Points)
	}
}

func TestEGFRTrendStableBand(t *testing.T) {
	// -1%/yr sits inside the stable band.
	hist := []observation.Observation{obsAt(60, 365), obsAt(59.4, 0)}
	if r := EGFRTrend(hist); r.Direction != TrendStable {
		t.Errorf("direction = %s (%.2f%%/yr), want stable", r.Direction, r.ChangePct)
	}
}

func TestEGFRTrendRising(t *testing.T) {
	hist := []observation.Observation{obsAt(50, 365), obsAt(55, 0)}
	r := EGFRTrend(hist)
	if r.Direction != TrendRising {
		t.Errorf("direction = %s, want rising", r.Direction)
	}
	if r.ChangePct <= 0 {
		t.Errorf("change = %.2f, want positive", r.ChangePct)
	}
}

func TestEGFRTrendUsesWindowEndpoints(t *testing.T) {
	// A noisy middle point must not affect the first-to-last computation.
	hist := []observation.Observation{obsAt(60, 365), obsAt(80, 180), obsAt(48, 0)}
	r := EGFRTrend(hist)
	if r.Direction != TrendDeclining {
		t.Fatalf("direction = %s, want declining", r.Direction)
	}
	if math.Abs(r.ChangePct-(-20)) > 0.5 {
		t.Errorf("annualized change = %.2f, want about -20", r.ChangePct)
	}
	if r.Points != 3 {
		t.Errorf("points = %d, want 3", r.Points)
	}
}
