package risk

// Classify applies the transition rules given the patient's cached previous
// tier (nil on first assessment) and the freshly computed tier.
//
// First assessment: HIGH or CRITICAL starts escalated and notifies; lower
// tiers start silently. Afterwards a strictly higher tier escalates, a
// strictly lower one improves, and equality is a no-op. Escalated and
// improved are mutually exclusive by construction.
func Classify(previous *Tier, next Tier) Transition {
	tr := Transition{PreviousTier: previous, NextTier: next}

	if previous == nil {
		if next == TierHigh || next == TierCritical {
			tr.Escalated = true
			tr.PriorityChanged = true
			tr.RequiresNotification = true
		}
		return tr
	}

	switch {
	case previous.Less(next):
		tr.Escalated = true
		tr.PriorityChanged = true
		tr.RequiresNotification = true
	case next.Less(*previous):
		tr.Improved = true
		tr.PriorityChanged = true
		tr.RequiresNotification = true
	}
	return tr
}
