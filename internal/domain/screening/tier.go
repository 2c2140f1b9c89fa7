package screening

// Tier is the coarse risk bucket derived from a score.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// Tier thresholds (inclusive lower bounds).
const (
	HighThreshold   = 80
	MediumThreshold = 50
)

// Classify maps a score to exactly one tier.
func Classify(score int) Tier {
	switch {
	case score >= HighThreshold:
		return TierHigh
	case score >= MediumThreshold:
		return TierMedium
	default:
		return TierLow
	}
}
