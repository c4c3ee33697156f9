package qa

// DemotionPolicy resolves how aggressively a strong fail demotes an entry.
// The canonical tier always requires zero strong fails; whether the strong
// tier does too is a deployment choice.
type DemotionPolicy string

const (
	// DemoteL3Only disqualifies only the canonical tier on a strong fail.
	DemoteL3Only DemotionPolicy = "l3-only"
	// DemoteStrict additionally disqualifies the strong tier.
	DemoteStrict DemotionPolicy = "strict"
)

// Classifier thresholds, evaluated top-down; first match wins.
const (
	canonicalTrust      = 0.80
	canonicalTotal      = 5
	canonicalStrongPass = 2

	strongTrust      = 0.65
	strongTotal      = 3
	strongStrongPass = 1

	basicTrust = 0.40
	basicTotal = 2
)

// ClassifyLevel derives the validation level from current stats and trust
// score. The level is always recomputed from stats after a mutation, never
// incremented in place, so it cannot drift. It is not monotonic: a strong
// fail can drop a canonical entry to basic or below.
func ClassifyLevel(trust float64, s ValidationStats, policy DemotionPolicy) Level {
	total := s.Total()

	if trust >= canonicalTrust && total >= canonicalTotal &&
		s.StrongPass >= canonicalStrongPass && s.StrongFail == 0 {
		return LevelCanonical
	}
	if trust >= strongTrust && total >= strongTotal && s.StrongPass >= strongStrongPass {
		if policy != DemoteStrict || s.StrongFail == 0 {
			return LevelStrong
		}
	}
	if trust >= basicTrust && total >= basicTotal {
		return LevelBasic
	}
	return LevelCandidate
}
