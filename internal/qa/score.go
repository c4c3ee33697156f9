package qa

// Signal weights for the trust score. Strong signals dominate: a single
// strong fail outweighs a strong pass, and weak signals barely move the
// needle either way.
const (
	weightStrongPass = 0.25
	weightStrongFail = -0.35
	weightMediumPass = 0.10
	weightMediumFail = -0.15
	weightWeakPass   = 0.02
	weightWeakFail   = -0.05

	// Streak penalty per consecutive fail, capped so a long losing streak
	// cannot push the score below the floor set by three fails in a row.
	weightConsecutiveFail = -0.5
	consecutiveFailCap    = 3

	rawScoreMin = -2.0
	rawScoreMax = 3.0
)

// RawScore computes the weighted, clamped score in [-2, 3] from the counters.
func RawScore(s ValidationStats) float64 {
	streak := s.ConsecutiveFail
	if streak > consecutiveFailCap {
		streak = consecutiveFailCap
	}

	raw := float64(s.StrongPass)*weightStrongPass +
		float64(s.StrongFail)*weightStrongFail +
		float64(s.MediumPass)*weightMediumPass +
		float64(s.MediumFail)*weightMediumFail +
		float64(s.WeakPass)*weightWeakPass +
		float64(s.WeakFail)*weightWeakFail +
		float64(streak)*weightConsecutiveFail

	if raw < rawScoreMin {
		return rawScoreMin
	}
	if raw > rawScoreMax {
		return rawScoreMax
	}
	return raw
}

// TrustScore normalizes the raw score to [0, 1].
func TrustScore(s ValidationStats) float64 {
	return clamp((RawScore(s) - rawScoreMin) / (rawScoreMax - rawScoreMin))
}

func clamp(score float64) float64 {
	if score < 0.0 {
		return 0.0
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}
