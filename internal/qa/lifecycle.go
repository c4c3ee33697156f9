package qa

import "time"

// DeprecationStreak is the consecutive-fail count that forces an entry into
// the terminal deprecated state.
const DeprecationStreak = 3

// reactivation and stale thresholds share the basic-tier trust floor
const lifecycleTrustFloor = basicTrust

// NextStatus computes the lifecycle state after a mutation. It is evaluated
// last in the update pipeline, once stats, trust and expiry are current.
//
//	candidate -> active      first level >=1 with at least one pass
//	active    -> stale       expiry elapsed or trust under the floor
//	stale     -> active      a pass brought trust back and the TTL was extended
//	any       -> deprecated  consecutive-fail streak reached (terminal)
//
// Deprecated is terminal here; only an explicit reinstatement call exits it.
func NextStatus(current Status, level Level, trust float64, s ValidationStats, expiresAt, now time.Time) Status {
	if current == StatusDeprecated {
		return StatusDeprecated
	}
	if s.ConsecutiveFail >= DeprecationStreak {
		return StatusDeprecated
	}

	switch current {
	case StatusCandidate:
		if level >= LevelBasic && passCount(s) > 0 {
			return StatusActive
		}
		return StatusCandidate
	case StatusActive:
		if !expiresAt.After(now) || trust < lifecycleTrustFloor {
			return StatusStale
		}
		return StatusActive
	case StatusStale:
		if s.LastResult == ResultPass && trust >= lifecycleTrustFloor && expiresAt.After(now) {
			return StatusActive
		}
		return StatusStale
	}
	return current
}

func passCount(s ValidationStats) int {
	return s.StrongPass + s.MediumPass + s.WeakPass
}
