package qa

// DefaultAnomalyWindow is the number of most-recent results inspected by the
// alternation anomaly check.
const DefaultAnomalyWindow = 4

// GuardPolicy dampens noisy signals and caps promotion velocity. It wraps
// the classifier and the lifecycle machine; it never touches the raw
// counters itself.
type GuardPolicy struct {
	AnomalyWindow int
}

// DefaultGuardPolicy returns the production guard configuration.
func DefaultGuardPolicy() GuardPolicy {
	return GuardPolicy{AnomalyWindow: DefaultAnomalyWindow}
}

// SuppressFail reports whether an incoming fail should be dropped before it
// reaches the counters. A lone weak fail against an entry with at least two
// strong passes is treated as noise, provided no other fail for the same
// entry is in flight (inFlightFails counts the caller's own event).
func (g GuardPolicy) SuppressFail(s ValidationStats, result Result, signal Signal, inFlightFails int) bool {
	return result == ResultFail &&
		signal == SignalWeak &&
		s.StrongPass >= 2 &&
		inFlightFails <= 1
}

// ClampLevel bounds the classifier's target level for one event:
//
//   - no upward movement at all while the fail streak is at the deprecation
//     threshold or while the entry is flagged for manual audit
//   - otherwise at most one step up per event, so a single strong pass
//     cannot catapult a fresh candidate straight to canonical
//
// Downward movement is never dampened.
func (g GuardPolicy) ClampLevel(prev, target Level, s ValidationStats, auditFlagged bool) Level {
	if target <= prev {
		if auditFlagged {
			return prev
		}
		return target
	}
	if auditFlagged || s.ConsecutiveFail >= DeprecationStreak {
		return prev
	}
	if target > prev+1 {
		return prev + 1
	}
	return target
}

// Alternating reports whether the recent results strictly alternate
// pass/fail across the full anomaly window. Such a pattern suggests a flaky
// harness or gaming; the engine flags the entry for manual audit and
// suspends automatic level changes until cleared.
func (g GuardPolicy) Alternating(recent []Result) bool {
	window := g.AnomalyWindow
	if window <= 0 {
		window = DefaultAnomalyWindow
	}
	if len(recent) < window {
		return false
	}
	tail := recent[len(recent)-window:]
	for i := 1; i < len(tail); i++ {
		if tail[i] == tail[i-1] {
			return false
		}
	}
	return true
}
