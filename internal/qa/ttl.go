package qa

import "time"

// TTLPolicy holds the expiry arithmetic knobs. All adjustments use the
// triggering event's own timestamp, never wall-clock at apply time, so
// out-of-order delivery cannot corrupt the TTL math.
type TTLPolicy struct {
	BaseTTL          time.Duration // initial horizon for new candidates
	MaxTTL           time.Duration // hard cap on the horizon from the event ts
	StrongPassExtend time.Duration // added per strong pass
	StrongFailReduce time.Duration // removed per strong fail
	FailFloor        time.Duration // minimum horizon left after a fail (correction window)
	MediumPassFloor  time.Duration // minimum horizon after a medium pass
	WeakPassFloor    time.Duration // minimum horizon after a weak pass
	DecayPerIdleDay  time.Duration // TTL removed per day since last validation
}

// DefaultTTLPolicy mirrors the production defaults: 14d base, 180d cap,
// ±30d strong adjustments, 7d fail floor.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		BaseTTL:          14 * 24 * time.Hour,
		MaxTTL:           180 * 24 * time.Hour,
		StrongPassExtend: 30 * 24 * time.Hour,
		StrongFailReduce: 30 * 24 * time.Hour,
		FailFloor:        7 * 24 * time.Hour,
		MediumPassFloor:  14 * 24 * time.Hour,
		WeakPassFloor:    7 * 24 * time.Hour,
		DecayPerIdleDay:  12 * time.Hour,
	}
}

// InitialExpiry is the horizon assigned to a freshly created candidate.
func (p TTLPolicy) InitialExpiry(at time.Time) time.Time {
	return at.Add(p.BaseTTL)
}

// Adjust computes the new expiry after one validation signal at time at.
//
// Strong pass extends from max(expiresAt, at) and is capped so the horizon
// from at never exceeds MaxTTL. Strong fail shortens the horizon but never
// below at+FailFloor, preserving a correction window. Medium and weak passes
// only guarantee a minimum horizon from their own timestamp; medium and weak
// fails leave the expiry alone. A pass with a stale timestamp can cap below
// the current expiry, so every pass branch floors at the incoming expiry:
// favorable signals delivered late never shorten the horizon.
func (p TTLPolicy) Adjust(expiresAt time.Time, result Result, signal Signal, at time.Time) time.Time {
	switch {
	case result == ResultPass && signal == SignalStrong:
		base := expiresAt
		if at.After(base) {
			base = at
		}
		return floorAt(capAt(base.Add(p.StrongPassExtend), at, p.MaxTTL), expiresAt)
	case result == ResultFail && signal == SignalStrong:
		reduced := expiresAt.Add(-p.StrongFailReduce)
		floor := at.Add(p.FailFloor)
		if reduced.Before(floor) {
			return floor
		}
		return reduced
	case result == ResultPass && signal == SignalMedium:
		return floorAt(capAt(floorAt(expiresAt, at.Add(p.MediumPassFloor)), at, p.MaxTTL), expiresAt)
	case result == ResultPass && signal == SignalWeak:
		return floorAt(capAt(floorAt(expiresAt, at.Add(p.WeakPassFloor)), at, p.MaxTTL), expiresAt)
	}
	return expiresAt
}

// Decay applies the idle decay accrued over (decayedThrough, now]: the
// remaining TTL shrinks linearly with idle days, floored at now. Callers
// advance the entry's decay anchor to now after persisting the result, so
// the same idle window is never charged twice and total decay depends only
// on elapsed idle time, not on how often the sweep runs. Already-expired
// entries are left alone; the caller transitions them to stale and nothing
// is deleted here.
func (p TTLPolicy) Decay(expiresAt, decayedThrough, now time.Time) time.Time {
	if p.DecayPerIdleDay <= 0 || !expiresAt.After(now) {
		return expiresAt
	}
	idle := now.Sub(decayedThrough)
	if idle <= 0 {
		return expiresAt
	}
	idleDays := idle.Hours() / 24
	reduced := expiresAt.Add(-time.Duration(idleDays * float64(p.DecayPerIdleDay)))
	if reduced.Before(now) {
		return now
	}
	return reduced
}

// Freshness maps an entry's age onto [0,1], decreasing linearly from the
// last favorable anchor toward the TTL horizon. An expired entry scores 0.
func Freshness(e Entry, now time.Time) float64 {
	anchor := e.CreatedAt
	if e.Stats.LastValidatedAt != nil && e.Stats.LastValidatedAt.After(anchor) {
		anchor = *e.Stats.LastValidatedAt
	}
	if e.LastUsedAt != nil && e.LastUsedAt.After(anchor) {
		anchor = *e.LastUsedAt
	}

	horizon := e.ExpiresAt.Sub(anchor)
	if horizon <= 0 {
		return 0
	}
	age := now.Sub(anchor)
	if age <= 0 {
		return 1
	}
	return clamp(1 - age.Hours()/horizon.Hours())
}

func capAt(t, from time.Time, max time.Duration) time.Time {
	if lim := from.Add(max); t.After(lim) {
		return lim
	}
	return t
}

func floorAt(t, floor time.Time) time.Time {
	if t.Before(floor) {
		return floor
	}
	return t
}
