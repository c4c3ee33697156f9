package qa

import (
	"testing"
	"time"
)

func day(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

func TestTTLPolicy_Adjust(t *testing.T) {
	p := DefaultTTLPolicy()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		result    Result
		signal    Signal
		want      time.Time
	}{
		{
			"strong pass extends 30d from current expiry",
			now.Add(day(10)), ResultPass, SignalStrong,
			now.Add(day(40)),
		},
		{
			"strong pass on lapsed expiry extends from event ts",
			now.Add(-day(3)), ResultPass, SignalStrong,
			now.Add(day(30)),
		},
		{
			"strong pass capped at 180d horizon",
			now.Add(day(170)), ResultPass, SignalStrong,
			now.Add(day(180)),
		},
		{
			"strong fail takes 30d but floors at 7d",
			now.Add(day(20)), ResultFail, SignalStrong,
			now.Add(day(7)),
		},
		{
			"strong fail with long runway loses exactly 30d",
			now.Add(day(90)), ResultFail, SignalStrong,
			now.Add(day(60)),
		},
		{
			"medium pass guarantees 14d",
			now.Add(day(2)), ResultPass, SignalMedium,
			now.Add(day(14)),
		},
		{
			"medium pass never shortens a long horizon",
			now.Add(day(60)), ResultPass, SignalMedium,
			now.Add(day(60)),
		},
		{
			"weak pass guarantees 7d",
			now.Add(day(1)), ResultPass, SignalWeak,
			now.Add(day(7)),
		},
		{
			"medium fail leaves expiry alone",
			now.Add(day(20)), ResultFail, SignalMedium,
			now.Add(day(20)),
		},
		{
			"weak fail leaves expiry alone",
			now.Add(day(20)), ResultFail, SignalWeak,
			now.Add(day(20)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Adjust(tt.expiresAt, tt.result, tt.signal, now)
			if !got.Equal(tt.want) {
				t.Errorf("Adjust(%v, %s/%s) = %v, want %v", tt.expiresAt, tt.result, tt.signal, got, tt.want)
			}
		})
	}
}

func TestTTLPolicy_AdjustLatePassNeverShortens(t *testing.T) {
	p := DefaultTTLPolicy()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// A later event already pushed the horizon near its cap; a favorable
	// signal with a month-old timestamp must not pull it back.
	exp := now.Add(day(170))
	late := now.Add(-day(30))

	for _, signal := range []Signal{SignalStrong, SignalMedium, SignalWeak} {
		got := p.Adjust(exp, ResultPass, signal, late)
		if got.Before(exp) {
			t.Errorf("late %s pass shortened expiry: %v -> %v", signal, exp, got)
		}
	}
}

func TestTTLPolicy_Decay(t *testing.T) {
	p := DefaultTTLPolicy()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("consumed window means no decay", func(t *testing.T) {
		exp := now.Add(day(20))
		if got := p.Decay(exp, now, now); !got.Equal(exp) {
			t.Errorf("Decay = %v, want unchanged %v", got, exp)
		}
	})

	t.Run("ten idle days remove five days of TTL", func(t *testing.T) {
		exp := now.Add(day(20))
		got := p.Decay(exp, now.Add(-day(10)), now)
		want := now.Add(day(15))
		if !got.Equal(want) {
			t.Errorf("Decay = %v, want %v", got, want)
		}
	})

	t.Run("decay floors at now", func(t *testing.T) {
		exp := now.Add(day(2))
		got := p.Decay(exp, now.Add(-day(100)), now)
		if !got.Equal(now) {
			t.Errorf("Decay = %v, want floor at %v", got, now)
		}
	})

	t.Run("expired entry is left alone", func(t *testing.T) {
		exp := now.Add(-day(1))
		if got := p.Decay(exp, now.Add(-day(10)), now); !got.Equal(exp) {
			t.Errorf("Decay = %v, want unchanged %v", got, exp)
		}
	})

	t.Run("split windows decay the same as one", func(t *testing.T) {
		start := now
		exp := start.Add(day(40))

		// Four daily applications, each advancing the anchor.
		daily := exp
		for i := 1; i <= 4; i++ {
			daily = p.Decay(daily, start.Add(day(i-1)), start.Add(day(i)))
		}
		once := p.Decay(exp, start, start.Add(day(4)))

		if !daily.Equal(once) {
			t.Errorf("decay depends on cadence: daily %v, once %v", daily, once)
		}
	})
}

func TestFreshness(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	created := now.Add(-day(10))

	t.Run("midway through horizon scores one half", func(t *testing.T) {
		e := Entry{CreatedAt: created, ExpiresAt: created.Add(day(20))}
		got := Freshness(e, now)
		if diff := got - 0.5; diff > 0.001 || diff < -0.001 {
			t.Errorf("Freshness = %f, want 0.5", got)
		}
	})

	t.Run("expired entry scores zero", func(t *testing.T) {
		e := Entry{CreatedAt: created, ExpiresAt: now.Add(-day(1))}
		if got := Freshness(e, now); got != 0 {
			t.Errorf("Freshness = %f, want 0", got)
		}
	})

	t.Run("recent validation resets the anchor", func(t *testing.T) {
		last := now.Add(-time.Hour)
		e := Entry{CreatedAt: created, ExpiresAt: now.Add(day(30))}
		e.Stats.LastValidatedAt = &last
		if got := Freshness(e, now); got < 0.99 {
			t.Errorf("Freshness = %f, want near 1 right after validation", got)
		}
	})
}
