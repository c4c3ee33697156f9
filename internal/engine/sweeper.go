package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/praxis-agents/qamem/internal/qa"
)

// Sweep runs one idle-decay pass over at most batch entries: remaining TTL
// shrinks with time since the last validation, and entries whose expiry has
// passed soften to stale. Nothing is deleted; retention is someone else's
// policy. The sweep takes the same per-entry locks as foreground validation,
// so it cannot race a live event; contended entries are skipped and picked
// up on the next pass. Returns the number of entries mutated.
func (eng *Engine) Sweep(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = 200
	}
	entries, err := eng.store.ListForSweep(ctx, batch)
	if err != nil {
		return 0, err
	}

	now := eng.clock()
	changed := 0
	for i := range entries {
		select {
		case <-ctx.Done():
			return changed, ctx.Err()
		default:
		}
		n, err := eng.sweepOne(ctx, entries[i].ID, now)
		if err != nil {
			if errors.Is(err, qa.ErrLockConflict) || errors.Is(err, qa.ErrNotFound) {
				continue
			}
			return changed, err
		}
		changed += n
	}
	if changed > 0 {
		eng.logger.Info("decay sweep complete", "scanned", len(entries), "changed", changed)
	}
	return changed, nil
}

func (eng *Engine) sweepOne(ctx context.Context, id uuid.UUID, now time.Time) (int, error) {
	release, err := eng.locks.acquire(ctx, id, eng.opts.LockWait)
	if err != nil {
		return 0, err
	}
	defer release()

	entry, err := eng.store.GetEntry(ctx, id)
	if err != nil {
		return 0, err
	}
	if entry.Status == qa.StatusDeprecated {
		return 0, nil
	}

	// Idle decay is charged only for the window since the last anchor, so
	// total decay is a function of idle time alone, not sweep cadence.
	anchor := entry.DecayedThrough
	if anchor.IsZero() {
		anchor = entry.CreatedAt
	}
	if lv := entry.Stats.LastValidatedAt; lv != nil && lv.After(anchor) {
		anchor = *lv
	}
	decayed := eng.opts.TTL.Decay(entry.ExpiresAt, anchor, now)
	status := qa.NextStatus(entry.Status, entry.Level, entry.TrustScore, entry.Stats, decayed, now)

	if decayed.Equal(entry.ExpiresAt) && status == entry.Status {
		return 0, nil
	}

	entry.ExpiresAt = decayed
	entry.DecayedThrough = now
	entry.Status = status
	entry.UpdatedAt = now
	if err := eng.store.UpdateEntry(ctx, entry, entry.Version); err != nil {
		return 0, err
	}
	return 1, nil
}

// StartSweeper runs Sweep on a fixed interval until ctx is cancelled. One
// pass runs immediately on start.
func (eng *Engine) StartSweeper(ctx context.Context, interval time.Duration, batch int) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		if _, err := eng.Sweep(ctx, batch); err != nil && !errors.Is(err, context.Canceled) {
			eng.logger.Error("decay sweep failed", "error", err)
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := eng.Sweep(ctx, batch); err != nil && !errors.Is(err, context.Canceled) {
					eng.logger.Error("decay sweep failed", "error", err)
				}
			}
		}
	}()
}
