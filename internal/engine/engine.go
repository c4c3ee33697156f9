package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/praxis-agents/qamem/internal/qa"
)

// Store is the persistence collaborator: atomic per-key read-modify-write
// over entries plus an append-only event audit log.
type Store interface {
	InsertEntry(ctx context.Context, e *qa.Entry) error
	GetEntry(ctx context.Context, id uuid.UUID) (*qa.Entry, error)
	// UpdateEntry persists e only if the stored version still equals
	// expectedVersion, bumping e.Version on success. Returns
	// qa.ErrVersionConflict otherwise.
	UpdateEntry(ctx context.Context, e *qa.Entry, expectedVersion int64) error
	// ApplyValidation is UpdateEntry plus atomically marking eventID as
	// applied. An event id that was already applied returns
	// qa.ErrDuplicateEvent without writing, which makes resubmission after
	// a retryable failure idempotent.
	ApplyValidation(ctx context.Context, e *qa.Entry, expectedVersion int64, eventID uuid.UUID) error
	// AppendEvent writes an immutable audit record. Duplicate event ids are
	// allowed here; the audit log keeps every delivery attempt.
	AppendEvent(ctx context.Context, evt qa.Event) error
	// ListForSweep returns non-deprecated entries ordered by expiry, for the
	// periodic decay pass.
	ListForSweep(ctx context.Context, limit int) ([]qa.Entry, error)
}

// Publisher pushes engine signals onto the event bus. May be nil.
type Publisher interface {
	Publish(subject string, data any) error
}

// Bus subjects emitted by the engine.
const (
	SubjectValidationRecorded = "qamem.validation.recorded"
	SubjectEntryDeprecated    = "qamem.entry.deprecated"
)

// Options bundles the policy knobs. Zero-value fields fall back to defaults.
type Options struct {
	TTL      qa.TTLPolicy
	Guard    qa.GuardPolicy
	Demotion qa.DemotionPolicy
	LockWait time.Duration
}

// Engine applies validation events to entries atomically. Each entry is its
// own unit of mutual exclusion: the full stats -> score -> level -> TTL ->
// status sequence runs under that entry's lock, and a version CAS at the
// store guards against anything the lock cannot see.
type Engine struct {
	store  Store
	bus    Publisher
	logger *slog.Logger
	opts   Options
	locks  *lockTable
	clock  func() time.Time

	mu            sync.Mutex
	inFlightFails map[uuid.UUID]int
}

func New(store Store, bus Publisher, logger *slog.Logger, opts Options) *Engine {
	if opts.TTL == (qa.TTLPolicy{}) {
		opts.TTL = qa.DefaultTTLPolicy()
	}
	if opts.Guard.AnomalyWindow == 0 {
		opts.Guard = qa.DefaultGuardPolicy()
	}
	if opts.Demotion == "" {
		opts.Demotion = qa.DemoteL3Only
	}
	if opts.LockWait <= 0 {
		opts.LockWait = 200 * time.Millisecond
	}
	return &Engine{
		store:         store,
		bus:           bus,
		logger:        logger,
		opts:          opts,
		locks:         newLockTable(),
		clock:         func() time.Time { return time.Now().UTC() },
		inFlightFails: make(map[uuid.UUID]int),
	}
}

// CandidateParams describes a new retained answer.
type CandidateParams struct {
	Namespace string
	Question  string
	Answer    string
	Summary   string
	Tags      []string
	Source    string
	Author    string
}

// CreateCandidate stores a fresh entry at level 0 with zeroed stats and the
// base TTL.
func (eng *Engine) CreateCandidate(ctx context.Context, p CandidateParams) (*qa.Entry, error) {
	if p.Question == "" || p.Answer == "" {
		return nil, fmt.Errorf("%w: question and answer are required", qa.ErrInvalidSignal)
	}
	now := eng.clock()
	entry := &qa.Entry{
		ID:             uuid.New(),
		Namespace:      p.Namespace,
		Question:       p.Question,
		Answer:         p.Answer,
		Summary:        p.Summary,
		Tags:           p.Tags,
		Source:         p.Source,
		Author:         p.Author,
		Status:         qa.StatusCandidate,
		Level:          qa.LevelCandidate,
		TrustScore:     qa.TrustScore(qa.ValidationStats{}),
		ExpiresAt:      eng.opts.TTL.InitialExpiry(now),
		DecayedThrough: now,
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}
	if err := eng.store.InsertEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("insert candidate: %w", err)
	}
	eng.logger.Info("candidate created", "qa_id", entry.ID, "namespace", entry.Namespace)
	return entry, nil
}

// Get returns the current entry state. Reads are lock-free and may trail an
// in-flight update; they never block writers.
func (eng *Engine) Get(ctx context.Context, id uuid.UUID) (*qa.Entry, error) {
	return eng.store.GetEntry(ctx, id)
}

// Validate ingests one execution-feedback event and runs the atomic update
// pipeline. The audit record is appended before the entry lock is acquired;
// all TTL arithmetic uses the event's own timestamp so delivery order cannot
// corrupt the math. A resubmitted event id is a no-op returning current
// state.
func (eng *Engine) Validate(ctx context.Context, sub qa.Submission) (*qa.Entry, error) {
	evt, err := qa.NormalizeEvent(sub, eng.clock())
	if err != nil {
		return nil, err
	}

	// Reject unknown and terminal targets before any side effect.
	cur, err := eng.store.GetEntry(ctx, evt.QAID)
	if err != nil {
		return nil, err
	}
	if cur.Status == qa.StatusDeprecated {
		return nil, qa.ErrTerminalState
	}
	if evt.Namespace == "" {
		evt.Namespace = cur.Namespace
	}

	if err := eng.store.AppendEvent(ctx, evt); err != nil {
		return nil, fmt.Errorf("append audit event: %w", err)
	}

	inFlight := 0
	if evt.Result == qa.ResultFail {
		eng.mu.Lock()
		eng.inFlightFails[evt.QAID]++
		inFlight = eng.inFlightFails[evt.QAID]
		eng.mu.Unlock()
		defer func() {
			eng.mu.Lock()
			eng.inFlightFails[evt.QAID]--
			if eng.inFlightFails[evt.QAID] == 0 {
				delete(eng.inFlightFails, evt.QAID)
			}
			eng.mu.Unlock()
		}()
	}

	entry, deprecated, err := eng.applyLocked(ctx, evt, inFlight)
	if errors.Is(err, qa.ErrDuplicateEvent) {
		eng.logger.Info("duplicate validation event ignored", "qa_id", evt.QAID, "event_id", evt.ID)
		return eng.store.GetEntry(ctx, evt.QAID)
	}
	if err != nil {
		return nil, err
	}

	// Bus publishes happen outside the critical section.
	eng.publish(SubjectValidationRecorded, validationRecorded(entry, evt))
	if deprecated {
		eng.publish(SubjectEntryDeprecated, map[string]any{
			"qa_id":     entry.ID,
			"namespace": entry.Namespace,
			"ts":        evt.TS.Format(time.RFC3339),
		})
	}
	return entry, nil
}

// applyLocked runs the guarded update pipeline under the entry lock.
func (eng *Engine) applyLocked(ctx context.Context, evt qa.Event, inFlightFails int) (*qa.Entry, bool, error) {
	release, err := eng.locks.acquire(ctx, evt.QAID, eng.opts.LockWait)
	if err != nil {
		return nil, false, err
	}
	defer release()

	entry, err := eng.store.GetEntry(ctx, evt.QAID)
	if err != nil {
		return nil, false, err
	}
	if entry.Status == qa.StatusDeprecated {
		return nil, false, qa.ErrTerminalState
	}

	if eng.opts.Guard.SuppressFail(entry.Stats, evt.Result, evt.Signal, inFlightFails) {
		eng.logger.Info("weak fail suppressed by guard rail", "qa_id", entry.ID)
		return entry, false, nil
	}

	prevStatus := entry.Status
	prevLevel := entry.Level

	entry.Stats.Record(evt.Result, evt.Signal, evt.TS, eng.opts.Guard.AnomalyWindow)
	entry.TrustScore = qa.TrustScore(entry.Stats)

	if !entry.AuditFlagged && eng.opts.Guard.Alternating(entry.Stats.Recent) {
		entry.AuditFlagged = true
		eng.logger.Warn("alternation anomaly, entry flagged for audit", "qa_id", entry.ID)
	}

	target := qa.ClassifyLevel(entry.TrustScore, entry.Stats, eng.opts.Demotion)
	entry.Level = eng.opts.Guard.ClampLevel(prevLevel, target, entry.Stats, entry.AuditFlagged)

	entry.ExpiresAt = eng.opts.TTL.Adjust(entry.ExpiresAt, evt.Result, evt.Signal, evt.TS)
	entry.Status = qa.NextStatus(prevStatus, entry.Level, entry.TrustScore, entry.Stats, entry.ExpiresAt, evt.TS)
	entry.UpdatedAt = eng.clock()

	if err := eng.store.ApplyValidation(ctx, entry, entry.Version, evt.ID); err != nil {
		if errors.Is(err, qa.ErrDuplicateEvent) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("update entry: %w", err)
	}

	eng.logger.Info("validation applied",
		"qa_id", entry.ID,
		"result", evt.Result,
		"signal", evt.Signal,
		"trust_score", entry.TrustScore,
		"level", entry.Level,
		"status", entry.Status,
	)
	return entry, prevStatus != qa.StatusDeprecated && entry.Status == qa.StatusDeprecated, nil
}

// RecordHit books retrieval exposure: shown bumps usage_count, used stamps
// last_used_at. No scoring effect.
func (eng *Engine) RecordHit(ctx context.Context, id uuid.UUID, shown, used bool) error {
	release, err := eng.locks.acquire(ctx, id, eng.opts.LockWait)
	if err != nil {
		return err
	}
	defer release()

	entry, err := eng.store.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	now := eng.clock()
	if shown {
		entry.UsageCount++
	}
	if used {
		entry.LastUsedAt = &now
	}
	entry.UpdatedAt = now
	return eng.store.UpdateEntry(ctx, entry, entry.Version)
}

// Reinstate is the explicit external exit from the deprecated state. The
// fail streak is reset so the entry is not immediately redeprecated, the
// level is recomputed from surviving stats, and the entry reenters the
// lifecycle as a candidate with a fresh base TTL.
func (eng *Engine) Reinstate(ctx context.Context, id uuid.UUID) (*qa.Entry, error) {
	release, err := eng.locks.acquire(ctx, id, eng.opts.LockWait)
	if err != nil {
		return nil, err
	}
	defer release()

	entry, err := eng.store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.Status != qa.StatusDeprecated {
		return nil, fmt.Errorf("%w: entry %s is %s, not deprecated", qa.ErrInvalidSignal, id, entry.Status)
	}

	now := eng.clock()
	entry.Stats.ConsecutiveFail = 0
	entry.Stats.Recent = nil
	entry.TrustScore = qa.TrustScore(entry.Stats)
	entry.Level = qa.ClassifyLevel(entry.TrustScore, entry.Stats, eng.opts.Demotion)
	entry.Status = qa.StatusCandidate
	entry.ExpiresAt = eng.opts.TTL.InitialExpiry(now)
	entry.DecayedThrough = now
	entry.UpdatedAt = now

	if err := eng.store.UpdateEntry(ctx, entry, entry.Version); err != nil {
		return nil, err
	}
	eng.logger.Info("entry reinstated", "qa_id", id, "level", entry.Level)
	return entry, nil
}

// ClearAuditFlag lifts the anomaly suspension after manual review.
func (eng *Engine) ClearAuditFlag(ctx context.Context, id uuid.UUID) (*qa.Entry, error) {
	release, err := eng.locks.acquire(ctx, id, eng.opts.LockWait)
	if err != nil {
		return nil, err
	}
	defer release()

	entry, err := eng.store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if !entry.AuditFlagged {
		return entry, nil
	}
	entry.AuditFlagged = false
	entry.UpdatedAt = eng.clock()
	if err := eng.store.UpdateEntry(ctx, entry, entry.Version); err != nil {
		return nil, err
	}
	eng.logger.Info("audit flag cleared", "qa_id", id)
	return entry, nil
}

func (eng *Engine) publish(subject string, payload any) {
	if eng.bus == nil {
		return
	}
	if err := eng.bus.Publish(subject, payload); err != nil {
		eng.logger.Warn("bus publish failed", "subject", subject, "error", err)
	}
}

func validationRecorded(e *qa.Entry, evt qa.Event) map[string]any {
	return map[string]any{
		"qa_id":            e.ID,
		"namespace":        e.Namespace,
		"event_id":         evt.ID,
		"result":           evt.Result,
		"signal_strength":  evt.Signal,
		"trust_score":      e.TrustScore,
		"validation_level": int(e.Level),
		"status":           e.Status,
		"expires_at":       e.ExpiresAt.Format(time.RFC3339),
		"ts":               evt.TS.Format(time.RFC3339),
	}
}
