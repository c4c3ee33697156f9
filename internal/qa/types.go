package qa

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Domain errors surfaced by the engine. The API layer maps these to HTTP
// status codes with errors.Is.
var (
	ErrInvalidSignal   = errors.New("invalid validation signal")
	ErrNotFound        = errors.New("qa entry not found")
	ErrTerminalState   = errors.New("entry is deprecated; reinstate before validating")
	ErrLockConflict    = errors.New("entry lock contention; retry")
	ErrVersionConflict = errors.New("entry version conflict")
	ErrDuplicateEvent  = errors.New("validation event already applied")
)

// Status is the lifecycle state of a QA entry.
type Status string

const (
	StatusCandidate  Status = "candidate"
	StatusActive     Status = "active"
	StatusStale      Status = "stale"
	StatusDeprecated Status = "deprecated"
)

// Level is the validation maturity tier, 0 (unproven candidate) to 3 (canonical).
type Level int

const (
	LevelCandidate Level = 0
	LevelBasic     Level = 1
	LevelStrong    Level = 2
	LevelCanonical Level = 3
)

// Result is the outcome of executing a retained answer.
type Result string

const (
	ResultPass Result = "pass"
	ResultFail Result = "fail"
)

// ParseResult validates a wire result tag. Unknown values are rejected at the
// boundary so new tags fail fast instead of silently scoring as zero.
func ParseResult(s string) (Result, error) {
	switch Result(s) {
	case ResultPass, ResultFail:
		return Result(s), nil
	}
	return "", fmt.Errorf("%w: result %q", ErrInvalidSignal, s)
}

// Signal is the reliability weight of a validation source.
type Signal string

const (
	SignalStrong Signal = "strong"
	SignalMedium Signal = "medium"
	SignalWeak   Signal = "weak"
)

// ParseSignal validates a wire signal_strength tag.
func ParseSignal(s string) (Signal, error) {
	switch Signal(s) {
	case SignalStrong, SignalMedium, SignalWeak:
		return Signal(s), nil
	}
	return "", fmt.Errorf("%w: signal_strength %q", ErrInvalidSignal, s)
}

// ValidationStats are the raw pass/fail counters a trust score derives from.
type ValidationStats struct {
	StrongPass      int        `json:"strong_pass"`
	StrongFail      int        `json:"strong_fail"`
	MediumPass      int        `json:"medium_pass"`
	MediumFail      int        `json:"medium_fail"`
	WeakPass        int        `json:"weak_pass"`
	WeakFail        int        `json:"weak_fail"`
	ConsecutiveFail int        `json:"consecutive_fail"`
	LastResult      Result     `json:"last_result,omitempty"`
	LastValidatedAt *time.Time `json:"last_validated_at,omitempty"`

	// Recent holds the most recent results, newest last, bounded by the
	// anomaly window. Used only by the alternation guard rail.
	Recent []Result `json:"recent,omitempty"`
}

// Total is the sum of all pass and fail counters.
func (s ValidationStats) Total() int {
	return s.StrongPass + s.StrongFail + s.MediumPass + s.MediumFail + s.WeakPass + s.WeakFail
}

// Record applies one result/signal pair to the counters. windowSize bounds
// the Recent history (the anomaly window).
func (s *ValidationStats) Record(result Result, signal Signal, at time.Time, windowSize int) {
	switch {
	case result == ResultPass && signal == SignalStrong:
		s.StrongPass++
	case result == ResultPass && signal == SignalMedium:
		s.MediumPass++
	case result == ResultPass && signal == SignalWeak:
		s.WeakPass++
	case result == ResultFail && signal == SignalStrong:
		s.StrongFail++
	case result == ResultFail && signal == SignalMedium:
		s.MediumFail++
	case result == ResultFail && signal == SignalWeak:
		s.WeakFail++
	}

	if result == ResultPass {
		s.ConsecutiveFail = 0
	} else {
		s.ConsecutiveFail++
	}
	s.LastResult = result
	ts := at
	s.LastValidatedAt = &ts

	s.Recent = append(s.Recent, result)
	if windowSize > 0 && len(s.Recent) > windowSize {
		s.Recent = s.Recent[len(s.Recent)-windowSize:]
	}
}

// Entry is one retained question/answer pair with its full trust state.
// An entry exclusively owns its stats; they are never shared.
type Entry struct {
	ID        uuid.UUID `json:"qa_id"`
	Namespace string    `json:"namespace"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Summary   string    `json:"summary,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Source    string    `json:"source,omitempty"`
	Author    string    `json:"author,omitempty"`

	Status     Status          `json:"status"`
	Level      Level           `json:"validation_level"`
	Stats      ValidationStats `json:"stats"`
	TrustScore float64         `json:"trust_score"`

	// AuditFlagged suspends automatic level changes until cleared. Set when
	// recent results alternate strictly between pass and fail.
	AuditFlagged bool `json:"audit_flagged,omitempty"`

	UsageCount int        `json:"usage_count"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`

	ExpiresAt time.Time `json:"expires_at"`

	// DecayedThrough marks the instant up to which idle decay has been
	// applied; sweeps advance it so the same idle window is charged once.
	DecayedThrough time.Time `json:"decayed_through"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Version increments on every mutation; the store rejects stale writes.
	Version int64 `json:"version"`
}

// EventContext is opaque execution metadata carried on a validation event.
// It is stored verbatim for audit and never affects scoring.
type EventContext struct {
	Command      string `json:"command,omitempty"`
	ExitCode     *int   `json:"exit_code,omitempty"`
	RuntimeMS    int64  `json:"runtime_ms,omitempty"`
	StdoutDigest string `json:"stdout_digest,omitempty"`
	StderrDigest string `json:"stderr_digest,omitempty"`
}

// EventClient identifies the submitting client, audit-only.
type EventClient struct {
	ClientID  string `json:"client_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// Event is the immutable audit record of one validation signal. It is
// appended before the entry mutation and never modified afterwards.
type Event struct {
	ID        uuid.UUID    `json:"event_id"`
	QAID      uuid.UUID    `json:"qa_id"`
	Namespace string       `json:"namespace"`
	Result    Result       `json:"result"`
	Signal    Signal       `json:"signal_strength"`
	Source    string       `json:"source,omitempty"`
	Context   EventContext `json:"context,omitempty"`
	Client    EventClient  `json:"client,omitempty"`
	TS        time.Time    `json:"ts"`
}
