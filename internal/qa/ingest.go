package qa

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Submission is the raw wire payload of a validation event, before any
// enum or reference checks. Only QAID, Result and SignalStrength affect
// scoring; everything else is opaque audit metadata.
type Submission struct {
	EventID        string       `json:"event_id,omitempty"`
	QAID           string       `json:"qa_id"`
	Namespace      string       `json:"namespace,omitempty"`
	Result         string       `json:"result"`
	SignalStrength string       `json:"signal_strength"`
	Source         string       `json:"source,omitempty"`
	Context        EventContext `json:"context,omitempty"`
	Client         EventClient  `json:"client,omitempty"`
	TS             *time.Time   `json:"ts,omitempty"`
}

// NormalizeEvent validates a submission and produces the immutable audit
// Event. Malformed enums are rejected with ErrInvalidSignal and no state
// change; whether the qa_id actually resolves is checked later, under the
// entry lock. A missing event id gets a fresh one; callers wanting
// idempotent resubmission supply their own.
func NormalizeEvent(sub Submission, now time.Time) (Event, error) {
	qaID, err := uuid.Parse(sub.QAID)
	if err != nil {
		return Event{}, fmt.Errorf("%w: bad qa_id %q", ErrNotFound, sub.QAID)
	}

	result, err := ParseResult(sub.Result)
	if err != nil {
		return Event{}, err
	}
	signal, err := ParseSignal(sub.SignalStrength)
	if err != nil {
		return Event{}, err
	}

	eventID := uuid.New()
	if sub.EventID != "" {
		parsed, err := uuid.Parse(sub.EventID)
		if err != nil {
			return Event{}, fmt.Errorf("%w: bad event_id %q", ErrInvalidSignal, sub.EventID)
		}
		eventID = parsed
	}

	ts := now
	if sub.TS != nil && !sub.TS.IsZero() {
		ts = *sub.TS
	}

	return Event{
		ID:        eventID,
		QAID:      qaID,
		Namespace: sub.Namespace,
		Result:    result,
		Signal:    signal,
		Source:    sub.Source,
		Context:   sub.Context,
		Client:    sub.Client,
		TS:        ts.UTC(),
	}, nil
}
