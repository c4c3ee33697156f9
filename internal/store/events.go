package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/praxis-agents/qamem/internal/qa"
)

// AppendEvent writes one immutable audit record. Every delivery attempt is
// kept, including retries of the same event id; the applied-event marker in
// ApplyValidation is what prevents double-counting, not this log.
func (s *Store) AppendEvent(ctx context.Context, evt qa.Event) error {
	contextJSON, err := json.Marshal(evt.Context)
	if err != nil {
		return fmt.Errorf("marshal event context: %w", err)
	}
	clientJSON, err := json.Marshal(evt.Client)
	if err != nil {
		return fmt.Errorf("marshal event client: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO qa_validation_events
			(id, event_id, qa_id, namespace, result, signal_strength, source, context, client, ts, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())`,
		uuid.New(), evt.ID, evt.QAID, evt.Namespace,
		string(evt.Result), string(evt.Signal), evt.Source,
		contextJSON, clientJSON, evt.TS,
	)
	if err != nil {
		return fmt.Errorf("append validation event: %w", err)
	}
	return nil
}

// ListEvents returns the audit trail for one entry, oldest first, for
// replay and manual review.
func (s *Store) ListEvents(ctx context.Context, qaID uuid.UUID, limit int) ([]qa.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, qa_id, namespace, result, signal_strength, source, context, client, ts
		FROM qa_validation_events
		WHERE qa_id = $1
		ORDER BY ts ASC
		LIMIT $2`, qaID, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []qa.Event
	for rows.Next() {
		var (
			evt            qa.Event
			result, signal string
			contextJSON    []byte
			clientJSON     []byte
			ts             time.Time
		)
		if err := rows.Scan(&evt.ID, &evt.QAID, &evt.Namespace, &result, &signal, &evt.Source, &contextJSON, &clientJSON, &ts); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		evt.Result = qa.Result(result)
		evt.Signal = qa.Signal(signal)
		evt.TS = ts
		if err := json.Unmarshal(contextJSON, &evt.Context); err != nil {
			return nil, fmt.Errorf("unmarshal event context: %w", err)
		}
		if err := json.Unmarshal(clientJSON, &evt.Client); err != nil {
			return nil, fmt.Errorf("unmarshal event client: %w", err)
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}
