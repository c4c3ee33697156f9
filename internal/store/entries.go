package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/praxis-agents/qamem/internal/qa"
)

const entryColumns = `
	id, namespace, question, answer, summary, tags, source, author,
	status, level, trust_score, audit_flagged,
	strong_pass, strong_fail, medium_pass, medium_fail, weak_pass, weak_fail,
	consecutive_fail, last_result, last_validated_at, recent_results,
	usage_count, last_used_at, expires_at, decayed_through, created_at, updated_at, version`

// InsertEntry writes a freshly created candidate.
func (s *Store) InsertEntry(ctx context.Context, e *qa.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO qa_entries (
			id, namespace, question, answer, summary, tags, source, author,
			status, level, trust_score, audit_flagged,
			strong_pass, strong_fail, medium_pass, medium_fail, weak_pass, weak_fail,
			consecutive_fail, last_result, last_validated_at, recent_results,
			usage_count, last_used_at, expires_at, decayed_through, created_at, updated_at, version
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22,
			$23, $24, $25, $26, $27, $28, $29
		)`,
		e.ID, e.Namespace, e.Question, e.Answer, e.Summary, e.Tags, e.Source, e.Author,
		string(e.Status), int(e.Level), e.TrustScore, e.AuditFlagged,
		e.Stats.StrongPass, e.Stats.StrongFail, e.Stats.MediumPass, e.Stats.MediumFail,
		e.Stats.WeakPass, e.Stats.WeakFail,
		e.Stats.ConsecutiveFail, string(e.Stats.LastResult), e.Stats.LastValidatedAt, recentStrings(e.Stats.Recent),
		e.UsageCount, e.LastUsedAt, e.ExpiresAt, e.DecayedThrough, e.CreatedAt, e.UpdatedAt, e.Version,
	)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

// GetEntry fetches one entry by id.
func (s *Store) GetEntry(ctx context.Context, id uuid.UUID) (*qa.Entry, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM qa_entries WHERE id = $1`, id)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, qa.ErrNotFound
		}
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}

// GetEntries fetches entries by id; missing ids are silently absent from
// the result. Used by the search path after the relevance scorer returns
// its candidate ids.
func (s *Store) GetEntries(ctx context.Context, ids []uuid.UUID) ([]qa.Entry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT `+entryColumns+` FROM qa_entries WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get entries: %w", err)
	}
	defer rows.Close()

	var out []qa.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// UpdateEntry persists e if and only if the stored version still matches
// expectedVersion. Used for mutations that are not driven by a validation
// event (hits, reinstatement, audit clearing, decay).
func (s *Store) UpdateEntry(ctx context.Context, e *qa.Entry, expectedVersion int64) error {
	tag, err := s.pool.Exec(ctx, updateEntrySQL,
		updateEntryArgs(e, expectedVersion)...,
	)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return qa.ErrVersionConflict
	}
	e.Version = expectedVersion + 1
	return nil
}

// ApplyValidation is the event-driven variant of UpdateEntry: the version
// CAS and the applied-event marker commit in one transaction, so a
// resubmitted event id can never double-count.
func (s *Store) ApplyValidation(ctx context.Context, e *qa.Entry, expectedVersion int64, eventID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO qa_applied_events (event_id, qa_id, applied_at)
		VALUES ($1, $2, now())
		ON CONFLICT (event_id) DO NOTHING`,
		eventID, e.ID,
	)
	if err != nil {
		return fmt.Errorf("mark event applied: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return qa.ErrDuplicateEvent
	}

	tag, err = tx.Exec(ctx, updateEntrySQL, updateEntryArgs(e, expectedVersion)...)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return qa.ErrVersionConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	e.Version = expectedVersion + 1
	return nil
}

// ListForSweep returns non-deprecated entries ordered by expiry for the
// periodic decay pass.
func (s *Store) ListForSweep(ctx context.Context, limit int) ([]qa.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM qa_entries
		WHERE status != 'deprecated'
		ORDER BY expires_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list for sweep: %w", err)
	}
	defer rows.Close()

	var out []qa.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

const updateEntrySQL = `
	UPDATE qa_entries SET
		status = $2, level = $3, trust_score = $4, audit_flagged = $5,
		strong_pass = $6, strong_fail = $7, medium_pass = $8, medium_fail = $9,
		weak_pass = $10, weak_fail = $11, consecutive_fail = $12,
		last_result = $13, last_validated_at = $14, recent_results = $15,
		usage_count = $16, last_used_at = $17, expires_at = $18,
		decayed_through = $19, updated_at = $20, version = version + 1
	WHERE id = $1 AND version = $21`

func updateEntryArgs(e *qa.Entry, expectedVersion int64) []any {
	return []any{
		e.ID,
		string(e.Status), int(e.Level), e.TrustScore, e.AuditFlagged,
		e.Stats.StrongPass, e.Stats.StrongFail, e.Stats.MediumPass, e.Stats.MediumFail,
		e.Stats.WeakPass, e.Stats.WeakFail, e.Stats.ConsecutiveFail,
		string(e.Stats.LastResult), e.Stats.LastValidatedAt, recentStrings(e.Stats.Recent),
		e.UsageCount, e.LastUsedAt, e.ExpiresAt,
		e.DecayedThrough, e.UpdatedAt, expectedVersion,
	}
}

func scanEntry(row pgx.Row) (*qa.Entry, error) {
	var (
		e          qa.Entry
		status     string
		level      int
		lastResult string
		recent     []string
	)
	err := row.Scan(
		&e.ID, &e.Namespace, &e.Question, &e.Answer, &e.Summary, &e.Tags, &e.Source, &e.Author,
		&status, &level, &e.TrustScore, &e.AuditFlagged,
		&e.Stats.StrongPass, &e.Stats.StrongFail, &e.Stats.MediumPass, &e.Stats.MediumFail,
		&e.Stats.WeakPass, &e.Stats.WeakFail,
		&e.Stats.ConsecutiveFail, &lastResult, &e.Stats.LastValidatedAt, &recent,
		&e.UsageCount, &e.LastUsedAt, &e.ExpiresAt, &e.DecayedThrough, &e.CreatedAt, &e.UpdatedAt, &e.Version,
	)
	if err != nil {
		return nil, err
	}
	e.Status = qa.Status(status)
	e.Level = qa.Level(level)
	e.Stats.LastResult = qa.Result(lastResult)
	for _, r := range recent {
		e.Stats.Recent = append(e.Stats.Recent, qa.Result(r))
	}
	return &e, nil
}

func recentStrings(recent []qa.Result) []string {
	out := make([]string, len(recent))
	for i, r := range recent {
		out[i] = string(r)
	}
	return out
}
