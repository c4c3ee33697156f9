package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/praxis-agents/qamem/internal/qa"
)

// CachedTask is one entry in the request-result cache: a hash-keyed dedup
// store for execution results. It deliberately shares no tables or state
// with the QA trust engine.
type CachedTask struct {
	ID              uuid.UUID `json:"task_id"`
	RequestHash     string    `json:"request_hash"`
	Mode            string    `json:"mode"`
	Backend         string    `json:"backend"`
	Request         string    `json:"request,omitempty"`
	Output          string    `json:"output"`
	Error           string    `json:"error,omitempty"`
	Success         bool      `json:"success"`
	RunID           string    `json:"run_id,omitempty"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
	HitCount        int       `json:"hit_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HashRequest derives the cache key from request text, mode and backend.
func HashRequest(request, mode, backend string) string {
	sum := sha256.Sum256([]byte(request + ":" + mode + ":" + backend))
	return hex.EncodeToString(sum[:])
}

// SaveTask creates or refreshes the cached result for a request hash.
func (s *Store) SaveTask(ctx context.Context, t *CachedTask) error {
	if t.RequestHash == "" {
		t.RequestHash = HashRequest(t.Request, t.Mode, t.Backend)
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO task_cache
			(id, request_hash, mode, backend, request, output, error, success, run_id, duration_seconds, hit_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, now(), now())
		ON CONFLICT (request_hash, mode, backend)
		DO UPDATE SET
			output = $6,
			error = $7,
			success = $8,
			run_id = $9,
			duration_seconds = $10,
			updated_at = now()`,
		t.ID, t.RequestHash, t.Mode, t.Backend, t.Request, t.Output, t.Error,
		t.Success, t.RunID, t.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

// QueryCache looks up a cached result by hash and bumps its hit counter.
func (s *Store) QueryCache(ctx context.Context, requestHash, mode, backend string) (*CachedTask, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE task_cache
		SET hit_count = hit_count + 1
		WHERE request_hash = $1 AND mode = $2 AND backend = $3
		RETURNING id, request_hash, mode, backend, request, output, error, success, run_id, duration_seconds, hit_count, created_at, updated_at`,
		requestHash, mode, backend,
	)

	var t CachedTask
	err := row.Scan(&t.ID, &t.RequestHash, &t.Mode, &t.Backend, &t.Request, &t.Output,
		&t.Error, &t.Success, &t.RunID, &t.DurationSeconds, &t.HitCount, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, qa.ErrNotFound
		}
		return nil, fmt.Errorf("query cache: %w", err)
	}
	return &t, nil
}
