//go:build integration

package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/praxis-agents/qamem/internal/qa"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func testEntry() *qa.Entry {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &qa.Entry{
		ID:             uuid.New(),
		Namespace:      "integration-test",
		Question:       "how do I check disk usage?",
		Answer:         "df -h",
		Tags:           []string{"test", "integration"},
		Status:         qa.StatusCandidate,
		Level:          qa.LevelCandidate,
		TrustScore:     0.4,
		ExpiresAt:      now.Add(14 * 24 * time.Hour),
		DecayedThrough: now,
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}
}

func TestIntegration_EntryRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	entry := testEntry()
	if err := s.InsertEntry(ctx, entry); err != nil {
		t.Fatalf("InsertEntry failed: %v", err)
	}
	t.Cleanup(func() {
		s.pool.Exec(ctx, "DELETE FROM qa_entries WHERE id = $1", entry.ID)
	})

	got, err := s.GetEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if got.Question != entry.Question || got.Answer != entry.Answer {
		t.Errorf("payload mismatch: %+v", got)
	}
	if got.Status != qa.StatusCandidate || got.Level != qa.LevelCandidate {
		t.Errorf("expected fresh candidate, got %s/%d", got.Status, got.Level)
	}
	if got.Version != 1 {
		t.Errorf("version = %d, want 1", got.Version)
	}

	if _, err := s.GetEntry(ctx, uuid.New()); !errors.Is(err, qa.ErrNotFound) {
		t.Errorf("unknown id error = %v, want ErrNotFound", err)
	}
}

func TestIntegration_VersionCAS(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	entry := testEntry()
	if err := s.InsertEntry(ctx, entry); err != nil {
		t.Fatalf("InsertEntry failed: %v", err)
	}
	t.Cleanup(func() {
		s.pool.Exec(ctx, "DELETE FROM qa_entries WHERE id = $1", entry.ID)
	})

	entry.UsageCount = 1
	entry.UpdatedAt = time.Now().UTC()
	if err := s.UpdateEntry(ctx, entry, 1); err != nil {
		t.Fatalf("UpdateEntry failed: %v", err)
	}
	if entry.Version != 2 {
		t.Errorf("version = %d, want 2", entry.Version)
	}

	// A stale version must be rejected.
	err := s.UpdateEntry(ctx, entry, 1)
	if !errors.Is(err, qa.ErrVersionConflict) {
		t.Errorf("stale update error = %v, want ErrVersionConflict", err)
	}
}

func TestIntegration_ApplyValidationIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	entry := testEntry()
	if err := s.InsertEntry(ctx, entry); err != nil {
		t.Fatalf("InsertEntry failed: %v", err)
	}
	eventID := uuid.New()
	t.Cleanup(func() {
		s.pool.Exec(ctx, "DELETE FROM qa_applied_events WHERE event_id = $1", eventID)
		s.pool.Exec(ctx, "DELETE FROM qa_validation_events WHERE qa_id = $1", entry.ID)
		s.pool.Exec(ctx, "DELETE FROM qa_entries WHERE id = $1", entry.ID)
	})

	evt := qa.Event{
		ID: eventID, QAID: entry.ID, Namespace: entry.Namespace,
		Result: qa.ResultPass, Signal: qa.SignalStrong, Source: "ci",
		TS: time.Now().UTC(),
	}
	if err := s.AppendEvent(ctx, evt); err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}

	entry.Stats.StrongPass = 1
	entry.UpdatedAt = time.Now().UTC()
	if err := s.ApplyValidation(ctx, entry, 1, eventID); err != nil {
		t.Fatalf("ApplyValidation failed: %v", err)
	}

	// Same event id again: no write, duplicate surfaced.
	err := s.ApplyValidation(ctx, entry, entry.Version, eventID)
	if !errors.Is(err, qa.ErrDuplicateEvent) {
		t.Errorf("replay error = %v, want ErrDuplicateEvent", err)
	}

	events, err := s.ListEvents(ctx, entry.ID, 10)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("audit rows = %d, want 1", len(events))
	}
}

func TestIntegration_TaskCache(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	task := &CachedTask{
		Mode:    "shell",
		Backend: "local",
		Request: "integration-test-" + uuid.New().String()[:8],
		Output:  "ok",
		Success: true,
	}
	if err := s.SaveTask(ctx, task); err != nil {
		t.Fatalf("SaveTask failed: %v", err)
	}
	t.Cleanup(func() {
		s.pool.Exec(ctx, "DELETE FROM task_cache WHERE request_hash = $1", task.RequestHash)
	})

	got, err := s.QueryCache(ctx, task.RequestHash, task.Mode, task.Backend)
	if err != nil {
		t.Fatalf("QueryCache failed: %v", err)
	}
	if got.Output != "ok" || !got.Success {
		t.Errorf("cached task mismatch: %+v", got)
	}
	if got.HitCount != 1 {
		t.Errorf("hit_count = %d, want 1 after first query", got.HitCount)
	}

	if _, err := s.QueryCache(ctx, HashRequest("missing", "shell", "local"), "shell", "local"); !errors.Is(err, qa.ErrNotFound) {
		t.Errorf("miss error = %v, want ErrNotFound", err)
	}
}
