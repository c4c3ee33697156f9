package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/praxis-agents/qamem/internal/engine"
	"github.com/praxis-agents/qamem/internal/qa"
	"github.com/praxis-agents/qamem/internal/relevance"
	"github.com/praxis-agents/qamem/internal/store"
)

type fakeEngine struct {
	entry *qa.Entry
	err   error
	swept int
}

func (f *fakeEngine) CreateCandidate(ctx context.Context, p engine.CandidateParams) (*qa.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entry, nil
}

func (f *fakeEngine) Validate(ctx context.Context, sub qa.Submission) (*qa.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entry, nil
}

func (f *fakeEngine) Get(ctx context.Context, id uuid.UUID) (*qa.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entry, nil
}

func (f *fakeEngine) RecordHit(ctx context.Context, id uuid.UUID, shown, used bool) error {
	return f.err
}

func (f *fakeEngine) Reinstate(ctx context.Context, id uuid.UUID) (*qa.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entry, nil
}

func (f *fakeEngine) ClearAuditFlag(ctx context.Context, id uuid.UUID) (*qa.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entry, nil
}

func (f *fakeEngine) Sweep(ctx context.Context, batch int) (int, error) {
	return f.swept, f.err
}

type fakeScorer struct {
	matches []relevance.Match
}

func (f *fakeScorer) Similar(ctx context.Context, namespace, query string, topK int) ([]relevance.Match, error) {
	return f.matches, nil
}

type fakeEntries struct {
	entries []qa.Entry
}

func (f *fakeEntries) GetEntries(ctx context.Context, ids []uuid.UUID) ([]qa.Entry, error) {
	return f.entries, nil
}

func (f *fakeEntries) ListEvents(ctx context.Context, qaID uuid.UUID, limit int) ([]qa.Event, error) {
	return nil, nil
}

type fakeTasks struct {
	task *store.CachedTask
}

func (f *fakeTasks) SaveTask(ctx context.Context, t *store.CachedTask) error {
	t.ID = uuid.New()
	f.task = t
	return nil
}

func (f *fakeTasks) QueryCache(ctx context.Context, hash, mode, backend string) (*store.CachedTask, error) {
	if f.task == nil || f.task.RequestHash != hash {
		return nil, qa.ErrNotFound
	}
	return f.task, nil
}

func testEntry() *qa.Entry {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &qa.Entry{
		ID:         uuid.New(),
		Namespace:  "default",
		Question:   "how do I restart the scheduler",
		Answer:     "systemctl restart scheduler",
		Status:     qa.StatusActive,
		Level:      qa.LevelStrong,
		TrustScore: 0.7,
		ExpiresAt:  now.Add(30 * 24 * time.Hour),
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    3,
	}
}

func newTestServer(eng *fakeEngine, token string) *Server {
	return NewServer(8760, token, Deps{
		Engine:     eng,
		Scorer:     &fakeScorer{},
		Entries:    &fakeEntries{},
		Tasks:      &fakeTasks{},
		SweepBatch: 50,
	})
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(&fakeEngine{entry: testEntry()}, "")

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(&fakeEngine{entry: testEntry()}, "")

	req := httptest.NewRequest("GET", "/api/v1/qamem/status", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["service"] != "qamem" {
		t.Errorf("expected service qamem, got %q", body["service"])
	}
}

func TestNotFoundEndpoint(t *testing.T) {
	srv := newTestServer(&fakeEngine{entry: testEntry()}, "")

	req := httptest.NewRequest("GET", "/nonexistent", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestBearerAuth(t *testing.T) {
	srv := newTestServer(&fakeEngine{entry: testEntry()}, "secret")

	body := `{"qa_id":"` + uuid.NewString() + `","result":"pass","signal_strength":"strong"}`

	req := httptest.NewRequest("POST", "/api/v1/qa/validate", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("without token: expected 401, got %d", w.Code)
	}

	req = httptest.NewRequest("POST", "/api/v1/qa/validate", bytes.NewBufferString(body))
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("with token: expected 200, got %d", w.Code)
	}
}

func TestValidateResponse(t *testing.T) {
	entry := testEntry()
	srv := newTestServer(&fakeEngine{entry: entry}, "")

	body := `{"qa_id":"` + entry.ID.String() + `","result":"pass","signal_strength":"strong"}`
	req := httptest.NewRequest("POST", "/api/v1/qa/validate", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp validateResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.OK {
		t.Error("expected ok=true")
	}
	if resp.TrustScore != entry.TrustScore {
		t.Errorf("expected trust %.2f, got %.2f", entry.TrustScore, resp.TrustScore)
	}
	if resp.ValidationLevel != int(entry.Level) {
		t.Errorf("expected level %d, got %d", entry.Level, resp.ValidationLevel)
	}
}

func TestValidateErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid signal", qa.ErrInvalidSignal, http.StatusBadRequest},
		{"not found", qa.ErrNotFound, http.StatusNotFound},
		{"terminal state", qa.ErrTerminalState, http.StatusConflict},
		{"lock conflict", qa.ErrLockConflict, http.StatusServiceUnavailable},
		{"version conflict", qa.ErrVersionConflict, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&fakeEngine{err: tt.err}, "")

			body := `{"qa_id":"` + uuid.NewString() + `","result":"pass","signal_strength":"strong"}`
			req := httptest.NewRequest("POST", "/api/v1/qa/validate", bytes.NewBufferString(body))
			w := httptest.NewRecorder()
			srv.router.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestSearchRanksByFusedScore(t *testing.T) {
	relevant := testEntry()
	relevant.TrustScore = 0.2
	trusted := testEntry()
	trusted.TrustScore = 0.9

	srv := NewServer(8760, "", Deps{
		Engine: &fakeEngine{},
		Scorer: &fakeScorer{matches: []relevance.Match{
			{QAID: relevant.ID, Relevance: 0.9},
			{QAID: trusted.ID, Relevance: 0.6},
		}},
		Entries: &fakeEntries{entries: []qa.Entry{*relevant, *trusted}},
		Tasks:   &fakeTasks{},
	})

	body := `{"query":"restart scheduler","top_k":5}`
	req := httptest.NewRequest("POST", "/api/v1/qa/search", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp searchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 2 {
		t.Fatalf("expected 2 results, got %d", resp.Count)
	}
	// 0.55*0.6+0.30*0.9 beats 0.55*0.9+0.30*0.2 at equal freshness.
	if resp.Results[0].QAID != trusted.ID.String() {
		t.Errorf("expected the better-trusted entry first, got %s", resp.Results[0].QAID)
	}
	if resp.Results[0].FinalScore <= resp.Results[1].FinalScore {
		t.Errorf("results not ordered by score: %.3f then %.3f",
			resp.Results[0].FinalScore, resp.Results[1].FinalScore)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	srv := newTestServer(&fakeEngine{}, "")

	req := httptest.NewRequest("POST", "/api/v1/qa/search", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestCreateCandidate(t *testing.T) {
	entry := testEntry()
	srv := newTestServer(&fakeEngine{entry: entry}, "")

	body := `{"namespace":"default","question":"q","answer":"a"}`
	req := httptest.NewRequest("POST", "/api/v1/qa/candidates", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var got qa.Entry
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.ID != entry.ID {
		t.Errorf("expected id %s, got %s", entry.ID, got.ID)
	}
}

func TestExpireEndpoint(t *testing.T) {
	srv := newTestServer(&fakeEngine{swept: 7}, "")

	req := httptest.NewRequest("POST", "/api/v1/qa/expire", bytes.NewBufferString(`{"batch":10}`))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]int
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["swept"] != 7 {
		t.Errorf("expected 7 swept, got %d", resp["swept"])
	}
}

func TestTaskCacheRoundTrip(t *testing.T) {
	srv := newTestServer(&fakeEngine{}, "")

	// Miss before anything is saved.
	req := httptest.NewRequest("GET", "/api/cache/query?request=build+docs&mode=exec&backend=local", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var miss map[string]any
	if err := json.NewDecoder(w.Body).Decode(&miss); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if miss["found"] != false {
		t.Error("expected found=false before save")
	}

	body := `{"request":"build docs","mode":"exec","backend":"local","output":"done","success":true}`
	req = httptest.NewRequest("POST", "/api/tasks/save", bytes.NewBufferString(body))
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest("GET", "/api/cache/query?request=build+docs&mode=exec&backend=local", nil)
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	var hit map[string]any
	if err := json.NewDecoder(w.Body).Decode(&hit); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if hit["found"] != true {
		t.Error("expected found=true after save")
	}
}
