package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/praxis-agents/qamem/internal/engine"
	"github.com/praxis-agents/qamem/internal/qa"
	"github.com/praxis-agents/qamem/internal/rank"
	"github.com/praxis-agents/qamem/internal/relevance"
	"github.com/praxis-agents/qamem/internal/store"
)

// Engine is the trust-engine surface the HTTP layer drives.
type Engine interface {
	CreateCandidate(ctx context.Context, p engine.CandidateParams) (*qa.Entry, error)
	Validate(ctx context.Context, sub qa.Submission) (*qa.Entry, error)
	Get(ctx context.Context, id uuid.UUID) (*qa.Entry, error)
	RecordHit(ctx context.Context, id uuid.UUID, shown, used bool) error
	Reinstate(ctx context.Context, id uuid.UUID) (*qa.Entry, error)
	ClearAuditFlag(ctx context.Context, id uuid.UUID) (*qa.Entry, error)
	Sweep(ctx context.Context, batch int) (int, error)
}

// EntryReader resolves relevance matches back into full entries and serves
// the per-entry audit trail.
type EntryReader interface {
	GetEntries(ctx context.Context, ids []uuid.UUID) ([]qa.Entry, error)
	ListEvents(ctx context.Context, qaID uuid.UUID, limit int) ([]qa.Event, error)
}

// Indexer writes the searchable vector for an entry. Satisfied by
// relevance.PGScorer.
type Indexer interface {
	Upsert(ctx context.Context, namespace string, qaID uuid.UUID, text string) error
}

// TaskStore is the request-result cache surface.
type TaskStore interface {
	SaveTask(ctx context.Context, t *store.CachedTask) error
	QueryCache(ctx context.Context, requestHash, mode, backend string) (*store.CachedTask, error)
}

// Deps carries the collaborators the server routes to.
type Deps struct {
	Engine     Engine
	Scorer     relevance.Scorer
	Index      Indexer
	Entries    EntryReader
	Tasks      TaskStore
	MinResults int
	SweepBatch int
}

type Server struct {
	router *chi.Mux
	port   int
	deps   Deps
	ranker rank.Ranker
}

func NewServer(port int, apiToken string, deps Deps) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		port:   port,
		deps:   deps,
		ranker: rank.Ranker{MinResults: deps.MinResults},
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/qamem/status", s.status)

	router.Route("/api/v1/qa", func(r chi.Router) {
		r.Get("/{qaID}", s.getEntry)
		r.Get("/{qaID}/events", s.listEvents)
		r.Post("/search", s.search)

		r.Group(func(r chi.Router) {
			r.Use(BearerAuthMiddleware(apiToken))
			r.Post("/candidates", s.createCandidate)
			r.Post("/hit", s.recordHit)
			r.Post("/validate", s.validate)
			r.Post("/expire", s.expire)
			r.Post("/{qaID}/reinstate", s.reinstate)
			r.Post("/{qaID}/audit/clear", s.clearAuditFlag)
		})
	})

	router.Get("/api/cache/query", s.queryCache)
	router.With(BearerAuthMiddleware(apiToken)).Post("/api/tasks/save", s.saveTask)

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	slog.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "qamem",
		"status":  "ok",
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
