package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/praxis-agents/qamem/internal/engine"
	"github.com/praxis-agents/qamem/internal/qa"
)

// candidateRequest mirrors engine.CandidateParams on the wire.
type candidateRequest struct {
	Namespace string   `json:"namespace"`
	Question  string   `json:"question"`
	Answer    string   `json:"answer"`
	Summary   string   `json:"summary,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Source    string   `json:"source,omitempty"`
	Author    string   `json:"author,omitempty"`
}

func (s *Server) createCandidate(w http.ResponseWriter, r *http.Request) {
	var req candidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	entry, err := s.deps.Engine.CreateCandidate(r.Context(), engine.CandidateParams{
		Namespace: req.Namespace,
		Question:  req.Question,
		Answer:    req.Answer,
		Summary:   req.Summary,
		Tags:      req.Tags,
		Source:    req.Source,
		Author:    req.Author,
	})
	if err != nil {
		writeEngineErr(w, err)
		return
	}
	if s.deps.Index != nil {
		text := entry.Question
		if entry.Summary != "" {
			text += "\n" + entry.Summary
		}
		if err := s.deps.Index.Upsert(r.Context(), entry.Namespace, entry.ID, text); err != nil {
			// The entry is still retrievable by id; only search misses it.
			slog.Warn("embedding upsert failed", "qa_id", entry.ID, "error", err)
		}
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "qaID"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid qa_id")
		return
	}
	entry, err := s.deps.Engine.Get(r.Context(), id)
	if err != nil {
		writeEngineErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// listEvents serves the audit trail for one entry, oldest first.
func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "qaID"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid qa_id")
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	events, err := s.deps.Entries.ListEvents(r.Context(), id, limit)
	if err != nil {
		writeEngineErr(w, err)
		return
	}
	if events == nil {
		events = []qa.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

type hitRequest struct {
	QAID  string `json:"qa_id"`
	Shown bool   `json:"shown"`
	Used  bool   `json:"used"`
}

func (s *Server) recordHit(w http.ResponseWriter, r *http.Request) {
	var req hitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	id, err := uuid.Parse(req.QAID)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid qa_id")
		return
	}
	if err := s.deps.Engine.RecordHit(r.Context(), id, req.Shown, req.Used); err != nil {
		writeEngineErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type validateResponse struct {
	OK              bool      `json:"ok"`
	TrustScore      float64   `json:"trust_score"`
	ValidationLevel int       `json:"validation_level"`
	Status          qa.Status `json:"status"`
	ExpiresAt       time.Time `json:"expires_at"`
}

func (s *Server) validate(w http.ResponseWriter, r *http.Request) {
	var sub qa.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	entry, err := s.deps.Engine.Validate(r.Context(), sub)
	if err != nil {
		writeEngineErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{
		OK:              true,
		TrustScore:      entry.TrustScore,
		ValidationLevel: int(entry.Level),
		Status:          entry.Status,
		ExpiresAt:       entry.ExpiresAt,
	})
}

func (s *Server) reinstate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "qaID"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid qa_id")
		return
	}
	entry, err := s.deps.Engine.Reinstate(r.Context(), id)
	if err != nil {
		writeEngineErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) clearAuditFlag(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "qaID"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid qa_id")
		return
	}
	entry, err := s.deps.Engine.ClearAuditFlag(r.Context(), id)
	if err != nil {
		writeEngineErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type expireRequest struct {
	Batch int `json:"batch,omitempty"`
}

func (s *Server) expire(w http.ResponseWriter, r *http.Request) {
	var req expireRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
	}
	batch := req.Batch
	if batch <= 0 {
		batch = s.deps.SweepBatch
	}
	swept, err := s.deps.Engine.Sweep(r.Context(), batch)
	if err != nil {
		writeEngineErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"swept": swept})
}

// writeEngineErr maps the engine's sentinel errors onto HTTP status codes.
// Lock and version conflicts are transient; callers should retry.
func writeEngineErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, qa.ErrInvalidSignal):
		writeErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, qa.ErrNotFound):
		writeErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, qa.ErrTerminalState):
		writeErr(w, http.StatusConflict, err.Error())
	case errors.Is(err, qa.ErrLockConflict), errors.Is(err, qa.ErrVersionConflict):
		w.Header().Set("Retry-After", "1")
		writeErr(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeErr(w, http.StatusInternalServerError, err.Error())
	}
}
