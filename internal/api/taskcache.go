package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/praxis-agents/qamem/internal/qa"
	"github.com/praxis-agents/qamem/internal/store"
)

type saveTaskRequest struct {
	Request         string  `json:"request"`
	Mode            string  `json:"mode"`
	Backend         string  `json:"backend"`
	Output          string  `json:"output"`
	Error           string  `json:"error,omitempty"`
	Success         bool    `json:"success"`
	RunID           string  `json:"run_id,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

func (s *Server) saveTask(w http.ResponseWriter, r *http.Request) {
	var req saveTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Request == "" || req.Mode == "" || req.Backend == "" {
		writeErr(w, http.StatusBadRequest, "request, mode and backend are required")
		return
	}
	task := &store.CachedTask{
		RequestHash:     store.HashRequest(req.Request, req.Mode, req.Backend),
		Mode:            req.Mode,
		Backend:         req.Backend,
		Request:         req.Request,
		Output:          req.Output,
		Error:           req.Error,
		Success:         req.Success,
		RunID:           req.RunID,
		DurationSeconds: req.DurationSeconds,
	}
	if err := s.deps.Tasks.SaveTask(r.Context(), task); err != nil {
		writeErr(w, http.StatusInternalServerError, "save task failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"task_id":      task.ID.String(),
		"request_hash": task.RequestHash,
	})
}

// queryCache looks up a cached result by request text or precomputed hash.
// Hits bump the hit counter.
func (s *Server) queryCache(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("mode")
	backend := q.Get("backend")
	hash := q.Get("request_hash")
	if hash == "" {
		if req := q.Get("request"); req != "" {
			hash = store.HashRequest(req, mode, backend)
		}
	}
	if hash == "" || mode == "" || backend == "" {
		writeErr(w, http.StatusBadRequest, "request (or request_hash), mode and backend are required")
		return
	}
	task, err := s.deps.Tasks.QueryCache(r.Context(), hash, mode, backend)
	if errors.Is(err, qa.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]bool{"found": false})
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "cache query failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"found": true,
		"task":  task,
	})
}
