package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/praxis-agents/qamem/internal/rank"
)

type searchRequest struct {
	Query     string `json:"query"`
	Namespace string `json:"namespace,omitempty"`
	TopK      int    `json:"top_k,omitempty"`
}

type searchResponse struct {
	Results []rank.Result `json:"results"`
	Count   int           `json:"count"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Query == "" {
		writeErr(w, http.StatusBadRequest, "query is required")
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}

	// Over-fetch so the admission rules still have enough to choose from
	// after deprecated entries drop out.
	hits, err := s.deps.Scorer.Similar(r.Context(), req.Namespace, req.Query, topK*3)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "similarity search failed: "+err.Error())
		return
	}
	if len(hits) == 0 {
		writeJSON(w, http.StatusOK, searchResponse{Results: []rank.Result{}})
		return
	}

	ids := make([]uuid.UUID, 0, len(hits))
	relByID := make(map[uuid.UUID]float64, len(hits))
	for _, h := range hits {
		ids = append(ids, h.QAID)
		relByID[h.QAID] = h.Relevance
	}
	entries, err := s.deps.Entries.GetEntries(r.Context(), ids)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "load entries failed: "+err.Error())
		return
	}

	matches := make([]rank.Match, 0, len(entries))
	for _, e := range entries {
		matches = append(matches, rank.Match{Entry: e, Relevance: relByID[e.ID]})
	}
	results := s.ranker.Rank(matches, topK, time.Now().UTC())
	if results == nil {
		results = []rank.Result{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: results, Count: len(results)})
}
