// Package rank fuses external relevance, trust and freshness into the
// single ordering score used at retrieval time.
package rank

import (
	"sort"
	"time"

	"github.com/praxis-agents/qamem/internal/qa"
)

// Fusion weights. Relevance dominates, but a well-trusted fresh entry can
// outrank a more similar one with a poor track record.
const (
	relevanceWeight = 0.55
	trustWeight     = 0.30
	freshnessWeight = 0.15
)

// staleTrustFactor discounts the trust contribution of entries that were
// admitted while soft-expired.
const staleTrustFactor = 0.7

// DefaultMinResults is the qualifying-set size under which level-0
// candidates are admitted as a fallback.
const DefaultMinResults = 3

// Match pairs an entry with the relevance supplied by the external
// similarity collaborator, normalized to [0,1].
type Match struct {
	Entry     qa.Entry
	Relevance float64
}

// Result is one ranked search hit.
type Result struct {
	QAID       string    `json:"qa_id"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	FinalScore float64   `json:"final_score"`
	Level      qa.Level  `json:"level"`
	TrustScore float64   `json:"trust_score"`
	Status     qa.Status `json:"status"`
	// Unvalidated marks fallback candidates that have not earned level 1.
	Unvalidated bool `json:"unvalidated,omitempty"`
}

// Score is the pure fusion function.
func Score(relevance, trust, freshness float64) float64 {
	return relevanceWeight*relevance + trustWeight*trust + freshnessWeight*freshness
}

// Ranker applies the fusion plus the lifecycle admission rules.
type Ranker struct {
	MinResults int
}

// Rank orders matches by fused score and applies the admission policy:
// active entries qualify by default; stale and deprecated entries are
// excluded; if fewer than MinResults qualify and none of them has reached
// level 1, level-0 candidates are admitted and flagged as unvalidated.
func (r Ranker) Rank(matches []Match, topK int, now time.Time) []Result {
	minResults := r.MinResults
	if minResults <= 0 {
		minResults = DefaultMinResults
	}
	if topK <= 0 {
		topK = 10
	}

	var qualifying []Result
	var fallback []Result
	hasValidated := false

	for _, m := range matches {
		e := m.Entry
		res := Result{
			QAID:       e.ID.String(),
			Question:   e.Question,
			Answer:     e.Answer,
			Level:      e.Level,
			TrustScore: e.TrustScore,
			Status:     e.Status,
			FinalScore: Score(m.Relevance, e.TrustScore, qa.Freshness(e, now)),
		}

		switch e.Status {
		case qa.StatusActive:
			if e.Level >= qa.LevelBasic {
				hasValidated = true
			}
			qualifying = append(qualifying, res)
		case qa.StatusCandidate:
			res.Unvalidated = true
			fallback = append(fallback, res)
		case qa.StatusStale:
			// Soft-expired entries only surface via the fallback path, and
			// their trust contribution is discounted.
			res.FinalScore = Score(m.Relevance, staleTrustFactor*e.TrustScore, qa.Freshness(e, now))
			fallback = append(fallback, res)
		case qa.StatusDeprecated:
			// Never served.
		}
	}

	if len(qualifying) < minResults && !hasValidated {
		qualifying = append(qualifying, fallback...)
	}

	sort.SliceStable(qualifying, func(i, j int) bool {
		return qualifying[i].FinalScore > qualifying[j].FinalScore
	})
	if len(qualifying) > topK {
		qualifying = qualifying[:topK]
	}
	return qualifying
}
