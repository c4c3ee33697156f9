// Package relevance supplies the similarity input to search ranking. The
// engine never computes similarity itself; it consumes this collaborator.
package relevance

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Match is one similar entry with its normalized [0,1] relevance.
type Match struct {
	QAID      uuid.UUID
	Relevance float64
}

// Scorer resolves a query to similar entry ids.
type Scorer interface {
	Similar(ctx context.Context, namespace, query string, topK int) ([]Match, error)
}

// Embedder turns text into a vector. Satisfied by embed.Client.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// PGScorer runs cosine-distance search against the qa_embeddings table
// (pgvector). Distances are mapped to relevance as 1-distance, clamped to
// [0,1].
type PGScorer struct {
	pool     *pgxpool.Pool
	embedder Embedder
}

func NewPGScorer(pool *pgxpool.Pool, embedder Embedder) *PGScorer {
	return &PGScorer{pool: pool, embedder: embedder}
}

func (s *PGScorer) Similar(ctx context.Context, namespace, query string, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = 10
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT qa_id, embedding <=> $1::vector AS distance
		FROM qa_embeddings
		WHERE namespace = $2
		ORDER BY distance ASC
		LIMIT $3`,
		pgVector(vec), namespace, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var (
			id       uuid.UUID
			distance float64
		)
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		rel := 1 - distance
		if rel < 0 {
			rel = 0
		}
		if rel > 1 {
			rel = 1
		}
		out = append(out, Match{QAID: id, Relevance: rel})
	}
	return out, rows.Err()
}

// Upsert replaces the stored embedding for an entry.
func (s *PGScorer) Upsert(ctx context.Context, namespace string, qaID uuid.UUID, text string) error {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed entry: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO qa_embeddings (qa_id, namespace, embedding, updated_at)
		VALUES ($1, $2, $3::vector, now())
		ON CONFLICT (qa_id)
		DO UPDATE SET namespace = $2, embedding = $3::vector, updated_at = now()`,
		qaID, namespace, pgVector(vec),
	)
	if err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return nil
}

// pgVector formats a float64 slice as a pgvector-compatible string literal,
// e.g. "[0.1,0.2,0.3]", suitable for a parameterized query targeting a
// vector column.
func pgVector(v []float64) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = fmt.Sprintf("%g", f)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
