package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/casenote-ai/cli/internal/db"
)

// ErrInvalidDateRange is returned when the window start falls after
// its end. Rejected before any embedding or vector work runs.
var ErrInvalidDateRange = errors.New("invalid date range: start is after end")

// Store is the chunk search surface the retriever needs. *db.DB
// implements it; tests use an in-memory linear-scan store as the
// correctness baseline.
type Store interface {
	GetCase(ctx context.Context, id uuid.UUID) (*db.Case, error)
	SearchSimilarChunks(ctx context.Context, embedding pgvector.Vector, caseID uuid.UUID, start, end time.Time, limit int) ([]*db.SimilarChunk, error)
}

// QueryEmbedder turns a question into a query vector.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) (pgvector.Vector, error)
}

// Retriever finds the chunks most relevant to a question within a
// case and date window. Stateless; safe for concurrent use.
type Retriever struct {
	store Store
	emb   QueryEmbedder
	topK  int
}

// NewRetriever creates a new retriever. topK defaults to 6.
func NewRetriever(store Store, emb QueryEmbedder, topK int) *Retriever {
	if topK <= 0 {
		topK = 6
	}
	return &Retriever{
		store: store,
		emb:   emb,
		topK:  topK,
	}
}

// Search embeds the question and returns up to topK in-scope chunks
// ranked by descending cosine similarity, ties going to newer notes.
// Scope is a hard filter: only chunks of the given case whose note
// date falls within [start, end] (whole days, inclusive) are
// candidates. Fewer than topK in-scope chunks is not an error, and
// neither is an empty result.
func (r *Retriever) Search(ctx context.Context, question string, caseID uuid.UUID, start, end time.Time) ([]Result, error) {
	from := dayStart(start)
	to := dayEnd(end)
	if from.After(to) {
		return nil, ErrInvalidDateRange
	}

	if _, err := r.store.GetCase(ctx, caseID); err != nil {
		return nil, err
	}

	queryVec, err := r.emb.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	chunks, err := r.store.SearchSimilarChunks(ctx, queryVec, caseID, from, to, r.topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	results := make([]Result, 0, len(chunks))
	for _, c := range chunks {
		results = append(results, Result{
			ChunkID:        c.ID,
			NoteID:         c.NoteID,
			ChunkIndex:     c.ChunkIndex,
			ChunkText:      c.ChunkText,
			CreatedAt:      c.CreatedAt,
			NoteType:       deref(c.NoteType),
			CaseworkerName: deref(c.CaseworkerName),
			Similarity:     c.Similarity,
		})
	}
	return results, nil
}

// dayStart truncates t to midnight of its day.
func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// dayEnd expands t to the last second of its day so notes created on
// the end date stay inside the window.
func dayEnd(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
