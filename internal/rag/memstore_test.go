package rag

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/casenote-ai/cli/internal/db"
)

// memStore is an in-memory Store doing a brute-force linear scan with
// exact cosine similarity. It is the correctness baseline the pgvector
// query is expected to match.
type memStore struct {
	cases  map[uuid.UUID]*db.Case
	chunks []*db.Chunk
}

func newMemStore() *memStore {
	return &memStore{cases: make(map[uuid.UUID]*db.Case)}
}

func (m *memStore) addCase(id uuid.UUID) {
	m.cases[id] = &db.Case{ID: id, CaseNumber: "CW-TEST", ClientName: "Test Client"}
}

func (m *memStore) GetCase(_ context.Context, id uuid.UUID) (*db.Case, error) {
	c, ok := m.cases[id]
	if !ok {
		return nil, db.ErrCaseNotFound
	}
	return c, nil
}

func (m *memStore) SearchSimilarChunks(
	_ context.Context,
	embedding pgvector.Vector,
	caseID uuid.UUID,
	start, end time.Time,
	limit int,
) ([]*db.SimilarChunk, error) {
	var candidates []*db.SimilarChunk
	for _, c := range m.chunks {
		if c.CaseID != caseID {
			continue
		}
		if c.CreatedAt.Before(start) || c.CreatedAt.After(end) {
			continue
		}
		if c.Embedding == nil {
			continue
		}
		candidates = append(candidates, &db.SimilarChunk{
			Chunk:      *c,
			Similarity: cosine(embedding.Slice(), c.Embedding.Slice()),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// fakeEmbedder returns a fixed query vector and counts calls, so tests
// can assert that scope validation happens before any embedding work.
type fakeEmbedder struct {
	vector []float32
	calls  int
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, _ string) (pgvector.Vector, error) {
	f.calls++
	return pgvector.NewVector(f.vector), nil
}

func strPtr(s string) *string { return &s }

func vecPtr(v []float32) *pgvector.Vector {
	vec := pgvector.NewVector(v)
	return &vec
}

func testChunk(caseID uuid.UUID, createdAt time.Time, vec []float32, text string) *db.Chunk {
	c := &db.Chunk{
		ID:             uuid.New(),
		NoteID:         uuid.New(),
		CaseID:         caseID,
		ChunkIndex:     0,
		ChunkText:      text,
		CreatedAt:      createdAt,
		CaseworkerName: strPtr("Robert Hayes"),
		NoteType:       strPtr("in-person"),
	}
	if vec != nil {
		c.Embedding = vecPtr(vec)
	}
	return c
}
