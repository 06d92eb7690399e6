package rag

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casenote-ai/cli/internal/db"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSearch_InvalidDateRange(t *testing.T) {
	store := newMemStore()
	caseID := uuid.New()
	store.addCase(caseID)
	emb := &fakeEmbedder{vector: []float32{1, 0, 0, 0}}
	r := NewRetriever(store, emb, 6)

	_, err := r.Search(context.Background(), "question", caseID,
		date(2023, 6, 1), date(2023, 1, 1))
	assert.ErrorIs(t, err, ErrInvalidDateRange)
	assert.Zero(t, emb.calls, "no embedding work before scope validation")
}

func TestSearch_UnknownCase(t *testing.T) {
	store := newMemStore()
	emb := &fakeEmbedder{vector: []float32{1, 0, 0, 0}}
	r := NewRetriever(store, emb, 6)

	_, err := r.Search(context.Background(), "question", uuid.New(),
		date(2023, 1, 1), date(2023, 12, 31))
	assert.ErrorIs(t, err, db.ErrCaseNotFound)
	assert.Zero(t, emb.calls)
}

func TestSearch_ScopeIsHardFilter(t *testing.T) {
	store := newMemStore()
	caseID := uuid.New()
	otherCase := uuid.New()
	store.addCase(caseID)
	store.addCase(otherCase)

	// Perfect-match chunks that must never surface: wrong case, and
	// right case but outside the window.
	query := []float32{1, 0, 0, 0}
	store.chunks = append(store.chunks,
		testChunk(otherCase, date(2023, 3, 1), query, "wrong case"),
		testChunk(caseID, date(2022, 3, 1), query, "before window"),
		testChunk(caseID, date(2024, 3, 1), query, "after window"),
		testChunk(caseID, date(2023, 3, 1), []float32{0, 1, 0, 0}, "in scope"),
	)

	r := NewRetriever(store, &fakeEmbedder{vector: query}, 6)
	results, err := r.Search(context.Background(), "q", caseID,
		date(2023, 1, 1), date(2023, 12, 31))
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "in scope", results[0].ChunkText)
}

func TestSearch_ExcludesUnembeddedChunks(t *testing.T) {
	store := newMemStore()
	caseID := uuid.New()
	store.addCase(caseID)
	store.chunks = append(store.chunks,
		testChunk(caseID, date(2023, 3, 1), nil, "not yet indexed"),
		testChunk(caseID, date(2023, 3, 2), []float32{1, 0, 0, 0}, "indexed"),
	)

	r := NewRetriever(store, &fakeEmbedder{vector: []float32{1, 0, 0, 0}}, 6)
	results, err := r.Search(context.Background(), "q", caseID,
		date(2023, 1, 1), date(2023, 12, 31))
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "indexed", results[0].ChunkText)
}

func TestSearch_RankingMatchesAnalyticOrder(t *testing.T) {
	store := newMemStore()
	caseID := uuid.New()
	store.addCase(caseID)

	// Cosine similarities against (1,0,0,0) are exactly 1.0, 0.8,
	// 0.6 and 0.0; inserted in shuffled order.
	store.chunks = append(store.chunks,
		testChunk(caseID, date(2023, 2, 1), []float32{0.6, 0.8, 0, 0}, "third"),
		testChunk(caseID, date(2023, 2, 2), []float32{0, 1, 0, 0}, "fourth"),
		testChunk(caseID, date(2023, 2, 3), []float32{1, 0, 0, 0}, "first"),
		testChunk(caseID, date(2023, 2, 4), []float32{0.8, 0.6, 0, 0}, "second"),
	)

	r := NewRetriever(store, &fakeEmbedder{vector: []float32{1, 0, 0, 0}}, 6)
	results, err := r.Search(context.Background(), "q", caseID,
		date(2023, 1, 1), date(2023, 12, 31))
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, "first", results[0].ChunkText)
	assert.Equal(t, "second", results[1].ChunkText)
	assert.Equal(t, "third", results[2].ChunkText)
	assert.Equal(t, "fourth", results[3].ChunkText)

	wantSims := []float64{1.0, 0.8, 0.6, 0.0}
	for i, want := range wantSims {
		assert.InDelta(t, want, results[i].Similarity, 1e-6)
	}
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Similarity, results[i].Similarity)
	}
}

func TestSearch_TiesPreferNewerNotes(t *testing.T) {
	store := newMemStore()
	caseID := uuid.New()
	store.addCase(caseID)

	vec := []float32{0.5, 0.5, 0, 0}
	store.chunks = append(store.chunks,
		testChunk(caseID, date(2023, 1, 10), vec, "older"),
		testChunk(caseID, date(2023, 4, 10), vec, "newer"),
	)

	r := NewRetriever(store, &fakeEmbedder{vector: []float32{1, 0, 0, 0}}, 6)
	results, err := r.Search(context.Background(), "q", caseID,
		date(2023, 1, 1), date(2023, 12, 31))
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "newer", results[0].ChunkText)
	assert.Equal(t, "older", results[1].ChunkText)
}

func TestSearch_FewerInScopeThanTopK(t *testing.T) {
	store := newMemStore()
	caseID := uuid.New()
	store.addCase(caseID)
	for i := 0; i < 3; i++ {
		store.chunks = append(store.chunks,
			testChunk(caseID, date(2023, 3, 1+i), []float32{1, 0, 0, 0}, "chunk"))
	}

	r := NewRetriever(store, &fakeEmbedder{vector: []float32{1, 0, 0, 0}}, 6)
	results, err := r.Search(context.Background(), "q", caseID,
		date(2023, 1, 1), date(2023, 12, 31))
	require.NoError(t, err)
	assert.Len(t, results, 3, "all in-scope chunks returned, none fabricated")
}

func TestSearch_ExactlyTopKWhenMoreExist(t *testing.T) {
	store := newMemStore()
	caseID := uuid.New()
	store.addCase(caseID)
	for i := 0; i < 10; i++ {
		store.chunks = append(store.chunks,
			testChunk(caseID, date(2023, 3, 1+i), []float32{1, float32(i) * 0.1, 0, 0}, "chunk"))
	}

	r := NewRetriever(store, &fakeEmbedder{vector: []float32{1, 0, 0, 0}}, 6)
	results, err := r.Search(context.Background(), "q", caseID,
		date(2023, 1, 1), date(2023, 12, 31))
	require.NoError(t, err)
	assert.Len(t, results, 6)
}

func TestSearch_WindowWithNoNotesIsEmptyNotError(t *testing.T) {
	store := newMemStore()
	caseID := uuid.New()
	store.addCase(caseID)
	for m := time.January; m <= time.April; m++ {
		store.chunks = append(store.chunks,
			testChunk(caseID, date(2023, m, 15), []float32{1, 0, 0, 0}, "spring note"))
	}

	r := NewRetriever(store, &fakeEmbedder{vector: []float32{1, 0, 0, 0}}, 6)
	results, err := r.Search(context.Background(), "q", caseID,
		date(2023, 6, 1), date(2023, 12, 31))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_EndDateIsInclusive(t *testing.T) {
	store := newMemStore()
	caseID := uuid.New()
	store.addCase(caseID)

	// Note written in the afternoon of the window's last day.
	created := time.Date(2023, 6, 30, 15, 4, 5, 0, time.UTC)
	store.chunks = append(store.chunks,
		testChunk(caseID, created, []float32{1, 0, 0, 0}, "last day"))

	r := NewRetriever(store, &fakeEmbedder{vector: []float32{1, 0, 0, 0}}, 6)
	results, err := r.Search(context.Background(), "q", caseID,
		date(2023, 1, 1), date(2023, 6, 30))
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "last day", results[0].ChunkText)
}
