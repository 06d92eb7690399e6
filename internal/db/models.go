package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Case represents a child welfare case.
type Case struct {
	ID         uuid.UUID
	CaseNumber string
	ClientName string
	CreatedAt  time.Time
}

// Note is a single observation written by a caseworker. Notes are
// immutable once ingested; CreatedAt is when the observation was
// recorded and drives the query-time date window.
type Note struct {
	ID             uuid.UUID
	CaseID         uuid.UUID
	NoteText       string
	CaseworkerName *string
	NoteType       *string
	CreatedAt      time.Time
}

// Chunk is one searchable segment of a note. CaseID, CreatedAt,
// CaseworkerName and NoteType are copied from the parent note so the
// hot search path needs no join.
type Chunk struct {
	ID             uuid.UUID
	NoteID         uuid.UUID
	CaseID         uuid.UUID
	ChunkIndex     int
	ChunkText      string
	Embedding      *pgvector.Vector // nil until the embed pass has run
	CreatedAt      time.Time
	CaseworkerName *string
	NoteType       *string
}

// SimilarChunk is a chunk returned from vector search together with its
// cosine similarity to the query vector, in [0, 1].
type SimilarChunk struct {
	Chunk
	Similarity float64
}
