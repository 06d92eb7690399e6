package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// ErrCaseNotFound is returned when a case id or number does not exist.
var ErrCaseNotFound = errors.New("case not found")

// CreateCase creates a new case record
func (db *DB) CreateCase(ctx context.Context, caseNumber, clientName string) (*Case, error) {
	var c Case
	err := db.pool.QueryRow(ctx,
		`INSERT INTO cases (case_number, client_name)
		 VALUES ($1, $2)
		 RETURNING id, case_number, client_name, created_at`,
		caseNumber, clientName,
	).Scan(&c.ID, &c.CaseNumber, &c.ClientName, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create case: %w", err)
	}
	return &c, nil
}

// GetCase retrieves a case by id
func (db *DB) GetCase(ctx context.Context, id uuid.UUID) (*Case, error) {
	var c Case
	err := db.pool.QueryRow(ctx,
		`SELECT id, case_number, client_name, created_at FROM cases WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.CaseNumber, &c.ClientName, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get case: %w", err)
	}
	return &c, nil
}

// GetCaseByNumber retrieves a case by its human-readable case number
func (db *DB) GetCaseByNumber(ctx context.Context, caseNumber string) (*Case, error) {
	var c Case
	err := db.pool.QueryRow(ctx,
		`SELECT id, case_number, client_name, created_at FROM cases WHERE case_number = $1`,
		caseNumber,
	).Scan(&c.ID, &c.CaseNumber, &c.ClientName, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get case by number: %w", err)
	}
	return &c, nil
}

// InsertNote inserts a case note
func (db *DB) InsertNote(ctx context.Context, note *Note) error {
	if note.ID == uuid.Nil {
		note.ID = uuid.New()
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO case_notes (id, case_id, note_text, caseworker_name, note_type, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		note.ID, note.CaseID, note.NoteText, note.CaseworkerName, note.NoteType, note.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

// ListNotesWithoutChunks returns notes that have not been chunked yet,
// oldest first. Re-running ingestion skips notes that already have
// chunk rows.
func (db *DB) ListNotesWithoutChunks(ctx context.Context) ([]*Note, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT cn.id, cn.case_id, cn.note_text, cn.caseworker_name, cn.note_type, cn.created_at
		 FROM case_notes cn
		 LEFT JOIN note_chunks nc ON nc.note_id = cn.id
		 WHERE nc.id IS NULL
		 ORDER BY cn.created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending notes: %w", err)
	}
	defer rows.Close()

	var notes []*Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.CaseID, &n.NoteText, &n.CaseworkerName, &n.NoteType, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, &n)
	}
	return notes, rows.Err()
}

// InsertChunksBatch inserts the chunks of one note in a single batch
func (db *DB) InsertChunksBatch(ctx context.Context, chunks []*Chunk) error {
	batch := &pgx.Batch{}
	for _, chunk := range chunks {
		batch.Queue(
			`INSERT INTO note_chunks
			     (id, note_id, case_id, chunk_index, chunk_text, embedding,
			      created_at, caseworker_name, note_type)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (note_id, chunk_index) DO NOTHING`,
			chunk.ID, chunk.NoteID, chunk.CaseID, chunk.ChunkIndex, chunk.ChunkText,
			chunk.Embedding, chunk.CreatedAt, chunk.CaseworkerName, chunk.NoteType,
		)
	}
	br := db.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < len(chunks); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}
	return nil
}

// ListUnembeddedChunks returns chunks whose embedding is still NULL,
// in a stable order so the embed pass is resumable.
func (db *DB) ListUnembeddedChunks(ctx context.Context) ([]*Chunk, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, note_id, case_id, chunk_index, chunk_text,
		        created_at, caseworker_name, note_type
		 FROM note_chunks
		 WHERE embedding IS NULL
		 ORDER BY created_at, chunk_index`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list unembedded chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(
			&c.ID, &c.NoteID, &c.CaseID, &c.ChunkIndex, &c.ChunkText,
			&c.CreatedAt, &c.CaseworkerName, &c.NoteType,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

// UpdateChunkEmbedding writes the embedding for a chunk. Write-once:
// an already-embedded chunk is never overwritten.
func (db *DB) UpdateChunkEmbedding(ctx context.Context, chunkID uuid.UUID, embedding pgvector.Vector) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE note_chunks SET embedding = $1 WHERE id = $2 AND embedding IS NULL`,
		embedding, chunkID,
	)
	if err != nil {
		return fmt.Errorf("failed to update chunk embedding: %w", err)
	}
	return nil
}

// SearchSimilarChunks finds the chunks most similar to the query
// vector within one case and an inclusive date window. The scope
// filter is part of the query, so ranking only ever sees in-scope
// candidates; un-embedded chunks are excluded. Ties in similarity
// rank newer notes first.
func (db *DB) SearchSimilarChunks(
	ctx context.Context,
	embedding pgvector.Vector,
	caseID uuid.UUID,
	start, end time.Time,
	limit int,
) ([]*SimilarChunk, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, note_id, case_id, chunk_index, chunk_text, embedding,
		        created_at, caseworker_name, note_type,
		        1 - (embedding <=> $1) AS similarity
		 FROM note_chunks
		 WHERE case_id = $2
		   AND created_at >= $3
		   AND created_at <= $4
		   AND embedding IS NOT NULL
		 ORDER BY embedding <=> $1, created_at DESC
		 LIMIT $5`,
		embedding, caseID, start, end, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var results []*SimilarChunk
	for rows.Next() {
		var sc SimilarChunk
		if err := rows.Scan(
			&sc.ID, &sc.NoteID, &sc.CaseID, &sc.ChunkIndex, &sc.ChunkText, &sc.Embedding,
			&sc.CreatedAt, &sc.CaseworkerName, &sc.NoteType, &sc.Similarity,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		results = append(results, &sc)
	}
	return results, rows.Err()
}

// CountChunks returns total and embedded chunk counts for status output
func (db *DB) CountChunks(ctx context.Context) (total, embedded int, err error) {
	err = db.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(embedding) FROM note_chunks`,
	).Scan(&total, &embedded)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return total, embedded, nil
}
