// Package ingest runs the batch ingestion pipeline: splitting case
// notes into chunks and embedding them into the vector store.
//
// The pipeline is two-pass and resumable. Pass 1 inserts chunk rows
// (with NULL embeddings) for every note that has no chunks yet; pass 2
// embeds every chunk whose embedding is still NULL. If the embedding
// backend dies mid-run, re-running picks up exactly where it stopped.
package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/casenote-ai/cli/internal/chunker"
	"github.com/casenote-ai/cli/internal/db"
	"github.com/casenote-ai/cli/internal/logger"
)

// Store is the persistence surface the pipeline needs.
type Store interface {
	ListNotesWithoutChunks(ctx context.Context) ([]*db.Note, error)
	InsertChunksBatch(ctx context.Context, chunks []*db.Chunk) error
	ListUnembeddedChunks(ctx context.Context) ([]*db.Chunk, error)
	UpdateChunkEmbedding(ctx context.Context, chunkID uuid.UUID, embedding pgvector.Vector) error
}

// DocumentEmbedder embeds chunk texts without the query prefix.
type DocumentEmbedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([]pgvector.Vector, error)
}

// Stats summarizes one pipeline run.
type Stats struct {
	NotesChunked   int
	NotesSkipped   int // empty notes that produced zero chunks
	NotesFailed    int
	ChunksInserted int
	ChunksEmbedded int
}

// Pipeline chunks and embeds pending case notes.
type Pipeline struct {
	store     Store
	emb       DocumentEmbedder
	chunker   *chunker.Chunker
	batchSize int
	workers   int
}

// New creates an ingestion pipeline. batchSize defaults to 16 and
// workers to 4.
func New(store Store, emb DocumentEmbedder, ch *chunker.Chunker, batchSize, workers int) *Pipeline {
	if batchSize <= 0 {
		batchSize = 16
	}
	if workers <= 0 {
		workers = 4
	}
	return &Pipeline{
		store:     store,
		emb:       emb,
		chunker:   ch,
		batchSize: batchSize,
		workers:   workers,
	}
}

// Run executes the chunk pass followed by the embed pass.
func (p *Pipeline) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	if err := p.ChunkPendingNotes(ctx, stats); err != nil {
		return stats, err
	}
	if err := p.EmbedPendingChunks(ctx, stats); err != nil {
		return stats, err
	}
	return stats, nil
}

// ChunkPendingNotes splits every note without chunk rows and inserts
// the chunks with NULL embeddings. Notes are independent, so they fan
// out across a small worker pool; a failure on one note is logged and
// does not abort the others.
func (p *Pipeline) ChunkPendingNotes(ctx context.Context, stats *Stats) error {
	notes, err := p.store.ListNotesWithoutChunks(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pending notes: %w", err)
	}
	if len(notes) == 0 {
		logger.Debug("no notes waiting to be chunked")
		return nil
	}
	logger.Info("chunking %d note(s)", len(notes))

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		queue = make(chan *db.Note)
	)

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for note := range queue {
				inserted, err := p.chunkNote(ctx, note)
				mu.Lock()
				switch {
				case err != nil:
					stats.NotesFailed++
					logger.Warn("failed to chunk note %s: %v", note.ID, err)
				case inserted == 0:
					stats.NotesSkipped++
					logger.Debug("note %s is empty, no chunks produced", note.ID)
				default:
					stats.NotesChunked++
					stats.ChunksInserted += inserted
				}
				mu.Unlock()
			}
		}()
	}

	for _, note := range notes {
		queue <- note
	}
	close(queue)
	wg.Wait()

	return ctx.Err()
}

// chunkNote splits one note and inserts its chunk rows, copying the
// note metadata onto every chunk for join-free search.
func (p *Pipeline) chunkNote(ctx context.Context, note *db.Note) (int, error) {
	texts := p.chunker.Chunk(note.NoteText)
	if len(texts) == 0 {
		return 0, nil
	}

	chunks := make([]*db.Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, &db.Chunk{
			ID:             uuid.New(),
			NoteID:         note.ID,
			CaseID:         note.CaseID,
			ChunkIndex:     i,
			ChunkText:      text,
			CreatedAt:      note.CreatedAt,
			CaseworkerName: note.CaseworkerName,
			NoteType:       note.NoteType,
		})
	}

	if err := p.store.InsertChunksBatch(ctx, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// EmbedPendingChunks embeds every chunk whose embedding is NULL, in
// stable order and fixed-size batches. A backend failure aborts the
// pass with an error; nothing partial is written for the failed batch,
// and a re-run resumes from the remaining NULL rows.
func (p *Pipeline) EmbedPendingChunks(ctx context.Context, stats *Stats) error {
	chunks, err := p.store.ListUnembeddedChunks(ctx)
	if err != nil {
		return fmt.Errorf("failed to list unembedded chunks: %w", err)
	}
	if len(chunks) == 0 {
		logger.Debug("no chunks waiting to be embedded")
		return nil
	}
	logger.Info("embedding %d chunk(s)", len(chunks))

	for start := 0; start < len(chunks); start += p.batchSize {
		end := start + p.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.ChunkText
		}

		vectors, err := p.emb.EmbedDocuments(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed batch starting at chunk %d: %w", start, err)
		}

		for i, c := range batch {
			if err := p.store.UpdateChunkEmbedding(ctx, c.ID, vectors[i]); err != nil {
				return fmt.Errorf("failed to store embedding for chunk %s: %w", c.ID, err)
			}
			stats.ChunksEmbedded++
		}
		logger.Debug("embedded %d/%d chunks", stats.ChunksEmbedded, len(chunks))
	}

	return nil
}
