// Package rag implements the query-time pipeline: scoped vector
// retrieval over embedded note chunks and grounded answer assembly
// with source citations.
package rag

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ConversationTurn is one prior turn of the session conversation,
// supplied by the session collaborator and never mutated here.
type ConversationTurn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// QueryInput is the boundary record for one question about a case.
type QueryInput struct {
	CaseID    uuid.UUID          `json:"case_id"`
	DateStart time.Time          `json:"date_start"`
	DateEnd   time.Time          `json:"date_end"`
	Question  string             `json:"question_text"`
	History   []ConversationTurn `json:"conversation_history,omitempty"`
}

// Validate checks the record at the boundary, before it reaches the
// retrieval core.
func (q *QueryInput) Validate() error {
	if q.CaseID == uuid.Nil {
		return fmt.Errorf("case_id is required")
	}
	if strings.TrimSpace(q.Question) == "" {
		return fmt.Errorf("question_text is required")
	}
	if q.DateStart.IsZero() || q.DateEnd.IsZero() {
		return fmt.Errorf("date_start and date_end are required")
	}
	return nil
}

// Result is one ranked retrieval candidate. Ephemeral: produced per
// query, never persisted.
type Result struct {
	ChunkID        uuid.UUID
	NoteID         uuid.UUID
	ChunkIndex     int
	ChunkText      string
	CreatedAt      time.Time
	NoteType       string // empty when the note carries no type tag
	CaseworkerName string // empty when the author is unknown
	Similarity     float64
}

// Source identifies one excerpt that was offered to the model as
// grounding context. The list is the retriever's ranked candidates,
// whether or not the generated text cited each one.
type Source struct {
	ChunkID        uuid.UUID `json:"chunk_id"`
	NoteID         uuid.UUID `json:"note_id"`
	CreatedAt      time.Time `json:"created_at"`
	NoteType       string    `json:"note_type,omitempty"`
	CaseworkerName string    `json:"caseworker_name,omitempty"`
	Excerpt        string    `json:"excerpt"`
	Similarity     float64   `json:"similarity_score"`
}

// Answer is the grounded answer for one question.
type Answer struct {
	Text    string   `json:"answer_text"`
	Sources []Source `json:"sources"`
}
