package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/casenote-ai/cli/internal/db"
)

// NoteInput is the boundary record for one case note handed to the
// ingestion pipeline by an external collaborator.
type NoteInput struct {
	NoteID         uuid.UUID `json:"note_id,omitempty"`
	CaseID         uuid.UUID `json:"case_id"`
	Text           string    `json:"text"`
	CaseworkerName string    `json:"caseworker_name,omitempty"`
	NoteType       string    `json:"note_type,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Validate checks the record at the boundary, before it reaches the
// core pipeline.
func (n *NoteInput) Validate() error {
	if n.CaseID == uuid.Nil {
		return fmt.Errorf("case_id is required")
	}
	if strings.TrimSpace(n.Text) == "" {
		return fmt.Errorf("text is required")
	}
	if n.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	return nil
}

// ToNote converts the boundary record to its storage form. A missing
// note id is generated here.
func (n *NoteInput) ToNote() *db.Note {
	note := &db.Note{
		ID:        n.NoteID,
		CaseID:    n.CaseID,
		NoteText:  n.Text,
		CreatedAt: n.CreatedAt,
	}
	if note.ID == uuid.Nil {
		note.ID = uuid.New()
	}
	if n.CaseworkerName != "" {
		name := n.CaseworkerName
		note.CaseworkerName = &name
	}
	if n.NoteType != "" {
		noteType := n.NoteType
		note.NoteType = &noteType
	}
	return note
}

// ReadNotesFile loads a JSON array of note inputs and validates each
// record. The index of the first invalid record is reported.
func ReadNotesFile(path string) ([]NoteInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read notes file: %w", err)
	}

	var notes []NoteInput
	if err := json.Unmarshal(data, &notes); err != nil {
		return nil, fmt.Errorf("failed to parse notes file: %w", err)
	}

	for i := range notes {
		if err := notes[i].Validate(); err != nil {
			return nil, fmt.Errorf("invalid note at index %d: %w", i, err)
		}
	}
	return notes, nil
}
