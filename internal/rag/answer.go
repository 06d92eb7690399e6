package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/casenote-ai/cli/internal/ollama"
)

// excerptMaxChars bounds the excerpt length in the returned source list.
const excerptMaxChars = 250

// maxHistoryTurns is the number of past user/assistant pairs included
// in the prompt, keeping long sessions inside the context window.
const maxHistoryTurns = 10

// systemInstruction tells the model to answer only from the provided
// excerpts and to cite them by their stable label. Numbered references
// ("Note 1") are forbidden because the numbering changes per query.
const systemInstruction = `You are a precise assistant for child welfare caseworkers. You are given excerpts from case notes for a specific case and date window. Use ONLY the provided case note excerpts to answer questions.

CITATION RULE: Each excerpt is labelled [YYYY-MM-DD, note-type, Caseworker Name]. Always cite using that exact label, for example: [2025-03-05, in-person, Robert Hayes]. NEVER use numbered references like "Note 1" or "Note 2".

STRICT SCOPE RULE: Answer only what was explicitly asked. Do NOT treat related but distinct concepts as equivalent. If the notes contain something adjacent but not the same thing, first state clearly that the specific thing asked about was NOT documented, then you may note what related information was found, clearly labelled as different.

If the answer cannot be found at all in the provided notes, say so clearly. Do not make up information. Keep your answers concise, factual, and professional.`

// Generator is the text-generation backend surface the assembler needs.
type Generator interface {
	Chat(ctx context.Context, req *ollama.ChatRequest) (string, error)
}

// Assembler builds a grounded prompt from retrieved chunks and the
// running conversation, invokes the generation backend, and pairs the
// answer with its source list. Stateless; safe for concurrent use.
type Assembler struct {
	gen   Generator
	model string
}

// NewAssembler creates a new answer assembler using the given model.
func NewAssembler(gen Generator, model string) *Assembler {
	return &Assembler{
		gen:   gen,
		model: model,
	}
}

// Answer generates a grounded answer for the question. results must be
// the retriever's ranked list; history is the prior session turns in
// order, excluding the current question. A backend failure is returned
// as an error with no partial answer.
func (a *Assembler) Answer(ctx context.Context, question string, results []Result, history []ConversationTurn) (*Answer, error) {
	messages := make([]ollama.Message, 0, len(history)+2)
	messages = append(messages, ollama.Message{Role: "system", Content: systemInstruction})

	// Keep only the most recent turns.
	if len(history) > maxHistoryTurns*2 {
		history = history[len(history)-maxHistoryTurns*2:]
	}
	for _, turn := range history {
		role := "user"
		if turn.Role == "assistant" {
			role = "assistant"
		}
		messages = append(messages, ollama.Message{Role: role, Content: turn.Content})
	}

	// The retrieved excerpts are prepended to the user turn rather than
	// the system message: they change with every question, and the
	// model should read them as evidence for this turn specifically.
	userMessage := buildContextBlock(results) + "\n\nQuestion: " + question
	messages = append(messages, ollama.Message{Role: "user", Content: userMessage})

	text, err := a.gen.Chat(ctx, &ollama.ChatRequest{
		Model:    a.model,
		Messages: messages,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	return &Answer{
		Text:    text,
		Sources: sourcesFromResults(results),
	}, nil
}

// buildContextBlock formats the retrieved chunks as labelled excerpt
// blocks in rank order, most relevant first.
func buildContextBlock(results []Result) string {
	if len(results) == 0 {
		return "No case note excerpts were found for this question within the selected date window."
	}

	var b strings.Builder
	b.WriteString("Relevant case note excerpts:\n")
	for _, r := range results {
		fmt.Fprintf(&b, "\n%s:\n%s\n", excerptLabel(r), r.ChunkText)
	}
	return b.String()
}

// excerptLabel is the stable citation label for one excerpt: date,
// note type, caseworker. The same label appears in the prompt and in
// the model's citations, so users can trace answers back to notes.
func excerptLabel(r Result) string {
	noteType := r.NoteType
	if noteType == "" {
		noteType = "unknown"
	}
	caseworker := r.CaseworkerName
	if caseworker == "" {
		caseworker = "unknown caseworker"
	}
	return fmt.Sprintf("[%s, %s, %s]", r.CreatedAt.Format("2006-01-02"), noteType, caseworker)
}

// sourcesFromResults maps the ranked results to the boundary source
// list, preserving order.
func sourcesFromResults(results []Result) []Source {
	sources := make([]Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, Source{
			ChunkID:        r.ChunkID,
			NoteID:         r.NoteID,
			CreatedAt:      r.CreatedAt,
			NoteType:       r.NoteType,
			CaseworkerName: r.CaseworkerName,
			Excerpt:        truncateExcerpt(r.ChunkText, excerptMaxChars),
			Similarity:     r.Similarity,
		})
	}
	return sources
}

// truncateExcerpt shortens text to at most max runes, adding an
// ellipsis when anything was cut.
func truncateExcerpt(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return strings.TrimSpace(string(runes[:max-1])) + "…"
}
