package rag

import "context"

// Engine ties scoped retrieval and answer assembly into the single
// question-answering entry point.
type Engine struct {
	retriever *Retriever
	assembler *Assembler
}

// NewEngine creates a new query engine.
func NewEngine(r *Retriever, a *Assembler) *Engine {
	return &Engine{
		retriever: r,
		assembler: a,
	}
}

// Ask validates the query, retrieves the in-scope chunks, and returns
// a grounded answer with its source list.
func (e *Engine) Ask(ctx context.Context, in QueryInput) (*Answer, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	results, err := e.retriever.Search(ctx, in.Question, in.CaseID, in.DateStart, in.DateEnd)
	if err != nil {
		return nil, err
	}
	return e.assembler.Answer(ctx, in.Question, results, in.History)
}
