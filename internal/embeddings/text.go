// Package embeddings generates text embeddings for case-note chunks
// and user queries through the Ollama embeddings API.
//
// Queries and documents are embedded through two distinct entry points.
// The retrieval model (bge-large) expects queries to carry an
// instruction prefix that documents must never carry; the prefix is
// applied in exactly one place so callers cannot get it wrong.
package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pgvector/pgvector-go"
)

// queryPrefix is the retrieval instruction bge models are trained with.
// Applied to queries only, never to documents.
const queryPrefix = "Represent this sentence for searching relevant passages: "

// State describes the lifecycle of the embedding service.
type State int

const (
	// StateNew means Start has not completed yet.
	StateNew State = iota
	// StateReady means the warm-up probe succeeded.
	StateReady
	// StateFailed means the warm-up probe failed; the service is unusable.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrNotReady is returned when embedding is attempted before Start has
// succeeded.
var ErrNotReady = errors.New("embedding service not ready")

// Service generates fixed-dimension embeddings. Construct with New,
// call Start once before use, share by reference across ingestion and
// query paths. Safe for concurrent use after Start.
type Service struct {
	baseURL    string
	model      string
	dimension  int
	httpClient *http.Client

	mu    sync.RWMutex
	state State
}

// New creates a new embedding service. Zero-value parameters fall back
// to defaults (local Ollama, bge-large, 1024 dimensions).
func New(baseURL, model string, dimension int) *Service {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "bge-large"
	}
	if dimension <= 0 {
		dimension = 1024
	}
	return &Service{
		baseURL:   baseURL,
		model:     model,
		dimension: dimension,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute, // first call may pull model weights
		},
	}
}

// Start warms the model with a probe embedding and verifies the
// configured dimension. It must succeed before EmbedQuery or
// EmbedDocuments can be used; a failure marks the service failed so
// callers can distinguish "failed" from "not yet started".
func (s *Service) Start(ctx context.Context) error {
	s.mu.RLock()
	state := s.state
	s.mu.RUnlock()
	if state == StateReady {
		return nil
	}

	_, err := s.embed(ctx, "warm-up probe")
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateFailed
		return fmt.Errorf("failed to warm up embedding model %s: %w", s.model, err)
	}
	s.state = StateReady
	return nil
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Ready reports whether the service has been started successfully.
func (s *Service) Ready() bool {
	return s.State() == StateReady
}

// Close releases idle connections. The service cannot be restarted.
func (s *Service) Close() {
	s.httpClient.CloseIdleConnections()
}

// Dimension returns the configured vector dimension.
func (s *Service) Dimension() int {
	return s.dimension
}

// EmbedQuery embeds a single user question with the retrieval prefix
// prepended. Used at query time only.
func (s *Service) EmbedQuery(ctx context.Context, text string) (pgvector.Vector, error) {
	if !s.Ready() {
		return pgvector.Vector{}, ErrNotReady
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return pgvector.Vector{}, fmt.Errorf("query text cannot be empty")
	}
	return s.embed(ctx, queryPrefix+text)
}

// EmbedDocuments embeds chunk texts verbatim, without the retrieval
// prefix. Used at ingestion time only. One vector is returned per
// input, in input order; any backend failure fails the whole batch
// rather than substituting a zero vector.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	if !s.Ready() {
		return nil, ErrNotReady
	}
	vectors := make([]pgvector.Vector, 0, len(texts))
	for i, text := range texts {
		vec, err := s.embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed document %d: %w", i, err)
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

// embed is the single raw-text entry point. Everything above it decides
// whether the retrieval prefix applies.
func (s *Service) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	if strings.TrimSpace(text) == "" {
		return pgvector.Vector{}, fmt.Errorf("text cannot be empty")
	}

	url := fmt.Sprintf("%s/api/embeddings", s.baseURL)
	payload := map[string]any{
		"model":  s.model,
		"prompt": text,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, strings.NewReader(string(jsonData)))
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return pgvector.Vector{}, fmt.Errorf("ollama API error: %d - %s", resp.StatusCode, string(body))
	}

	var result struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return pgvector.Vector{}, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Embedding) == 0 {
		return pgvector.Vector{}, fmt.Errorf("empty embedding returned")
	}
	if len(result.Embedding) != s.dimension {
		return pgvector.Vector{}, fmt.Errorf("embedding dimension mismatch: got %d, want %d",
			len(result.Embedding), s.dimension)
	}

	normalize(result.Embedding)
	return pgvector.NewVector(result.Embedding), nil
}

// normalize scales the vector to unit length so cosine similarity
// against other normalized vectors lands in [0, 1].
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}
