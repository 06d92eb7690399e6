// Package chunker splits case-note text into bounded, sentence-aligned
// chunks with character-measured overlap.
//
// Chunk boundaries always fall on sentence boundaries. The overlap
// carried into the next chunk is collected backwards in whole sentences
// until it reaches a character floor, so short sentences ("Yes.",
// "He agreed.") cannot produce a near-empty overlap.
package chunker

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxChars is roughly 300 tokens for a 512-token embedding model.
	DefaultMaxChars = 1200
	// DefaultMinOverlapChars is enough text for genuine context carry-over.
	DefaultMinOverlapChars = 200
	// DefaultMaxOverlapChars keeps the overlap from dominating the chunk.
	DefaultMaxOverlapChars = 400
)

// Chunker splits text into overlapping chunks. The zero value is not
// usable; construct with New.
type Chunker struct {
	maxChars        int
	minOverlapChars int
	maxOverlapChars int
}

// New creates a new chunker. Non-positive parameters fall back to the
// package defaults.
func New(maxChars, minOverlapChars, maxOverlapChars int) *Chunker {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if minOverlapChars <= 0 {
		minOverlapChars = DefaultMinOverlapChars
	}
	if maxOverlapChars <= 0 {
		maxOverlapChars = DefaultMaxOverlapChars
	}
	return &Chunker{
		maxChars:        maxChars,
		minOverlapChars: minOverlapChars,
		maxOverlapChars: maxOverlapChars,
	}
}

// Chunk splits text into chunks of at most maxChars characters, each
// starting on a sentence boundary. Consecutive chunks share an overlap
// of whole sentences between minOverlapChars and maxOverlapChars.
//
// Deterministic and pure: the same input always yields the same output.
// Empty or whitespace-only input yields no chunks. Text that fits in a
// single chunk is returned unmodified. A single sentence longer than
// maxChars is emitted as its own oversized chunk rather than being cut
// mid-sentence.
func (c *Chunker) Chunk(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= c.maxChars {
		return []string{text}
	}

	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}
	lengths := make([]int, len(sentences))
	for i, s := range sentences {
		lengths[i] = utf8.RuneCountInString(s)
	}

	var chunks []string
	start := 0 // index of the first sentence of the chunk being built

	for start < len(sentences) {
		// Greedily add sentences until the next one would overflow.
		// The first sentence is always admitted so an oversized
		// sentence still makes forward progress.
		charCount := 0
		j := start
		for j < len(sentences) {
			sep := 0
			if j > start {
				sep = 1 // joining space
			}
			if charCount+sep+lengths[j] > c.maxChars && j > start {
				break
			}
			charCount += sep + lengths[j]
			j++
		}

		chunks = append(chunks, strings.Join(sentences[start:j], " "))

		if j >= len(sentences) {
			break
		}

		// Walk backwards from j collecting whole sentences until the
		// overlap reaches the character floor, stopping early if the
		// next sentence would exceed the cap.
		overlapChars := 0
		overlapStart := j
		for overlapStart > start {
			cand := overlapStart - 1
			space := 0
			if overlapStart < j {
				space = 1
			}
			add := lengths[cand] + space
			if overlapChars+add > c.maxOverlapChars {
				break
			}
			overlapStart = cand
			overlapChars += add
			if overlapChars >= c.minOverlapChars {
				break
			}
		}

		// overlapStart must advance past start to guarantee progress.
		if overlapStart <= start {
			overlapStart = start + 1
		}
		start = overlapStart
	}

	return chunks
}
