package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "basic",
			text: "First sentence. Second sentence. Third sentence.",
			want: []string{"First sentence.", "Second sentence.", "Third sentence."},
		},
		{
			name: "question and exclamation",
			text: "Did the client attend? Yes! Follow-up scheduled.",
			want: []string{"Did the client attend?", "Yes!", "Follow-up scheduled."},
		},
		{
			name: "abbreviation does not split",
			text: "Met with Dr. Alvarez at the clinic. Client was calm.",
			want: []string{"Met with Dr. Alvarez at the clinic.", "Client was calm."},
		},
		{
			name: "initial does not split",
			text: "Spoke with J. Smith today. No concerns raised.",
			want: []string{"Spoke with J. Smith today.", "No concerns raised."},
		},
		{
			name: "decimal does not split",
			text: "The child weighed 3.5 kg at the checkup. Weight is on track.",
			want: []string{"The child weighed 3.5 kg at the checkup.", "Weight is on track."},
		},
		{
			name: "trailing text without terminator",
			text: "Visit completed. Next visit pending",
			want: []string{"Visit completed.", "Next visit pending"},
		},
		{
			name: "ellipsis kept together",
			text: "Client hesitated... then agreed. Session ended.",
			want: []string{"Client hesitated... then agreed.", "Session ended."},
		},
		{
			name: "ellipsis before new sentence splits",
			text: "Client trailed off... Next topic was housing.",
			want: []string{"Client trailed off...", "Next topic was housing."},
		},
		{
			name: "empty",
			text: "   ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitSentences(tt.text))
		})
	}
}

func TestChunk_EmptyInput(t *testing.T) {
	c := New(0, 0, 0)
	assert.Nil(t, c.Chunk(""))
	assert.Nil(t, c.Chunk("  \n\t "))
}

func TestChunk_ShortTextSingleChunk(t *testing.T) {
	c := New(0, 0, 0)
	text := "Client attended the scheduled appointment. No issues reported."
	chunks := c.Chunk(text)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestChunk_SplitWithSentenceOverlap(t *testing.T) {
	// Max length forces a split after the second sentence; the second
	// chunk must begin with the carried-over sentence, not mid-sentence.
	text := "Client missed the March appointment. Caseworker followed up by phone. Client confirmed attendance going forward."
	c := New(80, 30, 40)

	chunks := c.Chunk(text)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Client missed the March appointment. Caseworker followed up by phone.", chunks[0])
	assert.True(t, strings.HasPrefix(chunks[1], "Caseworker followed up by phone."),
		"second chunk must start with the overlap sentence, got: %q", chunks[1])
}

func TestChunk_NeverExceedsMaxChars(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 120; i++ {
		fmt.Fprintf(&b, "Home visit number %d went as planned and the family was present. ", i)
	}
	c := New(DefaultMaxChars, DefaultMinOverlapChars, DefaultMaxOverlapChars)

	chunks := c.Chunk(b.String())
	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), DefaultMaxChars,
			"chunk %d exceeds the limit", i)
	}
}

func TestChunk_OversizedSentenceEmittedWhole(t *testing.T) {
	long := "The caseworker documented " + strings.Repeat("a very long observation ", 20) + "in a single run-on sentence."
	text := "Short lead-in. " + long + " Short closer."
	c := New(100, 20, 40)

	chunks := c.Chunk(text)
	require.NotEmpty(t, chunks)

	found := false
	for _, chunk := range chunks {
		if strings.Contains(chunk, long) {
			found = true
		}
	}
	assert.True(t, found, "the oversized sentence must appear unsplit in exactly one chunk")
}

func TestChunk_Deterministic(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&b, "Observation %d recorded during the supervised visit. ", i)
	}
	c := New(300, 60, 120)

	first := c.Chunk(b.String())
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, c.Chunk(b.String()))
	}
}

func TestChunk_RoundTripModuloOverlap(t *testing.T) {
	// Concatenating chunks in order and stripping each chunk's leading
	// overlap (a suffix of the previous chunk) must reconstruct the
	// original text exactly.
	sentences := make([]string, 40)
	for i := range sentences {
		sentences[i] = fmt.Sprintf("Note entry %d describes the contact with the family in detail.", i)
	}
	text := strings.Join(sentences, " ")
	c := New(400, 80, 160)

	chunks := c.Chunk(text)
	require.Greater(t, len(chunks), 1)

	rebuilt := chunks[0]
	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		overlap := longestSuffixPrefix(prev, cur)
		require.Greater(t, overlap, 0, "chunk %d shares no overlap with its predecessor", i)
		rebuilt += " " + strings.TrimSpace(cur[overlap:])
	}
	assert.Equal(t, text, rebuilt)
}

// longestSuffixPrefix returns the length of the longest suffix of a
// that is also a prefix of b.
func longestSuffixPrefix(a, b string) int {
	max := len(a)
	if len(b) < max {
		max = len(b)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(a, b[:n]) {
			return n
		}
	}
	return 0
}
