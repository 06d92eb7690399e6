package chunker

import "strings"

// Abbreviations that end with a period but do not end a sentence.
// Compared case-insensitively against the word preceding the period.
var abbreviations = map[string]struct{}{
	"mr":     {},
	"mrs":    {},
	"ms":     {},
	"dr":     {},
	"prof":   {},
	"jr":     {},
	"sr":     {},
	"st":     {},
	"vs":     {},
	"etc":    {},
	"approx": {},
	"dept":   {},
	"inc":    {},
}

// SplitSentences splits text into sentences at ., ! and ? boundaries.
// A period preceded by a common abbreviation or a single-letter initial
// does not end a sentence, and a terminator must be followed by
// whitespace (or end of input) to count as a boundary, so decimals like
// "3.5" stay intact. Sentences are trimmed and returned in input order.
func SplitSentences(text string) []string {
	var sentences []string
	start := 0
	i := 0
	for i < len(text) {
		c := text[i]
		if c != '.' && c != '!' && c != '?' {
			i++
			continue
		}

		// Absorb terminator runs ("...", "?!") and closing quotes.
		end := i + 1
		for end < len(text) && (text[end] == '.' || text[end] == '!' || text[end] == '?') {
			end++
		}
		runLen := end - i
		for end < len(text) && (text[end] == '"' || text[end] == '\'' || text[end] == ')') {
			end++
		}

		// A real boundary is followed by whitespace or end of input.
		if end < len(text) && !isSpace(text[end]) {
			i = end
			continue
		}

		// An ellipsis or "?!" run trailed by a lowercase continuation is
		// mid-sentence punctuation, not a boundary.
		if runLen > 1 {
			next := end
			for next < len(text) && isSpace(text[next]) {
				next++
			}
			if next < len(text) && text[next] >= 'a' && text[next] <= 'z' {
				i = end
				continue
			}
		}

		if c == '.' && end == i+1 {
			word := lastWord(text[:i])
			if isAbbreviation(word) || isInitial(word) {
				i = end
				continue
			}
		}

		if s := strings.TrimSpace(text[start:end]); s != "" {
			sentences = append(sentences, s)
		}
		for end < len(text) && isSpace(text[end]) {
			end++
		}
		start = end
		i = end
	}

	if rest := strings.TrimSpace(text[start:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// lastWord returns the run of letters immediately preceding the period.
func lastWord(s string) string {
	end := len(s)
	i := end
	for i > 0 && isLetter(s[i-1]) {
		i--
	}
	return s[i:end]
}

func isAbbreviation(word string) bool {
	_, ok := abbreviations[strings.ToLower(word)]
	return ok
}

// isInitial reports whether word is a single-letter initial ("J." in
// "J. Smith").
func isInitial(word string) bool {
	return len(word) == 1 && word[0] >= 'A' && word[0] <= 'Z'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
