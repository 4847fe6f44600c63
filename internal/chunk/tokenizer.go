package chunk

import "unicode"

// token is a run of non-whitespace text with its byte position in the
// source document.
type token struct {
	start int
	end   int

	// paragraphStart marks the first token after a blank line (or the
	// first token of the document).
	paragraphStart bool
}

// tokenize splits text into whitespace-delimited tokens, recording byte
// offsets and paragraph boundaries. A paragraph boundary is any gap
// containing two or more newlines.
func tokenize(text string) []token {
	var tokens []token
	start := -1
	newlines := 2 // Document start counts as a paragraph boundary.

	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				tokens = append(tokens, token{start: start, end: i, paragraphStart: newlines >= 2})
				start = -1
				newlines = 0
			}
			if r == '\n' {
				newlines++
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, token{start: start, end: len(text), paragraphStart: newlines >= 2})
	}
	return tokens
}

// CountTokens returns the whitespace-delimited token count of text.
func CountTokens(text string) int {
	return len(tokenize(text))
}
