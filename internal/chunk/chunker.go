package chunk

import (
	"fmt"

	"github.com/marpdocs/marpsearch/internal/errors"
)

// Options configures chunking behavior.
type Options struct {
	MaxTokens     int // Token budget per chunk, overlap included
	OverlapTokens int // Trailing tokens repeated into the next chunk
}

// Chunker splits normalized document text into an ordered sequence of
// chunks covering the entire text with no gaps.
type Chunker struct {
	options Options
}

// NewChunker creates a chunker with default options.
func NewChunker() *Chunker {
	return NewChunkerWithOptions(Options{})
}

// NewChunkerWithOptions creates a chunker with custom options.
func NewChunkerWithOptions(opts Options) *Chunker {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.OverlapTokens < 0 {
		opts.OverlapTokens = DefaultOverlapTokens
	}
	if opts.OverlapTokens >= opts.MaxTokens {
		opts.OverlapTokens = opts.MaxTokens / 10
	}
	return &Chunker{options: opts}
}

// Chunk splits document text into chunks. Whole paragraphs are
// accumulated greedily until the token budget is reached; a paragraph
// that cannot fit in an otherwise empty chunk is hard-split by token
// count. Each chunk after the first starts with the trailing
// OverlapTokens tokens of its predecessor, and the overlap counts
// toward the budget.
//
// Empty or whitespace-only text yields an empty sequence, not an error.
func (c *Chunker) Chunk(documentID string, generation uint64, text string, pages PageMap) ([]*Chunk, error) {
	if documentID == "" {
		return nil, errors.InvalidInput("document id is empty", nil)
	}
	if err := pages.Validate(len(text)); err != nil {
		return nil, err
	}

	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil, nil
	}

	var chunks []*Chunk
	cursor := 0 // Index of the next token not yet placed in a chunk.

	for cursor < len(tokens) {
		overlap := 0
		first := cursor
		if len(chunks) > 0 {
			overlap = min(c.options.OverlapTokens, cursor)
			first = cursor - overlap
		}
		budget := c.options.MaxTokens - overlap

		// Fill with whole paragraphs while they fit.
		taken := 0
		for cursor < len(tokens) {
			segLen := paragraphLen(tokens, cursor)
			if segLen <= budget-taken {
				taken += segLen
				cursor += segLen
				continue
			}
			// A paragraph too large for an empty chunk is split
			// mid-paragraph at the token budget.
			if taken == 0 {
				taken = budget
				cursor += budget
			}
			break
		}

		last := cursor - 1
		chunks = append(chunks, &Chunk{
			ID:          ChunkID(documentID, generation, len(chunks)),
			DocumentID:  documentID,
			Ordinal:     len(chunks),
			Generation:  generation,
			Page:        pages.PageFor(tokens[first].start),
			Text:        text[tokens[first].start:tokens[last].end],
			TokenCount:  overlap + taken,
			Overlap:     overlap,
			StartOffset: tokens[first].start,
			EndOffset:   tokens[last].end,
		})
	}

	return chunks, nil
}

// paragraphLen counts tokens from position i to the end of the current
// paragraph (the token before the next paragraph boundary).
func paragraphLen(tokens []token, i int) int {
	n := 1
	for j := i + 1; j < len(tokens) && !tokens[j].paragraphStart; j++ {
		n++
	}
	return n
}

// Reassemble reconstructs the original document text from an ordered
// chunk sequence by stripping each chunk's overlap region. Used to
// verify round-trip coverage.
func Reassemble(chunks []*Chunk) (string, error) {
	if len(chunks) == 0 {
		return "", nil
	}
	out := chunks[0].Text
	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		if cur.StartOffset > prev.EndOffset {
			return "", fmt.Errorf("gap between chunks %d and %d", prev.Ordinal, cur.Ordinal)
		}
		out += cur.Text[prev.EndOffset-cur.StartOffset:]
	}
	return out, nil
}
