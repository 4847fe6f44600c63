// Package chunk splits extracted document text into overlapping,
// bounded-size passages with page provenance.
package chunk

import (
	"fmt"
	"sort"

	"github.com/marpdocs/marpsearch/internal/errors"
)

// Chunk size defaults, tuned for regulatory PDF passages.
const (
	DefaultMaxTokens     = 450 // Token budget per chunk, overlap included
	DefaultOverlapTokens = 50  // ~11% overlap to preserve cross-boundary phrases
)

// Chunk is a retrievable unit of document text.
//
// Chunks from one indexing pass form a contiguous sequence: each chunk
// after the first repeats the trailing OverlapTokens tokens of its
// predecessor. Text is an exact byte slice of the source document, so
// concatenating chunks with the overlap stripped reproduces the
// original text.
type Chunk struct {
	ID         string // "<document_id>:g<generation>:<ordinal>"
	DocumentID string
	Ordinal    int // 0-indexed position within the document
	Generation uint64
	Page       int    // Page containing the chunk's first character
	Text       string // Exact slice of the source text, overlap included
	TokenCount int    // Tokens in Text, overlap included
	Overlap    int    // Leading tokens repeated from the previous chunk

	// Byte offsets into the source text. StartOffset points at the
	// first overlap token, EndOffset just past the last token.
	StartOffset int
	EndOffset   int
}

// ChunkID builds the deterministic chunk identifier. Identical input
// always yields the same id, which makes duplicate indexing passes
// idempotent at the id level.
func ChunkID(documentID string, generation uint64, ordinal int) string {
	return fmt.Sprintf("%s:g%d:%d", documentID, generation, ordinal)
}

// PageSpan maps a half-open byte range [Start, End) of the document
// text to a physical page number.
type PageSpan struct {
	Page  int `json:"page"`
	Start int `json:"start"`
	End   int `json:"end"`
}

// PageMap is the ordered page-offset map delivered alongside extracted
// text. Spans must be ascending, non-overlapping, and cover the text.
type PageMap []PageSpan

// Validate checks the map against the text it describes.
func (m PageMap) Validate(textLen int) error {
	if textLen == 0 {
		return nil
	}
	if len(m) == 0 {
		return errors.New(errors.ErrCodeInvalidPageMap, "page map is empty for non-empty text", nil)
	}
	if m[0].Start != 0 {
		return errors.New(errors.ErrCodeInvalidPageMap,
			fmt.Sprintf("page map does not start at offset 0, got %d", m[0].Start), nil)
	}
	for i, span := range m {
		if span.Page < 1 {
			return errors.New(errors.ErrCodeInvalidPageMap,
				fmt.Sprintf("page number must be positive, got %d", span.Page), nil)
		}
		if span.End <= span.Start {
			return errors.New(errors.ErrCodeInvalidPageMap,
				fmt.Sprintf("page %d has empty or inverted span [%d, %d)", span.Page, span.Start, span.End), nil)
		}
		if span.End > textLen {
			return errors.New(errors.ErrCodeInvalidPageMap,
				fmt.Sprintf("page %d span end %d exceeds text length %d", span.Page, span.End, textLen), nil)
		}
		if i > 0 && span.Start != m[i-1].End {
			return errors.New(errors.ErrCodeInvalidPageMap,
				fmt.Sprintf("gap or overlap between pages %d and %d at offset %d", m[i-1].Page, span.Page, span.Start), nil)
		}
	}
	if m[len(m)-1].End != textLen {
		return errors.New(errors.ErrCodeInvalidPageMap,
			fmt.Sprintf("page map covers %d bytes but text has %d", m[len(m)-1].End, textLen), nil)
	}
	return nil
}

// PageFor returns the page containing the given byte offset. Falls back
// to the last page for offsets at or past the end of the map.
func (m PageMap) PageFor(offset int) int {
	if len(m) == 0 {
		return 1
	}
	i := sort.Search(len(m), func(i int) bool { return m[i].End > offset })
	if i >= len(m) {
		return m[len(m)-1].Page
	}
	return m[i].Page
}
