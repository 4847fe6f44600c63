package chunk

import (
	"regexp"
	"strconv"
	"strings"
)

// pageMarkerPattern matches the page delimiters emitted by the PDF
// extraction stage, e.g. "--- page 3 ---" on its own line.
var pageMarkerPattern = regexp.MustCompile(`(?m)^--- page (\d+) ---$`)

// SplitPageMarkers converts marker-delimited extracted text into clean
// text plus a page-offset map. Text before the first marker is
// attributed to page 1. Returns the input unchanged with a single-page
// map when no markers are present.
func SplitPageMarkers(raw string) (string, PageMap) {
	matches := pageMarkerPattern.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		text := strings.TrimSpace(raw)
		if text == "" {
			return "", nil
		}
		return text, PageMap{{Page: 1, Start: 0, End: len(text)}}
	}

	type section struct {
		page int
		text string
	}
	var sections []section

	if head := strings.TrimSpace(raw[:matches[0][0]]); head != "" {
		sections = append(sections, section{page: 1, text: head})
	}
	for i, m := range matches {
		page, _ := strconv.Atoi(raw[m[2]:m[3]])
		end := len(raw)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		body := strings.TrimSpace(raw[m[1]:end])
		if body == "" {
			continue
		}
		sections = append(sections, section{page: page, text: body})
	}

	var b strings.Builder
	var pages PageMap
	for _, s := range sections {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		start := b.Len()
		b.WriteString(s.text)
		pages = append(pages, PageSpan{Page: s.page, Start: start, End: b.Len()})
	}

	// Page spans must be contiguous over the joined text, so each span
	// absorbs the separator that follows it.
	for i := 0; i+1 < len(pages); i++ {
		pages[i].End = pages[i+1].Start
	}
	return b.String(), pages
}
