package ingest

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// referenceHeadings are the section headings that mark the start of a paper's
// bibliography, in lowercase.
var referenceHeadings = []string{
	"references",
	"bibliography",
	"citations",
	"works cited",
}

// referencesSection returns the slice of text from the last occurrence of a
// reference heading to the end of the document, and whether a heading was
// found. The last occurrence is used because papers frequently mention
// "references" in prose long before the actual section.
//
// Matching is done on a lowercased copy with a byte-offset map back to the
// original text; lowercasing is not byte-length-preserving for all of Unicode,
// so indexing the original with positions from the lowered string would slice
// mid-rune.
func referencesSection(text string) (string, bool) {
	lower, offsets := lowerWithOffsets(text)

	best := -1
	for _, heading := range referenceHeadings {
		if idx := strings.LastIndex(lower, heading); idx > best {
			best = idx
		}
	}
	if best < 0 {
		return "", false
	}
	return text[offsets[best]:], true
}

// lowerWithOffsets lowercases text rune by rune, returning the lowered string
// and, for each byte of it, the starting byte offset of the originating rune
// in text.
func lowerWithOffsets(text string) (string, []int) {
	var b strings.Builder
	b.Grow(len(text))
	offsets := make([]int, 0, len(text))
	for i, r := range text {
		lr := unicode.ToLower(r)
		for j := 0; j < utf8.RuneLen(lr); j++ {
			offsets = append(offsets, i)
		}
		b.WriteRune(lr)
	}
	return b.String(), offsets
}
