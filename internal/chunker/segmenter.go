// Package chunker implements semantic text chunking for document ingestion.
// Text is segmented into sentence-level units, embedded, and grouped into
// topically coherent chunks at points where adjacent-sentence embedding
// similarity drops below a configurable threshold.
package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/rivo/uniseg"
)

// Default segmentation parameters.
const (
	// DefaultMaxSentenceChars is the sentence length above which the
	// fallback window splitter takes over.
	DefaultMaxSentenceChars = 1000

	// DefaultFallbackChunkSize is the fallback window size in characters.
	DefaultFallbackChunkSize = 400

	// DefaultFallbackChunkOverlap is the character overlap between
	// consecutive fallback windows.
	DefaultFallbackChunkOverlap = 80
)

// Segmenter splits raw text into sentence-level units using Unicode sentence
// boundaries, with a fixed-window fallback splitter for pathological long
// sentences that PDF extraction sometimes produces (tables, equation dumps,
// run-together paragraphs).
type Segmenter struct {
	maxSentenceChars     int
	fallbackChunkSize    int
	fallbackChunkOverlap int
}

// NewSegmenter creates a segmenter. Non-positive parameters fall back to the
// package defaults.
func NewSegmenter(maxSentenceChars, fallbackChunkSize, fallbackChunkOverlap int) *Segmenter {
	if maxSentenceChars <= 0 {
		maxSentenceChars = DefaultMaxSentenceChars
	}
	if fallbackChunkSize <= 0 {
		fallbackChunkSize = DefaultFallbackChunkSize
	}
	if fallbackChunkOverlap < 0 || fallbackChunkOverlap >= fallbackChunkSize {
		fallbackChunkOverlap = DefaultFallbackChunkOverlap
	}
	return &Segmenter{
		maxSentenceChars:     maxSentenceChars,
		fallbackChunkSize:    fallbackChunkSize,
		fallbackChunkOverlap: fallbackChunkOverlap,
	}
}

// Segment splits text into an ordered sequence of non-empty sentence-level
// units. Null bytes are stripped first; corrupt PDF extraction occasionally
// embeds them and they break downstream persistence.
func (s *Segmenter) Segment(text string) []string {
	text = strings.ReplaceAll(text, "\x00", "")

	var units []string
	state := -1
	rest := text
	for len(rest) > 0 {
		var sentence string
		sentence, rest, state = uniseg.FirstSentenceInString(rest, state)
		if sentence == "" {
			break
		}
		unit := strings.TrimSpace(sentence)
		if unit == "" {
			continue
		}
		if len(unit) > s.maxSentenceChars {
			units = append(units, s.splitLongSentence(unit)...)
		} else {
			units = append(units, unit)
		}
	}
	return units
}

// splitLongSentence re-splits an over-long sentence into fixed-size windows.
// Each window is cut back to the last word boundary at or before the size
// limit (hard-cut only when a single unbroken token exceeds the window), and
// the next window starts fallbackChunkOverlap characters before the previous
// cut, snapped forward to the next word boundary so no window starts mid-word.
func (s *Segmenter) splitLongSentence(sentence string) []string {
	var units []string
	start := 0
	for start < len(sentence) {
		end := start + s.fallbackChunkSize
		if end >= len(sentence) {
			end = len(sentence)
		} else {
			if cut := strings.LastIndexByte(sentence[start:end], ' '); cut > 0 {
				end = start + cut
			} else {
				// Hard cut inside an unbroken token. Back off to a rune
				// boundary so we never emit invalid UTF-8.
				for end > start && !utf8.RuneStart(sentence[end]) {
					end--
				}
				if end == start {
					end = start + s.fallbackChunkSize
				}
			}
		}

		if unit := strings.TrimSpace(sentence[start:end]); unit != "" {
			units = append(units, unit)
		}

		if end >= len(sentence) {
			break
		}

		next := end - s.fallbackChunkOverlap
		if next <= start {
			next = end
		}
		// Snap forward so the next window starts on a word boundary.
		if next < len(sentence) && sentence[next] != ' ' && !utf8.RuneStart(sentence[next]) {
			for next < len(sentence) && !utf8.RuneStart(sentence[next]) {
				next++
			}
		}
		if next > start && next < end && sentence[next-1] != ' ' {
			if sp := strings.IndexByte(sentence[next:end], ' '); sp >= 0 {
				next += sp + 1
			} else {
				// No boundary inside the overlap region: the window's last
				// word is longer than the overlap. Give up the overlap and
				// resume at the previous cut rather than mid-word.
				next = end
			}
		}
		if next <= start {
			next = end
		}
		start = next
	}
	return units
}
