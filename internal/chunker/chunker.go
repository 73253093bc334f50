package chunker

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// DefaultSimilarityThreshold is the adjacent-unit cosine similarity below
// which a chunk boundary occurs.
const DefaultSimilarityThreshold = 0.5

// DefaultSentenceOverlap is the number of trailing units duplicated across a
// chunk boundary.
const DefaultSentenceOverlap = 1

// Embedder produces fixed-dimension embedding vectors for text.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Options controls chunking behavior.
type Options struct {
	// SimilarityThreshold is the cosine similarity below which a boundary
	// occurs between adjacent units. Lower values produce fewer, larger
	// chunks; higher values produce more, tighter chunks.
	SimilarityThreshold float64

	// SentenceOverlap is the number of trailing units of the previous chunk
	// duplicated as the prefix of the next chunk.
	SentenceOverlap int

	// MaxSentenceChars, FallbackChunkSize, and FallbackChunkOverlap control
	// the fallback splitter for over-long sentences (see Segmenter).
	MaxSentenceChars     int
	FallbackChunkSize    int
	FallbackChunkOverlap int
}

// DefaultOptions returns chunking options with package defaults.
func DefaultOptions() Options {
	return Options{
		SimilarityThreshold:  DefaultSimilarityThreshold,
		SentenceOverlap:      DefaultSentenceOverlap,
		MaxSentenceChars:     DefaultMaxSentenceChars,
		FallbackChunkSize:    DefaultFallbackChunkSize,
		FallbackChunkOverlap: DefaultFallbackChunkOverlap,
	}
}

// Chunker groups sentence-level units into semantically coherent chunks.
type Chunker struct {
	segmenter *Segmenter
	embedder  Embedder
	opts      Options
}

// New creates a chunker with the given embedder and options.
func New(embedder Embedder, opts Options) *Chunker {
	if opts.SimilarityThreshold == 0 {
		opts.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if opts.SentenceOverlap < 0 {
		opts.SentenceOverlap = DefaultSentenceOverlap
	}
	return &Chunker{
		segmenter: NewSegmenter(opts.MaxSentenceChars, opts.FallbackChunkSize, opts.FallbackChunkOverlap),
		embedder:  embedder,
		opts:      opts,
	}
}

// Chunk splits text into semantically coherent chunks. Adjacent units whose
// embedding similarity stays at or above the threshold are grouped into one
// chunk; each chunk after the first is prefixed with the trailing overlap
// units of its predecessor. An input producing zero non-empty units yields
// zero chunks without error.
func (c *Chunker) Chunk(ctx context.Context, text string) ([]string, error) {
	units := c.segmenter.Segment(text)
	if len(units) == 0 {
		return nil, nil
	}
	if len(units) == 1 {
		return []string{units[0]}, nil
	}

	vectors, err := c.embedder.EmbedBatch(ctx, units)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %d units: %w", len(units), err)
	}
	if len(vectors) != len(units) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d units", len(vectors), len(units))
	}

	var chunks []string
	runStart := 0
	emit := func(start, end int) {
		lead := start - c.opts.SentenceOverlap
		if lead < 0 {
			lead = 0
		}
		joined := strings.Join(units[lead:end], " ")
		if strings.TrimSpace(joined) != "" {
			chunks = append(chunks, joined)
		}
	}

	for i := 0; i+1 < len(units); i++ {
		if CosineSimilarity(vectors[i], vectors[i+1]) < c.opts.SimilarityThreshold {
			emit(runStart, i+1)
			runStart = i + 1
		}
	}
	emit(runStart, len(units))

	return chunks, nil
}

// Segment exposes the underlying sentence segmentation.
func (c *Chunker) Segment(text string) []string {
	return c.segmenter.Segment(text)
}

// CosineSimilarity returns the cosine similarity of two vectors. Mismatched
// lengths or zero vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
