package chunker

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seqEmbedder returns a fixed vector per unit, in segmentation order.
type seqEmbedder struct {
	vectors [][]float32
	err     error
	calls   int
}

func (s *seqEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(texts) > len(s.vectors) {
		return nil, errors.New("not enough stub vectors")
	}
	return s.vectors[:len(texts)], nil
}

// unitVector returns a 2D unit vector at the given angle in radians, so the
// cosine similarity of two stub vectors is exactly the cosine of the angle
// between them.
func unitVector(angle float64) []float32 {
	return []float32{float32(math.Cos(angle)), float32(math.Sin(angle))}
}

func TestSegmenter(t *testing.T) {
	t.Run("splits on sentence boundaries", func(t *testing.T) {
		s := NewSegmenter(0, 0, 0)
		units := s.Segment("Cats are small. Dogs are big! Are birds fast?")

		require.Len(t, units, 3)
		assert.Equal(t, "Cats are small.", units[0])
		assert.Equal(t, "Dogs are big!", units[1])
		assert.Equal(t, "Are birds fast?", units[2])
	})

	t.Run("strips null bytes", func(t *testing.T) {
		s := NewSegmenter(0, 0, 0)
		units := s.Segment("Cats\x00 are small.\x00")

		require.Len(t, units, 1)
		assert.Equal(t, "Cats are small.", units[0])
	})

	t.Run("empty and whitespace input yield no units", func(t *testing.T) {
		s := NewSegmenter(0, 0, 0)
		assert.Empty(t, s.Segment(""))
		assert.Empty(t, s.Segment("   \n\t  "))
	})

	t.Run("long sentence falls back to fixed windows", func(t *testing.T) {
		s := NewSegmenter(50, 30, 10)
		sentence := strings.Repeat("lorem ipsum dolor sit amet ", 10) + "end."
		units := s.Segment(sentence)

		require.Greater(t, len(units), 1)
		for _, u := range units {
			assert.LessOrEqual(t, len(u), 30, "window %q exceeds fallback size", u)
		}
		joined := strings.Join(units, " ")
		for _, word := range strings.Fields(sentence) {
			assert.Contains(t, joined, word)
		}
	})

	t.Run("windows never start mid-word", func(t *testing.T) {
		s := NewSegmenter(50, 30, 10)
		sentences := []string{
			strings.Repeat("alpha bravo charlie delta echo ", 8) + "omega.",
			// Words longer than the overlap leave no boundary to snap
			// forward to; the splitter must resume at the previous cut.
			strings.Repeat("extraordinaryA extraordinaryB extraordinaryC ", 6) + "finale.",
			// A single DOI-like token longer than the overlap mid-sentence.
			strings.Repeat("small word run ", 5) + "doi:10.1000/jpone.01234 " + strings.Repeat("small word run ", 5) + "tail.",
		}
		for _, sentence := range sentences {
			units := s.Segment(sentence)
			require.NotEmpty(t, units)

			words := map[string]bool{}
			for _, w := range strings.Fields(sentence) {
				words[w] = true
			}
			for _, u := range units {
				first := strings.Fields(u)[0]
				assert.True(t, words[first], "window starts with partial word %q", first)
			}
		}
	})

	t.Run("unbroken token is hard cut", func(t *testing.T) {
		s := NewSegmenter(50, 30, 10)
		units := s.Segment(strings.Repeat("x", 100) + ".")

		require.NotEmpty(t, units)
		for _, u := range units {
			assert.LessOrEqual(t, len(u), 30)
		}
		assert.True(t, strings.HasSuffix(units[len(units)-1], "."))
	})
}

func TestChunker(t *testing.T) {
	ctx := context.Background()

	t.Run("empty input yields no chunks without embedding", func(t *testing.T) {
		emb := &seqEmbedder{}
		c := New(emb, DefaultOptions())

		chunks, err := c.Chunk(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, chunks)
		assert.Zero(t, emb.calls)
	})

	t.Run("single sentence yields one chunk equal to the unit", func(t *testing.T) {
		emb := &seqEmbedder{}
		c := New(emb, DefaultOptions())

		chunks, err := c.Chunk(ctx, "Cats are small.")
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, "Cats are small.", chunks[0])
		assert.Zero(t, emb.calls)
	})

	t.Run("three similar sentences yield one chunk", func(t *testing.T) {
		emb := &seqEmbedder{vectors: [][]float32{
			unitVector(0),
			unitVector(0.1),
			unitVector(0.2),
		}}
		c := New(emb, DefaultOptions())

		chunks, err := c.Chunk(ctx, "Cats are small. Cats are fluffy. Cats sleep a lot.")
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, "Cats are small. Cats are fluffy. Cats sleep a lot.", chunks[0])
	})

	t.Run("similarity drop splits with one sentence overlap", func(t *testing.T) {
		// Orthogonal vectors between sentences 2 and 3 force a boundary there.
		emb := &seqEmbedder{vectors: [][]float32{
			unitVector(0),
			unitVector(0),
			unitVector(math.Pi / 2),
			unitVector(math.Pi / 2),
		}}
		c := New(emb, DefaultOptions())

		chunks, err := c.Chunk(ctx, "Cats are small. Cats are fluffy. Rockets burn fuel. Rockets fly fast.")
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, "Cats are small. Cats are fluffy.", chunks[0])
		assert.Equal(t, "Cats are fluffy. Rockets burn fuel. Rockets fly fast.", chunks[1])
	})

	t.Run("raising the threshold never decreases chunk count", func(t *testing.T) {
		// Adjacent similarities are exactly cos of the angle deltas:
		// 0.9, 0.6, 0.3.
		angles := []float64{0}
		for _, sim := range []float64{0.9, 0.6, 0.3} {
			angles = append(angles, angles[len(angles)-1]+math.Acos(sim))
		}
		vectors := make([][]float32, len(angles))
		for i, a := range angles {
			vectors[i] = unitVector(a)
		}
		text := "One is first. Two is second. Three is third. Four is fourth."

		prev := 0
		for _, threshold := range []float64{0.2, 0.5, 0.7, 0.95} {
			opts := DefaultOptions()
			opts.SimilarityThreshold = threshold
			c := New(&seqEmbedder{vectors: vectors}, opts)

			chunks, err := c.Chunk(ctx, text)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, len(chunks), prev, "threshold %v", threshold)
			prev = len(chunks)
		}
		assert.Equal(t, 4, prev)
	})

	t.Run("every unit is covered by some chunk", func(t *testing.T) {
		emb := &seqEmbedder{vectors: [][]float32{
			unitVector(0),
			unitVector(math.Pi / 2),
			unitVector(0),
			unitVector(math.Pi / 2),
		}}
		c := New(emb, DefaultOptions())

		text := "One is first. Two is second. Three is third. Four is fourth."
		chunks, err := c.Chunk(ctx, text)
		require.NoError(t, err)

		joined := strings.Join(chunks, " ")
		for _, unit := range []string{"One is first.", "Two is second.", "Three is third.", "Four is fourth."} {
			assert.Contains(t, joined, unit)
		}
	})

	t.Run("trailing overlap units lead the next chunk", func(t *testing.T) {
		emb := &seqEmbedder{vectors: [][]float32{
			unitVector(0),
			unitVector(0),
			unitVector(math.Pi / 2),
			unitVector(math.Pi / 2),
		}}
		opts := DefaultOptions()
		opts.SentenceOverlap = 2
		c := New(emb, opts)

		chunks, err := c.Chunk(ctx, "One is first. Two is second. Three is third. Four is fourth.")
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.True(t, strings.HasPrefix(chunks[1], "One is first. Two is second."),
			"chunk %q missing overlap prefix", chunks[1])
	})

	t.Run("embedder failure propagates", func(t *testing.T) {
		emb := &seqEmbedder{err: errors.New("embedding service down")}
		c := New(emb, DefaultOptions())

		_, err := c.Chunk(ctx, "Cats are small. Dogs are big.")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "embedding service down")
	})
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}))
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 0}))
}
