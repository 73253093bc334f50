// Package synthesis assembles multi-document literature reviews: an LLM theme
// outline, one concurrently written paragraph per theme, and a reference list
// covering every source.
package synthesis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/scholarsynth/research-assistant-service/internal/domain"
	"github.com/scholarsynth/research-assistant-service/internal/llm"
	"github.com/scholarsynth/research-assistant-service/internal/observability"
)

// Orchestrator synthesizes a literature review from per-document summaries.
type Orchestrator struct {
	client  llm.Client
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewOrchestrator creates a synthesis orchestrator.
func NewOrchestrator(client llm.Client, metrics *observability.Metrics, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		client:  client,
		metrics: metrics,
		logger:  logger.With().Str("component", "synthesis").Logger(),
	}
}

// Synthesize produces the full review document for a topic from the given
// source summaries. Summaries are addressed by their 1-based ordinal
// throughout: in the theme outline, in paragraph citations, and in the
// reference list.
func (o *Orchestrator) Synthesize(ctx context.Context, topic string, summaries []domain.SourceSummary) (string, error) {
	if len(summaries) == 0 {
		return "", fmt.Errorf("synthesis requires at least one summary: %w", domain.ErrNoUsableSummaries)
	}

	themes, err := o.buildOutline(ctx, topic, summaries)
	if err != nil {
		return "", err
	}

	paragraphs := o.writeParagraphs(ctx, topic, themes, summaries)

	failed := 0
	for _, p := range paragraphs {
		if p == "" {
			failed++
		}
	}
	if failed == len(themes) {
		return "", fmt.Errorf("all %d theme paragraphs failed", len(themes))
	}

	return assemble(topic, themes, paragraphs, summaries), nil
}

// buildOutline runs thematic analysis and validates the returned ordinals.
// Ordinals outside [1, len(summaries)] are dropped; a theme left with no
// valid ordinals is skipped entirely.
func (o *Orchestrator) buildOutline(ctx context.Context, topic string, summaries []domain.SourceSummary) ([]domain.Theme, error) {
	tagged := make([]string, 0, len(summaries))
	for i, s := range summaries {
		tagged = append(tagged, fmt.Sprintf("[%d] %s", i+1, s.Structured.KeyFindings))
	}

	o.metrics.LLMRequestsTotal.WithLabelValues("synthesize_themes", o.client.Model()).Inc()
	start := time.Now()
	themes, err := llm.SynthesizeThemes(ctx, o.client, topic, tagged)
	o.metrics.LLMRequestDuration.WithLabelValues("synthesize_themes").Observe(time.Since(start).Seconds())
	if err != nil {
		o.metrics.LLMRequestsFailed.WithLabelValues("synthesize_themes", o.client.Model()).Inc()
		return nil, err
	}

	valid := make([]domain.Theme, 0, len(themes))
	for _, theme := range themes {
		ordinals := make([]int, 0, len(theme.SourceOrdinals))
		for _, n := range theme.SourceOrdinals {
			if n >= 1 && n <= len(summaries) {
				ordinals = append(ordinals, n)
			}
		}
		if len(ordinals) == 0 {
			o.logger.Warn().Str("theme", theme.Name).Msg("dropping theme with no valid source ordinals")
			continue
		}
		valid = append(valid, domain.Theme{Name: theme.Name, SourceOrdinals: ordinals})
	}
	if len(valid) == 0 {
		return nil, domain.ErrNoThemes
	}
	return valid, nil
}

// writeParagraphs dispatches one paragraph task per theme. Each goroutine
// writes only to its own output slot; a failed theme leaves its slot empty.
func (o *Orchestrator) writeParagraphs(ctx context.Context, topic string, themes []domain.Theme, summaries []domain.SourceSummary) []string {
	paragraphs := make([]string, len(themes))

	var wg sync.WaitGroup
	for i, theme := range themes {
		wg.Add(1)
		go func(i int, theme domain.Theme) {
			defer wg.Done()

			o.metrics.LLMRequestsTotal.WithLabelValues("write_paragraph", o.client.Model()).Inc()
			start := time.Now()
			paragraph, err := llm.WriteThemeParagraph(ctx, o.client, topic, theme.Name, sourcesBlock(theme, summaries))
			o.metrics.LLMRequestDuration.WithLabelValues("write_paragraph").Observe(time.Since(start).Seconds())
			if err != nil {
				o.metrics.LLMRequestsFailed.WithLabelValues("write_paragraph", o.client.Model()).Inc()
				o.logger.Warn().Err(err).Str("theme", theme.Name).Msg("theme paragraph generation failed")
				return
			}
			paragraphs[i] = paragraph
		}(i, theme)
	}
	wg.Wait()

	return paragraphs
}

// sourcesBlock renders the summaries a theme covers, tagged by ordinal, as the
// source material for its paragraph.
func sourcesBlock(theme domain.Theme, summaries []domain.SourceSummary) string {
	var b strings.Builder
	for _, n := range theme.SourceOrdinals {
		s := summaries[n-1]
		fmt.Fprintf(&b, "[%d] %s (%s, %s)\n", n, s.Citation.Title, s.Citation.AuthorsLine(), yearLabel(s.Citation.Year))
		if s.Structured.Methodology != "" {
			fmt.Fprintf(&b, "    Methodology: %s\n", s.Structured.Methodology)
		}
		if s.Structured.Dataset != "" {
			fmt.Fprintf(&b, "    Dataset: %s\n", s.Structured.Dataset)
		}
		fmt.Fprintf(&b, "    Key findings: %s\n", s.Structured.KeyFindings)
	}
	return b.String()
}

// assemble concatenates the title, one section per theme in outline order,
// and a References section listing every summary in ordinal order. The
// reference list always covers all summaries so that any bracketed citation
// in any paragraph resolves.
func assemble(topic string, themes []domain.Theme, paragraphs []string, summaries []domain.SourceSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Literature Review: %s\n\n", topic)

	for i, theme := range themes {
		fmt.Fprintf(&b, "## %s\n\n", theme.Name)
		if paragraphs[i] == "" {
			b.WriteString("A synthesized discussion of this theme is unavailable.\n\n")
			continue
		}
		b.WriteString(paragraphs[i])
		b.WriteString("\n\n")
	}

	b.WriteString("## References\n\n")
	for i, s := range summaries {
		fmt.Fprintf(&b, "[%d] %s (%s). %s.\n", i+1, s.Citation.AuthorsLine(), yearLabel(s.Citation.Year), s.Citation.Title)
	}

	return b.String()
}

// yearLabel renders a publication year, using "n.d." when unknown.
func yearLabel(year int) string {
	if year <= 0 {
		return "n.d."
	}
	return fmt.Sprintf("%d", year)
}
