package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/scholarsynth/research-assistant-service/internal/domain"
)

// Input truncation limits. Scholarly PDFs routinely exceed model context
// windows; extraction prompts only need the leading portion of the text.
const (
	maxStructuredInputChars = 16000
	maxCitationInputChars   = 12000
	maxFindingsChars        = 2000
)

// filterResponse is the expected JSON shape of the relevance filter response.
type filterResponse struct {
	Titles []string `json:"titles"`
}

// structuredResponse is the expected JSON shape of structured-data extraction.
type structuredResponse struct {
	Methodology string `json:"methodology"`
	Dataset     string `json:"dataset"`
	KeyFindings string `json:"key_findings"`
}

// citationsResponse is the expected JSON shape of citation extraction.
type citationsResponse struct {
	Citations []citationEntry `json:"citations"`
}

// citationEntry is a single extracted citation.
type citationEntry struct {
	Title   string   `json:"title"`
	Authors []string `json:"authors"`
	Year    int      `json:"year"`
}

// themesResponse is the expected JSON shape of thematic analysis.
type themesResponse struct {
	Themes []domain.Theme `json:"themes"`
}

// FilterRelevantPapers asks the LLM to narrow candidate papers to the target
// most relevant titles for the topic. An empty or unparseable response is an
// error; the caller treats it as a hard failure of the review job.
func FilterRelevantPapers(ctx context.Context, client Client, topic string, papers []domain.PaperRef, target int) ([]string, error) {
	if len(papers) == 0 {
		return nil, domain.ErrNoSearchResults
	}

	var b strings.Builder
	for i, p := range papers {
		fmt.Fprintf(&b, "%d. Title: %s\n   Abstract: %s\n", i+1, p.Title, truncate(p.Summary, 600))
	}

	prompt := fmt.Sprintf(`Research topic: %q

Candidate papers:
%s
Select the %d papers most relevant to the research topic. Respond with a JSON object of the form {"titles": ["exact title 1", "exact title 2"]}, repeating each selected title exactly as given above.`,
		topic, b.String(), target)

	resp, err := client.Complete(ctx, Request{
		System:   "You are a research librarian selecting the most relevant papers for a literature review. Respond only with JSON.",
		Prompt:   prompt,
		JSONMode: true,
	})
	if err != nil {
		return nil, fmt.Errorf("relevance filter request failed: %w", err)
	}

	var parsed filterResponse
	if err := decodeJSONResponse(resp.Text, &parsed); err != nil {
		return nil, fmt.Errorf("relevance filter returned unparseable response: %w", err)
	}
	if len(parsed.Titles) == 0 {
		return nil, fmt.Errorf("relevance filter returned no titles")
	}
	return parsed.Titles, nil
}

// ExtractStructuredData asks the LLM for the methodology, dataset description,
// and key findings of a paper's text.
func ExtractStructuredData(ctx context.Context, client Client, text string) (*domain.StructuredData, error) {
	prompt := fmt.Sprintf(`Extract the following from this research paper text:
- methodology: the research method used, in 1-2 sentences
- dataset: the dataset or experimental setup, in 1-2 sentences (empty string if none described)
- key_findings: the main results and conclusions, in 2-4 sentences

Respond with a JSON object of the form {"methodology": "...", "dataset": "...", "key_findings": "..."}.

Paper text:
%s`, truncate(text, maxStructuredInputChars))

	resp, err := client.Complete(ctx, Request{
		System:   "You extract structured metadata from scholarly papers. Respond only with JSON.",
		Prompt:   prompt,
		JSONMode: true,
	})
	if err != nil {
		return nil, fmt.Errorf("structured-data extraction request failed: %w", err)
	}

	var parsed structuredResponse
	if err := decodeJSONResponse(resp.Text, &parsed); err != nil {
		return nil, fmt.Errorf("structured-data extraction returned unparseable response: %w", err)
	}
	if strings.TrimSpace(parsed.KeyFindings) == "" {
		return nil, fmt.Errorf("structured-data extraction returned no key findings")
	}

	return &domain.StructuredData{
		Methodology: parsed.Methodology,
		Dataset:     parsed.Dataset,
		KeyFindings: parsed.KeyFindings,
	}, nil
}

// ExtractCitations asks the LLM to parse the references section of a paper
// into citation records.
func ExtractCitations(ctx context.Context, client Client, referenceText string) ([]domain.CitationInfo, error) {
	prompt := fmt.Sprintf(`Parse the bibliography entries in this references section. For each entry extract the cited work's title, author names, and publication year (0 if unknown).

Respond with a JSON object of the form {"citations": [{"title": "...", "authors": ["..."], "year": 2020}]}.

References section:
%s`, truncate(referenceText, maxCitationInputChars))

	resp, err := client.Complete(ctx, Request{
		System:   "You parse bibliographies of scholarly papers. Respond only with JSON.",
		Prompt:   prompt,
		JSONMode: true,
	})
	if err != nil {
		return nil, fmt.Errorf("citation extraction request failed: %w", err)
	}

	var parsed citationsResponse
	if err := decodeJSONResponse(resp.Text, &parsed); err != nil {
		return nil, fmt.Errorf("citation extraction returned unparseable response: %w", err)
	}

	citations := make([]domain.CitationInfo, 0, len(parsed.Citations))
	for _, entry := range parsed.Citations {
		if strings.TrimSpace(entry.Title) == "" {
			continue
		}
		citations = append(citations, domain.CitationInfo{
			Title:   entry.Title,
			Authors: entry.Authors,
			Year:    entry.Year,
		})
	}
	return citations, nil
}

// SynthesizeThemes asks the LLM to group the tagged key findings into 2-4
// themes, each naming the 1-based ordinals of the summaries it covers.
// Returned ordinals are not bounds-checked here; the caller must validate
// them against its summaries list.
func SynthesizeThemes(ctx context.Context, client Client, topic string, taggedFindings []string) ([]domain.Theme, error) {
	if len(taggedFindings) == 0 {
		return nil, domain.ErrNoThemes
	}

	var b strings.Builder
	for _, f := range taggedFindings {
		b.WriteString(truncate(f, maxFindingsChars))
		b.WriteString("\n")
	}

	prompt := fmt.Sprintf(`Research topic: %q

Key findings from the reviewed papers, tagged by source number:
%s
Group these findings into 2 to 4 themes for a literature review. Respond with a JSON object of the form {"themes": [{"theme_name": "...", "source_ordinals": [1, 3]}]}, where source_ordinals lists the source numbers covered by each theme.`,
		topic, b.String())

	resp, err := client.Complete(ctx, Request{
		System:   "You are a research synthesis assistant organizing findings into themes. Respond only with JSON.",
		Prompt:   prompt,
		JSONMode: true,
	})
	if err != nil {
		return nil, fmt.Errorf("thematic analysis request failed: %w", err)
	}

	var parsed themesResponse
	if err := decodeJSONResponse(resp.Text, &parsed); err != nil {
		return nil, fmt.Errorf("thematic analysis returned unparseable response: %w", err)
	}

	themes := make([]domain.Theme, 0, len(parsed.Themes))
	for _, theme := range parsed.Themes {
		if strings.TrimSpace(theme.Name) == "" || len(theme.SourceOrdinals) == 0 {
			continue
		}
		themes = append(themes, theme)
	}
	if len(themes) == 0 {
		return nil, domain.ErrNoThemes
	}
	return themes, nil
}

// WriteThemeParagraph asks the LLM for one literature-review paragraph on a
// theme, citing sources by their bracketed ordinal (e.g. "[3]"). The sources
// argument is a pre-formatted block describing each source under the theme.
func WriteThemeParagraph(ctx context.Context, client Client, topic, themeName, sources string) (string, error) {
	prompt := fmt.Sprintf(`Research topic: %q
Theme: %q

Sources for this theme:
%s

Write one cohesive literature-review paragraph about this theme. Cite sources inline using their bracketed number, e.g. [3]. Do not add headings or a reference list; return only the paragraph text.`,
		topic, themeName, sources)

	resp, err := client.Complete(ctx, Request{
		System: "You are an academic writer drafting a literature review.",
		Prompt: prompt,
	})
	if err != nil {
		return "", fmt.Errorf("theme paragraph request failed: %w", err)
	}

	paragraph := strings.TrimSpace(resp.Text)
	if paragraph == "" {
		return "", fmt.Errorf("theme paragraph response was empty")
	}
	return paragraph, nil
}

// decodeJSONResponse parses an LLM response as JSON, tolerating markdown code
// fences that models without a native JSON mode sometimes emit.
func decodeJSONResponse(text string, v interface{}) error {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return json.Unmarshal([]byte(text), v)
}

// truncate limits s to at most n bytes, backing off to a rune boundary so a
// cut through a multi-byte rune never feeds invalid UTF-8 into a prompt.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
