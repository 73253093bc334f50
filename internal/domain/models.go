// Package domain provides domain models and business logic for the Research Assistant Service.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DocumentStatus represents the processing lifecycle of an uploaded document.
// These values must match the database enum document_status.
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// IsTerminal returns true if the status represents a final state that will not change.
func (s DocumentStatus) IsTerminal() bool {
	return s == DocumentStatusCompleted || s == DocumentStatusFailed
}

// ReviewStatus represents the lifecycle states of a literature review job.
// These values must match the database enum review_status.
type ReviewStatus string

const (
	ReviewStatusPending      ReviewStatus = "pending"
	ReviewStatusSearching    ReviewStatus = "searching"
	ReviewStatusSummarizing  ReviewStatus = "summarizing"
	ReviewStatusSynthesizing ReviewStatus = "synthesizing"
	ReviewStatusCompleted    ReviewStatus = "completed"
	ReviewStatusFailed       ReviewStatus = "failed"
)

// IsTerminal returns true if the status represents a final state that will not change.
func (s ReviewStatus) IsTerminal() bool {
	return s == ReviewStatusCompleted || s == ReviewStatusFailed
}

// Document represents an ingested scholarly document.
type Document struct {
	ID       uuid.UUID `json:"id"`
	OwnerID  string    `json:"owner_id"`
	Filename string    `json:"filename"`

	// Status tracks the ingestion lifecycle (pending -> processing -> completed|failed).
	Status DocumentStatus `json:"status"`

	// Interactive marks whether the document is eligible for ad-hoc chunk
	// queries. False while only review-lite processing has run, so partially
	// processed documents are never exposed to Q&A.
	Interactive bool `json:"interactive"`

	// StructuredData holds the LLM-extracted summary fields. Nil until
	// extraction has been attempted; see StructuredData.Usable.
	StructuredData *StructuredData `json:"structured_data,omitempty"`

	// ErrorMessage holds a human-readable failure reason when Status is failed.
	ErrorMessage string `json:"error_message,omitempty"`

	UploadedAt time.Time `json:"uploaded_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// StructuredData holds the structured summary extracted from a document's text.
// Stored as JSONB. A non-empty Error marks a failed extraction attempt whose
// partial value (chunks) is still retained.
type StructuredData struct {
	Methodology string `json:"methodology,omitempty"`
	Dataset     string `json:"dataset,omitempty"`
	KeyFindings string `json:"key_findings,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Usable returns true if the extraction succeeded and produced key findings,
// making the document eligible as a synthesis source.
func (s *StructuredData) Usable() bool {
	return s != nil && s.Error == "" && strings.TrimSpace(s.KeyFindings) != ""
}

// TextChunk is a retrieval-sized span of a document's text. Chunks are
// produced in document order; Ordinal preserves that order.
type TextChunk struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	Ordinal    int       `json:"ordinal"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// Citation represents one parsed bibliography entry of a document.
type Citation struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	Title      string    `json:"title"`
	Authors    []string  `json:"authors"`
	Year       int       `json:"year,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// LiteratureReview represents a multi-document literature review job.
type LiteratureReview struct {
	ID      uuid.UUID `json:"id"`
	OwnerID string    `json:"owner_id"`

	// Topic is the research topic the review covers.
	Topic string `json:"topic"`

	Status ReviewStatus `json:"status"`

	// Result holds the final review text once Status is completed, or the
	// failure reason once Status is failed. Empty until terminal.
	Result string `json:"result,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsActive returns true if the review job is still in progress.
func (r *LiteratureReview) IsActive() bool {
	return !r.Status.IsTerminal()
}

// PaperRef is a candidate paper returned by an external paper search.
// The citation metadata captured here at search time feeds the review's
// reference list, independent of whatever citation extraction later produces.
type PaperRef struct {
	Title   string   `json:"title"`
	Authors []string `json:"authors"`
	Summary string   `json:"summary"`
	PDFURL  string   `json:"pdf_url"`
	Year    int      `json:"year"`
}

// CitationInfo is the search-time bibliographic metadata for a source paper.
type CitationInfo struct {
	Title   string   `json:"title"`
	Authors []string `json:"authors"`
	Year    int      `json:"year"`
}

// AuthorsLine renders the author list for a reference entry.
func (c CitationInfo) AuthorsLine() string {
	if len(c.Authors) == 0 {
		return "Unknown authors"
	}
	return strings.Join(c.Authors, ", ")
}

// SourceSummary is one synthesis input: a document's structured summary
// augmented with the search-time citation metadata of its originating paper.
type SourceSummary struct {
	Filename   string         `json:"filename"`
	Structured StructuredData `json:"structured_data"`
	Citation   CitationInfo   `json:"citation"`
}

// Theme is an LLM-discovered grouping of source documents sharing a
// conceptual thread, used as one section of the synthesized review.
type Theme struct {
	// Name is the theme heading.
	Name string `json:"theme_name"`

	// SourceOrdinals are 1-based indices into the summaries list passed to
	// synthesis. The LLM gives no bounds guarantee; callers must validate.
	SourceOrdinals []int `json:"source_ordinals"`
}
