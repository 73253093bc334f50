package httpserver

import (
	"time"

	"github.com/scholarsynth/research-assistant-service/internal/domain"
)

// Response types for JSON serialization.

type documentResponse struct {
	ID             string                  `json:"id"`
	Filename       string                  `json:"filename"`
	Status         string                  `json:"status"`
	Interactive    bool                    `json:"interactive"`
	StructuredData *structuredDataResponse `json:"structured_data,omitempty"`
	ErrorMessage   string                  `json:"error_message,omitempty"`
	UploadedAt     time.Time               `json:"uploaded_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

type structuredDataResponse struct {
	Methodology string `json:"methodology,omitempty"`
	Dataset     string `json:"dataset,omitempty"`
	KeyFindings string `json:"key_findings,omitempty"`
	Error       string `json:"error,omitempty"`
}

type listDocumentsResponse struct {
	Documents  []documentResponse `json:"documents"`
	TotalCount int                `json:"total_count"`
}

type chunkResponse struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Ordinal    int       `json:"ordinal"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

type listChunksResponse struct {
	DocumentID string          `json:"document_id"`
	Chunks     []chunkResponse `json:"chunks"`
	TotalCount int             `json:"total_count"`
}

type citationResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Authors   []string  `json:"authors"`
	Year      int       `json:"year,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type listCitationsResponse struct {
	DocumentID string             `json:"document_id"`
	Citations  []citationResponse `json:"citations"`
	TotalCount int                `json:"total_count"`
}

type searchHitResponse struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Ordinal    int     `json:"ordinal"`
	Text       string  `json:"text"`
	Score      float32 `json:"score"`
}

type searchResponse struct {
	Query      string              `json:"query"`
	Hits       []searchHitResponse `json:"hits"`
	TotalCount int                 `json:"total_count"`
}

type reviewResponse struct {
	ID          string     `json:"id"`
	Topic       string     `json:"topic"`
	Status      string     `json:"status"`
	Result      string     `json:"result,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type listReviewsResponse struct {
	Reviews    []reviewResponse `json:"reviews"`
	TotalCount int              `json:"total_count"`
}

// Converter functions

func documentToResponse(doc *domain.Document) documentResponse {
	resp := documentResponse{
		ID:           doc.ID.String(),
		Filename:     doc.Filename,
		Status:       string(doc.Status),
		Interactive:  doc.Interactive,
		ErrorMessage: doc.ErrorMessage,
		UploadedAt:   doc.UploadedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
	if doc.StructuredData != nil {
		resp.StructuredData = &structuredDataResponse{
			Methodology: doc.StructuredData.Methodology,
			Dataset:     doc.StructuredData.Dataset,
			KeyFindings: doc.StructuredData.KeyFindings,
			Error:       doc.StructuredData.Error,
		}
	}
	return resp
}

func chunkToResponse(chunk *domain.TextChunk) chunkResponse {
	return chunkResponse{
		ID:         chunk.ID.String(),
		DocumentID: chunk.DocumentID.String(),
		Ordinal:    chunk.Ordinal,
		Text:       chunk.Text,
		CreatedAt:  chunk.CreatedAt,
	}
}

func citationToResponse(citation *domain.Citation) citationResponse {
	return citationResponse{
		ID:        citation.ID.String(),
		Title:     citation.Title,
		Authors:   citation.Authors,
		Year:      citation.Year,
		CreatedAt: citation.CreatedAt,
	}
}

func reviewToResponse(review *domain.LiteratureReview) reviewResponse {
	return reviewResponse{
		ID:          review.ID.String(),
		Topic:       review.Topic,
		Status:      string(review.Status),
		Result:      review.Result,
		CreatedAt:   review.CreatedAt,
		UpdatedAt:   review.UpdatedAt,
		CompletedAt: review.CompletedAt,
	}
}
