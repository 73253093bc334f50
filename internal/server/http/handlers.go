package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/scholarsynth/research-assistant-service/internal/domain"
)

// Validation and search constants.
const (
	maxRequestBodySize = 1 << 20 // 1 MB limit for JSON request bodies
	defaultTopK        = 5
	maxTopK            = 20
)

// searchRequest is the JSON request body for semantic chunk search.
type searchRequest struct {
	Query string `json:"query" validate:"required,min=3,max=1000"`
	TopK  int    `json:"top_k" validate:"omitempty,min=1,max=20"`
}

// createReviewRequest is the JSON request body for starting a literature review.
type createReviewRequest struct {
	Topic string `json:"topic" validate:"required,min=3,max=500"`
}

// uploadDocument handles POST /documents. It accepts a multipart PDF upload,
// creates a pending document record, and kicks off ingestion in the background.
func (s *Server) uploadDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerFromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds the %d byte limit", s.maxUploadBytes))
			return
		}
		writeError(w, http.StatusBadRequest, `multipart field "file" is required`)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}
	if len(content) == 0 {
		writeError(w, http.StatusBadRequest, "uploaded file is empty")
		return
	}

	filename := filepath.Base(header.Filename)
	if filename == "." || filename == string(filepath.Separator) || filename == "" {
		filename = "document.pdf"
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		ID:         uuid.New(),
		OwnerID:    owner,
		Filename:   filename,
		Status:     domain.DocumentStatusPending,
		UploadedAt: now,
		UpdatedAt:  now,
	}

	if err := s.docs.Create(ctx, doc); err != nil {
		writeDomainError(w, err)
		return
	}

	go s.runIngestion(doc.ID, content)

	writeJSON(w, http.StatusAccepted, documentToResponse(doc))
}

// runIngestion executes the pipeline detached from the request context; the
// upload response returns before processing finishes.
func (s *Server) runIngestion(documentID uuid.UUID, content []byte) {
	if err := s.ingester.Ingest(context.Background(), documentID, content); err != nil {
		s.logger.Error().Err(err).Str("document_id", documentID.String()).Msg("background ingestion failed")
	}
}

// listDocuments handles GET /documents.
func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerFromContext(ctx)

	docs, err := s.docs.ListByOwner(ctx, owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]documentResponse, len(docs))
	for i, doc := range docs {
		out[i] = documentToResponse(doc)
	}
	writeJSON(w, http.StatusOK, listDocumentsResponse{Documents: out, TotalCount: len(out)})
}

// getDocument handles GET /documents/{documentID}.
func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.ownedDocument(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, documentToResponse(doc))
}

// deleteDocument handles DELETE /documents/{documentID}. Postgres rows go
// first so the document disappears from the API atomically; a failed vector
// cleanup leaves orphaned points that can never surface in results, since
// hits are re-checked against the documents table.
func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.ownedDocument(w, r)
	if !ok {
		return
	}

	if err := s.docs.Delete(r.Context(), doc.ID); err != nil {
		writeDomainError(w, err)
		return
	}

	if err := s.vectors.DeleteDocument(r.Context(), doc.ID); err != nil {
		s.logger.Error().Err(err).Str("document_id", doc.ID.String()).Msg("vector cleanup failed")
	}

	w.WriteHeader(http.StatusNoContent)
}

// getDocumentChunks handles GET /documents/{documentID}/chunks.
func (s *Server) getDocumentChunks(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.ownedDocument(w, r)
	if !ok {
		return
	}

	chunks, err := s.docs.ListChunks(r.Context(), doc.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]chunkResponse, len(chunks))
	for i, chunk := range chunks {
		out[i] = chunkToResponse(chunk)
	}
	writeJSON(w, http.StatusOK, listChunksResponse{DocumentID: doc.ID.String(), Chunks: out, TotalCount: len(out)})
}

// getDocumentCitations handles GET /documents/{documentID}/citations.
func (s *Server) getDocumentCitations(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.ownedDocument(w, r)
	if !ok {
		return
	}

	citations, err := s.docs.ListCitations(r.Context(), doc.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]citationResponse, len(citations))
	for i, citation := range citations {
		out[i] = citationToResponse(citation)
	}
	writeJSON(w, http.StatusOK, listCitationsResponse{DocumentID: doc.ID.String(), Citations: out, TotalCount: len(out)})
}

// searchChunks handles POST /search. It embeds the query, runs a vector
// similarity search, and returns matching chunks from the caller's
// interactive documents.
func (s *Server) searchChunks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerFromContext(ctx)

	var req searchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if !s.validateRequest(w, &req) {
		return
	}
	topK := req.TopK
	if topK == 0 {
		topK = defaultTopK
	}

	vector, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		s.logger.Error().Err(err).Msg("query embedding failed")
		writeError(w, http.StatusServiceUnavailable, "embedding service unavailable")
		return
	}

	matches, err := s.vectors.Search(ctx, vector, uint64(topK))
	if err != nil {
		s.logger.Error().Err(err).Msg("vector search failed")
		writeError(w, http.StatusServiceUnavailable, "vector search unavailable")
		return
	}

	ids := make([]uuid.UUID, 0, len(matches))
	scores := make(map[uuid.UUID]float32, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ChunkID)
		scores[m.ChunkID] = m.Score
	}

	chunks, err := s.docs.GetChunksByIDs(ctx, ids)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// Results are filtered to the caller's interactive documents so chunks
	// from review-lite or partially processed documents never surface.
	hits := make([]searchHitResponse, 0, len(chunks))
	docCache := make(map[uuid.UUID]*domain.Document)
	for _, chunk := range chunks {
		doc, cached := docCache[chunk.DocumentID]
		if !cached {
			doc, err = s.docs.GetByID(ctx, chunk.DocumentID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					continue
				}
				writeDomainError(w, err)
				return
			}
			docCache[chunk.DocumentID] = doc
		}
		if doc.OwnerID != owner || !doc.Interactive || doc.Status != domain.DocumentStatusCompleted {
			continue
		}
		hits = append(hits, searchHitResponse{
			ChunkID:    chunk.ID.String(),
			DocumentID: chunk.DocumentID.String(),
			Filename:   doc.Filename,
			Ordinal:    chunk.Ordinal,
			Text:       chunk.Text,
			Score:      scores[chunk.ID],
		})
	}

	writeJSON(w, http.StatusOK, searchResponse{Query: req.Query, Hits: hits, TotalCount: len(hits)})
}

// searchDocumentChunks handles GET /documents/{documentID}/chunks/search. It
// runs a vector search scoped to a single interactive document via query
// parameters q and top_k.
func (s *Server) searchDocumentChunks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	doc, ok := s.ownedDocument(w, r)
	if !ok {
		return
	}
	if !doc.Interactive {
		writeError(w, http.StatusConflict, "document is not interactive")
		return
	}
	if doc.Status != domain.DocumentStatusCompleted {
		writeError(w, http.StatusConflict, "document processing is not complete")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if len(query) < 3 {
		writeError(w, http.StatusBadRequest, `query parameter "q" must be at least 3 characters`)
		return
	}
	if len(query) > 1000 {
		writeError(w, http.StatusBadRequest, `query parameter "q" must be at most 1000 characters`)
		return
	}

	topK := defaultTopK
	if raw := r.URL.Query().Get("top_k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxTopK {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("top_k must be an integer between 1 and %d", maxTopK))
			return
		}
		topK = parsed
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Error().Err(err).Msg("query embedding failed")
		writeError(w, http.StatusServiceUnavailable, "embedding service unavailable")
		return
	}

	matches, err := s.vectors.SearchDocument(ctx, doc.ID, vector, uint64(topK))
	if err != nil {
		s.logger.Error().Err(err).Msg("document vector search failed")
		writeError(w, http.StatusServiceUnavailable, "vector search unavailable")
		return
	}

	ids := make([]uuid.UUID, 0, len(matches))
	scores := make(map[uuid.UUID]float32, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ChunkID)
		scores[m.ChunkID] = m.Score
	}

	chunks, err := s.docs.GetChunksByIDs(ctx, ids)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	hits := make([]searchHitResponse, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.DocumentID != doc.ID {
			continue
		}
		hits = append(hits, searchHitResponse{
			ChunkID:    chunk.ID.String(),
			DocumentID: chunk.DocumentID.String(),
			Filename:   doc.Filename,
			Ordinal:    chunk.Ordinal,
			Text:       chunk.Text,
			Score:      scores[chunk.ID],
		})
	}

	writeJSON(w, http.StatusOK, searchResponse{Query: query, Hits: hits, TotalCount: len(hits)})
}

// createReview handles POST /reviews. It creates a pending review job and
// dispatches the scheduler in the background.
func (s *Server) createReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerFromContext(ctx)

	var req createReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Topic = strings.TrimSpace(req.Topic)
	if !s.validateRequest(w, &req) {
		return
	}

	now := time.Now().UTC()
	review := &domain.LiteratureReview{
		ID:        uuid.New(),
		OwnerID:   owner,
		Topic:     req.Topic,
		Status:    domain.ReviewStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.reviews.Create(ctx, review); err != nil {
		writeDomainError(w, err)
		return
	}

	go s.runner.Run(context.Background(), review.ID)

	writeJSON(w, http.StatusAccepted, reviewToResponse(review))
}

// listReviews handles GET /reviews.
func (s *Server) listReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerFromContext(ctx)

	reviews, err := s.reviews.ListByOwner(ctx, owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]reviewResponse, len(reviews))
	for i, review := range reviews {
		out[i] = reviewToResponse(review)
	}
	writeJSON(w, http.StatusOK, listReviewsResponse{Reviews: out, TotalCount: len(out)})
}

// getReview handles GET /reviews/{reviewID}.
func (s *Server) getReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerFromContext(ctx)

	reviewID, ok := parseUUID(w, chi.URLParam(r, "reviewID"), "review_id")
	if !ok {
		return
	}

	review, err := s.reviews.GetByID(ctx, reviewID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if review.OwnerID != owner {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}

	writeJSON(w, http.StatusOK, reviewToResponse(review))
}

// ownedDocument loads the document from the URL parameter and enforces that
// the caller owns it. Foreign documents read as not found.
func (s *Server) ownedDocument(w http.ResponseWriter, r *http.Request) (*domain.Document, bool) {
	ctx := r.Context()
	owner := ownerFromContext(ctx)

	documentID, ok := parseUUID(w, chi.URLParam(r, "documentID"), "document_id")
	if !ok {
		return nil, false
	}

	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	if doc.OwnerID != owner {
		writeError(w, http.StatusNotFound, "resource not found")
		return nil, false
	}
	return doc, true
}

// decodeJSON reads and unmarshals a bounded JSON request body, writing a 400
// response on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	return true
}

// validateRequest runs struct validation and writes a 400 response naming the
// first failing field.
func (s *Server) validateRequest(w http.ResponseWriter, req interface{}) bool {
	err := s.validate.Struct(req)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s failed validation on rule %q", fe.Field(), fe.Tag()))
	} else {
		writeError(w, http.StatusBadRequest, "invalid request")
	}
	return false
}

// writeDomainError maps domain errors to appropriate HTTP status codes and
// writes a JSON error response. Internal error details are not leaked to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "resource already exists")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseUUID parses a UUID from a string, writing a 400 error response if invalid.
// The parse error details are not included to avoid echoing malformed input.
func parseUUID(w http.ResponseWriter, s, fieldName string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a valid UUID", fieldName))
		return uuid.Nil, false
	}
	return id, true
}
