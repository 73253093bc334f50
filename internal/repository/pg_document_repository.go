package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/scholarsynth/research-assistant-service/internal/database"
	"github.com/scholarsynth/research-assistant-service/internal/domain"
)

// pgUniqueViolation is the PostgreSQL error code for unique_violation.
const pgUniqueViolation = "23505"

// isPgUniqueViolation reports whether err is a unique constraint violation.
func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// Compile-time interface verification.
var _ DocumentRepository = (*PgDocumentRepository)(nil)

// PgDocumentRepository is a PostgreSQL implementation of DocumentRepository.
type PgDocumentRepository struct {
	db database.DBTX
}

// NewPgDocumentRepository creates a new PostgreSQL document repository.
func NewPgDocumentRepository(db database.DBTX) *PgDocumentRepository {
	return &PgDocumentRepository{db: db}
}

// WithTx returns a repository bound to the given transaction or pool.
func (r *PgDocumentRepository) WithTx(q database.DBTX) DocumentRepository {
	return &PgDocumentRepository{db: q}
}

// Create inserts a new document record.
func (r *PgDocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	if doc == nil {
		return domain.NewValidationError("document", "document cannot be nil")
	}
	if doc.ID == uuid.Nil {
		return domain.NewValidationError("id", "document ID is required")
	}
	if doc.OwnerID == "" {
		return domain.NewValidationError("owner_id", "owner ID is required")
	}
	if doc.Filename == "" {
		return domain.NewValidationError("filename", "filename is required")
	}

	structuredJSON, err := marshalStructuredData(doc.StructuredData)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO documents (
			id, owner_id, filename, status, interactive,
			structured_data, error_message, uploaded_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = r.db.Exec(ctx, query,
		doc.ID, doc.OwnerID, doc.Filename, doc.Status, doc.Interactive,
		structuredJSON, doc.ErrorMessage, doc.UploadedAt, doc.UpdatedAt,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return fmt.Errorf("document %s: %w", doc.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create document: %w", err)
	}

	return nil
}

// GetByID retrieves a document by ID.
func (r *PgDocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	query := `
		SELECT id, owner_id, filename, status, interactive,
			structured_data, error_message, uploaded_at, updated_at
		FROM documents
		WHERE id = $1`

	doc, err := scanDocument(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("document", id.String())
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	return doc, nil
}

// ListByOwner retrieves all documents for an owner, newest first.
func (r *PgDocumentRepository) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Document, error) {
	query := `
		SELECT id, owner_id, filename, status, interactive,
			structured_data, error_message, uploaded_at, updated_at
		FROM documents
		WHERE owner_id = $1
		ORDER BY uploaded_at DESC`

	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}

	return docs, nil
}

// UpdateStatus sets the document status and error message.
func (r *PgDocumentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.DocumentStatus, errorMessage string) error {
	query := `
		UPDATE documents
		SET status = $2, error_message = $3, updated_at = $4
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, status, errorMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("document", id.String())
	}

	return nil
}

// SetStructuredData stores the extracted structured summary.
func (r *PgDocumentRepository) SetStructuredData(ctx context.Context, id uuid.UUID, data *domain.StructuredData) error {
	structuredJSON, err := marshalStructuredData(data)
	if err != nil {
		return err
	}

	query := `
		UPDATE documents
		SET structured_data = $2, updated_at = $3
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, structuredJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set structured data: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("document", id.String())
	}

	return nil
}

// SetInteractive marks whether the document is eligible for chunk queries.
func (r *PgDocumentRepository) SetInteractive(ctx context.Context, id uuid.UUID, interactive bool) error {
	query := `
		UPDATE documents
		SET interactive = $2, updated_at = $3
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, interactive, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set interactive flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("document", id.String())
	}

	return nil
}

// CreateChunks inserts the document's chunks in ordinal order using a batch.
func (r *PgDocumentRepository) CreateChunks(ctx context.Context, chunks []*domain.TextChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	query := `
		INSERT INTO text_chunks (id, document_id, ordinal, text, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	batch := &pgx.Batch{}
	for _, chunk := range chunks {
		batch.Queue(query, chunk.ID, chunk.DocumentID, chunk.Ordinal, chunk.Text, chunk.CreatedAt)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range chunks {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}

	return nil
}

// ListChunks retrieves a document's chunks ordered by ordinal.
func (r *PgDocumentRepository) ListChunks(ctx context.Context, documentID uuid.UUID) ([]*domain.TextChunk, error) {
	query := `
		SELECT id, document_id, ordinal, text, created_at
		FROM text_chunks
		WHERE document_id = $1
		ORDER BY ordinal`

	rows, err := r.db.Query(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	return collectChunks(rows)
}

// GetChunksByIDs retrieves chunks by their IDs, preserving input order.
func (r *PgDocumentRepository) GetChunksByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.TextChunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, document_id, ordinal, text, created_at
		FROM text_chunks
		WHERE id = ANY($1)`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}
	defer rows.Close()

	chunks, err := collectChunks(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*domain.TextChunk, len(chunks))
	for _, chunk := range chunks {
		byID[chunk.ID] = chunk
	}

	ordered := make([]*domain.TextChunk, 0, len(ids))
	for _, id := range ids {
		if chunk, ok := byID[id]; ok {
			ordered = append(ordered, chunk)
		}
	}
	return ordered, nil
}

// CreateCitations inserts the document's parsed citations using a batch.
func (r *PgDocumentRepository) CreateCitations(ctx context.Context, citations []*domain.Citation) error {
	if len(citations) == 0 {
		return nil
	}

	query := `
		INSERT INTO citations (id, document_id, title, authors, year, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	batch := &pgx.Batch{}
	for _, citation := range citations {
		batch.Queue(query, citation.ID, citation.DocumentID, citation.Title, citation.Authors, citation.Year, citation.CreatedAt)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range citations {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert citation: %w", err)
		}
	}

	return nil
}

// ListCitations retrieves a document's citations in insertion order.
func (r *PgDocumentRepository) ListCitations(ctx context.Context, documentID uuid.UUID) ([]*domain.Citation, error) {
	query := `
		SELECT id, document_id, title, authors, year, created_at
		FROM citations
		WHERE document_id = $1
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list citations: %w", err)
	}
	defer rows.Close()

	var citations []*domain.Citation
	for rows.Next() {
		citation := &domain.Citation{}
		err := rows.Scan(&citation.ID, &citation.DocumentID, &citation.Title,
			&citation.Authors, &citation.Year, &citation.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan citation: %w", err)
		}
		citations = append(citations, citation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate citations: %w", err)
	}

	return citations, nil
}

// Delete removes a document. Chunk and citation rows go with it via
// ON DELETE CASCADE.
func (r *PgDocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("document", id.String())
	}
	return nil
}

// scanDocument scans a document from a row.
func scanDocument(row pgx.Row) (*domain.Document, error) {
	doc := &domain.Document{}
	var structuredJSON []byte

	err := row.Scan(&doc.ID, &doc.OwnerID, &doc.Filename, &doc.Status, &doc.Interactive,
		&structuredJSON, &doc.ErrorMessage, &doc.UploadedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(structuredJSON) > 0 {
		var data domain.StructuredData
		if err := json.Unmarshal(structuredJSON, &data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal structured data: %w", err)
		}
		doc.StructuredData = &data
	}

	return doc, nil
}

// collectChunks scans all chunk rows.
func collectChunks(rows pgx.Rows) ([]*domain.TextChunk, error) {
	var chunks []*domain.TextChunk
	for rows.Next() {
		chunk := &domain.TextChunk{}
		err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Ordinal, &chunk.Text, &chunk.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}
	return chunks, nil
}

// marshalStructuredData serializes structured data for JSONB storage.
// Nil data is stored as SQL NULL.
func marshalStructuredData(data *domain.StructuredData) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	structuredJSON, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal structured data: %w", err)
	}
	return structuredJSON, nil
}
