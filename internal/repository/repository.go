// Package repository provides data access interfaces and PostgreSQL
// implementations for documents, text chunks, citations, and review jobs.
package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/scholarsynth/research-assistant-service/internal/database"
	"github.com/scholarsynth/research-assistant-service/internal/domain"
)

// DocumentRepository defines persistence operations for documents and their
// chunks and citations.
type DocumentRepository interface {
	// Create inserts a new document record.
	Create(ctx context.Context, doc *domain.Document) error

	// GetByID retrieves a document by ID.
	// Returns domain.ErrNotFound (wrapped) if the document does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error)

	// ListByOwner retrieves all documents for an owner, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]*domain.Document, error)

	// UpdateStatus sets the document status and error message.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.DocumentStatus, errorMessage string) error

	// SetStructuredData stores the extracted structured summary.
	SetStructuredData(ctx context.Context, id uuid.UUID, data *domain.StructuredData) error

	// SetInteractive marks whether the document is eligible for chunk queries.
	SetInteractive(ctx context.Context, id uuid.UUID, interactive bool) error

	// CreateChunks inserts the document's chunks in ordinal order.
	CreateChunks(ctx context.Context, chunks []*domain.TextChunk) error

	// ListChunks retrieves a document's chunks ordered by ordinal.
	ListChunks(ctx context.Context, documentID uuid.UUID) ([]*domain.TextChunk, error)

	// GetChunksByIDs retrieves chunks by their IDs, preserving input order.
	GetChunksByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.TextChunk, error)

	// CreateCitations inserts the document's parsed citations.
	CreateCitations(ctx context.Context, citations []*domain.Citation) error

	// ListCitations retrieves a document's citations in insertion order.
	ListCitations(ctx context.Context, documentID uuid.UUID) ([]*domain.Citation, error)

	// Delete removes a document; its chunks and citations cascade.
	// Returns domain.ErrNotFound (wrapped) if the document does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// WithTx returns a repository bound to the given transaction or pool.
	WithTx(q database.DBTX) DocumentRepository
}

// ReviewRepository defines persistence operations for literature review jobs.
type ReviewRepository interface {
	// Create inserts a new review job in pending state.
	Create(ctx context.Context, review *domain.LiteratureReview) error

	// GetByID retrieves a review job by ID.
	// Returns domain.ErrNotFound (wrapped) if the job does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.LiteratureReview, error)

	// ListByOwner retrieves all review jobs for an owner, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]*domain.LiteratureReview, error)

	// UpdateStatus advances the job to a new non-terminal status.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ReviewStatus) error

	// Complete marks the job completed and stores the final review text.
	Complete(ctx context.Context, id uuid.UUID, result string) error

	// Fail marks the job failed and stores the failure reason as the result.
	Fail(ctx context.Context, id uuid.UUID, reason string) error

	// FailStale force-fails every job in a non-terminal, non-pending state.
	// Used by the startup sweep; returns the number of jobs failed.
	FailStale(ctx context.Context, reason string) (int64, error)
}
