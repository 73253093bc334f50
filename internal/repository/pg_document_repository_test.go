package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarsynth/research-assistant-service/internal/domain"
)

func newTestDocument() *domain.Document {
	now := time.Now().UTC()
	return &domain.Document{
		ID:         uuid.New(),
		OwnerID:    "user-123",
		Filename:   "attention_is_all_you_need.pdf",
		Status:     domain.DocumentStatusPending,
		UploadedAt: now,
		UpdatedAt:  now,
	}
}

func documentColumns() []string {
	return []string{"id", "owner_id", "filename", "status", "interactive",
		"structured_data", "error_message", "uploaded_at", "updated_at"}
}

func TestPgDocumentRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("creates document successfully", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgDocumentRepository(mock)
		doc := newTestDocument()

		mock.ExpectExec("INSERT INTO documents").
			WithArgs(doc.ID, doc.OwnerID, doc.Filename, doc.Status, doc.Interactive,
				pgxmock.AnyArg(), doc.ErrorMessage, doc.UploadedAt, doc.UpdatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err = repo.Create(ctx, doc)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns validation error for nil document", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgDocumentRepository(mock)
		err = repo.Create(ctx, nil)

		var validationErr *domain.ValidationError
		assert.True(t, errors.As(err, &validationErr))
		assert.Equal(t, "document", validationErr.Field)
	})

	t.Run("returns validation error for missing filename", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgDocumentRepository(mock)
		doc := newTestDocument()
		doc.Filename = ""

		err = repo.Create(ctx, doc)

		var validationErr *domain.ValidationError
		assert.True(t, errors.As(err, &validationErr))
		assert.Equal(t, "filename", validationErr.Field)
	})

	t.Run("returns already exists error on duplicate", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgDocumentRepository(mock)
		doc := newTestDocument()

		pgErr := &pgconn.PgError{Code: "23505"}
		mock.ExpectExec("INSERT INTO documents").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(pgErr)

		err = repo.Create(ctx, doc)
		assert.True(t, errors.Is(err, domain.ErrAlreadyExists))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgDocumentRepository_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("returns document with structured data", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgDocumentRepository(mock)
		doc := newTestDocument()
		structured := &domain.StructuredData{
			Methodology: "transformer architecture ablations",
			KeyFindings: "attention outperforms recurrence",
		}
		structuredJSON, err := json.Marshal(structured)
		require.NoError(t, err)

		rows := pgxmock.NewRows(documentColumns()).AddRow(
			doc.ID, doc.OwnerID, doc.Filename, domain.DocumentStatusCompleted, true,
			structuredJSON, "", doc.UploadedAt, doc.UpdatedAt,
		)

		mock.ExpectQuery("SELECT .* FROM documents").
			WithArgs(doc.ID).
			WillReturnRows(rows)

		result, err := repo.GetByID(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, doc.ID, result.ID)
		assert.True(t, result.Interactive)
		require.NotNil(t, result.StructuredData)
		assert.Equal(t, "attention outperforms recurrence", result.StructuredData.KeyFindings)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns document with nil structured data", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgDocumentRepository(mock)
		doc := newTestDocument()

		rows := pgxmock.NewRows(documentColumns()).AddRow(
			doc.ID, doc.OwnerID, doc.Filename, doc.Status, false,
			nil, "", doc.UploadedAt, doc.UpdatedAt,
		)

		mock.ExpectQuery("SELECT .* FROM documents").
			WithArgs(doc.ID).
			WillReturnRows(rows)

		result, err := repo.GetByID(ctx, doc.ID)
		require.NoError(t, err)
		assert.Nil(t, result.StructuredData)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found error when not exists", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgDocumentRepository(mock)
		id := uuid.New()

		mock.ExpectQuery("SELECT .* FROM documents").
			WithArgs(id).
			WillReturnError(pgx.ErrNoRows)

		result, err := repo.GetByID(ctx, id)
		assert.Nil(t, result)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgDocumentRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("updates status and error message", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgDocumentRepository(mock)
		id := uuid.New()

		mock.ExpectExec("UPDATE documents SET status").
			WithArgs(id, domain.DocumentStatusFailed, "extracted text is empty", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err = repo.UpdateStatus(ctx, id, domain.DocumentStatusFailed, "extracted text is empty")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found when no rows affected", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgDocumentRepository(mock)
		id := uuid.New()

		mock.ExpectExec("UPDATE documents SET status").
			WithArgs(id, domain.DocumentStatusCompleted, "", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err = repo.UpdateStatus(ctx, id, domain.DocumentStatusCompleted, "")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgDocumentRepository_SetStructuredData(t *testing.T) {
	ctx := context.Background()

	t.Run("stores structured data as json", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgDocumentRepository(mock)
		id := uuid.New()
		data := &domain.StructuredData{KeyFindings: "strong results"}

		mock.ExpectExec("UPDATE documents SET structured_data").
			WithArgs(id, pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err = repo.SetStructuredData(ctx, id, data)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgDocumentRepository_SetInteractive(t *testing.T) {
	ctx := context.Background()

	t.Run("marks document interactive", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgDocumentRepository(mock)
		id := uuid.New()

		mock.ExpectExec("UPDATE documents SET interactive").
			WithArgs(id, true, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err = repo.SetInteractive(ctx, id, true)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgDocumentRepository_CreateChunks(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts chunks in a single batch", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgDocumentRepository(mock)
		docID := uuid.New()
		now := time.Now().UTC()
		chunks := []*domain.TextChunk{
			{ID: uuid.New(), DocumentID: docID, Ordinal: 0, Text: "First chunk.", CreatedAt: now},
			{ID: uuid.New(), DocumentID: docID, Ordinal: 1, Text: "Second chunk.", CreatedAt: now},
		}

		batch := mock.ExpectBatch()
		for _, chunk := range chunks {
			batch.ExpectExec("INSERT INTO text_chunks").
				WithArgs(chunk.ID, chunk.DocumentID, chunk.Ordinal, chunk.Text, chunk.CreatedAt).
				WillReturnResult(pgxmock.NewResult("INSERT", 1))
		}

		err = repo.CreateChunks(ctx, chunks)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no-op for empty slice", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgDocumentRepository(mock)
		err = repo.CreateChunks(ctx, nil)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("propagates batch insert errors", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgDocumentRepository(mock)
		chunk := &domain.TextChunk{
			ID: uuid.New(), DocumentID: uuid.New(), Ordinal: 0,
			Text: "chunk", CreatedAt: time.Now().UTC(),
		}

		batch := mock.ExpectBatch()
		batch.ExpectExec("INSERT INTO text_chunks").
			WithArgs(chunk.ID, chunk.DocumentID, chunk.Ordinal, chunk.Text, chunk.CreatedAt).
			WillReturnError(errors.New("constraint violation"))

		err = repo.CreateChunks(ctx, []*domain.TextChunk{chunk})
		assert.Error(t, err)
	})
}

func TestPgDocumentRepository_ListChunks(t *testing.T) {
	ctx := context.Background()

	t.Run("lists chunks ordered by ordinal", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgDocumentRepository(mock)
		docID := uuid.New()
		now := time.Now().UTC()

		rows := pgxmock.NewRows([]string{"id", "document_id", "ordinal", "text", "created_at"}).
			AddRow(uuid.New(), docID, 0, "First.", now).
			AddRow(uuid.New(), docID, 1, "Second.", now)

		mock.ExpectQuery("SELECT .* FROM text_chunks").
			WithArgs(docID).
			WillReturnRows(rows)

		chunks, err := repo.ListChunks(ctx, docID)
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, 0, chunks[0].Ordinal)
		assert.Equal(t, "Second.", chunks[1].Text)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgDocumentRepository_GetChunksByIDs(t *testing.T) {
	ctx := context.Background()

	t.Run("preserves input order", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgDocumentRepository(mock)
		docID := uuid.New()
		now := time.Now().UTC()
		firstID := uuid.New()
		secondID := uuid.New()

		// Rows come back in database order, not request order.
		rows := pgxmock.NewRows([]string{"id", "document_id", "ordinal", "text", "created_at"}).
			AddRow(secondID, docID, 1, "Second.", now).
			AddRow(firstID, docID, 0, "First.", now)

		mock.ExpectQuery("SELECT .* FROM text_chunks").
			WithArgs([]uuid.UUID{firstID, secondID}).
			WillReturnRows(rows)

		chunks, err := repo.GetChunksByIDs(ctx, []uuid.UUID{firstID, secondID})
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, firstID, chunks[0].ID)
		assert.Equal(t, secondID, chunks[1].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("skips missing ids", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgDocumentRepository(mock)
		docID := uuid.New()
		presentID := uuid.New()
		missingID := uuid.New()

		rows := pgxmock.NewRows([]string{"id", "document_id", "ordinal", "text", "created_at"}).
			AddRow(presentID, docID, 0, "Here.", time.Now().UTC())

		mock.ExpectQuery("SELECT .* FROM text_chunks").
			WithArgs([]uuid.UUID{presentID, missingID}).
			WillReturnRows(rows)

		chunks, err := repo.GetChunksByIDs(ctx, []uuid.UUID{presentID, missingID})
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, presentID, chunks[0].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no-op for empty slice", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgDocumentRepository(mock)
		chunks, err := repo.GetChunksByIDs(ctx, nil)
		require.NoError(t, err)
		assert.Nil(t, chunks)
	})
}

func TestPgDocumentRepository_Citations(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts citations in a single batch", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgDocumentRepository(mock)
		docID := uuid.New()
		now := time.Now().UTC()
		citations := []*domain.Citation{
			{ID: uuid.New(), DocumentID: docID, Title: "Attention Is All You Need",
				Authors: []string{"Vaswani", "Shazeer"}, Year: 2017, CreatedAt: now},
			{ID: uuid.New(), DocumentID: docID, Title: "BERT",
				Authors: []string{"Devlin"}, Year: 2019, CreatedAt: now},
		}

		batch := mock.ExpectBatch()
		for _, citation := range citations {
			batch.ExpectExec("INSERT INTO citations").
				WithArgs(citation.ID, citation.DocumentID, citation.Title,
					citation.Authors, citation.Year, citation.CreatedAt).
				WillReturnResult(pgxmock.NewResult("INSERT", 1))
		}

		err = repo.CreateCitations(ctx, citations)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lists citations with authors array", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgDocumentRepository(mock)
		docID := uuid.New()

		rows := pgxmock.NewRows([]string{"id", "document_id", "title", "authors", "year", "created_at"}).
			AddRow(uuid.New(), docID, "Attention Is All You Need",
				[]string{"Vaswani", "Shazeer"}, 2017, time.Now().UTC())

		mock.ExpectQuery("SELECT .* FROM citations").
			WithArgs(docID).
			WillReturnRows(rows)

		citations, err := repo.ListCitations(ctx, docID)
		require.NoError(t, err)
		require.Len(t, citations, 1)
		assert.Equal(t, []string{"Vaswani", "Shazeer"}, citations[0].Authors)
		assert.Equal(t, 2017, citations[0].Year)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgDocumentRepository_WithTx(t *testing.T) {
	t.Run("returns repository bound to new querier", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgDocumentRepository(nil)
		bound := repo.WithTx(mock)
		require.NotNil(t, bound)
		assert.NotSame(t, repo, bound)
	})
}

func TestPgDocumentRepository_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes document", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgDocumentRepository(mock)
		id := uuid.New()

		mock.ExpectExec("DELETE FROM documents").
			WithArgs(id).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		err = repo.Delete(ctx, id)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing document is not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgDocumentRepository(mock)
		id := uuid.New()

		mock.ExpectExec("DELETE FROM documents").
			WithArgs(id).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		err = repo.Delete(ctx, id)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
