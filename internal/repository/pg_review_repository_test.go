package repository

import (
	"context"
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

func newTestLiteratureReview() *domain.LiteratureReview {
	now := time.Now().UTC()
	return &domain.LiteratureReview{
		ID:        uuid.New(),
		OwnerID:   "user-123",
		Topic:     "attention mechanisms in deep learning",
		Status:    domain.ReviewStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func reviewColumns() []string {
	return []string{"id", "owner_id", "topic", "status", "result", "created_at", "updated_at", "completed_at"}
}

func reviewRow(review *domain.LiteratureReview) *pgxmock.Rows {
	return pgxmock.NewRows(reviewColumns()).AddRow(
		review.ID, review.OwnerID, review.Topic, review.Status,
		review.Result, review.CreatedAt, review.UpdatedAt, review.CompletedAt,
	)
}

func TestPgReviewRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("creates review successfully", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgReviewRepository(mock)
		review := newTestLiteratureReview()

		mock.ExpectExec("INSERT INTO literature_reviews").
			WithArgs(review.ID, review.OwnerID, review.Topic, review.Status, review.Result,
				review.CreatedAt, review.UpdatedAt, review.CompletedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err = repo.Create(ctx, review)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns validation error for nil review", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgReviewRepository(mock)
		err = repo.Create(ctx, nil)

		var validationErr *domain.ValidationError
		assert.True(t, errors.As(err, &validationErr))
		assert.Equal(t, "review", validationErr.Field)
	})

	t.Run("returns validation error for missing topic", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgReviewRepository(mock)
		review := newTestLiteratureReview()
		review.Topic = ""

		err = repo.Create(ctx, review)

		var validationErr *domain.ValidationError
		assert.True(t, errors.As(err, &validationErr))
		assert.Equal(t, "topic", validationErr.Field)
	})

	t.Run("returns already exists error on duplicate", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgReviewRepository(mock)
		review := newTestLiteratureReview()

		pgErr := &pgconn.PgError{Code: "23505"}
		mock.ExpectExec("INSERT INTO literature_reviews").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(pgErr)

		err = repo.Create(ctx, review)
		assert.True(t, errors.Is(err, domain.ErrAlreadyExists))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgReviewRepository_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("returns review when found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgReviewRepository(mock)
		review := newTestLiteratureReview()

		mock.ExpectQuery("SELECT .* FROM literature_reviews").
			WithArgs(review.ID).
			WillReturnRows(reviewRow(review))

		result, err := repo.GetByID(ctx, review.ID)
		require.NoError(t, err)
		assert.Equal(t, review.ID, result.ID)
		assert.Equal(t, review.Topic, result.Topic)
		assert.Equal(t, domain.ReviewStatusPending, result.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found error when not exists", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgReviewRepository(mock)
		id := uuid.New()

		mock.ExpectQuery("SELECT .* FROM literature_reviews").
			WithArgs(id).
			WillReturnError(pgx.ErrNoRows)

		result, err := repo.GetByID(ctx, id)
		assert.Nil(t, result)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgReviewRepository_ListByOwner(t *testing.T) {
	ctx := context.Background()

	t.Run("lists reviews for owner", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgReviewRepository(mock)
		first := newTestLiteratureReview()
		second := newTestLiteratureReview()
		second.Topic = "graph neural networks"

		rows := pgxmock.NewRows(reviewColumns()).
			AddRow(first.ID, first.OwnerID, first.Topic, first.Status,
				first.Result, first.CreatedAt, first.UpdatedAt, first.CompletedAt).
			AddRow(second.ID, second.OwnerID, second.Topic, second.Status,
				second.Result, second.CreatedAt, second.UpdatedAt, second.CompletedAt)

		mock.ExpectQuery("SELECT .* FROM literature_reviews WHERE owner_id").
			WithArgs("user-123").
			WillReturnRows(rows)

		results, err := repo.ListByOwner(ctx, "user-123")
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, first.ID, results[0].ID)
		assert.Equal(t, "graph neural networks", results[1].Topic)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns empty list when owner has no reviews", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgReviewRepository(mock)

		mock.ExpectQuery("SELECT .* FROM literature_reviews WHERE owner_id").
			WithArgs("user-999").
			WillReturnRows(pgxmock.NewRows(reviewColumns()))

		results, err := repo.ListByOwner(ctx, "user-999")
		require.NoError(t, err)
		assert.Empty(t, results)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgReviewRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("updates status successfully", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgReviewRepository(mock)
		id := uuid.New()

		mock.ExpectExec("UPDATE literature_reviews SET status").
			WithArgs(id, domain.ReviewStatusSearching, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err = repo.UpdateStatus(ctx, id, domain.ReviewStatusSearching)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found when no rows affected", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgReviewRepository(mock)
		id := uuid.New()

		mock.ExpectExec("UPDATE literature_reviews SET status").
			WithArgs(id, domain.ReviewStatusSearching, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err = repo.UpdateStatus(ctx, id, domain.ReviewStatusSearching)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgReviewRepository_Complete(t *testing.T) {
	ctx := context.Background()

	t.Run("stores result and marks completed", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgReviewRepository(mock)
		id := uuid.New()

		mock.ExpectExec("UPDATE literature_reviews").
			WithArgs(id, domain.ReviewStatusCompleted, "# Final Review", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err = repo.Complete(ctx, id, "# Final Review")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgReviewRepository_Fail(t *testing.T) {
	ctx := context.Background()

	t.Run("stores failure reason", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgReviewRepository(mock)
		id := uuid.New()

		mock.ExpectExec("UPDATE literature_reviews").
			WithArgs(id, domain.ReviewStatusFailed, "no papers could be processed", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err = repo.Fail(ctx, id, "no papers could be processed")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found when review does not exist", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgReviewRepository(mock)
		id := uuid.New()

		mock.ExpectExec("UPDATE literature_reviews").
			WithArgs(id, domain.ReviewStatusFailed, "boom", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err = repo.Fail(ctx, id, "boom")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgReviewRepository_FailStale(t *testing.T) {
	ctx := context.Background()

	t.Run("fails in-flight jobs and reports count", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgReviewRepository(mock)

		mock.ExpectExec("UPDATE literature_reviews").
			WithArgs(domain.ReviewStatusFailed, "service restarted", pgxmock.AnyArg(),
				domain.ReviewStatusPending, domain.ReviewStatusCompleted, domain.ReviewStatusFailed).
			WillReturnResult(pgxmock.NewResult("UPDATE", 3))

		count, err := repo.FailStale(ctx, "service restarted")
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reports zero when nothing is stale", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgReviewRepository(mock)

		mock.ExpectExec("UPDATE literature_reviews").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		count, err := repo.FailStale(ctx, "service restarted")
		require.NoError(t, err)
		assert.Zero(t, count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("propagates query errors", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgReviewRepository(mock)

		mock.ExpectExec("UPDATE literature_reviews").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(errors.New("connection refused"))

		count, err := repo.FailStale(ctx, "service restarted")
		assert.Error(t, err)
		assert.Zero(t, count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestIsPgUniqueViolation(t *testing.T) {
	t.Run("returns true for unique violation code", func(t *testing.T) {
		err := &pgconn.PgError{Code: "23505"}
		assert.True(t, isPgUniqueViolation(err))
	})

	t.Run("returns false for other pg error codes", func(t *testing.T) {
		err := &pgconn.PgError{Code: "23503"}
		assert.False(t, isPgUniqueViolation(err))
	})

	t.Run("returns false for non-pg errors", func(t *testing.T) {
		assert.False(t, isPgUniqueViolation(errors.New("some error")))
	})

	t.Run("returns false for nil", func(t *testing.T) {
		assert.False(t, isPgUniqueViolation(nil))
	})
}
