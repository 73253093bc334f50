package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/scholarsynth/research-assistant-service/internal/database"
	"github.com/scholarsynth/research-assistant-service/internal/domain"
)

// Compile-time interface verification.
var _ ReviewRepository = (*PgReviewRepository)(nil)

// PgReviewRepository is a PostgreSQL implementation of ReviewRepository.
type PgReviewRepository struct {
	db database.DBTX
}

// NewPgReviewRepository creates a new PostgreSQL review repository.
func NewPgReviewRepository(db database.DBTX) *PgReviewRepository {
	return &PgReviewRepository{db: db}
}

// Create inserts a new review job in pending state.
func (r *PgReviewRepository) Create(ctx context.Context, review *domain.LiteratureReview) error {
	if review == nil {
		return domain.NewValidationError("review", "review cannot be nil")
	}
	if review.ID == uuid.Nil {
		return domain.NewValidationError("id", "review ID is required")
	}
	if review.OwnerID == "" {
		return domain.NewValidationError("owner_id", "owner ID is required")
	}
	if review.Topic == "" {
		return domain.NewValidationError("topic", "topic is required")
	}

	query := `
		INSERT INTO literature_reviews (
			id, owner_id, topic, status, result, created_at, updated_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(ctx, query,
		review.ID, review.OwnerID, review.Topic, review.Status, review.Result,
		review.CreatedAt, review.UpdatedAt, review.CompletedAt,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return fmt.Errorf("review %s: %w", review.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create review: %w", err)
	}

	return nil
}

// GetByID retrieves a review job by ID.
func (r *PgReviewRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.LiteratureReview, error) {
	query := `
		SELECT id, owner_id, topic, status, result, created_at, updated_at, completed_at
		FROM literature_reviews
		WHERE id = $1`

	review, err := scanReview(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("literature review", id.String())
		}
		return nil, fmt.Errorf("failed to get review: %w", err)
	}

	return review, nil
}

// ListByOwner retrieves all review jobs for an owner, newest first.
func (r *PgReviewRepository) ListByOwner(ctx context.Context, ownerID string) ([]*domain.LiteratureReview, error) {
	query := `
		SELECT id, owner_id, topic, status, result, created_at, updated_at, completed_at
		FROM literature_reviews
		WHERE owner_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []*domain.LiteratureReview
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, review)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reviews: %w", err)
	}

	return reviews, nil
}

// UpdateStatus advances the job to a new non-terminal status.
func (r *PgReviewRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ReviewStatus) error {
	query := `
		UPDATE literature_reviews
		SET status = $2, updated_at = $3
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update review status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("literature review", id.String())
	}

	return nil
}

// Complete marks the job completed and stores the final review text.
func (r *PgReviewRepository) Complete(ctx context.Context, id uuid.UUID, result string) error {
	now := time.Now().UTC()

	query := `
		UPDATE literature_reviews
		SET status = $2, result = $3, updated_at = $4, completed_at = $4
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, domain.ReviewStatusCompleted, result, now)
	if err != nil {
		return fmt.Errorf("failed to complete review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("literature review", id.String())
	}

	return nil
}

// Fail marks the job failed and stores the failure reason as the result.
func (r *PgReviewRepository) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE literature_reviews
		SET status = $2, result = $3, updated_at = $4
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, domain.ReviewStatusFailed, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to fail review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("literature review", id.String())
	}

	return nil
}

// FailStale force-fails every job left in an in-flight state. Pending jobs are
// untouched since they have not started and can still run normally.
func (r *PgReviewRepository) FailStale(ctx context.Context, reason string) (int64, error) {
	query := `
		UPDATE literature_reviews
		SET status = $1, result = $2, updated_at = $3
		WHERE status NOT IN ($4, $5, $6)`

	tag, err := r.db.Exec(ctx, query,
		domain.ReviewStatusFailed, reason, time.Now().UTC(),
		domain.ReviewStatusPending, domain.ReviewStatusCompleted, domain.ReviewStatusFailed,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale reviews: %w", err)
	}

	return tag.RowsAffected(), nil
}

// scanReview scans a review from a row.
func scanReview(row pgx.Row) (*domain.LiteratureReview, error) {
	review := &domain.LiteratureReview{}
	err := row.Scan(&review.ID, &review.OwnerID, &review.Topic, &review.Status,
		&review.Result, &review.CreatedAt, &review.UpdatedAt, &review.CompletedAt)
	if err != nil {
		return nil, err
	}
	return review, nil
}
