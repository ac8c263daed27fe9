package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rollcall-io/rollcall-api/internal/models"
)

// ExcuseRepository handles persistence for excuse requests.
type ExcuseRepository struct {
	db *sqlx.DB
}

// NewExcuseRepository constructs the repository.
func NewExcuseRepository(db *sqlx.DB) *ExcuseRepository {
	return &ExcuseRepository{db: db}
}

// Insert stores a pending excuse request.
func (r *ExcuseRepository) Insert(ctx context.Context, excuse *models.ExcuseRequest) error {
	now := time.Now().UTC()
	if excuse.ID == "" {
		excuse.ID = uuid.NewString()
	}
	excuse.Status = models.ExcuseStatusPending
	excuse.CreatedAt = now
	excuse.UpdatedAt = now
	query := `INSERT INTO excuse_requests (id, round_id, student_id, reason, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(ctx, query,
		excuse.ID, excuse.RoundID, excuse.StudentID, excuse.Reason, excuse.Status,
		excuse.CreatedAt, excuse.UpdatedAt); err != nil {
		return fmt.Errorf("insert excuse request: %w", err)
	}
	return nil
}

// GetByID fetches an excuse request.
func (r *ExcuseRepository) GetByID(ctx context.Context, id string) (*models.ExcuseRequest, error) {
	query := `SELECT id, round_id, student_id, reason, status, reviewed_by, reviewed_at, created_at, updated_at
FROM excuse_requests WHERE id = $1`
	var excuse models.ExcuseRequest
	if err := r.db.GetContext(ctx, &excuse, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("get excuse request: %w", err)
	}
	return &excuse, nil
}

// Review moves a pending request to a terminal state. Returns false when the
// request was already reviewed, making approval idempotent-safe under races.
func (r *ExcuseRepository) Review(ctx context.Context, id string, status models.ExcuseStatus, reviewerID string, now time.Time) (bool, error) {
	query := `UPDATE excuse_requests
SET status = $2, reviewed_by = $3, reviewed_at = $4, updated_at = $4
WHERE id = $1 AND status = $5`
	result, err := r.db.ExecContext(ctx, query, id, status, reviewerID, now, models.ExcuseStatusPending)
	if err != nil {
		return false, fmt.Errorf("review excuse request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("review excuse request rows affected: %w", err)
	}
	return affected == 1, nil
}
