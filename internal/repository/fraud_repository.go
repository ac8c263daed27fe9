package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rollcall-io/rollcall-api/internal/models"
)

// FraudRepository appends advisory fraud signals.
type FraudRepository struct {
	db *sqlx.DB
}

// NewFraudRepository constructs the repository.
func NewFraudRepository(db *sqlx.DB) *FraudRepository {
	return &FraudRepository{db: db}
}

// Insert appends a fraud signal. Signals are never updated or deleted.
func (r *FraudRepository) Insert(ctx context.Context, signal *models.FraudSignal) error {
	if signal.ID == "" {
		signal.ID = uuid.NewString()
	}
	if signal.CreatedAt.IsZero() {
		signal.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO fraud_signals (id, type, severity, session_id, round_id, student_id, details, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(ctx, query,
		signal.ID, signal.Type, signal.Severity, signal.SessionID, signal.RoundID,
		signal.StudentID, signal.Details, signal.CreatedAt); err != nil {
		return fmt.Errorf("insert fraud signal: %w", err)
	}
	return nil
}

// ListBySession returns signals for a session, newest first.
func (r *FraudRepository) ListBySession(ctx context.Context, sessionID string) ([]models.FraudSignal, error) {
	query := `SELECT id, type, severity, session_id, round_id, student_id, details, created_at
FROM fraud_signals WHERE session_id = $1 ORDER BY created_at DESC`
	var signals []models.FraudSignal
	if err := r.db.SelectContext(ctx, &signals, query, sessionID); err != nil {
		return nil, fmt.Errorf("list fraud signals: %w", err)
	}
	return signals, nil
}
