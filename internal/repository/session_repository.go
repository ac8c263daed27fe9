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

// SessionRepository handles persistence for class sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a session in the active state.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	now := time.Now().UTC()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.StartsAt.IsZero() {
		session.StartsAt = now
	}
	session.CreatedAt = now
	session.UpdatedAt = now
	query := `INSERT INTO sessions (id, group_id, professor_id, status, is_active, starts_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(ctx, query,
		session.ID, session.GroupID, session.ProfessorID, session.Status, session.IsActive,
		session.StartsAt, session.CreatedAt, session.UpdatedAt); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetByID fetches a session.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT id, group_id, professor_id, status, is_active, starts_at, ends_at, created_at, updated_at
FROM sessions WHERE id = $1`
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &session, nil
}

// End flips an active session to ended and closes every still-active round in
// the same transaction. Returns false when the session was not active.
func (r *SessionRepository) End(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin end session: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx, `UPDATE sessions
SET status = $2, is_active = false, ends_at = $3, updated_at = $3
WHERE id = $1 AND is_active = true`, sessionID, models.SessionStatusEnded, now)
	if err != nil {
		return false, fmt.Errorf("end session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("end session rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `UPDATE rounds
SET is_active = false, ends_at = $2
WHERE session_id = $1 AND is_active = true`, sessionID, now); err != nil {
		return false, fmt.Errorf("close session rounds: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit end session: %w", err)
	}
	committed = true
	return true, nil
}

// Summary aggregates round and attendance totals for a session.
func (r *SessionRepository) Summary(ctx context.Context, sessionID string) (*models.SessionSummary, error) {
	session, err := r.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	query := `SELECT r.id AS round_id, r.round_number,
COUNT(*) FILTER (WHERE a.status = 'on_time') AS on_time,
COUNT(*) FILTER (WHERE a.status = 'late') AS late,
COUNT(*) FILTER (WHERE a.status = 'excused') AS excused
FROM rounds r
LEFT JOIN attendance_records a ON a.round_id = r.id
WHERE r.session_id = $1
GROUP BY r.id, r.round_number
ORDER BY r.round_number`
	var rounds []models.RoundSummary
	if err := r.db.SelectContext(ctx, &rounds, query, sessionID); err != nil {
		return nil, fmt.Errorf("session summary: %w", err)
	}

	summary := &models.SessionSummary{
		SessionID: sessionID,
		Status:    session.Status,
		Rounds:    rounds,
	}
	summary.RoundCount = len(rounds)
	for _, round := range rounds {
		summary.AttendanceCount += round.OnTime + round.Late + round.Excused
	}
	return summary, nil
}
