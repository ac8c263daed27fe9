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

// RoundRepository handles persistence for attendance rounds.
type RoundRepository struct {
	db *sqlx.DB
}

// NewRoundRepository constructs the repository.
func NewRoundRepository(db *sqlx.DB) *RoundRepository {
	return &RoundRepository{db: db}
}

// Create opens the next-numbered round for a session, force-closing any
// currently active round in the same transaction so the one-active-round
// invariant holds even when two professors race.
func (r *RoundRepository) Create(ctx context.Context, round *models.Round) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create round: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	if round.ID == "" {
		round.ID = uuid.NewString()
	}
	if round.StartsAt.IsZero() {
		round.StartsAt = now
	}
	round.CreatedAt = now
	round.IsActive = true

	if _, err := tx.ExecContext(ctx, `UPDATE rounds
SET is_active = false, ends_at = $2
WHERE session_id = $1 AND is_active = true`, round.SessionID, now); err != nil {
		return fmt.Errorf("close previous round: %w", err)
	}

	if err := tx.GetContext(ctx, &round.RoundNumber,
		`SELECT COALESCE(MAX(round_number), 0) + 1 FROM rounds WHERE session_id = $1`, round.SessionID); err != nil {
		return fmt.Errorf("next round number: %w", err)
	}

	query := `INSERT INTO rounds (id, session_id, round_number, starts_at, is_active, is_break_round,
geofence_enabled, geofence_lat, geofence_lon, geofence_radius_m, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	if _, err := tx.ExecContext(ctx, query,
		round.ID, round.SessionID, round.RoundNumber, round.StartsAt, round.IsActive, round.IsBreakRound,
		round.GeofenceEnabled, round.GeofenceLat, round.GeofenceLon, round.GeofenceRadiusM, round.CreatedAt); err != nil {
		return fmt.Errorf("insert round: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create round: %w", err)
	}
	committed = true
	return nil
}

// GetByID fetches a round.
func (r *RoundRepository) GetByID(ctx context.Context, id string) (*models.Round, error) {
	query := `SELECT id, session_id, round_number, starts_at, ends_at, is_active, is_break_round,
geofence_enabled, geofence_lat, geofence_lon, geofence_radius_m, created_at
FROM rounds WHERE id = $1`
	var round models.Round
	if err := r.db.GetContext(ctx, &round, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("get round: %w", err)
	}
	return &round, nil
}

// Close marks an active round closed. Returns false when the round is not
// active or does not belong to the session.
func (r *RoundRepository) Close(ctx context.Context, sessionID, roundID string, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `UPDATE rounds
SET is_active = false, ends_at = $3
WHERE id = $1 AND session_id = $2 AND is_active = true`, roundID, sessionID, now)
	if err != nil {
		return false, fmt.Errorf("close round: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close round rows affected: %w", err)
	}
	return affected == 1, nil
}
