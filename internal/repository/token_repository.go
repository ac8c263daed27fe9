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

// TokenRepository handles persistence for rotating scan tokens.
type TokenRepository struct {
	db *sqlx.DB
}

// NewTokenRepository constructs the repository.
func NewTokenRepository(db *sqlx.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Insert stores a freshly issued token. Only the secret digest is persisted.
func (r *TokenRepository) Insert(ctx context.Context, token *models.ScanToken) error {
	now := time.Now().UTC()
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = now
	}
	query := `INSERT INTO scan_tokens (id, round_id, secret_hash, expires_at, consumed, created_at)
VALUES ($1, $2, $3, $4, false, $5)`
	if _, err := r.db.ExecContext(ctx, query, token.ID, token.RoundID, token.SecretHash, token.ExpiresAt, token.CreatedAt); err != nil {
		return fmt.Errorf("insert scan token: %w", err)
	}
	return nil
}

// FindByRoundAndHash looks a token up by its round and secret digest.
func (r *TokenRepository) FindByRoundAndHash(ctx context.Context, roundID, secretHash string) (*models.ScanToken, error) {
	query := `SELECT id, round_id, secret_hash, expires_at, consumed, consumed_at, created_at
FROM scan_tokens WHERE round_id = $1 AND secret_hash = $2`
	var token models.ScanToken
	if err := r.db.GetContext(ctx, &token, query, roundID, secretHash); err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find scan token: %w", err)
	}
	return &token, nil
}

// Consume flips the token to consumed with compare-and-set semantics. The
// conditional update is the authoritative anti-replay guarantee: it returns
// false whenever another request won the race or the token expired between
// the advisory read and this write.
func (r *TokenRepository) Consume(ctx context.Context, tokenID string, now time.Time) (bool, error) {
	query := `UPDATE scan_tokens
SET consumed = true, consumed_at = $2
WHERE id = $1 AND consumed = false AND expires_at > $2`
	result, err := r.db.ExecContext(ctx, query, tokenID, now)
	if err != nil {
		return false, fmt.Errorf("consume scan token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume scan token rows affected: %w", err)
	}
	return affected == 1, nil
}

// DeleteExpired removes tokens past their expiry. Housekeeping only.
func (r *TokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM scan_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens rows affected: %w", err)
	}
	return deleted, nil
}
