package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/rollcall-io/rollcall-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestTokenRepositoryInsertStoresDigestOnly(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	expires := time.Now().UTC().Add(15 * time.Second)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO scan_tokens")).
		WithArgs(sqlmock.AnyArg(), "round-1", "digest", expires, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Insert(context.Background(), &models.ScanToken{
		RoundID:    "round-1",
		SecretHash: "digest",
		ExpiresAt:  expires,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryConsumeWinsRace(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND consumed = false AND expires_at > $2")).
		WithArgs("tok-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	consumed, err := repo.Consume(context.Background(), "tok-1", now)
	require.NoError(t, err)
	require.True(t, consumed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryConsumeLosesRace(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND consumed = false AND expires_at > $2")).
		WithArgs("tok-1", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	consumed, err := repo.Consume(context.Background(), "tok-1", now)
	require.NoError(t, err)
	require.False(t, consumed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryDeleteExpired(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM scan_tokens WHERE expires_at <= $1")).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 7))

	deleted, err := repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, int64(7), deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}
