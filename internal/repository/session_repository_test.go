package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/rollcall-io/rollcall-api/internal/models"
)

func TestSessionRepositoryEndClosesOpenRounds(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND is_active = true")).
		WithArgs("sess-1", models.SessionStatusEnded, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("WHERE session_id = $1 AND is_active = true")).
		WithArgs("sess-1", now).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	ended, err := repo.End(context.Background(), "sess-1", now)
	require.NoError(t, err)
	require.True(t, ended)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryEndAlreadyEnded(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND is_active = true")).
		WithArgs("sess-1", models.SessionStatusEnded, now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	ended, err := repo.End(context.Background(), "sess-1", now)
	require.NoError(t, err)
	require.False(t, ended)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositorySummaryAggregatesRounds(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now().UTC()
	sessionRows := sqlmock.NewRows([]string{
		"id", "group_id", "professor_id", "status", "is_active", "starts_at", "ends_at", "created_at", "updated_at",
	}).AddRow("sess-1", "grp-1", "prof-1", models.SessionStatusEnded, false, now, now, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE id = $1")).
		WithArgs("sess-1").
		WillReturnRows(sessionRows)

	roundRows := sqlmock.NewRows([]string{"round_id", "round_number", "on_time", "late", "excused"}).
		AddRow("round-1", 1, 10, 2, 1).
		AddRow("round-2", 2, 8, 4, 0)
	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY r.id, r.round_number")).
		WithArgs("sess-1").
		WillReturnRows(roundRows)

	summary, err := repo.Summary(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, 2, summary.RoundCount)
	require.Equal(t, 25, summary.AttendanceCount)
	require.NoError(t, mock.ExpectationsWereMet())
}
