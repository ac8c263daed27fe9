package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/rollcall-io/rollcall-api/internal/models"
)

func policyRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "scope", "scope_id", "version", "rules", "effective_from", "is_active", "created_at",
	})
}

func TestPolicyRepositoryFindCandidatePicksHighestVersion(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPolicyRepository(db)

	now := time.Now().UTC()
	courseID := "course-1"
	rows := policyRows().
		AddRow("pol-2", "course", courseID, 2, []byte(`{"lateAfterMinutes":{"first_hour":15,"break":5},"graceMinutes":0}`), now.Add(-time.Hour), true, now)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY version DESC, effective_from DESC")).
		WithArgs(models.PolicyScopeCourse, courseID, now).
		WillReturnRows(rows)

	policy, err := repo.FindCandidate(context.Background(), models.PolicyScopeCourse, &courseID, now)
	require.NoError(t, err)
	require.Equal(t, "pol-2", policy.ID)
	require.Equal(t, 2, policy.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPolicyRepositoryFindCandidateNoRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPolicyRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY version DESC, effective_from DESC")).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindCandidate(context.Background(), models.PolicyScopeGlobal, nil, now)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPolicyRepositoryMaxVersion(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPolicyRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) FROM policies")).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(3))

	version, err := repo.MaxVersion(context.Background(), models.PolicyScopeGlobal, nil)
	require.NoError(t, err)
	require.Equal(t, 3, version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPolicyRepositoryCreateWithHistoryFirstVersion(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPolicyRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO policy_history")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO policies")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	policy := &models.Policy{
		Scope:   models.PolicyScopeGlobal,
		Version: 1,
		Rules:   []byte(`{"lateAfterMinutes":{"first_hour":20,"break":10},"graceMinutes":0}`),
	}
	err := repo.CreateWithHistory(context.Background(), policy, nil)
	require.NoError(t, err)
	require.NotEmpty(t, policy.ID)
	require.True(t, policy.IsActive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPolicyRepositoryUpsertCourseAssignment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPolicyRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (course_id)")).
		WithArgs(sqlmock.AnyArg(), "course-1", "pol-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpsertCourseAssignment(context.Background(), "course-1", "pol-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
