package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/rollcall-io/rollcall-api/internal/models"
)

func TestAttendanceRepositoryInsert(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendance_records")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Insert(context.Background(), &models.AttendanceRecord{
		RoundID:   "round-1",
		StudentID: "stu-1",
		Status:    models.AttendanceStatusOnTime,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryInsertClientScanViolation(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendance_records")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "attendance_records_client_scan_key"})

	clientScanID := "scan-1"
	err := repo.Insert(context.Background(), &models.AttendanceRecord{
		RoundID:      "round-1",
		StudentID:    "stu-1",
		Status:       models.AttendanceStatusOnTime,
		ClientScanID: &clientScanID,
	})
	require.ErrorIs(t, err, ErrDuplicateClientScan)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryInsertDuplicateRoundStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendance_records")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "attendance_records_round_student_key"})

	err := repo.Insert(context.Background(), &models.AttendanceRecord{
		RoundID:   "round-1",
		StudentID: "stu-1",
		Status:    models.AttendanceStatusOnTime,
	})
	require.ErrorIs(t, err, ErrDuplicateAttendance)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryInsertReplayMatchesStoredClientScan(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendance_records")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "attendance_records_round_student_key"})

	rows := sqlmock.NewRows([]string{
		"id", "round_id", "student_id", "status", "recorded_at", "captured_at_client",
		"device_fingerprint", "latitude", "longitude", "client_scan_id", "created_at",
	}).AddRow("rec-1", "round-1", "stu-1", "on_time", time.Now(), nil, nil, nil, nil, "scan-1", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance_records WHERE round_id = $1 AND student_id = $2")).
		WithArgs("round-1", "stu-1").
		WillReturnRows(rows)

	clientScanID := "scan-1"
	err := repo.Insert(context.Background(), &models.AttendanceRecord{
		RoundID:      "round-1",
		StudentID:    "stu-1",
		Status:       models.AttendanceStatusOnTime,
		ClientScanID: &clientScanID,
	})
	require.ErrorIs(t, err, ErrDuplicateClientScan)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryUpsertExcused(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (round_id, student_id)")).
		WithArgs(sqlmock.AnyArg(), "round-1", "stu-1", models.AttendanceStatusExcused, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpsertExcused(context.Background(), "round-1", "stu-1", now)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
