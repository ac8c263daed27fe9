package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rollcall-io/rollcall-api/internal/models"
)

// Sentinel errors distinguishing the two uniqueness invariants on
// attendance_records. The storage constraints, not the pre-checks, are the
// real exactly-once guarantee.
var (
	ErrDuplicateAttendance = errors.New("attendance already recorded for round and student")
	ErrDuplicateClientScan = errors.New("client scan id already recorded for round and student")
)

// AttendanceRepository handles persistence for attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Insert writes a new attendance record. Unique-constraint violations are
// mapped to ErrDuplicateAttendance or ErrDuplicateClientScan; when the
// (round, student) constraint fires for a submission that carried a client
// scan id matching the stored record, the violation is reported as a
// duplicate client scan so offline replays drop silently instead of erroring.
func (r *AttendanceRepository) Insert(ctx context.Context, record *models.AttendanceRecord) error {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.RecordedAt.IsZero() {
		record.RecordedAt = now
	}
	record.CreatedAt = now

	query := `INSERT INTO attendance_records
(id, round_id, student_id, status, recorded_at, captured_at_client, device_fingerprint, latitude, longitude, client_scan_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.ExecContext(ctx, query,
		record.ID, record.RoundID, record.StudentID, record.Status, record.RecordedAt,
		record.CapturedAtClient, record.DeviceFingerprint, record.Latitude, record.Longitude,
		record.ClientScanID, record.CreatedAt)
	if err == nil {
		return nil
	}
	if uniqueViolation(err, "client_scan") {
		return ErrDuplicateClientScan
	}
	if uniqueViolation(err, "") {
		if record.ClientScanID != nil {
			existing, lookupErr := r.FindByRoundAndStudent(ctx, record.RoundID, record.StudentID)
			if lookupErr == nil && existing.ClientScanID != nil && *existing.ClientScanID == *record.ClientScanID {
				return ErrDuplicateClientScan
			}
		}
		return ErrDuplicateAttendance
	}
	return fmt.Errorf("insert attendance record: %w", err)
}

// FindByRoundAndStudent fetches the record for a (round, student) pair.
func (r *AttendanceRepository) FindByRoundAndStudent(ctx context.Context, roundID, studentID string) (*models.AttendanceRecord, error) {
	query := `SELECT id, round_id, student_id, status, recorded_at, captured_at_client,
device_fingerprint, latitude, longitude, client_scan_id, created_at
FROM attendance_records WHERE round_id = $1 AND student_id = $2`
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, roundID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find attendance record: %w", err)
	}
	return &record, nil
}

// ExistsByRoundAndStudent is the fast-path duplicate check; advisory only.
func (r *AttendanceRepository) ExistsByRoundAndStudent(ctx context.Context, roundID, studentID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM attendance_records WHERE round_id = $1 AND student_id = $2)`
	if err := r.db.GetContext(ctx, &exists, query, roundID, studentID); err != nil {
		return false, fmt.Errorf("attendance exists check: %w", err)
	}
	return exists, nil
}

// UpsertExcused retroactively records an excused status for a (round,
// student), creating the record when absent or overwriting its status. Only
// the excuse-approval path may call this.
func (r *AttendanceRepository) UpsertExcused(ctx context.Context, roundID, studentID string, recordedAt time.Time) error {
	query := `INSERT INTO attendance_records (id, round_id, student_id, status, recorded_at, created_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (round_id, student_id)
DO UPDATE SET status = EXCLUDED.status`
	if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), roundID, studentID, models.AttendanceStatusExcused, recordedAt); err != nil {
		return fmt.Errorf("upsert excused attendance: %w", err)
	}
	return nil
}

// CountRecentByStudent counts a student's records across a session within a
// trailing window, including any record just inserted.
func (r *AttendanceRepository) CountRecentByStudent(ctx context.Context, sessionID, studentID string, since time.Time) (int, error) {
	query := `SELECT COUNT(*)
FROM attendance_records a
JOIN rounds r ON r.id = a.round_id
WHERE r.session_id = $1 AND a.student_id = $2 AND a.recorded_at >= $3`
	var count int
	if err := r.db.GetContext(ctx, &count, query, sessionID, studentID, since); err != nil {
		return 0, fmt.Errorf("count recent attendance: %w", err)
	}
	return count, nil
}

// ListRecentWithLocation returns other students' located records in a session
// within a trailing window.
func (r *AttendanceRepository) ListRecentWithLocation(ctx context.Context, sessionID, excludeStudentID string, since time.Time) ([]models.AttendanceRecord, error) {
	query := `SELECT a.id, a.round_id, a.student_id, a.status, a.recorded_at, a.captured_at_client,
a.device_fingerprint, a.latitude, a.longitude, a.client_scan_id, a.created_at
FROM attendance_records a
JOIN rounds r ON r.id = a.round_id
WHERE r.session_id = $1 AND a.student_id <> $2 AND a.recorded_at >= $3
AND a.latitude IS NOT NULL AND a.longitude IS NOT NULL`
	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, sessionID, excludeStudentID, since); err != nil {
		return nil, fmt.Errorf("list recent located attendance: %w", err)
	}
	return records, nil
}

// DeviceFingerprints returns the distinct non-null fingerprints a student
// used earlier in the session, excluding the given record.
func (r *AttendanceRepository) DeviceFingerprints(ctx context.Context, sessionID, studentID, excludeRecordID string) ([]string, error) {
	query := `SELECT DISTINCT a.device_fingerprint
FROM attendance_records a
JOIN rounds r ON r.id = a.round_id
WHERE r.session_id = $1 AND a.student_id = $2 AND a.id <> $3 AND a.device_fingerprint IS NOT NULL`
	var fingerprints []string
	if err := r.db.SelectContext(ctx, &fingerprints, query, sessionID, studentID, excludeRecordID); err != nil {
		return nil, fmt.Errorf("list device fingerprints: %w", err)
	}
	return fingerprints, nil
}
