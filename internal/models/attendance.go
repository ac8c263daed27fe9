package models

import "time"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusOnTime  AttendanceStatus = "on_time"
	AttendanceStatusLate    AttendanceStatus = "late"
	AttendanceStatusExcused AttendanceStatus = "excused"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusOnTime, AttendanceStatusLate, AttendanceStatusExcused:
		return true
	default:
		return false
	}
}

// AttendanceRecord is one student's durable attendance event for a round.
// RecordedAt comes from the server clock; CapturedAtClient is kept for audit
// only and never feeds the lateness computation.
type AttendanceRecord struct {
	ID                string           `db:"id" json:"id"`
	RoundID           string           `db:"round_id" json:"round_id"`
	StudentID         string           `db:"student_id" json:"student_id"`
	Status            AttendanceStatus `db:"status" json:"status"`
	RecordedAt        time.Time        `db:"recorded_at" json:"recorded_at"`
	CapturedAtClient  *time.Time       `db:"captured_at_client" json:"captured_at_client,omitempty"`
	DeviceFingerprint *string          `db:"device_fingerprint" json:"device_fingerprint,omitempty"`
	Latitude          *float64         `db:"latitude" json:"latitude,omitempty"`
	Longitude         *float64         `db:"longitude" json:"longitude,omitempty"`
	ClientScanID      *string          `db:"client_scan_id" json:"client_scan_id,omitempty"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
}

// ScanResult is returned to the scanning client on success.
type ScanResult struct {
	RoundID    string           `json:"round_id"`
	RecordedAt time.Time        `json:"recorded_at"`
	Status     AttendanceStatus `json:"status"`
}
