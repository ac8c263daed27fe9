package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// FraudSignalType enumerates the supported heuristics.
type FraudSignalType string

const (
	FraudSignalRapidBurst     FraudSignalType = "rapid_burst"
	FraudSignalGPSCluster     FraudSignalType = "gps_cluster"
	FraudSignalEdgeScan       FraudSignalType = "edge_scan"
	FraudSignalMultipleDevice FraudSignalType = "multiple_device"
)

// FraudSeverity grades how suspicious a signal is.
type FraudSeverity string

const (
	FraudSeverityLow    FraudSeverity = "low"
	FraudSeverityMedium FraudSeverity = "medium"
	FraudSeverityHigh   FraudSeverity = "high"
)

// FraudSignal is an append-only advisory observation. It never blocks or
// reverses an attendance record.
type FraudSignal struct {
	ID        string          `db:"id" json:"id"`
	Type      FraudSignalType `db:"type" json:"type"`
	Severity  FraudSeverity   `db:"severity" json:"severity"`
	SessionID string          `db:"session_id" json:"session_id"`
	RoundID   *string         `db:"round_id" json:"round_id,omitempty"`
	StudentID *string         `db:"student_id" json:"student_id,omitempty"`
	Details   types.JSONText  `db:"details" json:"details,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
