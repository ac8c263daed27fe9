package dto

import (
	"time"

	"github.com/rollcall-io/rollcall-api/internal/models"
)

// ScanRequest is a live scan submission from the student app.
type ScanRequest struct {
	RoundID           string     `json:"roundId" binding:"required"`
	Token             string     `json:"token" binding:"required"`
	DeviceFingerprint *string    `json:"deviceFingerprint"`
	Latitude          *float64   `json:"latitude"`
	Longitude         *float64   `json:"longitude"`
	CapturedAt        *time.Time `json:"capturedAt"`
}

// QueuedScanItem is one scan captured offline, replayed through the sync
// endpoint. ClientScanID must be stable across replays of the same capture.
type QueuedScanItem struct {
	ClientScanID      string     `json:"clientScanId" binding:"required"`
	RoundID           string     `json:"roundId" binding:"required"`
	Token             string     `json:"token" binding:"required"`
	CapturedAt        *time.Time `json:"capturedAt"`
	DeviceFingerprint *string    `json:"deviceFingerprint"`
	Latitude          *float64   `json:"latitude"`
	Longitude         *float64   `json:"longitude"`
}

// SyncScansRequest is an ordered batch of offline scans.
type SyncScansRequest struct {
	Scans []QueuedScanItem `json:"scans" binding:"required,min=1,dive"`
}

// SyncScanOutcome reports the per-item result of a sync batch.
type SyncScanOutcome struct {
	ClientScanID string                  `json:"clientScanId"`
	Recorded     bool                    `json:"recorded"`
	Status       models.AttendanceStatus `json:"status,omitempty"`
	Error        *SyncScanError          `json:"error,omitempty"`
}

// SyncScanError carries the failure code for one queued scan.
type SyncScanError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SyncScansResponse mirrors the request order item by item.
type SyncScansResponse struct {
	Results []SyncScanOutcome `json:"results"`
}
