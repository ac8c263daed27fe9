// Package offline implements the client-side scan queue replayed against the
// sync endpoint once connectivity returns. It ships with the Go client
// library; the server only ever sees the replay.
package offline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rollcall-io/rollcall-api/internal/models"
	appErrors "github.com/rollcall-io/rollcall-api/pkg/errors"
)

// QueuedScan is one captured-offline scan awaiting replay. ClientScanID is
// assigned at capture time and never changes across retries; it is what lets
// the server deduplicate replays.
type QueuedScan struct {
	ClientScanID      string
	RoundID           string
	Token             string
	CapturedAt        time.Time
	DeviceFingerprint *string
	Latitude          *float64
	Longitude         *float64
}

// Recorder submits one queued scan to the server.
type Recorder interface {
	SubmitQueued(ctx context.Context, scan QueuedScan) (*models.ScanResult, error)
}

// Outcome describes what happened to one queued scan during a sync pass.
type Outcome string

const (
	OutcomeRecorded  Outcome = "recorded"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeDropped   Outcome = "dropped"
	OutcomeRetained  Outcome = "retained"
)

// SyncResult reports per-scan outcomes of a sync pass, in queue order.
type SyncResult struct {
	ClientScanID string
	Outcome      Outcome
	Status       models.AttendanceStatus
	Err          error
}

// Queue buffers scans captured while offline and replays them in capture
// order. Safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	pending []QueuedScan
	logger  *zap.Logger
}

// NewQueue constructs an empty queue.
func NewQueue(logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{logger: logger}
}

// Add captures a scan for later replay, assigning its client scan id.
func (q *Queue) Add(scan QueuedScan) QueuedScan {
	if scan.ClientScanID == "" {
		scan.ClientScanID = uuid.NewString()
	}
	if scan.CapturedAt.IsZero() {
		scan.CapturedAt = time.Now().UTC()
	}
	q.mu.Lock()
	q.pending = append(q.pending, scan)
	q.mu.Unlock()
	return scan
}

// Len returns the number of scans awaiting replay.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Sync replays queued scans sequentially, oldest first.
//
// A recorded or already-synced scan leaves the queue. A scan rejected because
// its token expired, was consumed, or is no longer known can never succeed,
// so it is dropped rather than retried forever; the server sweeps expired
// token rows, so a stale replay often surfaces as an unknown token. Any other
// failure stops the pass and keeps the remaining scans, preserving capture
// order for the next attempt.
func (q *Queue) Sync(ctx context.Context, recorder Recorder) []SyncResult {
	q.mu.Lock()
	batch := make([]QueuedScan, len(q.pending))
	copy(batch, q.pending)
	q.mu.Unlock()

	var results []SyncResult
	var remaining []QueuedScan
	stopped := false

	for i, scan := range batch {
		result, err := recorder.SubmitQueued(ctx, scan)
		switch {
		case err == nil:
			results = append(results, SyncResult{
				ClientScanID: scan.ClientScanID,
				Outcome:      OutcomeRecorded,
				Status:       result.Status,
			})
		case appErrors.Is(err, appErrors.ErrDuplicateOfflineScan) || appErrors.Is(err, appErrors.ErrAlreadyRecorded):
			results = append(results, SyncResult{ClientScanID: scan.ClientScanID, Outcome: OutcomeDuplicate, Err: err})
		case appErrors.Is(err, appErrors.ErrTokenExpired) || appErrors.Is(err, appErrors.ErrTokenAlreadyConsumed) || appErrors.Is(err, appErrors.ErrInvalidToken):
			q.logger.Info("dropping unreplayable offline scan",
				zap.String("client_scan_id", scan.ClientScanID),
				zap.Error(err))
			results = append(results, SyncResult{ClientScanID: scan.ClientScanID, Outcome: OutcomeDropped, Err: err})
		default:
			// Transient failure; keep this scan and everything after it.
			stopped = true
			remaining = append(remaining, batch[i:]...)
			results = append(results, SyncResult{ClientScanID: scan.ClientScanID, Outcome: OutcomeRetained, Err: err})
			for _, rest := range batch[i+1:] {
				results = append(results, SyncResult{ClientScanID: rest.ClientScanID, Outcome: OutcomeRetained})
			}
		}
		if stopped {
			break
		}
	}

	q.mu.Lock()
	// New scans may have arrived during the pass; keep them after the retained tail.
	fresh := q.pending[len(batch):]
	q.pending = append(remaining, fresh...)
	q.mu.Unlock()

	return results
}
