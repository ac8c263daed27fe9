package offline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rollcall-io/rollcall-api/internal/models"
	appErrors "github.com/rollcall-io/rollcall-api/pkg/errors"
)

type stubRecorder struct {
	responses map[string]error
	submitted []string
	onSubmit  func(scan QueuedScan)
}

func (r *stubRecorder) SubmitQueued(ctx context.Context, scan QueuedScan) (*models.ScanResult, error) {
	r.submitted = append(r.submitted, scan.ClientScanID)
	if r.onSubmit != nil {
		r.onSubmit(scan)
	}
	if err, ok := r.responses[scan.ClientScanID]; ok {
		return nil, err
	}
	return &models.ScanResult{Status: models.AttendanceStatusOnTime}, nil
}

func queuedScan(id string) QueuedScan {
	return QueuedScan{
		ClientScanID: id,
		RoundID:      "round-1",
		Token:        "secret",
		CapturedAt:   time.Now().UTC(),
	}
}

func TestQueueAddAssignsClientScanID(t *testing.T) {
	q := NewQueue(zap.NewNop())

	scan := q.Add(QueuedScan{RoundID: "round-1", Token: "secret"})
	assert.NotEmpty(t, scan.ClientScanID)
	assert.False(t, scan.CapturedAt.IsZero())
	assert.Equal(t, 1, q.Len())
}

func TestQueueSyncRecordsInCaptureOrder(t *testing.T) {
	q := NewQueue(zap.NewNop())
	q.Add(queuedScan("a"))
	q.Add(queuedScan("b"))
	q.Add(queuedScan("c"))

	recorder := &stubRecorder{}
	results := q.Sync(context.Background(), recorder)

	require.Len(t, results, 3)
	assert.Equal(t, []string{"a", "b", "c"}, recorder.submitted)
	for _, result := range results {
		assert.Equal(t, OutcomeRecorded, result.Outcome)
		assert.Equal(t, models.AttendanceStatusOnTime, result.Status)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueueSyncRemovesDuplicates(t *testing.T) {
	q := NewQueue(zap.NewNop())
	q.Add(queuedScan("a"))
	q.Add(queuedScan("b"))

	recorder := &stubRecorder{responses: map[string]error{
		"a": appErrors.ErrDuplicateOfflineScan,
		"b": appErrors.ErrAlreadyRecorded,
	}}
	results := q.Sync(context.Background(), recorder)

	require.Len(t, results, 2)
	assert.Equal(t, OutcomeDuplicate, results[0].Outcome)
	assert.Equal(t, OutcomeDuplicate, results[1].Outcome)
	assert.Equal(t, 0, q.Len())
}

func TestQueueSyncDropsUnreplayableScans(t *testing.T) {
	q := NewQueue(zap.NewNop())
	q.Add(queuedScan("expired"))
	q.Add(queuedScan("consumed"))
	q.Add(queuedScan("bogus"))

	recorder := &stubRecorder{responses: map[string]error{
		"expired":  appErrors.ErrTokenExpired,
		"consumed": appErrors.ErrTokenAlreadyConsumed,
		"bogus":    appErrors.ErrInvalidToken,
	}}
	results := q.Sync(context.Background(), recorder)

	require.Len(t, results, 3)
	for _, result := range results {
		assert.Equal(t, OutcomeDropped, result.Outcome)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueueSyncTransientFailureRetainsTail(t *testing.T) {
	q := NewQueue(zap.NewNop())
	q.Add(queuedScan("a"))
	q.Add(queuedScan("b"))
	q.Add(queuedScan("c"))

	recorder := &stubRecorder{responses: map[string]error{
		"b": appErrors.ErrInternal,
	}}
	results := q.Sync(context.Background(), recorder)

	// The pass stops at the failure; c is never submitted.
	assert.Equal(t, []string{"a", "b"}, recorder.submitted)
	require.Len(t, results, 3)
	assert.Equal(t, OutcomeRecorded, results[0].Outcome)
	assert.Equal(t, OutcomeRetained, results[1].Outcome)
	assert.Equal(t, OutcomeRetained, results[2].Outcome)
	assert.Equal(t, 2, q.Len())

	// The retained tail replays in its original order.
	retry := &stubRecorder{}
	q.Sync(context.Background(), retry)
	assert.Equal(t, []string{"b", "c"}, retry.submitted)
	assert.Equal(t, 0, q.Len())
}

func TestQueueSyncKeepsScansAddedDuringPass(t *testing.T) {
	q := NewQueue(zap.NewNop())
	q.Add(queuedScan("a"))

	recorder := &stubRecorder{}
	recorder.onSubmit = func(scan QueuedScan) {
		q.Add(queuedScan("late-arrival"))
	}
	q.Sync(context.Background(), recorder)

	require.Equal(t, 1, q.Len())
	retry := &stubRecorder{}
	q.Sync(context.Background(), retry)
	assert.Equal(t, []string{"late-arrival"}, retry.submitted)
}
