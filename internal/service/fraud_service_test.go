package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rollcall-io/rollcall-api/internal/models"
)

type mockSignalWriter struct {
	signals []models.FraudSignal
}

func (m *mockSignalWriter) Insert(ctx context.Context, signal *models.FraudSignal) error {
	m.signals = append(m.signals, *signal)
	return nil
}

func (m *mockSignalWriter) ListBySession(ctx context.Context, sessionID string) ([]models.FraudSignal, error) {
	return m.signals, nil
}

type mockFraudReader struct {
	recentCount  int
	located      []models.AttendanceRecord
	fingerprints []string
}

func (m *mockFraudReader) CountRecentByStudent(ctx context.Context, sessionID, studentID string, since time.Time) (int, error) {
	return m.recentCount, nil
}

func (m *mockFraudReader) ListRecentWithLocation(ctx context.Context, sessionID, excludeStudentID string, since time.Time) ([]models.AttendanceRecord, error) {
	return m.located, nil
}

func (m *mockFraudReader) DeviceFingerprints(ctx context.Context, sessionID, studentID, excludeRecordID string) ([]string, error) {
	return m.fingerprints, nil
}

func fraudInput() FraudCheckInput {
	return FraudCheckInput{
		Record: models.AttendanceRecord{
			ID:         "rec-1",
			RoundID:    "round-1",
			StudentID:  "stu-1",
			RecordedAt: time.Now().UTC(),
		},
		SessionID:        "sess-1",
		DeltaSeconds:     60,
		ThresholdSeconds: 1200,
	}
}

func signalTypes(signals []models.FraudSignal) []models.FraudSignalType {
	types := make([]models.FraudSignalType, len(signals))
	for i, s := range signals {
		types[i] = s.Type
	}
	return types
}

func TestFraudServiceRapidBurst(t *testing.T) {
	writer := &mockSignalWriter{}
	reader := &mockFraudReader{recentCount: 3}
	svc := NewFraudService(writer, reader, 1, 4, nil, zap.NewNop())

	svc.runChecks(context.Background(), fraudInput())
	require.Contains(t, signalTypes(writer.signals), models.FraudSignalRapidBurst)

	writer.signals = nil
	reader.recentCount = 2
	svc.runChecks(context.Background(), fraudInput())
	assert.NotContains(t, signalTypes(writer.signals), models.FraudSignalRapidBurst)
}

func TestFraudServiceGPSCluster(t *testing.T) {
	writer := &mockSignalWriter{}
	lat, lon := 52.22971, 21.01223
	otherLat, otherLon := 52.22968, 21.01219
	reader := &mockFraudReader{located: []models.AttendanceRecord{
		{ID: "rec-2", StudentID: "stu-2", Latitude: &otherLat, Longitude: &otherLon},
	}}
	svc := NewFraudService(writer, reader, 1, 4, nil, zap.NewNop())

	input := fraudInput()
	input.Record.Latitude = &lat
	input.Record.Longitude = &lon
	svc.runChecks(context.Background(), input)
	require.Contains(t, signalTypes(writer.signals), models.FraudSignalGPSCluster)
	for _, signal := range writer.signals {
		if signal.Type == models.FraudSignalGPSCluster {
			assert.Equal(t, models.FraudSeverityLow, signal.Severity)
		}
	}

	// A record without coordinates never clusters.
	writer.signals = nil
	svc.runChecks(context.Background(), fraudInput())
	assert.NotContains(t, signalTypes(writer.signals), models.FraudSignalGPSCluster)
}

func TestFraudServiceGPSClusterToleranceBoxCentersOnScan(t *testing.T) {
	writer := &mockSignalWriter{}
	// 0.00009 degrees apart but on opposite sides of a 4-decimal rounding cell.
	otherLat, otherLon := 52.23004, 21.01223
	reader := &mockFraudReader{located: []models.AttendanceRecord{
		{ID: "rec-2", StudentID: "stu-2", Latitude: &otherLat, Longitude: &otherLon},
	}}
	svc := NewFraudService(writer, reader, 1, 4, nil, zap.NewNop())

	lat, lon := 52.22995, 21.01223
	input := fraudInput()
	input.Record.Latitude = &lat
	input.Record.Longitude = &lon
	svc.runChecks(context.Background(), input)
	assert.Contains(t, signalTypes(writer.signals), models.FraudSignalGPSCluster)

	// Just over the tolerance in latitude.
	writer.signals = nil
	farLat := 52.23006
	reader.located[0].Latitude = &farLat
	svc.runChecks(context.Background(), input)
	assert.NotContains(t, signalTypes(writer.signals), models.FraudSignalGPSCluster)
}

func TestFraudServiceEdgeScan(t *testing.T) {
	writer := &mockSignalWriter{}
	svc := NewFraudService(writer, &mockFraudReader{}, 1, 4, nil, zap.NewNop())

	input := fraudInput()
	input.DeltaSeconds = 1190
	input.ThresholdSeconds = 1200
	svc.runChecks(context.Background(), input)
	require.Contains(t, signalTypes(writer.signals), models.FraudSignalEdgeScan)

	writer.signals = nil
	input.DeltaSeconds = 1100
	svc.runChecks(context.Background(), input)
	assert.NotContains(t, signalTypes(writer.signals), models.FraudSignalEdgeScan)
}

func TestFraudServiceEdgeScanZeroThreshold(t *testing.T) {
	writer := &mockSignalWriter{}
	svc := NewFraudService(writer, &mockFraudReader{}, 1, 4, nil, zap.NewNop())

	// A zero-minute lateness cutoff still has an edge; a scan 10s after the
	// round start sits within the margin.
	input := fraudInput()
	input.DeltaSeconds = 10
	input.ThresholdSeconds = 0
	svc.runChecks(context.Background(), input)
	require.Contains(t, signalTypes(writer.signals), models.FraudSignalEdgeScan)

	writer.signals = nil
	input.DeltaSeconds = 20
	svc.runChecks(context.Background(), input)
	assert.NotContains(t, signalTypes(writer.signals), models.FraudSignalEdgeScan)
}

func TestFraudServiceMultipleDevice(t *testing.T) {
	writer := &mockSignalWriter{}
	reader := &mockFraudReader{fingerprints: []string{"device-a"}}
	svc := NewFraudService(writer, reader, 1, 4, nil, zap.NewNop())

	fingerprint := "device-b"
	input := fraudInput()
	input.Record.DeviceFingerprint = &fingerprint
	input.CourseDeviceBinding = true
	svc.runChecks(context.Background(), input)
	require.Contains(t, signalTypes(writer.signals), models.FraudSignalMultipleDevice)

	// Binding disabled means the heuristic never runs.
	writer.signals = nil
	input.CourseDeviceBinding = false
	svc.runChecks(context.Background(), input)
	assert.NotContains(t, signalTypes(writer.signals), models.FraudSignalMultipleDevice)

	// Same device again is fine.
	writer.signals = nil
	input.CourseDeviceBinding = true
	sameFingerprint := "device-a"
	input.Record.DeviceFingerprint = &sameFingerprint
	svc.runChecks(context.Background(), input)
	assert.NotContains(t, signalTypes(writer.signals), models.FraudSignalMultipleDevice)
}

func TestFraudServiceCheckAsyncNeverBlocks(t *testing.T) {
	writer := &mockSignalWriter{}
	svc := NewFraudService(writer, &mockFraudReader{}, 1, 1, nil, zap.NewNop())

	// The queue was never started; the check is dropped, not blocked on.
	done := make(chan struct{})
	go func() {
		svc.CheckAsync(fraudInput())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("CheckAsync blocked")
	}
}
