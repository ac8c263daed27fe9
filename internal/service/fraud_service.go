package service

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/rollcall-io/rollcall-api/internal/models"
	"github.com/rollcall-io/rollcall-api/pkg/jobs"
)

// Heuristic windows and cutoffs. Signals are advisory; tuning these changes
// what gets flagged for review, never what gets recorded.
const (
	rapidBurstWindow       = 60 * time.Second
	rapidBurstMinScans     = 3
	gpsClusterWindow       = 120 * time.Second
	gpsClusterToleranceDeg = 1e-4
	edgeScanMarginSecs     = 15
)

type fraudSignalWriter interface {
	Insert(ctx context.Context, signal *models.FraudSignal) error
	ListBySession(ctx context.Context, sessionID string) ([]models.FraudSignal, error)
}

type fraudAttendanceReader interface {
	CountRecentByStudent(ctx context.Context, sessionID, studentID string, since time.Time) (int, error)
	ListRecentWithLocation(ctx context.Context, sessionID, excludeStudentID string, since time.Time) ([]models.AttendanceRecord, error)
	DeviceFingerprints(ctx context.Context, sessionID, studentID, excludeRecordID string) ([]string, error)
}

// FraudCheckInput carries everything the heuristics need, captured at record
// time so the worker never re-derives request state.
type FraudCheckInput struct {
	Record              models.AttendanceRecord
	SessionID           string
	CourseDeviceBinding bool
	DeltaSeconds        float64
	ThresholdSeconds    float64
}

// FraudService runs the scan-fraud heuristics off the request path. A failed
// or dropped check costs a signal, never an attendance record.
type FraudService struct {
	signals    fraudSignalWriter
	attendance fraudAttendanceReader
	queue      *jobs.Queue
	metrics    *MetricsService
	logger     *zap.Logger
	now        func() time.Time
}

// NewFraudService constructs the heuristics engine with its own worker queue.
func NewFraudService(signals fraudSignalWriter, attendance fraudAttendanceReader, workers, bufferSize int, metrics *MetricsService, logger *zap.Logger) *FraudService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &FraudService{
		signals:    signals,
		attendance: attendance,
		metrics:    metrics,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
	s.queue = jobs.NewQueue("fraud-checks", s.handleJob, jobs.QueueConfig{
		Workers:    workers,
		BufferSize: bufferSize,
		MaxRetries: 1,
		Logger:     logger,
	})
	return s
}

// Start launches the worker pool.
func (s *FraudService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the worker pool.
func (s *FraudService) Stop() {
	s.queue.Stop()
}

// CheckAsync enqueues the heuristics for a freshly recorded scan. A full
// buffer drops the check; the scan itself already succeeded.
func (s *FraudService) CheckAsync(input FraudCheckInput) {
	if !s.queue.TryEnqueue(jobs.Job{
		ID:      input.Record.ID,
		Type:    "fraud-check",
		Payload: input,
	}) {
		s.logger.Warn("fraud check dropped",
			zap.String("record_id", input.Record.ID),
			zap.String("session_id", input.SessionID))
	}
}

// ListBySession returns a session's signals for the professor's review view.
func (s *FraudService) ListBySession(ctx context.Context, sessionID string) ([]models.FraudSignal, error) {
	return s.signals.ListBySession(ctx, sessionID)
}

// handleJob always returns nil: heuristic failures are logged, not retried,
// so a flaky query cannot duplicate signals.
func (s *FraudService) handleJob(ctx context.Context, job jobs.Job) error {
	input, ok := job.Payload.(FraudCheckInput)
	if !ok {
		s.logger.Error("unexpected fraud job payload", zap.String("job_id", job.ID))
		return nil
	}
	s.runChecks(ctx, input)
	return nil
}

func (s *FraudService) runChecks(ctx context.Context, input FraudCheckInput) {
	s.checkRapidBurst(ctx, input)
	s.checkGPSCluster(ctx, input)
	s.checkEdgeScan(ctx, input)
	s.checkMultipleDevice(ctx, input)
}

// checkRapidBurst flags a student posting several records across a session in
// a short trailing window, a pattern of codes being relayed out of the room.
func (s *FraudService) checkRapidBurst(ctx context.Context, input FraudCheckInput) {
	since := input.Record.RecordedAt.Add(-rapidBurstWindow)
	count, err := s.attendance.CountRecentByStudent(ctx, input.SessionID, input.Record.StudentID, since)
	if err != nil {
		s.logger.Warn("rapid burst check failed", zap.Error(err))
		return
	}
	if count < rapidBurstMinScans {
		return
	}
	s.emit(ctx, input, models.FraudSignalRapidBurst, models.FraudSeverityMedium, map[string]interface{}{
		"count":          count,
		"window_seconds": int(rapidBurstWindow.Seconds()),
	})
}

// checkGPSCluster flags another student's recent record inside a one-in-1e4
// degree tolerance box centered on this scan, roughly an 11m cell.
func (s *FraudService) checkGPSCluster(ctx context.Context, input FraudCheckInput) {
	if input.Record.Latitude == nil || input.Record.Longitude == nil {
		return
	}
	since := input.Record.RecordedAt.Add(-gpsClusterWindow)
	others, err := s.attendance.ListRecentWithLocation(ctx, input.SessionID, input.Record.StudentID, since)
	if err != nil {
		s.logger.Warn("gps cluster check failed", zap.Error(err))
		return
	}
	lat := *input.Record.Latitude
	lon := *input.Record.Longitude
	matches := 0
	for _, other := range others {
		if math.Abs(*other.Latitude-lat) <= gpsClusterToleranceDeg &&
			math.Abs(*other.Longitude-lon) <= gpsClusterToleranceDeg {
			matches++
		}
	}
	if matches == 0 {
		return
	}
	s.emit(ctx, input, models.FraudSignalGPSCluster, models.FraudSeverityLow, map[string]interface{}{
		"matches":        matches,
		"window_seconds": int(gpsClusterWindow.Seconds()),
	})
}

// checkEdgeScan flags scans landing within a small margin of the lateness
// cutoff, where clock gaming pays off the most.
func (s *FraudService) checkEdgeScan(ctx context.Context, input FraudCheckInput) {
	margin := math.Abs(input.DeltaSeconds - input.ThresholdSeconds)
	if margin > edgeScanMarginSecs {
		return
	}
	s.emit(ctx, input, models.FraudSignalEdgeScan, models.FraudSeverityLow, map[string]interface{}{
		"delta_seconds":     input.DeltaSeconds,
		"threshold_seconds": input.ThresholdSeconds,
	})
}

// checkMultipleDevice flags a fingerprint change within a session when the
// course has device binding enabled.
func (s *FraudService) checkMultipleDevice(ctx context.Context, input FraudCheckInput) {
	if !input.CourseDeviceBinding || input.Record.DeviceFingerprint == nil {
		return
	}
	fingerprints, err := s.attendance.DeviceFingerprints(ctx, input.SessionID, input.Record.StudentID, input.Record.ID)
	if err != nil {
		s.logger.Warn("multiple device check failed", zap.Error(err))
		return
	}
	for _, fp := range fingerprints {
		if fp != *input.Record.DeviceFingerprint {
			s.emit(ctx, input, models.FraudSignalMultipleDevice, models.FraudSeverityMedium, map[string]interface{}{
				"devices_seen": len(fingerprints) + 1,
			})
			return
		}
	}
}

func (s *FraudService) emit(ctx context.Context, input FraudCheckInput, signalType models.FraudSignalType, severity models.FraudSeverity, details map[string]interface{}) {
	raw, err := json.Marshal(details)
	if err != nil {
		raw = []byte("{}")
	}
	signal := &models.FraudSignal{
		Type:      signalType,
		Severity:  severity,
		SessionID: input.SessionID,
		RoundID:   &input.Record.RoundID,
		StudentID: &input.Record.StudentID,
		Details:   raw,
		CreatedAt: s.now(),
	}
	if err := s.signals.Insert(ctx, signal); err != nil {
		s.logger.Warn("fraud signal insert failed",
			zap.String("type", string(signalType)),
			zap.Error(err))
		return
	}
	s.metrics.RecordFraudSignal(string(signalType))
	s.logger.Info("fraud signal emitted",
		zap.String("type", string(signalType)),
		zap.String("severity", string(severity)),
		zap.String("session_id", input.SessionID),
		zap.String("student_id", input.Record.StudentID))
}
