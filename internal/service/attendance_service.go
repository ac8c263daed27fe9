package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/rollcall-io/rollcall-api/internal/events"
	"github.com/rollcall-io/rollcall-api/internal/models"
	"github.com/rollcall-io/rollcall-api/internal/repository"
	appErrors "github.com/rollcall-io/rollcall-api/pkg/errors"
)

type attendanceRepository interface {
	Insert(ctx context.Context, record *models.AttendanceRecord) error
	FindByRoundAndStudent(ctx context.Context, roundID, studentID string) (*models.AttendanceRecord, error)
	ExistsByRoundAndStudent(ctx context.Context, roundID, studentID string) (bool, error)
}

type enrollmentReader interface {
	IsEnrolled(ctx context.Context, studentID, groupID string) (bool, error)
	GetCourseByGroup(ctx context.Context, groupID string) (*models.Course, error)
}

type tokenConsumer interface {
	Issue(ctx context.Context, roundID string) (*models.IssuedToken, error)
	Consume(ctx context.Context, roundID, rawSecret string) (*models.ScanToken, error)
}

type policyResolver interface {
	Resolve(ctx context.Context, courseID, facultyID *string) (*models.ResolvedPolicy, error)
}

type fraudChecker interface {
	CheckAsync(input FraudCheckInput)
}

// ScanInput is one scan submission, live or replayed from an offline queue.
type ScanInput struct {
	RoundID           string
	Token             string
	StudentID         string
	CapturedAtClient  *time.Time
	DeviceFingerprint *string
	Latitude          *float64
	Longitude         *float64
	ClientScanID      *string
}

// AttendanceService orchestrates the scan pipeline: validate, consume the
// token, classify lateness, persist exactly once, then kick off the advisory
// tail (fraud checks, token rotation, events).
type AttendanceService struct {
	attendance  attendanceRepository
	sessions    sessionRepository
	rounds      roundRepository
	enrollments enrollmentReader
	tokens      tokenConsumer
	policies    policyResolver
	fraud       fraudChecker
	publisher   events.Publisher
	metrics     *MetricsService
	logger      *zap.Logger
	now         func() time.Time
}

// NewAttendanceService constructs the attendance recorder.
func NewAttendanceService(
	attendance attendanceRepository,
	sessions sessionRepository,
	rounds roundRepository,
	enrollments enrollmentReader,
	tokens tokenConsumer,
	policies policyResolver,
	fraud fraudChecker,
	publisher events.Publisher,
	metrics *MetricsService,
	logger *zap.Logger,
) *AttendanceService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		attendance:  attendance,
		sessions:    sessions,
		rounds:      rounds,
		enrollments: enrollments,
		tokens:      tokens,
		policies:    policies,
		fraud:       fraud,
		publisher:   publisher,
		metrics:     metrics,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// RecordScan runs the full pipeline for one scan. The cheap rejections come
// first so an invalid scan never burns a token; the storage constraints, not
// the fast-path check, are the exactly-once guarantee.
func (s *AttendanceService) RecordScan(ctx context.Context, input ScanInput) (*models.ScanResult, error) {
	result, err := s.recordScan(ctx, input)
	if err != nil {
		s.metrics.RecordScanOutcome(appErrors.FromError(err).Code)
		return nil, err
	}
	s.metrics.RecordScanOutcome(string(result.Status))
	return result, nil
}

func (s *AttendanceService) recordScan(ctx context.Context, input ScanInput) (*models.ScanResult, error) {
	round, err := s.rounds.GetByID(ctx, input.RoundID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrRoundNotActive
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load round")
	}
	if !round.IsActive {
		return nil, appErrors.ErrRoundNotActive
	}

	session, err := s.sessions.GetByID(ctx, round.SessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if !session.IsActive {
		return nil, appErrors.ErrSessionNotActive
	}

	course, err := s.enrollments.GetCourseByGroup(ctx, session.GroupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	enrolled, err := s.enrollments.IsEnrolled(ctx, input.StudentID, session.GroupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return nil, appErrors.ErrNotEnrolled
	}

	// Fast path: a visible duplicate is rejected before spending the token.
	if err := s.rejectExistingRecord(ctx, input); err != nil {
		return nil, err
	}

	if round.GeofenceEnabled {
		if err := s.checkGeofence(round, input); err != nil {
			return nil, err
		}
	}

	if _, err := s.tokens.Consume(ctx, input.RoundID, input.Token); err != nil {
		return nil, err
	}

	resolved, err := s.policies.Resolve(ctx, &course.ID, course.FacultyID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	status, deltaSeconds, thresholdSeconds := classifyLateness(round, resolved.Rules, now)

	record := &models.AttendanceRecord{
		RoundID:           input.RoundID,
		StudentID:         input.StudentID,
		Status:            status,
		RecordedAt:        now,
		CapturedAtClient:  input.CapturedAtClient,
		DeviceFingerprint: input.DeviceFingerprint,
		Latitude:          input.Latitude,
		Longitude:         input.Longitude,
		ClientScanID:      input.ClientScanID,
	}
	if err := s.attendance.Insert(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicateClientScan) {
			return nil, appErrors.ErrDuplicateOfflineScan
		}
		if errors.Is(err, repository.ErrDuplicateAttendance) {
			return nil, appErrors.ErrAlreadyRecorded
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}

	if s.fraud != nil {
		s.fraud.CheckAsync(FraudCheckInput{
			Record:              *record,
			SessionID:           session.ID,
			CourseDeviceBinding: course.DeviceBindingEnabled,
			DeltaSeconds:        deltaSeconds,
			ThresholdSeconds:    thresholdSeconds,
		})
	}

	s.rotateToken(ctx, session, round)

	s.logger.Info("attendance recorded",
		zap.String("round_id", record.RoundID),
		zap.String("student_id", record.StudentID),
		zap.String("status", string(record.Status)))

	return &models.ScanResult{
		RoundID:    record.RoundID,
		RecordedAt: record.RecordedAt,
		Status:     record.Status,
	}, nil
}

// rejectExistingRecord distinguishes an offline replay, which must drop
// silently, from a genuine second scan in the same round.
func (s *AttendanceService) rejectExistingRecord(ctx context.Context, input ScanInput) error {
	exists, err := s.attendance.ExistsByRoundAndStudent(ctx, input.RoundID, input.StudentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check attendance")
	}
	if !exists {
		return nil
	}
	if input.ClientScanID != nil {
		existing, err := s.attendance.FindByRoundAndStudent(ctx, input.RoundID, input.StudentID)
		if err == nil && existing.ClientScanID != nil && *existing.ClientScanID == *input.ClientScanID {
			return appErrors.ErrDuplicateOfflineScan
		}
	}
	return appErrors.ErrAlreadyRecorded
}

func (s *AttendanceService) checkGeofence(round *models.Round, input ScanInput) error {
	lat, lon, radius, ok := round.Geofence()
	if !ok {
		return appErrors.ErrGeofenceMisconfigured
	}
	if input.Latitude == nil || input.Longitude == nil {
		return appErrors.ErrLocationRequired
	}
	if haversineMeters(lat, lon, *input.Latitude, *input.Longitude) > radius {
		return appErrors.ErrOutsideGeofence
	}
	return nil
}

// rotateToken puts a fresh code on the professor's screen once the previous
// one is spent. Failure here never fails the already-recorded scan.
func (s *AttendanceService) rotateToken(ctx context.Context, session *models.Session, round *models.Round) {
	issued, err := s.tokens.Issue(ctx, round.ID)
	if err != nil {
		s.logger.Warn("token rotation failed",
			zap.String("round_id", round.ID),
			zap.Error(err))
		return
	}
	payload := buildQRPayload(session, round, issued)
	if err := s.publisher.Publish(ctx, events.Event{
		Name:      events.RoundQRUpdated,
		SessionID: session.ID,
		Payload:   payload,
	}); err != nil {
		s.logger.Warn("qr update publish failed",
			zap.String("session_id", session.ID),
			zap.Error(err))
	}
}

// classifyLateness computes the status from the server clock only. A scan
// landing exactly on the cutoff is still on time; the break threshold applies
// to break rounds, the first-hour threshold to everything else.
func classifyLateness(round *models.Round, rules models.PolicyRules, now time.Time) (models.AttendanceStatus, float64, float64) {
	deltaSeconds := now.Sub(round.StartsAt).Seconds()

	lateAfter := rules.LateAfterMinutes.FirstHour
	if round.IsBreakRound {
		lateAfter = rules.LateAfterMinutes.Break
	}
	thresholdSeconds := float64(lateAfter+rules.GraceMinutes) * 60

	status := models.AttendanceStatusOnTime
	if deltaSeconds > thresholdSeconds {
		status = models.AttendanceStatusLate
	}
	return status, deltaSeconds, thresholdSeconds
}
