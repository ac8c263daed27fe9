package service

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/rollcall-io/rollcall-api/internal/models"
	appErrors "github.com/rollcall-io/rollcall-api/pkg/errors"
)

type excuseRepository interface {
	Insert(ctx context.Context, excuse *models.ExcuseRequest) error
	GetByID(ctx context.Context, id string) (*models.ExcuseRequest, error)
	Review(ctx context.Context, id string, status models.ExcuseStatus, reviewerID string, now time.Time) (bool, error)
}

type excusedUpserter interface {
	UpsertExcused(ctx context.Context, roundID, studentID string, recordedAt time.Time) error
}

// ExcuseService runs the excuse-request workflow. Approval is the only path
// that may write an excused attendance record.
type ExcuseService struct {
	excuses     excuseRepository
	attendance  excusedUpserter
	rounds      roundRepository
	sessions    sessionRepository
	enrollments enrollmentReader
	logger      *zap.Logger
	now         func() time.Time
}

// NewExcuseService constructs the excuse workflow.
func NewExcuseService(excuses excuseRepository, attendance excusedUpserter, rounds roundRepository, sessions sessionRepository, enrollments enrollmentReader, logger *zap.Logger) *ExcuseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExcuseService{
		excuses:     excuses,
		attendance:  attendance,
		rounds:      rounds,
		sessions:    sessions,
		enrollments: enrollments,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Submit files a pending excuse request for a round the student belongs to.
func (s *ExcuseService) Submit(ctx context.Context, studentID, roundID, reason string) (*models.ExcuseRequest, error) {
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "reason is required")
	}

	round, err := s.rounds.GetByID(ctx, roundID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "round not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load round")
	}

	session, err := s.sessions.GetByID(ctx, round.SessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	enrolled, err := s.enrollments.IsEnrolled(ctx, studentID, session.GroupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return nil, appErrors.ErrNotEnrolled
	}

	excuse := &models.ExcuseRequest{
		RoundID:   roundID,
		StudentID: studentID,
		Reason:    reason,
	}
	if err := s.excuses.Insert(ctx, excuse); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit excuse request")
	}
	return excuse, nil
}

// Review approves or rejects a pending request. Only the owner of the course
// behind the round may review; a request already reviewed stays as it is.
func (s *ExcuseService) Review(ctx context.Context, reviewerID, excuseID string, approve bool) (*models.ExcuseRequest, error) {
	excuse, err := s.excuses.GetByID(ctx, excuseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "excuse request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load excuse request")
	}

	round, err := s.rounds.GetByID(ctx, excuse.RoundID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load round")
	}
	session, err := s.sessions.GetByID(ctx, round.SessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	course, err := s.enrollments.GetCourseByGroup(ctx, session.GroupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course.OwnerID != reviewerID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the course owner can review excuse requests")
	}

	status := models.ExcuseStatusRejected
	if approve {
		status = models.ExcuseStatusApproved
	}
	now := s.now()
	reviewed, err := s.excuses.Review(ctx, excuseID, status, reviewerID, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to review excuse request")
	}
	if !reviewed {
		return nil, appErrors.Clone(appErrors.ErrConflict, "excuse request already reviewed")
	}

	if approve {
		if err := s.attendance.UpsertExcused(ctx, excuse.RoundID, excuse.StudentID, now); err != nil {
			// The review itself stands; the excused record can be replayed.
			s.logger.Error("excused attendance upsert failed",
				zap.String("excuse_id", excuseID),
				zap.String("round_id", excuse.RoundID),
				zap.Error(err))
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record excused attendance")
		}
	}

	excuse.Status = status
	excuse.ReviewedBy = &reviewerID
	excuse.ReviewedAt = &now
	excuse.UpdatedAt = now
	return excuse, nil
}
