package service

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/rollcall-io/rollcall-api/internal/events"
	"github.com/rollcall-io/rollcall-api/internal/models"
	appErrors "github.com/rollcall-io/rollcall-api/pkg/errors"
)

type sessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	End(ctx context.Context, sessionID string, now time.Time) (bool, error)
	Summary(ctx context.Context, sessionID string) (*models.SessionSummary, error)
}

type roundRepository interface {
	Create(ctx context.Context, round *models.Round) error
	GetByID(ctx context.Context, id string) (*models.Round, error)
	Close(ctx context.Context, sessionID, roundID string, now time.Time) (bool, error)
}

type courseReader interface {
	GetCourseByGroup(ctx context.Context, groupID string) (*models.Course, error)
}

type tokenIssuer interface {
	Issue(ctx context.Context, roundID string) (*models.IssuedToken, error)
}

// SessionService drives the session and round state machines and hands out
// the QR payloads the professor's screen renders.
type SessionService struct {
	sessions  sessionRepository
	rounds    roundRepository
	courses   courseReader
	tokens    tokenIssuer
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewSessionService constructs the session state machine.
func NewSessionService(sessions sessionRepository, rounds roundRepository, courses courseReader, tokens tokenIssuer, publisher events.Publisher, logger *zap.Logger) *SessionService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		sessions:  sessions,
		rounds:    rounds,
		courses:   courses,
		tokens:    tokens,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RoundOpts configures a newly opened round.
type RoundOpts struct {
	IsBreakRound bool
	Geofence     *models.GeofenceOpts
}

// Start opens a session for a group and immediately opens round 1 with a
// fresh token, so the QR code is on screen the moment the professor starts.
func (s *SessionService) Start(ctx context.Context, professorID, groupID string, opts RoundOpts) (*models.Session, *models.QRPayload, error) {
	course, err := s.courses.GetCourseByGroup(ctx, groupID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course.OwnerID != professorID {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "only the course owner can start a session")
	}

	session := &models.Session{
		GroupID:     groupID,
		ProfessorID: professorID,
		Status:      models.SessionStatusActive,
		IsActive:    true,
		StartsAt:    s.now(),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}

	payload, err := s.openRound(ctx, session, opts)
	if err != nil {
		return nil, nil, err
	}
	return session, payload, nil
}

// StartRound opens the next round of an active session. Any still-active
// round is closed as part of the same write.
func (s *SessionService) StartRound(ctx context.Context, professorID, sessionID string, opts RoundOpts) (*models.QRPayload, error) {
	session, err := s.activeOwnedSession(ctx, professorID, sessionID)
	if err != nil {
		return nil, err
	}
	return s.openRound(ctx, session, opts)
}

// CloseRound closes a round without ending the session.
func (s *SessionService) CloseRound(ctx context.Context, professorID, sessionID, roundID string) error {
	if _, err := s.activeOwnedSession(ctx, professorID, sessionID); err != nil {
		return err
	}
	closed, err := s.rounds.Close(ctx, sessionID, roundID, s.now())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close round")
	}
	if !closed {
		return appErrors.ErrRoundNotActive
	}
	return nil
}

// End closes the session and every open round, then publishes the summary.
func (s *SessionService) End(ctx context.Context, professorID, sessionID string) (*models.SessionSummary, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session.ProfessorID != professorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the session owner can end it")
	}

	ended, err := s.sessions.End(ctx, sessionID, s.now())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to end session")
	}
	if !ended {
		return nil, appErrors.ErrSessionNotActive
	}

	summary, err := s.sessions.Summary(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build session summary")
	}

	s.publish(ctx, events.Event{
		Name:      events.SessionEnded,
		SessionID: sessionID,
		Payload:   summary,
	})
	return summary, nil
}

// Summary returns the live aggregate view of a session for its owner.
func (s *SessionService) Summary(ctx context.Context, professorID, sessionID string) (*models.SessionSummary, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session.ProfessorID != professorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the session owner can view the summary")
	}
	summary, err := s.sessions.Summary(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build session summary")
	}
	return summary, nil
}

// RotateToken issues a replacement token for an active round. Used by the
// professor client when the on-screen code times out between scans.
func (s *SessionService) RotateToken(ctx context.Context, professorID, sessionID, roundID string) (*models.QRPayload, error) {
	session, err := s.activeOwnedSession(ctx, professorID, sessionID)
	if err != nil {
		return nil, err
	}
	round, err := s.rounds.GetByID(ctx, roundID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "round not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load round")
	}
	if round.SessionID != session.ID || !round.IsActive {
		return nil, appErrors.ErrRoundNotActive
	}

	issued, err := s.tokens.Issue(ctx, round.ID)
	if err != nil {
		return nil, err
	}
	payload := buildQRPayload(session, round, issued)
	s.publish(ctx, events.Event{
		Name:      events.RoundQRUpdated,
		SessionID: session.ID,
		Payload:   payload,
	})
	return payload, nil
}

func (s *SessionService) openRound(ctx context.Context, session *models.Session, opts RoundOpts) (*models.QRPayload, error) {
	round := &models.Round{
		SessionID:    session.ID,
		IsBreakRound: opts.IsBreakRound,
		StartsAt:     s.now(),
	}
	if opts.Geofence != nil {
		round.GeofenceEnabled = true
		round.GeofenceLat = &opts.Geofence.Lat
		round.GeofenceLon = &opts.Geofence.Lon
		round.GeofenceRadiusM = &opts.Geofence.RadiusM
	}
	if err := s.rounds.Create(ctx, round); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create round")
	}

	issued, err := s.tokens.Issue(ctx, round.ID)
	if err != nil {
		return nil, err
	}

	payload := buildQRPayload(session, round, issued)
	s.publish(ctx, events.Event{
		Name:      events.RoundStarted,
		SessionID: session.ID,
		Payload:   payload,
	})
	return payload, nil
}

func (s *SessionService) activeOwnedSession(ctx context.Context, professorID, sessionID string) (*models.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session.ProfessorID != professorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the session owner can manage it")
	}
	if !session.IsActive {
		return nil, appErrors.ErrSessionNotActive
	}
	return session, nil
}

// publish failures never fail the state change itself.
func (s *SessionService) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed",
			zap.String("event", event.Name),
			zap.String("session_id", event.SessionID),
			zap.Error(err))
	}
}

func buildQRPayload(session *models.Session, round *models.Round, issued *models.IssuedToken) *models.QRPayload {
	payload := &models.QRPayload{
		RoundID:      round.ID,
		Token:        issued.RawSecret,
		SessionID:    session.ID,
		RoundNumber:  round.RoundNumber,
		IsBreakRound: round.IsBreakRound,
		ExpiresAt:    issued.ExpiresAt,
	}
	if round.GeofenceEnabled {
		if lat, lon, radius, ok := round.Geofence(); ok {
			payload.Geofence = &models.GeofenceOpts{Lat: lat, Lon: lon, RadiusM: radius}
		}
	}
	return payload
}
