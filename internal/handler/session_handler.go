package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rollcall-io/rollcall-api/internal/dto"
	"github.com/rollcall-io/rollcall-api/internal/models"
	"github.com/rollcall-io/rollcall-api/internal/service"
	appErrors "github.com/rollcall-io/rollcall-api/pkg/errors"
	"github.com/rollcall-io/rollcall-api/pkg/response"
)

type sessionService interface {
	Start(ctx context.Context, professorID, groupID string, opts service.RoundOpts) (*models.Session, *models.QRPayload, error)
	StartRound(ctx context.Context, professorID, sessionID string, opts service.RoundOpts) (*models.QRPayload, error)
	CloseRound(ctx context.Context, professorID, sessionID, roundID string) error
	End(ctx context.Context, professorID, sessionID string) (*models.SessionSummary, error)
	Summary(ctx context.Context, professorID, sessionID string) (*models.SessionSummary, error)
	RotateToken(ctx context.Context, professorID, sessionID, roundID string) (*models.QRPayload, error)
}

type fraudReader interface {
	ListBySession(ctx context.Context, sessionID string) ([]models.FraudSignal, error)
}

// SessionHandler exposes the professor-facing session endpoints.
type SessionHandler struct {
	service sessionService
	fraud   fraudReader
}

// NewSessionHandler builds a new handler.
func NewSessionHandler(service sessionService, fraud fraudReader) *SessionHandler {
	return &SessionHandler{service: service, fraud: fraud}
}

// Start godoc
// @Summary Start a session for a group
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body dto.StartSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Start(c *gin.Context) {
	var req dto.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	session, qr, err := h.service.Start(c.Request.Context(), claims.UserID, req.GroupID, service.RoundOpts{
		IsBreakRound: req.IsBreak,
		Geofence:     req.Geofence,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.StartSessionResponse{Session: session, QR: qr})
}

// StartRound godoc
// @Summary Open the next round of a session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.StartRoundRequest true "Round payload"
// @Success 201 {object} response.Envelope
// @Router /sessions/{id}/rounds [post]
func (h *SessionHandler) StartRound(c *gin.Context) {
	var req dto.StartRoundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid round payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	qr, err := h.service.StartRound(c.Request.Context(), claims.UserID, c.Param("id"), service.RoundOpts{
		IsBreakRound: req.IsBreak,
		Geofence:     req.Geofence,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, qr)
}

// CloseRound godoc
// @Summary Close a round without ending the session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Param roundId path string true "Round ID"
// @Success 204
// @Router /sessions/{id}/rounds/{roundId} [delete]
func (h *SessionHandler) CloseRound(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.CloseRound(c.Request.Context(), claims.UserID, c.Param("id"), c.Param("roundId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RotateToken godoc
// @Summary Issue a replacement QR token for an active round
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Param roundId path string true "Round ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/rounds/{roundId}/token [post]
func (h *SessionHandler) RotateToken(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	qr, err := h.service.RotateToken(c.Request.Context(), claims.UserID, c.Param("id"), c.Param("roundId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, qr, nil)
}

// End godoc
// @Summary End a session and publish its summary
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/end [post]
func (h *SessionHandler) End(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	summary, err := h.service.End(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Summary godoc
// @Summary Live attendance summary for a session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/summary [get]
func (h *SessionHandler) Summary(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	summary, err := h.service.Summary(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// FraudSignals godoc
// @Summary Advisory fraud signals for a session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/fraud-signals [get]
func (h *SessionHandler) FraudSignals(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	// Ownership is checked by the summary path sharing the same session.
	if _, err := h.service.Summary(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	signals, err := h.fraud.ListBySession(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, signals, nil)
}
