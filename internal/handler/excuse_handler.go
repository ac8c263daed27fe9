package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rollcall-io/rollcall-api/internal/dto"
	"github.com/rollcall-io/rollcall-api/internal/models"
	appErrors "github.com/rollcall-io/rollcall-api/pkg/errors"
	"github.com/rollcall-io/rollcall-api/pkg/response"
)

type excuseService interface {
	Submit(ctx context.Context, studentID, roundID, reason string) (*models.ExcuseRequest, error)
	Review(ctx context.Context, reviewerID, excuseID string, approve bool) (*models.ExcuseRequest, error)
}

// ExcuseHandler exposes the excuse-request workflow endpoints.
type ExcuseHandler struct {
	service excuseService
}

// NewExcuseHandler builds a new handler.
func NewExcuseHandler(service excuseService) *ExcuseHandler {
	return &ExcuseHandler{service: service}
}

// Submit godoc
// @Summary Submit an excuse request for a round
// @Tags Excuses
// @Accept json
// @Produce json
// @Param payload body dto.SubmitExcuseRequest true "Excuse payload"
// @Success 201 {object} response.Envelope
// @Router /excuses [post]
func (h *ExcuseHandler) Submit(c *gin.Context) {
	var req dto.SubmitExcuseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid excuse payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	excuse, err := h.service.Submit(c.Request.Context(), claims.UserID, req.RoundID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, excuse)
}

// Review godoc
// @Summary Approve or reject a pending excuse request
// @Tags Excuses
// @Accept json
// @Produce json
// @Param id path string true "Excuse request ID"
// @Param payload body dto.ReviewExcuseRequest true "Review payload"
// @Success 200 {object} response.Envelope
// @Router /excuses/{id}/review [post]
func (h *ExcuseHandler) Review(c *gin.Context) {
	var req dto.ReviewExcuseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid review payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	excuse, err := h.service.Review(c.Request.Context(), claims.UserID, c.Param("id"), req.Approve)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, excuse, nil)
}
