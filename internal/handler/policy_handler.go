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

type policyService interface {
	Resolve(ctx context.Context, courseID, facultyID *string) (*models.ResolvedPolicy, error)
	Create(ctx context.Context, req service.CreatePolicyRequest) (*models.Policy, error)
	AssignToCourse(ctx context.Context, policyID, courseID string) error
}

// PolicyHandler exposes the lateness-policy administration endpoints.
type PolicyHandler struct {
	service policyService
}

// NewPolicyHandler builds a new handler.
func NewPolicyHandler(service policyService) *PolicyHandler {
	return &PolicyHandler{service: service}
}

// Create godoc
// @Summary Create a new policy version
// @Tags Policies
// @Accept json
// @Produce json
// @Param payload body dto.CreatePolicyRequest true "Policy payload"
// @Success 201 {object} response.Envelope
// @Router /policies [post]
func (h *PolicyHandler) Create(c *gin.Context) {
	var req dto.CreatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid policy payload"))
		return
	}
	policy, err := h.service.Create(c.Request.Context(), service.CreatePolicyRequest{
		Scope:         req.Scope,
		ScopeID:       req.ScopeID,
		Rules:         req.Rules,
		EffectiveFrom: req.EffectiveFrom,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, policy)
}

// Assign godoc
// @Summary Assign a policy to a course
// @Tags Policies
// @Accept json
// @Produce json
// @Param id path string true "Policy ID"
// @Param payload body dto.AssignPolicyRequest true "Assignment payload"
// @Success 204
// @Router /policies/{id}/assign [post]
func (h *PolicyHandler) Assign(c *gin.Context) {
	var req dto.AssignPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assignment payload"))
		return
	}
	if err := h.service.AssignToCourse(c.Request.Context(), c.Param("id"), req.CourseID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Resolve godoc
// @Summary Resolve the effective policy for a course or faculty
// @Tags Policies
// @Produce json
// @Param courseId query string false "Course ID"
// @Param facultyId query string false "Faculty ID"
// @Success 200 {object} response.Envelope
// @Router /policies/resolve [get]
func (h *PolicyHandler) Resolve(c *gin.Context) {
	var query dto.ResolvePolicyQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid resolve query"))
		return
	}
	resolved, err := h.service.Resolve(c.Request.Context(), query.CourseID, query.FacultyID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resolved, nil)
}
