package dto

import (
	"time"

	"github.com/rollcall-io/rollcall-api/internal/models"
)

// CreatePolicyRequest creates a new policy version for a scope.
type CreatePolicyRequest struct {
	Scope         string             `json:"scope" binding:"required"`
	ScopeID       *string            `json:"scopeId"`
	Rules         models.PolicyRules `json:"rules" binding:"required"`
	EffectiveFrom *time.Time         `json:"effectiveFrom"`
}

// AssignPolicyRequest binds an existing policy to a course.
type AssignPolicyRequest struct {
	CourseID string `json:"courseId" binding:"required"`
}

// ResolvePolicyQuery mirrors the resolution lookup parameters.
type ResolvePolicyQuery struct {
	CourseID  *string `form:"courseId"`
	FacultyID *string `form:"facultyId"`
}
