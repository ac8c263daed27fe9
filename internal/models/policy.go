package models

import (
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// PolicyScope orders the lateness-policy hierarchy, most specific first.
type PolicyScope string

const (
	PolicyScopeCourse  PolicyScope = "course"
	PolicyScopeFaculty PolicyScope = "faculty"
	PolicyScopeGlobal  PolicyScope = "global"
)

// Valid returns true when the scope is a supported value.
func (s PolicyScope) Valid() bool {
	switch s {
	case PolicyScopeCourse, PolicyScopeFaculty, PolicyScopeGlobal:
		return true
	default:
		return false
	}
}

// LatenessThresholds holds per-round-kind lateness cutoffs in minutes.
type LatenessThresholds struct {
	FirstHour int `json:"first_hour" validate:"min=0"`
	Break     int `json:"break" validate:"min=0"`
}

// PolicyRules is the rule payload attached to every policy version.
type PolicyRules struct {
	LateAfterMinutes LatenessThresholds `json:"lateAfterMinutes"`
	GraceMinutes     int                `json:"graceMinutes" validate:"min=0"`
	MaxAbsences      *int               `json:"maxAbsences,omitempty" validate:"omitempty,min=0"`
}

// DefaultPolicyRules is the hardcoded fallback used when no policy exists or
// a stored payload cannot be parsed.
func DefaultPolicyRules() PolicyRules {
	return PolicyRules{
		LateAfterMinutes: LatenessThresholds{FirstHour: 20, Break: 10},
		GraceMinutes:     0,
	}
}

// Policy is one immutable version of lateness rules for a scope.
type Policy struct {
	ID            string         `db:"id" json:"id"`
	Scope         PolicyScope    `db:"scope" json:"scope"`
	ScopeID       *string        `db:"scope_id" json:"scope_id,omitempty"`
	Version       int            `db:"version" json:"version"`
	Rules         types.JSONText `db:"rules" json:"rules"`
	EffectiveFrom time.Time      `db:"effective_from" json:"effective_from"`
	IsActive      bool           `db:"is_active" json:"is_active"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

// ParseRules decodes the stored rule payload.
func (p *Policy) ParseRules() (PolicyRules, error) {
	var rules PolicyRules
	if err := json.Unmarshal(p.Rules, &rules); err != nil {
		return PolicyRules{}, err
	}
	return rules, nil
}

// PolicyHistory is an append-only audit row written before every policy write.
type PolicyHistory struct {
	ID            string         `db:"id" json:"id"`
	PolicyID      string         `db:"policy_id" json:"policy_id"`
	Scope         PolicyScope    `db:"scope" json:"scope"`
	ScopeID       *string        `db:"scope_id" json:"scope_id,omitempty"`
	Version       int            `db:"version" json:"version"`
	Rules         types.JSONText `db:"rules" json:"rules"`
	EffectiveFrom time.Time      `db:"effective_from" json:"effective_from"`
	IsActive      bool           `db:"is_active" json:"is_active"`
	ChangedAt     time.Time      `db:"changed_at" json:"changed_at"`
}

// CoursePolicyAssignment binds at most one policy to a course.
type CoursePolicyAssignment struct {
	ID         string    `db:"id" json:"id"`
	CourseID   string    `db:"course_id" json:"course_id"`
	PolicyID   string    `db:"policy_id" json:"policy_id"`
	AssignedAt time.Time `db:"assigned_at" json:"assigned_at"`
}

// ResolvedPolicy is the outcome of the scope-hierarchy lookup.
type ResolvedPolicy struct {
	Scope         PolicyScope `json:"scope"`
	PolicyID      string      `json:"policy_id,omitempty"`
	Version       int         `json:"version"`
	Rules         PolicyRules `json:"rules"`
	EffectiveFrom time.Time   `json:"effective_from"`
}
