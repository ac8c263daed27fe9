package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/rollcall-io/rollcall-api/internal/models"
	appErrors "github.com/rollcall-io/rollcall-api/pkg/errors"
)

type policyRepository interface {
	FindCandidate(ctx context.Context, scope models.PolicyScope, scopeID *string, now time.Time) (*models.Policy, error)
	FindAssignedToCourse(ctx context.Context, courseID string, now time.Time) (*models.Policy, error)
	MaxVersion(ctx context.Context, scope models.PolicyScope, scopeID *string) (int, error)
	CreateWithHistory(ctx context.Context, policy *models.Policy, previous *models.Policy) error
	GetByID(ctx context.Context, id string) (*models.Policy, error)
	UpsertCourseAssignment(ctx context.Context, courseID, policyID string) error
}

type policyCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// PolicyService resolves and administers the time-varying lateness policies.
type PolicyService struct {
	repo      policyRepository
	cache     policyCache
	cacheTTL  time.Duration
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewPolicyService constructs the policy resolver.
func NewPolicyService(repo policyRepository, cache policyCache, cacheTTL time.Duration, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *PolicyService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	return &PolicyService{
		repo:      repo,
		cache:     cache,
		cacheTTL:  cacheTTL,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreatePolicyRequest describes a new policy version.
type CreatePolicyRequest struct {
	Scope         string             `json:"scope" validate:"required"`
	ScopeID       *string            `json:"scope_id"`
	Rules         models.PolicyRules `json:"rules" validate:"required"`
	EffectiveFrom *time.Time         `json:"effective_from"`
}

// Resolve walks the scope hierarchy (course, then faculty, then global) and returns the
// first active policy effective at or before now. When nothing exists at all,
// the hardcoded default is seeded as the first global policy and returned.
func (s *PolicyService) Resolve(ctx context.Context, courseID, facultyID *string) (*models.ResolvedPolicy, error) {
	key := resolveCacheKey(courseID, facultyID)
	if s.cache != nil {
		var cached models.ResolvedPolicy
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.metrics.RecordCacheOperation(true)
			return &cached, nil
		} else if !appErrors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("policy cache get failed", zap.String("key", key), zap.Error(err))
		}
		s.metrics.RecordCacheOperation(false)
	}

	resolved, err := s.resolveUncached(ctx, courseID, facultyID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, resolved, s.cacheTTL); err != nil {
			s.logger.Warn("policy cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return resolved, nil
}

func (s *PolicyService) resolveUncached(ctx context.Context, courseID, facultyID *string) (*models.ResolvedPolicy, error) {
	now := s.now()

	if courseID != nil {
		if policy, err := s.repo.FindAssignedToCourse(ctx, *courseID, now); err == nil {
			return s.toResolved(policy), nil
		} else if err != sql.ErrNoRows {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve course policy")
		}
		if policy, err := s.repo.FindCandidate(ctx, models.PolicyScopeCourse, courseID, now); err == nil {
			return s.toResolved(policy), nil
		} else if err != sql.ErrNoRows {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve course policy")
		}
	}

	if facultyID != nil {
		if policy, err := s.repo.FindCandidate(ctx, models.PolicyScopeFaculty, facultyID, now); err == nil {
			return s.toResolved(policy), nil
		} else if err != sql.ErrNoRows {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve faculty policy")
		}
	}

	policy, err := s.repo.FindCandidate(ctx, models.PolicyScopeGlobal, nil, now)
	if err == nil {
		return s.toResolved(policy), nil
	}
	if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve global policy")
	}

	return s.seedDefault(ctx)
}

// toResolved converts a stored policy, failing closed to the default rules
// when the stored payload cannot be parsed.
func (s *PolicyService) toResolved(policy *models.Policy) *models.ResolvedPolicy {
	rules, err := policy.ParseRules()
	if err != nil {
		s.logger.Error("malformed policy rules, using defaults",
			zap.String("policy_id", policy.ID),
			zap.Error(err))
		rules = models.DefaultPolicyRules()
	}
	return &models.ResolvedPolicy{
		Scope:         policy.Scope,
		PolicyID:      policy.ID,
		Version:       policy.Version,
		Rules:         rules,
		EffectiveFrom: policy.EffectiveFrom,
	}
}

func (s *PolicyService) seedDefault(ctx context.Context) (*models.ResolvedPolicy, error) {
	rules := models.DefaultPolicyRules()
	raw, err := json.Marshal(rules)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode default policy")
	}
	policy := &models.Policy{
		Scope:         models.PolicyScopeGlobal,
		Version:       1,
		Rules:         raw,
		EffectiveFrom: s.now(),
	}
	if err := s.repo.CreateWithHistory(ctx, policy, nil); err != nil {
		// A concurrent seed may have won; the rules are identical either way.
		s.logger.Warn("default policy seed failed", zap.Error(err))
	}
	return &models.ResolvedPolicy{
		Scope:         models.PolicyScopeGlobal,
		PolicyID:      policy.ID,
		Version:       1,
		Rules:         rules,
		EffectiveFrom: policy.EffectiveFrom,
	}, nil
}

// Create validates and writes a new policy version, appending history and
// synchronously evicting cached resolutions for the affected scope.
func (s *PolicyService) Create(ctx context.Context, req CreatePolicyRequest) (*models.Policy, error) {
	scope := models.PolicyScope(req.Scope)
	if !scope.Valid() {
		return nil, appErrors.Clone(appErrors.ErrInvalidPolicyRules, "unknown policy scope")
	}
	if scope == models.PolicyScopeGlobal && req.ScopeID != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidPolicyRules, "global policies carry no scope id")
	}
	if scope != models.PolicyScopeGlobal && (req.ScopeID == nil || *req.ScopeID == "") {
		return nil, appErrors.Clone(appErrors.ErrInvalidPolicyRules, "scope id required for course and faculty policies")
	}
	if err := s.validator.Struct(req.Rules); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidPolicyRules.Code, appErrors.ErrInvalidPolicyRules.Status, "invalid policy rules")
	}

	raw, err := json.Marshal(req.Rules)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode policy rules")
	}

	version, err := s.repo.MaxVersion(ctx, scope, req.ScopeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to determine policy version")
	}

	var previous *models.Policy
	if prev, err := s.repo.FindCandidate(ctx, scope, req.ScopeID, s.now()); err == nil {
		previous = prev
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load previous policy")
	}

	policy := &models.Policy{
		Scope:   scope,
		ScopeID: req.ScopeID,
		Version: version + 1,
		Rules:   raw,
	}
	if req.EffectiveFrom != nil {
		policy.EffectiveFrom = req.EffectiveFrom.UTC()
	}
	if err := s.repo.CreateWithHistory(ctx, policy, previous); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create policy")
	}

	s.invalidateScope(ctx, scope, req.ScopeID)
	return policy, nil
}

// AssignToCourse binds a policy to a course, replacing any prior binding.
func (s *PolicyService) AssignToCourse(ctx context.Context, policyID, courseID string) error {
	if _, err := s.repo.GetByID(ctx, policyID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "policy not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load policy")
	}
	if err := s.repo.UpsertCourseAssignment(ctx, courseID, policyID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign policy")
	}
	s.invalidateScope(ctx, models.PolicyScopeCourse, &courseID)
	return nil
}

// invalidateScope evicts cached resolutions affected by a scope mutation.
// Eviction happens before the mutating call returns so a just-changed policy
// is never served stale; TTL expiry is only a backstop.
func (s *PolicyService) invalidateScope(ctx context.Context, scope models.PolicyScope, scopeID *string) {
	if s.cache == nil {
		return
	}
	pattern := "policy:resolved:*"
	switch scope {
	case models.PolicyScopeCourse:
		if scopeID != nil {
			pattern = fmt.Sprintf("policy:resolved:%s:*", *scopeID)
		}
	case models.PolicyScopeFaculty:
		if scopeID != nil {
			pattern = fmt.Sprintf("policy:resolved:*:%s", *scopeID)
		}
	}
	if err := s.cache.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("policy cache invalidation failed", zap.String("pattern", pattern), zap.Error(err))
	}
}

func resolveCacheKey(courseID, facultyID *string) string {
	course, faculty := "", ""
	if courseID != nil {
		course = *courseID
	}
	if facultyID != nil {
		faculty = *facultyID
	}
	return fmt.Sprintf("policy:resolved:%s:%s", course, faculty)
}
