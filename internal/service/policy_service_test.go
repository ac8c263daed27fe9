package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rollcall-io/rollcall-api/internal/models"
	appErrors "github.com/rollcall-io/rollcall-api/pkg/errors"
)

type mockPolicyRepo struct {
	assigned   map[string]*models.Policy
	candidates map[string]*models.Policy
	maxVersion int
	created    *models.Policy
	history    *models.Policy
}

func scopeKey(scope models.PolicyScope, scopeID *string) string {
	key := string(scope)
	if scopeID != nil {
		key += ":" + *scopeID
	}
	return key
}

func (m *mockPolicyRepo) FindCandidate(ctx context.Context, scope models.PolicyScope, scopeID *string, now time.Time) (*models.Policy, error) {
	if policy, ok := m.candidates[scopeKey(scope, scopeID)]; ok {
		return policy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockPolicyRepo) FindAssignedToCourse(ctx context.Context, courseID string, now time.Time) (*models.Policy, error) {
	if policy, ok := m.assigned[courseID]; ok {
		return policy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockPolicyRepo) MaxVersion(ctx context.Context, scope models.PolicyScope, scopeID *string) (int, error) {
	return m.maxVersion, nil
}

func (m *mockPolicyRepo) CreateWithHistory(ctx context.Context, policy *models.Policy, previous *models.Policy) error {
	if policy.ID == "" {
		policy.ID = "pol-new"
	}
	policy.IsActive = true
	if policy.EffectiveFrom.IsZero() {
		policy.EffectiveFrom = time.Now().UTC()
	}
	m.created = policy
	m.history = previous
	return nil
}

func (m *mockPolicyRepo) GetByID(ctx context.Context, id string) (*models.Policy, error) {
	for _, policy := range m.candidates {
		if policy.ID == id {
			return policy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockPolicyRepo) UpsertCourseAssignment(ctx context.Context, courseID, policyID string) error {
	return nil
}

type mockCache struct {
	values   map[string][]byte
	sets     []string
	deletes  []string
	disabled bool
}

func (m *mockCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.values == nil {
		m.values = make(map[string][]byte)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = raw
	m.sets = append(m.sets, key)
	return nil
}

func (m *mockCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.deletes = append(m.deletes, pattern)
	return nil
}

func storedPolicy(id string, scope models.PolicyScope, scopeID *string, firstHour int) *models.Policy {
	raw, _ := json.Marshal(models.PolicyRules{
		LateAfterMinutes: models.LatenessThresholds{FirstHour: firstHour, Break: 10},
	})
	return &models.Policy{
		ID:            id,
		Scope:         scope,
		ScopeID:       scopeID,
		Version:       1,
		Rules:         raw,
		EffectiveFrom: time.Now().UTC().Add(-time.Hour),
		IsActive:      true,
	}
}

func TestPolicyServiceResolvePrecedence(t *testing.T) {
	courseID := "course-1"
	facultyID := "fac-1"

	repo := &mockPolicyRepo{
		assigned: map[string]*models.Policy{
			courseID: storedPolicy("pol-assigned", models.PolicyScopeCourse, &courseID, 5),
		},
		candidates: map[string]*models.Policy{
			scopeKey(models.PolicyScopeCourse, &courseID):   storedPolicy("pol-course", models.PolicyScopeCourse, &courseID, 10),
			scopeKey(models.PolicyScopeFaculty, &facultyID): storedPolicy("pol-faculty", models.PolicyScopeFaculty, &facultyID, 15),
			scopeKey(models.PolicyScopeGlobal, nil):         storedPolicy("pol-global", models.PolicyScopeGlobal, nil, 30),
		},
	}
	svc := NewPolicyService(repo, &mockCache{}, time.Minute, nil, nil, zap.NewNop())

	// Explicit course assignment wins over everything.
	resolved, err := svc.Resolve(context.Background(), &courseID, &facultyID)
	require.NoError(t, err)
	assert.Equal(t, "pol-assigned", resolved.PolicyID)

	// Without an assignment the course-scoped policy applies.
	delete(repo.assigned, courseID)
	resolved, err = svc.Resolve(context.Background(), &courseID, &facultyID)
	require.NoError(t, err)
	assert.Equal(t, "pol-course", resolved.PolicyID)

	// Then faculty, then global.
	delete(repo.candidates, scopeKey(models.PolicyScopeCourse, &courseID))
	resolved, err = svc.Resolve(context.Background(), &courseID, &facultyID)
	require.NoError(t, err)
	assert.Equal(t, "pol-faculty", resolved.PolicyID)

	delete(repo.candidates, scopeKey(models.PolicyScopeFaculty, &facultyID))
	resolved, err = svc.Resolve(context.Background(), &courseID, &facultyID)
	require.NoError(t, err)
	assert.Equal(t, "pol-global", resolved.PolicyID)
}

func TestPolicyServiceResolveSeedsDefaultWhenEmpty(t *testing.T) {
	repo := &mockPolicyRepo{}
	svc := NewPolicyService(repo, &mockCache{}, time.Minute, nil, nil, zap.NewNop())

	resolved, err := svc.Resolve(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.PolicyScopeGlobal, resolved.Scope)
	assert.Equal(t, models.DefaultPolicyRules(), resolved.Rules)
	require.NotNil(t, repo.created)
	assert.Equal(t, models.PolicyScopeGlobal, repo.created.Scope)
}

func TestPolicyServiceResolveMalformedRulesFailClosed(t *testing.T) {
	repo := &mockPolicyRepo{
		candidates: map[string]*models.Policy{
			scopeKey(models.PolicyScopeGlobal, nil): {
				ID:       "pol-bad",
				Scope:    models.PolicyScopeGlobal,
				Version:  1,
				Rules:    []byte(`not json`),
				IsActive: true,
			},
		},
	}
	svc := NewPolicyService(repo, &mockCache{}, time.Minute, nil, nil, zap.NewNop())

	resolved, err := svc.Resolve(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "pol-bad", resolved.PolicyID)
	assert.Equal(t, models.DefaultPolicyRules(), resolved.Rules)
}

func TestPolicyServiceResolveUsesCache(t *testing.T) {
	courseID := "course-1"
	repo := &mockPolicyRepo{
		candidates: map[string]*models.Policy{
			scopeKey(models.PolicyScopeCourse, &courseID): storedPolicy("pol-course", models.PolicyScopeCourse, &courseID, 10),
		},
	}
	cache := &mockCache{}
	svc := NewPolicyService(repo, cache, time.Minute, nil, nil, zap.NewNop())

	first, err := svc.Resolve(context.Background(), &courseID, nil)
	require.NoError(t, err)
	require.Len(t, cache.sets, 1)

	// Repo changes are invisible until eviction or expiry.
	delete(repo.candidates, scopeKey(models.PolicyScopeCourse, &courseID))
	second, err := svc.Resolve(context.Background(), &courseID, nil)
	require.NoError(t, err)
	assert.Equal(t, first.PolicyID, second.PolicyID)
}

func TestPolicyServiceCreateBumpsVersionAndEvicts(t *testing.T) {
	courseID := "course-1"
	repo := &mockPolicyRepo{maxVersion: 2}
	cache := &mockCache{}
	svc := NewPolicyService(repo, cache, time.Minute, nil, nil, zap.NewNop())

	policy, err := svc.Create(context.Background(), CreatePolicyRequest{
		Scope:   string(models.PolicyScopeCourse),
		ScopeID: &courseID,
		Rules:   models.DefaultPolicyRules(),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, policy.Version)
	require.Len(t, cache.deletes, 1)
	assert.Equal(t, "policy:resolved:course-1:*", cache.deletes[0])
}

func TestPolicyServiceCreateValidation(t *testing.T) {
	repo := &mockPolicyRepo{}
	svc := NewPolicyService(repo, &mockCache{}, time.Minute, nil, nil, zap.NewNop())

	scopeID := "x"
	cases := []CreatePolicyRequest{
		{Scope: "bogus", Rules: models.DefaultPolicyRules()},
		{Scope: string(models.PolicyScopeGlobal), ScopeID: &scopeID, Rules: models.DefaultPolicyRules()},
		{Scope: string(models.PolicyScopeCourse), Rules: models.DefaultPolicyRules()},
		{Scope: string(models.PolicyScopeGlobal), Rules: models.PolicyRules{GraceMinutes: -1}},
	}
	for _, req := range cases {
		_, err := svc.Create(context.Background(), req)
		assert.True(t, appErrors.Is(err, appErrors.ErrInvalidPolicyRules))
	}
	assert.Nil(t, repo.created)
}
