package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rollcall-io/rollcall-api/internal/models"
)

// PolicyRepository handles persistence for lateness policies, their immutable
// history and course bindings.
type PolicyRepository struct {
	db *sqlx.DB
}

// NewPolicyRepository constructs the repository.
func NewPolicyRepository(db *sqlx.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

const policyColumns = `id, scope, scope_id, version, rules, effective_from, is_active, created_at`

// FindCandidate returns the best active policy for a scope at the given
// instant: highest version first, then most recent effective_from.
func (r *PolicyRepository) FindCandidate(ctx context.Context, scope models.PolicyScope, scopeID *string, now time.Time) (*models.Policy, error) {
	query := fmt.Sprintf(`SELECT %s FROM policies
WHERE scope = $1 AND ($2::text IS NULL OR scope_id = $2) AND is_active = true AND effective_from <= $3
ORDER BY version DESC, effective_from DESC
LIMIT 1`, policyColumns)
	var policy models.Policy
	if err := r.db.GetContext(ctx, &policy, query, scope, scopeID, now); err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find candidate policy: %w", err)
	}
	return &policy, nil
}

// FindAssignedToCourse resolves the policy explicitly bound to a course, if
// that policy is active and effective.
func (r *PolicyRepository) FindAssignedToCourse(ctx context.Context, courseID string, now time.Time) (*models.Policy, error) {
	query := `SELECT p.id, p.scope, p.scope_id, p.version, p.rules, p.effective_from, p.is_active, p.created_at
FROM policies p
JOIN course_policy_assignments a ON a.policy_id = p.id
WHERE a.course_id = $1 AND p.is_active = true AND p.effective_from <= $2
ORDER BY p.version DESC, p.effective_from DESC
LIMIT 1`
	var policy models.Policy
	if err := r.db.GetContext(ctx, &policy, query, courseID, now); err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find assigned policy: %w", err)
	}
	return &policy, nil
}

// MaxVersion returns the highest version stored for a scope, zero when none.
func (r *PolicyRepository) MaxVersion(ctx context.Context, scope models.PolicyScope, scopeID *string) (int, error) {
	query := `SELECT COALESCE(MAX(version), 0) FROM policies
WHERE scope = $1 AND ($2::text IS NULL OR scope_id = $2)`
	var version int
	if err := r.db.GetContext(ctx, &version, query, scope, scopeID); err != nil {
		return 0, fmt.Errorf("max policy version: %w", err)
	}
	return version, nil
}

// CreateWithHistory inserts a new policy version and appends the immutable
// history row inside one transaction, preserving the audit trail even when
// this is the first version for the scope.
func (r *PolicyRepository) CreateWithHistory(ctx context.Context, policy *models.Policy, previous *models.Policy) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create policy: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	if policy.ID == "" {
		policy.ID = uuid.NewString()
	}
	if policy.EffectiveFrom.IsZero() {
		policy.EffectiveFrom = now
	}
	policy.CreatedAt = now
	policy.IsActive = true

	historyOf := policy
	if previous != nil {
		historyOf = previous
	}
	historyQuery := `INSERT INTO policy_history (id, policy_id, scope, scope_id, version, rules, effective_from, is_active, changed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := tx.ExecContext(ctx, historyQuery,
		uuid.NewString(), historyOf.ID, historyOf.Scope, historyOf.ScopeID, historyOf.Version,
		historyOf.Rules, historyOf.EffectiveFrom, historyOf.IsActive, now); err != nil {
		return fmt.Errorf("insert policy history: %w", err)
	}

	insertQuery := `INSERT INTO policies (id, scope, scope_id, version, rules, effective_from, is_active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := tx.ExecContext(ctx, insertQuery,
		policy.ID, policy.Scope, policy.ScopeID, policy.Version, policy.Rules,
		policy.EffectiveFrom, policy.IsActive, policy.CreatedAt); err != nil {
		return fmt.Errorf("insert policy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create policy: %w", err)
	}
	committed = true
	return nil
}

// GetByID fetches a single policy version.
func (r *PolicyRepository) GetByID(ctx context.Context, id string) (*models.Policy, error) {
	query := fmt.Sprintf(`SELECT %s FROM policies WHERE id = $1`, policyColumns)
	var policy models.Policy
	if err := r.db.GetContext(ctx, &policy, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("get policy: %w", err)
	}
	return &policy, nil
}

// UpsertCourseAssignment binds a policy to a course, replacing any previous
// binding. A course has at most one assignment.
func (r *PolicyRepository) UpsertCourseAssignment(ctx context.Context, courseID, policyID string) error {
	query := `INSERT INTO course_policy_assignments (id, course_id, policy_id, assigned_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (course_id)
DO UPDATE SET policy_id = EXCLUDED.policy_id, assigned_at = EXCLUDED.assigned_at`
	if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), courseID, policyID, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert course policy assignment: %w", err)
	}
	return nil
}
