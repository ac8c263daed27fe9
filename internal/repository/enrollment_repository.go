package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/rollcall-io/rollcall-api/internal/models"
)

// EnrollmentRepository reads roster data owned by the course-management
// collaborator. This engine never writes these tables.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// IsEnrolled reports whether a student has an active enrollment in a group.
func (r *EnrollmentRepository) IsEnrolled(ctx context.Context, studentID, groupID string) (bool, error) {
	var enrolled bool
	query := `SELECT EXISTS (SELECT 1 FROM enrollments WHERE student_id = $1 AND group_id = $2 AND active = true)`
	if err := r.db.GetContext(ctx, &enrolled, query, studentID, groupID); err != nil {
		return false, fmt.Errorf("enrollment check: %w", err)
	}
	return enrolled, nil
}

// GetCourseByGroup resolves the course behind a group.
func (r *EnrollmentRepository) GetCourseByGroup(ctx context.Context, groupID string) (*models.Course, error) {
	query := `SELECT c.id, c.faculty_id, c.owner_id, c.name, c.device_binding_enabled, c.created_at
FROM courses c
JOIN groups g ON g.course_id = c.id
WHERE g.id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, groupID); err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("get course by group: %w", err)
	}
	return &course, nil
}
