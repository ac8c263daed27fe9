package models

import "time"

// Course is owned by a professor and optionally scoped to a faculty.
// Roster management lives in a separate service; this engine only reads the
// fields it needs for ownership, policy resolution and device binding.
type Course struct {
	ID                   string    `db:"id" json:"id"`
	FacultyID            *string   `db:"faculty_id" json:"faculty_id,omitempty"`
	OwnerID              string    `db:"owner_id" json:"owner_id"`
	Name                 string    `db:"name" json:"name"`
	DeviceBindingEnabled bool      `db:"device_binding_enabled" json:"device_binding_enabled"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
}

// Group is a teachable unit within a course; sessions attach to groups.
type Group struct {
	ID       string `db:"id" json:"id"`
	CourseID string `db:"course_id" json:"course_id"`
	Name     string `db:"name" json:"name"`
}

// Enrollment links a student to a group.
type Enrollment struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	GroupID   string    `db:"group_id" json:"group_id"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
