package models

import "time"

// ExcuseStatus is the excuse-request lifecycle state.
type ExcuseStatus string

const (
	ExcuseStatusPending  ExcuseStatus = "PENDING"
	ExcuseStatusApproved ExcuseStatus = "APPROVED"
	ExcuseStatusRejected ExcuseStatus = "REJECTED"
)

// ExcuseRequest is a student-submitted justification tied to a round.
// Approval retroactively upserts an excused attendance record.
type ExcuseRequest struct {
	ID         string       `db:"id" json:"id"`
	RoundID    string       `db:"round_id" json:"round_id"`
	StudentID  string       `db:"student_id" json:"student_id"`
	Reason     string       `db:"reason" json:"reason"`
	Status     ExcuseStatus `db:"status" json:"status"`
	ReviewedBy *string      `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time   `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time    `db:"updated_at" json:"updated_at"`
}
