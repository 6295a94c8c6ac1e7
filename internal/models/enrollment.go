package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. COMPLETED is terminal; DROPPED and
// WITHDRAWN can only be re-opened by a faculty/admin status override.
const (
	EnrollmentStatusEnrolled   EnrollmentStatus = "ENROLLED"
	EnrollmentStatusWaitlisted EnrollmentStatus = "WAITLISTED"
	EnrollmentStatusCompleted  EnrollmentStatus = "COMPLETED"
	EnrollmentStatusDropped    EnrollmentStatus = "DROPPED"
	EnrollmentStatusWithdrawn  EnrollmentStatus = "WITHDRAWN"
)

// Valid reports whether the status is part of the allowed set.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusEnrolled, EnrollmentStatusWaitlisted, EnrollmentStatusCompleted,
		EnrollmentStatusDropped, EnrollmentStatusWithdrawn:
		return true
	}
	return false
}

// Enrollment records a student's relationship to a course. The
// (student_id, course_id) pair is unique; withdrawn records persist and
// block re-enrollment through the self-service path.
type Enrollment struct {
	ID         string           `db:"id" json:"id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	CourseID   string           `db:"course_id" json:"course_id"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	Grade      *string          `db:"grade" json:"grade,omitempty"`
	Remarks    *string          `db:"remarks" json:"remarks,omitempty"`
	EnrolledAt time.Time        `db:"enrolled_at" json:"enrolled_at"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches an enrollment with student and course info.
type EnrollmentDetail struct {
	Enrollment
	StudentName string  `db:"student_name" json:"student_name"`
	RollNumber  *string `db:"roll_number" json:"roll_number,omitempty"`
	CourseName  string  `db:"course_name" json:"course_name"`
	CourseCode  string  `db:"course_code" json:"course_code"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	CourseID  string
	Status    EnrollmentStatus
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
