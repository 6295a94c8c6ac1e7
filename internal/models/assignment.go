package models

import "time"

// FacultyAssignment links a faculty member to a course they teach. The
// assignment set is the faculty's entire authorization scope: no access
// exists outside it.
type FacultyAssignment struct {
	ID         string    `db:"id" json:"id"`
	FacultyID  string    `db:"faculty_id" json:"faculty_id"`
	CourseID   string    `db:"course_id" json:"course_id"`
	AssignedAt time.Time `db:"assigned_at" json:"assigned_at"`
}

// FacultyAssignmentDetail enriches assignments with course fields.
type FacultyAssignmentDetail struct {
	FacultyAssignment
	CourseName string `db:"course_name" json:"course_name"`
	CourseCode string `db:"course_code" json:"course_code"`
	SeatLimit  *int   `db:"seat_limit" json:"seat_limit,omitempty"`
}
