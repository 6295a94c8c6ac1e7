package models

import "time"

// Course is a capacity-bounded unit students enroll into. SeatLimit nil
// means unbounded; capacity is enforced against ENROLLED records only.
type Course struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Code         string    `db:"code" json:"code"`
	DepartmentID string    `db:"department_id" json:"department_id"`
	Credits      int       `db:"credits" json:"credits"`
	SeatLimit    *int      `db:"seat_limit" json:"seat_limit,omitempty"`
	Description  *string   `db:"description" json:"description,omitempty"`
	Schedule     *string   `db:"schedule" json:"schedule,omitempty"`
	Semester     *string   `db:"semester" json:"semester,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// CourseDetail enriches a course with department and live seat data.
type CourseDetail struct {
	Course
	DepartmentName string `db:"department_name" json:"department_name"`
	EnrolledCount  int    `db:"enrolled_count" json:"enrolled_count"`
	// SeatsAvailable is max(0, seat_limit-enrolled) or nil when unbounded.
	SeatsAvailable *int `json:"seats_available"`
}

// CourseFilter captures filtering options for listing courses.
type CourseFilter struct {
	DepartmentID string
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// Department groups courses and faculty members.
type Department struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Code        string    `db:"code" json:"code"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
