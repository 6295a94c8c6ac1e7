package models

import "time"

// StudentProfile is owned 1:1 by an account with role STUDENT. Its
// lifecycle is tied to role assignment: created when a user becomes a
// student, removed when the role changes away.
type StudentProfile struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	RollNumber *string   `db:"roll_number" json:"roll_number,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// FacultyProfile is owned 1:1 by an account with role FACULTY.
type FacultyProfile struct {
	ID           string    `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"user_id"`
	DepartmentID *string   `db:"department_id" json:"department_id,omitempty"`
	EmployeeID   *string   `db:"employee_id" json:"employee_id,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
