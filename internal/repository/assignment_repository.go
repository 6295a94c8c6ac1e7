package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-enroll-api/internal/models"
)

// AssignmentRepository persists faculty-course assignments, the records
// that define each faculty member's authorization scope.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Exists checks whether a faculty member is assigned to a course.
func (r *AssignmentRepository) Exists(ctx context.Context, facultyID, courseID string) (bool, error) {
	const query = `SELECT 1 FROM faculty_assignments WHERE faculty_id = $1 AND course_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, facultyID, courseID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check faculty assignment: %w", err)
	}
	return true, nil
}

// ListByFaculty returns assignment details owned by a faculty member.
func (r *AssignmentRepository) ListByFaculty(ctx context.Context, facultyID string) ([]models.FacultyAssignmentDetail, error) {
	const query = `
SELECT fa.id, fa.faculty_id, fa.course_id, fa.assigned_at,
       c.name AS course_name, c.code AS course_code, c.seat_limit
FROM faculty_assignments fa
JOIN courses c ON c.id = fa.course_id
WHERE fa.faculty_id = $1
ORDER BY c.code ASC`
	var assignments []models.FacultyAssignmentDetail
	if err := r.db.SelectContext(ctx, &assignments, query, facultyID); err != nil {
		return nil, fmt.Errorf("list faculty assignments: %w", err)
	}
	return assignments, nil
}

// Replace swaps the faculty's entire assignment set in one transaction:
// prior rows are removed, the new set inserted, and the faculty department
// optionally updated. A failure leaves the previous set intact.
func (r *AssignmentRepository) Replace(ctx context.Context, facultyID string, courseIDs []string, departmentID *string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace assignments: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	if err := tx.GetContext(ctx, &exists, `SELECT 1 FROM faculty_profiles WHERE id = $1`, facultyID); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("check faculty: %w", err)
	}

	if len(courseIDs) > 0 {
		placeholders := make([]string, len(courseIDs))
		args := make([]interface{}, len(courseIDs))
		for i, id := range courseIDs {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args[i] = id
		}
		var known int
		countQuery := fmt.Sprintf("SELECT COUNT(*) FROM courses WHERE id IN (%s)", strings.Join(placeholders, ","))
		if err := tx.GetContext(ctx, &known, countQuery, args...); err != nil {
			return fmt.Errorf("validate courses: %w", err)
		}
		if known != len(courseIDs) {
			return sql.ErrNoRows
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM faculty_assignments WHERE faculty_id = $1`, facultyID); err != nil {
		return fmt.Errorf("clear faculty assignments: %w", err)
	}

	now := time.Now().UTC()
	for _, courseID := range courseIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO faculty_assignments (id, faculty_id, course_id, assigned_at) VALUES ($1, $2, $3, $4)`,
			uuid.NewString(), facultyID, courseID, now); err != nil {
			return fmt.Errorf("insert faculty assignment: %w", err)
		}
	}

	if departmentID != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE faculty_profiles SET department_id = $2 WHERE id = $1`, facultyID, *departmentID); err != nil {
			return fmt.Errorf("update faculty department: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace assignments: %w", err)
	}
	return nil
}
