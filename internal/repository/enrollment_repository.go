package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/campus-enroll-api/internal/models"
)

// Postgres error codes the admission transaction cares about.
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqUniqueViolation      = "23505"
)

// EnrollmentRepository handles persistence of enrollments, including the
// capacity-checked admission transaction.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// CreateWithCapacityCheck runs the admission decision and the insert as
// one serializable transaction: the course row is locked, the live
// ENROLLED count is read, and the new record lands as ENROLLED or
// WAITLISTED depending on remaining seats. Two concurrent admissions can
// therefore never both consume the same last seat. Returns
// sql.ErrNoRows when the course is missing, ErrDuplicateEnrollment for an
// existing pair and ErrSerialization when the transaction lost a
// concurrency conflict and should be retried.
func (r *EnrollmentRepository) CreateWithCapacityCheck(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin admission: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var seatLimit sql.NullInt64
	if err := tx.GetContext(ctx, &seatLimit, `SELECT seat_limit FROM courses WHERE id = $1 FOR UPDATE`, courseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, mapTxError("lock course", err)
	}

	var exists int
	err = tx.GetContext(ctx, &exists, `SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 LIMIT 1`, studentID, courseID)
	switch {
	case err == nil:
		return nil, ErrDuplicateEnrollment
	case err != sql.ErrNoRows:
		return nil, mapTxError("check existing enrollment", err)
	}

	status := models.EnrollmentStatusEnrolled
	if seatLimit.Valid {
		var enrolled int
		if err := tx.GetContext(ctx, &enrolled, `SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status = $2`,
			courseID, models.EnrollmentStatusEnrolled); err != nil {
			return nil, mapTxError("count enrolled", err)
		}
		if int64(enrolled) >= seatLimit.Int64 {
			status = models.EnrollmentStatusWaitlisted
		}
	}

	now := time.Now().UTC()
	enrollment := &models.Enrollment{
		ID:         uuid.NewString(),
		StudentID:  studentID,
		CourseID:   courseID,
		Status:     status,
		EnrolledAt: now,
		UpdatedAt:  now,
	}
	const insert = `INSERT INTO enrollments (id, student_id, course_id, status, enrolled_at, updated_at)
        VALUES (:id, :student_id, :course_id, :status, :enrolled_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insert, enrollment); err != nil {
		return nil, mapTxError("insert enrollment", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapTxError("commit admission", err)
	}
	return enrollment, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, course_id, status, grade, remarks, enrolled_at, updated_at FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindByPair returns the enrollment for a (student, course) pair.
func (r *EnrollmentRepository) FindByPair(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, course_id, status, grade, remarks, enrolled_at, updated_at
        FROM enrollments WHERE student_id = $1 AND course_id = $2 LIMIT 1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, courseID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// UpdateStatus sets status, and optionally grade/remarks, on a record.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, grade, remarks *string) error {
	const query = `UPDATE enrollments SET status = $2,
        grade = COALESCE($3, grade),
        remarks = COALESCE($4, remarks),
        updated_at = $5 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status, grade, remarks, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check updated enrollment rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountEnrolled returns the live count of ENROLLED records for a course.
func (r *EnrollmentRepository) CountEnrolled(ctx context.Context, courseID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, courseID, models.EnrollmentStatusEnrolled); err != nil {
		return 0, fmt.Errorf("count enrolled: %w", err)
	}
	return count, nil
}

// List returns enrollment details filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
JOIN student_profiles sp ON sp.id = e.student_id
JOIN users u ON u.id = sp.user_id
JOIN courses c ON c.id = e.course_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(u.full_name) LIKE $%d OR LOWER(COALESCE(sp.roll_number, '')) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrolled_at":  "e.enrolled_at",
		"student_name": "u.full_name",
		"course_name":  "c.name",
		"status":       "e.status",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.enrolled_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.course_id, e.status, e.grade, e.remarks, e.enrolled_at, e.updated_at,
        u.full_name AS student_name, sp.roll_number, c.name AS course_name, c.code AS course_code
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + base + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// ListByStudent returns all enrollment details for one student.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.course_id, e.status, e.grade, e.remarks, e.enrolled_at, e.updated_at,
        u.full_name AS student_name, sp.roll_number, c.name AS course_name, c.code AS course_code
        FROM enrollments e
        JOIN student_profiles sp ON sp.id = e.student_id
        JOIN users u ON u.id = sp.user_id
        JOIN courses c ON c.id = e.course_id
        WHERE e.student_id = $1
        ORDER BY e.enrolled_at DESC`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

func mapTxError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqSerializationFailure, pqDeadlockDetected:
			return fmt.Errorf("%s: %w", op, ErrSerialization)
		case pqUniqueViolation:
			return fmt.Errorf("%s: %w", op, ErrDuplicateEnrollment)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
