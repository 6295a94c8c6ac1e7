package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-enroll-api/internal/models"
)

// AnnouncementRepository persists course announcements.
type AnnouncementRepository struct {
	db *sqlx.DB
}

// NewAnnouncementRepository constructs the repository.
func NewAnnouncementRepository(db *sqlx.DB) *AnnouncementRepository {
	return &AnnouncementRepository{db: db}
}

// Create persists a new announcement.
func (r *AnnouncementRepository) Create(ctx context.Context, announcement *models.CourseAnnouncement) error {
	if announcement.ID == "" {
		announcement.ID = uuid.NewString()
	}
	if announcement.CreatedAt.IsZero() {
		announcement.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO course_announcements (id, course_id, faculty_id, title, body, announcement_type, created_at)
        VALUES (:id, :course_id, :faculty_id, :title, :body, :announcement_type, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, announcement); err != nil {
		return fmt.Errorf("create announcement: %w", err)
	}
	return nil
}

// ListByFaculty returns announcements authored by a faculty member.
func (r *AnnouncementRepository) ListByFaculty(ctx context.Context, facultyID string, limit int) ([]models.CourseAnnouncementDetail, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT a.id, a.course_id, a.faculty_id, a.title, a.body, a.announcement_type, a.created_at,
        c.name AS course_name, c.code AS course_code
        FROM course_announcements a
        JOIN courses c ON c.id = a.course_id
        WHERE a.faculty_id = $1
        ORDER BY a.created_at DESC LIMIT %d`, limit)
	var announcements []models.CourseAnnouncementDetail
	if err := r.db.SelectContext(ctx, &announcements, query, facultyID); err != nil {
		return nil, fmt.Errorf("list faculty announcements: %w", err)
	}
	return announcements, nil
}

// ListForStudent returns announcements for every course the student holds
// an enrollment record in, newest first.
func (r *AnnouncementRepository) ListForStudent(ctx context.Context, studentID string, limit int) ([]models.CourseAnnouncementDetail, error) {
	if limit <= 0 || limit > 100 {
		limit = 30
	}
	query := fmt.Sprintf(`SELECT a.id, a.course_id, a.faculty_id, a.title, a.body, a.announcement_type, a.created_at,
        c.name AS course_name, c.code AS course_code
        FROM course_announcements a
        JOIN courses c ON c.id = a.course_id
        WHERE a.course_id IN (SELECT course_id FROM enrollments WHERE student_id = $1)
        ORDER BY a.created_at DESC LIMIT %d`, limit)
	var announcements []models.CourseAnnouncementDetail
	if err := r.db.SelectContext(ctx, &announcements, query, studentID); err != nil {
		return nil, fmt.Errorf("list student announcements: %w", err)
	}
	return announcements, nil
}
