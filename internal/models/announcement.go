package models

import "time"

// AnnouncementType classifies course announcements.
type AnnouncementType string

const (
	AnnouncementTypeGeneral          AnnouncementType = "general"
	AnnouncementTypeAcademicUpdate   AnnouncementType = "academic_update"
	AnnouncementTypeEnrollmentStatus AnnouncementType = "enrollment_status"
)

// Valid reports whether the announcement type is known.
func (t AnnouncementType) Valid() bool {
	switch t {
	case AnnouncementTypeGeneral, AnnouncementTypeAcademicUpdate, AnnouncementTypeEnrollmentStatus:
		return true
	}
	return false
}

// CourseAnnouncement is a faculty post to the students of one course.
// Posting is restricted to faculty assigned to that course.
type CourseAnnouncement struct {
	ID        string           `db:"id" json:"id"`
	CourseID  string           `db:"course_id" json:"course_id"`
	FacultyID string           `db:"faculty_id" json:"faculty_id"`
	Title     string           `db:"title" json:"title"`
	Body      *string          `db:"body" json:"body,omitempty"`
	Type      AnnouncementType `db:"announcement_type" json:"announcement_type"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// CourseAnnouncementDetail adds course context for student feeds.
type CourseAnnouncementDetail struct {
	CourseAnnouncement
	CourseName string `db:"course_name" json:"course_name"`
	CourseCode string `db:"course_code" json:"course_code"`
}
