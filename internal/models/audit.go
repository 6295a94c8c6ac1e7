package models

import "time"

// Audit event kinds. Denials get distinct kinds so a role-level denial, a
// student touching another student's record and a faculty reaching outside
// their assignment set can be told apart during review.
const (
	AuditEventLogin                    = "login"
	AuditEventPasswordChange           = "password_change"
	AuditEventUserCreated              = "user_created"
	AuditEventUserDeleted              = "user_deleted"
	AuditEventRoleAssigned             = "role_assigned"
	AuditEventCourseCreated            = "course_created"
	AuditEventCourseUpdated            = "course_updated"
	AuditEventCourseDeleted            = "course_deleted"
	AuditEventEnrollment               = "course_enrollment"
	AuditEventEnrollmentWaitlisted     = "course_enrollment_waitlisted"
	AuditEventWithdrawal               = "course_withdrawal"
	AuditEventStatusUpdated            = "enrollment_status_updated"
	AuditEventEnrollmentOverride       = "enrollment_override"
	AuditEventAssignmentsReplaced      = "faculty_course_mapping_updated"
	AuditEventAnnouncementPosted       = "announcement_posted"
	AuditEventUnauthorizedAccess       = "unauthorized_access"
	AuditEventTamperingAttempt         = "tampering_attempt"
	AuditEventUnauthorizedCourseAccess = "unauthorized_course_access"
)

// AuditLog is an append-only record of a security-relevant event. Rows are
// never updated or deleted.
type AuditLog struct {
	ID        string    `db:"id" json:"id"`
	EventKind string    `db:"event_kind" json:"event_kind"`
	ActorID   *string   `db:"actor_id" json:"actor_id,omitempty"`
	ActorRole *UserRole `db:"actor_role" json:"actor_role,omitempty"`
	Route     *string   `db:"route" json:"route,omitempty"`
	Details   []byte    `db:"details" json:"details,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AuditFilter limits audit queries; results are always returned in
// reverse-chronological order.
type AuditFilter struct {
	EventKind string
	ActorID   string
	Page      int
	PageSize  int
}
