package authz

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-enroll-api/internal/models"
	appErrors "github.com/noah-isme/campus-enroll-api/pkg/errors"
)

// Operation identifies something a caller wants to do. Role-level
// permissions are keyed by operation; scope rules are keyed by the
// caller's role.
type Operation string

const (
	OpEnrollSelf          Operation = "enrollment:enroll_self"
	OpWithdrawSelf        Operation = "enrollment:withdraw_self"
	OpViewOwnEnrollments  Operation = "enrollment:view_own"
	OpViewCourseRoster    Operation = "enrollment:view_course"
	OpUpdateEnrollment    Operation = "enrollment:update_status"
	OpOverrideEnrollment  Operation = "enrollment:override"
	OpPostAnnouncement    Operation = "announcement:post"
	OpViewOwnAnnouncement Operation = "announcement:view_own"
	OpViewOwnAssignments  Operation = "assignment:view_own"
	OpManageUsers         Operation = "user:manage"
	OpAssignRoles         Operation = "user:assign_role"
	OpManageCourses       Operation = "course:manage"
	OpAssignFaculty       Operation = "faculty:assign"
	OpViewAuditLogs       Operation = "audit:view"
)

// Actor is the caller identity, passed explicitly on every call. ProfileID
// is the student or faculty profile id; empty for admins.
type Actor struct {
	AccountID string
	Role      models.UserRole
	ProfileID string
}

// Target names the records an operation touches. Zero fields mean the
// operation has no scope of that kind.
type Target struct {
	StudentID string
	CourseID  string
	AccountID string
}

// rolePermissions is the static role -> operation table. An operation
// absent from a role's set is denied before any scope check runs.
var rolePermissions = map[models.UserRole]map[Operation]struct{}{
	models.RoleStudent: {
		OpEnrollSelf:          {},
		OpWithdrawSelf:        {},
		OpViewOwnEnrollments:  {},
		OpViewOwnAnnouncement: {},
	},
	models.RoleFaculty: {
		OpViewCourseRoster:    {},
		OpUpdateEnrollment:    {},
		OpPostAnnouncement:    {},
		OpViewOwnAnnouncement: {},
		OpViewOwnAssignments:  {},
	},
	models.RoleAdmin: {
		OpViewCourseRoster:   {},
		OpUpdateEnrollment:   {},
		OpOverrideEnrollment: {},
		OpManageUsers:        {},
		OpAssignRoles:        {},
		OpManageCourses:      {},
		OpAssignFaculty:      {},
		OpViewAuditLogs:      {},
	},
}

// facultySelfScopedOps touch only the caller's own records, so they carry
// no course target to check against the assignment set.
var facultySelfScopedOps = map[Operation]struct{}{
	OpViewOwnAnnouncement: {},
	OpViewOwnAssignments:  {},
}

type assignmentReader interface {
	Exists(ctx context.Context, facultyID, courseID string) (bool, error)
}

type denialRecorder interface {
	Record(ctx context.Context, entry *models.AuditLog)
}

// Engine decides ALLOW/DENY for every operation in the system. It holds no
// request state: caller identity, operation and target are always passed
// in, so decisions are reproducible in tests without any HTTP plumbing.
type Engine struct {
	assignments assignmentReader
	recorder    denialRecorder
	logger      *zap.Logger
}

// NewEngine constructs the authorization engine.
func NewEngine(assignments assignmentReader, recorder denialRecorder, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{assignments: assignments, recorder: recorder, logger: logger}
}

// Authorize returns nil when the actor may perform op against target, or a
// Forbidden error otherwise. Every denial is recorded in the audit trail;
// the returned error is identical whether the target exists or not, so a
// denial never doubles as an existence oracle.
func (e *Engine) Authorize(ctx context.Context, actor Actor, op Operation, target Target) error {
	perms, known := rolePermissions[actor.Role]
	if !known {
		e.deny(ctx, actor, op, target, models.AuditEventUnauthorizedAccess, "unknown role")
		return appErrors.ErrForbidden
	}
	if _, ok := perms[op]; !ok {
		e.deny(ctx, actor, op, target, models.AuditEventUnauthorizedAccess, "operation not permitted for role")
		return appErrors.ErrForbidden
	}

	switch actor.Role {
	case models.RoleStudent:
		// A student may only touch their own records. A mismatch is a
		// tampering attempt, not an ordinary permission gap.
		if target.StudentID != "" && target.StudentID != actor.ProfileID {
			e.deny(ctx, actor, op, target, models.AuditEventTamperingAttempt, "student scope mismatch")
			return appErrors.ErrForbidden
		}
		if actor.ProfileID == "" {
			e.deny(ctx, actor, op, target, models.AuditEventUnauthorizedAccess, "missing student profile")
			return appErrors.ErrForbidden
		}
	case models.RoleFaculty:
		if _, selfScoped := facultySelfScopedOps[op]; selfScoped {
			break
		}
		if target.CourseID == "" {
			e.deny(ctx, actor, op, target, models.AuditEventUnauthorizedCourseAccess, "course outside assignment scope")
			return appErrors.ErrForbidden
		}
		assigned, err := e.assignments.Exists(ctx, actor.ProfileID, target.CourseID)
		if err != nil {
			e.logger.Error("assignment lookup failed", zap.Error(err), zap.String("faculty_id", actor.ProfileID))
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "authorization check failed")
		}
		if !assigned {
			e.deny(ctx, actor, op, target, models.AuditEventUnauthorizedCourseAccess, "course outside assignment scope")
			return appErrors.ErrForbidden
		}
	case models.RoleAdmin:
		// Admins are unscoped. The last-admin safeguard lives in the user
		// service where the admin count can be checked transactionally.
	}

	return nil
}

func (e *Engine) deny(ctx context.Context, actor Actor, op Operation, target Target, eventKind, reason string) {
	details, _ := json.Marshal(map[string]interface{}{
		"operation":         string(op),
		"reason":            reason,
		"target_student_id": target.StudentID,
		"target_course_id":  target.CourseID,
		"target_account_id": target.AccountID,
	})

	entry := &models.AuditLog{
		EventKind: eventKind,
		Details:   details,
	}
	if actor.AccountID != "" {
		id := actor.AccountID
		entry.ActorID = &id
	}
	if actor.Role != "" {
		role := actor.Role
		entry.ActorRole = &role
	}
	if e.recorder != nil {
		e.recorder.Record(ctx, entry)
	}
}
