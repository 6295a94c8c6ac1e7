package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-enroll-api/internal/authz"
	"github.com/noah-isme/campus-enroll-api/internal/models"
	"github.com/noah-isme/campus-enroll-api/internal/repository"
	appErrors "github.com/noah-isme/campus-enroll-api/pkg/errors"
)

type enrollmentRepository interface {
	CreateWithCapacityCheck(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindByPair(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, grade, remarks *string) error
	CountEnrolled(ctx context.Context, courseID string) (int, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// SetStatusRequest is the payload for a faculty or admin status change.
type SetStatusRequest struct {
	Status  models.EnrollmentStatus `json:"status" validate:"required"`
	Grade   *string                 `json:"grade,omitempty"`
	Remarks *string                 `json:"remarks,omitempty"`
}

// EnrollmentService implements admission, withdrawal and status management.
// The capacity decision itself lives in the repository transaction; this
// layer adds authorization, the single retry on a lost serialization race
// and the audit trail.
type EnrollmentService struct {
	repo      enrollmentRepository
	courses   courseReader
	engine    authorizer
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs the enrollment service.
func NewEnrollmentService(repo enrollmentRepository, courses courseReader, engine authorizer, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, courses: courses, engine: engine, audit: audit, validator: validate, logger: logger}
}

// Enroll admits the calling student into a course, or waitlists them when
// the course is full. A serialization loss is retried once before being
// surfaced as a conflict the client may retry.
func (s *EnrollmentService) Enroll(ctx context.Context, actor authz.Actor, courseID string) (*models.Enrollment, error) {
	if err := s.engine.Authorize(ctx, actor, authz.OpEnrollSelf, authz.Target{StudentID: actor.ProfileID, CourseID: courseID}); err != nil {
		return nil, err
	}

	enrollment, err := s.repo.CreateWithCapacityCheck(ctx, actor.ProfileID, courseID)
	if errors.Is(err, repository.ErrSerialization) {
		s.logger.Info("admission lost serialization race, retrying",
			zap.String("student_id", actor.ProfileID),
			zap.String("course_id", courseID))
		enrollment, err = s.repo.CreateWithCapacityCheck(ctx, actor.ProfileID, courseID)
	}
	if err != nil {
		switch {
		case err == sql.ErrNoRows:
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		case errors.Is(err, repository.ErrDuplicateEnrollment):
			return nil, appErrors.ErrAlreadyEnrolled
		case errors.Is(err, repository.ErrSerialization):
			return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment conflicted with a concurrent request, please retry")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll")
		}
	}

	eventKind := models.AuditEventEnrollment
	if enrollment.Status == models.EnrollmentStatusWaitlisted {
		eventKind = models.AuditEventEnrollmentWaitlisted
	}
	s.audit.Record(ctx, auditEntry(actor, eventKind, map[string]interface{}{
		"enrollment_id": enrollment.ID,
		"course_id":     courseID,
		"student_id":    actor.ProfileID,
		"status":        enrollment.Status,
	}))
	return enrollment, nil
}

// Withdraw moves the caller's active enrollment to WITHDRAWN. The record
// persists; re-enrolling through the self-service path stays blocked.
func (s *EnrollmentService) Withdraw(ctx context.Context, actor authz.Actor, courseID string) (*models.Enrollment, error) {
	if err := s.engine.Authorize(ctx, actor, authz.OpWithdrawSelf, authz.Target{StudentID: actor.ProfileID, CourseID: courseID}); err != nil {
		return nil, err
	}

	enrollment, err := s.repo.FindByPair(ctx, actor.ProfileID, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrNotEnrolled
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	switch enrollment.Status {
	case models.EnrollmentStatusEnrolled, models.EnrollmentStatusWaitlisted:
	case models.EnrollmentStatusCompleted:
		return nil, appErrors.ErrFinalized
	default:
		return nil, appErrors.ErrNotEnrolled
	}

	oldStatus := enrollment.Status
	if err := s.repo.UpdateStatus(ctx, enrollment.ID, models.EnrollmentStatusWithdrawn, nil, nil); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrNotEnrolled
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw")
	}
	enrollment.Status = models.EnrollmentStatusWithdrawn

	s.audit.Record(ctx, auditEntry(actor, models.AuditEventWithdrawal, map[string]interface{}{
		"enrollment_id": enrollment.ID,
		"course_id":     courseID,
		"student_id":    actor.ProfileID,
		"old_status":    oldStatus,
	}))
	return enrollment, nil
}

// SetStatus changes an enrollment's status on behalf of faculty or admin.
// COMPLETED records are immutable. Capacity is deliberately not re-checked
// here: promoting from the waitlist is a human decision, and an admin
// forcing ENROLLED past the seat limit is allowed and logged as an override.
func (s *EnrollmentService) SetStatus(ctx context.Context, actor authz.Actor, enrollmentID string, req SetStatusRequest) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			// Authorize against an empty target so a denial is still
			// audited, and non-admins cannot probe which ids exist.
			if authzErr := s.engine.Authorize(ctx, actor, authz.OpUpdateEnrollment, authz.Target{}); authzErr != nil {
				return nil, authzErr
			}
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	if err := s.engine.Authorize(ctx, actor, authz.OpUpdateEnrollment, authz.Target{CourseID: enrollment.CourseID}); err != nil {
		return nil, err
	}

	// Payload validation runs after authorization so an unauthorized
	// caller always sees the same audited FORBIDDEN, malformed or not.
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	if !req.Status.Valid() {
		return nil, appErrors.ErrInvalidStatus
	}

	if enrollment.Status == models.EnrollmentStatusCompleted {
		return nil, appErrors.ErrFinalized
	}

	oldStatus := enrollment.Status
	if err := s.repo.UpdateStatus(ctx, enrollment.ID, req.Status, req.Grade, req.Remarks); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment status")
	}
	enrollment.Status = req.Status
	if req.Grade != nil {
		enrollment.Grade = req.Grade
	}
	if req.Remarks != nil {
		enrollment.Remarks = req.Remarks
	}

	eventKind := models.AuditEventStatusUpdated
	if actor.Role == models.RoleAdmin && req.Status == models.EnrollmentStatusEnrolled && oldStatus != models.EnrollmentStatusEnrolled {
		switch over, checkErr := s.overCapacity(ctx, enrollment.CourseID); {
		case checkErr != nil:
			s.logger.Warn("capacity check for override audit failed",
				zap.String("enrollment_id", enrollment.ID),
				zap.String("course_id", enrollment.CourseID),
				zap.Error(checkErr))
		case over:
			eventKind = models.AuditEventEnrollmentOverride
		}
	}
	s.audit.Record(ctx, auditEntry(actor, eventKind, map[string]interface{}{
		"enrollment_id": enrollment.ID,
		"course_id":     enrollment.CourseID,
		"student_id":    enrollment.StudentID,
		"old_status":    oldStatus,
		"new_status":    req.Status,
	}))
	return enrollment, nil
}

// overCapacity reports whether the ENROLLED count now exceeds the limit.
func (s *EnrollmentService) overCapacity(ctx context.Context, courseID string) (bool, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return false, err
	}
	if course.SeatLimit == nil {
		return false, nil
	}
	enrolled, err := s.repo.CountEnrolled(ctx, courseID)
	if err != nil {
		return false, err
	}
	return enrolled > *course.SeatLimit, nil
}

// SeatsAvailable returns the remaining seats for a course, clamped at zero,
// or nil for unbounded courses. Overrides can push the enrolled count past
// the limit, so a negative difference must never leak out.
func (s *EnrollmentService) SeatsAvailable(ctx context.Context, courseID string) (*int, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course.SeatLimit == nil {
		return nil, nil
	}

	enrolled, err := s.repo.CountEnrolled(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	available := *course.SeatLimit - enrolled
	if available < 0 {
		available = 0
	}
	return &available, nil
}

// ListForCourse returns the roster of a course for faculty or admin.
func (s *EnrollmentService) ListForCourse(ctx context.Context, actor authz.Actor, courseID string, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	if err := s.engine.Authorize(ctx, actor, authz.OpViewCourseRoster, authz.Target{CourseID: courseID}); err != nil {
		return nil, nil, err
	}

	filter.CourseID = courseID
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return enrollments, pagination, nil
}

// ListOwn returns the calling student's enrollment history.
func (s *EnrollmentService) ListOwn(ctx context.Context, actor authz.Actor) ([]models.EnrollmentDetail, error) {
	if err := s.engine.Authorize(ctx, actor, authz.OpViewOwnEnrollments, authz.Target{StudentID: actor.ProfileID}); err != nil {
		return nil, err
	}

	enrollments, err := s.repo.ListByStudent(ctx, actor.ProfileID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, nil
}
