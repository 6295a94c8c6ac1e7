package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-enroll-api/internal/authz"
	"github.com/noah-isme/campus-enroll-api/internal/models"
	appErrors "github.com/noah-isme/campus-enroll-api/pkg/errors"
)

type assignmentRepository interface {
	Exists(ctx context.Context, facultyID, courseID string) (bool, error)
	ListByFaculty(ctx context.Context, facultyID string) ([]models.FacultyAssignmentDetail, error)
	Replace(ctx context.Context, facultyID string, courseIDs []string, departmentID *string) error
}

// ReplaceAssignmentsRequest holds the full new assignment set for one
// faculty member. The set is replaced wholesale, never merged.
type ReplaceAssignmentsRequest struct {
	CourseIDs    []string `json:"course_ids" validate:"required"`
	DepartmentID *string  `json:"department_id,omitempty"`
}

// AssignmentService manages faculty-course assignments. Assignments double
// as the authorization scope for faculty operations, so replacement is
// atomic: readers never observe a partially updated set.
type AssignmentService struct {
	repo      assignmentRepository
	engine    authorizer
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAssignmentService constructs the assignment service.
func NewAssignmentService(repo assignmentRepository, engine authorizer, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{repo: repo, engine: engine, audit: audit, validator: validate, logger: logger}
}

// Replace swaps a faculty member's entire assignment set.
func (s *AssignmentService) Replace(ctx context.Context, actor authz.Actor, facultyID string, req ReplaceAssignmentsRequest) error {
	if err := s.engine.Authorize(ctx, actor, authz.OpAssignFaculty, authz.Target{}); err != nil {
		return err
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	courseIDs := dedupe(req.CourseIDs)
	if err := s.repo.Replace(ctx, facultyID, courseIDs, req.DepartmentID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "faculty or course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace assignments")
	}

	s.audit.Record(ctx, auditEntry(actor, models.AuditEventAssignmentsReplaced, map[string]interface{}{
		"faculty_id": facultyID,
		"course_ids": courseIDs,
	}))
	return nil
}

// ListOwn returns the calling faculty member's assignments.
func (s *AssignmentService) ListOwn(ctx context.Context, actor authz.Actor) ([]models.FacultyAssignmentDetail, error) {
	if err := s.engine.Authorize(ctx, actor, authz.OpViewOwnAssignments, authz.Target{}); err != nil {
		return nil, err
	}

	assignments, err := s.repo.ListByFaculty(ctx, actor.ProfileID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return assignments, nil
}

// ListForFaculty returns assignments for any faculty member, admin only.
func (s *AssignmentService) ListForFaculty(ctx context.Context, actor authz.Actor, facultyID string) ([]models.FacultyAssignmentDetail, error) {
	if err := s.engine.Authorize(ctx, actor, authz.OpAssignFaculty, authz.Target{}); err != nil {
		return nil, err
	}

	assignments, err := s.repo.ListByFaculty(ctx, facultyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return assignments, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
