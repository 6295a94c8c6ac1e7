package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-enroll-api/internal/authz"
	"github.com/noah-isme/campus-enroll-api/internal/models"
	appErrors "github.com/noah-isme/campus-enroll-api/pkg/errors"
)

type announcementRepository interface {
	Create(ctx context.Context, announcement *models.CourseAnnouncement) error
	ListByFaculty(ctx context.Context, facultyID string, limit int) ([]models.CourseAnnouncementDetail, error)
	ListForStudent(ctx context.Context, studentID string, limit int) ([]models.CourseAnnouncementDetail, error)
}

// PostAnnouncementRequest holds payload for posting to a course.
type PostAnnouncementRequest struct {
	CourseID string                  `json:"course_id" validate:"required"`
	Title    string                  `json:"title" validate:"required"`
	Body     *string                 `json:"body,omitempty"`
	Type     models.AnnouncementType `json:"announcement_type,omitempty"`
}

// AnnouncementService lets assigned faculty post to their courses and
// students read the feed for courses they hold an enrollment in.
type AnnouncementService struct {
	repo      announcementRepository
	engine    authorizer
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAnnouncementService constructs the announcement service.
func NewAnnouncementService(repo announcementRepository, engine authorizer, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *AnnouncementService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnnouncementService{repo: repo, engine: engine, audit: audit, validator: validate, logger: logger}
}

// Post publishes an announcement to one of the caller's assigned courses.
func (s *AnnouncementService) Post(ctx context.Context, actor authz.Actor, req PostAnnouncementRequest) (*models.CourseAnnouncement, error) {
	if err := s.engine.Authorize(ctx, actor, authz.OpPostAnnouncement, authz.Target{CourseID: req.CourseID}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement payload")
	}
	if req.Type == "" {
		req.Type = models.AnnouncementTypeGeneral
	}
	if !req.Type.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown announcement type")
	}

	announcement := &models.CourseAnnouncement{
		CourseID:  req.CourseID,
		FacultyID: actor.ProfileID,
		Title:     req.Title,
		Body:      req.Body,
		Type:      req.Type,
	}
	if err := s.repo.Create(ctx, announcement); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to post announcement")
	}

	s.audit.Record(ctx, auditEntry(actor, models.AuditEventAnnouncementPosted, map[string]interface{}{
		"announcement_id": announcement.ID,
		"course_id":       req.CourseID,
	}))
	return announcement, nil
}

// ListOwn returns announcements authored by the calling faculty member.
func (s *AnnouncementService) ListOwn(ctx context.Context, actor authz.Actor, limit int) ([]models.CourseAnnouncementDetail, error) {
	if err := s.engine.Authorize(ctx, actor, authz.OpViewOwnAnnouncement, authz.Target{}); err != nil {
		return nil, err
	}

	announcements, err := s.repo.ListByFaculty(ctx, actor.ProfileID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list announcements")
	}
	return announcements, nil
}

// ListForStudent returns the feed for every course the calling student
// holds an enrollment record in.
func (s *AnnouncementService) ListForStudent(ctx context.Context, actor authz.Actor, limit int) ([]models.CourseAnnouncementDetail, error) {
	if err := s.engine.Authorize(ctx, actor, authz.OpViewOwnAnnouncement, authz.Target{StudentID: actor.ProfileID}); err != nil {
		return nil, err
	}

	announcements, err := s.repo.ListForStudent(ctx, actor.ProfileID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list announcements")
	}
	return announcements, nil
}
