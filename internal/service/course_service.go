package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-enroll-api/internal/authz"
	"github.com/noah-isme/campus-enroll-api/internal/models"
	appErrors "github.com/noah-isme/campus-enroll-api/pkg/errors"
)

type courseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	CodeExists(ctx context.Context, code, excludeID string) (bool, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error)
	FindDepartmentByID(ctx context.Context, id string) (*models.Department, error)
	ListDepartments(ctx context.Context) ([]models.Department, error)
	CreateDepartment(ctx context.Context, department *models.Department) error
}

type catalogCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CourseRequest holds payload for creating or updating a course.
type CourseRequest struct {
	Name         string  `json:"name" validate:"required"`
	Code         string  `json:"code" validate:"required"`
	DepartmentID string  `json:"department_id" validate:"required"`
	Credits      int     `json:"credits" validate:"gte=0"`
	SeatLimit    *int    `json:"seat_limit" validate:"omitempty,gte=0"`
	Description  *string `json:"description"`
	Schedule     *string `json:"schedule"`
	Semester     *string `json:"semester"`
}

// DepartmentRequest holds payload for creating a department.
type DepartmentRequest struct {
	Name        string  `json:"name" validate:"required"`
	Code        string  `json:"code" validate:"required"`
	Description *string `json:"description"`
}

type catalogPage struct {
	Courses []models.CourseDetail `json:"courses"`
	Total   int                   `json:"total"`
}

// CourseService manages the course catalog. Listings may be served from
// cache; every course write invalidates the cached pages so a stale seat
// count never outlives a change.
type CourseService struct {
	repo      courseRepository
	cache     catalogCache
	engine    authorizer
	audit     auditRecorder
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger

	cacheEnabled bool
	cacheTTL     time.Duration
}

// NewCourseService constructs the course service. Pass a nil cache or
// cacheEnabled=false to serve every listing straight from the database.
func NewCourseService(repo courseRepository, cache catalogCache, engine authorizer, audit auditRecorder, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cacheEnabled bool, cacheTTL time.Duration) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &CourseService{
		repo:         repo,
		cache:        cache,
		engine:       engine,
		audit:        audit,
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
		cacheEnabled: cacheEnabled && cache != nil,
		cacheTTL:     cacheTTL,
	}
}

// List returns catalog pages with live enrolled counts and remaining seats.
// Available to every authenticated role.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, *models.Pagination, error) {
	key := catalogKey(filter)

	if s.cacheEnabled {
		var cached catalogPage
		switch err := s.cache.Get(ctx, key, &cached); {
		case err == nil:
			s.metrics.RecordCacheOperation(true)
			return cached.Courses, paginationFor(filter, cached.Total), nil
		case err == appErrors.ErrCacheMiss:
			s.metrics.RecordCacheOperation(false)
		default:
			s.logger.Warn("catalog cache read failed", zap.Error(err))
		}
	}

	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	for i := range courses {
		courses[i].SeatsAvailable = seatsAvailable(courses[i].SeatLimit, courses[i].EnrolledCount)
	}

	if s.cacheEnabled {
		if err := s.cache.Set(ctx, key, catalogPage{Courses: courses, Total: total}, s.cacheTTL); err != nil {
			s.logger.Warn("catalog cache write failed", zap.Error(err))
		}
	}
	return courses, paginationFor(filter, total), nil
}

// Get returns a single course.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create registers a new course.
func (s *CourseService) Create(ctx context.Context, actor authz.Actor, req CourseRequest) (*models.Course, error) {
	if err := s.engine.Authorize(ctx, actor, authz.OpManageCourses, authz.Target{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	if _, err := s.repo.FindDepartmentByID(ctx, req.DepartmentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check department")
	}
	exists, err := s.repo.CodeExists(ctx, req.Code, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course code already used")
	}

	course := &models.Course{
		Name:         req.Name,
		Code:         req.Code,
		DepartmentID: req.DepartmentID,
		Credits:      req.Credits,
		SeatLimit:    req.SeatLimit,
		Description:  req.Description,
		Schedule:     req.Schedule,
		Semester:     req.Semester,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}

	s.invalidateCatalog(ctx)
	s.audit.Record(ctx, auditEntry(actor, models.AuditEventCourseCreated, map[string]interface{}{
		"course_id": course.ID,
		"code":      course.Code,
	}))
	return course, nil
}

// Update replaces mutable fields of a course. Lowering the seat limit never
// demotes anyone; existing ENROLLED records stay ENROLLED.
func (s *CourseService) Update(ctx context.Context, actor authz.Actor, id string, req CourseRequest) (*models.Course, error) {
	if err := s.engine.Authorize(ctx, actor, authz.OpManageCourses, authz.Target{CourseID: id}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	exists, err := s.repo.CodeExists(ctx, req.Code, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course code already used")
	}

	course := &models.Course{
		ID:           id,
		Name:         req.Name,
		Code:         req.Code,
		DepartmentID: req.DepartmentID,
		Credits:      req.Credits,
		SeatLimit:    req.SeatLimit,
		Description:  req.Description,
		Schedule:     req.Schedule,
		Semester:     req.Semester,
	}
	if err := s.repo.Update(ctx, course); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}

	s.invalidateCatalog(ctx)
	s.audit.Record(ctx, auditEntry(actor, models.AuditEventCourseUpdated, map[string]interface{}{
		"course_id": id,
		"code":      req.Code,
	}))
	return course, nil
}

// Delete removes a course along with its enrollments and assignments.
func (s *CourseService) Delete(ctx context.Context, actor authz.Actor, id string) error {
	if err := s.engine.Authorize(ctx, actor, authz.OpManageCourses, authz.Target{CourseID: id}); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}

	s.invalidateCatalog(ctx)
	s.audit.Record(ctx, auditEntry(actor, models.AuditEventCourseDeleted, map[string]interface{}{
		"course_id": id,
	}))
	return nil
}

// ListDepartments returns every department.
func (s *CourseService) ListDepartments(ctx context.Context) ([]models.Department, error) {
	departments, err := s.repo.ListDepartments(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list departments")
	}
	return departments, nil
}

// CreateDepartment registers a new department.
func (s *CourseService) CreateDepartment(ctx context.Context, actor authz.Actor, req DepartmentRequest) (*models.Department, error) {
	if err := s.engine.Authorize(ctx, actor, authz.OpManageCourses, authz.Target{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid department payload")
	}

	department := &models.Department{
		Name:        req.Name,
		Code:        req.Code,
		Description: req.Description,
	}
	if err := s.repo.CreateDepartment(ctx, department); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create department")
	}
	return department, nil
}

func (s *CourseService) invalidateCatalog(ctx context.Context) {
	if !s.cacheEnabled {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "catalog:*"); err != nil {
		s.logger.Warn("catalog cache invalidation failed", zap.Error(err))
	}
}

func catalogKey(filter models.CourseFilter) string {
	return fmt.Sprintf("catalog:dept=%s:q=%s:page=%d:size=%d:sort=%s:%s",
		filter.DepartmentID, filter.Search, filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder)
}

func paginationFor(filter models.CourseFilter, total int) *models.Pagination {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}

func seatsAvailable(limit *int, enrolled int) *int {
	if limit == nil {
		return nil
	}
	available := *limit - enrolled
	if available < 0 {
		available = 0
	}
	return &available
}
