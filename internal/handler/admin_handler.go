package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-enroll-api/internal/models"
	"github.com/noah-isme/campus-enroll-api/internal/service"
	appErrors "github.com/noah-isme/campus-enroll-api/pkg/errors"
	"github.com/noah-isme/campus-enroll-api/pkg/response"
)

// AdminHandler exposes administration endpoints: accounts, roles, courses,
// faculty assignments, enrollment overrides and audit review.
type AdminHandler struct {
	users       *service.UserService
	courses     *service.CourseService
	assignments *service.AssignmentService
	enrollments *service.EnrollmentService
	audit       *service.AuditService
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(users *service.UserService, courses *service.CourseService, assignments *service.AssignmentService, enrollments *service.EnrollmentService, audit *service.AuditService) *AdminHandler {
	return &AdminHandler{users: users, courses: courses, assignments: assignments, enrollments: enrollments, audit: audit}
}

// CreateUser godoc
// @Summary Provision an account
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body service.CreateUserRequest true "User payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/users [post]
func (h *AdminHandler) CreateUser(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	user, err := h.users.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, user)
}

// ListUsers godoc
// @Summary List accounts
// @Tags Admin
// @Produce json
// @Param role query string false "Filter by role"
// @Param active query bool false "Filter by active flag"
// @Param q query string false "Search by email or name"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/users [get]
func (h *AdminHandler) ListUsers(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.UserFilter
	if raw := strings.ToUpper(c.Query("role")); raw != "" {
		role := models.UserRole(raw)
		filter.Role = &role
	}
	if raw := c.Query("active"); raw != "" {
		active := raw == "true"
		filter.Active = &active
	}
	filter.Search = c.Query("q")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	users, pagination, err := h.users.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, users, pagination)
}

// GetUser godoc
// @Summary Fetch one account
// @Tags Admin
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/users/{id} [get]
func (h *AdminHandler) GetUser(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	user, err := h.users.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// ChangeRole godoc
// @Summary Reassign an account's role
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param payload body service.ChangeRoleRequest true "Role payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/users/{id}/role [put]
func (h *AdminHandler) ChangeRole(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ChangeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	if err := h.users.ChangeRole(c.Request.Context(), actor, c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "role updated"}, nil)
}

// DeleteUser godoc
// @Summary Delete an account
// @Tags Admin
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/users/{id} [delete]
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.users.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "user deleted"}, nil)
}

// CreateCourse godoc
// @Summary Create a course
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body service.CourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/courses [post]
func (h *AdminHandler) CreateCourse(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	course, err := h.courses.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// UpdateCourse godoc
// @Summary Update a course
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body service.CourseRequest true "Course payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/courses/{id} [put]
func (h *AdminHandler) UpdateCourse(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	course, err := h.courses.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// DeleteCourse godoc
// @Summary Delete a course
// @Tags Admin
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/courses/{id} [delete]
func (h *AdminHandler) DeleteCourse(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.courses.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "course deleted"}, nil)
}

// CreateDepartment godoc
// @Summary Create a department
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body service.DepartmentRequest true "Department payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/departments [post]
func (h *AdminHandler) CreateDepartment(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.DepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	department, err := h.courses.CreateDepartment(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, department)
}

// ReplaceAssignments godoc
// @Summary Replace a faculty member's assignment set
// @Tags Admin
// @Accept json
// @Produce json
// @Param facultyId path string true "Faculty profile ID"
// @Param payload body service.ReplaceAssignmentsRequest true "Assignment payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/faculty/{facultyId}/assignments [put]
func (h *AdminHandler) ReplaceAssignments(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ReplaceAssignmentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	if err := h.assignments.Replace(c.Request.Context(), actor, c.Param("facultyId"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "assignments updated"}, nil)
}

// ListAssignments godoc
// @Summary List a faculty member's assignments
// @Tags Admin
// @Produce json
// @Param facultyId path string true "Faculty profile ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/faculty/{facultyId}/assignments [get]
func (h *AdminHandler) ListAssignments(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	assignments, err := h.assignments.ListForFaculty(c.Request.Context(), actor, c.Param("facultyId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, nil)
}

// SetEnrollmentStatus godoc
// @Summary Update any enrollment's status, overriding capacity if needed
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.SetStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/enrollments/{id}/status [put]
func (h *AdminHandler) SetEnrollmentStatus(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	enrollment, err := h.enrollments.SetStatus(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Roster godoc
// @Summary Roster of any course
// @Tags Admin
// @Produce json
// @Param id path string true "Course ID"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/courses/{id}/roster [get]
func (h *AdminHandler) Roster(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.EnrollmentFilter
	filter.Status = models.EnrollmentStatus(strings.ToUpper(c.Query("status")))
	filter.Search = c.Query("q")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	enrollments, pagination, err := h.enrollments.ListForCourse(c.Request.Context(), actor, c.Param("id"), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// ListAuditLogs godoc
// @Summary Review the audit trail
// @Tags Admin
// @Produce json
// @Param kind query string false "Filter by event kind"
// @Param actorId query string false "Filter by actor"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/audit-logs [get]
func (h *AdminHandler) ListAuditLogs(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.AuditFilter
	filter.EventKind = c.Query("kind")
	filter.ActorID = c.Query("actorId")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.PageSize = size
	}

	logs, pagination, err := h.audit.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, pagination)
}
