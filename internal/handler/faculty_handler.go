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

// FacultyHandler exposes endpoints scoped to a faculty member's assigned
// courses. Scope is enforced in the services via the authorization engine.
type FacultyHandler struct {
	enrollments   *service.EnrollmentService
	assignments   *service.AssignmentService
	announcements *service.AnnouncementService
}

// NewFacultyHandler constructs FacultyHandler.
func NewFacultyHandler(enrollments *service.EnrollmentService, assignments *service.AssignmentService, announcements *service.AnnouncementService) *FacultyHandler {
	return &FacultyHandler{enrollments: enrollments, assignments: assignments, announcements: announcements}
}

// ListAssignments godoc
// @Summary List the caller's course assignments
// @Tags Faculty
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /faculty/assignments [get]
func (h *FacultyHandler) ListAssignments(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	assignments, err := h.assignments.ListOwn(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, nil)
}

// Roster godoc
// @Summary Roster of one assigned course
// @Tags Faculty
// @Produce json
// @Param courseId path string true "Course ID"
// @Param status query string false "Filter by status"
// @Param q query string false "Search by student name or roll number"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /faculty/courses/{courseId}/roster [get]
func (h *FacultyHandler) Roster(c *gin.Context) {
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
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	enrollments, pagination, err := h.enrollments.ListForCourse(c.Request.Context(), actor, c.Param("courseId"), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// SetStatus godoc
// @Summary Update an enrollment's status
// @Tags Faculty
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.SetStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /faculty/enrollments/{id}/status [put]
func (h *FacultyHandler) SetStatus(c *gin.Context) {
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

// PostAnnouncement godoc
// @Summary Post an announcement to an assigned course
// @Tags Faculty
// @Accept json
// @Produce json
// @Param payload body service.PostAnnouncementRequest true "Announcement payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /faculty/announcements [post]
func (h *FacultyHandler) PostAnnouncement(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.PostAnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	announcement, err := h.announcements.Post(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, announcement)
}

// ListAnnouncements godoc
// @Summary List announcements authored by the caller
// @Tags Faculty
// @Produce json
// @Param limit query int false "Max results"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /faculty/announcements [get]
func (h *FacultyHandler) ListAnnouncements(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	announcements, err := h.announcements.ListOwn(c.Request.Context(), actor, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, announcements, nil)
}
