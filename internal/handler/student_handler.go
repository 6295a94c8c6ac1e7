package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-enroll-api/internal/service"
	appErrors "github.com/noah-isme/campus-enroll-api/pkg/errors"
	"github.com/noah-isme/campus-enroll-api/pkg/response"
)

// StudentHandler exposes the self-service endpoints. Every operation acts
// on the caller's own records; the student id always comes from the token.
type StudentHandler struct {
	enrollments   *service.EnrollmentService
	announcements *service.AnnouncementService
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(enrollments *service.EnrollmentService, announcements *service.AnnouncementService) *StudentHandler {
	return &StudentHandler{enrollments: enrollments, announcements: announcements}
}

type enrollRequest struct {
	CourseID string `json:"course_id" binding:"required"`
}

// Enroll godoc
// @Summary Enroll in a course
// @Tags Student
// @Accept json
// @Produce json
// @Param payload body enrollRequest true "Course to enroll in"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /student/enrollments [post]
func (h *StudentHandler) Enroll(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	enrollment, err := h.enrollments.Enroll(c.Request.Context(), actor, req.CourseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Withdraw godoc
// @Summary Withdraw from a course
// @Tags Student
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /student/enrollments/{courseId} [delete]
func (h *StudentHandler) Withdraw(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	enrollment, err := h.enrollments.Withdraw(c.Request.Context(), actor, c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// ListEnrollments godoc
// @Summary List the caller's enrollments
// @Tags Student
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /student/enrollments [get]
func (h *StudentHandler) ListEnrollments(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	enrollments, err := h.enrollments.ListOwn(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}

// ListAnnouncements godoc
// @Summary Announcement feed for the caller's courses
// @Tags Student
// @Produce json
// @Param limit query int false "Max results"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /student/announcements [get]
func (h *StudentHandler) ListAnnouncements(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))
	announcements, err := h.announcements.ListForStudent(c.Request.Context(), actor, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, announcements, nil)
}
