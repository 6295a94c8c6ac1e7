package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-enroll-api/internal/models"
	"github.com/noah-isme/campus-enroll-api/internal/service"
	"github.com/noah-isme/campus-enroll-api/pkg/response"
)

// CourseHandler exposes the read-only catalog available to every role.
type CourseHandler struct {
	courses     *service.CourseService
	enrollments *service.EnrollmentService
}

// NewCourseHandler constructs CourseHandler.
func NewCourseHandler(courses *service.CourseService, enrollments *service.EnrollmentService) *CourseHandler {
	return &CourseHandler{courses: courses, enrollments: enrollments}
}

// List godoc
// @Summary Browse the course catalog
// @Tags Courses
// @Produce json
// @Param departmentId query string false "Filter by department"
// @Param q query string false "Search by name or code"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	var filter models.CourseFilter
	filter.DepartmentID = c.Query("departmentId")
	filter.Search = c.Query("q")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	courses, pagination, err := h.courses.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, pagination)
}

// Get godoc
// @Summary Fetch one course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.courses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Seats godoc
// @Summary Remaining seats for a course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id}/seats [get]
func (h *CourseHandler) Seats(c *gin.Context) {
	seats, err := h.enrollments.SeatsAvailable(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"course_id": c.Param("id"), "seats_available": seats}, nil)
}

// ListDepartments godoc
// @Summary List departments
// @Tags Courses
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /departments [get]
func (h *CourseHandler) ListDepartments(c *gin.Context) {
	departments, err := h.courses.ListDepartments(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, departments, nil)
}
