package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-records-api/internal/middleware"
	"github.com/noah-isme/school-records-api/internal/models"
	"github.com/noah-isme/school-records-api/internal/service"
	appErrors "github.com/noah-isme/school-records-api/pkg/errors"
	"github.com/noah-isme/school-records-api/pkg/response"
)

// GradeHandler exposes grade endpoints.
type GradeHandler struct {
	grades *service.GradeService
}

// NewGradeHandler constructs GradeHandler.
func NewGradeHandler(grades *service.GradeService) *GradeHandler {
	return &GradeHandler{grades: grades}
}

// List godoc
// @Summary List grades
// @Tags Grades
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param subject query string false "Filter by subject"
// @Param term query string false "Filter by term"
// @Param classId query string false "Filter by class"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /grades [get]
func (h *GradeHandler) List(c *gin.Context) {
	var filter models.GradeFilter
	filter.StudentID = c.Query("studentId")
	filter.Subject = c.Query("subject")
	filter.Term = c.Query("term")
	filter.ClassID = c.Query("classId")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	grades, pagination, err := h.grades.List(c.Request.Context(), middleware.AccountFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades, pagination)
}

// GradeSubmission godoc
// @Summary Grade a submitted assignment
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body service.GradeSubmissionRequest true "Grade payload"
// @Success 201 {object} response.Envelope
// @Router /submissions/{id}/grade [post]
func (h *GradeHandler) GradeSubmission(c *gin.Context) {
	var req service.GradeSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	grade, err := h.grades.GradeSubmission(c.Request.Context(), middleware.AccountFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, grade)
}

// Create godoc
// @Summary Record a grade without a submission
// @Description Used for work handed in outside the system, e.g. oral exams.
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.ManualGradeRequest true "Grade payload"
// @Success 201 {object} response.Envelope
// @Router /grades [post]
func (h *GradeHandler) Create(c *gin.Context) {
	var req service.ManualGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	grade, err := h.grades.Create(c.Request.Context(), middleware.AccountFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, grade)
}

// CreateBatch godoc
// @Summary Record multiple grades at once
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body []service.ManualGradeRequest true "Grade payloads"
// @Success 201 {object} response.Envelope
// @Router /grades/batch [post]
func (h *GradeHandler) CreateBatch(c *gin.Context) {
	var reqs []service.ManualGradeRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	grades, err := h.grades.CreateBatch(c.Request.Context(), middleware.AccountFromContext(c), reqs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, grades)
}
