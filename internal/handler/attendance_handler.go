package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-records-api/internal/middleware"
	"github.com/noah-isme/school-records-api/internal/models"
	"github.com/noah-isme/school-records-api/internal/service"
	appErrors "github.com/noah-isme/school-records-api/pkg/errors"
	"github.com/noah-isme/school-records-api/pkg/response"
)

// AttendanceHandler exposes attendance endpoints.
type AttendanceHandler struct {
	attendance *service.AttendanceService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// List godoc
// @Summary List attendance records
// @Tags Attendance
// @Produce json
// @Param classId query string false "Filter by class"
// @Param studentId query string false "Filter by student"
// @Param status query string false "Filter by status (PRESENT/ABSENT/LATE)"
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	var filter models.AttendanceFilter
	filter.ClassID = c.Query("classId")
	filter.StudentID = c.Query("studentId")
	if raw := c.Query("status"); raw != "" {
		status := models.AttendanceStatus(raw)
		if !status.Valid() {
			response.Error(c, appErrors.New(appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status filter"))
			return
		}
		filter.Status = &status
	}
	from, to, err := parseDateRange(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	filter.DateFrom = from
	filter.DateTo = to
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	records, pagination, err := h.attendance.List(c.Request.Context(), middleware.AccountFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// MarkBatch godoc
// @Summary Mark attendance for a class on a given date
// @Description The whole batch is validated first and persisted in one
// @Description transaction; a single bad entry rejects everything.
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.MarkAttendanceRequest true "Attendance batch"
// @Success 201 {object} response.Envelope
// @Router /attendance [post]
func (h *AttendanceHandler) MarkBatch(c *gin.Context) {
	var req service.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	records, err := h.attendance.MarkBatch(c.Request.Context(), middleware.AccountFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, records)
}

// Summary godoc
// @Summary Attendance rate summary for a student
// @Tags Attendance
// @Produce json
// @Param id path string true "Student ID"
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/attendance/summary [get]
func (h *AttendanceHandler) Summary(c *gin.Context) {
	from, to, err := parseDateRange(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	summary, err := h.attendance.Summary(c.Request.Context(), middleware.AccountFromContext(c), c.Param("id"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

func parseDateRange(c *gin.Context) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, nil, appErrors.New(appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid from date, expected YYYY-MM-DD")
		}
		from = &parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, nil, appErrors.New(appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid to date, expected YYYY-MM-DD")
		}
		to = &parsed
	}
	return from, to, nil
}
