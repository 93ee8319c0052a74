package handler

import (
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-records-api/internal/middleware"
	"github.com/noah-isme/school-records-api/internal/models"
	"github.com/noah-isme/school-records-api/internal/service"
	appErrors "github.com/noah-isme/school-records-api/pkg/errors"
	"github.com/noah-isme/school-records-api/pkg/response"
)

// maxAttachmentBytes caps submission uploads at 10 MiB.
const maxAttachmentBytes = 10 << 20

// SubmissionHandler exposes submission endpoints.
type SubmissionHandler struct {
	submissions *service.SubmissionService
}

// NewSubmissionHandler constructs SubmissionHandler.
func NewSubmissionHandler(submissions *service.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions}
}

// List godoc
// @Summary List submissions
// @Tags Submissions
// @Produce json
// @Param assignmentId query string false "Filter by assignment"
// @Param studentId query string false "Filter by student"
// @Param classId query string false "Filter by class"
// @Param status query string false "Filter by status (PENDING/SUBMITTED/GRADED)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /submissions [get]
func (h *SubmissionHandler) List(c *gin.Context) {
	var filter models.SubmissionFilter
	filter.AssignmentID = c.Query("assignmentId")
	filter.StudentID = c.Query("studentId")
	filter.ClassID = c.Query("classId")
	if raw := c.Query("status"); raw != "" {
		status := models.SubmissionStatus(raw)
		if !status.Valid() {
			response.Error(c, appErrors.New(appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status filter"))
			return
		}
		filter.Status = &status
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	submissions, pagination, err := h.submissions.List(c.Request.Context(), middleware.AccountFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submissions, pagination)
}

// Get godoc
// @Summary Get submission
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id} [get]
func (h *SubmissionHandler) Get(c *gin.Context) {
	submission, err := h.submissions.Get(c.Request.Context(), middleware.AccountFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// Submit godoc
// @Summary Submit work for an assignment
// @Description Accepts JSON or multipart/form-data. The multipart form
// @Description carries assignment_id and text fields plus an optional file part.
// @Tags Submissions
// @Accept json
// @Accept mpfd
// @Produce json
// @Success 201 {object} response.Envelope
// @Router /submissions [post]
func (h *SubmissionHandler) Submit(c *gin.Context) {
	req, err := h.parseSubmitRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	submission, err := h.submissions.Submit(c.Request.Context(), middleware.AccountFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, submission)
}

func (h *SubmissionHandler) parseSubmitRequest(c *gin.Context) (service.SubmitRequest, error) {
	var req service.SubmitRequest
	contentType := c.ContentType()
	if !strings.HasPrefix(contentType, "multipart/form-data") {
		if err := c.ShouldBindJSON(&req); err != nil {
			return req, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload")
		}
		return req, nil
	}

	req.AssignmentID = c.PostForm("assignment_id")
	req.Text = c.PostForm("text")
	file, err := c.FormFile("file")
	if err != nil {
		if err == http.ErrMissingFile {
			return req, nil
		}
		return req, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid attachment")
	}
	if file.Size > maxAttachmentBytes {
		return req, appErrors.New(appErrors.ErrValidation.Code, http.StatusBadRequest, "attachment exceeds the 10 MiB limit")
	}
	src, err := file.Open()
	if err != nil {
		return req, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid attachment")
	}
	defer src.Close()
	content, err := io.ReadAll(io.LimitReader(src, maxAttachmentBytes+1))
	if err != nil {
		return req, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read attachment")
	}
	// Multipart filenames are attacker-controlled; keep the base name only.
	req.FileName = filepath.Base(file.Filename)
	req.FileContent = content
	return req, nil
}
