package handler

import (
	"io"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/school-records-api/internal/middleware"
	"github.com/noah-isme/school-records-api/internal/service"
	appErrors "github.com/noah-isme/school-records-api/pkg/errors"
	"github.com/noah-isme/school-records-api/pkg/response"
	"github.com/noah-isme/school-records-api/pkg/storage"
)

// ReportHandler exposes report card endpoints.
type ReportHandler struct {
	reports *service.ReportService
	signer  *storage.SignedURLSigner
	blobs   *storage.LocalStorage
	logger  *zap.Logger
}

// NewReportHandler constructs ReportHandler.
func NewReportHandler(reports *service.ReportService, signer *storage.SignedURLSigner, blobs *storage.LocalStorage, logger *zap.Logger) *ReportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportHandler{reports: reports, signer: signer, blobs: blobs, logger: logger}
}

// Request godoc
// @Summary Request a report card render
// @Description Queues the render job; poll the job resource for the result URL.
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body service.RequestReportCardRequest true "Report request"
// @Success 202 {object} response.Envelope
// @Router /reports [post]
func (h *ReportHandler) Request(c *gin.Context) {
	var req service.RequestReportCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	job, err := h.reports.Request(c.Request.Context(), middleware.AccountFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// Get godoc
// @Summary Get report job status
// @Tags Reports
// @Produce json
// @Param id path string true "Report job ID"
// @Success 200 {object} response.Envelope
// @Router /reports/{id} [get]
func (h *ReportHandler) Get(c *gin.Context) {
	job, err := h.reports.Get(c.Request.Context(), middleware.AccountFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// ListMine godoc
// @Summary List report jobs requested by the caller
// @Tags Reports
// @Produce json
// @Param limit query int false "Maximum rows"
// @Success 200 {object} response.Envelope
// @Router /reports [get]
func (h *ReportHandler) ListMine(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	jobs, err := h.reports.ListMine(c.Request.Context(), middleware.AccountFromContext(c), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, jobs, nil)
}

// Download godoc
// @Summary Download a rendered report card
// @Description The token comes from the finished job's result URL. No session
// @Description is required; the HMAC signature and expiry gate access.
// @Tags Reports
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Router /reports/download [get]
func (h *ReportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.New(appErrors.ErrValidation.Code, http.StatusBadRequest, "token is required"))
		return
	}
	reportID, locator, _, err := h.signer.Parse(token, false)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrForbidden.Code, http.StatusForbidden, "invalid or expired download token"))
		return
	}

	file, err := h.blobs.Open(locator)
	if err != nil {
		if os.IsNotExist(err) {
			response.Error(c, appErrors.New(appErrors.ErrNotFound.Code, http.StatusNotFound, "report file no longer exists"))
			return
		}
		h.logger.Error("failed to open report file", zap.String("report_id", reportID), zap.Error(err))
		response.Error(c, appErrors.ErrInternal)
		return
	}
	defer file.Close()

	name := path.Base(locator)
	contentType := "application/octet-stream"
	switch {
	case strings.HasSuffix(name, ".csv"):
		contentType = "text/csv"
	case strings.HasSuffix(name, ".pdf"):
		contentType = "application/pdf"
	}
	c.Header("Content-Disposition", "attachment; filename=\""+name+"\"")
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, file); err != nil {
		h.logger.Warn("report download interrupted", zap.String("report_id", reportID), zap.Error(err))
	}
}
