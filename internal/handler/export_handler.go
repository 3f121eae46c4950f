package handler

import (
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/classpulse/classpulse-api/internal/models"
	"github.com/classpulse/classpulse-api/internal/service"
	appErrors "github.com/classpulse/classpulse-api/pkg/errors"
	"github.com/classpulse/classpulse-api/pkg/response"
)

// ExportHandler exposes asynchronous report export endpoints.
type ExportHandler struct {
	service *service.ExportService
}

// NewExportHandler constructs an export handler.
func NewExportHandler(svc *service.ExportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// ExportRequest queues a report export.
type ExportRequest struct {
	Type      models.ExportType   `json:"type" binding:"required"`
	StudentID string              `json:"student_id"`
	ClassID   string              `json:"class_id"`
	Week      string              `json:"week" binding:"required"`
	Format    models.ExportFormat `json:"format" binding:"required"`
}

// Enqueue godoc
// @Summary Queue a report export
// @Tags Exports
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body ExportRequest true "Export payload"
// @Success 202 {object} response.Envelope
// @Router /exports [post]
func (h *ExportHandler) Enqueue(c *gin.Context) {
	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	week, err := time.ParseInLocation(service.DateLayout, req.Week, time.UTC)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "week must be formatted YYYY-MM-DD"))
		return
	}

	job, err := h.service.Enqueue(c.Request.Context(), teacherID(c), req.Type, models.ExportJobParams{
		StudentID: req.StudentID,
		ClassID:   req.ClassID,
		WeekStart: week,
		Format:    req.Format,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// Get godoc
// @Summary Export job status
// @Tags Exports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /exports/{id} [get]
func (h *ExportHandler) Get(c *gin.Context) {
	job, err := h.service.Get(c.Request.Context(), teacherID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// List godoc
// @Summary Recent export jobs
// @Tags Exports
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum jobs returned"
// @Success 200 {object} response.Envelope
// @Router /exports [get]
func (h *ExportHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	jobList, err := h.service.List(c.Request.Context(), teacherID(c), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, jobList, nil)
}

// Download godoc
// @Summary Download a rendered export
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Router /exports/download/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	_, relPath, _, err := h.service.ParseToken(c.Param("token"), false)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "download link is invalid or expired"))
		return
	}

	file, err := h.service.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "export artifact no longer exists"))
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read artifact"))
		return
	}

	contentType := "application/octet-stream"
	switch filepath.Ext(relPath) {
	case ".csv":
		contentType = "text/csv"
	case ".pdf":
		contentType = "application/pdf"
	}
	c.Header("Content-Disposition", `attachment; filename="`+filepath.Base(relPath)+`"`)
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
}
