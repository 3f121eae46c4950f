package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/classpulse/classpulse-api/internal/models"
	"github.com/classpulse/classpulse-api/internal/service"
	appErrors "github.com/classpulse/classpulse-api/pkg/errors"
	"github.com/classpulse/classpulse-api/pkg/response"
)

// DailyLogHandler exposes daily rubric log endpoints.
type DailyLogHandler struct {
	service *service.DailyLogService
}

// NewDailyLogHandler constructs a daily log handler.
func NewDailyLogHandler(svc *service.DailyLogService) *DailyLogHandler {
	return &DailyLogHandler{service: svc}
}

// SaveDay godoc
// @Summary Save one date's edit buffer for a class
// @Tags DailyLogs
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.SaveDayRequest true "Save payload"
// @Success 200 {object} response.Envelope
// @Router /daily-logs [put]
func (h *DailyLogHandler) SaveDay(c *gin.Context) {
	var req service.SaveDayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.SaveDay(c.Request.Context(), teacherID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// GetDay godoc
// @Summary Fetch a class's logs for one date
// @Tags DailyLogs
// @Produce json
// @Security BearerAuth
// @Param class_id query string true "Class ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /daily-logs [get]
func (h *DailyLogHandler) GetDay(c *gin.Context) {
	classID := c.Query("class_id")
	date := c.Query("date")
	if classID == "" || date == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "class_id and date are required"))
		return
	}
	logs, err := h.service.GetDay(c.Request.Context(), teacherID(c), classID, date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}

// ListForStudent godoc
// @Summary List one student's log history
// @Tags DailyLogs
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Param from query string false "Window start (YYYY-MM-DD)"
// @Param to query string false "Window end (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/daily-logs [get]
func (h *DailyLogHandler) ListForStudent(c *gin.Context) {
	var filter models.DailyLogFilter
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.ParseInLocation(service.DateLayout, raw, time.UTC)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "from must be formatted YYYY-MM-DD"))
			return
		}
		filter.DateFrom = &parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.ParseInLocation(service.DateLayout, raw, time.UTC)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "to must be formatted YYYY-MM-DD"))
			return
		}
		filter.DateTo = &parsed
	}

	logs, err := h.service.ListForStudent(c.Request.Context(), teacherID(c), c.Param("id"), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}

// StudentDay godoc
// @Summary Fetch one student's log for one date
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param student_id query string true "Student ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /reports/daily [get]
func (h *DailyLogHandler) StudentDay(c *gin.Context) {
	studentID := c.Query("student_id")
	date := c.Query("date")
	if studentID == "" || date == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "student_id and date are required"))
		return
	}
	log, err := h.service.StudentDay(c.Request.Context(), teacherID(c), studentID, date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, log, nil)
}

// PurgeStudent godoc
// @Summary Delete all logs for one student
// @Tags DailyLogs
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/daily-logs [delete]
func (h *DailyLogHandler) PurgeStudent(c *gin.Context) {
	deleted, err := h.service.PurgeStudent(c.Request.Context(), teacherID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"deleted": deleted}, nil)
}

// PurgeClass godoc
// @Summary Delete all logs for a class's roster
// @Tags DailyLogs
// @Produce json
// @Security BearerAuth
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/daily-logs [delete]
func (h *DailyLogHandler) PurgeClass(c *gin.Context) {
	deleted, err := h.service.PurgeClass(c.Request.Context(), teacherID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"deleted": deleted}, nil)
}

// PurgeRange godoc
// @Summary Bulk-delete logs in a date window
// @Tags DailyLogs
// @Produce json
// @Security BearerAuth
// @Param from query string true "Window start (YYYY-MM-DD)"
// @Param to query string true "Window end (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /daily-logs [delete]
func (h *DailyLogHandler) PurgeRange(c *gin.Context) {
	from := c.Query("from")
	to := c.Query("to")
	if from == "" || to == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "from and to are required"))
		return
	}
	deleted, err := h.service.PurgeRange(c.Request.Context(), teacherID(c), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"deleted": deleted}, nil)
}
