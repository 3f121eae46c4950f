package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/classpulse/classpulse-api/internal/service"
	appErrors "github.com/classpulse/classpulse-api/pkg/errors"
	"github.com/classpulse/classpulse-api/pkg/response"
)

// ReportHandler exposes derived weekly report endpoints.
type ReportHandler struct {
	reports  *service.ReportService
	feedback *service.FeedbackService
}

// NewReportHandler constructs a report handler.
func NewReportHandler(reports *service.ReportService, feedback *service.FeedbackService) *ReportHandler {
	return &ReportHandler{reports: reports, feedback: feedback}
}

func parseWeek(c *gin.Context) (time.Time, bool) {
	raw := c.Query("week")
	if raw == "" {
		return service.WeekStartOf(time.Now().UTC()), true
	}
	parsed, err := time.ParseInLocation(service.DateLayout, raw, time.UTC)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "week must be formatted YYYY-MM-DD"))
		return time.Time{}, false
	}
	return service.WeekStartOf(parsed), true
}

// StudentWeekly godoc
// @Summary Weekly summary for one student
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Param week query string false "Any date inside the target week (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /reports/students/{id} [get]
func (h *ReportHandler) StudentWeekly(c *gin.Context) {
	week, ok := parseWeek(c)
	if !ok {
		return
	}
	summary, err := h.reports.StudentWeekly(c.Request.Context(), teacherID(c), c.Param("id"), week)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// ClassWeekly godoc
// @Summary Weekly rollup for one class
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Class ID"
// @Param week query string false "Any date inside the target week (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /reports/classes/{id} [get]
func (h *ReportHandler) ClassWeekly(c *gin.Context) {
	week, ok := parseWeek(c)
	if !ok {
		return
	}
	rollup, err := h.reports.ClassWeekly(c.Request.Context(), teacherID(c), c.Param("id"), week)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rollup, nil)
}

// AvailableWeeks godoc
// @Summary Weeks that contain at least one log
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /reports/weeks [get]
func (h *ReportHandler) AvailableWeeks(c *gin.Context) {
	weeks, err := h.reports.AvailableWeeks(c.Request.Context(), teacherID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	formatted := make([]string, 0, len(weeks))
	for _, week := range weeks {
		formatted = append(formatted, week.Format(service.DateLayout))
	}
	response.JSON(c, http.StatusOK, formatted, nil)
}

// Feedback godoc
// @Summary Weekly summary with generated narrative feedback
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Param week query string false "Any date inside the target week (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /reports/students/{id}/feedback [get]
func (h *ReportHandler) Feedback(c *gin.Context) {
	week, ok := parseWeek(c)
	if !ok {
		return
	}
	summary, err := h.feedback.Generate(c.Request.Context(), teacherID(c), c.Param("id"), week)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
