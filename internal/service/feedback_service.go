package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/classpulse/classpulse-api/internal/models"
	"github.com/classpulse/classpulse-api/internal/scoring"
	"github.com/classpulse/classpulse-api/pkg/config"
	appErrors "github.com/classpulse/classpulse-api/pkg/errors"
)

type feedbackSummaryProvider interface {
	StudentWeekly(ctx context.Context, teacherID, studentID string, weekStart time.Time) (*models.WeeklySummary, error)
}

// FeedbackService calls the external text-generation collaborator to turn a
// weekly summary into a short narrative. The collaborator is opaque and
// non-deterministic; its failures never touch persisted data.
type FeedbackService struct {
	summaries feedbackSummaryProvider
	cfg       config.FeedbackConfig
	client    *http.Client
	logger    *zap.Logger
}

// NewFeedbackService constructs a FeedbackService with sane defaults.
func NewFeedbackService(summaries feedbackSummaryProvider, cfg config.FeedbackConfig, logger *zap.Logger) *FeedbackService {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &FeedbackService{
		summaries: summaries,
		cfg:       cfg,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

// Enabled reports whether the collaborator is configured.
func (s *FeedbackService) Enabled() bool {
	return s != nil && s.cfg.Enabled && s.cfg.Endpoint != ""
}

// Generate produces feedback text for one student's week.
func (s *FeedbackService) Generate(ctx context.Context, teacherID, studentID string, weekStart time.Time) (*models.WeeklySummary, error) {
	summary, err := s.summaries.StudentWeekly(ctx, teacherID, studentID, weekStart)
	if err != nil {
		return nil, err
	}
	if !s.Enabled() {
		return summary, nil
	}

	payload := models.FeedbackRequest{
		StudentName:      summary.StudentName,
		AvgParticipation: summary.AvgParticipation,
		TotalEngagement:  summary.TotalEngagement,
		DailyLogs:        make([]models.FeedbackLogLine, 0, len(summary.Logs)),
	}
	for _, log := range summary.Logs {
		payload.DailyLogs = append(payload.DailyLogs, models.FeedbackLogLine{
			Date:               log.Date.Format(DateLayout),
			Comments:           log.Comments,
			ParticipationScore: scoring.ParticipationScore(log.Participation),
			EngagementScore:    scoring.EngagementScore(log.Engagement),
		})
	}

	text, err := s.call(ctx, payload)
	if err != nil {
		s.logger.Warn("feedback generation failed",
			zap.String("student_id", studentID),
			zap.Error(err))
		return nil, appErrors.Wrap(err, "FEEDBACK_UNAVAILABLE", http.StatusBadGateway, "feedback generator is unavailable; the report itself is unaffected")
	}

	summary.Feedback = &text
	return summary, nil
}

func (s *FeedbackService) call(ctx context.Context, payload models.FeedbackRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal feedback request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build feedback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call feedback generator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("feedback generator returned %d: %s", resp.StatusCode, string(raw))
	}

	var out struct {
		Feedback string `json:"feedback"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode feedback response: %w", err)
	}
	if out.Feedback == "" {
		return "", fmt.Errorf("feedback generator returned an empty summary")
	}
	return out.Feedback, nil
}
