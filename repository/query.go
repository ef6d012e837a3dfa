package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mockview/backend/analysis"
	"github.com/mockview/backend/models"
	"gorm.io/gorm"
)

// SessionView joins the three session-scoped records for presentation. The
// interview and average are nil while the session is still in_progress with
// samples only.
type SessionView struct {
	SessionCount int                      `json:"session_count"`
	Status       string                   `json:"status"`
	Interview    *models.InterviewSession `json:"interview,omitempty"`
	Samples      []models.AnalysisSample  `json:"analysis_results"`
	Average      *models.EmotionAverage   `json:"emotion_average,omitempty"`
}

// HistoryQuery selects a page of session history, optionally restricted to a
// date range on the sample timestamps.
type HistoryQuery struct {
	Page  int
	Limit int
	From  *time.Time
	To    *time.Time
}

// GetSessionView assembles one session. A session_count nobody has written to
// yet comes back as (nil, nil), not as an error.
func (r *GORMRepository) GetSessionView(ctx context.Context, userID string, sessionCount int) (*SessionView, error) {
	var samples []models.AnalysisSample
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND session_count = ?", userID, sessionCount).
		Order("sampled_at DESC").
		Find(&samples).Error; err != nil {
		slog.Error("Failed to get analysis samples", "error", err, "user_id", userID, "session_count", sessionCount)
		return nil, fmt.Errorf("failed to get analysis samples: %w", err)
	}

	var interview *models.InterviewSession
	var found models.InterviewSession
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND session_count = ?", userID, sessionCount).
		First(&found).Error
	switch {
	case err == nil:
		interview = &found
	case err != gorm.ErrRecordNotFound:
		slog.Error("Failed to get interview session", "error", err, "user_id", userID, "session_count", sessionCount)
		return nil, fmt.Errorf("failed to get interview session: %w", err)
	}

	average, err := r.getAverage(ctx, userID, sessionCount)
	if err != nil {
		return nil, err
	}

	if len(samples) == 0 && interview == nil {
		return nil, nil
	}
	return &SessionView{
		SessionCount: sessionCount,
		Status:       analysis.StatusFor(len(samples)),
		Interview:    interview,
		Samples:      samples,
		Average:      average,
	}, nil
}

// ListSessionViews returns one page of the user's session history, most
// recent session first. Within each session samples are most-recent-first.
func (r *GORMRepository) ListSessionViews(ctx context.Context, userID string, q HistoryQuery) ([]SessionView, int64, error) {
	base := r.db.WithContext(ctx).Model(&models.AnalysisSample{}).Where("user_id = ?", userID)
	if q.From != nil {
		base = base.Where("sampled_at >= ?", *q.From)
	}
	if q.To != nil {
		base = base.Where("sampled_at <= ?", *q.To)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Distinct("session_count").Count(&total).Error; err != nil {
		slog.Error("Failed to count sessions", "error", err, "user_id", userID)
		return nil, 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	var counts []int
	if err := base.Session(&gorm.Session{}).Distinct("session_count").
		Order("session_count DESC").
		Limit(q.Limit).Offset((q.Page - 1) * q.Limit).
		Pluck("session_count", &counts).Error; err != nil {
		slog.Error("Failed to list session counts", "error", err, "user_id", userID)
		return nil, 0, fmt.Errorf("failed to list session counts: %w", err)
	}
	if len(counts) == 0 {
		return []SessionView{}, total, nil
	}

	var samples []models.AnalysisSample
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND session_count IN ?", userID, counts).
		Order("session_count DESC, sampled_at DESC").
		Find(&samples).Error; err != nil {
		slog.Error("Failed to load session samples", "error", err, "user_id", userID)
		return nil, 0, fmt.Errorf("failed to load session samples: %w", err)
	}

	var interviews []models.InterviewSession
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND session_count IN ?", userID, counts).
		Find(&interviews).Error; err != nil {
		slog.Error("Failed to load interview sessions", "error", err, "user_id", userID)
		return nil, 0, fmt.Errorf("failed to load interview sessions: %w", err)
	}

	var averages []models.EmotionAverage
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND session_count IN ?", userID, counts).
		Find(&averages).Error; err != nil {
		slog.Error("Failed to load emotion averages", "error", err, "user_id", userID)
		return nil, 0, fmt.Errorf("failed to load emotion averages: %w", err)
	}

	return assembleViews(counts, interviews, samples, averages), total, nil
}

// assembleViews groups the fetched rows by session_count, preserving the
// order of counts. Pure so the join logic is testable without a database.
func assembleViews(counts []int, interviews []models.InterviewSession, samples []models.AnalysisSample, averages []models.EmotionAverage) []SessionView {
	interviewBy := make(map[int]*models.InterviewSession, len(interviews))
	for i := range interviews {
		interviewBy[interviews[i].SessionCount] = &interviews[i]
	}
	averageBy := make(map[int]*models.EmotionAverage, len(averages))
	for i := range averages {
		averageBy[averages[i].SessionCount] = &averages[i]
	}
	samplesBy := make(map[int][]models.AnalysisSample, len(counts))
	for _, s := range samples {
		samplesBy[s.SessionCount] = append(samplesBy[s.SessionCount], s)
	}

	views := make([]SessionView, 0, len(counts))
	for _, count := range counts {
		group := samplesBy[count]
		views = append(views, SessionView{
			SessionCount: count,
			Status:       analysis.StatusFor(len(group)),
			Interview:    interviewBy[count],
			Samples:      group,
			Average:      averageBy[count],
		})
	}
	return views
}

func (r *GORMRepository) getAverage(ctx context.Context, userID string, sessionCount int) (*models.EmotionAverage, error) {
	var average models.EmotionAverage
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND session_count = ?", userID, sessionCount).
		First(&average).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get emotion average", "error", err, "user_id", userID, "session_count", sessionCount)
		return nil, fmt.Errorf("failed to get emotion average: %w", err)
	}
	return &average, nil
}

// UserStats aggregates a user's history for the stats endpoint.
type UserStats struct {
	TotalSessions     int64                `json:"total_sessions"`
	SubmittedSessions int64                `json:"submitted_sessions"`
	AverageScore      float64              `json:"average_score"`
	Emotions          models.EmotionScores `json:"emotion"`
	LastActivity      *time.Time           `json:"last_activity"`
}

// GetUserStats returns arithmetic reductions over the user's history.
func (r *GORMRepository) GetUserStats(ctx context.Context, userID string) (*UserStats, error) {
	var stats UserStats

	if err := r.db.WithContext(ctx).
		Model(&models.AnalysisSample{}).
		Where("user_id = ?", userID).
		Distinct("session_count").
		Count(&stats.TotalSessions).Error; err != nil {
		slog.Error("Failed to count total sessions", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to count total sessions: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Model(&models.InterviewSession{}).
		Where("user_id = ?", userID).
		Count(&stats.SubmittedSessions).Error; err != nil {
		slog.Error("Failed to count submitted sessions", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to count submitted sessions: %w", err)
	}

	if stats.SubmittedSessions > 0 {
		var meanScore *float64
		if err := r.db.WithContext(ctx).
			Model(&models.InterviewSession{}).
			Where("user_id = ?", userID).
			Select("AVG(mean_score)").
			Scan(&meanScore).Error; err != nil {
			slog.Error("Failed to average scores", "error", err, "user_id", userID)
			return nil, fmt.Errorf("failed to average scores: %w", err)
		}
		if meanScore != nil {
			stats.AverageScore = *meanScore
		}

		if err := r.db.WithContext(ctx).
			Model(&models.EmotionAverage{}).
			Where("user_id = ?", userID).
			Select("AVG(emotion_angry) AS angry, AVG(emotion_disgust) AS disgust, AVG(emotion_fear) AS fear, " +
				"AVG(emotion_happy) AS happy, AVG(emotion_neutral) AS neutral, AVG(emotion_sad) AS sad, " +
				"AVG(emotion_surprise) AS surprise").
			Scan(&stats.Emotions).Error; err != nil {
			slog.Error("Failed to average emotions", "error", err, "user_id", userID)
			return nil, fmt.Errorf("failed to average emotions: %w", err)
		}
	}

	var lastSample models.AnalysisSample
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("sampled_at DESC").
		First(&lastSample).Error
	switch {
	case err == nil:
		stats.LastActivity = &lastSample.SampledAt
	case err != gorm.ErrRecordNotFound:
		slog.Error("Failed to get last activity", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to get last activity: %w", err)
	}

	slog.Info("User stats retrieved", "user_id", userID, "total_sessions", stats.TotalSessions)
	return &stats, nil
}
