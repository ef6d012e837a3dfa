package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mockview/backend/analysis"
	"github.com/mockview/backend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrConflict marks a store-level transaction failure (serialization failure,
// deadlock, duplicate key from a concurrent writer). The transaction is fully
// rolled back, so the caller may retry the whole submission.
var ErrConflict = errors.New("submission conflicted with a concurrent write")

// SubmissionRecord identifies the rows created by one submission.
type SubmissionRecord struct {
	SessionCount int      `json:"session_count"`
	InterviewID  string   `json:"interview_id"`
	ResultID     string   `json:"result_id"`
	AnalysisIDs  []string `json:"analysis_ids"`
	MeanScore    float64  `json:"mean_score"`
}

// PersistSubmission writes one full session atomically: it locks the user
// row, increments session_count and stamps the new count on every sibling
// record before anything references it. Either all records of the session
// become visible or none do.
func (r *GORMRepository) PersistSubmission(ctx context.Context, userID string, bundle *analysis.Bundle) (*SubmissionRecord, error) {
	var out SubmissionRecord

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", userID).First(&user).Error; err != nil {
			return fmt.Errorf("failed to lock user row: %w", err)
		}

		count := user.SessionCount + 1
		if err := tx.Model(&models.User{}).Where("id = ?", userID).
			Update("session_count", count).Error; err != nil {
			return fmt.Errorf("failed to increment session count: %w", err)
		}

		// The submission carries the session's full sample set. Any rows
		// ingested earlier for this count are superseded by it, the same way
		// the average upsert below replaces the partial aggregate.
		if err := tx.Where("user_id = ? AND session_count = ?", userID, count).
			Delete(&models.AnalysisSample{}).Error; err != nil {
			return fmt.Errorf("failed to clear ingested samples: %w", err)
		}

		for i := range bundle.Samples {
			sample := bundle.Samples[i]
			sample.UserID = userID
			sample.SessionCount = count
			if err := tx.Create(&sample).Error; err != nil {
				return fmt.Errorf("failed to create analysis sample: %w", err)
			}
			out.AnalysisIDs = append(out.AnalysisIDs, sample.ID)
		}

		average := &models.EmotionAverage{
			UserID:         userID,
			SessionCount:   count,
			Date:           bundle.Date,
			FaceConfidence: bundle.Average.FaceConfidence,
			Emotions:       bundle.Average.Emotions,
			SampleCount:    bundle.Average.SampleCount,
			FinalScore:     bundle.FinalScore,
		}
		if err := upsertAverage(tx, average); err != nil {
			return fmt.Errorf("failed to upsert emotion average: %w", err)
		}

		interview := &models.InterviewSession{
			UserID:       userID,
			SessionCount: count,
			Answers:      bundle.Answers,
			MeanScore:    bundle.MeanScore,
		}
		if err := tx.Create(interview).Error; err != nil {
			return fmt.Errorf("failed to create interview session: %w", err)
		}

		result := &models.SessionResult{
			UserID:         userID,
			SessionCount:   count,
			Date:           bundle.Date,
			Answers:        bundle.Answers,
			MeanScore:      bundle.MeanScore,
			FaceConfidence: bundle.Average.FaceConfidence,
			Emotions:       bundle.Average.Emotions,
			SampleCount:    bundle.Average.SampleCount,
		}
		if err := tx.Create(result).Error; err != nil {
			return fmt.Errorf("failed to create session result: %w", err)
		}

		out.SessionCount = count
		out.InterviewID = interview.ID
		out.ResultID = result.ID
		out.MeanScore = bundle.MeanScore
		return nil
	})
	if err != nil {
		if isRetryableConflict(err) {
			slog.Warn("Submission transaction conflicted, rolled back", "user_id", userID, "error", err)
			return nil, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		slog.Error("Failed to persist submission", "error", err, "user_id", userID)
		return nil, err
	}

	slog.Info("Submission persisted", "user_id", userID, "session_count", out.SessionCount,
		"samples", len(out.AnalysisIDs), "mean_score", out.MeanScore)
	return &out, nil
}

// IngestSamples records analyzer snapshots for the session currently in
// progress (the user's next session_count) and refreshes its partial emotion
// average over every sample recorded so far. The counter itself is not
// advanced; that happens only when the session is submitted.
func (r *GORMRepository) IngestSamples(ctx context.Context, userID string, samples []models.AnalysisSample) (int, []string, error) {
	if len(samples) == 0 {
		return 0, nil, analysis.ErrEmptyInput
	}

	var count int
	var ids []string

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", userID).First(&user).Error; err != nil {
			return fmt.Errorf("failed to lock user row: %w", err)
		}
		count = user.SessionCount + 1

		for i := range samples {
			sample := samples[i]
			sample.UserID = userID
			sample.SessionCount = count
			if err := tx.Create(&sample).Error; err != nil {
				return fmt.Errorf("failed to create analysis sample: %w", err)
			}
			ids = append(ids, sample.ID)
		}

		var all []models.AnalysisSample
		if err := tx.Where("user_id = ? AND session_count = ?", userID, count).
			Find(&all).Error; err != nil {
			return fmt.Errorf("failed to load session samples: %w", err)
		}

		avg, err := analysis.Aggregate(sampleStats(all))
		if err != nil {
			return err
		}
		average := &models.EmotionAverage{
			UserID:         userID,
			SessionCount:   count,
			Date:           time.Now(),
			FaceConfidence: avg.FaceConfidence,
			Emotions:       avg.Emotions,
			SampleCount:    avg.SampleCount,
		}
		return upsertAverage(tx, average)
	})
	if err != nil {
		if isRetryableConflict(err) {
			slog.Warn("Sample ingestion conflicted, rolled back", "user_id", userID, "error", err)
			return 0, nil, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		slog.Error("Failed to ingest samples", "error", err, "user_id", userID)
		return 0, nil, err
	}

	slog.Info("Samples ingested", "user_id", userID, "session_count", count, "count", len(ids))
	return count, ids, nil
}

// upsertAverage creates or replaces the (user_id, session_count) aggregate
// row. final_score is supplied externally, not derived, so the stored value
// survives a re-aggregation unless the caller brings a replacement.
func upsertAverage(tx *gorm.DB, average *models.EmotionAverage) error {
	columns := []string{
		"date", "face_confidence", "sample_count", "updated_at",
		"emotion_angry", "emotion_disgust", "emotion_fear", "emotion_happy",
		"emotion_neutral", "emotion_sad", "emotion_surprise",
	}
	if average.FinalScore != nil {
		columns = append(columns, "final_score")
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "session_count"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(average).Error
}

// sampleStats converts stored sample rows back into aggregator inputs.
func sampleStats(samples []models.AnalysisSample) []analysis.SampleInput {
	in := make([]analysis.SampleInput, 0, len(samples))
	for _, s := range samples {
		in = append(in, analysis.SampleInput{
			Timestamp:      s.SampledAt,
			FaceConfidence: s.FaceConfidence,
			Emotions: map[string]float64{
				"angry":    s.Emotions.Angry,
				"disgust":  s.Emotions.Disgust,
				"fear":     s.Emotions.Fear,
				"happy":    s.Emotions.Happy,
				"neutral":  s.Emotions.Neutral,
				"sad":      s.Emotions.Sad,
				"surprise": s.Emotions.Surprise,
			},
		})
	}
	return in
}

// isRetryableConflict reports whether err is a store-level conflict the
// client may retry: serialization failure (40001), deadlock (40P01) or a
// unique violation (23505) from a concurrent writer racing the same counter.
func isRetryableConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return true
		}
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
