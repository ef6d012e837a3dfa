package repository

import (
	"testing"
	"time"

	"github.com/mockview/backend/analysis"
	"github.com/mockview/backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAt(count int, offset time.Duration) models.AnalysisSample {
	return models.AnalysisSample{
		SessionCount: count,
		SampledAt:    time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC).Add(offset),
	}
}

func TestAssembleViewsGroupsBySessionCount(t *testing.T) {
	counts := []int{3, 2}
	interviews := []models.InterviewSession{
		{SessionCount: 3, MeanScore: 74.7},
	}
	averages := []models.EmotionAverage{
		{SessionCount: 3, SampleCount: 6},
		{SessionCount: 2, SampleCount: 3},
	}
	var samples []models.AnalysisSample
	for i := 0; i < 6; i++ {
		samples = append(samples, sampleAt(3, time.Duration(i)*time.Minute))
	}
	for i := 0; i < 3; i++ {
		samples = append(samples, sampleAt(2, time.Duration(i)*time.Minute))
	}

	views := assembleViews(counts, interviews, samples, averages)
	require.Len(t, views, 2)

	assert.Equal(t, 3, views[0].SessionCount)
	assert.Equal(t, analysis.StatusCompleted, views[0].Status)
	require.NotNil(t, views[0].Interview)
	assert.Equal(t, 74.7, views[0].Interview.MeanScore)
	assert.Len(t, views[0].Samples, 6)
	require.NotNil(t, views[0].Average)
	assert.Equal(t, 6, views[0].Average.SampleCount)

	assert.Equal(t, 2, views[1].SessionCount)
	assert.Equal(t, analysis.StatusInProgress, views[1].Status)
	assert.Nil(t, views[1].Interview) // not yet submitted
	assert.Len(t, views[1].Samples, 3)
}

func TestAssembleViewsPreservesCountOrder(t *testing.T) {
	counts := []int{5, 4, 1}
	samples := []models.AnalysisSample{sampleAt(1, 0), sampleAt(4, 0), sampleAt(5, 0)}

	views := assembleViews(counts, nil, samples, nil)
	require.Len(t, views, 3)
	assert.Equal(t, 5, views[0].SessionCount)
	assert.Equal(t, 4, views[1].SessionCount)
	assert.Equal(t, 1, views[2].SessionCount)
}

func TestAssembleViewsMissingRows(t *testing.T) {
	views := assembleViews([]int{1}, nil, []models.AnalysisSample{sampleAt(1, 0)}, nil)
	require.Len(t, views, 1)
	assert.Nil(t, views[0].Interview)
	assert.Nil(t, views[0].Average)
	assert.Equal(t, analysis.StatusInProgress, views[0].Status)
}

func TestSampleStatsRoundTrip(t *testing.T) {
	rows := []models.AnalysisSample{
		{
			FaceConfidence: 0.98,
			Emotions:       models.EmotionScores{Angry: 0.1, Disgust: 0.1, Fear: 0.1, Happy: 0.4, Neutral: 0.1, Sad: 0.1, Surprise: 0.1},
		},
	}

	avg, err := analysis.Aggregate(sampleStats(rows))
	require.NoError(t, err)
	assert.Equal(t, 0.98, avg.FaceConfidence)
	assert.Equal(t, 0.4, avg.Emotions.Happy)
}
