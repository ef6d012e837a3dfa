package analysis

import (
	"testing"

	"github.com/mockview/backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func emotionMap(v float64) map[string]float64 {
	m := make(map[string]float64, len(EmotionKeys))
	for _, key := range EmotionKeys {
		m[key] = v
	}
	return m
}

func sampleWith(confidence float64, emotions map[string]float64) SampleInput {
	return SampleInput{
		FaceConfidence: confidence,
		Emotions:       emotions,
	}
}

func TestAggregateConfidenceRounding(t *testing.T) {
	confidences := []float64{0.98, 0.99, 0.97, 0.98, 0.98, 0.99}
	samples := make([]SampleInput, 0, len(confidences))
	for _, c := range confidences {
		samples = append(samples, sampleWith(c, emotionMap(0.1)))
	}

	avg, err := Aggregate(samples)
	require.NoError(t, err)
	assert.Equal(t, 0.982, avg.FaceConfidence)
	assert.Equal(t, len(confidences), avg.SampleCount)
}

func TestAggregateConstantVector(t *testing.T) {
	emotions := map[string]float64{
		"angry": 0.01, "disgust": 0.02, "fear": 0.03, "happy": 0.8,
		"neutral": 0.1, "sad": 0.02, "surprise": 0.02,
	}
	samples := []SampleInput{
		sampleWith(0.9, emotions),
		sampleWith(0.9, emotions),
		sampleWith(0.9, emotions),
	}

	avg, err := Aggregate(samples)
	require.NoError(t, err)

	want := models.EmotionScores{
		Angry: 0.01, Disgust: 0.02, Fear: 0.03, Happy: 0.8,
		Neutral: 0.1, Sad: 0.02, Surprise: 0.02,
	}
	assert.Equal(t, want, avg.Emotions)
}

func TestAggregateEmptyInput(t *testing.T) {
	_, err := Aggregate(nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestAggregateMissingEmotionKey(t *testing.T) {
	emotions := emotionMap(0.1)
	delete(emotions, "surprise")

	_, err := Aggregate([]SampleInput{sampleWith(0.9, emotions)})
	assert.ErrorIs(t, err, ErrMalformedSample)
}

func TestAggregateRoundsEachKey(t *testing.T) {
	a := emotionMap(0.1)
	b := emotionMap(0.1)
	a["happy"] = 0.3333
	b["happy"] = 0.3334

	avg, err := Aggregate([]SampleInput{sampleWith(0.5, a), sampleWith(0.5, b)})
	require.NoError(t, err)
	assert.Equal(t, 0.333, avg.Emotions.Happy)
}
