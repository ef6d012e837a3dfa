package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func answersWithOrders(orders []int, scores []int) []QuestionAnswerInput {
	answers := make([]QuestionAnswerInput, 0, len(orders))
	for i, order := range orders {
		answers = append(answers, QuestionAnswerInput{
			Question: "question",
			Answer:   "answer",
			Order:    order,
			Score:    scores[i],
		})
	}
	return answers
}

func buildSamples(n int) []SampleInput {
	samples := make([]SampleInput, 0, n)
	for i := 0; i < n; i++ {
		samples = append(samples, SampleInput{
			Timestamp:      time.Now(),
			FaceConfidence: 0.95,
			Emotions:       emotionMap(0.1),
		})
	}
	return samples
}

func TestBuildSortsAnswersByOrder(t *testing.T) {
	bundle, err := Build(BuildInput{
		Answers: answersWithOrders([]int{2, 1, 3}, []int{80, 70, 90}),
		Samples: buildSamples(6),
	})
	require.NoError(t, err)

	require.Len(t, bundle.Answers, 3)
	assert.Equal(t, 1, bundle.Answers[0].Order)
	assert.Equal(t, 2, bundle.Answers[1].Order)
	assert.Equal(t, 3, bundle.Answers[2].Order)
	assert.Equal(t, 70, bundle.Answers[0].Score)
}

func TestBuildDuplicateOrder(t *testing.T) {
	_, err := Build(BuildInput{
		Answers: answersWithOrders([]int{1, 1, 2}, []int{80, 70, 90}),
		Samples: buildSamples(6),
	})
	assert.ErrorIs(t, err, ErrInvalidOrder)
}

func TestBuildWrongQuestionCount(t *testing.T) {
	_, err := Build(BuildInput{
		Answers: answersWithOrders([]int{1, 2}, []int{80, 70}),
		Samples: buildSamples(6),
	})
	assert.ErrorIs(t, err, ErrInvalidOrder)
}

func TestBuildScoreOutOfRange(t *testing.T) {
	_, err := Build(BuildInput{
		Answers: answersWithOrders([]int{1, 2, 3}, []int{80, 101, 90}),
		Samples: buildSamples(6),
	})
	assert.ErrorIs(t, err, ErrInvalidScore)
}

func TestBuildMeanScore(t *testing.T) {
	bundle, err := Build(BuildInput{
		Answers: answersWithOrders([]int{1, 2, 3}, []int{74, 82, 68}),
		Samples: buildSamples(6),
	})
	require.NoError(t, err)
	assert.Equal(t, 74.7, bundle.MeanScore)
}

func TestBuildMeanScoreToleranceBoundary(t *testing.T) {
	declared := 74.8 // off by exactly 0.1, boundary inclusive
	bundle, err := Build(BuildInput{
		Answers:   answersWithOrders([]int{1, 2, 3}, []int{74, 82, 68}),
		MeanScore: &declared,
		Samples:   buildSamples(6),
	})
	require.NoError(t, err)
	assert.Equal(t, 74.7, bundle.MeanScore)
}

func TestBuildMeanScoreMismatch(t *testing.T) {
	declared := 75.0
	_, err := Build(BuildInput{
		Answers:   answersWithOrders([]int{1, 2, 3}, []int{74, 82, 68}),
		MeanScore: &declared,
		Samples:   buildSamples(6),
	})
	assert.ErrorIs(t, err, ErrMeanScoreMismatch)
}

func TestBuildPartialSamplesInProgress(t *testing.T) {
	bundle, err := Build(BuildInput{
		Answers: answersWithOrders([]int{1, 2, 3}, []int{74, 82, 68}),
		Samples: buildSamples(3),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, bundle.Status)
	assert.Equal(t, 3, bundle.Average.SampleCount)
}

func TestBuildFullSamplesCompleted(t *testing.T) {
	bundle, err := Build(BuildInput{
		Answers: answersWithOrders([]int{1, 2, 3}, []int{74, 82, 68}),
		Samples: buildSamples(6),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, bundle.Status)
	assert.Len(t, bundle.Samples, 6)
}

func TestBuildStrictRequiresSixSamples(t *testing.T) {
	_, err := Build(BuildInput{
		Answers: answersWithOrders([]int{1, 2, 3}, []int{74, 82, 68}),
		Samples: buildSamples(3),
		Strict:  true,
	})
	assert.ErrorIs(t, err, ErrSampleCount)
}

func TestBuildNoSamples(t *testing.T) {
	_, err := Build(BuildInput{
		Answers: answersWithOrders([]int{1, 2, 3}, []int{74, 82, 68}),
	})
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, StatusInProgress, StatusFor(0))
	assert.Equal(t, StatusInProgress, StatusFor(5))
	assert.Equal(t, StatusCompleted, StatusFor(6))
	assert.Equal(t, StatusCompleted, StatusFor(7))
}
