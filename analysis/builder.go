package analysis

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/mockview/backend/models"
)

const (
	// QuestionsPerSession is the fixed number of question/answer triples.
	QuestionsPerSession = 3
	// SamplesPerSession is the number of analyzer snapshots a completed
	// session carries (two per question).
	SamplesPerSession = 6

	StatusCompleted  = "completed"
	StatusInProgress = "in_progress"

	// meanScoreTolerance is the largest allowed absolute difference between
	// the client-declared mean score and the one computed server-side. This
	// guards against client/server drift, boundary inclusive.
	meanScoreTolerance = 0.1
)

// QuestionAnswerInput is one submitted question/answer/score triple.
type QuestionAnswerInput struct {
	Question string
	Answer   string
	Order    int
	Score    int
}

// BuildInput is the full submission payload handed to the builder, already
// decoded and shape-checked by the HTTP layer.
type BuildInput struct {
	Answers   []QuestionAnswerInput
	MeanScore *float64 // client-declared, optional
	// FinalScore is an externally supplied overall score for the session.
	// It is stored as-is on the emotion average, never derived.
	FinalScore *float64
	Samples    []SampleInput
	// Strict requires exactly SamplesPerSession samples. The relaxed mode
	// accepts any non-empty list and marks the session in_progress when
	// fewer arrived.
	Strict bool
}

// Bundle is the builder output: the three records of a session, assembled but
// not yet persisted and not yet stamped with a session_count.
type Bundle struct {
	Answers    []models.QuestionAnswer // sorted by Order
	MeanScore  float64
	FinalScore *float64
	Samples    []models.AnalysisSample
	Average    Average
	Status     string
	Date       time.Time
}

// Build validates a submission and assembles the session records. It is a
// pure construction step: persistence and session_count assignment happen in
// the repository, inside one transaction.
func Build(in BuildInput) (*Bundle, error) {
	answers, mean, err := buildAnswers(in.Answers, in.MeanScore)
	if err != nil {
		return nil, err
	}

	if in.Strict && len(in.Samples) != SamplesPerSession {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSampleCount, len(in.Samples), SamplesPerSession)
	}

	avg, err := Aggregate(in.Samples)
	if err != nil {
		return nil, err
	}

	samples := make([]models.AnalysisSample, 0, len(in.Samples))
	for _, s := range in.Samples {
		samples = append(samples, models.AnalysisSample{
			SampledAt:       s.Timestamp,
			AgeEstimate:     s.AgeEstimate,
			DominantEmotion: s.DominantEmotion,
			DominantGender:  s.DominantGender,
			FaceConfidence:  s.FaceConfidence,
			Emotions: models.EmotionScores{
				Angry:    s.Emotions["angry"],
				Disgust:  s.Emotions["disgust"],
				Fear:     s.Emotions["fear"],
				Happy:    s.Emotions["happy"],
				Neutral:  s.Emotions["neutral"],
				Sad:      s.Emotions["sad"],
				Surprise: s.Emotions["surprise"],
			},
			Region: s.Region,
		})
	}

	return &Bundle{
		Answers:    answers,
		MeanScore:  mean,
		FinalScore: in.FinalScore,
		Samples:    samples,
		Average:    avg,
		Status:     StatusFor(len(samples)),
		Date:       time.Now(),
	}, nil
}

// buildAnswers sorts and validates the question/answer triples and reconciles
// the client-declared mean score with the server-computed one.
func buildAnswers(in []QuestionAnswerInput, declared *float64) ([]models.QuestionAnswer, float64, error) {
	if len(in) != QuestionsPerSession {
		return nil, 0, fmt.Errorf("%w: got %d questions, want %d", ErrInvalidOrder, len(in), QuestionsPerSession)
	}

	sorted := make([]QuestionAnswerInput, len(in))
	copy(sorted, in)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	var total int
	answers := make([]models.QuestionAnswer, 0, len(sorted))
	for i, qa := range sorted {
		if qa.Order != i+1 {
			return nil, 0, fmt.Errorf("%w: got order %d at position %d", ErrInvalidOrder, qa.Order, i+1)
		}
		if qa.Score < 0 || qa.Score > 100 {
			return nil, 0, fmt.Errorf("%w: got %d for order %d", ErrInvalidScore, qa.Score, qa.Order)
		}
		total += qa.Score
		answers = append(answers, models.QuestionAnswer{
			Question: qa.Question,
			Answer:   qa.Answer,
			Order:    qa.Order,
			Score:    qa.Score,
		})
	}

	mean := round1(float64(total) / QuestionsPerSession)
	if declared != nil {
		// Small epsilon so the 0.1 boundary stays inclusive under float64.
		if math.Abs(*declared-mean) > meanScoreTolerance+1e-9 {
			return nil, 0, fmt.Errorf("%w: declared %.1f, computed %.1f", ErrMeanScoreMismatch, *declared, mean)
		}
	}
	return answers, mean, nil
}

// StatusFor derives the session status from how many samples it has.
func StatusFor(sampleCount int) string {
	if sampleCount >= SamplesPerSession {
		return StatusCompleted
	}
	return StatusInProgress
}
