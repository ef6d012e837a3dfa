package analysis

import (
	"fmt"
	"math"
	"time"

	"github.com/mockview/backend/models"
)

// EmotionKeys are the seven emotion labels every analyzer sample must carry.
var EmotionKeys = []string{"angry", "disgust", "fear", "happy", "neutral", "sad", "surprise"}

// SampleInput is one analyzer snapshot as submitted by the client. Emotions is
// kept as a map so missing keys can be detected instead of silently defaulting
// to zero.
type SampleInput struct {
	Timestamp       time.Time
	AgeEstimate     int
	DominantEmotion string
	DominantGender  string
	FaceConfidence  float64
	Emotions        map[string]float64
	Region          models.FaceRegion
}

// Average is the per-session aggregate of a list of samples.
type Average struct {
	FaceConfidence float64
	Emotions       models.EmotionScores
	SampleCount    int
}

// Aggregate reduces a non-empty list of samples to the session average:
// arithmetic mean of the face confidences and of each of the seven emotion
// scores, all rounded half-up to 3 decimals.
func Aggregate(samples []SampleInput) (Average, error) {
	if len(samples) == 0 {
		return Average{}, ErrEmptyInput
	}

	var confidence float64
	sums := make(map[string]float64, len(EmotionKeys))
	for i, s := range samples {
		for _, key := range EmotionKeys {
			v, ok := s.Emotions[key]
			if !ok {
				return Average{}, fmt.Errorf("%w: sample %d has no %q", ErrMalformedSample, i, key)
			}
			sums[key] += v
		}
		confidence += s.FaceConfidence
	}

	n := float64(len(samples))
	avg := Average{
		FaceConfidence: round3(confidence / n),
		SampleCount:    len(samples),
		Emotions: models.EmotionScores{
			Angry:    round3(sums["angry"] / n),
			Disgust:  round3(sums["disgust"] / n),
			Fear:     round3(sums["fear"] / n),
			Happy:    round3(sums["happy"] / n),
			Neutral:  round3(sums["neutral"] / n),
			Sad:      round3(sums["sad"] / n),
			Surprise: round3(sums["surprise"] / n),
		},
	}
	return avg, nil
}

// round3 rounds half-up to 3 decimal places.
func round3(v float64) float64 {
	return math.Floor(v*1000+0.5) / 1000
}

// round1 rounds half-up to 1 decimal place.
func round1(v float64) float64 {
	return math.Floor(v*10+0.5) / 10
}
