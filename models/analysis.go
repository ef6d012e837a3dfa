package models

import (
	"time"
)

// EmotionScores is the fixed 7-way emotion distribution produced by the
// upstream facial analyzer. Embedded into the sample, average and result
// tables with an emotion_ column prefix.
type EmotionScores struct {
	Angry    float64 `json:"angry"`
	Disgust  float64 `json:"disgust"`
	Fear     float64 `json:"fear"`
	Happy    float64 `json:"happy"`
	Neutral  float64 `json:"neutral"`
	Sad      float64 `json:"sad"`
	Surprise float64 `json:"surprise"`
}

// FaceRegion is the bounding box the analyzer detected the face in.
type FaceRegion struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// AnalysisSample is one timestamped analyzer snapshot taken during a session.
// Two are expected per question, six per session; fewer leave the session
// in_progress.
type AnalysisSample struct {
	ID              string        `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID          string        `gorm:"type:uuid;not null;index:idx_samples_user_count" json:"user_id"`
	SessionCount    int           `gorm:"not null;index:idx_samples_user_count" json:"session_count"`
	SampledAt       time.Time     `gorm:"not null" json:"timestamp"`
	AgeEstimate     int           `json:"age"`
	DominantEmotion string        `gorm:"size:20" json:"dominant_emotion"`
	DominantGender  string        `gorm:"size:10" json:"dominant_gender"`
	Emotions        EmotionScores `gorm:"embedded;embeddedPrefix:emotion_" json:"emotion"`
	FaceConfidence  float64       `gorm:"not null" json:"face_confidence"` // 0..1
	Region          FaceRegion    `gorm:"embedded;embeddedPrefix:region_" json:"region"`
	CreatedAt       time.Time     `json:"created_at"`

	// Relationships
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// EmotionAverage is the per-session aggregate of all samples, keyed by
// (user, session_count) and upserted: a partial average written while the
// session is in_progress is replaced when more samples arrive or the session
// is submitted.
type EmotionAverage struct {
	ID             string        `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID         string        `gorm:"type:uuid;not null;uniqueIndex:idx_averages_user_count" json:"user_id"`
	SessionCount   int           `gorm:"not null;uniqueIndex:idx_averages_user_count" json:"session_count"`
	Date           time.Time     `gorm:"not null" json:"date"`
	FaceConfidence float64       `json:"face_confidence"` // Rounded to 3 decimals
	Emotions       EmotionScores `gorm:"embedded;embeddedPrefix:emotion_" json:"emotion"`
	SampleCount    int           `json:"sample_count"`
	FinalScore     *float64      `json:"final_score,omitempty"` // Externally supplied, optional
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`

	// Relationships
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
