package models

import (
	"time"
)

// QuestionAnswer is one of the three question/answer/score triples of a
// session. It is embedded as JSON inside InterviewSession and SessionResult
// rather than stored in its own table.
type QuestionAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Order    int    `json:"order"` // 1..3, unique within a session
	Score    int    `json:"score"` // 0..100
}

// InterviewSession represents one submitted interview attempt. Immutable
// after creation.
type InterviewSession struct {
	ID           string           `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID       string           `gorm:"type:uuid;not null;uniqueIndex:idx_interviews_user_count" json:"user_id"`
	SessionCount int              `gorm:"not null;uniqueIndex:idx_interviews_user_count" json:"session_count"`
	Answers      []QuestionAnswer `gorm:"serializer:json;type:jsonb;not null" json:"questions_answers"`
	MeanScore    float64          `gorm:"type:decimal(4,1);not null" json:"mean_score"` // Average of the three scores, one decimal
	CreatedAt    time.Time        `json:"created_at"`

	// Relationships
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// SessionResult is the denormalized, read-optimized record written alongside
// the interview: the three answers plus the emotion average snapshot. Created
// once per session, never mutated.
type SessionResult struct {
	ID             string           `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID         string           `gorm:"type:uuid;not null;uniqueIndex:idx_results_user_count" json:"user_id"`
	SessionCount   int              `gorm:"not null;uniqueIndex:idx_results_user_count" json:"session_count"`
	Date           time.Time        `gorm:"not null" json:"date"`
	Answers        []QuestionAnswer `gorm:"serializer:json;type:jsonb;not null" json:"questions_answers"`
	MeanScore      float64          `gorm:"type:decimal(4,1);not null" json:"mean_score"`
	FaceConfidence float64          `json:"face_confidence"`
	Emotions       EmotionScores    `gorm:"embedded;embeddedPrefix:emotion_" json:"emotion"`
	SampleCount    int              `json:"sample_count"`
	CreatedAt      time.Time        `json:"created_at"`

	// Relationships
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
