package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID           string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	Password     string         `gorm:"size:255" json:"-"` // Hashed password (excluded from JSON)
	Name         string         `gorm:"size:255" json:"name"`
	Age          int            `json:"age"`
	Gender       string         `gorm:"size:10;check:gender IN ('male', 'female', 'other')" json:"gender"`
	Occupation   string         `gorm:"size:100" json:"occupation,omitempty"`
	SessionCount int            `gorm:"not null;default:0" json:"session_count"` // Bumped only inside the submission transaction
	KakaoID      *string        `gorm:"uniqueIndex" json:"-"`                    // Set for accounts created via Kakao login
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Interviews    []InterviewSession `gorm:"foreignKey:UserID" json:"interviews,omitempty"`
	RefreshTokens []RefreshToken     `gorm:"foreignKey:UserID" json:"refresh_tokens,omitempty"`
}

type RefreshToken struct {
	ID        string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID    string         `gorm:"type:uuid;not null;index" json:"user_id"`
	Token     string         `gorm:"uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time      `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
