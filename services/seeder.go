package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mockview/backend/models"
	"github.com/mockview/backend/repository"
	"golang.org/x/crypto/bcrypt"
)

// DatabaseSeeder handles database seeding operations
type DatabaseSeeder struct {
	repo *repository.GORMRepository
}

// NewDatabaseSeeder creates a new database seeder
func NewDatabaseSeeder(repo *repository.GORMRepository) *DatabaseSeeder {
	return &DatabaseSeeder{repo: repo}
}

// SeedDatabase seeds the database with demo accounts (idempotent)
func (s *DatabaseSeeder) SeedDatabase() error {
	ctx := context.Background()

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	users := []models.User{
		{
			Email:      "test@example.com",
			Password:   string(hashedPassword),
			Name:       "Test User",
			Age:        27,
			Gender:     "other",
			Occupation: "software engineer",
		},
		{
			Email:      "demo@example.com",
			Password:   string(hashedPassword),
			Name:       "Demo User",
			Age:        31,
			Gender:     "female",
			Occupation: "designer",
		},
	}

	for _, user := range users {
		if err := s.seedUser(ctx, user); err != nil {
			slog.Error("Failed to seed user", "email", user.Email, "error", err)
		}
	}

	slog.Info("Database seeding completed")
	return nil
}

func (s *DatabaseSeeder) seedUser(ctx context.Context, user models.User) error {
	existing, err := s.repo.GetUserByEmail(ctx, user.Email)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	return s.repo.CreateUser(ctx, &user)
}
