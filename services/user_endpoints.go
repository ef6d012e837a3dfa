package services

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mockview/backend/models"
	"github.com/mockview/backend/repository"
)

type UserEndpoints struct {
	repo *repository.GORMRepository
}

type UpdateProfileRequest struct {
	Name       *string `json:"name,omitempty"`
	Age        *int    `json:"age,omitempty" validate:"omitempty,gte=0,lte=120"`
	Gender     *string `json:"gender,omitempty" validate:"omitempty,oneof=male female other"`
	Occupation *string `json:"occupation,omitempty"`
}

func NewUserEndpoints(repo *repository.GORMRepository) *UserEndpoints {
	return &UserEndpoints{repo: repo}
}

func (e *UserEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/users/me", func(r chi.Router) {
		r.Put("/", e.UpdateProfileHandler)
		r.Delete("/", e.DeleteAccountHandler)
	})
}

func (e *UserEndpoints) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Age != nil {
		user.Age = *req.Age
	}
	if req.Gender != nil {
		user.Gender = *req.Gender
	}
	if req.Occupation != nil {
		user.Occupation = *req.Occupation
	}

	if err := e.repo.UpdateUser(r.Context(), user); err != nil {
		http.Error(w, "Failed to update profile", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"user":    userPayload(user),
		"message": "Profile updated",
	})
}

// DeleteAccountHandler closes the account: the user row and every
// session-scoped record the user owns go away together.
func (e *UserEndpoints) DeleteAccountHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	if err := e.repo.DeleteUser(r.Context(), user.ID); err != nil {
		http.Error(w, "Failed to delete account", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Account deleted",
	})

	slog.Info("Account deleted", "user_id", user.ID)
}
