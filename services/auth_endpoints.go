package services

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mockview/backend/models"
)

type AuthEndpoints struct {
	authService *AuthService
	kakao       *KakaoProvider
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type SignupRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8"`
	Name       string `json:"name" validate:"required"`
	Age        int    `json:"age" validate:"gte=0,lte=120"`
	Gender     string `json:"gender" validate:"required,oneof=male female other"`
	Occupation string `json:"occupation"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func NewAuthEndpoints(authService *AuthService, kakao *KakaoProvider) *AuthEndpoints {
	return &AuthEndpoints{
		authService: authService,
		kakao:       kakao,
	}
}

func (e *AuthEndpoints) RegisterPublicRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", e.LoginHandler)
		r.Post("/signup", e.SignupHandler)
		r.Post("/refresh", e.RefreshHandler)
		if e.kakao != nil {
			r.Get("/kakao/login", e.KakaoLoginHandler)
			r.Get("/kakao/callback", e.KakaoCallbackHandler)
		}
	})
}

func (e *AuthEndpoints) RegisterProtectedRoutes(r chi.Router) {
	r.Post("/auth/logout", e.LogoutHandler)
	r.Get("/auth/me", e.MeHandler)
}

func (e *AuthEndpoints) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	authResponse, err := e.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		slog.Error("Login failed", "error", err, "email", req.Email)
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	writeAuthResponse(w, http.StatusOK, authResponse, "Login successful")
}

func (e *AuthEndpoints) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	authResponse, err := e.authService.Signup(r.Context(), req.Email, req.Password, SignupProfile{
		Name:       req.Name,
		Age:        req.Age,
		Gender:     req.Gender,
		Occupation: req.Occupation,
	})
	if err != nil {
		slog.Error("Signup failed", "error", err, "email", req.Email)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeAuthResponse(w, http.StatusCreated, authResponse, "Signup successful")
}

func (e *AuthEndpoints) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	authResponse, err := e.authService.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		slog.Error("Token refresh failed", "error", err)
		http.Error(w, "Invalid refresh token", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token": authResponse.AccessToken,
	})
}

// KakaoLoginHandler starts the Kakao authorization flow: it drops the state
// into a short-lived cookie and redirects to Kakao.
func (e *AuthEndpoints) KakaoLoginHandler(w http.ResponseWriter, r *http.Request) {
	state := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(10 * time.Minute),
	})
	http.Redirect(w, r, e.kakao.AuthURL(state), http.StatusTemporaryRedirect)
}

func (e *AuthEndpoints) KakaoCallbackHandler(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie("oauth_state")
	if err != nil || stateCookie.Value == "" || stateCookie.Value != r.URL.Query().Get("state") {
		http.Error(w, "Invalid oauth state", http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		return
	}

	kakaoUser, err := e.kakao.Exchange(r.Context(), code)
	if err != nil {
		slog.Error("Kakao exchange failed", "error", err)
		http.Error(w, "Kakao login failed", http.StatusUnauthorized)
		return
	}

	authResponse, err := e.authService.LoginWithKakao(r.Context(), kakaoUser)
	if err != nil {
		slog.Error("Kakao login failed", "error", err)
		http.Error(w, "Kakao login failed", http.StatusUnauthorized)
		return
	}

	writeAuthResponse(w, http.StatusOK, authResponse, "Login successful")
}

func (e *AuthEndpoints) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	if err := e.authService.Logout(r.Context(), user.ID); err != nil {
		slog.Error("Logout failed", "error", err, "user_id", user.ID)
		http.Error(w, "Logout failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Logout successful",
	})
}

func (e *AuthEndpoints) MeHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"user": userPayload(user),
	})
}

func writeAuthResponse(w http.ResponseWriter, status int, authResponse *AuthResponse, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"user":          userPayload(authResponse.User),
		"access_token":  authResponse.AccessToken,
		"refresh_token": authResponse.RefreshToken,
		"message":       message,
	})
}

// userPayload strips the user down to the fields clients may see.
func userPayload(user *models.User) map[string]interface{} {
	return map[string]interface{}{
		"id":            user.ID,
		"email":         user.Email,
		"name":          user.Name,
		"age":           user.Age,
		"gender":        user.Gender,
		"occupation":    user.Occupation,
		"session_count": user.SessionCount,
	}
}
