package handler

import (
	"net/http"
	"time"

	"github.com/forgo/hiretrack/api/internal/middleware"
	"github.com/forgo/hiretrack/api/internal/model"
	"github.com/forgo/hiretrack/api/internal/service"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// UserResponse represents a user in API responses
type UserResponse struct {
	ID        string         `json:"id"`
	Email     string         `json:"email"`
	FullName  string         `json:"full_name"`
	Role      model.UserRole `json:"role"`
	CompanyID *string        `json:"company_id,omitempty"`
	CreatedOn string         `json:"created_on"`
}

// Register handles POST /v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, model.NewBadRequestError("invalid request body"))
		return
	}

	result, err := h.authService.Register(r.Context(), req)
	if err != nil {
		WriteError(w, MapServiceErrorWithContext(err, "register"))
		return
	}

	WriteData(w, http.StatusCreated, authResponse(result), map[string]string{
		"self": "/v1/auth/me",
	})
}

// Login handles POST /v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, model.NewBadRequestError("invalid request body"))
		return
	}

	result, err := h.authService.Login(r.Context(), req)
	if err != nil {
		WriteError(w, MapServiceErrorWithContext(err, "login"))
		return
	}

	WriteData(w, http.StatusOK, authResponse(result), map[string]string{
		"self": "/v1/auth/me",
	})
}

// Me handles GET /v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		WriteError(w, model.NewUnauthorizedError("authentication required"))
		return
	}

	user, err := h.authService.GetUserByID(r.Context(), userID)
	if err != nil {
		WriteError(w, MapServiceErrorWithContext(err, "get current user"))
		return
	}

	WriteData(w, http.StatusOK, toUserResponse(user), nil)
}

func authResponse(result *service.AuthResult) any {
	return struct {
		User  UserResponse         `json:"user"`
		Token *service.AccessToken `json:"token"`
	}{
		User:  toUserResponse(result.User),
		Token: result.Token,
	}
}

func toUserResponse(user *model.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		FullName:  user.FullName,
		Role:      user.Role,
		CompanyID: user.CompanyID,
		CreatedOn: user.CreatedOn.Format(time.RFC3339),
	}
}
