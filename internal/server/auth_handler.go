package server

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/job-harvester/internal/config"
)

// defaultAdminUser is the login name when ADMIN_USERNAME is unset.
const defaultAdminUser = "admin"

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the issued token.
type LoginResponse struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// AuthHandler handles authentication-related HTTP requests. There is a
// single administrative principal, configured through ADMIN_USERNAME and
// ADMIN_PASSWORD_HASH (a bcrypt hash).
type AuthHandler struct {
	passwords  *config.PasswordConfig
	jwtService *JWTService
	validator  *validator.Validate
}

// NewAuthHandler creates a new AuthHandler with the given dependencies.
func NewAuthHandler(passwords *config.PasswordConfig, jwtService *JWTService) *AuthHandler {
	return &AuthHandler{
		passwords:  passwords,
		jwtService: jwtService,
		validator:  validator.New(),
	}
}

// Login handles admin login requests.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.validator.Struct(req); err != nil {
		http.Error(w, "username and password are required", http.StatusBadRequest)
		return
	}

	adminUser := os.Getenv("ADMIN_USERNAME")
	if adminUser == "" {
		adminUser = defaultAdminUser
	}
	adminHash := os.Getenv("ADMIN_PASSWORD_HASH")
	if adminHash == "" {
		http.Error(w, "authentication not configured", http.StatusServiceUnavailable)
		return
	}

	if req.Username != adminUser || !h.passwords.VerifyPassword(req.Password, adminHash) {
		err := &ErrInvalidCredentials{}
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}

	token, err := h.jwtService.GenerateToken(req.Username)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	response := LoginResponse{Username: req.Username, Token: token}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		// Log error but response already sent
		return
	}
}
