package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"trading-challenges/internal/auth"
	"trading-challenges/internal/models"
	"trading-challenges/internal/services"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *services.AuthService
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func issueToken(c *gin.Context, user *models.User, status int, message string) {
	token, err := auth.GenerateToken(user.ID, string(user.Role))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(status, gin.H{
		"success": true,
		"message": message,
		"data":    gin.H{"token": token, "user": user},
	})
}

// Register creates an account and returns a token
// POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	issueToken(c, user, http.StatusCreated, "User registered successfully")
}

// Login checks credentials and returns a token
// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	issueToken(c, user, http.StatusOK, "Login successful")
}

// Logout handles user logout (stateless JWT, client-side only)
// POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	respondMessage(c, "Successfully logged out", nil)
}

// GetMe returns the currently authenticated user's profile
// GET /auth/me
func (h *AuthHandler) GetMe(c *gin.Context) {
	user, err := h.authService.Me(c.Request.Context(), viewer(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, user)
}
