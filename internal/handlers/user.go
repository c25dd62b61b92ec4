package handlers

import (
	"github.com/gin-gonic/gin"

	"trading-challenges/internal/models"
	"trading-challenges/internal/services"
)

// UserHandler handles user-related endpoints
type UserHandler struct {
	userService  *services.UserService
	statsService *services.StatsService
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(userService *services.UserService, statsService *services.StatsService) *UserHandler {
	return &UserHandler{userService: userService, statsService: statsService}
}

// GetProfile returns the current user's profile
func (h *UserHandler) GetProfile(c *gin.Context) {
	user, err := h.userService.GetUserByID(c.Request.Context(), viewer(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, user)
}

// UpdateProfile PUT /users/me
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req services.ProfileUpdate
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.userService.UpdateProfile(c.Request.Context(), viewer(c).UserID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Profile updated", user)
}

// UpdateMT5 PUT /users/me/mt5
func (h *UserHandler) UpdateMT5(c *gin.Context) {
	var req struct {
		AccountID string `json:"account_id"`
		Password  string `json:"password"`
		Server    string `json:"server"`
	}
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.userService.UpdateMT5Credentials(c.Request.Context(), viewer(c).UserID, models.MT5Credentials{
		AccountID: req.AccountID,
		Password:  req.Password,
		Server:    req.Server,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "MT5 credentials updated", user)
}

// AddPushSubscription POST /users/me/push-subscriptions
func (h *UserHandler) AddPushSubscription(c *gin.Context) {
	var req services.PushSubscriptionRequest
	if !bindJSON(c, &req) {
		return
	}
	sub, err := h.userService.AddPushSubscription(c.Request.Context(), viewer(c).UserID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, "Push subscription saved", sub)
}

// RemovePushSubscription DELETE /users/me/push-subscriptions
func (h *UserHandler) RemovePushSubscription(c *gin.Context) {
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if !bindJSON(c, &req) {
		return
	}
	if err := h.userService.RemovePushSubscription(c.Request.Context(), viewer(c).UserID, req.Endpoint); err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Push subscription removed", nil)
}

// ListUsers GET /users (admin)
func (h *UserHandler) ListUsers(c *gin.Context) {
	page, err := h.userService.ListUsers(c.Request.Context(), services.UserFilter{
		Search:      c.Query("search"),
		Role:        c.Query("role"),
		PageRequest: pageQuery(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, page)
}

// GetUser GET /users/:id (admin)
func (h *UserHandler) GetUser(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	user, err := h.userService.GetUserByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, user)
}

// UpdateUser PUT /users/:id (admin)
func (h *UserHandler) UpdateUser(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req services.AdminUserUpdate
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.userService.AdminUpdateUser(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "User updated", user)
}

// DeleteUser DELETE /users/:id (admin)
func (h *UserHandler) DeleteUser(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.userService.DeleteUser(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "User deleted", nil)
}

// RecomputeStats POST /users/admin/recompute-stats
func (h *UserHandler) RecomputeStats(c *gin.Context) {
	res, err := h.statsService.RecomputeAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Trading stats recomputed", res)
}
