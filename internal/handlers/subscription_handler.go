package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"trading-challenges/internal/models"
	"trading-challenges/internal/services"
)

type SubscriptionHandler struct {
	subscriptions *services.SubscriptionService
}

func NewSubscriptionHandler(subscriptions *services.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions}
}

// Mine GET /subscriptions/my?status=
func (h *SubscriptionHandler) Mine(c *gin.Context) {
	subs, err := h.subscriptions.MySubscriptions(c.Request.Context(), viewer(c).UserID, c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, subs)
}

// Get GET /subscriptions/:id
func (h *SubscriptionHandler) Get(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	sub, err := h.subscriptions.Get(c.Request.Context(), id, viewer(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, sub)
}

// Cancel PUT /subscriptions/:id/cancel
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	// the body is optional
	_ = c.ShouldBindJSON(&req)
	sub, err := h.subscriptions.Cancel(c.Request.Context(), id, viewer(c), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Subscription cancelled successfully", sub)
}

// List GET /subscriptions (admin)
func (h *SubscriptionHandler) List(c *gin.Context) {
	page, err := h.subscriptions.List(c.Request.Context(), services.SubscriptionFilter{
		Status:      c.Query("status"),
		PlanType:    c.Query("planType"),
		PageRequest: pageQuery(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, page)
}

// Stats GET /subscriptions/admin/stats
func (h *SubscriptionHandler) Stats(c *gin.Context) {
	stats, err := h.subscriptions.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, stats)
}

// PlanSubscribers GET /subscriptions/plan/:planType/:planId (admin)
func (h *SubscriptionHandler) PlanSubscribers(c *gin.Context) {
	t := models.PlanType(c.Param("planType"))
	if !t.Valid() {
		respondFail(c, http.StatusBadRequest, "Invalid plan type")
		return
	}
	planID, ok := uintParam(c, "planId")
	if !ok {
		return
	}
	page, err := h.subscriptions.PlanSubscribers(c.Request.Context(), t, planID, c.Query("status"), pageQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, page)
}

// RecordSession POST /subscriptions/:id/sessions (admin)
func (h *SubscriptionHandler) RecordSession(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req services.SessionRequest
	if !bindJSON(c, &req) {
		return
	}
	sub, err := h.subscriptions.RecordSession(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Session recorded", sub)
}
