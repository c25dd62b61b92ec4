package handlers

import (
	"github.com/gin-gonic/gin"

	"trading-challenges/internal/services"
)

type NotificationHandler struct {
	notifications *services.NotificationService
}

func NewNotificationHandler(notifications *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// VAPIDPublicKey GET /notifications/vapid-public-key
func (h *NotificationHandler) VAPIDPublicKey(c *gin.Context) {
	respondOK(c, gin.H{"public_key": h.notifications.VAPIDPublicKey()})
}

func (h *NotificationHandler) Create(c *gin.Context) {
	var req services.NotificationRequest
	if !bindJSON(c, &req) {
		return
	}
	n, err := h.notifications.Create(c.Request.Context(), viewer(c).UserID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, "Notification created", n)
}

func (h *NotificationHandler) List(c *gin.Context) {
	page, err := h.notifications.List(c.Request.Context(), services.NotificationFilter{
		Status:      c.Query("status"),
		Type:        c.Query("type"),
		PageRequest: pageQuery(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, page)
}

func (h *NotificationHandler) Get(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	n, err := h.notifications.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, n)
}

func (h *NotificationHandler) Update(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req services.NotificationRequest
	if !bindJSON(c, &req) {
		return
	}
	n, err := h.notifications.Update(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Notification updated", n)
}

func (h *NotificationHandler) Delete(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.notifications.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Notification deleted", nil)
}

// Send POST /notifications/:id/send
func (h *NotificationHandler) Send(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	n, err := h.notifications.Send(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Notification sent", n)
}
