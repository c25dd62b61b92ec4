package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"trading-challenges/internal/models"
	"trading-challenges/internal/services"
)

type ChatboxHandler struct {
	chatboxes *services.ChatboxService
}

func NewChatboxHandler(chatboxes *services.ChatboxService) *ChatboxHandler {
	return &ChatboxHandler{chatboxes: chatboxes}
}

// List GET /chatboxes (admin)
func (h *ChatboxHandler) List(c *gin.Context) {
	boxes, err := h.chatboxes.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, boxes)
}

// GetByPlan GET /chatboxes/plan/:planType/:planId
func (h *ChatboxHandler) GetByPlan(c *gin.Context) {
	t := models.PlanType(c.Param("planType"))
	if !t.Valid() {
		respondFail(c, http.StatusBadRequest, "Invalid plan type")
		return
	}
	planID, ok := uintParam(c, "planId")
	if !ok {
		return
	}
	box, err := h.chatboxes.GetByPlan(c.Request.Context(), t, planID, viewer(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, box)
}

// Messages GET /chatboxes/:id/messages?page&limit
func (h *ChatboxHandler) Messages(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	page, err := h.chatboxes.Messages(c.Request.Context(), id, viewer(c), pageQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, page)
}

// PostMessage POST /chatboxes/:id/messages
func (h *ChatboxHandler) PostMessage(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req services.PostMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	msg, err := h.chatboxes.PostMessage(c.Request.Context(), id, viewer(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, "Message sent", msg)
}

// Pin PUT /chatboxes/:id/messages/:messageId/pin (admin)
func (h *ChatboxHandler) Pin(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	messageID, ok := uintParam(c, "messageId")
	if !ok {
		return
	}
	var req struct {
		Pinned *bool `json:"pinned"`
	}
	_ = c.ShouldBindJSON(&req)
	pinned := true
	if req.Pinned != nil {
		pinned = *req.Pinned
	}
	msg, err := h.chatboxes.SetPinned(c.Request.Context(), id, messageID, pinned)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, msg)
}

// DeleteMessage DELETE /chatboxes/:id/messages/:messageId
func (h *ChatboxHandler) DeleteMessage(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	messageID, ok := uintParam(c, "messageId")
	if !ok {
		return
	}
	if err := h.chatboxes.DeleteMessage(c.Request.Context(), id, messageID, viewer(c)); err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Message deleted", nil)
}

// UpdateSettings PUT /chatboxes/:id/settings (admin)
func (h *ChatboxHandler) UpdateSettings(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req services.ChatboxSettingsUpdate
	if !bindJSON(c, &req) {
		return
	}
	box, err := h.chatboxes.UpdateSettings(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Chatbox settings updated", box)
}

// Subscribers GET /chatboxes/:id/subscribers (admin)
func (h *ChatboxHandler) Subscribers(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	subs, err := h.chatboxes.Subscribers(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, subs)
}
