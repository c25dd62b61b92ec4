package handlers

import (
	"github.com/gin-gonic/gin"

	"trading-challenges/internal/services"
)

// ContentHandler serves site branding, the footer and the video feed.
type ContentHandler struct {
	content *services.ContentService
}

func NewContentHandler(content *services.ContentService) *ContentHandler {
	return &ContentHandler{content: content}
}

func (h *ContentHandler) GetSettings(c *gin.Context) {
	settings, err := h.content.SiteSettings(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, settings)
}

func (h *ContentHandler) UpdateSettings(c *gin.Context) {
	var req services.SiteSettingsUpdate
	if !bindJSON(c, &req) {
		return
	}
	settings, err := h.content.UpdateSiteSettings(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Settings updated successfully", settings)
}

// ClearImage DELETE /settings/:image where image is logo, favicon or mentor-photo
func (h *ContentHandler) ClearImage(c *gin.Context) {
	settings, err := h.content.ClearSiteImage(c.Request.Context(), c.Param("image"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Image deleted successfully", settings)
}

func (h *ContentHandler) PublicFooter(c *gin.Context) {
	footer, err := h.content.PublicFooter(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, footer)
}

func (h *ContentHandler) AdminFooter(c *gin.Context) {
	footer, err := h.content.AdminFooter(c.Request.Context(), viewer(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, footer)
}

func (h *ContentHandler) CreateFooter(c *gin.Context) {
	var req services.FooterRequest
	if !bindJSON(c, &req) {
		return
	}
	footer, err := h.content.CreateFooter(c.Request.Context(), viewer(c).UserID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, "Footer settings created", footer)
}

func (h *ContentHandler) UpdateFooter(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req services.FooterRequest
	if !bindJSON(c, &req) {
		return
	}
	footer, err := h.content.UpdateFooter(c.Request.Context(), id, viewer(c).UserID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, footer)
}

func (h *ContentHandler) DeleteFooter(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.content.DeleteFooter(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Footer settings deleted", nil)
}

func (h *ContentHandler) ToggleFooter(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	footer, err := h.content.ToggleFooter(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, footer)
}

// Videos lists the feed; activeOnly is false for the admin listing.
func (h *ContentHandler) Videos(activeOnly bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		videos, err := h.content.Videos(c.Request.Context(), activeOnly)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, videos)
	}
}

func (h *ContentHandler) CreateVideo(c *gin.Context) {
	var req services.VideoRequest
	if !bindJSON(c, &req) {
		return
	}
	video, err := h.content.CreateVideo(c.Request.Context(), viewer(c).UserID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, "Video added", video)
}

func (h *ContentHandler) UpdateVideo(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req services.VideoUpdate
	if !bindJSON(c, &req) {
		return
	}
	video, err := h.content.UpdateVideo(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, video)
}

func (h *ContentHandler) DeleteVideo(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.content.DeleteVideo(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Video deleted successfully", nil)
}

func (h *ContentHandler) ToggleVideo(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	video, err := h.content.ToggleVideo(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, video)
}
