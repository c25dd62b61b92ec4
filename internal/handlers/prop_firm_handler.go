package handlers

import (
	"github.com/gin-gonic/gin"

	"trading-challenges/internal/models"
	"trading-challenges/internal/services"
)

type PropFirmHandler struct {
	propFirm *services.PropFirmService
}

func NewPropFirmHandler(propFirm *services.PropFirmService) *PropFirmHandler {
	return &PropFirmHandler{propFirm: propFirm}
}

// ListPackages GET /prop-firm-packages; admins may pass all=true.
func (h *PropFirmHandler) ListPackages(c *gin.Context) {
	activeOnly := !(viewer(c).IsAdmin && c.Query("all") == "true")
	pkgs, err := h.propFirm.ListPackages(c.Request.Context(), activeOnly)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, pkgs)
}

func (h *PropFirmHandler) GetPackage(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	pkg, err := h.propFirm.GetPackage(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, pkg)
}

func (h *PropFirmHandler) CreatePackage(c *gin.Context) {
	var req services.PackageRequest
	if !bindJSON(c, &req) {
		return
	}
	pkg, err := h.propFirm.CreatePackage(c.Request.Context(), viewer(c).UserID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, "Package created successfully", pkg)
}

func (h *PropFirmHandler) UpdatePackage(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req services.PackageUpdate
	if !bindJSON(c, &req) {
		return
	}
	pkg, err := h.propFirm.UpdatePackage(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Package updated successfully", pkg)
}

func (h *PropFirmHandler) DeletePackage(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.propFirm.DeletePackage(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Package deleted successfully", nil)
}

func (h *PropFirmHandler) PackageStats(c *gin.Context) {
	stats, err := h.propFirm.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, stats)
}

// CreateService POST /prop-firm-services
func (h *PropFirmHandler) CreateService(c *gin.Context) {
	var req services.ServiceRequest
	if !bindJSON(c, &req) {
		return
	}
	svc, err := h.propFirm.CreateService(c.Request.Context(), viewer(c).UserID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, "Service created, awaiting payment", svc)
}

func (h *PropFirmHandler) MyServices(c *gin.Context) {
	svcs, err := h.propFirm.MyServices(c.Request.Context(), viewer(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, svcs)
}

func (h *PropFirmHandler) GetService(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	svc, err := h.propFirm.GetService(c.Request.Context(), id, viewer(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, svc)
}

func (h *PropFirmHandler) ListServices(c *gin.Context) {
	page, err := h.propFirm.ListServices(c.Request.Context(), services.ServiceFilter{
		Status:      c.Query("status"),
		PackageID:   uint(intQuery(c, "packageId", 0)),
		PageRequest: pageQuery(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, page)
}

// UpdateServiceStatus PUT /prop-firm-services/:id/status (admin)
func (h *PropFirmHandler) UpdateServiceStatus(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Status models.ServiceStatus `json:"status"`
		Reason string               `json:"reason"`
	}
	if !bindJSON(c, &req) {
		return
	}
	svc, err := h.propFirm.UpdateServiceStatus(c.Request.Context(), id, req.Status, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Service status updated", svc)
}

// AddNote POST /prop-firm-services/:id/notes (admin)
func (h *PropFirmHandler) AddNote(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if !bindJSON(c, &req) {
		return
	}
	svc, err := h.propFirm.AddNote(c.Request.Context(), id, viewer(c), req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, "Note added", svc)
}

// Chat GET /prop-firm-services/:id/chat
func (h *PropFirmHandler) Chat(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	chat, err := h.propFirm.Chat(c.Request.Context(), id, viewer(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, chat)
}

// SendChatMessage POST /prop-firm-services/:id/chat
func (h *PropFirmHandler) SendChatMessage(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}
	line, err := h.propFirm.SendChatMessage(c.Request.Context(), id, viewer(c), req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, "Message sent", line)
}
