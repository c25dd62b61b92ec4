package handlers

import (
	"github.com/gin-gonic/gin"

	"trading-challenges/internal/services"
)

type SupportHandler struct {
	support *services.SupportService
}

func NewSupportHandler(support *services.SupportService) *SupportHandler {
	return &SupportHandler{support: support}
}

func (h *SupportHandler) CreateTicket(c *gin.Context) {
	var req services.TicketRequest
	if !bindJSON(c, &req) {
		return
	}
	ticket, err := h.support.CreateTicket(c.Request.Context(), viewer(c).UserID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, "Ticket created", ticket)
}

func (h *SupportHandler) MyTickets(c *gin.Context) {
	tickets, err := h.support.MyTickets(c.Request.Context(), viewer(c).UserID, c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, tickets)
}

func (h *SupportHandler) GetTicket(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	ticket, err := h.support.GetTicket(c.Request.Context(), id, viewer(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, ticket)
}

func (h *SupportHandler) AddMessage(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	if !bindJSON(c, &req) {
		return
	}
	msg, err := h.support.AddMessage(c.Request.Context(), id, viewer(c), req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, "Message added", msg)
}

// ListTickets GET /support/tickets (admin)
func (h *SupportHandler) ListTickets(c *gin.Context) {
	page, err := h.support.ListTickets(c.Request.Context(), services.TicketFilter{
		Status:      c.Query("status"),
		Priority:    c.Query("priority"),
		Category:    c.Query("category"),
		Search:      c.Query("search"),
		PageRequest: pageQuery(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, page)
}

func (h *SupportHandler) UpdateTicket(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req services.TicketUpdate
	if !bindJSON(c, &req) {
		return
	}
	ticket, err := h.support.UpdateTicket(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Ticket updated", ticket)
}

func (h *SupportHandler) DeleteTicket(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.support.DeleteTicket(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Ticket deleted", nil)
}

func (h *SupportHandler) Stats(c *gin.Context) {
	stats, err := h.support.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, stats)
}
