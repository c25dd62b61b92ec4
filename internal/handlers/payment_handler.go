package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"trading-challenges/internal/logger"
	"trading-challenges/internal/services"
)

type PaymentHandler struct {
	payments *services.PaymentService
}

func NewPaymentHandler(payments *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

func paymentID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondFail(c, http.StatusBadRequest, "Invalid payment id")
		return uuid.Nil, false
	}
	return id, true
}

// CreateIntent POST /payments/create-intent
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	var req services.CreateIntentRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.payments.CreateIntent(c.Request.Context(), viewer(c).UserID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, "Payment intent created", res)
}

// Confirm POST /payments/confirm
func (h *PaymentHandler) Confirm(c *gin.Context) {
	var req struct {
		PaymentIntentID string `json:"payment_intent_id"`
	}
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.payments.Confirm(c.Request.Context(), req.PaymentIntentID, viewer(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, res.Message, res)
}

// Get GET /payments/:id
func (h *PaymentHandler) Get(c *gin.Context) {
	id, ok := paymentID(c)
	if !ok {
		return
	}
	p, err := h.payments.Get(c.Request.Context(), id, viewer(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, p)
}

// Mine GET /payments/my-payments
func (h *PaymentHandler) Mine(c *gin.Context) {
	page, err := h.payments.List(c.Request.Context(), services.PaymentFilter{
		UserID:      viewer(c).UserID,
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

// List GET /payments (admin)
func (h *PaymentHandler) List(c *gin.Context) {
	page, err := h.payments.List(c.Request.Context(), services.PaymentFilter{
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

// Refund POST /payments/:id/refund (admin)
func (h *PaymentHandler) Refund(c *gin.Context) {
	id, ok := paymentID(c)
	if !ok {
		return
	}
	var req struct {
		Amount *decimal.Decimal `json:"amount"`
	}
	_ = c.ShouldBindJSON(&req)
	p, err := h.payments.Refund(c.Request.Context(), id, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Payment refunded", p)
}

// Webhook POST /payments/webhook. Completion runs through Confirm, so
// events are only acknowledged.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	body, _ := io.ReadAll(io.LimitReader(c.Request.Body, 1<<16))
	logger.Component("payments").WithField("bytes", len(body)).Debug("webhook received")
	c.JSON(http.StatusOK, gin.H{"received": true})
}
