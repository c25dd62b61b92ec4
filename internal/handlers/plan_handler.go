package handlers

import (
	"github.com/gin-gonic/gin"

	"trading-challenges/internal/models"
	"trading-challenges/internal/services"
)

// PlanHandler serves both plan kinds; each route is built for one PlanType.
type PlanHandler struct {
	plans *services.PlanService
}

func NewPlanHandler(plans *services.PlanService) *PlanHandler {
	return &PlanHandler{plans: plans}
}

func (h *PlanHandler) List(t models.PlanType, activeOnly bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			plans interface{}
			err   error
		)
		if t == models.PlanTypeMentorship {
			plans, err = h.plans.ListMentorshipPlans(c.Request.Context(), activeOnly)
		} else {
			plans, err = h.plans.ListSignalPlans(c.Request.Context(), activeOnly)
		}
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, plans)
	}
}

func (h *PlanHandler) Get(t models.PlanType) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uintParam(c, "id")
		if !ok {
			return
		}
		var (
			plan interface{}
			err  error
		)
		if t == models.PlanTypeMentorship {
			plan, err = h.plans.GetMentorshipPlan(c.Request.Context(), id)
		} else {
			plan, err = h.plans.GetSignalPlan(c.Request.Context(), id)
		}
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, plan)
	}
}

func (h *PlanHandler) Create(t models.PlanType) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.PlanRequest
		if !bindJSON(c, &req) {
			return
		}
		var (
			plan interface{}
			err  error
		)
		if t == models.PlanTypeMentorship {
			plan, err = h.plans.CreateMentorshipPlan(c.Request.Context(), viewer(c).UserID, &req)
		} else {
			plan, err = h.plans.CreateSignalPlan(c.Request.Context(), viewer(c).UserID, &req)
		}
		if err != nil {
			respondError(c, err)
			return
		}
		respondCreated(c, "Plan created successfully", plan)
	}
}

func (h *PlanHandler) Update(t models.PlanType) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uintParam(c, "id")
		if !ok {
			return
		}
		var req services.PlanUpdate
		if !bindJSON(c, &req) {
			return
		}
		info, err := h.plans.UpdatePlan(c.Request.Context(), t, id, &req)
		if err != nil {
			respondError(c, err)
			return
		}
		respondMessage(c, "Plan updated successfully", info)
	}
}

func (h *PlanHandler) Delete(t models.PlanType) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uintParam(c, "id")
		if !ok {
			return
		}
		if err := h.plans.DeletePlan(c.Request.Context(), t, id); err != nil {
			respondError(c, err)
			return
		}
		respondMessage(c, "Plan deleted successfully", nil)
	}
}
