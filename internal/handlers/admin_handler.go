package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"trading-challenges/internal/auth"
	"trading-challenges/internal/logger"
	"trading-challenges/internal/services"
)

type AdminHandler struct {
	adminService *services.AdminService
	log          *logrus.Entry
}

func NewAdminHandler(adminService *services.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService, log: logger.Component("admin")}
}

// AuditMiddleware records every successful write made by an admin. It must
// run before the route's auth middleware so it sees the role after c.Next.
func (h *AdminHandler) AuditMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodOptions {
			return
		}
		if c.Writer.Status() >= http.StatusBadRequest || !auth.IsAdmin(c) {
			return
		}
		adminID, _ := auth.GetUserID(c)
		route := c.FullPath()
		action := services.AdminAction{
			AdminID:      adminID,
			Action:       c.Request.Method + " " + route,
			ResourceType: resourceType(route),
			Details:      map[string]interface{}{"path": c.Request.URL.Path, "status": c.Writer.Status()},
		}
		if id, err := strconv.ParseUint(c.Param("id"), 10, 64); err == nil {
			rid := uint(id)
			action.ResourceID = &rid
		}
		// The request context may already be cancelled once the response is written.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.adminService.LogAction(ctx, action); err != nil {
			h.log.WithError(err).Warn("failed to write audit log")
		}
	}
}

// resourceType takes the first segment after /api, e.g. "challenges".
func resourceType(route string) string {
	parts := strings.Split(strings.TrimPrefix(route, "/api/"), "/")
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

// Dashboard GET /admin/dashboard
func (h *AdminHandler) Dashboard(c *gin.Context) {
	d, err := h.adminService.Dashboard(c.Request.Context(), time.Now())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, d)
}

// Logs GET /admin/logs?adminId&resource&page&limit
func (h *AdminHandler) Logs(c *gin.Context) {
	page, err := h.adminService.Logs(c.Request.Context(), services.AdminLogFilter{
		AdminID:      uint(intQuery(c, "adminId", 0)),
		ResourceType: c.Query("resource"),
		PageRequest:  pageQuery(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, page)
}
