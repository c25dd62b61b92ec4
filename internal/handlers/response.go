package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"trading-challenges/internal/auth"
	"trading-challenges/internal/logger"
	"trading-challenges/internal/mt5"
	"trading-challenges/internal/services"
)

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func respondCreated(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": message, "data": data})
}

func respondMessage(c *gin.Context, message string, data interface{}) {
	body := gin.H{"success": true, "message": message}
	if data != nil {
		body["data"] = data
	}
	c.JSON(http.StatusOK, body)
}

func respondFail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "error": message})
}

// respondError maps service errors onto status codes. MT5 failures become
// 502. Anything else is logged and answered with a generic message.
func respondError(c *gin.Context, err error) {
	var ve *services.ValidationError
	if errors.As(err, &ve) {
		body := gin.H{"success": false, "error": ve.Message}
		if len(ve.Fields) > 0 {
			body["fields"] = ve.Fields
		}
		c.JSON(http.StatusBadRequest, body)
		return
	}

	var de *services.DomainError
	if errors.As(err, &de) {
		status := http.StatusBadRequest
		switch de.Kind {
		case services.KindNotFound:
			status = http.StatusNotFound
		case services.KindForbidden:
			status = http.StatusForbidden
		case services.KindUnauthorized:
			status = http.StatusUnauthorized
		}
		c.JSON(status, gin.H{"success": false, "error": de.Message, "code": de.Code})
		return
	}

	var mt5Err *mt5.ServiceError
	if errors.As(err, &mt5Err) {
		respondFail(c, http.StatusBadGateway, mt5Err.Error())
		return
	}
	if errors.Is(err, mt5.ErrServiceUnavailable) {
		respondFail(c, http.StatusBadGateway, mt5.ErrServiceUnavailable.Error())
		return
	}

	logger.Component("http").WithFields(logrus.Fields{
		"method": c.Request.Method,
		"path":   c.FullPath(),
	}).WithError(err).Error("request failed")
	respondFail(c, http.StatusInternalServerError, "Internal server error")
}

func uintParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		respondFail(c, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return uint(id), true
}

func intQuery(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return v
}

func pageQuery(c *gin.Context) services.PageRequest {
	return services.PageRequest{Page: intQuery(c, "page", 1), Limit: intQuery(c, "limit", 0)}
}

// viewer describes the authenticated caller. Routes using it sit behind
// AuthMiddleware.
func viewer(c *gin.Context) services.Viewer {
	id, _ := auth.GetUserID(c)
	return services.Viewer{UserID: id, IsAdmin: auth.IsAdmin(c)}
}
