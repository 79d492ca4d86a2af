package handlers

import (
	"net/http"
	"strconv"

	"xquests/models"
	"xquests/services/admin"
	"xquests/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminHandler exposes the admin notification surface.
type AdminHandler struct {
	AdminService admin.AdminService
}

func NewAdminHandler(as admin.AdminService) *AdminHandler {
	return &AdminHandler{AdminService: as}
}

func sendStatus(res models.SendResult) int {
	switch {
	case res.Success:
		return http.StatusCreated
	case res.Message == admin.MessageUnauthorized:
		return http.StatusUnauthorized
	case res.Message == admin.MessageUserRequired:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// SendGlobalHandler creates a notification for every user.
func (ah *AdminHandler) SendGlobalHandler(c *gin.Context) {
	var in models.NotificationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request payload", err.Error())
		return
	}
	res := ah.AdminService.SendGlobalNotification(c.Request.Context(), in)
	c.JSON(sendStatus(res), res)
}

// SendUserHandler creates a notification for the user in the path.
func (ah *AdminHandler) SendUserHandler(c *gin.Context) {
	var in models.NotificationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request payload", err.Error())
		return
	}
	res := ah.AdminService.SendUserNotification(c.Request.Context(), c.Param("userId"), in)
	c.JSON(sendStatus(res), res)
}

// GetAllNotificationsHandler lists every notification, newest first.
func (ah *AdminHandler) GetAllNotificationsHandler(c *gin.Context) {
	var limit int64
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	rows, err := ah.AdminService.GetAllNotifications(c.Request.Context(), limit)
	if err != nil {
		zap.L().Error("Failed to fetch all notifications", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch notifications"})
		return
	}
	if rows == nil {
		rows = []models.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": rows})
}

func (ah *AdminHandler) GetAnalyticsHandler(c *gin.Context) {
	a, err := ah.AdminService.GetAnalytics(c.Request.Context())
	if err != nil {
		zap.L().Error("Failed to compute analytics", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute analytics"})
		return
	}
	c.JSON(http.StatusOK, a)
}
