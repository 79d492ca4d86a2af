package handlers

import (
	"github.com/gin-gonic/gin"
)

// HandlerBundle groups all endpoint handlers into one struct.
type HandlerBundle struct {
	// Admin token hash accepted by the admin middleware besides admin JWTs.
	AdminTokenHash string

	// Feed endpoints
	ListNotificationsHandler  gin.HandlerFunc
	NotificationStatsHandler  gin.HandlerFunc
	MarkReadHandler           gin.HandlerFunc
	MarkAllReadHandler        gin.HandlerFunc
	DeleteNotificationHandler gin.HandlerFunc
	RefreshHandler            gin.HandlerFunc
	StreamHandler             gin.HandlerFunc
	UpdateDeviceTokenHandler  gin.HandlerFunc
	DeleteDeviceTokenHandler  gin.HandlerFunc

	// Admin endpoints
	AdminHandler *AdminHandler

	// HealthHandler reports dependency status.
	HealthHandler gin.HandlerFunc
}
