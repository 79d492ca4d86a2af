package handlers

import (
	"context"
	"errors"
	"net/http"

	"xquests/models"
	"xquests/services/identity"
	"xquests/services/notification"
	"xquests/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FeedEngine is the per-identity notification engine as used over HTTP.
type FeedEngine interface {
	GetNotifications() []models.Notification
	GetStats() models.NotificationStats
	UnreadCount() int
	ConnectionStatus() bool
	Subscribe(o notification.Observer) func()
	MarkAsRead(ctx context.Context, id string) error
	MarkAllAsRead(ctx context.Context) error
	DeleteNotification(ctx context.Context, id string) error
	RefreshNotifications(ctx context.Context) error
}

// EngineLookup returns the initialized engine of userID ("" for anonymous)
// and a release function the caller runs when it is done with it.
type EngineLookup func(ctx context.Context, userID string) (FeedEngine, func())

// NotificationHandler serves the user-facing notification feed.
type NotificationHandler struct {
	engines EngineLookup
	tokens  notification.TokenStore
}

func NewNotificationHandler(engines EngineLookup, tokens notification.TokenStore) *NotificationHandler {
	return &NotificationHandler{engines: engines, tokens: tokens}
}

func (h *NotificationHandler) engine(c *gin.Context) (FeedEngine, string, func()) {
	userID := callerID(c)
	e, release := h.engines(c.Request.Context(), userID)
	return e, userID, release
}

type feedResponse struct {
	Notifications    []models.Notification `json:"notifications"`
	UnreadCount      int                   `json:"unreadCount"`
	ConnectionStatus bool                  `json:"connectionStatus"`
}

func feed(e FeedEngine) feedResponse {
	list := e.GetNotifications()
	if list == nil {
		list = []models.Notification{}
	}
	return feedResponse{
		Notifications:    list,
		UnreadCount:      e.UnreadCount(),
		ConnectionStatus: e.ConnectionStatus(),
	}
}

// ListHandler returns the caller's notifications, newest first.
func (h *NotificationHandler) ListHandler(c *gin.Context) {
	e, _, release := h.engine(c)
	defer release()
	c.JSON(http.StatusOK, feed(e))
}

func (h *NotificationHandler) StatsHandler(c *gin.Context) {
	e, _, release := h.engine(c)
	defer release()
	c.JSON(http.StatusOK, e.GetStats())
}

// mutationFailed answers a failed remote write. The local change already
// applied, so the current feed is returned alongside the error.
func mutationFailed(c *gin.Context, e FeedEngine, err error) {
	status := http.StatusBadGateway
	if errors.Is(err, models.ErrNotificationNotFound) {
		status = http.StatusNotFound
	}
	getLogger(c).Warn("notification sync failed", zap.Error(err))
	c.JSON(status, gin.H{
		"error": "Failed to sync notification",
		"feed":  feed(e),
	})
}

func (h *NotificationHandler) MarkReadHandler(c *gin.Context) {
	e, _, release := h.engine(c)
	defer release()
	if err := e.MarkAsRead(c.Request.Context(), c.Param("id")); err != nil {
		mutationFailed(c, e, err)
		return
	}
	c.JSON(http.StatusOK, feed(e))
}

func (h *NotificationHandler) MarkAllReadHandler(c *gin.Context) {
	e, _, release := h.engine(c)
	defer release()
	if err := e.MarkAllAsRead(c.Request.Context()); err != nil {
		mutationFailed(c, e, err)
		return
	}
	c.JSON(http.StatusOK, feed(e))
}

func (h *NotificationHandler) DeleteHandler(c *gin.Context) {
	e, _, release := h.engine(c)
	defer release()
	if err := e.DeleteNotification(c.Request.Context(), c.Param("id")); err != nil {
		mutationFailed(c, e, err)
		return
	}
	c.JSON(http.StatusOK, feed(e))
}

// RefreshHandler replaces the feed with the store's current view.
func (h *NotificationHandler) RefreshHandler(c *gin.Context) {
	e, _, release := h.engine(c)
	defer release()
	if err := e.RefreshNotifications(c.Request.Context()); err != nil {
		getLogger(c).Error("refresh failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to refresh notifications"})
		return
	}
	c.JSON(http.StatusOK, feed(e))
}

type deviceTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// UpdateDeviceTokenHandler registers the caller's FCM device token.
func (h *NotificationHandler) UpdateDeviceTokenHandler(c *gin.Context) {
	userID := callerID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Insufficient authorization"})
		return
	}
	var req deviceTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request payload", err.Error())
		return
	}
	if err := h.tokens.SetToken(c.Request.Context(), userID, req.Token); err != nil {
		getLogger(c).Error("failed to store device token", zap.String("userId", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update device token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Device token updated"})
}

// DeleteDeviceTokenHandler stops pushes to the caller's device.
func (h *NotificationHandler) DeleteDeviceTokenHandler(c *gin.Context) {
	userID := callerID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Insufficient authorization"})
		return
	}
	if err := h.tokens.DeleteToken(c.Request.Context(), userID); err != nil {
		getLogger(c).Error("failed to delete device token", zap.String("userId", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove device token"})
		return
	}
	c.Status(http.StatusNoContent)
}

func callerID(c *gin.Context) string {
	id, _ := identity.FromContext(c.Request.Context())
	return id.UserID
}
