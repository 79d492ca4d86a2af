package handlers

import (
	"io"
	"time"

	"xquests/models"

	"github.com/gin-gonic/gin"
)

const streamHeartbeat = 25 * time.Second

// StreamHandler pushes the caller's feed as server-sent events: one
// "notifications" event now and another after every change. Changes that
// land while a write is in flight coalesce into one event.
func (h *NotificationHandler) StreamHandler(c *gin.Context) {
	e, userID, release := h.engine(c)
	defer release()
	logger := getLogger(c)

	changed := make(chan struct{}, 1)
	unsubscribe := e.Subscribe(func([]models.Notification) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	c.SSEvent("notifications", feed(e))
	c.Writer.Flush()
	logger.Debug("stream opened", logUser(userID))

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-changed:
			c.SSEvent("notifications", feed(e))
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", gin.H{"connected": e.ConnectionStatus()})
			return true
		}
	})
	logger.Debug("stream closed", logUser(userID))
}
