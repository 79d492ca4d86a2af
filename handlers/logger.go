package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// getLogger retrieves a Zap logger from the Gin context or falls back to the
// global one, tagged with the request path.
func getLogger(c *gin.Context) *zap.Logger {
	if l, exists := c.Get("logger"); exists {
		if logger, ok := l.(*zap.Logger); ok {
			return logger
		}
	}
	return zap.L().With(zap.String("path", c.FullPath()))
}

func logUser(userID string) zap.Field {
	if userID == "" {
		return zap.String("userId", "anonymous")
	}
	return zap.String("userId", userID)
}
