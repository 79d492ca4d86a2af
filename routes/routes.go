package routes

import (
	"net/http"
	"time"

	"xquests/handlers"
	"xquests/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RegisterNotificationRoutes registers the user-facing feed endpoints.
func RegisterNotificationRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/notifications")
	{
		// Anonymous callers get the global feed only.
		public := api.Group("")
		public.Use(middleware.JWTAuthUserMiddleware(true))
		public.GET("", hb.ListNotificationsHandler)
		public.GET("/stats", hb.NotificationStatsHandler)
		public.GET("/stream", hb.StreamHandler)

		// Protected routes (Require Authentication)
		protected := api.Group("")
		protected.Use(middleware.JWTAuthUserMiddleware(false))
		protected.POST("/:id/read", hb.MarkReadHandler)
		protected.POST("/read-all", hb.MarkAllReadHandler)
		protected.DELETE("/:id", hb.DeleteNotificationHandler)
		protected.POST("/refresh", hb.RefreshHandler)
		protected.PUT("/device-token", hb.UpdateDeviceTokenHandler)
		protected.DELETE("/device-token", hb.DeleteDeviceTokenHandler)
	}
}

// RegisterAdminRoutes sets up endpoints for admin operations.
func RegisterAdminRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	adminGroup := r.Group("/api/admin/notifications")
	{
		adminGroup.Use(middleware.JWTAuthAdminMiddleware(hb.AdminTokenHash))
		adminGroup.POST("/global", hb.AdminHandler.SendGlobalHandler)
		adminGroup.POST("/user/:userId", hb.AdminHandler.SendUserHandler)
		adminGroup.GET("", hb.AdminHandler.GetAllNotificationsHandler)
		adminGroup.GET("/analytics", hb.AdminHandler.GetAnalyticsHandler)
	}
}

// RegisterHealthRoute registers a health-check endpoint.
func RegisterHealthRoute(r *gin.Engine, hb *handlers.HandlerBundle) {
	if hb.HealthHandler != nil {
		r.GET("/health", hb.HealthHandler)
		return
	}
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Hi, I'm XQuests"})
	})
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	RegisterNotificationRoutes(r, hb)
	RegisterAdminRoutes(r, hb)
	RegisterHealthRoute(r, hb)
}
