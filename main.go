package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"xquests/config"
	"xquests/cron"
	"xquests/database"
	notificationRepo "xquests/database/repository/notification"
	"xquests/handlers"
	"xquests/middleware"
	"xquests/routes"
	"xquests/services/admin"
	"xquests/services/cache"
	"xquests/services/identity"
	"xquests/services/notification"
	"xquests/services/realtime"
	"xquests/services/tasks"
	"xquests/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	cacheTTL         = 7 * 24 * time.Hour
	serviceTokenTTL  = 365 * 24 * time.Hour
	reconnectBase    = time.Second
	reconnectMax     = 30 * time.Second
	anonymousCacheID = "global"
)

// serverMember names this process in the channel's presence set.
func serverMember() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("server:%s:%d", host, os.Getpid())
}

// authorizeMember admits tokens signed with the service secret.
func authorizeMember(token string) (string, error) {
	sub, _, err := utils.ExtractClaims(token)
	return sub, err
}

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()
	defer logger.Sync()

	database.InitDB()
	utils.InitRedis()
	if err := utils.FirebaseInit(); err != nil {
		logger.Warn("main: push notifications disabled", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// repositories.
	notifRepo := notificationRepo.NewMongoNotificationRepo(database.Database())

	// realtime fan-in channel.
	transport := realtime.NewRedisTransport(utils.GetRealtimeClient(), authorizeMember, logger)
	changeFeed := realtime.NewMongoChangeFeed(database.MongoClient, config.AppConfig.DatabaseName, logger)
	channel := realtime.NewChannel(transport, config.AppConfig.RealtimeChannel,
		realtime.WithChangeFeed(changeFeed),
		realtime.WithReconnectPolicy(realtime.NewReconnectPolicy(reconnectBase, reconnectMax, 0)),
		realtime.WithLogger(logger),
	)
	serviceToken, err := utils.GenerateToken(serverMember(), "service", serviceTokenTTL)
	if err != nil {
		logger.Sugar().Fatalf("main: failed to sign service token: %v", err)
	}
	if err := channel.SetAuthToken(ctx, serviceToken); err != nil {
		logger.Warn("main: failed to set channel token", zap.Error(err))
	}
	if _, err := channel.Connect(ctx); err != nil {
		logger.Warn("main: realtime channel not connected yet", zap.Error(err))
	}

	// background work.
	queueClient := asynq.NewClient(cron.QueueRedisOpt())
	defer queueClient.Close()
	syncQueue := tasks.NewSyncQueue(queueClient)
	stopWorker := cron.InitNotificationWorker(notifRepo)

	// services.
	localCache := cache.NewRedisCache(utils.GetCacheClient(), cacheTTL)
	registry := notification.NewRegistry(func(userID string) *notification.Engine {
		cacheID := userID
		if cacheID == "" {
			cacheID = anonymousCacheID
		}
		return notification.NewEngine(
			notifRepo,
			localCache,
			channel,
			identity.Static{UserID: userID, Role: identity.RoleUser},
			notification.EngineConfig{
				CacheKey:   utils.NotificationCachePrefix + cacheID,
				FetchLimit: config.AppConfig.NotificationFetchLimit,
				MaxEntries: config.AppConfig.NotificationCacheCap,
				Table:      notificationRepo.CollectionName,
			},
			notification.WithSyncRetrier(syncQueue),
			notification.WithEngineLogger(logger),
		)
	}, logger, notification.WithIdleTTL(config.AppConfig.EngineIdleTTL))

	tokens := notification.NewRedisTokenStore(utils.GetCacheClient())
	var push notification.PushService
	if utils.FCMClient != nil {
		fcm, err := notification.NewFCMPushService(utils.FCMClient, tokens, config.AppConfig.FCMGlobalTopic, logger)
		if err != nil {
			logger.Warn("main: push notifications disabled", zap.Error(err))
		} else {
			push = fcm
		}
	}

	adminService := admin.NewDefaultAdminService(notifRepo, channel, push, identity.ContextProvider{}, logger)
	adminService.SetPublishTimeout(config.AppConfig.RealtimePublishTimeout)

	utils.StartHealthMonitor(ctx,
		[]*redis.Client{utils.GetCacheClient(), utils.GetRealtimeClient()},
		database.MongoClient,
		channel.GetConnectionStatus,
	)

	go registry.RunJanitor(ctx, 0)

	notificationHandler := handlers.NewNotificationHandler(func(ctx context.Context, userID string) (handlers.FeedEngine, func()) {
		return registry.Acquire(ctx, userID)
	}, tokens)

	handlerBundle := &handlers.HandlerBundle{
		AdminTokenHash: config.AppConfig.AdminTokenHash,

		ListNotificationsHandler:  notificationHandler.ListHandler,
		NotificationStatsHandler:  notificationHandler.StatsHandler,
		MarkReadHandler:           notificationHandler.MarkReadHandler,
		MarkAllReadHandler:        notificationHandler.MarkAllReadHandler,
		DeleteNotificationHandler: notificationHandler.DeleteHandler,
		RefreshHandler:            notificationHandler.RefreshHandler,
		StreamHandler:             notificationHandler.StreamHandler,
		UpdateDeviceTokenHandler:  notificationHandler.UpdateDeviceTokenHandler,
		DeleteDeviceTokenHandler:  notificationHandler.DeleteDeviceTokenHandler,

		AdminHandler: handlers.NewAdminHandler(adminService),

		HealthHandler: func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":   "ok",
				"health":   utils.GetHealthStatus(),
				"presence": len(channel.Presence()),
				"sessions": registry.Len(),
			})
		},
	}

	// Create the Gin router.
	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.ErrorHandler())
	router.Use(gin.Logger())
	router.Use(middleware.RateLimitMiddleware(config.AppConfig.MaxRequestsPerMin))

	routes.RegisterRoutes(router, handlerBundle)

	// Start the HTTP server. No write timeout: the feed stream is long-lived.
	port := config.AppConfig.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:              "0.0.0.0:" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	// Wait for an OS signal to gracefully shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Sugar().Info("main: server is shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("main: server forced to shutdown", zap.Error(err))
	}

	registry.Close()
	channel.Disconnect()
	stopWorker()
	cancel()
	if err := database.Disconnect(shutdownCtx); err != nil {
		logger.Warn("main: mongo disconnect failed", zap.Error(err))
	}

	logger.Sugar().Info("main: server stopped gracefully")
}
