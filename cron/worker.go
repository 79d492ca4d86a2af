package cron

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"xquests/config"
	notificationRepo "xquests/database/repository/notification"
	"xquests/models"
	"xquests/services/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// SyncStore is the part of the notifications table replayed by the worker.
type SyncStore interface {
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, userID, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

var _ SyncStore = (notificationRepo.NotificationRepository)(nil)

// QueueRedisOpt is the asynq connection shared by the worker, the scheduler
// and the sync queue client.
func QueueRedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	}
}

// InitNotificationWorker runs the sync retry worker and the expiry sweep
// scheduler in background. The returned function stops both.
func InitNotificationWorker(store SyncStore) func() {
	logger := zap.L().Named("worker")
	redisOpts := QueueRedisOpt()

	srv := asynq.NewServer(
		redisOpts,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
			Logger: logger.Sugar(),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeNotificationSync, handleSyncTask(store))
	mux.HandleFunc(tasks.TypeSweepExpired, handleSweepTask(store, time.Now))

	scheduler := asynq.NewScheduler(redisOpts, &asynq.SchedulerOpts{Logger: logger.Sugar()})
	if spec := config.AppConfig.ExpirySweepSpec; spec != "" {
		if _, err := scheduler.Register(spec, tasks.NewSweepTask()); err != nil {
			logger.Error("invalid expiry sweep schedule", zap.String("spec", spec), zap.Error(err))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go monitorRedisConnection(ctx, logger)

	go func() {
		logger.Info("starting notification worker")
		const maxAttempts = 5

		for attempts := 1; attempts <= maxAttempts; attempts++ {
			if err := srv.Start(mux); err != nil {
				logger.Error("failed to start worker",
					zap.Int("attempt", attempts),
					zap.Int("maxAttempts", maxAttempts),
					zap.Error(err),
				)
				if attempts == maxAttempts {
					logger.Error("max retry attempts reached, sync retries disabled")
					return
				}
				time.Sleep(time.Duration(attempts*2) * time.Second)
				continue
			}
			break
		}
	}()

	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start expiry sweep scheduler", zap.Error(err))
	}

	return func() {
		cancel()
		scheduler.Shutdown()
		srv.Shutdown()
	}
}

func handleSyncTask(store SyncStore) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p models.SyncPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			return fmt.Errorf("invalid sync payload: %v: %w", err, asynq.SkipRetry)
		}

		err := applySync(ctx, store, p)
		if errors.Is(err, models.ErrNotificationNotFound) {
			zap.L().Debug("sync target no longer exists", zap.String("op", p.Op), zap.Strings("ids", p.IDs))
			return nil
		}
		if err != nil {
			zap.L().Warn("sync replay failed", zap.String("op", p.Op), zap.Error(err))
		}
		return err
	}
}

func applySync(ctx context.Context, store SyncStore, p models.SyncPayload) error {
	switch p.Op {
	case models.SyncOpRead:
		for _, id := range p.IDs {
			if err := store.MarkRead(ctx, p.UserID, id); err != nil {
				return err
			}
		}
	case models.SyncOpReadAll:
		_, err := store.MarkAllRead(ctx, p.UserID)
		return err
	case models.SyncOpDelete:
		for _, id := range p.IDs {
			if err := store.Delete(ctx, p.UserID, id); err != nil && !errors.Is(err, models.ErrNotificationNotFound) {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown sync op %q: %w", p.Op, asynq.SkipRetry)
	}
	return nil
}

func handleSweepTask(store SyncStore, now func() time.Time) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		n, err := store.DeleteExpired(ctx, now())
		if err != nil {
			return fmt.Errorf("expiry sweep failed: %w", err)
		}
		if n > 0 {
			zap.L().Info("expired notifications removed", zap.Int64("count", n))
		}
		return nil
	}
}

// monitorRedisConnection pings the queue database periodically to detect
// failures at runtime.
func monitorRedisConnection(ctx context.Context, logger *zap.Logger) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	})
	defer client.Close()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.Ping(ctx).Err(); err != nil && ctx.Err() == nil {
				logger.Warn("queue redis connection lost", zap.Error(err))
			}
		}
	}
}
