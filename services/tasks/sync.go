package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"xquests/models"

	"github.com/hibiken/asynq"
)

const (
	TypeNotificationSync = "notification:sync"
	TypeSweepExpired     = "notification:sweep_expired"

	// SyncMaxRetry bounds how often a failed remote mutation is replayed.
	SyncMaxRetry = 10
)

// NewSyncTask wraps a failed remote mutation for replay.
func NewSyncTask(payload models.SyncPayload) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeNotificationSync, b)
	opts := []asynq.Option{
		asynq.MaxRetry(SyncMaxRetry),
		asynq.Timeout(30 * time.Second),
	}
	return task, opts, nil
}

// NewSweepTask removes expired notifications when processed.
func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TypeSweepExpired, nil)
}

// Enqueuer is the subset of *asynq.Client used to queue tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// SyncQueue queues failed engine mutations on asynq.
type SyncQueue struct {
	client Enqueuer
}

func NewSyncQueue(client Enqueuer) *SyncQueue {
	return &SyncQueue{client: client}
}

func (q *SyncQueue) EnqueueSync(ctx context.Context, p models.SyncPayload) error {
	task, opts, err := NewSyncTask(p)
	if err != nil {
		return fmt.Errorf("failed to build sync task: %w", err)
	}
	if _, err := q.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("failed to enqueue sync task: %w", err)
	}
	return nil
}
