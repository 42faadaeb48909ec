// Package queue hands sync tasks from the request path to a background
// worker through a Redis list.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adsconnect/adsconnect/internal/cache"
	"github.com/adsconnect/adsconnect/pkg/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrMalformedTask is returned by Dequeue for a payload that is not a task.
// The raw payload has already been moved to the dead list.
var ErrMalformedTask = errors.New("malformed sync task")

const defaultStatusTTL = 24 * time.Hour

// Broker moves tasks between producers and the worker.
type Broker interface {
	Enqueue(ctx context.Context, task *models.SyncTask) error
	// Dequeue blocks up to timeout and returns nil, nil when nothing arrived.
	Dequeue(ctx context.Context, timeout time.Duration) (*models.SyncTask, error)
	DeadLetter(ctx context.Context, task *models.SyncTask) error
}

// StatusRecorder tracks the last known status of a task.
type StatusRecorder interface {
	SetTaskStatus(ctx context.Context, taskID uuid.UUID, status string, ttl time.Duration) error
}

// RedisQueue is a FIFO on a Redis list: LPUSH to enqueue, BRPOP to dequeue.
type RedisQueue struct {
	client *redis.Client
	status StatusRecorder
	logger *zap.Logger
}

// NewRedisQueue returns a queue on client. status may be nil.
func NewRedisQueue(client *redis.Client, status StatusRecorder, logger *zap.Logger) *RedisQueue {
	return &RedisQueue{
		client: client,
		status: status,
		logger: logger.Named("queue"),
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, task *models.SyncTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encoding task: %w", err)
	}
	if err := q.client.LPush(ctx, cache.SyncQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("enqueueing task: %w", err)
	}

	q.setStatus(ctx, task.ID, models.TaskStatusQueued)
	q.logger.Debug("task enqueued",
		zap.String("task_id", task.ID.String()),
		zap.String("kind", task.Kind),
		zap.String("user_id", task.UserID),
	)
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*models.SyncTask, error) {
	res, err := q.client.BRPop(ctx, timeout, cache.SyncQueueKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeueing task: %w", err)
	}

	// res is [key, value]
	raw := res[1]
	var task models.SyncTask
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		if perr := q.client.LPush(ctx, cache.SyncDeadQueueKey, raw).Err(); perr != nil {
			q.logger.Error("dead-lettering malformed task failed", zap.Error(perr))
		}
		return nil, fmt.Errorf("%w: %w", ErrMalformedTask, err)
	}
	return &task, nil
}

func (q *RedisQueue) DeadLetter(ctx context.Context, task *models.SyncTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encoding task: %w", err)
	}
	if err := q.client.LPush(ctx, cache.SyncDeadQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("dead-lettering task: %w", err)
	}
	return nil
}

func (q *RedisQueue) setStatus(ctx context.Context, taskID uuid.UUID, status string) {
	if q.status == nil {
		return
	}
	if err := q.status.SetTaskStatus(ctx, taskID, status, defaultStatusTTL); err != nil {
		q.logger.Warn("recording task status failed", zap.String("task_id", taskID.String()), zap.Error(err))
	}
}

var _ Broker = (*RedisQueue)(nil)
