package queue

import (
	"context"
	"errors"
	"time"

	"github.com/adsconnect/adsconnect/internal/metrics"
	"github.com/adsconnect/adsconnect/pkg/models"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Handler runs one attempt of a task.
type Handler func(ctx context.Context, task *models.SyncTask) error

type WorkerConfig struct {
	// MaxAttempts bounds the runs of a single task, first attempt included.
	MaxAttempts int
	PollTimeout time.Duration
	RetryWait   time.Duration
	StatusTTL   time.Duration
	// PermanentErrors are never retried; a task failing with one is marked failed.
	PermanentErrors []error
}

// Worker pulls tasks off a Broker and runs the handler registered for their kind.
type Worker struct {
	broker   Broker
	status   StatusRecorder
	handlers map[string]Handler
	cfg      WorkerConfig
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewWorker(broker Broker, status StatusRecorder, cfg WorkerConfig, m *metrics.Metrics, logger *zap.Logger) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = time.Second
	}
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = defaultStatusTTL
	}
	return &Worker{
		broker:   broker,
		status:   status,
		handlers: make(map[string]Handler),
		cfg:      cfg,
		metrics:  m,
		logger:   logger.Named("worker"),
	}
}

// Handle registers h for tasks of kind. Register before calling Run.
func (w *Worker) Handle(kind string, h Handler) {
	w.handlers[kind] = h
}

// Run processes tasks until ctx is cancelled. It always returns nil once ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", zap.Int("max_attempts", w.cfg.MaxAttempts))
	defer w.logger.Info("worker stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		task, err := w.broker.Dequeue(ctx, w.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, ErrMalformedTask) {
				w.logger.Warn("dropped malformed task", zap.Error(err))
				continue
			}
			w.logger.Error("dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.cfg.RetryWait):
			}
			continue
		}
		if task == nil {
			continue
		}

		w.Process(ctx, task)
	}
}

// Process runs task to completion, retrying transient failures.
func (w *Worker) Process(ctx context.Context, task *models.SyncTask) {
	log := w.logger.With(
		zap.String("task_id", task.ID.String()),
		zap.String("kind", task.Kind),
		zap.String("user_id", task.UserID),
	)

	h, ok := w.handlers[task.Kind]
	if !ok {
		log.Error("no handler for task kind")
		w.bury(ctx, task, log)
		return
	}

	w.setStatus(ctx, task, models.TaskStatusRunning)

	remaining := w.cfg.MaxAttempts - task.Attempt - 1
	if remaining < 0 {
		remaining = 0
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.cfg.RetryWait
	b.MaxInterval = 10 * w.cfg.RetryWait
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(remaining)), ctx)

	op := func() error {
		task.Attempt++
		err := h(ctx, task)
		if err != nil && w.permanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		w.metrics.RecordQueueTask(task.Kind, metrics.OutcomeRetry)
		log.Warn("task attempt failed, retrying",
			zap.Int("attempt", task.Attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(op, policy, notify)
	switch {
	case err == nil:
		w.metrics.RecordQueueTask(task.Kind, metrics.OutcomeSuccess)
		w.setStatus(ctx, task, models.TaskStatusCompleted)
		log.Info("task completed", zap.Int("attempt", task.Attempt))

	case ctx.Err() != nil:
		// Shutting down mid-task: put it back for the next worker.
		requeueCtx := context.WithoutCancel(ctx)
		if rerr := w.broker.Enqueue(requeueCtx, task); rerr != nil {
			log.Error("requeueing interrupted task failed", zap.Error(rerr))
			return
		}
		log.Info("task requeued on shutdown", zap.Int("attempt", task.Attempt))

	case w.permanent(err):
		w.metrics.RecordQueueTask(task.Kind, metrics.OutcomeFailure)
		w.setStatus(ctx, task, models.TaskStatusFailed)
		log.Warn("task failed permanently", zap.Int("attempt", task.Attempt), zap.Error(err))

	default:
		log.Error("task attempts exhausted", zap.Int("attempt", task.Attempt), zap.Error(err))
		w.bury(ctx, task, log)
	}
}

func (w *Worker) bury(ctx context.Context, task *models.SyncTask, log *zap.Logger) {
	w.metrics.RecordQueueTask(task.Kind, metrics.OutcomeDead)
	if err := w.broker.DeadLetter(context.WithoutCancel(ctx), task); err != nil {
		log.Error("dead-lettering task failed", zap.Error(err))
	}
	w.setStatus(ctx, task, models.TaskStatusDead)
}

func (w *Worker) permanent(err error) bool {
	for _, target := range w.cfg.PermanentErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (w *Worker) setStatus(ctx context.Context, task *models.SyncTask, status string) {
	if w.status == nil {
		return
	}
	if err := w.status.SetTaskStatus(context.WithoutCancel(ctx), task.ID, status, w.cfg.StatusTTL); err != nil {
		w.logger.Warn("recording task status failed", zap.String("task_id", task.ID.String()), zap.Error(err))
	}
}
