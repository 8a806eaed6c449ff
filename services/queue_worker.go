package services

import (
	"context"
	"log/slog"
	"time"
)

// QueueWorker triggers the queue on fixed intervals inside the process,
// standing in for an external cron.
type QueueWorker struct {
	queue         PublishQueue
	pollInterval  time.Duration
	retryInterval time.Duration
	maxRetries    int
	logger        *slog.Logger
	done          chan struct{}
}

func NewQueueWorker(queue PublishQueue, pollInterval, retryInterval time.Duration, maxRetries int, logger *slog.Logger) *QueueWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	if retryInterval <= 0 {
		retryInterval = 5 * time.Minute
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &QueueWorker{
		queue:         queue,
		pollInterval:  pollInterval,
		retryInterval: retryInterval,
		maxRetries:    maxRetries,
		logger:        logger,
		done:          make(chan struct{}),
	}
}

// Start runs the worker in a background goroutine until ctx is cancelled.
func (w *QueueWorker) Start(ctx context.Context) {
	go func() {
		defer close(w.done)
		w.logger.Info("queue worker started", "poll", w.pollInterval, "retry", w.retryInterval)
		defer w.logger.Info("queue worker stopped")

		poll := time.NewTicker(w.pollInterval)
		defer poll.Stop()

		retry := time.NewTicker(w.retryInterval)
		defer retry.Stop()

		w.processOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-poll.C:
				w.processOnce(ctx)
			case <-retry.C:
				w.retryOnce(ctx)
			}
		}
	}()
}

func (w *QueueWorker) processOnce(ctx context.Context) {
	if _, err := w.queue.ProcessDue(ctx); err != nil && ctx.Err() == nil {
		w.logger.Error("process due jobs", "error", err)
	}
}

func (w *QueueWorker) retryOnce(ctx context.Context) {
	if _, err := w.queue.RetryFailed(ctx, w.maxRetries); err != nil && ctx.Err() == nil {
		w.logger.Error("retry failed publishes", "error", err)
	}
}

// Wait blocks until the goroutine started by Start has returned.
func (w *QueueWorker) Wait() {
	<-w.done
}
