package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"cms-publisher/models"

	"github.com/stretchr/testify/assert"
)

type countingQueue struct {
	processed atomic.Int32
	retried   atomic.Int32
	maxSeen   atomic.Int32
}

func (q *countingQueue) Enqueue(context.Context, uint, uint, []models.Platform, time.Time, bool) (*models.PublishQueueJob, error) {
	return nil, nil
}

func (q *countingQueue) ListJobs(context.Context, uint) ([]models.PublishQueueJob, error) {
	return nil, nil
}

func (q *countingQueue) ProcessDue(context.Context) (ProcessReport, error) {
	q.processed.Add(1)
	return ProcessReport{}, nil
}

func (q *countingQueue) RetryFailed(_ context.Context, maxRetries int) (RetryReport, error) {
	q.retried.Add(1)
	q.maxSeen.Store(int32(maxRetries))
	return RetryReport{}, nil
}

func TestQueueWorkerTicks(t *testing.T) {
	queue := &countingQueue{}
	worker := NewQueueWorker(queue, 10*time.Millisecond, 15*time.Millisecond, 5, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)

	assert.Eventually(t, func() bool {
		return queue.processed.Load() >= 2 && queue.retried.Load() >= 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 5, queue.maxSeen.Load())

	cancel()
	worker.Wait()
	settled := queue.processed.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, queue.processed.Load())
}
