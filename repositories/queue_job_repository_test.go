package repositories

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cms-publisher/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJob(articleID uint, at time.Time) *models.PublishQueueJob {
	return &models.PublishQueueJob{
		ArticleID:  articleID,
		UserID:     1,
		Platforms:  []models.Platform{models.PlatformDevTo, models.PlatformGhost},
		ScheduleAt: at.UTC(),
		Status:     models.QueueJobPending,
	}
}

func TestDueIDs(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueueJobRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	past := newJob(1, now.Add(-time.Hour))
	future := newJob(2, now.Add(time.Hour))
	done := newJob(3, now.Add(-2*time.Hour))
	done.Status = models.QueueJobCompleted
	for _, j := range []*models.PublishQueueJob{past, future, done} {
		require.NoError(t, repo.Create(ctx, j))
	}

	ids, err := repo.DueIDs(ctx, now, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint{past.ID}, ids)
}

func TestClaimIsExclusive(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueueJobRepository(db)
	ctx := context.Background()

	job := newJob(1, time.Now().Add(-time.Minute))
	require.NoError(t, repo.Create(ctx, job))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.Claim(ctx, job.ID)
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())

	stored, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueJobProcessing, stored.Status)
}

func TestFinishRequiresProcessing(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueueJobRepository(db)
	ctx := context.Background()

	job := newJob(1, time.Now().Add(-time.Minute))
	require.NoError(t, repo.Create(ctx, job))

	processed := time.Now().UTC()
	job.Status = models.QueueJobCompleted
	job.ProcessedAt = &processed
	job.Outcomes = []models.PublishOutcome{{Platform: models.PlatformDevTo, Success: true, PostID: "1"}}
	assert.Error(t, repo.Finish(ctx, job), "pending job cannot be finished")

	claimed, err := repo.Claim(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, repo.Finish(ctx, job))

	stored, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsTerminal())
	require.Len(t, stored.Outcomes, 1)
	assert.Equal(t, "1", stored.Outcomes[0].PostID)
	assert.Equal(t, []models.Platform{models.PlatformDevTo, models.PlatformGhost}, []models.Platform(stored.Platforms))
}
