package metrics

import (
	"context"
	"log/slog"
	"time"

	"cms-publisher/models"

	"gorm.io/gorm"
)

// StartDBCollectors refreshes the queue gauges from the database until ctx ends.
func StartDBCollectors(ctx context.Context, db *gorm.DB, interval time.Duration, logger *slog.Logger) {
	if db == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		UpdateQueueGauges(ctx, db, logger)
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				UpdateQueueGauges(ctx, db, logger)
			}
		}
	}()
}

type statusCount struct {
	Status string
	Count  int64
}

func UpdateQueueGauges(ctx context.Context, db *gorm.DB, logger *slog.Logger) {
	var rows []statusCount
	err := db.WithContext(ctx).
		Model(&models.PublishQueueJob{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		logger.Warn("metrics: count queue jobs", "error", err)
		return
	}

	// statuses with no rows would otherwise keep their last value
	for _, s := range []models.QueueJobStatus{
		models.QueueJobPending, models.QueueJobProcessing, models.QueueJobCompleted, models.QueueJobFailed,
	} {
		SetQueueJobCount(string(s), 0)
	}
	for _, r := range rows {
		SetQueueJobCount(r.Status, r.Count)
	}
}
