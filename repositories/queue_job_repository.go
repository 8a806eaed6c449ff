package repositories

import (
	"context"
	"fmt"
	"time"

	"cms-publisher/models"

	"gorm.io/gorm"
)

type QueueJobRepository interface {
	Create(ctx context.Context, job *models.PublishQueueJob) error
	GetByID(ctx context.Context, id uint) (*models.PublishQueueJob, error)
	DueIDs(ctx context.Context, now time.Time, limit int) ([]uint, error)
	Claim(ctx context.Context, id uint) (bool, error)
	Finish(ctx context.Context, job *models.PublishQueueJob) error
	ListByArticle(ctx context.Context, articleID uint) ([]models.PublishQueueJob, error)
}

type queueJobRepository struct {
	db *gorm.DB
}

func NewQueueJobRepository(db *gorm.DB) QueueJobRepository {
	return &queueJobRepository{db: db}
}

func (r *queueJobRepository) Create(ctx context.Context, job *models.PublishQueueJob) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("insert queue job: %w", err)
	}
	return nil
}

func (r *queueJobRepository) GetByID(ctx context.Context, id uint) (*models.PublishQueueJob, error) {
	var job models.PublishQueueJob
	if err := r.db.WithContext(ctx).First(&job, id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// DueIDs returns PENDING jobs whose schedule_at has passed, oldest first.
func (r *queueJobRepository) DueIDs(ctx context.Context, now time.Time, limit int) ([]uint, error) {
	if limit <= 0 {
		limit = 100
	}
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&models.PublishQueueJob{}).
		Where("status = ? AND schedule_at <= ?", models.QueueJobPending, now).
		Order("schedule_at asc").
		Order("id asc").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// Claim moves a job from PENDING to PROCESSING. Only one caller can win the
// conditional update, so a job is never processed twice.
func (r *queueJobRepository) Claim(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PublishQueueJob{}).
		Where("id = ? AND status = ?", id, models.QueueJobPending).
		Update("status", models.QueueJobProcessing)
	if res.Error != nil {
		return false, fmt.Errorf("claim queue job %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Finish stores the terminal status and outcomes of a PROCESSING job.
func (r *queueJobRepository) Finish(ctx context.Context, job *models.PublishQueueJob) error {
	res := r.db.WithContext(ctx).
		Model(&models.PublishQueueJob{}).
		Where("id = ? AND status = ?", job.ID, models.QueueJobProcessing).
		Updates(map[string]any{
			"status":       job.Status,
			"outcomes":     job.Outcomes,
			"last_error":   job.LastError,
			"processed_at": job.ProcessedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("finish queue job %d: %w", job.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("finish queue job %d: job is not processing", job.ID)
	}
	return nil
}

func (r *queueJobRepository) ListByArticle(ctx context.Context, articleID uint) ([]models.PublishQueueJob, error) {
	var jobs []models.PublishQueueJob
	err := r.db.WithContext(ctx).
		Where("article_id = ?", articleID).
		Order("id desc").
		Find(&jobs).Error
	return jobs, err
}
