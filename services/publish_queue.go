package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cms-publisher/metrics"
	"cms-publisher/models"
	"cms-publisher/platforms"
	"cms-publisher/repositories"
)

const dueBatchSize = 100

// ProcessReport summarises one ProcessDue pass.
type ProcessReport struct {
	Due       int    `json:"due"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	JobIDs    []uint `json:"job_ids"`
}

// RetryReport summarises one RetryFailed pass.
type RetryReport struct {
	Examined  int `json:"examined"`
	Retried   int `json:"retried"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	NotDue    int `json:"not_due"`
	// Skipped counts records another pass claimed first.
	Skipped   int `json:"skipped"`
	Exhausted int `json:"exhausted"`
}

// QueueConfig controls retry timing.
type QueueConfig struct {
	MaxRetryAge    time.Duration
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// PublishQueue holds deferred publishes and replays transient failures.
type PublishQueue interface {
	Enqueue(ctx context.Context, userID, articleID uint, targets []models.Platform, scheduleAt time.Time, draft bool) (*models.PublishQueueJob, error)
	ListJobs(ctx context.Context, articleID uint) ([]models.PublishQueueJob, error)
	ProcessDue(ctx context.Context) (ProcessReport, error)
	RetryFailed(ctx context.Context, maxRetries int) (RetryReport, error)
}

type publishQueue struct {
	jobs         repositories.QueueJobRepository
	articles     repositories.ArticleRepository
	registry     *platforms.Registry
	ledger       PublishLedger
	orchestrator PublishOrchestrator
	cfg          QueueConfig
	logger       *slog.Logger
	now          func() time.Time
}

func NewPublishQueue(
	jobs repositories.QueueJobRepository,
	articles repositories.ArticleRepository,
	registry *platforms.Registry,
	ledger PublishLedger,
	orchestrator PublishOrchestrator,
	cfg QueueConfig,
	logger *slog.Logger,
) PublishQueue {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RetryBaseDelay < 0 {
		cfg.RetryBaseDelay = 0
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = time.Hour
	}
	return &publishQueue{
		jobs:         jobs,
		articles:     articles,
		registry:     registry,
		ledger:       ledger,
		orchestrator: orchestrator,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
	}
}

// Enqueue accepts a scheduleAt in the past; such a job runs on the next poll.
func (q *publishQueue) Enqueue(ctx context.Context, userID, articleID uint, targets []models.Platform, scheduleAt time.Time, draft bool) (*models.PublishQueueJob, error) {
	targets = uniquePlatforms(targets)
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no platforms requested", ErrInvalidInput)
	}
	for _, p := range targets {
		if _, err := q.registry.Resolve(p); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, p)
		}
	}

	article, err := q.articles.GetByID(articleID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrArticleNotFound
		}
		return nil, err
	}
	if article.AuthorID != userID {
		return nil, ErrUnauthorized
	}

	job := &models.PublishQueueJob{
		ArticleID:  articleID,
		UserID:     userID,
		Platforms:  targets,
		Draft:      draft,
		ScheduleAt: scheduleAt.UTC(),
		Status:     models.QueueJobPending,
	}
	if err := q.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	if _, err := q.articles.MarkScheduled(ctx, articleID); err != nil {
		q.logger.Warn("mark article scheduled", "article_id", articleID, "error", err)
	}

	q.logger.Info("publish scheduled", "job_id", job.ID, "article_id", articleID, "schedule_at", job.ScheduleAt, "platforms", targets)
	return job, nil
}

func (q *publishQueue) ListJobs(ctx context.Context, articleID uint) ([]models.PublishQueueJob, error) {
	return q.jobs.ListByArticle(ctx, articleID)
}

func (q *publishQueue) ProcessDue(ctx context.Context) (ProcessReport, error) {
	report := ProcessReport{JobIDs: []uint{}}

	ids, err := q.jobs.DueIDs(ctx, q.now().UTC(), dueBatchSize)
	if err != nil {
		return report, fmt.Errorf("load due jobs: %w", err)
	}
	report.Due = len(ids)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		claimed, err := q.jobs.Claim(ctx, id)
		if err != nil {
			return report, err
		}
		if !claimed {
			report.Skipped++
			continue
		}

		status, err := q.processJob(ctx, id)
		if err != nil {
			q.logger.Error("process queue job", "job_id", id, "error", err)
		}
		report.JobIDs = append(report.JobIDs, id)
		if status == models.QueueJobCompleted {
			report.Completed++
		} else {
			report.Failed++
		}
	}

	if report.Due > 0 {
		q.logger.Info("queue processed", "due", report.Due, "completed", report.Completed, "failed", report.Failed, "skipped", report.Skipped)
	}
	return report, nil
}

// processJob runs a claimed job and stores its terminal status.
func (q *publishQueue) processJob(ctx context.Context, id uint) (models.QueueJobStatus, error) {
	job, err := q.jobs.GetByID(ctx, id)
	if err != nil {
		return models.QueueJobFailed, err
	}

	var outcomes []models.PublishOutcome
	article, err := q.articles.GetByID(job.ArticleID)
	if err == nil {
		outcomes, err = q.orchestrator.PublishToMultiple(ctx, article, job.UserID, job.Platforms, platforms.PublishOptions{Draft: job.Draft})
	}

	processedAt := q.now().UTC()
	job.ProcessedAt = &processedAt
	job.Outcomes = outcomes
	switch {
	case err != nil:
		job.Status = models.QueueJobFailed
		job.LastError = err.Error()
	case models.AllSucceeded(outcomes):
		job.Status = models.QueueJobCompleted
	default:
		job.Status = models.QueueJobFailed
		job.LastError = models.Summarize(outcomes).Message
	}

	metrics.IncQueueJob(job.Status)
	if finishErr := q.jobs.Finish(ctx, job); finishErr != nil {
		return job.Status, finishErr
	}
	return job.Status, err
}

func (q *publishQueue) RetryFailed(ctx context.Context, maxRetries int) (RetryReport, error) {
	var report RetryReport
	now := q.now().UTC()

	for record, err := range q.ledger.FailedEligibleForRetry(ctx, maxRetries, q.cfg.MaxRetryAge) {
		if err != nil {
			return report, fmt.Errorf("load retry candidates: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Examined++

		// retries append rows with higher ids, so a pair can surface again
		// later in the same pass; the backoff keeps it from running twice
		if record.CreatedAt.Add(q.backoff(record.RetryCount)).After(now) {
			report.NotDue++
			continue
		}

		outcome, err := q.orchestrator.RetryRecord(ctx, record)
		if errors.Is(err, ErrRetryInProgress) {
			report.Skipped++
			continue
		}
		report.Retried++
		metrics.IncRetry()
		switch {
		case err != nil:
			report.Failed++
			q.logger.Warn("retry not claimed", "record_id", record.ID, "article_id", record.ArticleID, "platform", record.Platform, "error", err)
		case outcome.Success:
			report.Succeeded++
		default:
			report.Failed++
			if !outcome.Retryable || record.RetryCount+1 >= maxRetries {
				report.Exhausted++
				metrics.IncRetryExhausted()
				q.logger.Warn("publish retries exhausted",
					"article_id", record.ArticleID,
					"platform", record.Platform,
					"attempts", record.RetryCount+2,
					"error", outcome.Error)
			}
		}
	}

	if report.Examined > 0 {
		q.logger.Info("retry pass finished",
			"examined", report.Examined,
			"retried", report.Retried,
			"succeeded", report.Succeeded,
			"not_due", report.NotDue,
			"skipped", report.Skipped,
			"exhausted", report.Exhausted)
	}
	return report, nil
}

// backoff is base * 2^n, capped at the configured maximum.
func (q *publishQueue) backoff(retryCount int) time.Duration {
	delay := q.cfg.RetryBaseDelay
	for range retryCount {
		if delay >= q.cfg.RetryMaxDelay {
			break
		}
		delay *= 2
	}
	return min(delay, q.cfg.RetryMaxDelay)
}
