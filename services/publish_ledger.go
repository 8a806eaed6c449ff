package services

import (
	"context"
	"errors"
	"iter"
	"time"

	"cms-publisher/models"
	"cms-publisher/repositories"
)

const (
	retryPageSize = 50
	// claimLease is how long a PENDING retry claim may stay unanswered
	// before it is reported alongside exhausted failures.
	claimLease = 15 * time.Minute
)

// PublishLedger is the append-only history of publish attempts.
type PublishLedger interface {
	Record(ctx context.Context, record *models.PublishRecord) error
	// Claim appends a PENDING row superseding a failed record. It reports
	// false when another pass already claimed it or a newer attempt exists.
	Claim(ctx context.Context, claim *models.PublishRecord) (bool, error)
	// LatestFor returns nil when the pair has never been attempted.
	LatestFor(ctx context.Context, articleID uint, platform models.Platform) (*models.PublishRecord, error)
	ListForArticle(ctx context.Context, articleID uint) ([]models.PublishRecord, error)
	// FailedEligibleForRetry yields current transient failures with attempts
	// left. A maxAge <= 0 disables the age bound. Each range starts over.
	FailedEligibleForRetry(ctx context.Context, maxRetries int, maxAge time.Duration) iter.Seq2[models.PublishRecord, error]
	// Exhausted lists current records the retry pass will not pick up again,
	// using the same maxRetries and maxAge as FailedEligibleForRetry.
	Exhausted(ctx context.Context, userID uint, maxRetries int, maxAge time.Duration) ([]models.PublishRecord, error)
	CountPublishesSince(ctx context.Context, userID uint, since time.Time) (int64, error)
}

type publishLedger struct {
	repo repositories.PublishRecordRepository
	now  func() time.Time
}

func NewPublishLedger(repo repositories.PublishRecordRepository) PublishLedger {
	return &publishLedger{repo: repo, now: time.Now}
}

func (l *publishLedger) Record(ctx context.Context, record *models.PublishRecord) error {
	return l.repo.Create(ctx, record)
}

func (l *publishLedger) Claim(ctx context.Context, claim *models.PublishRecord) (bool, error) {
	claim.Status = models.PublishStatusPending
	return l.repo.Claim(ctx, claim)
}

func (l *publishLedger) LatestFor(ctx context.Context, articleID uint, platform models.Platform) (*models.PublishRecord, error) {
	record, err := l.repo.Latest(ctx, articleID, platform)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	return record, err
}

func (l *publishLedger) ListForArticle(ctx context.Context, articleID uint) ([]models.PublishRecord, error) {
	return l.repo.ListByArticle(ctx, articleID)
}

func (l *publishLedger) FailedEligibleForRetry(ctx context.Context, maxRetries int, maxAge time.Duration) iter.Seq2[models.PublishRecord, error] {
	return func(yield func(models.PublishRecord, error) bool) {
		q := repositories.RetryQuery{MaxRetries: maxRetries, Limit: retryPageSize}
		if maxAge > 0 {
			q.CreatedSince = l.now().UTC().Add(-maxAge)
		}

		for {
			page, err := l.repo.RetryCandidates(ctx, q)
			if err != nil {
				yield(models.PublishRecord{}, err)
				return
			}
			for _, record := range page {
				if !yield(record, nil) {
					return
				}
			}
			if len(page) < q.Limit {
				return
			}
			q.AfterID = page[len(page)-1].ID
		}
	}
}

func (l *publishLedger) Exhausted(ctx context.Context, userID uint, maxRetries int, maxAge time.Duration) ([]models.PublishRecord, error) {
	now := l.now().UTC()
	q := repositories.ExhaustedQuery{
		UserID:           userID,
		MaxRetries:       maxRetries,
		StaleClaimBefore: now.Add(-claimLease),
	}
	if maxAge > 0 {
		q.FailedBefore = now.Add(-maxAge)
	}
	return l.repo.Exhausted(ctx, q)
}

func (l *publishLedger) CountPublishesSince(ctx context.Context, userID uint, since time.Time) (int64, error) {
	return l.repo.CountSince(ctx, userID, since.UTC())
}
