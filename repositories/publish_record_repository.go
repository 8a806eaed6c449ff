package repositories

import (
	"context"
	"fmt"
	"time"

	"cms-publisher/models"

	sq "github.com/Masterminds/squirrel"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RetryQuery selects one page of retry candidates in id order.
type RetryQuery struct {
	AfterID    uint
	MaxRetries int
	// CreatedSince bounds record age; zero disables the bound.
	CreatedSince time.Time
	Limit        int
}

// ExhaustedQuery selects a user's current records that the retry pass will
// not pick up again.
type ExhaustedQuery struct {
	UserID     uint
	MaxRetries int
	// FailedBefore surfaces transient failures older than the retry window;
	// zero disables it.
	FailedBefore time.Time
	// StaleClaimBefore surfaces PENDING rows whose retry never finished.
	StaleClaimBefore time.Time
}

type PublishRecordRepository interface {
	Create(ctx context.Context, record *models.PublishRecord) error
	// Claim appends claim only while *claim.SupersedesID is still the latest
	// row for its pair and no other row supersedes it.
	Claim(ctx context.Context, claim *models.PublishRecord) (bool, error)
	Latest(ctx context.Context, articleID uint, platform models.Platform) (*models.PublishRecord, error)
	ListByArticle(ctx context.Context, articleID uint) ([]models.PublishRecord, error)
	RetryCandidates(ctx context.Context, q RetryQuery) ([]models.PublishRecord, error)
	Exhausted(ctx context.Context, q ExhaustedQuery) ([]models.PublishRecord, error)
	CountSince(ctx context.Context, userID uint, since time.Time) (int64, error)
}

type publishRecordRepository struct {
	db *gorm.DB
	sb sq.StatementBuilderType
}

// NewPublishRecordRepository builds the ledger store. Hand-built queries use
// "?" placeholders; gorm rebinds them for the active dialect.
func NewPublishRecordRepository(db *gorm.DB) PublishRecordRepository {
	return &publishRecordRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
}

// Create appends a ledger row. Existing rows are never updated.
func (r *publishRecordRepository) Create(ctx context.Context, record *models.PublishRecord) error {
	record.ID = 0
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("insert publish record: %w", err)
	}
	return nil
}

func (r *publishRecordRepository) Claim(ctx context.Context, claim *models.PublishRecord) (bool, error) {
	if claim.SupersedesID == nil {
		return false, fmt.Errorf("claim for article %d has no superseded record", claim.ArticleID)
	}
	claim.ID = 0

	claimed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var newer int64
		err := tx.Model(&models.PublishRecord{}).
			Where("article_id = ? AND platform = ? AND id > ?", claim.ArticleID, claim.Platform, *claim.SupersedesID).
			Count(&newer).Error
		if err != nil {
			return err
		}
		if newer > 0 {
			return nil
		}

		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "supersedes_id"}},
			DoNothing: true,
		}).Create(claim)
		if result.Error != nil {
			return result.Error
		}
		claimed = result.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("claim publish record: %w", err)
	}
	return claimed, nil
}

func (r *publishRecordRepository) Latest(ctx context.Context, articleID uint, platform models.Platform) (*models.PublishRecord, error) {
	var record models.PublishRecord
	err := r.db.WithContext(ctx).
		Where("article_id = ? AND platform = ?", articleID, platform).
		Order("id desc").
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *publishRecordRepository) ListByArticle(ctx context.Context, articleID uint) ([]models.PublishRecord, error) {
	var records []models.PublishRecord
	err := r.db.WithContext(ctx).
		Where("article_id = ?", articleID).
		Order("id desc").
		Find(&records).Error
	return records, err
}

// latestOnly keeps rows that no newer attempt for the same pair supersedes.
func latestOnly() sq.Sqlizer {
	return sq.Expr(`NOT EXISTS (
		SELECT 1 FROM publish_records newer
		WHERE newer.article_id = pr.article_id
		  AND newer.platform = pr.platform
		  AND newer.id > pr.id)`)
}

func (r *publishRecordRepository) RetryCandidates(ctx context.Context, q RetryQuery) ([]models.PublishRecord, error) {
	if q.Limit <= 0 {
		q.Limit = 100
	}

	query := r.sb.
		Select("pr.*").
		From("publish_records pr").
		Where(sq.Eq{
			"pr.status":     models.PublishStatusFailed,
			"pr.error_kind": models.ErrorKindTransient,
		}).
		Where(sq.Lt{"pr.retry_count": q.MaxRetries}).
		Where(sq.Gt{"pr.id": q.AfterID}).
		Where(latestOnly()).
		OrderBy("pr.id ASC").
		Limit(uint64(q.Limit))
	if !q.CreatedSince.IsZero() {
		query = query.Where(sq.GtOrEq{"pr.created_at": q.CreatedSince})
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build retry candidates: %w", err)
	}

	var records []models.PublishRecord
	if err := r.db.WithContext(ctx).Raw(sqlStr, args...).Scan(&records).Error; err != nil {
		return nil, fmt.Errorf("query retry candidates: %w", err)
	}
	return records, nil
}

// Exhausted lists a user's current records that need attention: permanent
// failures, transient ones out of attempts or past the retry window, and
// claims whose retry never wrote an outcome.
func (r *publishRecordRepository) Exhausted(ctx context.Context, q ExhaustedQuery) ([]models.PublishRecord, error) {
	failed := sq.Or{
		sq.Eq{"pr.error_kind": models.ErrorKindPermanent},
		sq.GtOrEq{"pr.retry_count": q.MaxRetries},
	}
	if !q.FailedBefore.IsZero() {
		failed = append(failed, sq.Lt{"pr.created_at": q.FailedBefore})
	}
	selectors := sq.Or{
		sq.And{sq.Eq{"pr.status": models.PublishStatusFailed}, failed},
	}
	if !q.StaleClaimBefore.IsZero() {
		selectors = append(selectors, sq.And{
			sq.Eq{"pr.status": models.PublishStatusPending},
			sq.Lt{"pr.created_at": q.StaleClaimBefore},
		})
	}

	query := r.sb.
		Select("pr.*").
		From("publish_records pr").
		Join("articles a ON a.id = pr.article_id").
		Where(sq.Eq{
			"a.author_id":  q.UserID,
			"a.deleted_at": nil,
		}).
		Where(selectors).
		Where(latestOnly()).
		OrderBy("pr.id DESC")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build exhausted records: %w", err)
	}

	var records []models.PublishRecord
	if err := r.db.WithContext(ctx).Raw(sqlStr, args...).Scan(&records).Error; err != nil {
		return nil, fmt.Errorf("query exhausted records: %w", err)
	}
	return records, nil
}

// CountSince counts publish attempts on a user's articles, used for the
// monthly publish limit.
func (r *publishRecordRepository) CountSince(ctx context.Context, userID uint, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PublishRecord{}).
		Joins("JOIN articles ON articles.id = publish_records.article_id").
		Where("articles.author_id = ? AND publish_records.created_at >= ?", userID, since).
		Where("publish_records.operation = ? AND publish_records.retry_count = 0", models.OperationPublish).
		Count(&count).Error
	return count, err
}
