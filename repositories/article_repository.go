package repositories

import (
	"context"
	"fmt"
	"time"

	"cms-publisher/models"

	"gorm.io/gorm"
)

type ArticleRepository interface {
	Create(article *models.Article) error
	GetByID(id uint) (*models.Article, error)
	GetList(params models.ArticleListParams, isPublic bool) ([]models.Article, int64, error)
	UpdateContent(article *models.Article) error
	Delete(id uint) error
	PromoteToPublished(ctx context.Context, id uint, at time.Time) (bool, error)
	MarkScheduled(ctx context.Context, id uint) (bool, error)
	CountPublishedByTag() (map[string]int, error)
}

type articleRepository struct {
	db *gorm.DB
}

func NewArticleRepository(db *gorm.DB) ArticleRepository {
	return &articleRepository{db: db}
}

var articleSortColumns = map[string]string{
	"created_at":   "articles.created_at",
	"updated_at":   "articles.updated_at",
	"published_at": "articles.published_at",
	"title":        "articles.title",
}

func (r *articleRepository) Create(article *models.Article) error {
	return r.db.Omit("Author").Create(article).Error
}

func (r *articleRepository) GetByID(id uint) (*models.Article, error) {
	var article models.Article
	err := r.db.Preload("Author").First(&article, id).Error
	return &article, err
}

func (r *articleRepository) GetList(params models.ArticleListParams, isPublic bool) ([]models.Article, int64, error) {
	var articles []models.Article
	var total int64

	query := r.db.Model(&models.Article{}).Preload("Author")

	if isPublic {
		query = query.Where("articles.status = ?", models.ArticleStatusPublished)
	} else if params.Status != "" {
		query = query.Where("articles.status = ?", params.Status)
	}

	if params.AuthorID > 0 {
		query = query.Where("articles.author_id = ?", params.AuthorID)
	}

	// tags is a JSON array of names; match the quoted element.
	if params.Tag != "" {
		query = query.Where("CAST(articles.tags AS TEXT) LIKE ?", fmt.Sprintf("%%%q%%", params.Tag))
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	sortBy, ok := articleSortColumns[params.SortBy]
	if !ok {
		sortBy = articleSortColumns["created_at"]
	}
	sortOrder := "desc"
	if params.SortOrder == "asc" {
		sortOrder = "asc"
	}
	query = query.Order(fmt.Sprintf("%s %s", sortBy, sortOrder)).Order("articles.id " + sortOrder)

	if params.Page < 1 {
		params.Page = 1
	}
	if params.Limit < 1 {
		params.Limit = 10
	}
	offset := (params.Page - 1) * params.Limit
	err := query.Offset(offset).Limit(params.Limit).Find(&articles).Error

	return articles, total, err
}

// UpdateContent writes the editable fields only, so an edit racing with a
// publish never overwrites status or published_at.
func (r *articleRepository) UpdateContent(article *models.Article) error {
	return r.db.Model(article).
		Select("title", "content", "excerpt", "canonical_url", "tags").
		Updates(article).Error
}

func (r *articleRepository) Delete(id uint) error {
	return r.db.Delete(&models.Article{}, id).Error
}

// PromoteToPublished is a one-way compare-and-set: it only touches rows that
// are not yet PUBLISHED and never overwrites an existing published_at.
// It reports whether this call performed the promotion.
func (r *articleRepository) PromoteToPublished(ctx context.Context, id uint, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Article{}).
		Where("id = ? AND status <> ?", id, models.ArticleStatusPublished).
		Updates(map[string]any{
			"status":       models.ArticleStatusPublished,
			"published_at": gorm.Expr("COALESCE(published_at, ?)", at),
		})
	if res.Error != nil {
		return false, fmt.Errorf("promote article %d: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MarkScheduled moves a DRAFT article to SCHEDULED; other states are left alone.
func (r *articleRepository) MarkScheduled(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Article{}).
		Where("id = ? AND status = ?", id, models.ArticleStatusDraft).
		Update("status", models.ArticleStatusScheduled)
	if res.Error != nil {
		return false, fmt.Errorf("schedule article %d: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *articleRepository) CountPublishedByTag() (map[string]int, error) {
	var tagLists []models.TagList
	err := r.db.Model(&models.Article{}).
		Where("status = ?", models.ArticleStatusPublished).
		Pluck("tags", &tagLists).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, tags := range tagLists {
		for _, name := range tags {
			counts[name]++
		}
	}
	return counts, nil
}
