package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"cms-publisher/models"
	"cms-publisher/repositories"
)

type ArticleService interface {
	CreateArticle(req models.CreateArticleRequest, userID uint) (*models.Article, error)
	GetArticle(id uint, userID uint, isPublic bool) (*models.Article, error)
	// GetOwnedArticle loads an article the user is allowed to publish.
	GetOwnedArticle(id uint, userID uint) (*models.Article, error)
	GetArticles(params models.ArticleListParams, userID uint, isPublic bool) ([]models.Article, int64, error)
	UpdateArticle(id uint, req models.UpdateArticleRequest, userID uint) (*models.Article, error)
	DeleteArticle(id uint, userID uint) error
	// PublishToSite publishes on the built-in site only; no remote platform
	// is contacted and no ledger row is written.
	PublishToSite(ctx context.Context, id uint, userID uint) (*models.Article, error)
}

type articleService struct {
	articleRepo repositories.ArticleRepository
	tagService  TagService
	logger      *slog.Logger
	now         func() time.Time
}

func NewArticleService(articleRepo repositories.ArticleRepository, tagService TagService, logger *slog.Logger) ArticleService {
	if logger == nil {
		logger = slog.Default()
	}
	return &articleService{
		articleRepo: articleRepo,
		tagService:  tagService,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *articleService) CreateArticle(req models.CreateArticleRequest, userID uint) (*models.Article, error) {
	tags := normalizeTags(req.Tags)
	if err := s.tagService.EnsureTags(tags); err != nil {
		return nil, err
	}

	article := &models.Article{
		AuthorID:     userID,
		Title:        req.Title,
		Content:      req.Content,
		Excerpt:      req.Excerpt,
		CanonicalURL: req.CanonicalURL,
		Status:       models.ArticleStatusDraft,
		Tags:         tags,
	}
	if err := s.articleRepo.Create(article); err != nil {
		return nil, err
	}

	return s.articleRepo.GetByID(article.ID)
}

func (s *articleService) GetArticle(id uint, userID uint, isPublic bool) (*models.Article, error) {
	article, err := s.load(id)
	if err != nil {
		return nil, err
	}

	// drafts stay invisible on the public site
	if isPublic && !article.IsPublished() {
		return nil, ErrArticleNotFound
	}
	if !isPublic && article.AuthorID != userID {
		return nil, ErrUnauthorized
	}

	return article, nil
}

func (s *articleService) GetOwnedArticle(id uint, userID uint) (*models.Article, error) {
	return s.GetArticle(id, userID, false)
}

func (s *articleService) GetArticles(params models.ArticleListParams, userID uint, isPublic bool) ([]models.Article, int64, error) {
	if !isPublic {
		params.AuthorID = userID
	}
	return s.articleRepo.GetList(params, isPublic)
}

func (s *articleService) UpdateArticle(id uint, req models.UpdateArticleRequest, userID uint) (*models.Article, error) {
	article, err := s.GetOwnedArticle(id, userID)
	if err != nil {
		return nil, err
	}

	tags := normalizeTags(req.Tags)
	if err := s.tagService.EnsureTags(tags); err != nil {
		return nil, err
	}

	article.Title = req.Title
	article.Content = req.Content
	article.Excerpt = req.Excerpt
	article.CanonicalURL = req.CanonicalURL
	article.Tags = tags
	if err := s.articleRepo.UpdateContent(article); err != nil {
		return nil, err
	}

	if article.IsPublished() {
		s.recountTags()
	}
	return s.articleRepo.GetByID(id)
}

func (s *articleService) DeleteArticle(id uint, userID uint) error {
	article, err := s.GetOwnedArticle(id, userID)
	if err != nil {
		return err
	}

	if err := s.articleRepo.Delete(id); err != nil {
		return err
	}
	if article.IsPublished() {
		s.recountTags()
	}
	return nil
}

func (s *articleService) PublishToSite(ctx context.Context, id uint, userID uint) (*models.Article, error) {
	if _, err := s.GetOwnedArticle(id, userID); err != nil {
		return nil, err
	}

	promoted, err := s.articleRepo.PromoteToPublished(ctx, id, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if promoted {
		s.logger.Info("article published on site", "article_id", id)
		s.recountTags()
	}
	return s.articleRepo.GetByID(id)
}

func (s *articleService) load(id uint) (*models.Article, error) {
	article, err := s.articleRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrArticleNotFound
		}
		return nil, err
	}
	return article, nil
}

func (s *articleService) recountTags() {
	if err := s.tagService.RecountUsage(); err != nil {
		s.logger.Warn("recount tag usage", "error", err)
	}
}

// normalizeTags trims names, drops empties and repeats, and keeps order.
func normalizeTags(names []string) models.TagList {
	seen := make(map[string]struct{}, len(names))
	tags := make(models.TagList, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		tags = append(tags, name)
	}
	return tags
}
