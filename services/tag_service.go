// services/tag_service.go
package services

import (
	"errors"

	"cms-publisher/models"
	"cms-publisher/repositories"
)

type TagService interface {
	CreateTag(req models.CreateTagRequest) (*models.Tag, error)
	GetTags() ([]models.Tag, error)
	GetTag(id uint) (*models.Tag, error)
	EnsureTags(names []string) error
	// RecountUsage sets each tag's usage count to the number of published
	// articles carrying it.
	RecountUsage() error
}

type tagService struct {
	tagRepo     repositories.TagRepository
	articleRepo repositories.ArticleRepository
}

func NewTagService(tagRepo repositories.TagRepository, articleRepo repositories.ArticleRepository) TagService {
	return &tagService{
		tagRepo:     tagRepo,
		articleRepo: articleRepo,
	}
}

func (s *tagService) CreateTag(req models.CreateTagRequest) (*models.Tag, error) {
	// Check if tag already exists
	_, err := s.tagRepo.GetByName(req.Name)
	if err == nil {
		return nil, ErrTagExists
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	tag := &models.Tag{Name: req.Name}
	if err := s.tagRepo.Create(tag); err != nil {
		return nil, err
	}

	return tag, nil
}

func (s *tagService) GetTags() ([]models.Tag, error) {
	return s.tagRepo.GetAll()
}

func (s *tagService) GetTag(id uint) (*models.Tag, error) {
	tag, err := s.tagRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrTagNotFound
		}
		return nil, err
	}
	return tag, nil
}

func (s *tagService) EnsureTags(names []string) error {
	return s.tagRepo.EnsureNames(names)
}

func (s *tagService) RecountUsage() error {
	counts, err := s.articleRepo.CountPublishedByTag()
	if err != nil {
		return err
	}
	return s.tagRepo.SetUsageCounts(counts)
}
