package repositories

import (
	"cms-publisher/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TagRepository interface {
	Create(tag *models.Tag) error
	EnsureNames(names []string) error
	GetByName(name string) (*models.Tag, error)
	GetByID(id uint) (*models.Tag, error)
	GetAll() ([]models.Tag, error)
	SetUsageCounts(counts map[string]int) error
}

type tagRepository struct {
	db *gorm.DB
}

func NewTagRepository(db *gorm.DB) TagRepository {
	return &tagRepository{db: db}
}

func (r *tagRepository) Create(tag *models.Tag) error {
	return r.db.Create(tag).Error
}

// EnsureNames inserts any tag names that do not exist yet.
func (r *tagRepository) EnsureNames(names []string) error {
	if len(names) == 0 {
		return nil
	}
	tags := make([]models.Tag, 0, len(names))
	for _, name := range names {
		tags = append(tags, models.Tag{Name: name})
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&tags).Error
}

func (r *tagRepository) GetByName(name string) (*models.Tag, error) {
	var tag models.Tag
	err := r.db.Where("name = ?", name).First(&tag).Error
	return &tag, err
}

func (r *tagRepository) GetByID(id uint) (*models.Tag, error) {
	var tag models.Tag
	err := r.db.First(&tag, id).Error
	return &tag, err
}

func (r *tagRepository) GetAll() ([]models.Tag, error) {
	var tags []models.Tag
	err := r.db.Order("usage_count desc").Order("name asc").Find(&tags).Error
	return tags, err
}

// SetUsageCounts stores counts for the given names and zeroes every other tag.
func (r *tagRepository) SetUsageCounts(counts map[string]int) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Tag{}).Where("usage_count <> 0").Update("usage_count", 0).Error; err != nil {
			return err
		}
		for name, count := range counts {
			if err := tx.Model(&models.Tag{}).Where("name = ?", name).Update("usage_count", count).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
