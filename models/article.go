package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ArticleStatus string

const (
	ArticleStatusDraft     ArticleStatus = "DRAFT"
	ArticleStatusPublished ArticleStatus = "PUBLISHED"
	ArticleStatusScheduled ArticleStatus = "SCHEDULED"
)

type Article struct {
	ID           uint           `json:"id" gorm:"primarykey"`
	AuthorID     uint           `json:"author_id" gorm:"not null;index"`
	Author       User           `json:"author" gorm:"foreignKey:AuthorID"`
	Title        string         `json:"title" gorm:"not null"`
	Content      string         `json:"content" gorm:"type:text"`
	Excerpt      string         `json:"excerpt" gorm:"type:text"`
	CanonicalURL string         `json:"canonical_url"`
	Status       ArticleStatus  `json:"status" gorm:"type:varchar(16);default:'DRAFT';index"`
	PublishedAt  *time.Time     `json:"published_at"`
	Tags         TagList        `json:"tags"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
}

// TagList keeps the author's tag order, which adapters rely on when a
// platform only accepts the first few tags.
type TagList = datatypes.JSONSlice[string]

func (a *Article) IsPublished() bool {
	return a.Status == ArticleStatusPublished
}
