package models

import "time"

type PublishStatus string

const (
	PublishStatusPublished PublishStatus = "PUBLISHED"
	PublishStatusFailed    PublishStatus = "FAILED"
	PublishStatusPending   PublishStatus = "PENDING"
)

// ErrorKind classifies a failed attempt at write time.
type ErrorKind string

const (
	ErrorKindNone      ErrorKind = ""
	ErrorKindTransient ErrorKind = "transient"
	ErrorKindPermanent ErrorKind = "permanent"
)

type PublishOperation string

const (
	OperationPublish PublishOperation = "publish"
	OperationUpdate  PublishOperation = "update"
)

// PublishRecord is one ledger row: a single attempt to publish (or update)
// an article on one platform. Rows are appended, never modified; the row
// with the highest ID for (article, platform) is the current state.
//
// A PENDING row marks a retry in flight. It names the failed row it
// replaces in SupersedesID, and at most one row may supersede a given row.
type PublishRecord struct {
	ID                   uint             `json:"id" gorm:"primarykey"`
	ArticleID            uint             `json:"article_id" gorm:"not null;index:idx_publish_records_article_platform,priority:1"`
	PlatformConnectionID uint             `json:"platform_connection_id" gorm:"not null;index"`
	Platform             Platform         `json:"platform" gorm:"type:varchar(16);not null;index:idx_publish_records_article_platform,priority:2"`
	Operation            PublishOperation `json:"operation" gorm:"type:varchar(16);not null;default:'publish'"`
	Draft                bool             `json:"draft"`
	PlatformPostID       string           `json:"platform_post_id"`
	URL                  string           `json:"url"`
	Status               PublishStatus    `json:"status" gorm:"type:varchar(16);not null;index"`
	ErrorKind            ErrorKind        `json:"error_kind,omitempty" gorm:"type:varchar(16)"`
	LastError            string           `json:"last_error,omitempty" gorm:"type:text"`
	RetryCount           int              `json:"retry_count" gorm:"not null;default:0"`
	BatchID              string           `json:"batch_id" gorm:"type:varchar(36);index"`
	SupersedesID         *uint            `json:"supersedes_id,omitempty" gorm:"uniqueIndex"`
	PublishedAt          *time.Time       `json:"published_at"`
	CreatedAt            time.Time        `json:"created_at" gorm:"index"`
}

func (r *PublishRecord) IsLive() bool {
	return r.Status == PublishStatusPublished && r.PlatformPostID != ""
}
