package models

import (
	"fmt"
	"time"
)

type CreateArticleRequest struct {
	Title        string   `json:"title" validate:"required,min=1,max=255"`
	Content      string   `json:"content" validate:"required"`
	Excerpt      string   `json:"excerpt" validate:"max=500"`
	CanonicalURL string   `json:"canonical_url" validate:"omitempty,url"`
	Tags         []string `json:"tags" validate:"max=20,dive,min=1,max=50"`
}

type UpdateArticleRequest struct {
	Title        string   `json:"title" validate:"required,min=1,max=255"`
	Content      string   `json:"content" validate:"required"`
	Excerpt      string   `json:"excerpt" validate:"max=500"`
	CanonicalURL string   `json:"canonical_url" validate:"omitempty,url"`
	Tags         []string `json:"tags" validate:"max=20,dive,min=1,max=50"`
}

type CreateTagRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

type ArticleListParams struct {
	Status    string `form:"status"`
	AuthorID  uint   `form:"author_id"`
	Tag       string `form:"tag"`
	Page      int    `form:"page,default=1"`
	Limit     int    `form:"limit,default=10"`
	SortBy    string `form:"sort_by,default=created_at"`
	SortOrder string `form:"sort_order,default=desc"`
}

// ConnectPlatformRequest carries either an API key or an OAuth token pair,
// depending on the platform.
type ConnectPlatformRequest struct {
	APIKey       string            `json:"api_key"`
	SiteURL      string            `json:"site_url" validate:"omitempty,url"`
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token"`
	ExpiresAt    *time.Time        `json:"expires_at"`
	Site         map[string]string `json:"site"`
}

// Credentials builds the credential union matching the fields provided.
func (r ConnectPlatformRequest) Credentials() (Credentials, error) {
	switch {
	case r.APIKey != "":
		return APIKey{Key: r.APIKey, SiteURL: r.SiteURL}, nil
	case r.AccessToken != "":
		return OAuthPair{
			AccessToken:  r.AccessToken,
			RefreshToken: r.RefreshToken,
			ExpiresAt:    r.ExpiresAt,
			Site:         r.Site,
		}, nil
	default:
		return nil, fmt.Errorf("either api_key or access_token is required")
	}
}

type PublishOneRequest struct {
	Draft bool `json:"draft"`
}

type PublishRequest struct {
	Platforms []string `json:"platforms" validate:"required,min=1,max=5"`
	Draft     bool     `json:"draft"`
}

type BulkPublishRequest struct {
	ArticleIDs []uint   `json:"article_ids" validate:"required,min=1,max=50"`
	Platforms  []string `json:"platforms" validate:"required,min=1,max=5"`
	Draft      bool     `json:"draft"`
}

type SchedulePublishRequest struct {
	Platforms  []string  `json:"platforms" validate:"required,min=1,max=5"`
	ScheduleAt time.Time `json:"schedule_at" validate:"required"`
	Draft      bool      `json:"draft"`
}

// PublishOutcome is the per-platform result of any publish-family call.
type PublishOutcome struct {
	Platform  Platform `json:"platform"`
	Success   bool     `json:"success"`
	PostID    string   `json:"postId,omitempty"`
	URL       string   `json:"url,omitempty"`
	Error     string   `json:"error,omitempty"`
	Retryable bool     `json:"retryable,omitempty"`
	Pending   bool     `json:"pending,omitempty"`
	RecordID  uint     `json:"recordId,omitempty"`
}

// ArticlePublishResult groups the outcomes of one article in a bulk publish.
type ArticlePublishResult struct {
	ArticleID uint             `json:"article_id"`
	Outcomes  []PublishOutcome `json:"outcomes"`
	Summary   PublishSummary   `json:"summary"`
	Error     string           `json:"error,omitempty"`
}

type PublishSummary struct {
	Succeeded int    `json:"succeeded"`
	Total     int    `json:"total"`
	Message   string `json:"message"`
}

// Summarize reports partial success explicitly, e.g. "1/2 succeeded".
func Summarize(outcomes []PublishOutcome) PublishSummary {
	succeeded := 0
	for _, o := range outcomes {
		if o.Success {
			succeeded++
		}
	}
	return PublishSummary{
		Succeeded: succeeded,
		Total:     len(outcomes),
		Message:   fmt.Sprintf("%d/%d succeeded", succeeded, len(outcomes)),
	}
}

// AllSucceeded is false for an empty slice.
func AllSucceeded(outcomes []PublishOutcome) bool {
	if len(outcomes) == 0 {
		return false
	}
	for _, o := range outcomes {
		if !o.Success {
			return false
		}
	}
	return true
}
