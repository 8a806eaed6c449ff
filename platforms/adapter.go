package platforms

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"cms-publisher/models"
)

// AccountInfo describes the remote account behind validated credentials.
// Site entries are merged into the connection metadata and, for OAuth
// credentials, into the stored site attributes.
type AccountInfo struct {
	Username string
	Site     map[string]string
}

// PostRef identifies a post on the remote platform. PostID is "" when the
// platform returns none.
type PostRef struct {
	PostID string
	URL    string
}

type PublishOptions struct {
	Draft bool
}

// Adapter translates an article into one platform's API. Implementations
// hold no per-connection state; everything arrives with each call.
type Adapter interface {
	Platform() models.Platform
	// MaxTags is the number of tags the platform accepts, 0 for no limit.
	MaxTags() int
	ValidateCredentials(ctx context.Context, creds models.Credentials) (AccountInfo, error)
	Publish(ctx context.Context, article models.Article, creds models.Credentials, opts PublishOptions) (PostRef, error)
	UpdatePublished(ctx context.Context, article models.Article, creds models.Credentials, postID string) (PostRef, error)
}

// Refresher is implemented by OAuth platforms able to renew an access token.
type Refresher interface {
	Refresh(ctx context.Context, creds models.Credentials) (models.Credentials, error)
}

// Registry keeps a mapping from platforms to their adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.Platform]Adapter
}

// NewRegistry builds a registry pre-populated with the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: map[models.Platform]Adapter{}}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces an adapter implementation.
func (r *Registry) Register(adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.adapters == nil {
		r.adapters = map[models.Platform]Adapter{}
	}
	r.adapters[adapter.Platform()] = adapter
}

// Resolve returns the adapter for a platform or an error if it is absent.
func (r *Registry) Resolve(platform models.Platform) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if adapter, ok := r.adapters[platform]; ok {
		return adapter, nil
	}
	return nil, fmt.Errorf("platform %s is not registered", platform)
}

func (r *Registry) Platforms() []models.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]models.Platform, 0, len(r.adapters))
	for p := range r.adapters {
		result = append(result, p)
	}
	slices.Sort(result)
	return result
}

// TruncateTags keeps the first limit tags in their original order.
func TruncateTags(tags []string, limit int) []string {
	if limit <= 0 || len(tags) <= limit {
		return slices.Clone(tags)
	}
	return slices.Clone(tags[:limit])
}
