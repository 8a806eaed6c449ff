package platforms

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cms-publisher/models"

	"github.com/golang-jwt/jwt/v4"
)

const ghostTokenTTL = 5 * time.Minute

// GhostAdapter talks to a self-hosted Ghost Admin API. The admin key has the
// form "id:secret"; each call signs a short-lived token with it.
type GhostAdapter struct {
	api apiClient
	now func() time.Time
}

var _ Adapter = (*GhostAdapter)(nil)

func NewGhostAdapter(client *http.Client) *GhostAdapter {
	return &GhostAdapter{
		api: newAPIClient(models.PlatformGhost, client),
		now: time.Now,
	}
}

func (a *GhostAdapter) Platform() models.Platform { return models.PlatformGhost }

func (a *GhostAdapter) MaxTags() int { return 0 }

func (a *GhostAdapter) ValidateCredentials(ctx context.Context, creds models.Credentials) (AccountInfo, error) {
	key, header, err := a.authorize(creds)
	if err != nil {
		return AccountInfo{}, err
	}

	var resp struct {
		Site struct {
			Title string `json:"title"`
			URL   string `json:"url"`
		} `json:"site"`
	}
	if err := a.api.do(ctx, http.MethodGet, adminURL(key, "/site/"), header, nil, &resp); err != nil {
		return AccountInfo{}, err
	}
	siteURL := resp.Site.URL
	if siteURL == "" {
		siteURL = key.SiteURL
	}
	return AccountInfo{
		Username: resp.Site.Title,
		Site:     map[string]string{"site_url": siteURL},
	}, nil
}

type ghostPost struct {
	ID            string   `json:"id,omitempty"`
	Title         string   `json:"title"`
	HTML          string   `json:"html"`
	Status        string   `json:"status,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	CustomExcerpt string   `json:"custom_excerpt,omitempty"`
	CanonicalURL  string   `json:"canonical_url,omitempty"`
	UpdatedAt     string   `json:"updated_at,omitempty"`
	URL           string   `json:"url,omitempty"`
}

type ghostPosts struct {
	Posts []ghostPost `json:"posts"`
}

func (a *GhostAdapter) Publish(ctx context.Context, article models.Article, creds models.Credentials, opts PublishOptions) (PostRef, error) {
	key, header, err := a.authorize(creds)
	if err != nil {
		return PostRef{}, err
	}

	post := a.post(article)
	post.Status = "published"
	if opts.Draft {
		post.Status = "draft"
	}

	var resp ghostPosts
	endpoint := adminURL(key, "/posts/") + "?source=html"
	if err := a.api.do(ctx, http.MethodPost, endpoint, header, ghostPosts{Posts: []ghostPost{post}}, &resp); err != nil {
		return PostRef{}, err
	}
	return a.ref(resp)
}

// UpdatePublished reads the post first: Ghost rejects edits whose
// updated_at does not match the stored one.
func (a *GhostAdapter) UpdatePublished(ctx context.Context, article models.Article, creds models.Credentials, postID string) (PostRef, error) {
	key, header, err := a.authorize(creds)
	if err != nil {
		return PostRef{}, err
	}

	var current ghostPosts
	if err := a.api.do(ctx, http.MethodGet, adminURL(key, "/posts/"+postID+"/"), header, nil, &current); err != nil {
		return PostRef{}, err
	}
	if len(current.Posts) == 0 {
		return PostRef{}, NewPermanentError(a.Platform(), "post "+postID+" no longer exists", nil)
	}

	post := a.post(article)
	post.UpdatedAt = current.Posts[0].UpdatedAt

	var resp ghostPosts
	endpoint := adminURL(key, "/posts/"+postID+"/") + "?source=html"
	if err := a.api.do(ctx, http.MethodPut, endpoint, header, ghostPosts{Posts: []ghostPost{post}}, &resp); err != nil {
		return PostRef{}, err
	}
	return a.ref(resp)
}

func (a *GhostAdapter) post(article models.Article) ghostPost {
	return ghostPost{
		Title:         article.Title,
		HTML:          article.Content,
		Tags:          TruncateTags(article.Tags, a.MaxTags()),
		CustomExcerpt: article.Excerpt,
		CanonicalURL:  article.CanonicalURL,
	}
}

func (a *GhostAdapter) ref(resp ghostPosts) (PostRef, error) {
	if len(resp.Posts) == 0 {
		return PostRef{}, NewTransientError(a.Platform(), "empty response from Ghost", nil)
	}
	return PostRef{PostID: resp.Posts[0].ID, URL: resp.Posts[0].URL}, nil
}

func (a *GhostAdapter) authorize(creds models.Credentials) (models.APIKey, http.Header, error) {
	key, err := requireAPIKey(a.Platform(), creds)
	if err != nil {
		return models.APIKey{}, nil, err
	}
	if key.SiteURL == "" {
		return models.APIKey{}, nil, NewPermanentError(a.Platform(), "ghost site url is required", nil)
	}
	token, err := a.adminToken(key.Key)
	if err != nil {
		return models.APIKey{}, nil, err
	}
	h := http.Header{}
	h.Set("Authorization", "Ghost "+token)
	h.Set("Accept-Version", "v5.0")
	return key, h, nil
}

// adminToken signs the HS256 token Ghost expects: kid header set to the key
// id, audience "/admin/", lifetime of a few minutes.
func (a *GhostAdapter) adminToken(adminKey string) (string, error) {
	id, secretHex, ok := strings.Cut(adminKey, ":")
	if !ok || id == "" || secretHex == "" {
		return "", &AuthError{Platform: a.Platform(), Message: "admin api key must have the form id:secret"}
	}
	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return "", &AuthError{Platform: a.Platform(), Message: "admin api key secret is not hex encoded"}
	}

	now := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ghostTokenTTL)),
		Audience:  jwt.ClaimStrings{"/admin/"},
	})
	token.Header["kid"] = id

	signed, err := token.SignedString(secret)
	if err != nil {
		return "", NewPermanentError(a.Platform(), "sign admin token", fmt.Errorf("sign token: %w", err))
	}
	return signed, nil
}

func adminURL(key models.APIKey, path string) string {
	return strings.TrimRight(key.SiteURL, "/") + "/ghost/api/admin" + path
}
