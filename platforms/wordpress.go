package platforms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"cms-publisher/models"
)

// WordPressAdapter publishes HTML posts to a WordPress.com site over the
// REST v1.1 API using an OAuth bearer token.
type WordPressAdapter struct {
	baseURL string
	app     OAuthApp
	api     apiClient
}

var (
	_ Adapter   = (*WordPressAdapter)(nil)
	_ Refresher = (*WordPressAdapter)(nil)
)

func NewWordPressAdapter(baseURL string, app OAuthApp, client *http.Client) *WordPressAdapter {
	return &WordPressAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		app:     app,
		api:     newAPIClient(models.PlatformWordPress, client),
	}
}

func (a *WordPressAdapter) Platform() models.Platform { return models.PlatformWordPress }

func (a *WordPressAdapter) MaxTags() int { return 0 }

func (a *WordPressAdapter) ValidateCredentials(ctx context.Context, creds models.Credentials) (AccountInfo, error) {
	pair, err := requireOAuth(a.Platform(), creds)
	if err != nil {
		return AccountInfo{}, err
	}

	var me struct {
		Username       string      `json:"username"`
		PrimaryBlog    json.Number `json:"primary_blog"`
		PrimaryBlogURL string      `json:"primary_blog_url"`
	}
	if err := a.api.do(ctx, http.MethodGet, a.baseURL+"/me", bearer(pair.AccessToken), nil, &me); err != nil {
		return AccountInfo{}, err
	}

	info := AccountInfo{Username: me.Username, Site: map[string]string{}}
	if pair.SiteValue("site_id") == "" && me.PrimaryBlog.String() != "" {
		info.Site["site_id"] = me.PrimaryBlog.String()
	}
	if me.PrimaryBlogURL != "" {
		info.Site["site_url"] = me.PrimaryBlogURL
	}
	return info, nil
}

type wordPressPost struct {
	ID  json.Number `json:"ID"`
	URL string      `json:"URL"`
}

func (a *WordPressAdapter) Publish(ctx context.Context, article models.Article, creds models.Credentials, opts PublishOptions) (PostRef, error) {
	status := "publish"
	if opts.Draft {
		status = "draft"
	}
	return a.send(ctx, "/posts/new", article, creds, status)
}

func (a *WordPressAdapter) UpdatePublished(ctx context.Context, article models.Article, creds models.Credentials, postID string) (PostRef, error) {
	return a.send(ctx, "/posts/"+url.PathEscape(postID), article, creds, "")
}

func (a *WordPressAdapter) Refresh(ctx context.Context, creds models.Credentials) (models.Credentials, error) {
	return refreshToken(ctx, a.api, a.app, creds, true)
}

func (a *WordPressAdapter) send(ctx context.Context, path string, article models.Article, creds models.Credentials, status string) (PostRef, error) {
	pair, err := requireOAuth(a.Platform(), creds)
	if err != nil {
		return PostRef{}, err
	}
	site := pair.SiteValue("site_id")
	if site == "" {
		return PostRef{}, NewPermanentError(a.Platform(), "no WordPress.com site is linked to this connection", nil)
	}

	payload := map[string]string{
		"title":   article.Title,
		"content": article.Content,
	}
	if status != "" {
		payload["status"] = status
	}
	if article.Excerpt != "" {
		payload["excerpt"] = article.Excerpt
	}
	if tags := TruncateTags(article.Tags, a.MaxTags()); len(tags) > 0 {
		payload["tags"] = strings.Join(tags, ",")
	}

	var post wordPressPost
	endpoint := a.baseURL + "/sites/" + url.PathEscape(site) + path
	if err := a.api.do(ctx, http.MethodPost, endpoint, bearer(pair.AccessToken), payload, &post); err != nil {
		return PostRef{}, err
	}
	ref := PostRef{URL: post.URL}
	if id := post.ID.String(); id != "" && id != "0" {
		ref.PostID = id
	}
	return ref, nil
}
