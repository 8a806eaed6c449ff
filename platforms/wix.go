package platforms

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"cms-publisher/models"
)

const wixMaxHashtags = 30

// WixAdapter publishes to a Wix Blog through draft posts; rich content is
// sent as Ricos nodes built from the article HTML.
type WixAdapter struct {
	baseURL string
	app     OAuthApp
	api     apiClient
}

var (
	_ Adapter   = (*WixAdapter)(nil)
	_ Refresher = (*WixAdapter)(nil)
)

func NewWixAdapter(baseURL string, app OAuthApp, client *http.Client) *WixAdapter {
	return &WixAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		app:     app,
		api:     newAPIClient(models.PlatformWix, client),
	}
}

func (a *WixAdapter) Platform() models.Platform { return models.PlatformWix }

func (a *WixAdapter) MaxTags() int { return wixMaxHashtags }

func (a *WixAdapter) ValidateCredentials(ctx context.Context, creds models.Credentials) (AccountInfo, error) {
	pair, err := requireOAuth(a.Platform(), creds)
	if err != nil {
		return AccountInfo{}, err
	}

	var resp struct {
		Properties struct {
			SiteDisplayName string `json:"siteDisplayName"`
			Email           string `json:"email"`
		} `json:"properties"`
	}
	if err := a.api.do(ctx, http.MethodGet, a.baseURL+"/site-properties/v4/properties", bearer(pair.AccessToken), nil, &resp); err != nil {
		return AccountInfo{}, err
	}
	return AccountInfo{
		Username: resp.Properties.SiteDisplayName,
		Site:     map[string]string{"site_name": resp.Properties.SiteDisplayName},
	}, nil
}

type wixDraftPost struct {
	ID          string        `json:"id,omitempty"`
	Title       string        `json:"title"`
	Excerpt     string        `json:"excerpt,omitempty"`
	RichContent ricosDocument `json:"richContent"`
	Hashtags    []string      `json:"hashtags,omitempty"`
}

type wixDraftResponse struct {
	DraftPost struct {
		ID  string `json:"id"`
		URL struct {
			Base string `json:"base"`
			Path string `json:"path"`
		} `json:"url"`
	} `json:"draftPost"`
}

func (a *WixAdapter) Publish(ctx context.Context, article models.Article, creds models.Credentials, opts PublishOptions) (PostRef, error) {
	pair, err := requireOAuth(a.Platform(), creds)
	if err != nil {
		return PostRef{}, err
	}
	draft, err := a.draft(article)
	if err != nil {
		return PostRef{}, err
	}

	payload := map[string]any{
		"draftPost": draft,
		"publish":   !opts.Draft,
		"fieldsets": []string{"URL"},
	}
	var resp wixDraftResponse
	if err := a.api.do(ctx, http.MethodPost, a.baseURL+"/blog/v3/draft-posts", bearer(pair.AccessToken), payload, &resp); err != nil {
		return PostRef{}, err
	}
	return a.ref(resp), nil
}

func (a *WixAdapter) UpdatePublished(ctx context.Context, article models.Article, creds models.Credentials, postID string) (PostRef, error) {
	pair, err := requireOAuth(a.Platform(), creds)
	if err != nil {
		return PostRef{}, err
	}
	draft, err := a.draft(article)
	if err != nil {
		return PostRef{}, err
	}
	draft.ID = postID

	payload := map[string]any{
		"draftPost": draft,
		"action":    "UPDATE_PUBLISH",
		"fieldsets": []string{"URL"},
	}
	var resp wixDraftResponse
	endpoint := a.baseURL + "/blog/v3/draft-posts/" + url.PathEscape(postID)
	if err := a.api.do(ctx, http.MethodPatch, endpoint, bearer(pair.AccessToken), payload, &resp); err != nil {
		return PostRef{}, err
	}
	return a.ref(resp), nil
}

func (a *WixAdapter) Refresh(ctx context.Context, creds models.Credentials) (models.Credentials, error) {
	return refreshToken(ctx, a.api, a.app, creds, false)
}

func (a *WixAdapter) draft(article models.Article) (wixDraftPost, error) {
	content, err := htmlToRicos(article.Content)
	if err != nil {
		return wixDraftPost{}, NewPermanentError(a.Platform(), "convert content to rich content", err)
	}
	return wixDraftPost{
		Title:       article.Title,
		Excerpt:     article.Excerpt,
		RichContent: content,
		Hashtags:    TruncateTags(article.Tags, wixMaxHashtags),
	}, nil
}

func (a *WixAdapter) ref(resp wixDraftResponse) PostRef {
	ref := PostRef{PostID: resp.DraftPost.ID}
	if resp.DraftPost.URL.Base != "" {
		ref.URL = strings.TrimRight(resp.DraftPost.URL.Base, "/") + resp.DraftPost.URL.Path
	}
	return ref
}
