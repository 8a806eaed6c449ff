package platforms

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"cms-publisher/models"
)

const devToMaxTags = 4

// DevToAdapter publishes Markdown articles through the Forem API.
type DevToAdapter struct {
	baseURL string
	api     apiClient
}

var _ Adapter = (*DevToAdapter)(nil)

func NewDevToAdapter(baseURL string, client *http.Client) *DevToAdapter {
	return &DevToAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		api:     newAPIClient(models.PlatformDevTo, client),
	}
}

func (a *DevToAdapter) Platform() models.Platform { return models.PlatformDevTo }

func (a *DevToAdapter) MaxTags() int { return devToMaxTags }

func (a *DevToAdapter) ValidateCredentials(ctx context.Context, creds models.Credentials) (AccountInfo, error) {
	key, err := requireAPIKey(a.Platform(), creds)
	if err != nil {
		return AccountInfo{}, err
	}

	var me struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	}
	if err := a.api.do(ctx, http.MethodGet, a.baseURL+"/users/me", a.header(key), nil, &me); err != nil {
		return AccountInfo{}, err
	}
	return AccountInfo{
		Username: me.Username,
		Site:     map[string]string{"user_id": strconv.FormatInt(me.ID, 10)},
	}, nil
}

func (a *DevToAdapter) Publish(ctx context.Context, article models.Article, creds models.Credentials, opts PublishOptions) (PostRef, error) {
	return a.send(ctx, http.MethodPost, a.baseURL+"/articles", article, creds, !opts.Draft)
}

func (a *DevToAdapter) UpdatePublished(ctx context.Context, article models.Article, creds models.Credentials, postID string) (PostRef, error) {
	return a.send(ctx, http.MethodPut, a.baseURL+"/articles/"+postID, article, creds, true)
}

type devToArticle struct {
	Title        string   `json:"title"`
	BodyMarkdown string   `json:"body_markdown"`
	Published    bool     `json:"published"`
	Tags         []string `json:"tags,omitempty"`
	Description  string   `json:"description,omitempty"`
	CanonicalURL string   `json:"canonical_url,omitempty"`
}

func (a *DevToAdapter) send(ctx context.Context, method, endpoint string, article models.Article, creds models.Credentials, published bool) (PostRef, error) {
	key, err := requireAPIKey(a.Platform(), creds)
	if err != nil {
		return PostRef{}, err
	}
	body, err := HTMLToMarkdown(article.Content)
	if err != nil {
		return PostRef{}, NewPermanentError(a.Platform(), "convert content to markdown", err)
	}

	payload := map[string]devToArticle{
		"article": {
			Title:        article.Title,
			BodyMarkdown: body,
			Published:    published,
			Tags:         TruncateTags(devToTags(article.Tags), devToMaxTags),
			Description:  article.Excerpt,
			CanonicalURL: article.CanonicalURL,
		},
	}

	var created struct {
		ID  int64  `json:"id"`
		URL string `json:"url"`
	}
	if err := a.api.do(ctx, method, endpoint, a.header(key), payload, &created); err != nil {
		return PostRef{}, err
	}
	ref := PostRef{URL: created.URL}
	if created.ID != 0 {
		ref.PostID = strconv.FormatInt(created.ID, 10)
	}
	return ref, nil
}

func (a *DevToAdapter) header(key models.APIKey) http.Header {
	h := http.Header{}
	h.Set("api-key", key.Key)
	return h
}

// devToTags lowercases tags and strips characters Forem rejects. Tags that
// end up empty are dropped rather than replaced, so order is preserved.
func devToTags(tags []string) []string {
	result := make([]string, 0, len(tags))
	for _, tag := range tags {
		cleaned := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return unicode.ToLower(r)
			}
			return -1
		}, tag)
		if cleaned != "" {
			result = append(result, cleaned)
		}
	}
	return result
}
