package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"cms-publisher/models"
)

const hashnodeMaxTags = 5

// HashnodeAdapter publishes Markdown posts through Hashnode's GraphQL API
// into the first publication owned by the token holder.
type HashnodeAdapter struct {
	endpoint string
	api      apiClient
}

var _ Adapter = (*HashnodeAdapter)(nil)

func NewHashnodeAdapter(endpoint string, client *http.Client) *HashnodeAdapter {
	return &HashnodeAdapter{
		endpoint: strings.TrimRight(endpoint, "/"),
		api:      newAPIClient(models.PlatformHashnode, client),
	}
}

func (a *HashnodeAdapter) Platform() models.Platform { return models.PlatformHashnode }

func (a *HashnodeAdapter) MaxTags() int { return hashnodeMaxTags }

const hashnodeMeQuery = `query Me {
  me {
    username
    publications(first: 1) { edges { node { id url } } }
  }
}`

type hashnodeMe struct {
	Me struct {
		Username     string `json:"username"`
		Publications struct {
			Edges []struct {
				Node struct {
					ID  string `json:"id"`
					URL string `json:"url"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"publications"`
	} `json:"me"`
}

func (a *HashnodeAdapter) ValidateCredentials(ctx context.Context, creds models.Credentials) (AccountInfo, error) {
	key, err := requireAPIKey(a.Platform(), creds)
	if err != nil {
		return AccountInfo{}, err
	}

	var me hashnodeMe
	if err := a.graphql(ctx, key, hashnodeMeQuery, nil, &me); err != nil {
		return AccountInfo{}, err
	}
	info := AccountInfo{Username: me.Me.Username, Site: map[string]string{}}
	if edges := me.Me.Publications.Edges; len(edges) > 0 {
		info.Site["publication_id"] = edges[0].Node.ID
		info.Site["site_url"] = edges[0].Node.URL
	}
	return info, nil
}

const hashnodePublishMutation = `mutation PublishPost($input: PublishPostInput!) {
  publishPost(input: $input) { post { id url } }
}`

const hashnodeDraftMutation = `mutation CreateDraft($input: CreateDraftInput!) {
  createDraft(input: $input) { draft { id } }
}`

const hashnodeUpdateMutation = `mutation UpdatePost($input: UpdatePostInput!) {
  updatePost(input: $input) { post { id url } }
}`

type hashnodeTag struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

func (a *HashnodeAdapter) Publish(ctx context.Context, article models.Article, creds models.Credentials, opts PublishOptions) (PostRef, error) {
	key, err := requireAPIKey(a.Platform(), creds)
	if err != nil {
		return PostRef{}, err
	}
	publicationID, err := a.publicationID(ctx, key)
	if err != nil {
		return PostRef{}, err
	}
	input, err := a.postInput(article)
	if err != nil {
		return PostRef{}, err
	}
	input["publicationId"] = publicationID

	if opts.Draft {
		var resp struct {
			CreateDraft struct {
				Draft struct {
					ID string `json:"id"`
				} `json:"draft"`
			} `json:"createDraft"`
		}
		if err := a.graphql(ctx, key, hashnodeDraftMutation, map[string]any{"input": input}, &resp); err != nil {
			return PostRef{}, err
		}
		return PostRef{PostID: resp.CreateDraft.Draft.ID}, nil
	}

	var resp struct {
		PublishPost struct {
			Post struct {
				ID  string `json:"id"`
				URL string `json:"url"`
			} `json:"post"`
		} `json:"publishPost"`
	}
	if err := a.graphql(ctx, key, hashnodePublishMutation, map[string]any{"input": input}, &resp); err != nil {
		return PostRef{}, err
	}
	return PostRef{PostID: resp.PublishPost.Post.ID, URL: resp.PublishPost.Post.URL}, nil
}

func (a *HashnodeAdapter) UpdatePublished(ctx context.Context, article models.Article, creds models.Credentials, postID string) (PostRef, error) {
	key, err := requireAPIKey(a.Platform(), creds)
	if err != nil {
		return PostRef{}, err
	}
	input, err := a.postInput(article)
	if err != nil {
		return PostRef{}, err
	}
	input["id"] = postID

	var resp struct {
		UpdatePost struct {
			Post struct {
				ID  string `json:"id"`
				URL string `json:"url"`
			} `json:"post"`
		} `json:"updatePost"`
	}
	if err := a.graphql(ctx, key, hashnodeUpdateMutation, map[string]any{"input": input}, &resp); err != nil {
		return PostRef{}, err
	}
	return PostRef{PostID: resp.UpdatePost.Post.ID, URL: resp.UpdatePost.Post.URL}, nil
}

func (a *HashnodeAdapter) publicationID(ctx context.Context, key models.APIKey) (string, error) {
	var me hashnodeMe
	if err := a.graphql(ctx, key, hashnodeMeQuery, nil, &me); err != nil {
		return "", err
	}
	edges := me.Me.Publications.Edges
	if len(edges) == 0 || edges[0].Node.ID == "" {
		return "", NewPermanentError(a.Platform(), "no publication exists for this Hashnode account", nil)
	}
	return edges[0].Node.ID, nil
}

func (a *HashnodeAdapter) postInput(article models.Article) (map[string]any, error) {
	body, err := HTMLToMarkdown(article.Content)
	if err != nil {
		return nil, NewPermanentError(a.Platform(), "convert content to markdown", err)
	}

	tags := TruncateTags(article.Tags, hashnodeMaxTags)
	hashTags := make([]hashnodeTag, 0, len(tags))
	for _, t := range tags {
		hashTags = append(hashTags, hashnodeTag{Slug: slugify(t), Name: t})
	}

	input := map[string]any{
		"title":           article.Title,
		"contentMarkdown": body,
		"tags":            hashTags,
	}
	if article.Excerpt != "" {
		input["subtitle"] = article.Excerpt
	}
	if article.CanonicalURL != "" {
		input["originalArticleURL"] = article.CanonicalURL
	}
	return input, nil
}

type graphqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

// graphql posts one operation. GraphQL reports failures with HTTP 200 and an
// errors array, which is classified here the same way statuses are.
func (a *HashnodeAdapter) graphql(ctx context.Context, key models.APIKey, query string, variables map[string]any, out any) error {
	payload := map[string]any{"query": query}
	if variables != nil {
		payload["variables"] = variables
	}
	h := http.Header{}
	h.Set("Authorization", key.Key)

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphqlError  `json:"errors"`
	}
	if err := a.api.do(ctx, http.MethodPost, a.endpoint, h, payload, &envelope); err != nil {
		return err
	}

	if len(envelope.Errors) > 0 {
		first := envelope.Errors[0]
		switch first.Extensions.Code {
		case "UNAUTHENTICATED", "FORBIDDEN":
			return &AuthError{Platform: a.Platform(), Message: truncate(first.Message)}
		case "INTERNAL_SERVER_ERROR", "TOO_MANY_REQUESTS":
			return NewTransientError(a.Platform(), first.Message, nil)
		default:
			return NewPermanentError(a.Platform(), first.Message, nil)
		}
	}
	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return NewTransientError(a.Platform(), "unreadable response", fmt.Errorf("decode graphql data: %w", err))
	}
	return nil
}

func slugify(value string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(value)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
