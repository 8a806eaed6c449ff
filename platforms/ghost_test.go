package platforms

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cms-publisher/models"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ghostSecret = []byte("0123456789abcdef0123456789abcdef")

func ghostKey(siteURL string) models.APIKey {
	return models.APIKey{Key: "key-id:" + hex.EncodeToString(ghostSecret), SiteURL: siteURL}
}

func verifyGhostToken(t *testing.T, header string) {
	t.Helper()
	raw, ok := strings.CutPrefix(header, "Ghost ")
	if !assert.True(t, ok, "authorization scheme") {
		return
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return ghostSecret, nil
	})
	if !assert.NoError(t, err) {
		return
	}
	assert.True(t, token.Valid)
	assert.Equal(t, "key-id", token.Header["kid"])
	assert.True(t, claims.VerifyAudience("/admin/", true))
}

func TestGhostPublishSignsAdminToken(t *testing.T) {
	t.Parallel()

	var posted ghostPosts
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		verifyGhostToken(t, r.Header.Get("Authorization"))
		assert.Equal(t, "/ghost/api/admin/posts/", r.URL.Path)
		assert.Equal(t, "html", r.URL.Query().Get("source"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
		_, _ = w.Write([]byte(`{"posts":[{"id":"g1","url":"https://blog.example/x/"}]}`))
	}))
	defer server.Close()

	article := testArticle()
	article.Tags = models.TagList{"one", "two", "three", "four", "five", "six"}

	ref, err := NewGhostAdapter(server.Client()).Publish(context.Background(), article, ghostKey(server.URL), PublishOptions{Draft: true})
	require.NoError(t, err)

	assert.Equal(t, PostRef{PostID: "g1", URL: "https://blog.example/x/"}, ref)
	require.Len(t, posted.Posts, 1)
	assert.Equal(t, "draft", posted.Posts[0].Status)
	assert.Equal(t, "<p>hi</p>", posted.Posts[0].HTML)
	assert.Len(t, posted.Posts[0].Tags, 6)
}

func TestGhostUpdateSendsCurrentUpdatedAt(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		calls []string
		sent  ghostPosts
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, r.Method)
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"posts":[{"id":"g1","updated_at":"2024-05-01T10:00:00.000Z"}]}`))
		case http.MethodPut:
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
			_, _ = w.Write([]byte(`{"posts":[{"id":"g1","url":"https://blog.example/x/"}]}`))
		}
	}))
	defer server.Close()

	_, err := NewGhostAdapter(server.Client()).UpdatePublished(context.Background(), testArticle(), ghostKey(server.URL), "g1")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{http.MethodGet, http.MethodPut}, calls)
	assert.Equal(t, "2024-05-01T10:00:00.000Z", sent.Posts[0].UpdatedAt)
}

func TestGhostMalformedKey(t *testing.T) {
	t.Parallel()

	adapter := NewGhostAdapter(nil)
	_, err := adapter.ValidateCredentials(context.Background(), models.APIKey{Key: "no-colon", SiteURL: "https://blog.example"})

	var authErr *AuthError
	assert.ErrorAs(t, err, &authErr)
}

func TestGhostServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewGhostAdapter(server.Client()).Publish(context.Background(), testArticle(), ghostKey(server.URL), PublishOptions{})
	assert.Equal(t, models.ErrorKindTransient, KindOf(err))
}
