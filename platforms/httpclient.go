package platforms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cms-publisher/models"
)

const (
	defaultHTTPTimeout = 20 * time.Second
	errorBodyLimit     = 4 << 10
)

// apiClient is the HTTP plumbing shared by every adapter: JSON or form
// encoding, status classification and error-message extraction.
type apiClient struct {
	platform models.Platform
	http     *http.Client
}

func newAPIClient(platform models.Platform, client *http.Client) apiClient {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return apiClient{platform: platform, http: client}
}

// do sends payload (JSON, or form-encoded when it is url.Values) and decodes
// a successful response into out when out is non-nil.
func (c apiClient) do(ctx context.Context, method, endpoint string, header http.Header, payload any, out any) error {
	var (
		body        io.Reader
		contentType string
	)
	switch p := payload.(type) {
	case nil:
	case url.Values:
		body = strings.NewReader(p.Encode())
		contentType = "application/x-www-form-urlencoded"
	default:
		raw, err := json.Marshal(p)
		if err != nil {
			return NewPermanentError(c.platform, "encode request", fmt.Errorf("marshal payload: %w", err))
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return NewPermanentError(c.platform, "build request", fmt.Errorf("new request: %w", err))
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransport(c.platform, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return classifyStatus(c.platform, resp.StatusCode, extractMessage(snippet))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return NewTransientError(c.platform, "unreadable response", fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// extractMessage pulls the platform's own error text out of a response body,
// trying the shapes the supported APIs use before falling back to raw text.
func extractMessage(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ""
	}

	var shaped struct {
		Error            json.RawMessage `json:"error"`
		ErrorDescription string          `json:"error_description"`
		Message          string          `json:"message"`
		Errors           []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &shaped); err != nil {
		return truncate(string(body))
	}

	switch {
	case shaped.ErrorDescription != "":
		return shaped.ErrorDescription
	case shaped.Message != "":
		return shaped.Message
	case len(shaped.Errors) > 0 && shaped.Errors[0].Message != "":
		return shaped.Errors[0].Message
	case len(shaped.Error) > 0:
		var text string
		if err := json.Unmarshal(shaped.Error, &text); err == nil {
			return text
		}
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(shaped.Error, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
	}
	return ""
}

func bearer(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}

func requireAPIKey(platform models.Platform, creds models.Credentials) (models.APIKey, error) {
	key, ok := creds.(models.APIKey)
	if !ok || key.Key == "" {
		return models.APIKey{}, &AuthError{Platform: platform, Message: "api key credentials required"}
	}
	return key, nil
}

func requireOAuth(platform models.Platform, creds models.Credentials) (models.OAuthPair, error) {
	pair, ok := creds.(models.OAuthPair)
	if !ok || pair.AccessToken == "" {
		return models.OAuthPair{}, &AuthError{Platform: platform, Message: "oauth credentials required"}
	}
	return pair, nil
}
