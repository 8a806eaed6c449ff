package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type CredentialKind string

const (
	CredentialAPIKey CredentialKind = "api_key"
	CredentialOAuth  CredentialKind = "oauth"
)

// Credentials is the per-platform secret handed to an adapter. It is either
// an APIKey or an OAuthPair; adapters type-switch on the concrete value.
type Credentials interface {
	Kind() CredentialKind
}

// APIKey is a static key. SiteURL is set for self-hosted platforms (Ghost).
type APIKey struct {
	Key     string `json:"key"`
	SiteURL string `json:"site_url,omitempty"`
}

func (APIKey) Kind() CredentialKind { return CredentialAPIKey }

// OAuthPair holds a bearer token and the refresh token used to renew it.
type OAuthPair struct {
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time        `json:"expires_at,omitempty"`
	Site         map[string]string `json:"site,omitempty"`
}

func (OAuthPair) Kind() CredentialKind { return CredentialOAuth }

// SiteValue returns a site attribute such as "site_id" or "" when absent.
func (p OAuthPair) SiteValue(key string) string {
	if p.Site == nil {
		return ""
	}
	return p.Site[key]
}

type credentialEnvelope struct {
	Kind  CredentialKind  `json:"kind"`
	Value json.RawMessage `json:"value"`
}

// MarshalCredentials serialises the union into a tagged JSON envelope.
func MarshalCredentials(c Credentials) ([]byte, error) {
	if c == nil {
		return nil, errors.New("credentials are nil")
	}
	value, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal credentials: %w", err)
	}
	return json.Marshal(credentialEnvelope{Kind: c.Kind(), Value: value})
}

// UnmarshalCredentials is the inverse of MarshalCredentials.
func UnmarshalCredentials(raw []byte) (Credentials, error) {
	var env credentialEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode credential envelope: %w", err)
	}

	switch env.Kind {
	case CredentialAPIKey:
		var key APIKey
		if err := json.Unmarshal(env.Value, &key); err != nil {
			return nil, fmt.Errorf("decode api key: %w", err)
		}
		return key, nil
	case CredentialOAuth:
		var pair OAuthPair
		if err := json.Unmarshal(env.Value, &pair); err != nil {
			return nil, fmt.Errorf("decode oauth pair: %w", err)
		}
		return pair, nil
	default:
		return nil, fmt.Errorf("unknown credential kind %q", env.Kind)
	}
}
