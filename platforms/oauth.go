package platforms

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"cms-publisher/models"
)

// OAuthApp is the client registration used to renew user tokens.
type OAuthApp struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// renewed folds a token response into the previous pair, keeping the old
// refresh token and site attributes when the platform omits them.
func renewed(previous models.OAuthPair, resp tokenResponse, now time.Time) models.OAuthPair {
	next := models.OAuthPair{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Site:         previous.Site,
	}
	if next.RefreshToken == "" {
		next.RefreshToken = previous.RefreshToken
	}
	if resp.ExpiresIn > 0 {
		expires := now.Add(time.Duration(resp.ExpiresIn) * time.Second)
		next.ExpiresAt = &expires
	}
	return next
}

// refreshToken runs the refresh_token grant. formEncoded selects between the
// classic form post and a JSON body.
func refreshToken(ctx context.Context, api apiClient, app OAuthApp, creds models.Credentials, formEncoded bool) (models.Credentials, error) {
	pair, ok := creds.(models.OAuthPair)
	if !ok || pair.RefreshToken == "" {
		return nil, NewPermanentError(api.platform, "no refresh token available, reconnect the account", nil)
	}
	if app.TokenURL == "" || app.ClientID == "" {
		return nil, NewPermanentError(api.platform, "oauth client is not configured", nil)
	}

	var payload any
	if formEncoded {
		payload = url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {pair.RefreshToken},
			"client_id":     {app.ClientID},
			"client_secret": {app.ClientSecret},
		}
	} else {
		payload = map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": pair.RefreshToken,
			"client_id":     app.ClientID,
			"client_secret": app.ClientSecret,
		}
	}

	var resp tokenResponse
	if err := api.do(ctx, http.MethodPost, app.TokenURL, nil, payload, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, NewPermanentError(api.platform, "token endpoint returned no access token", nil)
	}
	return renewed(pair, resp, time.Now()), nil
}
