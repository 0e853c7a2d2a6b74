/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package google

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/external-secrets/gauth/auth"
	"github.com/external-secrets/gauth/sts"
)

// UserConfig is the Go-native shape of an authorized_user JSON credential
// file (spec.md §6): an OAuth2 refresh token issued to an end user via the
// installed-app or device flow.
type UserConfig struct {
	ClientID       string
	ClientSecret   string
	RefreshToken   string
	TokenURL       string
	QuotaProjectID string
	UniverseDomain string
}

// UserCredentials refreshes an access token from a stored OAuth2 refresh
// token (spec.md §4.7). Unlike the other credential kinds, a refresh can
// rotate the refresh token itself, so it is held under a mutex rather than
// fixed at construction.
type UserCredentials struct {
	*auth.OAuth2Credentials

	clientID     string
	clientSecret string
	tokenURL     string

	mu           sync.Mutex
	refreshToken string
}

// NewUserCredentials builds the credential. The embedded Cache starts
// empty; GetAccessToken triggers the first refresh_token grant.
func NewUserCredentials(cfg UserConfig) (*UserCredentials, error) {
	if cfg.RefreshToken == "" {
		return nil, &auth.ConfigError{Message: "user credentials: refresh_token is required"}
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = defaultTokenURI
	}
	uc := &UserCredentials{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		tokenURL:     tokenURL,
		refreshToken: cfg.RefreshToken,
	}
	oc, err := auth.NewOAuth2Credentials(uc.refresh, cfg.QuotaProjectID, cfg.UniverseDomain, nil, nil)
	if err != nil {
		return nil, err
	}
	uc.OAuth2Credentials = oc
	return uc, nil
}

// refresh performs the refresh_token grant and, per spec.md §4.7, adopts
// any new refresh token the server returns in place of the stored one.
func (c *UserCredentials) refresh(ctx context.Context) (*auth.AccessToken, error) {
	c.mu.Lock()
	currentRefreshToken := c.refreshToken
	c.mu.Unlock()

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", currentRefreshToken)
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &auth.ConfigError{Message: "user credentials: failed to build refresh request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, &auth.IOError{Message: "user credentials: refresh request failed", Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &auth.IOError{Message: "user credentials: failed reading refresh response", Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, tokenResponseError(resp.StatusCode, body)
	}

	if newRefreshToken := gjson.GetBytes(body, "refresh_token").String(); newRefreshToken != "" {
		c.mu.Lock()
		c.refreshToken = newRefreshToken
		c.mu.Unlock()
	}

	parsed, err := sts.ParseExchangeResponse(body)
	if err != nil {
		return nil, err
	}
	return parsed.ToAccessToken(time.Now()), nil
}
