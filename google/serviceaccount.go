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
	"crypto/rsa"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/external-secrets/gauth/auth"
	"github.com/external-secrets/gauth/sts"
)

const (
	defaultTokenURI       = "https://oauth2.googleapis.com/token"
	jwtBearerGrantType    = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	selfSignedJWTLifetime = time.Hour
	assertionLifetime     = time.Hour
	selfSignedRefreshSkew = time.Minute
)

// ServiceAccountConfig is the Go-native shape of a service_account JSON
// credential file (spec.md §6).
type ServiceAccountConfig struct {
	ClientEmail    string
	PrivateKeyID   string
	PrivateKey     string // PEM, PKCS#8 or PKCS#1
	TokenURL       string
	Scopes         []string
	QuotaProjectID string
	UniverseDomain string

	// UseJWTAccessWithScope selects the no-token-URL fast path of spec.md
	// §4.7 even when Scopes is non-empty.
	UseJWTAccessWithScope bool

	// Margins overrides the cache's default STALE/EXPIRED thresholds
	// (auth.DefaultMargins) when non-nil. Workloads that refresh against a
	// token endpoint with a tighter SLA than Google's own may want a
	// narrower expiration margin than the library default.
	Margins *auth.Margins
}

// ServiceAccountCredentials implements spec.md §4.7's two service-account
// refresh strategies: a JWT-bearer exchange at the token URL when scopes
// are present and UseJWTAccessWithScope is false, or a locally minted,
// per-URI self-signed JWT otherwise.
type ServiceAccountCredentials struct {
	*auth.OAuth2Credentials

	email                 string
	keyID                 string
	privateKey            *rsa.PrivateKey
	tokenURL              string
	scopes                []string
	useJWTAccessWithScope bool

	selfSignedMu    sync.Mutex
	selfSignedCache map[string]*auth.AccessToken
}

// NewServiceAccountCredentials parses cfg.PrivateKey and builds the
// credential. The embedded Cache starts empty; the first request triggers
// a refresh unless UseJWTAccessWithScope bypasses the cache entirely.
func NewServiceAccountCredentials(cfg ServiceAccountConfig) (*ServiceAccountCredentials, error) {
	key, err := parsePrivateKeyPEM([]byte(cfg.PrivateKey))
	if err != nil {
		return nil, err
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = defaultTokenURI
	}
	sa := &ServiceAccountCredentials{
		email:                 cfg.ClientEmail,
		keyID:                 cfg.PrivateKeyID,
		privateKey:            key,
		tokenURL:              tokenURL,
		scopes:                append([]string(nil), cfg.Scopes...),
		useJWTAccessWithScope: cfg.UseJWTAccessWithScope,
		selfSignedCache:       map[string]*auth.AccessToken{},
	}
	oc, err := auth.NewOAuth2Credentials(sa.refresh, cfg.QuotaProjectID, cfg.UniverseDomain, nil, nil, cacheOptions(cfg.Margins)...)
	if err != nil {
		return nil, err
	}
	sa.OAuth2Credentials = oc
	return sa, nil
}

// cacheOptions turns an optional Margins override into the CacheOption
// slice auth.NewOAuth2Credentials expects.
func cacheOptions(m *auth.Margins) []auth.CacheOption {
	if m == nil {
		return nil
	}
	return []auth.CacheOption{auth.WithMargins(*m)}
}

// CreateScoped implements spec.md §4.2's createScoped for service
// accounts: a fresh Cache (so the cached token is invalidated), carrying
// the new scope set.
func (c *ServiceAccountCredentials) CreateScoped(scopes []string) (*ServiceAccountCredentials, error) {
	clone := &ServiceAccountCredentials{
		email:                 c.email,
		keyID:                 c.keyID,
		privateKey:            c.privateKey,
		tokenURL:              c.tokenURL,
		scopes:                append([]string(nil), scopes...),
		useJWTAccessWithScope: c.useJWTAccessWithScope,
		selfSignedCache:       map[string]*auth.AccessToken{},
	}
	oc, err := auth.NewOAuth2Credentials(clone.refresh, c.QuotaProjectID(), c.GetUniverseDomain(), nil, nil)
	if err != nil {
		return nil, err
	}
	clone.OAuth2Credentials = oc
	return clone, nil
}

// GetRequestMetadata overrides the embedded OAuth2Credentials to take the
// self-signed JWT-access fast path (spec.md §4.7) when scopes are absent
// or UseJWTAccessWithScope is set; otherwise it falls back to the normal
// Cache-backed flow via refresh.
func (c *ServiceAccountCredentials) GetRequestMetadata(ctx context.Context, uri *url.URL) (map[string][]string, error) {
	if uri != nil && (c.useJWTAccessWithScope || len(c.scopes) == 0) {
		tok, err := c.selfSignedJWT(uri)
		if err != nil {
			return nil, err
		}
		headers := map[string][]string{"Authorization": {"Bearer " + tok.TokenValue}}
		if qp := c.QuotaProjectID(); qp != "" {
			headers["x-goog-user-project"] = []string{qp}
		}
		return headers, nil
	}
	return c.OAuth2Credentials.GetRequestMetadata(ctx, uri)
}

func (c *ServiceAccountCredentials) selfSignedJWT(uri *url.URL) (*auth.AccessToken, error) {
	key := uri.String()
	c.selfSignedMu.Lock()
	defer c.selfSignedMu.Unlock()
	if tok, ok := c.selfSignedCache[key]; ok && tok.ExpirationTime != nil &&
		time.Now().Before(tok.ExpirationTime.Add(-selfSignedRefreshSkew)) {
		return tok, nil
	}
	signed, err := signAssertion(c.privateKey, c.keyID, c.email, c.email, key, selfSignedJWTLifetime, scopeClaim(c.scopes))
	if err != nil {
		return nil, err
	}
	exp := time.Now().Add(selfSignedJWTLifetime)
	tok := auth.NewAccessToken(signed, &exp, nil)
	c.selfSignedCache[key] = tok
	return tok, nil
}

// refresh implements the JWT-bearer grant: an RS256 self-signed assertion
// posted to tokenURL, exchanged for a bearer access token.
func (c *ServiceAccountCredentials) refresh(ctx context.Context) (*auth.AccessToken, error) {
	assertion, err := signAssertion(c.privateKey, c.keyID, c.email, c.email, c.tokenURL, assertionLifetime, scopeClaim(c.scopes))
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", jwtBearerGrantType)
	form.Set("assertion", assertion)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &auth.ConfigError{Message: "service account: failed to build token request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, &auth.IOError{Message: "service account: token request failed", Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &auth.IOError{Message: "service account: failed reading token response", Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, tokenResponseError(resp.StatusCode, body)
	}

	parsed, err := sts.ParseExchangeResponse(body)
	if err != nil {
		return nil, err
	}
	return parsed.ToAccessToken(time.Now()), nil
}

// IDToken implements IdTokenProvider: the real Google JWT-bearer token
// endpoint returns an id_token field when the assertion carries a
// target_audience claim instead of a scope claim.
func (c *ServiceAccountCredentials) IDToken(ctx context.Context, audience string) (*auth.AccessToken, error) {
	assertion, err := signAssertion(c.privateKey, c.keyID, c.email, c.email, c.tokenURL, assertionLifetime,
		map[string]any{"target_audience": audience})
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", jwtBearerGrantType)
	form.Set("assertion", assertion)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &auth.ConfigError{Message: "service account: failed to build id token request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, &auth.IOError{Message: "service account: id token request failed", Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &auth.IOError{Message: "service account: failed reading id token response", Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, tokenResponseError(resp.StatusCode, body)
	}
	return auth.NewAccessToken(jsonField(body, "id_token"), nil, nil), nil
}
