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

package auth

import (
	"context"
	"net/url"
)

// DefaultUniverseDomain is used when a credential does not specify one.
const DefaultUniverseDomain = "googleapis.com"

// Credentials is the polymorphic capability set every concrete credential
// kind implements (spec §4.2): request-metadata assembly, forced refresh,
// and universe-domain reporting.
type Credentials interface {
	// GetRequestMetadata returns the headers to attach to a request bound
	// for uri, refreshing the underlying token per the Cache state
	// machine as needed.
	GetRequestMetadata(ctx context.Context, uri *url.URL) (map[string][]string, error)
	// Refresh forces an unconditional token fetch.
	Refresh(ctx context.Context) error
	// GetUniverseDomain reports the DNS suffix this credential is scoped
	// to (default googleapis.com).
	GetUniverseDomain() string
	// HasRequestMetadata reports whether GetRequestMetadata can ever
	// produce headers (true for essentially all OAuth2-backed kinds).
	HasRequestMetadata() bool
	// HasRequestMetadataOnly reports whether this credential kind only
	// ever contributes request metadata, as opposed to also supporting
	// e.g. blob signing.
	HasRequestMetadataOnly() bool
}

// QuotaProjectSource returns the caller-supplied billing project, if any.
type QuotaProjectSource interface {
	QuotaProjectID() string
}

// OAuth2Credentials is the common refinement of Credentials that every
// concrete kind in gauth embeds: a Cache plus quota-project/universe-domain
// bookkeeping and the stable header assembly order from spec §4.2.
type OAuth2Credentials struct {
	*Cache
	quotaProjectID string
	universeDomain string

	// trustBoundary, if non-nil, supplies the x-allowed-locations header
	// once populated and non-no-op. It is an interface so the auth
	// package does not depend on the trustboundary package.
	trustBoundary TrustBoundarySource

	// extraHeaders lets a concrete kind (e.g. a self-signed JWT-access
	// service account) contribute credential-specific headers after the
	// standard ones, per spec §4.2's stable composition order.
	extraHeaders func(ctx context.Context, uri *url.URL, tok *AccessToken) (map[string][]string, error)
}

// TrustBoundarySource supplies the x-allowed-locations header value for a
// just-refreshed token. Header returns ok=false when no boundary is
// available yet (neither fresh nor cached).
type TrustBoundarySource interface {
	Header(ctx context.Context, tok *AccessToken) (value string, ok bool, err error)
}

// NewOAuth2Credentials builds the base type. Concrete credential kinds
// call this from their own constructors and embed the result.
func NewOAuth2Credentials(refresh RefreshFunc, quotaProjectID, universeDomain string, trustBoundary TrustBoundarySource, extraHeaders func(ctx context.Context, uri *url.URL, tok *AccessToken) (map[string][]string, error), opts ...CacheOption) (*OAuth2Credentials, error) {
	if universeDomain == "" {
		universeDomain = DefaultUniverseDomain
	}
	cache, err := NewCache(refresh, opts...)
	if err != nil {
		return nil, err
	}
	return &OAuth2Credentials{
		Cache:          cache,
		quotaProjectID: quotaProjectID,
		universeDomain: universeDomain,
		trustBoundary:  trustBoundary,
		extraHeaders:   extraHeaders,
	}, nil
}

func (c *OAuth2Credentials) QuotaProjectID() string    { return c.quotaProjectID }
func (c *OAuth2Credentials) GetUniverseDomain() string { return c.universeDomain }
func (c *OAuth2Credentials) HasRequestMetadata() bool  { return true }

// HasRequestMetadataOnly is true unless overridden by a concrete kind that
// also exposes e.g. blob signing.
func (c *OAuth2Credentials) HasRequestMetadataOnly() bool { return true }

// Refresh forces an unconditional fetch.
func (c *OAuth2Credentials) Refresh(ctx context.Context) error {
	_, err := c.Cache.Refresh(ctx)
	return err
}

// GetRequestMetadata implements spec §4.1's algorithm via Cache.EnsureFresh
// and then assembles headers in the stable order from spec §4.2:
// Authorization, x-goog-user-project, x-allowed-locations,
// credential-specific headers.
func (c *OAuth2Credentials) GetRequestMetadata(ctx context.Context, uri *url.URL) (map[string][]string, error) {
	tok, err := c.Cache.EnsureFresh(ctx)
	if err != nil {
		return nil, err
	}
	headers := map[string][]string{}
	if tok != nil && tok.TokenValue != "" {
		headers["Authorization"] = []string{"Bearer " + tok.TokenValue}
	}
	if c.quotaProjectID != "" {
		headers["x-goog-user-project"] = []string{c.quotaProjectID}
	}
	if c.trustBoundary != nil {
		if v, ok, err := c.trustBoundary.Header(ctx, tok); err == nil && ok {
			headers["x-allowed-locations"] = []string{v}
		}
	}
	if c.extraHeaders != nil {
		extra, err := c.extraHeaders(ctx, uri, tok)
		if err != nil {
			return nil, err
		}
		for k, v := range extra {
			headers[k] = v
		}
	}
	return headers, nil
}

// WithQuotaProjectID returns a shallow clone with a different quota
// project, sharing the same cached token (quota project does not
// invalidate the cache, unlike createScoped).
func (c *OAuth2Credentials) WithQuotaProjectID(id string) *OAuth2Credentials {
	clone := *c
	clone.quotaProjectID = id
	return &clone
}
