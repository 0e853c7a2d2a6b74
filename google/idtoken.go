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

	"github.com/external-secrets/gauth/auth"
	"github.com/external-secrets/gauth/externalaccount"
	"github.com/external-secrets/gauth/internal/envprovider"
)

// IdTokenProvider is implemented by every concrete credential kind capable
// of minting an OIDC ID token for a given audience: ServiceAccountCredentials,
// ImpersonatedCredentials, ComputeEngineCredentials, and the external-account
// adapter below.
type IdTokenProvider interface {
	IDToken(ctx context.Context, audience string) (*auth.AccessToken, error)
}

// IdTokenCredentials wraps any IdTokenProvider in the same Cache-backed
// refresh/state-machine shape the access-token credentials use, fixing the
// audience at construction time (spec.md §4.7).
type IdTokenCredentials struct {
	*auth.Cache

	provider IdTokenProvider
	audience string
}

// NewIdTokenCredentials builds the credential. provider.IDToken is called
// lazily, on first use and on each async/blocking refresh thereafter.
func NewIdTokenCredentials(provider IdTokenProvider, audience string, opts ...auth.CacheOption) (*IdTokenCredentials, error) {
	if provider == nil {
		return nil, &auth.ConfigError{Message: "id token credentials: provider is required"}
	}
	if audience == "" {
		return nil, &auth.ConfigError{Message: "id token credentials: audience is required"}
	}
	itc := &IdTokenCredentials{provider: provider, audience: audience}
	cache, err := auth.NewCache(itc.refresh, opts...)
	if err != nil {
		return nil, err
	}
	itc.Cache = cache
	return itc, nil
}

func (c *IdTokenCredentials) refresh(ctx context.Context) (*auth.AccessToken, error) {
	return c.provider.IDToken(ctx, c.audience)
}

// Token ensures the cached ID token is fresh and returns it.
func (c *IdTokenCredentials) Token(ctx context.Context) (*auth.AccessToken, error) {
	return c.Cache.EnsureFresh(ctx)
}

// externalAccountIDTokenProvider adapts externalaccount.IDTokenFunc, the
// closure-based ID-token source for workload/workforce identity pools, to
// the IdTokenProvider interface this package's other credential kinds
// expose as methods.
type externalAccountIDTokenProvider struct {
	fn externalaccount.IDTokenFunc
}

func (p externalAccountIDTokenProvider) IDToken(ctx context.Context, audience string) (*auth.AccessToken, error) {
	return p.fn(ctx, audience)
}

// NewExternalAccountIDTokenProvider builds an IdTokenProvider backed by an
// external-account subject token exchange (spec.md §4.6, §4.7), for
// workload/workforce identity federation credentials that need ID tokens
// rather than access tokens.
func NewExternalAccountIDTokenProvider(cfg *externalaccount.Config, env envprovider.Provider) (IdTokenProvider, error) {
	fn, err := externalaccount.NewIDTokenSource(cfg, env)
	if err != nil {
		return nil, err
	}
	return externalAccountIDTokenProvider{fn: fn}, nil
}
