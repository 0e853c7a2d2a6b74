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

// Package trustboundary implements spec.md §4.10's allowed-locations
// lookup, attached to outbound requests as the x-allowed-locations header
// once a credential's token has been refreshed.
package trustboundary

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/go-logr/logr"

	"github.com/external-secrets/gauth/auth"
)

// noOpEncodedLocations is the sentinel the lookup endpoint returns when the
// caller's principal has no boundary restriction at all.
const noOpEncodedLocations = "0x0"

// EnableExperimentEnvVar opts a process into trust boundary lookups;
// unset or any other value keeps it off (spec.md §4.10).
const EnableExperimentEnvVar = "GOOGLE_AUTH_TRUST_BOUNDARY_ENABLE_EXPERIMENT"

// Enabled reports whether value (the raw env var contents) opts in.
func Enabled(value string) bool {
	return value == "true" || value == "1"
}

// lookupResponse mirrors the allowed-locations endpoint's JSON body:
// {"locations": [...], "encodedLocations": "..."}.
type lookupResponse struct {
	Locations        []string
	EncodedLocations string
}

// Resolver fetches and caches the allowed-locations response for a
// principal, and satisfies auth.TrustBoundarySource so it can be wired
// directly into auth.NewOAuth2Credentials.
type Resolver struct {
	endpoint   string
	httpClient *http.Client
	log        logr.Logger

	mu     sync.Mutex
	cached *lookupResponse
}

// Option configures a Resolver at construction time.
type Option func(*Resolver)

func WithHTTPClient(hc *http.Client) Option {
	return func(r *Resolver) {
		if hc != nil {
			r.httpClient = hc
		}
	}
}

func WithLogger(l logr.Logger) Option { return func(r *Resolver) { r.log = l } }

// NewResolver builds a Resolver against endpoint, the per-principal
// allowed-locations URL a credential's own provisioning metadata supplies.
func NewResolver(endpoint string, opts ...Option) *Resolver {
	r := &Resolver{
		endpoint:   endpoint,
		httpClient: http.DefaultClient,
		log:        logr.Discard(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Header implements auth.TrustBoundarySource: GET the endpoint using tok,
// cache the response, and return the x-allowed-locations value. A no-op
// response ("0x0") still reports ok=true with an empty value, per spec.md
// §4.10 — the header is attached, just empty. A failed lookup falls back
// to the last cached value, if any; with nothing cached it reports
// ok=false so the caller omits the header entirely.
func (r *Resolver) Header(ctx context.Context, tok *auth.AccessToken) (string, bool, error) {
	resp, err := r.fetch(ctx, tok)
	if err != nil {
		r.log.V(1).Info("trust boundary lookup failed, falling back to cache", "error", err.Error())
		r.mu.Lock()
		cached := r.cached
		r.mu.Unlock()
		if cached == nil {
			return "", false, nil
		}
		return headerValue(cached), true, nil
	}

	r.mu.Lock()
	r.cached = resp
	r.mu.Unlock()
	return headerValue(resp), true, nil
}

func headerValue(resp *lookupResponse) string {
	if resp.EncodedLocations == noOpEncodedLocations {
		return ""
	}
	return resp.EncodedLocations
}

func (r *Resolver) fetch(ctx context.Context, tok *auth.AccessToken) (*lookupResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint, nil)
	if err != nil {
		return nil, &auth.ConfigError{Message: "trust boundary: failed to build request", Cause: err}
	}
	req.Header.Set("Authorization", "Bearer "+tok.TokenValue)

	httpResp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, &auth.IOError{Message: "trust boundary: request failed", Cause: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &auth.IOError{Message: "trust boundary: failed reading response", Cause: err}
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, &auth.TokenResponseError{HTTPStatus: httpResp.StatusCode, ErrorDescription: strings.TrimSpace(string(body))}
	}

	parsed := &lookupResponse{EncodedLocations: gjson.GetBytes(body, "encodedLocations").String()}
	for _, loc := range gjson.GetBytes(body, "locations").Array() {
		parsed.Locations = append(parsed.Locations, loc.String())
	}
	return parsed, nil
}
