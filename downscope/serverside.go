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

package downscope

import (
	"context"
	"time"

	"github.com/tidwall/sjson"

	"github.com/external-secrets/gauth/auth"
	"github.com/external-secrets/gauth/sts"
)

// SourceTokenProvider supplies the access token being downscoped; it is
// typically an *auth.OAuth2Credentials wrapping the caller's normal
// credential (a service account, ADC, ...).
type SourceTokenProvider interface {
	GetAccessToken() *auth.AccessToken
	Refresh(ctx context.Context) error
}

// Credentials is the server-side downscoped credential of spec.md §4.8:
// every refresh trades the source credential's current token for a
// narrower one at STS, never outliving the source's own expiration.
type Credentials struct {
	*auth.Cache
	source    SourceTokenProvider
	boundary  *AccessBoundary
	stsClient *sts.Client
}

// New builds a server-side downscoped credential. source is refreshed
// (if needed) before every downscoping exchange; boundary must be
// non-empty.
func New(source SourceTokenProvider, boundary *AccessBoundary, opts ...sts.ClientOption) (*Credentials, error) {
	if err := boundary.Validate(); err != nil {
		return nil, err
	}
	client := sts.NewClient(opts...)
	c := &Credentials{source: source, boundary: boundary, stsClient: client}

	cache, err := auth.NewCache(c.refresh)
	if err != nil {
		return nil, err
	}
	c.Cache = cache
	return c, nil
}

func (c *Credentials) refresh(ctx context.Context) (*auth.AccessToken, error) {
	if err := c.source.Refresh(ctx); err != nil {
		return nil, err
	}
	sourceToken := c.source.GetAccessToken()
	if sourceToken == nil || sourceToken.TokenValue == "" {
		return nil, &auth.ConfigError{Message: "downscope: source credential produced no access token"}
	}

	options, err := encodeAccessBoundary(c.boundary)
	if err != nil {
		return nil, err
	}

	resp, err := c.stsClient.Exchange(ctx, &sts.ExchangeRequest{
		SubjectToken:     sourceToken.TokenValue,
		SubjectTokenType: sts.TokenTypeAccessToken,
		Options:          options,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	downscoped := resp.ToAccessToken(now)
	// A downscoped token must never outlive its source.
	if sourceToken.ExpirationTime != nil && (downscoped.ExpirationTime == nil || downscoped.ExpirationTime.After(*sourceToken.ExpirationTime)) {
		downscoped = auth.NewAccessToken(downscoped.TokenValue, sourceToken.ExpirationTime, downscoped.Scopes)
	}
	return downscoped, nil
}

// encodeAccessBoundary renders the options.accessBoundary JSON payload STS
// expects, appending one rule at a time via sjson's "-1" array-append path
// rather than building a parallel struct hierarchy just for marshaling.
func encodeAccessBoundary(b *AccessBoundary) (string, error) {
	out := `{"accessBoundary":{"accessBoundaryRules":[]}}`
	for _, rule := range b.AccessBoundaryRules {
		const path = "accessBoundary.accessBoundaryRules.-1"
		var err error
		out, err = sjson.Set(out, path, map[string]any{
			"availableResource":    rule.AvailableResource,
			"availablePermissions": rule.AvailablePermissions,
		})
		if err != nil {
			return "", &auth.ConfigError{Message: "failed to encode access boundary rule", Cause: err}
		}
		if rule.AvailabilityCondition != nil && rule.AvailabilityCondition.Expression != "" {
			cond := map[string]string{"expression": rule.AvailabilityCondition.Expression}
			if rule.AvailabilityCondition.Title != "" {
				cond["title"] = rule.AvailabilityCondition.Title
			}
			if rule.AvailabilityCondition.Description != "" {
				cond["description"] = rule.AvailabilityCondition.Description
			}
			out, err = sjson.Set(out, "accessBoundary.accessBoundaryRules.-1.availabilityCondition", cond)
			if err != nil {
				return "", &auth.ConfigError{Message: "failed to encode access boundary condition", Cause: err}
			}
		}
	}
	return out, nil
}
