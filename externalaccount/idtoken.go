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

package externalaccount

import (
	"context"

	"github.com/external-secrets/gauth/auth"
	"github.com/external-secrets/gauth/internal/envprovider"
	"github.com/external-secrets/gauth/sts"
)

// IDTokenFunc mints an OIDC ID token for audience by exchanging the
// configured subject token source at STS with requested_token_type =
// id_token, the external-account half of the google package's
// IdTokenProvider variants (spec.md §4.7).
type IDTokenFunc func(ctx context.Context, audience string) (*auth.AccessToken, error)

// NewIDTokenSource builds an IDTokenFunc sharing cfg's subject token
// source and STS endpoint with the access-token pipeline in
// credentials.go, but requesting an id_token instead of an access_token
// and never impersonating.
func NewIDTokenSource(cfg *Config, env envprovider.Provider) (IDTokenFunc, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if env == nil {
		env = envprovider.OS{}
	}
	source, err := buildSubjectTokenSource(cfg, env)
	if err != nil {
		return nil, err
	}
	client := sts.NewClient(sts.WithEndpoint(cfg.TokenURL))

	return func(ctx context.Context, audience string) (*auth.AccessToken, error) {
		subjectToken, err := source.SubjectToken(ctx, SupplierOptions{Audience: cfg.Audience, SubjectTokenType: cfg.SubjectTokenType})
		if err != nil {
			return nil, err
		}
		resp, err := client.Exchange(ctx, &sts.ExchangeRequest{
			Audience:           audience,
			RequestedTokenType: sts.TokenTypeIDToken,
			SubjectToken:       subjectToken,
			SubjectTokenType:   cfg.SubjectTokenType,
			ClientID:           cfg.ClientID,
			ClientSecret:       cfg.ClientSecret,
		})
		if err != nil {
			return nil, err
		}
		return auth.NewAccessToken(resp.AccessToken, nil, nil), nil
	}, nil
}
