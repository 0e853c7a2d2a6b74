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
	"time"

	"github.com/tidwall/sjson"
	"golang.org/x/oauth2"

	"github.com/external-secrets/gauth/auth"
	"github.com/external-secrets/gauth/iamcred"
	"github.com/external-secrets/gauth/internal/envprovider"
	"github.com/external-secrets/gauth/sts"
)

// subjectTokenSource is the common contract every sourcing strategy
// implements: file, URL, executable, supplier, or AWS.
type subjectTokenSource interface {
	SubjectToken(ctx context.Context, opts SupplierOptions) (string, error)
}

// New builds the auth.RefreshFunc for an external account credential:
// resolve the subject token, exchange it at STS, and, if configured,
// impersonate a service account with the result (spec.md §4.5/§4.6's
// pipeline). env lets tests substitute a fake filesystem/environment.
func New(cfg *Config, env envprovider.Provider) (*auth.OAuth2Credentials, error) {
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

	stsClient := sts.NewClient(sts.WithEndpoint(cfg.TokenURL))

	refresh := func(ctx context.Context) (*auth.AccessToken, error) {
		return exchangeAndImpersonate(ctx, cfg, source, stsClient)
	}

	return auth.NewOAuth2Credentials(refresh, cfg.QuotaProjectID, cfg.UniverseDomain, nil, nil)
}

func buildSubjectTokenSource(cfg *Config, env envprovider.Provider) (subjectTokenSource, error) {
	switch {
	case cfg.AWSSecurityCredentialsSupplier != nil:
		return newAWSSupplierSource(cfg.AWSSecurityCredentialsSupplier, cfg.Audience), nil
	case cfg.SubjectTokenSupplier != nil:
		return &supplierSubjectTokenSource{
			supplier: cfg.SubjectTokenSupplier,
			opts:     SupplierOptions{Audience: cfg.Audience, SubjectTokenType: cfg.SubjectTokenType},
		}, nil
	case len(cfg.CredentialSource.EnvironmentID) > 3 && cfg.CredentialSource.EnvironmentID[:3] == "aws":
		return newAWSMetadataSource(cfg)
	case cfg.CredentialSource.File != "":
		return newFileSubjectTokenSource(cfg.CredentialSource.File, cfg.CredentialSource.Format, env), nil
	case cfg.CredentialSource.URL != "":
		return newURLSubjectTokenSource(cfg.CredentialSource.URL, cfg.CredentialSource.Headers, cfg.CredentialSource.Format, nil), nil
	case cfg.CredentialSource.Executable != nil:
		return newExecutableSubjectTokenSource(cfg.CredentialSource.Executable, env)
	default:
		return nil, &auth.ConfigError{Message: "external account config specifies no credential source"}
	}
}

func exchangeAndImpersonate(ctx context.Context, cfg *Config, source subjectTokenSource, client *sts.Client) (*auth.AccessToken, error) {
	subjectToken, err := source.SubjectToken(ctx, SupplierOptions{Audience: cfg.Audience, SubjectTokenType: cfg.SubjectTokenType})
	if err != nil {
		return nil, err
	}

	req := &sts.ExchangeRequest{
		Audience:         cfg.Audience,
		SubjectToken:     subjectToken,
		SubjectTokenType: cfg.SubjectTokenType,
		ClientID:         cfg.ClientID,
		ClientSecret:     cfg.ClientSecret,
	}
	if cfg.ServiceAccountImpersonationURL == "" {
		req.Scope = cfg.Scopes
	} else {
		// An intermediary token obtained before impersonation must request
		// cloud-platform scope regardless of the caller's final desired
		// scopes (spec.md §4.5).
		req.Scope = []string{sts.CloudPlatformScope}
	}
	if cfg.WorkforcePoolUserProject != "" {
		opts, err := buildWorkforceOptions(cfg.WorkforcePoolUserProject)
		if err != nil {
			return nil, err
		}
		req.Options = opts
	}

	resp, err := client.Exchange(ctx, req)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if cfg.ServiceAccountImpersonationURL == "" {
		return resp.ToAccessToken(now), nil
	}

	principal, err := principalFromImpersonationURL(cfg.ServiceAccountImpersonationURL)
	if err != nil {
		return nil, err
	}
	intermediary := resp.ToAccessToken(now)
	iamClient, err := iamcred.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: intermediary.TokenValue}))
	if err != nil {
		return nil, err
	}
	defer iamClient.Close()

	lifetime := time.Hour
	if cfg.ServiceAccountImpersonationLifetimeSeconds > 0 {
		lifetime = time.Duration(cfg.ServiceAccountImpersonationLifetimeSeconds) * time.Second
	}
	return iamClient.GenerateAccessToken(ctx, &iamcred.GenerateAccessTokenRequest{
		TargetPrincipal: principal,
		Scope:           cfg.Scopes,
		Lifetime:        lifetime,
	})
}

// buildWorkforceOptions encodes the userProject option STS expects for
// workforce pool exchanges, via sjson so the payload shape can grow
// (e.g. an accessBoundary sibling field from the downscope package)
// without a bespoke marshal struct per caller.
func buildWorkforceOptions(userProject string) (string, error) {
	out, err := sjson.Set("{}", "userProject", userProject)
	if err != nil {
		return "", &auth.ConfigError{Message: "failed to encode workforce pool options", Cause: err}
	}
	return out, nil
}

func principalFromImpersonationURL(url string) (string, error) {
	const prefix = "https://iamcredentials.googleapis.com/v1/projects/-/serviceAccounts/"
	const suffix = ":generateAccessToken"
	if len(url) <= len(prefix)+len(suffix) || url[:len(prefix)] != prefix {
		return "", &auth.ConfigError{Message: "unrecognized service_account_impersonation_url format"}
	}
	return url[len(prefix) : len(url)-len(suffix)], nil
}
