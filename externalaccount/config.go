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

// Package externalaccount implements workload and workforce identity
// federation credentials (spec.md §4.5/§4.6): exchanging a third-party
// subject token for a Google access token via the sts package, optionally
// followed by service account impersonation.
package externalaccount

import (
	"context"
	"regexp"

	"github.com/external-secrets/gauth/auth"
)

// Format describes how to extract the subject token value from a file- or
// URL-sourced response.
type Format struct {
	Type                  string // "text" (default) or "json"
	SubjectTokenFieldName string
}

// CredentialSource names exactly one non-empty sourcing strategy, mirroring
// the upstream external account credential file schema.
type CredentialSource struct {
	File                        string
	URL                         string
	Headers                     map[string]string
	Executable                  *ExecutableConfig
	EnvironmentID               string
	RegionURL                   string
	RegionalCredVerificationURL string
	IMDSv2SessionTokenURL       string
	Format                      Format
}

type ExecutableConfig struct {
	Command       string
	TimeoutMillis *int
	OutputFile    string
}

// SubjectTokenSupplier lets a caller supply OIDC/SAML subject tokens via
// arbitrary application logic instead of a file/URL/executable (spec.md
// §4.5's "supplier" source).
type SubjectTokenSupplier interface {
	SubjectToken(ctx context.Context, opts SupplierOptions) (string, error)
}

// AWSSecurityCredentialsSupplier lets a caller supply AWS credentials
// directly instead of delegating to the IMDS-based default chain.
type AWSSecurityCredentialsSupplier interface {
	AWSRegion(ctx context.Context, opts SupplierOptions) (string, error)
	AWSSecurityCredentials(ctx context.Context, opts SupplierOptions) (*AWSSecurityCredentials, error)
}

// SupplierOptions carries context a custom supplier may need: the audience
// and subject token type the exchange targets.
type SupplierOptions struct {
	Audience         string
	SubjectTokenType string
}

// AWSSecurityCredentials is the triple a supplier returns for SigV4
// signing (spec.md §4.5's AWS vector).
type AWSSecurityCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Config is the parsed external account credential configuration (the
// Go-native shape of the JSON "type": "external_account" file spec.md §9.1
// describes).
type Config struct {
	Audience                                   string
	SubjectTokenType                           string
	TokenURL                                   string
	TokenInfoURL                                string
	ServiceAccountImpersonationURL             string
	ServiceAccountImpersonationLifetimeSeconds int
	ClientID                                   string
	ClientSecret                               string
	CredentialSource                           CredentialSource
	QuotaProjectID                             string
	Scopes                                     []string
	WorkforcePoolUserProject                   string
	UniverseDomain                             string

	SubjectTokenSupplier           SubjectTokenSupplier
	AWSSecurityCredentialsSupplier AWSSecurityCredentialsSupplier
}

const defaultTokenURL = "https://sts.googleapis.com/v1/token"

var workforceAudiencePattern = regexp.MustCompile(`//iam\.googleapis\.com/locations/[^/]+/workforcePools/`)

// IsWorkforcePoolAudience reports whether aud names a workforce pool
// provider rather than a workload identity pool provider.
func IsWorkforcePoolAudience(aud string) bool {
	return workforceAudiencePattern.MatchString(aud)
}

// Validate enforces the invariant from spec.md §4.6: workforce_pool_user_project
// may only be set for a workforce pool audience.
func (c *Config) Validate() error {
	if c.WorkforcePoolUserProject != "" && !IsWorkforcePoolAudience(c.Audience) {
		return &auth.ConfigError{Message: "workforce_pool_user_project must not be set for a non-workforce-pool audience"}
	}
	if c.TokenURL == "" {
		c.TokenURL = defaultTokenURL
	}
	return nil
}
