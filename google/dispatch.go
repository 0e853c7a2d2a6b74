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

	"github.com/tidwall/gjson"

	"github.com/external-secrets/gauth/auth"
	"github.com/external-secrets/gauth/externalaccount"
	"github.com/external-secrets/gauth/internal/envprovider"
)

const (
	typeAuthorizedUser                = "authorized_user"
	typeServiceAccount                = "service_account"
	typeExternalAccount               = "external_account"
	typeImpersonatedServiceAccount    = "impersonated_service_account"
	typeExternalAccountAuthorizedUser = "external_account_authorized_user"
)

// CredentialsFromJSON dispatches on the "type" field of a credential JSON
// document (spec.md §6) and builds the matching concrete credential kind.
// It is the function both ADC resolution and direct
// GOOGLE_APPLICATION_CREDENTIALS-style loading funnel through.
func CredentialsFromJSON(ctx context.Context, jsonBytes []byte, scopes []string, env envprovider.Provider) (*auth.OAuth2Credentials, error) {
	if env == nil {
		env = envprovider.OS{}
	}
	credType := gjson.GetBytes(jsonBytes, "type").String()
	switch credType {
	case typeAuthorizedUser:
		return authorizedUserFromJSON(jsonBytes)
	case typeServiceAccount:
		return serviceAccountFromJSON(jsonBytes, scopes)
	case typeExternalAccount:
		return externalAccountFromJSON(jsonBytes, scopes, env)
	case typeImpersonatedServiceAccount:
		return impersonatedFromJSON(ctx, jsonBytes, scopes, env)
	case typeExternalAccountAuthorizedUser:
		return externalAccountAuthorizedUserFromJSON(jsonBytes)
	default:
		return nil, &auth.ConfigError{Message: "unrecognized credential type: " + credType}
	}
}

func authorizedUserFromJSON(j []byte) (*auth.OAuth2Credentials, error) {
	uc, err := NewUserCredentials(UserConfig{
		ClientID:       gjson.GetBytes(j, "client_id").String(),
		ClientSecret:   gjson.GetBytes(j, "client_secret").String(),
		RefreshToken:   gjson.GetBytes(j, "refresh_token").String(),
		QuotaProjectID: gjson.GetBytes(j, "quota_project_id").String(),
	})
	if err != nil {
		return nil, err
	}
	return uc.OAuth2Credentials, nil
}

func serviceAccountFromJSON(j []byte, scopes []string) (*auth.OAuth2Credentials, error) {
	sa, err := NewServiceAccountCredentials(ServiceAccountConfig{
		ClientEmail:    gjson.GetBytes(j, "client_email").String(),
		PrivateKeyID:   gjson.GetBytes(j, "private_key_id").String(),
		PrivateKey:     gjson.GetBytes(j, "private_key").String(),
		TokenURL:       gjson.GetBytes(j, "token_uri").String(),
		Scopes:         scopes,
		QuotaProjectID: gjson.GetBytes(j, "quota_project_id").String(),
		UniverseDomain: gjson.GetBytes(j, "universe_domain").String(),
	})
	if err != nil {
		return nil, err
	}
	return sa.OAuth2Credentials, nil
}

func externalAccountFromJSON(j []byte, scopes []string, env envprovider.Provider) (*auth.OAuth2Credentials, error) {
	cfg := &externalaccount.Config{
		Audience:                       gjson.GetBytes(j, "audience").String(),
		SubjectTokenType:               gjson.GetBytes(j, "subject_token_type").String(),
		TokenURL:                       gjson.GetBytes(j, "token_url").String(),
		TokenInfoURL:                   gjson.GetBytes(j, "token_info_url").String(),
		ServiceAccountImpersonationURL: gjson.GetBytes(j, "service_account_impersonation_url").String(),
		ClientID:                       gjson.GetBytes(j, "client_id").String(),
		ClientSecret:                   gjson.GetBytes(j, "client_secret").String(),
		QuotaProjectID:                 gjson.GetBytes(j, "quota_project_id").String(),
		WorkforcePoolUserProject:       gjson.GetBytes(j, "workforce_pool_user_project").String(),
		UniverseDomain:                 gjson.GetBytes(j, "universe_domain").String(),
		Scopes:                         scopes,
		CredentialSource:               credentialSourceFromJSON(j),
	}
	if lifetime := gjson.GetBytes(j, "service_account_impersonation.token_lifetime_seconds"); lifetime.Exists() {
		cfg.ServiceAccountImpersonationLifetimeSeconds = int(lifetime.Int())
	}
	return externalaccount.New(cfg, env)
}

func credentialSourceFromJSON(j []byte) externalaccount.CredentialSource {
	src := gjson.GetBytes(j, "credential_source")
	cs := externalaccount.CredentialSource{
		File:                        src.Get("file").String(),
		URL:                         src.Get("url").String(),
		EnvironmentID:               src.Get("environment_id").String(),
		RegionURL:                   src.Get("region_url").String(),
		RegionalCredVerificationURL: src.Get("regional_cred_verification_url").String(),
		IMDSv2SessionTokenURL:       src.Get("imdsv2_session_token_url").String(),
	}
	if headers := src.Get("headers"); headers.Exists() {
		cs.Headers = map[string]string{}
		headers.ForEach(func(k, v gjson.Result) bool {
			cs.Headers[k.String()] = v.String()
			return true
		})
	}
	if fmtObj := src.Get("format"); fmtObj.Exists() {
		cs.Format = externalaccount.Format{
			Type:                  fmtObj.Get("type").String(),
			SubjectTokenFieldName: fmtObj.Get("subject_token_field_name").String(),
		}
	}
	if exe := src.Get("executable"); exe.Exists() {
		ec := &externalaccount.ExecutableConfig{
			Command:    exe.Get("command").String(),
			OutputFile: exe.Get("output_file").String(),
		}
		if timeout := exe.Get("timeout_millis"); timeout.Exists() {
			ms := int(timeout.Int())
			ec.TimeoutMillis = &ms
		}
		cs.Executable = ec
	}
	return cs
}

func impersonatedFromJSON(ctx context.Context, j []byte, scopes []string, env envprovider.Provider) (*auth.OAuth2Credentials, error) {
	sourceJSON := gjson.GetBytes(j, "source_credentials").Raw
	sourceOC, err := CredentialsFromJSON(ctx, []byte(sourceJSON), nil, env)
	if err != nil {
		return nil, err
	}

	targetPrincipal, err := principalFromImpersonationURL(gjson.GetBytes(j, "service_account_impersonation_url").String())
	if err != nil {
		return nil, err
	}

	requestedScopes := scopes
	if requestedScopes == nil {
		gjson.GetBytes(j, "scopes").ForEach(func(_, v gjson.Result) bool {
			requestedScopes = append(requestedScopes, v.String())
			return true
		})
	}

	var delegates []string
	gjson.GetBytes(j, "delegates").ForEach(func(_, v gjson.Result) bool {
		delegates = append(delegates, v.String())
		return true
	})

	ic, err := NewImpersonatedCredentials(ctx, ImpersonatedConfig{
		Source:          sourceOC,
		TargetPrincipal: targetPrincipal,
		Delegates:       delegates,
		Scopes:          requestedScopes,
		QuotaProjectID:  gjson.GetBytes(j, "quota_project_id").String(),
	})
	if err != nil {
		return nil, err
	}
	return ic.OAuth2Credentials, nil
}

// principalFromImpersonationURL extracts the target service account email
// from an IAM Credentials generateAccessToken URL, the same shape
// externalaccount.Config.ServiceAccountImpersonationURL carries.
func principalFromImpersonationURL(url string) (string, error) {
	const prefix = "https://iamcredentials.googleapis.com/v1/projects/-/serviceAccounts/"
	const suffix = ":generateAccessToken"
	if len(url) <= len(prefix)+len(suffix) || url[:len(prefix)] != prefix {
		return "", &auth.ConfigError{Message: "unrecognized service_account_impersonation_url format"}
	}
	return url[len(prefix) : len(url)-len(suffix)], nil
}

func externalAccountAuthorizedUserFromJSON(j []byte) (*auth.OAuth2Credentials, error) {
	uc, err := NewUserCredentials(UserConfig{
		ClientID:       gjson.GetBytes(j, "client_id").String(),
		ClientSecret:   gjson.GetBytes(j, "client_secret").String(),
		RefreshToken:   gjson.GetBytes(j, "refresh_token").String(),
		TokenURL:       gjson.GetBytes(j, "token_url").String(),
		QuotaProjectID: gjson.GetBytes(j, "quota_project_id").String(),
	})
	if err != nil {
		return nil, err
	}
	return uc.OAuth2Credentials, nil
}
