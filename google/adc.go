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
	"path/filepath"
	"runtime"

	"github.com/external-secrets/gauth/auth"
	"github.com/external-secrets/gauth/internal/envprovider"
)

const applicationCredentialsEnvVar = "GOOGLE_APPLICATION_CREDENTIALS"

// FindDefaultCredentials resolves Application Default Credentials per
// spec.md §4.9's search order: the GOOGLE_APPLICATION_CREDENTIALS env var,
// then the gcloud well-known file, then the GCE/GKE/Cloud Run metadata
// server. scopes is applied to whichever JSON-sourced credential kind
// needs it (service_account, external_account); it is ignored for the GCE
// fallback, which instead inherits the attached service account's scopes.
func FindDefaultCredentials(ctx context.Context, scopes []string, env envprovider.Provider) (*auth.OAuth2Credentials, error) {
	if env == nil {
		env = envprovider.OS{}
	}

	if path, ok := env.LookupEnv(applicationCredentialsEnvVar); ok && path != "" {
		return credentialsFromFile(ctx, path, scopes, env)
	}

	if path, ok := wellKnownFilePath(env); ok {
		if _, err := env.Stat(path); err == nil {
			return credentialsFromFile(ctx, path, scopes, env)
		}
	}

	if onGCE(env.Getenv("NO_GCE_CHECK")) {
		return NewComputeEngineCredentials(ComputeEngineConfig{Scopes: scopes})
	}

	return nil, &auth.ConfigError{Message: "could not find default credentials: set GOOGLE_APPLICATION_CREDENTIALS, run 'gcloud auth application-default login', or run on Google infrastructure"}
}

func credentialsFromFile(ctx context.Context, path string, scopes []string, env envprovider.Provider) (*auth.OAuth2Credentials, error) {
	data, err := env.ReadFile(path)
	if err != nil {
		return nil, &auth.ConfigError{Message: "failed to read credentials file " + path, Cause: err}
	}
	return CredentialsFromJSON(ctx, data, scopes, env)
}

// wellKnownFilePath mirrors gcloud's own config directory resolution:
// CLOUDSDK_CONFIG if set, otherwise an OS-specific default under the
// user's home directory.
func wellKnownFilePath(env envprovider.Provider) (string, bool) {
	if dir := env.Getenv("CLOUDSDK_CONFIG"); dir != "" {
		return filepath.Join(dir, "application_default_credentials.json"), true
	}
	home, err := env.UserHomeDir()
	if err != nil || home == "" {
		return "", false
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(home, "AppData", "Roaming", "gcloud", "application_default_credentials.json"), true
	}
	return filepath.Join(home, ".config", "gcloud", "application_default_credentials.json"), true
}
