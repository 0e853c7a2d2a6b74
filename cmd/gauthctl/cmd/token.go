/*
Copyright © 2026 ESO Maintainer Team

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

package cmd

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/external-secrets/gauth/auth"
	"github.com/external-secrets/gauth/google"
)

var (
	credentialsFile string
	scopesFlag      string
	metadataURI     string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Resolve a credential and report its token metadata",
	Long: `token resolves Application Default Credentials (or --credentials-file,
if set) and prints the resulting token's state, expiration and scopes.

The bearer token value itself is never printed.`,
	RunE: tokenRun,
}

func init() {
	tokenCmd.Flags().StringVar(&credentialsFile, "credentials-file", "", "path to a credentials JSON file; defaults to ADC discovery")
	tokenCmd.Flags().StringVar(&scopesFlag, "scopes", "", "comma-separated OAuth2 scopes to request")
	tokenCmd.Flags().StringVar(&metadataURI, "request-uri", "", "URI the resolved request metadata should be computed for")
}

func tokenRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	env := defaultEnv()

	var scopes []string
	if scopesFlag != "" {
		scopes = strings.Split(scopesFlag, ",")
	}

	var creds *auth.OAuth2Credentials
	var err error
	if credentialsFile != "" {
		raw, readErr := env.ReadFile(credentialsFile)
		if readErr != nil {
			return fmt.Errorf("reading credentials file: %w", readErr)
		}
		creds, err = google.CredentialsFromJSON(ctx, raw, scopes, env)
	} else {
		creds, err = google.FindDefaultCredentials(ctx, scopes, env)
	}
	if err != nil {
		return fmt.Errorf("resolving credentials: %w", err)
	}

	var uri *url.URL
	if metadataURI != "" {
		uri, err = url.Parse(metadataURI)
		if err != nil {
			return fmt.Errorf("parsing --request-uri: %w", err)
		}
	}

	headers, err := creds.GetRequestMetadata(ctx, uri)
	if err != nil {
		return fmt.Errorf("fetching token: %w", err)
	}

	tok := creds.GetAccessToken()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "state:            %s\n", creds.State())
	fmt.Fprintf(out, "universe domain:  %s\n", creds.GetUniverseDomain())
	if tok != nil {
		expiry := "never"
		if tok.ExpirationTime != nil {
			expiry = tok.ExpirationTime.Format("2006-01-02T15:04:05Z07:00")
		}
		fmt.Fprintf(out, "expires:          %s\n", expiry)
		fmt.Fprintf(out, "scopes:           %s\n", strings.Join(tok.Scopes, ","))
	}
	for _, header := range []string{"x-goog-user-project", "x-allowed-locations"} {
		if v, ok := headers[header]; ok {
			fmt.Fprintf(out, "%s: %s\n", header, strings.Join(v, ","))
		}
	}
	log.V(1).Info("resolved credential", "type", fmt.Sprintf("%T", creds))
	return nil
}
