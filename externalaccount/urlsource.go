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
	"io"
	"net/http"

	"github.com/external-secrets/gauth/auth"
)

// urlSubjectTokenSource retrieves a subject token from a locally hosted
// GET endpoint (spec.md §4.5's URL-sourced credentials), attaching any
// caller-configured headers.
type urlSubjectTokenSource struct {
	url        string
	headers    map[string]string
	format     Format
	httpClient *http.Client
}

func newURLSubjectTokenSource(url string, headers map[string]string, format Format, hc *http.Client) *urlSubjectTokenSource {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &urlSubjectTokenSource{url: url, headers: headers, format: format, httpClient: hc}
}

func (s *urlSubjectTokenSource) SubjectToken(ctx context.Context, _ SupplierOptions) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return "", &auth.ConfigError{Message: "failed to build subject token request", Cause: err}
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", &auth.SubjectTokenError{Message: "subject token URL request failed", Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &auth.SubjectTokenError{Message: "failed reading subject token response", Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &auth.SubjectTokenError{Message: "subject token URL returned non-200 status"}
	}
	return extractTokenFromBytes(body, s.format, s.url)
}
