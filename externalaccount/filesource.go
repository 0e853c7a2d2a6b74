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

	"github.com/tidwall/gjson"

	"github.com/external-secrets/gauth/auth"
	"github.com/external-secrets/gauth/internal/envprovider"
)

// fileSubjectTokenSource reads a subject token from a file a background
// process is expected to keep refreshed (spec.md §4.5: "a background
// process needs to be continuously refreshing the file location").
type fileSubjectTokenSource struct {
	path   string
	format Format
	env    envprovider.Provider
}

func newFileSubjectTokenSource(path string, format Format, env envprovider.Provider) *fileSubjectTokenSource {
	return &fileSubjectTokenSource{path: path, format: format, env: env}
}

func (s *fileSubjectTokenSource) SubjectToken(ctx context.Context, _ SupplierOptions) (string, error) {
	data, err := s.env.ReadFile(s.path)
	if err != nil {
		return "", &auth.SubjectTokenError{Message: "failed to read subject token file " + s.path, Cause: err}
	}
	return extractTokenFromBytes(data, s.format, s.path)
}

// extractTokenFromBytes parses a file/URL-sourced response body per
// spec.md §4.5: plain text by default, or a named JSON field when
// format.Type is "json".
func extractTokenFromBytes(data []byte, format Format, source string) (string, error) {
	if format.Type == "" || format.Type == "text" {
		return trimTrailingNewline(data), nil
	}
	if format.Type != "json" {
		return "", &auth.SubjectTokenError{Message: "unsupported subject token format " + format.Type}
	}
	if format.SubjectTokenFieldName == "" {
		return "", &auth.ConfigError{Message: "subject_token_field_name is required for json format"}
	}
	if !gjson.ValidBytes(data) {
		return "", &auth.SubjectTokenError{Message: "subject token source " + source + " did not return valid JSON"}
	}
	result := gjson.GetBytes(data, format.SubjectTokenFieldName)
	if !result.Exists() {
		return "", &auth.SubjectTokenError{Message: "field " + format.SubjectTokenFieldName + " missing from subject token response"}
	}
	return result.String(), nil
}

func trimTrailingNewline(data []byte) string {
	n := len(data)
	for n > 0 && (data[n-1] == '\n' || data[n-1] == '\r') {
		n--
	}
	return string(data[:n])
}
