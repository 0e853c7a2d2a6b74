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
	"github.com/tidwall/gjson"

	"github.com/external-secrets/gauth/auth"
)

// tokenResponseError mirrors sts.Client's non-200 handling (RFC 6749 §5.2's
// error/error_description shape) for the oauth2 token endpoint and the GCE
// metadata server, both of which reuse the same error body.
func tokenResponseError(status int, body []byte) error {
	return &auth.TokenResponseError{
		HTTPStatus:       status,
		ErrorCode:        gjson.GetBytes(body, "error").String(),
		ErrorDescription: gjson.GetBytes(body, "error_description").String(),
	}
}

// jsonField extracts a single top-level string field, for response shapes
// too narrow to warrant a dedicated struct (e.g. id_token).
func jsonField(body []byte, field string) string {
	return gjson.GetBytes(body, field).String()
}
