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

package sts

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/external-secrets/gauth/auth"
)

// ExchangeResponse is the parsed RFC 8693 token exchange response. An
// intermediary token (requested_token_type=access_token but the server
// signals it cannot be used directly, e.g. workforce pool user tokens
// needing a subsequent IAM call) is reported via IsIntermediary.
type ExchangeResponse struct {
	AccessToken     string
	IssuedTokenType string
	TokenType       string
	ExpiresIn       int64
	Scope           []string

	// AccessBoundarySessionKey is set only when IssuedTokenType is
	// TokenTypeAccessBoundaryIntermediary (spec.md §4.8): a base64-encoded
	// AEAD key the caller uses to locally encrypt access boundary rules
	// into a client-side downscoped token.
	AccessBoundarySessionKey string

	// IsIntermediary is true when IssuedTokenType is not access_token,
	// signalling the caller must feed AccessToken into a further exchange
	// (workforce pool subject token flow, spec.md §4.6) rather than using
	// it directly as a bearer token.
	IsIntermediary bool
}

// ParseExchangeResponse decodes a raw STS JSON response body using gjson,
// tolerating field absence and differing numeric encodings the way a
// hand-rolled struct tag set would not.
func ParseExchangeResponse(body []byte) (*ExchangeResponse, error) {
	if !gjson.ValidBytes(body) {
		return nil, &auth.IOError{Message: "sts: response is not valid JSON"}
	}
	root := gjson.ParseBytes(body)

	accessToken := root.Get("access_token").String()
	if accessToken == "" {
		return nil, &auth.IOError{Message: "sts: response missing access_token"}
	}
	issuedType := root.Get("issued_token_type").String()

	var scope []string
	if s := root.Get("scope").String(); s != "" {
		scope = strings.Fields(s)
	}

	return &ExchangeResponse{
		AccessToken:              accessToken,
		IssuedTokenType:          issuedType,
		TokenType:                root.Get("token_type").String(),
		ExpiresIn:                root.Get("expires_in").Int(),
		Scope:                    scope,
		AccessBoundarySessionKey: root.Get("access_boundary_session_key").String(),
		IsIntermediary:           issuedType != "" && issuedType != TokenTypeAccessToken,
	}, nil
}

// ToAccessToken converts a direct (non-intermediary) exchange response into
// an auth.AccessToken, computing an absolute expiration from the server's
// relative expires_in and the supplied reference time.
func (r *ExchangeResponse) ToAccessToken(now time.Time) *auth.AccessToken {
	var expiration *time.Time
	if r.ExpiresIn > 0 {
		e := now.Add(time.Duration(r.ExpiresIn) * time.Second)
		expiration = &e
	}
	return auth.NewAccessToken(r.AccessToken, expiration, r.Scope)
}

// errorBody mirrors RFC 6749 §5.2's error response shape, which STS reuses.
type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func parseErrorBody(body []byte) errorBody {
	var e errorBody
	e.Error = gjson.GetBytes(body, "error").String()
	e.ErrorDescription = gjson.GetBytes(body, "error_description").String()
	return e
}
