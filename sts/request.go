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

// Package sts implements the RFC 8693 OAuth 2.0 Token Exchange client used
// by external account credentials (workload/workforce identity federation)
// and by client-initiated downscoping.
package sts

import (
	"net/url"
	"strings"
)

const (
	GrantTypeTokenExchange    = "urn:ietf:params:oauth:grant-type:token-exchange"
	TokenTypeAccessToken      = "urn:ietf:params:oauth:token-type:access_token"
	TokenTypeIDToken          = "urn:ietf:params:oauth:token-type:id_token"
	TokenTypeSAML2            = "urn:ietf:params:oauth:token-type:saml2"
	TokenTypeJWT              = "urn:ietf:params:oauth:token-type:jwt"
	// TokenTypeAccessBoundaryIntermediary requests a client-side CAB
	// intermediary token plus session key (spec.md §4.8) instead of a
	// directly usable access token.
	TokenTypeAccessBoundaryIntermediary = "urn:ietf:params:oauth:token-type:access_boundary_intermediary_token"
	CloudPlatformScope                  = "https://www.googleapis.com/auth/cloud-platform"
	defaultRequestedTokenType = TokenTypeAccessToken
)

// ExchangeRequest is the RFC 8693 token exchange request, form-encoded per
// spec.md §4.3/§6. Fields left empty are omitted from the encoded body.
type ExchangeRequest struct {
	Audience           string
	GrantType          string
	RequestedTokenType string
	SubjectToken       string
	SubjectTokenType   string
	Scope              []string // space-joined into "scope"
	ActingParty        string   // optional actor_token pairing, rarely used

	// Options carries the options.userProject / options.accessBoundary JSON
	// payload (spec.md §4.8), URL-encoded into the "options" form field.
	Options string

	// ClientID/ClientSecret, when both set, authenticate the exchange call
	// itself via HTTP Basic auth (spec.md §4.6, required by some workforce
	// pool provider configurations).
	ClientID     string
	ClientSecret string
}

// Encode renders r as an application/x-www-form-urlencoded body.
func (r *ExchangeRequest) Encode() string {
	v := url.Values{}
	grantType := r.GrantType
	if grantType == "" {
		grantType = GrantTypeTokenExchange
	}
	v.Set("grant_type", grantType)

	requestedType := r.RequestedTokenType
	if requestedType == "" {
		requestedType = defaultRequestedTokenType
	}
	v.Set("requested_token_type", requestedType)

	v.Set("subject_token", r.SubjectToken)
	v.Set("subject_token_type", r.SubjectTokenType)
	if r.Audience != "" {
		v.Set("audience", r.Audience)
	}
	if len(r.Scope) > 0 {
		v.Set("scope", strings.Join(r.Scope, " "))
	}
	if r.ActingParty != "" {
		v.Set("actor_token", r.ActingParty)
	}
	if r.Options != "" {
		v.Set("options", r.Options)
	}
	return v.Encode()
}
