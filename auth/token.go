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

// Package auth implements the credential resolution and token-cache core
// shared by every concrete credential kind in gauth: the AccessToken value
// type, the single-flight refresh engine, and the polymorphic Credentials
// abstraction that assembles outgoing request headers.
package auth

import (
	"sort"
	"time"
)

// AccessToken is an immutable bearer token value, its expiration, and the
// scopes it was minted for. A nil ExpirationTime means the token never
// expires from the cache's perspective.
type AccessToken struct {
	TokenValue     string
	ExpirationTime *time.Time
	Scopes         []string
}

// NewAccessToken builds an AccessToken, defensively copying scopes so the
// caller's slice can be reused.
func NewAccessToken(value string, expiration *time.Time, scopes []string) *AccessToken {
	var cp []string
	if len(scopes) > 0 {
		cp = make([]string, len(scopes))
		copy(cp, scopes)
	}
	return &AccessToken{TokenValue: value, ExpirationTime: expiration, Scopes: cp}
}

// Equal reports whether two tokens have identical value, expiration, and
// scope set (order-insensitive for scopes, per spec: "all three components
// are equal").
func (t *AccessToken) Equal(o *AccessToken) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.TokenValue != o.TokenValue {
		return false
	}
	if !equalExpiration(t.ExpirationTime, o.ExpirationTime) {
		return false
	}
	return equalScopeSet(t.Scopes, o.Scopes)
}

func equalExpiration(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func equalScopeSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string(nil), a...)
	sb := append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}
