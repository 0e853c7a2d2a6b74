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

package auth

// OAuth2CredentialsWithRefresh is an OAuth2Credentials whose refresh hook
// is a caller-supplied closure (SPEC_FULL §5.1), for external token
// sources not covered by the external-account pipeline (C5/C6) that still
// need C1's single-flight cache semantics.
type OAuth2CredentialsWithRefresh struct {
	*OAuth2Credentials
}

// NewWithRefresh builds a credential whose token comes entirely from
// refresh. initial may be nil (the first call will be EXPIRED and
// refresh synchronously).
func NewWithRefresh(initial *AccessToken, refresh RefreshFunc, quotaProjectID, universeDomain string) (*OAuth2CredentialsWithRefresh, error) {
	base, err := NewOAuth2Credentials(refresh, quotaProjectID, universeDomain, nil, nil)
	if err != nil {
		return nil, err
	}
	if initial != nil {
		base.SetAccessToken(initial)
	}
	return &OAuth2CredentialsWithRefresh{OAuth2Credentials: base}, nil
}

// Scoper is implemented by credential kinds that support createScoped
// (spec §4.2): a cloned credential with new scopes and an invalidated
// cache, so the next GetRequestMetadata call forces a refresh.
type Scoper interface {
	CreateScoped(scopes []string) (Credentials, error)
}

// InvalidatingClone is a helper concrete kinds use to implement
// CreateScoped: it builds a fresh Cache sharing the same RefreshFunc
// closure (which must itself capture the new scopes) with no cached
// token, so the first subsequent GetRequestMetadata triggers a refresh
// per spec testable property 4.
func InvalidatingClone(refresh RefreshFunc, quotaProjectID, universeDomain string, trustBoundary TrustBoundarySource) (*OAuth2Credentials, error) {
	return NewOAuth2Credentials(refresh, quotaProjectID, universeDomain, trustBoundary, nil)
}
