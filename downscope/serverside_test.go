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

package downscope

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/external-secrets/gauth/auth"
	"github.com/external-secrets/gauth/sts"
)

// fakeSource is a minimal SourceTokenProvider stub whose Refresh call count
// is observable.
type fakeSource struct {
	token    *auth.AccessToken
	refreshN int
}

func (s *fakeSource) GetAccessToken() *auth.AccessToken { return s.token }
func (s *fakeSource) Refresh(ctx context.Context) error {
	s.refreshN++
	return nil
}

func validBoundary() *AccessBoundary {
	return &AccessBoundary{
		AccessBoundaryRules: []AccessBoundaryRule{
			{
				AvailableResource:    "//storage.googleapis.com/projects/_/buckets/bucket",
				AvailablePermissions: []string{"inRole:roles/storage.objectViewer"},
				AvailabilityCondition: &AvailabilityCondition{
					Expression: `resource.name.startsWith("projects/_/buckets/bucket/objects/customer-a")`,
					Title:      "customer-a-objects",
				},
			},
		},
	}
}

func TestEncodeAccessBoundarySingleRule(t *testing.T) {
	out, err := encodeAccessBoundary(validBoundary())
	require.NoError(t, err)
	require.True(t, gjson.Valid(out))

	rules := gjson.Get(out, "accessBoundary.accessBoundaryRules").Array()
	require.Len(t, rules, 1)
	assert.Equal(t, "//storage.googleapis.com/projects/_/buckets/bucket", rules[0].Get("availableResource").String())
	assert.Equal(t, "inRole:roles/storage.objectViewer", rules[0].Get("availablePermissions.0").String())
	assert.Equal(t, "customer-a-objects", rules[0].Get("availabilityCondition.title").String())
}

func TestEncodeAccessBoundaryMultipleRulesAppend(t *testing.T) {
	b := &AccessBoundary{
		AccessBoundaryRules: []AccessBoundaryRule{
			{AvailableResource: "//a", AvailablePermissions: []string{"inRole:roles/viewer"}},
			{AvailableResource: "//b", AvailablePermissions: []string{"inRole:roles/editor"}},
		},
	}
	out, err := encodeAccessBoundary(b)
	require.NoError(t, err)
	rules := gjson.Get(out, "accessBoundary.accessBoundaryRules").Array()
	require.Len(t, rules, 2)
	assert.Equal(t, "//a", rules[0].Get("availableResource").String())
	assert.Equal(t, "//b", rules[1].Get("availableResource").String())
}

func TestNewRejectsEmptyBoundary(t *testing.T) {
	_, err := New(&fakeSource{}, &AccessBoundary{})
	require.Error(t, err)
	var cfgErr *auth.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestRefreshExchangesAndClampsExpiration(t *testing.T) {
	sourceExp := time.Now().Add(30 * time.Minute)
	source := &fakeSource{token: auth.NewAccessToken("source-token", &sourceExp, nil)}

	var gotOptions string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "source-token", r.FormValue("subject_token"))
		gotOptions = r.FormValue("options")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":      "downscoped-token",
			"issued_token_type": sts.TokenTypeAccessToken,
			"token_type":        "Bearer",
			// requests a token that would outlive the source; refresh must clamp it.
			"expires_in": 3600,
		})
	}))
	defer srv.Close()

	creds, err := New(source, validBoundary(), sts.WithEndpoint(srv.URL))
	require.NoError(t, err)

	tok, err := creds.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "downscoped-token", tok.TokenValue)
	assert.Equal(t, 1, source.refreshN)
	require.NotNil(t, tok.ExpirationTime)
	assert.True(t, tok.ExpirationTime.Equal(sourceExp), "downscoped token must be clamped to the source's expiration")

	require.True(t, gjson.Valid(gotOptions))
	assert.Equal(t, "//storage.googleapis.com/projects/_/buckets/bucket",
		gjson.Get(gotOptions, "accessBoundary.accessBoundaryRules.0.availableResource").String())
}

func TestRefreshPropagatesSourceError(t *testing.T) {
	source := &erroringSource{}
	creds, err := New(source, validBoundary())
	require.NoError(t, err)
	_, err = creds.Refresh(context.Background())
	require.Error(t, err)
}

type erroringSource struct{}

func (erroringSource) GetAccessToken() *auth.AccessToken { return nil }
func (erroringSource) Refresh(ctx context.Context) error {
	return &auth.IOError{Message: "source unavailable"}
}

func TestRefreshRejectsEmptySourceToken(t *testing.T) {
	source := &fakeSource{token: nil}
	creds, err := New(source, validBoundary())
	require.NoError(t, err)
	_, err = creds.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no access token")
}
