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

import (
	"context"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestURI(t *testing.T) *url.URL {
	t.Helper()
	u, err := url.Parse("https://example.googleapis.com/v1/resource")
	require.NoError(t, err)
	return u
}

func TestGetRequestMetadataHeaderOrder(t *testing.T) {
	refresh := func(ctx context.Context) (*AccessToken, error) {
		return NewAccessToken("abc123", expTime(time.Now(), time.Hour), nil), nil
	}
	tb := stubTrustBoundary{value: "0xA30", ok: true}
	creds, err := NewOAuth2Credentials(refresh, "my-quota-project", "", tb, nil)
	require.NoError(t, err)

	headers, err := creds.GetRequestMetadata(context.Background(), newTestURI(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"Bearer abc123"}, headers["Authorization"])
	assert.Equal(t, []string{"my-quota-project"}, headers["x-goog-user-project"])
	assert.Equal(t, []string{"0xA30"}, headers["x-allowed-locations"])
}

type stubTrustBoundary struct {
	value string
	ok    bool
	err   error
}

func (s stubTrustBoundary) Header(ctx context.Context, tok *AccessToken) (string, bool, error) {
	return s.value, s.ok, s.err
}

func TestGetRequestMetadataNoQuotaProjectOmitsHeader(t *testing.T) {
	refresh := func(ctx context.Context) (*AccessToken, error) {
		return NewAccessToken("tok", expTime(time.Now(), time.Hour), nil), nil
	}
	creds, err := NewOAuth2Credentials(refresh, "", "", nil, nil)
	require.NoError(t, err)

	headers, err := creds.GetRequestMetadata(context.Background(), newTestURI(t))
	require.NoError(t, err)
	_, present := headers["x-goog-user-project"]
	assert.False(t, present)
	_, present = headers["x-allowed-locations"]
	assert.False(t, present)
}

func TestGetRequestMetadataExtraHeaders(t *testing.T) {
	refresh := func(ctx context.Context) (*AccessToken, error) {
		return NewAccessToken("tok", expTime(time.Now(), time.Hour), nil), nil
	}
	extra := func(ctx context.Context, uri *url.URL, tok *AccessToken) (map[string][]string, error) {
		return map[string][]string{"x-goog-api-client": {"gauth/1"}}, nil
	}
	creds, err := NewOAuth2Credentials(refresh, "", "", nil, extra)
	require.NoError(t, err)

	headers, err := creds.GetRequestMetadata(context.Background(), newTestURI(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"gauth/1"}, headers["x-goog-api-client"])
}

func TestUniverseDomainDefault(t *testing.T) {
	refresh := func(ctx context.Context) (*AccessToken, error) { return nil, nil }
	creds, err := NewOAuth2Credentials(refresh, "", "", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultUniverseDomain, creds.GetUniverseDomain())

	creds2, err := NewOAuth2Credentials(refresh, "", "my-universe.example.com", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "my-universe.example.com", creds2.GetUniverseDomain())
}

func TestWithQuotaProjectIDSharesCache(t *testing.T) {
	var calls int32
	refresh := func(ctx context.Context) (*AccessToken, error) {
		atomic.AddInt32(&calls, 1)
		return NewAccessToken("tok", expTime(time.Now(), time.Hour), nil), nil
	}
	creds, err := NewOAuth2Credentials(refresh, "p1", "", nil, nil)
	require.NoError(t, err)

	_, err = creds.Refresh(context.Background())
	require.NoError(t, err)

	clone := creds.WithQuotaProjectID("p2")
	assert.Equal(t, "p2", clone.QuotaProjectID())
	assert.Equal(t, "p1", creds.QuotaProjectID())

	// The clone shares the underlying Cache, so it sees the already-fresh
	// token without triggering another refresh.
	tok := clone.GetAccessToken()
	require.NotNil(t, tok)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

// TestCreateScopedInvalidatesCache covers Testable Property 4: a scoped
// clone starts EXPIRED even though the parent was FRESH.
func TestCreateScopedInvalidatesCache(t *testing.T) {
	parentRefresh := func(ctx context.Context) (*AccessToken, error) {
		return NewAccessToken("parent-tok", expTime(time.Now(), time.Hour), []string{"scope-a"}), nil
	}
	parent, err := NewOAuth2Credentials(parentRefresh, "", "", nil, nil)
	require.NoError(t, err)
	_, err = parent.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, Fresh, parent.State())

	var scopedCalls int32
	scopedRefresh := func(ctx context.Context) (*AccessToken, error) {
		atomic.AddInt32(&scopedCalls, 1)
		return NewAccessToken("scoped-tok", expTime(time.Now(), time.Hour), []string{"scope-b"}), nil
	}
	scoped, err := InvalidatingClone(scopedRefresh, "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, Expired, scoped.State())

	_, err = scoped.GetRequestMetadata(context.Background(), newTestURI(t))
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&scopedCalls))
	assert.Equal(t, "scoped-tok", scoped.GetAccessToken().TokenValue)
}

func TestNewWithRefreshUsesInitialToken(t *testing.T) {
	var calls int32
	refresh := func(ctx context.Context) (*AccessToken, error) {
		atomic.AddInt32(&calls, 1)
		return NewAccessToken("fetched", expTime(time.Now(), time.Hour), nil), nil
	}
	initial := NewAccessToken("preloaded", expTime(time.Now(), time.Hour), nil)
	creds, err := NewWithRefresh(initial, refresh, "", "")
	require.NoError(t, err)

	headers, err := creds.GetRequestMetadata(context.Background(), newTestURI(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"Bearer preloaded"}, headers["Authorization"])
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}
