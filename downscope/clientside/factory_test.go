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

package clientside

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/external-secrets/gauth/auth"
	"github.com/external-secrets/gauth/downscope"
	"github.com/external-secrets/gauth/internal/clock"
	"github.com/external-secrets/gauth/sts"
)

type fakeSource struct {
	token    *auth.AccessToken
	refreshN int32
}

func (s *fakeSource) GetAccessToken() *auth.AccessToken { return s.token }
func (s *fakeSource) Refresh(ctx context.Context) error {
	atomic.AddInt32(&s.refreshN, 1)
	return nil
}

var testSessionKey = strings.Repeat("k", 24) // 24 raw bytes, base64-encoded below is 32 chars; AES-192 key size

func b64Key(raw string) string { return base64.StdEncoding.EncodeToString([]byte(raw)) }

func validBoundary() *downscope.AccessBoundary {
	return &downscope.AccessBoundary{
		AccessBoundaryRules: []downscope.AccessBoundaryRule{
			{AvailableResource: "//storage.googleapis.com/projects/_/buckets/b", AvailablePermissions: []string{"inRole:roles/storage.objectViewer"}},
		},
	}
}

func TestValidateRejectsNarrowMargin(t *testing.T) {
	p := RefreshPolicy{MinimumTokenLifetime: 30 * time.Minute, RefreshMargin: 30 * time.Minute}
	require.Error(t, p.Validate())
}

func TestValidateAcceptsDefault(t *testing.T) {
	require.NoError(t, DefaultRefreshPolicy().Validate())
}

func TestGenerateTokenFetchesIntermediaryOnce(t *testing.T) {
	var exchangeCount int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&exchangeCount, 1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, sts.TokenTypeAccessBoundaryIntermediary, r.FormValue("requested_token_type"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":                "intermediary-token",
			"issued_token_type":           sts.TokenTypeAccessBoundaryIntermediary,
			"token_type":                  "Bearer",
			"expires_in":                  3600,
			"access_boundary_session_key": b64Key(testSessionKey),
		})
	}))
	defer srv.Close()

	source := &fakeSource{token: auth.NewAccessToken("source-token", nil, nil)}
	f, err := NewFactory(source, WithSTSClient(sts.NewClient(sts.WithEndpoint(srv.URL))))
	require.NoError(t, err)

	tok1, err := f.GenerateToken(context.Background(), validBoundary())
	require.NoError(t, err)
	tok2, err := f.GenerateToken(context.Background(), validBoundary())
	require.NoError(t, err)

	assert.EqualValues(t, 1, atomic.LoadInt32(&exchangeCount), "intermediary should only be fetched once while fresh")
	assert.True(t, strings.HasPrefix(tok1.TokenValue, "intermediary-token."))
	assert.True(t, strings.HasPrefix(tok2.TokenValue, "intermediary-token."))
	// Ciphertexts use a random nonce each time, so the two outputs differ
	// even though the boundary and intermediary are identical.
	assert.NotEqual(t, tok1.TokenValue, tok2.TokenValue)
}

func TestGenerateTokenForcesBlockingRefreshBelowMinimumLifetime(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	var exchangeCount int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&exchangeCount, 1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":                "intermediary-token",
			"issued_token_type":           sts.TokenTypeAccessBoundaryIntermediary,
			"token_type":                  "Bearer",
			"expires_in":                  3600,
			"access_boundary_session_key": b64Key(testSessionKey),
		})
	}))
	defer srv.Close()

	source := &fakeSource{token: auth.NewAccessToken("source-token", nil, nil)}
	f, err := NewFactory(source,
		WithSTSClient(sts.NewClient(sts.WithEndpoint(srv.URL))),
		WithClock(fake),
		WithPolicy(RefreshPolicy{MinimumTokenLifetime: 30 * time.Minute, RefreshMargin: 45 * time.Minute}),
	)
	require.NoError(t, err)

	_, err = f.GenerateToken(context.Background(), validBoundary())
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&exchangeCount))

	// Advance into the async window: 40 minutes (2400s) remain, below the
	// 45 minute async margin but still above the 30 minute blocking one.
	fake.Advance(20 * time.Minute)
	_, err = f.GenerateToken(context.Background(), validBoundary())
	require.NoError(t, err)
	// Async refresh is fire-and-forget; give the goroutine a moment.
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 2, atomic.LoadInt32(&exchangeCount))

	// The async refresh above minted a new intermediary with a full 60
	// minute lifetime from this point; advance well past its own 30
	// minute blocking threshold to force a third, synchronous exchange.
	fake.Advance(35 * time.Minute)
	_, err = f.GenerateToken(context.Background(), validBoundary())
	require.NoError(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&exchangeCount))
}

func TestGenerateTokenRejectsEmptyBoundary(t *testing.T) {
	source := &fakeSource{token: auth.NewAccessToken("source-token", nil, nil)}
	f, err := NewFactory(source)
	require.NoError(t, err)
	_, err = f.GenerateToken(context.Background(), &downscope.AccessBoundary{})
	require.Error(t, err)
}

func TestGenerateTokenRejectsMissingSessionKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":      "intermediary-token",
			"issued_token_type": sts.TokenTypeAccessBoundaryIntermediary,
			"token_type":        "Bearer",
			"expires_in":        3600,
		})
	}))
	defer srv.Close()

	source := &fakeSource{token: auth.NewAccessToken("source-token", nil, nil)}
	f, err := NewFactory(source, WithSTSClient(sts.NewClient(sts.WithEndpoint(srv.URL))))
	require.NoError(t, err)

	_, err = f.GenerateToken(context.Background(), validBoundary())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session_key")
}
