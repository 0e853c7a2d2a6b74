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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/external-secrets/gauth/auth"
)

func TestExchangeSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, GrantTypeTokenExchange, r.FormValue("grant_type"))
		assert.Equal(t, "subj-tok", r.FormValue("subject_token"))
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":      "exchanged-tok",
			"issued_token_type": TokenTypeAccessToken,
			"token_type":        "Bearer",
			"expires_in":        3600,
		})
	}))
	defer server.Close()

	c := NewClient(WithEndpoint(server.URL))
	resp, err := c.Exchange(context.Background(), &ExchangeRequest{
		SubjectToken:     "subj-tok",
		SubjectTokenType: TokenTypeJWT,
		Audience:         "//iam.googleapis.com/projects/123/locations/global/workloadIdentityPools/p/providers/p",
	})
	require.NoError(t, err)
	assert.Equal(t, "exchanged-tok", resp.AccessToken)
	assert.False(t, resp.IsIntermediary)

	tok := resp.ToAccessToken(time.Unix(1000, 0))
	assert.Equal(t, "exchanged-tok", tok.TokenValue)
	require.NotNil(t, tok.ExpirationTime)
	assert.Equal(t, int64(1000+3600), tok.ExpirationTime.Unix())
}

func TestExchangeIntermediaryToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":      "intermediary-tok",
			"issued_token_type": TokenTypeAccessToken + "-workforce",
			"token_type":        "Bearer",
			"expires_in":        3600,
		})
	}))
	defer server.Close()

	c := NewClient(WithEndpoint(server.URL))
	resp, err := c.Exchange(context.Background(), &ExchangeRequest{
		SubjectToken:     "subj-tok",
		SubjectTokenType: TokenTypeJWT,
	})
	require.NoError(t, err)
	assert.True(t, resp.IsIntermediary)
}

func TestExchangeNonRetryableError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":             "invalid_request",
			"error_description": "malformed subject token",
		})
	}))
	defer server.Close()

	c := NewClient(WithEndpoint(server.URL), WithBackoff(BackoffPolicy{
		InitialDelay: time.Millisecond, Multiplier: 2, Randomization: 0, MaxAttempts: 3,
	}))
	_, err := c.Exchange(context.Background(), &ExchangeRequest{SubjectToken: "x", SubjectTokenType: TokenTypeJWT})
	require.Error(t, err)
	var tre *auth.TokenResponseError
	require.ErrorAs(t, err, &tre)
	assert.Equal(t, http.StatusBadRequest, tre.HTTPStatus)
	assert.False(t, tre.Retryable())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "non-retryable errors must not be retried")
}

func TestExchangeRetriesRetryableErrorThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":      "ok-after-retry",
			"issued_token_type": TokenTypeAccessToken,
			"expires_in":        60,
		})
	}))
	defer server.Close()

	c := NewClient(WithEndpoint(server.URL), WithBackoff(BackoffPolicy{
		InitialDelay: time.Millisecond, Multiplier: 2, Randomization: 0, MaxAttempts: 3,
	}))
	resp, err := c.Exchange(context.Background(), &ExchangeRequest{SubjectToken: "x", SubjectTokenType: TokenTypeJWT})
	require.NoError(t, err)
	assert.Equal(t, "ok-after-retry", resp.AccessToken)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestExchangeExhaustsRetriesOnPersistentFailure(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(WithEndpoint(server.URL), WithBackoff(BackoffPolicy{
		InitialDelay: time.Millisecond, Multiplier: 2, Randomization: 0, MaxAttempts: 3,
	}))
	_, err := c.Exchange(context.Background(), &ExchangeRequest{SubjectToken: "x", SubjectTokenType: TokenTypeJWT})
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestExchangeRequestEncode(t *testing.T) {
	req := &ExchangeRequest{
		SubjectToken:     "subj",
		SubjectTokenType: TokenTypeJWT,
		Audience:         "aud",
		Scope:            []string{"scope-a", "scope-b"},
	}
	v := req.Encode()
	assert.Contains(t, v, "grant_type=urn%3Aietf%3Aparams%3Aoauth%3Agrant-type%3Atoken-exchange")
	assert.Contains(t, v, "scope=scope-a+scope-b")
}
