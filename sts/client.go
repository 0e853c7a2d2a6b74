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
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/external-secrets/gauth/auth"
)

const DefaultEndpoint = "https://sts.googleapis.com/v1/token"

// BackoffPolicy configures the exponential backoff retry loop of spec.md
// §4.3: an initial delay, a multiplier, jitter randomization, and an
// attempt cap, applied only to retryable failures (IOError or a
// TokenResponseError whose Retryable() is true).
type BackoffPolicy struct {
	InitialDelay  time.Duration
	Multiplier    float64
	Randomization float64
	MaxAttempts   int
}

// DefaultBackoffPolicy matches the margins carried over from the Java
// client this spec distills: 1s initial delay, doubling, 10% jitter, 3
// attempts total.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		InitialDelay:  time.Second,
		Multiplier:    2,
		Randomization: 0.1,
		MaxAttempts:   3,
	}
}

// Client exchanges subject tokens for access tokens against a Security
// Token Service endpoint (Google's by default, or a custom one for
// workforce pool configurations pointing at a regional endpoint).
type Client struct {
	endpoint   string
	httpClient *http.Client
	backoff    BackoffPolicy
	log        logr.Logger
	now        func() time.Time
	limiter    *rate.Limiter
}

// ClientOption configures a Client at construction time.
type ClientOption func(*Client)

func WithEndpoint(endpoint string) ClientOption {
	return func(c *Client) {
		if endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithBackoff(b BackoffPolicy) ClientOption { return func(c *Client) { c.backoff = b } }
func WithLogger(l logr.Logger) ClientOption    { return func(c *Client) { c.log = l } }

// WithRateLimit caps outbound Exchange attempts (including retries) to r
// events per second with the given burst, client-side insurance against
// hammering the token endpoint when many credentials share one Client.
func WithRateLimit(r rate.Limit, burst int) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(r, burst) }
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		endpoint:   DefaultEndpoint,
		httpClient: http.DefaultClient,
		backoff:    DefaultBackoffPolicy(),
		log:        logr.Discard(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Exchange performs the RFC 8693 token exchange, retrying retryable
// failures per c.backoff.
func (c *Client) Exchange(ctx context.Context, req *ExchangeRequest) (*ExchangeResponse, error) {
	correlationID := uuid.NewString()
	var lastErr error
	delay := c.backoff.InitialDelay
	attempts := c.backoff.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, &auth.IOError{Message: "sts exchange rate limited", Cause: err}
			}
		}
		resp, err := c.doExchange(ctx, req, correlationID)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryable(err) || attempt == attempts {
			return nil, err
		}

		c.log.V(1).Info("sts exchange failed, retrying", "attempt", attempt, "correlation_id", correlationID, "error", err.Error())
		jittered := jitter(delay, c.backoff.Randomization)
		select {
		case <-time.After(jittered):
		case <-ctx.Done():
			return nil, &auth.IOError{Message: "sts exchange cancelled during backoff", Cause: ctx.Err()}
		}
		delay = time.Duration(float64(delay) * c.backoff.Multiplier)
	}
	return nil, lastErr
}

func (c *Client) doExchange(ctx context.Context, req *ExchangeRequest, correlationID string) (*ExchangeResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(req.Encode()))
	if err != nil {
		return nil, &auth.ConfigError{Message: "sts: failed to build request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("X-Request-Id", correlationID)
	if req.ClientID != "" && req.ClientSecret != "" {
		httpReq.SetBasicAuth(req.ClientID, req.ClientSecret)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &auth.IOError{Message: "sts: request failed", Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &auth.IOError{Message: "sts: failed reading response body", Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		eb := parseErrorBody(body)
		c.log.V(1).Info("sts exchange rejected", "correlation_id", correlationID, "status", resp.StatusCode)
		return nil, &auth.TokenResponseError{
			HTTPStatus:       resp.StatusCode,
			ErrorCode:        eb.Error,
			ErrorDescription: eb.ErrorDescription,
		}
	}

	return ParseExchangeResponse(body)
}

func isRetryable(err error) bool {
	switch e := err.(type) {
	case *auth.TokenResponseError:
		return e.Retryable()
	case *auth.IOError:
		return true
	default:
		return false
	}
}

func jitter(d time.Duration, randomization float64) time.Duration {
	if randomization <= 0 {
		return d
	}
	delta := float64(d) * randomization
	return d + time.Duration((rand.Float64()*2-1)*delta)
}
