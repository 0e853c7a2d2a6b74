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
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/external-secrets/gauth/auth"
	"github.com/external-secrets/gauth/downscope"
	"github.com/external-secrets/gauth/internal/clock"
	"github.com/external-secrets/gauth/sts"
)

// RefreshPolicy configures the two-threshold intermediary refresh of
// spec.md §4.8, distinct from C1's three-state FRESH/STALE/EXPIRED cache:
// there are only two lines, and crossing either one triggers a refresh of
// a different urgency.
type RefreshPolicy struct {
	// MinimumTokenLifetime: remaining lifetime below this forces a
	// blocking refresh before GenerateToken returns.
	MinimumTokenLifetime time.Duration
	// RefreshMargin: remaining lifetime below this (but still above
	// MinimumTokenLifetime) triggers a non-blocking background refresh.
	RefreshMargin time.Duration
}

// DefaultRefreshPolicy is spec.md §4.8's default: 30 minute blocking
// threshold, 45 minute async threshold.
func DefaultRefreshPolicy() RefreshPolicy {
	return RefreshPolicy{MinimumTokenLifetime: 30 * time.Minute, RefreshMargin: 45 * time.Minute}
}

// Validate enforces the build-time invariant refreshMargin >=
// minimumTokenLifetime + 60s (spec.md §4.8, Testable Property 10).
func (p RefreshPolicy) Validate() error {
	if p.RefreshMargin < p.MinimumTokenLifetime+60*time.Second {
		return &auth.ConfigError{Message: "clientside: refreshMargin must be at least minimumTokenLifetime + 60s"}
	}
	return nil
}

// refreshTask is a single-flight slot, identical in shape to
// auth.Cache's, duplicated here because the blocking/async split point is
// governed by RefreshPolicy's two thresholds rather than auth.Margins'
// three states.
type refreshTask struct {
	done  chan struct{}
	token *auth.AccessToken
	key   []byte
	err   error
}

func newRefreshTask() *refreshTask { return &refreshTask{done: make(chan struct{})} }

func (t *refreshTask) finish(tok *auth.AccessToken, key []byte, err error) {
	t.token, t.key, t.err = tok, key, err
	close(t.done)
}

// Factory is the ClientSideCredentialAccessBoundaryFactory of spec.md
// §4.8: it holds the intermediary access token and session key and mints
// locally-encrypted downscoped tokens from them.
type Factory struct {
	mu    sync.Mutex
	token *auth.AccessToken
	key   []byte
	task  *refreshTask

	source    downscope.SourceTokenProvider
	stsClient *sts.Client
	scope     []string
	policy    RefreshPolicy
	aead      AEAD
	clock     clock.Clock
	log       logr.Logger
}

// Option configures a Factory at construction time.
type Option func(*Factory)

func WithScope(scope []string) Option     { return func(f *Factory) { f.scope = scope } }
func WithAEAD(a AEAD) Option              { return func(f *Factory) { f.aead = a } }
func WithPolicy(p RefreshPolicy) Option   { return func(f *Factory) { f.policy = p } }
func WithLogger(l logr.Logger) Option     { return func(f *Factory) { f.log = l } }
func WithClock(c clock.Clock) Option {
	return func(f *Factory) {
		if c != nil {
			f.clock = c
		}
	}
}

// NewFactory builds a Factory over source, the base credential whose
// token is exchanged for the intermediary. stsOpts configure the
// underlying sts.Client (endpoint, backoff, ...).
func NewFactory(source downscope.SourceTokenProvider, opts ...Option) (*Factory, error) {
	f := &Factory{
		source:    source,
		stsClient: sts.NewClient(),
		policy:    DefaultRefreshPolicy(),
		aead:      DefaultAEAD(),
		clock:     clock.Real(),
		log:       logr.Discard(),
	}
	for _, o := range opts {
		o(f)
	}
	if err := f.policy.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// WithSTSClient replaces the Factory's STS client, e.g. to point at a
// regional workforce-pool endpoint.
func WithSTSClient(c *sts.Client) Option {
	return func(f *Factory) { f.stsClient = c }
}

// GenerateToken implements spec.md §4.8's generateToken(boundary):
// synchronously ensures the intermediary is usable, then serializes,
// compiles, and AEAD-encrypts boundary, returning the combined token.
func (f *Factory) GenerateToken(ctx context.Context, boundary *downscope.AccessBoundary) (*auth.AccessToken, error) {
	if err := boundary.Validate(); err != nil {
		return nil, err
	}
	intermediary, key, err := f.ensureIntermediary(ctx)
	if err != nil {
		return nil, err
	}

	record, err := serializeBoundary(boundary)
	if err != nil {
		return nil, err
	}
	ciphertext, err := f.aead.Encrypt(key, record)
	if err != nil {
		return nil, err
	}

	downscoped := intermediary.TokenValue + "." + base64.RawURLEncoding.EncodeToString(ciphertext)
	return auth.NewAccessToken(downscoped, intermediary.ExpirationTime, boundaryScopes(boundary)), nil
}

func boundaryScopes(b *downscope.AccessBoundary) []string {
	resources := make([]string, 0, len(b.AccessBoundaryRules))
	for _, r := range b.AccessBoundaryRules {
		resources = append(resources, r.AvailableResource)
	}
	return resources
}

// ensureIntermediary implements the two-threshold policy: below
// MinimumTokenLifetime blocks, below RefreshMargin schedules an async
// refresh and returns the still-usable cached value, otherwise returns
// the cached value with no I/O.
func (f *Factory) ensureIntermediary(ctx context.Context) (*auth.AccessToken, []byte, error) {
	f.mu.Lock()
	tok, key := f.token, f.key
	remaining := time.Duration(0)
	if tok != nil && tok.ExpirationTime != nil {
		remaining = tok.ExpirationTime.Sub(f.clock.Now())
	}
	needBlocking := tok == nil || remaining < f.policy.MinimumTokenLifetime
	needAsync := !needBlocking && remaining < f.policy.RefreshMargin
	f.mu.Unlock()

	if needBlocking {
		return f.joinOrStart(ctx)
	}
	if needAsync {
		f.scheduleAsync(ctx)
	}
	return tok, key, nil
}

func (f *Factory) joinOrStart(ctx context.Context) (*auth.AccessToken, []byte, error) {
	f.mu.Lock()
	if f.task != nil {
		task := f.task
		f.mu.Unlock()
		if err := waitFor(ctx, task); err != nil {
			return nil, nil, err
		}
		return task.token, task.key, task.err
	}
	task := newRefreshTask()
	f.task = task
	f.mu.Unlock()

	tok, key, err := f.fetchIntermediary(ctx)

	f.mu.Lock()
	if err == nil {
		f.token, f.key = tok, key
	}
	f.task = nil
	f.mu.Unlock()

	task.finish(tok, key, err)
	return tok, key, err
}

func (f *Factory) scheduleAsync(ctx context.Context) {
	f.mu.Lock()
	if f.task != nil {
		f.mu.Unlock()
		return
	}
	task := newRefreshTask()
	f.task = task
	f.mu.Unlock()

	go func() {
		tok, key, err := f.fetchIntermediary(ctx)

		f.mu.Lock()
		if err == nil {
			f.token, f.key = tok, key
		}
		f.task = nil
		f.mu.Unlock()

		task.finish(tok, key, err)
		if err != nil {
			f.log.V(1).Info("async intermediary refresh failed, retaining cached value", "error", err.Error())
		}
	}()
}

func waitFor(ctx context.Context, task *refreshTask) error {
	select {
	case <-task.done:
		return nil
	case <-ctx.Done():
		return &auth.IOError{Message: "clientside: intermediary refresh join cancelled", Cause: ctx.Err()}
	}
}

// fetchIntermediary performs the single STS exchange of spec.md §4.8:
// requested_token_type = access_boundary_intermediary_token against the
// source credential's current access token.
func (f *Factory) fetchIntermediary(ctx context.Context) (*auth.AccessToken, []byte, error) {
	if err := f.source.Refresh(ctx); err != nil {
		return nil, nil, err
	}
	sourceToken := f.source.GetAccessToken()
	if sourceToken == nil || sourceToken.TokenValue == "" {
		return nil, nil, &auth.ConfigError{Message: "clientside: source credential produced no access token"}
	}

	resp, err := f.stsClient.Exchange(ctx, &sts.ExchangeRequest{
		SubjectToken:       sourceToken.TokenValue,
		SubjectTokenType:   sts.TokenTypeAccessToken,
		RequestedTokenType: sts.TokenTypeAccessBoundaryIntermediary,
		Scope:              f.scope,
	})
	if err != nil {
		return nil, nil, err
	}
	if resp.AccessBoundarySessionKey == "" {
		return nil, nil, &auth.ConfigError{Message: "clientside: STS response missing access_boundary_session_key"}
	}
	key, err := base64.StdEncoding.DecodeString(resp.AccessBoundarySessionKey)
	if err != nil {
		return nil, nil, &auth.ConfigError{Message: "clientside: session key is not valid base64", Cause: err}
	}

	tok := resp.ToAccessToken(f.clock.Now())
	return tok, key, nil
}
