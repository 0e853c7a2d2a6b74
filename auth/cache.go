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
	"sync"

	"github.com/go-logr/logr"

	"github.com/external-secrets/gauth/internal/clock"
)

// RefreshFunc performs the concrete, credential-kind-specific token fetch.
// It is the "abstract refreshAccessToken() hook" of spec §4.1, implemented
// by each concrete credential kind (service account, external account,
// impersonation, ...).
type RefreshFunc func(ctx context.Context) (*AccessToken, error)

// refreshTask is a single-flight slot: at most one exists on a Cache at any
// instant. Competing callers observe the same task and wait on done.
type refreshTask struct {
	done  chan struct{}
	token *AccessToken
	err   error
}

func newRefreshTask() *refreshTask {
	return &refreshTask{done: make(chan struct{})}
}

func (t *refreshTask) finish(tok *AccessToken, err error) {
	t.token, t.err = tok, err
	close(t.done)
}

// Cache is the C1 token cache core: an expiration-based state machine over
// an AccessToken with single-flight, non-blocking refresh and change
// listener fan-out. It is safe for concurrent use; no operation holds its
// lock across I/O.
type Cache struct {
	mu      sync.Mutex
	token   *AccessToken
	task    *refreshTask
	margins Margins
	clock   clock.Clock
	log     logr.Logger

	listenersMu sync.Mutex
	listeners   []ChangeListener

	refresh RefreshFunc
}

// NewCache builds a Cache. refresh must not be nil. An empty Margins uses
// the spec defaults. A zero logr.Logger discards log-and-drop messages.
func NewCache(refresh RefreshFunc, opts ...CacheOption) (*Cache, error) {
	if refresh == nil {
		return nil, &ConfigError{Message: "refresh function is required"}
	}
	c := &Cache{
		margins: DefaultMargins(),
		clock:   clock.Real(),
		log:     logr.Discard(),
		refresh: refresh,
	}
	for _, o := range opts {
		o(c)
	}
	if err := c.margins.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// CacheOption configures a Cache at construction time.
type CacheOption func(*Cache)

func WithMargins(m Margins) CacheOption { return func(c *Cache) { c.margins = m } }
func WithClock(cl clock.Clock) CacheOption {
	return func(c *Cache) {
		if cl != nil {
			c.clock = cl
		}
	}
}
func WithLogger(l logr.Logger) CacheOption { return func(c *Cache) { c.log = l } }
func WithInitialToken(t *AccessToken) CacheOption {
	return func(c *Cache) { c.token = t }
}

// GetAccessToken returns the cached value with no I/O.
func (c *Cache) GetAccessToken() *AccessToken {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// SetAccessToken atomically replaces the cached token without a network
// round trip (e.g. after construction from a pre-fetched value, or to
// support createScoped's invalidation per spec §4.2).
func (c *Cache) SetAccessToken(t *AccessToken) {
	c.mu.Lock()
	c.token = t
	c.mu.Unlock()
}

func (c *Cache) state() TokenState {
	return stateOf(c.token, c.clock.Now(), c.margins)
}

// State reports the cache's current freshness without performing I/O.
func (c *Cache) State() TokenState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state()
}

// AddChangeListener registers l to be invoked after every successful
// refresh, in registration order. Duplicate registrations are permitted.
func (c *Cache) AddChangeListener(l ChangeListener) {
	c.listenersMu.Lock()
	c.listeners = append(c.listeners, l)
	c.listenersMu.Unlock()
}

// RemoveChangeListener removes the first registration matching l's
// identity is not comparable in Go for funcs, so callers needing removal
// should keep a handle; this removes by index via RemoveChangeListenerAt.
// RemoveChangeListener is a no-op placeholder retained for interface
// symmetry with spec §3 ("remove removes the first matching
// registration"); gauth exposes index-based removal instead because Go
// function values are not comparable.
func (c *Cache) RemoveChangeListenerAt(i int) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	if i < 0 || i >= len(c.listeners) {
		return
	}
	c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
}

func (c *Cache) notifyListeners(tok *AccessToken) {
	c.listenersMu.Lock()
	ls := append([]ChangeListener(nil), c.listeners...)
	c.listenersMu.Unlock()
	for _, l := range ls {
		safeInvoke(l, tok)
	}
}

func safeInvoke(l ChangeListener, tok *AccessToken) {
	defer func() { _ = recover() }()
	l(tok)
}

// Refresh performs an unconditional synchronous token fetch, joining an
// in-flight refresh if one already exists.
func (c *Cache) Refresh(ctx context.Context) (*AccessToken, error) {
	return c.joinOrStart(ctx)
}

// RefreshIfExpired fetches a new token only if the cache is currently
// Expired; otherwise it returns the cached token unchanged.
func (c *Cache) RefreshIfExpired(ctx context.Context) (*AccessToken, error) {
	c.mu.Lock()
	if c.state() != Expired {
		tok := c.token
		c.mu.Unlock()
		return tok, nil
	}
	c.mu.Unlock()
	return c.joinOrStart(ctx)
}

// joinOrStart implements the EXPIRED join-or-create half of spec §4.1's
// algorithm: a refreshTask slot is created under the lock; competing
// callers observe the same task and await it without holding the lock
// across I/O.
func (c *Cache) joinOrStart(ctx context.Context) (*AccessToken, error) {
	c.mu.Lock()
	if c.task != nil {
		task := c.task
		c.mu.Unlock()
		if err := waitFor(ctx, task); err != nil {
			return nil, err
		}
		// Retry from step 1: the joined task may have left the cache
		// FRESH, or may have failed and left it STALE/EXPIRED still.
		if task.err != nil {
			return nil, task.err
		}
		return task.token, nil
	}
	task := newRefreshTask()
	c.task = task
	c.mu.Unlock()

	tok, err := c.refresh(ctx)

	c.mu.Lock()
	if err == nil {
		c.token = tok
	}
	c.task = nil
	c.mu.Unlock()

	task.finish(tok, err)
	if err != nil {
		return nil, err
	}
	c.notifyListeners(tok)
	return tok, nil
}

// waitFor blocks until task completes or ctx is cancelled, surfacing
// cancellation as an IOError per spec §5 ("blocking join respects thread
// interruption and aborts with an IO-class failure").
func waitFor(ctx context.Context, task *refreshTask) error {
	select {
	case <-task.done:
		return nil
	case <-ctx.Done():
		return &IOError{Message: "refresh join cancelled", Cause: ctx.Err()}
	}
}

// scheduleAsync starts a refresh in the background if none is already in
// flight; it never blocks the caller (spec §4.1 STALE path). Failures are
// logged and dropped so the still-valid token continues to serve (spec
// §7).
func (c *Cache) scheduleAsync(ctx context.Context) {
	c.mu.Lock()
	if c.task != nil {
		c.mu.Unlock()
		return
	}
	task := newRefreshTask()
	c.task = task
	c.mu.Unlock()

	go func() {
		tok, err := c.refresh(ctx)

		c.mu.Lock()
		if err == nil {
			c.token = tok
		}
		c.task = nil
		c.mu.Unlock()

		task.finish(tok, err)
		if err != nil {
			c.log.V(1).Info("async refresh failed, retaining cached token", "error", err.Error())
			return
		}
		c.notifyListeners(tok)
	}()
}

// EnsureFresh implements the full spec §4.1 getRequestMetadata algorithm
// up through "have a usable token": FRESH returns immediately, STALE
// schedules an async refresh and returns the still-valid token, EXPIRED
// joins or starts a synchronous refresh.
func (c *Cache) EnsureFresh(ctx context.Context) (*AccessToken, error) {
	c.mu.Lock()
	st := c.state()
	tok := c.token
	c.mu.Unlock()

	switch st {
	case Fresh:
		return tok, nil
	case Stale:
		c.scheduleAsync(ctx)
		return tok, nil
	default: // Expired
		return c.joinOrStart(ctx)
	}
}
