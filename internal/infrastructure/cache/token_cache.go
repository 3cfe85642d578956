package cache

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"gym-session/internal/domain"
	"gym-session/metrics"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultExpiryBuffer is how long before expiry a cached token stops being served.
	DefaultExpiryBuffer = 60 * time.Second
	// DefaultTokenTTL applies when Update is called without an expiry.
	DefaultTokenTTL = time.Hour
)

// TokenCache holds the current bearer token and its expiry.
// Implements domain.TokenCache.
type TokenCache struct {
	mu    sync.RWMutex
	token domain.CachedToken
	// gen increments on Clear; fetches started under an older gen are discarded.
	gen uint64

	source domain.SessionSource
	group  singleflight.Group
	logger *slog.Logger

	buffer     time.Duration
	defaultTTL time.Duration
	now        func() time.Time
}

// Option customizes a TokenCache.
type Option func(*TokenCache)

// WithExpiryBuffer overrides the staleness buffer.
func WithExpiryBuffer(d time.Duration) Option {
	return func(c *TokenCache) { c.buffer = d }
}

// WithDefaultTTL overrides the TTL used when Update has no expiry.
func WithDefaultTTL(d time.Duration) Option {
	return func(c *TokenCache) { c.defaultTTL = d }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *TokenCache) { c.now = now }
}

// NewTokenCache creates a token cache that falls back to source on a miss.
func NewTokenCache(source domain.SessionSource, logger *slog.Logger, opts ...Option) *TokenCache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &TokenCache{
		source:     source,
		logger:     logger,
		buffer:     DefaultExpiryBuffer,
		defaultTTL: DefaultTokenTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached token while it is fresh, otherwise fetches the
// provider's current session and caches it. Returns "" when there is no session
// or the fetch fails; the error is logged, not returned.
//
// Concurrent misses share one fetch. A caller whose ctx ends stops waiting and
// gets "", while the shared fetch completes for the others.
func (c *TokenCache) Get(ctx context.Context) string {
	c.mu.RLock()
	token, gen := c.token, c.gen
	c.mu.RUnlock()

	if token.FreshAt(c.now(), c.buffer) {
		metrics.RecordCacheLookup("hit")
		return token.Value
	}

	ch := c.group.DoChan("session-"+strconv.FormatUint(gen, 10), func() (interface{}, error) {
		return c.fetch(context.WithoutCancel(ctx), gen), nil
	})

	select {
	case res := <-ch:
		return res.Val.(string)
	case <-ctx.Done():
		c.logger.WarnContext(ctx, "token lookup abandoned", "error", ctx.Err())
		return ""
	}
}

func (c *TokenCache) fetch(ctx context.Context, gen uint64) string {
	// Another caller may have filled the cache since the read in Get.
	if current := c.Snapshot(); current.FreshAt(c.now(), c.buffer) {
		return current.Value
	}

	session, err := c.source.GetSession(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to fetch session for token cache", "error", err)
		metrics.RecordCacheLookup("error")
		return ""
	}
	if !session.Valid() {
		metrics.RecordCacheLookup("empty")
		return ""
	}

	if !c.store(gen, session.AccessToken, session.ExpiresAt) {
		c.logger.DebugContext(ctx, "token cache cleared during fetch, discarding session")
		metrics.RecordCacheLookup("cleared")
		return ""
	}
	metrics.RecordCacheLookup("miss")
	return session.AccessToken
}

// Clear wipes the cached token and expiry. Fetches already in flight will not
// write their result back.
func (c *TokenCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = domain.CachedToken{}
	c.gen++
}

// Update overwrites the cached token. An expiresAtEpochSeconds of zero means
// the expiry is unknown and defaults to now plus the default TTL.
func (c *TokenCache) Update(token string, expiresAtEpochSeconds int64) {
	expiresAt := c.expiry(expiresAtEpochSeconds)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = domain.CachedToken{Value: token, ExpiresAt: expiresAt}
}

// store writes a fetched token unless Clear ran since gen was read.
func (c *TokenCache) store(gen uint64, token string, expiresAtEpochSeconds int64) bool {
	expiresAt := c.expiry(expiresAtEpochSeconds)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen {
		return false
	}
	c.token = domain.CachedToken{Value: token, ExpiresAt: expiresAt}
	return true
}

func (c *TokenCache) expiry(epochSeconds int64) time.Time {
	if epochSeconds > 0 {
		return time.Unix(epochSeconds, 0)
	}
	return c.now().Add(c.defaultTTL)
}

// Snapshot returns the raw cached token without freshness checks.
func (c *TokenCache) Snapshot() domain.CachedToken {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}
