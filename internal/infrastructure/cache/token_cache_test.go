package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gym-session/internal/domain"

	"github.com/stretchr/testify/assert"
)

// fakeSource implements domain.SessionSource for testing.
type fakeSource struct {
	calls   atomic.Int32
	session *domain.Session
	err     error
	delay   time.Duration
}

func (f *fakeSource) GetSession(_ context.Context) (*domain.Session, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.session, f.err
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestTokenCache_FreshTokenSkipsProvider(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	src := &fakeSource{session: &domain.Session{AccessToken: "from-provider"}}
	c := NewTokenCache(src, nil, WithClock(fixedClock(now)))

	c.Update("cached", now.Add(2*time.Minute).Unix())

	for i := 0; i < 3; i++ {
		assert.Equal(t, "cached", c.Get(context.Background()))
	}
	assert.Equal(t, int32(0), src.calls.Load())
}

func TestTokenCache_InsideBufferFetchesOnce(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	src := &fakeSource{session: &domain.Session{
		AccessToken: "fresh",
		ExpiresAt:   now.Add(time.Hour).Unix(),
	}}
	c := NewTokenCache(src, nil, WithClock(fixedClock(now)))

	// 60s exactly is not beyond the buffer.
	c.Update("stale", now.Add(60*time.Second).Unix())

	assert.Equal(t, "fresh", c.Get(context.Background()))
	assert.Equal(t, "fresh", c.Get(context.Background()))
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestTokenCache_ClearThenGetNeverStale(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	src := &fakeSource{}
	c := NewTokenCache(src, nil, WithClock(fixedClock(now)))

	c.Update("old", now.Add(time.Hour).Unix())
	c.Clear()
	c.Clear()

	assert.Empty(t, c.Get(context.Background()))
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Empty(t, c.Snapshot().Value)
}

func TestTokenCache_UpdateWithoutExpiryDefaultsToOneHour(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewTokenCache(&fakeSource{}, nil, WithClock(fixedClock(now)))

	c.Update("tok", 0)

	snap := c.Snapshot()
	assert.Equal(t, "tok", snap.Value)
	assert.Equal(t, now.Add(time.Hour), snap.ExpiresAt)
}

func TestTokenCache_FetchErrorReturnsEmpty(t *testing.T) {
	src := &fakeSource{err: errors.New("network down")}
	c := NewTokenCache(src, nil)

	assert.Empty(t, c.Get(context.Background()))
	assert.Empty(t, c.Snapshot().Value)
}

func TestTokenCache_NoSessionReturnsEmpty(t *testing.T) {
	src := &fakeSource{session: nil}
	c := NewTokenCache(src, nil)

	assert.Empty(t, c.Get(context.Background()))
}

func TestTokenCache_ProviderExpiryIsStored(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	exp := now.Add(30 * time.Minute).Unix()
	src := &fakeSource{session: &domain.Session{AccessToken: "t1", ExpiresAt: exp}}
	c := NewTokenCache(src, nil, WithClock(fixedClock(now)))

	assert.Equal(t, "t1", c.Get(context.Background()))
	assert.Equal(t, time.Unix(exp, 0), c.Snapshot().ExpiresAt)
}

func TestTokenCache_ConcurrentMissesShareOneFetch(t *testing.T) {
	src := &fakeSource{
		session: &domain.Session{AccessToken: "shared", ExpiresAt: time.Now().Add(time.Hour).Unix()},
		delay:   50 * time.Millisecond,
	}
	c := NewTokenCache(src, nil)

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Get(context.Background())
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, "shared", r)
	}
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestTokenCache_CustomBuffer(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	src := &fakeSource{}
	c := NewTokenCache(src, nil, WithClock(fixedClock(now)), WithExpiryBuffer(5*time.Minute))

	c.Update("tok", now.Add(2*time.Minute).Unix())

	assert.Empty(t, c.Get(context.Background()))
	assert.Equal(t, int32(1), src.calls.Load())
}

// gatedSource snapshots its session when called and holds the result until
// release is closed.
type gatedSource struct {
	mu      sync.Mutex
	session *domain.Session
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func newGatedSource(s *domain.Session) *gatedSource {
	return &gatedSource{session: s, started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedSource) GetSession(ctx context.Context) (*domain.Session, error) {
	g.mu.Lock()
	s := g.session
	g.mu.Unlock()

	if g.calls.Add(1) == 1 {
		close(g.started)
		<-g.release
	}
	return s, ctx.Err()
}

func (g *gatedSource) set(s *domain.Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.session = s
}

func TestTokenCache_ClearDuringFetchDiscardsResult(t *testing.T) {
	src := newGatedSource(&domain.Session{AccessToken: "old", ExpiresAt: time.Now().Add(time.Hour).Unix()})
	c := NewTokenCache(src, nil)

	first := make(chan string, 1)
	go func() { first <- c.Get(context.Background()) }()
	<-src.started

	src.set(nil)
	c.Clear()

	// a lookup after Clear must not join the fetch that started before it
	assert.Empty(t, c.Get(context.Background()))

	close(src.release)
	assert.Empty(t, <-first)
	assert.Empty(t, c.Snapshot().Value)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestTokenCache_UpdateAfterClearIsKept(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewTokenCache(&fakeSource{}, nil, WithClock(fixedClock(now)))

	c.Clear()
	c.Update("new", now.Add(time.Hour).Unix())

	assert.Equal(t, "new", c.Get(context.Background()))
}

func TestTokenCache_CancelledCallerDoesNotFailOthers(t *testing.T) {
	src := newGatedSource(&domain.Session{AccessToken: "shared", ExpiresAt: time.Now().Add(time.Hour).Unix()})
	c := NewTokenCache(src, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancelled := make(chan string, 1)
	go func() { cancelled <- c.Get(ctx) }()
	<-src.started

	other := make(chan string, 1)
	go func() { other <- c.Get(context.Background()) }()

	cancel()
	assert.Empty(t, <-cancelled)

	close(src.release)
	assert.Equal(t, "shared", <-other)
	assert.Equal(t, "shared", c.Snapshot().Value)
	assert.Equal(t, int32(1), src.calls.Load())
}
