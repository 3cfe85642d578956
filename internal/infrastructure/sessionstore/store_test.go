package sessionstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gym-session/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSession(expiresAt int64) *domain.StoredSession {
	return &domain.StoredSession{
		SessionID:    "sess-1",
		SessionToken: "ory_st_abc",
		AccessToken:  "ory_st_abc",
		ExpiresAt:    expiresAt,
		UserID:       "user-1",
		Email:        "lifter@example.com",
	}
}

// storeContract runs the behaviour every domain.SessionStore must satisfy.
func storeContract(t *testing.T, store domain.SessionStore) {
	t.Helper()
	ctx := context.Background()

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "empty store loads nil")

	want := sampleSession(time.Now().Add(time.Hour).Unix())
	require.NoError(t, store.Save(ctx, want))

	got, err = store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.SessionID, got.SessionID)
	assert.Equal(t, want.SessionToken, got.SessionToken)
	assert.Equal(t, want.ExpiresAt, got.ExpiresAt)
	assert.Equal(t, want.Email, got.Email)

	require.NoError(t, store.Delete(ctx))
	require.NoError(t, store.Delete(ctx), "delete is idempotent")

	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestMemoryStore_LoadReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, sampleSession(0)))

	got, _ := store.Load(ctx)
	got.AccessToken = "mutated"

	again, _ := store.Load(ctx)
	assert.Equal(t, "ory_st_abc", again.AccessToken)
}

func TestFileStore(t *testing.T) {
	storeContract(t, NewFileStore(filepath.Join(t.TempDir(), "nested", "session.json")))
}

func TestFileStore_Permissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := NewFileStore(path)
	require.NoError(t, store.Save(context.Background(), sampleSession(0)))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path).Load(context.Background())
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore(t *testing.T) {
	_, client := newTestRedis(t)
	storeContract(t, NewRedisStore(client, "test", "cli"))
}

func TestRedisStore_KeyAndTTL(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisStore(client, "", "")

	require.NoError(t, store.Save(context.Background(), sampleSession(time.Now().Add(10*time.Minute).Unix())))

	assert.True(t, mr.Exists("gymsession:session:default"))
	ttl := mr.TTL("gymsession:session:default")
	assert.Greater(t, ttl, 9*time.Minute)
	assert.LessOrEqual(t, ttl, 10*time.Minute)

	mr.FastForward(11 * time.Minute)
	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStore_SaveExpiredDeletes(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisStore(client, "test", "cli")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleSession(0)))
	require.NoError(t, store.Save(ctx, sampleSession(time.Now().Add(-time.Minute).Unix())))

	assert.False(t, mr.Exists("test:session:cli"))
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisStore(client, "test", "cli")
	mr.Close()

	_, err := store.Load(context.Background())
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))
	assert.True(t, errors.Is(store.Ping(context.Background()), domain.ErrStoreUnavailable))
}

func TestNewRedisStoreWithURL_Invalid(t *testing.T) {
	_, err := NewRedisStoreWithURL("not a url", "", "")
	assert.Error(t, err)
}
