package di

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gym-session/config"
	"gym-session/internal/domain"
)

func testConfig(kratosURL, backendURL string) *config.Config {
	return &config.Config{
		BackendURL:        backendURL,
		KratosURL:         kratosURL,
		TokenExpiryBuffer: time.Minute,
		DefaultTokenTTL:   time.Hour,
		HTTPTimeout:       5 * time.Second,
		SessionStore:      config.StoreMemory,
	}
}

func TestNewApplicationComponents_MemoryStore(t *testing.T) {
	app, err := NewApplicationComponents(testConfig("http://kratos:4433", "http://backend:8080"), nil)
	require.NoError(t, err)
	defer func() { _ = app.Close() }()

	assert.NotNil(t, app.Store)
	assert.Nil(t, app.Redis)
	assert.Nil(t, app.Push)
	assert.Equal(t, domain.InitialAuthState(), app.Session.State())
	assert.Equal(t, "http://backend:8080/api/users/me", app.Client.URL("/users/me"))
}

func TestNewApplicationComponents_RedisStoreAndPush(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig("http://kratos:4433", "http://backend:8080")
	cfg.SessionStore = config.StoreRedis
	cfg.RedisURL = "redis://" + mr.Addr() + "/0"
	cfg.PushAppID = "app-1"

	app, err := NewApplicationComponents(cfg, nil)
	require.NoError(t, err)

	require.NotNil(t, app.Redis)
	require.NotNil(t, app.Push)
	assert.NoError(t, app.Redis.Ping(context.Background()))

	require.NoError(t, app.Close())
	assert.Error(t, app.Redis.Ping(context.Background()), "connection closed")
	assert.NoError(t, app.Close(), "second close is a no-op")
}

func TestNewApplicationComponents_InvalidRedisURL(t *testing.T) {
	cfg := testConfig("http://kratos:4433", "http://backend:8080")
	cfg.SessionStore = config.StoreRedis
	cfg.RedisURL = "mysql://nope"

	_, err := NewApplicationComponents(cfg, nil)
	assert.Error(t, err)
}

func TestNewApplicationComponents_FileStore(t *testing.T) {
	cfg := testConfig("http://kratos:4433", "http://backend:8080")
	cfg.SessionStore = config.StoreFile
	cfg.SessionFile = t.TempDir() + "/session.json"

	app, err := NewApplicationComponents(cfg, nil)
	require.NoError(t, err)
	defer func() { _ = app.Close() }()

	s, err := app.Store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s)
}

// The full path: bootstrap from a stored session, load the profile, then a
// backend 401 whose refresh fails ends the session exactly once.
func TestApplication_SessionLifecycle(t *testing.T) {
	var logouts atomic.Int32
	kratosSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sessions/whoami":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"code":401,"status":"Unauthorized","message":"No valid session credentials found in the request."}}`))
		case "/self-service/logout/api":
			logouts.Add(1)
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer kratosSrv.Close()

	var profileCalls atomic.Int32
	backendSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/users/me":
			profileCalls.Add(1)
			assert.Equal(t, "Bearer T1", r.Header.Get("Authorization"))
			_ = json.NewEncoder(w).Encode(domain.Profile{ID: "p1", UserID: "u1", Username: "lifter"})
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer backendSrv.Close()

	app, err := NewApplicationComponents(testConfig(kratosSrv.URL, backendSrv.URL), nil)
	require.NoError(t, err)
	defer func() { _ = app.Close() }()

	ctx := context.Background()
	require.NoError(t, app.Store.Save(ctx, &domain.StoredSession{
		SessionID:    "s1",
		SessionToken: "st-1",
		AccessToken:  "T1",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
		UserID:       "u1",
	}))

	var invalidations []domain.SessionInvalidated
	app.Invalidations.Subscribe(func(ev domain.SessionInvalidated) { invalidations = append(invalidations, ev) })

	state := app.Session.Start(ctx)
	require.Equal(t, domain.StatusAuthenticated, state.Status)
	require.NotNil(t, state.User)
	assert.Equal(t, "lifter", state.User.Username)
	assert.Equal(t, int32(1), profileCalls.Load())

	err = app.Client.Get(ctx, "/workouts", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))

	require.Len(t, invalidations, 1)
	assert.Equal(t, "/", invalidations[0].RedirectTo)
	assert.Equal(t, int32(1), logouts.Load())
	assert.Equal(t, domain.StatusUnauthenticated, app.Session.State().Status)
	assert.Nil(t, app.Session.State().User)

	stored, err := app.Store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)
}
