package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gym-session/config"
	"gym-session/internal/di"
	"gym-session/internal/domain"
)

// setupEnv points configuration at the given backend with an in-memory session
// store and no config file.
func setupEnv(t *testing.T, backendURL string) {
	t.Helper()
	for _, k := range []string{
		"KRATOS_ADMIN_URL", "KRATOS_TOKENIZE_TEMPLATE", "PUSH_APP_ID", "SESSION_FILE",
		"REDIS_URL", "LOG_LEVEL", "OTEL_ENABLED", "GYMCTL_PASSWORD",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("KRATOS_URL", "http://127.0.0.1:1")
	t.Setenv("BACKEND_URL", backendURL)
	t.Setenv("SESSION_STORE", "memory")
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	cfgFile = ""
	verbose = false
	colorFlag = "never"
}

// resetFlags restores every flag to its default; cobra keeps parsed values on
// the package-level commands between executions.
func resetFlags() {
	for _, c := range append(rootCmd.Commands(), rootCmd) {
		c.Flags().VisitAll(func(f *pflag.Flag) {
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				_ = sv.Replace(nil)
			} else {
				_ = f.Value.Set(f.DefValue)
			}
			f.Changed = false
		})
	}
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Cleanup(resetFlags)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(append(args, "--color", "never"))
	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRootCmd_Help(t *testing.T) {
	setupEnv(t, "http://localhost:8080")

	out, _, err := execute(t, "--help")
	require.NoError(t, err)

	for _, sub := range []string{"login", "logout", "whoami", "request", "serve", "version"} {
		assert.Contains(t, out, sub)
	}
}

func TestRootCmd_UnknownCommand(t *testing.T) {
	setupEnv(t, "http://localhost:8080")

	_, _, err := execute(t, "nonexistent-command")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	setupEnv(t, "http://localhost:8080")
	t.Setenv("KRATOS_URL", "")
	SetVersion("1.4.0")
	SetBuildInfo("abc1234", "2026-10-01T00:00:00Z")

	out, _, err := execute(t, "version")
	require.NoError(t, err, "version runs without KRATOS_URL")
	assert.Contains(t, out, "gymctl version 1.4.0")
	assert.Contains(t, out, "commit:     abc1234")

	out, _, err = execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "1.4.0\n", out)
	resetFlags()

	out, _, err = execute(t, "version", "--json")
	require.NoError(t, err)
	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "abc1234", info["commit"])
}

func TestConfigErrorSurfaces(t *testing.T) {
	setupEnv(t, "http://localhost:8080")
	t.Setenv("KRATOS_URL", "")

	_, _, err := execute(t, "whoami")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KRATOS_URL")
}

func TestWhoami_NoSession(t *testing.T) {
	setupEnv(t, "http://localhost:8080")
	t.Setenv("PUSH_APP_ID", "app-1")

	out, _, err := execute(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "[unauthenticated]")

	out, _, err = execute(t, "whoami", "--json")
	require.NoError(t, err)
	var state map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	assert.Equal(t, "unauthenticated", state["status"])
	assert.Equal(t, false, state["isLoading"])
}

func TestLogin_RequiresAMethod(t *testing.T) {
	setupEnv(t, "http://localhost:8080")

	_, _, err := execute(t, "login")
	assert.Error(t, err)
}

func TestRequest_PrintsBody(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/workouts", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "yes", r.Header.Get("X-Dry-Run"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"w1"}`))
	}))
	defer backend.Close()
	setupEnv(t, backend.URL)

	out, _, err := execute(t, "request", "post", "/workouts", "-d", `{"name":"legs"}`, "-H", "X-Dry-Run: yes")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"w1"}`, out)
}

func TestRequest_SessionEnded(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer backend.Close()
	setupEnv(t, backend.URL)

	_, _, err := execute(t, "request", "GET", "/users/me")
	assert.ErrorIs(t, err, errSessionEnded)
}

func TestRequest_InvalidHeader(t *testing.T) {
	setupEnv(t, "http://localhost:8080")

	_, _, err := execute(t, "request", "GET", "/users/me", "-H", "no-colon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid header")
}

func TestHealthcheck(t *testing.T) {
	setupEnv(t, "http://localhost:8080")

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()
	unhealthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer unhealthy.Close()

	assert.NoError(t, runHealthcheck(healthy.URL))
	assert.Error(t, runHealthcheck(unhealthy.URL))
}

func TestListenAddress(t *testing.T) {
	tests := []struct {
		name   string
		listen string
		port   string
		want   string
	}{
		{"loopback by default", "", "8090", "127.0.0.1:8090"},
		{"explicit address wins", "0.0.0.0:9000", "8090", "0.0.0.0:9000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, listenAddress(tt.listen, tt.port))
		})
	}
}

func newTestServerApp(t *testing.T, backendURL string) *di.ApplicationComponents {
	t.Helper()
	log = slog.Default()
	app, err := di.NewApplicationComponents(&config.Config{
		BackendURL:        backendURL,
		KratosURL:         "http://127.0.0.1:1",
		TokenExpiryBuffer: time.Minute,
		DefaultTokenTTL:   time.Hour,
		HTTPTimeout:       5 * time.Second,
		SessionStore:      config.StoreMemory,
		RateLimitRPS:      100,
		RateLimitBurst:    100,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func TestServer_Routes(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/expired" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer backend.Close()

	app := newTestServerApp(t, backend.URL)
	app.Session.Start(context.Background())
	e := newServer(t.Context(), app, serverOptions{})

	tests := []struct {
		name         string
		method       string
		path         string
		wantCode     int
		wantContains string
	}{
		{"health", http.MethodGet, "/health", http.StatusOK, `"healthy"`},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK, "go_goroutines"},
		{"auth state", http.MethodGet, "/auth/state", http.StatusOK, `"isAuthenticated":false`},
		{"proxied api", http.MethodGet, "/api/workouts", http.StatusOK, `{"ok":true}`},
		{"unknown route", http.MethodGet, "/nope", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantContains)
			assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
			assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
		})
	}
}

func TestServer_InvalidatedSessionRedirects(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer backend.Close()

	app := newTestServerApp(t, backend.URL)
	var invalidations []domain.SessionInvalidated
	app.Invalidations.Subscribe(func(ev domain.SessionInvalidated) { invalidations = append(invalidations, ev) })
	e := newServer(t.Context(), app, serverOptions{})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/me", nil))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Len(t, invalidations, 1)
}
