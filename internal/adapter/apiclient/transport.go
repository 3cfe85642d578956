package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"gym-session/internal/domain"
	"gym-session/internal/infrastructure/events"
	"gym-session/metrics"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "gym-session/apiclient"

	// RootPath is where the hosting shell sends the user after the session ends.
	RootPath = "/"

	requestIDHeader = "X-Request-ID"
)

// AuthTransport attaches the cached bearer token to every request and, on a
// 401, refreshes the provider session and resends the request once.
type AuthTransport struct {
	base        http.RoundTripper
	tokens      domain.TokenCache
	sessions    domain.SessionRefresher
	invalidated *events.Broker[domain.SessionInvalidated]
	logger      *slog.Logger
}

// NewAuthTransport wraps base (http.DefaultTransport when nil). Session
// invalidations are published on invalidated.
func NewAuthTransport(
	base http.RoundTripper,
	tokens domain.TokenCache,
	sessions domain.SessionRefresher,
	invalidated *events.Broker[domain.SessionInvalidated],
	logger *slog.Logger,
) *AuthTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthTransport{
		base:        base,
		tokens:      tokens,
		sessions:    sessions,
		invalidated: invalidated,
		logger:      logger,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, rc := WithRequestContext(req.Context())

	out, err := prepare(req.Clone(ctx))
	if err != nil {
		return nil, err
	}

	if token := t.tokens.Get(ctx); token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.send(out)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || !rc.markRetried() {
		return resp, nil
	}

	t.tokens.Clear()

	session, err := t.sessions.RefreshSession(ctx)
	if err != nil || !session.Valid() {
		if err == nil {
			err = domain.ErrSessionNotFound
		}
		t.logger.WarnContext(ctx, "session refresh after 401 failed",
			"method", req.Method,
			"path", req.URL.Path,
			"error", err)
		metrics.RecordRefresh("failure")
		t.invalidate(ctx, rc, err)
		return resp, nil
	}
	metrics.RecordRefresh("success")
	t.tokens.Update(session.AccessToken, session.ExpiresAt)

	retry, err := rewind(out)
	if err != nil {
		t.logger.ErrorContext(ctx, "cannot replay request body", "error", err)
		return resp, nil
	}
	drain(resp)

	retry.Header.Set("Authorization", "Bearer "+session.AccessToken)
	t.logger.DebugContext(ctx, "resending request with refreshed session",
		"method", req.Method,
		"path", req.URL.Path)

	retried, err := t.send(retry)
	if err != nil {
		return nil, err
	}
	metrics.RecordRetry(retried.StatusCode)
	return retried, nil
}

// send performs one traced, measured round trip.
func (t *AuthTransport) send(req *http.Request) (*http.Response, error) {
	ctx, span := otel.Tracer(tracerName).Start(req.Context(), "HTTP "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.URL.Path),
		))
	defer span.End()

	req = req.WithContext(ctx)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		metrics.RecordAPIRequest(req.Method, 0, time.Since(start).Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	metrics.RecordAPIRequest(req.Method, resp.StatusCode, time.Since(start).Seconds())

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}
	return resp, nil
}

// invalidate ends the session once per logical request: sign out, ignoring
// errors, then tell the hosting shell to go to the root page.
func (t *AuthTransport) invalidate(ctx context.Context, rc *RequestContext, reason error) {
	if !rc.markInvalidated() {
		return
	}

	if err := t.sessions.SignOut(ctx); err != nil {
		t.logger.WarnContext(ctx, "sign-out after failed refresh returned error", "error", err)
	}
	metrics.RecordInvalidation()

	if t.invalidated != nil {
		t.invalidated.Publish(domain.SessionInvalidated{
			RedirectTo: RootPath,
			Reason:     reason,
		})
	}
}

// prepare tags the request with an ID and makes its body replayable.
func prepare(req *http.Request) (*http.Request, error) {
	if req.Header.Get(requestIDHeader) == "" {
		req.Header.Set(requestIDHeader, uuid.NewString())
	}

	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return req, nil
	}

	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("buffer request body: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return req, nil
}

var errBodyNotReplayable = errors.New("request body cannot be replayed")

// rewind clones req with a fresh copy of its body.
func rewind(req *http.Request) (*http.Request, error) {
	retry := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return retry, nil
	}
	if req.GetBody == nil {
		return nil, errBodyNotReplayable
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	retry.Body = body
	return retry, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
