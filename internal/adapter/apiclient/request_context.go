package apiclient

import (
	"context"
	"sync/atomic"
)

type requestContextKey struct{}

// RequestContext is the mutable metadata of one logical backend call. It
// survives redirects and the auth retry, so its flags bound retries to one.
type RequestContext struct {
	retried     atomic.Bool
	invalidated atomic.Bool
}

// WithRequestContext returns ctx carrying a RequestContext, reusing one that is
// already attached.
func WithRequestContext(ctx context.Context) (context.Context, *RequestContext) {
	if rc, ok := RequestContextFrom(ctx); ok {
		return ctx, rc
	}
	rc := &RequestContext{}
	return context.WithValue(ctx, requestContextKey{}, rc), rc
}

// RequestContextFrom extracts the RequestContext from ctx.
func RequestContextFrom(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc, ok && rc != nil
}

// Retried reports whether the call was already resent after a 401.
func (rc *RequestContext) Retried() bool {
	return rc.retried.Load()
}

// Invalidated reports whether the call ended the session.
func (rc *RequestContext) Invalidated() bool {
	return rc.invalidated.Load()
}

// markRetried sets the retry flag; false means it was already set.
func (rc *RequestContext) markRetried() bool {
	return rc.retried.CompareAndSwap(false, true)
}

func (rc *RequestContext) markInvalidated() bool {
	return rc.invalidated.CompareAndSwap(false, true)
}
