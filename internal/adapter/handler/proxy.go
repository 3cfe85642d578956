package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"gym-session/internal/adapter/apiclient"

	"github.com/labstack/echo/v4"
)

// hopHeaders are dropped in both directions. Credentials are dropped too: the
// pipeline attaches its own bearer and keeps backend cookies in its jar.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Authorization",
	"Cookie",
	"Set-Cookie",
}

// ProxyHandler forwards /api/* to the backend through the request pipeline.
type ProxyHandler struct {
	client *apiclient.Client
	logger *slog.Logger
}

// NewProxyHandler creates a new proxy handler.
func NewProxyHandler(client *apiclient.Client, l *slog.Logger) *ProxyHandler {
	if l == nil {
		l = slog.Default()
	}
	return &ProxyHandler{client: client, logger: l}
}

// Handle proxies one request. When the pipeline gave up on the session the
// browser is sent to the root page instead of seeing the 401.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()
	ctx := req.Context()

	path := req.URL.Path
	if req.URL.RawQuery != "" {
		path += "?" + req.URL.RawQuery
	}

	header := req.Header.Clone()
	stripHeaders(header)

	var body io.Reader
	if req.ContentLength != 0 && req.Body != nil && req.Body != http.NoBody {
		body = req.Body
	}

	resp, rc, err := h.client.Raw(ctx, req.Method, path, header, body)
	if err != nil {
		return mapDomainError(err)
	}
	defer resp.Body.Close()

	if rc.Invalidated() {
		h.logger.InfoContext(ctx, "session invalidated, redirecting to root",
			"method", req.Method,
			"path", req.URL.Path)
		return c.Redirect(http.StatusSeeOther, apiclient.RootPath)
	}

	out := c.Response().Header()
	for k, v := range resp.Header {
		out[k] = v
	}
	stripHeaders(out)

	c.Response().WriteHeader(resp.StatusCode)
	if strings.HasPrefix(resp.Header.Get(echo.HeaderContentType), "text/event-stream") {
		streamResponse(c.Response(), resp.Body)
		return nil
	}
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.WarnContext(ctx, "copying backend response failed", "error", err)
	}
	return nil
}

// streamResponse copies an event stream, flushing after every read.
func streamResponse(w *echo.Response, body io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			w.Flush()
		}
		if err != nil {
			return
		}
	}
}

func stripHeaders(h http.Header) {
	for _, k := range hopHeaders {
		h.Del(k)
	}
}
