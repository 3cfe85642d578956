package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	adapterhandler "gym-session/internal/adapter/handler"
	"gym-session/internal/di"
	"gym-session/internal/domain"
	appmiddleware "gym-session/middleware"
	"gym-session/utils/logger"
	"gym-session/utils/otel"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the backend-for-frontend for the browser app",
	Long: `Serve the session core over HTTP for the browser app:

  /auth/*    sign in, sign out and read the auth state
  /api/*     proxied to the backend with the session's bearer token
  /health    liveness, including the Redis session store when used
  /metrics   Prometheus metrics

A proxied call that ends the session answers 303 See Other to "/".`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("port", "", "listen port (overrides PORT)")
	serveCmd.Flags().String("listen", "", "listen address host:port (overrides LISTEN_ADDR and --port)")
	serveCmd.Flags().Bool("hsts", false, "send Strict-Transport-Security (only behind TLS)")
}

// listenAddress binds loopback unless an explicit address is given. The server
// acts as the single signed-in user for every caller that can reach it.
func listenAddress(listen, port string) string {
	if listen != "" {
		return listen
	}
	return net.JoinHostPort("127.0.0.1", port)
}

type serverOptions struct {
	otelEnabled bool
	hsts        bool
}

func runServe(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetString("port")
	listen, _ := cmd.Flags().GetString("listen")
	hsts, _ := cmd.Flags().GetBool("hsts")
	if port == "" {
		port = cfg.Port
	}
	if listen == "" {
		listen = cfg.ListenAddr
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	app, closeApp, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer closeApp()

	unsubscribe := app.Invalidations.Subscribe(func(ev domain.SessionInvalidated) {
		log.Info("session invalidated", "redirect_to", ev.RedirectTo, "reason", ev.Reason)
	})
	defer unsubscribe()

	state := app.Session.Start(ctx)
	log.InfoContext(ctx, "auth session ready", "status", state.Status.String())

	e := newServer(ctx, app, serverOptions{
		otelEnabled: otel.ConfigFromEnv(serviceName, version).Enabled,
		hsts:        hsts,
	})

	address := listenAddress(listen, port)
	log.InfoContext(ctx, "starting gymctl server", "address", address)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := e.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		log.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}

	log.Info("server exited properly")
	return nil
}

// newServer builds the Echo instance. Rate limiter sweeps stop with ctx.
func newServer(ctx context.Context, app *di.ApplicationComponents, opts serverOptions) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(appmiddleware.SecurityHeaders(opts.hsts))

	if opts.otelEnabled {
		e.Use(otelecho.Middleware(serviceName))
	}

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		RequestIDHandler: func(c echo.Context, id string) {
			c.SetRequest(c.Request().WithContext(logger.WithRequestID(c.Request().Context(), id)))
		},
	}))

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == "/health" || c.Request().URL.Path == "/metrics"
		},
		LogStatus:   true,
		LogURI:      true,
		LogError:    true,
		LogMethod:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			rctx := c.Request().Context()
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
			}
			if v.Error != nil {
				log.ErrorContext(rctx, "request failed", append(attrs, "error", v.Error.Error())...)
				return nil
			}
			log.InfoContext(rctx, "request completed", attrs...)
			return nil
		},
	}))

	e.Use(middleware.Recover())

	limiter := appmiddleware.NewRateLimiter(ctx, rate.Limit(app.Config.RateLimitRPS), app.Config.RateLimitBurst)

	deps := map[string]adapterhandler.Pinger{}
	if app.Redis != nil {
		deps["redis"] = app.Redis
	}
	authLogger := log.With("component", "auth_handler")

	e.GET("/health", adapterhandler.NewHealthHandler(deps).Handle)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	adapterhandler.NewAuthHandler(app.Session, app.Kratos, app.Kratos, authLogger).
		Register(e.Group("/auth", limiter.Middleware()))

	e.Any("/api/*", adapterhandler.NewProxyHandler(app.Client, log.With("component", "proxy")).Handle, limiter.Middleware())

	return e
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGTERM, syscall.SIGINT)
}
