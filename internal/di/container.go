// Package di wires the application's components from configuration.
package di

import (
	"errors"
	"fmt"
	"log/slog"

	"gym-session/config"
	"gym-session/internal/adapter/apiclient"
	"gym-session/internal/adapter/gateway"
	"gym-session/internal/domain"
	"gym-session/internal/infrastructure/cache"
	"gym-session/internal/infrastructure/events"
	"gym-session/internal/infrastructure/sessionstore"
	"gym-session/internal/usecase"
)

// ApplicationComponents holds all wired dependencies for the application.
type ApplicationComponents struct {
	Config *config.Config
	Logger *slog.Logger

	// Infrastructure
	Store         domain.SessionStore
	Redis         *sessionstore.RedisStore // nil unless SESSION_STORE=redis
	Tokens        *cache.TokenCache
	Invalidations *events.Broker[domain.SessionInvalidated]

	// Adapters
	Kratos   *gateway.KratosGateway
	Client   *apiclient.Client
	Profiles *gateway.ProfileGateway
	Push     *gateway.PushRegistrar // nil unless PUSH_APP_ID is set

	// Usecases
	Session *usecase.AuthSession

	closers []func() error
}

// NewApplicationComponents wires all dependencies from cfg.
func NewApplicationComponents(cfg *config.Config, log *slog.Logger) (*ApplicationComponents, error) {
	if log == nil {
		log = slog.Default()
	}
	c := &ApplicationComponents{Config: cfg, Logger: log}

	store, err := c.newSessionStore()
	if err != nil {
		return nil, err
	}
	c.Store = store

	c.Kratos = gateway.NewKratosGateway(gateway.KratosOptions{
		BaseURL:      cfg.KratosURL,
		AdminBaseURL: cfg.KratosAdminURL,
		TokenizeAs:   cfg.KratosTokenizeTemplate,
		Timeout:      cfg.HTTPTimeout,
		Store:        store,
		Logger:       log.With("component", "kratos"),
	})

	c.Tokens = cache.NewTokenCache(c.Kratos, log.With("component", "token_cache"),
		cache.WithExpiryBuffer(cfg.TokenExpiryBuffer),
		cache.WithDefaultTTL(cfg.DefaultTokenTTL),
	)

	c.Invalidations = events.NewBroker[domain.SessionInvalidated]()
	transport := apiclient.NewAuthTransport(nil, c.Tokens, c.Kratos, c.Invalidations, log.With("component", "transport"))

	c.Client, err = apiclient.NewClient(cfg.BackendURL, transport, cfg.HTTPTimeout, log.With("component", "apiclient"))
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("creating api client: %w", err)
	}

	c.Profiles = gateway.NewProfileGateway(c.Client, log.With("component", "profile"))

	if cfg.PushAppID != "" {
		c.Push = gateway.NewPushRegistrar(c.Client, cfg.PushAppID, cfg.HTTPTimeout, log.With("component", "push"))
		c.closers = append(c.closers, closeFunc(c.Push.Attach(c.Kratos)))
	}

	c.Session = usecase.NewAuthSession(c.Kratos, c.Tokens, c.Profiles, log.With("component", "auth_session"))
	c.closers = append(c.closers, closeFunc(c.Session.Close))

	return c, nil
}

func (c *ApplicationComponents) newSessionStore() (domain.SessionStore, error) {
	switch c.Config.SessionStore {
	case config.StoreMemory:
		return sessionstore.NewMemoryStore(), nil
	case config.StoreRedis:
		store, err := sessionstore.NewRedisStoreWithURL(c.Config.RedisURL, c.Config.RedisKeyPrefix, "")
		if err != nil {
			return nil, fmt.Errorf("creating redis session store: %w", err)
		}
		c.Redis = store
		c.closers = append(c.closers, store.Close)
		return store, nil
	default:
		return sessionstore.NewFileStore(c.Config.SessionFile), nil
	}
}

// Close releases subscriptions and connections in reverse order of creation.
func (c *ApplicationComponents) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func closeFunc(fn func()) func() error {
	return func() error {
		fn()
		return nil
	}
}
