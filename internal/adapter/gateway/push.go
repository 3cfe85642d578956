package gateway

import (
	"context"
	"log/slog"
	"time"

	"gym-session/internal/adapter/apiclient"
	"gym-session/internal/domain"
)

const pushSubscriptionsPath = "/notifications/subscriptions"

type pushSubscription struct {
	AppID      string `json:"app_id"`
	ExternalID string `json:"external_id"`
}

// PushRegistrar links the signed-in user to the push-notification app so the
// backend can target them by user ID.
type PushRegistrar struct {
	client  *apiclient.Client
	appID   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewPushRegistrar creates a registrar for appID.
func NewPushRegistrar(client *apiclient.Client, appID string, timeout time.Duration, logger *slog.Logger) *PushRegistrar {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PushRegistrar{client: client, appID: appID, timeout: timeout, logger: logger}
}

// Register sends the subscription for userID.
func (r *PushRegistrar) Register(ctx context.Context, userID string) error {
	return r.client.Post(ctx, pushSubscriptionsPath, pushSubscription{
		AppID:      r.appID,
		ExternalID: userID,
	}, nil)
}

// Attach registers on every SIGNED_IN event from provider. Failures are logged.
func (r *PushRegistrar) Attach(provider domain.SessionProvider) (detach func()) {
	return provider.OnAuthStateChange(func(ev domain.AuthEvent) {
		if ev.Kind != domain.EventSignedIn || ev.Session == nil || ev.Session.Identity == nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		userID := ev.Session.Identity.UserID
		if err := r.Register(ctx, userID); err != nil {
			r.logger.WarnContext(ctx, "push registration failed", "user_id", userID, "error", err)
			return
		}
		r.logger.InfoContext(ctx, "push registration completed", "user_id", userID)
	})
}
