package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gym-session/internal/adapter/apiclient"
	"gym-session/internal/domain"
	"gym-session/metrics"
)

const profilePath = "/users/me"

// ProfileGateway loads the signed-in user's profile from the backend.
// Implements domain.ProfileFetcher.
type ProfileGateway struct {
	client *apiclient.Client
	logger *slog.Logger
}

// NewProfileGateway creates a profile gateway.
func NewProfileGateway(client *apiclient.Client, logger *slog.Logger) *ProfileGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileGateway{client: client, logger: logger}
}

// FetchProfile returns domain.ErrProfileNotFound when the user has no profile yet.
func (g *ProfileGateway) FetchProfile(ctx context.Context) (*domain.Profile, error) {
	var profile domain.Profile
	if err := g.client.Get(ctx, profilePath, &profile); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.RecordProfileFetch("not_found")
			return nil, domain.ErrProfileNotFound
		}
		metrics.RecordProfileFetch("error")
		return nil, fmt.Errorf("fetch profile: %w", err)
	}

	metrics.RecordProfileFetch("found")
	g.logger.DebugContext(ctx, "profile loaded", "user_id", profile.UserID)
	return &profile, nil
}
