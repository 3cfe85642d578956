package domain

import "context"

//go:generate mockgen -source=port.go -destination=../../mocks/mock_ports.go -package=mocks

// SessionSource reads the provider's current session.
type SessionSource interface {
	GetSession(ctx context.Context) (*Session, error)
}

// SessionRefresher refreshes or ends the provider session.
type SessionRefresher interface {
	RefreshSession(ctx context.Context) (*Session, error)
	SignOut(ctx context.Context) error
}

// SessionProvider is the external authentication collaborator.
type SessionProvider interface {
	SessionSource
	SessionRefresher
	OnAuthStateChange(fn func(AuthEvent)) (unsubscribe func())
}

// SignInInitiator starts provider sign-in flows.
type SignInInitiator interface {
	SignInWithPassword(ctx context.Context, identifier, password string) (*Session, error)
	SendLoginCode(ctx context.Context, email string) (flowID string, err error)
	SignInWithCode(ctx context.Context, flowID, email, code string) (*Session, error)
	SignInWithOAuth(ctx context.Context, provider, returnTo string) (redirectURL string, err error)
}

// TokenCache is the process-wide bearer token cache.
type TokenCache interface {
	Get(ctx context.Context) string
	Clear()
	Update(token string, expiresAtEpochSeconds int64)
}

// ProfileFetcher loads the signed-in user's profile.
// Returns ErrProfileNotFound when the backend has no profile yet.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context) (*Profile, error)
}

// SessionStore persists the provider session between calls.
// Load returns (nil, nil) when nothing is stored.
type SessionStore interface {
	Load(ctx context.Context) (*StoredSession, error)
	Save(ctx context.Context, s *StoredSession) error
	Delete(ctx context.Context) error
}
