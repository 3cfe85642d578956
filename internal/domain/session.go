package domain

import "time"

// Identity represents an authenticated user identity from the identity provider.
type Identity struct {
	UserID    string
	Email     string
	CreatedAt time.Time
}

// Session is a provider-issued authentication grant.
// ExpiresAt is in epoch seconds; zero means the provider did not report one.
type Session struct {
	AccessToken string
	SessionID   string
	ExpiresAt   int64
	Identity    *Identity
}

// Valid reports whether the session carries a usable access token.
func (s *Session) Valid() bool {
	return s != nil && s.AccessToken != ""
}

// StoredSession is what the session store persists between calls.
// SessionToken is the provider credential used for whoami/logout; AccessToken is
// the bearer presented to the backend (the same value unless tokenized).
type StoredSession struct {
	SessionID    string    `json:"session_id"`
	SessionToken string    `json:"session_token"`
	AccessToken  string    `json:"access_token"`
	ExpiresAt    int64     `json:"expires_at"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	CreatedAt    time.Time `json:"created_at"`
}

// Expired reports whether the stored session is past its expiry at now.
func (s *StoredSession) Expired(now time.Time) bool {
	return s.ExpiresAt != 0 && now.Unix() >= s.ExpiresAt
}

// ToSession converts the stored form to the provider-facing session.
func (s *StoredSession) ToSession() *Session {
	return &Session{
		AccessToken: s.AccessToken,
		SessionID:   s.SessionID,
		ExpiresAt:   s.ExpiresAt,
		Identity: &Identity{
			UserID:    s.UserID,
			Email:     s.Email,
			CreatedAt: s.CreatedAt,
		},
	}
}

// CachedToken is the token cache's view of the current bearer credential.
type CachedToken struct {
	Value     string
	ExpiresAt time.Time
}

// FreshAt reports whether the token is still usable at now with the given
// safety buffer.
func (t CachedToken) FreshAt(now time.Time, buffer time.Duration) bool {
	return t.Value != "" && t.ExpiresAt.After(now.Add(buffer))
}

// SessionInvalidated is published when a refresh after 401 fails and the
// hosting shell must navigate to RedirectTo.
type SessionInvalidated struct {
	RedirectTo string
	Reason     error
}
