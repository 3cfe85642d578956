package domain

import "time"

// AuthStatus is the tri-state authentication flag.
type AuthStatus int

const (
	StatusUnknown AuthStatus = iota
	StatusAuthenticated
	StatusUnauthenticated
)

func (s AuthStatus) String() string {
	switch s {
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// MarshalText renders the status as its name in JSON.
func (s AuthStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// AuthState is the application-wide authentication view.
type AuthState struct {
	Status  AuthStatus `json:"status"`
	User    *Profile   `json:"user"`
	Loading bool       `json:"isLoading"`
}

// IsAuthenticated returns the tri-state as (value, known).
func (s AuthState) IsAuthenticated() (bool, bool) {
	switch s.Status {
	case StatusAuthenticated:
		return true, true
	case StatusUnauthenticated:
		return false, true
	default:
		return false, false
	}
}

// InitialAuthState is the state before bootstrap settles.
func InitialAuthState() AuthState {
	return AuthState{Status: StatusUnknown, Loading: true}
}

// AuthEventKind enumerates the provider's auth-state notifications.
type AuthEventKind int

const (
	EventSignedOut AuthEventKind = iota + 1
	EventSignedIn
	EventTokenRefreshed
)

func (k AuthEventKind) String() string {
	switch k {
	case EventSignedOut:
		return "SIGNED_OUT"
	case EventSignedIn:
		return "SIGNED_IN"
	case EventTokenRefreshed:
		return "TOKEN_REFRESHED"
	default:
		return "UNKNOWN"
	}
}

// AuthEvent is delivered to OnAuthStateChange subscribers.
// Session is nil for EventSignedOut.
type AuthEvent struct {
	Kind    AuthEventKind
	Session *Session
}

// Profile is the gym user profile served by the backend.
type Profile struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
