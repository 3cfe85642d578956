package usecase

import "gym-session/internal/domain"

type actionKind int

const (
	// actionSignedOut settles unauthenticated, from bootstrap or a sign-out event.
	actionSignedOut actionKind = iota
	// actionProfileLoading marks a session as found while its profile loads.
	actionProfileLoading
	// actionProfileLoaded settles authenticated with user (nil when the user
	// has no profile).
	actionProfileLoaded
	// actionUserRefreshed replaces only the user.
	actionUserRefreshed
)

type action struct {
	kind actionKind
	user *domain.Profile
}

// reduce is the auth state transition function.
func reduce(s domain.AuthState, a action) domain.AuthState {
	switch a.kind {
	case actionSignedOut:
		return domain.AuthState{Status: domain.StatusUnauthenticated}
	case actionProfileLoading:
		return domain.AuthState{Status: domain.StatusAuthenticated, User: s.User, Loading: true}
	case actionProfileLoaded:
		return domain.AuthState{Status: domain.StatusAuthenticated, User: a.user}
	case actionUserRefreshed:
		s.User = a.user
		return s
	default:
		return s
	}
}
