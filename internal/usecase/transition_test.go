package usecase

import (
	"testing"

	"gym-session/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestReduce(t *testing.T) {
	user := &domain.Profile{ID: "p1", Username: "lifter"}
	other := &domain.Profile{ID: "p2", Username: "spotter"}

	tests := []struct {
		name string
		from domain.AuthState
		act  action
		want domain.AuthState
	}{
		{
			name: "bootstrap without session",
			from: domain.InitialAuthState(),
			act:  action{kind: actionSignedOut},
			want: domain.AuthState{Status: domain.StatusUnauthenticated},
		},
		{
			name: "session found starts profile load",
			from: domain.InitialAuthState(),
			act:  action{kind: actionProfileLoading},
			want: domain.AuthState{Status: domain.StatusAuthenticated, Loading: true},
		},
		{
			name: "profile loaded",
			from: domain.AuthState{Status: domain.StatusAuthenticated, Loading: true},
			act:  action{kind: actionProfileLoaded, user: user},
			want: domain.AuthState{Status: domain.StatusAuthenticated, User: user},
		},
		{
			name: "profile not found settles with nil user",
			from: domain.AuthState{Status: domain.StatusAuthenticated, Loading: true},
			act:  action{kind: actionProfileLoaded},
			want: domain.AuthState{Status: domain.StatusAuthenticated},
		},
		{
			name: "sign out drops user",
			from: domain.AuthState{Status: domain.StatusAuthenticated, User: user},
			act:  action{kind: actionSignedOut},
			want: domain.AuthState{Status: domain.StatusUnauthenticated},
		},
		{
			name: "user refresh keeps status and loading",
			from: domain.AuthState{Status: domain.StatusAuthenticated, User: user, Loading: true},
			act:  action{kind: actionUserRefreshed, user: other},
			want: domain.AuthState{Status: domain.StatusAuthenticated, User: other, Loading: true},
		},
		{
			name: "user refresh while unauthenticated",
			from: domain.AuthState{Status: domain.StatusUnauthenticated},
			act:  action{kind: actionUserRefreshed, user: other},
			want: domain.AuthState{Status: domain.StatusUnauthenticated, User: other},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, reduce(tt.from, tt.act))
		})
	}
}
