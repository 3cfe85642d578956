package output

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gym-session/internal/domain"
)

func TestParseColorMode(t *testing.T) {
	tests := []struct {
		input   string
		want    ColorMode
		wantErr bool
	}{
		{"", ColorAuto, false},
		{"auto", ColorAuto, false},
		{"always", ColorAlways, false},
		{"never", ColorNever, false},
		{"rainbow", ColorAuto, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseColorMode(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveColors(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.True(t, ResolveColors(ColorAlways))
	assert.False(t, ResolveColors(ColorAuto))
	assert.False(t, ResolveColors(ColorNever))
}

func TestPrinter_PlainPrefixes(t *testing.T) {
	var out, errOut bytes.Buffer
	p := NewPrinterWithWriters(&out, &errOut, ColorNever)

	p.Success("signed in as %s", "lifter")
	p.Info("flow %s", "f1")
	p.Warning("PUSH_APP_ID is not set")
	p.Error("login failed")

	assert.Equal(t, "[OK] signed in as lifter\nflow f1\n", out.String())
	assert.Equal(t, "[WARN] PUSH_APP_ID is not set\n[ERROR] login failed\n", errOut.String())
}

func TestPrinter_RenderAuthState(t *testing.T) {
	tests := []struct {
		name     string
		state    domain.AuthState
		contains []string
		absent   []string
	}{
		{
			name: "authenticated with profile",
			state: domain.AuthState{
				Status: domain.StatusAuthenticated,
				User: &domain.Profile{
					UserID:      "u1",
					Username:    "lifter",
					DisplayName: "Lift Er",
					CreatedAt:   time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
				},
			},
			contains: []string{"[authenticated]", "lifter", "Lift Er", "2025-03-01"},
			absent:   []string{"not set up"},
		},
		{
			name:     "authenticated without profile",
			state:    domain.AuthState{Status: domain.StatusAuthenticated},
			contains: []string{"[authenticated]", "not set up"},
		},
		{
			name:     "signed out",
			state:    domain.AuthState{Status: domain.StatusUnauthenticated},
			contains: []string{"[unauthenticated]"},
			absent:   []string{"not set up", "username"},
		},
		{
			name:     "still loading",
			state:    domain.InitialAuthState(),
			contains: []string{"[unknown]", "yes"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := NewPrinterWithWriters(&out, &bytes.Buffer{}, ColorNever)

			require.NoError(t, p.RenderAuthState(tt.state))

			for _, s := range tt.contains {
				assert.Contains(t, out.String(), s)
			}
			for _, s := range tt.absent {
				assert.NotContains(t, out.String(), s)
			}
		})
	}
}
