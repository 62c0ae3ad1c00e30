package guard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendly/internal/core"
	"spendly/internal/log"
)

type fakeSession struct {
	authenticated bool
	initErr       error
	inits         int
}

func (f *fakeSession) Init(context.Context) error {
	f.inits++
	return f.initErr
}

func (f *fakeSession) IsAuthenticated() bool { return f.authenticated }

func TestGuard_Before(t *testing.T) {
	tests := []struct {
		name          string
		authenticated bool
		target        string
		want          Decision
	}{
		{"root", false, "/", Decision{Redirect: "/login"}},
		{"anonymous on protected", false, "/movimientos", Decision{Route: "movimientos", Redirect: "/login?redirect=%2Fmovimientos"}},
		{"anonymous keeps query", false, "/ahorros?year=2024", Decision{Route: "ahorros", Redirect: "/login?redirect=%2Fahorros%3Fyear%3D2024"}},
		{"anonymous on guest page", false, "/login", Decision{Route: "login", Title: "Iniciar sesión | Spendly"}},
		{"signed in on guest page", true, "/register", Decision{Route: "register", Redirect: "/dashboard"}},
		{"signed in on protected", true, "/configuracion", Decision{Route: "configuracion", Title: "Configuración | Spendly"}},
		{"trailing slash", true, "/perfil/", Decision{Route: "perfil", Title: "Perfil | Spendly"}},
	}
	g := New(log.Discard())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSession{authenticated: tt.authenticated}
			got, err := g.Before(context.Background(), s, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGuard_InitializesSession(t *testing.T) {
	g := New(log.Discard())
	s := &fakeSession{authenticated: true}
	_, err := g.Before(context.Background(), s, "/dashboard")
	require.NoError(t, err)
	assert.Equal(t, 1, s.inits)

	boom := errors.New("boom")
	_, err = g.Before(context.Background(), &fakeSession{initErr: boom}, "/dashboard")
	assert.ErrorIs(t, err, boom)
}

func TestGuard_UnknownRoute(t *testing.T) {
	_, err := New(log.Discard()).Before(context.Background(), &fakeSession{}, "/nope")
	assert.ErrorIs(t, err, core.ErrNotFound)
}
