package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendly/internal/prefs"
)

func TestTheme_LoadFollowsSystemUntilSaved(t *testing.T) {
	store := prefs.NewMemory()
	th := NewTheme(store)

	th.Load(true)
	assert.True(t, th.IsDark())
	th.Load(false)
	assert.False(t, th.IsDark())
	assert.Equal(t, ThemeLight, th.Current())

	require.NoError(t, th.Toggle())
	assert.Equal(t, ThemeDark, th.Current())
	saved, ok := store.Get(prefs.KeyTheme)
	require.True(t, ok)
	assert.Equal(t, "dark", saved)

	again := NewTheme(store)
	again.Load(false)
	assert.True(t, again.IsDark())

	require.NoError(t, again.Set(false))
	saved, _ = store.Get(prefs.KeyTheme)
	assert.Equal(t, "light", saved)
}

func TestTheme_Colors(t *testing.T) {
	th := NewTheme(prefs.NewMemory())
	th.Load(false)
	assert.Equal(t, "#ffffff", th.Colors().Background)
	assert.Equal(t, "#059669", th.Colors().Primary)

	require.NoError(t, th.Set(true))
	assert.Equal(t, "#0f172a", th.Colors().Background)
	assert.Equal(t, "#10b981", th.Colors().Primary)
}
