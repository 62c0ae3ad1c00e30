package state

import (
	"sync"

	"spendly/internal/prefs"
)

const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Palette is the set of colors a theme exposes to the client.
type Palette struct {
	Background     string `json:"background"`
	Surface        string `json:"surface"`
	CardBackground string `json:"cardBackground"`
	TextPrimary    string `json:"textPrimary"`
	TextSecondary  string `json:"textSecondary"`
	TextMuted      string `json:"textMuted"`
	Border         string `json:"border"`
	BorderLight    string `json:"borderLight"`
	Success        string `json:"success"`
	Error          string `json:"error"`
	Warning        string `json:"warning"`
	Info           string `json:"info"`
	Primary        string `json:"primary"`
	PrimaryLight   string `json:"primaryLight"`
	PrimaryDark    string `json:"primaryDark"`
}

var (
	lightPalette = Palette{
		Background:     "#ffffff",
		Surface:        "#ffffff",
		CardBackground: "#ffffff",
		TextPrimary:    "#1f2937",
		TextSecondary:  "#6b7280",
		TextMuted:      "#9ca3af",
		Border:         "#e5e7eb",
		BorderLight:    "#f3f4f6",
		Success:        "#10b981",
		Error:          "#ef4444",
		Warning:        "#f59e0b",
		Info:           "#3b82f6",
		Primary:        "#059669",
		PrimaryLight:   "#d1fae5",
		PrimaryDark:    "#047857",
	}
	darkPalette = Palette{
		Background:     "#0f172a",
		Surface:        "#1e293b",
		CardBackground: "#334155",
		TextPrimary:    "#f1f5f9",
		TextSecondary:  "#cbd5e1",
		TextMuted:      "#94a3b8",
		Border:         "#475569",
		BorderLight:    "#64748b",
		Success:        "#22c55e",
		Error:          "#f87171",
		Warning:        "#fbbf24",
		Info:           "#60a5fa",
		Primary:        "#10b981",
		PrimaryLight:   "#064e3b",
		PrimaryDark:    "#059669",
	}
)

// Theme is the light/dark preference.
type Theme struct {
	prefs prefs.Store

	mu   sync.RWMutex
	dark bool
}

func NewTheme(store prefs.Store) *Theme {
	return &Theme{prefs: store}
}

// Load restores the saved theme, or follows the system preference when
// nothing was saved.
func (t *Theme) Load(systemPrefersDark bool) {
	dark := systemPrefersDark
	if saved, ok := t.prefs.Get(prefs.KeyTheme); ok {
		dark = saved == ThemeDark
	}
	t.mu.Lock()
	t.dark = dark
	t.mu.Unlock()
}

func (t *Theme) IsDark() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dark
}

func (t *Theme) Current() string {
	if t.IsDark() {
		return ThemeDark
	}
	return ThemeLight
}

func (t *Theme) Colors() Palette {
	if t.IsDark() {
		return darkPalette
	}
	return lightPalette
}

func (t *Theme) Toggle() error {
	t.mu.Lock()
	t.dark = !t.dark
	dark := t.dark
	t.mu.Unlock()
	return t.save(dark)
}

func (t *Theme) Set(dark bool) error {
	t.mu.Lock()
	t.dark = dark
	t.mu.Unlock()
	return t.save(dark)
}

func (t *Theme) save(dark bool) error {
	value := ThemeLight
	if dark {
		value = ThemeDark
	}
	return t.prefs.Set(prefs.KeyTheme, value)
}
