// internal/store/prefs.go
//
// Typed player preferences on top of a Store.
// Responsibilities:
//   - High score (only ever raised), theme (purple|blue), music toggle.
//   - Fall back to defaults when nothing or garbage is stored.
//
// Keys match the browser client's local storage names.

package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// Preference keys, shared with the browser client's local storage names.
const (
	KeyHighScore = "memory_pulse_highscore"
	KeyTheme     = "memory_pulse_theme"
	KeyMusic     = "memory_pulse_music"
)

// Themes.
const (
	ThemePurple = "purple"
	ThemeBlue   = "blue"
)

// ErrInvalidTheme is returned by SetTheme for anything but purple or blue.
var ErrInvalidTheme = errors.New("invalid theme")

// Prefs reads and writes typed preferences on top of a Store.
// Unreadable stored values fall back to the defaults.
type Prefs struct {
	st Store
}

// NewPrefs wraps st.
func NewPrefs(st Store) *Prefs { return &Prefs{st: st} }

// HighScore returns the stored high score, 0 if none.
func (p *Prefs) HighScore(ctx context.Context, profile string) (int, error) {
	v, err := p.get(ctx, profile, KeyHighScore)
	if err != nil || v == "" {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, nil
	}
	return n, nil
}

// SaveHighScore stores score if it beats the stored value. It reports whether it wrote.
func (p *Prefs) SaveHighScore(ctx context.Context, profile string, score int) (bool, error) {
	cur, err := p.HighScore(ctx, profile)
	if err != nil {
		return false, err
	}
	if score <= cur {
		return false, nil
	}
	if err := p.st.Set(ctx, profile, KeyHighScore, strconv.Itoa(score)); err != nil {
		return false, fmt.Errorf("save high score: %w", err)
	}
	return true, nil
}

// Theme returns the stored theme, purple by default.
func (p *Prefs) Theme(ctx context.Context, profile string) (string, error) {
	v, err := p.get(ctx, profile, KeyTheme)
	if err != nil {
		return ThemePurple, err
	}
	if v != ThemePurple && v != ThemeBlue {
		return ThemePurple, nil
	}
	return v, nil
}

// SetTheme stores theme.
func (p *Prefs) SetTheme(ctx context.Context, profile, theme string) error {
	if theme != ThemePurple && theme != ThemeBlue {
		return fmt.Errorf("%w: %q", ErrInvalidTheme, theme)
	}
	return p.st.Set(ctx, profile, KeyTheme, theme)
}

// Music reports whether background music is enabled, true by default.
func (p *Prefs) Music(ctx context.Context, profile string) (bool, error) {
	v, err := p.get(ctx, profile, KeyMusic)
	if err != nil {
		return true, err
	}
	return v != "off", nil
}

// SetMusic stores the music toggle.
func (p *Prefs) SetMusic(ctx context.Context, profile string, on bool) error {
	v := "off"
	if on {
		v = "on"
	}
	return p.st.Set(ctx, profile, KeyMusic, v)
}

// get maps ErrNotFound to an empty value.
func (p *Prefs) get(ctx context.Context, profile, key string) (string, error) {
	v, err := p.st.Get(ctx, profile, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}
