package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "data", "app.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStores(t *testing.T) {
	impls := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"sqlite": func(t *testing.T) Store { return openTestSQLite(t) },
	}
	for name, open := range impls {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open(t)

			if _, err := st.Get(ctx, "p1", KeyTheme); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get() on empty store error = %v, want ErrNotFound", err)
			}
			if err := st.Set(ctx, "p1", KeyTheme, ThemeBlue); err != nil {
				t.Fatal(err)
			}
			if err := st.Set(ctx, "p1", KeyTheme, ThemePurple); err != nil {
				t.Fatal(err)
			}
			v, err := st.Get(ctx, "p1", KeyTheme)
			if err != nil || v != ThemePurple {
				t.Errorf("Get() = %q, %v; want purple", v, err)
			}
			if _, err := st.Get(ctx, "p2", KeyTheme); !errors.Is(err, ErrNotFound) {
				t.Errorf("profiles must not share values, error = %v", err)
			}
		})
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "app.db")
	for i := 0; i < 2; i++ {
		s, err := OpenSQLite(dsn)
		if err != nil {
			t.Fatalf("open #%d error = %v", i+1, err)
		}
		_ = s.Close()
	}
}

func TestPrefsHighScore(t *testing.T) {
	ctx := context.Background()
	p := NewPrefs(NewMemoryStore())

	if n, err := p.HighScore(ctx, "p"); err != nil || n != 0 {
		t.Fatalf("HighScore() = %d, %v; want 0", n, err)
	}
	wrote, err := p.SaveHighScore(ctx, "p", 1200)
	if err != nil || !wrote {
		t.Fatalf("SaveHighScore(1200) = %v, %v", wrote, err)
	}
	if wrote, _ := p.SaveHighScore(ctx, "p", 900); wrote {
		t.Error("SaveHighScore(900) overwrote a higher score")
	}
	if n, _ := p.HighScore(ctx, "p"); n != 1200 {
		t.Errorf("HighScore() = %d, want 1200", n)
	}
}

func TestPrefsFallbacks(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	p := NewPrefs(st)

	_ = st.Set(ctx, "p", KeyHighScore, "garbage")
	_ = st.Set(ctx, "p", KeyTheme, "green")
	if n, err := p.HighScore(ctx, "p"); err != nil || n != 0 {
		t.Errorf("HighScore() with garbage = %d, %v", n, err)
	}
	if th, _ := p.Theme(ctx, "p"); th != ThemePurple {
		t.Errorf("Theme() with unknown value = %q, want purple", th)
	}
	if on, _ := p.Music(ctx, "p"); !on {
		t.Error("Music() default should be on")
	}
}

func TestPrefsThemeAndMusic(t *testing.T) {
	ctx := context.Background()
	p := NewPrefs(NewMemoryStore())

	if err := p.SetTheme(ctx, "p", "green"); !errors.Is(err, ErrInvalidTheme) {
		t.Fatalf("SetTheme(green) error = %v, want ErrInvalidTheme", err)
	}
	if err := p.SetTheme(ctx, "p", ThemeBlue); err != nil {
		t.Fatal(err)
	}
	if th, _ := p.Theme(ctx, "p"); th != ThemeBlue {
		t.Errorf("Theme() = %q, want blue", th)
	}
	if err := p.SetMusic(ctx, "p", false); err != nil {
		t.Fatal(err)
	}
	if on, _ := p.Music(ctx, "p"); on {
		t.Error("Music() = true after SetMusic(false)")
	}
}
