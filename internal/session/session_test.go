package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/robalobadob/memorypulse/internal/game"
	"github.com/robalobadob/memorypulse/internal/levels"
	"github.com/robalobadob/memorypulse/internal/store"
)

var testLevels = []levels.Level{
	{ID: 1, Label: "Pairs", Grid: levels.GridSize{Rows: 2, Cols: 2}, MatchCount: 2,
		Memorize: time.Second, Play: 2 * time.Second, Lives: 2},
	{ID: 2, Label: "More pairs", Grid: levels.GridSize{Rows: 2, Cols: 3}, MatchCount: 2,
		Memorize: time.Second, Play: 2 * time.Second, Lives: 2},
}

var testIcons = []levels.Icon{{Value: "zap"}, {Value: "sun"}, {Value: "moon"}}

func newTestManager(t *testing.T) (*Manager, *store.Prefs, *game.ManualClock) {
	t.Helper()
	prefs := store.NewPrefs(store.NewMemoryStore())
	clk := game.NewManualClock(time.Unix(1700000000, 0))
	m := NewManager(Options{Prefs: prefs, Clock: clk, Seed: 3, Levels: testLevels, Icons: testIcons})
	t.Cleanup(m.Close)
	return m, prefs, clk
}

// pairs groups the unmatched tiles of s by icon.
func pairs(s *Session) [][]string {
	by := map[string][]string{}
	var order []string
	for _, tl := range s.game.Tiles() {
		if tl.Matched {
			continue
		}
		if _, ok := by[tl.Value]; !ok {
			order = append(order, tl.Value)
		}
		by[tl.Value] = append(by[tl.Value], tl.ID)
	}
	out := make([][]string, 0, len(order))
	for _, v := range order {
		out = append(out, by[v])
	}
	return out
}

func recv(t *testing.T, ch <-chan Frame) Frame {
	t.Helper()
	select {
	case f, ok := <-ch:
		if !ok {
			t.Fatal("subscription closed")
		}
		return f
	case <-time.After(time.Second):
		t.Fatal("no frame published")
	}
	return Frame{}
}

func TestGetSeedsFromPrefs(t *testing.T) {
	m, prefs, _ := newTestManager(t)
	ctx := context.Background()
	if _, err := prefs.SaveHighScore(ctx, "alice", 4200); err != nil {
		t.Fatal(err)
	}
	if err := prefs.SetMusic(ctx, "alice", false); err != nil {
		t.Fatal(err)
	}

	s, err := m.Get(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	again, _ := m.Get(ctx, "alice")
	if s != again {
		t.Error("Get() returned a different session for the same profile")
	}
	snap, err := s.Start(ctx, game.ModeNormal)
	if err != nil {
		t.Fatal(err)
	}
	if snap.HighScore != 4200 || snap.Music != game.MusicOff {
		t.Errorf("snapshot highscore %d music %q", snap.HighScore, snap.Music)
	}

	other, _ := m.Get(ctx, "bob")
	if other.Snapshot().Phase != game.PhaseIdle {
		t.Error("profiles must not share a game")
	}
}

func TestFramesFollowTimersAndCommands(t *testing.T) {
	m, prefs, clk := newTestManager(t)
	ctx := context.Background()
	s, _ := m.Get(ctx, "p")

	_, frames, cancel := s.Subscribe()
	defer cancel()

	if _, err := s.Start(ctx, game.ModeNormal); err != nil {
		t.Fatal(err)
	}
	f := recv(t, frames)
	if f.Snapshot.Phase != game.PhaseMemorize || len(f.Cues) != 1 || f.Cues[0] != game.CueShuffle {
		t.Fatalf("start frame = %+v", f)
	}

	clk.Advance(time.Second)
	if f = recv(t, frames); f.Snapshot.Phase != game.PhasePlay {
		t.Fatalf("timer frame phase = %v, want PLAY", f.Snapshot.Phase)
	}

	ps := pairs(s)
	if _, err := s.Select(ctx, ps[0][0]); err != nil {
		t.Fatal(err)
	}
	recv(t, frames)
	snap, err := s.Select(ctx, ps[0][1])
	if err != nil {
		t.Fatal(err)
	}
	f = recv(t, frames)
	if snap.Score != 100 || f.Cues[len(f.Cues)-1] != game.CueMatch {
		t.Errorf("match frame = %+v", f)
	}
	if hs, _ := prefs.HighScore(ctx, "p"); hs != 100 {
		t.Errorf("persisted high score = %d, want 100", hs)
	}

	if _, err := s.Select(ctx, ps[0][0]); !errors.Is(err, game.ErrTileMatched) {
		t.Errorf("Select(matched) error = %v", err)
	}
}

func TestLateSubscriberGetsRecentCues(t *testing.T) {
	m, _, clk := newTestManager(t)
	ctx := context.Background()
	s, _ := m.Get(ctx, "p")

	if _, err := s.Start(ctx, game.ModeNormal); err != nil {
		t.Fatal(err)
	}
	clk.Advance(3 * time.Second) // empty play phase: desync

	recent, _, cancel := s.Subscribe()
	defer cancel()
	want := []game.Cue{game.CueShuffle, game.CueDesync, game.CueMiss, game.CueShuffle}
	if len(recent) != len(want) {
		t.Fatalf("recent = %v, want %v", recent, want)
	}
	for i := range want {
		if recent[i] != want[i] {
			t.Fatalf("recent = %v, want %v", recent, want)
		}
	}
}

func TestNextAndMenu(t *testing.T) {
	m, _, clk := newTestManager(t)
	ctx := context.Background()
	s, _ := m.Get(ctx, "p")

	if _, err := s.Next(ctx); !errors.Is(err, game.ErrNotLevelComplete) {
		t.Fatalf("Next() from IDLE error = %v", err)
	}
	if _, err := s.Start(ctx, game.ModeSpecial); !errors.Is(err, game.ErrModeUnavailable) {
		t.Fatalf("Start(SPECIAL) error = %v", err)
	}

	if _, err := s.Start(ctx, game.ModeNormal); err != nil {
		t.Fatal(err)
	}
	clk.Advance(time.Second)
	for _, p := range pairs(s) {
		for _, id := range p {
			if _, err := s.Select(ctx, id); err != nil {
				t.Fatal(err)
			}
		}
	}
	clk.Advance(game.LevelClearDelay)
	snap, err := s.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Level != 2 || snap.Phase != game.PhaseMemorize {
		t.Errorf("after Next: level %d phase %v", snap.Level, snap.Phase)
	}
	if snap = s.Menu(ctx); snap.Phase != game.PhaseIdle {
		t.Errorf("Menu() phase = %v", snap.Phase)
	}
}

func TestCloseEndsSubscriptions(t *testing.T) {
	m, _, _ := newTestManager(t)
	s, _ := m.Get(context.Background(), "p")
	_, frames, cancel := s.Subscribe()
	m.Close()
	if _, ok := <-frames; ok {
		t.Error("frame channel still open after Close")
	}
	cancel() // must not panic after Close
}

// settle reads frames until none arrives for quiet and returns the last one.
// It fails if frames keep coming for a full second.
func settle(t *testing.T, ch <-chan Frame, quiet time.Duration) (Frame, int) {
	t.Helper()
	var last Frame
	n := 0
	deadline := time.After(time.Second)
	for {
		select {
		case f, ok := <-ch:
			if !ok {
				t.Fatal("subscription closed")
			}
			last, n = f, n+1
		case <-time.After(quiet):
			return last, n
		case <-deadline:
			t.Fatalf("frames still arriving after 1s (last phase %v)", last.Snapshot.Phase)
		}
	}
}

func TestTicksRunOnlyDuringActivePhases(t *testing.T) {
	prefs := store.NewPrefs(store.NewMemoryStore())
	clk := game.NewManualClock(time.Unix(1700000000, 0))
	m := NewManager(Options{Prefs: prefs, Clock: clk, Seed: 3, Tick: 5 * time.Millisecond,
		Levels: testLevels, Icons: testIcons})
	t.Cleanup(m.Close)
	ctx := context.Background()
	s, _ := m.Get(ctx, "p")

	_, frames, cancel := s.Subscribe()
	defer cancel()
	if _, n := settle(t, frames, 30*time.Millisecond); n != 0 {
		t.Fatalf("%d frames while IDLE", n)
	}

	if _, err := s.Start(ctx, game.ModeNormal); err != nil {
		t.Fatal(err)
	}
	recv(t, frames) // start frame
	for i := 0; i < 3; i++ {
		f := recv(t, frames)
		if f.Snapshot.Phase != game.PhaseMemorize || len(f.Cues) != 0 {
			t.Fatalf("tick %d = phase %v cues %v", i, f.Snapshot.Phase, f.Cues)
		}
	}

	clk.Advance(time.Second)
	sawPlay := 0
	for sawPlay < 3 {
		if f := recv(t, frames); f.Snapshot.Phase == game.PhasePlay {
			sawPlay++
		}
	}

	s.Menu(ctx)
	if last, _ := settle(t, frames, 30*time.Millisecond); last.Snapshot.Phase != game.PhaseIdle {
		t.Fatalf("last frame after menu has phase %v", last.Snapshot.Phase)
	}

	// Ticks resume with a new run and stop for good at GAMEOVER.
	if _, err := s.Start(ctx, game.ModeNormal); err != nil {
		t.Fatal(err)
	}
	recv(t, frames)
	recv(t, frames)
	clk.Advance(6 * time.Second) // two empty cycles cost both lives
	if last, _ := settle(t, frames, 30*time.Millisecond); last.Snapshot.Phase != game.PhaseGameOver {
		t.Fatalf("last frame after desyncs has phase %v", last.Snapshot.Phase)
	}
	if _, n := settle(t, frames, 30*time.Millisecond); n != 0 {
		t.Errorf("%d frames after GAMEOVER", n)
	}
}

func TestTicksStopWithoutSubscribers(t *testing.T) {
	prefs := store.NewPrefs(store.NewMemoryStore())
	clk := game.NewManualClock(time.Unix(1700000000, 0))
	m := NewManager(Options{Prefs: prefs, Clock: clk, Seed: 3, Tick: 5 * time.Millisecond,
		Levels: testLevels, Icons: testIcons})
	t.Cleanup(m.Close)
	ctx := context.Background()
	s, _ := m.Get(ctx, "p")

	if _, err := s.Start(ctx, game.ModeNormal); err != nil {
		t.Fatal(err)
	}
	_, frames, cancel := s.Subscribe()
	recv(t, frames)
	cancel()

	s.mu.Lock()
	running := s.tickStop != nil
	s.mu.Unlock()
	if running {
		t.Error("ticker still running after the last subscriber left")
	}
}

func TestIdleSessionsAreEvicted(t *testing.T) {
	prefs := store.NewPrefs(store.NewMemoryStore())
	clk := game.NewManualClock(time.Unix(1700000000, 0))
	m := NewManager(Options{Prefs: prefs, Clock: clk, Seed: 3, IdleTTL: time.Minute,
		Levels: testLevels, Icons: testIcons})
	t.Cleanup(m.Close)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		if _, err := m.Get(ctx, fmt.Sprintf("drive-by-%d", i)); err != nil {
			t.Fatal(err)
		}
	}
	kept, _ := m.Get(ctx, "kept")
	watched, _ := m.Get(ctx, "watched")
	_, _, cancel := watched.Subscribe()
	if m.Len() != 102 {
		t.Fatalf("Len() = %d, want 102", m.Len())
	}

	clk.Advance(30 * time.Second)
	if again, _ := m.Get(ctx, "kept"); again != kept {
		t.Fatal("recently used session was replaced")
	}

	clk.Advance(40 * time.Second)
	if n := m.Sweep(); n != 100 {
		t.Fatalf("Sweep() evicted %d, want the 100 one-shot profiles", n)
	}
	if m.Len() != 2 {
		t.Fatalf("Len() = %d after sweep, want kept and watched", m.Len())
	}

	// Leaving counts as activity; after that both age out on a later Get.
	cancel()
	clk.Advance(61 * time.Second)
	fresh, _ := m.Get(ctx, "newcomer")
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want only the newcomer", m.Len())
	}
	if again, _ := m.Get(ctx, "kept"); again == kept || again == fresh {
		t.Error("evicted profile did not get a fresh session")
	}
}
