// internal/game/snapshot.go
//
// Client view of a game.
// Responsibilities:
//   - Build a Snapshot: phase, level, lives, score, combo, timers, music state.
//   - Hide tile faces outside MEMORIZE unless selected, matched or glowing.
//   - Format the run clock as MM:SS.t.

package game

import (
	"fmt"
	"time"

	"github.com/robalobadob/memorypulse/internal/levels"
)

// Music states reported to the client.
const (
	MusicOff      = "off"
	MusicNormal   = "normal"
	MusicAnnoying = "annoying"
)

// TileView is a tile as the client may see it. Value and Color are empty while
// the tile is face down.
type TileView struct {
	ID       string `json:"id"`
	Value    string `json:"value,omitempty"`
	Color    string `json:"color,omitempty"`
	Matched  bool   `json:"matched"`
	Selected bool   `json:"selected"`
	Matching bool   `json:"matching"`
}

// Snapshot is a read-only view of a run.
type Snapshot struct {
	Phase          Phase            `json:"phase"`
	Level          int              `json:"level"`
	LevelLabel     string           `json:"levelLabel"`
	LevelCount     int              `json:"levelCount"`
	Grid           levels.GridSize  `json:"gridSize"`
	MatchCount     int              `json:"matchCount"`
	Mutators       []levels.Mutator `json:"mutators"`
	Lives          int              `json:"lives"`
	MaxLives       int              `json:"maxLives"`
	Score          int              `json:"score"`
	HighScore      int              `json:"highscore"`
	Combo          int              `json:"combo"`
	MatchesInCycle int              `json:"matchesInCycle"`
	Matched        int              `json:"matchedCount"`
	TotalMatches   int              `json:"totalMatches"`
	TimeLeftMs     int64            `json:"timeLeftMs"`
	MaxTimeMs      int64            `json:"maxTimeMs"`
	ElapsedMs      int64            `json:"elapsedMs"`
	Elapsed        string           `json:"elapsed"`
	Shuffling      bool             `json:"shuffling"`
	Desync         bool             `json:"desync"`
	Music          string           `json:"music"`
	Tiles          []TileView       `json:"tiles"`
}

// Snapshot renders the current state for the client.
func (g *Game) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	s := Snapshot{
		Phase:          g.phase,
		LevelCount:     len(g.levels),
		Lives:          g.lives,
		Score:          g.score,
		HighScore:      g.highScore,
		Combo:          g.combo,
		MatchesInCycle: g.cycleMatches,
		Matched:        g.matched,
		Music:          MusicOff,
		Tiles:          []TileView{},
	}

	elapsed := g.elapsed
	if g.phase.Active() {
		elapsed = now.Sub(g.startedAt)
	}
	s.ElapsedMs = elapsed.Milliseconds()
	s.Elapsed = FormatElapsed(elapsed)

	if g.phase == PhaseIdle || len(g.levels) == 0 {
		return s
	}

	lvl := g.level()
	s.Level = lvl.ID
	s.LevelLabel = lvl.Label
	s.Grid = lvl.Grid
	s.MatchCount = lvl.MatchCount
	s.Mutators = append([]levels.Mutator{}, lvl.Mutators...)
	s.MaxLives = lvl.Lives
	s.TotalMatches = lvl.GroupCount()

	if g.phase.Active() {
		left := g.deadline.Sub(now)
		if left < 0 {
			left = 0
		}
		s.TimeLeftMs = left.Milliseconds()
		s.MaxTimeMs = g.phaseLen.Milliseconds()
		s.Shuffling = now.Before(g.shuffleUntil)
		if g.music {
			s.Music = MusicNormal
			if lvl.Has(levels.MutatorAnnoyingAudio) {
				s.Music = MusicAnnoying
			}
		}
	} else {
		s.MaxTimeMs = lvl.Play.Milliseconds()
	}
	s.Desync = now.Before(g.desyncUntil)

	s.Tiles = make([]TileView, 0, len(g.tiles))
	for _, t := range g.tiles {
		_, glowing := g.matching[t.ID]
		v := TileView{
			ID:       t.ID,
			Matched:  t.Matched,
			Selected: g.isSelected(t.ID),
			Matching: glowing,
		}
		if g.phase == PhaseMemorize || v.Selected || v.Matched || v.Matching {
			v.Value, v.Color = t.Value, t.Color
		}
		s.Tiles = append(s.Tiles, v)
	}
	return s
}

// FormatElapsed renders d as MM:SS.t.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	secs := ms / 1000
	return fmt.Sprintf("%02d:%02d.%d", secs/60, secs%60, (ms%1000)/100)
}
