// internal/game/engine.go
//
// Core game engine for a single memory run.
// Responsibilities:
//   - Deal a level: pick icons, build match groups, shuffle the board.
//   - Drive the memorize → play cycle with phase timers; a play phase with no
//     match costs a life ("desync") and the cycle restarts with a reshuffle.
//   - Resolve selections into matches (score, combo) or misses (life loss).
//   - Track state transitions: LEVEL_COMPLETE → next level, GAMEOVER, WON.
//
// Notes:
//   - Timers come from a Clock; every callback carries the generation it was
//     scheduled in and is dropped if the run moved on.
//   - OnChange fires after timer-driven transitions only. Callers of the
//     exported methods publish their own results.
package game

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	mrand "math/rand/v2"
	"time"

	"github.com/robalobadob/memorypulse/internal/levels"
)

var (
	ErrModeUnavailable  = errors.New("mode unavailable")
	ErrUnknownMode      = errors.New("unknown mode")
	ErrNoLevels         = errors.New("no levels loaded")
	ErrNotLevelComplete = errors.New("level not complete")

	// Select refusals.
	ErrNotPlaying      = errors.New("not in play phase")
	ErrShuffling       = errors.New("board is shuffling")
	ErrUnknownTile     = errors.New("unknown tile")
	ErrTileMatched     = errors.New("tile already matched")
	ErrAlreadySelected = errors.New("tile already selected")
	ErrSelectionFull   = errors.New("selection full")
)

// maxPendingCues bounds the cue backlog when nobody drains it.
const maxPendingCues = 64

// Options configures a new Game. Zero values pick the defaults.
type Options struct {
	Clock     Clock
	Seed      uint64 // 0 picks a random seed
	Levels    []levels.Level
	Icons     []levels.Icon
	HighScore int
	Music     bool
	OnChange  func()
}

// New constructs an idle game.
func New(opts Options) *Game {
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Levels == nil {
		opts.Levels = levels.All()
	}
	if opts.Icons == nil {
		opts.Icons = levels.Icons()
	}
	seed := opts.Seed
	if seed == 0 {
		seed = randomSeed()
	}
	return &Game{
		clock:     opts.Clock,
		rng:       mrand.New(mrand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		levels:    opts.Levels,
		icons:     opts.Icons,
		onChange:  opts.OnChange,
		phase:     PhaseIdle,
		combo:     1,
		highScore: opts.HighScore,
		music:     opts.Music,
		matching:  make(map[string]struct{}),
		effects:   make(map[uint64]Timer),
	}
}

// Start begins a new run from the first level. SPECIAL mode is refused.
func (g *Game) Start(mode Mode) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch mode {
	case ModeNormal, "":
	case ModeSpecial:
		return ErrModeUnavailable
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if len(g.levels) == 0 {
		return ErrNoLevels
	}
	g.score = 0
	g.startedAt = g.clock.Now()
	g.elapsed = 0
	g.initLevel(0)
	return nil
}

// Next advances from LEVEL_COMPLETE to the following level.
func (g *Game) Next() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.phase != PhaseLevelComplete {
		return ErrNotLevelComplete
	}
	g.initLevel(g.levelIdx + 1)
	return nil
}

// Menu abandons the run (or leaves a result screen) and returns to IDLE.
func (g *Game) Menu() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelEffects()
	g.setPhase(PhaseIdle, 0)
	g.selected = g.selected[:0]
	clear(g.matching)
}

// SetMusic toggles background music.
func (g *Game) SetMusic(on bool) {
	g.mu.Lock()
	g.music = on
	g.mu.Unlock()
}

// Select flips tile id. Completing a group resolves it as a match or a miss.
func (g *Game) Select(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase != PhasePlay {
		return ErrNotPlaying
	}
	if g.clock.Now().Before(g.shuffleUntil) {
		return ErrShuffling
	}
	lvl := g.level()
	t := g.tile(id)
	switch {
	case t == nil:
		return ErrUnknownTile
	case t.Matched:
		return ErrTileMatched
	case g.isSelected(id):
		return ErrAlreadySelected
	case len(g.selected) >= lvl.MatchCount:
		return ErrSelectionFull
	}

	g.cue(CueFlip)
	g.selected = append(g.selected, id)
	if len(g.selected) < lvl.MatchCount {
		return nil
	}
	if g.selectionMatches() {
		g.resolveMatch(lvl)
	} else {
		g.resolveMiss()
	}
	return nil
}

// DrainCues returns and clears the pending cues.
func (g *Game) DrainCues() []Cue {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := g.cues
	g.cues = nil
	return out
}

// Phase returns the current phase.
func (g *Game) Phase() Phase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase
}

// HighScore returns the best score seen by this game.
func (g *Game) HighScore() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.highScore
}

// Tiles returns a copy of the board with every face visible.
func (g *Game) Tiles() []Tile {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Tile(nil), g.tiles...)
}

// ----------------------------- transitions ---------------------------------

// initLevel deals level idx and starts its first memorize phase.
func (g *Game) initLevel(idx int) {
	g.cancelEffects()
	g.levelIdx = idx
	lvl := g.level()

	tiles := make([]Tile, 0, lvl.TileCount())
	for _, ic := range g.pickIcons(lvl.GroupCount()) {
		for i := 0; i < lvl.MatchCount; i++ {
			tiles = append(tiles, Tile{Value: ic.Value, Color: ic.Color})
		}
	}
	// IDs are assigned after shuffling so they say nothing about the face.
	g.shuffle(tiles)
	for i := range tiles {
		tiles[i].ID = fmt.Sprintf("L%d-T%d", lvl.ID, i)
	}
	g.tiles = tiles

	g.matched = 0
	g.lives = lvl.Lives
	g.selected = g.selected[:0]
	clear(g.matching)
	g.cycleMatches = 0
	g.combo = 1
	g.startMemorize()
}

// startMemorize opens a memorize phase with a freshly shuffled board.
func (g *Game) startMemorize() {
	lvl := g.level()
	g.setPhase(PhaseMemorize, lvl.Memorize)
	g.selected = g.selected[:0]
	clear(g.matching)
	g.matchedInCycle = false
	if g.cycleMatches < ComboCarryThreshold {
		g.combo = 1
	}
	g.cycleMatches = 0

	g.shuffle(g.tiles)
	g.shuffleUntil = g.clock.Now().Add(ShuffleDuration)
	g.cue(CueShuffle)

	g.schedulePhase(lvl.Memorize, g.enterPlay)
}

func (g *Game) enterPlay() {
	lvl := g.level()
	g.setPhase(PhasePlay, lvl.Play)
	g.schedulePhase(lvl.Play, g.endCycle)
}

// endCycle runs when the play timer expires.
func (g *Game) endCycle() {
	if !g.matchedInCycle {
		g.desync()
	}
	if g.lives > 0 {
		g.startMemorize()
	}
}

// desync punishes a play phase without a single match.
func (g *Game) desync() {
	g.cue(CueDesync)
	g.cue(CueMiss)
	g.combo = 1
	g.desyncUntil = g.clock.Now().Add(DesyncDuration)
	g.loseLife()
}

func (g *Game) loseLife() {
	g.lives--
	if g.lives <= 0 {
		g.lives = 0
		g.setPhase(PhaseGameOver, 0)
		g.cue(CueGameOver)
	}
}

func (g *Game) resolveMatch(lvl levels.Level) {
	group := append([]string(nil), g.selected...)
	for _, id := range group {
		g.tile(id).Matched = true
		g.matching[id] = struct{}{}
	}
	g.cue(CueMatch)
	g.matchedInCycle = true
	g.cycleMatches++

	g.score += BasePoints * lvl.ID * g.combo
	if g.score > g.highScore {
		g.highScore = g.score
	}
	g.combo++
	g.matched++
	g.selected = g.selected[:0]

	g.after(MatchGlowDuration, func() {
		for _, id := range group {
			delete(g.matching, id)
		}
	})

	if g.matched == lvl.GroupCount() {
		// The board is clear; the play timer must not start another cycle.
		g.stopPhaseTimer()
		g.after(LevelClearDelay, g.clearLevel)
	}
}

func (g *Game) resolveMiss() {
	g.cue(CueMiss)
	g.combo = 1
	g.after(MissPenaltyDelay, func() {
		if g.phase.Active() {
			g.loseLife()
		}
		g.selected = g.selected[:0]
	})
}

func (g *Game) clearLevel() {
	if g.phase != PhasePlay {
		return
	}
	if g.levelIdx < len(g.levels)-1 {
		g.setPhase(PhaseLevelComplete, 0)
		return
	}
	g.setPhase(PhaseWon, 0)
	g.cue(CueWin)
}

// ------------------------------- timers ------------------------------------

// setPhase switches phase, cancels the phase timer and keeps the run clock.
func (g *Game) setPhase(p Phase, d time.Duration) {
	now := g.clock.Now()
	if g.phase.Active() && !p.Active() {
		g.elapsed = now.Sub(g.startedAt)
	}
	g.stopPhaseTimer()
	g.phase = p
	if p.Active() {
		g.deadline = now.Add(d)
		g.phaseLen = d
	}
}

func (g *Game) stopPhaseTimer() {
	g.phaseGen++
	if g.phaseTimer != nil {
		g.phaseTimer.Stop()
		g.phaseTimer = nil
	}
}

func (g *Game) schedulePhase(d time.Duration, fn func()) {
	gen := g.phaseGen
	g.phaseTimer = g.clock.AfterFunc(d, func() {
		g.fire(func() bool {
			if g.phaseGen != gen {
				return false
			}
			fn()
			return true
		})
	})
}

// after schedules a delayed effect that survives phase changes but not a new
// level or a return to the menu.
func (g *Game) after(d time.Duration, fn func()) {
	gen := g.runGen
	g.effectSeq++
	seq := g.effectSeq
	g.effects[seq] = g.clock.AfterFunc(d, func() {
		g.fire(func() bool {
			if g.runGen != gen {
				return false
			}
			delete(g.effects, seq)
			fn()
			return true
		})
	})
}

func (g *Game) cancelEffects() {
	g.runGen++
	for _, t := range g.effects {
		t.Stop()
	}
	clear(g.effects)
}

// fire runs a timer body under the lock and reports the change.
func (g *Game) fire(body func() bool) {
	g.mu.Lock()
	changed := body()
	g.mu.Unlock()
	if changed && g.onChange != nil {
		g.onChange()
	}
}

// ------------------------------- helpers -----------------------------------

func (g *Game) level() levels.Level { return g.levels[g.levelIdx] }

func (g *Game) tile(id string) *Tile {
	for i := range g.tiles {
		if g.tiles[i].ID == id {
			return &g.tiles[i]
		}
	}
	return nil
}

func (g *Game) isSelected(id string) bool {
	for _, s := range g.selected {
		if s == id {
			return true
		}
	}
	return false
}

// selectionMatches reports whether every selected tile shows the same icon.
func (g *Game) selectionMatches() bool {
	first := g.tile(g.selected[0]).Value
	for _, id := range g.selected[1:] {
		if g.tile(id).Value != first {
			return false
		}
	}
	return true
}

// pickIcons returns n distinct icons in random order.
func (g *Game) pickIcons(n int) []levels.Icon {
	pool := append([]levels.Icon(nil), g.icons...)
	g.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if n > len(pool) {
		n = len(pool)
	}
	return pool[:n]
}

// shuffle is an in-place Fisher–Yates shuffle.
func (g *Game) shuffle(ts []Tile) {
	g.rng.Shuffle(len(ts), func(i, j int) { ts[i], ts[j] = ts[j], ts[i] })
}

func (g *Game) cue(c Cue) {
	if len(g.cues) >= maxPendingCues {
		g.cues = g.cues[1:]
	}
	g.cues = append(g.cues, c)
}

// randomSeed draws a seed from crypto/rand.
func randomSeed() uint64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return binary.LittleEndian.Uint64(b[:])
}
