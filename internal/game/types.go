// internal/game/types.go
//
// Core type definitions for the memory game engine.
// Defines:
//   - Phase: where a run is in the memorize/play cycle.
//   - Mode: the game mode chosen on the title screen.
//   - Cue: sound/banner cues the client plays back.
//   - Tile: one face on the board.
//   - Game: state for a single run.

package game

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/robalobadob/memorypulse/internal/levels"
)

// Phase is the state of a run.
type Phase string

const (
	PhaseIdle          Phase = "IDLE"
	PhaseMemorize      Phase = "MEMORIZE"
	PhasePlay          Phase = "PLAY"
	PhaseLevelComplete Phase = "LEVEL_COMPLETE"
	PhaseGameOver      Phase = "GAMEOVER"
	PhaseWon           Phase = "WON"
)

// Active reports whether the phase timers and the run clock are running.
func (p Phase) Active() bool { return p == PhaseMemorize || p == PhasePlay }

// Mode is the game mode picked before a run.
type Mode string

const (
	ModeNormal  Mode = "NORMAL"
	ModeSpecial Mode = "SPECIAL"
)

// Cue names a sound effect or banner the client should play.
type Cue string

const (
	CueFlip     Cue = "flip"
	CueMatch    Cue = "match"
	CueMiss     Cue = "miss"
	CueShuffle  Cue = "shuffle"
	CueGameOver Cue = "gameover"
	CueWin      Cue = "win"
	CueDesync   Cue = "desync"
)

// Tile is one face on the board. ID is "L<level>-T<n>", numbered after the
// deal shuffle so it carries nothing about the face.
type Tile struct {
	ID      string
	Value   string
	Color   string
	Matched bool
}

// Timing constants of the board effects.
const (
	ShuffleDuration   = 900 * time.Millisecond // reshuffle at memorize start; clicks refused meanwhile
	MissPenaltyDelay  = 800 * time.Millisecond // a wrong group stays face up before the life is taken
	MatchGlowDuration = 800 * time.Millisecond // matched ids stay in the matching group
	LevelClearDelay   = 600 * time.Millisecond // last match to LEVEL_COMPLETE/WON
	DesyncDuration    = time.Second            // desync banner

	// ComboCarryThreshold is the number of matches in one cycle needed to keep
	// the combo across the next memorize phase.
	ComboCarryThreshold = 4
	// BasePoints is multiplied by level id and combo for every match.
	BasePoints = 100
)

// Game holds the state of a single run. All methods are safe for concurrent use;
// timer callbacks take the same lock.
type Game struct {
	mu       sync.Mutex
	clock    Clock
	rng      *rand.Rand
	levels   []levels.Level
	icons    []levels.Icon
	onChange func()

	phase          Phase
	levelIdx       int
	tiles          []Tile
	lives          int
	score          int
	highScore      int
	combo          int
	matched        int      // groups matched on this level
	cycleMatches   int      // groups matched since the last memorize phase
	matchedInCycle bool     // at least one group matched in this cycle
	selected       []string // tile ids, in selection order
	matching       map[string]struct{}
	music          bool

	startedAt    time.Time
	elapsed      time.Duration // frozen run time while not Active
	deadline     time.Time     // end of the current MEMORIZE/PLAY phase
	phaseLen     time.Duration
	shuffleUntil time.Time
	desyncUntil  time.Time

	// phaseGen invalidates the phase timer; runGen invalidates delayed effects.
	phaseGen   uint64
	runGen     uint64
	phaseTimer Timer
	effects    map[uint64]Timer // pending delayed effects by seq
	effectSeq  uint64

	cues []Cue
}
