// internal/levels/levels.go
//
// Campaign level table and tile icon set.
//
// Responsibilities:
//   - Load the 50 level records and the icon set from the embedded YAML, or from
//     LEVELS_FILE when an override table is configured.
//   - Validate the table once (grid divisible by match size, enough icons, ids in order).
//   - Serve read-only lookups: All, Get, Count, Icons.
//
// Environment variables:
//   LEVELS_FILE=/path/to/levels.yaml
//
// Initialization is run once (sync.Once); the table is read-only afterwards.

package levels

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/robalobadob/memorypulse/assets"
)

// Mutator is a per-level difficulty modifier.
type Mutator string

const (
	MutatorFlicker       Mutator = "FLICKER"
	MutatorAnnoyingAudio Mutator = "ANNOYING_AUDIO"
	MutatorTriplets      Mutator = "TRIPLETS"
)

// GridSize is the board shape of a level.
type GridSize struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// Level holds the difficulty parameters of one campaign level.
type Level struct {
	ID         int           `json:"id"`
	Label      string        `json:"label"`
	Grid       GridSize      `json:"gridSize"`
	MatchCount int           `json:"matchCount"` // 2 for pairs, 3 for triplets
	Memorize   time.Duration `json:"-"`
	Play       time.Duration `json:"-"`
	Lives      int           `json:"lives"`
	Mutators   []Mutator     `json:"mutators"`
}

// TileCount is the number of tiles on the board.
func (l Level) TileCount() int { return l.Grid.Rows * l.Grid.Cols }

// GroupCount is the number of matches needed to clear the board.
func (l Level) GroupCount() int {
	if l.MatchCount <= 0 {
		return 0
	}
	return l.TileCount() / l.MatchCount
}

// Has reports whether the level carries mutator m.
func (l Level) Has(m Mutator) bool {
	for _, x := range l.Mutators {
		if x == m {
			return true
		}
	}
	return false
}

// Icon is a tile face.
type Icon struct {
	Value string `json:"value" yaml:"value"`
	Color string `json:"color" yaml:"color"`
}

// levelRecord mirrors one YAML entry.
type levelRecord struct {
	ID         int      `yaml:"id"`
	Label      string   `yaml:"label"`
	Rows       int      `yaml:"rows"`
	Cols       int      `yaml:"cols"`
	Match      int      `yaml:"match"`
	MemorizeMs int      `yaml:"memorize_ms"`
	PlayMs     int      `yaml:"play_ms"`
	Lives      int      `yaml:"lives"`
	Mutators   []string `yaml:"mutators"`
}

var (
	initOnce   sync.Once
	table      []Level
	icons      []Icon
	initialErr error
)

// Init loads the level table and icons exactly once.
func Init() error {
	initOnce.Do(func() {
		var raw []byte
		var err error
		if path := os.Getenv("LEVELS_FILE"); path != "" {
			raw, err = os.ReadFile(path)
		} else {
			raw, err = assets.LevelsYAML()
		}
		if err != nil {
			initialErr = fmt.Errorf("levels: read table: %w", err)
			return
		}
		if table, err = Parse(raw); err != nil {
			initialErr = err
			return
		}

		iconRaw, err := assets.IconsYAML()
		if err != nil {
			initialErr = fmt.Errorf("levels: read icons: %w", err)
			return
		}
		if icons, err = ParseIcons(iconRaw); err != nil {
			initialErr = err
			return
		}
		initialErr = Validate(table, icons)
	})
	return initialErr
}

// Parse decodes a YAML level table.
func Parse(raw []byte) ([]Level, error) {
	var recs []levelRecord
	if err := yaml.Unmarshal(raw, &recs); err != nil {
		return nil, fmt.Errorf("levels: decode: %w", err)
	}
	out := make([]Level, 0, len(recs))
	for _, r := range recs {
		lvl := Level{
			ID:         r.ID,
			Label:      r.Label,
			Grid:       GridSize{Rows: r.Rows, Cols: r.Cols},
			MatchCount: r.Match,
			Memorize:   time.Duration(r.MemorizeMs) * time.Millisecond,
			Play:       time.Duration(r.PlayMs) * time.Millisecond,
			Lives:      r.Lives,
			Mutators:   make([]Mutator, 0, len(r.Mutators)),
		}
		for _, m := range r.Mutators {
			lvl.Mutators = append(lvl.Mutators, Mutator(m))
		}
		out = append(out, lvl)
	}
	return out, nil
}

// ParseIcons decodes a YAML icon list.
func ParseIcons(raw []byte) ([]Icon, error) {
	var out []Icon
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("levels: decode icons: %w", err)
	}
	return out, nil
}

// Validate checks that every level can be dealt from the icon set.
func Validate(ls []Level, is []Icon) error {
	if len(ls) == 0 {
		return errors.New("levels: table is empty")
	}
	for i, l := range ls {
		switch {
		case l.ID != i+1:
			return fmt.Errorf("levels: entry %d has id %d", i, l.ID)
		case l.MatchCount < 2:
			return fmt.Errorf("levels: level %d: match count %d", l.ID, l.MatchCount)
		case l.TileCount() == 0 || l.TileCount()%l.MatchCount != 0:
			return fmt.Errorf("levels: level %d: %dx%d grid not divisible by %d", l.ID, l.Grid.Rows, l.Grid.Cols, l.MatchCount)
		case l.GroupCount() > len(is):
			return fmt.Errorf("levels: level %d needs %d icons, have %d", l.ID, l.GroupCount(), len(is))
		case l.Memorize <= 0 || l.Play <= 0:
			return fmt.Errorf("levels: level %d: durations must be positive", l.ID)
		case l.Lives < 1:
			return fmt.Errorf("levels: level %d: no lives", l.ID)
		}
		for _, m := range l.Mutators {
			switch m {
			case MutatorFlicker, MutatorAnnoyingAudio, MutatorTriplets:
			default:
				return fmt.Errorf("levels: level %d: unknown mutator %q", l.ID, m)
			}
		}
	}
	return nil
}

// All returns the loaded table.
func All() []Level { return table }

// Icons returns the loaded icon set.
func Icons() []Icon { return icons }

// Count returns the number of campaign levels.
func Count() int { return len(table) }

// Get returns the level at idx (0-based).
func Get(idx int) (Level, bool) {
	if idx < 0 || idx >= len(table) {
		return Level{}, false
	}
	return table[idx], true
}
