// internal/session/session.go
//
// Live game sessions, one per profile.
// Responsibilities:
//   - Create a game on first contact, seeded with the persisted high score and music toggle.
//   - Run player commands (start, select, next, menu) against the game.
//   - Publish a frame (snapshot + cues) to subscribers after every change, including
//     timer-driven phase changes, and tick time snapshots while a phase timer runs.
//   - Persist the high score whenever the game raises it.
//   - Keep the most recent cues for subscribers that connect late.
//   - Evict sessions that nobody watched or touched for IdleTTL.

package session

import (
	"context"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/robalobadob/memorypulse/internal/game"
	"github.com/robalobadob/memorypulse/internal/levels"
	"github.com/robalobadob/memorypulse/internal/store"
	"github.com/robalobadob/memorypulse/internal/telemetry"
)

const (
	// DefaultTick is how often time snapshots are pushed during MEMORIZE/PLAY.
	DefaultTick = 100 * time.Millisecond
	// DefaultIdleTTL is how long an unwatched, untouched session is kept.
	DefaultIdleTTL = 30 * time.Minute

	recentCues = 32
	subBuffer  = 16
)

// Frame is one message pushed to subscribers.
type Frame struct {
	Snapshot game.Snapshot `json:"snapshot"`
	Cues     []game.Cue    `json:"cues,omitempty"`
}

// Options configures a Manager.
type Options struct {
	Prefs   *store.Prefs
	Clock   game.Clock     // defaults to the real clock
	Seed    uint64         // 0 seeds every game randomly
	Tick    time.Duration  // 0 disables time ticks
	IdleTTL time.Duration  // 0 means DefaultIdleTTL
	Levels  []levels.Level // defaults to the loaded table
	Icons   []levels.Icon
}

// Manager owns the sessions of all profiles.
type Manager struct {
	opts   Options
	tracer trace.Tracer

	mu        sync.Mutex // guards sessions, lastSweep and every Session.lastSeen
	sessions  map[string]*Session
	lastSweep time.Time
}

// NewManager constructs an empty Manager.
func NewManager(opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = game.RealClock()
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultIdleTTL
	}
	return &Manager{
		opts:      opts,
		tracer:    telemetry.Tracer("session"),
		sessions:  make(map[string]*Session),
		lastSweep: opts.Clock.Now(),
	}
}

// Get returns the profile's session, creating it on first use. Every call
// counts as activity, and at most every IdleTTL/4 it also evicts idle sessions.
func (m *Manager) Get(ctx context.Context, profile string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.opts.Clock.Now()
	if now.Sub(m.lastSweep) >= m.opts.IdleTTL/4 {
		m.sweepLocked(now)
	}
	if s, ok := m.sessions[profile]; ok {
		s.lastSeen = now
		return s, nil
	}

	high, err := m.opts.Prefs.HighScore(ctx, profile)
	if err != nil {
		return nil, err
	}
	music, err := m.opts.Prefs.Music(ctx, profile)
	if err != nil {
		return nil, err
	}

	s := &Session{
		profile:  profile,
		mgr:      m,
		subs:     make(map[chan Frame]struct{}),
		saved:    high,
		lastSeen: now,
	}
	s.game = game.New(game.Options{
		Clock:     m.opts.Clock,
		Seed:      m.opts.Seed,
		Levels:    m.opts.Levels,
		Icons:     m.opts.Icons,
		HighScore: high,
		Music:     music,
		OnChange:  func() { s.publish(context.Background()) },
	})
	m.sessions[profile] = s
	log.Debug().Str("profile", profile).Int("highscore", high).Msg("session created")
	return s, nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep evicts every session that has no subscribers and was last used
// IdleTTL or more ago. It returns the number evicted.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked(m.opts.Clock.Now())
}

func (m *Manager) sweepLocked(now time.Time) int {
	m.lastSweep = now
	n := 0
	for id, s := range m.sessions {
		if now.Sub(s.lastSeen) < m.opts.IdleTTL || s.watched() {
			continue
		}
		s.close()
		delete(m.sessions, id)
		n++
	}
	if n > 0 {
		log.Debug().Int("evicted", n).Int("live", len(m.sessions)).Msg("idle sessions evicted")
	}
	return n
}

// touch marks s as used now.
func (m *Manager) touch(s *Session) {
	m.mu.Lock()
	s.lastSeen = m.opts.Clock.Now()
	m.mu.Unlock()
}

// Close stops every session's timers and closes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		s.close()
		delete(m.sessions, id)
	}
}

// Session is the live game of one profile.
type Session struct {
	profile string
	mgr     *Manager
	game    *game.Game

	lastSeen time.Time // guarded by mgr.mu

	pubMu sync.Mutex // serializes frames: drain, snapshot and broadcast happen as one step

	mu       sync.Mutex // guards the fields below
	subs     map[chan Frame]struct{}
	recent   deque.Deque[game.Cue]
	saved    int // last persisted high score
	tickStop chan struct{}
}

// Start begins a new run.
func (s *Session) Start(ctx context.Context, mode game.Mode) (game.Snapshot, error) {
	ctx, span := s.startSpan(ctx, "start", telemetry.AttrMode.String(string(mode)))
	defer span.End()

	if err := s.game.Start(mode); err != nil {
		telemetry.Fail(span, err)
		return s.game.Snapshot(), err
	}
	log.Info().Str("profile", s.profile).Str("mode", string(mode)).Msg("run started")
	return s.result(span, s.publish(ctx)), nil
}

// Select flips a tile. A refused selection returns the error with the unchanged snapshot.
func (s *Session) Select(ctx context.Context, tileID string) (game.Snapshot, error) {
	ctx, span := s.startSpan(ctx, "select", telemetry.AttrTile.String(tileID))
	defer span.End()

	if err := s.game.Select(tileID); err != nil {
		telemetry.Refused(span, err.Error())
		return s.game.Snapshot(), err
	}
	return s.result(span, s.publish(ctx)), nil
}

// Next moves on from a completed level.
func (s *Session) Next(ctx context.Context) (game.Snapshot, error) {
	ctx, span := s.startSpan(ctx, "next")
	defer span.End()

	if err := s.game.Next(); err != nil {
		telemetry.Fail(span, err)
		return s.game.Snapshot(), err
	}
	return s.result(span, s.publish(ctx)), nil
}

// Menu returns to the title screen.
func (s *Session) Menu(ctx context.Context) game.Snapshot {
	ctx, span := s.startSpan(ctx, "menu")
	defer span.End()

	s.game.Menu()
	return s.result(span, s.publish(ctx))
}

// SetMusic toggles background music for the running game.
func (s *Session) SetMusic(ctx context.Context, on bool) game.Snapshot {
	s.game.SetMusic(on)
	return s.publish(ctx)
}

// Snapshot returns the current state without publishing.
func (s *Session) Snapshot() game.Snapshot { return s.game.Snapshot() }

func (s *Session) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return telemetry.StartCommand(ctx, s.mgr.tracer, "session", op, s.profile, attrs...)
}

func (s *Session) result(span trace.Span, snap game.Snapshot) game.Snapshot {
	telemetry.Result(span, string(snap.Phase), snap.Level)
	return snap
}

// Subscribe registers for frames. It returns the recent cues, the channel and
// a cancel func. The channel is closed on cancel or when the session ends.
func (s *Session) Subscribe() ([]game.Cue, <-chan Frame, func()) {
	ch := make(chan Frame, subBuffer)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	recent := make([]game.Cue, 0, s.recent.Len())
	for i := 0; i < s.recent.Len(); i++ {
		recent = append(recent, s.recent.At(i))
	}
	s.mu.Unlock()
	s.resyncTicker()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			if _, ok := s.subs[ch]; ok {
				delete(s.subs, ch)
				close(ch)
			}
			s.mu.Unlock()
			s.mgr.touch(s)
			s.resyncTicker()
		})
	}
	return recent, ch, cancel
}

// publish drains cues, persists a raised high score and fans the frame out.
func (s *Session) publish(ctx context.Context) game.Snapshot {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	cues := s.game.DrainCues()
	snap := s.game.Snapshot()

	s.mu.Lock()
	for _, c := range cues {
		if s.recent.Len() >= recentCues {
			s.recent.PopFront()
		}
		s.recent.PushBack(c)
	}
	raise := snap.HighScore > s.saved
	if raise {
		s.saved = snap.HighScore
	}
	s.mu.Unlock()

	if raise {
		if _, err := s.mgr.opts.Prefs.SaveHighScore(ctx, s.profile, snap.HighScore); err != nil {
			log.Warn().Err(err).Str("profile", s.profile).Msg("save high score")
		}
	}

	s.broadcast(Frame{Snapshot: snap, Cues: cues})
	s.syncTicker(snap.Phase)
	return snap
}

// broadcast sends f to every subscriber, dropping it for slow ones.
func (s *Session) broadcast(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- f:
		default:
		}
	}
}

// watched reports whether anyone is subscribed.
func (s *Session) watched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs) > 0
}

// resyncTicker applies the current phase to the ticker outside publish.
func (s *Session) resyncTicker() {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	s.syncTicker(s.game.Phase())
}

// syncTicker runs the time ticker only while someone watches an active phase.
func (s *Session) syncTicker(p game.Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := p.Active() && len(s.subs) > 0 && s.mgr.opts.Tick > 0
	switch {
	case want && s.tickStop == nil:
		s.tickStop = make(chan struct{})
		go s.tickLoop(s.tickStop, s.mgr.opts.Tick)
	case !want && s.tickStop != nil:
		close(s.tickStop)
		s.tickStop = nil
	}
}

func (s *Session) tickLoop(stop <-chan struct{}, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if !s.tick(stop) {
				return
			}
		}
	}
}

// tick pushes one time snapshot unless the ticker was stopped meanwhile.
// Phase changes always publish, so they are what stop the ticker.
func (s *Session) tick(stop <-chan struct{}) bool {
	s.pubMu.Lock()
	select {
	case <-stop:
		s.pubMu.Unlock()
		return false
	default:
	}
	s.broadcast(Frame{Snapshot: s.game.Snapshot()})
	s.pubMu.Unlock()
	return true
}

func (s *Session) close() {
	s.game.Menu()
	s.mu.Lock()
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
	if s.tickStop != nil {
		close(s.tickStop)
		s.tickStop = nil
	}
	s.mu.Unlock()
}
