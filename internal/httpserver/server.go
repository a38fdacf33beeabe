// internal/httpserver/server.go
//
// HTTP server wiring for the Memory Pulse backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health", "/levels".
//   - Game endpoints: mounted under /game (routes_game.go), websocket stream at /game/ws.
//   - Preference endpoints: GET/PUT /prefs.
//
// Notes:
//   - Every request is tied to an anonymous profile carried in a signed cookie
//     (profile.go); there is no signup.
//   - CORS is origin-aware and credentials-enabled so the profile cookie works.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/memorypulse/internal/levels"
	"github.com/robalobadob/memorypulse/internal/session"
	"github.com/robalobadob/memorypulse/internal/store"
)

// Config holds the transport settings.
type Config struct {
	JWTSecret     string
	ClientOrigin  string
	CookieName    string
	SecureCookies bool
	ProfileTTL    time.Duration
}

// Server bundles router, session manager and preferences.
type Server struct {
	r        *chi.Mux
	cfg      Config
	sessions *session.Manager
	prefs    *store.Prefs
	upgrader websocket.Upgrader
}

// New constructs a Server, installs middleware, and registers routes.
func New(sessions *session.Manager, prefs *store.Prefs, cfg Config) *Server {
	if cfg.CookieName == "" {
		cfg.CookieName = "memory_pulse_profile"
	}
	if cfg.ProfileTTL == 0 {
		cfg.ProfileTTL = 365 * 24 * time.Hour
	}
	if cfg.ClientOrigin == "" {
		cfg.ClientOrigin = "http://localhost:5173"
	}
	s := &Server{r: chi.NewRouter(), cfg: cfg, sessions: sessions, prefs: prefs}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			o := r.Header.Get("Origin")
			return o == "" || o == cfg.ClientOrigin
		},
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID) // add X-Request-ID
	s.r.Use(chimw.RealIP)    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(chimw.Recoverer) // recover from panics
	s.r.Use(s.cors)          // credentials-friendly CORS
	s.r.Use(s.withProfile)   // anonymous profile cookie

	// Websocket stream: long-lived, so outside the handler timeout.
	s.r.Get("/game/ws", s.handleWS)

	s.r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(10 * time.Second)) // bound handler time
		r.Use(jsonContentType)                 // default JSON responses

		// --- diagnostics ---
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"service":"memorypulse","endpoints":["/health","/levels","/game","/game/ws","/prefs"]}`))
		})
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"ok":true}`))
		})

		r.Get("/levels", s.handleLevels)
		s.mountGame(r)
		r.Get("/prefs", s.handleGetPrefs)
		r.Put("/prefs", s.handlePutPrefs)
	})

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "path": r.URL.Path})
	})

	return s
}

// Start serves HTTP on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.r, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors enables credentialed CORS for the configured client origin.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", s.cfg.ClientOrigin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ------------------------------- LEVELS ------------------------------------

type levelView struct {
	ID         int              `json:"id"`
	Label      string           `json:"label"`
	Grid       levels.GridSize  `json:"gridSize"`
	MatchCount int              `json:"matchCount"`
	MemorizeMs int64            `json:"memorizeMs"`
	PlayMs     int64            `json:"playMs"`
	Lives      int              `json:"lives"`
	Mutators   []levels.Mutator `json:"mutators"`
}

// handleLevels lists the campaign table.
func (s *Server) handleLevels(w http.ResponseWriter, r *http.Request) {
	all := levels.All()
	out := make([]levelView, 0, len(all))
	for _, l := range all {
		out = append(out, levelView{
			ID:         l.ID,
			Label:      l.Label,
			Grid:       l.Grid,
			MatchCount: l.MatchCount,
			MemorizeMs: l.Memorize.Milliseconds(),
			PlayMs:     l.Play.Milliseconds(),
			Lives:      l.Lives,
			Mutators:   l.Mutators,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// -------------------------------- PREFS ------------------------------------

type prefsRes struct {
	HighScore int    `json:"highscore"`
	Theme     string `json:"theme"`
	Music     bool   `json:"music"`
}

type prefsReq struct {
	Theme *string `json:"theme"`
	Music *bool   `json:"music"`
}

func (s *Server) handleGetPrefs(w http.ResponseWriter, r *http.Request) {
	res, err := s.loadPrefs(r)
	if err != nil {
		log.Error().Err(err).Msg("load prefs")
		writeError(w, http.StatusInternalServerError, "store_error")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handlePutPrefs updates theme and/or music; music also applies to the live game.
func (s *Server) handlePutPrefs(w http.ResponseWriter, r *http.Request) {
	var req prefsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	ctx := r.Context()
	id := profileFrom(r)

	if req.Theme != nil {
		if err := s.prefs.SetTheme(ctx, id, *req.Theme); err != nil {
			if errors.Is(err, store.ErrInvalidTheme) {
				writeError(w, http.StatusBadRequest, "invalid_theme")
				return
			}
			log.Error().Err(err).Msg("save theme")
			writeError(w, http.StatusInternalServerError, "store_error")
			return
		}
	}
	if req.Music != nil {
		if err := s.prefs.SetMusic(ctx, id, *req.Music); err != nil {
			log.Error().Err(err).Msg("save music")
			writeError(w, http.StatusInternalServerError, "store_error")
			return
		}
		if sess, err := s.sessions.Get(ctx, id); err == nil {
			sess.SetMusic(ctx, *req.Music)
		}
	}

	res, err := s.loadPrefs(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) loadPrefs(r *http.Request) (prefsRes, error) {
	ctx, id := r.Context(), profileFrom(r)
	var res prefsRes
	var err error
	if res.HighScore, err = s.prefs.HighScore(ctx, id); err != nil {
		return res, err
	}
	if res.Theme, err = s.prefs.Theme(ctx, id); err != nil {
		return res, err
	}
	if res.Music, err = s.prefs.Music(ctx, id); err != nil {
		return res, err
	}
	return res, nil
}

// ------------------------------- small util --------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
