// internal/httpserver/routes_game.go
//
// HTTP routes for the running game of the caller's profile:
//   - POST /game/new    → start a run (NORMAL; SPECIAL is refused)
//   - GET  /game        → current snapshot
//   - POST /game/select → flip a tile
//   - POST /game/next   → advance from LEVEL_COMPLETE
//   - POST /game/menu   → abandon the run / leave a result screen
//
// Every response carries a full snapshot; face-down tiles never expose their icon.

package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/memorypulse/internal/game"
	"github.com/robalobadob/memorypulse/internal/session"
)

// specialModeMessage is shown when SPECIAL mode is picked.
const specialModeMessage = "Special Mode: Secure Neural Link Required. Access Denied (Under Development)."

// mountGame registers the /game routes.
func (s *Server) mountGame(r chi.Router) {
	r.Get("/game", s.handleSnapshot)
	r.Post("/game/new", s.handleNewGame)
	r.Post("/game/select", s.handleSelect)
	r.Post("/game/next", s.handleNext)
	r.Post("/game/menu", s.handleMenu)
}

// session returns the caller's session or writes a 500.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(r.Context(), profileFrom(r))
	if err != nil {
		log.Error().Err(err).Msg("load session")
		writeError(w, http.StatusInternalServerError, "session_failed")
		return nil, false
	}
	return sess, true
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// newGameReq is the payload of POST /game/new.
type newGameReq struct {
	Mode string `json:"mode"` // "NORMAL" (default) | "SPECIAL"
}

func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	var req newGameReq
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_json")
			return
		}
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	snap, err := sess.Start(r.Context(), parseMode(req.Mode))
	switch {
	case errors.Is(err, game.ErrModeUnavailable):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "mode_unavailable", "message": specialModeMessage})
	case errors.Is(err, game.ErrUnknownMode):
		writeError(w, http.StatusBadRequest, "bad_mode")
	case err != nil:
		log.Error().Err(err).Msg("start game")
		writeError(w, http.StatusInternalServerError, "start_failed")
	default:
		writeJSON(w, http.StatusOK, snap)
	}
}

// selectReq/Res payloads for POST /game/select.
type selectReq struct {
	TileID string `json:"tileId"`
}
type selectRes struct {
	Accepted bool          `json:"accepted"`
	Reason   string        `json:"reason,omitempty"`
	Snapshot game.Snapshot `json:"snapshot"`
}

// handleSelect flips a tile. Refusals are part of play, so they return 200
// with accepted=false and a reason code.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TileID == "" {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	snap, err := sess.Select(r.Context(), req.TileID)
	res := selectRes{Accepted: err == nil, Snapshot: snap}
	if err != nil {
		res.Reason = refusalCode(err)
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	snap, err := sess.Next(r.Context())
	if errors.Is(err, game.ErrNotLevelComplete) {
		writeError(w, http.StatusConflict, "not_level_complete")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleMenu(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Menu(r.Context()))
}

// parseMode normalises a client mode string; empty means NORMAL.
func parseMode(raw string) game.Mode {
	return game.Mode(strings.ToUpper(strings.TrimSpace(raw)))
}

// refusalCode maps a Select refusal to its wire code.
func refusalCode(err error) string {
	switch {
	case errors.Is(err, game.ErrNotPlaying):
		return "not_playing"
	case errors.Is(err, game.ErrShuffling):
		return "shuffling"
	case errors.Is(err, game.ErrUnknownTile):
		return "unknown_tile"
	case errors.Is(err, game.ErrTileMatched):
		return "tile_matched"
	case errors.Is(err, game.ErrAlreadySelected):
		return "already_selected"
	case errors.Is(err, game.ErrSelectionFull):
		return "selection_full"
	default:
		return "refused"
	}
}
