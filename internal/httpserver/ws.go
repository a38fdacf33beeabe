// internal/httpserver/ws.go
//
// Websocket stream for the caller's game at /game/ws.
// Responsibilities:
//   - Send the current snapshot and recent cues on connect, then every frame
//     the session publishes.
//   - Accept start/select/next/menu commands; their results arrive as frames.
//   - Keep the connection alive with ping/pong and bounded reads.

package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/memorypulse/internal/session"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// clientMsg is a command sent over the websocket.
type clientMsg struct {
	Type   string `json:"type"` // "start" | "select" | "next" | "menu"
	Mode   string `json:"mode,omitempty"`
	TileID string `json:"tileId,omitempty"`
}

// handleWS upgrades to a websocket that streams frames of the caller's session
// and accepts game commands.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	profile := profileFrom(r)
	sess, err := s.sessions.Get(r.Context(), profile)
	if err != nil {
		log.Error().Err(err).Str("profile", profile).Msg("load session")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session_failed"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	log.Info().Str("profile", profile).Msg("websocket connected")

	recent, frames, cancel := sess.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go readPump(conn, sess, done)
	writePump(conn, session.Frame{Snapshot: sess.Snapshot(), Cues: recent}, frames, done)
	log.Info().Str("profile", profile).Msg("websocket disconnected")
}

// readPump applies incoming commands until the connection fails. Outcomes
// reach the client as frames, so refusals are not answered.
func readPump(conn *websocket.Conn, sess *session.Session, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	ctx := context.Background()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Msg("websocket read")
			}
			return
		}
		var msg clientMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Debug().Err(err).Msg("bad websocket message")
			continue
		}
		switch msg.Type {
		case "start":
			_, err = sess.Start(ctx, parseMode(msg.Mode))
		case "select":
			_, err = sess.Select(ctx, msg.TileID)
		case "next":
			_, err = sess.Next(ctx)
		case "menu":
			sess.Menu(ctx)
		default:
			log.Debug().Str("type", msg.Type).Msg("unknown websocket message")
		}
		if err != nil {
			log.Debug().Err(err).Str("type", msg.Type).Msg("command refused")
		}
	}
}

// writePump sends the first frame, then every published frame, with pings.
func writePump(conn *websocket.Conn, first session.Frame, frames <-chan session.Frame, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	if err := writeFrame(conn, first); err != nil {
		return
	}
	for {
		select {
		case <-done:
			return
		case f, ok := <-frames:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := writeFrame(conn, f); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, f session.Frame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(f)
}
