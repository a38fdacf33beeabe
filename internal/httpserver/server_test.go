package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/robalobadob/memorypulse/internal/game"
	"github.com/robalobadob/memorypulse/internal/levels"
	"github.com/robalobadob/memorypulse/internal/session"
	"github.com/robalobadob/memorypulse/internal/store"
)

type testEnv struct {
	ts    *httptest.Server
	clk   *game.ManualClock
	c     *http.Client
	prefs *store.Prefs
	mgr   *session.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	if err := levels.Init(); err != nil {
		t.Fatal(err)
	}
	prefs := store.NewPrefs(store.NewMemoryStore())
	clk := game.NewManualClock(time.Unix(1700000000, 0))
	mgr := session.NewManager(session.Options{Prefs: prefs, Clock: clk, Seed: 11})
	srv := New(mgr, prefs, Config{JWTSecret: "test-secret"})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		mgr.Close()
		ts.Close()
	})
	jar, _ := cookiejar.New(nil)
	return &testEnv{ts: ts, clk: clk, c: &http.Client{Jar: jar}, prefs: prefs, mgr: mgr}
}

// do sends a JSON request and decodes the JSON response into out (if non-nil).
func (e *testEnv) do(t *testing.T, method, path, body string, out any) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.ts.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := e.c.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return res
}

func TestHealthAndLevels(t *testing.T) {
	e := newTestEnv(t)

	var health map[string]bool
	if res := e.do(t, http.MethodGet, "/health", "", &health); res.StatusCode != http.StatusOK || !health["ok"] {
		t.Fatalf("GET /health = %d %v", res.StatusCode, health)
	}

	var ls []levelView
	e.do(t, http.MethodGet, "/levels", "", &ls)
	if len(ls) != 50 {
		t.Fatalf("GET /levels returned %d levels, want 50", len(ls))
	}
	if ls[0].ID != 1 || ls[0].MatchCount != 2 || ls[0].MemorizeMs == 0 {
		t.Errorf("level 1 = %+v", ls[0])
	}

	var nf map[string]string
	if res := e.do(t, http.MethodGet, "/nope", "", &nf); res.StatusCode != http.StatusNotFound || nf["error"] != "not_found" {
		t.Errorf("GET /nope = %d %v", res.StatusCode, nf)
	}
}

func TestProfileCookieIsReused(t *testing.T) {
	e := newTestEnv(t)

	res := e.do(t, http.MethodGet, "/prefs", "", nil)
	var issued *http.Cookie
	for _, c := range res.Cookies() {
		if c.Name == "memory_pulse_profile" {
			issued = c
		}
	}
	if issued == nil || !issued.HttpOnly {
		t.Fatalf("profile cookie not issued: %v", res.Cookies())
	}

	res = e.do(t, http.MethodGet, "/prefs", "", nil)
	for _, c := range res.Cookies() {
		if c.Name == "memory_pulse_profile" {
			t.Error("second request issued a new profile")
		}
	}
}

func TestGameFlow(t *testing.T) {
	e := newTestEnv(t)

	var snap game.Snapshot
	if res := e.do(t, http.MethodPost, "/game/new", `{"mode":"normal"}`, &snap); res.StatusCode != http.StatusOK {
		t.Fatalf("POST /game/new = %d", res.StatusCode)
	}
	if snap.Phase != game.PhaseMemorize || snap.Level != 1 || len(snap.Tiles) != 12 {
		t.Fatalf("new game snapshot = %+v", snap)
	}
	for _, tl := range snap.Tiles {
		if tl.Value == "" {
			t.Fatal("faces must be visible while memorizing")
		}
	}

	var sel selectRes
	e.do(t, http.MethodPost, "/game/select", `{"tileId":"`+snap.Tiles[0].ID+`"}`, &sel)
	if sel.Accepted || sel.Reason != "not_playing" {
		t.Errorf("select during MEMORIZE = %+v", sel)
	}

	e.clk.Advance(time.Duration(snap.MaxTimeMs) * time.Millisecond)
	var play game.Snapshot
	e.do(t, http.MethodGet, "/game", "", &play)
	if play.Phase != game.PhasePlay {
		t.Fatalf("phase after memorize window = %v", play.Phase)
	}
	if len(play.Tiles) != 12 {
		t.Fatalf("play snapshot has %d tiles, want 12", len(play.Tiles))
	}
	for _, tl := range play.Tiles {
		if tl.Value != "" || tl.Color != "" {
			t.Fatalf("face-down tile %s leaked its icon", tl.ID)
		}
	}

	var flipped selectRes
	e.do(t, http.MethodPost, "/game/select", `{"tileId":"`+play.Tiles[0].ID+`"}`, &flipped)
	if !flipped.Accepted || flipped.Snapshot.Tiles[0].Value == "" {
		t.Errorf("select during PLAY = %+v", flipped)
	}
	for _, tl := range flipped.Snapshot.Tiles[1:] {
		if tl.Value != "" {
			t.Fatalf("unselected tile %s leaked its icon", tl.ID)
		}
	}

	var errBody map[string]string
	if res := e.do(t, http.MethodPost, "/game/next", "", &errBody); res.StatusCode != http.StatusConflict || errBody["error"] != "not_level_complete" {
		t.Errorf("POST /game/next = %d %v", res.StatusCode, errBody)
	}

	var idle game.Snapshot
	e.do(t, http.MethodPost, "/game/menu", "", &idle)
	if idle.Phase != game.PhaseIdle || len(idle.Tiles) != 0 {
		t.Errorf("after menu: phase %v, %d tiles", idle.Phase, len(idle.Tiles))
	}
}

func TestNewGameModes(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		body   string
		status int
		code   string
	}{
		{`{"mode":"SPECIAL"}`, http.StatusConflict, "mode_unavailable"},
		{`{"mode":"hard"}`, http.StatusBadRequest, "bad_mode"},
		{`{"mode":`, http.StatusBadRequest, "bad_json"},
	}
	for _, tc := range tests {
		var body map[string]string
		res := e.do(t, http.MethodPost, "/game/new", tc.body, &body)
		if res.StatusCode != tc.status || body["error"] != tc.code {
			t.Errorf("POST /game/new %s = %d %v", tc.body, res.StatusCode, body)
		}
	}

	var snap game.Snapshot
	if res := e.do(t, http.MethodPost, "/game/new", "", &snap); res.StatusCode != http.StatusOK || snap.Phase != game.PhaseMemorize {
		t.Errorf("POST /game/new without body = %d %v", res.StatusCode, snap.Phase)
	}
}

func TestPrefs(t *testing.T) {
	e := newTestEnv(t)

	var p prefsRes
	e.do(t, http.MethodGet, "/prefs", "", &p)
	if p.Theme != store.ThemePurple || !p.Music || p.HighScore != 0 {
		t.Fatalf("default prefs = %+v", p)
	}

	var snap game.Snapshot
	e.do(t, http.MethodPost, "/game/new", "", &snap)
	if snap.Music != game.MusicNormal {
		t.Fatalf("music = %q while memorizing, want normal", snap.Music)
	}

	if res := e.do(t, http.MethodPut, "/prefs", `{"theme":"blue","music":false}`, &p); res.StatusCode != http.StatusOK {
		t.Fatalf("PUT /prefs = %d", res.StatusCode)
	}
	if p.Theme != store.ThemeBlue || p.Music {
		t.Errorf("updated prefs = %+v", p)
	}

	var muted game.Snapshot
	e.do(t, http.MethodGet, "/game", "", &muted)
	if muted.Music != game.MusicOff {
		t.Errorf("live game music = %q after disabling", muted.Music)
	}

	var body map[string]string
	if res := e.do(t, http.MethodPut, "/prefs", `{"theme":"green"}`, &body); res.StatusCode != http.StatusBadRequest || body["error"] != "invalid_theme" {
		t.Errorf("PUT invalid theme = %d %v", res.StatusCode, body)
	}
}

func TestWebsocketStream(t *testing.T) {
	e := newTestEnv(t)

	// Get a profile cookie first so HTTP and websocket share a game.
	e.do(t, http.MethodGet, "/game", "", nil)
	u := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/game/ws"
	hdr := http.Header{}
	for _, c := range e.c.Jar.Cookies(mustURL(t, e.ts.URL)) {
		hdr.Add("Cookie", c.String())
	}
	conn, _, err := websocket.DefaultDialer.Dial(u, hdr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var f session.Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatal(err)
	}
	if f.Snapshot.Phase != game.PhaseIdle {
		t.Fatalf("initial frame phase = %v", f.Snapshot.Phase)
	}

	if err := conn.WriteJSON(clientMsg{Type: "start", Mode: " normal "}); err != nil {
		t.Fatal(err)
	}
	f = session.Frame{}
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatal(err)
	}
	if f.Snapshot.Phase != game.PhaseMemorize || len(f.Cues) == 0 || f.Cues[0] != game.CueShuffle {
		t.Errorf("start frame = %+v", f)
	}

	var snap game.Snapshot
	e.do(t, http.MethodGet, "/game", "", &snap)
	if snap.Phase != game.PhaseMemorize {
		t.Errorf("HTTP sees phase %v, want the websocket's game", snap.Phase)
	}
}

func TestFailedUpgradeCreatesNoSession(t *testing.T) {
	e := newTestEnv(t)

	res := e.do(t, http.MethodGet, "/game/ws", "", nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("plain GET /game/ws = %d, want 400", res.StatusCode)
	}
	if n := e.mgr.Len(); n != 0 {
		t.Errorf("%d sessions after a failed upgrade, want 0", n)
	}
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return u
}
