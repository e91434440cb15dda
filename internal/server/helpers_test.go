package server

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/geochat/internal/clock"
	"github.com/Tyrowin/geochat/internal/logger"
	"github.com/Tyrowin/geochat/internal/session"
	"github.com/Tyrowin/geochat/internal/venue"
)

const (
	testAdminKey = "s3cret"
	readTimeout  = 2 * time.Second
)

const testPlaces = `[
  {"id": "plaza", "name": "Plaza", "address": "1 Main St", "lat": 0, "lng": 0, "radius": 90},
  {"id": "harbor", "name": "Harbor", "lat": 10, "lng": 10, "radius": 90}
]`

type testEnv struct {
	srv    *Server
	ts     *httptest.Server
	reg    *session.Registry
	clock  *clock.FakeClock
	venues *venue.FileStore
}

func newTestEnv(t *testing.T, customize func(cfg *Config)) *testEnv {
	t.Helper()

	path := filepath.Join(t.TempDir(), "places.json")
	require.NoError(t, os.WriteFile(path, []byte(testPlaces), 0o600))
	store, err := venue.OpenFile(path, venue.DefaultRadius)
	require.NoError(t, err)

	fc := clock.Fake(time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC))
	reg := session.NewRegistry(store, session.Options{Clock: fc, Logger: logger.Discard()})

	cfg := NewConfig()
	cfg.AllowedOrigins = []string{"*"}
	cfg.AdminKey = testAdminKey
	cfg.BaseURL = "https://geo.example"
	if customize != nil {
		customize(cfg)
	}

	srv := New(cfg, reg, store, logger.Discard())
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		_ = srv.Shutdown(2 * time.Second)
		ts.Close()
		reg.Close()
	})

	return &testEnv{srv: srv, ts: ts, reg: reg, clock: fc, venues: store}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header http.Header) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// admit joins alias to venueID over HTTP and returns the session token.
func (e *testEnv) admit(t *testing.T, venueID, alias string) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/session/join", map[string]string{
		"placeId": venueID,
		"alias":   alias,
		"phone":   "+1 555 0100",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decodeBody[map[string]string](t, resp)["sessionId"]
}

func (e *testEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws"
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("Origin", e.ts.URL)
	conn, resp, err := websocket.DefaultDialer.Dial(e.wsURL(), header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// connect dials, authenticates as sessionID and consumes the welcome.
func (e *testEnv) connect(t *testing.T, sessionID string) *websocket.Conn {
	t.Helper()
	conn := e.dial(t)
	send(t, conn, inboundAuth, authPayload{SessionID: sessionID})
	welcome := readUntil(t, conn, session.EventWelcome)
	require.Equal(t, sessionID, payloadOf[session.Welcome](t, welcome).SessionID)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, eventType string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(envelope{Type: eventType, Data: raw}))
}

type received struct {
	Type session.EventType `json:"type"`
	Data json.RawMessage   `json:"data"`
}

func readEvent(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
	var ev received
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

// readUntil skips events until one of type want arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want session.EventType) received {
	t.Helper()
	for {
		ev := readEvent(t, conn)
		if ev.Type == want {
			return ev
		}
	}
}

// nextLeave skips join announcements until a leave arrives.
func nextLeave(t *testing.T, conn *websocket.Conn) session.Presence {
	t.Helper()
	for {
		p := payloadOf[session.Presence](t, readUntil(t, conn, session.EventPresence))
		if p.Type == session.PresenceLeave {
			return p
		}
	}
}

func payloadOf[T any](t *testing.T, ev received) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(ev.Data, &v))
	return v
}

// expectClosed reads until the server closes the connection.
func expectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			t.Fatalf("connection was not closed: %v", err)
		}
		return
	}
}

// expectNoEvent asserts nothing of type unwanted arrives within timeout.
func expectNoEvent(t *testing.T, conn *websocket.Conn, unwanted session.EventType, timeout time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	for {
		var ev received
		err := conn.ReadJSON(&ev)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return
			}
			t.Fatalf("unexpected read error: %v", err)
		}
		if ev.Type == unwanted {
			t.Fatalf("unexpected %s event: %s", ev.Type, ev.Data)
		}
	}
}

func gpsFix(lat, lng, accuracy float64) map[string]float64 {
	return map[string]float64{"lat": lat, "lng": lng, "accuracy": accuracy}
}
