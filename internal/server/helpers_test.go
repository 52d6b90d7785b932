package server_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomchat/internal/server"
)

const (
	testOrigin  = "http://localhost:3000"
	readTimeout = 2 * time.Second
)

// newTestServer starts an httptest server over a fresh Server. configure may
// adjust the defaults before the server is built.
func newTestServer(t *testing.T, configure func(cfg *server.Config)) (*server.Server, *httptest.Server) {
	t.Helper()

	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{testOrigin}
	if configure != nil {
		configure(cfg)
	}

	app, err := server.New(*cfg, nil)
	if err != nil {
		t.Fatalf("Failed to build server: %v", err)
	}

	testServer := httptest.NewServer(app.SetupRoutes())
	t.Cleanup(func() {
		_ = app.Shutdown(2 * time.Second)
		testServer.Close()
	})
	return app, testServer
}

func wsURL(t *testing.T, serverURL, path string) string {
	t.Helper()
	u, err := url.Parse(serverURL)
	if err != nil {
		t.Fatalf("Failed to parse server URL: %v", err)
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	return u.String() + path
}

func roomPath(id string) string {
	return "/ws/room/" + url.PathEscape(id)
}

// dial opens a WebSocket connection with the allowed test origin.
func dial(t *testing.T, testServer *httptest.Server, path string) *websocket.Conn {
	t.Helper()

	header := http.Header{}
	header.Set("Origin", testOrigin)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(t, testServer.URL, path), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to connect to %s: %v", path, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// joinRoom connects to a room, sends the join frame, and consumes the
// roster every new occupant receives.
func joinRoom(t *testing.T, testServer *httptest.Server, room, username string) *websocket.Conn {
	t.Helper()
	conn := dial(t, testServer, roomPath(room))
	sendJSON(t, conn, map[string]any{"username": username})
	expectType(t, conn, "users")
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("Failed to send frame: %v", err)
	}
}

func sendRaw(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("Failed to send frame: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("Frame %q is not a JSON object: %v", data, err)
	}
	return frame
}

func expectType(t *testing.T, conn *websocket.Conn, frameType string) map[string]any {
	t.Helper()
	frame := readFrame(t, conn)
	if frame["type"] != frameType {
		t.Fatalf("Expected %q frame, got %v", frameType, frame)
	}
	return frame
}

func expectStatus(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	frame := expectType(t, conn, "status")
	if frame["text"] != text {
		t.Errorf("Expected status %q, got %q", text, frame["text"])
	}
}

func expectUsers(t *testing.T, conn *websocket.Conn, users ...string) {
	t.Helper()
	frame := expectType(t, conn, "users")
	got, _ := frame["users"].([]any)
	if len(got) != len(users) {
		t.Fatalf("Expected users %v, got %v", users, got)
	}
	for i, name := range users {
		if got[i] != name {
			t.Errorf("Expected users %v, got %v", users, got)
			return
		}
	}
}

// expectRooms checks a rooms frame against room id to occupant count.
func expectRooms(t *testing.T, conn *websocket.Conn, want map[string]int) {
	t.Helper()
	frame := expectType(t, conn, "rooms")
	got, _ := frame["rooms"].([]any)
	if len(got) != len(want) {
		t.Fatalf("Expected rooms %v, got %v", want, got)
	}
	for _, entry := range got {
		info, _ := entry.(map[string]any)
		id, _ := info["id"].(string)
		count, _ := info["count"].(float64)
		if expected, ok := want[id]; !ok || int(count) != expected {
			t.Errorf("Expected rooms %v, got %v", want, got)
			return
		}
	}
}

func expectError(t *testing.T, conn *websocket.Conn, code string) {
	t.Helper()
	frame := expectType(t, conn, "error")
	if frame["code"] != code {
		t.Errorf("Expected error code %q, got %v", code, frame["code"])
	}
}

// expectClose expects the next read to fail with a close frame carrying code.
func expectClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected close %d, got frame %q", code, data)
	}
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("Expected close %d, got %v", code, err)
	}
	if closeErr.Code != code {
		t.Errorf("Expected close code %d, got %d (%q)", code, closeErr.Code, closeErr.Text)
	}
}
