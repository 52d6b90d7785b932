// Package server exposes HTTP handlers, including WebSocket upgrades for the
// lobby and rooms, health checks, client configuration, and static files.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomchat/internal/protocol"
)

const (
	endpointLobby = "lobby"
	endpointRoom  = "room"
)

// LobbyHandler upgrades the request and serves the lobby protocol on it.
func (s *Server) LobbyHandler(w http.ResponseWriter, r *http.Request) {
	if !s.track() {
		http.Error(w, "Server is shutting down.", http.StatusServiceUnavailable)
		return
	}
	defer s.wg.Done()

	client, ok := s.upgrade(w, r)
	if !ok {
		return
	}
	s.serve(client, endpointLobby, func() {
		s.protocol.ServeLobby(s.ctx, client)
	})
}

// RoomHandler upgrades the request and serves the room protocol for the
// room id taken from the request path.
func (s *Server) RoomHandler(w http.ResponseWriter, r *http.Request) {
	if !s.track() {
		http.Error(w, "Server is shutting down.", http.StatusServiceUnavailable)
		return
	}
	defer s.wg.Done()

	roomID := r.PathValue("id")
	client, ok := s.upgrade(w, r)
	if !ok {
		return
	}
	s.serve(client, endpointRoom, func() {
		s.protocol.ServeRoom(s.ctx, client, roomID)
	})
}

func (s *Server) upgrade(w http.ResponseWriter, r *http.Request) (*Client, bool) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return nil, false
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "path", r.URL.Path, "err", err)
		return nil, false
	}

	return NewClient(conn, r.RemoteAddr, s.cfg.MaxMessageBytes, s.log), true
}

// serve runs one protocol handler to completion on the calling goroutine,
// then closes the client and waits for its write pump. The caller holds a
// tracked slot in s.wg.
func (s *Server) serve(client *Client, endpoint string, handle func()) {
	s.metrics.connectionOpened(endpoint)
	defer s.metrics.connectionClosed(endpoint)

	wait := client.Run(s.ctx)
	s.log.Debug("connection opened", "conn", client.ID(), "endpoint", endpoint)

	handle()

	_ = client.Close(websocket.CloseNormalClosure, "")
	wait()
	s.log.Debug("connection closed", "conn", client.ID(), "endpoint", endpoint)
}

// clientConfig is the payload of GET /config.
type clientConfig struct {
	MaxMessageBytes   int      `json:"maxMessageBytes"`
	MaxMessages       int      `json:"maxMessages"`
	StorageMaxBytes   int      `json:"storageMaxBytes"`
	StorageMaxAgeDays int      `json:"storageMaxAgeDays"`
	NamePattern       string   `json:"namePattern"`
	ErrorCodes        []string `json:"errorCodes"`
}

// ConfigHandler publishes the limits and name rules a client needs to
// validate input before sending it.
func (s *Server) ConfigHandler(w http.ResponseWriter, _ *http.Request) {
	codes := append([]string(nil), protocol.ErrorCodes...)
	sort.Strings(codes)

	body := clientConfig{
		MaxMessageBytes:   s.cfg.MaxMessageBytes,
		MaxMessages:       s.cfg.MaxMessages,
		StorageMaxBytes:   s.cfg.StorageMaxBytes,
		StorageMaxAgeDays: s.cfg.StorageMaxAgeDays,
		NamePattern:       s.cfg.NamePattern,
		ErrorCodes:        codes,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn("error writing config response", "err", err)
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Room chat server is running!")
}

// FaviconHandler serves favicon.svg from the static directory, or an empty
// uncacheable response when there is none.
func (s *Server) FaviconHandler(w http.ResponseWriter, r *http.Request) {
	if s.cfg.StaticDir != "" {
		path := filepath.Join(s.cfg.StaticDir, "icon", "favicon.svg")
		if _, err := os.Stat(path); err == nil {
			w.Header().Set("Cache-Control", s.cacheControl())
			w.Header().Set("Content-Type", "image/svg+xml")
			http.ServeFile(w, r, path)
			return
		}
	}

	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	w.WriteHeader(http.StatusNoContent)
}

// StaticHandler serves files from the configured static directory with a
// public cache lifetime.
func (s *Server) StaticHandler() http.Handler {
	files := http.FileServer(http.Dir(s.cfg.StaticDir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", s.cacheControl())
		files.ServeHTTP(w, r)
	})
}

func (s *Server) cacheControl() string {
	return "public, max-age=" + strconv.Itoa(s.cfg.StaticCacheSeconds)
}

// TestPageHandler serves an HTML page for exercising the lobby and room
// endpoints by hand.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	html := `<!DOCTYPE html>
<html>
<head>
    <title>Room Chat Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #rooms, #messages {
            border: 1px solid #ccc;
            height: 200px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { width: 200px; padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
    </style>
</head>
<body>
    <h1>Room Chat Test</h1>

    <h2>Lobby</h2>
    <div>
        <input type="text" id="roomInput" placeholder="Room name">
        <button onclick="createRoom()">Create</button>
    </div>
    <div id="rooms"></div>

    <h2>Room</h2>
    <div>
        <input type="text" id="userInput" placeholder="Username">
        <input type="text" id="joinInput" placeholder="Room to join">
        <button onclick="joinRoom()">Join</button>
    </div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>
    <div id="messages"></div>

    <script>
        const base = (location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host;
        const roomsDiv = document.getElementById('rooms');
        const messagesDiv = document.getElementById('messages');
        let room = null;

        function line(target, text) {
            const el = document.createElement('div');
            el.textContent = text;
            target.appendChild(el);
            target.scrollTop = target.scrollHeight;
        }

        const lobby = new WebSocket(base + '/ws/lobby');
        lobby.onmessage = function(event) {
            const msg = JSON.parse(event.data);
            if (msg.type === 'rooms') {
                roomsDiv.innerHTML = '';
                msg.rooms.forEach(r => line(roomsDiv, r.id + ' (' + r.count + ')'));
            } else {
                line(roomsDiv, event.data);
            }
        };

        function createRoom() {
            lobby.send(JSON.stringify({type: 'create', room: document.getElementById('roomInput').value}));
        }

        function joinRoom() {
            if (room) { room.close(); }
            const id = document.getElementById('joinInput').value;
            room = new WebSocket(base + '/ws/room/' + encodeURIComponent(id));
            room.onopen = function() {
                room.send(JSON.stringify({username: document.getElementById('userInput').value}));
                document.getElementById('messageInput').disabled = false;
                document.getElementById('sendButton').disabled = false;
            };
            room.onmessage = function(event) { line(messagesDiv, event.data); };
            room.onclose = function(event) { line(messagesDiv, 'closed: ' + event.code + ' ' + event.reason); };
        }

        function sendMessage() {
            const input = document.getElementById('messageInput');
            if (room && room.readyState === WebSocket.OPEN && input.value.trim()) {
                room.send(JSON.stringify({type: 'text', text: input.value}));
                input.value = '';
            }
        }
    </script>
</body>
</html>`
	_, _ = fmt.Fprint(w, html)
}
