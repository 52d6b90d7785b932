package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/Tyrowin/roomchat/internal/registry"
)

// Error codes sent in error frames.
const (
	CodeBadRoom      = "bad_room"
	CodeBadUsername  = "bad_username"
	CodeMsgTooLarge  = "msg_too_large"
	CodeRoomExists   = "room_exists"
	CodeTooManyRooms = "too_many_rooms"
)

// ErrorCodes lists every code a client may receive, for client-side display.
var ErrorCodes = []string{
	CodeBadRoom,
	CodeBadUsername,
	CodeMsgTooLarge,
	CodeRoomExists,
	CodeTooManyRooms,
}

// DefaultUsername is used when a join frame carries no usable username.
const DefaultUsername = "anonymous"

const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// Frame is a parsed client frame: one of Create, Rename, Text or Unknown.
type Frame interface {
	frame()
}

// Create asks the lobby to create a room.
type Create struct {
	Room string
}

// Rename asks to change the sender's display name. Username is empty and
// Present false when the frame carried no string username.
type Rename struct {
	Username string
	Present  bool
}

// Text is any room frame that is relayed to the room.
type Text struct {
	Fields map[string]any
}

// Unknown is a frame with no recognized shape.
type Unknown struct{}

func (Create) frame()  {}
func (Rename) frame()  {}
func (Text) frame()    {}
func (Unknown) frame() {}

func decodeObject(raw []byte) (map[string]any, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	// Trailing input, even a stray closing bracket, makes the frame non-JSON.
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	return obj, ok
}

// ParseLobbyFrame parses a frame received on the lobby endpoint. Anything
// that is not a create request is Unknown.
func ParseLobbyFrame(raw []byte) Frame {
	obj, ok := decodeObject(raw)
	if !ok {
		return Unknown{}
	}
	if t, _ := obj["type"].(string); t != "create" {
		return Unknown{}
	}

	var room string
	switch v := obj["room"].(type) {
	case string:
		room = v
	case json.Number:
		room = v.String()
	}
	return Create{Room: room}
}

// ParseRoomFrame parses a frame received on a room endpoint after the join.
// Frames that are not JSON objects become plain text messages.
func ParseRoomFrame(raw []byte) Frame {
	obj, ok := decodeObject(raw)
	if !ok {
		return Text{Fields: map[string]any{"type": "text", "text": string(raw)}}
	}
	if t, _ := obj["type"].(string); t == "rename" {
		name, present := obj["username"].(string)
		return Rename{Username: name, Present: present}
	}
	if _, ok := obj["type"]; !ok {
		obj["type"] = "text"
	}
	return Text{Fields: obj}
}

// ParseJoin extracts the requested username from the first room frame.
func ParseJoin(raw []byte) string {
	obj, ok := decodeObject(raw)
	if !ok {
		return DefaultUsername
	}
	name, ok := obj["username"].(string)
	if !ok {
		return DefaultUsername
	}
	return name
}

func encode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// Only relayed client fields can fail to marshal, and those came from JSON.
		return []byte(`{"type":"error","code":"internal"}`)
	}
	return b
}

// ErrorFrame builds an error frame. room is omitted when empty.
func ErrorFrame(code, room string) []byte {
	return encode(struct {
		Type string `json:"type"`
		Code string `json:"code"`
		Room string `json:"room,omitempty"`
	}{Type: "error", Code: code, Room: room})
}

// CreatedFrame acknowledges a room creation.
func CreatedFrame(room string) []byte {
	return encode(struct {
		Type string `json:"type"`
		Room string `json:"room"`
	}{Type: "created", Room: room})
}

// RoomsFrame builds the lobby room list.
func RoomsFrame(rooms []registry.RoomInfo) []byte {
	if rooms == nil {
		rooms = []registry.RoomInfo{}
	}
	return encode(struct {
		Type  string              `json:"type"`
		Rooms []registry.RoomInfo `json:"rooms"`
	}{Type: "rooms", Rooms: rooms})
}

// UsersFrame builds a room roster.
func UsersFrame(users []string) []byte {
	if users == nil {
		users = []string{}
	}
	return encode(struct {
		Type  string   `json:"type"`
		Users []string `json:"users"`
	}{Type: "users", Users: users})
}

// StatusFrame builds a human-readable room notice.
func StatusFrame(text string) []byte {
	return encode(struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{Type: "status", Text: text})
}

// StampedFrame relays a text frame with the sender's name and a UTC timestamp.
func StampedFrame(msg Text, username string, now time.Time) []byte {
	out := make(map[string]any, len(msg.Fields)+2)
	for k, v := range msg.Fields {
		out[k] = v
	}
	out["username"] = username
	out["ts"] = Timestamp(now)
	return encode(out)
}

// Timestamp formats t as UTC ISO-8601 with microseconds and a Z suffix.
func Timestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
