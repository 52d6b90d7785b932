package registry

import (
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Error is a rejected registry request carrying the wire error code.
type Error struct {
	code string
}

func (e *Error) Error() string {
	return "registry: " + strings.ReplaceAll(e.code, "_", " ")
}

// Code returns the wire error code, e.g. "room_exists".
func (e *Error) Code() string {
	return e.code
}

var (
	// ErrBadRoom rejects a room id that fails name validation.
	ErrBadRoom = &Error{code: "bad_room"}
	// ErrRoomExists rejects an explicit create for an id already in use.
	ErrRoomExists = &Error{code: "room_exists"}
	// ErrTooManyRooms rejects an explicit create once the room cap is reached.
	ErrTooManyRooms = &Error{code: "too_many_rooms"}

	// ErrAlreadyJoined reports a join from a connection that already occupies a room.
	ErrAlreadyJoined = errors.New("registry: connection already occupies a room")
)

// Code extracts the wire error code from err, or "" when err is not a
// registry rejection.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.code
	}
	return ""
}

// RoomInfo is one entry of the lobby room list.
type RoomInfo struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

// Stats is a point-in-time count of registry state.
type Stats struct {
	Rooms            int
	Occupants        int
	LobbySubscribers int
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for swallowed delivery failures.
func WithLogger(log *slog.Logger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// WithMaxRooms caps the number of rooms an explicit create may bring into
// existence. Zero or less disables the cap.
func WithMaxRooms(n int) Option {
	return func(r *Registry) {
		r.maxRooms = n
	}
}

// WithNameValidator sets the predicate applied to ids by CreateRoomIfAbsent.
func WithNameValidator(valid func(string) bool) Option {
	return func(r *Registry) {
		if valid != nil {
			r.validName = valid
		}
	}
}

// Registry owns the lobby subscriptions and every live room.
//
// Each operation runs under a single mutex, so no caller ever observes a
// half-applied mutation. Broadcasts copy their recipient list before
// iterating and enqueue while the lock is held; since Conn.Send does not
// block, every recipient sees frames in the order the mutations completed.
type Registry struct {
	mu        sync.Mutex
	lobby     map[Conn]struct{}
	rooms     map[string]*Room
	occupied  map[Conn]string
	maxRooms  int
	validName func(string) bool
	log       *slog.Logger
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		lobby:    make(map[Conn]struct{}),
		rooms:    make(map[string]*Room),
		occupied: make(map[Conn]string),
		validName: func(s string) bool {
			return strings.TrimSpace(s) != ""
		},
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SubscribeLobby adds conn to the set receiving room-list updates.
func (r *Registry) SubscribeLobby(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lobby[conn] = struct{}{}
}

// UnsubscribeLobby removes conn from the lobby. Unknown connections are ignored.
func (r *Registry) UnsubscribeLobby(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.lobby, conn)
}

// CreateRoomIfAbsent inserts an empty room for id. It returns ErrBadRoom,
// ErrRoomExists or ErrTooManyRooms without mutating anything when the
// request cannot be honored.
func (r *Registry) CreateRoomIfAbsent(id string) error {
	if !r.validName(id) {
		return ErrBadRoom
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[id]; ok {
		return ErrRoomExists
	}
	if r.maxRooms > 0 && len(r.rooms) >= r.maxRooms {
		return ErrTooManyRooms
	}
	r.rooms[id] = newRoom(id)
	return nil
}

// EnsureRoom returns the room for id, creating it when absent. The id is
// not validated here; callers validate before reaching for a room.
func (r *Registry) EnsureRoom(id string) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensureLocked(id)
}

func (r *Registry) ensureLocked(id string) (*Room, bool) {
	if room, ok := r.rooms[id]; ok {
		return room, false
	}
	room := newRoom(id)
	r.rooms[id] = room
	return room, true
}

// JoinRoom appends conn to the occupants of room id under name. The room is
// recreated if it was torn down since the caller ensured it.
func (r *Registry) JoinRoom(id string, conn Conn, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.occupied[conn]; ok {
		return ErrAlreadyJoined
	}
	room, _ := r.ensureLocked(id)
	room.add(conn, name)
	r.occupied[conn] = id
	return nil
}

// RenameOccupant replaces the display name of conn in room id, keeping its
// position. It returns the previous name, or false when conn is not there.
func (r *Registry) RenameOccupant(id string, conn Conn, name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[id]
	if !ok {
		return "", false
	}
	return room.rename(conn, name)
}

// LeaveRoom removes conn from room id and deletes the room once it is empty.
// ok is false when conn was not an occupant, which makes repeated cleanup a no-op.
func (r *Registry) LeaveRoom(id string, conn Conn) (name string, empty bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, found := r.rooms[id]
	if !found {
		return "", false, false
	}
	name, ok = room.remove(conn)
	if !ok {
		return "", false, false
	}
	delete(r.occupied, conn)

	if room.size() == 0 {
		delete(r.rooms, id)
		empty = true
	}
	return name, empty, true
}

// DiscardIfEmpty deletes room id when it has no occupants and reports
// whether it did. A room with occupants, or no room at all, is left alone.
func (r *Registry) DiscardIfEmpty(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[id]
	if !ok || room.size() > 0 {
		return false
	}
	delete(r.rooms, id)
	return true
}

// IsOccupant reports whether conn currently occupies room id.
func (r *Registry) IsOccupant(id string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	return ok && room.has(conn)
}

// SnapshotRoomList returns every room with its occupant count, ordered by id.
func (r *Registry) SnapshotRoomList() []RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roomListLocked()
}

func (r *Registry) roomListLocked() []RoomInfo {
	out := make([]RoomInfo, 0, len(r.rooms))
	for id, room := range r.rooms {
		out = append(out, RoomInfo{ID: id, Count: room.size()})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

// SnapshotUsers returns the display names in room id in join order.
func (r *Registry) SnapshotUsers(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[id]
	if !ok {
		return []string{}
	}
	return room.names()
}

// BroadcastToRoom sends frame to every occupant of room id except exclude.
func (r *Registry) BroadcastToRoom(id string, frame []byte, exclude Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[id]
	if !ok {
		return
	}
	for _, conn := range room.conns(exclude) {
		deliver(r.log, conn, frame)
	}
}

// BroadcastUsers sends the roster built by encode to every occupant of
// room id. The roster snapshot and the fan-out happen under one lock, so a
// later roster never reaches a recipient before an earlier one.
func (r *Registry) BroadcastUsers(id string, encode func(users []string) []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[id]
	if !ok {
		return
	}
	frame := encode(room.names())
	for _, conn := range room.conns(nil) {
		deliver(r.log, conn, frame)
	}
}

// BroadcastToLobby sends frame to every lobby subscriber.
func (r *Registry) BroadcastToLobby(frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, conn := range r.lobbyLocked() {
		deliver(r.log, conn, frame)
	}
}

// BroadcastRoomList sends the room list built by encode to every lobby
// subscriber, snapshotting the list under the same lock as the fan-out.
func (r *Registry) BroadcastRoomList(encode func(rooms []RoomInfo) []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frame := encode(r.roomListLocked())
	for _, conn := range r.lobbyLocked() {
		deliver(r.log, conn, frame)
	}
}

// SendRoomList sends the current room list to conn alone. Called right
// after SubscribeLobby, it can never deliver a list older than one
// already broadcast to conn.
func (r *Registry) SendRoomList(conn Conn, encode func(rooms []RoomInfo) []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	deliver(r.log, conn, encode(r.roomListLocked()))
}

func (r *Registry) lobbyLocked() []Conn {
	out := make([]Conn, 0, len(r.lobby))
	for conn := range r.lobby {
		out = append(out, conn)
	}
	return out
}

// Stats reports current room, occupant and lobby subscriber counts.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Rooms:            len(r.rooms),
		Occupants:        len(r.occupied),
		LobbySubscribers: len(r.lobby),
	}
}

// CloseAll closes every lobby subscriber and room occupant with code.
// Membership is left to each handler's own cleanup.
func (r *Registry) CloseAll(code int, reason string) int {
	r.mu.Lock()
	conns := r.lobbyLocked()
	for conn := range r.occupied {
		conns = append(conns, conn)
	}
	r.mu.Unlock()

	for _, conn := range conns {
		if err := conn.Close(code, reason); err != nil {
			r.log.Debug("close failed", "conn", conn.ID(), "err", err)
		}
	}
	return len(conns)
}
