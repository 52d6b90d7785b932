package protocol

import (
	"context"
	"log/slog"
	"strings"
)

// roomSession is the state of one joined room connection.
type roomSession struct {
	h        *Handler
	peer     Peer
	room     string
	name     string
	throttle Throttle
	log      *slog.Logger
}

// ServeRoom runs the room protocol for peer in room id. The first frame is
// the join request; after it every frame is a rename or a message relayed
// to the room. On return the peer no longer occupies the room and the
// remaining occupants have been told.
func (h *Handler) ServeRoom(ctx context.Context, peer Peer, id string) {
	log := h.log.With("conn", peer.ID(), "room", id)

	if !h.validator.ValidRoomID(id) {
		log.Info("rejected room id")
		h.terminate(peer, CodeBadRoom, ClosePolicyViolation)
		return
	}
	_, created := h.reg.EnsureRoom(id)

	name, ok := h.awaitJoin(ctx, peer, log)
	if !ok {
		if created {
			h.discardRoom(id, log)
		}
		return
	}

	if err := h.reg.JoinRoom(id, peer, name); err != nil {
		log.Error("join failed", "err", err)
		if created {
			h.discardRoom(id, log)
		}
		return
	}

	s := &roomSession{h: h, peer: peer, room: id, name: name, log: log}
	if h.newThrottle != nil {
		s.throttle = h.newThrottle()
	}
	defer s.leave()

	log.Info("user joined", "username", name)
	h.reg.BroadcastToRoom(id, StatusFrame(name+" joined"), peer)
	h.reg.BroadcastUsers(id, UsersFrame)
	h.broadcastRoomList()

	s.loop(ctx)
}

// awaitJoin reads the join frame and returns the requested display name.
// It reports false when the peer went away or was terminated.
func (h *Handler) awaitJoin(ctx context.Context, peer Peer, log *slog.Logger) (string, bool) {
	raw, err := peer.Read(ctx)
	if err != nil {
		readFailed(log.With("joined", false), err)
		return "", false
	}
	if h.validator.TooLarge(raw) {
		log.Info("join frame too large", "bytes", len(raw), "limit", h.validator.MaxBytes())
		h.terminate(peer, CodeMsgTooLarge, CloseTooLarge)
		return "", false
	}

	name := strings.TrimSpace(ParseJoin(raw))
	if !h.validator.ValidName(name) {
		log.Info("rejected username")
		h.terminate(peer, CodeBadUsername, ClosePolicyViolation)
		return "", false
	}
	return name, true
}

// discardRoom drops a room this connection brought into existence but
// never joined. Someone else may have joined it meanwhile, in which case
// it stays.
func (h *Handler) discardRoom(id string, log *slog.Logger) {
	if h.reg.DiscardIfEmpty(id) {
		log.Debug("discarded unjoined room")
		h.broadcastRoomList()
	}
}

func (s *roomSession) loop(ctx context.Context) {
	for {
		raw, err := s.peer.Read(ctx)
		if err != nil {
			readFailed(s.log, err)
			return
		}
		if s.h.validator.TooLarge(raw) {
			s.log.Info("room frame too large", "bytes", len(raw), "limit", s.h.validator.MaxBytes())
			s.h.terminate(s.peer, CodeMsgTooLarge, CloseTooLarge)
			return
		}

		switch f := ParseRoomFrame(raw).(type) {
		case Rename:
			s.rename(f)
		case Text:
			s.relay(f)
		}
	}
}

func (s *roomSession) rename(f Rename) {
	newName := s.name
	if f.Present {
		newName = f.Username
	}
	newName = strings.TrimSpace(newName)
	if !s.h.validator.ValidName(newName) {
		s.h.sendError(s.peer, CodeBadUsername, "")
		return
	}

	old, ok := s.h.reg.RenameOccupant(s.room, s.peer, newName)
	if !ok {
		s.log.Warn("rename from a connection that is no longer an occupant")
		return
	}
	s.name = newName

	s.log.Info("user renamed", "from", old, "to", newName)
	s.h.reg.BroadcastToRoom(s.room, StatusFrame(old+" renamed to "+newName), nil)
	s.h.reg.BroadcastUsers(s.room, UsersFrame)
}

func (s *roomSession) relay(f Text) {
	if s.throttle != nil && !s.throttle.Allow() {
		s.log.Debug("rate limit exceeded; discarding message")
		return
	}
	s.h.reg.BroadcastToRoom(s.room, StampedFrame(f, s.name, s.h.now()), nil)
}

// leave removes the peer from the room and notifies whoever remains.
// It is a no-op when the peer is no longer an occupant.
func (s *roomSession) leave() {
	name, empty, ok := s.h.reg.LeaveRoom(s.room, s.peer)
	if !ok {
		return
	}

	s.log.Info("user left", "username", name, "room_empty", empty)
	if !empty {
		s.h.reg.BroadcastToRoom(s.room, StatusFrame(name+" left"), nil)
		s.h.reg.BroadcastUsers(s.room, UsersFrame)
	}
	s.h.broadcastRoomList()
}
