package protocol

import (
	"context"
	"strings"

	"github.com/Tyrowin/roomchat/internal/registry"
)

// ServeLobby runs the lobby protocol for peer until it disconnects or
// sends an oversized frame. The peer receives the room list on entry and
// after every change; it may create rooms with {"type":"create","room":...}.
func (h *Handler) ServeLobby(ctx context.Context, peer Peer) {
	log := h.log.With("conn", peer.ID(), "endpoint", "lobby")

	h.reg.SubscribeLobby(peer)
	defer h.reg.UnsubscribeLobby(peer)
	h.reg.SendRoomList(peer, RoomsFrame)

	for {
		raw, err := peer.Read(ctx)
		if err != nil {
			readFailed(log, err)
			return
		}
		if h.validator.TooLarge(raw) {
			log.Info("lobby frame too large", "bytes", len(raw), "limit", h.validator.MaxBytes())
			h.terminate(peer, CodeMsgTooLarge, CloseTooLarge)
			return
		}

		switch f := ParseLobbyFrame(raw).(type) {
		case Create:
			h.createRoom(peer, f.Room)
		default:
		}
	}
}

func (h *Handler) createRoom(peer Peer, room string) {
	room = strings.TrimSpace(room)
	if !h.validator.ValidName(room) {
		h.sendError(peer, CodeBadRoom, "")
		return
	}

	if err := h.reg.CreateRoomIfAbsent(room); err != nil {
		code := registry.Code(err)
		if code == "" {
			code = CodeBadRoom
		}
		h.sendError(peer, code, room)
		return
	}

	h.log.Info("room created", "room", room, "conn", peer.ID())
	h.send(peer, CreatedFrame(room))
	h.broadcastRoomList()
}
