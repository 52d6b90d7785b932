// Package protocol implements the lobby and room WebSocket protocols on top
// of the room registry.
//
// Each connection is served by one goroutine running either ServeLobby or
// ServeRoom. Handlers parse client frames into a closed set of variants,
// call into the registry, and write protocol frames back. Transport
// failures are logged and swallowed; protocol violations end the
// connection after a single error frame.
package protocol

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomchat/internal/registry"
)

// Close codes used when a connection is terminated for a protocol violation.
const (
	ClosePolicyViolation = websocket.ClosePolicyViolation
	CloseTooLarge        = websocket.CloseMessageTooBig
)

// ErrPeerGone is wrapped by Peer.Read errors once the connection is over.
var ErrPeerGone = errors.New("protocol: peer gone")

// Peer is one client connection as seen by a protocol handler.
// Read blocks until the next text frame arrives or the peer goes away.
type Peer interface {
	registry.Conn
	Read(ctx context.Context) ([]byte, error)
}

// Throttle limits how often a single connection may relay chat messages.
type Throttle interface {
	Allow() bool
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler logger.
func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// WithClock overrides the time source used to stamp relayed messages.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// WithThrottle installs a per-connection throttle factory for chat messages.
func WithThrottle(newThrottle func() Throttle) Option {
	return func(h *Handler) {
		h.newThrottle = newThrottle
	}
}

// WithRejectHook registers a callback invoked with the code of every error
// frame sent.
func WithRejectHook(fn func(code string)) Option {
	return func(h *Handler) {
		if fn != nil {
			h.onReject = fn
		}
	}
}

// Handler serves the lobby and room protocols against one shared Registry.
type Handler struct {
	reg         *registry.Registry
	validator   *Validator
	log         *slog.Logger
	now         func() time.Time
	newThrottle func() Throttle
	onReject    func(code string)
}

// NewHandler returns a Handler bound to reg and validator.
func NewHandler(reg *registry.Registry, validator *Validator, opts ...Option) *Handler {
	h := &Handler{
		reg:       reg,
		validator: validator,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       time.Now,
		onReject:  func(string) {},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// send writes one frame to a single peer, ignoring the result.
func (h *Handler) send(peer Peer, frame []byte) {
	if err := peer.Send(frame); err != nil {
		h.log.Debug("send failed", "conn", peer.ID(), "err", err)
	}
}

// sendError reports a rejected request to the requester only.
func (h *Handler) sendError(peer Peer, code, room string) {
	h.onReject(code)
	h.send(peer, ErrorFrame(code, room))
}

// terminate sends one error frame and closes the connection with closeCode.
func (h *Handler) terminate(peer Peer, code string, closeCode int) {
	h.sendError(peer, code, "")
	if err := peer.Close(closeCode, code); err != nil {
		h.log.Debug("close failed", "conn", peer.ID(), "err", err)
	}
}

// readFailed logs the error that ended a handler's read loop.
func readFailed(log *slog.Logger, err error) {
	if errors.Is(err, ErrPeerGone) || errors.Is(err, context.Canceled) {
		log.Debug("connection closed", "err", err)
		return
	}
	log.Warn("read failed", "err", err)
}

func (h *Handler) broadcastRoomList() {
	h.reg.BroadcastRoomList(RoomsFrame)
}
