// Package registry tracks which connections belong to the lobby and to each
// chat room, and fans frames out to the matching subsets of connections.
package registry

import (
	"log/slog"
)

// Conn is the subset of a client connection the registry needs.
// Send queues a frame for delivery and must not block on the network.
type Conn interface {
	ID() string
	Send(frame []byte) error
	Close(code int, reason string) error
}

// deliver sends one frame and swallows the failure. A dead peer must never
// abort a fan-out to the remaining recipients.
func deliver(log *slog.Logger, conn Conn, frame []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn("recovered from panic in deliver", "conn", conn.ID(), "panic", r)
		}
	}()

	if err := conn.Send(frame); err != nil {
		log.Debug("send failed", "conn", conn.ID(), "err", err)
	}
}
