// Package server implements the HTTP and WebSocket transport for the room
// chat relay.
//
// The implementation is organized into specialized files for configuration,
// clients, routing, metrics, and HTTP handlers. Room membership and the lobby
// and room protocols live in the registry and protocol packages; this package
// accepts connections and hands each one to a protocol handler.
package server
