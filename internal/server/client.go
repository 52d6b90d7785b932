// Package server manages individual WebSocket clients, handling the write
// pump, keepalive pings, and lifecycle control for each connection.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomchat/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	sendBufferSize = 256
)

// Client is one WebSocket connection. Frames passed to Send are queued and
// written by the client's write pump; Read is called by a single protocol
// handler goroutine.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	addr string
	log  *slog.Logger

	mu          sync.Mutex
	closed      bool
	closeCode   int
	closeReason string

	done chan struct{}
}

// NewClient wraps conn. The read limit is a hard transport cap well above
// the protocol ceiling; frames between the two are rejected by the protocol
// handler with an error frame.
func NewClient(conn *websocket.Conn, addr string, maxMessageBytes int, log *slog.Logger) *Client {
	if conn != nil {
		conn.SetReadLimit(transportReadLimit(maxMessageBytes))
	}
	id := uuid.NewString()
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		id:   id,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		addr: addr,
		log:  log.With("conn", id, "addr", addr),
		done: make(chan struct{}),
	}
}

func transportReadLimit(maxMessageBytes int) int64 {
	return int64(maxMessageBytes)*4 + 4096
}

// ID returns the connection's unique identifier.
func (c *Client) ID() string {
	return c.id
}

// Send queues frame for delivery without blocking.
func (c *Client) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}

	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close queues a close frame with code and reason behind any pending
// frames. The write pump sends it and then closes the connection.
func (c *Client) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	close(c.send)
	return nil
}

// Read returns the next text or binary frame. Every error it returns wraps
// protocol.ErrPeerGone.
func (c *Client) Read(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", protocol.ErrPeerGone, err)
		}
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return nil, fmt.Errorf("%w: %w", protocol.ErrPeerGone, err)
		}
		if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// Run starts the write pump and stops the connection when ctx ends. It
// returns a function that waits for the write pump to finish.
func (c *Client) Run(ctx context.Context) (wait func()) {
	c.setupReadConnection()
	go c.writePump()

	stop := context.AfterFunc(ctx, func() {
		_ = c.Close(websocket.CloseGoingAway, "server shutdown")
	})

	return func() {
		stop()
		<-c.done
	}
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn("error setting initial read deadline", "err", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Warn("error setting read deadline in pong handler", "err", err)
		}
		return nil
	})
}

// logReadError logs a read failure at a level matching how expected it is.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Info("frame exceeded transport read limit")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		c.log.Debug("client disconnected", "err", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Debug("client connection closed", "err", err)
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.log.Warn("unexpected websocket close", "err", err)
	default:
		c.log.Debug("websocket read error", "err", err)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.markClosed()
		c.closeConnection()
		close(c.done)
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// markClosed stops further Sends after the pump exits on a write failure.
func (c *Client) markClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("error closing connection", "err", err)
		}
	}
}

// handleMessage processes outgoing messages and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Debug("error setting write deadline", "err", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeTextMessage(message)
}

// writeCloseMessage sends the queued close frame to the client
func (c *Client) writeCloseMessage() bool {
	c.mu.Lock()
	code, reason := c.closeCode, c.closeReason
	c.mu.Unlock()
	if code == 0 {
		code = websocket.CloseNormalClosure
	}

	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Debug("error writing close message", "err", err)
		}
	}
	return false
}

// writeTextMessage writes one protocol frame as one WebSocket text message
func (c *Client) writeTextMessage(message []byte) bool {
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.log.Debug("error writing message", "err", err)
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Debug("error setting write deadline for ping", "err", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Debug("error writing ping message", "err", err)
		return false
	}
	return true
}
