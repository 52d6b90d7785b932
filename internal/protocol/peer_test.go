package protocol_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Tyrowin/roomchat/internal/protocol"
	"github.com/Tyrowin/roomchat/internal/registry"
)

var (
	errPeerClosed = fmt.Errorf("%w: closed by test", protocol.ErrPeerGone)
	errQueueFull  = errors.New("send queue full")
)

const frameTimeout = time.Second

// fakePeer is a scripted protocol.Peer. Frames pushed to in are returned by
// Read; closing in simulates the client going away.
type fakePeer struct {
	id  string
	in  chan []byte
	out chan []byte

	closeOnce sync.Once
	closed    chan struct{}
	dead      atomic.Bool

	mu        sync.Mutex
	closeCode int
}

func newFakePeer(id string) *fakePeer {
	return &fakePeer{
		id:     id,
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(frame []byte) error {
	if p.dead.Load() {
		return errPeerClosed
	}
	select {
	case <-p.closed:
		return errPeerClosed
	default:
	}
	select {
	case p.out <- frame:
		return nil
	default:
		return errQueueFull
	}
}

func (p *fakePeer) Close(code int, _ string) error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closeCode = code
		p.mu.Unlock()
		close(p.closed)
	})
	return nil
}

func (p *fakePeer) Read(ctx context.Context) ([]byte, error) {
	select {
	case b, ok := <-p.in:
		if !ok {
			return nil, fmt.Errorf("%w: %w", protocol.ErrPeerGone, io.EOF)
		}
		return b, nil
	case <-p.closed:
		return nil, errPeerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *fakePeer) push(frame string) {
	p.in <- []byte(frame)
}

func (p *fakePeer) hangUp() {
	close(p.in)
}

func (p *fakePeer) code() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeCode
}

// serve runs fn in a goroutine and returns a channel closed when it returns.
func serve(fn func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	return done
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(frameTimeout):
		t.Fatal("Handler did not return in time")
	}
}

func nextFrame(t *testing.T, p *fakePeer) map[string]any {
	t.Helper()
	select {
	case raw := <-p.out:
		var msg map[string]any
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("Peer %s received invalid JSON %q: %v", p.id, raw, err)
		}
		return msg
	case <-time.After(frameTimeout):
		t.Fatalf("Peer %s received no frame", p.id)
		return nil
	}
}

func expectNoFrame(t *testing.T, p *fakePeer) {
	t.Helper()
	select {
	case raw := <-p.out:
		t.Fatalf("Peer %s expected no frame, got %s", p.id, raw)
	case <-time.After(50 * time.Millisecond):
	}
}

func expectType(t *testing.T, p *fakePeer, typ string) map[string]any {
	t.Helper()
	msg := nextFrame(t, p)
	if msg["type"] != typ {
		t.Fatalf("Peer %s expected a %q frame, got %v", p.id, typ, msg)
	}
	return msg
}

func expectStatus(t *testing.T, p *fakePeer, text string) {
	t.Helper()
	msg := expectType(t, p, "status")
	if msg["text"] != text {
		t.Errorf("Peer %s expected status %q, got %q", p.id, text, msg["text"])
	}
}

func expectUsers(t *testing.T, p *fakePeer, users ...string) {
	t.Helper()
	msg := expectType(t, p, "users")
	got := make([]string, 0)
	for _, u := range msg["users"].([]any) {
		got = append(got, u.(string))
	}
	if users == nil {
		users = []string{}
	}
	if !reflect.DeepEqual(got, users) {
		t.Errorf("Peer %s expected users %v, got %v", p.id, users, got)
	}
}

func expectRooms(t *testing.T, p *fakePeer, rooms ...registry.RoomInfo) {
	t.Helper()
	msg := expectType(t, p, "rooms")
	got := make([]registry.RoomInfo, 0)
	for _, r := range msg["rooms"].([]any) {
		entry := r.(map[string]any)
		got = append(got, registry.RoomInfo{ID: entry["id"].(string), Count: int(entry["count"].(float64))})
	}
	if rooms == nil {
		rooms = []registry.RoomInfo{}
	}
	if !reflect.DeepEqual(got, rooms) {
		t.Errorf("Peer %s expected rooms %v, got %v", p.id, rooms, got)
	}
}

func expectError(t *testing.T, p *fakePeer, code string) map[string]any {
	t.Helper()
	msg := expectType(t, p, "error")
	if msg["code"] != code {
		t.Errorf("Peer %s expected error %q, got %v", p.id, code, msg["code"])
	}
	return msg
}

func newTestHandler(t *testing.T, maxBytes int, opts ...protocol.Option) (*protocol.Handler, *registry.Registry) {
	t.Helper()
	v, err := protocol.NewValidator(protocol.DefaultNamePattern, maxBytes)
	if err != nil {
		t.Fatalf("NewValidator failed: %v", err)
	}
	reg := registry.New(registry.WithNameValidator(v.ValidName))
	return protocol.NewHandler(reg, v, opts...), reg
}
