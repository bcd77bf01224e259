package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/chat-session/pkg/clock"
)

var errDialRefused = errors.New("dial refused")

type fakeTransport struct {
	mu      sync.Mutex
	failN   int
	dials   int
	headers []http.Header
	ctxs    []context.Context
	conns   []*fakeConn
}

func (t *fakeTransport) Dial(ctx context.Context, _ string, header http.Header, h FrameHandler) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.dials++
	t.ctxs = append(t.ctxs, ctx)
	t.headers = append(t.headers, header.Clone())
	if t.failN > 0 {
		t.failN--
		return nil, errDialRefused
	}
	c := &fakeConn{handler: h, subscribed: make(map[string]bool)}
	t.conns = append(t.conns, c)
	return c, nil
}

func (t *fakeTransport) failNext(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failN = n
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

func (t *fakeTransport) last() *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}

type sentFrame struct {
	destination string
	body        []byte
}

type fakeConn struct {
	handler FrameHandler

	mu             sync.Mutex
	subscribed     map[string]bool
	subscribeCalls int
	sent           []sentFrame
	closed         bool

	// onSend runs after every successful Send, still inside the session lock.
	onSend func(destination string, body []byte)
}

func (c *fakeConn) Subscribe(destination string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribeCalls++
	c.subscribed[destination] = true
	return nil
}

func (c *fakeConn) Unsubscribe(destination string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscribed, destination)
	return nil
}

func (c *fakeConn) Send(destination string, body []byte) error {
	c.mu.Lock()
	c.sent = append(c.sent, sentFrame{destination: destination, body: body})
	hook := c.onSend
	c.mu.Unlock()

	if hook != nil {
		hook(destination, body)
	}
	return nil
}

func (c *fakeConn) setOnSend(fn func(destination string, body []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSend = fn
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isSubscribed(destination string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed[destination]
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) sentTo(destination string) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out [][]byte
	for _, f := range c.sent {
		if f.destination == destination {
			out = append(out, f.body)
		}
	}
	return out
}

// deliver pushes an inbound frame as the transport's read loop would.
func (c *fakeConn) deliver(t *testing.T, destination string, payload any) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	c.handler.HandleFrame(destination, body)
}

func (c *fakeConn) deliverRaw(destination string, body []byte) {
	c.handler.HandleFrame(destination, body)
}

// drop simulates the server going away.
func (c *fakeConn) drop(err error) {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.handler.HandleClose(err)
}

func newTestClock() *clock.Manual {
	return clock.NewManual(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
}

func newTestSession(t *testing.T, backoff Backoff) (*Session, *fakeTransport, *clock.Manual) {
	t.Helper()
	tr := &fakeTransport{}
	clk := newTestClock()
	s := NewSession(tr, SessionConfig{
		URL:     "ws://chat.test/ws",
		Backoff: backoff,
		Clock:   clk,
		Logger:  zerolog.Nop(),
	})
	return s, tr, clk
}
