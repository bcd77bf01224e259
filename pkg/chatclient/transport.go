package chatclient

import (
	"context"
	"net/http"
)

// FrameHandler receives inbound traffic from a Conn. HandleFrame calls for
// one connection are made from a single goroutine in arrival order.
// HandleClose is called once when the connection ends for any reason,
// including a local Close.
type FrameHandler interface {
	HandleFrame(destination string, body []byte)
	HandleClose(err error)
}

// Transport opens connections to the message-routing backend. Dial returns
// once the handshake has completed or failed.
type Transport interface {
	Dial(ctx context.Context, url string, header http.Header, h FrameHandler) (Conn, error)
}

// Conn is one live channel. Only the Session holds a Conn.
type Conn interface {
	Subscribe(destination string) error
	Unsubscribe(destination string) error
	Send(destination string, body []byte) error
	Close() error
}
