// Package ws is the websocket Transport for chatclient. Frames are JSON
// model.Frame values, one per text message.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mahaj/chat-session/pkg/chatclient"
	"github.com/mahaj/chat-session/pkg/model"
)

const (
	// Time allowed to write a frame to the server.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong or frame from the server.
	pongWait = 60 * time.Second

	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Time allowed for the CONNECTED frame when ctx carries no deadline.
	handshakeWait = 10 * time.Second

	maxFrameSize = 64 << 10
)

type Transport struct {
	dialer *websocket.Dialer
	log    zerolog.Logger
}

func New(logger zerolog.Logger) *Transport {
	return &Transport{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeWait,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		log: logger.With().Str("component", "ws").Logger(),
	}
}

// Dial upgrades to a websocket and waits for the server's CONNECTED frame.
func (t *Transport) Dial(ctx context.Context, url string, header http.Header, h chatclient.FrameHandler) (chatclient.Conn, error) {
	ws, resp, err := t.dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	if err := handshake(ctx, ws); err != nil {
		ws.Close()
		return nil, err
	}

	c := &Conn{
		ws:      ws,
		handler: h,
		log:     t.log,
		done:    make(chan struct{}),
	}
	ws.SetReadLimit(maxFrameSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error { ws.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	go c.readPump()
	go c.pingPump()
	return c, nil
}

func handshake(ctx context.Context, ws *websocket.Conn) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(handshakeWait)
	}
	ws.SetReadDeadline(deadline)

	var f model.Frame
	if err := ws.ReadJSON(&f); err != nil {
		return fmt.Errorf("%w: %v", chatclient.ErrHandshake, err)
	}

	switch f.Command {
	case model.CommandConnected:
		return nil
	case model.CommandError:
		var reason string
		_ = json.Unmarshal(f.Body, &reason)
		return fmt.Errorf("%w: server error: %s", chatclient.ErrHandshake, reason)
	default:
		return fmt.Errorf("%w: unexpected %s frame", chatclient.ErrHandshake, f.Command)
	}
}

// Conn is a live websocket channel.
type Conn struct {
	ws      *websocket.Conn
	handler chatclient.FrameHandler
	log     zerolog.Logger

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func (c *Conn) Subscribe(destination string) error {
	return c.write(model.Frame{Command: model.CommandSubscribe, Destination: destination})
}

func (c *Conn) Unsubscribe(destination string) error {
	return c.write(model.Frame{Command: model.CommandUnsubscribe, Destination: destination})
}

func (c *Conn) Send(destination string, body []byte) error {
	return c.write(model.Frame{Command: model.CommandSend, Destination: destination, Body: body})
}

// Close sends a close message and tears the socket down. The read pump then
// reports the close to the handler.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) write(f model.Frame) error {
	select {
	case <-c.done:
		return net.ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(f)
}

// readPump delivers MESSAGE frames to the handler until the socket fails.
func (c *Conn) readPump() {
	var cause error
	defer func() {
		c.Close()
		c.handler.HandleClose(cause)
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("read failed")
			}
			cause = err
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))

		var f model.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Error().Err(err).Msg("dropping undecodable frame")
			continue
		}

		switch f.Command {
		case model.CommandMessage:
			c.handler.HandleFrame(f.Destination, f.Body)
		case model.CommandError:
			c.log.Warn().Str("destination", f.Destination).Str("body", string(f.Body)).Msg("server reported error")
		default:
			c.log.Debug().Str("command", string(f.Command)).Msg("ignoring frame")
		}
	}
}

func (c *Conn) pingPump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					c.log.Debug().Err(err).Msg("ping failed")
				}
				return
			}
		}
	}
}
