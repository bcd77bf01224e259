package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mahaj/chat-session/pkg/auth"
	"github.com/mahaj/chat-session/pkg/bus"
	"github.com/mahaj/chat-session/pkg/model"
	"github.com/mahaj/chat-session/pkg/snowflake"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer.
	maxMessageSize = 16 << 10

	// Time allowed for a bus publish or presence update.
	backendWait = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

type publisher interface {
	Publish(ctx context.Context, key string, env bus.Envelope) error
}

type presenceStore interface {
	SetOnline(ctx context.Context, user string) (bool, error)
	SetOffline(ctx context.Context, user string) (bool, error)
	JoinRoom(ctx context.Context, room, user string) error
	LeaveRoom(ctx context.Context, room, user string) error
}

// Gateway authenticates websocket upgrades and runs one Client per socket.
type Gateway struct {
	hub       *Hub
	issuer    *auth.Issuer
	publisher publisher
	presence  presenceStore
	ids       *snowflake.Node
	now       func() time.Time
	log       zerolog.Logger
	metrics   *metrics
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	gw   *Gateway
	conn *websocket.Conn

	// Buffered channel of outbound frames. Closed by the hub.
	send chan []byte

	// ERROR replies from the read pump. Never closed.
	errs chan []byte

	userID string
	log    zerolog.Logger
}

// ServeHTTP handles websocket requests from the peer.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tokenString := r.Header.Get("Authorization")
	if tokenString == "" {
		// Query param fallback for browser clients.
		tokenString = r.URL.Query().Get("token")
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn().Err(err).Msg("upgrade failed")
		return
	}

	claims, err := g.issuer.ValidateToken(auth.BearerToken(tokenString))
	if err != nil {
		g.metrics.authFailed.Inc()
		g.log.Info().Err(err).Str("remote", r.RemoteAddr).Msg("rejecting connection")
		reject(conn, "invalid token")
		return
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(model.Frame{Command: model.CommandConnected}); err != nil {
		conn.Close()
		return
	}

	client := &Client{
		gw:     g,
		conn:   conn,
		send:   make(chan []byte, 256),
		errs:   make(chan []byte, 16),
		userID: claims.UserID,
		log:    g.log.With().Str("user", claims.UserID).Logger(),
	}
	if !enqueue(g.hub, g.hub.register, client) {
		reject(conn, "shutting down")
		return
	}
	g.setOnline(client.userID)

	go client.writePump()
	go client.readPump()
}

func reject(conn *websocket.Conn, reason string) {
	body, _ := json.Marshal(reason)
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(model.Frame{Command: model.CommandError, Body: body})
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason))
	conn.Close()
}

// readPump pumps frames from the websocket connection to the hub and bus.
func (c *Client) readPump() {
	rooms := make(map[string]bool)
	defer func() {
		enqueue(c.gw.hub, c.gw.hub.unregister, c)
		c.conn.Close()
		for room := range rooms {
			c.gw.leaveRoom(room, c.userID)
		}
		c.gw.setOffline(c.userID)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("read failed")
			}
			return
		}

		var f model.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.reply("", "malformed frame")
			continue
		}

		if err := c.handle(f, rooms); err != nil {
			c.gw.metrics.frames.WithLabelValues(string(f.Command), "error").Inc()
			c.log.Debug().Err(err).Str("command", string(f.Command)).Str("destination", f.Destination).Msg("frame rejected")
			c.reply(f.Destination, err.Error())
			continue
		}
		c.gw.metrics.frames.WithLabelValues(string(f.Command), "ok").Inc()
	}
}

func (c *Client) handle(f model.Frame, rooms map[string]bool) error {
	switch f.Command {
	case model.CommandSubscribe, model.CommandUnsubscribe:
		topic, err := model.ParseDestination(f.Destination)
		if err != nil {
			return err
		}
		active := f.Command == model.CommandSubscribe
		if !enqueue(c.gw.hub, c.gw.hub.subscribe, subscription{client: c, destination: f.Destination, active: active}) {
			return errors.New("shutting down")
		}
		if topic.Kind == model.KindMessages && rooms[topic.Room] != active {
			rooms[topic.Room] = active
			if active {
				c.gw.joinRoom(topic.Room, c.userID)
			} else {
				delete(rooms, topic.Room)
				c.gw.leaveRoom(topic.Room, c.userID)
			}
		}
		return nil

	case model.CommandSend:
		key, env, err := route(c.userID, f, c.gw.ids, c.gw.now())
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), backendWait)
		defer cancel()
		if err := c.gw.publisher.Publish(ctx, key, env); err != nil {
			c.log.Error().Err(err).Str("destination", env.Destination).Msg("publish failed")
			return errors.New("message not accepted")
		}
		return nil
	}
	return errors.New("unsupported command " + string(f.Command))
}

func (c *Client) reply(destination, reason string) {
	body, _ := json.Marshal(reason)
	data, _ := json.Marshal(model.Frame{Command: model.CommandError, Destination: destination, Body: body})
	select {
	case c.errs <- data:
	default:
	}
}

// writePump pumps frames from the hub to the websocket connection. Each
// frame is its own websocket message.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case message := <-c.errs:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (g *Gateway) setOnline(user string) {
	ctx, cancel := context.WithTimeout(context.Background(), backendWait)
	defer cancel()
	first, err := g.presence.SetOnline(ctx, user)
	if err != nil {
		g.log.Error().Err(err).Str("user", user).Msg("failed to set presence")
		return
	}
	if first {
		g.announce(ctx, user, model.PresenceOnline)
	}
}

func (g *Gateway) setOffline(user string) {
	ctx, cancel := context.WithTimeout(context.Background(), backendWait)
	defer cancel()
	last, err := g.presence.SetOffline(ctx, user)
	if err != nil {
		g.log.Error().Err(err).Str("user", user).Msg("failed to clear presence")
		return
	}
	if last {
		g.announce(ctx, user, model.PresenceOffline)
	}
}

func (g *Gateway) announce(ctx context.Context, user string, status model.PresenceStatus) {
	if err := g.publisher.Publish(ctx, user, presenceEnvelope(user, status, g.now())); err != nil {
		g.log.Error().Err(err).Str("user", user).Msg("failed to publish presence")
	}
}

func (g *Gateway) joinRoom(room, user string) {
	ctx, cancel := context.WithTimeout(context.Background(), backendWait)
	defer cancel()
	if err := g.presence.JoinRoom(ctx, room, user); err != nil {
		g.log.Error().Err(err).Str("room", room).Msg("failed to record room member")
	}
}

func (g *Gateway) leaveRoom(room, user string) {
	ctx, cancel := context.WithTimeout(context.Background(), backendWait)
	defer cancel()
	if err := g.presence.LeaveRoom(ctx, room, user); err != nil {
		g.log.Error().Err(err).Str("room", room).Msg("failed to remove room member")
	}
}
