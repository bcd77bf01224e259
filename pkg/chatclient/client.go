// Package chatclient manages one client's connection to the chat backend:
// the connection state machine with reconnect, topic subscriptions that
// survive reconnects, inbound dispatch, and per-room receipt and typing
// state.
package chatclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/mahaj/chat-session/pkg/clock"
	"github.com/mahaj/chat-session/pkg/model"
	"github.com/mahaj/chat-session/pkg/typing"
)

type Config struct {
	URL    string
	UserID string

	Backoff     Backoff
	DialTimeout time.Duration

	TypingQuiet  time.Duration
	TypingExpiry time.Duration

	Clock      clock.Clock
	Logger     zerolog.Logger
	Registerer prometheus.Registerer
	Observer   Observer
}

// Client is the explicitly constructed entry point handed to a view layer.
type Client struct {
	cfg        Config
	session    *Session
	registry   *Registry
	dispatcher *Dispatcher
	log        zerolog.Logger

	mu    sync.Mutex
	rooms map[string]*Room
}

func New(t Transport, cfg Config) *Client {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	if cfg.TypingQuiet <= 0 {
		cfg.TypingQuiet = typing.DefaultQuiet
	}
	if cfg.TypingExpiry <= 0 {
		cfg.TypingExpiry = 3 * cfg.TypingQuiet
	}

	metrics := NewMetrics(cfg.Registerer)
	logger := cfg.Logger.With().Str("user", cfg.UserID).Logger()
	observer := cfg.Observer

	session := NewSession(t, SessionConfig{
		URL:           cfg.URL,
		Backoff:       cfg.Backoff,
		DialTimeout:   cfg.DialTimeout,
		Clock:         cfg.Clock,
		Logger:        logger,
		Metrics:       metrics,
		OnStateChange: observer.StateChanged,
	})
	registry := NewRegistry(session, logger)
	dispatcher := NewDispatcher(registry, logger, metrics)
	session.SetRouter(dispatcher)

	return &Client{
		cfg:        cfg,
		session:    session,
		registry:   registry,
		dispatcher: dispatcher,
		log:        logger.With().Str("component", "client").Logger(),
		rooms:      make(map[string]*Room),
	}
}

func (c *Client) Session() *Session   { return c.session }
func (c *Client) Registry() *Registry { return c.registry }
func (c *Client) State() State        { return c.session.State() }
func (c *Client) UserID() string      { return c.cfg.UserID }

// Connect opens the session. See Session.Connect.
func (c *Client) Connect(ctx context.Context, token string, onConnected func()) {
	c.session.Connect(ctx, token, onConnected)
}

// Disconnect closes the session and cancels every typing timer. Joined rooms
// stay registered and resume on the next Connect.
func (c *Client) Disconnect() {
	c.session.Disconnect()

	c.mu.Lock()
	rooms := make([]*Room, 0, len(c.rooms))
	for _, r := range c.rooms {
		rooms = append(rooms, r)
	}
	c.mu.Unlock()

	for _, r := range rooms {
		r.stopTimers()
	}
}

// SendChatMessage submits content to room and returns the payload sent,
// including its client id.
func (c *Client) SendChatMessage(room, content string) (model.ChatMessage, error) {
	msg := model.ChatMessage{
		RoomID:    room,
		Content:   content,
		SenderID:  c.cfg.UserID,
		ClientID:  newClientID(),
		Timestamp: c.cfg.Clock.Now().UTC(),
	}
	return msg, c.sendChatMessage(msg)
}

func newClientID() string { return uuid.NewString() }

func (c *Client) sendChatMessage(msg model.ChatMessage) error {
	return c.session.Send(model.AppSendMessage, msg)
}

func (c *Client) SendTyping(room string, isTyping bool) error {
	return c.session.Send(model.AppTyping, model.TypingIndicator{
		RoomID:   room,
		UserID:   c.cfg.UserID,
		IsTyping: isTyping,
	})
}

func (c *Client) SendReadReceipt(room, messageID string) error {
	return c.session.Send(model.AppReadReceipt, model.Receipt{
		MessageID: messageID,
		RoomID:    room,
		PeerID:    c.cfg.UserID,
		Kind:      model.ReceiptRead,
	})
}

func (c *Client) SendDeliveredReceipt(room, messageID string) error {
	return c.session.Send(model.AppMarkDelivered, model.Receipt{
		MessageID: messageID,
		RoomID:    room,
		PeerID:    c.cfg.UserID,
		Kind:      model.ReceiptDelivered,
	})
}

// SubscribePresence registers fn for global presence updates. fn may be nil
// when only the Observer is of interest.
func (c *Client) SubscribePresence(fn func(model.Presence)) error {
	return c.registry.Register(model.PresenceTopic(), func(ev Event) {
		c.cfg.Observer.PresenceChanged(*ev.Presence)
		if fn != nil {
			fn(*ev.Presence)
		}
	})
}

func (c *Client) UnsubscribePresence() error {
	return c.registry.Unregister(model.PresenceTopic())
}

// JoinRoom registers the room's message, typing and receipt topics. Joining
// a room twice returns the existing Room.
func (c *Client) JoinRoom(id string) (*Room, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.rooms[id]; ok {
		return r, nil
	}

	r := newRoom(c, id)
	handlers := []struct {
		kind model.TopicKind
		fn   Handler
	}{
		{model.KindMessages, r.handleMessage},
		{model.KindTyping, r.handleTyping},
		{model.KindRead, r.handleReceipt},
		{model.KindDelivered, r.handleReceipt},
	}
	for _, h := range handlers {
		if err := c.registry.Register(model.RoomTopic(id, h.kind), h.fn); err != nil {
			r.unregister()
			return nil, fmt.Errorf("join room %s: %w", id, err)
		}
	}

	c.rooms[id] = r
	c.log.Debug().Str("room", id).Msg("joined room")
	return r, nil
}

// LeaveRoom unregisters the room's topics and stops its timers.
func (c *Client) LeaveRoom(id string) error {
	c.mu.Lock()
	r, ok := c.rooms[id]
	delete(c.rooms, id)
	c.mu.Unlock()

	if !ok {
		return nil
	}
	r.stopTimers()
	return r.unregister()
}

func (c *Client) Room(id string) (*Room, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rooms[id]
	return r, ok
}
