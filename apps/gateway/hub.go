package main

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/mahaj/chat-session/pkg/bus"
	"github.com/mahaj/chat-session/pkg/model"
)

type subscription struct {
	client      *Client
	destination string
	active      bool
}

// Hub owns the set of connected clients and their subscriptions. All of its
// maps are touched only from Run.
type Hub struct {
	clients     map[*Client]bool
	subscribers map[string]map[*Client]bool // destination -> clients

	register   chan *Client
	unregister chan *Client
	subscribe  chan subscription
	fanout     chan bus.Envelope
	done       chan struct{}

	log     zerolog.Logger
	metrics *metrics
}

func NewHub(logger zerolog.Logger, m *metrics) *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		subscribers: make(map[string]map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan subscription),
		fanout:      make(chan bus.Envelope, 256),
		done:        make(chan struct{}),
		log:         logger.With().Str("component", "hub").Logger(),
		metrics:     m,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.remove(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.metrics.clients.Inc()
			h.log.Debug().Str("user", client.userID).Msg("client registered")

		case client := <-h.unregister:
			if h.clients[client] {
				h.remove(client)
				h.log.Debug().Str("user", client.userID).Msg("client unregistered")
			}

		case sub := <-h.subscribe:
			if !h.clients[sub.client] {
				continue
			}
			subs := h.subscribers[sub.destination]
			if sub.active {
				if subs == nil {
					subs = make(map[*Client]bool)
					h.subscribers[sub.destination] = subs
				}
				subs[sub.client] = true
				continue
			}
			delete(subs, sub.client)
			if len(subs) == 0 {
				delete(h.subscribers, sub.destination)
			}

		case env := <-h.fanout:
			h.deliver(env)
		}
	}
}

// Publish queues env for delivery to this gateway's subscribers.
func (h *Hub) Publish(ctx context.Context, env bus.Envelope) error {
	select {
	case h.fanout <- env:
		return nil
	case <-h.done:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) deliver(env bus.Envelope) {
	subs := h.subscribers[env.Destination]
	if len(subs) == 0 {
		return
	}

	data, err := json.Marshal(model.Frame{Command: model.CommandMessage, Destination: env.Destination, Body: env.Body})
	if err != nil {
		h.log.Error().Err(err).Msg("encode frame")
		return
	}

	for client := range subs {
		select {
		case client.send <- data:
			h.metrics.delivered.Inc()
		default:
			// Slow consumer; its write pump closes the socket.
			h.log.Warn().Str("user", client.userID).Msg("dropping slow client")
			h.metrics.slowClients.Inc()
			h.remove(client)
		}
	}
}

func (h *Hub) remove(client *Client) {
	delete(h.clients, client)
	for dest, subs := range h.subscribers {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.subscribers, dest)
		}
	}
	close(client.send)
	h.metrics.clients.Dec()
}

// enqueue hands a request to Run unless the hub has stopped.
func enqueue[T any](h *Hub, ch chan T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-h.done:
		return false
	}
}
