package chatclient

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mahaj/chat-session/pkg/model"
)

// Handler receives decoded events for one topic.
type Handler func(Event)

type subscription struct {
	handler Handler
	gen     uint64 // channel generation the topic is attached to; zero when detached
}

// Registry maps topics to handlers and keeps them attached across
// reconnects. Callers register once per interest, not once per connection.
type Registry struct {
	session *Session
	log     zerolog.Logger

	mu      sync.RWMutex
	entries map[model.Topic]*subscription
}

// NewRegistry creates a Registry that re-attaches its topics after every
// handshake of s.
func NewRegistry(s *Session, logger zerolog.Logger) *Registry {
	r := &Registry{
		session: s,
		log:     logger.With().Str("component", "registry").Logger(),
		entries: make(map[model.Topic]*subscription),
	}
	s.OnHandshake(r.reattach)
	return r
}

// Register stores handler for topic, replacing any previous handler. The
// topic is attached now if connected, otherwise on the next handshake.
func (r *Registry) Register(topic model.Topic, handler Handler) error {
	if err := topic.Validate(); err != nil {
		return fmt.Errorf("register %+v: %w", topic, err)
	}
	if handler == nil {
		return errors.New("register: nil handler")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.entries[topic]
	if !ok {
		sub = &subscription{}
		r.entries[topic] = sub
	}
	sub.handler = handler

	if r.session.isLive(sub.gen) {
		return nil
	}
	return r.attachLocked(topic, sub)
}

// Unregister detaches topic if attached and forgets it. Unknown topics are
// ignored.
func (r *Registry) Unregister(topic model.Topic) error {
	r.mu.Lock()
	sub, ok := r.entries[topic]
	delete(r.entries, topic)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return r.session.detach(topic.Destination(), sub.gen)
}

// Topics returns the registered topics in no particular order.
func (r *Registry) Topics() []model.Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Topic, 0, len(r.entries))
	for t := range r.entries {
		out = append(out, t)
	}
	return out
}

func (r *Registry) handler(topic model.Topic) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.entries[topic]
	if !ok {
		return nil, false
	}
	return sub.handler, true
}

func (r *Registry) reattach() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for topic, sub := range r.entries {
		if r.session.isLive(sub.gen) {
			continue
		}
		if err := r.attachLocked(topic, sub); err != nil {
			r.log.Warn().Err(err).Str("topic", topic.Destination()).Msg("re-attach failed")
		}
	}
	r.log.Debug().Int("topics", len(r.entries)).Msg("subscriptions re-attached")
}

func (r *Registry) attachLocked(topic model.Topic, sub *subscription) error {
	sub.gen = 0
	gen, err := r.session.attach(topic.Destination())
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	if err != nil {
		return err
	}
	sub.gen = gen
	return nil
}
