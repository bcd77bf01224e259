package chatclient

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mahaj/chat-session/pkg/model"
)

// Event is one decoded inbound frame. Exactly one payload field is set,
// according to Topic.Kind.
type Event struct {
	Topic    model.Topic
	Message  *model.Message
	Typing   *model.TypingIndicator
	Receipt  *model.Receipt
	Presence *model.Presence
}

// Dispatcher decodes inbound frames and hands each to the single handler
// registered for its topic.
type Dispatcher struct {
	registry *Registry
	log      zerolog.Logger
	metrics  *Metrics
}

func NewDispatcher(r *Registry, logger zerolog.Logger, m *Metrics) *Dispatcher {
	if m == nil {
		m = NewMetrics(nil)
	}
	return &Dispatcher{
		registry: r,
		log:      logger.With().Str("component", "dispatcher").Logger(),
		metrics:  m,
	}
}

// Route implements Router. Frames that cannot be routed or decoded are logged
// and dropped.
func (d *Dispatcher) Route(destination string, body []byte) {
	topic, err := model.ParseDestination(destination)
	if err != nil {
		d.metrics.framesDropped.WithLabelValues(dropUnroutable).Inc()
		d.log.Warn().Str("destination", destination).Msg("dropping frame for unknown destination")
		return
	}

	handler, ok := d.registry.handler(topic)
	if !ok {
		d.metrics.framesDropped.WithLabelValues(dropUnregistered).Inc()
		d.log.Debug().Str("destination", destination).Msg("dropping frame for unregistered topic")
		return
	}

	ev, err := Decode(topic, body)
	if err != nil {
		d.metrics.framesDropped.WithLabelValues(dropDecode).Inc()
		d.log.Error().Err(err).Msg("dropping malformed frame")
		return
	}

	d.invoke(handler, ev)
}

func (d *Dispatcher) invoke(h Handler, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			d.metrics.framesDropped.WithLabelValues(dropPanic).Inc()
			d.log.Error().Interface("panic", rec).Str("topic", ev.Topic.Destination()).Msg("handler panicked")
		}
	}()
	h(ev)
	d.metrics.framesDispatched.WithLabelValues(string(ev.Topic.Kind)).Inc()
}

// Decode turns a frame body into an Event for topic. Failures are returned as
// *DecodeError.
func Decode(topic model.Topic, body []byte) (Event, error) {
	ev := Event{Topic: topic}
	var err error

	switch topic.Kind {
	case model.KindMessages:
		var m model.Message
		if err = json.Unmarshal(body, &m); err == nil {
			switch {
			case m.ID == "":
				err = errors.New("message without id")
			case m.SenderID == "":
				err = errors.New("message without sender")
			}
		}
		if m.RoomID == "" {
			m.RoomID = topic.Room
		}
		ev.Message = &m

	case model.KindTyping:
		var t model.TypingIndicator
		if err = json.Unmarshal(body, &t); err == nil && t.UserID == "" {
			err = errors.New("typing signal without user")
		}
		if t.RoomID == "" {
			t.RoomID = topic.Room
		}
		ev.Typing = &t

	case model.KindRead, model.KindDelivered:
		var r model.Receipt
		if err = json.Unmarshal(body, &r); err == nil && (r.MessageID == "" || r.PeerID == "") {
			err = errors.New("receipt without message or peer")
		}
		if r.RoomID == "" {
			r.RoomID = topic.Room
		}
		// The topic is authoritative for the receipt kind.
		r.Kind = model.ReceiptDelivered
		if topic.Kind == model.KindRead {
			r.Kind = model.ReceiptRead
		}
		ev.Receipt = &r

	case model.KindPresence:
		var p model.Presence
		if err = json.Unmarshal(body, &p); err == nil && p.UserID == "" {
			err = errors.New("presence without user")
		}
		ev.Presence = &p

	default:
		err = fmt.Errorf("unsupported topic kind %q", topic.Kind)
	}

	if err != nil {
		return Event{}, &DecodeError{Destination: topic.Destination(), Err: err}
	}
	return ev, nil
}
