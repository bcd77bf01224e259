package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/mahaj/chat-session/pkg/bus"
	"github.com/mahaj/chat-session/pkg/model"
)

type messageStore interface {
	SaveMessage(ctx context.Context, m model.Message) error
	ApplyReceipt(ctx context.Context, rc model.Receipt) error
}

// Persister writes the durable part of the bus traffic: messages and their
// receipts. Typing and presence are ephemeral and skipped.
type Persister struct {
	store     messageStore
	log       zerolog.Logger
	persisted *prometheus.CounterVec
}

func NewPersister(store messageStore, logger zerolog.Logger, reg prometheus.Registerer) *Persister {
	p := &Persister{
		store: store,
		log:   logger.With().Str("component", "persister").Logger(),
		persisted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Subsystem: "messaging",
			Name:      "records_total",
			Help:      "Bus records handled by topic kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(p.persisted)
	}
	return p
}

func (p *Persister) Handle(ctx context.Context, env bus.Envelope) error {
	topic, err := model.ParseDestination(env.Destination)
	if err != nil {
		p.persisted.WithLabelValues("unknown", "skipped").Inc()
		return err
	}

	err = p.handle(ctx, topic, env.Body)
	outcome := "ok"
	switch {
	case errors.Is(err, errEphemeral):
		outcome, err = "skipped", nil
	case err != nil:
		outcome = "error"
	}
	p.persisted.WithLabelValues(string(topic.Kind), outcome).Inc()
	return err
}

var errEphemeral = errors.New("ephemeral record")

func (p *Persister) handle(ctx context.Context, topic model.Topic, body json.RawMessage) error {
	switch topic.Kind {
	case model.KindMessages:
		var msg model.Message
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("decode message: %w", err)
		}
		if msg.RoomID == "" {
			msg.RoomID = topic.Room
		}
		if err := p.store.SaveMessage(ctx, msg); err != nil {
			return err
		}
		p.log.Debug().Str("room", msg.RoomID).Str("id", msg.ID).Msg("message saved")
		return nil

	case model.KindRead, model.KindDelivered:
		var rc model.Receipt
		if err := json.Unmarshal(body, &rc); err != nil {
			return fmt.Errorf("decode receipt: %w", err)
		}
		if rc.RoomID == "" {
			rc.RoomID = topic.Room
		}
		rc.Kind = model.ReceiptDelivered
		if topic.Kind == model.KindRead {
			rc.Kind = model.ReceiptRead
		}
		return p.store.ApplyReceipt(ctx, rc)
	}
	return errEphemeral
}
