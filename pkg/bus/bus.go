// Package bus carries chat traffic between services over Kafka. Every record
// is an Envelope naming the destination its body will be delivered to.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const DefaultTopic = "chat-messages"

const retryDelay = 1 * time.Second

type Envelope struct {
	Destination string          `json:"destination"`
	Body        json.RawMessage `json:"body"`
}

func Decode(value []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Destination == "" {
		return Envelope{}, errors.New("envelope without destination")
	}
	return env, nil
}

type Producer struct {
	w *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{w: &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}}
}

// Publish writes env keyed by key. Records with the same key (a room) keep
// their order.
func (p *Producer) Publish(ctx context.Context, key string, env Envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.w.Topic, err)
	}
	return nil
}

func (p *Producer) Close() error { return p.w.Close() }

type reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string

	// Latest starts a new group at the end of the topic. Fanout consumers
	// use it; durable consumers start from the beginning.
	Latest bool
}

type Consumer struct {
	r   reader
	log zerolog.Logger
}

func NewConsumer(cfg ConsumerConfig, logger zerolog.Logger) *Consumer {
	start := kafka.FirstOffset
	if cfg.Latest {
		start = kafka.LastOffset
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		StartOffset: start,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		MaxWait:     500 * time.Millisecond,
	})
	return &Consumer{
		r:   r,
		log: logger.With().Str("component", "bus").Str("group", cfg.GroupID).Logger(),
	}
}

// Run feeds every decodable envelope to fn until ctx is done. Read errors are
// retried after a pause; undecodable records and fn errors are logged and
// skipped.
func (c *Consumer) Run(ctx context.Context, fn func(context.Context, Envelope) error) error {
	for {
		m, err := c.r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn().Err(err).Dur("retry_in", retryDelay).Msg("read failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
			continue
		}

		env, err := Decode(m.Value)
		if err != nil {
			c.log.Error().Err(err).Int64("offset", m.Offset).Msg("skipping record")
			continue
		}
		if err := fn(ctx, env); err != nil {
			c.log.Error().Err(err).Str("destination", env.Destination).Msg("handle record")
		}
	}
}

func (c *Consumer) Close() error { return c.r.Close() }
