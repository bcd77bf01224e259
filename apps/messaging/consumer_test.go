package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/chat-session/pkg/bus"
	"github.com/mahaj/chat-session/pkg/model"
)

type memStore struct {
	messages []model.Message
	receipts []model.Receipt
}

func (s *memStore) SaveMessage(_ context.Context, m model.Message) error {
	s.messages = append(s.messages, m)
	return nil
}

func (s *memStore) ApplyReceipt(_ context.Context, rc model.Receipt) error {
	s.receipts = append(s.receipts, rc)
	return nil
}

func envelope(t *testing.T, dest string, payload any) bus.Envelope {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return bus.Envelope{Destination: dest, Body: body}
}

func TestPersister_Handle(t *testing.T) {
	store := &memStore{}
	p := NewPersister(store, zerolog.Nop(), nil)
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, p.Handle(ctx, envelope(t, "/topic/chat/general", model.Message{ID: "7", SenderID: "bob", Content: "hi", CreatedAt: now})))
	require.NoError(t, p.Handle(ctx, envelope(t, "/topic/chat/general/read", model.Receipt{MessageID: "7", PeerID: "alice"})))
	require.NoError(t, p.Handle(ctx, envelope(t, "/topic/chat/general/delivered", model.Receipt{MessageID: "7", PeerID: "carol", Kind: model.ReceiptRead})))
	require.NoError(t, p.Handle(ctx, envelope(t, "/topic/chat/general/typing", model.TypingIndicator{UserID: "bob", IsTyping: true})))
	require.NoError(t, p.Handle(ctx, envelope(t, "/topic/presence", model.Presence{UserID: "bob"})))

	require.Len(t, store.messages, 1)
	assert.Equal(t, "general", store.messages[0].RoomID)

	assert.Equal(t, []model.Receipt{
		{MessageID: "7", RoomID: "general", PeerID: "alice", Kind: model.ReceiptRead},
		{MessageID: "7", RoomID: "general", PeerID: "carol", Kind: model.ReceiptDelivered},
	}, store.receipts, "the topic decides the receipt kind")

	assert.Equal(t, float64(1), testutil.ToFloat64(p.persisted.WithLabelValues("typing", "skipped")))
	assert.Equal(t, float64(1), testutil.ToFloat64(p.persisted.WithLabelValues("messages", "ok")))
}

func TestPersister_HandleErrors(t *testing.T) {
	p := NewPersister(&memStore{}, zerolog.Nop(), nil)
	ctx := context.Background()

	assert.Error(t, p.Handle(ctx, bus.Envelope{Destination: "/queue/elsewhere", Body: json.RawMessage(`{}`)}))
	assert.Error(t, p.Handle(ctx, bus.Envelope{Destination: "/topic/chat/general", Body: json.RawMessage(`[1]`)}))
	assert.Equal(t, float64(1), testutil.ToFloat64(p.persisted.WithLabelValues("messages", "error")))
}
