package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mahaj/chat-session/pkg/bus"
	"github.com/mahaj/chat-session/pkg/model"
	"github.com/mahaj/chat-session/pkg/snowflake"
)

var errUnknownDestination = errors.New("unknown destination")

// route turns a client's SEND into the record published on the bus. The
// sender is always the authenticated user, whatever the payload claims. The
// returned key is the room, which keeps a room's traffic ordered.
func route(user string, f model.Frame, ids *snowflake.Node, now time.Time) (string, bus.Envelope, error) {
	switch f.Destination {
	case model.AppSendMessage:
		var in model.ChatMessage
		if err := json.Unmarshal(f.Body, &in); err != nil {
			return "", bus.Envelope{}, fmt.Errorf("decode message: %w", err)
		}
		if strings.TrimSpace(in.Content) == "" {
			return "", bus.Envelope{}, errors.New("empty message")
		}
		msg := model.Message{
			ID:        ids.Generate().String(),
			ClientID:  in.ClientID,
			RoomID:    in.RoomID,
			SenderID:  user,
			Content:   in.Content,
			Type:      model.TypeMessage,
			CreatedAt: now.UTC(),
		}
		return envelope(in.RoomID, model.KindMessages, msg)

	case model.AppTyping:
		var in model.TypingIndicator
		if err := json.Unmarshal(f.Body, &in); err != nil {
			return "", bus.Envelope{}, fmt.Errorf("decode typing: %w", err)
		}
		in.UserID = user
		return envelope(in.RoomID, model.KindTyping, in)

	case model.AppReadReceipt, model.AppMarkDelivered:
		var in model.Receipt
		if err := json.Unmarshal(f.Body, &in); err != nil {
			return "", bus.Envelope{}, fmt.Errorf("decode receipt: %w", err)
		}
		if _, err := snowflake.ParseID(in.MessageID); err != nil {
			return "", bus.Envelope{}, err
		}
		in.PeerID = user
		kind := model.KindDelivered
		in.Kind = model.ReceiptDelivered
		if f.Destination == model.AppReadReceipt {
			kind = model.KindRead
			in.Kind = model.ReceiptRead
		}
		return envelope(in.RoomID, kind, in)
	}

	return "", bus.Envelope{}, fmt.Errorf("%w: %s", errUnknownDestination, f.Destination)
}

func envelope(room string, kind model.TopicKind, payload any) (string, bus.Envelope, error) {
	topic := model.RoomTopic(room, kind)
	if err := topic.Validate(); err != nil {
		return "", bus.Envelope{}, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", bus.Envelope{}, err
	}
	return room, bus.Envelope{Destination: topic.Destination(), Body: body}, nil
}

func presenceEnvelope(user string, status model.PresenceStatus, now time.Time) bus.Envelope {
	body, _ := json.Marshal(model.Presence{UserID: user, Status: status, Timestamp: now.UTC()})
	return bus.Envelope{Destination: model.PresenceTopic().Destination(), Body: body}
}
