package model

import (
	"errors"
	"strings"
)

// Application destinations accepted by the gateway.
const (
	AppSendMessage   = "/app/chat.sendMessage"
	AppTyping        = "/app/chat.typing"
	AppReadReceipt   = "/app/chat.readReceipt"
	AppMarkDelivered = "/app/chat.markDelivered"
)

const (
	roomPrefix          = "/topic/chat/"
	presenceDestination = "/topic/presence"
)

type TopicKind string

const (
	KindMessages  TopicKind = "messages"
	KindTyping    TopicKind = "typing"
	KindRead      TopicKind = "read"
	KindDelivered TopicKind = "delivered"
	KindPresence  TopicKind = "presence"
)

var ErrInvalidTopic = errors.New("invalid topic")

// Topic identifies a broadcast channel: a room plus the kind of traffic.
// Presence is global and has no room.
type Topic struct {
	Room string
	Kind TopicKind
}

func RoomTopic(room string, kind TopicKind) Topic { return Topic{Room: room, Kind: kind} }

func PresenceTopic() Topic { return Topic{Kind: KindPresence} }

func (t Topic) Validate() error {
	switch t.Kind {
	case KindPresence:
		if t.Room != "" {
			return ErrInvalidTopic
		}
		return nil
	case KindMessages, KindTyping, KindRead, KindDelivered:
		if t.Room == "" || strings.Contains(t.Room, "/") {
			return ErrInvalidTopic
		}
		return nil
	default:
		return ErrInvalidTopic
	}
}

// Destination renders the topic as the broker destination string.
func (t Topic) Destination() string {
	switch t.Kind {
	case KindPresence:
		return presenceDestination
	case KindMessages:
		return roomPrefix + t.Room
	default:
		return roomPrefix + t.Room + "/" + string(t.Kind)
	}
}

func (t Topic) String() string { return t.Destination() }

// ParseDestination is the inverse of Topic.Destination.
func ParseDestination(dest string) (Topic, error) {
	if dest == presenceDestination {
		return PresenceTopic(), nil
	}
	rest, ok := strings.CutPrefix(dest, roomPrefix)
	if !ok || rest == "" {
		return Topic{}, ErrInvalidTopic
	}

	room, kind, hasKind := strings.Cut(rest, "/")
	t := Topic{Room: room, Kind: KindMessages}
	if hasKind {
		t.Kind = TopicKind(kind)
		if t.Kind == KindMessages || t.Kind == KindPresence {
			return Topic{}, ErrInvalidTopic
		}
	}
	if err := t.Validate(); err != nil {
		return Topic{}, err
	}
	return t, nil
}
