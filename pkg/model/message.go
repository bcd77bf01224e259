package model

import "time"

type MessageType string

const (
	TypeMessage          MessageType = "message"
	TypeTyping           MessageType = "typing"
	TypePresence         MessageType = "presence"
	TypeReadReceipt      MessageType = "read_receipt"
	TypeDeliveredReceipt MessageType = "delivered_receipt"
)

// Message is a chat message as broadcast by the backend. ID and CreatedAt are
// server-assigned; ReadBy and DeliveredTo carry whatever the server already
// knows when the message is delivered.
type Message struct {
	ID          string      `json:"id"`
	ClientID    string      `json:"client_id,omitempty"`
	RoomID      string      `json:"room_id"`
	SenderID    string      `json:"sender_id"`
	Content     string      `json:"content"`
	Type        MessageType `json:"type"`
	CreatedAt   time.Time   `json:"created_at"`
	ReadBy      []string    `json:"read_by,omitempty"`
	DeliveredTo []string    `json:"delivered_to,omitempty"`

	// Pending marks a locally created message the server has not echoed yet.
	Pending bool `json:"-"`
}

// ChatMessage is the outbound payload for sending a message.
type ChatMessage struct {
	RoomID    string    `json:"room_id"`
	Content   string    `json:"content"`
	SenderID  string    `json:"sender_id"`
	ClientID  string    `json:"client_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type TypingIndicator struct {
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

type ReceiptKind string

const (
	ReceiptDelivered ReceiptKind = "delivered"
	ReceiptRead      ReceiptKind = "read"
)

// Receipt acknowledges delivery or reading of one message by one peer. The
// same shape is used in both directions.
type Receipt struct {
	MessageID string      `json:"message_id"`
	RoomID    string      `json:"room_id"`
	PeerID    string      `json:"peer_id"`
	Kind      ReceiptKind `json:"kind"`
}

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
)

type Presence struct {
	UserID    string         `json:"user_id"`
	Status    PresenceStatus `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
}
