package db

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/gocql/gocql"

	"github.com/mahaj/chat-session/pkg/model"
	"github.com/mahaj/chat-session/pkg/snowflake"
)

const (
	DefaultHistoryLimit = 50
	unreadPageSize      = 500
)

// Store persists room messages together with their receipt sets.
type Store struct {
	s *Session
}

func NewStore(s *Session) *Store {
	return &Store{s: s}
}

func (st *Store) SaveMessage(ctx context.Context, m model.Message) error {
	id, err := snowflake.ParseID(m.ID)
	if err != nil {
		return err
	}
	q := `INSERT INTO messages (room_id, id, client_id, sender_id, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	if err := st.s.Query(q, m.RoomID, int64(id), m.ClientID, m.SenderID, m.Content, m.CreatedAt).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("save message %s: %w", m.ID, err)
	}
	return nil
}

// ApplyReceipt adds the peer to the message's receipt set. A read receipt
// also records delivery.
func (st *Store) ApplyReceipt(ctx context.Context, rc model.Receipt) error {
	id, err := snowflake.ParseID(rc.MessageID)
	if err != nil {
		return err
	}
	if rc.PeerID == "" || rc.RoomID == "" {
		return errors.New("receipt without room or peer")
	}

	peer := []string{rc.PeerID}
	var q string
	var args []any
	switch rc.Kind {
	case model.ReceiptRead:
		q = `UPDATE messages SET read_by = read_by + ?, delivered_to = delivered_to + ? WHERE room_id = ? AND id = ?`
		args = []any{peer, peer, rc.RoomID, int64(id)}
	case model.ReceiptDelivered:
		q = `UPDATE messages SET delivered_to = delivered_to + ? WHERE room_id = ? AND id = ?`
		args = []any{peer, rc.RoomID, int64(id)}
	default:
		return fmt.Errorf("unknown receipt kind %q", rc.Kind)
	}

	if err := st.s.Query(q, args...).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("apply %s receipt for %s: %w", rc.Kind, rc.MessageID, err)
	}
	return nil
}

// History returns up to limit of the room's newest messages, oldest first.
func (st *Store) History(ctx context.Context, roomID string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := scan(st.s.Query(
		`SELECT id, client_id, sender_id, content, created_at, read_by, delivered_to FROM messages WHERE room_id = ? LIMIT ?`,
		roomID, limit,
	).WithContext(ctx).Iter())
	if err != nil {
		return nil, fmt.Errorf("query history for %s: %w", roomID, err)
	}
	return toMessages(roomID, rows), nil
}

// Unread returns the room's messages that userID neither sent nor read,
// oldest first. Scylla cannot filter on set membership without an index, so
// the partition is paged through and filtered here.
func (st *Store) Unread(ctx context.Context, roomID, userID string) ([]model.Message, error) {
	if userID == "" {
		return nil, errors.New("unread without user")
	}

	rows, err := scan(st.s.Query(
		`SELECT id, client_id, sender_id, content, created_at, read_by, delivered_to FROM messages WHERE room_id = ?`,
		roomID,
	).WithContext(ctx).PageSize(unreadPageSize).Iter())
	if err != nil {
		return nil, fmt.Errorf("query unread for %s in %s: %w", userID, roomID, err)
	}
	return unreadBy(userID, toMessages(roomID, rows)), nil
}

func scan(iter *gocql.Iter) ([]row, error) {
	var rows []row
	var r row
	for iter.Scan(&r.id, &r.clientID, &r.senderID, &r.content, &r.createdAt, &r.readBy, &r.deliveredTo) {
		rows = append(rows, r)
		r = row{}
	}
	if err := iter.Close(); err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return rows, nil
}

func unreadBy(userID string, msgs []model.Message) []model.Message {
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.SenderID == userID || slices.Contains(m.ReadBy, userID) {
			continue
		}
		out = append(out, m)
	}
	return out
}

type row struct {
	id          int64
	clientID    string
	senderID    string
	content     string
	createdAt   time.Time
	readBy      []string
	deliveredTo []string
}

// toMessages reverses the newest-first rows and skips receipt-only rows
// written before their message.
func toMessages(roomID string, rows []row) []model.Message {
	out := make([]model.Message, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		if r.senderID == "" {
			continue
		}
		out = append(out, model.Message{
			ID:          snowflake.ID(r.id).String(),
			ClientID:    r.clientID,
			RoomID:      roomID,
			SenderID:    r.senderID,
			Content:     r.content,
			Type:        model.TypeMessage,
			CreatedAt:   r.createdAt,
			ReadBy:      r.readBy,
			DeliveredTo: r.deliveredTo,
		})
	}
	return out
}
