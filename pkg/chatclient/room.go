package chatclient

import (
	"errors"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mahaj/chat-session/pkg/model"
	"github.com/mahaj/chat-session/pkg/receipts"
	"github.com/mahaj/chat-session/pkg/typing"
)

// Room is the client's view of one chat room: its messages, their receipt
// status and who is typing.
type Room struct {
	id       string
	client   *Client
	log      zerolog.Logger
	receipts *receipts.Aggregator
	typing   *typing.Debouncer
	peers    *typing.Tracker

	mu       sync.Mutex
	messages []model.Message
	byID     map[string]int
	pending  map[string]int // client id -> index of the optimistic copy

	// notifyMu orders MessageAdded calls so an echo is never followed by
	// its own optimistic copy.
	notifyMu sync.Mutex
}

func newRoom(c *Client, id string) *Room {
	r := &Room{
		id:       id,
		client:   c,
		log:      c.log.With().Str("room", id).Logger(),
		receipts: receipts.New(),
		byID:     make(map[string]int),
		pending:  make(map[string]int),
	}
	r.typing = typing.NewDebouncer(c.cfg.Clock, c.cfg.TypingQuiet, func(isTyping bool) error {
		return c.SendTyping(id, isTyping)
	}, r.log)
	r.peers = typing.NewTracker(c.cfg.Clock, c.cfg.TypingExpiry, func(peers []string) {
		c.cfg.Observer.TypingChanged(id, peers)
	})
	return r
}

func (r *Room) ID() string { return r.id }

// SendMessage sends content and records an optimistic copy that is replaced
// when the server echoes it back. Typing is stopped on success.
func (r *Room) SendMessage(content string) (model.Message, error) {
	c := r.client
	out := model.ChatMessage{
		RoomID:    r.id,
		Content:   content,
		SenderID:  c.cfg.UserID,
		ClientID:  newClientID(),
		Timestamp: c.cfg.Clock.Now().UTC(),
	}
	optimistic := model.Message{
		ClientID:  out.ClientID,
		RoomID:    r.id,
		SenderID:  out.SenderID,
		Content:   content,
		Type:      model.TypeMessage,
		CreatedAt: out.Timestamp,
		Pending:   true,
	}

	// Record before sending so a fast echo always finds its optimistic copy.
	r.mu.Lock()
	r.pending[out.ClientID] = len(r.messages)
	r.messages = append(r.messages, optimistic)
	r.mu.Unlock()

	if err := c.sendChatMessage(out); err != nil {
		r.dropPending(out.ClientID)
		return model.Message{}, err
	}

	if err := r.typing.OnSend(); err != nil {
		r.log.Debug().Err(err).Msg("typing stop not sent")
	}
	r.notifyMu.Lock()
	r.mu.Lock()
	_, stillPending := r.pending[out.ClientID]
	r.mu.Unlock()
	if stillPending {
		c.cfg.Observer.MessageAdded(r.id, optimistic)
	}
	r.notifyMu.Unlock()
	return optimistic, nil
}

// OnLocalInput reports a keystroke in the room's composer.
func (r *Room) OnLocalInput() error { return r.typing.OnLocalInput() }

// MarkRead tells the backend this user has read messageID.
func (r *Room) MarkRead(messageID string) error {
	return r.client.SendReadReceipt(r.id, messageID)
}

func (r *Room) Status(messageID string) receipts.Status { return r.receipts.Status(messageID) }

func (r *Room) TypingPeers() []string { return r.peers.Peers() }

// Messages returns the room's messages in arrival order, optimistic copies
// included.
func (r *Room) Messages() []model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.messages)
}

func (r *Room) handleMessage(ev Event) {
	m := *ev.Message
	c := r.client

	r.mu.Lock()
	if _, dup := r.byID[m.ID]; dup {
		r.mu.Unlock()
		return
	}
	idx, echoed := r.pending[m.ClientID]
	if m.ClientID != "" && echoed {
		r.messages[idx] = m
		delete(r.pending, m.ClientID)
	} else {
		idx = len(r.messages)
		r.messages = append(r.messages, m)
	}
	r.byID[m.ID] = idx
	r.mu.Unlock()

	r.receipts.Seed(m.ID, m.DeliveredTo, m.ReadBy)
	r.notifyMu.Lock()
	c.cfg.Observer.MessageAdded(r.id, m)
	r.notifyMu.Unlock()

	if m.SenderID == c.cfg.UserID {
		return
	}
	if err := c.SendDeliveredReceipt(r.id, m.ID); err != nil && !errors.Is(err, ErrNotConnected) {
		r.log.Warn().Err(err).Str("message", m.ID).Msg("delivered receipt not sent")
	}
}

func (r *Room) handleTyping(ev Event) {
	if ev.Typing.UserID == r.client.cfg.UserID {
		return
	}
	r.peers.OnRemoteSignal(ev.Typing.UserID, ev.Typing.IsTyping)
}

func (r *Room) handleReceipt(ev Event) {
	rc := *ev.Receipt
	if !r.receipts.Apply(rc) {
		return
	}
	r.client.cfg.Observer.StatusChanged(r.id, rc.MessageID, r.receipts.Status(rc.MessageID))
}

func (r *Room) dropPending(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.pending[clientID]
	if !ok {
		return
	}
	delete(r.pending, clientID)
	r.messages = slices.Delete(r.messages, idx, idx+1)
	for k, i := range r.pending {
		if i > idx {
			r.pending[k] = i - 1
		}
	}
	for k, i := range r.byID {
		if i > idx {
			r.byID[k] = i - 1
		}
	}
}

func (r *Room) stopTimers() {
	r.typing.Stop()
	r.peers.Stop()
}

func (r *Room) unregister() error {
	var errs []error
	for _, kind := range []model.TopicKind{model.KindMessages, model.KindTyping, model.KindRead, model.KindDelivered} {
		if err := r.client.registry.Unregister(model.RoomTopic(r.id, kind)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
