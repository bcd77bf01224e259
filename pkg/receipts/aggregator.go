// Package receipts folds delivery and read acknowledgements into a per-message
// status.
package receipts

import (
	"sync"

	"github.com/mahaj/chat-session/pkg/model"
)

type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

type acks struct {
	delivered map[string]struct{}
	read      map[string]struct{}
}

// Aggregator tracks which peers received and read each message. Recording is
// idempotent and a read always implies delivery, regardless of the order the
// receipts arrive in.
type Aggregator struct {
	mu       sync.RWMutex
	messages map[string]*acks
}

func New() *Aggregator {
	return &Aggregator{messages: make(map[string]*acks)}
}

func (a *Aggregator) entry(messageID string) *acks {
	e, ok := a.messages[messageID]
	if !ok {
		e = &acks{
			delivered: make(map[string]struct{}),
			read:      make(map[string]struct{}),
		}
		a.messages[messageID] = e
	}
	return e
}

// RecordDelivered marks messageID as delivered to peerID. It reports whether
// the call changed anything.
func (a *Aggregator) RecordDelivered(messageID, peerID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recordDeliveredLocked(messageID, peerID)
}

// RecordRead marks messageID as read by peerID, backfilling delivery for the
// same peer. It reports whether the call changed anything.
func (a *Aggregator) RecordRead(messageID, peerID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recordReadLocked(messageID, peerID)
}

func (a *Aggregator) recordDeliveredLocked(messageID, peerID string) bool {
	e := a.entry(messageID)
	if _, ok := e.delivered[peerID]; ok {
		return false
	}
	e.delivered[peerID] = struct{}{}
	return true
}

func (a *Aggregator) recordReadLocked(messageID, peerID string) bool {
	changed := a.recordDeliveredLocked(messageID, peerID)
	e := a.messages[messageID]
	if _, ok := e.read[peerID]; !ok {
		e.read[peerID] = struct{}{}
		changed = true
	}
	return changed
}

// Apply records a receipt event. Receipts with an unknown kind are ignored.
func (a *Aggregator) Apply(r model.Receipt) bool {
	switch r.Kind {
	case model.ReceiptDelivered:
		return a.RecordDelivered(r.MessageID, r.PeerID)
	case model.ReceiptRead:
		return a.RecordRead(r.MessageID, r.PeerID)
	default:
		return false
	}
}

// Seed merges the acknowledgement sets a server already knows for a message.
func (a *Aggregator) Seed(messageID string, deliveredTo, readBy []string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.entry(messageID)
	changed := false
	for _, peer := range deliveredTo {
		changed = a.recordDeliveredLocked(messageID, peer) || changed
	}
	for _, peer := range readBy {
		changed = a.recordReadLocked(messageID, peer) || changed
	}
	return changed
}

// Status returns the derived status for messageID. Unknown messages are sent.
func (a *Aggregator) Status(messageID string) Status {
	a.mu.RLock()
	defer a.mu.RUnlock()

	e, ok := a.messages[messageID]
	switch {
	case !ok:
		return StatusSent
	case len(e.read) > 0:
		return StatusRead
	case len(e.delivered) > 0:
		return StatusDelivered
	default:
		return StatusSent
	}
}

func (a *Aggregator) HasDelivered(messageID, peerID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.messages[messageID]
	if !ok {
		return false
	}
	_, ok = e.delivered[peerID]
	return ok
}

func (a *Aggregator) HasRead(messageID, peerID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.messages[messageID]
	if !ok {
		return false
	}
	_, ok = e.read[peerID]
	return ok
}
