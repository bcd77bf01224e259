package chatclient

import (
	"github.com/mahaj/chat-session/pkg/model"
	"github.com/mahaj/chat-session/pkg/receipts"
)

// Observer is how a view layer learns about derived state. Methods are called
// from transport and timer goroutines without client locks held and must not
// block for long. MessageAdded must not send from the same room.
type Observer interface {
	StateChanged(state State)
	MessageAdded(room string, msg model.Message)
	StatusChanged(room, messageID string, status receipts.Status)
	TypingChanged(room string, peers []string)
	PresenceChanged(p model.Presence)
}

// NopObserver ignores everything. Embed it to implement only some methods.
type NopObserver struct{}

func (NopObserver) StateChanged(State)                            {}
func (NopObserver) MessageAdded(string, model.Message)            {}
func (NopObserver) StatusChanged(string, string, receipts.Status) {}
func (NopObserver) TypingChanged(string, []string)                {}
func (NopObserver) PresenceChanged(model.Presence)                {}
