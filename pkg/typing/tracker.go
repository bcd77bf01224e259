package typing

import (
	"sort"
	"sync"
	"time"

	"github.com/mahaj/chat-session/pkg/clock"
)

type peerState struct {
	expires time.Time
	timer   clock.Timer
	gen     uint64
}

// Tracker holds the set of remote peers currently typing. Every start signal
// (re)arms an expiry so a lost stop signal cannot leave a peer stuck.
type Tracker struct {
	clock    clock.Clock
	expiry   time.Duration
	onChange func(peers []string)

	mu    sync.Mutex
	gen   uint64
	peers map[string]*peerState
}

// NewTracker creates a Tracker. onChange, if set, is called with the new peer
// set whenever membership changes; it runs without the tracker lock held.
func NewTracker(c clock.Clock, expiry time.Duration, onChange func(peers []string)) *Tracker {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Tracker{
		clock:    c,
		expiry:   expiry,
		onChange: onChange,
		peers:    make(map[string]*peerState),
	}
}

// OnRemoteSignal applies a typing signal from peerID.
func (t *Tracker) OnRemoteSignal(peerID string, isTyping bool) {
	t.mu.Lock()

	p, present := t.peers[peerID]
	if present {
		p.timer.Stop()
		delete(t.peers, peerID)
	}

	if isTyping {
		t.gen++
		gen := t.gen
		t.peers[peerID] = &peerState{
			expires: t.clock.Now().Add(t.expiry),
			timer:   t.clock.AfterFunc(t.expiry, func() { t.expire(peerID, gen) }),
			gen:     gen,
		}
	}

	changed := present != isTyping
	snapshot := t.snapshotLocked()
	t.mu.Unlock()

	if changed {
		t.notify(snapshot)
	}
}

// Peers returns the sorted set of peers currently typing.
func (t *Tracker) Peers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Stop cancels every expiry timer and empties the set.
func (t *Tracker) Stop() {
	t.mu.Lock()
	had := len(t.peers) > 0
	for id, p := range t.peers {
		p.timer.Stop()
		delete(t.peers, id)
	}
	t.mu.Unlock()

	if had {
		t.notify(nil)
	}
}

func (t *Tracker) expire(peerID string, gen uint64) {
	t.mu.Lock()
	p, ok := t.peers[peerID]
	if !ok || p.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.peers, peerID)
	snapshot := t.snapshotLocked()
	t.mu.Unlock()

	t.notify(snapshot)
}

func (t *Tracker) snapshotLocked() []string {
	now := t.clock.Now()
	out := make([]string, 0, len(t.peers))
	for id, p := range t.peers {
		if now.Before(p.expires) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (t *Tracker) notify(peers []string) {
	if t.onChange != nil {
		t.onChange(peers)
	}
}
