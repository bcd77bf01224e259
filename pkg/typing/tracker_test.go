package typing

import (
	"testing"
	"time"

	"github.com/mahaj/chat-session/pkg/clock"
	"github.com/stretchr/testify/assert"
)

func TestTracker_StartStop(t *testing.T) {
	c := clock.NewManual(time.Unix(0, 0))
	var changes [][]string
	tr := NewTracker(c, 3*time.Second, func(p []string) { changes = append(changes, p) })

	tr.OnRemoteSignal("bob", true)
	tr.OnRemoteSignal("alice", true)
	assert.Equal(t, []string{"alice", "bob"}, tr.Peers())

	tr.OnRemoteSignal("bob", false)
	assert.Equal(t, []string{"alice"}, tr.Peers())

	tr.OnRemoteSignal("bob", false)
	assert.Len(t, changes, 3, "stop for an absent peer is not a change")
}

func TestTracker_ExpiresWithoutStopSignal(t *testing.T) {
	c := clock.NewManual(time.Unix(0, 0))
	tr := NewTracker(c, 3*time.Second, nil)

	tr.OnRemoteSignal("bob", true)
	c.Advance(2 * time.Second)
	assert.Equal(t, []string{"bob"}, tr.Peers())

	c.Advance(time.Second)
	assert.Empty(t, tr.Peers())
	assert.Equal(t, 0, c.Pending())
}

func TestTracker_RepeatedStartExtendsExpiry(t *testing.T) {
	c := clock.NewManual(time.Unix(0, 0))
	tr := NewTracker(c, 3*time.Second, nil)

	tr.OnRemoteSignal("bob", true)
	c.Advance(2 * time.Second)
	tr.OnRemoteSignal("bob", true)
	assert.Equal(t, 1, c.Pending())

	c.Advance(2 * time.Second)
	assert.Equal(t, []string{"bob"}, tr.Peers())

	c.Advance(time.Second)
	assert.Empty(t, tr.Peers())
}

func TestTracker_Stop(t *testing.T) {
	c := clock.NewManual(time.Unix(0, 0))
	tr := NewTracker(c, 3*time.Second, nil)

	tr.OnRemoteSignal("bob", true)
	tr.Stop()

	assert.Empty(t, tr.Peers())
	assert.Equal(t, 0, c.Pending())
}
