package snowflake

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNode_MonotonicWithinTick(t *testing.T) {
	n, err := NewNode(7)
	require.NoError(t, err)
	n.now = func() int64 { return epoch + 1000 }

	a := n.Generate()
	b := n.Generate()
	assert.Greater(t, b, a)
	assert.Equal(t, time.UnixMilli(epoch+1000), a.Time())
}

func TestNode_ClockBackwards(t *testing.T) {
	n, err := NewNode(1)
	require.NoError(t, err)

	ms := epoch + 5000
	n.now = func() int64 { return ms }
	a := n.Generate()
	ms -= 10
	b := n.Generate()
	assert.Greater(t, b, a)
}

func TestNewNode_Range(t *testing.T) {
	_, err := NewNode(-1)
	assert.Error(t, err)
	_, err = NewNode(1024)
	assert.Error(t, err)
}

func TestParseID(t *testing.T) {
	n, err := NewNode(3)
	require.NoError(t, err)
	id := n.Generate()

	got, err := ParseID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	for _, bad := range []string{"", "abc", "0", "-4"} {
		_, err := ParseID(bad)
		assert.Error(t, err, bad)
	}
}
