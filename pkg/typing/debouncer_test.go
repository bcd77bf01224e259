package typing

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/mahaj/chat-session/pkg/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	signals []bool
	err     error
}

func (r *recorder) emit(isTyping bool) error {
	if r.err != nil {
		return r.err
	}
	r.signals = append(r.signals, isTyping)
	return nil
}

func newTestDebouncer() (*Debouncer, *clock.Manual, *recorder) {
	c := clock.NewManual(time.Unix(0, 0))
	rec := &recorder{}
	return NewDebouncer(c, time.Second, rec.emit, zerolog.Nop()), c, rec
}

func TestDebouncer_SingleKeystroke(t *testing.T) {
	d, c, rec := newTestDebouncer()

	require.NoError(t, d.OnLocalInput())
	assert.Equal(t, []bool{true}, rec.signals)

	c.Advance(time.Second)
	assert.Equal(t, []bool{true, false}, rec.signals)
	assert.Equal(t, 0, c.Pending())
}

func TestDebouncer_BurstEmitsExactlyTwoSignals(t *testing.T) {
	d, c, rec := newTestDebouncer()

	for i := 0; i < 20; i++ {
		require.NoError(t, d.OnLocalInput())
		c.Advance(200 * time.Millisecond)
		assert.LessOrEqual(t, c.Pending(), 1)
	}
	assert.Equal(t, []bool{true}, rec.signals)

	c.Advance(time.Second)
	assert.Equal(t, []bool{true, false}, rec.signals)
}

func TestDebouncer_OnSendStopsImmediately(t *testing.T) {
	d, c, rec := newTestDebouncer()

	require.NoError(t, d.OnLocalInput())
	require.NoError(t, d.OnSend())
	assert.Equal(t, []bool{true, false}, rec.signals)
	assert.Equal(t, 0, c.Pending())

	c.Advance(5 * time.Second)
	assert.Equal(t, []bool{true, false}, rec.signals, "cancelled timer must not emit")
}

func TestDebouncer_OnSendWithoutTypingIsSilent(t *testing.T) {
	d, _, rec := newTestDebouncer()

	require.NoError(t, d.OnSend())
	assert.Empty(t, rec.signals)
}

func TestDebouncer_NewBurstAfterQuietPeriod(t *testing.T) {
	d, c, rec := newTestDebouncer()

	require.NoError(t, d.OnLocalInput())
	c.Advance(2 * time.Second)
	require.NoError(t, d.OnLocalInput())
	c.Advance(2 * time.Second)

	assert.Equal(t, []bool{true, false, true, false}, rec.signals)
}

func TestDebouncer_StopCancelsWithoutSignal(t *testing.T) {
	d, c, rec := newTestDebouncer()

	require.NoError(t, d.OnLocalInput())
	d.Stop()
	c.Advance(5 * time.Second)

	assert.Equal(t, []bool{true}, rec.signals)
	assert.False(t, d.Typing())
}

func TestDebouncer_FailedStartRetriesOnNextInput(t *testing.T) {
	d, c, rec := newTestDebouncer()
	rec.err = errors.New("not connected")

	assert.Error(t, d.OnLocalInput())
	assert.False(t, d.Typing())
	assert.Equal(t, 0, c.Pending())

	rec.err = nil
	require.NoError(t, d.OnLocalInput())
	assert.Equal(t, []bool{true}, rec.signals)
}

func TestDebouncer_FailedQuietStopIsLogged(t *testing.T) {
	var logs bytes.Buffer
	c := clock.NewManual(time.Unix(0, 0))
	rec := &recorder{}
	d := NewDebouncer(c, time.Second, rec.emit, zerolog.New(&logs).Level(zerolog.DebugLevel))

	require.NoError(t, d.OnLocalInput())
	rec.err = errors.New("not connected")
	c.Advance(time.Second)

	assert.False(t, d.Typing())
	assert.Equal(t, []bool{true}, rec.signals)
	assert.Contains(t, logs.String(), "typing stop not sent")
	assert.Contains(t, logs.String(), "not connected")
}
