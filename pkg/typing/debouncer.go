// Package typing turns keystrokes into typing start/stop signals and tracks
// which remote peers are currently typing.
package typing

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mahaj/chat-session/pkg/clock"
)

const (
	DefaultQuiet  = time.Second
	DefaultExpiry = 3 * DefaultQuiet
)

// Debouncer emits typing=true on the first keystroke after a quiet period and
// a single typing=false once input stops for the quiet interval or the message
// is sent. It owns at most one timer.
type Debouncer struct {
	clock clock.Clock
	quiet time.Duration
	emit  func(isTyping bool) error
	log   zerolog.Logger

	mu     sync.Mutex
	typing bool
	timer  clock.Timer
	gen    uint64
}

// NewDebouncer builds a Debouncer. Stops emitted by the quiet timer have no
// caller to return to; their failures are logged to log at debug level.
func NewDebouncer(c clock.Clock, quiet time.Duration, emit func(isTyping bool) error, log zerolog.Logger) *Debouncer {
	if quiet <= 0 {
		quiet = DefaultQuiet
	}
	return &Debouncer{clock: c, quiet: quiet, emit: emit, log: log}
}

// OnLocalInput is called on every keystroke. The returned error comes from
// emitting typing=true; a failed start is retried on the next keystroke.
func (d *Debouncer) OnLocalInput() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.typing {
		if err := d.emit(true); err != nil {
			return err
		}
		d.typing = true
	}

	d.stopLocked()
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.quiet, func() { d.fire(gen) })
	return nil
}

// OnSend cancels the quiet timer and emits typing=false if a start was the
// last signal sent.
func (d *Debouncer) OnSend() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	if !d.typing {
		return nil
	}
	d.typing = false
	return d.emit(false)
}

// Stop cancels the timer without emitting anything.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.typing = false
}

// Typing reports whether typing=true was the last signal sent.
func (d *Debouncer) Typing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.typing
}

func (d *Debouncer) stopLocked() {
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// A timer that lost the race with Stop/OnSend/OnLocalInput is stale.
	if gen != d.gen {
		return
	}
	d.timer = nil
	if !d.typing {
		return
	}
	d.typing = false
	if err := d.emit(false); err != nil {
		d.log.Debug().Err(err).Msg("typing stop not sent")
	}
}
