package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mahaj/chat-session/pkg/clock"
)

// Router receives every inbound frame of the live connection.
type Router interface {
	Route(destination string, body []byte)
}

type SessionConfig struct {
	URL         string
	Backoff     Backoff
	DialTimeout time.Duration
	Clock       clock.Clock
	Logger      zerolog.Logger
	Metrics     *Metrics

	// OnStateChange is called after each transition, without locks held.
	OnStateChange func(State)
}

// Session owns the single channel to the backend. It runs the connection
// state machine and reconnects with backoff; at most one reconnect timer is
// ever outstanding.
//
// Every connect attempt and every Disconnect bumps a generation counter.
// Dials, frames, close notifications and timers carry the generation they
// were started under and are ignored once it is stale.
type Session struct {
	transport   Transport
	url         string
	backoff     Backoff
	dialTimeout time.Duration
	clock       clock.Clock
	log         zerolog.Logger
	metrics     *Metrics
	onState     func(State)

	mu          sync.Mutex
	state       State
	conn        Conn
	gen         uint64
	connGen     uint64
	timer       clock.Timer
	parent      context.Context
	cancelDial  context.CancelFunc
	attempt     int
	token       string
	onConnected func()
	router      Router
	hooks       []func()
}

func NewSession(t Transport, cfg SessionConfig) *Session {
	if cfg.Backoff == nil {
		cfg.Backoff = FixedBackoff{Delay: DefaultReconnectDelay}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}
	return &Session{
		transport:   t,
		url:         cfg.URL,
		backoff:     cfg.Backoff,
		dialTimeout: cfg.DialTimeout,
		clock:       cfg.Clock,
		log:         cfg.Logger.With().Str("component", "session").Logger(),
		metrics:     cfg.Metrics,
		onState:     cfg.OnStateChange,
	}
}

// SetRouter installs the receiver for inbound frames. Call before Connect.
func (s *Session) SetRouter(r Router) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.router = r
}

// OnHandshake adds a hook run after every successful handshake, before the
// caller's onConnected.
func (s *Session) OnHandshake(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect opens the channel with the given credential. It is a no-op while
// connected or connecting. onConnected runs after every successful handshake,
// including those made by later reconnects. Connection failures are not
// returned; they move the session to ReconnectPending. Reconnects stop once
// ctx is done.
func (s *Session) Connect(ctx context.Context, token string, onConnected func()) {
	s.mu.Lock()
	if s.state == Connected || s.state == Connecting {
		s.mu.Unlock()
		return
	}
	s.token = token
	s.onConnected = onConnected
	s.parent = ctx
	s.stopTimerLocked()
	gen, dialCtx := s.beginAttemptLocked(ctx)
	s.mu.Unlock()

	s.notify(Connecting)
	s.dial(dialCtx, gen, token)
}

// Disconnect closes the channel, cancels any pending reconnect and leaves the
// session Disconnected. It is idempotent.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.gen++
	s.stopTimerLocked()
	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}
	conn := s.conn
	s.conn = nil
	s.connGen = 0
	s.attempt = 0
	prev := s.state
	s.setStateLocked(Disconnected)
	s.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			s.log.Debug().Err(err).Msg("close connection")
		}
	}
	if prev != Disconnected {
		s.log.Info().Msg("disconnected")
		s.notify(Disconnected)
	}
}

// Send encodes payload as JSON and writes it to destination. It fails fast
// with ErrNotConnected unless the session is connected.
func (s *Session) Send(destination string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload for %s: %w", destination, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Connected || s.conn == nil {
		return ErrNotConnected
	}
	if err := s.conn.Send(destination, body); err != nil {
		return fmt.Errorf("send to %s: %w", destination, err)
	}
	return nil
}

// attach subscribes destination on the live channel and returns the
// generation of that channel.
func (s *Session) attach(destination string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Connected || s.conn == nil {
		return 0, ErrNotConnected
	}
	if err := s.conn.Subscribe(destination); err != nil {
		return 0, fmt.Errorf("subscribe %s: %w", destination, err)
	}
	return s.connGen, nil
}

// detach unsubscribes destination if gen is still the live channel.
func (s *Session) detach(destination string, gen uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == 0 || gen != s.connGen || s.conn == nil {
		return nil
	}
	if err := s.conn.Unsubscribe(destination); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", destination, err)
	}
	return nil
}

func (s *Session) isLive(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen != 0 && gen == s.connGen && s.state == Connected
}

func (s *Session) beginAttemptLocked(parent context.Context) (uint64, context.Context) {
	s.gen++
	if s.cancelDial != nil {
		s.cancelDial()
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancelDial = cancel
	s.setStateLocked(Connecting)
	return s.gen, ctx
}

func (s *Session) dial(ctx context.Context, gen uint64, token string) {
	if s.dialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.dialTimeout)
		defer cancel()
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	h := &connHandler{s: s, gen: gen}
	conn, err := s.transport.Dial(ctx, s.url, header, h)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		s.log.Debug().Msg("discarding superseded connection attempt")
		return
	}
	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}

	if err == nil && h.closed {
		err = fmt.Errorf("connection closed during handshake")
		_ = conn.Close()
	}
	if err != nil {
		s.log.Warn().Err(err).Int("attempt", s.attempt+1).Msg("connection failed")
		var st State
		if s.parentDoneLocked() {
			st = s.abandonLocked()
		} else {
			st = s.scheduleReconnectLocked()
		}
		s.mu.Unlock()
		s.notify(st)
		return
	}

	s.conn = conn
	s.connGen = gen
	s.attempt = 0
	s.stopTimerLocked()
	s.setStateLocked(Connected)
	hooks := slices.Clone(s.hooks)
	onConnected := s.onConnected
	s.mu.Unlock()

	s.log.Info().Str("url", s.url).Msg("connected")
	s.notify(Connected)

	for _, hook := range hooks {
		hook()
	}
	if onConnected != nil {
		onConnected()
	}
}

func (s *Session) scheduleReconnectLocked() State {
	s.stopTimerLocked()
	s.attempt++

	delay := s.backoff.NextDelay(s.attempt)
	if delay <= 0 {
		s.log.Error().Int("attempts", s.attempt-1).Msg("reconnect attempts exhausted")
		s.attempt = 0
		s.setStateLocked(Disconnected)
		return Disconnected
	}

	gen := s.gen
	s.timer = s.clock.AfterFunc(delay, func() { s.reconnect(gen) })
	s.metrics.reconnects.Inc()
	s.setStateLocked(ReconnectPending)
	s.log.Info().Dur("delay", delay).Int("attempt", s.attempt).Msg("reconnect scheduled")
	return ReconnectPending
}

func (s *Session) reconnect(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.state != ReconnectPending {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	if s.parentDoneLocked() {
		st := s.abandonLocked()
		s.mu.Unlock()
		s.log.Info().Msg("connect context done, not reconnecting")
		s.notify(st)
		return
	}
	next, ctx := s.beginAttemptLocked(s.parent)
	token := s.token
	s.mu.Unlock()

	s.log.Info().Msg("attempting to reconnect")
	s.notify(Connecting)
	s.dial(ctx, next, token)
}

func (s *Session) parentDoneLocked() bool {
	return s.parent != nil && s.parent.Err() != nil
}

func (s *Session) abandonLocked() State {
	s.stopTimerLocked()
	s.attempt = 0
	s.setStateLocked(Disconnected)
	return Disconnected
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) setStateLocked(st State) {
	s.state = st
	s.metrics.state.Set(float64(st))
}

func (s *Session) notify(st State) {
	if s.onState != nil {
		s.onState(st)
	}
}

// connHandler binds a Conn's callbacks to the generation that dialed it.
type connHandler struct {
	s   *Session
	gen uint64

	// closed is guarded by s.mu.
	closed bool
}

func (h *connHandler) HandleFrame(destination string, body []byte) {
	s := h.s
	s.mu.Lock()
	current := h.gen == s.gen
	router := s.router
	s.mu.Unlock()

	if !current {
		s.metrics.framesDropped.WithLabelValues(dropStale).Inc()
		return
	}
	if router != nil {
		router.Route(destination, body)
	}
}

func (h *connHandler) HandleClose(err error) {
	s := h.s
	s.mu.Lock()
	h.closed = true
	if h.gen != s.connGen || s.state != Connected {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.connGen = 0
	s.log.Warn().Err(err).Msg("connection lost")
	var st State
	if s.parentDoneLocked() {
		st = s.abandonLocked()
	} else {
		st = s.scheduleReconnectLocked()
	}
	s.mu.Unlock()

	s.notify(st)
}
