// Package conn maintains the single websocket subscription to the chat
// service: it dials, authenticates, subscribes to every configured space,
// watches the heartbeat and reconnects with backoff until it is closed or the
// credential is rejected.
package conn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alfredjeanlab/chattobot/internal/backoff"
	"github.com/alfredjeanlab/chattobot/internal/idgen"
	"github.com/alfredjeanlab/chattobot/internal/model"
)

// Sink receives what the connection produces. Both methods are called from
// the read loop and must not block.
type Sink interface {
	// Ready is called each time the connection enters Subscribed.
	Ready()
	// Event is called for every decoded space event, in receipt order.
	Event(ev model.Event)
}

// Options configures a Manager.
type Options struct {
	// URL is the websocket endpoint, see WebsocketURL.
	URL string
	// Origin is sent as the Origin header, normally the instance URL.
	Origin string
	// Credential is the opaque session value sent as the chatto_session cookie.
	Credential string
	Spaces     []string

	Heartbeat        time.Duration
	HandshakeTimeout time.Duration
	Backoff          backoff.Policy

	Dialer *websocket.Dialer
	Logger *slog.Logger
}

// Manager owns the connection state machine.
type Manager struct {
	opts   Options
	sink   Sink
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	observers []func(from, to State)
	ws        *websocket.Conn
	attempt   int
	started   bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
}

// New returns a Manager in the Disconnected state.
func New(opts Options, sink Sink) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 30 * time.Second
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{Proxy: http.ProxyFromEnvironment}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		opts:   opts,
		sink:   sink,
		logger: opts.Logger,
		state:  Disconnected,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnStateChange registers fn to be called after every state transition.
// Observers run synchronously and must not call back into the Manager.
func (m *Manager) OnStateChange(fn func(from, to State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Attempt returns the number of consecutive failed connection attempts.
func (m *Manager) Attempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

// transition moves to next if the move is legal and reports whether it did.
func (m *Manager) transition(next State) bool {
	m.mu.Lock()
	from := m.state
	if !CanTransition(from, next) {
		m.mu.Unlock()
		if from != next {
			m.logger.Debug("conn: ignoring illegal transition", "from", from, "to", next)
		}
		return false
	}
	m.state = next
	if next == Subscribed {
		m.attempt = 0
	}
	observers := m.observers
	m.mu.Unlock()

	m.logger.Debug("conn: state changed", "from", from, "to", next)
	for _, fn := range observers {
		fn(from, next)
	}
	return true
}

func (m *Manager) closing() bool {
	return m.ctx.Err() != nil
}

// Run connects and keeps the subscription alive until Close is called or
// the credential is rejected. It returns nil after Close, and an
// *AuthenticationError on rejection (the manager is then Closed).
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("conn: Run called twice")
	}
	m.started = true
	m.mu.Unlock()
	defer close(m.done)

	stop := context.AfterFunc(ctx, m.Close)
	defer stop()

	if !m.transition(Connecting) {
		return nil
	}
	for {
		err := m.session()
		if m.closing() {
			return nil
		}
		if IsAuthentication(err) {
			m.logger.Error("conn: credential rejected, not retrying", "err", err)
			m.transition(Closed)
			return err
		}

		m.mu.Lock()
		n := m.attempt
		m.attempt++
		m.mu.Unlock()
		delay := m.opts.Backoff.Delay(n)

		if !m.transition(Reconnecting) {
			return nil
		}
		m.logger.Warn("conn: connection lost, reconnecting", "err", err, "attempt", n+1, "delay", delay)
		if backoff.Wait(m.ctx, delay) != nil {
			return nil
		}
		if !m.transition(Connecting) {
			return nil
		}
	}
}

// Close moves the manager to Closing: any backoff wait is cancelled and the
// live socket is closed so a blocked read returns. Safe to call repeatedly
// and from any goroutine.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.transition(Closing)
		m.cancel()
		m.mu.Lock()
		ws := m.ws
		m.mu.Unlock()
		if ws != nil {
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"),
				time.Now().Add(time.Second))
			_ = ws.Close()
		}
	})
}

// Finish closes the manager if needed, waits for Run to return and moves to
// Closed.
func (m *Manager) Finish() {
	m.Close()
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if started {
		<-m.done
	}
	m.transition(Closed)
}

func (m *Manager) setSocket(ws *websocket.Conn) {
	m.mu.Lock()
	m.ws = ws
	m.mu.Unlock()
}

// session runs one connection from dial to failure.
func (m *Manager) session() error {
	id := idgen.Connection()
	logger := m.logger.With("conn_id", id)

	header := http.Header{}
	header.Set("Cookie", "chatto_session="+m.opts.Credential)
	if m.opts.Origin != "" {
		header.Set("Origin", m.opts.Origin)
	}
	dialer := *m.opts.Dialer
	dialer.Subprotocols = []string{Subprotocol}
	dialer.HandshakeTimeout = m.opts.HandshakeTimeout

	ws, resp, err := dialer.DialContext(m.ctx, m.opts.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return &AuthenticationError{Status: resp.StatusCode}
		}
		return &TransientError{Op: "dial", Err: err}
	}
	m.setSocket(ws)
	defer func() {
		m.setSocket(nil)
		_ = ws.Close()
	}()
	if m.closing() {
		return ErrClosed
	}
	logger.Debug("conn: transport established", "url", m.opts.URL)

	if !m.transition(Authenticating) {
		return ErrClosed
	}
	if err := m.handshake(ws); err != nil {
		return err
	}
	for _, space := range m.opts.Spaces {
		msg, err := subscribeMessage(space)
		if err != nil {
			return fmt.Errorf("encoding subscribe for %s: %w", space, err)
		}
		if err := ws.WriteJSON(msg); err != nil {
			return &TransientError{Op: "subscribe", Err: err}
		}
	}
	if !m.transition(Subscribed) {
		return ErrClosed
	}
	logger.Info("conn: subscribed", "spaces", m.opts.Spaces)
	m.sink.Ready()

	return m.readLoop(ws, logger)
}

// handshake sends connection_init and waits for connection_ack.
func (m *Manager) handshake(ws *websocket.Conn) error {
	_ = ws.SetWriteDeadline(time.Now().Add(m.opts.HandshakeTimeout))
	if err := ws.WriteJSON(message{Type: msgConnectionInit, Payload: json.RawMessage(`{}`)}); err != nil {
		return &TransientError{Op: "connection_init", Err: err}
	}
	_ = ws.SetWriteDeadline(time.Time{})
	_ = ws.SetReadDeadline(time.Now().Add(m.opts.HandshakeTimeout))

	for {
		var msg message
		if err := ws.ReadJSON(&msg); err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) && (ce.Code == closeUnauthorized || ce.Code == closeForbidden) {
				return &AuthenticationError{Code: ce.Code, Reason: ce.Text}
			}
			return &TransientError{Op: "connection_ack", Err: err}
		}
		switch msg.Type {
		case msgConnectionAck:
			return nil
		case msgError:
			return &AuthenticationError{Reason: string(msg.Payload)}
		case msgPing:
			if err := ws.WriteJSON(message{Type: msgPong}); err != nil {
				return &TransientError{Op: "pong", Err: err}
			}
		default:
			m.logger.Debug("conn: ignoring message before ack", "type", msg.Type)
		}
	}
}

// readLoop processes frames until the socket fails. Every frame and every
// websocket pong extends the read deadline by one heartbeat interval.
func (m *Manager) readLoop(ws *websocket.Conn, logger *slog.Logger) error {
	heartbeat := m.opts.Heartbeat
	extend := func() { _ = ws.SetReadDeadline(time.Now().Add(heartbeat)) }
	extend()
	ws.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		ticker := time.NewTicker(heartbeat / 2)
		defer ticker.Stop()
		for {
			select {
			case <-stopPing:
				return
			case <-ticker.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(heartbeat/2)); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if m.closing() {
				return ErrClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return &TransientError{Op: "heartbeat", Err: fmt.Errorf("no activity for %s", heartbeat)}
			}
			return &TransientError{Op: "read", Err: err}
		}
		extend()

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("conn: undecodable frame", "err", err)
			continue
		}
		switch msg.Type {
		case msgNext:
			m.handleNext(msg, logger)
		case msgPing:
			if err := ws.WriteJSON(message{Type: msgPong}); err != nil {
				return &TransientError{Op: "pong", Err: err}
			}
		case msgPong:
		case msgError:
			logger.Error("conn: subscription error", "id", msg.ID, "payload", string(msg.Payload))
		case msgComplete:
			return &TransientError{Op: "read", Err: fmt.Errorf("subscription %s completed by server", msg.ID)}
		default:
			logger.Debug("conn: ignoring message", "type", msg.Type)
		}
	}
}

func (m *Manager) handleNext(msg message, logger *slog.Logger) {
	var p nextPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		logger.Warn("conn: undecodable next payload", "id", msg.ID, "err", err)
		return
	}
	if len(p.Errors) > 0 {
		logger.Error("conn: graphql errors in next", "id", msg.ID, "message", p.Errors[0].Message)
		return
	}
	if len(p.Data.MySpaceEvents) == 0 || string(p.Data.MySpaceEvents) == "null" {
		return
	}
	ev, err := model.ParseSpaceEvent(p.Data.MySpaceEvents, spaceOf(msg.ID))
	if err != nil {
		logger.Warn("conn: dropping event", "err", err)
		return
	}
	m.sink.Event(ev)
}
