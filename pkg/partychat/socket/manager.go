// Package socket maintains the realtime chat connection: handshake,
// heartbeats, subscription lifecycle and automatic reconnection.
package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/lfgparty/partychat/pkg/partychat/clock"
	"github.com/lfgparty/partychat/pkg/partychat/o11y"
	"github.com/lfgparty/partychat/pkg/partychat/wire"
)

// State is the connection lifecycle phase.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// SessionProvider returns the bearer token for the current session. An
// error or empty token means no session is active, which suppresses both
// connecting and reconnecting.
type SessionProvider func(ctx context.Context) (string, error)

// ErrorHandler receives server ERROR frames. The connection stays up.
type ErrorHandler func(frame *wire.Frame)

const protocolVersion = "1.2"

// Manager owns the chat socket. It dials, performs the CONNECT handshake,
// emits heartbeats, routes MESSAGE frames to subscription handlers, and
// schedules reconnection after an unexpected close.
type Manager struct {
	url               string
	logger            *zap.Logger
	clk               clock.Clock
	heartbeatInterval time.Duration
	reconnectDelay    time.Duration
	dialTimeout       time.Duration
	session           SessionProvider
	dialer            Dialer
	metrics           *managerMetrics
	errorHandler      ErrorHandler

	state int32

	mu             sync.Mutex
	conn           Conn
	ctx            context.Context
	cancel         context.CancelFunc
	heartbeatTimer clock.Timer
	reconnectTimer clock.Timer
	closed         bool

	writeMu sync.Mutex

	registry *Registry
}

type managerMetrics struct {
	framesReceived    o11y.Counter
	framesDropped     o11y.Counter
	reconnects        o11y.Counter
	sends             o11y.Counter
	liveSubscriptions o11y.Gauge
}

// Builder configures a Manager.
type Builder struct {
	url               string
	logger            *zap.Logger
	clk               clock.Clock
	heartbeatInterval time.Duration
	reconnectDelay    time.Duration
	dialTimeout       time.Duration
	session           SessionProvider
	dialer            Dialer
	provider          o11y.MetricsProvider
	errorHandler      ErrorHandler
}

// NewManager creates a new connection manager builder.
func NewManager() *Builder {
	return &Builder{
		logger:            zap.NewNop(),
		clk:               clock.System(),
		heartbeatInterval: 10 * time.Second,
		reconnectDelay:    5 * time.Second,
		dialTimeout:       10 * time.Second,
		dialer:            websocketDialer{},
	}
}

// WithURL sets the socket endpoint, e.g. "wss://api.example.com/ws".
func (b *Builder) WithURL(url string) *Builder {
	b.url = url
	return b
}

// WithLogger sets the logger for the manager.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithClock sets the time source, replaceable in tests.
func (b *Builder) WithClock(clk clock.Clock) *Builder {
	if clk != nil {
		b.clk = clk
	}
	return b
}

// WithHeartbeatInterval sets the client keepalive cadence.
func (b *Builder) WithHeartbeatInterval(interval time.Duration) *Builder {
	if interval > 0 {
		b.heartbeatInterval = interval
	}
	return b
}

// WithReconnectDelay sets the fixed delay before a reconnect attempt.
func (b *Builder) WithReconnectDelay(delay time.Duration) *Builder {
	if delay > 0 {
		b.reconnectDelay = delay
	}
	return b
}

// WithDialTimeout bounds each dial attempt.
func (b *Builder) WithDialTimeout(timeout time.Duration) *Builder {
	if timeout > 0 {
		b.dialTimeout = timeout
	}
	return b
}

// WithSessionProvider sets the session token source. Without one the
// manager connects unauthenticated and always considers a session active.
func (b *Builder) WithSessionProvider(provider SessionProvider) *Builder {
	b.session = provider
	return b
}

// WithDialer overrides the transport, replaceable in tests.
func (b *Builder) WithDialer(dialer Dialer) *Builder {
	if dialer != nil {
		b.dialer = dialer
	}
	return b
}

// WithMetrics enables connection metrics.
func (b *Builder) WithMetrics(provider o11y.MetricsProvider) *Builder {
	b.provider = provider
	return b
}

// WithErrorHandler sets the callback for server ERROR frames.
func (b *Builder) WithErrorHandler(handler ErrorHandler) *Builder {
	b.errorHandler = handler
	return b
}

// Build creates the Manager.
func (b *Builder) Build() (*Manager, error) {
	if b.url == "" {
		return nil, fmt.Errorf("socket URL is required")
	}

	m := &Manager{
		url:               b.url,
		logger:            b.logger,
		clk:               b.clk,
		heartbeatInterval: b.heartbeatInterval,
		reconnectDelay:    b.reconnectDelay,
		dialTimeout:       b.dialTimeout,
		session:           b.session,
		dialer:            b.dialer,
		errorHandler:      b.errorHandler,
	}
	if b.provider != nil {
		m.metrics = &managerMetrics{
			framesReceived:    b.provider.Counter("chat_socket_frames_received"),
			framesDropped:     b.provider.Counter("chat_socket_frames_dropped"),
			reconnects:        b.provider.Counter("chat_socket_reconnects"),
			sends:             b.provider.Counter("chat_socket_sends"),
			liveSubscriptions: b.provider.Gauge("chat_socket_live_subscriptions"),
		}
	}
	m.registry = newRegistry(m)
	return m, nil
}

// Registry returns the subscription registry owned by this manager.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Subscribe registers a handler through the manager's registry.
func (m *Manager) Subscribe(destination string, handler Handler) SubscriptionID {
	return m.registry.Subscribe(destination, handler)
}

// Unsubscribe removes a subscription through the manager's registry.
func (m *Manager) Unsubscribe(id SubscriptionID) {
	m.registry.Unsubscribe(id)
}

// State returns the current connection state.
func (m *Manager) State() State {
	return State(atomic.LoadInt32(&m.state))
}

// Connected reports whether the handshake has completed.
func (m *Manager) Connected() bool {
	return m.State() == StateConnected
}

func (m *Manager) storeState(s State) {
	atomic.StoreInt32(&m.state, int32(s))
}

// Connect dials the socket and starts the handshake. It is a no-op unless
// the manager is disconnected, and refuses when no session is active.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !m.sessionActive(ctx) {
		return ErrNoSession
	}
	return m.connect(ctx)
}

func (m *Manager) connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&m.state, int32(StateDisconnected), int32(StateConnecting)) {
		return nil
	}

	dialCtx, dialCancel := context.WithTimeout(ctx, m.dialTimeout)
	defer dialCancel()

	header := http.Header{}
	if m.session != nil {
		token, err := m.session(dialCtx)
		if err != nil {
			m.storeState(StateDisconnected)
			return fmt.Errorf("session token: %w", err)
		}
		header.Set("Authorization", "Bearer "+token)
	}

	conn, err := m.dialer.Dial(dialCtx, m.url, header)
	if err != nil {
		m.storeState(StateDisconnected)
		return fmt.Errorf("dial %s: %w", m.url, err)
	}

	connCtx, connCancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.conn = conn
	m.ctx = connCtx
	m.cancel = connCancel
	m.mu.Unlock()

	// Heartbeat header advertises the client-to-server cadence only; this
	// client does not expect server pings.
	connectFrame := wire.Encode(wire.CommandConnect, map[string]string{
		wire.HeaderAcceptVersion: protocolVersion,
		wire.HeaderHeartBeat:     fmt.Sprintf("%d,0", m.heartbeatInterval.Milliseconds()),
	}, "")
	if err := m.writeRaw(connectFrame); err != nil {
		m.teardownConn()
		m.storeState(StateDisconnected)
		return fmt.Errorf("handshake: %w", err)
	}

	m.logger.Info("chat socket dialed", zap.String("url", m.url))

	go m.readLoop(conn, connCtx)

	return nil
}

// readLoop processes incoming frames in arrival order. Handlers run on
// this goroutine.
func (m *Manager) readLoop(conn Conn, ctx context.Context) {
	for {
		raw, err := conn.Read(ctx)
		if err != nil {
			m.handleDisconnect(err)
			return
		}

		frame, err := wire.Decode(raw)
		if err != nil {
			m.logger.Warn("dropping malformed frame", zap.Error(err))
			m.countDropped()
			continue
		}
		if frame == nil {
			// Server heartbeat ping.
			continue
		}

		if m.metrics != nil {
			m.metrics.framesReceived.Add(ctx, 1)
		}

		switch frame.Command {
		case wire.CommandConnected:
			m.handleConnected()
		case wire.CommandMessage:
			m.handleMessage(frame)
		case wire.CommandError:
			m.logger.Error("server error frame",
				zap.String("message", frame.Header("message")),
				zap.String("body", frame.Body))
			if m.errorHandler != nil {
				m.errorHandler(frame)
			}
		default:
			m.logger.Debug("ignoring frame", zap.String("command", frame.Command))
		}
	}
}

func (m *Manager) handleConnected() {
	m.storeState(StateConnected)
	m.logger.Info("chat socket connected")

	m.scheduleHeartbeat()

	// Replay the live subscription set so a reconnect restores exactly
	// what the caller still holds.
	for _, sub := range m.registry.snapshot() {
		m.sendSubscribe(sub.id, sub.destination)
	}
}

func (m *Manager) handleMessage(frame *wire.Frame) {
	sid := frame.Header(wire.HeaderSubscription)
	handler, ok := m.registry.lookup(sid)
	if !ok {
		m.logger.Debug("no handler for subscription", zap.String("subscription", sid))
		m.countDropped()
		return
	}

	destination := frame.Header(wire.HeaderDestination)
	payload := json.RawMessage(frame.Body)
	if !json.Valid(payload) {
		// Deliver non-JSON bodies as a JSON string value.
		payload, _ = json.Marshal(frame.Body)
	}
	handler(destination, payload)
}

// handleDisconnect runs when the read loop exits. Close owns its own
// teardown, so a cancel-driven exit during Close is ignored here.
func (m *Manager) handleDisconnect(err error) {
	m.mu.Lock()
	if m.closed || m.State() == StateClosing {
		m.mu.Unlock()
		return
	}
	if m.heartbeatTimer != nil {
		m.heartbeatTimer.Stop()
		m.heartbeatTimer = nil
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.mu.Unlock()

	m.storeState(StateDisconnected)
	m.logger.Warn("chat socket closed", zap.Error(err))

	if !m.sessionActive(context.Background()) {
		m.logger.Info("no active session, not reconnecting")
		return
	}

	m.mu.Lock()
	if !m.closed {
		m.reconnectTimer = m.clk.AfterFunc(m.reconnectDelay, m.reconnect)
	}
	m.mu.Unlock()
}

func (m *Manager) reconnect() {
	if m.State() != StateDisconnected {
		return
	}
	if m.metrics != nil {
		m.metrics.reconnects.Add(context.Background(), 1)
	}
	m.logger.Info("reconnecting chat socket")

	if err := m.connect(context.Background()); err != nil {
		m.logger.Warn("reconnect failed", zap.Error(err))
		m.mu.Lock()
		if !m.closed {
			m.reconnectTimer = m.clk.AfterFunc(m.reconnectDelay, m.reconnect)
		}
		m.mu.Unlock()
	}
}

// Send marshals payload as JSON and sends it to a destination. It fails
// immediately when the connection is down; messages are never queued.
func (m *Manager) Send(destination string, payload any) error {
	if m.State() != StateConnected {
		m.logger.Warn("send while disconnected", zap.String("destination", destination))
		return ErrNotConnected
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	frame := wire.Encode(wire.CommandSend, map[string]string{
		wire.HeaderDestination: destination,
		wire.HeaderContentType: "application/json",
	}, string(body))
	if err := m.writeRaw(frame); err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.sends.Add(context.Background(), 1)
	}
	return nil
}

// Close tears the connection down for good, the logout path. It cancels
// any pending reconnect and is safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.storeState(StateClosing)

	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	if m.heartbeatTimer != nil {
		m.heartbeatTimer.Stop()
		m.heartbeatTimer = nil
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.mu.Unlock()

	m.storeState(StateDisconnected)
	m.logger.Info("chat socket closed by client")
	return nil
}

func (m *Manager) scheduleHeartbeat() {
	m.mu.Lock()
	if !m.closed {
		m.heartbeatTimer = m.clk.AfterFunc(m.heartbeatInterval, m.sendHeartbeat)
	}
	m.mu.Unlock()
}

func (m *Manager) sendHeartbeat() {
	if m.State() != StateConnected {
		return
	}
	if err := m.writeRaw(wire.Heartbeat); err != nil {
		m.logger.Warn("heartbeat write failed", zap.Error(err))
		return
	}
	m.scheduleHeartbeat()
}

func (m *Manager) sendSubscribe(id SubscriptionID, destination string) {
	frame := wire.Encode(wire.CommandSubscribe, map[string]string{
		wire.HeaderID:          id.String(),
		wire.HeaderDestination: destination,
	}, "")
	if err := m.writeRaw(frame); err != nil {
		m.logger.Warn("subscribe write failed",
			zap.String("destination", destination), zap.Error(err))
	}
}

func (m *Manager) sendUnsubscribe(id SubscriptionID) {
	frame := wire.Encode(wire.CommandUnsubscribe, map[string]string{
		wire.HeaderID: id.String(),
	}, "")
	if err := m.writeRaw(frame); err != nil {
		m.logger.Debug("unsubscribe write failed", zap.Error(err))
	}
}

func (m *Manager) writeRaw(raw string) error {
	m.mu.Lock()
	conn := m.conn
	ctx := m.ctx
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.Write(ctx, raw)
}

func (m *Manager) teardownConn() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.mu.Unlock()
}

func (m *Manager) sessionActive(ctx context.Context) bool {
	if m.session == nil {
		return true
	}
	token, err := m.session(ctx)
	return err == nil && token != ""
}

func (m *Manager) countDropped() {
	if m.metrics != nil {
		m.metrics.framesDropped.Add(context.Background(), 1)
	}
}

func (m *Manager) publishSubscriptions(count int) {
	if m.metrics != nil {
		m.metrics.liveSubscriptions.Set(context.Background(), float64(count))
	}
}
