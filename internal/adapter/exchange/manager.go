package exchange

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/cryptows/orderbook-listener/internal/core"
	"github.com/cryptows/orderbook-listener/internal/domain"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultIdleTimeout    = 30 * time.Second
	writeTimeout          = 5 * time.Second
)

// ManagerConfig wires a connection manager to its collaborators.
type ManagerConfig struct {
	Protocol       Protocol
	Listener       *core.Listener
	Writer         *core.Writer
	Logger         *logrus.Logger
	ConnectTimeout time.Duration
	IdleTimeout    time.Duration
	Backoff        Backoff
}

// Manager owns one WebSocket session: connect, subscribe, read, detect
// liveness, reconnect with backoff. Its read loop is the single writer
// for every book on the connection.
type Manager struct {
	proto          Protocol
	listener       *core.Listener
	writer         *core.Writer
	logger         *logrus.Entry
	connectTimeout time.Duration
	idleTimeout    time.Duration
	backoff        Backoff
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff()
	}
	return &Manager{
		proto:          cfg.Protocol,
		listener:       cfg.Listener,
		writer:         cfg.Writer,
		logger:         cfg.Logger.WithField("exchange", cfg.Protocol.Exchange()),
		connectTimeout: cfg.ConnectTimeout,
		idleTimeout:    cfg.IdleTimeout,
		backoff:        cfg.Backoff,
	}
}

// Run drives the connection state machine until ctx is cancelled. Every
// failure path ends in a backoff wait and another attempt; the process
// never gives up on its own.
func (m *Manager) Run(ctx context.Context) {
	for ctx.Err() == nil {
		seen := m.listener.Status().Messages
		err := m.runOnce(ctx)
		m.listener.SetState(core.StateDisconnected)
		m.listener.ResetBooks()
		if ctx.Err() != nil {
			return
		}

		// a session that streamed at least one frame restarts the
		// backoff progression
		if m.listener.Status().Messages > seen {
			m.backoff.Reset()
		}
		wait := m.backoff.Next()
		if err != nil {
			m.listener.RecordError(err)
			m.logger.WithError(err).WithFields(logrus.Fields{
				"attempt":    m.backoff.Attempt(),
				"backoff_ms": wait.Milliseconds(),
			}).Warn("connection lost, reconnecting")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// runOnce performs one Connecting → Subscribing → Streaming cycle and
// returns the error that ended it.
func (m *Manager) runOnce(ctx context.Context) error {
	endpoint, err := m.proto.Endpoint()
	if err != nil {
		return err
	}

	m.listener.SetState(core.StateConnecting)
	m.logger.WithField("endpoint", endpoint).Info("connecting")

	dialer := websocket.Dialer{HandshakeTimeout: m.connectTimeout}
	dialCtx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	conn, _, err := dialer.DialContext(dialCtx, endpoint, nil)
	cancel()
	if err != nil {
		return &domain.TransportError{Op: "dial", Err: err}
	}
	defer conn.Close()

	// unblock the read loop when ctx is cancelled
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchDone:
		}
	}()

	if err := m.subscribe(ctx, conn); err != nil {
		return err
	}

	m.listener.SetState(core.StateStreaming)
	m.logger.Info("streaming")
	return m.readLoop(conn)
}

func (m *Manager) subscribe(ctx context.Context, conn *websocket.Conn) error {
	m.listener.SetState(core.StateSubscribing)

	payloads, err := m.proto.SubscribePayloads()
	if err != nil {
		return err
	}
	if len(payloads) == 0 {
		return nil
	}

	if delay := m.proto.SettleDelay(); delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	for _, payload := range payloads {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return &domain.TransportError{Op: "subscribe", Err: err}
		}
	}
	m.logger.WithField("subscriptions", len(payloads)).Info("subscribed")
	return nil
}

func (m *Manager) readLoop(conn *websocket.Conn) error {
	for {
		// liveness: a silent socket is indistinguishable from a healthy
		// idle one without this deadline
		conn.SetReadDeadline(time.Now().Add(m.idleTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return &domain.TransportError{Op: "read", Err: err}
		}
		m.listener.MessageReceived()
		m.handleFrame(conn, raw)
	}
}

func (m *Manager) handleFrame(conn *websocket.Conn, raw []byte) {
	if reply, handled, err := m.proto.Control(raw); handled {
		if err != nil {
			// per-symbol rejection: logged, connection stays open
			m.listener.RecordError(err)
			m.logger.WithError(err).Warn("subscription rejected")
		}
		if reply != nil {
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
				m.logger.WithError(err).Warn("control reply failed")
			}
		}
		return
	}

	update, err := m.proto.Normalize(raw)
	if err != nil {
		m.listener.RecordError(err)
		m.logger.WithError(err).Debug("frame skipped")
		return
	}
	if update == nil {
		return
	}

	res := m.listener.Apply(update)
	if res.Desync {
		err := &domain.DesyncError{Symbol: update.Symbol, Reason: "pending delta buffer overflow"}
		m.listener.RecordError(err)
		m.logger.WithError(err).Warn("book desynced, awaiting fresh snapshot")
		m.listener.Book(update.Symbol).Reset()
		return
	}
	if res.Crossed {
		m.logger.WithField("symbol", update.Symbol).Warn("crossed book")
	}
	if res.TopChanged && m.writer != nil {
		m.writer.Enqueue(m.listener.Book(update.Symbol).Snapshot())
	}
}
