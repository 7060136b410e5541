package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"cryptoconnect/logger"
)

const (
	defaultMaxAttempts  = 10
	defaultStaleTimeout = 60 * time.Second
	writeWait           = 10 * time.Second
)

// Config tunes reconnect, keepalive and stale detection.
type Config struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
	MaxAttempts int
	// StaleTimeout is the longest the socket may stay silent before it is
	// treated as dead. Pongs count as traffic.
	StaleTimeout time.Duration
	// PingInterval of zero disables keepalive.
	PingInterval time.Duration
	// Ping is sent as the keepalive payload. When nil a websocket ping
	// control frame is used instead.
	Ping             *Message
	HandshakeTimeout time.Duration
	ReadLimit        int64
	// LocalIP binds outgoing connections to a source address.
	LocalIP string
	Header  http.Header
}

// WebSocket is a Transport backed by gorilla/websocket. It owns exactly one
// socket at a time; reads happen only inside Receive.
type WebSocket struct {
	cfg     Config
	log     *logger.Entry
	dialer  *websocket.Dialer
	backoff *Backoff

	mu       sync.Mutex
	uri      string
	conn     *websocket.Conn
	state    State
	closed   bool
	stopPing context.CancelFunc
	hook     func(context.Context) error

	writeMu sync.Mutex

	// failures is owned by the Receive goroutine.
	failures   int
	reconnects atomic.Int64
}

func NewWebSocket(cfg Config, log *logger.Log) *WebSocket {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.StaleTimeout <= 0 {
		cfg.StaleTimeout = defaultStaleTimeout
	}
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	if cfg.LocalIP != "" {
		nd := &net.Dialer{
			LocalAddr: &net.TCPAddr{IP: net.ParseIP(cfg.LocalIP)},
			Timeout:   cfg.HandshakeTimeout,
		}
		dialer.NetDialContext = nd.DialContext
	}
	return &WebSocket{
		cfg:     cfg,
		log:     log.WithComponent("transport"),
		dialer:  dialer,
		backoff: NewBackoff(cfg.BaseDelay, cfg.MaxDelay, cfg.Jitter),
	}
}

func (t *WebSocket) Connect(ctx context.Context, uri string) error {
	t.mu.Lock()
	if t.state == Failed {
		t.mu.Unlock()
		return ErrReconnectBudgetExhausted
	}
	t.uri = uri
	t.closed = false
	t.mu.Unlock()

	t.setState(Connecting)
	conn, err := t.dial(ctx)
	if err != nil {
		t.setState(Disconnected)
		return fmt.Errorf("connect %s: %w", uri, err)
	}
	t.attach(conn)
	t.setState(Connected)
	t.log.WithField("url", uri).Info("websocket connected")
	return nil
}

func (t *WebSocket) Disconnect() error {
	t.mu.Lock()
	t.closed = true
	conn := t.conn
	t.conn = nil
	if t.stopPing != nil {
		t.stopPing()
		t.stopPing = nil
	}
	t.mu.Unlock()

	if t.State() != Failed {
		t.setState(Disconnected)
	}
	if conn == nil {
		return nil
	}

	t.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	t.writeMu.Unlock()
	t.log.Info("websocket disconnected")
	return conn.Close()
}

func (t *WebSocket) Send(ctx context.Context, msg Message) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if err := t.write(ctx, conn, msg); err != nil {
		t.log.WithError(err).Warn("websocket write failed")
		// Closing the socket hands recovery to the Receive loop.
		t.detach(conn)
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

func (t *WebSocket) Receive(ctx context.Context, handle func(Frame)) error {
	stop := context.AfterFunc(ctx, func() {
		t.mu.Lock()
		conn := t.conn
		t.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
	})
	defer stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		t.mu.Lock()
		conn, closed, state := t.conn, t.closed, t.state
		t.mu.Unlock()
		if closed {
			return nil
		}
		if state == Failed {
			return ErrReconnectBudgetExhausted
		}
		if conn == nil {
			if err := t.reconnect(ctx); err != nil {
				return err
			}
			continue
		}

		frame, err := t.readFrame(conn)
		if err != nil {
			t.detach(conn)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if t.isClosed() {
				return nil
			}
			t.log.WithError(err).Warn("websocket read loop ended")
			if err := t.reconnect(ctx); err != nil {
				return err
			}
			continue
		}
		t.failures = 0
		handle(frame)
	}
}

func (t *WebSocket) IsConnected() bool { return t.State() == Connected }

func (t *WebSocket) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *WebSocket) OnReconnect(hook func(ctx context.Context) error) {
	t.mu.Lock()
	t.hook = hook
	t.mu.Unlock()
}

// Reconnects is the number of successful reconnects since creation.
func (t *WebSocket) Reconnects() int64 { return t.reconnects.Load() }

func (t *WebSocket) reconnect(ctx context.Context) error {
	for {
		if t.failures >= t.cfg.MaxAttempts {
			t.setState(Failed)
			t.log.WithField("attempts", t.failures).Error("reconnect budget exhausted")
			return fmt.Errorf("%w after %d attempts", ErrReconnectBudgetExhausted, t.failures)
		}
		delay := t.backoff.Delay(t.failures)
		t.failures++
		t.setState(Reconnecting)
		t.log.WithFields(logger.Fields{
			"attempt":  t.failures,
			"delay_ms": delay.Milliseconds(),
		}).Info("reconnecting")

		if waitForReconnect(ctx, delay) {
			return ctx.Err()
		}
		if t.isClosed() {
			return nil
		}

		conn, err := t.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.log.WithError(err).WithField("url", t.uri).Warn("failed to connect")
			continue
		}
		if ctx.Err() != nil || t.isClosed() {
			conn.Close()
			return ctx.Err()
		}

		// Counted before attach so a sender that sees the new socket also
		// sees that a reconnect hook is owed.
		t.reconnects.Add(1)
		t.attach(conn)
		t.setState(Connected)

		t.mu.Lock()
		hook := t.hook
		t.mu.Unlock()
		if hook != nil {
			if err := hook(ctx); err != nil {
				t.log.WithError(err).Warn("post-reconnect hook failed")
				t.detach(conn)
				continue
			}
		}
		t.log.WithField("url", t.uri).Info("websocket reconnected")
		return nil
	}
}

func (t *WebSocket) dial(ctx context.Context) (*websocket.Conn, error) {
	t.mu.Lock()
	uri := t.uri
	t.mu.Unlock()

	conn, resp, err := t.dialer.DialContext(ctx, uri, t.cfg.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	if t.cfg.ReadLimit > 0 {
		conn.SetReadLimit(t.cfg.ReadLimit)
	}
	stale := t.cfg.StaleTimeout
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(stale))
	})
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(stale))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		var ne net.Error
		if errors.Is(err, websocket.ErrCloseSent) || (errors.As(err, &ne) && ne.Timeout()) {
			return nil
		}
		return err
	})
	return conn, nil
}

// readFrame blocks for the next complete message. NextReader spans
// continuation frames, so the payload is the reassembled message.
func (t *WebSocket) readFrame(conn *websocket.Conn) (Frame, error) {
	if err := conn.SetReadDeadline(time.Now().Add(t.cfg.StaleTimeout)); err != nil {
		return Frame{}, err
	}
	mt, r, err := conn.NextReader()
	if err != nil {
		return Frame{}, err
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		return Frame{}, err
	}
	kind := Text
	if mt == websocket.BinaryMessage {
		kind = Binary
	}
	return Frame{Kind: kind, Payload: payload, ReceivedAt: time.Now().UTC()}, nil
}

func (t *WebSocket) write(ctx context.Context, conn *websocket.Conn, msg Message) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	mt := websocket.TextMessage
	if msg.Kind == Binary {
		mt = websocket.BinaryMessage
	}
	return conn.WriteMessage(mt, msg.Payload)
}

func (t *WebSocket) attach(conn *websocket.Conn) {
	pingCtx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.conn = conn
	t.stopPing = cancel
	t.mu.Unlock()
	if t.cfg.PingInterval > 0 {
		go t.keepalive(pingCtx, conn)
	}
}

// detach closes conn and forgets it if it is still the current socket.
func (t *WebSocket) detach(conn *websocket.Conn) {
	t.mu.Lock()
	if t.conn == conn {
		t.conn = nil
		if t.stopPing != nil {
			t.stopPing()
			t.stopPing = nil
		}
	}
	t.mu.Unlock()
	conn.Close()
}

// keepalive runs for the lifetime of one socket. A failed send ends the
// loop only; stale detection on the read side decides whether the socket
// is dead.
func (t *WebSocket) keepalive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var err error
			if t.cfg.Ping != nil {
				err = t.write(ctx, conn, *t.cfg.Ping)
			} else {
				err = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
			}
			if err != nil {
				t.log.WithError(err).Warn("failed to send websocket ping")
				return
			}
		}
	}
}

func (t *WebSocket) setState(s State) {
	t.mu.Lock()
	prev := t.state
	t.state = s
	t.mu.Unlock()
	if prev != s {
		t.log.WithFields(logger.Fields{"from": prev.String(), "to": s.String()}).Debug("transport state change")
	}
}

func (t *WebSocket) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// waitForReconnect sleeps for delay and reports whether ctx ended first.
func waitForReconnect(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return ctx.Err() != nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}
