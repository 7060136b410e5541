package transport

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoconnect/logger"
)

// wsServer hands every accepted connection, numbered from 1, to onConn.
type wsServer struct {
	*httptest.Server
	conns    atomic.Int32
	received chan string
}

func newWSServer(t *testing.T, upgrader websocket.Upgrader, onConn func(n int32, c *websocket.Conn, s *wsServer)) *wsServer {
	t.Helper()
	s := &wsServer{received: make(chan string, 64)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		onConn(s.conns.Add(1), c, s)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *wsServer) url() string { return "ws" + strings.TrimPrefix(s.URL, "http") }

// drain records inbound text until the client goes away.
func drain(c *websocket.Conn, s *wsServer) {
	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		s.received <- string(msg)
	}
}

func fastConfig() Config {
	return Config{
		BaseDelay:    time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Jitter:       0.25,
		MaxAttempts:  5,
		StaleTimeout: 2 * time.Second,
	}
}

func TestReceiveReassemblesFragments(t *testing.T) {
	payload := strings.Repeat("0123456789", 20)
	srv := newWSServer(t, websocket.Upgrader{WriteBufferSize: 16}, func(_ int32, c *websocket.Conn, s *wsServer) {
		w, err := c.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		for i := 0; i < len(payload); i += 7 {
			end := i + 7
			if end > len(payload) {
				end = len(payload)
			}
			_, _ = w.Write([]byte(payload[i:end]))
		}
		_ = w.Close()
		drain(c, s)
	})

	tr := NewWebSocket(fastConfig(), logger.Discard())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tr.Connect(ctx, srv.url()))
	defer tr.Disconnect()

	var got Frame
	err := tr.Receive(ctx, func(f Frame) {
		got = f
		cancel()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Text, got.Kind)
	assert.Equal(t, payload, got.Text())
	assert.False(t, got.ReceivedAt.IsZero())
}

func TestReceiveReassemblesBinaryFragments(t *testing.T) {
	payload := make([]byte, 150)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	srv := newWSServer(t, websocket.Upgrader{WriteBufferSize: 16}, func(_ int32, c *websocket.Conn, s *wsServer) {
		w, err := c.NextWriter(websocket.BinaryMessage)
		if err != nil {
			return
		}
		for i := 0; i < len(payload); i += 11 {
			end := i + 11
			if end > len(payload) {
				end = len(payload)
			}
			_, _ = w.Write(payload[i:end])
		}
		_ = w.Close()
		drain(c, s)
	})

	tr := NewWebSocket(fastConfig(), logger.Discard())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tr.Connect(ctx, srv.url()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer tr.Disconnect()

	var frames []Frame
	err := tr.Receive(ctx, func(f Frame) {
		frames = append(frames, f)
		cancel()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("receive err = %v, want context.Canceled", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected one reassembled frame, got %d", len(frames))
	}
	if frames[0].Kind != Binary {
		t.Errorf("kind = %s, want binary", frames[0].Kind)
	}
	if !bytes.Equal(frames[0].Payload, payload) {
		t.Errorf("payload mismatch: got %d bytes, want %d", len(frames[0].Payload), len(payload))
	}
}

func TestReceiveReconnectsAndRunsHook(t *testing.T) {
	srv := newWSServer(t, websocket.Upgrader{}, func(n int32, c *websocket.Conn, s *wsServer) {
		if n == 1 {
			_ = c.WriteMessage(websocket.TextMessage, []byte("first"))
			return
		}
		_ = c.WriteMessage(websocket.TextMessage, []byte("second"))
		drain(c, s)
	})

	tr := NewWebSocket(fastConfig(), logger.Discard())
	var hookCalls atomic.Int32
	tr.OnReconnect(func(ctx context.Context) error {
		hookCalls.Add(1)
		return tr.Send(ctx, TextMessage("resubscribe"))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tr.Connect(ctx, srv.url()))
	defer tr.Disconnect()

	var frames []string
	_ = tr.Receive(ctx, func(f Frame) {
		frames = append(frames, f.Text())
		if f.Text() == "second" {
			cancel()
		}
	})

	assert.Equal(t, []string{"first", "second"}, frames)
	assert.Equal(t, int32(1), hookCalls.Load())
	assert.Equal(t, int64(1), tr.Reconnects())
	select {
	case msg := <-srv.received:
		assert.Equal(t, "resubscribe", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("hook message never reached the server")
	}
}

func TestReceiveFailsAfterBudget(t *testing.T) {
	// every connection is closed straight away
	srv := newWSServer(t, websocket.Upgrader{}, func(int32, *websocket.Conn, *wsServer) {})

	cfg := fastConfig()
	cfg.MaxAttempts = 3
	tr := NewWebSocket(cfg, logger.Discard())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tr.Connect(ctx, srv.url()))

	err := tr.Receive(ctx, func(Frame) {})
	require.ErrorIs(t, err, ErrReconnectBudgetExhausted)
	assert.Equal(t, Failed, tr.State())
	assert.False(t, tr.IsConnected())

	// Failed is terminal
	assert.ErrorIs(t, tr.Connect(ctx, srv.url()), ErrReconnectBudgetExhausted)
}

func TestStaleConnectionForcesReconnect(t *testing.T) {
	srv := newWSServer(t, websocket.Upgrader{}, func(n int32, c *websocket.Conn, s *wsServer) {
		if n > 1 {
			_ = c.WriteMessage(websocket.TextMessage, []byte("alive"))
		}
		drain(c, s)
	})

	cfg := fastConfig()
	cfg.StaleTimeout = 100 * time.Millisecond
	tr := NewWebSocket(cfg, logger.Discard())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tr.Connect(ctx, srv.url()))
	defer tr.Disconnect()

	var got string
	_ = tr.Receive(ctx, func(f Frame) {
		got = f.Text()
		cancel()
	})
	assert.Equal(t, "alive", got)
	assert.GreaterOrEqual(t, srv.conns.Load(), int32(2))
}

func TestKeepaliveSendsPayload(t *testing.T) {
	srv := newWSServer(t, websocket.Upgrader{}, func(_ int32, c *websocket.Conn, s *wsServer) { drain(c, s) })

	cfg := fastConfig()
	cfg.PingInterval = 20 * time.Millisecond
	ping := TextMessage(`{"method":"ping"}`)
	cfg.Ping = &ping
	tr := NewWebSocket(cfg, logger.Discard())
	require.NoError(t, tr.Connect(context.Background(), srv.url()))
	defer tr.Disconnect()

	select {
	case msg := <-srv.received:
		assert.Equal(t, `{"method":"ping"}`, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("no keepalive received")
	}
}

func TestReceiveReturnsPromptlyOnCancel(t *testing.T) {
	srv := newWSServer(t, websocket.Upgrader{}, func(_ int32, c *websocket.Conn, s *wsServer) { drain(c, s) })

	tr := NewWebSocket(fastConfig(), logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, tr.Connect(ctx, srv.url()))
	defer tr.Disconnect()

	done := make(chan error, 1)
	go func() { done <- tr.Receive(ctx, func(Frame) {}) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Receive did not return after cancel")
	}
}

func TestDisconnectEndsReceive(t *testing.T) {
	srv := newWSServer(t, websocket.Upgrader{}, func(_ int32, c *websocket.Conn, s *wsServer) { drain(c, s) })

	tr := NewWebSocket(fastConfig(), logger.Discard())
	require.NoError(t, tr.Connect(context.Background(), srv.url()))

	var wg sync.WaitGroup
	wg.Add(1)
	var err error
	go func() {
		defer wg.Done()
		err = tr.Receive(context.Background(), func(Frame) {})
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, tr.Disconnect())
	wg.Wait()

	assert.NoError(t, err)
	assert.Equal(t, Disconnected, tr.State())
	assert.ErrorIs(t, tr.Send(context.Background(), TextMessage("x")), ErrNotConnected)
}
