package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"cryptoconnect/internal/translator"
	"cryptoconnect/internal/translator/hyperliquid"
	"cryptoconnect/internal/transport"
	"cryptoconnect/logger"
)

// fakeTransport records sends and lets a test play the reconnect sequence
// by hand: bump reconnects, then run the hook.
type fakeTransport struct {
	mu         sync.Mutex
	sent       []string
	hook       func(ctx context.Context) error
	reconnects atomic.Int64
}

func (f *fakeTransport) Connect(context.Context, string) error { return nil }
func (f *fakeTransport) Disconnect() error                     { return nil }
func (f *fakeTransport) IsConnected() bool                     { return true }
func (f *fakeTransport) State() transport.State                { return transport.Connected }
func (f *fakeTransport) Reconnects() int64                     { return f.reconnects.Load() }

func (f *fakeTransport) Send(_ context.Context, msg transport.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, string(msg.Payload))
	return nil
}

func (f *fakeTransport) Receive(ctx context.Context, _ func(transport.Frame)) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeTransport) OnReconnect(hook func(ctx context.Context) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hook = hook
}

func (f *fakeTransport) runHook(ctx context.Context) error {
	f.mu.Lock()
	hook := f.hook
	f.mu.Unlock()
	return hook(ctx)
}

func (f *fakeTransport) sends() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func newFakeManager(t *testing.T) (*Manager, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{}
	m, err := New(Options{
		Translator: hyperliquid.New(translator.Options{}),
		Transport:  ft,
		Log:        logger.Discard(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = m.Stop() })
	if err := m.Start(context.Background(), "ws://fake"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return m, ft
}

func TestSubscribeDuringPendingReplayIsSentOnce(t *testing.T) {
	ctx := context.Background()
	m, ft := newFakeManager(t)

	// The socket was replaced but the hook has not run yet.
	ft.reconnects.Add(1)
	if err := m.Subscribe(ctx, trades("BTC")); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if got := ft.sends(); len(got) != 0 {
		t.Fatalf("subscribe sent ahead of the replay: %v", got)
	}

	if err := ft.runHook(ctx); err != nil {
		t.Fatalf("hook: %v", err)
	}
	got := ft.sends()
	if len(got) != 1 {
		t.Fatalf("expected exactly one subscribe after replay, got %v", got)
	}

	// Caught up: the next subscribe goes straight out.
	if err := m.Subscribe(ctx, trades("ETH")); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if got := ft.sends(); len(got) != 2 {
		t.Fatalf("expected two sends, got %v", got)
	}
	if s := m.Stats(); s.Reconnects != 1 || s.Subscriptions != 2 {
		t.Fatalf("unexpected stats: %+v", s)
	}
}

func TestUnsubscribeDuringPendingReplayIsNotSent(t *testing.T) {
	ctx := context.Background()
	m, ft := newFakeManager(t)

	if err := m.Subscribe(ctx, trades("BTC")); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	ft.reconnects.Add(1)
	if err := m.Unsubscribe(ctx, trades("BTC").Unsubscribe()); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if err := ft.runHook(ctx); err != nil {
		t.Fatalf("hook: %v", err)
	}
	if got := ft.sends(); len(got) != 1 {
		t.Fatalf("fresh socket should see nothing for BTC, got %v", got)
	}
}
