// Package stream runs one venue connection: it owns the subscription
// registry, replays it on every reconnect and turns frames into events.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"cryptoconnect/internal/auth"
	"cryptoconnect/internal/queue"
	"cryptoconnect/internal/ratelimit"
	"cryptoconnect/internal/subscription"
	"cryptoconnect/internal/translator"
	"cryptoconnect/internal/transport"
	"cryptoconnect/logger"
	"cryptoconnect/models"
)

const defaultQueueCapacity = 10000

var (
	ErrNotStarted      = errors.New("stream not started")
	ErrAlreadyStarted  = errors.New("stream already started")
	ErrStopped         = errors.New("stream stopped")
	ErrTransportFailed = errors.New("transport failed")
	// ErrClosed is returned by Next once the stream is stopped and drained.
	ErrClosed = queue.ErrClosed
)

type State int32

const (
	Idle State = iota
	Started
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Started:
		return "started"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

type Options struct {
	Translator translator.Translator
	Transport  transport.Transport
	// Limiter defaults to no limit.
	Limiter ratelimit.Limiter
	// Auth defaults to auth.NoAuth.
	Auth          auth.Provider
	QueueCapacity int
	Log           *logger.Log
}

type Manager struct {
	translator translator.Translator
	transport  transport.Transport
	limiter    ratelimit.Limiter
	auth       auth.Provider
	registry   *subscription.Registry
	events     *queue.Queue[models.Event]
	log        *logger.Entry

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	err    error

	stopOnce sync.Once

	// sendMu serializes subscription traffic with reconnect replays and
	// guards refs and natives.
	sendMu sync.Mutex
	// refs counts registry entries per native subscription, so venues that
	// serve several channels from one topic get one subscribe and one
	// unsubscribe.
	refs    map[string]int
	natives map[models.SubscriptionKey][]string

	framesReceived  atomic.Int64
	eventsEmitted   atomic.Int64
	eventsFiltered  atomic.Int64
	translateErrors atomic.Int64
	reconnects      atomic.Int64
}

func New(opts Options) (*Manager, error) {
	if opts.Translator == nil {
		return nil, fmt.Errorf("stream: translator is required")
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("stream: transport is required")
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.NewTokenBucket(1, 0)
	}
	if opts.Auth == nil {
		opts.Auth = auth.NoAuth{}
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = defaultQueueCapacity
	}
	log := opts.Log
	if log == nil {
		log = logger.Discard()
	}
	return &Manager{
		translator: opts.Translator,
		transport:  opts.Transport,
		limiter:    opts.Limiter,
		auth:       opts.Auth,
		registry:   subscription.NewRegistry(),
		refs:       make(map[string]int),
		natives:    make(map[models.SubscriptionKey][]string),
		events:     queue.New[models.Event](opts.QueueCapacity),
		log: log.WithComponent("stream").WithFields(logger.Fields{
			"exchange": opts.Translator.Exchange(),
		}),
	}, nil
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start connects to uri, authenticates, replays the registry and launches
// the receive loop. A failed Start leaves the manager idle.
func (m *Manager) Start(ctx context.Context, uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case Started:
		return ErrAlreadyStarted
	case Stopped:
		return ErrStopped
	}

	m.transport.OnReconnect(m.resubscribe)
	if err := m.transport.Connect(ctx, uri); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if err := m.authenticate(ctx); err != nil {
		_ = m.transport.Disconnect()
		return fmt.Errorf("start: %w", err)
	}
	if err := m.replay(ctx); err != nil {
		m.log.WithError(err).Warn("initial replay incomplete")
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.done = make(chan struct{})
	m.state = Started
	go m.loop(loopCtx)

	m.log.WithFields(logger.Fields{"url": uri, "subscriptions": m.registry.Len()}).Info("stream started")
	return nil
}

func (m *Manager) authenticate(ctx context.Context) error {
	if !m.auth.IsAuthenticated() {
		return nil
	}
	msg, err := m.auth.WsAuthMessage(ctx)
	if err != nil {
		return fmt.Errorf("auth message: %w", err)
	}
	if msg == nil {
		return nil
	}
	return m.send(ctx, *msg)
}

func (m *Manager) send(ctx context.Context, msg transport.Message) error {
	if err := m.limiter.Admit(ctx); err != nil {
		return err
	}
	return m.transport.Send(ctx, msg)
}

// replay sends every registered subscription, each native subscription
// once. Translation failures skip the entry; send failures abort so the
// transport can retry the connection.
func (m *Manager) replay(ctx context.Context) error {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	return m.replayLocked(ctx)
}

func (m *Manager) replayLocked(ctx context.Context) error {
	seen := make(map[string]bool)
	for _, e := range m.registry.All() {
		msgs, err := m.translator.ToNativeSubscribe(e.Request)
		if err != nil {
			m.log.WithError(err).WithField("key", e.Key.String()).Warn("cannot replay subscription")
			continue
		}
		keys := m.nativeKeys(e.Request, msgs)
		for i, msg := range msgs {
			if seen[keys[i]] {
				continue
			}
			seen[keys[i]] = true
			if err := m.send(ctx, msg); err != nil {
				return fmt.Errorf("replay %s: %w", e.Key, err)
			}
		}
	}
	return nil
}

func (m *Manager) resubscribe(ctx context.Context) error {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	m.reconnects.Add(1)
	m.log.LogMetric("stream", "reconnects", int64(1), "counter", logger.Fields{
		"exchange": string(m.translator.Exchange()),
	})
	if err := m.authenticate(ctx); err != nil {
		return err
	}
	n := m.registry.Len()
	if err := m.replayLocked(ctx); err != nil {
		return err
	}
	m.log.WithField("subscriptions", n).Info("resubscribed after reconnect")
	return nil
}

// nativeKeys names the native subscription behind each of msgs. The
// correlation id is stripped so equal topics requested by different callers
// share a key.
func (m *Manager) nativeKeys(req models.SubscribeRequest, msgs []transport.Message) []string {
	bare := req.Clone()
	bare.CorrelationID = ""
	if stripped, err := m.translator.ToNativeSubscribe(bare); err == nil && len(stripped) == len(msgs) {
		msgs = stripped
	}
	keys := make([]string, len(msgs))
	for i, msg := range msgs {
		keys[i] = msg.Kind.String() + ":" + string(msg.Payload)
	}
	return keys
}

// replayOwed reports whether the transport reconnected and the hook has not
// replayed yet. Anything sent now would be sent again by that replay.
// Callers hold sendMu.
func (m *Manager) replayOwed() bool {
	return m.transport.Reconnects() > m.reconnects.Load()
}

func (m *Manager) checkStarted() error {
	switch m.State() {
	case Idle:
		return ErrNotStarted
	case Stopped:
		return ErrStopped
	}
	if m.transport.State() == transport.Failed {
		return fmt.Errorf("%w: %w", ErrTransportFailed, transport.ErrReconnectBudgetExhausted)
	}
	return nil
}

func (m *Manager) checkRequest(req models.SubscribeRequest) error {
	if req.Exchange != m.translator.Exchange() {
		return fmt.Errorf("request for %s sent to %s stream", req.Exchange, m.translator.Exchange())
	}
	if err := req.Validate(); err != nil {
		return err
	}
	if req.Channel.UserScoped() {
		if err := auth.Require(m.auth); err != nil {
			return fmt.Errorf("%s: %w", req.Channel, err)
		}
	}
	return nil
}

// Subscribe registers req and sends it. Subscribing to an equivalent request
// twice is a no-op, and native subscriptions already live on the socket
// are not sent again. When the socket is down the request stays registered
// and goes out with the next replay.
func (m *Manager) Subscribe(ctx context.Context, req models.SubscribeRequest) error {
	if err := m.checkStarted(); err != nil {
		return err
	}
	if err := m.checkRequest(req); err != nil {
		return err
	}
	msgs, err := m.translator.ToNativeSubscribe(req)
	if err != nil {
		return err
	}
	key := req.Key()
	log := m.log.WithFields(logger.Fields{"key": key.String(), "correlation_id": req.CorrelationID})

	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	if !m.registry.Add(req) {
		log.Debug("already subscribed")
		return nil
	}
	keys := m.nativeKeys(req, msgs)
	owed := m.replayOwed()
	for i, msg := range msgs {
		if m.refs[keys[i]] > 0 || owed {
			continue
		}
		if err := m.limiter.Admit(ctx); err != nil {
			m.registry.Remove(key)
			return err
		}
		if err := m.transport.Send(ctx, msg); err != nil {
			log.WithError(err).Warn("subscribe not sent, will replay after reconnect")
			break
		}
	}
	for _, k := range keys {
		m.refs[k]++
	}
	m.natives[key] = keys
	if owed {
		log.Debug("subscribed, left to the pending replay")
		return nil
	}
	log.Info("subscribed")
	return nil
}

// Unsubscribe forgets the subscription and sends the native unsubscribe for
// every native subscription no other entry still needs.
func (m *Manager) Unsubscribe(ctx context.Context, req models.UnsubscribeRequest) error {
	if err := m.checkStarted(); err != nil {
		return err
	}
	key := req.Key()
	log := m.log.WithFields(logger.Fields{"key": key.String(), "correlation_id": req.CorrelationID})

	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	entry, ok := m.registry.Get(key)
	if !ok {
		log.Debug("not subscribed")
		return nil
	}
	// Built from the stored request so messages line up with its native keys.
	stored := models.UnsubscribeRequest(entry.Request)
	stored.CorrelationID = req.CorrelationID
	msgs, err := m.translator.ToNativeUnsubscribe(stored)
	if err != nil {
		return err
	}
	m.registry.Remove(key)
	keys := m.natives[key]
	delete(m.natives, key)

	shared := make([]bool, len(msgs))
	for i, k := range keys {
		m.refs[k]--
		if m.refs[k] > 0 {
			if i < len(shared) {
				shared[i] = true
			}
			continue
		}
		delete(m.refs, k)
	}
	if m.replayOwed() {
		log.Debug("unsubscribed before replay")
		return nil
	}
	for i, msg := range msgs {
		if shared[i] {
			continue
		}
		if err := m.send(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return err
			}
			log.WithError(err).Warn("unsubscribe not sent")
			return nil
		}
	}
	log.Info("unsubscribed")
	return nil
}

func (m *Manager) loop(ctx context.Context) {
	defer close(m.done)
	err := m.transport.Receive(ctx, m.handle)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	m.mu.Lock()
	m.err = fmt.Errorf("%w: %w", ErrTransportFailed, err)
	m.mu.Unlock()
	m.log.WithError(err).Error("stream loop ended")
	m.events.Close()
}

func (m *Manager) handle(frame transport.Frame) {
	m.framesReceived.Add(1)
	events, err := m.translate(frame)
	if err != nil {
		m.translateErrors.Add(1)
		m.log.WithError(err).WithField("bytes", len(frame.Payload)).Debug("dropping frame")
		return
	}
	for _, ev := range events {
		if !m.registry.HasChannel(ev.Meta().Channel) {
			m.eventsFiltered.Add(1)
			continue
		}
		m.eventsEmitted.Add(1)
		if m.events.Push(ev) {
			meta := ev.Meta()
			m.log.WithFields(logger.Fields{"channel": meta.Channel, "symbol": meta.Symbol}).Warn("event queue full, dropped oldest event")
		}
	}
}

// translate shields the loop from translator panics.
func (m *Manager) translate(frame transport.Frame) (events []models.Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: translator panic: %v", translator.ErrMalformedFrame, r)
		}
	}()
	return m.translator.FromNative(frame)
}

// Next blocks for the next event. After Stop, or after the transport fails,
// queued events are still returned before ErrClosed.
func (m *Manager) Next(ctx context.Context) (models.Event, error) {
	return m.events.Next(ctx)
}

// Wait blocks until the receive loop exits and returns why. A clean Stop
// yields nil.
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done == nil {
		return ErrNotStarted
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Stop cancels the loop, waits for it, disconnects and closes the event
// queue. It may be called any number of times.
func (m *Manager) Stop() error {
	var err error
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.state = Stopped
		cancel, done := m.cancel, m.done
		m.mu.Unlock()

		if cancel != nil {
			cancel()
			<-done
		}
		err = m.transport.Disconnect()
		m.events.Close()
		m.log.WithFields(m.Stats().Fields()).Info("stream stopped")
	})
	return err
}

func (m *Manager) Stats() Stats {
	q := m.events.Stats()
	return Stats{
		FramesReceived:  m.framesReceived.Load(),
		EventsEmitted:   m.eventsEmitted.Load(),
		EventsDropped:   q.Dropped,
		EventsFiltered:  m.eventsFiltered.Load(),
		TranslateErrors: m.translateErrors.Load(),
		Reconnects:      m.reconnects.Load(),
		Subscriptions:   int64(m.registry.Len()),
		Queued:          int64(q.Len),
	}
}

type Stats struct {
	FramesReceived  int64
	EventsEmitted   int64
	EventsDropped   int64
	// EventsFiltered counts events of channels nobody subscribed to, which
	// venues push when one native topic serves several channels.
	EventsFiltered  int64
	TranslateErrors int64
	Reconnects      int64
	Subscriptions   int64
	Queued          int64
}

// Counters renders the stats for logger.StartReport.
func (s Stats) Counters() logger.Counters {
	return logger.Counters{
		"frames_received":  s.FramesReceived,
		"events_emitted":   s.EventsEmitted,
		"events_dropped":   s.EventsDropped,
		"events_filtered":  s.EventsFiltered,
		"translate_errors": s.TranslateErrors,
		"reconnects":       s.Reconnects,
		"subscriptions":    s.Subscriptions,
		"queued":           s.Queued,
	}
}

func (s Stats) Fields() logger.Fields {
	out := make(logger.Fields, 8)
	for k, v := range s.Counters() {
		out[k] = v
	}
	return out
}
