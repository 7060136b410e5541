// Package transport owns the physical websocket connection to a venue.
package transport

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotConnected = errors.New("transport: not connected")
	// ErrReconnectBudgetExhausted is terminal. The owner must build a new
	// transport rather than retry.
	ErrReconnectBudgetExhausted = errors.New("transport: reconnect attempts exhausted")
	ErrClosed                   = errors.New("transport: closed")
)

// Kind distinguishes text from binary payloads.
type Kind int

const (
	Text Kind = iota
	Binary
)

func (k Kind) String() string {
	if k == Binary {
		return "binary"
	}
	return "text"
}

// Message is an outbound native payload.
type Message struct {
	Kind    Kind
	Payload []byte
}

func TextMessage(s string) Message { return Message{Kind: Text, Payload: []byte(s)} }

// Frame is one complete inbound message. Fragmented messages are
// reassembled before a Frame is produced; ReceivedAt is taken after the
// final fragment arrives.
type Frame struct {
	Kind       Kind
	Payload    []byte
	ReceivedAt time.Time
}

func (f Frame) Text() string { return string(f.Payload) }

// State of the physical connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Transport is a single persistent connection.
type Transport interface {
	Connect(ctx context.Context, uri string) error
	Disconnect() error
	Send(ctx context.Context, msg Message) error
	// Receive delivers frames to handle until ctx ends, Disconnect is
	// called, or the reconnect budget is exhausted. Transient failures are
	// recovered internally.
	Receive(ctx context.Context, handle func(Frame)) error
	IsConnected() bool
	State() State
	// OnReconnect registers a hook run after every successful reconnect,
	// before frames are read from the new socket.
	OnReconnect(hook func(ctx context.Context) error)
	// Reconnects counts reconnects, each of which runs the hook once.
	Reconnects() int64
}
