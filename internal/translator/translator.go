// Package translator defines the per-venue mapping between unified
// requests/events and native websocket messages.
package translator

import (
	"errors"
	"time"

	"cryptoconnect/internal/transport"
	"cryptoconnect/logger"
	"cryptoconnect/models"
)

var (
	// ErrMalformedFrame marks a frame that could not be decoded. The frame
	// is dropped; the stream continues.
	ErrMalformedFrame     = errors.New("malformed frame")
	ErrUnsupportedChannel = errors.New("channel not supported by exchange")
	ErrUserRequired       = errors.New("user address required for account channel")
)

// Translator is stateless; one value may serve concurrent callers.
type Translator interface {
	Exchange() models.Exchange
	// ToNativeSubscribe returns one message per symbol for public channels
	// and exactly one for account-wide channels.
	ToNativeSubscribe(req models.SubscribeRequest) ([]transport.Message, error)
	ToNativeUnsubscribe(req models.UnsubscribeRequest) ([]transport.Message, error)
	// FromNative decodes a frame into zero or more events. Acks, pongs and
	// unknown channels produce no events and no error.
	FromNative(frame transport.Frame) ([]models.Event, error)
}

// Keepalive describes how a venue expects to be pinged.
type Keepalive struct {
	Interval time.Duration
	// Message is nil when the venue answers websocket ping control frames.
	Message *transport.Message
}

// Options are shared by every translator.
type Options struct {
	// IncludeRaw attaches the original frame to each event.
	IncludeRaw bool
	// UserAddress is the account used for account-wide channels when a
	// request does not carry options["user"].
	UserAddress string
	Log         *logger.Log
}

func (o Options) Logger(component string) *logger.Entry {
	log := o.Log
	if log == nil {
		log = logger.Discard()
	}
	return log.WithComponent(component)
}
