// Package auth defines the credential hooks a stream calls. Signing itself
// lives in the injected implementation.
package auth

import (
	"context"
	"errors"
	"net/http"

	"cryptoconnect/internal/transport"
)

var ErrAuthRequired = errors.New("authentication required")

// RestRequest is the part of an outgoing REST call a provider may sign.
type RestRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

type Provider interface {
	IsAuthenticated() bool
	// WsAuthMessage returns the message to send right after connect, or nil
	// when the venue needs none.
	WsAuthMessage(ctx context.Context) (*transport.Message, error)
	ApplyRestAuth(req *RestRequest) error
}

// Require fails closed when p cannot authenticate.
func Require(p Provider) error {
	if p == nil || !p.IsAuthenticated() {
		return ErrAuthRequired
	}
	return nil
}

// NoAuth is used for public-only streams.
type NoAuth struct{}

func (NoAuth) IsAuthenticated() bool { return false }

func (NoAuth) WsAuthMessage(context.Context) (*transport.Message, error) { return nil, nil }

func (NoAuth) ApplyRestAuth(*RestRequest) error { return ErrAuthRequired }

// Hyperliquid account streams are keyed by address alone, so the websocket
// side needs no handshake. REST actions are delegated to Signer.
type Hyperliquid struct {
	UserAddress string
	Signer      func(req *RestRequest) error
}

func (h Hyperliquid) IsAuthenticated() bool { return h.UserAddress != "" }

func (h Hyperliquid) WsAuthMessage(context.Context) (*transport.Message, error) { return nil, nil }

func (h Hyperliquid) ApplyRestAuth(req *RestRequest) error {
	if h.Signer == nil || !h.IsAuthenticated() {
		return ErrAuthRequired
	}
	return h.Signer(req)
}

// Static replays a login message produced elsewhere, for venues whose
// private endpoint expects an op:login or op:auth frame.
type Static struct {
	Login transport.Message
}

func (s Static) IsAuthenticated() bool { return len(s.Login.Payload) > 0 }

func (s Static) WsAuthMessage(context.Context) (*transport.Message, error) {
	if !s.IsAuthenticated() {
		return nil, ErrAuthRequired
	}
	msg := s.Login
	return &msg, nil
}

func (s Static) ApplyRestAuth(*RestRequest) error { return ErrAuthRequired }
