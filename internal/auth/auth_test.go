package auth

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoconnect/internal/transport"
)

func TestRequireFailsClosed(t *testing.T) {
	assert.ErrorIs(t, Require(nil), ErrAuthRequired)
	assert.ErrorIs(t, Require(NoAuth{}), ErrAuthRequired)
	assert.ErrorIs(t, Require(Hyperliquid{}), ErrAuthRequired)
	assert.NoError(t, Require(Hyperliquid{UserAddress: "0xabc"}))
}

func TestNoAuthHasNoHandshake(t *testing.T) {
	msg, err := NoAuth{}.WsAuthMessage(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, msg)
	assert.ErrorIs(t, NoAuth{}.ApplyRestAuth(&RestRequest{}), ErrAuthRequired)
}

func TestHyperliquidDelegatesRestSigning(t *testing.T) {
	req := &RestRequest{Method: http.MethodPost, Path: "/exchange", Header: http.Header{}}
	assert.ErrorIs(t, Hyperliquid{UserAddress: "0xabc"}.ApplyRestAuth(req), ErrAuthRequired)

	h := Hyperliquid{UserAddress: "0xabc", Signer: func(r *RestRequest) error {
		r.Header.Set("X-Signed", "1")
		return nil
	}}
	require.NoError(t, h.ApplyRestAuth(req))
	assert.Equal(t, "1", req.Header.Get("X-Signed"))

	msg, err := h.WsAuthMessage(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, msg)
}

func TestStaticLogin(t *testing.T) {
	_, err := Static{}.WsAuthMessage(context.Background())
	assert.ErrorIs(t, err, ErrAuthRequired)

	s := Static{Login: transport.TextMessage(`{"op":"auth","args":["k",1,"sig"]}`)}
	assert.True(t, s.IsAuthenticated())
	msg, err := s.WsAuthMessage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"op":"auth","args":["k",1,"sig"]}`, string(msg.Payload))
}
