package hyperliquid

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoconnect/internal/translator"
	"cryptoconnect/internal/transport"
	"cryptoconnect/models"
)

func frame(s string) transport.Frame {
	return transport.Frame{Kind: transport.Text, Payload: []byte(s), ReceivedAt: time.Unix(1700000000, 0)}
}

func decodeMessages(t *testing.T, msgs []transport.Message) []request {
	t.Helper()
	out := make([]request, 0, len(msgs))
	for _, m := range msgs {
		var r request
		require.NoError(t, json.Unmarshal(m.Payload, &r))
		out = append(out, r)
	}
	return out
}

func TestSubscribeOneMessagePerSymbol(t *testing.T) {
	tr := New(translator.Options{})
	req := models.NewSubscribeRequest(models.ExchangeHyperliquid, models.ChannelTrades, []string{"BTC", "ETH"})

	msgs, err := tr.ToNativeSubscribe(req)
	require.NoError(t, err)
	reqs := decodeMessages(t, msgs)
	require.Len(t, reqs, 2)
	assert.Equal(t, "subscribe", reqs[0].Method)
	assert.Equal(t, subscription{Type: "trades", Coin: "BTC"}, reqs[0].Subscription)
	assert.Equal(t, subscription{Type: "trades", Coin: "ETH"}, reqs[1].Subscription)

	msgs, err = tr.ToNativeUnsubscribe(req.Unsubscribe())
	require.NoError(t, err)
	reqs = decodeMessages(t, msgs)
	require.Len(t, reqs, 2)
	assert.Equal(t, "unsubscribe", reqs[1].Method)
}

func TestSubscribeAccountChannelIsOneMessage(t *testing.T) {
	tr := New(translator.Options{UserAddress: "0xabc"})
	req := models.NewSubscribeRequest(models.ExchangeHyperliquid, models.ChannelFills, nil)

	msgs, err := tr.ToNativeSubscribe(req)
	require.NoError(t, err)
	reqs := decodeMessages(t, msgs)
	require.Len(t, reqs, 1)
	assert.Equal(t, subscription{Type: "userFills", User: "0xabc"}, reqs[0].Subscription)

	override := models.NewSubscribeRequest(models.ExchangeHyperliquid, models.ChannelBalances, nil, models.WithOption("user", "0xdef"))
	msgs, err = tr.ToNativeSubscribe(override)
	require.NoError(t, err)
	reqs = decodeMessages(t, msgs)
	require.Len(t, reqs, 1)
	assert.Equal(t, subscription{Type: "clearinghouseState", User: "0xdef"}, reqs[0].Subscription)
}

func TestSubscribeErrors(t *testing.T) {
	tr := New(translator.Options{})

	_, err := tr.ToNativeSubscribe(models.NewSubscribeRequest(models.ExchangeHyperliquid, models.ChannelPositions, nil))
	assert.ErrorIs(t, err, translator.ErrUserRequired)

	_, err = tr.ToNativeSubscribe(models.NewSubscribeRequest(models.ExchangeHyperliquid, models.ChannelFundingRate, []string{"BTC"}))
	assert.ErrorIs(t, err, translator.ErrUnsupportedChannel)
}

func TestSubscribeCandleAndBook(t *testing.T) {
	tr := New(translator.Options{})

	msgs, err := tr.ToNativeSubscribe(models.NewSubscribeRequest(models.ExchangeHyperliquid, models.ChannelCandles, []string{"BTC"}))
	require.NoError(t, err)
	assert.Equal(t, "1m", decodeMessages(t, msgs)[0].Subscription.Interval)

	msgs, err = tr.ToNativeSubscribe(models.NewSubscribeRequest(models.ExchangeHyperliquid, models.ChannelOrderBookL2, []string{"BTC"},
		models.WithOption("nSigFigs", "5")))
	require.NoError(t, err)
	sub := decodeMessages(t, msgs)[0].Subscription
	assert.Equal(t, "l2Book", sub.Type)
	require.NotNil(t, sub.NSigFigs)
	assert.Equal(t, 5, *sub.NSigFigs)
}

func TestTradesNormalized(t *testing.T) {
	tr := New(translator.Options{})
	events, err := tr.FromNative(frame(`{"channel":"trades","data":[
		{"coin":"BTC","side":"B","px":"50123.45","sz":"0.1","time":1700000000000,"hash":"0x1","tid":1},
		{"coin":"BTC","side":"A","px":"50125.00","sz":"0.2","time":1700000000001,"hash":"0x2","tid":2}]}`))
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev, ok := events[0].(models.TradesEvent)
	require.True(t, ok)
	assert.Equal(t, models.ExchangeHyperliquid, ev.Exchange)
	assert.Equal(t, models.ChannelTrades, ev.Channel)
	assert.Equal(t, "BTC", ev.Symbol)
	require.Len(t, ev.Trades, 2)
	assert.Equal(t, models.SideBuy, ev.Trades[0].Side)
	assert.Equal(t, models.SideSell, ev.Trades[1].Side)
	assert.True(t, decimal.RequireFromString("50123.45").Equal(ev.Trades[0].Price))
	assert.True(t, decimal.RequireFromString("50125").Equal(ev.Trades[1].Price))
	assert.Equal(t, "1", ev.Trades[0].TradeID)
	assert.Nil(t, ev.Raw)
}

func TestCandleOpenStringOrNumber(t *testing.T) {
	tr := New(translator.Options{})
	quoted, err := tr.FromNative(frame(`{"channel":"candle","data":{"t":1700000000000,"T":1700000059999,"s":"BTC","i":"1m","o":"100.5","c":"101","h":"102","l":"99","v":"10","n":3}}`))
	require.NoError(t, err)
	bare, err := tr.FromNative(frame(`{"channel":"candle","data":{"t":1700000000000,"T":1700000059999,"s":"BTC","i":"1m","o":100.5,"c":101,"h":102,"l":99,"v":10,"n":3}}`))
	require.NoError(t, err)

	q := quoted[0].(models.CandleEvent).Candles[0]
	b := bare[0].(models.CandleEvent).Candles[0]
	assert.True(t, q.Open.Equal(b.Open))
	assert.True(t, decimal.RequireFromString("100.5").Equal(q.Open))
	require.NotNil(t, q.Trades)
	assert.EqualValues(t, 3, *q.Trades)
}

func TestBookAndBbo(t *testing.T) {
	tr := New(translator.Options{})
	events, err := tr.FromNative(frame(`{"channel":"l2Book","data":{"coin":"ETH","time":1700000000000,
		"levels":[[{"px":"2000","sz":"1","n":2}],[{"px":"2001","sz":"3","n":1},{"px":"2002","sz":"4","n":5}]]}}`))
	require.NoError(t, err)
	book := events[0].(models.OrderBookL2Event)
	assert.True(t, book.Snapshot)
	assert.Len(t, book.Bids, 1)
	assert.Len(t, book.Asks, 2)

	events, err = tr.FromNative(frame(`{"channel":"bbo","data":{"coin":"ETH","time":1700000000000,"bbo":[null,{"px":"2001","sz":"3","n":1}]}}`))
	require.NoError(t, err)
	top := events[0].(models.OrderBookL1Event)
	assert.Nil(t, top.Bid)
	require.NotNil(t, top.Ask)
	assert.True(t, decimal.NewFromInt(2001).Equal(top.Ask.Price))
}

func TestClearinghouseYieldsPositionsAndBalance(t *testing.T) {
	tr := New(translator.Options{})
	events, err := tr.FromNative(frame(`{"channel":"clearinghouseState","data":{"user":"0xabc","clearinghouseState":{
		"assetPositions":[{"position":{"coin":"BTC","szi":"-0.5","entryPx":"50000","unrealizedPnl":"12","leverage":{"type":"cross","value":5}}}],
		"marginSummary":{"accountValue":"1000","totalMarginUsed":"250"},"withdrawable":"700"}}}`))
	require.NoError(t, err)
	require.Len(t, events, 2)

	pos := events[0].(models.PositionEvent)
	assert.Equal(t, models.AccountSymbol, pos.Symbol)
	assert.Equal(t, models.PositionShort, pos.Positions[0].Side)
	assert.True(t, decimal.RequireFromString("0.5").Equal(pos.Positions[0].Size))
	assert.Equal(t, "cross", pos.Positions[0].MarginType)

	bal := events[1].(models.BalanceEvent)
	assert.Equal(t, models.ChannelBalances, bal.Channel)
	assert.Equal(t, "USDC", bal.Balances[0].Asset)
	assert.True(t, decimal.NewFromInt(700).Equal(*bal.Balances[0].Available))
}

func TestAllMidsSorted(t *testing.T) {
	tr := New(translator.Options{})
	events, err := tr.FromNative(frame(`{"channel":"allMids","data":{"mids":{"ETH":"2000.5","BTC":"50000"}}}`))
	require.NoError(t, err)
	mids := events[0].(models.AllMidsEvent).Mids
	require.Len(t, mids, 2)
	assert.Equal(t, "BTC", mids[0].Symbol)
	assert.Equal(t, "ETH", mids[1].Symbol)
}

func TestControlMessagesProduceNothing(t *testing.T) {
	tr := New(translator.Options{})
	for _, payload := range []string{
		`{"channel":"subscriptionResponse","data":{"method":"subscribe"}}`,
		`{"channel":"pong"}`,
		`{"channel":"somethingNew","data":{}}`,
	} {
		events, err := tr.FromNative(frame(payload))
		assert.NoError(t, err, payload)
		assert.Empty(t, events, payload)
	}
}

func TestMalformedFrames(t *testing.T) {
	tr := New(translator.Options{})
	_, err := tr.FromNative(frame(`{"channel":"trades","data":[{"coin":"BTC","side":"B","px":"abc"}]}`))
	assert.ErrorIs(t, err, translator.ErrMalformedFrame)

	_, err = tr.FromNative(frame(`not json`))
	assert.ErrorIs(t, err, translator.ErrMalformedFrame)
}

func TestIncludeRaw(t *testing.T) {
	tr := New(translator.Options{IncludeRaw: true})
	payload := `{"channel":"notification","data":{"notification":"liquidated"}}`
	events, err := tr.FromNative(frame(payload))
	require.NoError(t, err)
	ev := events[0].(models.NotificationEvent)
	assert.Equal(t, "liquidated", ev.Message)
	require.NotNil(t, ev.Raw)
	assert.Equal(t, payload, ev.Raw.Data)
	assert.Equal(t, "notification", ev.Raw.MessageType)
}
