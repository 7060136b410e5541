package mexc

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

func TestSubscribeMethods(t *testing.T) {
	tr := New(translator.Options{})
	cases := []struct {
		req  models.SubscribeRequest
		want request
	}{
		{models.NewSubscribeRequest(models.ExchangeMEXC, models.ChannelTrades, []string{"BTC_USDT"}),
			request{Method: "sub.deal", Param: param{Symbol: "BTC_USDT"}}},
		{models.NewSubscribeRequest(models.ExchangeMEXC, models.ChannelOrderBookL2, []string{"BTC_USDT"}, models.WithDepth(20)),
			request{Method: "sub.depth.full", Param: param{Symbol: "BTC_USDT", Limit: 20}}},
		{models.NewSubscribeRequest(models.ExchangeMEXC, models.ChannelCandles, []string{"BTC_USDT"}, models.WithInterval("1h")),
			request{Method: "sub.kline", Param: param{Symbol: "BTC_USDT", Interval: "Min60"}}},
		{models.NewSubscribeRequest(models.ExchangeMEXC, models.ChannelFundingRate, []string{"BTC_USDT"}),
			request{Method: "sub.funding.rate", Param: param{Symbol: "BTC_USDT"}}},
	}
	for _, tc := range cases {
		msgs, err := tr.ToNativeSubscribe(tc.req)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		var got request
		require.NoError(t, json.Unmarshal(msgs[0].Payload, &got))
		assert.Equal(t, tc.want, got)
	}

	msgs, err := tr.ToNativeUnsubscribe(models.NewSubscribeRequest(models.ExchangeMEXC, models.ChannelTrades, []string{"BTC_USDT"}).Unsubscribe())
	require.NoError(t, err)
	assert.Contains(t, string(msgs[0].Payload), `"unsub.deal"`)

	_, err = tr.ToNativeSubscribe(models.NewSubscribeRequest(models.ExchangeMEXC, models.ChannelFills, nil))
	assert.ErrorIs(t, err, translator.ErrUnsupportedChannel)
}

func TestDealSides(t *testing.T) {
	tr := New(translator.Options{})
	events, err := tr.FromNative(frame(`{"channel":"push.deal","symbol":"BTC_USDT","ts":1700000000000,
		"data":[{"p":50123.45,"v":3,"T":1,"t":1700000000000},{"p":"50125.00","v":1,"T":2,"t":1700000000001}]}`))
	require.NoError(t, err)
	ev := events[0].(models.TradesEvent)
	assert.Equal(t, "BTC_USDT", ev.Symbol)
	assert.Equal(t, models.SideBuy, ev.Trades[0].Side)
	assert.Equal(t, models.SideSell, ev.Trades[1].Side)
	assert.True(t, decimal.RequireFromString("50123.45").Equal(ev.Trades[0].Price))

	single, err := tr.FromNative(frame(`{"channel":"push.deal","symbol":"BTC_USDT","data":{"p":1,"v":1,"T":2,"t":1}}`))
	require.NoError(t, err)
	assert.Len(t, single[0].(models.TradesEvent).Trades, 1)

	_, err = tr.FromNative(frame(`{"channel":"push.deal","symbol":"BTC_USDT","data":{"p":1,"v":1,"T":3,"t":1}}`))
	assert.ErrorIs(t, err, translator.ErrMalformedFrame)
}

func TestDepthAndKline(t *testing.T) {
	tr := New(translator.Options{})
	events, err := tr.FromNative(frame(`{"channel":"push.depth","symbol":"BTC_USDT","ts":1700000000000,
		"data":{"asks":[[50001,10,2]],"bids":[[50000,5,1]],"version":42}}`))
	require.NoError(t, err)
	book := events[0].(models.OrderBookL2Event)
	assert.False(t, book.Snapshot)
	assert.EqualValues(t, 42, *book.Sequence)
	assert.EqualValues(t, 2, *book.Asks[0].Orders)

	events, err = tr.FromNative(frame(`{"channel":"push.kline","symbol":"BTC_USDT",
		"data":{"a":233.74,"c":6885,"h":6910.5,"interval":"Min60","l":6885,"o":"6894.5","q":1611754,"symbol":"BTC_USDT","t":1587448800}}`))
	require.NoError(t, err)
	c := events[0].(models.CandleEvent).Candles[0]
	assert.Equal(t, "1h", c.Interval)
	assert.Equal(t, time.Unix(1587448800, 0).UTC(), c.OpenTime)
}

func TestTickerAndFunding(t *testing.T) {
	tr := New(translator.Options{})
	events, err := tr.FromNative(frame(`{"channel":"push.ticker","symbol":"BTC_USDT",
		"data":{"symbol":"BTC_USDT","bid1":100,"ask1":102,"fairPrice":101,"indexPrice":100.5,"fundingRate":0.0001,"holdVol":500}}`))
	require.NoError(t, err)
	ctx := events[0].(models.ActiveAssetCtxEvent)
	require.NotNil(t, ctx.MidPrice)
	assert.True(t, decimal.NewFromInt(101).Equal(*ctx.MidPrice))

	events, err = tr.FromNative(frame(`{"channel":"push.funding.rate","symbol":"BTC_USDT","data":{"symbol":"BTC_USDT","rate":0.0002,"nextSettleTime":1700028800000}}`))
	require.NoError(t, err)
	fr := events[0].(models.FundingRateEvent)
	assert.True(t, decimal.RequireFromString("0.0002").Equal(fr.FundingRate))
}

func TestControlChannels(t *testing.T) {
	tr := New(translator.Options{})
	for _, payload := range []string{
		`{"channel":"pong","data":1700000000000}`,
		`{"channel":"rs.sub.deal","data":"success","ts":1}`,
		`{"channel":"rs.error","data":"invalid symbol"}`,
	} {
		events, err := tr.FromNative(frame(payload))
		assert.NoError(t, err)
		assert.Empty(t, events)
	}
}
