package models

import (
	"bytes"
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestKeyOfPublicChannelIgnoresSymbolOrder(t *testing.T) {
	a := NewSubscribeRequest(ExchangeHyperliquid, ChannelTrades, []string{"ETH", "BTC"})
	b := NewSubscribeRequest(ExchangeHyperliquid, ChannelTrades, []string{"BTC", "ETH", "BTC"})

	if a.CorrelationID == b.CorrelationID {
		t.Fatalf("correlation ids should differ: %s", a.CorrelationID)
	}
	if a.Key() != b.Key() {
		t.Fatalf("keys differ: %v vs %v", a.Key(), b.Key())
	}
	if got := a.Key().Params; got != "symbols=BTC,ETH" {
		t.Errorf("unexpected params: %s", got)
	}
}

func TestKeyOfIncludesIntervalDepthAndOptions(t *testing.T) {
	base := NewSubscribeRequest(ExchangeBybit, ChannelCandles, []string{"BTCUSDT"}, WithInterval("1m"))
	other := NewSubscribeRequest(ExchangeBybit, ChannelCandles, []string{"BTCUSDT"}, WithInterval("5m"))
	if base.Key() == other.Key() {
		t.Fatalf("interval not part of key: %v", base.Key())
	}

	withOpts := NewSubscribeRequest(ExchangeBybit, ChannelOrderBookL2, []string{"BTCUSDT"},
		WithDepth(50), WithOption("b", "2"), WithOption("a", "1"))
	if got := withOpts.Key().Params; got != "symbols=BTCUSDT;depth=50;a=1;b=2" {
		t.Errorf("unexpected params: %s", got)
	}
}

func TestKeyOfUserScopedChannelIsAccountWide(t *testing.T) {
	a := NewSubscribeRequest(ExchangeHyperliquid, ChannelFills, []string{"BTC"})
	b := NewSubscribeRequest(ExchangeHyperliquid, ChannelFills, nil)
	if a.Key() != b.Key() {
		t.Fatalf("account keys differ: %v vs %v", a.Key(), b.Key())
	}
	if a.Key() != a.Unsubscribe().Key() {
		t.Fatalf("unsubscribe key differs: %v", a.Unsubscribe().Key())
	}
}

func TestNewSubscribeRequestCopiesSymbols(t *testing.T) {
	symbols := []string{"BTC"}
	req := NewSubscribeRequest(ExchangeHyperliquid, ChannelTrades, symbols)
	symbols[0] = "ETH"
	if !reflect.DeepEqual(req.Symbols, []string{"BTC"}) {
		t.Fatalf("symbols aliased: %v", req.Symbols)
	}
}

func TestValidate(t *testing.T) {
	valid := []SubscribeRequest{
		NewSubscribeRequest(ExchangeOKX, ChannelTrades, []string{"BTC-USDT"}),
		NewSubscribeRequest(ExchangeHyperliquid, ChannelAllMids, nil),
	}
	for _, req := range valid {
		if err := req.Validate(); err != nil {
			t.Errorf("%s: unexpected error: %v", req.Channel, err)
		}
	}

	invalid := []SubscribeRequest{
		NewSubscribeRequest(ExchangeOKX, ChannelTrades, nil),
		NewSubscribeRequest(ExchangeOKX, Channel("bogus"), []string{"x"}),
		NewSubscribeRequest(ExchangeOKX, ChannelOrderBookL2, []string{"x"}, WithDepth(0)),
	}
	for _, req := range invalid {
		if err := req.Validate(); err == nil {
			t.Errorf("%s: expected validation error", req.Channel)
		}
	}
}

func TestParseSide(t *testing.T) {
	cases := map[string]Side{"B": SideBuy, "buy": SideBuy, "Bid": SideBuy, "A": SideSell, "Sell": SideSell, "ask": SideSell}
	for in, want := range cases {
		got, err := ParseSide(in)
		if err != nil {
			t.Fatalf("ParseSide(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseSide(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := ParseSide("sideways"); err == nil {
		t.Errorf("expected error for unknown side")
	}
}

func TestParseChannelAcceptsCompactSpellings(t *testing.T) {
	for _, in := range []string{"orderbook-l2", "orderBookL2", "ORDERBOOK_L2"} {
		ch, err := ParseChannel(in)
		if err != nil {
			t.Fatalf("ParseChannel(%q): %v", in, err)
		}
		if ch != ChannelOrderBookL2 {
			t.Errorf("ParseChannel(%q) = %s", in, ch)
		}
	}
	if _, err := ParseChannel("nope"); err == nil {
		t.Errorf("expected error for unknown channel")
	}
}

func TestEventJSONOmitsAbsentFields(t *testing.T) {
	ev := TradesEvent{
		Envelope: Envelope{
			Exchange:   ExchangeHyperliquid,
			Channel:    ChannelTrades,
			Symbol:     "BTC",
			ReceivedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		Trades: []TradeEntry{{Price: decimal.RequireFromString("50123.45"), Size: decimal.NewFromInt(1), Side: SideBuy}},
	}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if fields["exchange"] != "hyperliquid" || fields["channel"] != "trades" {
		t.Errorf("unexpected envelope: %v", fields)
	}
	if _, ok := fields["receivedAt"]; !ok {
		t.Errorf("receivedAt missing: %s", data)
	}
	for _, absent := range []string{"sequence", "raw"} {
		if _, ok := fields[absent]; ok {
			t.Errorf("%s should be omitted: %s", absent, data)
		}
	}

	trade := fields["trades"].([]any)[0].(map[string]any)
	if trade["price"] != "50123.45" || trade["side"] != "buy" {
		t.Errorf("unexpected trade: %v", trade)
	}
	if _, ok := trade["tradeId"]; ok {
		t.Errorf("empty tradeId should be omitted: %v", trade)
	}
}

func TestRawPayload(t *testing.T) {
	raw := NewBinaryRaw([]byte{0x01, 0x02}, "trades")
	if raw.Encoding != RawBase64 {
		t.Fatalf("unexpected encoding: %s", raw.Encoding)
	}
	b, err := raw.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if !bytes.Equal(b, []byte{0x01, 0x02}) {
		t.Errorf("unexpected bytes: %x", b)
	}

	data, err := json.Marshal(NewTextRaw(`{"a":1}`, ""))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if want := `{"encoding":"text","data":"{\"a\":1}"}`; string(data) != want {
		t.Errorf("raw JSON = %s, want %s", data, want)
	}
}
