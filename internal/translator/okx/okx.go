// Package okx translates the OKX v5 websocket API.
package okx

import (
	"bytes"
	"compress/flate"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"cryptoconnect/internal/translator"
	"cryptoconnect/internal/translator/wire"
	"cryptoconnect/internal/transport"
	"cryptoconnect/logger"
	"cryptoconnect/models"
)

const (
	PublicURL   = "wss://ws.okx.com:8443/ws/v5/public"
	PrivateURL  = "wss://ws.okx.com:8443/ws/v5/private"
	BusinessURL = "wss://ws.okx.com:8443/ws/v5/business"
)

var ping = transport.TextMessage("ping")

// Keepalive: OKX closes connections idle for 30s and expects a text ping.
var Keepalive = translator.Keepalive{Interval: 25 * time.Second, Message: &ping}

type Translator struct {
	opts translator.Options
	log  *logger.Entry
}

func New(opts translator.Options) *Translator {
	return &Translator{opts: opts, log: opts.Logger("okx_translator")}
}

func (t *Translator) Exchange() models.Exchange { return models.ExchangeOKX }

func (t *Translator) ToNativeSubscribe(req models.SubscribeRequest) ([]transport.Message, error) {
	return t.build("subscribe", req)
}

func (t *Translator) ToNativeUnsubscribe(req models.UnsubscribeRequest) ([]transport.Message, error) {
	return t.build("unsubscribe", models.SubscribeRequest(req))
}

func (t *Translator) build(op string, req models.SubscribeRequest) ([]transport.Message, error) {
	if req.Channel.UserScoped() {
		a, err := privateArg(req)
		if err != nil {
			return nil, err
		}
		msg, err := wire.JSON(request{Op: op, Args: []arg{a}})
		if err != nil {
			return nil, err
		}
		return []transport.Message{msg}, nil
	}

	channel, err := publicChannel(req)
	if err != nil {
		return nil, err
	}
	msgs := make([]transport.Message, 0, len(req.Symbols))
	for _, symbol := range req.Symbols {
		msg, err := wire.JSON(request{Op: op, Args: []arg{{Channel: channel, InstID: symbol}}})
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func privateArg(req models.SubscribeRequest) (arg, error) {
	instType := req.Options["instType"]
	if instType == "" {
		instType = "ANY"
	}
	switch req.Channel {
	case models.ChannelUserOrders, models.ChannelFills:
		return arg{Channel: "orders", InstType: instType}, nil
	case models.ChannelPositions:
		return arg{Channel: "positions", InstType: instType}, nil
	case models.ChannelBalances:
		return arg{Channel: "account"}, nil
	}
	return arg{}, fmt.Errorf("%w: okx %s", translator.ErrUnsupportedChannel, req.Channel)
}

func publicChannel(req models.SubscribeRequest) (string, error) {
	switch req.Channel {
	case models.ChannelTrades:
		return "trades", nil
	case models.ChannelOrderBookL1:
		return "bbo-tbt", nil
	case models.ChannelOrderBookL2:
		if req.Depth != nil && *req.Depth <= 5 {
			return "books5", nil
		}
		return "books", nil
	case models.ChannelCandles:
		return "candle" + nativeInterval(req.Interval), nil
	case models.ChannelFundingRate:
		return "funding-rate", nil
	}
	return "", fmt.Errorf("%w: okx %s", translator.ErrUnsupportedChannel, req.Channel)
}

// nativeInterval upper-cases hour, day and week units: 1h -> 1H.
func nativeInterval(interval string) string {
	if interval == "" {
		return "1m"
	}
	n := len(interval) - 1
	switch interval[n] {
	case 'h', 'd', 'w':
		return interval[:n] + strings.ToUpper(interval[n:])
	}
	return interval
}

func unifiedInterval(native string) string {
	if native == "" {
		return ""
	}
	n := len(native) - 1
	switch native[n] {
	case 'H', 'D', 'W':
		return native[:n] + strings.ToLower(native[n:])
	}
	return native
}

func decompress(payload []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(payload))
	defer r.Close()
	return io.ReadAll(r)
}

func (t *Translator) FromNative(frame transport.Frame) ([]models.Event, error) {
	payload := frame.Payload
	if frame.Kind == transport.Binary {
		out, err := decompress(payload)
		if err != nil {
			return nil, wire.Malformed(err)
		}
		payload = out
	}
	if string(bytes.TrimSpace(payload)) == "pong" {
		return nil, nil
	}

	var msg message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, wire.Malformed(err)
	}

	switch msg.Event {
	case "":
	case "error":
		t.log.WithFields(logger.Fields{"code": msg.Code, "msg": msg.Msg}).Warn("request rejected")
		return nil, nil
	default:
		t.log.WithFields(logger.Fields{"event": msg.Event, "channel": msg.Arg.Channel}).Debug("event message")
		return nil, nil
	}

	channel := msg.Arg.Channel
	switch {
	case channel == "trades":
		return t.trades(frame, msg)
	case channel == "bbo-tbt":
		return t.bbo(frame, msg)
	case strings.HasPrefix(channel, "books"):
		return t.book(frame, msg)
	case strings.HasPrefix(channel, "candle"):
		return t.candles(frame, msg)
	case channel == "funding-rate":
		return t.funding(frame, msg)
	case channel == "orders":
		return t.orders(frame, msg)
	case channel == "positions":
		return t.positions(frame, msg)
	case channel == "account":
		return t.account(frame, msg)
	}
	t.log.WithField("channel", channel).Debug("unknown channel")
	return nil, nil
}

func (t *Translator) envelope(ch models.Channel, symbol string, frame transport.Frame, msg message, seq int64) models.Envelope {
	env := wire.Envelope(models.ExchangeOKX, ch, symbol, frame, t.opts.IncludeRaw, msg.Arg.Channel)
	env.Sequence = wire.Seq(seq)
	return env
}

func decodeData(data json.RawMessage, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return wire.Malformed(err)
	}
	return nil
}

func (t *Translator) trades(frame transport.Frame, msg message) ([]models.Event, error) {
	var raw []trade
	if err := decodeData(msg.Data, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	entries := make([]models.TradeEntry, 0, len(raw))
	for _, tr := range raw {
		side, err := wire.Side(tr.Side)
		if err != nil {
			return nil, err
		}
		entries = append(entries, models.TradeEntry{
			TradeID: tr.TradeID,
			Price:   tr.Px.Decimal,
			Size:    tr.Sz.Decimal,
			Side:    side,
			Time:    tr.Ts.Time(),
		})
	}
	return []models.Event{models.TradesEvent{
		Envelope: t.envelope(models.ChannelTrades, msg.Arg.InstID, frame, msg, 0),
		Trades:   entries,
	}}, nil
}

func toLevel(l level) (models.PriceLevel, bool) {
	if len(l) < 2 || !l[0].Valid {
		return models.PriceLevel{}, false
	}
	pl := models.PriceLevel{Price: l[0].Decimal, Size: l[1].Decimal}
	if len(l) >= 4 && l[3].Valid {
		n := l[3].IntPart()
		pl.Orders = &n
	}
	return pl, true
}

func toLevels(in []level) []models.PriceLevel {
	out := make([]models.PriceLevel, 0, len(in))
	for _, l := range in {
		if pl, ok := toLevel(l); ok {
			out = append(out, pl)
		}
	}
	return out
}

func firstBook(msg message) (book, error) {
	var books []book
	if err := decodeData(msg.Data, &books); err != nil {
		return book{}, err
	}
	if len(books) == 0 {
		return book{}, wire.Malformed(fmt.Errorf("%s push without data", msg.Arg.Channel))
	}
	return books[0], nil
}

func (t *Translator) bbo(frame transport.Frame, msg message) ([]models.Event, error) {
	b, err := firstBook(msg)
	if err != nil {
		return nil, err
	}
	ev := models.OrderBookL1Event{
		Envelope: t.envelope(models.ChannelOrderBookL1, msg.Arg.InstID, frame, msg, b.SeqID),
		Time:     b.Ts.Ptr(),
	}
	if bids := toLevels(b.Bids); len(bids) > 0 {
		ev.Bid = &bids[0]
	}
	if asks := toLevels(b.Asks); len(asks) > 0 {
		ev.Ask = &asks[0]
	}
	return []models.Event{ev}, nil
}

func (t *Translator) book(frame transport.Frame, msg message) ([]models.Event, error) {
	b, err := firstBook(msg)
	if err != nil {
		return nil, err
	}
	return []models.Event{models.OrderBookL2Event{
		Envelope: t.envelope(models.ChannelOrderBookL2, msg.Arg.InstID, frame, msg, b.SeqID),
		// books5 pushes full snapshots without an action
		Snapshot: msg.Action != "update",
		Bids:     toLevels(b.Bids),
		Asks:     toLevels(b.Asks),
		Time:     b.Ts.Ptr(),
	}}, nil
}

func parseCandle(c candle, interval string) (models.CandleEntry, error) {
	if len(c) < 6 {
		return models.CandleEntry{}, wire.Malformed(fmt.Errorf("candle has %d fields", len(c)))
	}
	var ts wire.Millis
	if err := json.Unmarshal(c[0], &ts); err != nil {
		return models.CandleEntry{}, wire.Malformed(err)
	}
	var ohlcv [5]wire.Decimal
	for i := range ohlcv {
		if err := json.Unmarshal(c[i+1], &ohlcv[i]); err != nil {
			return models.CandleEntry{}, wire.Malformed(err)
		}
	}
	entry := models.CandleEntry{
		OpenTime: ts.Time(),
		Interval: interval,
		Open:     ohlcv[0].Decimal,
		High:     ohlcv[1].Decimal,
		Low:      ohlcv[2].Decimal,
		Close:    ohlcv[3].Decimal,
		Volume:   ohlcv[4].Decimal,
	}
	if len(c) >= 8 {
		var quote wire.Decimal
		if err := json.Unmarshal(c[7], &quote); err == nil {
			entry.Turnover = quote.Ptr()
		}
	}
	if len(c) >= 9 {
		var confirm string
		if err := json.Unmarshal(c[8], &confirm); err == nil {
			done := confirm == "1"
			entry.Confirmed = &done
		}
	}
	return entry, nil
}

func (t *Translator) candles(frame transport.Frame, msg message) ([]models.Event, error) {
	var raw []candle
	if err := decodeData(msg.Data, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	interval := unifiedInterval(strings.TrimPrefix(msg.Arg.Channel, "candle"))
	entries := make([]models.CandleEntry, 0, len(raw))
	for _, c := range raw {
		entry, err := parseCandle(c, interval)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return []models.Event{models.CandleEvent{
		Envelope: t.envelope(models.ChannelCandles, msg.Arg.InstID, frame, msg, 0),
		Candles:  entries,
	}}, nil
}

func (t *Translator) funding(frame transport.Frame, msg message) ([]models.Event, error) {
	var raw []fundingRate
	if err := decodeData(msg.Data, &raw); err != nil {
		return nil, err
	}
	events := make([]models.Event, 0, len(raw))
	for _, f := range raw {
		symbol := f.InstID
		if symbol == "" {
			symbol = msg.Arg.InstID
		}
		events = append(events, models.FundingRateEvent{
			Envelope:        t.envelope(models.ChannelFundingRate, symbol, frame, msg, 0),
			FundingRate:     f.FundingRate.Decimal,
			NextFundingTime: f.NextFundingTime.Ptr(),
		})
	}
	return events, nil
}

// orders serves both user-orders and fills: every push yields an order
// event, and pushes that carry a fill also yield a fill event.
func (t *Translator) orders(frame transport.Frame, msg message) ([]models.Event, error) {
	var raw []order
	if err := decodeData(msg.Data, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	orders := make([]models.UserOrderEntry, 0, len(raw))
	var fills []models.FillEntry
	for _, o := range raw {
		side, err := wire.Side(o.Side)
		if err != nil {
			return nil, err
		}
		orders = append(orders, models.UserOrderEntry{
			OrderID:       o.OrdID,
			ClientOrderID: o.ClOrdID,
			Symbol:        o.InstID,
			Side:          side,
			OrderType:     o.OrdType,
			Price:         o.Px.Decimal,
			Size:          o.Sz.Decimal.Sub(o.AccFillSz.Decimal),
			OriginalSize:  o.Sz.Ptr(),
			FilledSize:    o.AccFillSz.Ptr(),
			Status:        o.State,
			Time:          o.UTime.Time(),
		})
		if o.FillSz.Valid && o.FillSz.IsPositive() {
			fills = append(fills, models.FillEntry{
				TradeID:   o.TradeID,
				OrderID:   o.OrdID,
				Symbol:    o.InstID,
				Side:      side,
				Price:     o.FillPx.Decimal,
				Size:      o.FillSz.Decimal,
				Fee:       o.FillFee.Ptr(),
				FeeAsset:  o.FillFeeCcy,
				ClosedPnl: o.FillPnl.Ptr(),
				Time:      o.FillTime.Time(),
			})
		}
	}
	events := []models.Event{models.UserOrderEvent{
		Envelope: t.envelope(models.ChannelUserOrders, models.AccountSymbol, frame, msg, 0),
		Orders:   orders,
	}}
	if len(fills) > 0 {
		events = append(events, models.FillEvent{
			Envelope: t.envelope(models.ChannelFills, models.AccountSymbol, frame, msg, 0),
			Fills:    fills,
		})
	}
	return events, nil
}

func (t *Translator) positions(frame transport.Frame, msg message) ([]models.Event, error) {
	var raw []position
	if err := decodeData(msg.Data, &raw); err != nil {
		return nil, err
	}
	positions := make([]models.PositionEntry, 0, len(raw))
	for _, p := range raw {
		// pos "0" reports a closed position and is kept with a zero size.
		if !p.Pos.Valid {
			continue
		}
		side := models.PositionLong
		switch {
		case p.PosSide == "short":
			side = models.PositionShort
		case p.PosSide == "net" && p.Pos.IsNegative():
			side = models.PositionShort
		}
		positions = append(positions, models.PositionEntry{
			Symbol:           p.InstID,
			Side:             side,
			Size:             p.Pos.Abs(),
			EntryPrice:       p.AvgPx.Ptr(),
			UnrealizedPnl:    p.Upl.Ptr(),
			LiquidationPrice: p.LiqPx.Ptr(),
			Leverage:         p.Lever.Ptr(),
			MarginType:       p.MgnMode,
		})
	}
	if len(positions) == 0 {
		return nil, nil
	}
	return []models.Event{models.PositionEvent{
		Envelope:  t.envelope(models.ChannelPositions, models.AccountSymbol, frame, msg, 0),
		Positions: positions,
	}}, nil
}

func (t *Translator) account(frame transport.Frame, msg message) ([]models.Event, error) {
	var raw []account
	if err := decodeData(msg.Data, &raw); err != nil {
		return nil, err
	}
	events := make([]models.Event, 0, len(raw))
	for _, a := range raw {
		balances := make([]models.BalanceEntry, 0, len(a.Details))
		for _, d := range a.Details {
			balances = append(balances, models.BalanceEntry{
				Asset:     d.Ccy,
				Total:     d.Eq.Decimal,
				Available: d.AvailBal.Ptr(),
			})
		}
		events = append(events, models.BalanceEvent{
			Envelope:        t.envelope(models.ChannelBalances, models.AccountSymbol, frame, msg, 0),
			Balances:        balances,
			AccountValue:    a.TotalEq.Ptr(),
			TotalMarginUsed: a.Imr.Ptr(),
		})
	}
	return events, nil
}
