// Package bybit translates the Bybit v5 websocket API.
package bybit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cryptoconnect/internal/translator"
	"cryptoconnect/internal/translator/wire"
	"cryptoconnect/internal/transport"
	"cryptoconnect/logger"
	"cryptoconnect/models"
)

const (
	PublicLinearURL = "wss://stream.bybit.com/v5/public/linear"
	PrivateURL      = "wss://stream.bybit.com/v5/private"

	defaultBookDepth = 50
)

var ping = transport.TextMessage(`{"op":"ping"}`)

var Keepalive = translator.Keepalive{Interval: 20 * time.Second, Message: &ping}

// intervals maps unified candle intervals onto kline topic suffixes.
var intervals = map[string]string{
	"1m": "1", "3m": "3", "5m": "5", "15m": "15", "30m": "30",
	"1h": "60", "2h": "120", "4h": "240", "6h": "360", "12h": "720",
	"1d": "D", "1w": "W", "1M": "M",
}

type Translator struct {
	opts translator.Options
	log  *logger.Entry
}

func New(opts translator.Options) *Translator {
	return &Translator{opts: opts, log: opts.Logger("bybit_translator")}
}

func (t *Translator) Exchange() models.Exchange { return models.ExchangeBybit }

func (t *Translator) ToNativeSubscribe(req models.SubscribeRequest) ([]transport.Message, error) {
	return t.build("subscribe", req)
}

func (t *Translator) ToNativeUnsubscribe(req models.UnsubscribeRequest) ([]transport.Message, error) {
	return t.build("unsubscribe", models.SubscribeRequest(req))
}

func (t *Translator) build(op string, req models.SubscribeRequest) ([]transport.Message, error) {
	if req.Channel.UserScoped() {
		topic, err := privateTopic(req.Channel)
		if err != nil {
			return nil, err
		}
		msg, err := wire.JSON(request{ReqID: req.CorrelationID, Op: op, Args: []string{topic}})
		if err != nil {
			return nil, err
		}
		return []transport.Message{msg}, nil
	}

	msgs := make([]transport.Message, 0, len(req.Symbols))
	for _, symbol := range req.Symbols {
		topic, err := publicTopic(req, symbol)
		if err != nil {
			return nil, err
		}
		msg, err := wire.JSON(request{ReqID: req.CorrelationID, Op: op, Args: []string{topic}})
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func privateTopic(ch models.Channel) (string, error) {
	switch ch {
	case models.ChannelUserOrders:
		return "order", nil
	case models.ChannelFills:
		return "execution", nil
	case models.ChannelPositions:
		return "position", nil
	case models.ChannelBalances:
		return "wallet", nil
	}
	return "", fmt.Errorf("%w: bybit %s", translator.ErrUnsupportedChannel, ch)
}

func publicTopic(req models.SubscribeRequest, symbol string) (string, error) {
	switch req.Channel {
	case models.ChannelTrades:
		return "publicTrade." + symbol, nil
	case models.ChannelOrderBookL1:
		return "orderbook.1." + symbol, nil
	case models.ChannelOrderBookL2:
		depth := defaultBookDepth
		if req.Depth != nil {
			depth = *req.Depth
		}
		return fmt.Sprintf("orderbook.%d.%s", depth, symbol), nil
	case models.ChannelCandles:
		interval := req.Interval
		if interval == "" {
			interval = "1m"
		}
		if native, ok := intervals[interval]; ok {
			interval = native
		}
		return fmt.Sprintf("kline.%s.%s", interval, symbol), nil
	case models.ChannelFundingRate:
		return "tickers." + symbol, nil
	}
	return "", fmt.Errorf("%w: bybit %s", translator.ErrUnsupportedChannel, req.Channel)
}

func (t *Translator) FromNative(frame transport.Frame) ([]models.Event, error) {
	var msg message
	if err := wire.Decode(frame, &msg); err != nil {
		return nil, err
	}

	if msg.Topic == "" {
		switch {
		case msg.Op == "pong" || msg.RetMsg == "pong":
		case msg.Success != nil && !*msg.Success:
			t.log.WithFields(logger.Fields{"op": msg.Op, "ret_msg": msg.RetMsg}).Warn("request rejected")
		default:
			t.log.WithField("op", msg.Op).Debug("op response")
		}
		return nil, nil
	}

	prefix, symbol := splitTopic(msg.Topic)
	switch prefix {
	case "publicTrade":
		return t.trades(frame, msg, symbol)
	case "orderbook":
		return t.book(frame, msg)
	case "kline":
		return t.klines(frame, msg, symbol)
	case "tickers":
		return t.ticker(frame, msg)
	case "order":
		return t.orders(frame, msg)
	case "execution":
		return t.executions(frame, msg)
	case "position":
		return t.positions(frame, msg)
	case "wallet":
		return t.wallet(frame, msg)
	}
	t.log.WithField("topic", msg.Topic).Debug("unknown topic")
	return nil, nil
}

// splitTopic returns the topic family and the trailing symbol, if any.
func splitTopic(topic string) (string, string) {
	parts := strings.Split(topic, ".")
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[len(parts)-1]
}

func (t *Translator) envelope(ch models.Channel, symbol string, frame transport.Frame, msg message, seq int64) models.Envelope {
	env := wire.Envelope(models.ExchangeBybit, ch, symbol, frame, t.opts.IncludeRaw, msg.Topic)
	env.Sequence = wire.Seq(seq)
	return env
}

func decodeData(data json.RawMessage, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return wire.Malformed(err)
	}
	return nil
}

func (t *Translator) trades(frame transport.Frame, msg message, symbol string) ([]models.Event, error) {
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
			TradeID: tr.ID,
			Price:   tr.Price.Decimal,
			Size:    tr.Size.Decimal,
			Side:    side,
			Time:    tr.Time.Time(),
		})
	}
	return []models.Event{models.TradesEvent{
		Envelope: t.envelope(models.ChannelTrades, symbol, frame, msg, 0),
		Trades:   entries,
	}}, nil
}

func toLevels(in [][2]wire.Decimal) []models.PriceLevel {
	out := make([]models.PriceLevel, 0, len(in))
	for _, l := range in {
		out = append(out, models.PriceLevel{Price: l[0].Decimal, Size: l[1].Decimal})
	}
	return out
}

func (t *Translator) book(frame transport.Frame, msg message) ([]models.Event, error) {
	var b book
	if err := decodeData(msg.Data, &b); err != nil {
		return nil, err
	}
	at := msg.Ts.Ptr()
	seq := b.Seq
	if seq == 0 {
		seq = b.UpdateID
	}

	if strings.HasPrefix(msg.Topic, "orderbook.1.") {
		ev := models.OrderBookL1Event{
			Envelope: t.envelope(models.ChannelOrderBookL1, b.Symbol, frame, msg, seq),
			Time:     at,
		}
		if bids := toLevels(b.Bids); len(bids) > 0 {
			ev.Bid = &bids[0]
		}
		if asks := toLevels(b.Asks); len(asks) > 0 {
			ev.Ask = &asks[0]
		}
		return []models.Event{ev}, nil
	}

	return []models.Event{models.OrderBookL2Event{
		Envelope: t.envelope(models.ChannelOrderBookL2, b.Symbol, frame, msg, seq),
		Snapshot: msg.Type == "snapshot",
		Bids:     toLevels(b.Bids),
		Asks:     toLevels(b.Asks),
		Time:     at,
	}}, nil
}

func (t *Translator) klines(frame transport.Frame, msg message, symbol string) ([]models.Event, error) {
	var raw []kline
	if err := decodeData(msg.Data, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	entries := make([]models.CandleEntry, 0, len(raw))
	for _, k := range raw {
		confirmed := k.Confirm
		entries = append(entries, models.CandleEntry{
			OpenTime:  k.Start.Time(),
			CloseTime: k.End.Ptr(),
			Interval:  unifiedInterval(k.Interval),
			Open:      k.Open.Decimal,
			High:      k.High.Decimal,
			Low:       k.Low.Decimal,
			Close:     k.Close.Decimal,
			Volume:    k.Volume.Decimal,
			Confirmed: &confirmed,
			Turnover:  k.Turnover.Ptr(),
		})
	}
	return []models.Event{models.CandleEvent{
		Envelope: t.envelope(models.ChannelCandles, symbol, frame, msg, 0),
		Candles:  entries,
	}}, nil
}

func unifiedInterval(native string) string {
	for unified, n := range intervals {
		if n == native {
			return unified
		}
	}
	return native
}

// ticker emits a funding-rate event. Delta pushes without a funding rate
// produce nothing.
func (t *Translator) ticker(frame transport.Frame, msg message) ([]models.Event, error) {
	var tk ticker
	if err := decodeData(msg.Data, &tk); err != nil {
		return nil, err
	}
	if !tk.FundingRate.Valid {
		return nil, nil
	}
	return []models.Event{models.FundingRateEvent{
		Envelope:        t.envelope(models.ChannelFundingRate, tk.Symbol, frame, msg, 0),
		FundingRate:     tk.FundingRate.Decimal,
		MarkPrice:       tk.MarkPrice.Ptr(),
		NextFundingTime: tk.NextFundingTime.Ptr(),
	}}, nil
}

func (t *Translator) orders(frame transport.Frame, msg message) ([]models.Event, error) {
	var raw []order
	if err := decodeData(msg.Data, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	orders := make([]models.UserOrderEntry, 0, len(raw))
	for _, o := range raw {
		side, err := wire.Side(o.Side)
		if err != nil {
			return nil, err
		}
		orders = append(orders, models.UserOrderEntry{
			OrderID:       o.OrderID,
			ClientOrderID: o.OrderLinkID,
			Symbol:        o.Symbol,
			Side:          side,
			OrderType:     strings.ToLower(o.OrderType),
			Price:         o.Price.Decimal,
			Size:          o.LeavesQty.Decimal,
			OriginalSize:  o.Qty.Ptr(),
			FilledSize:    o.CumExecQty.Ptr(),
			Status:        strings.ToLower(o.OrderStatus),
			Time:          o.UpdatedTime.Time(),
		})
	}
	return []models.Event{models.UserOrderEvent{
		Envelope: t.envelope(models.ChannelUserOrders, models.AccountSymbol, frame, msg, 0),
		Orders:   orders,
	}}, nil
}

func (t *Translator) executions(frame transport.Frame, msg message) ([]models.Event, error) {
	var raw []execution
	if err := decodeData(msg.Data, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	fills := make([]models.FillEntry, 0, len(raw))
	for _, e := range raw {
		side, err := wire.Side(e.Side)
		if err != nil {
			return nil, err
		}
		fills = append(fills, models.FillEntry{
			TradeID:   e.ExecID,
			OrderID:   e.OrderID,
			Symbol:    e.Symbol,
			Side:      side,
			Price:     e.ExecPrice.Decimal,
			Size:      e.ExecQty.Decimal,
			Fee:       e.ExecFee.Ptr(),
			FeeAsset:  e.FeeCurrency,
			ClosedPnl: e.ClosedPnl.Ptr(),
			Time:      e.ExecTime.Time(),
		})
	}
	return []models.Event{models.FillEvent{
		Envelope: t.envelope(models.ChannelFills, models.AccountSymbol, frame, msg, 0),
		Fills:    fills,
	}}, nil
}

func (t *Translator) positions(frame transport.Frame, msg message) ([]models.Event, error) {
	var raw []position
	if err := decodeData(msg.Data, &raw); err != nil {
		return nil, err
	}
	positions := make([]models.PositionEntry, 0, len(raw))
	for _, p := range raw {
		var side models.PositionSide
		switch p.Side {
		case "Buy":
			side = models.PositionLong
		case "Sell":
			side = models.PositionShort
		default:
			// flat
			continue
		}
		marginType := "cross"
		if p.TradeMode == 1 {
			marginType = "isolated"
		}
		positions = append(positions, models.PositionEntry{
			Symbol:           p.Symbol,
			Side:             side,
			Size:             p.Size.Decimal,
			EntryPrice:       p.EntryPrice.Ptr(),
			UnrealizedPnl:    p.UnrealisedPnl.Ptr(),
			LiquidationPrice: p.LiqPrice.Ptr(),
			Leverage:         p.Leverage.Ptr(),
			MarginType:       marginType,
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

func (t *Translator) wallet(frame transport.Frame, msg message) ([]models.Event, error) {
	var raw []wallet
	if err := decodeData(msg.Data, &raw); err != nil {
		return nil, err
	}
	var events []models.Event
	for _, w := range raw {
		balances := make([]models.BalanceEntry, 0, len(w.Coin))
		for _, c := range w.Coin {
			total := c.WalletBalance.Decimal
			if c.Equity.Valid {
				total = c.Equity.Decimal
			}
			balances = append(balances, models.BalanceEntry{
				Asset:     c.Coin,
				Total:     total,
				Available: c.AvailableToWithdraw.Ptr(),
			})
		}
		events = append(events, models.BalanceEvent{
			Envelope:        t.envelope(models.ChannelBalances, models.AccountSymbol, frame, msg, 0),
			Balances:        balances,
			AccountValue:    w.TotalEquity.Ptr(),
			TotalMarginUsed: w.TotalInitialMargin.Ptr(),
		})
	}
	return events, nil
}
