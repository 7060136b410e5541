// Package hyperliquid translates the Hyperliquid websocket API.
package hyperliquid

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"cryptoconnect/internal/translator"
	"cryptoconnect/internal/translator/wire"
	"cryptoconnect/internal/transport"
	"cryptoconnect/logger"
	"cryptoconnect/models"
)

const (
	MainnetURL = "wss://api.hyperliquid.xyz/ws"
	TestnetURL = "wss://api.hyperliquid-testnet.xyz/ws"

	defaultCandleInterval = "1m"
	usdc                  = "USDC"
)

var ping = transport.TextMessage(`{"method":"ping"}`)

// Keepalive: the server drops connections silent for 60s.
var Keepalive = translator.Keepalive{Interval: 50 * time.Second, Message: &ping}

type Translator struct {
	opts translator.Options
	log  *logger.Entry
}

func New(opts translator.Options) *Translator {
	return &Translator{opts: opts, log: opts.Logger("hyperliquid_translator")}
}

func (t *Translator) Exchange() models.Exchange { return models.ExchangeHyperliquid }

func (t *Translator) ToNativeSubscribe(req models.SubscribeRequest) ([]transport.Message, error) {
	return t.build("subscribe", req)
}

func (t *Translator) ToNativeUnsubscribe(req models.UnsubscribeRequest) ([]transport.Message, error) {
	return t.build("unsubscribe", models.SubscribeRequest(req))
}

func (t *Translator) build(method string, req models.SubscribeRequest) ([]transport.Message, error) {
	if req.Channel.UserScoped() || req.Channel == models.ChannelAllMids {
		sub, err := t.subscriptionFor(req, "")
		if err != nil {
			return nil, err
		}
		msg, err := wire.JSON(request{Method: method, Subscription: sub})
		if err != nil {
			return nil, err
		}
		return []transport.Message{msg}, nil
	}

	msgs := make([]transport.Message, 0, len(req.Symbols))
	for _, symbol := range req.Symbols {
		sub, err := t.subscriptionFor(req, symbol)
		if err != nil {
			return nil, err
		}
		msg, err := wire.JSON(request{Method: method, Subscription: sub})
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (t *Translator) user(req models.SubscribeRequest) (string, error) {
	if u := req.Options["user"]; u != "" {
		return u, nil
	}
	if t.opts.UserAddress != "" {
		return t.opts.UserAddress, nil
	}
	return "", fmt.Errorf("%w: %s", translator.ErrUserRequired, req.Channel)
}

func (t *Translator) subscriptionFor(req models.SubscribeRequest, coin string) (subscription, error) {
	if req.Channel.UserScoped() {
		user, err := t.user(req)
		if err != nil {
			return subscription{}, err
		}
		var typ string
		switch req.Channel {
		case models.ChannelUserOrders:
			typ = "orderUpdates"
		case models.ChannelFills:
			typ = "userFills"
		case models.ChannelPositions, models.ChannelBalances:
			typ = "clearinghouseState"
		case models.ChannelUserFundings:
			typ = "userFundings"
		case models.ChannelLedger:
			typ = "userNonFundingLedgerUpdates"
		case models.ChannelNotifications:
			typ = "notification"
		case models.ChannelOpenOrders:
			typ = "openOrders"
		default:
			return subscription{}, fmt.Errorf("%w: hyperliquid %s", translator.ErrUnsupportedChannel, req.Channel)
		}
		return subscription{Type: typ, User: user, Dex: req.Options["dex"]}, nil
	}

	switch req.Channel {
	case models.ChannelTrades:
		return subscription{Type: "trades", Coin: coin}, nil
	case models.ChannelOrderBookL1:
		return subscription{Type: "bbo", Coin: coin}, nil
	case models.ChannelOrderBookL2:
		sub := subscription{Type: "l2Book", Coin: coin}
		if v := req.Options["nSigFigs"]; v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return subscription{}, fmt.Errorf("nSigFigs %q: %w", v, err)
			}
			sub.NSigFigs = &n
		}
		return sub, nil
	case models.ChannelCandles:
		interval := req.Interval
		if interval == "" {
			interval = defaultCandleInterval
		}
		return subscription{Type: "candle", Coin: coin, Interval: interval}, nil
	case models.ChannelAllMids:
		return subscription{Type: "allMids", Dex: req.Options["dex"]}, nil
	case models.ChannelActiveAssetCtx:
		return subscription{Type: "activeAssetCtx", Coin: coin}, nil
	}
	return subscription{}, fmt.Errorf("%w: hyperliquid %s", translator.ErrUnsupportedChannel, req.Channel)
}

func (t *Translator) FromNative(frame transport.Frame) ([]models.Event, error) {
	var env envelope
	if err := wire.Decode(frame, &env); err != nil {
		return nil, err
	}

	switch env.Channel {
	case "trades":
		return t.trades(frame, env.Data)
	case "bbo":
		return t.bbo(frame, env.Data)
	case "l2Book":
		return t.book(frame, env.Data)
	case "candle":
		return t.candles(frame, env.Data)
	case "allMids":
		return t.allMids(frame, env.Data)
	case "activeAssetCtx":
		return t.assetCtx(frame, env.Data)
	case "orderUpdates":
		return t.orderUpdates(frame, env.Data)
	case "userFills":
		return t.fills(frame, env.Data)
	case "clearinghouseState":
		return t.clearinghouse(frame, env.Data)
	case "userFundings":
		return t.fundings(frame, env.Data)
	case "userNonFundingLedgerUpdates":
		return t.ledger(frame, env.Data)
	case "notification":
		return t.notification(frame, env.Data)
	case "openOrders":
		return t.openOrders(frame, env.Data)
	case "subscriptionResponse":
		t.log.Debug("subscription confirmed")
	case "pong":
	case "":
		t.log.Debug("skipping non-channel message")
	default:
		t.log.WithField("channel", env.Channel).Debug("unknown channel")
	}
	return nil, nil
}

func (t *Translator) envelope(ch models.Channel, symbol string, frame transport.Frame, messageType string) models.Envelope {
	return wire.Envelope(models.ExchangeHyperliquid, ch, symbol, frame, t.opts.IncludeRaw, messageType)
}

func decodeData(data json.RawMessage, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return wire.Malformed(err)
	}
	return nil
}

func (t *Translator) trades(frame transport.Frame, data json.RawMessage) ([]models.Event, error) {
	var raw []trade
	if err := decodeData(data, &raw); err != nil {
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
			TradeID: tr.Tid.String(),
			Price:   tr.Px.Decimal,
			Size:    tr.Sz.Decimal,
			Side:    side,
			Time:    tr.Time.Time(),
		})
	}
	return []models.Event{models.TradesEvent{
		Envelope: t.envelope(models.ChannelTrades, raw[0].Coin, frame, "trades"),
		Trades:   entries,
	}}, nil
}

func toLevel(l *level) *models.PriceLevel {
	if l == nil || !l.Px.Valid {
		return nil
	}
	return &models.PriceLevel{Price: l.Px.Decimal, Size: l.Sz.Decimal, Orders: l.N}
}

func toLevels(in []level) []models.PriceLevel {
	out := make([]models.PriceLevel, 0, len(in))
	for i := range in {
		if lv := toLevel(&in[i]); lv != nil {
			out = append(out, *lv)
		}
	}
	return out
}

func (t *Translator) bbo(frame transport.Frame, data json.RawMessage) ([]models.Event, error) {
	var b bbo
	if err := decodeData(data, &b); err != nil {
		return nil, err
	}
	bid, ask := b.Bid, b.Ask
	if len(b.Bbo) == 2 {
		bid, ask = b.Bbo[0], b.Bbo[1]
	}
	return []models.Event{models.OrderBookL1Event{
		Envelope: t.envelope(models.ChannelOrderBookL1, b.Coin, frame, "bbo"),
		Bid:      toLevel(bid),
		Ask:      toLevel(ask),
		Time:     b.Time.Ptr(),
	}}, nil
}

func (t *Translator) book(frame transport.Frame, data json.RawMessage) ([]models.Event, error) {
	var b book
	if err := decodeData(data, &b); err != nil {
		return nil, err
	}
	if len(b.Levels) != 2 {
		return nil, wire.Malformed(fmt.Errorf("l2Book has %d sides", len(b.Levels)))
	}
	return []models.Event{models.OrderBookL2Event{
		Envelope: t.envelope(models.ChannelOrderBookL2, b.Coin, frame, "l2Book"),
		Snapshot: true,
		Bids:     toLevels(b.Levels[0]),
		Asks:     toLevels(b.Levels[1]),
		Time:     b.Time.Ptr(),
	}}, nil
}

func (t *Translator) candles(frame transport.Frame, data json.RawMessage) ([]models.Event, error) {
	var items []candle
	if len(data) > 0 && data[0] == '[' {
		if err := decodeData(data, &items); err != nil {
			return nil, err
		}
	} else {
		var c candle
		if err := decodeData(data, &c); err != nil {
			return nil, err
		}
		items = []candle{c}
	}
	if len(items) == 0 {
		return nil, nil
	}
	entries := make([]models.CandleEntry, 0, len(items))
	for _, c := range items {
		entries = append(entries, models.CandleEntry{
			OpenTime:  c.OpenTime.Time(),
			CloseTime: c.CloseTime.Ptr(),
			Interval:  c.Interval,
			Open:      c.Open.Decimal,
			High:      c.High.Decimal,
			Low:       c.Low.Decimal,
			Close:     c.Close.Decimal,
			Volume:    c.Volume.Decimal,
			Trades:    c.Trades,
		})
	}
	return []models.Event{models.CandleEvent{
		Envelope: t.envelope(models.ChannelCandles, items[0].Symbol, frame, "candle"),
		Candles:  entries,
	}}, nil
}

func (t *Translator) allMids(frame transport.Frame, data json.RawMessage) ([]models.Event, error) {
	var m allMids
	if err := decodeData(data, &m); err != nil {
		return nil, err
	}
	coins := make([]string, 0, len(m.Mids))
	for coin := range m.Mids {
		coins = append(coins, coin)
	}
	sort.Strings(coins)
	mids := make([]models.MidEntry, 0, len(coins))
	for _, coin := range coins {
		mids = append(mids, models.MidEntry{Symbol: coin, Mid: m.Mids[coin].Decimal})
	}
	return []models.Event{models.AllMidsEvent{
		Envelope: t.envelope(models.ChannelAllMids, models.AccountSymbol, frame, "allMids"),
		Mids:     mids,
	}}, nil
}

func (t *Translator) assetCtx(frame transport.Frame, data json.RawMessage) ([]models.Event, error) {
	var a assetCtx
	if err := decodeData(data, &a); err != nil {
		return nil, err
	}
	return []models.Event{models.ActiveAssetCtxEvent{
		Envelope:          t.envelope(models.ChannelActiveAssetCtx, a.Coin, frame, "activeAssetCtx"),
		FundingRate:       a.Ctx.Funding.Decimal,
		MarkPrice:         a.Ctx.MarkPx.Decimal,
		OpenInterest:      a.Ctx.OpenInterest.Decimal,
		OraclePrice:       a.Ctx.OraclePx.Ptr(),
		MidPrice:          a.Ctx.MidPx.Ptr(),
		PrevDayPrice:      a.Ctx.PrevDayPx.Ptr(),
		DayNotionalVolume: a.Ctx.DayNtlVlm.Ptr(),
	}}, nil
}

func toOrder(o order, status string, at wire.Millis) (models.UserOrderEntry, error) {
	side, err := wire.Side(o.Side)
	if err != nil {
		return models.UserOrderEntry{}, err
	}
	entry := models.UserOrderEntry{
		OrderID:       o.Oid.String(),
		ClientOrderID: o.Cloid,
		Symbol:        o.Coin,
		Side:          side,
		OrderType:     o.OrderType,
		Price:         o.LimitPx.Decimal,
		Size:          o.Sz.Decimal,
		OriginalSize:  o.OrigSz.Ptr(),
		Status:        status,
		Time:          at.Time(),
	}
	if entry.OrderType == "" {
		entry.OrderType = "limit"
	}
	if o.OrigSz.Valid {
		filled := o.OrigSz.Decimal.Sub(o.Sz.Decimal)
		entry.FilledSize = &filled
	}
	return entry, nil
}

func (t *Translator) orderUpdates(frame transport.Frame, data json.RawMessage) ([]models.Event, error) {
	var updates []orderUpdate
	if err := decodeData(data, &updates); err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return nil, nil
	}
	orders := make([]models.UserOrderEntry, 0, len(updates))
	for _, u := range updates {
		at := u.StatusTimestamp
		if at == 0 {
			at = u.Order.Timestamp
		}
		entry, err := toOrder(u.Order, u.Status, at)
		if err != nil {
			return nil, err
		}
		orders = append(orders, entry)
	}
	return []models.Event{models.UserOrderEvent{
		Envelope: t.envelope(models.ChannelUserOrders, models.AccountSymbol, frame, "orderUpdates"),
		Orders:   orders,
	}}, nil
}

func (t *Translator) fills(frame transport.Frame, data json.RawMessage) ([]models.Event, error) {
	var uf userFills
	if err := decodeData(data, &uf); err != nil {
		return nil, err
	}
	if len(uf.Fills) == 0 {
		return nil, nil
	}
	fills := make([]models.FillEntry, 0, len(uf.Fills))
	for _, f := range uf.Fills {
		side, err := wire.Side(f.Side)
		if err != nil {
			return nil, err
		}
		fills = append(fills, models.FillEntry{
			TradeID:       f.Tid.String(),
			OrderID:       f.Oid.String(),
			Symbol:        f.Coin,
			Side:          side,
			Price:         f.Px.Decimal,
			Size:          f.Sz.Decimal,
			Fee:           f.Fee.Ptr(),
			FeeAsset:      f.FeeToken,
			ClosedPnl:     f.ClosedPnl.Ptr(),
			StartPosition: f.StartPosition.Ptr(),
			Direction:     f.Dir,
			Time:          f.Time.Time(),
		})
	}
	return []models.Event{models.FillEvent{
		Envelope: t.envelope(models.ChannelFills, models.AccountSymbol, frame, "userFills"),
		Snapshot: uf.IsSnapshot,
		Fills:    fills,
	}}, nil
}

// clearinghouse yields positions and the USDC balance from one state
// message; both channels share the native subscription.
func (t *Translator) clearinghouse(frame transport.Frame, data json.RawMessage) ([]models.Event, error) {
	var msg clearinghouseMessage
	if err := decodeData(data, &msg); err != nil {
		return nil, err
	}
	state := msg.clearinghouse
	if msg.Wrapped != nil {
		state = *msg.Wrapped
	}

	var events []models.Event
	if len(state.AssetPositions) > 0 {
		positions := make([]models.PositionEntry, 0, len(state.AssetPositions))
		for _, ap := range state.AssetPositions {
			p := ap.Position
			side := models.PositionLong
			if p.Szi.Decimal.IsNegative() {
				side = models.PositionShort
			}
			entry := models.PositionEntry{
				Symbol:           p.Coin,
				Side:             side,
				Size:             p.Szi.Decimal.Abs(),
				EntryPrice:       p.EntryPx.Ptr(),
				UnrealizedPnl:    p.UnrealizedPnl.Ptr(),
				LiquidationPrice: p.LiquidationPx.Ptr(),
			}
			if p.Leverage != nil {
				entry.Leverage = p.Leverage.Value.Ptr()
				entry.MarginType = p.Leverage.Type
			}
			positions = append(positions, entry)
		}
		events = append(events, models.PositionEvent{
			Envelope:  t.envelope(models.ChannelPositions, models.AccountSymbol, frame, "clearinghouseState"),
			Positions: positions,
		})
	}

	margin := state.MarginSummary
	if margin == nil {
		margin = state.CrossMarginSummary
	}
	if margin != nil {
		available := state.Withdrawable
		if !available.Valid {
			available.Decimal = margin.AccountValue.Decimal.Sub(margin.TotalMarginUsed.Decimal)
			available.Valid = true
		}
		events = append(events, models.BalanceEvent{
			Envelope: t.envelope(models.ChannelBalances, models.AccountSymbol, frame, "clearinghouseState"),
			Balances: []models.BalanceEntry{{
				Asset:     usdc,
				Total:     margin.AccountValue.Decimal,
				Available: available.Ptr(),
			}},
			AccountValue:    margin.AccountValue.Ptr(),
			TotalMarginUsed: margin.TotalMarginUsed.Ptr(),
		})
	}
	return events, nil
}

func (t *Translator) fundings(frame transport.Frame, data json.RawMessage) ([]models.Event, error) {
	var uf userFundings
	if len(data) > 0 && data[0] == '[' {
		if err := decodeData(data, &uf.Fundings); err != nil {
			return nil, err
		}
	} else if err := decodeData(data, &uf); err != nil {
		return nil, err
	}
	if len(uf.Fundings) == 0 {
		return nil, nil
	}
	entries := make([]models.FundingEntry, 0, len(uf.Fundings))
	for _, f := range uf.Fundings {
		d := f.fundingDelta
		if f.Delta != nil {
			d = *f.Delta
		}
		entries = append(entries, models.FundingEntry{
			Symbol:       d.Coin,
			FundingRate:  d.FundingRate.Decimal,
			Payment:      d.Usdc.Decimal,
			PositionSize: d.Szi.Ptr(),
			Time:         f.Time.Time(),
		})
	}
	return []models.Event{models.UserFundingEvent{
		Envelope: t.envelope(models.ChannelUserFundings, models.AccountSymbol, frame, "userFundings"),
		Snapshot: uf.IsSnapshot,
		Fundings: entries,
	}}, nil
}

func (t *Translator) ledger(frame transport.Frame, data json.RawMessage) ([]models.Event, error) {
	var lu ledgerUpdates
	if len(data) > 0 && data[0] == '[' {
		if err := decodeData(data, &lu.Updates); err != nil {
			return nil, err
		}
	} else if err := decodeData(data, &lu); err != nil {
		return nil, err
	}
	updates := lu.Updates
	if len(updates) == 0 {
		updates = lu.Legacy
	}
	if len(updates) == 0 {
		return nil, nil
	}
	entries := make([]models.LedgerEntry, 0, len(updates))
	for _, u := range updates {
		typ := u.Delta.Type
		if typ == "" {
			typ = "unknown"
		}
		at := u.Time.Time()
		if at.IsZero() {
			at = frame.ReceivedAt
		}
		entries = append(entries, models.LedgerEntry{
			Type:   typ,
			Amount: u.Delta.Usdc.Decimal,
			Hash:   u.Hash,
			Time:   at,
		})
	}
	return []models.Event{models.LedgerEvent{
		Envelope: t.envelope(models.ChannelLedger, models.AccountSymbol, frame, "userNonFundingLedgerUpdates"),
		Snapshot: lu.IsSnapshot,
		Entries:  entries,
	}}, nil
}

func (t *Translator) notification(frame transport.Frame, data json.RawMessage) ([]models.Event, error) {
	msg := string(data)
	var s string
	var obj struct {
		Notification string `json:"notification"`
	}
	switch {
	case json.Unmarshal(data, &s) == nil:
		msg = s
	case json.Unmarshal(data, &obj) == nil && obj.Notification != "":
		msg = obj.Notification
	}
	return []models.Event{models.NotificationEvent{
		Envelope: t.envelope(models.ChannelNotifications, models.AccountSymbol, frame, "notification"),
		Message:  msg,
	}}, nil
}

func (t *Translator) openOrders(frame transport.Frame, data json.RawMessage) ([]models.Event, error) {
	var oo openOrders
	if len(data) > 0 && data[0] == '[' {
		if err := decodeData(data, &oo.Orders); err != nil {
			return nil, err
		}
	} else if err := decodeData(data, &oo); err != nil {
		return nil, err
	}
	orders := make([]models.UserOrderEntry, 0, len(oo.Orders))
	for _, o := range oo.Orders {
		entry, err := toOrder(o, "open", o.Timestamp)
		if err != nil {
			return nil, err
		}
		zero := decimal.Zero
		entry.FilledSize = &zero
		orders = append(orders, entry)
	}
	return []models.Event{models.OpenOrdersEvent{
		Envelope: t.envelope(models.ChannelOpenOrders, models.AccountSymbol, frame, "openOrders"),
		Orders:   orders,
	}}, nil
}
