// Package mexc translates the MEXC futures websocket API.
package mexc

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cryptoconnect/internal/translator"
	"cryptoconnect/internal/translator/wire"
	"cryptoconnect/internal/transport"
	"cryptoconnect/logger"
	"cryptoconnect/models"
)

const FuturesURL = "wss://contract.mexc.com/edge"

var ping = transport.TextMessage(`{"method":"ping"}`)

// Keepalive: the server disconnects after a minute without a ping.
var Keepalive = translator.Keepalive{Interval: 20 * time.Second, Message: &ping}

var two = decimal.NewFromInt(2)

var intervals = map[string]string{
	"1m": "Min1", "5m": "Min5", "15m": "Min15", "30m": "Min30",
	"1h": "Min60", "4h": "Hour4", "8h": "Hour8",
	"1d": "Day1", "1w": "Week1", "1M": "Month1",
}

type Translator struct {
	opts translator.Options
	log  *logger.Entry
}

func New(opts translator.Options) *Translator {
	return &Translator{opts: opts, log: opts.Logger("mexc_translator")}
}

func (t *Translator) Exchange() models.Exchange { return models.ExchangeMEXC }

func (t *Translator) ToNativeSubscribe(req models.SubscribeRequest) ([]transport.Message, error) {
	return t.build("sub.", req)
}

func (t *Translator) ToNativeUnsubscribe(req models.UnsubscribeRequest) ([]transport.Message, error) {
	return t.build("unsub.", models.SubscribeRequest(req))
}

func (t *Translator) build(prefix string, req models.SubscribeRequest) ([]transport.Message, error) {
	method, base, err := nativeMethod(req)
	if err != nil {
		return nil, err
	}
	msgs := make([]transport.Message, 0, len(req.Symbols))
	for _, symbol := range req.Symbols {
		p := base
		p.Symbol = symbol
		msg, err := wire.JSON(request{Method: prefix + method, Param: p})
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func nativeMethod(req models.SubscribeRequest) (string, param, error) {
	switch req.Channel {
	case models.ChannelTrades:
		return "deal", param{}, nil
	case models.ChannelOrderBookL2:
		if req.Depth != nil {
			return "depth.full", param{Limit: *req.Depth}, nil
		}
		return "depth", param{}, nil
	case models.ChannelCandles:
		interval := req.Interval
		if interval == "" {
			interval = "1m"
		}
		if native, ok := intervals[interval]; ok {
			interval = native
		}
		return "kline", param{Interval: interval}, nil
	case models.ChannelActiveAssetCtx:
		return "ticker", param{}, nil
	case models.ChannelFundingRate:
		return "funding.rate", param{}, nil
	}
	return "", param{}, fmt.Errorf("%w: mexc %s", translator.ErrUnsupportedChannel, req.Channel)
}

func (t *Translator) FromNative(frame transport.Frame) ([]models.Event, error) {
	var msg message
	if err := wire.Decode(frame, &msg); err != nil {
		return nil, err
	}

	switch msg.Channel {
	case "push.deal":
		return t.deals(frame, msg)
	case "push.depth":
		return t.depth(frame, msg, false)
	case "push.depth.full":
		return t.depth(frame, msg, true)
	case "push.kline":
		return t.kline(frame, msg)
	case "push.ticker":
		return t.ticker(frame, msg)
	case "push.funding.rate":
		return t.funding(frame, msg)
	case "pong":
		return nil, nil
	case "rs.error":
		t.log.WithField("data", string(msg.Data)).Warn("request rejected")
		return nil, nil
	}
	if strings.HasPrefix(msg.Channel, "rs.") {
		t.log.WithField("channel", msg.Channel).Debug("subscription response")
		return nil, nil
	}
	t.log.WithField("channel", msg.Channel).Debug("unknown channel")
	return nil, nil
}

func (t *Translator) envelope(ch models.Channel, symbol string, frame transport.Frame, msg message, seq int64) models.Envelope {
	env := wire.Envelope(models.ExchangeMEXC, ch, symbol, frame, t.opts.IncludeRaw, msg.Channel)
	env.Sequence = wire.Seq(seq)
	return env
}

// decodeData accepts a single object or an array of them.
func decodeData[T any](data json.RawMessage) ([]T, error) {
	var items []T
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, wire.Malformed(err)
		}
		return items, nil
	}
	var one T
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, wire.Malformed(err)
	}
	return []T{one}, nil
}

func dealSide(code int) (models.Side, error) {
	switch code {
	case 1:
		return models.SideBuy, nil
	case 2:
		return models.SideSell, nil
	}
	return "", wire.Malformed(fmt.Errorf("unknown deal side %d", code))
}

func (t *Translator) deals(frame transport.Frame, msg message) ([]models.Event, error) {
	raw, err := decodeData[deal](msg.Data)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	entries := make([]models.TradeEntry, 0, len(raw))
	for _, d := range raw {
		side, err := dealSide(d.Side)
		if err != nil {
			return nil, err
		}
		entries = append(entries, models.TradeEntry{
			Price: d.Price.Decimal,
			Size:  d.Volume.Decimal,
			Side:  side,
			Time:  d.Time.Time(),
		})
	}
	return []models.Event{models.TradesEvent{
		Envelope: t.envelope(models.ChannelTrades, msg.Symbol, frame, msg, 0),
		Trades:   entries,
	}}, nil
}

func toLevels(in []level) []models.PriceLevel {
	out := make([]models.PriceLevel, 0, len(in))
	for _, l := range in {
		if len(l) < 2 {
			continue
		}
		pl := models.PriceLevel{Price: l[0].Decimal, Size: l[1].Decimal}
		if len(l) >= 3 && l[2].Valid {
			n := l[2].IntPart()
			pl.Orders = &n
		}
		out = append(out, pl)
	}
	return out
}

func (t *Translator) depth(frame transport.Frame, msg message, snapshot bool) ([]models.Event, error) {
	var d depth
	if err := json.Unmarshal(msg.Data, &d); err != nil {
		return nil, wire.Malformed(err)
	}
	return []models.Event{models.OrderBookL2Event{
		Envelope: t.envelope(models.ChannelOrderBookL2, msg.Symbol, frame, msg, d.Version),
		Snapshot: snapshot,
		Bids:     toLevels(d.Bids),
		Asks:     toLevels(d.Asks),
		Time:     msg.Ts.Ptr(),
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

func (t *Translator) kline(frame transport.Frame, msg message) ([]models.Event, error) {
	raw, err := decodeData[kline](msg.Data)
	if err != nil {
		return nil, err
	}
	entries := make([]models.CandleEntry, 0, len(raw))
	for _, k := range raw {
		entries = append(entries, models.CandleEntry{
			OpenTime: time.Unix(int64(k.Time), 0).UTC(),
			Interval: unifiedInterval(k.Interval),
			Open:     k.Open.Decimal,
			High:     k.High.Decimal,
			Low:      k.Low.Decimal,
			Close:    k.Close.Decimal,
			Volume:   k.Quantity.Decimal,
			Turnover: k.Amount.Ptr(),
		})
	}
	symbol := msg.Symbol
	if symbol == "" && len(raw) > 0 {
		symbol = raw[0].Symbol
	}
	return []models.Event{models.CandleEvent{
		Envelope: t.envelope(models.ChannelCandles, symbol, frame, msg, 0),
		Candles:  entries,
	}}, nil
}

func (t *Translator) ticker(frame transport.Frame, msg message) ([]models.Event, error) {
	var tk ticker
	if err := json.Unmarshal(msg.Data, &tk); err != nil {
		return nil, wire.Malformed(err)
	}
	symbol := tk.Symbol
	if symbol == "" {
		symbol = msg.Symbol
	}
	ev := models.ActiveAssetCtxEvent{
		Envelope:          t.envelope(models.ChannelActiveAssetCtx, symbol, frame, msg, 0),
		FundingRate:       tk.FundingRate.Decimal,
		MarkPrice:         tk.FairPrice.Decimal,
		OpenInterest:      tk.HoldVol.Decimal,
		OraclePrice:       tk.IndexPrice.Ptr(),
		DayNotionalVolume: tk.Amount24.Ptr(),
	}
	if tk.Bid1.Valid && tk.Ask1.Valid {
		mid := tk.Bid1.Add(tk.Ask1.Decimal).Div(two)
		ev.MidPrice = &mid
	}
	return []models.Event{ev}, nil
}

func (t *Translator) funding(frame transport.Frame, msg message) ([]models.Event, error) {
	var f fundingRate
	if err := json.Unmarshal(msg.Data, &f); err != nil {
		return nil, wire.Malformed(err)
	}
	symbol := f.Symbol
	if symbol == "" {
		symbol = msg.Symbol
	}
	return []models.Event{models.FundingRateEvent{
		Envelope:        t.envelope(models.ChannelFundingRate, symbol, frame, msg, 0),
		FundingRate:     f.Rate.Decimal,
		NextFundingTime: f.NextSettleTime.Ptr(),
	}}, nil
}
