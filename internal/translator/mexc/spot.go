package mexc

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/encoding/protowire"

	"cryptoconnect/internal/translator"
	"cryptoconnect/internal/translator/wire"
	"cryptoconnect/internal/transport"
	"cryptoconnect/logger"
	"cryptoconnect/models"
)

// SpotURL pushes protobuf frames; requests and acks stay JSON text.
const SpotURL = "wss://wbs-api.mexc.com/ws"

// MaxSpotSubscriptions is the venue's per-connection topic limit.
const MaxSpotSubscriptions = 30

var spotPing = transport.TextMessage(`{"method":"PING"}`)

// SpotKeepalive: idle spot connections are closed after 60 seconds.
var SpotKeepalive = translator.Keepalive{Interval: 20 * time.Second, Message: &spotPing}

// PushDataV3ApiWrapper field numbers.
const (
	wrapperChannel     protowire.Number = 1
	wrapperSymbol      protowire.Number = 3
	wrapperSendTime    protowire.Number = 6
	wrapperDeals       protowire.Number = 301
	wrapperAggreDeals  protowire.Number = 314
	wrapperAggreTicker protowire.Number = 315
)

// Spot translates the MEXC spot v3 API, whose pushes are protobuf.
type Spot struct {
	opts translator.Options
	log  *logger.Entry
}

func NewSpot(opts translator.Options) *Spot {
	return &Spot{opts: opts, log: opts.Logger("mexc_spot_translator")}
}

func (s *Spot) Exchange() models.Exchange { return models.ExchangeMEXC }

type spotRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
}

type spotAck struct {
	ID   int64  `json:"id"`
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (s *Spot) ToNativeSubscribe(req models.SubscribeRequest) ([]transport.Message, error) {
	return s.build("SUBSCRIPTION", req)
}

func (s *Spot) ToNativeUnsubscribe(req models.UnsubscribeRequest) ([]transport.Message, error) {
	return s.build("UNSUBSCRIPTION", models.SubscribeRequest(req))
}

func (s *Spot) build(method string, req models.SubscribeRequest) ([]transport.Message, error) {
	var topic string
	switch req.Channel {
	case models.ChannelTrades:
		topic = "spot@public.aggre.deals.v3.api.pb@100ms@"
	case models.ChannelOrderBookL1:
		topic = "spot@public.aggre.bookTicker.v3.api.pb@100ms@"
	default:
		return nil, fmt.Errorf("%w: mexc spot %s", translator.ErrUnsupportedChannel, req.Channel)
	}
	if len(req.Symbols) > MaxSpotSubscriptions {
		return nil, fmt.Errorf("mexc spot allows %d subscriptions per connection, got %d symbols",
			MaxSpotSubscriptions, len(req.Symbols))
	}
	msgs := make([]transport.Message, 0, len(req.Symbols))
	for _, symbol := range req.Symbols {
		msg, err := wire.JSON(spotRequest{Method: method, Params: []string{topic + symbol}})
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (s *Spot) FromNative(frame transport.Frame) ([]models.Event, error) {
	if frame.Kind == transport.Text {
		var ack spotAck
		if err := wire.Decode(frame, &ack); err != nil {
			return nil, err
		}
		if ack.Code != 0 {
			s.log.WithFields(logger.Fields{"code": ack.Code, "msg": ack.Msg}).Warn("request rejected")
		}
		return nil, nil
	}

	push, err := decodePush(frame.Payload)
	if err != nil {
		return nil, wire.Malformed(err)
	}
	switch {
	case push.deals != nil:
		return s.deals(frame, push)
	case push.ticker != nil:
		return s.bookTicker(frame, push)
	}
	s.log.WithField("channel", push.channel).Debug("unknown channel")
	return nil, nil
}

func (s *Spot) envelope(ch models.Channel, frame transport.Frame, push spotPush) models.Envelope {
	return wire.Envelope(models.ExchangeMEXC, ch, push.symbol, frame, s.opts.IncludeRaw, push.channel)
}

func (s *Spot) deals(frame transport.Frame, push spotPush) ([]models.Event, error) {
	if len(push.deals) == 0 {
		return nil, nil
	}
	entries := make([]models.TradeEntry, 0, len(push.deals))
	for _, d := range push.deals {
		side, err := dealSide(int(d.tradeType))
		if err != nil {
			return nil, err
		}
		price, err := decimal.NewFromString(d.price)
		if err != nil {
			return nil, wire.Malformed(fmt.Errorf("deal price %q: %w", d.price, err))
		}
		size, err := decimal.NewFromString(d.quantity)
		if err != nil {
			return nil, wire.Malformed(fmt.Errorf("deal quantity %q: %w", d.quantity, err))
		}
		entries = append(entries, models.TradeEntry{
			Price: price,
			Size:  size,
			Side:  side,
			Time:  wire.Millis(d.time).Time(),
		})
	}
	return []models.Event{models.TradesEvent{
		Envelope: s.envelope(models.ChannelTrades, frame, push),
		Trades:   entries,
	}}, nil
}

func (s *Spot) bookTicker(frame transport.Frame, push spotPush) ([]models.Event, error) {
	bid, err := spotLevel(push.ticker.bidPrice, push.ticker.bidQuantity)
	if err != nil {
		return nil, err
	}
	ask, err := spotLevel(push.ticker.askPrice, push.ticker.askQuantity)
	if err != nil {
		return nil, err
	}
	return []models.Event{models.OrderBookL1Event{
		Envelope: s.envelope(models.ChannelOrderBookL1, frame, push),
		Bid:      bid,
		Ask:      ask,
		Time:     wire.Millis(push.sendTime).Ptr(),
	}}, nil
}

// spotLevel returns nil for an empty side.
func spotLevel(price, size string) (*models.PriceLevel, error) {
	if price == "" {
		return nil, nil
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, wire.Malformed(fmt.Errorf("price %q: %w", price, err))
	}
	q, err := decimal.NewFromString(size)
	if err != nil {
		return nil, wire.Malformed(fmt.Errorf("size %q: %w", size, err))
	}
	return &models.PriceLevel{Price: p, Size: q}, nil
}

type spotDeal struct {
	price     string
	quantity  string
	tradeType int64
	time      int64
}

type spotTicker struct {
	bidPrice    string
	bidQuantity string
	askPrice    string
	askQuantity string
}

type spotPush struct {
	channel  string
	symbol   string
	sendTime int64
	deals    []spotDeal
	ticker   *spotTicker
}

// walk calls fn for every varint and length-delimited field of msg and
// skips the other wire types.
func walk(msg []byte, fn func(num protowire.Number, v uint64, b []byte) error) error {
	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			return protowire.ParseError(n)
		}
		msg = msg[n:]

		var v uint64
		var b []byte
		switch typ {
		case protowire.VarintType:
			v, n = protowire.ConsumeVarint(msg)
		case protowire.BytesType:
			b, n = protowire.ConsumeBytes(msg)
		default:
			n = protowire.ConsumeFieldValue(num, typ, msg)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		msg = msg[n:]
		if typ != protowire.VarintType && typ != protowire.BytesType {
			continue
		}
		if err := fn(num, v, b); err != nil {
			return err
		}
	}
	return nil
}

func decodePush(payload []byte) (spotPush, error) {
	var p spotPush
	err := walk(payload, func(num protowire.Number, v uint64, b []byte) error {
		switch num {
		case wrapperChannel:
			p.channel = string(b)
		case wrapperSymbol:
			p.symbol = string(b)
		case wrapperSendTime:
			p.sendTime = int64(v)
		case wrapperDeals, wrapperAggreDeals:
			deals, err := decodeDeals(b)
			if err != nil {
				return fmt.Errorf("deals: %w", err)
			}
			p.deals = deals
		case wrapperAggreTicker:
			t, err := decodeTicker(b)
			if err != nil {
				return fmt.Errorf("book ticker: %w", err)
			}
			p.ticker = &t
		}
		return nil
	})
	if p.symbol == "" {
		if i := strings.LastIndexByte(p.channel, '@'); i >= 0 {
			p.symbol = p.channel[i+1:]
		}
	}
	return p, err
}

// decodeDeals reads {repeated item deals = 1; string eventType = 2} where
// item is {price = 1, quantity = 2, tradeType = 3, time = 4}.
func decodeDeals(msg []byte) ([]spotDeal, error) {
	deals := []spotDeal{}
	err := walk(msg, func(num protowire.Number, _ uint64, b []byte) error {
		if num != 1 {
			return nil
		}
		var d spotDeal
		err := walk(b, func(num protowire.Number, v uint64, b []byte) error {
			switch num {
			case 1:
				d.price = string(b)
			case 2:
				d.quantity = string(b)
			case 3:
				d.tradeType = int64(v)
			case 4:
				d.time = int64(v)
			}
			return nil
		})
		if err != nil {
			return err
		}
		deals = append(deals, d)
		return nil
	})
	return deals, err
}

func decodeTicker(msg []byte) (spotTicker, error) {
	var t spotTicker
	err := walk(msg, func(num protowire.Number, _ uint64, b []byte) error {
		switch num {
		case 1:
			t.bidPrice = string(b)
		case 2:
			t.bidQuantity = string(b)
		case 3:
			t.askPrice = string(b)
		case 4:
			t.askQuantity = string(b)
		}
		return nil
	})
	return t, err
}
